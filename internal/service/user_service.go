package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/classsync/classsync-api/internal/models"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id, schoolID string, role models.UserRole) error
}

type userSlotRepository interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleSlot, error)
	DeleteByTeacher(ctx context.Context, schoolID, teacherID string) error
}

// CreateUserRequest represents payload for creating teachers and students.
type CreateUserRequest struct {
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=6"`
	FullName     string  `json:"full_name" validate:"required"`
	ClassSection *string `json:"class_section" validate:"omitempty,max=20"`
	RollNumber   *string `json:"roll_number" validate:"omitempty,max=20"`
}

// UpdateUserRequest represents payload for updating teachers and students.
type UpdateUserRequest struct {
	Email        string  `json:"email" validate:"required,email"`
	FullName     string  `json:"full_name" validate:"required"`
	ClassSection *string `json:"class_section" validate:"omitempty,max=20"`
	RollNumber   *string `json:"roll_number" validate:"omitempty,max=20"`
	Active       *bool   `json:"active"`
}

// TeacherDetail bundles a teacher with their recurring schedule.
type TeacherDetail struct {
	Teacher models.User           `json:"teacher"`
	Slots   []models.ScheduleSlot `json:"slots"`
}

// UserService orchestrates teacher and student management within one school.
type UserService struct {
	repo      userRepository
	slots     userSlotRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, slots userSlotRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, slots: slots, validator: validate, logger: logger}
}

// List returns users of one role plus pagination data.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a user scoped to the caller's school.
func (s *UserService) Get(ctx context.Context, id, schoolID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// GetTeacherDetail returns a teacher with their recurring schedule.
func (s *UserService) GetTeacherDetail(ctx context.Context, id, schoolID string) (*TeacherDetail, error) {
	teacher, err := s.Get(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	slots, err := s.slots.ListByTeacher(ctx, schoolID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher schedule")
	}
	return &TeacherDetail{Teacher: *teacher, Slots: slots}, nil
}

// Create registers a new teacher or student in the school.
func (s *UserService) Create(ctx context.Context, schoolID string, role models.UserRole, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if role != models.RoleTeacher && role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be TEACHER or STUDENT")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		SchoolID:     schoolID,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
		Active:       true,
		ClassSection: normalizeOptional(req.ClassSection),
		RollNumber:   normalizeOptional(req.RollNumber),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return user, nil
}

// Update modifies an existing teacher or student.
func (s *UserService) Update(ctx context.Context, id, schoolID string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.Get(ctx, id, schoolID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}

	user.Email = strings.TrimSpace(req.Email)
	user.FullName = strings.TrimSpace(req.FullName)
	user.ClassSection = normalizeOptional(req.ClassSection)
	user.RollNumber = normalizeOptional(req.RollNumber)
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// Delete removes a teacher or student from the school. Removing a teacher
// also drops their recurring slots so stale entries cannot block future
// availability checks.
func (s *UserService) Delete(ctx context.Context, id, schoolID string, role models.UserRole) error {
	if err := s.repo.Delete(ctx, id, schoolID, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if role == models.RoleTeacher {
		if err := s.slots.DeleteByTeacher(ctx, schoolID, id); err != nil {
			s.logger.Sugar().Errorw("failed to delete removed teacher's slots",
				"teacher_id", id, "school_id", schoolID, "error", err)
		}
	}
	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

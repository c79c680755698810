package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classsync/classsync-api/internal/models"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
)

type scheduleSlotRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error)
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleSlot, error)
	ListBySchool(ctx context.Context, filter models.ScheduleSlotFilter) ([]models.ScheduleSlot, error)
	HasConflict(ctx context.Context, teacherID string, weekday, periodIndex int, schoolID string) (bool, error)
	Create(ctx context.Context, slot *models.ScheduleSlot) error
	Update(ctx context.Context, slot *models.ScheduleSlot) error
	Delete(ctx context.Context, id, schoolID string) error
}

type scheduleSchoolRepository interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	UpdateTimetable(ctx context.Context, school *models.School) error
}

type scheduleUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateScheduleSlotRequest represents payload for creating a recurring slot.
type CreateScheduleSlotRequest struct {
	TeacherID    string `json:"teacher_id" validate:"required"`
	Weekday      int    `json:"weekday" validate:"gte=0,lte=6"`
	PeriodIndex  int    `json:"period_index" validate:"gte=0"`
	Subject      string `json:"subject" validate:"required,max=100"`
	ClassSection string `json:"class_section" validate:"required,max=20"`
	Room         string `json:"room" validate:"omitempty,max=50"`
}

// UpdateTimetableRequest reconfigures the school's period grid.
type UpdateTimetableRequest struct {
	PeriodCount           int `json:"period_count" validate:"gte=1,lte=16"`
	PeriodDurationMinutes int `json:"period_duration_minutes" validate:"gte=20,lte=120"`
	StartHour             int `json:"start_hour" validate:"gte=0,lte=23"`
	StartMinute           int `json:"start_minute" validate:"gte=0,lte=59"`
}

// UpdateScheduleSlotRequest represents payload for updating a recurring slot.
type UpdateScheduleSlotRequest struct {
	TeacherID    string `json:"teacher_id" validate:"required"`
	Weekday      int    `json:"weekday" validate:"gte=0,lte=6"`
	PeriodIndex  int    `json:"period_index" validate:"gte=0"`
	Subject      string `json:"subject" validate:"required,max=100"`
	ClassSection string `json:"class_section" validate:"required,max=20"`
	Room         string `json:"room" validate:"omitempty,max=50"`
}

// ScheduleService manages recurring weekly schedule slots and renders
// timetables with wall-clock period times.
type ScheduleService struct {
	slots     scheduleSlotRepository
	schools   scheduleSchoolRepository
	users     scheduleUserLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(slots scheduleSlotRepository, schools scheduleSchoolRepository, users scheduleUserLookup, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{slots: slots, schools: schools, users: users, validator: validate, logger: logger}
}

// List returns slots matching the filter.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleSlotFilter) ([]models.ScheduleSlot, error) {
	slots, err := s.slots.ListBySchool(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule slots")
	}
	return slots, nil
}

// Timetable returns a teacher's slots decorated with start and end times per
// the school's timetable configuration.
func (s *ScheduleService) Timetable(ctx context.Context, schoolID, teacherID string) ([]models.TimetableEntry, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	slots, err := s.slots.ListByTeacher(ctx, schoolID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slots")
	}

	entries := make([]models.TimetableEntry, 0, len(slots))
	for _, slot := range slots {
		start, end := school.PeriodWindow(slot.PeriodIndex)
		entries = append(entries, models.TimetableEntry{ScheduleSlot: slot, StartTime: start, EndTime: end})
	}
	return entries, nil
}

// School returns the school's timetable configuration.
func (s *ScheduleService) School(ctx context.Context, schoolID string) (*models.School, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// UpdateTimetable reconfigures the school's period grid. Shrinking the period
// count is rejected while recurring slots still sit beyond the new bound.
func (s *ScheduleService) UpdateTimetable(ctx context.Context, schoolID string, req UpdateTimetableRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}

	school, err := s.School(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	if req.PeriodCount < school.PeriodCount {
		orphaned, err := s.slots.ListBySchool(ctx, models.ScheduleSlotFilter{SchoolID: schoolID})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slots")
		}
		for _, slot := range orphaned {
			if slot.PeriodIndex >= req.PeriodCount {
				return nil, appErrors.Clone(appErrors.ErrConflict,
					fmt.Sprintf("existing schedule slots use periods beyond %d", req.PeriodCount))
			}
		}
	}

	school.PeriodCount = req.PeriodCount
	school.PeriodDurationMinutes = req.PeriodDurationMinutes
	school.StartHour = req.StartHour
	school.StartMinute = req.StartMinute

	if err := s.schools.UpdateTimetable(ctx, school); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable")
	}
	return school, nil
}

// Create registers a recurring slot after checking the teacher is real and
// free at that weekday and period within the school.
func (s *ScheduleService) Create(ctx context.Context, schoolID string, req CreateScheduleSlotRequest) (*models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule slot payload")
	}
	if err := s.checkSlot(ctx, schoolID, req.TeacherID, req.Weekday, req.PeriodIndex); err != nil {
		return nil, err
	}

	slot := &models.ScheduleSlot{
		SchoolID:     schoolID,
		TeacherID:    req.TeacherID,
		Weekday:      req.Weekday,
		PeriodIndex:  req.PeriodIndex,
		Subject:      strings.TrimSpace(req.Subject),
		ClassSection: strings.TrimSpace(req.ClassSection),
		Room:         strings.TrimSpace(req.Room),
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule slot")
	}
	return slot, nil
}

// Update modifies an existing slot, re-running the conflict check when the
// slot moves to a different teacher, weekday or period.
func (s *ScheduleService) Update(ctx context.Context, id, schoolID string, req UpdateScheduleSlotRequest) (*models.ScheduleSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule slot payload")
	}

	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slot")
	}
	if slot.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
	}

	moved := slot.TeacherID != req.TeacherID || slot.Weekday != req.Weekday || slot.PeriodIndex != req.PeriodIndex
	if moved {
		if err := s.checkSlot(ctx, schoolID, req.TeacherID, req.Weekday, req.PeriodIndex); err != nil {
			return nil, err
		}
	}

	slot.TeacherID = req.TeacherID
	slot.Weekday = req.Weekday
	slot.PeriodIndex = req.PeriodIndex
	slot.Subject = strings.TrimSpace(req.Subject)
	slot.ClassSection = strings.TrimSpace(req.ClassSection)
	slot.Room = strings.TrimSpace(req.Room)

	if err := s.slots.Update(ctx, slot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule slot")
	}
	return slot, nil
}

// Delete removes a slot.
func (s *ScheduleService) Delete(ctx context.Context, id, schoolID string) error {
	if err := s.slots.Delete(ctx, id, schoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule slot")
	}
	return nil
}

func (s *ScheduleService) checkSlot(ctx context.Context, schoolID, teacherID string, weekday, periodIndex int) error {
	teacher, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.SchoolID != schoolID || teacher.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if periodIndex >= school.PeriodCount {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("period_index must be below the school's period count of %d", school.PeriodCount))
	}

	conflict, err := s.slots.HasConflict(ctx, teacherID, weekday, periodIndex, schoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot conflict")
	}
	if conflict {
		return appErrors.Clone(appErrors.ErrConflict, "teacher already has a class at that weekday and period")
	}
	return nil
}

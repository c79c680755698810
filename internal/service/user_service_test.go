package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/classsync/classsync-api/internal/models"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
)

type mockUserRepo struct {
	items  map[string]models.User
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{items: make(map[string]models.User)}
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.items {
		if u.SchoolID != filter.SchoolID {
			continue
		}
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(u.FullName), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	for _, u := range m.items {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	m.items[user.ID] = *user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.items[user.ID]; !ok {
		return sql.ErrNoRows
	}
	m.items[user.ID] = *user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id, schoolID string, role models.UserRole) error {
	u, ok := m.items[id]
	if !ok || u.SchoolID != schoolID || u.Role != role {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

type mockUserSlots struct {
	mockSlotRepo
	deletedTeachers []string
}

func (m *mockUserSlots) DeleteByTeacher(ctx context.Context, schoolID, teacherID string) error {
	m.deletedTeachers = append(m.deletedTeachers, teacherID)
	var kept []models.ScheduleSlot
	for _, slot := range m.slots {
		if slot.SchoolID == schoolID && slot.TeacherID == teacherID {
			continue
		}
		kept = append(kept, slot)
	}
	m.slots = kept
	return nil
}

func newUserServiceMock(t *testing.T) (*UserService, *mockUserRepo, *mockUserSlots) {
	t.Helper()
	repo := newMockUserRepo()
	slots := &mockUserSlots{}
	return NewUserService(repo, slots, nil, nil), repo, slots
}

func TestCreateTeacherHashesPassword(t *testing.T) {
	svc, repo, _ := newUserServiceMock(t)

	user, err := svc.Create(context.Background(), "school-1", models.RoleTeacher, CreateUserRequest{
		Email: "jane@school.test", Password: "secret1", FullName: "Jane Poe",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.True(t, user.Active)
	assert.Equal(t, models.RoleTeacher, user.Role)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
	assert.Len(t, repo.items, 1)
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newUserServiceMock(t)

	_, err := svc.Create(context.Background(), "school-1", models.RoleStudent, CreateUserRequest{
		Email: "kid@school.test", Password: "secret1", FullName: "Kid One",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "school-1", models.RoleStudent, CreateUserRequest{
		Email: "kid@school.test", Password: "secret1", FullName: "Kid Two",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Status, appErrors.FromError(err).Status)
}

func TestCreateUserRejectsAdminRole(t *testing.T) {
	svc, _, _ := newUserServiceMock(t)

	_, err := svc.Create(context.Background(), "school-1", models.RoleAdmin, CreateUserRequest{
		Email: "boss@school.test", Password: "secret1", FullName: "Boss",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
}

func TestGetUserIsSchoolScoped(t *testing.T) {
	svc, _, _ := newUserServiceMock(t)

	user, err := svc.Create(context.Background(), "school-1", models.RoleTeacher, CreateUserRequest{
		Email: "jane@school.test", Password: "secret1", FullName: "Jane Poe",
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), user.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Get(context.Background(), user.ID, "school-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestGetTeacherDetailIncludesSlots(t *testing.T) {
	svc, _, slots := newUserServiceMock(t)

	teacher, err := svc.Create(context.Background(), "school-1", models.RoleTeacher, CreateUserRequest{
		Email: "jane@school.test", Password: "secret1", FullName: "Jane Poe",
	})
	require.NoError(t, err)
	slots.slots = []models.ScheduleSlot{
		{ID: "slot-1", SchoolID: "school-1", TeacherID: teacher.ID, Weekday: 1, PeriodIndex: 1, Subject: "Math"},
	}

	detail, err := svc.GetTeacherDetail(context.Background(), teacher.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, detail.Teacher.ID)
	require.Len(t, detail.Slots, 1)
	assert.Equal(t, "Math", detail.Slots[0].Subject)
}

func TestGetTeacherDetailRejectsStudent(t *testing.T) {
	svc, _, _ := newUserServiceMock(t)

	student, err := svc.Create(context.Background(), "school-1", models.RoleStudent, CreateUserRequest{
		Email: "kid@school.test", Password: "secret1", FullName: "Kid One",
	})
	require.NoError(t, err)

	_, err = svc.GetTeacherDetail(context.Background(), student.ID, "school-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestUpdateUserTogglesActive(t *testing.T) {
	svc, repo, _ := newUserServiceMock(t)

	user, err := svc.Create(context.Background(), "school-1", models.RoleTeacher, CreateUserRequest{
		Email: "jane@school.test", Password: "secret1", FullName: "Jane Poe",
	})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(context.Background(), user.ID, "school-1", UpdateUserRequest{
		Email: "jane@school.test", FullName: "Jane Poe", Active: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.False(t, repo.items[user.ID].Active)
}

func TestDeleteTeacherCascadesSlots(t *testing.T) {
	svc, _, slots := newUserServiceMock(t)

	teacher, err := svc.Create(context.Background(), "school-1", models.RoleTeacher, CreateUserRequest{
		Email: "jane@school.test", Password: "secret1", FullName: "Jane Poe",
	})
	require.NoError(t, err)
	slots.slots = []models.ScheduleSlot{
		{ID: "slot-1", SchoolID: "school-1", TeacherID: teacher.ID, Weekday: 1, PeriodIndex: 1},
	}

	require.NoError(t, svc.Delete(context.Background(), teacher.ID, "school-1", models.RoleTeacher))
	assert.Contains(t, slots.deletedTeachers, teacher.ID)
	assert.Empty(t, slots.slots)
}

func TestDeleteStudentLeavesSlotsAlone(t *testing.T) {
	svc, _, slots := newUserServiceMock(t)

	student, err := svc.Create(context.Background(), "school-1", models.RoleStudent, CreateUserRequest{
		Email: "kid@school.test", Password: "secret1", FullName: "Kid One",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), student.ID, "school-1", models.RoleStudent))
	assert.Empty(t, slots.deletedTeachers)
}

func TestDeleteUnknownUserIsNotFound(t *testing.T) {
	svc, _, _ := newUserServiceMock(t)

	err := svc.Delete(context.Background(), "ghost", "school-1", models.RoleTeacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

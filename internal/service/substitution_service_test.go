package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/pkg/config"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
)

type mockSlotRepo struct {
	slots []models.ScheduleSlot
}

func (m *mockSlotRepo) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	for i := range m.slots {
		if m.slots[i].ID == id {
			cp := m.slots[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotRepo) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleSlot, error) {
	var out []models.ScheduleSlot
	for _, slot := range m.slots {
		if slot.SchoolID == schoolID && slot.TeacherID == teacherID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (m *mockSlotRepo) HasConflict(ctx context.Context, teacherID string, weekday, periodIndex int, schoolID string) (bool, error) {
	for _, slot := range m.slots {
		if slot.TeacherID != teacherID || slot.Weekday != weekday || slot.PeriodIndex != periodIndex {
			continue
		}
		if schoolID != "" && slot.SchoolID != schoolID {
			continue
		}
		return true, nil
	}
	return false, nil
}

// mockSubStore mimics the claim semantics of the real repository: an insert
// that is dropped when the (substitute, date, period) key is already taken.
// Guarded by a mutex so it also stands in for concurrent expansions.
type mockSubStore struct {
	mu        sync.Mutex
	claimed   map[string]bool
	created   []models.Substitution
	overrides []string
	history   []models.SubstitutionDetail
	nextID    int
}

func claimKey(substituteID string, date time.Time, periodIndex int) string {
	return fmt.Sprintf("%s|%s|%d", substituteID, date.Format("2006-01-02"), periodIndex)
}

func (m *mockSubStore) Claim(ctx context.Context, sub *models.Substitution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	key := claimKey(sub.SubstituteTeacherID, sub.Date, sub.PeriodIndex)
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	m.nextID++
	sub.ID = fmt.Sprintf("sub-%d", m.nextID)
	sub.AssignedAt = time.Now().UTC()
	m.created = append(m.created, *sub)
	return true, nil
}

func (m *mockSubStore) FindByID(ctx context.Context, id, schoolID string) (*models.Substitution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.created {
		if m.created[i].ID == id && m.created[i].SchoolID == schoolID {
			cp := m.created[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubStore) UpdateSubstitute(ctx context.Context, id, schoolID, substituteTeacherID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.created {
		if m.created[i].ID == id && m.created[i].SchoolID == schoolID {
			m.created[i].SubstituteTeacherID = substituteTeacherID
			if reason != "" {
				m.created[i].Reason = reason
			}
			m.overrides = append(m.overrides, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockSubStore) ListBySubstitute(ctx context.Context, schoolID, teacherID string, from time.Time) ([]models.SubstitutionDetail, error) {
	return nil, nil
}

func (m *mockSubStore) ListBySchool(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSubStore) History(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, error) {
	return m.history, nil
}

type mockUserDirectory struct {
	users []models.User
}

func (m *mockUserDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			cp := m.users[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserDirectory) ListActiveTeachers(ctx context.Context, schoolID string, excludedIDs []string) ([]models.User, error) {
	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}
	var out []models.User
	for _, u := range m.users {
		if u.SchoolID != schoolID || u.Role != models.RoleTeacher || !u.Active {
			continue
		}
		if _, skip := excluded[u.ID]; skip {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *mockUserDirectory) ListAdmins(ctx context.Context, schoolID string) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.SchoolID == schoolID && u.Role == models.RoleAdmin {
			out = append(out, u)
		}
	}
	return out, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (m *mockNotifier) Dispatch(n models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
}

type engineFixture struct {
	slots    *mockSlotRepo
	subs     *mockSubStore
	users    *mockUserDirectory
	notifier *mockNotifier
	service  *SubstitutionService
}

func newEngineFixture(t *testing.T, engineCfg config.EngineConfig) *engineFixture {
	t.Helper()
	f := &engineFixture{
		slots:    &mockSlotRepo{},
		subs:     &mockSubStore{},
		users:    &mockUserDirectory{},
		notifier: &mockNotifier{},
	}
	f.service = NewSubstitutionService(f.slots, f.subs, f.users, f.notifier, nil, engineCfg, nil)
	return f
}

func teacherUser(id, schoolID string) models.User {
	return models.User{ID: id, SchoolID: schoolID, Email: id + "@school.test", FullName: "Teacher " + id, Role: models.RoleTeacher, Active: true}
}

func adminUser(id, schoolID string) models.User {
	return models.User{ID: id, SchoolID: schoolID, Email: id + "@school.test", FullName: "Admin " + id, Role: models.RoleAdmin, Active: true}
}

// 2026-01-05 is a Monday, 2026-01-07 the following Wednesday.
const (
	monday    = "2026-01-05"
	wednesday = "2026-01-07"
)

func scenarioFixture(t *testing.T) *engineFixture {
	f := newEngineFixture(t, config.EngineConfig{})
	f.users.users = []models.User{
		teacherUser("t1", "school-1"),
		teacherUser("t2", "school-1"),
		adminUser("a1", "school-1"),
	}
	f.slots.slots = []models.ScheduleSlot{
		{ID: "slot-mon", SchoolID: "school-1", TeacherID: "t1", Weekday: 1, PeriodIndex: 1, Subject: "Math", ClassSection: "5A"},
		{ID: "slot-wed", SchoolID: "school-1", TeacherID: "t1", Weekday: 3, PeriodIndex: 3, Subject: "Math", ClassSection: "5A"},
	}
	return f
}

func TestGenerateCoversEverySlotWhenPoolIsFree(t *testing.T) {
	f := scenarioFixture(t)

	result, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: wednesday,
	})
	require.NoError(t, err)

	require.Len(t, result.Covered, 2)
	assert.Empty(t, result.Uncovered)
	assert.Equal(t, "Teacher t1", result.OriginalTeacher.FullName)

	for _, covered := range result.Covered {
		assert.Equal(t, "t2", covered.Substitution.SubstituteTeacherID)
		assert.Equal(t, "t1", covered.Substitution.OriginalTeacherID)
		assert.Equal(t, "Leave", covered.Substitution.Reason)
	}
	assert.Equal(t, "slot-mon", result.Covered[0].Slot.ID)
	assert.Equal(t, monday, result.Covered[0].Date.Format("2006-01-02"))
	assert.Equal(t, "slot-wed", result.Covered[1].Slot.ID)
	assert.Equal(t, wednesday, result.Covered[1].Date.Format("2006-01-02"))

	// Two to the substitute, two per-assignment copies to the one admin.
	var toSubstitute, toAdmin int
	for _, n := range f.notifier.sent {
		switch n.RecipientID {
		case "t2":
			toSubstitute++
		case "a1":
			toAdmin++
		}
		assert.Equal(t, models.NotificationTypeSubstitution, n.Type)
	}
	assert.Equal(t, 2, toSubstitute)
	assert.Equal(t, 2, toAdmin)
}

func TestGenerateReportsUncoveredSlotWhenPoolIsBusy(t *testing.T) {
	f := scenarioFixture(t)
	// T2 teaches Monday period 1 themselves, and there is nobody else.
	f.slots.slots = append(f.slots.slots, models.ScheduleSlot{
		ID: "slot-t2", SchoolID: "school-1", TeacherID: "t2", Weekday: 1, PeriodIndex: 1, Subject: "Science", ClassSection: "6B",
	})

	result, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: wednesday,
	})
	require.NoError(t, err)

	require.Len(t, result.Covered, 1)
	assert.Equal(t, "slot-wed", result.Covered[0].Slot.ID)

	require.Len(t, result.Uncovered, 1)
	assert.Equal(t, "slot-mon", result.Uncovered[0].Slot.ID)
	assert.Equal(t, monday, result.Uncovered[0].Date.Format("2006-01-02"))
	assert.NotEmpty(t, result.Uncovered[0].Reason)
}

func TestGenerateInvertedRangeYieldsEmptyResult(t *testing.T) {
	f := scenarioFixture(t)

	result, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: wednesday, ToDate: monday,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Covered)
	assert.Empty(t, result.Uncovered)
	assert.Empty(t, f.subs.created)
	assert.Empty(t, f.notifier.sent)
}

func TestGenerateNeverAssignsTheLeaveTaker(t *testing.T) {
	f := scenarioFixture(t)
	// Leave only the leave taker and an inactive teacher in the pool.
	f.users.users = []models.User{
		teacherUser("t1", "school-1"),
		func() models.User {
			u := teacherUser("t3", "school-1")
			u.Active = false
			return u
		}(),
		adminUser("a1", "school-1"),
	}

	result, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: wednesday,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Covered)
	assert.Len(t, result.Uncovered, 2)
	for _, sub := range f.subs.created {
		assert.NotEqual(t, "t1", sub.SubstituteTeacherID)
	}
}

func TestGenerateIsNotIdempotent(t *testing.T) {
	f := scenarioFixture(t)
	f.users.users = append(f.users.users, teacherUser("t3", "school-1"))

	req := GenerateSubstitutionsRequest{TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: wednesday}

	first, err := f.service.GenerateSubstitutions(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Covered, 2)
	assert.Equal(t, "t2", first.Covered[0].Substitution.SubstituteTeacherID)

	// A repeat run creates fresh records. The unique claim per
	// (substitute, date, period) pushes it onto the next candidate instead
	// of deduplicating.
	second, err := f.service.GenerateSubstitutions(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.Covered, 2)
	assert.Equal(t, "t3", second.Covered[0].Substitution.SubstituteTeacherID)

	assert.Len(t, f.subs.created, 4)
}

func TestGenerateFallsThroughWhenClaimIsLost(t *testing.T) {
	f := scenarioFixture(t)
	f.users.users = append(f.users.users, teacherUser("t3", "school-1"))

	// A concurrent expansion already claimed T2 for Monday period 1.
	mondayDate, err := time.Parse("2006-01-02", monday)
	require.NoError(t, err)
	f.subs.claimed = map[string]bool{claimKey("t2", mondayDate, 1): true}

	result, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: monday,
	})
	require.NoError(t, err)

	require.Len(t, result.Covered, 1)
	assert.Equal(t, "t3", result.Covered[0].Substitution.SubstituteTeacherID)
}

func TestGenerateExhaustedPoolAfterLostClaims(t *testing.T) {
	f := scenarioFixture(t)

	mondayDate, err := time.Parse("2006-01-02", monday)
	require.NoError(t, err)
	f.subs.claimed = map[string]bool{claimKey("t2", mondayDate, 1): true}

	result, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: monday,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Covered)
	require.Len(t, result.Uncovered, 1)
}

func TestGenerateValidatesRequiredFields(t *testing.T) {
	f := scenarioFixture(t)

	_, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		SchoolID: "school-1", FromDate: monday, ToDate: wednesday,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
	assert.Empty(t, f.subs.created)
}

func TestGenerateRejectsOversizedRange(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{MaxLeaveRangeDays: 7})
	f.users.users = []models.User{teacherUser("t1", "school-1")}

	_, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: "2026-01-05", ToDate: "2026-02-05",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
}

func TestGenerateUnknownTeacherIsNotFound(t *testing.T) {
	f := scenarioFixture(t)

	_, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "ghost", SchoolID: "school-1", FromDate: monday, ToDate: wednesday,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestIsTeacherAvailableTruthTable(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})
	f.slots.slots = []models.ScheduleSlot{
		{ID: "s1", SchoolID: "school-1", TeacherID: "t2", Weekday: 1, PeriodIndex: 1},
	}

	free, err := f.service.IsTeacherAvailable(context.Background(), "school-1", "t2", 1, 1)
	require.NoError(t, err)
	assert.False(t, free)

	free, err = f.service.IsTeacherAvailable(context.Background(), "school-1", "t2", 1, 2)
	require.NoError(t, err)
	assert.True(t, free)

	free, err = f.service.IsTeacherAvailable(context.Background(), "school-1", "t2", 2, 1)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestAvailabilityScopeFlag(t *testing.T) {
	slots := []models.ScheduleSlot{
		// T2's only conflict lives in a different school.
		{ID: "s-other", SchoolID: "school-2", TeacherID: "t2", Weekday: 1, PeriodIndex: 1},
	}

	global := newEngineFixture(t, config.EngineConfig{StrictSchoolScope: false})
	global.slots.slots = slots
	free, err := global.service.IsTeacherAvailable(context.Background(), "school-1", "t2", 1, 1)
	require.NoError(t, err)
	assert.False(t, free, "global scope counts conflicts from any school")

	strict := newEngineFixture(t, config.EngineConfig{StrictSchoolScope: true})
	strict.slots.slots = slots
	free, err = strict.service.IsTeacherAvailable(context.Background(), "school-1", "t2", 1, 1)
	require.NoError(t, err)
	assert.True(t, free, "strict scope ignores conflicts outside the school")
}

func TestFindSubstituteReturnsNilWhenPoolExhausted(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})
	f.users.users = []models.User{teacherUser("t2", "school-1")}
	f.slots.slots = []models.ScheduleSlot{
		{ID: "s1", SchoolID: "school-1", TeacherID: "t2", Weekday: 1, PeriodIndex: 1},
	}

	sub, err := f.service.FindSubstitute(context.Background(), "school-1", 1, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestFindSubstituteScansInStableOrder(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})
	f.users.users = []models.User{
		teacherUser("t2", "school-1"),
		teacherUser("t3", "school-1"),
	}

	sub, err := f.service.FindSubstitute(context.Background(), "school-1", 1, 1, nil)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "t2", sub.ID)
}

func TestOverrideUpdatesRecordWithoutNotification(t *testing.T) {
	f := scenarioFixture(t)
	f.users.users = append(f.users.users, teacherUser("t3", "school-1"))

	_, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: monday,
	})
	require.NoError(t, err)
	require.Len(t, f.subs.created, 1)
	subID := f.subs.created[0].ID
	sentBefore := len(f.notifier.sent)

	err = f.service.Override(context.Background(), "school-1", OverrideSubstitutionRequest{
		SubstitutionID: subID, NewSubstituteID: "t3", Reason: "covering swap",
	})
	require.NoError(t, err)

	assert.Equal(t, "t3", f.subs.created[0].SubstituteTeacherID)
	assert.Equal(t, "covering swap", f.subs.created[0].Reason)
	assert.Len(t, f.subs.created, 1, "override must not create a new record")
	assert.Len(t, f.notifier.sent, sentBefore, "override sends no notification")
}

func TestOverrideUnknownSubstitutionIsNotFound(t *testing.T) {
	f := scenarioFixture(t)

	err := f.service.Override(context.Background(), "school-1", OverrideSubstitutionRequest{
		SubstitutionID: "ghost", NewSubstituteID: "t2",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestOverrideRejectsInactiveSubstitute(t *testing.T) {
	f := scenarioFixture(t)
	inactive := teacherUser("t4", "school-1")
	inactive.Active = false
	f.users.users = append(f.users.users, inactive)

	_, err := f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
		TeacherID: "t1", SchoolID: "school-1", FromDate: monday, ToDate: monday,
	})
	require.NoError(t, err)
	require.Len(t, f.subs.created, 1)

	err = f.service.Override(context.Background(), "school-1", OverrideSubstitutionRequest{
		SubstitutionID: f.subs.created[0].ID, NewSubstituteID: "t4",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
}

func TestConcurrentExpansionsNeverDoubleBookSubstitute(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})
	f.users.users = []models.User{
		teacherUser("t1", "school-1"),
		teacherUser("t2", "school-1"),
		teacherUser("t3", "school-1"),
		adminUser("a1", "school-1"),
	}
	// T1 and T2 both teach Monday period 1, so expanding leaves for both of
	// them leaves T3 as the only candidate for either slot.
	f.slots.slots = []models.ScheduleSlot{
		{ID: "slot-t1", SchoolID: "school-1", TeacherID: "t1", Weekday: 1, PeriodIndex: 1, Subject: "Math", ClassSection: "5A"},
		{ID: "slot-t2", SchoolID: "school-1", TeacherID: "t2", Weekday: 1, PeriodIndex: 1, Subject: "Science", ClassSection: "6B"},
	}

	results := make([]*models.ExpansionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, teacherID := range []string{"t1", "t2"} {
		wg.Add(1)
		go func(i int, teacherID string) {
			defer wg.Done()
			results[i], errs[i] = f.service.GenerateSubstitutions(context.Background(), GenerateSubstitutionsRequest{
				TeacherID: teacherID, SchoolID: "school-1", FromDate: monday, ToDate: monday,
			})
		}(i, teacherID)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Exactly one expansion wins the claim on T3; the other reports the slot
	// as needing manual assignment.
	require.Len(t, f.subs.created, 1)
	assert.Equal(t, "t3", f.subs.created[0].SubstituteTeacherID)

	covered := len(results[0].Covered) + len(results[1].Covered)
	uncovered := len(results[0].Uncovered) + len(results[1].Uncovered)
	assert.Equal(t, 1, covered)
	assert.Equal(t, 1, uncovered)
}

func historyEntry() models.SubstitutionDetail {
	return models.SubstitutionDetail{
		Substitution: models.Substitution{
			ID:          "sub-1",
			Date:        time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			PeriodIndex: 1,
			Reason:      "Leave",
			AssignedAt:  time.Date(2026, 1, 5, 7, 30, 0, 0, time.UTC),
		},
		OriginalTeacherName:   "Teacher t1",
		SubstituteTeacherName: "Teacher t2",
		Subject:               "Math",
		ClassSection:          "5A",
	}
}

func TestExportHistoryRendersCSVRows(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})
	f.subs.history = []models.SubstitutionDetail{historyEntry()}

	payload, contentType, err := f.service.ExportHistory(context.Background(), models.SubstitutionHistoryFilter{SchoolID: "school-1"}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Period,Subject,Class,Original Teacher,Substitute,Reason,Assigned At", lines[0])
	assert.Equal(t, "2026-01-05,2,Math,5A,Teacher t1,Teacher t2,Leave,2026-01-05T07:30:00Z", lines[1])
}

func TestExportHistoryRendersPDF(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})
	f.subs.history = []models.SubstitutionDetail{historyEntry()}

	payload, contentType, err := f.service.ExportHistory(context.Background(), models.SubstitutionHistoryFilter{SchoolID: "school-1"}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	require.Greater(t, len(payload), 4)
	assert.Equal(t, "%PDF", string(payload[:4]))
}

func TestExportHistoryRejectsUnknownFormat(t *testing.T) {
	f := newEngineFixture(t, config.EngineConfig{})

	_, _, err := f.service.ExportHistory(context.Background(), models.SubstitutionHistoryFilter{SchoolID: "school-1"}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/classsync/classsync-api/internal/models"
	"github.com/classsync/classsync-api/pkg/config"
	appErrors "github.com/classsync/classsync-api/pkg/errors"
	"github.com/classsync/classsync-api/pkg/export"
)

const (
	dateLayout = "2006-01-02"

	reasonLeave         = "Leave"
	reasonPoolExhausted = "no available substitute teacher"
)

type substitutionSlotRepository interface {
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleSlot, error)
	HasConflict(ctx context.Context, teacherID string, weekday, periodIndex int, schoolID string) (bool, error)
}

type substitutionStore interface {
	Claim(ctx context.Context, sub *models.Substitution) (bool, error)
	FindByID(ctx context.Context, id, schoolID string) (*models.Substitution, error)
	UpdateSubstitute(ctx context.Context, id, schoolID, substituteTeacherID, reason string) error
	ListBySubstitute(ctx context.Context, schoolID, teacherID string, from time.Time) ([]models.SubstitutionDetail, error)
	ListBySchool(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, int, error)
	History(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, error)
}

type substitutionUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveTeachers(ctx context.Context, schoolID string, excludedIDs []string) ([]models.User, error)
	ListAdmins(ctx context.Context, schoolID string) ([]models.User, error)
}

type substitutionNotifier interface {
	Dispatch(n models.Notification)
}

// GenerateSubstitutionsRequest is the boundary payload for expanding an
// approved leave into substitution assignments.
type GenerateSubstitutionsRequest struct {
	LeaveRequestID string `json:"leave_request_id" validate:"omitempty"`
	TeacherID      string `json:"teacher_id" validate:"required"`
	SchoolID       string `json:"school_id" validate:"required"`
	FromDate       string `json:"from_date" validate:"required"`
	ToDate         string `json:"to_date" validate:"required"`
}

// OverrideSubstitutionRequest reassigns an existing substitution to a
// different teacher.
type OverrideSubstitutionRequest struct {
	SubstitutionID  string `json:"substitution_id" validate:"required"`
	NewSubstituteID string `json:"new_substitute_id" validate:"required"`
	Reason          string `json:"reason" validate:"omitempty,max=200"`
}

// SubstitutionService is the substitution engine: it expands approved teacher
// leave into dated substitution assignments, finding for every affected slot
// occurrence a free, active teacher of the school and claiming that teacher
// atomically against concurrent expansions.
type SubstitutionService struct {
	slots     substitutionSlotRepository
	subs      substitutionStore
	users     substitutionUserRepository
	notifier  substitutionNotifier
	validator *validator.Validate
	engine    config.EngineConfig
	logger    *zap.Logger

	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewSubstitutionService constructs a SubstitutionService.
func NewSubstitutionService(
	slots substitutionSlotRepository,
	subs substitutionStore,
	users substitutionUserRepository,
	notifier substitutionNotifier,
	validate *validator.Validate,
	engine config.EngineConfig,
	logger *zap.Logger,
) *SubstitutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine.MaxLeaveRangeDays <= 0 {
		engine.MaxLeaveRangeDays = 92
	}
	return &SubstitutionService{
		slots:     slots,
		subs:      subs,
		users:     users,
		notifier:  notifier,
		validator: validate,
		engine:    engine,
		logger:    logger,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
	}
}

// IsTeacherAvailable reports whether the teacher is free at the given weekday
// and period. With strict school scoping only slots inside schoolID count as
// conflicts; otherwise a slot in any school blocks the teacher.
func (s *SubstitutionService) IsTeacherAvailable(ctx context.Context, schoolID, teacherID string, weekday, periodIndex int) (bool, error) {
	scope := ""
	if s.engine.StrictSchoolScope {
		scope = schoolID
	}
	conflict, err := s.slots.HasConflict(ctx, teacherID, weekday, periodIndex, scope)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
	}
	return !conflict, nil
}

// FindSubstitute scans the school's active teachers, minus the excluded set,
// in stable order and returns the first one free at the slot's weekday and
// period. Returns nil when the pool is exhausted; that is an expected
// outcome, not an error.
func (s *SubstitutionService) FindSubstitute(ctx context.Context, schoolID string, weekday, periodIndex int, excludedIDs []string) (*models.User, error) {
	candidates, err := s.users.ListActiveTeachers(ctx, schoolID, excludedIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute candidates")
	}
	for i := range candidates {
		free, err := s.IsTeacherAvailable(ctx, schoolID, candidates[i].ID, weekday, periodIndex)
		if err != nil {
			return nil, err
		}
		if free {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// GenerateSubstitutions expands a leave request across its date range. For
// every calendar date in [from, to] and every recurring slot the leave-taking
// teacher holds on that date's weekday, it claims the first free candidate
// and records the assignment; slot occurrences no candidate could cover are
// reported as uncovered, never as a failure of the whole run. Substitution
// records already persisted survive a mid-run error.
//
// The run is not idempotent: repeating it for the same leave claims fresh
// records (the unique claim index pushes repeats onto later candidates or
// into the uncovered list, it does not deduplicate).
func (s *SubstitutionService) GenerateSubstitutions(ctx context.Context, req GenerateSubstitutionsRequest) (*models.ExpansionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}

	from, err := time.Parse(dateLayout, req.FromDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from_date must be formatted YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, req.ToDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to_date must be formatted YYYY-MM-DD")
	}

	result := &models.ExpansionResult{
		Covered:   []models.CoveredSlot{},
		Uncovered: []models.UncoveredSlot{},
	}
	// An inverted range walks zero days and yields an empty result.
	if from.After(to) {
		return result, nil
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > s.engine.MaxLeaveRangeDays {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("leave range exceeds %d days", s.engine.MaxLeaveRangeDays))
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.SchoolID != req.SchoolID || teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	result.OriginalTeacher = *teacher

	affected, err := s.slots.ListByTeacher(ctx, req.SchoolID, req.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slots")
	}
	if len(affected) == 0 {
		return result, nil
	}
	byWeekday := make(map[int][]models.ScheduleSlot)
	for _, slot := range affected {
		byWeekday[slot.Weekday] = append(byWeekday[slot.Weekday], slot)
	}

	// One candidate fetch for the whole run; availability is still checked
	// per (slot, date) below.
	candidates, err := s.users.ListActiveTeachers(ctx, req.SchoolID, []string{req.TeacherID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute candidates")
	}

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		weekday := int(date.Weekday())
		for _, slot := range byWeekday[weekday] {
			covered, uncovered, err := s.coverSlot(ctx, req, slot, date, candidates)
			if err != nil {
				return nil, err
			}
			if covered != nil {
				result.Covered = append(result.Covered, *covered)
			} else {
				result.Uncovered = append(result.Uncovered, *uncovered)
			}
		}
	}

	s.dispatchAssignments(ctx, teacher, result.Covered)
	return result, nil
}

// coverSlot walks the candidate pool for one (date, slot) occurrence: skip
// candidates with a conflicting recurring slot, then claim the first free
// one. A lost claim means a concurrent run took that candidate for the same
// date and period, so the scan falls through to the next teacher.
func (s *SubstitutionService) coverSlot(
	ctx context.Context,
	req GenerateSubstitutionsRequest,
	slot models.ScheduleSlot,
	date time.Time,
	candidates []models.User,
) (*models.CoveredSlot, *models.UncoveredSlot, error) {
	for i := range candidates {
		free, err := s.IsTeacherAvailable(ctx, req.SchoolID, candidates[i].ID, slot.Weekday, slot.PeriodIndex)
		if err != nil {
			return nil, nil, err
		}
		if !free {
			continue
		}

		sub := &models.Substitution{
			SchoolID:            req.SchoolID,
			OriginalTeacherID:   req.TeacherID,
			SubstituteTeacherID: candidates[i].ID,
			ScheduleSlotID:      slot.ID,
			Date:                date,
			PeriodIndex:         slot.PeriodIndex,
			Reason:              reasonLeave,
		}
		claimed, err := s.subs.Claim(ctx, sub)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record substitution")
		}
		if !claimed {
			continue
		}
		return &models.CoveredSlot{
			Substitution: *sub,
			Substitute:   candidates[i],
			Slot:         slot,
			Date:         date,
		}, nil, nil
	}
	return nil, &models.UncoveredSlot{Slot: slot, Date: date, Reason: reasonPoolExhausted}, nil
}

// dispatchAssignments fans out notifications after the whole expansion: one
// message to each assigned substitute and, with the admin list fetched once,
// one per assignment to every admin of the school. Failures here are logged
// and never unwind the already-persisted assignments.
func (s *SubstitutionService) dispatchAssignments(ctx context.Context, original *models.User, covered []models.CoveredSlot) {
	if s.notifier == nil || len(covered) == 0 {
		return
	}

	admins, err := s.users.ListAdmins(ctx, original.SchoolID)
	if err != nil {
		s.logger.Sugar().Errorw("failed to load admins for notification fan-out",
			"school_id", original.SchoolID, "error", err)
		admins = nil
	}

	for _, c := range covered {
		payload, _ := json.Marshal(map[string]interface{}{
			"substitution_id":  c.Substitution.ID,
			"schedule_slot_id": c.Slot.ID,
			"date":             c.Date.Format(dateLayout),
			"period_index":     c.Slot.PeriodIndex,
		})

		// Periods are 0-indexed in storage, 1-indexed for humans.
		message := fmt.Sprintf("You are assigned to cover %s for class %s on %s, period %d.",
			c.Slot.Subject, c.Slot.ClassSection, c.Date.Format(dateLayout), c.Slot.PeriodIndex+1)
		s.notifier.Dispatch(models.Notification{
			RecipientID: c.Substitute.ID,
			Type:        models.NotificationTypeSubstitution,
			Title:       "Substitution Assignment",
			Message:     message,
			Data:        types.JSONText(payload),
		})

		adminMessage := fmt.Sprintf("%s covers %s (%s) for %s on %s, period %d.",
			c.Substitute.FullName, c.Slot.Subject, c.Slot.ClassSection,
			original.FullName, c.Date.Format(dateLayout), c.Slot.PeriodIndex+1)
		for _, admin := range admins {
			s.notifier.Dispatch(models.Notification{
				RecipientID: admin.ID,
				Type:        models.NotificationTypeSubstitution,
				Title:       "Substitution Arranged",
				Message:     adminMessage,
				Data:        types.JSONText(payload),
			})
		}
	}
}

// Override reassigns an existing substitution to a new teacher. It updates
// the record in place, creates no new substitution and sends no
// notification.
func (s *SubstitutionService) Override(ctx context.Context, schoolID string, req OverrideSubstitutionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}

	if _, err := s.subs.FindByID(ctx, req.SubstitutionID, schoolID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "substitution not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitution")
	}

	substitute, err := s.users.FindByID(ctx, req.NewSubstituteID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "substitute teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute teacher")
	}
	if substitute.SchoolID != schoolID || substitute.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrNotFound, "substitute teacher not found")
	}
	if !substitute.Active {
		return appErrors.Clone(appErrors.ErrValidation, "substitute teacher is inactive")
	}

	if err := s.subs.UpdateSubstitute(ctx, req.SubstitutionID, schoolID, req.NewSubstituteID, strings.TrimSpace(req.Reason)); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "substitution not found")
		}
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "substitute already covers another class at that date and period")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to override substitution")
	}
	return nil
}

// ListMine returns upcoming substitutions assigned to the teacher.
func (s *SubstitutionService) ListMine(ctx context.Context, schoolID, teacherID string, from time.Time) ([]models.SubstitutionDetail, error) {
	subs, err := s.subs.ListBySubstitute(ctx, schoolID, teacherID, from)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list substitutions")
	}
	return subs, nil
}

// ListBySchool returns the school's substitutions plus pagination data.
func (s *SubstitutionService) ListBySchool(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, *models.Pagination, error) {
	subs, total, err := s.subs.ListBySchool(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list substitutions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return subs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ExportHistory renders the school's substitution history as CSV or PDF.
func (s *SubstitutionService) ExportHistory(ctx context.Context, filter models.SubstitutionHistoryFilter, format string) ([]byte, string, error) {
	history, err := s.subs.History(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitution history")
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Period", "Subject", "Class", "Original Teacher", "Substitute", "Reason", "Assigned At"},
	}
	for _, entry := range history {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":             entry.Date.Format(dateLayout),
			"Period":           fmt.Sprintf("%d", entry.PeriodIndex+1),
			"Subject":          entry.Subject,
			"Class":            entry.ClassSection,
			"Original Teacher": entry.OriginalTeacherName,
			"Substitute":       entry.SubstituteTeacherName,
			"Reason":           entry.Reason,
			"Assigned At":      entry.AssignedAt.Format(time.RFC3339),
		})
	}

	switch strings.ToLower(format) {
	case "csv", "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV export")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Substitution History")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF export")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

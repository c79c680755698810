package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classsync/classsync-api/internal/models"
)

const substitutionColumns = "id, school_id, original_teacher_id, substitute_teacher_id, schedule_slot_id, date, period_index, reason, assigned_at"

// SubstitutionRepository manages persistence for dated substitution
// assignments.
type SubstitutionRepository struct {
	db *sqlx.DB
}

// NewSubstitutionRepository constructs a SubstitutionRepository.
func NewSubstitutionRepository(db *sqlx.DB) *SubstitutionRepository {
	return &SubstitutionRepository{db: db}
}

// Claim attempts to atomically assign the substitute for the given date and
// period. The unique index on (substitute_teacher_id, date, period_index)
// makes the insert the arbiter: if a concurrent expansion already claimed
// that substitute for the same lesson, ON CONFLICT DO NOTHING swallows the
// insert and Claim returns false so the caller can fall through to the next
// candidate.
func (r *SubstitutionRepository) Claim(ctx context.Context, sub *models.Substitution) (bool, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.AssignedAt.IsZero() {
		sub.AssignedAt = time.Now().UTC()
	}

	const query = `INSERT INTO substitutions (id, school_id, original_teacher_id, substitute_teacher_id, schedule_slot_id, date, period_index, reason, assigned_at)
		VALUES (:id, :school_id, :original_teacher_id, :substitute_teacher_id, :schedule_slot_id, :date, :period_index, :reason, :assigned_at)
		ON CONFLICT (substitute_teacher_id, date, period_index) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return false, fmt.Errorf("claim substitution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim substitution: %w", err)
	}
	return affected == 1, nil
}

// FindByID fetches a substitution scoped to its school.
func (r *SubstitutionRepository) FindByID(ctx context.Context, id, schoolID string) (*models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE id = $1 AND school_id = $2", substitutionColumns)
	var sub models.Substitution
	if err := r.db.GetContext(ctx, &sub, query, id, schoolID); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubstitute replaces the assigned substitute on an existing record.
// Used by the admin override path; the unique index still applies, so
// reassigning onto a teacher who already covers that date and period fails
// with a constraint violation surfaced as a conflict by the caller.
func (r *SubstitutionRepository) UpdateSubstitute(ctx context.Context, id, schoolID, substituteTeacherID, reason string) error {
	const query = `UPDATE substitutions SET substitute_teacher_id = $3,
			reason = CASE WHEN $4 = '' THEN reason ELSE $4 END,
			assigned_at = $5
		WHERE id = $1 AND school_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, schoolID, substituteTeacherID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update substitute: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBySubstitute returns the substitutions assigned to a teacher from a
// given date forward, nearest first.
func (r *SubstitutionRepository) ListBySubstitute(ctx context.Context, schoolID, teacherID string, from time.Time) ([]models.SubstitutionDetail, error) {
	const query = `SELECT s.id, s.school_id, s.original_teacher_id, s.substitute_teacher_id, s.schedule_slot_id,
			s.date, s.period_index, s.reason, s.assigned_at,
			ot.full_name AS original_teacher_name, ot.email AS original_teacher_email,
			st.full_name AS substitute_teacher_name, st.email AS substitute_teacher_email,
			sl.weekday, sl.subject, sl.class_section
		FROM substitutions s
		JOIN users ot ON ot.id = s.original_teacher_id
		JOIN users st ON st.id = s.substitute_teacher_id
		JOIN schedule_slots sl ON sl.id = s.schedule_slot_id
		WHERE s.school_id = $1 AND s.substitute_teacher_id = $2 AND s.date >= $3
		ORDER BY s.date ASC, s.period_index ASC`
	var subs []models.SubstitutionDetail
	if err := r.db.SelectContext(ctx, &subs, query, schoolID, teacherID, from); err != nil {
		return nil, fmt.Errorf("list substitutions by substitute: %w", err)
	}
	return subs, nil
}

// ListBySchool returns the school's substitutions within the filter's
// constraints, paginated, most recent date first.
func (r *SubstitutionRepository) ListBySchool(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, int, error) {
	base := `FROM substitutions s
		JOIN users ot ON ot.id = s.original_teacher_id
		JOIN users st ON st.id = s.substitute_teacher_id
		JOIN schedule_slots sl ON sl.id = s.schedule_slot_id
		WHERE s.school_id = $1`
	args := []interface{}{filter.SchoolID}

	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		base += fmt.Sprintf(" AND (s.original_teacher_id = $%d OR s.substitute_teacher_id = $%d)", len(args), len(args))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		base += fmt.Sprintf(" AND s.date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		base += fmt.Sprintf(" AND s.date <= $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count substitutions: %w", err)
	}

	limit := filter.PageSize
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT s.id, s.school_id, s.original_teacher_id, s.substitute_teacher_id, s.schedule_slot_id,
			s.date, s.period_index, s.reason, s.assigned_at,
			ot.full_name AS original_teacher_name, ot.email AS original_teacher_email,
			st.full_name AS substitute_teacher_name, st.email AS substitute_teacher_email,
			sl.weekday, sl.subject, sl.class_section
		%s ORDER BY s.date DESC, s.period_index ASC LIMIT $%d OFFSET $%d`, base, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var subs []models.SubstitutionDetail
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list substitutions by school: %w", err)
	}
	return subs, total, nil
}

// History returns every matching substitution without pagination, for
// exports.
func (r *SubstitutionRepository) History(ctx context.Context, filter models.SubstitutionHistoryFilter) ([]models.SubstitutionDetail, error) {
	f := filter
	f.Page = 1
	f.PageSize = 10000
	subs, _, err := r.ListBySchool(ctx, f)
	return subs, err
}

// Delete removes a substitution scoped to its school.
func (r *SubstitutionRepository) Delete(ctx context.Context, id, schoolID string) error {
	const query = `DELETE FROM substitutions WHERE id = $1 AND school_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete substitution: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

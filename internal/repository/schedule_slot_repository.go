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

const slotColumns = "id, school_id, teacher_id, weekday, period_index, subject, class_section, room, created_at, updated_at"

// ScheduleSlotRepository manages persistence for recurring weekly schedule
// slots.
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository constructs a ScheduleSlotRepository.
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

// FindByID fetches a slot by ID.
func (r *ScheduleSlotRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_slots WHERE id = $1", slotColumns)
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListByTeacher returns every recurring slot the teacher owns in the school,
// ordered weekday then period.
func (r *ScheduleSlotRepository) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots WHERE school_id = $1 AND teacher_id = $2
		ORDER BY weekday ASC, period_index ASC`, slotColumns)
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list slots by teacher: %w", err)
	}
	return slots, nil
}

// ListBySchool returns the school's slots, optionally narrowed by filter.
func (r *ScheduleSlotRepository) ListBySchool(ctx context.Context, filter models.ScheduleSlotFilter) ([]models.ScheduleSlot, error) {
	base := "FROM schedule_slots WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}

	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		base += fmt.Sprintf(" AND teacher_id = $%d", len(args))
	}
	if filter.Weekday != nil {
		args = append(args, *filter.Weekday)
		base += fmt.Sprintf(" AND weekday = $%d", len(args))
	}
	if filter.ClassSection != "" {
		args = append(args, filter.ClassSection)
		base += fmt.Sprintf(" AND class_section = $%d", len(args))
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY weekday ASC, period_index ASC", slotColumns, base)
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list slots by school: %w", err)
	}
	return slots, nil
}

// CountByTeacher counts the teacher's recurring slots in the school.
func (r *ScheduleSlotRepository) CountByTeacher(ctx context.Context, schoolID, teacherID string) (int, error) {
	const query = `SELECT COUNT(*) FROM schedule_slots WHERE school_id = $1 AND teacher_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, schoolID, teacherID); err != nil {
		return 0, fmt.Errorf("count slots by teacher: %w", err)
	}
	return count, nil
}

// HasConflict reports whether the teacher already has a slot at the given
// weekday and period. With schoolID empty the check spans every school the
// teacher has slots in; a non-empty schoolID narrows the check to that
// school. Single indexed lookup, no side effects.
func (r *ScheduleSlotRepository) HasConflict(ctx context.Context, teacherID string, weekday, periodIndex int, schoolID string) (bool, error) {
	query := "SELECT 1 FROM schedule_slots WHERE teacher_id = $1 AND weekday = $2 AND period_index = $3"
	args := []interface{}{teacherID, weekday, periodIndex}
	if schoolID != "" {
		args = append(args, schoolID)
		query += fmt.Sprintf(" AND school_id = $%d", len(args))
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check slot conflict: %w", err)
	}
	return true, nil
}

// Create inserts a new slot record.
func (r *ScheduleSlotRepository) Create(ctx context.Context, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO schedule_slots (id, school_id, teacher_id, weekday, period_index, subject, class_section, room, created_at, updated_at)
		VALUES (:id, :school_id, :teacher_id, :weekday, :period_index, :subject, :class_section, :room, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create schedule slot: %w", err)
	}
	return nil
}

// Update modifies an existing slot record.
func (r *ScheduleSlotRepository) Update(ctx context.Context, slot *models.ScheduleSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_slots SET teacher_id = :teacher_id, weekday = :weekday, period_index = :period_index,
		subject = :subject, class_section = :class_section, room = :room, updated_at = :updated_at
		WHERE id = :id AND school_id = :school_id`
	result, err := r.db.NamedExecContext(ctx, query, slot)
	if err != nil {
		return fmt.Errorf("update schedule slot: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a slot scoped to its school.
func (r *ScheduleSlotRepository) Delete(ctx context.Context, id, schoolID string) error {
	const query = `DELETE FROM schedule_slots WHERE id = $1 AND school_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete schedule slot: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByTeacher removes every slot the teacher owns in the school. Used
// when a teacher is removed so stale slots cannot block future availability
// checks.
func (r *ScheduleSlotRepository) DeleteByTeacher(ctx context.Context, schoolID, teacherID string) error {
	const query = `DELETE FROM schedule_slots WHERE school_id = $1 AND teacher_id = $2`
	if _, err := r.db.ExecContext(ctx, query, schoolID, teacherID); err != nil {
		return fmt.Errorf("delete slots by teacher: %w", err)
	}
	return nil
}

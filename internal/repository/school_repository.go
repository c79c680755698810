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

// SchoolRepository manages persistence for schools.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a SchoolRepository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByID fetches a school by ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, period_count, period_duration_minutes, start_hour, start_minute, created_at, updated_at
		FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// Create inserts a new school record.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now

	const query = `INSERT INTO schools (id, name, period_count, period_duration_minutes, start_hour, start_minute, created_at, updated_at)
		VALUES (:id, :name, :period_count, :period_duration_minutes, :start_hour, :start_minute, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// UpdateTimetable replaces the school's timetable configuration.
func (r *SchoolRepository) UpdateTimetable(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schools SET period_count = :period_count, period_duration_minutes = :period_duration_minutes,
		start_hour = :start_hour, start_minute = :start_minute, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, school)
	if err != nil {
		return fmt.Errorf("update school timetable: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

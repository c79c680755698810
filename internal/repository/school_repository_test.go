package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classsync/classsync-api/internal/models"
)

func newSchoolRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSchoolRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "period_count", "period_duration_minutes", "start_hour", "start_minute", "created_at", "updated_at"}).
		AddRow("school-1", "Test School", 8, 45, 8, 0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM schools WHERE id = $1")).
		WithArgs("school-1").
		WillReturnRows(rows)

	school, err := repo.FindByID(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 8, school.PeriodCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectExec("INSERT INTO schools").
		WillReturnResult(sqlmock.NewResult(1, 1))

	school := &models.School{Name: "Test School", PeriodCount: 8, PeriodDurationMinutes: 45, StartHour: 8}
	require.NoError(t, repo.Create(context.Background(), school))
	assert.NotEmpty(t, school.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryUpdateTimetableMissing(t *testing.T) {
	db, mock, cleanup := newSchoolRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectExec("UPDATE schools SET period_count").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateTimetable(context.Background(), &models.School{ID: "ghost"})
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

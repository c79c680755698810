package models

import (
	"fmt"
	"time"
)

// School represents a tenant school and its timetable configuration.
type School struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	PeriodCount           int       `db:"period_count" json:"period_count"`
	PeriodDurationMinutes int       `db:"period_duration_minutes" json:"period_duration_minutes"`
	StartHour             int       `db:"start_hour" json:"start_hour"`
	StartMinute           int       `db:"start_minute" json:"start_minute"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// PeriodWindow converts a zero-based period index into wall-clock start and
// end times, e.g. ("08:00", "08:45"). The index is not range-checked against
// PeriodCount; callers validate before display.
func (s School) PeriodWindow(periodIndex int) (string, string) {
	start := s.StartHour*60 + s.StartMinute + periodIndex*s.PeriodDurationMinutes
	end := start + s.PeriodDurationMinutes
	return clockString(start), clockString(end)
}

func clockString(minutes int) string {
	minutes %= 24 * 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

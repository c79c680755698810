package models

import "time"

// Weekday bounds for schedule slots: 0 = Sunday through 6 = Saturday,
// matching time.Weekday for a concrete calendar date.
const (
	WeekdayMin = 0
	WeekdayMax = 6
)

// ScheduleSlot is a recurring weekly teaching assignment: every week on
// Weekday, the teacher teaches Subject to ClassSection in PeriodIndex.
// It is not a single dated event.
type ScheduleSlot struct {
	ID           string    `db:"id" json:"id"`
	SchoolID     string    `db:"school_id" json:"school_id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	Weekday      int       `db:"weekday" json:"weekday"`
	PeriodIndex  int       `db:"period_index" json:"period_index"`
	Subject      string    `db:"subject" json:"subject"`
	ClassSection string    `db:"class_section" json:"class_section"`
	Room         string    `db:"room" json:"room"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleSlotFilter describes query params for listing schedule slots.
type ScheduleSlotFilter struct {
	SchoolID     string
	TeacherID    string
	Weekday      *int
	ClassSection string
}

// TimetableEntry is a slot decorated with wall-clock times for display.
type TimetableEntry struct {
	ScheduleSlot
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

package models

import "time"

// Substitution is a concrete, dated assignment of a replacement teacher to
// cover one occurrence of a recurring schedule slot. Records are append-only
// audit history; only the substitute and reason may change via admin override.
// PeriodIndex is denormalized from the covered slot so that the database can
// enforce uniqueness of (substitute_teacher_id, date, period_index), which is
// what makes claiming a substitute atomic.
type Substitution struct {
	ID                  string    `db:"id" json:"id"`
	SchoolID            string    `db:"school_id" json:"school_id"`
	OriginalTeacherID   string    `db:"original_teacher_id" json:"original_teacher_id"`
	SubstituteTeacherID string    `db:"substitute_teacher_id" json:"substitute_teacher_id"`
	ScheduleSlotID      string    `db:"schedule_slot_id" json:"schedule_slot_id"`
	Date                time.Time `db:"date" json:"date"`
	PeriodIndex         int       `db:"period_index" json:"period_index"`
	Reason              string    `db:"reason" json:"reason"`
	AssignedAt          time.Time `db:"assigned_at" json:"assigned_at"`
}

// SubstitutionDetail is a substitution joined with teacher and slot data for
// list and history views.
type SubstitutionDetail struct {
	Substitution
	OriginalTeacherName    string `db:"original_teacher_name" json:"original_teacher_name"`
	OriginalTeacherEmail   string `db:"original_teacher_email" json:"original_teacher_email"`
	SubstituteTeacherName  string `db:"substitute_teacher_name" json:"substitute_teacher_name"`
	SubstituteTeacherEmail string `db:"substitute_teacher_email" json:"substitute_teacher_email"`
	Weekday                int    `db:"weekday" json:"weekday"`
	Subject                string `db:"subject" json:"subject"`
	ClassSection           string `db:"class_section" json:"class_section"`
}

// SubstitutionHistoryFilter captures the date range and pagination for
// history queries. TeacherID matches either side of the assignment.
type SubstitutionHistoryFilter struct {
	SchoolID  string
	TeacherID string
	FromDate  *time.Time
	ToDate    *time.Time
	Page      int
	PageSize  int
}

// CoveredSlot is one successfully arranged (date, slot) pair.
type CoveredSlot struct {
	Substitution Substitution `json:"substitution"`
	Substitute   User         `json:"substitute"`
	Slot         ScheduleSlot `json:"slot"`
	Date         time.Time    `json:"date"`
}

// UncoveredSlot is a (date, slot) pair no eligible substitute could cover.
// It requires manual admin assignment.
type UncoveredSlot struct {
	Slot   ScheduleSlot `json:"slot"`
	Date   time.Time    `json:"date"`
	Reason string       `json:"reason"`
}

// ExpansionResult is the full outcome of expanding one leave request.
type ExpansionResult struct {
	OriginalTeacher User            `json:"original_teacher"`
	Covered         []CoveredSlot   `json:"covered"`
	Uncovered       []UncoveredSlot `json:"uncovered"`
}

package models

import "time"

// LeaveRequest is the already-approved trigger for substitution expansion.
// Its approval lifecycle lives outside this service; the engine consumes it
// as input only.
type LeaveRequest struct {
	LeaveRequestID string    `json:"leave_request_id,omitempty"`
	TeacherID      string    `json:"teacher_id"`
	SchoolID       string    `json:"school_id"`
	FromDate       time.Time `json:"from_date"`
	ToDate         time.Time `json:"to_date"`
}

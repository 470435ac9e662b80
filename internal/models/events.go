package models

import "time"

// Event types
const (
	EventTypeEnrollmentCreated = "ENROLLMENT_CREATED"
	EventTypeLessonCompleted   = "LESSON_COMPLETED"
	EventTypeCourseCompleted   = "COURSE_COMPLETED"
	EventTypeCertificateIssued = "CERTIFICATE_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrollmentCreatedEvent published after the ledger write and enrollment insert
type EnrollmentCreatedEvent struct {
	BaseEvent
	EnrollmentID int64  `json:"enrollment_id"`
	LearnerID    int64  `json:"learner_id"`
	CourseID     int64  `json:"course_id"`
	OrderID      int64  `json:"order_id"`
	PurchasedAs  string `json:"purchased_as"`
}

// LessonCompletedEvent published on each completion toggle
type LessonCompletedEvent struct {
	BaseEvent
	LearnerID       int64 `json:"learner_id"`
	LessonID        int64 `json:"lesson_id"`
	CourseID        int64 `json:"course_id"`
	ProgressPercent int   `json:"progress_percent"`
}

// CourseCompletedEvent published when aggregated progress reaches 100%.
// The certificate-retry worker consumes it to re-drive issuance if the
// inline attempt failed.
type CourseCompletedEvent struct {
	BaseEvent
	LearnerID   int64     `json:"learner_id"`
	CourseID    int64     `json:"course_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// CertificateIssuedEvent published after first-time issuance
type CertificateIssuedEvent struct {
	BaseEvent
	CertificateID    int64  `json:"certificate_id"`
	LearnerID        int64  `json:"learner_id"`
	CourseID         int64  `json:"course_id"`
	VerificationCode string `json:"verification_code"`
}

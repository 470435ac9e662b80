package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Learner represents a student profile
type Learner struct {
	ID        int64     `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Course represents a purchasable course
type Course struct {
	ID                 int64     `db:"id" json:"id"`
	Title              string    `db:"title" json:"title"`
	InstructorID       int64     `db:"instructor_id" json:"instructor_id"`
	InstructorName     string    `db:"instructor_name" json:"instructor_name"`
	EnableCertificates bool      `db:"enable_certificates" json:"enable_certificates"`
	EnrollmentCount    int64     `db:"enrollment_count" json:"enrollment_count"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Lesson represents a single lesson within a course
type Lesson struct {
	ID        int64  `db:"id" json:"id"`
	CourseID  int64  `db:"course_id" json:"course_id"`
	SectionID *int64 `db:"section_id" json:"section_id,omitempty"`
	Title     string `db:"title" json:"title"`
	Position  int    `db:"position" json:"position"`
}

// Order represents a purchase order in the ledger
type Order struct {
	ID            int64     `db:"id" json:"id"`
	LearnerID     int64     `db:"learner_id" json:"learner_id"`
	PurchaseType  string    `db:"purchase_type" json:"purchase_type"`
	SubtotalCents int64     `db:"subtotal_cents" json:"subtotal_cents"`
	DiscountCents int64     `db:"discount_cents" json:"discount_cents"`
	TaxCents      int64     `db:"tax_cents" json:"tax_cents"`
	TotalCents    int64     `db:"total_cents" json:"total_cents"`
	Currency      string    `db:"currency" json:"currency"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a course line inside an order
type OrderItem struct {
	ID             int64 `db:"id" json:"id"`
	OrderID        int64 `db:"order_id" json:"order_id"`
	CourseID       int64 `db:"course_id" json:"course_id"`
	Quantity       int   `db:"quantity" json:"quantity"`
	UnitPriceCents int64 `db:"unit_price_cents" json:"unit_price_cents"`
}

// Payment represents the payment row backing an order
type Payment struct {
	ID                int64     `db:"id" json:"id"`
	OrderID           int64     `db:"order_id" json:"order_id"`
	Provider          string    `db:"provider" json:"provider"`
	ProviderPaymentID string    `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	Status            string    `db:"status" json:"status"`
	AmountCents       int64     `db:"amount_cents" json:"amount_cents"`
	ReceiptURL        string    `db:"receipt_url" json:"receipt_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Enrollment grants a learner access to a course, one row per (learner, course)
type Enrollment struct {
	ID          int64      `db:"id" json:"id"`
	LearnerID   int64      `db:"learner_id" json:"learner_id"`
	CourseID    int64      `db:"course_id" json:"course_id"`
	PurchasedAs string     `db:"purchased_as" json:"purchased_as"`
	OrderID     int64      `db:"order_id" json:"order_id"`
	Status      string     `db:"status" json:"status"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// LessonProgress is the per-learner per-lesson completion flag
type LessonProgress struct {
	ID          int64      `db:"id" json:"id"`
	LearnerID   int64      `db:"learner_id" json:"learner_id"`
	LessonID    int64      `db:"lesson_id" json:"lesson_id"`
	Completed   bool       `db:"completed" json:"completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseProgress is derived from lesson counts, never stored
type CourseProgress struct {
	ProgressPercent  int `json:"progress_percent"`
	TotalLessons     int `json:"total_lessons"`
	CompletedLessons int `json:"completed_lessons"`
}

// CertificateData is the immutable snapshot embedded in a certificate.
// Later profile edits must not change issued certificates.
type CertificateData struct {
	StudentName          string `json:"student_name"`
	CourseTitle          string `json:"course_title"`
	InstructorName       string `json:"instructor_name"`
	CompletionPercentage int    `json:"completion_percentage"`
}

// Value implements driver.Valuer so the snapshot is stored as JSONB
func (cd CertificateData) Value() (driver.Value, error) {
	return json.Marshal(cd)
}

// Scan implements sql.Scanner
func (cd *CertificateData) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, cd)
	case string:
		return json.Unmarshal([]byte(v), cd)
	default:
		return fmt.Errorf("unsupported certificate data type %T", src)
	}
}

// Certificate is the one-time proof of course completion
type Certificate struct {
	ID                int64           `db:"id" json:"id"`
	LearnerID         int64           `db:"learner_id" json:"learner_id"`
	CourseID          int64           `db:"course_id" json:"course_id"`
	CertificateNumber string          `db:"certificate_number" json:"certificate_number"`
	VerificationCode  string          `db:"verification_code" json:"verification_code"`
	IssuedAt          time.Time       `db:"issued_at" json:"issued_at"`
	CompletionDate    time.Time       `db:"completion_date" json:"completion_date"`
	Data              CertificateData `db:"certificate_data" json:"certificate_data"`
}

// Company holds the B2B seat allocation
type Company struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	SeatLimit   int       `db:"seat_limit" json:"seat_limit"`
	ActiveSeats int       `db:"active_seats" json:"active_seats"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CompanyInvitation is a pending employee invite with a rotating token
type CompanyInvitation struct {
	ID         int64      `db:"id" json:"id"`
	CompanyID  int64      `db:"company_id" json:"company_id"`
	Email      string     `db:"email" json:"email"`
	Role       string     `db:"role" json:"role"`
	Token      string     `db:"token" json:"token"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
	OrderStatusRefunded  = "refunded"
)

// Payment providers
const (
	ProviderStripe = "stripe"
	ProviderPaypal = "paypal"
	ProviderFree   = "free"
)

// Payment statuses
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Purchase types
const (
	PurchaseSingleCourse = "single_course"
	PurchaseBundle       = "bundle"
	PurchaseCorporate    = "corporate"
)

// Enrollment statuses
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusCancelled = "cancelled"
)

package service

import (
	"context"
	"time"

	"course-service/internal/models"
	"course-service/internal/store"
)

// Store is the persistence surface the services depend on.
// *store.Store satisfies it; tests substitute an in-memory fake.
type Store interface {
	GetLearnerByID(ctx context.Context, id int64) (*models.Learner, error)
	GetCourseByID(ctx context.Context, id int64) (*models.Course, error)
	IncrementEnrollmentCount(ctx context.Context, courseID int64) error
	GetLessonByID(ctx context.Context, id int64) (*models.Lesson, error)
	GetLessonsByCourseID(ctx context.Context, courseID int64) ([]models.Lesson, error)

	CreatePurchaseTx(ctx context.Context, p *store.Purchase) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByLearnerID(ctx context.Context, learnerID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)

	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	GetEnrollment(ctx context.Context, learnerID, courseID int64) (*models.Enrollment, error)
	GetEnrollmentsByLearnerID(ctx context.Context, learnerID int64) ([]models.Enrollment, error)
	CompleteEnrollment(ctx context.Context, learnerID, courseID int64) error
	ReopenEnrollment(ctx context.Context, learnerID, courseID int64) error

	UpsertLessonProgress(ctx context.Context, progress *models.LessonProgress) error
	GetLessonProgressByCourse(ctx context.Context, learnerID, courseID int64) ([]models.LessonProgress, error)
	CountCourseProgress(ctx context.Context, learnerID, courseID int64) (total, completed int, err error)

	CreateCertificate(ctx context.Context, cert *models.Certificate) error
	GetCertificate(ctx context.Context, learnerID, courseID int64) (*models.Certificate, error)
	GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error)
	GetCertificatesByLearnerID(ctx context.Context, learnerID int64) ([]models.Certificate, error)
	VerificationCodeExists(ctx context.Context, code string) (bool, error)

	GetCompanyByID(ctx context.Context, id int64) (*models.Company, error)
	ClaimSeat(ctx context.Context, companyID int64) (bool, error)
	ReleaseSeat(ctx context.Context, companyID int64) error
	CreateInvitation(ctx context.Context, inv *models.CompanyInvitation) error
	GetInvitationByToken(ctx context.Context, token string) (*models.CompanyInvitation, error)
	GetPendingInvitationByEmail(ctx context.Context, companyID int64, email string) (*models.CompanyInvitation, error)
	GetInvitationsByCompanyID(ctx context.Context, companyID int64) ([]models.CompanyInvitation, error)
	DeleteInvitationByEmail(ctx context.Context, companyID int64, email string) error
	DeleteInvitation(ctx context.Context, id int64) error
	AcceptInvitation(ctx context.Context, id int64) (bool, error)
}

// Cache is the redis surface: seat fast-path, progress cache, locks.
type Cache interface {
	ReserveSeat(ctx context.Context, companyID int64) (bool, error)
	ReleaseSeat(ctx context.Context, companyID int64) error
	InitSeats(ctx context.Context, companyID int64, limit, used int) error
	GetCachedProgress(ctx context.Context, learnerID, courseID int64) (*models.CourseProgress, error)
	SetCachedProgress(ctx context.Context, learnerID, courseID int64, progress *models.CourseProgress, ttl time.Duration) error
	InvalidateProgress(ctx context.Context, learnerID, courseID int64) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Publisher emits domain events for downstream collaborators.
type Publisher interface {
	PublishEnrollmentCreated(ctx context.Context, event *models.EnrollmentCreatedEvent) error
	PublishLessonCompleted(ctx context.Context, event *models.LessonCompletedEvent) error
	PublishCourseCompleted(ctx context.Context, event *models.CourseCompletedEvent) error
	PublishCertificateIssued(ctx context.Context, event *models.CertificateIssuedEvent) error
}

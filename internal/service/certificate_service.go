package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// codeAttempts bounds the verification-code collision retry loop
const codeAttempts = 5

// CertificateService issues completion certificates. Issuance is
// idempotent per (learner, course): repeat calls return the original
// row with its original verification code.
type CertificateService struct {
	store  Store
	events Publisher
	logger *zap.Logger
}

// NewCertificateService creates a new certificate service
func NewCertificateService(store Store, events Publisher) *CertificateService {
	return &CertificateService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// CheckAndIssue issues a certificate if the learner has completed every
// lesson of a certificate-enabled course. An existing certificate is
// returned unchanged. Eligibility is re-derived from lesson counts here,
// never trusted from the caller, so the retry worker and the inline
// completion path share one gate.
func (s *CertificateService) CheckAndIssue(ctx context.Context, learnerID, courseID int64) (*models.Certificate, error) {
	ctx, span := util.StartSpan(ctx, "CertificateService.CheckAndIssue")
	defer span.End()

	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}
	if courseID == 0 {
		return nil, validationErr("course_id")
	}

	existing, err := s.store.GetCertificate(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing certificate: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	course, err := s.store.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.EnableCertificates {
		util.CertificateIssueFailedTotal.WithLabelValues("disabled").Inc()
		return nil, fmt.Errorf("%w: certificates disabled for course %d", ErrNotEligible, courseID)
	}

	enrollment, err := s.store.GetEnrollment(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrollment == nil {
		util.CertificateIssueFailedTotal.WithLabelValues("not_enrolled").Inc()
		return nil, fmt.Errorf("%w: no enrollment", ErrNotEligible)
	}

	total, completed, err := s.store.CountCourseProgress(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	if total == 0 || completed < total {
		util.CertificateIssueFailedTotal.WithLabelValues("incomplete").Inc()
		return nil, fmt.Errorf("%w: %d of %d lessons completed", ErrNotEligible, completed, total)
	}

	learner, err := s.store.GetLearnerByID(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	code, err := s.generateVerificationCode(ctx)
	if err != nil {
		util.CertificateIssueFailedTotal.WithLabelValues("code_generation").Inc()
		return nil, err
	}

	completionDate := time.Now()
	if enrollment.CompletedAt != nil {
		completionDate = *enrollment.CompletedAt
	}

	cert := &models.Certificate{
		LearnerID:         learnerID,
		CourseID:          courseID,
		CertificateNumber: certificateNumber(completionDate),
		VerificationCode:  code,
		IssuedAt:          time.Now(),
		CompletionDate:    completionDate,
		Data: models.CertificateData{
			StudentName:          learner.FullName,
			CourseTitle:          course.Title,
			InstructorName:       course.InstructorName,
			CompletionPercentage: 100,
		},
	}

	if err := s.store.CreateCertificate(ctx, cert); err != nil {
		// A concurrent issuance won the insert race. The unique
		// constraint on (learner_id, course_id) keeps it to one row;
		// return that row so both callers see the same certificate.
		if store.IsUniqueViolation(err) {
			winner, ferr := s.store.GetCertificate(ctx, learnerID, courseID)
			if ferr == nil && winner != nil {
				return winner, nil
			}
		}
		util.CertificateIssueFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}

	util.CertificatesIssuedTotal.Inc()
	s.logger.Info("Certificate issued",
		zap.Int64("certificate_id", cert.ID),
		zap.Int64("learner_id", learnerID),
		zap.Int64("course_id", courseID),
		zap.String("certificate_number", cert.CertificateNumber))

	event := &models.CertificateIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCertificateIssued,
			Timestamp: time.Now(),
		},
		CertificateID:    cert.ID,
		LearnerID:        learnerID,
		CourseID:         courseID,
		VerificationCode: cert.VerificationCode,
	}
	if err := s.events.PublishCertificateIssued(ctx, event); err != nil {
		s.logger.Error("Failed to publish CertificateIssued event", zap.Error(err))
	}

	return cert, nil
}

// generateVerificationCode produces a 12-character public lookup code,
// retrying on the unlikely collision
func (s *CertificateService) generateVerificationCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate verification code: %w", err)
		}
		code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:12]

		exists, err := s.store.VerificationCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique verification code after %d attempts", codeAttempts)
}

func certificateNumber(completionDate time.Time) string {
	return fmt.Sprintf("CERT-%d-%s", completionDate.Year(),
		strings.ToUpper(uuid.New().String()[:8]))
}

// VerificationResult is the public payload for certificate lookup
type VerificationResult struct {
	Valid             bool      `json:"valid"`
	CertificateNumber string    `json:"certificate_number,omitempty"`
	StudentName       string    `json:"student_name,omitempty"`
	CourseTitle       string    `json:"course_title,omitempty"`
	InstructorName    string    `json:"instructor_name,omitempty"`
	IssuedAt          time.Time `json:"issued_at,omitempty"`
	CompletionDate    time.Time `json:"completion_date,omitempty"`
}

// VerifyCertificate resolves a public verification code. The code is
// case-insensitive; an unknown code yields Valid=false, not an error.
func (s *CertificateService) VerifyCertificate(ctx context.Context, code string) (*VerificationResult, error) {
	ctx, span := util.StartSpan(ctx, "CertificateService.VerifyCertificate")
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, validationErr("verification_code")
	}

	cert, err := s.store.GetCertificateByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return &VerificationResult{Valid: false}, nil
	}

	return &VerificationResult{
		Valid:             true,
		CertificateNumber: cert.CertificateNumber,
		StudentName:       cert.Data.StudentName,
		CourseTitle:       cert.Data.CourseTitle,
		InstructorName:    cert.Data.InstructorName,
		IssuedAt:          cert.IssuedAt,
		CompletionDate:    cert.CompletionDate,
	}, nil
}

// GetLearnerCertificates retrieves all certificates earned by a learner
func (s *CertificateService) GetLearnerCertificates(ctx context.Context, learnerID int64) ([]models.Certificate, error) {
	if learnerID == 0 {
		return nil, validationErr("learner_id")
	}
	return s.store.GetCertificatesByLearnerID(ctx, learnerID)
}

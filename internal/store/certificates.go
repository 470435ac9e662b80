package store

import (
	"context"
	"database/sql"
	"fmt"

	"course-service/internal/models"
)

// CreateCertificate inserts a certificate row. The unique (learner_id,
// course_id) constraint guarantees at most one certificate per enrollment;
// concurrent first issuance surfaces as a unique violation.
func (s *Store) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	return s.db.GetContext(ctx, cert, `
		INSERT INTO certificates (learner_id, course_id, certificate_number,
		                          verification_code, issued_at, completion_date, certificate_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		cert.LearnerID, cert.CourseID, cert.CertificateNumber,
		cert.VerificationCode, cert.IssuedAt, cert.CompletionDate, cert.Data)
}

// GetCertificate retrieves the certificate for a (learner, course) pair.
// Returns nil without error when none has been issued.
func (s *Store) GetCertificate(ctx context.Context, learnerID, courseID int64) (*models.Certificate, error) {
	var cert models.Certificate
	err := s.db.GetContext(ctx, &cert,
		"SELECT * FROM certificates WHERE learner_id = $1 AND course_id = $2",
		learnerID, courseID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetCertificateByCode retrieves a certificate by verification code.
// Returns nil without error when the code is unknown.
func (s *Store) GetCertificateByCode(ctx context.Context, code string) (*models.Certificate, error) {
	var cert models.Certificate
	err := s.db.GetContext(ctx, &cert,
		"SELECT * FROM certificates WHERE verification_code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// GetCertificatesByLearnerID retrieves all certificates of a learner, newest first
func (s *Store) GetCertificatesByLearnerID(ctx context.Context, learnerID int64) ([]models.Certificate, error) {
	var certs []models.Certificate
	err := s.db.SelectContext(ctx, &certs,
		"SELECT * FROM certificates WHERE learner_id = $1 ORDER BY issued_at DESC", learnerID)
	return certs, err
}

// VerificationCodeExists checks a candidate code for collisions
func (s *Store) VerificationCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM certificates WHERE verification_code = $1)", code)
	return exists, err
}

// CreateInvitation inserts a company invitation
func (s *Store) CreateInvitation(ctx context.Context, inv *models.CompanyInvitation) error {
	return s.db.GetContext(ctx, inv, `
		INSERT INTO company_invitations (company_id, email, role, token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		inv.CompanyID, inv.Email, inv.Role, inv.Token, inv.ExpiresAt)
}

// GetInvitationByToken retrieves an invitation by its token.
// Returns nil without error when the token is unknown.
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*models.CompanyInvitation, error) {
	var inv models.CompanyInvitation
	err := s.db.GetContext(ctx, &inv,
		"SELECT * FROM company_invitations WHERE token = $1", token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetPendingInvitationByEmail retrieves the pending invitation for an email.
// Returns nil without error when none exists.
func (s *Store) GetPendingInvitationByEmail(ctx context.Context, companyID int64, email string) (*models.CompanyInvitation, error) {
	var inv models.CompanyInvitation
	err := s.db.GetContext(ctx, &inv, `
		SELECT * FROM company_invitations
		WHERE company_id = $1 AND email = $2 AND accepted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`,
		companyID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvitationsByCompanyID retrieves all invitations of a company, newest first
func (s *Store) GetInvitationsByCompanyID(ctx context.Context, companyID int64) ([]models.CompanyInvitation, error) {
	var invs []models.CompanyInvitation
	err := s.db.SelectContext(ctx, &invs,
		"SELECT * FROM company_invitations WHERE company_id = $1 ORDER BY created_at DESC", companyID)
	return invs, err
}

// DeleteInvitationByEmail removes any pending invitation for the email,
// invalidating its token. Used by the resend flow before recreating.
func (s *Store) DeleteInvitationByEmail(ctx context.Context, companyID int64, email string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM company_invitations WHERE company_id = $1 AND email = $2 AND accepted_at IS NULL",
		companyID, email)
	return err
}

// DeleteInvitation removes an invitation by ID
func (s *Store) DeleteInvitation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM company_invitations WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("invitation not found: %d", id)
	}
	return nil
}

// AcceptInvitation stamps accepted_at exactly once. Returns false when the
// invitation was already accepted.
func (s *Store) AcceptInvitation(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE company_invitations SET accepted_at = NOW() WHERE id = $1 AND accepted_at IS NULL",
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

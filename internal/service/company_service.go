package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"course-service/internal/models"
	"course-service/internal/util"

	"go.uber.org/zap"
)

// CompanyService manages B2B employee invitations under a per-company
// seat limit. Redis holds a seat counter as the fast path; the companies
// table is the durable limit, enforced by a conditional update.
type CompanyService struct {
	store         Store
	cache         Cache
	logger        *zap.Logger
	invitationTTL time.Duration
}

// NewCompanyService creates a new company service
func NewCompanyService(store Store, cache Cache, invitationTTL time.Duration) *CompanyService {
	return &CompanyService{
		store:         store,
		cache:         cache,
		logger:        util.GetLogger(),
		invitationTTL: invitationTTL,
	}
}

// InviteEmployee creates a pending invitation if a seat is available.
// The redis counter rejects over-limit invites without touching postgres;
// when redis is cold or down the check falls back to the companies row.
func (s *CompanyService) InviteEmployee(ctx context.Context, companyID int64, email, role string) (*models.CompanyInvitation, error) {
	ctx, span := util.StartSpan(ctx, "CompanyService.InviteEmployee")
	defer span.End()

	if companyID == 0 {
		return nil, validationErr("company_id")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, validationErr("email")
	}
	if role == "" {
		role = "employee"
	}

	company, err := s.store.GetCompanyByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserveSeat(ctx, company)
	if err != nil {
		return nil, err
	}
	if !reserved {
		util.InvitationsRejectedTotal.WithLabelValues("seat_limit").Inc()
		return nil, ErrSeatLimitReached
	}

	token, err := invitationToken()
	if err != nil {
		s.releaseReservedSeat(ctx, companyID)
		return nil, err
	}

	invitation := &models.CompanyInvitation{
		CompanyID: companyID,
		Email:     email,
		Role:      role,
		Token:     token,
		ExpiresAt: time.Now().Add(s.invitationTTL),
	}
	if err := s.store.CreateInvitation(ctx, invitation); err != nil {
		s.releaseReservedSeat(ctx, companyID)
		util.InvitationsRejectedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	util.InvitationsCreatedTotal.Inc()
	s.logger.Info("Invitation created",
		zap.Int64("invitation_id", invitation.ID),
		zap.Int64("company_id", companyID),
		zap.String("email", email))

	return invitation, nil
}

// reserveSeat tries the redis counter first. An uninitialized counter is
// seeded from the companies row and retried once; a redis failure degrades
// to a plain limit check against the row.
func (s *CompanyService) reserveSeat(ctx context.Context, company *models.Company) (bool, error) {
	reserved, err := s.cache.ReserveSeat(ctx, company.ID)
	if err == nil {
		return reserved, nil
	}

	if seedErr := s.cache.InitSeats(ctx, company.ID, company.SeatLimit, company.ActiveSeats); seedErr == nil {
		if reserved, retryErr := s.cache.ReserveSeat(ctx, company.ID); retryErr == nil {
			return reserved, nil
		}
	}

	s.logger.Warn("Seat counter unavailable, falling back to database",
		zap.Int64("company_id", company.ID),
		zap.Error(err))
	return company.ActiveSeats < company.SeatLimit, nil
}

// releaseReservedSeat undoes a redis reservation after a failed insert
func (s *CompanyService) releaseReservedSeat(ctx context.Context, companyID int64) {
	if err := s.cache.ReleaseSeat(ctx, companyID); err != nil {
		s.logger.Warn("Failed to release reserved seat",
			zap.Int64("company_id", companyID),
			zap.Error(err))
	}
}

// ResendInvitation replaces a pending invitation with a fresh token and
// expiry, keeping the invitee's role. Seat-neutral: it only rotates an
// invitation that already holds a seat, so an email that was never
// invited goes through InviteEmployee and its seat gate instead.
// A short redis lock keeps concurrent resends for one email from stacking
// duplicate rows.
func (s *CompanyService) ResendInvitation(ctx context.Context, companyID int64, email string) (*models.CompanyInvitation, error) {
	ctx, span := util.StartSpan(ctx, "CompanyService.ResendInvitation")
	defer span.End()

	if companyID == 0 {
		return nil, validationErr("company_id")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, validationErr("email")
	}

	lockKey := fmt.Sprintf("invite:%d:%s", companyID, email)
	if locked, err := s.cache.AcquireLock(ctx, lockKey, 10*time.Second); err != nil {
		s.logger.Warn("Invitation lock unavailable", zap.Error(err))
	} else if !locked {
		return nil, fmt.Errorf("%w: resend already in progress", ErrValidation)
	} else {
		defer func() {
			if err := s.cache.ReleaseLock(ctx, lockKey); err != nil {
				s.logger.Warn("Failed to release invitation lock", zap.Error(err))
			}
		}()
	}

	prior, err := s.store.GetPendingInvitationByEmail(ctx, companyID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}
	if prior == nil {
		return nil, ErrInvitationNotFound
	}

	if err := s.store.DeleteInvitationByEmail(ctx, companyID, email); err != nil {
		return nil, fmt.Errorf("failed to remove previous invitation: %w", err)
	}

	token, err := invitationToken()
	if err != nil {
		return nil, err
	}

	invitation := &models.CompanyInvitation{
		CompanyID: companyID,
		Email:     email,
		Role:      prior.Role,
		Token:     token,
		ExpiresAt: time.Now().Add(s.invitationTTL),
	}
	if err := s.store.CreateInvitation(ctx, invitation); err != nil {
		return nil, fmt.Errorf("failed to recreate invitation: %w", err)
	}

	s.logger.Info("Invitation resent",
		zap.Int64("company_id", companyID),
		zap.String("email", email))

	return invitation, nil
}

// CancelInvitation removes a pending invitation and returns its seat
func (s *CompanyService) CancelInvitation(ctx context.Context, companyID, invitationID int64) error {
	ctx, span := util.StartSpan(ctx, "CompanyService.CancelInvitation")
	defer span.End()

	if companyID == 0 {
		return validationErr("company_id")
	}
	if invitationID == 0 {
		return validationErr("invitation_id")
	}

	invitations, err := s.store.GetInvitationsByCompanyID(ctx, companyID)
	if err != nil {
		return err
	}
	var target *models.CompanyInvitation
	for i := range invitations {
		if invitations[i].ID == invitationID {
			target = &invitations[i]
			break
		}
	}
	if target == nil {
		return ErrInvitationNotFound
	}
	if target.AcceptedAt != nil {
		return ErrInvitationAccepted
	}

	if err := s.store.DeleteInvitation(ctx, invitationID); err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}

	s.releaseReservedSeat(ctx, companyID)
	s.logger.Info("Invitation cancelled",
		zap.Int64("invitation_id", invitationID),
		zap.Int64("company_id", companyID))
	return nil
}

// AcceptInvitation redeems an invitation token. The durable seat claim
// is a conditional update on the companies row, so two accepts racing for
// the last seat cannot both win; the redis counter is only advisory.
func (s *CompanyService) AcceptInvitation(ctx context.Context, token string) (*models.CompanyInvitation, error) {
	ctx, span := util.StartSpan(ctx, "CompanyService.AcceptInvitation")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validationErr("token")
	}

	invitation, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}
	if invitation == nil {
		return nil, ErrInvitationNotFound
	}
	if invitation.AcceptedAt != nil {
		return nil, ErrInvitationAccepted
	}
	if time.Now().After(invitation.ExpiresAt) {
		util.InvitationsRejectedTotal.WithLabelValues("expired").Inc()
		return nil, ErrInvitationExpired
	}

	claimed, err := s.store.ClaimSeat(ctx, invitation.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim seat: %w", err)
	}
	if !claimed {
		util.InvitationsRejectedTotal.WithLabelValues("seat_limit").Inc()
		return nil, ErrSeatLimitReached
	}

	accepted, err := s.store.AcceptInvitation(ctx, invitation.ID)
	if err != nil {
		if rerr := s.store.ReleaseSeat(ctx, invitation.CompanyID); rerr != nil {
			s.logger.Error("Failed to release seat after accept error",
				zap.Int64("company_id", invitation.CompanyID),
				zap.Error(rerr))
		}
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	if !accepted {
		// Lost the accept race to another redemption of the same token
		if rerr := s.store.ReleaseSeat(ctx, invitation.CompanyID); rerr != nil {
			s.logger.Error("Failed to release seat after losing accept race",
				zap.Int64("company_id", invitation.CompanyID),
				zap.Error(rerr))
		}
		return nil, ErrInvitationAccepted
	}

	now := time.Now()
	invitation.AcceptedAt = &now
	s.logger.Info("Invitation accepted",
		zap.Int64("invitation_id", invitation.ID),
		zap.Int64("company_id", invitation.CompanyID),
		zap.String("email", invitation.Email))

	return invitation, nil
}

// ListInvitations retrieves all invitations of a company, newest first
func (s *CompanyService) ListInvitations(ctx context.Context, companyID int64) ([]models.CompanyInvitation, error) {
	if companyID == 0 {
		return nil, validationErr("company_id")
	}
	return s.store.GetInvitationsByCompanyID(ctx, companyID)
}

func invitationToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

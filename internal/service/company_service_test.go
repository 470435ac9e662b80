package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompanyFixture(seatLimit, activeSeats int) (*CompanyService, *fakeStore, *fakeCache) {
	st := newFakeStore()
	st.addCompany(1, seatLimit, activeSeats)
	cache := newFakeCache()
	_ = cache.InitSeats(context.Background(), 1, seatLimit, activeSeats)
	svc := NewCompanyService(st, cache, 7*24*time.Hour)
	return svc, st, cache
}

func TestInviteEmployee(t *testing.T) {
	svc, _, _ := newCompanyFixture(3, 0)

	inv, err := svc.InviteEmployee(context.Background(), 1, "Dev@Example.com", "")
	require.NoError(t, err)

	assert.Equal(t, "dev@example.com", inv.Email)
	assert.Equal(t, "employee", inv.Role)
	assert.Len(t, inv.Token, 32)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), inv.ExpiresAt, time.Minute)
	assert.Nil(t, inv.AcceptedAt)
}

func TestInviteEmployeeSeatLimit(t *testing.T) {
	svc, _, _ := newCompanyFixture(2, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.InviteEmployee(ctx, 1, fmt.Sprintf("dev%d@example.com", i), "")
		require.NoError(t, err)
	}

	_, err := svc.InviteEmployee(ctx, 1, "onemore@example.com", "")
	assert.ErrorIs(t, err, ErrSeatLimitReached)
}

func TestInviteEmployeeFallsBackToDatabase(t *testing.T) {
	svc, _, cache := newCompanyFixture(2, 1)
	cache.reserveErr = fmt.Errorf("redis down")
	ctx := context.Background()

	// One seat left per the companies row
	inv, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)
	assert.NotEmpty(t, inv.Token)
}

func TestInviteEmployeeValidation(t *testing.T) {
	svc, _, _ := newCompanyFixture(2, 0)
	ctx := context.Background()

	_, err := svc.InviteEmployee(ctx, 0, "dev@example.com", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.InviteEmployee(ctx, 1, "   ", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAcceptInvitation(t *testing.T) {
	svc, st, _ := newCompanyFixture(2, 0)
	ctx := context.Background()

	inv, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)

	accepted, err := svc.AcceptInvitation(ctx, inv.Token)
	require.NoError(t, err)
	require.NotNil(t, accepted.AcceptedAt)

	company, err := st.GetCompanyByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, company.ActiveSeats)
}

func TestAcceptInvitationUnknownToken(t *testing.T) {
	svc, _, _ := newCompanyFixture(2, 0)

	_, err := svc.AcceptInvitation(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestAcceptInvitationExpired(t *testing.T) {
	st := newFakeStore()
	st.addCompany(1, 2, 0)
	cache := newFakeCache()
	_ = cache.InitSeats(context.Background(), 1, 2, 0)
	svc := NewCompanyService(st, cache, -time.Hour)
	ctx := context.Background()

	inv, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationExpired)
}

func TestAcceptInvitationTwice(t *testing.T) {
	svc, _, _ := newCompanyFixture(3, 0)
	ctx := context.Background()

	inv, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(ctx, inv.Token)
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrInvitationAccepted)
}

func TestAcceptInvitationLastSeatRace(t *testing.T) {
	// Two pending invitations but only one durable seat left: the second
	// accept must lose at the conditional update, not oversubscribe.
	st := newFakeStore()
	st.addCompany(1, 3, 0)
	cache := newFakeCache()
	_ = cache.InitSeats(context.Background(), 1, 3, 0)
	svc := NewCompanyService(st, cache, 7*24*time.Hour)
	ctx := context.Background()

	first, err := svc.InviteEmployee(ctx, 1, "a@example.com", "")
	require.NoError(t, err)
	second, err := svc.InviteEmployee(ctx, 1, "b@example.com", "")
	require.NoError(t, err)

	// Seats fill up before either invitation is redeemed
	st.companies[1].ActiveSeats = 2

	_, err = svc.AcceptInvitation(ctx, first.Token)
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(ctx, second.Token)
	assert.ErrorIs(t, err, ErrSeatLimitReached)

	company, err := st.GetCompanyByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, company.ActiveSeats)
}

func TestResendInvitationRotatesToken(t *testing.T) {
	svc, st, _ := newCompanyFixture(2, 0)
	ctx := context.Background()

	original, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)

	resent, err := svc.ResendInvitation(ctx, 1, "dev@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, original.Token, resent.Token)

	// The original token no longer resolves
	stale, err := st.GetInvitationByToken(ctx, original.Token)
	require.NoError(t, err)
	assert.Nil(t, stale)

	invitations, err := svc.ListInvitations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, invitations, 1)
}

func TestResendInvitationRequiresPriorInvitation(t *testing.T) {
	// A full company cannot mint invitations through the resend route:
	// an email that was never invited gets not-found, not a fresh token.
	svc, st, _ := newCompanyFixture(1, 1)
	ctx := context.Background()

	_, err := svc.InviteEmployee(ctx, 1, "never@example.com", "")
	require.ErrorIs(t, err, ErrSeatLimitReached)

	_, err = svc.ResendInvitation(ctx, 1, "never@example.com")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	invitations, err := st.GetInvitationsByCompanyID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, invitations)
}

func TestResendInvitationPreservesRole(t *testing.T) {
	svc, _, _ := newCompanyFixture(2, 0)
	ctx := context.Background()

	_, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "manager")
	require.NoError(t, err)

	resent, err := svc.ResendInvitation(ctx, 1, "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, "manager", resent.Role)
}

func TestCancelInvitationReleasesSeat(t *testing.T) {
	svc, _, cache := newCompanyFixture(1, 0)
	ctx := context.Background()

	inv, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)

	// Counter is full, a second invite is rejected
	_, err = svc.InviteEmployee(ctx, 1, "other@example.com", "")
	require.ErrorIs(t, err, ErrSeatLimitReached)

	err = svc.CancelInvitation(ctx, 1, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.seats[1].used)

	// The freed seat can be re-invited
	_, err = svc.InviteEmployee(ctx, 1, "other@example.com", "")
	require.NoError(t, err)
}

func TestCancelInvitationNotFound(t *testing.T) {
	svc, _, _ := newCompanyFixture(2, 0)

	err := svc.CancelInvitation(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestCancelAcceptedInvitation(t *testing.T) {
	svc, _, _ := newCompanyFixture(2, 0)
	ctx := context.Background()

	inv, err := svc.InviteEmployee(ctx, 1, "dev@example.com", "")
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, inv.Token)
	require.NoError(t, err)

	err = svc.CancelInvitation(ctx, 1, inv.ID)
	assert.ErrorIs(t, err, ErrInvitationAccepted)
}

// Package invite enforces the referral-code rules: a code is redeemed at
// most once per user, must belong to an existing user, and can never be a
// user's own code.
package invite

import (
	"context"
	"errors"
	"regexp"

	"github.com/otpline/otpline/internal/identity"
)

var (
	// ErrMalformedCode rejects codes that are not exactly 6 alphanumerics.
	ErrMalformedCode = errors.New("incorrect code")
	// ErrAlreadyUsed rejects a second redemption by the same user.
	ErrAlreadyUsed = errors.New("invitation code has already been used")
	// ErrInvalidCode rejects unknown codes and self-referrals alike.
	ErrInvalidCode = errors.New("invalid invitation code")
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]{6}$`)

// Ledger validates and records invite-code redemptions.
type Ledger struct {
	users *identity.Service
}

// NewLedger creates a ledger backed by the identity service.
func NewLedger(users *identity.Service) *Ledger {
	return &Ledger{users: users}
}

// Redeem records that user was invited via code. Rules are checked in
// order and the first failure wins; nothing is written on rejection.
func (l *Ledger) Redeem(ctx context.Context, user identity.User, code string) (identity.User, error) {
	if !codePattern.MatchString(code) {
		return identity.User{}, ErrMalformedCode
	}
	if user.Invited() {
		return identity.User{}, ErrAlreadyUsed
	}
	if _, err := l.users.FindByInviteCode(ctx, code); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrInvalidCode
		}
		return identity.User{}, err
	}
	if code == user.InviteCode {
		return identity.User{}, ErrInvalidCode
	}
	if err := l.users.SetInvitedByCode(ctx, user.ID, code); err != nil {
		if errors.Is(err, identity.ErrAlreadyInvited) {
			// another request for the same user won the race
			return identity.User{}, ErrAlreadyUsed
		}
		return identity.User{}, err
	}
	return l.users.FindByID(ctx, user.ID)
}

// InvitedPhoneNumbers lists the phone numbers of users invited by the given
// user. The result may be empty and carries no ordering guarantee.
func (l *Ledger) InvitedPhoneNumbers(ctx context.Context, user identity.User) ([]string, error) {
	return l.users.InvitedPhoneNumbers(ctx, user.InviteCode)
}

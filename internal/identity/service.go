package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	inviteCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 6

	// The 62^6 code space makes collisions rare but not impossible; the
	// store's unique constraint is the authority and we regenerate on it.
	maxInviteCodeAttempts = 5
)

// Service manages the durable identity records.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// FindByPhone returns the user registered under the phone number.
func (s *Service) FindByPhone(ctx context.Context, phone string) (User, error) {
	return s.repo.FindByPhone(ctx, phone)
}

// FindByID returns the user with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByInviteCode returns the owner of the invite code.
func (s *Service) FindByInviteCode(ctx context.Context, code string) (User, error) {
	return s.repo.FindByInviteCode(ctx, code)
}

// Create registers a new user under the phone number with a fresh invite
// code. Invite-code collisions regenerate and retry; losing a phone-number
// race resolves to the record the other writer inserted.
func (s *Service) Create(ctx context.Context, phone string) (User, error) {
	for attempt := 0; attempt < maxInviteCodeAttempts; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return User{}, err
		}
		user := User{
			ID:          uuid.New().String(),
			PhoneNumber: phone,
			InviteCode:  code,
			CreatedAt:   time.Now().UTC(),
		}
		err = s.repo.Create(ctx, user)
		switch {
		case err == nil:
			return user, nil
		case errors.Is(err, ErrInviteCodeTaken):
			continue
		case errors.Is(err, ErrPhoneTaken):
			return s.repo.FindByPhone(ctx, phone)
		default:
			return User{}, err
		}
	}
	return User{}, fmt.Errorf("generate invite code: gave up after %d collisions", maxInviteCodeAttempts)
}

// SetOTP replaces the user's OTP verifier with a hash of the new password.
func (s *Service) SetOTP(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdateOTPHash(ctx, userID, hash)
}

// VerifyOTP reports whether the submitted password matches the stored verifier.
func (s *Service) VerifyOTP(user User, password string) bool {
	return bcrypt.CompareHashAndPassword(user.OTPHash, []byte(password)) == nil
}

// UpdateProfile overwrites the optional profile attributes and returns the
// refreshed record.
func (s *Service) UpdateProfile(ctx context.Context, userID string, profile Profile) (User, error) {
	if err := s.repo.UpdateProfile(ctx, userID, profile); err != nil {
		return User{}, err
	}
	return s.repo.FindByID(ctx, userID)
}

// SetInvitedByCode records which referral code the user redeemed. The store
// rejects a second write with ErrAlreadyInvited.
func (s *Service) SetInvitedByCode(ctx context.Context, userID, code string) error {
	return s.repo.SetInvitedByCode(ctx, userID, code)
}

// InvitedPhoneNumbers lists the phone numbers of everyone who redeemed the
// given invite code.
func (s *Service) InvitedPhoneNumbers(ctx context.Context, code string) ([]string, error) {
	return s.repo.PhonesInvitedBy(ctx, code)
}

func generateInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}

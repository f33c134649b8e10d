package auth

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/otpline/otpline/internal/identity"
	"github.com/otpline/otpline/internal/notification"
	"github.com/otpline/otpline/internal/otp"
	"github.com/otpline/otpline/internal/session"
)

var (
	// ErrInvalidPhone rejects phone numbers not matching +7 plus 10 digits.
	ErrInvalidPhone = errors.New("incorrect phone number")
	// ErrInvalidOTP rejects submissions that are not exactly 4 digits.
	ErrInvalidOTP = errors.New("password must have only 4 digits")
	// ErrAuthentication is the generic login failure. It deliberately does
	// not say which check failed.
	ErrAuthentication = errors.New("authentication failed")
	// ErrUnauthenticated gates operations that need a logged-in session.
	ErrUnauthenticated = errors.New("authentication required")
)

var (
	phonePattern = regexp.MustCompile(`^\+7\d{10}$`)
	otpPattern   = regexp.MustCompile(`^\d{4}$`)
)

const smsDispatchTimeout = 5 * time.Second

// Service orchestrates the two-step login protocol: Identify binds a phone
// number and fresh OTP to the session, Verify consumes that binding.
type Service struct {
	users    *identity.Service
	sessions session.Store
	sms      notification.Notifier
	logger   *slog.Logger
}

// NewService creates the auth gateway.
func NewService(users *identity.Service, sessions session.Store, sms notification.Notifier, logger *slog.Logger) *Service {
	return &Service{users: users, sessions: sessions, sms: sms, logger: logger}
}

// Identify looks up or registers the user behind the phone number, issues a
// new OTP, persists its verifier, and binds the attempt to the session. The
// OTP is returned to the caller so the transport can expose it as a
// development stand-in for real SMS delivery.
func (s *Service) Identify(ctx context.Context, sessionID, phone string) (string, error) {
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}

	user, err := s.users.FindByPhone(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		user, err = s.users.Create(ctx, phone)
	}
	if err != nil {
		return "", err
	}

	password := otp.Generate()
	if err := s.users.SetOTP(ctx, user.ID, password); err != nil {
		return "", err
	}
	if err := s.sessions.BeginLogin(ctx, sessionID, phone, password); err != nil {
		return "", err
	}

	s.dispatchSMS(phone, password)

	return password, nil
}

// Verify checks the submitted OTP against the verifier of the user bound in
// the session's pending login. Failures leave the session untouched, so the
// user may retry or restart with a new Identify.
func (s *Service) Verify(ctx context.Context, sessionID, submitted string) (identity.User, error) {
	if !otpPattern.MatchString(submitted) {
		return identity.User{}, ErrInvalidOTP
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return identity.User{}, err
	}
	if sess.Pending == nil {
		return identity.User{}, ErrAuthentication
	}

	user, err := s.users.FindByPhone(ctx, sess.Pending.PhoneNumber)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrAuthentication
		}
		return identity.User{}, err
	}
	if !s.users.VerifyOTP(user, submitted) {
		return identity.User{}, ErrAuthentication
	}

	if err := s.sessions.Authenticate(ctx, sessionID, user.ID); err != nil {
		return identity.User{}, err
	}
	return user, nil
}

// CurrentUser resolves the authenticated user bound to the session.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (identity.User, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return identity.User{}, err
	}
	if sess.State != session.StateAuthenticated {
		return identity.User{}, ErrUnauthenticated
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrUnauthenticated
		}
		return identity.User{}, err
	}
	return user, nil
}

// Logout clears all session state.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Logout(ctx, sessionID)
}

// dispatchSMS imitates provider delivery off the request path. A failed
// dispatch never fails Identify.
func (s *Service) dispatchSMS(phone, password string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), smsDispatchTimeout)
		defer cancel()
		msg := notification.Message{PhoneNumber: phone, Body: "OTP: " + password}
		if err := s.sms.Send(ctx, msg); err != nil && s.logger != nil {
			s.logger.Warn("sms dispatch failed", "phone_number", phone, "error", err)
		}
	}()
}

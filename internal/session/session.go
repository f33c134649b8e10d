// Package session keeps the server-side login state for each client session.
// The pending phone number and OTP live here rather than in request
// parameters so the verify step can only check the number that was just
// issued an OTP: the session is the binding authority, not client input.
package session

import "context"

// State describes where a session is in the login flow.
type State string

const (
	StateAnonymous     State = "anonymous"
	StatePending       State = "pending_verification"
	StateAuthenticated State = "authenticated"
)

// PendingLogin is the one in-flight login attempt bound to a session.
type PendingLogin struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

// Session is the record stored per opaque session identifier.
type Session struct {
	State   State         `json:"state"`
	Pending *PendingLogin `json:"pending,omitempty"`
	UserID  string        `json:"user_id,omitempty"`
}

// Anonymous is the zero state returned for unknown session identifiers.
func Anonymous() Session {
	return Session{State: StateAnonymous}
}

// Store persists sessions keyed by an opaque identifier.
type Store interface {
	// Get returns the session, or the anonymous zero state when absent.
	Get(ctx context.Context, id string) (Session, error)
	// BeginLogin binds a new pending login, superseding any prior one.
	// The last call wins; an authenticated binding is discarded.
	BeginLogin(ctx context.Context, id, phone, otp string) error
	// Authenticate binds the session to a user and clears the pending login.
	Authenticate(ctx context.Context, id, userID string) error
	// Logout removes all session state.
	Logout(ctx context.Context, id string) error
}

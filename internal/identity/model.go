package identity

import "time"

// User represents a registered account keyed by phone number.
type User struct {
	ID            string
	PhoneNumber   string
	OTPHash       []byte
	InviteCode    string
	InvitedByCode string // empty until a referral code is redeemed
	FirstName     string
	LastName      string
	Email         string
	CreatedAt     time.Time
}

// Invited reports whether the user has already redeemed a referral code.
func (u User) Invited() bool {
	return u.InvitedByCode != ""
}

// Profile carries the mutable profile attributes.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
}

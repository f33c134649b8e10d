package identity

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

var inviteCodeFormat = regexp.MustCompile(`^[a-zA-Z0-9]{6}$`)

func TestCreateAssignsInviteCode(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Create(ctx, "+79991234567")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected a user id")
	}
	if !inviteCodeFormat.MatchString(user.InviteCode) {
		t.Fatalf("expected 6 alphanumeric invite code, got %q", user.InviteCode)
	}
	if user.Invited() {
		t.Fatal("fresh user must not have a referral code")
	}

	fetched, err := svc.FindByPhone(ctx, "+79991234567")
	if err != nil {
		t.Fatalf("find by phone: %v", err)
	}
	if fetched.ID != user.ID || fetched.InviteCode != user.InviteCode {
		t.Fatalf("expected stored user %+v, got %+v", user, fetched)
	}
}

// collideOnceRepository rejects the first insert with an invite-code
// conflict to exercise the regeneration loop.
type collideOnceRepository struct {
	Repository
	collided bool
	inserts  int
}

func (r *collideOnceRepository) Create(ctx context.Context, user User) error {
	r.inserts++
	if !r.collided {
		r.collided = true
		return ErrInviteCodeTaken
	}
	return r.Repository.Create(ctx, user)
}

func TestCreateRetriesOnInviteCodeCollision(t *testing.T) {
	repo := &collideOnceRepository{Repository: NewMemoryRepository()}
	svc := NewService(repo)

	user, err := svc.Create(context.Background(), "+79991234567")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if repo.inserts != 2 {
		t.Fatalf("expected a retry after the collision, got %d inserts", repo.inserts)
	}
	if !inviteCodeFormat.MatchString(user.InviteCode) {
		t.Fatalf("expected regenerated invite code, got %q", user.InviteCode)
	}
}

// phoneRaceRepository simulates losing a concurrent registration race.
type phoneRaceRepository struct {
	Repository
}

func (r *phoneRaceRepository) Create(ctx context.Context, user User) error {
	return ErrPhoneTaken
}

func TestCreateResolvesPhoneRaceToWinner(t *testing.T) {
	base := NewMemoryRepository()
	svc := NewService(base)
	ctx := context.Background()

	winner, err := svc.Create(ctx, "+79991234567")
	if err != nil {
		t.Fatalf("seed winner: %v", err)
	}

	racer := NewService(&phoneRaceRepository{Repository: base})
	user, err := racer.Create(ctx, "+79991234567")
	if err != nil {
		t.Fatalf("create after lost race: %v", err)
	}
	if user.ID != winner.ID {
		t.Fatalf("expected the winning record %s, got %s", winner.ID, user.ID)
	}
}

func TestSetOTPAndVerify(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Create(ctx, "+79991234567")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.SetOTP(ctx, user.ID, "1234"); err != nil {
		t.Fatalf("set otp: %v", err)
	}

	user, err = svc.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !svc.VerifyOTP(user, "1234") {
		t.Fatal("expected current OTP to verify")
	}
	if svc.VerifyOTP(user, "4321") {
		t.Fatal("expected wrong OTP to fail")
	}

	// A new OTP supersedes the old one.
	if err := svc.SetOTP(ctx, user.ID, "5678"); err != nil {
		t.Fatalf("set new otp: %v", err)
	}
	user, _ = svc.FindByID(ctx, user.ID)
	if svc.VerifyOTP(user, "1234") {
		t.Fatal("expected superseded OTP to fail")
	}
	if !svc.VerifyOTP(user, "5678") {
		t.Fatal("expected new OTP to verify")
	}
}

func TestUpdateProfile(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Create(ctx, "+79991234567")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, user.ID, Profile{FirstName: "Ivan", LastName: "Petrov", Email: "ivan@example.com"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.FirstName != "Ivan" || updated.LastName != "Petrov" || updated.Email != "ivan@example.com" {
		t.Fatalf("unexpected profile: %+v", updated)
	}
	if updated.InviteCode != user.InviteCode {
		t.Fatal("invite code must not change on profile update")
	}
}

func TestSetInvitedByCodeIsSetOnce(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	inviter, err := svc.Create(ctx, "+79991111111")
	if err != nil {
		t.Fatalf("create inviter: %v", err)
	}
	invitee, err := svc.Create(ctx, "+79992222222")
	if err != nil {
		t.Fatalf("create invitee: %v", err)
	}

	if err := svc.SetInvitedByCode(ctx, invitee.ID, inviter.InviteCode); err != nil {
		t.Fatalf("set invited by code: %v", err)
	}
	if err := svc.SetInvitedByCode(ctx, invitee.ID, "other1"); !errors.Is(err, ErrAlreadyInvited) {
		t.Fatalf("expected ErrAlreadyInvited, got %v", err)
	}

	fetched, _ := svc.FindByID(ctx, invitee.ID)
	if fetched.InvitedByCode != inviter.InviteCode {
		t.Fatalf("expected referral code %q preserved, got %q", inviter.InviteCode, fetched.InvitedByCode)
	}
}

func TestInvitedPhoneNumbers(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	inviter, _ := svc.Create(ctx, "+79991111111")
	a, _ := svc.Create(ctx, "+79992222222")
	b, _ := svc.Create(ctx, "+79993333333")

	phones, err := svc.InvitedPhoneNumbers(ctx, inviter.InviteCode)
	if err != nil {
		t.Fatalf("invited phones: %v", err)
	}
	if len(phones) != 0 {
		t.Fatalf("expected no invited users yet, got %v", phones)
	}

	_ = svc.SetInvitedByCode(ctx, a.ID, inviter.InviteCode)
	_ = svc.SetInvitedByCode(ctx, b.ID, inviter.InviteCode)

	phones, err = svc.InvitedPhoneNumbers(ctx, inviter.InviteCode)
	if err != nil {
		t.Fatalf("invited phones: %v", err)
	}
	if len(phones) != 2 {
		t.Fatalf("expected both invitees, got %v", phones)
	}
	seen := map[string]bool{}
	for _, p := range phones {
		seen[p] = true
	}
	if !seen[a.PhoneNumber] || !seen[b.PhoneNumber] {
		t.Fatalf("expected %s and %s, got %v", a.PhoneNumber, b.PhoneNumber, phones)
	}
}

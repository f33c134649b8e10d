package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrPhoneTaken indicates another writer already registered the phone number.
	ErrPhoneTaken = errors.New("phone number already registered")
	// ErrInviteCodeTaken indicates the generated invite code collided with an existing one.
	ErrInviteCodeTaken = errors.New("invite code already taken")
	// ErrAlreadyInvited indicates invited_by_code was set before this write.
	ErrAlreadyInvited = errors.New("referral code already set")
)

// Repository persists users. Uniqueness of phone_number and invite_code is
// enforced by the store, not by callers.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByInviteCode(ctx context.Context, code string) (User, error)
	UpdateOTPHash(ctx context.Context, id string, hash []byte) error
	UpdateProfile(ctx context.Context, id string, profile Profile) error
	SetInvitedByCode(ctx context.Context, id, code string) error
	PhonesInvitedBy(ctx context.Context, code string) ([]string, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user. Unique-constraint violations are mapped to
// ErrPhoneTaken or ErrInviteCodeTaken so the caller can resolve the race.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone_number, otp_hash, invite_code, created_at)
        VALUES ($1, $2, $3, $4, $5)`, userID, user.PhoneNumber, user.OTPHash, user.InviteCode, user.CreatedAt.UTC())
	return mapUniqueViolation(err)
}

// FindByID fetches a user by primary key.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return r.scanUser(r.db.QueryRow(ctx, selectUser+` WHERE id = $1`, userID))
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.scanUser(r.db.QueryRow(ctx, selectUser+` WHERE phone_number = $1`, phone))
}

// FindByInviteCode fetches the owner of an invite code.
func (r *PostgresRepository) FindByInviteCode(ctx context.Context, code string) (User, error) {
	return r.scanUser(r.db.QueryRow(ctx, selectUser+` WHERE invite_code = $1`, code))
}

// UpdateOTPHash overwrites the stored OTP verifier.
func (r *PostgresRepository) UpdateOTPHash(ctx context.Context, id string, hash []byte) error {
	return r.updateOne(ctx, `UPDATE users SET otp_hash = $1 WHERE id = $2`, hash, id)
}

// UpdateProfile overwrites the optional profile attributes.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, profile Profile) error {
	return r.updateOne(ctx, `UPDATE users SET first_name = $1, last_name = $2, email = $3 WHERE id = $4`,
		profile.FirstName, profile.LastName, profile.Email, id)
}

// SetInvitedByCode stores the referral code, but only if none was set before.
// The conditional update is the set-once authority even across instances.
func (r *PostgresRepository) SetInvitedByCode(ctx context.Context, id, code string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET invited_by_code = $1 WHERE id = $2 AND invited_by_code IS NULL`, code, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyInvited
	}
	return nil
}

// PhonesInvitedBy lists the phone numbers of users who redeemed the given code.
func (r *PostgresRepository) PhonesInvitedBy(ctx context.Context, code string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT phone_number FROM users WHERE invited_by_code = $1`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		phones = append(phones, phone)
	}
	return phones, rows.Err()
}

const selectUser = `SELECT id, phone_number, otp_hash, invite_code, invited_by_code, first_name, last_name, email, created_at FROM users`

func (r *PostgresRepository) scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		invitedBy *string
		firstName *string
		lastName  *string
		email     *string
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.PhoneNumber, &user.OTPHash, &user.InviteCode, &invitedBy, &firstName, &lastName, &email, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	if invitedBy != nil {
		user.InvitedByCode = *invitedBy
	}
	if firstName != nil {
		user.FirstName = *firstName
	}
	if lastName != nil {
		user.LastName = *lastName
	}
	if email != nil {
		user.Email = *email
	}
	return user, nil
}

func (r *PostgresRepository) updateOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const uniqueViolationCode = "23505"

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}
	if strings.Contains(pgErr.ConstraintName, "invite_code") {
		return ErrInviteCodeTaken
	}
	return ErrPhoneTaken
}

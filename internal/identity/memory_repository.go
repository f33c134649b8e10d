package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byPhone map[string]User
	byCode  map[string]string // invite code -> phone
}

// NewMemoryRepository builds an in-memory user store for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byPhone: make(map[string]User),
		byCode:  make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[user.PhoneNumber]; exists {
		return ErrPhoneTaken
	}
	if _, exists := r.byCode[user.InviteCode]; exists {
		return ErrInviteCodeTaken
	}
	r.byPhone[user.PhoneNumber] = user
	r.byCode[user.InviteCode] = user.PhoneNumber
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.byPhone {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byPhone[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByInviteCode(_ context.Context, code string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	phone, ok := r.byCode[code]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.byPhone[phone], nil
}

func (r *memoryRepository) UpdateOTPHash(_ context.Context, id string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(user *User) error {
		user.OTPHash = hash
		return nil
	})
}

func (r *memoryRepository) UpdateProfile(_ context.Context, id string, profile Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(user *User) error {
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
		user.Email = profile.Email
		return nil
	})
}

func (r *memoryRepository) SetInvitedByCode(_ context.Context, id, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(user *User) error {
		if user.InvitedByCode != "" {
			return ErrAlreadyInvited
		}
		user.InvitedByCode = code
		return nil
	})
}

func (r *memoryRepository) PhonesInvitedBy(_ context.Context, code string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var phones []string
	for _, user := range r.byPhone {
		if user.InvitedByCode == code {
			phones = append(phones, user.PhoneNumber)
		}
	}
	return phones, nil
}

// mutate applies fn to the user with the given id; callers hold the lock.
func (r *memoryRepository) mutate(id string, fn func(*User) error) error {
	for phone, user := range r.byPhone {
		if user.ID == id {
			if err := fn(&user); err != nil {
				return err
			}
			r.byPhone[phone] = user
			return nil
		}
	}
	return ErrNotFound
}

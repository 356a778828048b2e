// Package users is the example domain: an account directory with CRUD
// endpoints mounted at {API_PREFIX}/users.
package users

import (
	"errors"
	"fmt"
	"time"

	"keystone/storage"

	"github.com/google/uuid"
)

// timeLayout is fixed width so text ordering of stored timestamps matches
// time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrUserNotFound is returned when no user has the requested id.
	ErrUserNotFound = fmt.Errorf("user %w", storage.ErrNotFound)

	// ErrEmailTaken matches every *EmailTakenError.
	ErrEmailTaken = errors.New("email already registered")
)

// EmailTakenError reports a create or update that would duplicate an email.
type EmailTakenError struct {
	Email string
}

func (e *EmailTakenError) Error() string {
	return fmt.Sprintf("user with email %q already exists", e.Email)
}

// Is matches ErrEmailTaken.
func (e *EmailTakenError) Is(target error) bool {
	return target == ErrEmailTaken
}

// User is a stored account.
type User struct {
	ID        uuid.UUID
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// userRow is the users table as sqlx scans it.
type userRow struct {
	ID        string `db:"id"`
	Email     string `db:"email"`
	IsActive  bool   `db:"is_active"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func newRow(u User) userRow {
	return userRow{
		ID:        u.ID.String(),
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
	}
}

func (r userRow) user() (User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return User{}, fmt.Errorf("invalid stored user id %q: %w", r.ID, err)
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("invalid created_at for user %s: %w", r.ID, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("invalid updated_at for user %s: %w", r.ID, err)
	}
	return User{ID: id, Email: r.Email, IsActive: r.IsActive, CreatedAt: created, UpdatedAt: updated}, nil
}

package users

import (
	"time"

	"github.com/google/uuid"
)

// UserCreate is the POST /users body.
type UserCreate struct {
	Email    string `json:"email" validate:"required,email,max=255" example:"ada@example.com"`
	IsActive *bool  `json:"is_active,omitempty" example:"true"`
}

// Active reports the requested state, defaulting to true.
func (c UserCreate) Active() bool {
	return c.IsActive == nil || *c.IsActive
}

// UserUpdate is the PATCH /users/{id} body. Nil fields are left unchanged.
type UserUpdate struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=255" example:"ada@example.com"`
	IsActive *bool   `json:"is_active,omitempty" example:"false"`
}

// Fields returns the names of the fields this update sets.
func (u UserUpdate) Fields() []string {
	var fields []string
	if u.Email != nil {
		fields = append(fields, "email")
	}
	if u.IsActive != nil {
		fields = append(fields, "is_active")
	}
	return fields
}

// Empty reports whether the update sets nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.IsActive == nil
}

// UserRead is a user as returned by the API.
type UserRead struct {
	ID        uuid.UUID `json:"id" format:"uuid"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserCollection is one page of users.
type UserCollection struct {
	Items  []UserRead `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// NewUserRead renders u with timestamps in loc.
func NewUserRead(u User, loc *time.Location) UserRead {
	if loc == nil {
		loc = time.UTC
	}
	return UserRead{
		ID:        u.ID,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.In(loc),
		UpdatedAt: u.UpdatedAt.In(loc),
	}
}

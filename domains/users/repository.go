package users

import (
	"context"
	"errors"
	"fmt"

	"keystone/storage"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Repository persists users.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]User, int, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Add(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, u User) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const userColumns = "id, email, is_active, created_at, updated_at"

// SQLRepository is the sqlx-backed Repository.
type SQLRepository struct {
	db     *storage.DB
	logger *zap.SugaredLogger
}

// NewSQLRepository returns a repository over db.
func NewSQLRepository(db *storage.DB, logger *zap.SugaredLogger) *SQLRepository {
	return &SQLRepository{db: db, logger: logger}
}

// List returns one page of users, newest first, and the total count.
func (r *SQLRepository) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var rows []userRow
	query := r.db.Rebind("SELECT " + userColumns + " FROM users ORDER BY created_at DESC, id LIMIT ? OFFSET ?")
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, row := range rows {
		u, err := row.user()
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, nil
}

// Get returns the user with id, or ErrUserNotFound.
func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return r.getOne(ctx, "id", id.String())
}

// GetByEmail returns the user with email, or ErrUserNotFound.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, "email", email)
}

func (r *SQLRepository) getOne(ctx context.Context, column, value string) (User, error) {
	var row userRow
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE " + column + " = ?")
	if err := r.db.GetContext(ctx, &row, query, value); err != nil {
		if errors.Is(storage.Classify(err), storage.ErrNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return row.user()
}

// Add inserts u. A duplicate email yields *EmailTakenError.
func (r *SQLRepository) Add(ctx context.Context, u User) (User, error) {
	row := newRow(u)
	err := r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, email, is_active, created_at, updated_at)
			VALUES (:id, :email, :is_active, :created_at, :updated_at)`, row)
		return err
	})
	if err != nil {
		return User{}, r.writeError("create", u, err)
	}

	r.logger.Infow("User created", "user_id", row.ID, "email", u.Email)
	return u, nil
}

// Update overwrites the mutable fields of the stored user with u's.
func (r *SQLRepository) Update(ctx context.Context, u User) (User, error) {
	row := newRow(u)
	err := r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE users SET email = :email, is_active = :is_active, updated_at = :updated_at
			WHERE id = :id`, row)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	if err != nil {
		return User{}, r.writeError("update", u, err)
	}

	r.logger.Infow("User updated", "user_id", row.ID)
	return u, nil
}

// Delete removes the user with id.
func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM users WHERE id = ?"), id.String())
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}

	r.logger.Infow("User deleted", "user_id", id.String())
	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *SQLRepository) writeError(op string, u User, err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return err
	}
	if errors.Is(storage.Classify(err), storage.ErrDuplicate) {
		return &EmailTakenError{Email: u.Email}
	}
	return fmt.Errorf("failed to %s user %s: %w", op, u.ID, err)
}

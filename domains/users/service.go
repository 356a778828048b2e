package users

import (
	"context"
	"errors"
	"strings"

	"keystone/clock"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "keystone/domains/users"

// Service implements the user operations on top of a Repository.
type Service struct {
	repo   Repository
	clock  *clock.Clock
	tracer trace.Tracer
}

// NewService builds a Service. A nil provider disables tracing.
func NewService(repo Repository, clk *clock.Clock, tp trace.TracerProvider) *Service {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	if clk == nil {
		clk = clock.New("", nil)
	}
	return &Service{repo: repo, clock: clk, tracer: tp.Tracer(tracerName)}
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "UserService."+op, trace.WithAttributes(attrs...))
}

// end records err on span, except for the not-found and conflict outcomes
// callers are expected to handle.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrUserNotFound) && !errors.Is(err, ErrEmailTaken) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) (_ []User, _ int, err error) {
	ctx, span := s.start(ctx, "list_users",
		attribute.Int("app.pagination.limit", limit),
		attribute.Int("app.pagination.offset", offset))
	defer func() { end(span, err) }()

	return s.repo.List(ctx, limit, offset)
}

// GetUser returns the user with id.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (_ User, err error) {
	ctx, span := s.start(ctx, "get_user", attribute.String("user.id", id.String()))
	defer func() { end(span, err) }()

	return s.repo.Get(ctx, id)
}

// CreateUser stores a new user. A taken email yields *EmailTakenError.
func (s *Service) CreateUser(ctx context.Context, in UserCreate) (_ User, err error) {
	ctx, span := s.start(ctx, "create_user",
		attribute.String("user.email", in.Email),
		attribute.Bool("user.is_active", in.Active()))
	defer func() { end(span, err) }()

	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return User{}, err
	}

	now := s.clock.Now()
	u, err := s.repo.Add(ctx, User{
		ID:        uuid.New(),
		Email:     in.Email,
		IsActive:  in.Active(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return User{}, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID.String()))
	return u, nil
}

// UpdateUser applies the non-nil fields of in to the user with id.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UserUpdate) (_ User, err error) {
	ctx, span := s.start(ctx, "update_user",
		attribute.String("user.id", id.String()),
		attribute.String("user.updates", strings.Join(in.Fields(), ",")))
	defer func() { end(span, err) }()

	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	if in.Email != nil && *in.Email != u.Email {
		if err := s.ensureEmailFree(ctx, *in.Email); err != nil {
			return User{}, err
		}
		u.Email = *in.Email
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	u.UpdatedAt = s.clock.Now()

	return s.repo.Update(ctx, u)
}

// DeleteUser removes the user with id.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := s.start(ctx, "delete_user", attribute.String("user.id", id.String()))
	defer func() { end(span, err) }()

	return s.repo.Delete(ctx, id)
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return &EmailTakenError{Email: email}
	case errors.Is(err, ErrUserNotFound):
		return nil
	default:
		return err
	}
}

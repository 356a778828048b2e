package users

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo counts Get calls that reach the wrapped repository.
type countingRepo struct {
	*fakeRepo
	gets int
}

func (c *countingRepo) Get(ctx context.Context, id uuid.UUID) (User, error) {
	c.gets++
	return c.fakeRepo.Get(ctx, id)
}

func TestCachedRepository_ReadThrough(t *testing.T) {
	u := newUser("ada@example.com", fixedNow)
	inner := &countingRepo{fakeRepo: newFakeRepo(u)}
	repo, err := NewCachedRepository(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := repo.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
	}
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, 1, repo.Len())
}

func TestCachedRepository_MissesAreNotCached(t *testing.T) {
	inner := &countingRepo{fakeRepo: newFakeRepo()}
	repo, err := NewCachedRepository(inner, 8)
	require.NoError(t, err)
	id := uuid.New()

	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 2, inner.gets)
	assert.Zero(t, repo.Len())
}

func TestCachedRepository_WritesKeepCacheInStep(t *testing.T) {
	inner := &countingRepo{fakeRepo: newFakeRepo()}
	repo, err := NewCachedRepository(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	u, err := repo.Add(ctx, newUser("ada@example.com", fixedNow))
	require.NoError(t, err)

	u.IsActive = false
	_, err = repo.Update(ctx, u)
	require.NoError(t, err)

	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Zero(t, inner.gets, "served from cache")

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err = repo.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 1, inner.gets)
}

func TestCachedRepository_FailedUpdateEvicts(t *testing.T) {
	u := newUser("ada@example.com", fixedNow)
	inner := &countingRepo{fakeRepo: newFakeRepo(u)}
	repo, err := NewCachedRepository(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Get(ctx, u.ID)
	require.NoError(t, err)
	delete(inner.users, u.ID)

	_, err = repo.Update(ctx, u)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Zero(t, repo.Len())
}

func TestNewCachedRepository_InvalidSize(t *testing.T) {
	_, err := NewCachedRepository(newFakeRepo(), 0)
	assert.Error(t, err)
}

// pausingRepo blocks its first Get after the row has been read until
// release is closed.
type pausingRepo struct {
	*fakeRepo
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingRepo) Get(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := p.fakeRepo.Get(ctx, id)
	p.once.Do(func() {
		close(p.loaded)
		<-p.release
	})
	return u, err
}

func TestCachedRepository_LoadRacingDeleteIsNotCached(t *testing.T) {
	u := newUser("ada@example.com", fixedNow)
	inner := &pausingRepo{
		fakeRepo: newFakeRepo(u),
		loaded:   make(chan struct{}),
		release:  make(chan struct{}),
	}
	repo, err := NewCachedRepository(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := repo.Get(ctx, u.ID)
		done <- err
	}()

	<-inner.loaded
	require.NoError(t, repo.Delete(ctx, u.ID))
	close(inner.release)
	require.NoError(t, <-done)

	assert.Zero(t, repo.Len())
	_, err = repo.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

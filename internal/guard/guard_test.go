package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhours/internal/apperr"
)

func TestInFlightBlocksSecondCaller(t *testing.T) {
	ctx := context.Background()
	g := NewInFlight(NewMemoryKeys(), time.Minute, nil)

	release, err := g.Acquire(ctx, "req-1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "req-1")
	assert.ErrorIs(t, err, apperr.Conflict)

	other, err := g.Acquire(ctx, "req-2")
	require.NoError(t, err)
	other()

	release()
	again, err := g.Acquire(ctx, "req-1")
	require.NoError(t, err)
	again()
}

func TestMemoryKeysExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	k := NewMemoryKeys()
	k.now = func() time.Time { return now }

	ok, err := k.SetNX(ctx, "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = k.SetNX(ctx, "a", time.Second)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	exists, _ := k.Exists(ctx, "a")
	assert.False(t, exists)
	ok, _ = k.SetNX(ctx, "a", time.Second)
	assert.True(t, ok)
}

func TestDenylist(t *testing.T) {
	ctx := context.Background()
	d := NewDenylist(NewMemoryKeys())

	revoked, err := d.Revoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	first, err := d.Revoke(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	revoked, err = d.Revoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	again, err := d.Revoke(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestNilGuardIsNoop(t *testing.T) {
	var g *InFlight
	release, err := g.Acquire(context.Background(), "x")
	require.NoError(t, err)
	release()
}

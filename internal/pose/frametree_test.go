package pose

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/erov.guidance/internal/timeutil"
)

func TestFrameTree_LookupDirectAndIndirect(t *testing.T) {
	tree := NewFrameTree(nil, 0)
	require.NoError(t, tree.Set("local_origin_ned", "erov", New(1, 2, 3, math.Pi/2)))
	require.NoError(t, tree.Set("local_origin_ned", "bluerov2_ghost", New(1, 5, 3, 0)))
	require.NoError(t, tree.Set("erov", "camera", New(0.5, 0, 0, 0)))

	got, err := tree.Lookup("local_origin_ned", "erov")
	require.NoError(t, err)
	assertPose(t, New(1, 2, 3, math.Pi/2), got)

	// camera sits 0.5 m ahead of a vehicle facing +y
	got, err = tree.Lookup("local_origin_ned", "camera")
	require.NoError(t, err)
	assertPose(t, New(1, 2.5, 3, math.Pi/2), got)

	// sibling lookup goes through the shared root
	got, err = tree.Lookup("erov", "bluerov2_ghost")
	require.NoError(t, err)
	assertPose(t, New(3, 0, 0, -math.Pi/2), got)

	got, err = tree.Lookup("erov", "erov")
	require.NoError(t, err)
	assertPose(t, Identity(), got)

	assert.Equal(t, 4, tree.Frames())
}

func TestFrameTree_Errors(t *testing.T) {
	tree := NewFrameTree(nil, 0)
	require.NoError(t, tree.Set("a", "b", Identity()))
	require.NoError(t, tree.Set("x", "y", Identity()))

	_, err := tree.Lookup("a", "missing")
	assert.True(t, errors.Is(err, ErrFrameNotFound), "got %v", err)

	_, err = tree.Lookup("b", "y")
	assert.True(t, errors.Is(err, ErrDisconnected), "got %v", err)

	assert.Error(t, tree.Set("a", "a", Identity()))
	assert.Error(t, tree.Set("", "a", Identity()))
}

func TestFrameTree_Stale(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tree := NewFrameTree(clock, 200*time.Millisecond)
	require.NoError(t, tree.SetStatic("world", "local_origin_ned", Identity()))
	require.NoError(t, tree.Set("local_origin_ned", "erov", New(1, 0, 0, 0)))

	clock.Advance(150 * time.Millisecond)
	_, err := tree.Lookup("local_origin_ned", "erov")
	require.NoError(t, err)

	clock.Advance(100 * time.Millisecond)
	_, err = tree.Lookup("local_origin_ned", "erov")
	assert.True(t, errors.Is(err, ErrStale), "got %v", err)

	// static edges never expire
	_, err = tree.Lookup("world", "local_origin_ned")
	assert.NoError(t, err)

	require.NoError(t, tree.Set("local_origin_ned", "erov", New(2, 0, 0, 0)))
	got, err := tree.Lookup("local_origin_ned", "erov")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.Position.X, tol)
}

func TestFrameTree_ReparentCycleDoesNotHang(t *testing.T) {
	tree := NewFrameTree(nil, 0)
	require.NoError(t, tree.Set("a", "b", Identity()))
	require.NoError(t, tree.Set("b", "a", Identity()))

	_, err := tree.Lookup("a", "b")
	assert.Error(t, err)
}

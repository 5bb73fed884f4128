package server

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehall/tilehall/internal/fabric"
	"github.com/tilehall/tilehall/internal/game"
	"github.com/tilehall/tilehall/internal/room"
	"github.com/tilehall/tilehall/internal/store"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// newTestGateway uses an hour-long turn timeout so advancing the mock
// clock through the disconnect grace never trips turn timers.
func newTestGateway(t *testing.T, clock quartz.Clock) *Gateway {
	t.Helper()
	opts := room.DefaultOptions()
	opts.TurnTimeout = time.Hour
	registry := room.NewRegistry(store.NewMemory(), fabric.NewHub(), clock, testLogger(), opts)
	t.Cleanup(registry.Close)
	return NewGateway(registry, clock, testLogger(), 60*time.Second)
}

func seatAndStart(t *testing.T, ctx context.Context, g *Gateway) {
	t.Helper()
	for _, p := range []struct{ id, name string }{
		{"p1", "Alice"}, {"p2", "Bob"}, {"p3", "Carol"},
	} {
		_, err := g.Join(ctx, "room-1", p.id, p.name)
		require.NoError(t, err)
	}
	require.NoError(t, g.Start(ctx, "room-1", "p1"))
}

func holeCardCount(snap game.Snapshot, playerID string) int {
	for _, pv := range snap.Players {
		if pv.ID == playerID {
			return len(pv.HoleCards)
		}
	}
	return -1
}

func TestReconnectWithinGraceKeepsSeat(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	g := newTestGateway(t, mock)
	seatAndStart(t, ctx, g)

	// p2's socket drops mid-hand.
	g.StartGrace("room-1", "p2")
	mock.Advance(30 * time.Second).MustWait(ctx)

	// p2 reconnects with their issued id before the grace expires.
	snap, err := g.Join(ctx, "room-1", "p2", "Bob")
	require.NoError(t, err)
	require.Len(t, snap.Players, 3)
	assert.Equal(t, 2, holeCardCount(snap, "p2"))

	// The original deadline passes with no effect.
	mock.Advance(60 * time.Second).MustWait(ctx)
	snap, err = g.Snapshot(ctx, "room-1", "p2")
	require.NoError(t, err)
	require.Len(t, snap.Players, 3)
	assert.Equal(t, 2, holeCardCount(snap, "p2"))
	assert.Equal(t, 30, snap.Pot)
}

func TestGraceExpiryRemovesPlayer(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	g := newTestGateway(t, mock)
	seatAndStart(t, ctx, g)

	g.StartGrace("room-1", "p2")
	mock.Advance(60 * time.Second).MustWait(ctx)

	require.Eventually(t, func() bool {
		snap, err := g.Snapshot(ctx, "room-1", "p1")
		return err == nil && len(snap.Players) == 2
	}, time.Second, 10*time.Millisecond)

	// p2's committed and remaining tiles were forfeited into the pot.
	snap, err := g.Snapshot(ctx, "room-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, -1, holeCardCount(snap, "p2"))
	assert.Greater(t, snap.Pot, 30)
}

func TestGraceRestartReplacesTimer(t *testing.T) {
	ctx := context.Background()
	mock := quartz.NewMock(t)
	g := newTestGateway(t, mock)
	seatAndStart(t, ctx, g)

	g.StartGrace("room-1", "p2")
	mock.Advance(45 * time.Second).MustWait(ctx)

	// A flapping socket restarts the grace window.
	require.True(t, g.CancelGrace("p2"))
	g.StartGrace("room-1", "p2")
	mock.Advance(45 * time.Second).MustWait(ctx)

	snap, err := g.Snapshot(ctx, "room-1", "p1")
	require.NoError(t, err)
	assert.Len(t, snap.Players, 3)
}

func TestCancelGraceWithoutTimer(t *testing.T) {
	mock := quartz.NewMock(t)
	g := newTestGateway(t, mock)
	assert.False(t, g.CancelGrace("nobody"))
}

func TestGatewayErrorCodes(t *testing.T) {
	ctx := context.Background()
	g := newTestGateway(t, quartz.NewReal())

	_, err := g.Join(ctx, "room-1", "p1", "Alice")
	require.NoError(t, err)

	err = g.Start(ctx, "room-1", "p1")
	assert.Equal(t, "need_more_players", errorCode(err))

	_, err = g.Join(ctx, "room-1", "p2", "Bob")
	require.NoError(t, err)
	require.NoError(t, g.Start(ctx, "room-1", "p1"))

	err = g.Start(ctx, "room-1", "p1")
	assert.Equal(t, "wrong_phase", errorCode(err))

	err = g.Intent(ctx, "room-1", "p2", game.Check, 0)
	assert.Equal(t, "not_your_turn", errorCode(err))

	err = g.Intent(ctx, "room-1", "p1", game.Check, 0)
	assert.Equal(t, "check_facing_bet", errorCode(err))

	err = g.Intent(ctx, "room-1", "p1", game.Commit, 99999)
	assert.Equal(t, "insufficient_tiles", errorCode(err))

	assert.Equal(t, "", errorCode(nil))
}

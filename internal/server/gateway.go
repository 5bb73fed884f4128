package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/tilehall/tilehall/internal/game"
	"github.com/tilehall/tilehall/internal/room"
)

// Gateway translates wire messages into room-actor commands and owns the
// disconnect-grace timers. One gateway serves every connection of the
// process.
type Gateway struct {
	rooms  *room.Registry
	clock  quartz.Clock
	logger *log.Logger
	grace  time.Duration

	mu          sync.Mutex
	graceTimers map[string]*quartz.Timer
}

// NewGateway creates a gateway over the given room registry.
func NewGateway(rooms *room.Registry, clock quartz.Clock, logger *log.Logger, grace time.Duration) *Gateway {
	return &Gateway{
		rooms:       rooms,
		clock:       clock,
		logger:      logger.WithPrefix("gateway"),
		grace:       grace,
		graceTimers: make(map[string]*quartz.Timer),
	}
}

// Join seats (or reattaches) the player and returns their first snapshot.
// A pending disconnect-grace timer for the player is cancelled.
func (g *Gateway) Join(ctx context.Context, roomID, playerID, nickname string) (game.Snapshot, error) {
	g.CancelGrace(playerID)
	actor, err := g.rooms.Get(ctx, roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	return actor.Join(ctx, playerID, nickname)
}

// Start begins a hand in the player's room.
func (g *Gateway) Start(ctx context.Context, roomID, playerID string) error {
	actor, err := g.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	return actor.Start(ctx, playerID)
}

// Intent applies a betting intent in the player's room.
func (g *Gateway) Intent(ctx context.Context, roomID, playerID string, kind game.IntentKind, amount int) error {
	actor, err := g.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	return actor.Intent(ctx, playerID, kind, amount)
}

// Leave removes the player from their room immediately.
func (g *Gateway) Leave(ctx context.Context, roomID, playerID string) error {
	g.CancelGrace(playerID)
	actor, err := g.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	return actor.Leave(ctx, playerID)
}

// Snapshot returns the player's current view of the room.
func (g *Gateway) Snapshot(ctx context.Context, roomID, viewerID string) (game.Snapshot, error) {
	actor, err := g.rooms.Get(ctx, roomID)
	if err != nil {
		return game.Snapshot{}, err
	}
	return actor.Snapshot(ctx, viewerID)
}

// Subscribe registers fn for the room's state updates.
func (g *Gateway) Subscribe(roomID string, fn func(state []byte)) (cancel func()) {
	return g.rooms.Subscribe(roomID, fn)
}

// StartGrace arms the disconnect-grace timer for a player whose socket
// dropped. If no reconnect cancels it, the player is removed from the
// room when it fires.
func (g *Gateway) StartGrace(roomID, playerID string) {
	if playerID == "" || roomID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.graceTimers[playerID]; ok {
		t.Stop()
	}
	g.logger.Info("disconnect grace started", "room", roomID, "player", playerID, "grace", g.grace)
	g.graceTimers[playerID] = g.clock.AfterFunc(g.grace, func() {
		g.mu.Lock()
		delete(g.graceTimers, playerID)
		g.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.logger.Info("disconnect grace expired, removing player", "room", roomID, "player", playerID)
		actor, err := g.rooms.Get(ctx, roomID)
		if err != nil {
			g.logger.Error("room lookup for grace expiry", "room", roomID, "err", err)
			return
		}
		if err := actor.Leave(ctx, playerID); err != nil {
			g.logger.Warn("grace expiry leave", "room", roomID, "player", playerID, "err", err)
		}
	})
}

// CancelGrace stops a pending disconnect-grace timer. It reports whether
// one was pending.
func (g *Gateway) CancelGrace(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.graceTimers[playerID]
	if !ok {
		return false
	}
	t.Stop()
	delete(g.graceTimers, playerID)
	g.logger.Info("disconnect grace cancelled", "player", playerID)
	return true
}

// errorCode maps a machine error to a stable wire diagnostic code.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, game.ErrCheckFacingBet):
		return "check_facing_bet"
	case errors.Is(err, game.ErrInsufficientTiles):
		return "insufficient_tiles"
	case errors.Is(err, game.ErrZeroCommit):
		return "invalid_amount"
	case errors.Is(err, game.ErrNeedMorePlayers):
		return "need_more_players"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, room.ErrClosed):
		return "room_closed"
	default:
		return "intent_rejected"
	}
}

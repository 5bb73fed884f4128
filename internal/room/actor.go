// Package room owns the live rooms of the process. Each room is an actor:
// a single goroutine consuming commands from a bounded channel, so table
// transitions never race. Persistence and fan-out happen after each
// transition, outside the state machine.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/tilehall/tilehall/internal/fabric"
	"github.com/tilehall/tilehall/internal/game"
	"github.com/tilehall/tilehall/internal/store"
)

// ErrClosed is returned for commands sent to a room that has shut down.
var ErrClosed = errors.New("room closed")

const commandBuffer = 64

// Options configures timing and stakes for new rooms.
type Options struct {
	Rules       game.Rules
	TurnTimeout time.Duration
	RevealDelay time.Duration
	TableOpts   []game.Option
}

// DefaultOptions mirrors the server defaults.
func DefaultOptions() Options {
	return Options{
		Rules:       game.DefaultRules(),
		TurnTimeout: 30 * time.Second,
		RevealDelay: 5 * time.Second,
	}
}

type result struct {
	snapshot game.Snapshot
	err      error
}

type command struct {
	run    func(*game.Table) ([]game.Effect, error)
	viewer string
	// mutate marks commands whose success must be persisted and fanned
	// out. Snapshot reads leave it false.
	mutate bool
	reply  chan result
}

// Actor serializes all access to one room's table.
type Actor struct {
	roomID string
	opts   Options

	table  *game.Table
	store  store.Store
	fabric fabric.Fabric
	clock  quartz.Clock
	logger *log.Logger

	commands chan command
	done     chan struct{}
	stopOnce sync.Once

	turnTimer    *quartz.Timer
	cleanupTimer *quartz.Timer

	mu       sync.Mutex
	lastSeen time.Time
}

// NewActor wraps an existing table and starts its command loop.
func NewActor(table *game.Table, st store.Store, fab fabric.Fabric, clock quartz.Clock, logger *log.Logger, opts Options) *Actor {
	a := &Actor{
		roomID:   table.RoomID,
		opts:     opts,
		table:    table,
		store:    st,
		fabric:   fab,
		clock:    clock,
		logger:   logger.WithPrefix("room." + table.RoomID),
		commands: make(chan command, commandBuffer),
		done:     make(chan struct{}),
		lastSeen: clock.Now(),
	}
	// A rehydrated room lost its timers with the old process; re-arm them
	// from the persisted state.
	switch {
	case table.Phase.Betting() && table.ActivePlayer() != nil:
		a.armTurnTimer(table.TurnSeq)
	case table.Phase == game.Reveal:
		a.scheduleCleanup()
	}
	go a.run()
	return a
}

// RoomID returns the room this actor owns.
func (a *Actor) RoomID() string { return a.roomID }

// storeKey is where the room's record lives in the store.
func storeKey(roomID string) string { return "room:" + roomID }

func (a *Actor) run() {
	for {
		select {
		case <-a.done:
			a.stopTimers()
			// Fail callers that raced the shutdown.
			for {
				select {
				case cmd := <-a.commands:
					if cmd.reply != nil {
						cmd.reply <- result{err: ErrClosed}
					}
				default:
					return
				}
			}
		case cmd := <-a.commands:
			a.handle(cmd)
		}
	}
}

func (a *Actor) handle(cmd command) {
	a.touch()
	effects, err := cmd.run(a.table)
	if err == nil && cmd.mutate {
		a.runEffects(effects)
		a.persistAndBroadcast()
	}
	if cmd.reply != nil {
		res := result{err: err}
		if err == nil && cmd.viewer != "" {
			res.snapshot = a.table.SnapshotFor(cmd.viewer)
		}
		cmd.reply <- res
	}
}

func (a *Actor) runEffects(effects []game.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case game.ArmTurnTimer:
			a.armTurnTimer(e.Seq)
		case game.DisarmTurnTimer:
			if a.turnTimer != nil {
				a.turnTimer.Stop()
				a.turnTimer = nil
			}
		case game.ScheduleCleanup:
			a.scheduleCleanup()
		}
	}
}

func (a *Actor) armTurnTimer(seq uint64) {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
	}
	a.turnTimer = a.clock.AfterFunc(a.opts.TurnTimeout, func() {
		a.enqueueInternal(func(t *game.Table) ([]game.Effect, error) {
			return t.ExpireTurn(seq), nil
		})
	})
}

func (a *Actor) scheduleCleanup() {
	if a.cleanupTimer != nil {
		a.cleanupTimer.Stop()
	}
	a.cleanupTimer = a.clock.AfterFunc(a.opts.RevealDelay, func() {
		a.enqueueInternal(func(t *game.Table) ([]game.Effect, error) {
			return t.FinishReveal(), nil
		})
	})
}

// enqueueInternal submits a timer-driven command. There is no caller to
// report to, so a full queue on shutdown is dropped.
func (a *Actor) enqueueInternal(run func(*game.Table) ([]game.Effect, error)) {
	select {
	case a.commands <- command{run: run, mutate: true}:
	case <-a.done:
	}
}

func (a *Actor) persistAndBroadcast() {
	data, err := a.table.Marshal()
	if err != nil {
		a.logger.Error("marshal room state", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Set(ctx, storeKey(a.roomID), data); err != nil {
		a.logger.Error("persist room state", "err", err)
	}
	if err := a.fabric.Publish(ctx, a.roomID, data); err != nil {
		a.logger.Error("broadcast room state", "err", err)
	}
}

func (a *Actor) stopTimers() {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
	if a.cleanupTimer != nil {
		a.cleanupTimer.Stop()
		a.cleanupTimer = nil
	}
}

func (a *Actor) submit(ctx context.Context, cmd command) (game.Snapshot, error) {
	cmd.reply = make(chan result, 1)
	select {
	case a.commands <- cmd:
	case <-a.done:
		return game.Snapshot{}, ErrClosed
	case <-ctx.Done():
		return game.Snapshot{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return game.Snapshot{}, ctx.Err()
	}
}

// Join seats the player (idempotent for a known id) and returns their
// view of the room.
func (a *Actor) Join(ctx context.Context, playerID, name string) (game.Snapshot, error) {
	return a.submit(ctx, command{
		run: func(t *game.Table) ([]game.Effect, error) {
			t.Join(playerID, name)
			return nil, nil
		},
		viewer: playerID,
		mutate: true,
	})
}

// Start begins a hand on behalf of the player.
func (a *Actor) Start(ctx context.Context, playerID string) error {
	_, err := a.submit(ctx, command{
		run:    func(t *game.Table) ([]game.Effect, error) { return t.Start(playerID) },
		mutate: true,
	})
	return err
}

// Intent applies a player's betting intent.
func (a *Actor) Intent(ctx context.Context, playerID string, kind game.IntentKind, amount int) error {
	_, err := a.submit(ctx, command{
		run: func(t *game.Table) ([]game.Effect, error) {
			return t.ApplyIntent(playerID, kind, amount)
		},
		mutate: true,
	})
	return err
}

// Leave removes the player from the room.
func (a *Actor) Leave(ctx context.Context, playerID string) error {
	_, err := a.submit(ctx, command{
		run:    func(t *game.Table) ([]game.Effect, error) { return t.Leave(playerID) },
		mutate: true,
	})
	return err
}

// Snapshot returns the viewer's redacted view of the room.
func (a *Actor) Snapshot(ctx context.Context, viewerID string) (game.Snapshot, error) {
	return a.submit(ctx, command{
		run:    func(t *game.Table) ([]game.Effect, error) { return nil, nil },
		viewer: viewerID,
	})
}

// PlayerCount reports the number of seated players.
func (a *Actor) PlayerCount(ctx context.Context) (int, error) {
	n := 0
	_, err := a.submit(ctx, command{
		run: func(t *game.Table) ([]game.Effect, error) {
			n = len(t.Players)
			return nil, nil
		},
	})
	return n, err
}

// Close shuts the actor down. Pending commands fail with ErrClosed.
func (a *Actor) Close() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Actor) touch() {
	a.mu.Lock()
	a.lastSeen = a.clock.Now()
	a.mu.Unlock()
}

// IdleFor reports how long the room has gone without a command.
func (a *Actor) IdleFor() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clock.Now().Sub(a.lastSeen)
}

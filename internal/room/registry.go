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

const (
	reapInterval = time.Minute
	idleTTL      = 10 * time.Minute
)

// Registry tracks the live room actors of this process and rehydrates
// rooms from the store on first access after a restart.
type Registry struct {
	store  store.Store
	fabric fabric.Fabric
	clock  quartz.Clock
	logger *log.Logger
	opts   Options

	mu    sync.Mutex
	rooms map[string]*Actor

	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry and starts the idle-room reaper.
func NewRegistry(st store.Store, fab fabric.Fabric, clock quartz.Clock, logger *log.Logger, opts Options) *Registry {
	r := &Registry{
		store:  st,
		fabric: fab,
		clock:  clock,
		logger: logger.WithPrefix("rooms"),
		opts:   opts,
		rooms:  make(map[string]*Actor),
		done:   make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// Get returns the actor for roomID, creating it if needed. A persisted
// record is loaded when present; a corrupt record is treated as absent.
func (r *Registry) Get(ctx context.Context, roomID string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rooms[roomID]; ok {
		return a, nil
	}

	table, err := r.loadTable(ctx, roomID)
	if err != nil {
		return nil, err
	}
	a := NewActor(table, r.store, r.fabric, r.clock, r.logger, r.opts)
	r.rooms[roomID] = a
	r.logger.Info("room opened", "room", roomID, "players", len(table.Players))
	return a, nil
}

func (r *Registry) loadTable(ctx context.Context, roomID string) (*game.Table, error) {
	data, err := r.store.Get(ctx, storeKey(roomID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return game.NewTable(roomID, r.opts.Rules, r.opts.TableOpts...), nil
	case err != nil:
		return nil, err
	}

	table, err := game.Unmarshal(data, r.opts.TableOpts...)
	if err != nil {
		r.logger.Warn("discarding corrupt room record", "room", roomID, "err", err)
		return game.NewTable(roomID, r.opts.Rules, r.opts.TableOpts...), nil
	}
	return table, nil
}

// Subscribe registers fn for a room's state updates.
func (r *Registry) Subscribe(roomID string, fn func(state []byte)) (cancel func()) {
	return r.fabric.Subscribe(roomID, fn)
}

func (r *Registry) reapLoop() {
	ticker := r.clock.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap closes rooms nobody has touched for idleTTL. The persisted record
// stays in the store, so a later Get rehydrates the room.
func (r *Registry) reap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.rooms {
		if a.IdleFor() >= idleTTL {
			r.logger.Info("closing idle room", "room", id)
			a.Close()
			delete(r.rooms, id)
		}
	}
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Close shuts down the reaper and every live actor.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, a := range r.rooms {
			a.Close()
			delete(r.rooms, id)
		}
	})
}

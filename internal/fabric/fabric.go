// Package fabric carries room state updates from the owning actor to every
// node with subscribed clients. The payload is the full room record;
// per-viewer redaction happens at the edge, next to each connection.
package fabric

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Fabric publishes room updates and delivers them to subscribers.
type Fabric interface {
	// Publish sends the room's state to all subscribers, on every node.
	Publish(ctx context.Context, roomID string, state []byte) error
	// Subscribe registers fn for a room's updates and returns a cancel
	// function. fn runs on the fabric's dispatch goroutine and must not
	// block.
	Subscribe(roomID string, fn func(state []byte)) (cancel func())
}

// Hub is the in-process fabric. It is both the single-node default and
// the local delivery leg of the Redis fabric.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(state []byte)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]func(state []byte))}
}

func (h *Hub) Publish(_ context.Context, roomID string, state []byte) error {
	h.mu.RLock()
	fns := make([]func([]byte), 0, len(h.subs[roomID]))
	for _, fn := range h.subs[roomID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(state)
	}
	return nil
}

func (h *Hub) Subscribe(roomID string, fn func(state []byte)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	if h.subs[roomID] == nil {
		h.subs[roomID] = make(map[int]func(state []byte))
	}
	h.subs[roomID][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[roomID], id)
		if len(h.subs[roomID]) == 0 {
			delete(h.subs, roomID)
		}
	}
}

// RedisFabric fans room updates out across nodes via Redis pub/sub. The
// publishing node does not deliver locally; it receives its own publish
// like any other node, which keeps delivery order identical everywhere.
type RedisFabric struct {
	client *redis.Client
	local  *Hub
	logger *log.Logger

	mu      sync.Mutex
	streams map[string]*roomStream
}

type roomStream struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	refs   int
}

// NewRedis creates a fabric backed by the given Redis client.
func NewRedis(client *redis.Client, logger *log.Logger) *RedisFabric {
	return &RedisFabric{
		client:  client,
		local:   NewHub(),
		logger:  logger.WithPrefix("fabric"),
		streams: make(map[string]*roomStream),
	}
}

func channelFor(roomID string) string {
	return "room:" + roomID
}

func (f *RedisFabric) Publish(ctx context.Context, roomID string, state []byte) error {
	if err := f.client.Publish(ctx, channelFor(roomID), state).Err(); err != nil {
		// Degrade to local delivery so clients on this node still see
		// the update.
		f.logger.Warn("publish failed, delivering locally", "room", roomID, "err", err)
		return f.local.Publish(ctx, roomID, state)
	}
	return nil
}

func (f *RedisFabric) Subscribe(roomID string, fn func(state []byte)) (cancel func()) {
	localCancel := f.local.Subscribe(roomID, fn)
	f.retain(roomID)

	var once sync.Once
	return func() {
		once.Do(func() {
			localCancel()
			f.release(roomID)
		})
	}
}

// retain opens the room's Redis subscription on first local subscriber.
func (f *RedisFabric) retain(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streams[roomID]; ok {
		s.refs++
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := f.client.Subscribe(ctx, channelFor(roomID))
	s := &roomStream{pubsub: pubsub, cancel: cancel, refs: 1}
	f.streams[roomID] = s

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = f.local.Publish(ctx, roomID, []byte(msg.Payload))
			}
		}
	}()
}

// release closes the Redis subscription when the last subscriber leaves.
func (f *RedisFabric) release(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[roomID]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(f.streams, roomID)
	s.cancel()
	if err := s.pubsub.Close(); err != nil {
		f.logger.Debug("pubsub close", "room", roomID, "err", err)
	}
}

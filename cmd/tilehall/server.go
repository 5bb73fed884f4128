package main

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tilehall/tilehall/cmd/tilehall/shared"
	"github.com/tilehall/tilehall/internal/deck"
	"github.com/tilehall/tilehall/internal/fabric"
	"github.com/tilehall/tilehall/internal/game"
	"github.com/tilehall/tilehall/internal/randutil"
	"github.com/tilehall/tilehall/internal/room"
	"github.com/tilehall/tilehall/internal/server"
	"github.com/tilehall/tilehall/internal/store"
)

// ServerCmd contains core server configuration
type ServerCmd struct {
	Config    string `kong:"default='tilehall.hcl',help='Path to HCL config file'"`
	Addr      string `kong:"help='Listen address override (host:port)'"`
	BrokerURL string `kong:"name='broker-url',help='Redis broker URL override'"`
	Seed      *int64 `kong:"help='Deterministic RNG seed for shuffles (optional)'"`
	Debug     bool   `kong:"help='Enable debug logging'"`
}

func (c *ServerCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.BrokerURL != "" {
		cfg.Server.BrokerURL = c.BrokerURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	addr := cfg.ListenAddr()
	if c.Addr != "" {
		addr = c.Addr
	}

	opts := room.Options{
		Rules: game.Rules{
			SmallBlind:    cfg.Game.SmallBlind,
			BigBlind:      cfg.Game.BigBlind,
			StartingTiles: cfg.Game.StartingTiles,
		},
		TurnTimeout: time.Duration(cfg.Game.TurnTimeoutMS) * time.Millisecond,
		RevealDelay: time.Duration(cfg.Game.RevealDelayMS) * time.Millisecond,
	}
	if c.Seed != nil {
		logger.Info("using deterministic shuffle seed", "seed", *c.Seed)
		opts.TableOpts = append(opts.TableOpts, game.WithDeckFactory(seededDeckFactory(*c.Seed)))
	}

	st, fab := connectBroker(cfg.Server.BrokerURL, logger)
	registry := room.NewRegistry(st, fab, quartz.NewReal(), logger, opts)
	defer registry.Close()

	grace := time.Duration(cfg.Game.DisconnectGraceMS) * time.Millisecond
	gateway := server.NewGateway(registry, quartz.NewReal(), logger, grace)
	s := server.NewServer(addr, gateway, logger)

	logger.Info("starting tilehall server",
		"addr", addr,
		"small_blind", cfg.Game.SmallBlind,
		"big_blind", cfg.Game.BigBlind,
		"starting_tiles", cfg.Game.StartingTiles,
		"turn_timeout", opts.TurnTimeout,
		"reveal_delay", opts.RevealDelay,
		"disconnect_grace", grace,
	)

	ctx := shared.SetupSignalHandler(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		return s.Stop()
	})
	return g.Wait()
}

// seededDeckFactory shares one deterministic source across every room.
// Shuffles from different room actors are serialized by the mutex.
func seededDeckFactory(seed int64) func() *deck.Deck {
	rng := randutil.New(seed)
	var mu sync.Mutex
	return func() *deck.Deck {
		mu.Lock()
		defer mu.Unlock()
		return deck.NewWithRNG(rng)
	}
}

// connectBroker picks the storage and fan-out backends. With no broker
// configured, or one that cannot be reached, the server runs single-node
// with in-memory state.
func connectBroker(brokerURL string, logger *log.Logger) (store.Store, fabric.Fabric) {
	if brokerURL == "" {
		logger.Info("no broker configured, running single-node with memory store")
		return store.NewMemory(), fabric.NewHub()
	}

	redisOpts, err := redis.ParseURL(brokerURL)
	if err != nil {
		logger.Warn("invalid broker URL, falling back to single-node mode", "err", err)
		return store.NewMemory(), fabric.NewHub()
	}

	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("broker unreachable, falling back to single-node mode", "url", brokerURL, "err", err)
		return store.NewMemory(), fabric.NewHub()
	}

	logger.Info("connected to broker", "url", brokerURL)
	return store.NewRedis(client), fabric.NewRedis(client, logger)
}

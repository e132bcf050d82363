// Command gempire runs a territory session: it generates or resumes a map,
// seeds players, drives turns and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gempireio/conquest/internal/api"
	"github.com/gempireio/conquest/internal/config"
	"github.com/gempireio/conquest/internal/engine"
	"github.com/gempireio/conquest/internal/entropy"
	"github.com/gempireio/conquest/internal/persistence"
	"github.com/gempireio/conquest/internal/relay"
	"github.com/gempireio/conquest/internal/world"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/gempire.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("gempire stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seeds := entropy.NewClient(cfg.Entropy.RandomOrgKey)
	slog.Info("Gempire starting", "config_layers", cfg.World.Layers, "players", cfg.Game.Players,
		"random_org", seeds.Enabled())

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── Session ───────────────────────────────────────────────────────
	rules := engine.Rules{
		StartCivs:     cfg.Game.StartCivs,
		StartSoldiers: cfg.Game.StartSoldiers,
		StartTiles:    cfg.Game.StartTiles,
		FogDarkening:  uint8(cfg.Game.FogDarkening),
	}
	sim, err := openSession(cfg, db, rules, seeds)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	sched := engine.NewScheduler(sim, &mu, entropy.NewSeeded(seeds.Seed()))
	sched.Human = cfg.Turns.Human
	sched.AIMin = cfg.Turns.AIMin
	sched.AIMax = cfg.Turns.AIMax
	sched.Interval = cfg.Turns.Interval

	// ── Event relay ───────────────────────────────────────────────────
	if cfg.Redis.Enabled {
		pub, err := relay.Dial(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, sim.ID)
		if err != nil {
			slog.Warn("event relay disabled", "error", err)
		} else {
			defer pub.Close()
			sim.OnEvent(pub.Enqueue)
			go pub.Run(ctx)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	srv := api.New(sim, &mu)
	srv.Sched = sched
	srv.DB = db
	srv.Addr = cfg.Server.Addr()
	srv.AdminKey = cfg.Server.AdminKey
	srv.Tokens = api.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	srv.Limiter = api.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
	srv.Start()

	sched.OnRound = func(round int) {
		if !cfg.Database.Autosave {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := db.SaveSimulation(sim); err != nil {
			slog.Error("autosave failed", "round", round, "error", err)
		}
	}

	// ── Run ───────────────────────────────────────────────────────────
	slog.Info("session running", "id", sim.ID, "round", sim.Round, "summary", sim.Summary())
	err = sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if saveErr := db.SaveSimulation(sim); saveErr != nil {
		slog.Error("final save failed", "error", saveErr)
	}
	slog.Info("session stopped", "round", sim.Round, "summary", sim.Summary())

	if errors.Is(err, context.Canceled) || errors.Is(err, engine.ErrNoPlayersAlive) {
		return nil
	}
	return err
}

// openSession resumes the stored session when allowed, otherwise generates
// a new map and seeds the players.
func openSession(cfg *config.Config, db *persistence.DB, rules engine.Rules, seeds *entropy.Client) (*engine.Simulation, error) {
	if cfg.Database.Resume {
		sim, err := db.LoadSimulation(rules, entropy.NewSeeded(seeds.Seed()))
		switch {
		case err == nil:
			return sim, nil
		case !errors.Is(err, persistence.ErrNoSnapshot):
			return nil, err
		}
		slog.Info("no saved session found, generating a new one")
	}

	seed := cfg.World.Seed
	if seed == 0 {
		seed = seeds.Seed()
	}
	gen := world.GenConfig{Layers: cfg.World.Layers, SeaLevel: uint8(cfg.World.SeaLevel), Seed: seed}
	start := time.Now()
	m := world.Generate(gen)
	land := len(m.LandTiles())
	slog.Info("map generated",
		"map", m.String(),
		"seed", seed,
		"land_tiles", humanize.Comma(int64(land)),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	for cover, n := range m.CoverCounts() {
		slog.Debug("land cover", "type", world.CoverName(cover), "count", n)
	}
	if need := cfg.Game.Players * cfg.Game.StartTiles; land < need {
		return nil, errors.New("map has too little land for the configured players; lower game.players or world.sea_level")
	}

	sim := engine.NewSimulation(m, rules, entropy.NewSeeded(seed+1))
	if err := sim.SeedPlayers(cfg.Game.Players, cfg.Game.Humans); err != nil {
		return nil, err
	}
	if err := db.SaveMeta("entropy_source", entropySource(seeds)); err != nil {
		slog.Warn("save meta", "error", err)
	}
	return sim, nil
}

func entropySource(c *entropy.Client) string {
	if c.Enabled() {
		return "random.org"
	}
	return "crypto/rand"
}

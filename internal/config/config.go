package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	World    WorldConfig    `yaml:"world"`
	Game     GameConfig     `yaml:"game"`
	Turns    TurnConfig     `yaml:"turns"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Entropy  EntropyConfig  `yaml:"entropy"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AdminKey  string `yaml:"admin_key"`
	RateLimit int    `yaml:"rate_limit"` // actions per minute per IP
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorldConfig holds map generation settings
type WorldConfig struct {
	Layers   int   `yaml:"layers"`
	SeaLevel int   `yaml:"sea_level"`
	Seed     int64 `yaml:"seed"` // 0 draws a fresh seed
}

// GameConfig holds session setup rules
type GameConfig struct {
	Players       int `yaml:"players"`
	Humans        int `yaml:"humans"`
	StartCivs     int `yaml:"start_civs"`
	StartSoldiers int `yaml:"start_soldiers"`
	StartTiles    int `yaml:"start_tiles"`
	FogDarkening  int `yaml:"fog_darkening"`
}

// TurnConfig holds scheduler timing
type TurnConfig struct {
	Human    time.Duration `yaml:"human"`
	AIMin    time.Duration `yaml:"ai_min"`
	AIMax    time.Duration `yaml:"ai_max"`
	Interval time.Duration `yaml:"interval"`
}

// JWTConfig holds player token settings
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

// RedisConfig holds event relay settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// DatabaseConfig holds snapshot storage settings
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	Autosave bool   `yaml:"autosave"`
	Resume   bool   `yaml:"resume"` // load the stored session at startup if one exists
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// EntropyConfig holds seed source settings
type EntropyConfig struct {
	RandomOrgKey string `yaml:"random_org_key"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Database.Autosave = true
	cfg.Database.Resume = true
	cfg.applyDefaults()
	return &cfg
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 120
	}
	if c.World.Layers == 0 {
		c.World.Layers = 100
	}
	if c.World.SeaLevel == 0 {
		c.World.SeaLevel = 35
	}
	if c.Game.Players == 0 {
		c.Game.Players = 6
	}
	if c.Game.StartCivs == 0 {
		c.Game.StartCivs = 100
	}
	if c.Game.StartSoldiers == 0 {
		c.Game.StartSoldiers = 20
	}
	if c.Game.StartTiles == 0 {
		c.Game.StartTiles = 7
	}
	if c.Game.FogDarkening == 0 {
		c.Game.FogDarkening = 12
	}
	if c.Turns.Human == 0 {
		c.Turns.Human = 30 * time.Second
	}
	if c.Turns.AIMin == 0 {
		c.Turns.AIMin = 500 * time.Millisecond
	}
	if c.Turns.AIMax == 0 {
		c.Turns.AIMax = 2 * time.Second
	}
	if c.Turns.Interval == 0 {
		c.Turns.Interval = 300 * time.Millisecond
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "gempire"
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "gempire:events"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/gempire.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMPIRE_ADMIN_KEY"); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv("GEMPIRE_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		c.Entropy.RandomOrgKey = v
	}
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.RateLimit > 0, "server.rate_limit must be positive")
	check(c.World.Layers >= 1, "world.layers must be at least 1, got %d", c.World.Layers)
	check(c.World.SeaLevel >= 1 && c.World.SeaLevel < 255, "world.sea_level must be in [1, 254], got %d", c.World.SeaLevel)
	check(c.Game.Players >= 1 && c.Game.Players <= 255, "game.players must be in [1, 255], got %d", c.Game.Players)
	check(c.Game.Humans >= 0 && c.Game.Humans <= c.Game.Players, "game.humans must be in [0, players], got %d", c.Game.Humans)
	check(c.Game.StartTiles >= 1, "game.start_tiles must be at least 1")
	check(c.Game.StartCivs >= 0 && c.Game.StartCivs <= 65535, "game.start_civs out of range")
	check(c.Game.StartSoldiers >= 0 && c.Game.StartSoldiers <= 65535, "game.start_soldiers out of range")
	check(c.Game.StartCivs+c.Game.StartSoldiers > 0, "players need starting units")
	check(c.Game.FogDarkening >= 0 && c.Game.FogDarkening <= 255, "game.fog_darkening must be in [0, 255]")
	tiles := 3*c.World.Layers*(c.World.Layers+1) + 1
	check(c.Game.Players*c.Game.StartTiles <= tiles/2, "%d players with %d tiles each do not fit on %d tiles",
		c.Game.Players, c.Game.StartTiles, tiles)
	check(c.Turns.AIMin <= c.Turns.AIMax, "turns.ai_min exceeds turns.ai_max")
	check(c.Turns.Human > 0 && c.Turns.Interval > 0, "turn durations must be positive")
	if c.Redis.Enabled {
		check(c.Redis.Channel != "", "redis.channel required when redis is enabled")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", name, err)
	}
	return level, nil
}

package app

import (
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"

	"emberfall/server/internal/hub"
	"emberfall/server/internal/ingest"
	"emberfall/server/internal/world"
)

// Config is the full set of relay knobs, populated from EMBERFALL_* env
// vars over the defaults below. Every anti-cheat threshold is configurable
// so tests and deployments never depend on hardcoded values.
type Config struct {
	Port     int    `config:"EMBERFALL_PORT"`
	LogLevel string `config:"EMBERFALL_LOG_LEVEL"`

	TickRate     int `config:"EMBERFALL_TICK_RATE"`
	GraceSeconds int `config:"EMBERFALL_GRACE_SECONDS"`
	JoinTimeout  int `config:"EMBERFALL_JOIN_TIMEOUT_SECONDS"`

	MaxSpeed        float64 `config:"EMBERFALL_MAX_SPEED"`
	MoveRate        float64 `config:"EMBERFALL_MOVE_RATE"`
	MaxDamagePerHit float64 `config:"EMBERFALL_MAX_DAMAGE_PER_HIT"`
	MaxViolations   int     `config:"EMBERFALL_MAX_VIOLATIONS"`

	ChatHistoryCap int `config:"EMBERFALL_CHAT_HISTORY_CAP"`
	ChatMaxLen     int `config:"EMBERFALL_CHAT_MAX_LEN"`

	EnemyCount          int `config:"EMBERFALL_ENEMY_COUNT"`
	EnemyRespawnSeconds int `config:"EMBERFALL_ENEMY_RESPAWN_SECONDS"`
}

// DefaultConfig returns the reference deployment settings.
func DefaultConfig() Config {
	return Config{
		Port:                3000,
		LogLevel:            "info",
		TickRate:            20,
		GraceSeconds:        30,
		JoinTimeout:         10,
		EnemyCount:          8,
		EnemyRespawnSeconds: 10,
	}
}

// LoadConfig layers env vars over the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "load config from env")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, eris.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

func (cfg Config) worldConfig() world.Config {
	return world.Config{
		ChatHistoryCap:    cfg.ChatHistoryCap,
		EnemyRespawnDelay: time.Duration(cfg.EnemyRespawnSeconds) * time.Second,
	}
}

func (cfg Config) ingestConfig() ingest.Config {
	return ingest.Config{
		MaxSpeed:        cfg.MaxSpeed,
		MoveRate:        cfg.MoveRate,
		MaxDamagePerHit: cfg.MaxDamagePerHit,
		ChatMaxLen:      cfg.ChatMaxLen,
		MaxViolations:   cfg.MaxViolations,
	}
}

func (cfg Config) hubConfig() hub.Config {
	return hub.Config{
		TickRate:    cfg.TickRate,
		GracePeriod: time.Duration(cfg.GraceSeconds) * time.Second,
		JoinTimeout: time.Duration(cfg.JoinTimeout) * time.Second,
		ChatReplay:  cfg.ChatHistoryCap,
	}
}

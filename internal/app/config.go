package app

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
	} `toml:"server"`

	Auth struct {
		RedisURL         string `toml:"redis_url"`
		TokenHeader      string `toml:"token_header"`
		TokenKeyTemplate string `toml:"token_key_template"`
	} `toml:"auth"`

	API struct {
		TeamIDHeader string `toml:"team_id_header"`
	} `toml:"api"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Koth struct {
		TakeoverNeedsProof bool `toml:"takeover_needs_proof"`
		AccrualSweepSecs   int  `toml:"accrual_sweep_seconds"`
	} `toml:"koth"`

	Leaderboard struct {
		DebounceMillis  int  `toml:"debounce_millis"`
		RefreshSeconds  int  `toml:"refresh_seconds"`
		PublishSnapshot bool `toml:"publish_snapshot"`
	} `toml:"leaderboard"`

	Reconcile struct {
		SweepSeconds int `toml:"sweep_seconds"`
	} `toml:"reconcile"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("server port is not specified in config, use a value like :9999")
	}
	if config.API.TeamIDHeader == "" {
		config.API.TeamIDHeader = "X-Team-ID"
	}
	if config.Leaderboard.DebounceMillis <= 0 {
		config.Leaderboard.DebounceMillis = 500
	}
	if config.Leaderboard.RefreshSeconds <= 0 {
		config.Leaderboard.RefreshSeconds = 5
	}
	if config.Koth.AccrualSweepSecs <= 0 {
		config.Koth.AccrualSweepSecs = 60
	}
	if config.Reconcile.SweepSeconds <= 0 {
		config.Reconcile.SweepSeconds = 300
	}

	logger.Debug.Printf("Loaded config: staleness bound is %s", config.StalenessBound())

	return &config, nil
}

func (c *Config) LeaderboardDebounce() time.Duration {
	return time.Duration(c.Leaderboard.DebounceMillis) * time.Millisecond
}

func (c *Config) LeaderboardRefresh() time.Duration {
	return time.Duration(c.Leaderboard.RefreshSeconds) * time.Second
}

// StalenessBound is the worst case a leaderboard read may lag committed
// state: one debounce window plus one safety-net refresh interval. A
// constant derived from config, so operators can reason about it.
func (c *Config) StalenessBound() time.Duration {
	return c.LeaderboardDebounce() + c.LeaderboardRefresh()
}

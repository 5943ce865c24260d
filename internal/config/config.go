package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		WSURL       string `yaml:"ws_url"`
		APIURL      string `yaml:"api_url"`
		DialTimeout string `yaml:"dial_timeout"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Game struct {
		RoundsPerGame  int    `yaml:"rounds_per_game"`
		AdvanceDelay   string `yaml:"advance_delay"`
		XPRefreshDelay string `yaml:"xp_refresh_delay"`
		BurstTTL       string `yaml:"burst_ttl"`
	} `yaml:"game"`
	Roster struct {
		EligibilityCooldown string `yaml:"eligibility_cooldown"`
	} `yaml:"roster"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty/invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// RoundsPerGame returns the scheduled round count, defaulting to 5.
func (c Config) RoundsPerGame() int {
	if c.Game.RoundsPerGame > 0 {
		return c.Game.RoundsPerGame
	}
	return 5
}

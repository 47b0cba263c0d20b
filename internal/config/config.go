package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-game-service/internal/app"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
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
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		MaxParticipants   int    `yaml:"maxParticipants"`
		QuestionCountdown string `yaml:"questionCountdown"`
		LockTTL           string `yaml:"lockTTL"`
		LockTimeout       string `yaml:"lockTimeout"`
		JobPollInterval   string `yaml:"jobPollInterval"`
		PublishWorkers    int    `yaml:"publishWorkers"`
		PublishBuffer     int    `yaml:"publishBuffer"`
	} `yaml:"game"`
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

// GameOptions turns the game section into engine options, keeping defaults
// for anything left empty.
func (c Config) GameOptions() app.Options {
	opts := app.DefaultOptions()
	if c.Game.MaxParticipants > 0 {
		opts.MaxParticipants = c.Game.MaxParticipants
	}
	if c.Game.PublishWorkers > 0 {
		opts.PublishWorkers = c.Game.PublishWorkers
	}
	if c.Game.PublishBuffer > 0 {
		opts.PublishBuffer = c.Game.PublishBuffer
	}
	opts.QuestionCountdown = TTLDuration(c.Game.QuestionCountdown, opts.QuestionCountdown)
	opts.LockTTL = TTLDuration(c.Game.LockTTL, opts.LockTTL)
	opts.LockTimeout = TTLDuration(c.Game.LockTimeout, opts.LockTimeout)
	return opts
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

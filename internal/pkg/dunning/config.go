package dunning

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

type Config struct {
	Workers          int
	DefaultCooldown  time.Duration
	ScheduleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:          4,
		DefaultCooldown:  72 * time.Hour,
		ScheduleInterval: 60 * time.Minute,
	}
}

// LoadConfig reads DUNNING_WORKERS, DUNNING_COOLDOWN_HOURS and DUNNING_SCHEDULE_MINUTES.
func LoadConfig() (*Config, error) {
	def := DefaultConfig()
	cfg := &Config{
		Workers:          env.GetEnvInt("DUNNING_WORKERS", def.Workers),
		DefaultCooldown:  time.Duration(env.GetEnvInt("DUNNING_COOLDOWN_HOURS", int(def.DefaultCooldown.Hours()))) * time.Hour,
		ScheduleInterval: time.Duration(env.GetEnvInt("DUNNING_SCHEDULE_MINUTES", int(def.ScheduleInterval.Minutes()))) * time.Minute,
	}
	if cfg.Workers < 1 {
		return nil, errors.New("DUNNING_WORKERS must be at least 1")
	}
	if cfg.DefaultCooldown <= 0 {
		return nil, errors.New("DUNNING_COOLDOWN_HOURS must be positive")
	}
	if cfg.ScheduleInterval < 0 {
		return nil, errors.New("DUNNING_SCHEDULE_MINUTES must not be negative")
	}
	return cfg, nil
}

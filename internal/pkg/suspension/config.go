package suspension

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

// Config points at the VoIP platform's provisioning API.
type Config struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		BaseURL:     env.GetEnv("VOIP_BASE_URL", ""),
		APIKey:      env.GetEnv("VOIP_API_KEY", ""),
		CallTimeout: time.Duration(env.GetEnvInt("VOIP_TIMEOUT_SECONDS", 15)) * time.Second,
	}
	if cfg.BaseURL == "" {
		if !env.IsDev() {
			return nil, errors.New("VOIP_BASE_URL is required outside APP_ENV=dev")
		}
		return cfg, nil
	}
	if cfg.APIKey == "" {
		return nil, errors.New("VOIP_API_KEY is required when VOIP_BASE_URL is set")
	}
	return cfg, nil
}

// Enabled reports whether a provisioning API is configured.
func (c *Config) Enabled() bool {
	return c.BaseURL != ""
}

package notify

import (
	"time"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

// Config controls outgoing communication.
type Config struct {
	SMSBaseURL  string
	SMSAPIKey   string
	SMSFrom     string
	CallTimeout time.Duration
	CompanyName string
}

func LoadConfig() Config {
	return Config{
		SMSBaseURL:  env.GetEnv("SMS_BASE_URL", ""),
		SMSAPIKey:   env.GetEnv("SMS_API_KEY", ""),
		SMSFrom:     env.GetEnv("SMS_FROM", ""),
		CallTimeout: time.Duration(env.GetEnvInt("NOTIFY_TIMEOUT_SECONDS", 10)) * time.Second,
		CompanyName: env.GetEnv("APP_NAME", "CollectFox"),
	}
}

// SMSEnabled reports whether an SMS gateway is configured.
func (c Config) SMSEnabled() bool {
	return c.SMSBaseURL != ""
}

package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func LoadSendGridConfig() SendGridConfig {
	return SendGridConfig{
		APIKey:    env.GetEnv("SENDGRID_API_KEY", ""),
		FromEmail: env.GetEnv("SENDGRID_FROM_EMAIL", "billing@localhost"),
		FromName:  env.GetEnv("SENDGRID_FROM_NAME", "Billing"),
	}
}

// Enabled reports whether an API key is configured.
func (c SendGridConfig) Enabled() bool {
	return c.APIKey != ""
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends emails through the SendGrid v3 API.
type SendGridMailer struct {
	cfg    SendGridConfig
	client sendGridClient
}

func NewSendGridMailer(cfg SendGridConfig) *SendGridMailer {
	return &SendGridMailer{cfg: cfg, client: sendgrid.NewSendClient(cfg.APIKey)}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	from := sgmail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	message := sgmail.NewSingleEmail(from, subject, sgmail.NewEmail("", to), "", htmlBody)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return "", &SendError{Err: fmt.Errorf("sendgrid: %w", err)}
	}
	if resp.StatusCode >= 300 {
		permanent := resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests
		log.Errorf("[Mail] SendGrid rejected mail to %s: %d %s", to, resp.StatusCode, resp.Body)
		return "", &SendError{Err: fmt.Errorf("sendgrid: status %d", resp.StatusCode), Permanent: permanent}
	}

	ref := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		ref = ids[0]
	}
	return "sendgrid:" + ref, nil
}

// NewFromEnv picks SendGrid when configured and falls back to SMTP.
func NewFromEnv() Sender {
	if cfg := LoadSendGridConfig(); cfg.Enabled() {
		log.Infof("[Mail] Using SendGrid for outgoing email")
		return NewSendGridMailer(cfg)
	}
	log.Infof("[Mail] Using SMTP for outgoing email")
	return NewSMTPMailer(LoadSMTPConfig())
}

// Package alerts pushes collection events that need an operator to Slack.
package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/slack-go/slack"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

const (
	KindComplianceBlocked = "compliance_blocked"
	KindCampaignFailures  = "campaign_failures"
	KindSuspensionFailed  = "suspension_failed"
)

// maxDetailBlocks keeps messages under Slack's block limit.
const maxDetailBlocks = 40

type Alert struct {
	Kind       string
	TenantID   uint
	AccountID  uint
	CampaignID uint
	Summary    string
	Details    []string
}

// Notifier delivers operator alerts. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type Config struct {
	WebhookURL string
	Channel    string
}

func LoadConfig() Config {
	return Config{
		WebhookURL: env.GetEnv("SLACK_WEBHOOK_URL", ""),
		Channel:    env.GetEnv("SLACK_CHANNEL", ""),
	}
}

// New returns a Slack notifier, or a no-op when no webhook is configured.
func New(cfg Config) Notifier {
	if cfg.WebhookURL == "" {
		log.Info("[Alerts] SLACK_WEBHOOK_URL not set, operator alerts are only logged")
		return LogNotifier{}
	}
	return NewSlackNotifier(cfg)
}

type SlackNotifier struct {
	cfg  Config
	post func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

func NewSlackNotifier(cfg Config) *SlackNotifier {
	return &SlackNotifier{cfg: cfg, post: slack.PostWebhookContext}
}

func (s *SlackNotifier) Notify(ctx context.Context, alert Alert) error {
	if err := s.post(ctx, s.cfg.WebhookURL, s.message(alert)); err != nil {
		return fmt.Errorf("post slack alert: %w", err)
	}
	return nil
}

func (s *SlackNotifier) message(alert Alert) *slack.WebhookMessage {
	blocks := []slack.Block{
		slack.NewHeaderBlock(&slack.TextBlockObject{
			Type: slack.PlainTextType,
			Text: title(alert.Kind),
		}),
		slack.NewSectionBlock(&slack.TextBlockObject{Type: slack.MarkdownType, Text: alert.Summary}, nil, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			{Type: slack.MarkdownType, Text: fmt.Sprintf("*Tenant:* %d", alert.TenantID)},
			{Type: slack.MarkdownType, Text: fmt.Sprintf("*Account:* %s", idOrDash(alert.AccountID))},
			{Type: slack.MarkdownType, Text: fmt.Sprintf("*Campaign:* %s", idOrDash(alert.CampaignID))},
		}, nil),
	}
	if len(alert.Details) > 0 {
		blocks = append(blocks, slack.NewDividerBlock())
	}

	var overflow []string
	for i, d := range alert.Details {
		if i < maxDetailBlocks {
			blocks = append(blocks, slack.NewSectionBlock(&slack.TextBlockObject{Type: slack.MarkdownType, Text: d}, nil, nil))
			continue
		}
		overflow = append(overflow, d)
	}

	msg := &slack.WebhookMessage{
		Channel: s.cfg.Channel,
		Text:    alert.Summary,
		Blocks:  &slack.Blocks{BlockSet: blocks},
	}
	if len(overflow) > 0 {
		msg.Attachments = []slack.Attachment{{Text: strings.Join(overflow, "\n")}}
	}
	return msg
}

func title(kind string) string {
	switch kind {
	case KindComplianceBlocked:
		return "Collection action blocked by compliance"
	case KindCampaignFailures:
		return "Dunning campaign finished with failures"
	case KindSuspensionFailed:
		return "Service suspension failed"
	default:
		return "Collections alert"
	}
}

func idOrDash(id uint) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}

// LogNotifier writes alerts to the log only.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, alert Alert) error {
	log.Warnf("[Alerts] %s tenant=%d account=%d campaign=%d: %s",
		alert.Kind, alert.TenantID, alert.AccountID, alert.CampaignID, alert.Summary)
	return nil
}

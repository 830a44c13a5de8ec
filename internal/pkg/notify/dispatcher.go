// Package notify delivers dunning messages over email, SMS, the customer
// portal and printed letters.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/template/html/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/mail"
	"github.com/ManuelReschke/CollectFox/internal/pkg/retry"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultTemplate = "default"

// Message is one outgoing contact.
type Message struct {
	Scope       tenant.Scope
	Account     models.Account
	Channel     string
	Template    string
	Subject     string
	Outstanding decimal.Decimal
	DaysOverdue int
	ReferenceID uint
}

// Delivery is the result of a successful send.
type Delivery struct {
	Channel string
	Ref     string
	SentAt  time.Time
}

// Sender is what the campaign executor needs from the dispatcher.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Delivery, error)
}

// Dispatcher routes messages to the channel implementations.
type Dispatcher struct {
	mailer        mail.Sender
	sms           SMSSender
	notifications repository.NotificationRepository
	engine        *html.Engine
	cfg           Config
	policy        retry.Policy
	now           func() time.Time
}

func NewDispatcher(mailer mail.Sender, sms SMSSender, notifications repository.NotificationRepository, cfg Config) (*Dispatcher, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load message templates: %w", err)
	}
	if sms == nil {
		sms = disabledSMS{}
	}
	return &Dispatcher{
		mailer:        mailer,
		sms:           sms,
		notifications: notifications,
		engine:        engine,
		cfg:           cfg,
		policy:        retry.DefaultPolicy,
		now:           time.Now,
	}, nil
}

// WithRetryPolicy overrides the retry policy, mostly for tests.
func (d *Dispatcher) WithRetryPolicy(p retry.Policy) *Dispatcher {
	d.policy = p
	return d
}

// Send delivers msg. Transient provider failures are retried with the
// dispatcher's policy; each attempt gets its own timeout.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (*Delivery, error) {
	op := "notify." + msg.Channel
	if msg.Subject == "" {
		msg.Subject = fmt.Sprintf("%s: payment reminder", d.cfg.CompanyName)
	}

	var ref string
	err := retry.Do(ctx, d.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeoutFor(d.cfg.CallTimeout))
		defer cancel()

		var err error
		ref, err = d.sendOnce(callCtx, op, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Delivery{Channel: msg.Channel, Ref: ref, SentAt: d.now()}, nil
}

func (d *Dispatcher) sendOnce(ctx context.Context, op string, msg Message) (string, error) {
	switch msg.Channel {
	case models.ChannelEmail:
		if msg.Account.Email == "" {
			return "", apperr.Validation(op, "account %d has no email address", msg.Account.ID)
		}
		body, err := d.render(msg)
		if err != nil {
			return "", apperr.Internal(op, err)
		}
		ref, err := d.mailer.Send(ctx, msg.Account.Email, msg.Subject, body)
		if err != nil {
			return "", apperr.External(op, err, !mail.IsPermanent(err))
		}
		return ref, nil

	case models.ChannelSMS:
		if msg.Account.Phone == "" {
			return "", apperr.Validation(op, "account %d has no phone number", msg.Account.ID)
		}
		ref, err := d.sms.SendSMS(ctx, msg.Account.Phone, d.smsText(msg))
		if err != nil {
			return "", apperr.External(op, err, smsTransient(err))
		}
		return ref, nil

	case models.ChannelPortal, models.ChannelLetter:
		body, err := d.render(msg)
		if err != nil {
			return "", apperr.Internal(op, err)
		}
		n := &models.Notification{
			AccountID:   msg.Account.ID,
			Type:        notificationType(msg.Channel),
			Subject:     msg.Subject,
			Content:     body,
			ReferenceID: msg.ReferenceID,
		}
		if err := d.notifications.Create(msg.Scope, n); err != nil {
			return "", apperr.External(op, err, true)
		}
		return fmt.Sprintf("notification:%d", n.ID), nil

	default:
		return "", apperr.Validation(op, "unsupported channel %q", msg.Channel)
	}
}

func (d *Dispatcher) render(msg Message) (string, error) {
	name := msg.Template
	if name == "" || d.engine.Templates.Lookup(name) == nil {
		if name != "" {
			log.Debugf("[Notify] Template %q not found, using default", name)
		}
		name = defaultTemplate
	}
	var buf bytes.Buffer
	if err := d.engine.Render(&buf, name, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *Dispatcher) smsText(msg Message) string {
	text := fmt.Sprintf("%s: your account has an overdue balance of %s (%d days). Please pay via the customer portal.",
		d.cfg.CompanyName, msg.Outstanding.StringFixed(2), msg.DaysOverdue)
	if strings.Contains(msg.Template, "final") {
		text = "FINAL NOTICE. " + text
	}
	return text
}

func smsTransient(err error) bool {
	if errors.Is(err, ErrSMSDisabled) {
		return false
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Transient()
	}
	// network failures and timeouts
	return true
}

func notificationType(channel string) string {
	if channel == models.ChannelLetter {
		return models.NotificationTypeLetter
	}
	return models.NotificationTypePortal
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// SMSSender sends a text message and returns the gateway's message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// ErrSMSDisabled is returned when no SMS gateway is configured.
var ErrSMSDisabled = errors.New("sms gateway is not configured")

// GatewayError is a non-2xx answer of the SMS gateway.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("sms gateway returned %d: %s", e.Status, e.Body)
}

// Transient reports whether retrying may help.
func (e *GatewayError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type smsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HTTPSMSSender posts messages to a REST SMS gateway.
type HTTPSMSSender struct {
	client *resty.Client
	from   string
}

func NewHTTPSMSSender(cfg Config) *HTTPSMSSender {
	client := resty.New().
		SetBaseURL(cfg.SMSBaseURL).
		SetTimeout(cfg.CallTimeout).
		SetAuthToken(cfg.SMSAPIKey).
		SetHeader("Accept", "application/json")
	return &HTTPSMSSender{client: client, from: cfg.SMSFrom}
}

func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	var out smsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(smsRequest{To: to, From: s.from, Body: body}).
		SetResult(&out).
		Post("/messages")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &GatewayError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.ID, nil
}

type disabledSMS struct{}

func (disabledSMS) SendSMS(context.Context, string, string) (string, error) {
	return "", ErrSMSDisabled
}

// timeoutFor bounds one attempt.
func timeoutFor(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

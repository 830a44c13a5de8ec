package retry

import (
	"context"
	"time"

	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func(ctx context.Context) error

// Policy bounds the retry loop. Attempts counts the first call.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy is used for collaborator calls (email, SMS, gateway, provisioning).
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}

// Do executes op and retries it only while the error is transient.
// Business rejections, validation errors and anything unclassified return immediately.
func Do(ctx context.Context, p Policy, op Operation) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !apperr.IsTransient(err) || attempt == p.Attempts-1 {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.delay(attempt)):
		}
	}
	return err
}

// delay grows linearly with the attempt number and is capped at MaxDelay.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt+1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

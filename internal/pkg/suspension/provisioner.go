package suspension

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
)

// Provisioner changes the state of a provisioned service line.
type Provisioner interface {
	Suspend(ctx context.Context, line models.ServiceLine) error
	// Restrict blocks outbound calling but keeps emergency calling and PSAP callback.
	Restrict(ctx context.Context, line models.ServiceLine) error
	Reactivate(ctx context.Context, line models.ServiceLine) error
	// VerifyReachable asks the platform whether emergency calling works on the line.
	VerifyReachable(ctx context.Context, line models.ServiceLine) (bool, error)
}

type lineCommand struct {
	ServiceClass string   `json:"service_class"`
	Keep         []string `json:"keep,omitempty"`
}

type reachability struct {
	Reachable bool   `json:"reachable"`
	PSAP      string `json:"psap,omitempty"`
}

// RESTProvisioner talks to the VoIP platform over its REST API.
type RESTProvisioner struct {
	client *resty.Client
}

func NewRESTProvisioner(cfg *Config) *RESTProvisioner {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")
	return &RESTProvisioner{client: client}
}

func (p *RESTProvisioner) Suspend(ctx context.Context, line models.ServiceLine) error {
	return p.command(ctx, "suspend", line, nil)
}

func (p *RESTProvisioner) Restrict(ctx context.Context, line models.ServiceLine) error {
	return p.command(ctx, "restrict", line, []string{"e911", "psap_callback"})
}

func (p *RESTProvisioner) Reactivate(ctx context.Context, line models.ServiceLine) error {
	return p.command(ctx, "reactivate", line, nil)
}

func (p *RESTProvisioner) VerifyReachable(ctx context.Context, line models.ServiceLine) (bool, error) {
	var out reachability
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/lines/%s/e911", url.PathEscape(line.Identifier)))
	if err != nil {
		return false, apperr.External("voip.verify", err, true)
	}
	if resp.IsError() {
		return false, statusError("voip.verify", resp)
	}
	return out.Reachable, nil
}

func (p *RESTProvisioner) command(ctx context.Context, action string, line models.ServiceLine, keep []string) error {
	op := "voip." + action
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(lineCommand{ServiceClass: line.ServiceClass, Keep: keep}).
		Post(fmt.Sprintf("/lines/%s/%s", url.PathEscape(line.Identifier), action))
	if err != nil {
		return apperr.External(op, err, true)
	}
	if resp.IsError() {
		return statusError(op, resp)
	}
	return nil
}

func statusError(op string, resp *resty.Response) error {
	transient := resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests
	return apperr.External(op, fmt.Errorf("provisioning API returned %d: %s", resp.StatusCode(), resp.String()), transient)
}

// LogProvisioner only logs. It is used in development when no platform is configured.
type LogProvisioner struct{}

func (LogProvisioner) Suspend(_ context.Context, line models.ServiceLine) error {
	log.Infof("[Suspension] (dry run) suspend %s %s", line.ServiceClass, line.Identifier)
	return nil
}

func (LogProvisioner) Restrict(_ context.Context, line models.ServiceLine) error {
	log.Infof("[Suspension] (dry run) restrict %s %s, E911 kept", line.ServiceClass, line.Identifier)
	return nil
}

func (LogProvisioner) Reactivate(_ context.Context, line models.ServiceLine) error {
	log.Infof("[Suspension] (dry run) reactivate %s %s", line.ServiceClass, line.Identifier)
	return nil
}

func (LogProvisioner) VerifyReachable(context.Context, models.ServiceLine) (bool, error) {
	return true, nil
}

// NewProvisioner returns the REST provisioner, or the dry-run one when disabled.
func NewProvisioner(cfg *Config) Provisioner {
	if cfg.Enabled() {
		return NewRESTProvisioner(cfg)
	}
	log.Warn("[Suspension] VOIP_BASE_URL not set, provisioning runs in dry-run mode")
	return LogProvisioner{}
}

package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/dunning"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

var errCampaignCancelled = errors.New("campaign run was cancelled")

// CampaignRunner executes a dunning campaign.
type CampaignRunner interface {
	ExecuteCampaign(ctx context.Context, scope tenant.Scope, campaignID uint) (*dunning.CampaignResult, error)
}

// CampaignHandler runs execute_campaign jobs. Per-account failures are part
// of the result and do not fail the job; a cancelled run is retried.
func CampaignHandler(runner CampaignRunner) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := ExecuteCampaignPayloadFromMap(job.Payload)
		if err != nil || payload.TenantID == 0 || payload.CampaignID == 0 {
			return apperr.Validation("jobqueue.campaign", "bad payload: %v", job.Payload)
		}
		result, err := runner.ExecuteCampaign(ctx, tenant.New(payload.TenantID), payload.CampaignID)
		if err != nil {
			return err
		}
		if result.Cancelled {
			return errCampaignCancelled
		}
		log.Infof("[JobQueue] Campaign %d (tenant %d, %s): %d targeted, %d processed, %d actions, %d blocked, %d failed",
			payload.CampaignID, payload.TenantID, payload.Trigger, result.ClientsTargeted, result.ClientsProcessed,
			result.ActionsCreated, result.ActionsBlocked, result.Failures)
		return nil
	}
}

// MarkOverdueHandler runs mark_overdue jobs.
func MarkOverdueHandler(invoices repository.InvoiceRepository, now func() time.Time) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := MarkOverduePayloadFromMap(job.Payload)
		if err != nil || payload.TenantID == 0 {
			return apperr.Validation("jobqueue.overdue", "bad payload: %v", job.Payload)
		}
		n, err := invoices.MarkOverdue(tenant.New(payload.TenantID), now())
		if err != nil {
			return err
		}
		if n > 0 {
			log.Infof("[JobQueue] Marked %d invoice(s) overdue for tenant %d", n, payload.TenantID)
		}
		return nil
	}
}

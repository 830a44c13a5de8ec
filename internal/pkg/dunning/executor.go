// Package dunning runs dunning campaigns: it selects overdue accounts, picks
// their escalation path by risk and sends every due step through the
// compliance gate and the communication service.
package dunning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/alerts"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/compliance"
	"github.com/ManuelReschke/CollectFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CollectFox/internal/pkg/notify"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

// RiskAssessor scores a loaded account.
type RiskAssessor interface {
	AssessAccount(ctx context.Context, scope tenant.Scope, account *models.Account) (*risk.Assessment, error)
}

// Approver is the compliance gate as seen by the executor.
type Approver interface {
	Approve(ctx context.Context, scope tenant.Scope, accountID uint, channel string) (*compliance.Report, error)
	EnsureDisclosures(ctx context.Context, scope tenant.Scope, accountID uint) ([]models.ComplianceDocument, error)
}

// AccountOutcome is the result for one targeted account.
type AccountOutcome struct {
	AccountID      uint            `json:"account_id"`
	State          AccountState    `json:"state"`
	Path           string          `json:"path,omitempty"`
	RiskLevel      risk.Level      `json:"risk_level,omitempty"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	DaysOverdue    int             `json:"days_overdue"`
	ActionsCreated int             `json:"actions_created"`
	ActionsBlocked int             `json:"actions_blocked"`
	StepsSkipped   int             `json:"steps_skipped"`
	Error          string          `json:"error,omitempty"`

	err error
}

type CampaignResult struct {
	CampaignID       uint             `json:"campaign_id"`
	Success          bool             `json:"success"`
	Cancelled        bool             `json:"cancelled"`
	ClientsTargeted  int              `json:"clients_targeted"`
	ClientsProcessed int              `json:"clients_processed"`
	ActionsCreated   int              `json:"actions_created"`
	ActionsBlocked   int              `json:"actions_blocked"`
	Failures         int              `json:"failures"`
	Outcomes         []AccountOutcome `json:"outcomes"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`

	// Err aggregates the per-account failures.
	Err error `json:"-"`
}

// target is an account selected for a run.
type target struct {
	accountID   uint
	outstanding decimal.Decimal
	daysOverdue int
}

type Executor struct {
	repos   *repository.Repositories
	risk    RiskAssessor
	gate    Approver
	sender  notify.Sender
	alerts  alerts.Notifier
	metrics *metrics.CollectionMetrics
	cfg     Config
	now     func() time.Time
}

func NewExecutor(repos *repository.Repositories, assessor RiskAssessor, gate Approver, sender notify.Sender, cfg Config) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Executor{
		repos:  repos,
		risk:   assessor,
		gate:   gate,
		sender: sender,
		alerts: alerts.LogNotifier{},
		cfg:    cfg,
		now:    time.Now,
	}
}

func (e *Executor) WithAlerts(n alerts.Notifier) *Executor {
	e.alerts = n
	return e
}

func (e *Executor) WithMetrics(m *metrics.CollectionMetrics) *Executor {
	e.metrics = m
	return e
}

func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// ExecuteCampaign runs one campaign for the scope's tenant. Per-account
// failures are reported in the result; the returned error is only set when
// the run could not start.
func (e *Executor) ExecuteCampaign(ctx context.Context, scope tenant.Scope, campaignID uint) (*CampaignResult, error) {
	const op = "dunning.execute"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}

	campaign, err := e.repos.Campaign.GetByID(scope, campaignID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "campaign %d not found", campaignID)
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if !campaign.Active {
		return nil, apperr.Validation(op, "campaign %d is not active", campaignID)
	}
	if err := campaign.Validate(); err != nil {
		return nil, apperr.Validation(op, "campaign %d: %v", campaignID, err)
	}

	now := e.now()
	result := &CampaignResult{CampaignID: campaign.ID, StartedAt: now}

	targets, err := e.selectTargets(scope, campaign, now)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	result.ClientsTargeted = len(targets)
	log.Infof("[Dunning] Campaign %d (tenant %d): %d accounts targeted", campaign.ID, scope.TenantID, len(targets))

	outcomes := make([]*AccountOutcome, len(targets))
	var cancelled atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for i, t := range targets {
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		i, t := i, t
		g.Go(func() error {
			// the slot may have opened after cancellation
			if ctx.Err() != nil {
				cancelled.Store(true)
				return nil
			}
			outcomes[i] = e.processAccount(ctx, scope, campaign, t, now)
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		result.Outcomes = append(result.Outcomes, *o)
		result.ActionsCreated += o.ActionsCreated
		result.ActionsBlocked += o.ActionsBlocked
		if o.State == StateFailed {
			result.Failures++
			errs = multierror.Append(errs, fmt.Errorf("account %d: %w", o.AccountID, o.err))
			continue
		}
		result.ClientsProcessed++
	}
	result.Err = errs.ErrorOrNil()
	result.Cancelled = cancelled.Load() || ctx.Err() != nil
	result.Success = !result.Cancelled
	result.FinishedAt = e.now()

	e.metrics.CampaignFinished(runLabel(result), result.FinishedAt.Sub(result.StartedAt))
	if result.Failures > 0 {
		e.alertFailures(ctx, scope, result)
	}
	log.Infof("[Dunning] Campaign %d finished: processed=%d actions=%d blocked=%d failures=%d cancelled=%t",
		campaign.ID, result.ClientsProcessed, result.ActionsCreated, result.ActionsBlocked, result.Failures, result.Cancelled)
	return result, nil
}

// selectTargets groups collectible invoices by account and keeps accounts
// whose oldest invoice passed the trigger and whose overdue total reaches
// the campaign minimum.
func (e *Executor) selectTargets(scope tenant.Scope, campaign *models.DunningCampaign, now time.Time) ([]target, error) {
	invoices, err := e.repos.Invoice.ListCollectible(scope, now)
	if err != nil {
		return nil, err
	}

	byAccount := map[uint]*target{}
	for i := range invoices {
		inv := &invoices[i]
		t, ok := byAccount[inv.AccountID]
		if !ok {
			t = &target{accountID: inv.AccountID, outstanding: decimal.Zero}
			byAccount[inv.AccountID] = t
		}
		t.outstanding = t.outstanding.Add(inv.Outstanding())
		if d := inv.DaysOverdue(now); d > t.daysOverdue {
			t.daysOverdue = d
		}
	}

	var out []target
	for _, t := range byAccount {
		if t.daysOverdue < campaign.TriggerDaysOverdue || t.outstanding.LessThan(campaign.MinimumAmount) || !t.outstanding.IsPositive() {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].accountID < out[j].accountID })
	return out, nil
}

// choosePath maps the campaign strategy and the account risk to a sequence path.
func choosePath(strategy string, level risk.Level) string {
	switch strategy {
	case models.RiskStrategyAccelerated:
		return models.SequencePathAccelerated
	case models.RiskStrategyRiskBased:
		if level.AtLeast(risk.LevelHigh) {
			return models.SequencePathAccelerated
		}
	}
	return models.SequencePathStandard
}

func (e *Executor) cooldownFor(campaign *models.DunningCampaign) time.Duration {
	if campaign.CooldownHours > 0 {
		return time.Duration(campaign.CooldownHours) * time.Hour
	}
	return e.cfg.DefaultCooldown
}

func (e *Executor) processAccount(ctx context.Context, scope tenant.Scope, campaign *models.DunningCampaign, t target, now time.Time) *AccountOutcome {
	machine := newAccountMachine()
	outcome := &AccountOutcome{AccountID: t.accountID, Outstanding: t.outstanding, DaysOverdue: t.daysOverdue}

	fail := func(err error) *AccountOutcome {
		_ = machine.Fire(triggerFail)
		outcome.State = stateOf(machine)
		outcome.err = err
		outcome.Error = err.Error()
		log.Warnf("[Dunning] Campaign %d account %d failed: %v", campaign.ID, t.accountID, err)
		return outcome
	}

	account, err := e.repos.Account.GetByID(scope, t.accountID)
	if err != nil {
		return fail(apperr.Internal("dunning.account", err))
	}
	assessment, err := e.risk.AssessAccount(ctx, scope, account)
	if err != nil {
		return fail(err)
	}
	outcome.RiskLevel = assessment.Level
	outcome.Path = choosePath(campaign.RiskStrategy, assessment.Level)
	_ = machine.Fire(triggerQueue)

	// state may have changed since selection
	outstanding, err := e.currentOutstanding(scope, account.ID, now)
	if err != nil {
		return fail(apperr.Internal("dunning.outstanding", err))
	}
	if !outstanding.IsPositive() {
		_ = machine.Fire(triggerResolve)
		outcome.State = stateOf(machine)
		return outcome
	}
	cooldown := e.cooldownFor(campaign)
	last, err := e.repos.Action.LastSentForCampaign(scope, account.ID, campaign.ID)
	if err != nil {
		return fail(apperr.Internal("dunning.last_action", err))
	}
	if last != nil {
		// a payment pauses the sequence for one cooldown window, then it resumes
		since := last.CreatedAt
		if window := now.Add(-cooldown); window.After(since) {
			since = window
		}
		paid, err := e.repos.Payment.HasCompletedSince(scope, account.ID, since)
		if err != nil {
			return fail(apperr.Internal("dunning.payments", err))
		}
		if paid {
			_ = machine.Fire(triggerRespond)
			outcome.State = stateOf(machine)
			return outcome
		}
	}

	if _, err := e.gate.EnsureDisclosures(ctx, scope, account.ID); err != nil {
		return fail(err)
	}

	daysPastTrigger := t.daysOverdue - campaign.TriggerDaysOverdue
	escalate := outcome.Path == models.SequencePathAccelerated

	for _, step := range campaign.StepsFor(outcome.Path) {
		if step.DaysAfterTrigger > daysPastTrigger {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		sent, err := e.runStep(ctx, scope, campaign, account, assessment.Level, step, outstanding, t.daysOverdue, cooldown)
		switch {
		case errors.Is(err, errCooldown):
			outcome.StepsSkipped++
			continue
		case apperr.Is(err, apperr.KindComplianceBlocked):
			outcome.ActionsBlocked++
			continue
		case err != nil:
			return fail(err)
		}
		if sent {
			outcome.ActionsCreated++
			_ = machine.Fire(triggerSend)
			if step.Escalate {
				escalate = true
			}
		}
	}

	if escalate {
		if ok, _ := machine.CanFire(triggerEscalate); ok {
			_ = machine.Fire(triggerEscalate)
		}
	}
	outcome.State = stateOf(machine)
	return outcome
}

var errCooldown = errors.New("step is cooling down")

// runStep sends one step. It returns errCooldown when the step was sent
// recently and a compliance_blocked error when the gate refused it.
func (e *Executor) runStep(ctx context.Context, scope tenant.Scope, campaign *models.DunningCampaign, account *models.Account,
	level risk.Level, step models.DunningSequenceStep, outstanding decimal.Decimal, daysOverdue int, cooldown time.Duration) (bool, error) {

	now := e.now()
	last, err := e.repos.Action.LastSentForStep(scope, account.ID, campaign.ID, step.ID)
	if err != nil {
		return false, apperr.Internal("dunning.cooldown", err)
	}
	if last != nil && now.Sub(last.CreatedAt) < cooldown {
		return false, errCooldown
	}

	key := fmt.Sprintf("dunning:cooldown:%d:%d:%d:%d", scope.TenantID, campaign.ID, account.ID, step.ID)
	claimed, err := e.repos.Claim.Claim(ctx, key, cooldown)
	if err != nil {
		// the database check above still prevents sequential duplicates
		log.Warnf("[Dunning] Cooldown claim %s unavailable: %v", key, err)
		claimed = true
	}
	if !claimed {
		return false, errCooldown
	}
	release := func() {
		if err := e.repos.Claim.Release(context.Background(), key); err != nil {
			log.Debugf("[Dunning] Releasing claim %s: %v", key, err)
		}
	}

	action := &models.DunningAction{
		AccountID:  account.ID,
		CampaignID: campaign.ID,
		StepID:     step.ID,
		StepNumber: step.StepNumber,
		Path:       step.Path,
		Channel:    step.Channel,
		Template:   step.Template,
		RiskLevel:  string(level),
	}

	report, err := e.gate.Approve(ctx, scope, account.ID, step.Channel)
	if err != nil {
		release()
		if !apperr.Is(err, apperr.KindComplianceBlocked) {
			return false, err
		}
		action.Status = models.ActionStatusBlocked
		if report != nil {
			action.Detail = strings.Join(report.Failed(), ", ")
		}
		if recErr := e.record(scope, action); recErr != nil {
			return false, recErr
		}
		log.Infof("[Dunning] Step %s/%d for account %d blocked: %s", step.Path, step.StepNumber, account.ID, action.Detail)
		e.notify(ctx, alerts.Alert{
			Kind:       alerts.KindComplianceBlocked,
			TenantID:   scope.TenantID,
			AccountID:  account.ID,
			CampaignID: campaign.ID,
			Summary:    fmt.Sprintf("%s step %d blocked: %s", step.Channel, step.StepNumber, action.Detail),
		})
		return false, err
	}

	delivery, err := e.sender.Send(ctx, notify.Message{
		Scope:       scope,
		Account:     *account,
		Channel:     step.Channel,
		Template:    step.Template,
		Outstanding: outstanding,
		DaysOverdue: daysOverdue,
		ReferenceID: campaign.ID,
	})
	if err != nil {
		release()
		action.Status = models.ActionStatusFailed
		action.Detail = err.Error()
		if recErr := e.record(scope, action); recErr != nil {
			log.Errorf("[Dunning] Recording failed action for account %d: %v", account.ID, recErr)
		}
		return false, err
	}

	action.Status = models.ActionStatusSent
	action.DeliveryRef = delivery.Ref
	if err := e.record(scope, action); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) record(scope tenant.Scope, action *models.DunningAction) error {
	action.CreatedAt = e.now()
	if err := e.repos.Action.Create(scope, action); err != nil {
		return apperr.Internal("dunning.record", err)
	}
	e.metrics.ActionRecorded(action.Channel, action.Status)
	return nil
}

// currentOutstanding re-reads the account's collectible balance.
func (e *Executor) currentOutstanding(scope tenant.Scope, accountID uint, now time.Time) (decimal.Decimal, error) {
	invoices, err := e.repos.Invoice.ListUnpaid(scope, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range invoices {
		if invoices[i].PaymentPlanID != nil || !invoices[i].DueDate.Before(now) {
			continue
		}
		total = total.Add(invoices[i].Outstanding())
	}
	return total, nil
}

func (e *Executor) alertFailures(ctx context.Context, scope tenant.Scope, result *CampaignResult) {
	var details []string
	for _, o := range result.Outcomes {
		if o.State == StateFailed {
			details = append(details, fmt.Sprintf("account %d: %s", o.AccountID, o.Error))
		}
	}
	e.notify(ctx, alerts.Alert{
		Kind:       alerts.KindCampaignFailures,
		TenantID:   scope.TenantID,
		CampaignID: result.CampaignID,
		Summary:    fmt.Sprintf("%d of %d accounts failed", result.Failures, result.ClientsTargeted),
		Details:    details,
	})
}

func (e *Executor) notify(ctx context.Context, alert alerts.Alert) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Notify(context.WithoutCancel(ctx), alert); err != nil {
		log.Warnf("[Dunning] Operator alert failed: %v", err)
	}
}

func runLabel(r *CampaignResult) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Failures > 0:
		return "partial"
	default:
		return "completed"
	}
}

package dunning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/alerts"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/compliance"
	"github.com/ManuelReschke/CollectFox/internal/pkg/notify"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/ManuelReschke/CollectFox/internal/pkg/testdb"
)

// 15:00 UTC, inside every quiet-hours window
var now = time.Date(2026, 6, 15, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type memClaims struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memClaims) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memClaims) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []notify.Message
	failOn map[uint]error
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) (*notify.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[msg.Account.ID]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, msg)
	return &notify.Delivery{Channel: msg.Channel, Ref: fmt.Sprintf("ref-%d", len(f.sent)), SentAt: now}, nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (r *recordingAlerts) Notify(_ context.Context, a alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerts) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type fixture struct {
	repos  *repository.Repositories
	scope  tenant.Scope
	claims *memClaims
	sender *fakeSender
	alerts *recordingAlerts
	exec   *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testdb.Open(t))
	claims := &memClaims{keys: map[string]bool{}}
	repos.Claim = claims

	renderer, err := compliance.NewRenderer()
	require.NoError(t, err)
	gate := compliance.NewGate(repos, compliance.DefaultRegistry(), renderer).WithClock(clock)
	engine := risk.NewEngine(repos.Account, repos.Invoice, risk.DefaultConfig()).WithClock(clock)

	sender := &fakeSender{failOn: map[uint]error{}}
	rec := &recordingAlerts{}
	exec := NewExecutor(repos, engine, gate, sender, DefaultConfig()).
		WithClock(clock).
		WithAlerts(rec)
	return &fixture{repos: repos, scope: tenant.New(1), claims: claims, sender: sender, alerts: rec, exec: exec}
}

func (f *fixture) account(t *testing.T, name string, smsOptIn bool) *models.Account {
	t.Helper()
	a := &models.Account{
		Name: name, Email: "billing@" + name + ".example", Phone: "+15550100",
		Jurisdiction: "US", Timezone: "UTC", EmailOptIn: true, SMSOptIn: smsOptIn,
		CreatedAt: now.AddDate(-2, 0, 0),
	}
	require.NoError(t, f.repos.Account.Create(f.scope, a))
	return a
}

func (f *fixture) overdue(t *testing.T, accountID uint, amount string, days int) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		AccountID: accountID, Number: fmt.Sprintf("INV-%d-%d", accountID, days),
		Amount: decimal.RequireFromString(amount), DueDate: now.AddDate(0, 0, -days),
		Status: models.InvoiceStatusOverdue,
	}
	require.NoError(t, f.repos.Invoice.Create(f.scope, inv))
	return inv
}

func (f *fixture) campaign(t *testing.T, strategy string) *models.DunningCampaign {
	t.Helper()
	c := &models.DunningCampaign{
		Name:               "Net-30 follow up",
		TriggerDaysOverdue: 30,
		MinimumAmount:      decimal.RequireFromString("100"),
		RiskStrategy:       strategy,
		Active:             true,
		Steps: []models.DunningSequenceStep{
			{Path: models.SequencePathStandard, StepNumber: 1, Channel: models.ChannelEmail, Template: "reminder", DaysAfterTrigger: 0},
			{Path: models.SequencePathStandard, StepNumber: 2, Channel: models.ChannelPortal, Template: "second_notice", DaysAfterTrigger: 7},
			{Path: models.SequencePathStandard, StepNumber: 3, Channel: models.ChannelLetter, Template: "final_notice", DaysAfterTrigger: 14},
			{Path: models.SequencePathStandard, StepNumber: 4, Channel: models.ChannelEmail, Template: "final_notice", DaysAfterTrigger: 30},
			{Path: models.SequencePathAccelerated, StepNumber: 1, Channel: models.ChannelSMS, Template: "reminder", DaysAfterTrigger: 0},
			{Path: models.SequencePathAccelerated, StepNumber: 2, Channel: models.ChannelEmail, Template: "suspension_warning", DaysAfterTrigger: 3},
		},
	}
	require.NoError(t, f.repos.Campaign.Create(f.scope, c))
	return c
}

func TestExecuteStandardScenario(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "acme", false)
	f.overdue(t, acc.ID, "500.00", 45)
	c := f.campaign(t, models.RiskStrategyStandard)

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.ClientsProcessed)
	assert.Zero(t, res.Failures)
	// 45 days overdue is 15 past the trigger: steps at 0, 7 and 14 are due
	assert.Equal(t, 3, res.ActionsCreated)

	actions, err := f.repos.Action.ListByAccount(f.scope, acc.ID)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	for i, a := range actions {
		assert.Equal(t, models.SequencePathStandard, a.Path)
		assert.Equal(t, i+1, a.StepNumber)
		assert.Equal(t, models.ActionStatusSent, a.Status)
		assert.NotEmpty(t, a.DeliveryRef)
	}

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StateActionSent, res.Outcomes[0].State)
	assert.Equal(t, models.SequencePathStandard, res.Outcomes[0].Path)

	docs, err := f.repos.Document.DocTypes(f.scope, acc.ID)
	require.NoError(t, err)
	assert.Contains(t, docs, models.DocumentValidationNotice)
}

func TestExecuteRespectsCooldown(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "acme", false)
	f.overdue(t, acc.ID, "500.00", 45)
	c := f.campaign(t, models.RiskStrategyStandard)

	_, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)

	// a second run inside the cooldown, also with the Redis claims gone
	f.claims.keys = map[string]bool{}
	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)
	assert.Zero(t, res.ActionsCreated)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, 3, res.Outcomes[0].StepsSkipped)
	assert.Len(t, f.sender.sent, 3)
}

func TestExecuteSkipsStepClaimedByConcurrentRun(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "acme", false)
	f.overdue(t, acc.ID, "500.00", 31)
	c := f.campaign(t, models.RiskStrategyStandard)

	key := fmt.Sprintf("dunning:cooldown:%d:%d:%d:%d", f.scope.TenantID, c.ID, acc.ID, c.StepsFor(models.SequencePathStandard)[0].ID)
	f.claims.keys[key] = true

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)
	assert.Zero(t, res.ActionsCreated)
	assert.Equal(t, 1, res.Outcomes[0].StepsSkipped)
}

func TestExecuteOneFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, models.RiskStrategyStandard)

	var broken *models.Account
	for i := 0; i < 5; i++ {
		acc := f.account(t, fmt.Sprintf("client%d", i), false)
		f.overdue(t, acc.ID, "250.00", 31)
		if i == 2 {
			broken = acc
		}
	}
	f.sender.failOn[broken.ID] = apperr.External("notify.email", errors.New("550 mailbox unavailable"), false)

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, res.ClientsTargeted)
	assert.Equal(t, 4, res.ClientsProcessed)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 4, res.ActionsCreated)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), fmt.Sprintf("account %d", broken.ID))

	for _, o := range res.Outcomes {
		if o.AccountID == broken.ID {
			assert.Equal(t, StateFailed, o.State)
			assert.NotEmpty(t, o.Error)
		} else {
			assert.Equal(t, StateActionSent, o.State)
		}
	}

	actions, err := f.repos.Action.ListByAccount(f.scope, broken.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionStatusFailed, actions[0].Status)
	assert.Contains(t, f.alerts.kinds(), alerts.KindCampaignFailures)
}

func TestExecuteRecordsComplianceBlock(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "nosms", false)
	f.overdue(t, acc.ID, "800.00", 35)
	c := f.campaign(t, models.RiskStrategyAccelerated)

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)

	// SMS without consent is blocked by TCPA, the email step still goes out
	assert.Equal(t, 1, res.ActionsBlocked)
	assert.Equal(t, 1, res.ActionsCreated)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StateEscalated, res.Outcomes[0].State)

	actions, err := f.repos.Action.ListByAccount(f.scope, acc.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, models.ActionStatusBlocked, actions[0].Status)
	assert.Contains(t, actions[0].Detail, "TCPA")
	assert.Equal(t, models.ActionStatusSent, actions[1].Status)
	assert.Contains(t, f.alerts.kinds(), alerts.KindComplianceBlocked)
}

func TestExecuteTargeting(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, models.RiskStrategyStandard)

	small := f.account(t, "small", false)
	f.overdue(t, small.ID, "40.00", 60)

	recent := f.account(t, "recent", false)
	f.overdue(t, recent.ID, "900.00", 10)

	planned := f.account(t, "planned", false)
	inv := f.overdue(t, planned.ID, "900.00", 60)
	_, err := f.repos.Invoice.AssignPlan(f.scope, planned.ID, []uint{inv.ID}, 77)
	require.NoError(t, err)

	several := f.account(t, "several", false)
	f.overdue(t, several.ID, "60.00", 40)
	f.overdue(t, several.ID, "60.00", 5)

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, several.ID, res.Outcomes[0].AccountID)
	assert.Equal(t, "120.00", res.Outcomes[0].Outstanding.StringFixed(2))
}

func TestExecuteStopsAfterCustomerResponded(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "payer", false)
	f.overdue(t, acc.ID, "500.00", 45)
	c := f.campaign(t, models.RiskStrategyStandard)

	steps := c.StepsFor(models.SequencePathStandard)
	require.NoError(t, f.repos.Action.Create(f.scope, &models.DunningAction{
		AccountID: acc.ID, CampaignID: c.ID, StepID: steps[0].ID, StepNumber: 1,
		Path: models.SequencePathStandard, Channel: models.ChannelEmail, Template: "reminder",
		Status: models.ActionStatusSent, CreatedAt: now.AddDate(0, 0, -5),
	}))
	processed := now.AddDate(0, 0, -1)
	require.NoError(t, f.repos.Payment.Create(f.scope, &models.Payment{
		AccountID: acc.ID, Amount: decimal.RequireFromString("100"), Method: models.PaymentMethodCard,
		Status: models.PaymentStatusCompleted, ProcessedAt: &processed,
	}))

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StateResponded, res.Outcomes[0].State)
	assert.Zero(t, res.ActionsCreated)
	assert.Empty(t, f.sender.sent)
}

func TestExecuteResumesSequenceAfterResponseWindow(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "partial", false)
	// 75 days overdue is 45 past the trigger, so the final step at 30 is due
	f.overdue(t, acc.ID, "500.00", 75)
	c := f.campaign(t, models.RiskStrategyStandard)

	steps := c.StepsFor(models.SequencePathStandard)
	for _, step := range steps[:3] {
		require.NoError(t, f.repos.Action.Create(f.scope, &models.DunningAction{
			AccountID: acc.ID, CampaignID: c.ID, StepID: step.ID, StepNumber: step.StepNumber,
			Path: step.Path, Channel: step.Channel, Template: step.Template,
			Status: models.ActionStatusSent, CreatedAt: now.AddDate(0, 0, -20),
		}))
	}
	// a token payment well outside the 72h cooldown does not silence the account
	processed := now.AddDate(0, 0, -10)
	require.NoError(t, f.repos.Payment.Create(f.scope, &models.Payment{
		AccountID: acc.ID, Amount: decimal.RequireFromString("10"), Method: models.PaymentMethodCard,
		Status: models.PaymentStatusCompleted, ProcessedAt: &processed,
	}))

	res, err := f.exec.ExecuteCampaign(context.Background(), f.scope, c.ID)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.NotEqual(t, StateResponded, res.Outcomes[0].State)

	actions, err := f.repos.Action.ListByAccount(f.scope, acc.ID)
	require.NoError(t, err)
	var finalSent bool
	for _, a := range actions {
		if a.StepNumber == 4 && a.Status == models.ActionStatusSent {
			finalSent = true
		}
	}
	assert.True(t, finalSent, "final notice goes out once the response window has passed")
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "acme", false)
	f.overdue(t, acc.ID, "500.00", 45)
	c := f.campaign(t, models.RiskStrategyStandard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.exec.ExecuteCampaign(ctx, f.scope, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.False(t, res.Success)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, f.sender.sent)
}

func TestExecuteRejectsUnknownOrInactiveCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec.ExecuteCampaign(context.Background(), f.scope, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	c := f.campaign(t, models.RiskStrategyStandard)
	_, err = f.exec.ExecuteCampaign(context.Background(), tenant.New(2), c.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	inactive := &models.DunningCampaign{Name: "paused", RiskStrategy: models.RiskStrategyStandard}
	require.NoError(t, f.repos.Campaign.Create(f.scope, inactive))
	_, err = f.exec.ExecuteCampaign(context.Background(), f.scope, inactive.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestChoosePath(t *testing.T) {
	tests := []struct {
		strategy string
		level    risk.Level
		want     string
	}{
		{models.RiskStrategyStandard, risk.LevelSevere, models.SequencePathStandard},
		{models.RiskStrategyAccelerated, risk.LevelLow, models.SequencePathAccelerated},
		{models.RiskStrategyRiskBased, risk.LevelMedium, models.SequencePathStandard},
		{models.RiskStrategyRiskBased, risk.LevelHigh, models.SequencePathAccelerated},
		{models.RiskStrategyRiskBased, risk.LevelSevere, models.SequencePathAccelerated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, choosePath(tt.strategy, tt.level), "%s/%s", tt.strategy, tt.level)
	}
}

func TestAccountMachine(t *testing.T) {
	m := newAccountMachine()
	require.NoError(t, m.Fire(triggerQueue))
	require.NoError(t, m.Fire(triggerSend))
	require.NoError(t, m.Fire(triggerSend))
	require.NoError(t, m.Fire(triggerEscalate))
	assert.Equal(t, StateEscalated, stateOf(m))
	assert.Error(t, m.Fire(triggerSend), "escalated is terminal")

	m = newAccountMachine()
	assert.Error(t, m.Fire(triggerSend), "accounts are queued before contact")
}

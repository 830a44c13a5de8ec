package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/dunning"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/ManuelReschke/CollectFox/internal/pkg/testdb"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ExecuteCampaign(ctx context.Context, scope tenant.Scope, campaignID uint) (*dunning.CampaignResult, error) {
	args := m.Called(ctx, scope, campaignID)
	result, _ := args.Get(0).(*dunning.CampaignResult)
	return result, args.Error(1)
}

func TestCampaignHandler(t *testing.T) {
	job := &Job{Payload: ExecuteCampaignPayload{TenantID: 2, CampaignID: 5, Trigger: "api"}.ToMap()}

	runner := new(mockRunner)
	runner.On("ExecuteCampaign", mock.Anything, tenant.New(2), uint(5)).
		Return(&dunning.CampaignResult{Success: true, Failures: 1}, nil).Once()
	require.NoError(t, CampaignHandler(runner)(context.Background(), job), "account failures do not fail the job")

	runner.On("ExecuteCampaign", mock.Anything, tenant.New(2), uint(5)).
		Return(&dunning.CampaignResult{Cancelled: true}, nil).Once()
	assert.ErrorIs(t, CampaignHandler(runner)(context.Background(), job), errCampaignCancelled)

	runner.On("ExecuteCampaign", mock.Anything, tenant.New(2), uint(5)).
		Return(nil, apperr.NotFound("dunning.execute", "campaign 5 not found")).Once()
	err := CampaignHandler(runner)(context.Background(), job)
	assert.False(t, retryable(err))
	runner.AssertExpectations(t)

	bad := &Job{Payload: map[string]interface{}{"campaign_id": 5}}
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(CampaignHandler(runner)(context.Background(), bad)))
	runner.AssertNumberOfCalls(t, "ExecuteCampaign", 3)
}

func TestMarkOverdueHandler(t *testing.T) {
	repos := repository.NewRepositories(testdb.Open(t))
	scope := tenant.New(1)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	account := &models.Account{Name: "Redwood Vet"}
	require.NoError(t, repos.Account.Create(scope, account))
	past := &models.Invoice{AccountID: account.ID, Number: "A", Amount: decimal.NewFromInt(10),
		DueDate: now.AddDate(0, 0, -1), Status: models.InvoiceStatusSent}
	future := &models.Invoice{AccountID: account.ID, Number: "B", Amount: decimal.NewFromInt(10),
		DueDate: now.AddDate(0, 0, 5), Status: models.InvoiceStatusSent}
	require.NoError(t, repos.Invoice.Create(scope, past))
	require.NoError(t, repos.Invoice.Create(scope, future))

	h := MarkOverdueHandler(repos.Invoice, func() time.Time { return now })
	require.NoError(t, h(context.Background(), &Job{Payload: MarkOverduePayload{TenantID: 1}.ToMap()}))

	invoices, err := repos.Invoice.ListByAccount(scope, account.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, models.InvoiceStatusOverdue, invoices[0].Status)
	assert.Equal(t, models.InvoiceStatusSent, invoices[1].Status)

	err = h(context.Background(), &Job{Payload: map[string]interface{}{}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

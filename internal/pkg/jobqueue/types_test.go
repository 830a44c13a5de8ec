package jobqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCampaignPayloadSurvivesJobEncoding(t *testing.T) {
	job := Job{ID: "j1", Type: JobTypeExecuteCampaign,
		Payload: ExecuteCampaignPayload{TenantID: 4, CampaignID: 12, Trigger: "schedule"}.ToMap()}

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// numbers come back as float64
	assert.IsType(t, float64(0), decoded.Payload["campaign_id"])

	p, err := ExecuteCampaignPayloadFromMap(decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint(4), p.TenantID)
	assert.Equal(t, uint(12), p.CampaignID)
	assert.Equal(t, "schedule", p.Trigger)
}

func TestJobLifecycle(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 2}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("timeout")
	assert.True(t, job.IsRetryable())
	job.MarkAsRetrying()
	assert.False(t, job.IsRetryable())

	job.MarkAsFailed("timeout")
	assert.Equal(t, 2, job.RetryCount)
	assert.False(t, job.IsRetryable())

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	assert.NotNil(t, job.CompletedAt)
}

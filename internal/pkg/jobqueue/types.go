package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeExecuteCampaign JobType = "execute_campaign"
	JobTypeMarkOverdue     JobType = "mark_overdue"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ExecuteCampaignPayload runs one campaign of one tenant.
type ExecuteCampaignPayload struct {
	TenantID   uint   `json:"tenant_id"`
	CampaignID uint   `json:"campaign_id"`
	Trigger    string `json:"trigger"` // "schedule" or "api"
}

func (p ExecuteCampaignPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   p.TenantID,
		"campaign_id": p.CampaignID,
		"trigger":     p.Trigger,
	}
}

func ExecuteCampaignPayloadFromMap(data map[string]interface{}) (*ExecuteCampaignPayload, error) {
	var payload ExecuteCampaignPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// MarkOverduePayload flips a tenant's sent invoices past due to overdue.
type MarkOverduePayload struct {
	TenantID uint `json:"tenant_id"`
}

func (p MarkOverduePayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"tenant_id": p.TenantID}
}

func MarkOverduePayloadFromMap(data map[string]interface{}) (*MarkOverduePayload, error) {
	var payload MarkOverduePayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// decodePayload round-trips through JSON; payload maps come back from Redis
// with float64 numbers.
func decodePayload(data map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}

package jobqueue

import (
	"encoding/json"
	"time"
)

type JobType string

const (
	JobTypeSendOrderEmail  JobType = "send_order_email"
	JobTypeArchiveScanLogs JobType = "archive_scan_logs"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is the unit stored under the queue namespace. Payload holds the
// typed payload of the job type as a JSON object.
type Job struct {
	ID            string                 `json:"id"`
	Type          JobType                `json:"type"`
	Status        JobStatus              `json:"status"`
	Payload       map[string]interface{} `json:"payload"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	ProcessedAt   *time.Time             `json:"processed_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
	ErrorMsg      string                 `json:"error_msg,omitempty"`
	RetryCount    int                    `json:"retry_count"`
	MaxRetries    int                    `json:"max_retries"`
}

// SendOrderEmailJobPayload points at the outbox row to deliver. The mail is
// rendered from the database when the job runs, never from the payload.
type SendOrderEmailJobPayload struct {
	NotificationID uint `json:"notification_id"`
	OrderID        uint `json:"order_id"`
}

func (p SendOrderEmailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"notification_id": p.NotificationID,
		"order_id":        p.OrderID,
	}
}

func SendOrderEmailJobPayloadFromMap(data map[string]interface{}) (*SendOrderEmailJobPayload, error) {
	var payload SendOrderEmailJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// ArchiveScanLogsJobPayload names the event whose scan log is exported
type ArchiveScanLogsJobPayload struct {
	EventID     uint   `json:"event_id"`
	EventUUID   string `json:"event_uuid"`
	RequestedBy uint   `json:"requested_by,omitempty"`
}

func (p ArchiveScanLogsJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"event_id":   p.EventID,
		"event_uuid": p.EventUUID,
	}
	if p.RequestedBy != 0 {
		m["requested_by"] = p.RequestedBy
	}
	return m
}

func ArchiveScanLogsJobPayloadFromMap(data map[string]interface{}) (*ArchiveScanLogsJobPayload, error) {
	var payload ArchiveScanLogsJobPayload
	err := decodePayload(data, &payload)
	return &payload, err
}

// decodePayload goes through JSON because numbers come back from Redis as
// float64.
func decodePayload(data map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// IsRetryable reports whether a failed job has attempts left.
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// IsFinalAttempt reports whether a failure of the running attempt is permanent.
func (j *Job) IsFinalAttempt() bool {
	return j.RetryCount+1 >= j.MaxRetries
}

func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
	j.NextAttemptAt = nil
}

func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed records a failed attempt.
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// ScheduleRetry moves a failed job to retrying and returns its due time.
// The delay grows linearly with the attempts made.
func (j *Job) ScheduleRetry(base time.Duration) time.Time {
	now := time.Now()
	due := now.Add(base * time.Duration(j.RetryCount))
	j.Status = JobStatusRetrying
	j.UpdatedAt = now
	j.NextAttemptAt = &due
	return due
}

// startedAt is when the running attempt began, falling back to the last
// update for jobs written before ProcessedAt was set.
func (j *Job) startedAt() time.Time {
	if j.ProcessedAt != nil && !j.ProcessedAt.IsZero() {
		return *j.ProcessedAt
	}
	if !j.UpdatedAt.IsZero() {
		return j.UpdatedAt
	}
	return j.CreatedAt
}

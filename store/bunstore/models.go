package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

type jobModel struct {
	bun.BaseModel `bun:"table:bulkq_jobs"`

	ID                string          `bun:"id,pk"`
	Owner             string          `bun:"owner,notnull"`
	Kind              string          `bun:"kind,notnull"`
	Status            string          `bun:"status,notnull,default:'pending'"`
	IdempotencyKey    string          `bun:"idempotency_key,notnull,default:''"`
	TotalRequests     int             `bun:"total_requests,notnull,default:0"`
	ProcessedRequests int             `bun:"processed_requests,notnull,default:0"`
	Succeeded         int             `bun:"succeeded,notnull,default:0"`
	Failed            int             `bun:"failed,notnull,default:0"`
	Records           json.RawMessage `bun:"records,type:jsonb,notnull,default:'[]'"`
	ErrorMessage      string          `bun:"error_message,notnull,default:''"`
	RetryCount        int             `bun:"retry_count,notnull,default:0"`
	Version           int64           `bun:"version,notnull,default:1"`
	CreatedAt         time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
	CompletedAt       *time.Time      `bun:"completed_at"`
	StoppedAt         *time.Time      `bun:"stopped_at"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	records, err := json.Marshal(j.Records)
	if err != nil {
		return nil, fmt.Errorf("bulkq/bunstore: marshal records: %w", err)
	}
	return &jobModel{
		ID:                j.ID.String(),
		Owner:             j.Owner,
		Kind:              string(j.Kind),
		Status:            string(j.Status),
		IdempotencyKey:    j.IdempotencyKey,
		TotalRequests:     j.TotalRequests,
		ProcessedRequests: j.ProcessedRequests,
		Succeeded:         j.Succeeded,
		Failed:            j.Failed,
		Records:           records,
		ErrorMessage:      j.ErrorMessage,
		RetryCount:        j.RetryCount,
		Version:           j.Version,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
		CompletedAt:       j.CompletedAt,
		StoppedAt:         j.StoppedAt,
	}, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bulkq/bunstore: parse job id %q: %w", m.ID, err)
	}

	var records []job.Record
	if len(m.Records) > 0 {
		if err := json.Unmarshal(m.Records, &records); err != nil {
			return nil, fmt.Errorf("bulkq/bunstore: unmarshal records: %w", err)
		}
	}

	return &job.Job{
		ID:                parsedID,
		Owner:             m.Owner,
		Kind:              job.Kind(m.Kind),
		Status:            job.Status(m.Status),
		IdempotencyKey:    m.IdempotencyKey,
		TotalRequests:     m.TotalRequests,
		ProcessedRequests: m.ProcessedRequests,
		Succeeded:         m.Succeeded,
		Failed:            m.Failed,
		Records:           records,
		ErrorMessage:      m.ErrorMessage,
		RetryCount:        m.RetryCount,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		CompletedAt:       m.CompletedAt,
		StoppedAt:         m.StoppedAt,
	}, nil
}

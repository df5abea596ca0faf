package entity

import (
	"time"

	"github.com/google/uuid"
)

// JobEvent is emitted on every status change of a job.
type JobEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Kind     JobKind   `json:"kind"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Language string    `json:"language,omitempty"`
	Error    *string   `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

func EventFromJob(j Job, at time.Time) JobEvent {
	return JobEvent{
		JobID:    j.ID,
		Kind:     j.Kind,
		Status:   j.Status,
		Progress: j.Progress,
		Language: j.Language,
		Error:    j.Error,
		At:       at,
	}
}

// HistoryEntry is the durable summary of a finished job.
type HistoryEntry struct {
	JobID      uuid.UUID `json:"job_id"`
	Kind       JobKind   `json:"kind"`
	Status     JobStatus `json:"status"`
	Filename   string    `json:"filename"`
	Language   string    `json:"language,omitempty"`
	Segments   int       `json:"segments"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func HistoryFromJob(j Job) HistoryEntry {
	e := HistoryEntry{
		JobID:      j.ID,
		Kind:       j.Kind,
		Status:     j.Status,
		Filename:   j.SourceFilename,
		Language:   j.Language,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
	if j.Result != nil {
		e.Segments = len(j.Result.Segments)
	}
	return e
}

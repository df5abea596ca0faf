package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobKind decides what a completed job delivers: segments inline or an SRT file.
type JobKind string

const (
	KindInline JobKind = "inline"
	KindFile   JobKind = "file"
)

func (k JobKind) Valid() bool {
	return k == KindInline || k == KindFile
}

var ErrInvalidTransition = errors.New("invalid status transition")

// Segment is one time-bounded unit of transcribed text.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"content"`
}

// Result is set only on completed jobs. FilePath is used by KindFile jobs.
type Result struct {
	Segments []Segment `json:"subtitles,omitempty"`
	Language string    `json:"language"`
	FilePath string    `json:"-"`
}

type Job struct {
	ID             uuid.UUID `json:"id"`
	Kind           JobKind   `json:"kind"`
	Status         JobStatus `json:"status"`
	Progress       float64   `json:"progress"`
	Partial        []Segment `json:"partial_subtitles"`
	Language       string    `json:"language,omitempty"`
	Result         *Result   `json:"result,omitempty"`
	Error          *string   `json:"error,omitempty"`
	SourceFilename string    `json:"filename"`
	InputPath      string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

func NewJob(id uuid.UUID, kind JobKind, filename, inputPath string, now time.Time) Job {
	return Job{
		ID:             id,
		Kind:           kind,
		Status:         StatusPending,
		SourceFilename: filename,
		InputPath:      inputPath,
		CreatedAt:      now,
	}
}

// Transition moves the job forward. Pending may fail directly when the job
// is cancelled before it ever started.
func (j *Job) Transition(to JobStatus) error {
	ok := false
	switch j.Status {
	case StatusPending:
		ok = to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		ok = to == StatusCompleted || to == StatusFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// Clone returns a copy that shares no slices or pointers with j.
func (j Job) Clone() Job {
	out := j
	out.Partial = CloneSegments(j.Partial)
	if j.Result != nil {
		r := *j.Result
		r.Segments = CloneSegments(j.Result.Segments)
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

func CloneSegments(in []Segment) []Segment {
	if in == nil {
		return nil
	}
	out := make([]Segment, len(in))
	copy(out, in)
	return out
}

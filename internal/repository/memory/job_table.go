package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"transcription-service/internal/entity"
)

var ErrDuplicate = errors.New("job already exists")

// JobTable is the in-process source of truth for job state. Every access
// goes through one mutex and critical sections only assign fields.
type JobTable struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entity.Job
}

func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[uuid.UUID]*entity.Job)}
}

func (t *JobTable) Create(job entity.Job) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[job.ID]; ok {
		return ErrDuplicate
	}
	j := job.Clone()
	t.jobs[job.ID] = &j
	return nil
}

// Mutate applies fn to the stored job. It reports false, without calling fn,
// when the job is gone (polled and deleted, or reaped).
func (t *JobTable) Mutate(id uuid.UUID, fn func(*entity.Job)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return false
	}
	fn(j)
	return true
}

// Snapshot returns a deep copy so callers can read it without the lock.
func (t *JobTable) Snapshot(id uuid.UUID) (entity.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return entity.Job{}, false
	}
	return j.Clone(), true
}

func (t *JobTable) Delete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[id]; !ok {
		return false
	}
	delete(t.jobs, id)
	return true
}

// ReapExpired removes terminal jobs that finished before cutoff and returns
// copies of them.
func (t *JobTable) ReapExpired(cutoff time.Time) []entity.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []entity.Job
	for id, j := range t.jobs {
		if !j.Status.Terminal() || j.FinishedAt.IsZero() || !j.FinishedAt.Before(cutoff) {
			continue
		}
		out = append(out, j.Clone())
		delete(t.jobs, id)
	}
	return out
}

// Active counts jobs that are pending or processing.
func (t *JobTable) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, j := range t.jobs {
		if !j.Status.Terminal() {
			n++
		}
	}
	return n
}

func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

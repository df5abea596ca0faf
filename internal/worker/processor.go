package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"transcription-service/internal/caption"
	"transcription-service/internal/engine"
	"transcription-service/internal/entity"
)

// ErrCancelled is returned by Process when the job was stopped cooperatively.
var ErrCancelled = errors.New("cancelled")

const sideEffectTimeout = 5 * time.Second

// Task is everything a runner needs to drive one job.
type Task struct {
	ID        uuid.UUID
	Kind      entity.JobKind
	InputPath string
	Language  string
}

// Порты, реализуемые memory.JobTable и storage.Uploader.
type JobStore interface {
	Mutate(id uuid.UUID, fn func(*entity.Job)) bool
	Snapshot(id uuid.UUID) (entity.Job, bool)
}

type FileStore interface {
	WriteOutput(data []byte, suffix string) (string, error)
	Remove(path string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev entity.JobEvent) error
}

type HistoryRecorder interface {
	Record(ctx context.Context, e entity.HistoryEntry) error
}

type Processor struct {
	store   JobStore
	engine  engine.Engine
	files   FileStore
	slots   *Slots
	events  EventPublisher
	history HistoryRecorder
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Processor)

func WithEvents(ev EventPublisher) Option {
	return func(p *Processor) { p.events = ev }
}

func WithHistory(h HistoryRecorder) Option {
	return func(p *Processor) { p.history = h }
}

func NewProcessor(store JobStore, eng engine.Engine, files FileStore, slots *Slots, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if slots == nil {
		slots = NewSlots(1)
	}
	p := &Processor{
		store:  store,
		engine: eng,
		files:  files,
		slots:  slots,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type engineOutcome struct {
	res engine.Result
	err error
}

// Process drives one job from pending to a terminal state. The input file
// is removed on every return path.
func (p *Processor) Process(ctx context.Context, task Task) (err error) {
	start := time.Now()
	id := task.ID

	defer func() {
		if rmErr := p.files.Remove(task.InputPath); rmErr != nil {
			p.logger.Warn("[worker] input cleanup failed", "job_id", id, "path", task.InputPath, "error", rmErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			p.fail(ctx, id, msg)
			err = errors.New(msg)
		}
	}()

	release, acqErr := p.slots.Acquire(ctx)
	if acqErr != nil {
		p.fail(ctx, id, ErrCancelled.Error())
		p.logger.Info("[worker] job cancelled before start", "job_id", id)
		return ErrCancelled
	}
	defer release()

	var transErr error
	found := p.store.Mutate(id, func(j *entity.Job) {
		if transErr = j.Transition(entity.StatusProcessing); transErr != nil {
			return
		}
		j.Progress = 0
		j.Partial = nil
		j.Language = ""
		j.StartedAt = p.now()
	})
	if !found {
		p.logger.Warn("[worker] job vanished before start", "job_id", id)
		return nil
	}
	if transErr != nil {
		return transErr
	}
	p.publish(ctx, id)
	p.logger.Info("[worker] job started", "job_id", id, "kind", task.Kind, "status", entity.StatusProcessing)

	progressCh := make(chan engine.Progress)
	done := make(chan engineOutcome, 1)
	go func() {
		defer close(progressCh)
		var out engineOutcome
		defer func() {
			if r := recover(); r != nil {
				out = engineOutcome{err: fmt.Errorf("engine panic: %v", r)}
			}
			done <- out
		}()
		// инференс не прерываем: отмена проверяется на границах progress/return
		out.res, out.err = p.engine.Transcribe(context.WithoutCancel(ctx), engine.Request{
			InputPath: task.InputPath,
			Language:  task.Language,
		}, progressCh)
	}()

	cancelled := false
	for msg := range progressCh {
		if ctx.Err() != nil {
			if !cancelled {
				// job fails now; the engine is still drained to its return
				cancelled = true
				p.fail(ctx, id, ErrCancelled.Error())
			}
			continue
		}
		p.applyProgress(id, msg)
	}
	out := <-done

	if cancelled || ctx.Err() != nil {
		p.fail(ctx, id, ErrCancelled.Error())
		p.logger.Info("[worker] job cancelled", "job_id", id, "duration_ms", time.Since(start).Milliseconds())
		return ErrCancelled
	}

	if out.err != nil {
		p.fail(ctx, id, out.err.Error())
		p.logger.Error("[worker] job failed",
			"job_id", id, "status", entity.StatusFailed,
			"duration_ms", time.Since(start).Milliseconds(), "error", out.err,
		)
		return out.err
	}

	if err := p.complete(ctx, task, out.res); err != nil {
		p.fail(ctx, id, err.Error())
		return err
	}

	p.logger.Info("[worker] job done",
		"job_id", id, "status", entity.StatusCompleted,
		"segments", len(out.res.Segments), "language", out.res.Language,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) applyProgress(id uuid.UUID, msg engine.Progress) {
	p.store.Mutate(id, func(j *entity.Job) {
		if j.Status != entity.StatusProcessing {
			return
		}
		if msg.Percent > j.Progress {
			j.Progress = msg.Percent
		}
		j.Partial = entity.CloneSegments(msg.Segments)
		if msg.Language != "" {
			j.Language = msg.Language
		}
	})
}

func (p *Processor) complete(ctx context.Context, task Task, res engine.Result) error {
	segments := res.Segments
	if segments == nil {
		segments = []entity.Segment{}
	}

	result := &entity.Result{Language: res.Language}
	switch task.Kind {
	case entity.KindFile:
		path, err := p.files.WriteOutput([]byte(caption.Render(segments)), ".srt")
		if err != nil {
			return fmt.Errorf("write captions: %w", err)
		}
		result.FilePath = path
	default:
		result.Segments = entity.CloneSegments(segments)
	}

	var transErr error
	found := p.store.Mutate(task.ID, func(j *entity.Job) {
		if transErr = j.Transition(entity.StatusCompleted); transErr != nil {
			return
		}
		j.Progress = 100
		j.Language = res.Language
		j.Partial = entity.CloneSegments(segments)
		j.Result = result
		j.FinishedAt = p.now()
	})
	if !found || transErr != nil {
		if result.FilePath != "" {
			_ = p.files.Remove(result.FilePath)
		}
		if transErr != nil {
			return transErr
		}
		p.logger.Warn("[worker] job vanished before completion", "job_id", task.ID)
		return nil
	}
	p.finish(ctx, task.ID)
	return nil
}

// fail marks the job failed unless it already reached a terminal state.
func (p *Processor) fail(ctx context.Context, id uuid.UUID, msg string) {
	changed := false
	p.store.Mutate(id, func(j *entity.Job) {
		if j.Transition(entity.StatusFailed) != nil {
			return
		}
		m := msg
		j.Error = &m
		j.FinishedAt = p.now()
		changed = true
	})
	if changed {
		p.finish(ctx, id)
	}
}

// finish runs side effects for a terminal job outside the table lock.
func (p *Processor) finish(ctx context.Context, id uuid.UUID) {
	snap, ok := p.store.Snapshot(id)
	if !ok {
		return
	}
	p.publishJob(ctx, snap)
	if p.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := p.history.Record(hctx, entity.HistoryFromJob(snap)); err != nil {
		p.logger.Warn("[worker] history record failed", "job_id", id, "error", err)
	}
}

func (p *Processor) publish(ctx context.Context, id uuid.UUID) {
	if p.events == nil {
		return
	}
	if snap, ok := p.store.Snapshot(id); ok {
		p.publishJob(ctx, snap)
	}
}

func (p *Processor) publishJob(ctx context.Context, j entity.Job) {
	if p.events == nil {
		return
	}
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := p.events.Publish(ectx, entity.EventFromJob(j, p.now())); err != nil {
		p.logger.Warn("[worker] publish event failed", "job_id", j.ID, "status", j.Status, "error", err)
	}
}

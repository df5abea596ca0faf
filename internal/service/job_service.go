package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"transcription-service/internal/engine"
	"transcription-service/internal/entity"
	"transcription-service/internal/repository/postgresql"
	"transcription-service/internal/storage"
	"transcription-service/internal/worker"
)

var (
	ErrNoFile             = errors.New("no audio file provided")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrServiceUnavailable = errors.New("transcription service is not initialized")
	ErrNotFound           = errors.New("task not found")
	ErrOutputMissing      = errors.New("result file not found")
	ErrRequestTimeout     = errors.New("request timed out")
	ErrHistoryDisabled    = errors.New("history is not enabled")
	ErrTooLarge           = storage.ErrTooLarge
)

// DefaultExtensions are accepted when the config does not list any.
var DefaultExtensions = []string{"mp3", "wav", "m4a", "ogg", "flac"}

// Порт таблицы задач (реализация: memory.JobTable)
type JobStore interface {
	Create(job entity.Job) error
	Snapshot(id uuid.UUID) (entity.Job, bool)
	Delete(id uuid.UUID) bool
	ReapExpired(cutoff time.Time) []entity.Job
	Active() int
}

type Uploads interface {
	Save(src io.Reader, filename string, maxBytes int64) (string, error)
	Remove(path string) error
	Exists(path string) bool
}

// Launcher starts a runner without waiting for it (реализация: worker.Pool).
type Launcher interface {
	Submit(task worker.Task) error
}

type Scheduler interface {
	After(key string, d time.Duration, fn func()) bool
}

type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]entity.HistoryEntry, error)
	GetByID(ctx context.Context, id uuid.UUID) (entity.HistoryEntry, error)
}

type Config struct {
	AllowedExtensions []string
	MaxUploadBytes    int64
	PollTimeout       time.Duration
	FileGrace         time.Duration
	JobTTL            time.Duration
}

type JobService struct {
	store    JobStore
	uploads  Uploads
	engine   engine.Engine
	launcher Launcher
	sched    Scheduler
	slots    *worker.Slots
	history  HistoryReader
	cfg      Config
	allowed  map[string]struct{}
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*JobService)

func WithHistory(h HistoryReader) Option {
	return func(s *JobService) { s.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *JobService) { s.logger = l }
}

func NewJobService(store JobStore, uploads Uploads, eng engine.Engine, launcher Launcher, sched Scheduler, slots *worker.Slots, cfg Config, opts ...Option) *JobService {
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultExtensions
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.FileGrace <= 0 {
		cfg.FileGrace = 2 * time.Second
	}
	if slots == nil {
		slots = worker.NewSlots(1)
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")] = struct{}{}
	}

	s := &JobService{
		store:    store,
		uploads:  uploads,
		engine:   eng,
		launcher: launcher,
		sched:    sched,
		slots:    slots,
		cfg:      cfg,
		allowed:  allowed,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type SubmitRequest struct {
	Filename string
	Body     io.Reader
	Language string
	Kind     entity.JobKind
}

// PollResult is a snapshot of the job. For completed file jobs FilePath and
// DownloadName describe the caption to stream.
type PollResult struct {
	Job          entity.Job
	FilePath     string
	DownloadName string
}

// ModelLoaded reports whether a usable engine is configured.
func (s *JobService) ModelLoaded() bool {
	return s.engine != nil && s.engine.Loaded()
}

func (s *JobService) ActiveJobs() int {
	return s.store.Active()
}

func (s *JobService) validate(req SubmitRequest) error {
	if req.Body == nil || strings.TrimSpace(req.Filename) == "" {
		return ErrNoFile
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), ".")
	if _, ok := s.allowed[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(req.Filename))
	}
	if !s.ModelLoaded() {
		return ErrServiceUnavailable
	}
	return nil
}

// Submit stores the upload, creates a pending job and launches its runner.
// It returns as soon as the runner is scheduled.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if req.Kind == "" {
		req.Kind = entity.KindInline
	}
	if !req.Kind.Valid() {
		return uuid.Nil, fmt.Errorf("unknown job kind %q", req.Kind)
	}
	if err := s.validate(req); err != nil {
		return uuid.Nil, err
	}

	inputPath, err := s.uploads.Save(req.Body, req.Filename, s.cfg.MaxUploadBytes)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	job := entity.NewJob(id, req.Kind, filepath.Base(req.Filename), inputPath, s.now())
	if err := s.store.Create(job); err != nil {
		_ = s.uploads.Remove(inputPath)
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}

	task := worker.Task{ID: id, Kind: req.Kind, InputPath: inputPath, Language: req.Language}
	if err := s.launcher.Submit(task); err != nil {
		s.store.Delete(id)
		_ = s.uploads.Remove(inputPath)
		return uuid.Nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	s.logger.Info("job submitted", "job_id", id, "kind", req.Kind, "filename", job.SourceFilename)
	return id, nil
}

type pollOutcome struct {
	res PollResult
	err error
}

// Poll returns the job state, bounded by the poll timeout. A completed
// inline job is deleted by the read; a completed file job is deleted with
// its output after the grace delay.
func (s *JobService) Poll(ctx context.Context, id uuid.UUID) (PollResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	ch := make(chan pollOutcome, 1)
	go func() {
		res, err := s.poll(id)
		ch <- pollOutcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return PollResult{}, ErrRequestTimeout
		}
		return PollResult{}, ctx.Err()
	}
}

func (s *JobService) poll(id uuid.UUID) (PollResult, error) {
	j, ok := s.store.Snapshot(id)
	if !ok {
		return PollResult{}, ErrNotFound
	}
	if j.Status != entity.StatusCompleted {
		return PollResult{Job: j}, nil
	}

	if j.Kind == entity.KindFile {
		path := ""
		if j.Result != nil {
			path = j.Result.FilePath
		}
		if !s.uploads.Exists(path) {
			s.logger.Error("completed job has no output file", "job_id", id, "path", path)
			return PollResult{}, ErrOutputMissing
		}
		// повторные опросы в окне grace не ставят вторую очистку
		s.sched.After("job:"+id.String(), s.cfg.FileGrace, func() {
			_ = s.uploads.Remove(path)
			s.store.Delete(id)
			s.logger.Debug("delivered job cleaned up", "job_id", id)
		})
		return PollResult{Job: j, FilePath: path, DownloadName: DownloadName(j.SourceFilename)}, nil
	}

	if !s.store.Delete(id) {
		// another poll delivered it first
		return PollResult{}, ErrNotFound
	}
	return PollResult{Job: j}, nil
}

// DownloadName is transcription_<base>.srt for an upload named <base>.<ext>.
func DownloadName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "audio"
	}
	return "transcription_" + base + ".srt"
}

// TranscribeSync runs the engine inline on the caller's goroutine. The
// upload is always removed before returning.
func (s *JobService) TranscribeSync(ctx context.Context, req SubmitRequest) (engine.Result, error) {
	if err := s.validate(req); err != nil {
		return engine.Result{}, err
	}
	inputPath, err := s.uploads.Save(req.Body, req.Filename, s.cfg.MaxUploadBytes)
	if err != nil {
		return engine.Result{}, err
	}
	defer func() { _ = s.uploads.Remove(inputPath) }()

	release, err := s.slots.Acquire(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	defer release()

	start := time.Now()
	res, err := s.engine.Transcribe(ctx, engine.Request{InputPath: inputPath, Language: req.Language}, nil)
	if err != nil {
		s.logger.Warn("sync transcription failed", "filename", req.Filename, "error", err)
		return engine.Result{}, err
	}
	if res.Segments == nil {
		res.Segments = []entity.Segment{}
	}
	s.logger.Info("sync transcription done",
		"filename", req.Filename, "segments", len(res.Segments),
		"language", res.Language, "duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ReapExpired evicts terminal jobs nobody collected within the TTL and
// removes their caption outputs.
func (s *JobService) ReapExpired(now time.Time) int {
	if s.cfg.JobTTL <= 0 {
		return 0
	}
	reaped := s.store.ReapExpired(now.Add(-s.cfg.JobTTL))
	for _, j := range reaped {
		if j.Result != nil && j.Result.FilePath != "" {
			_ = s.uploads.Remove(j.Result.FilePath)
		}
	}
	return len(reaped)
}

func (s *JobService) History(ctx context.Context, limit int) ([]entity.HistoryEntry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.history.Recent(ctx, limit)
}

func (s *JobService) HistoryEntry(ctx context.Context, id uuid.UUID) (entity.HistoryEntry, error) {
	if s.history == nil {
		return entity.HistoryEntry{}, ErrHistoryDisabled
	}
	e, err := s.history.GetByID(ctx, id)
	if errors.Is(err, postgresql.ErrNotFound) {
		return entity.HistoryEntry{}, ErrNotFound
	}
	return e, err
}

package httptransport

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"transcription-service/internal/engine"
	"transcription-service/internal/entity"
	"transcription-service/internal/service"
)

// multipart overhead allowed on top of the audio size limit
const formOverhead = 1 << 20

type Handler struct {
	jobSvc    *service.JobService
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(jobSvc *service.JobService, maxUpload int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{jobSvc: jobSvc, maxUpload: maxUpload, logger: logger}
}

type createTaskResp struct {
	Status  entity.JobStatus `json:"status"`
	TaskID  string           `json:"task_id"`
	Message string           `json:"message,omitempty"`
}

// Health godoc
// @Summary Service health
// @Tags system
// @Produce json
// @Success 200 {object} healthResp
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResp{
		Status:      "healthy",
		ModelLoaded: h.jobSvc.ModelLoaded(),
		ActiveJobs:  h.jobSvc.ActiveJobs(),
	})
}

// Transcribe godoc
// @Summary Submit audio for transcription
// @Description Stores the upload and starts a background job. Poll /task/{id} for progress and subtitles.
// @Tags transcription
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "audio file (mp3, wav, m4a, ogg, flac)"
// @Param language formData string false "language hint, e.g. en; empty or auto to detect"
// @Success 202 {object} createTaskResp
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Failure 500 {object} apiError
// @Router /transcribe [post]
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, entity.KindInline)
}

// TranscribeSRT godoc
// @Summary Submit audio for SRT generation
// @Description Like /transcribe, but the completed task is delivered once as an .srt download.
// @Tags transcription
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "audio file (mp3, wav, m4a, ogg, flac)"
// @Param language formData string false "language hint"
// @Success 202 {object} createTaskResp
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Failure 500 {object} apiError
// @Router /transcribe/srt [post]
func (h *Handler) TranscribeSRT(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, entity.KindFile)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind entity.JobKind) {
	req, cleanup, err := h.readUpload(w, r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer cleanup()
	req.Kind = kind

	id, err := h.jobSvc.Submit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createTaskResp{
		Status:  entity.StatusPending,
		TaskID:  id.String(),
		Message: "poll /task/" + id.String() + " for progress",
	})
}

// TranscribeSync godoc
// @Summary Transcribe audio and wait for the result
// @Tags transcription
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "audio file"
// @Param language formData string false "language hint"
// @Success 200 {object} syncResp
// @Failure 400 {object} syncResp
// @Failure 500 {object} syncResp
// @Router /transcribe/sync [post]
func (h *Handler) TranscribeSync(w http.ResponseWriter, r *http.Request) {
	fail := func(code int, err error) {
		writeJSON(w, code, syncResp{Subtitles: []entity.Segment{}, Error: strPtr(err.Error())})
	}

	req, cleanup, err := h.readUpload(w, r)
	if err != nil {
		fail(statusFor(err), err)
		return
	}
	defer cleanup()

	res, err := h.jobSvc.TranscribeSync(r.Context(), req)
	if err != nil {
		var pe *engine.ProcessingError
		if errors.As(err, &pe) {
			// engine-level failure is a result, not a server error
			fail(http.StatusOK, err)
			return
		}
		fail(statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, syncResp{
		Success:   true,
		Subtitles: nonNil(res.Segments),
		Language:  res.Language,
	})
}

// GetTask godoc
// @Summary Poll a task
// @Description Returns status, progress and partial subtitles. A completed inline task returns its subtitles once and is then removed; a completed SRT task streams the file.
// @Tags transcription
// @Produce json
// @Produce application/x-subrip
// @Param id path string true "task id (uuid)"
// @Success 200 {object} taskResp
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Failure 504 {object} apiError
// @Router /task/{id} [get]
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// неизвестный формат id == несуществующая задача
		writeErr(w, http.StatusNotFound, service.ErrNotFound.Error())
		return
	}

	res, err := h.jobSvc.Poll(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if res.FilePath == "" {
		writeJSON(w, http.StatusOK, newTaskResp(res.Job))
		return
	}

	f, err := os.Open(res.FilePath)
	if err != nil {
		h.logger.Error("open caption output", "job_id", id, "error", err)
		writeErr(w, http.StatusInternalServerError, service.ErrOutputMissing.Error())
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, service.ErrOutputMissing.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.DownloadName}))
	http.ServeContent(w, r, res.DownloadName, st.ModTime(), f)
}

// History godoc
// @Summary Recent finished tasks
// @Tags history
// @Produce json
// @Param limit query int false "max entries (default 50)"
// @Success 200 {array} entity.HistoryEntry
// @Failure 503 {object} apiError
// @Router /history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.jobSvc.History(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HistoryEntry godoc
// @Summary Finished task by id
// @Tags history
// @Produce json
// @Param id path string true "task id (uuid)"
// @Success 200 {object} entity.HistoryEntry
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 503 {object} apiError
// @Router /history/{id} [get]
func (h *Handler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	e, err := h.jobSvc.HistoryEntry(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// readUpload parses the multipart form. cleanup releases any temp files the
// parser spilled to disk.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (service.SubmitRequest, func(), error) {
	noop := func() {}
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return service.SubmitRequest{}, noop, service.ErrTooLarge
		}
		return service.SubmitRequest{}, noop, service.ErrNoFile
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		cleanup()
		return service.SubmitRequest{}, noop, service.ErrNoFile
	}
	closeAll := func() {
		_ = file.Close()
		cleanup()
	}
	return service.SubmitRequest{
		Filename: header.Filename,
		Body:     file,
		Language: r.FormValue("language"),
	}, closeAll, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoFile), errors.Is(err, service.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, service.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	default:
		// ErrServiceUnavailable, ErrOutputMissing and anything unexpected
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", code, "error", err)
	}
	writeErr(w, code, err.Error())
}

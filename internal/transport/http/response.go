package httptransport

import (
	"encoding/json"
	"net/http"

	"transcription-service/internal/entity"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

type healthResp struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ActiveJobs  int    `json:"active_jobs"`
}

// taskResp always carries every key; absent values are null.
type taskResp struct {
	Status           entity.JobStatus `json:"status"`
	TaskID           *string          `json:"task_id"`
	Subtitles        []entity.Segment `json:"subtitles"`
	PartialSubtitles []entity.Segment `json:"partial_subtitles"`
	Progress         *float64         `json:"progress"`
	Language         *string          `json:"language"`
	Error            *string          `json:"error"`
}

type syncResp struct {
	Success   bool             `json:"success"`
	Subtitles []entity.Segment `json:"subtitles"`
	Language  string           `json:"language"`
	Error     *string          `json:"error"`
}

func strPtr(s string) *string { return &s }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(segs []entity.Segment) []entity.Segment {
	if segs == nil {
		return []entity.Segment{}
	}
	return segs
}

// newTaskResp maps a job snapshot to the polling payload.
func newTaskResp(j entity.Job) taskResp {
	progress := j.Progress
	resp := taskResp{
		Status:   j.Status,
		TaskID:   strPtr(j.ID.String()),
		Progress: &progress,
		Language: optional(j.Language),
	}

	switch j.Status {
	case entity.StatusCompleted:
		if j.Result != nil {
			resp.Subtitles = nonNil(entity.CloneSegments(j.Result.Segments))
			resp.Language = optional(j.Result.Language)
		} else {
			resp.Subtitles = []entity.Segment{}
		}
		resp.PartialSubtitles = nonNil(j.Partial)
	case entity.StatusFailed:
		resp.Error = j.Error
		resp.PartialSubtitles = nonNil(j.Partial)
	default:
		resp.PartialSubtitles = nonNil(j.Partial)
	}
	return resp
}

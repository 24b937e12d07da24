package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/srt-batch-translator/internal/config"
	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/service"
	"github.com/MimeLyc/srt-batch-translator/internal/termmap"
	"github.com/MimeLyc/srt-batch-translator/internal/translator"
)

type healthResponse struct {
	Status   string              `json:"status"`
	Time     time.Time           `json:"time"`
	NextScan *time.Time          `json:"next_scan,omitempty"`
	Jobs     map[jobs.Status]int `json:"jobs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := map[jobs.Status]int{
		jobs.StatusPending: 0,
		jobs.StatusRunning: 0,
		jobs.StatusSuccess: 0,
		jobs.StatusFailed:  0,
	}
	for _, job := range s.queue.List() {
		counts[job.Status]++
	}

	resp := healthResponse{
		Status: "ok",
		Time:   time.Now(),
		Jobs:   counts,
	}
	if s.scheduler != nil {
		if next := s.scheduler.NextScan(); !next.IsZero() {
			resp.NextScan = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.svc.ListModels(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

type translateRequest struct {
	Content        string          `json:"content"`
	TargetLanguage string          `json:"target_language"`
	Model          string          `json:"model"`
	MaxBatchChars  int             `json:"max_batch_chars"`
	Glossary       termmap.TermMap `json:"glossary,omitempty"`
}

type translateResponse struct {
	RunID          string               `json:"run_id"`
	TargetLanguage string               `json:"target_language"`
	Model          string               `json:"model"`
	Content        string               `json:"content"`
	Summary        translator.Summary   `json:"summary"`
	Outcomes       []translator.Outcome `json:"outcomes"`
	DurationMS     int64                `json:"duration_ms"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.MaxBatchChars < 0 {
		writeError(w, http.StatusBadRequest, "max_batch_chars must not be negative")
		return
	}

	tr, err := s.svc.TranslateContent(r.Context(), req.Content, service.Request{
		TargetLanguage: req.TargetLanguage,
		Model:          req.Model,
		MaxBatchChars:  req.MaxBatchChars,
		Glossary:       req.Glossary,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	outcomes := tr.Result.Outcomes
	if outcomes == nil {
		outcomes = []translator.Outcome{}
	}
	writeJSON(w, http.StatusOK, translateResponse{
		RunID:          tr.RunID,
		TargetLanguage: tr.TargetLanguage.String(),
		Model:          tr.Model,
		Content:        tr.Result.Content,
		Summary:        tr.Summary(),
		Outcomes:       outcomes,
		DurationMS:     tr.Duration.Milliseconds(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.queue.List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]*jobs.TranslationJob, 0, len(list))
		for _, job := range list {
			if string(job.Status) == status {
				filtered = append(filtered, job)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, list)
}

type enqueueJobRequest struct {
	InputPath      string `json:"input_path"`
	OutputPath     string `json:"output_path"`
	TargetLanguage string `json:"target_language"`
	Model          string `json:"model"`
	MaxBatchChars  int    `json:"max_batch_chars"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.MaxBatchChars < 0 {
		writeError(w, http.StatusBadRequest, "max_batch_chars must not be negative")
		return
	}

	enqueue, err := s.svc.NewFileJob("manual", jobs.JobPayload{
		InputPath:      strings.TrimSpace(req.InputPath),
		OutputPath:     strings.TrimSpace(req.OutputPath),
		TargetLanguage: strings.TrimSpace(req.TargetLanguage),
		Model:          strings.TrimSpace(req.Model),
		MaxBatchChars:  req.MaxBatchChars,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	job, created := s.queue.Enqueue(enqueue)
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "directory scans are not configured")
		return
	}
	queued, err := s.scheduler.Scan(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"queued": queued,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": queued,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	var req config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.apply != nil {
		if err := s.apply(saved); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, saved)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeServiceError maps a classified service error to an HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch service.TypeOf(err) {
	case service.ErrValidation:
		status = http.StatusBadRequest
	case service.ErrFileNotFound:
		status = http.StatusNotFound
	case service.ErrAPI:
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
	"github.com/MimeLyc/srt-batch-translator/internal/translator"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

const (
	defaultOutcomeLimit = 80
	maxOutcomeLimit     = 500
)

var (
	errJobNotFound     = errors.New("job not found")
	errJobNotCompleted = errors.New("job is not completed")
)

type jobDetailResponse struct {
	Job          *jobs.TranslationJob `json:"job"`
	Progress     jobProgressResponse  `json:"progress"`
	OutputPath   string               `json:"output_path"`
	Downloadable bool                 `json:"downloadable"`
}

type jobProgressResponse struct {
	BatchesDone  int     `json:"batches_done"`
	BatchesTotal int     `json:"batches_total"`
	Percent      float64 `json:"percent"`
}

type jobOutcomesResponse struct {
	JobID    string           `json:"job_id"`
	Total    int              `json:"total"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
	Outcomes []jobOutcomeLine `json:"outcomes"`
}

type jobOutcomeLine struct {
	Position     int                   `json:"position"`
	Label        string                `json:"label"`
	Timing       string                `json:"timing"`
	OriginalText string                `json:"original_text,omitempty"`
	Text         string                `json:"text"`
	Provenance   translator.Provenance `json:"provenance"`
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.TranslationJob, bool) {
	job, ok := s.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errJobNotFound.Error())
		return nil, false
	}
	return job, true
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, jobDetailResponse{
		Job:          job,
		Progress:     computeJobProgress(job),
		OutputPath:   job.Payload.OutputPath,
		Downloadable: job.Status == jobs.StatusSuccess && fileExists(job.Payload.OutputPath),
	})
}

func (s *Server) handleJobOutcomes(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSuccess {
		writeError(w, http.StatusConflict, errJobNotCompleted.Error())
		return
	}

	offset := parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)
	limit := parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultOutcomeLimit)
	if limit <= 0 {
		limit = defaultOutcomeLimit
	}
	if limit > maxOutcomeLimit {
		limit = maxOutcomeLimit
	}

	outcomes, err := s.svc.Outcomes(r.Context(), job.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobOutcomesResponse{
		JobID:    job.ID,
		Total:    len(outcomes),
		Offset:   offset,
		Limit:    limit,
		Outcomes: buildOutcomeLines(outcomes, readSourceEntries(job.Payload.InputPath), offset, limit),
	})
}

func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSuccess {
		writeError(w, http.StatusConflict, errJobNotCompleted.Error())
		return
	}

	f, err := os.Open(job.Payload.OutputPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "output file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := filepath.Base(job.Payload.OutputPath)
	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func computeJobProgress(job *jobs.TranslationJob) jobProgressResponse {
	ret := jobProgressResponse{
		BatchesDone:  job.Progress.BatchesDone,
		BatchesTotal: job.Progress.BatchesTotal,
	}
	if job.Status == jobs.StatusSuccess {
		ret.Percent = 100
		return ret
	}
	if ret.BatchesTotal > 0 {
		ret.Percent = (float64(ret.BatchesDone) / float64(ret.BatchesTotal)) * 100
	}
	return ret
}

// buildOutcomeLines pages outcomes, pairing each with the source entry at
// the same position when the input file is still readable.
func buildOutcomeLines(outcomes []translator.Outcome, source []subtitle.Entry, offset int, limit int) []jobOutcomeLine {
	total := len(outcomes)
	if total == 0 || offset >= total {
		return []jobOutcomeLine{}
	}
	if limit <= 0 {
		limit = defaultOutcomeLimit
	}

	end := min(total, offset+limit)
	ret := make([]jobOutcomeLine, 0, end-offset)
	for i := offset; i < end; i++ {
		o := outcomes[i]
		line := jobOutcomeLine{
			Position:   i + 1,
			Label:      o.Label,
			Timing:     o.Timing,
			Text:       o.Text,
			Provenance: o.Provenance,
		}
		if len(source) == total {
			line.OriginalText = source[i].Text
		}
		ret = append(ret, line)
	}
	return ret
}

func readSourceEntries(path string) []subtitle.Entry {
	if !fileExists(path) {
		return nil
	}
	src, err := subtitle.NewReader(path).Read()
	if err != nil {
		log.Warn("Failed to read source %s for outcome preview: %v", path, err)
		return nil
	}
	return src.Entries
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

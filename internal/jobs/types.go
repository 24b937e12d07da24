package jobs

import (
	"time"

	"github.com/MimeLyc/srt-batch-translator/internal/translator"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload describes one file translation. Empty fields fall back to the
// service defaults when the job runs.
type JobPayload struct {
	InputPath      string `json:"input_path"`
	OutputPath     string `json:"output_path,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Model          string `json:"model,omitempty"`
	MaxBatchChars  int    `json:"max_batch_chars,omitempty"`
}

// Progress counts resolved batches of the running translation.
type Progress struct {
	BatchesDone  int `json:"batches_done"`
	BatchesTotal int `json:"batches_total"`
}

type TranslationJob struct {
	ID        string              `json:"id"`
	Source    string              `json:"source"`
	DedupeKey string              `json:"dedupe_key"`
	Payload   JobPayload          `json:"payload"`
	Status    Status              `json:"status"`
	Progress  Progress            `json:"progress"`
	Summary   *translator.Summary `json:"summary,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

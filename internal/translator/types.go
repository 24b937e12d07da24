package translator

import (
	"context"
	"fmt"

	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
)

// TranslateFunc translates one serialized batch. It is expected to return
// the same entries in the same order with translated bodies, but nothing
// about the response is trusted beyond what can be parsed back.
type TranslateFunc func(ctx context.Context, payload string) (string, error)

// Provenance records how an output entry's text was obtained.
type Provenance int

const (
	// ProvenanceTranslated means the batch came back with the expected shape.
	ProvenanceTranslated Provenance = iota
	// ProvenanceRecoveredPartial means the batch came back with a different
	// entry count and text was salvaged by position where available.
	ProvenanceRecoveredPartial
	// ProvenanceOriginal means the external call failed and the source text
	// was kept.
	ProvenanceOriginal
)

var provenanceNames = map[Provenance]string{
	ProvenanceTranslated:       "translated",
	ProvenanceRecoveredPartial: "recovered_partial",
	ProvenanceOriginal:         "original",
}

func (p Provenance) String() string {
	if name, ok := provenanceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("provenance(%d)", int(p))
}

func (p Provenance) MarshalText() ([]byte, error) {
	name, ok := provenanceNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown provenance %d", int(p))
	}
	return []byte(name), nil
}

func (p *Provenance) UnmarshalText(text []byte) error {
	parsed, err := ParseProvenance(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProvenance is the inverse of Provenance.String.
func ParseProvenance(name string) (Provenance, error) {
	for p, n := range provenanceNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown provenance %q", name)
}

// RunState tracks a single orchestrator run.
type RunState int

const (
	RunNotStarted RunState = iota
	RunRunning
	RunCompleted
)

func (s RunState) String() string {
	switch s {
	case RunNotStarted:
		return "not_started"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// BatchState tracks one batch within a run.
type BatchState int

const (
	BatchPending BatchState = iota
	BatchTranslating
	BatchReconciled
	BatchRecovered
	BatchFailed
)

func (s BatchState) String() string {
	switch s {
	case BatchPending:
		return "pending"
	case BatchTranslating:
		return "translating"
	case BatchReconciled:
		return "reconciled"
	case BatchRecovered:
		return "recovered"
	case BatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is one output entry tagged with its provenance.
type Outcome struct {
	subtitle.Entry
	Provenance Provenance `json:"provenance"`
}

// BatchReport describes a batch once it has reached a final state.
type BatchReport struct {
	Index    int        // 0-based batch number
	Total    int        // number of batches in the run
	Start    int        // offset of the batch's first entry
	Size     int        // entries sent
	Received int        // entries parsed from the response, 0 on failure
	State    BatchState // BatchReconciled, BatchRecovered or BatchFailed
	Err      error      // external call error when State is BatchFailed
}

// Observer is notified after each batch, in batch order, on the goroutine
// that called Run.
type Observer func(BatchReport)

// Summary counts a run's outcomes by provenance.
type Summary struct {
	Entries          int `json:"entries"`
	Batches          int `json:"batches"`
	Translated       int `json:"translated"`
	RecoveredPartial int `json:"recovered_partial"`
	Original         int `json:"original"`
}

// Result is everything a run produces. Content is always set, even when
// every batch failed.
type Result struct {
	State    RunState
	Content  string
	Outcomes []Outcome
	Batches  []BatchReport
}

// Entries returns the final entries without provenance.
func (r Result) Entries() []subtitle.Entry {
	entries := make([]subtitle.Entry, len(r.Outcomes))
	for i, o := range r.Outcomes {
		entries[i] = o.Entry
	}
	return entries
}

func (r Result) Summary() Summary {
	s := Summary{
		Entries: len(r.Outcomes),
		Batches: len(r.Batches),
	}
	for _, o := range r.Outcomes {
		switch o.Provenance {
		case ProvenanceTranslated:
			s.Translated++
		case ProvenanceRecoveredPartial:
			s.RecoveredPartial++
		case ProvenanceOriginal:
			s.Original++
		}
	}
	return s
}

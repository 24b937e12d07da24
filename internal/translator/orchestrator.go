package translator

import (
	"context"

	"github.com/MimeLyc/srt-batch-translator/internal/batcher"
	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

// Orchestrator drives subtitle content through parse, batch, translate and
// reassemble. It holds configuration only; every Run starts from scratch.
type Orchestrator struct {
	translate     TranslateFunc
	maxBatchChars int
	observer      Observer
}

type Option func(*Orchestrator)

// WithMaxBatchChars sets the advisory per-batch size budget. Non-positive
// values select batcher.DefaultMaxBatchChars.
func WithMaxBatchChars(n int) Option {
	return func(o *Orchestrator) {
		o.maxBatchChars = batcher.Normalize(n)
	}
}

// WithObserver registers a callback for per-batch progress.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

func NewOrchestrator(translate TranslateFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		translate:     translate,
		maxBatchChars: batcher.DefaultMaxBatchChars,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run translates content and always returns a completed result. Batches are
// sent one at a time in order; a failed or misshapen batch degrades only its
// own entries. Cancelling ctx makes the remaining external calls fail, which
// is handled like any other batch failure.
func (o *Orchestrator) Run(ctx context.Context, content string) Result {
	result := Result{State: RunNotStarted}

	entries := subtitle.Parse(content)
	batches := batcher.Make(entries, o.maxBatchChars)
	log.Info("Processing %d entries in %d batches", len(entries), len(batches))

	result.State = RunRunning
	result.Outcomes = make([]Outcome, 0, len(entries))
	result.Batches = make([]BatchReport, 0, len(batches))

	for _, b := range batches {
		outcomes, report := o.runBatch(ctx, b, len(batches))

		result.Outcomes = append(result.Outcomes, outcomes...)
		result.Batches = append(result.Batches, report)
		if o.observer != nil {
			o.observer(report)
		}
	}

	result.Content = subtitle.Serialize(result.Entries())
	result.State = RunCompleted
	return result
}

func (o *Orchestrator) runBatch(ctx context.Context, b batcher.Batch, total int) ([]Outcome, BatchReport) {
	report := BatchReport{
		Index: b.Index,
		Total: total,
		Start: b.Start,
		Size:  len(b.Entries),
		State: BatchPending,
	}

	log.Debug("Translating batch %d/%d with %d entries", b.Index+1, total, len(b.Entries))
	report.State = BatchTranslating

	translated, err := o.call(ctx, subtitle.Serialize(b.Entries))
	if err != nil {
		log.Error("Batch %d/%d (entries %d-%d) translation failed, keeping original text: %v",
			b.Index+1, total, b.Start+1, b.End(), err)
		report.State = BatchFailed
		report.Err = err
		return keepOriginal(b.Entries), report
	}

	candidates := subtitle.Parse(translated)
	report.Received = len(candidates)

	if len(candidates) == len(b.Entries) {
		report.State = BatchReconciled
		return pairByPosition(b.Entries, candidates, ProvenanceTranslated), report
	}

	log.Warn("Batch %d/%d (entries %d-%d) shape mismatch: expected %d entries, got %d",
		b.Index+1, total, b.Start+1, b.End(), len(b.Entries), len(candidates))
	report.State = BatchRecovered
	return pairByPosition(b.Entries, candidates, ProvenanceRecoveredPartial), report
}

// call invokes the injected function, turning a nil function or a panic into
// an ordinary batch failure.
func (o *Orchestrator) call(ctx context.Context, payload string) (out string, err error) {
	if o.translate == nil {
		return "", errNoTranslateFunc
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return o.translate(ctx, payload)
}

// pairByPosition keeps each original label and timing and takes the body
// text of the candidate at the same index. Missing or empty candidates fall
// back to the original text. Candidate labels are not compared.
func pairByPosition(originals, candidates []subtitle.Entry, provenance Provenance) []Outcome {
	outcomes := make([]Outcome, len(originals))
	for i, orig := range originals {
		text := orig.Text
		if i < len(candidates) && candidates[i].Text != "" {
			text = candidates[i].Text
		}
		outcomes[i] = Outcome{
			Entry: subtitle.Entry{
				Label:  orig.Label,
				Timing: orig.Timing,
				Text:   text,
			},
			Provenance: provenance,
		}
	}
	return outcomes
}

func keepOriginal(originals []subtitle.Entry) []Outcome {
	outcomes := make([]Outcome, len(originals))
	for i, orig := range originals {
		outcomes[i] = Outcome{Entry: orig, Provenance: ProvenanceOriginal}
	}
	return outcomes
}

package batcher

import (
	"strconv"
	"strings"

	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
)

const (
	// DefaultMaxBatchChars is used when no valid budget is configured.
	DefaultMaxBatchChars = 2000

	// Overhead approximates the newlines and separators an entry adds once
	// serialized.
	Overhead = 10
)

// Batch is a contiguous, non-empty run of entries sent to the translator
// in one request.
type Batch struct {
	Index   int // position among the run's batches
	Start   int // offset of the first entry in the run's entry sequence
	Entries []subtitle.Entry
}

// End returns the offset one past the batch's last entry.
func (b Batch) End() int {
	return b.Start + len(b.Entries)
}

// Estimate approximates the serialized size of e.
func Estimate(e subtitle.Entry) int {
	return len(e.Text) + len(e.Label) + len(e.Timing) + Overhead
}

// Normalize maps non-positive budgets to DefaultMaxBatchChars.
func Normalize(maxBatchChars int) int {
	if maxBatchChars <= 0 {
		return DefaultMaxBatchChars
	}
	return maxBatchChars
}

// ParseMaxChars reads a budget from text, falling back to
// DefaultMaxBatchChars when the value is absent, unparseable or not positive.
func ParseMaxChars(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return DefaultMaxBatchChars
	}
	return Normalize(n)
}

// Make partitions entries greedily into batches whose estimated size stays
// within maxBatchChars. The budget is advisory: an entry that is larger than
// the budget on its own still becomes a single-entry batch. Entries are never
// reordered, split, dropped or duplicated.
func Make(entries []subtitle.Entry, maxBatchChars int) []Batch {
	maxBatchChars = Normalize(maxBatchChars)

	var batches []Batch
	start := 0
	size := 0
	for i, e := range entries {
		est := Estimate(e)
		if i > start && size+est > maxBatchChars {
			batches = append(batches, newBatch(len(batches), start, entries[start:i]))
			start = i
			size = 0
		}
		size += est
	}
	if start < len(entries) {
		batches = append(batches, newBatch(len(batches), start, entries[start:]))
	}
	return batches
}

func newBatch(index, start int, entries []subtitle.Entry) Batch {
	// copy so callers cannot alias the input slice through a batch
	own := make([]subtitle.Entry, len(entries))
	copy(own, entries)
	return Batch{
		Index:   index,
		Start:   start,
		Entries: own,
	}
}

package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/MimeLyc/srt-batch-translator/internal/translator"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

// batchProgress renders batch completion for one file. On a terminal it
// draws a progress bar, otherwise each batch is logged.
type batchProgress struct {
	w           io.Writer
	name        string
	interactive bool
	bar         *progressbar.ProgressBar
}

func newBatchProgress(w io.Writer, name string) *batchProgress {
	return &batchProgress{
		w:           w,
		name:        name,
		interactive: isTerminal(w),
	}
}

func (p *batchProgress) observe(r translator.BatchReport) {
	if !p.interactive {
		if r.Err != nil {
			log.Warn("%s: batch %d/%d %s: %v", p.name, r.Index+1, r.Total, r.State, r.Err)
			return
		}
		log.Info("%s: batch %d/%d %s (%d/%d entries)", p.name, r.Index+1, r.Total, r.State, r.Received, r.Size)
		return
	}

	if p.bar == nil {
		p.bar = progressbar.NewOptions(r.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(p.name),
			progressbar.OptionSetItsString("batches"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(r.Index + 1)
}

func (p *batchProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

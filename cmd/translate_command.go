package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/srt-batch-translator/internal/service"
	"github.com/MimeLyc/srt-batch-translator/internal/termmap"
)

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var targetLanguage string
	var model string
	var batchChars int
	var glossaryPath string

	cmd := &cobra.Command{
		Use:   "translate FILE...",
		Short: "Translate .srt files one after another",
		Long: "Translate each .srt file and write <name>.<lang>.srt next to it, or into --output.\n" +
			"Batches the model fails to translate keep their original text.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if batchChars < 0 {
				return fmt.Errorf("--batch-chars must not be negative")
			}
			var glossary termmap.TermMap
			if glossaryPath != "" {
				glossary, err = termmap.Load(glossaryPath)
				if err != nil {
					return service.WrapError(err, service.ErrFileRead, "failed to load glossary").WithContext("path", glossaryPath)
				}
			}

			svc, err := service.New(*cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler := service.NewDefaultErrorHandler()
			rows := make([][]string, 0, len(args))
			failed := 0
			for _, path := range args {
				if runCtx.Err() != nil {
					rows = append(rows, []string{path, "skipped", "", "", "", "", "", "", ""})
					failed++
					continue
				}

				progress := newBatchProgress(cmd.ErrOrStderr(), filepath.Base(path))
				res, err := svc.TranslateFile(runCtx, service.FileRequest{
					Request: service.Request{
						TargetLanguage: targetLanguage,
						Model:          model,
						MaxBatchChars:  batchChars,
						Glossary:       glossary,
						Observer:       progress.observe,
					},
					InputPath: path,
					OutputDir: outputDir,
				})
				progress.finish()
				if err != nil {
					failed++
					if !errors.Is(err, context.Canceled) {
						handler.Handle(err)
					}
					rows = append(rows, []string{path, "failed", "", "", "", "", "", "", ""})
					continue
				}
				rows = append(rows, resultRow(res))
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Status", "Output", "Entries", "Batches", "Translated", "Recovered", "Original", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))

			if err := runCtx.Err(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for translated files (default: next to each input)")
	cmd.Flags().StringVarP(&targetLanguage, "lang", "l", "", "Target language tag, e.g. ja or pt-BR (default: TARGET_LANGUAGE)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model to use (default: LLM_MODEL or the server's first model)")
	cmd.Flags().IntVar(&batchChars, "batch-chars", 0, "Approximate characters per batch (default: MAX_BATCH_CHARS)")
	cmd.Flags().StringVarP(&glossaryPath, "glossary", "g", "", "JSON term map to use instead of term_map.<src>-<dst>.json lookup")

	return cmd
}

func resultRow(res *service.FileResult) []string {
	summary := res.Summary()
	status := "ok"
	if summary.Original > 0 || summary.RecoveredPartial > 0 {
		status = "partial"
	}
	return []string{
		res.InputPath,
		status,
		res.OutputPath,
		strconv.Itoa(summary.Entries),
		strconv.Itoa(summary.Batches),
		strconv.Itoa(summary.Translated),
		strconv.Itoa(summary.RecoveredPartial),
		strconv.Itoa(summary.Original),
		res.Duration.Round(time.Millisecond).String(),
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/MimeLyc/srt-batch-translator/internal/config"
	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/llm"
	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
	"github.com/MimeLyc/srt-batch-translator/internal/termmap"
	"github.com/MimeLyc/srt-batch-translator/internal/translator"
	"github.com/MimeLyc/srt-batch-translator/pkg/file"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

// OutcomeStore keeps the per-entry outcomes of finished jobs.
type OutcomeStore interface {
	SaveOutcomes(ctx context.Context, jobID string, outcomes []translator.Outcome) error
	LoadOutcomes(ctx context.Context, jobID string) ([]translator.Outcome, error)
}

// Service ties configuration, the LLM client and the orchestrator together.
// It is safe for concurrent use; ApplySettings swaps the configuration for
// later calls without disturbing running ones.
type Service struct {
	mu     sync.RWMutex
	cfg    config.Config
	client *llm.Client

	writer   subtitle.Writer
	outcomes OutcomeStore
}

type Option func(*Service)

// WithOutcomeStore persists job outcomes after each executed job.
func WithOutcomeStore(store OutcomeStore) Option {
	return func(s *Service) {
		s.outcomes = store
	}
}

func WithWriter(w subtitle.Writer) Option {
	return func(s *Service) {
		s.writer = w
	}
}

func New(cfg config.Config, opts ...Option) (*Service, error) {
	client, err := newLLMClient(cfg.LLM, "")
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:    cfg,
		client: client,
		writer: subtitle.NewWriter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newLLMClient(cfg config.LLMConfig, model string) (*llm.Client, error) {
	if strings.TrimSpace(model) == "" {
		model = cfg.Model
	}
	client, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.APIKey,
		APIURL:      cfg.APIURL,
		Model:       model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		SiteURL:     cfg.SiteURL,
		AppName:     cfg.AppName,
	})
	if err != nil {
		return nil, WrapError(err, ErrConfig, "failed to create LLM client")
	}
	return client, nil
}

// Config returns a copy of the current configuration.
func (s *Service) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ApplySettings rebuilds the LLM client from the runtime settings.
func (s *Service) ApplySettings(settings config.RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return WrapError(err, ErrValidation, "invalid runtime settings")
	}

	s.mu.RLock()
	next := s.cfg
	s.mu.RUnlock()
	config.WithRuntimeSettings(settings)(&next)

	client, err := newLLMClient(next.LLM, "")
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = next
	s.client = client
	s.mu.Unlock()
	log.Info("Applied runtime settings: llm=%s model=%q target=%s batch=%d",
		next.LLM.APIURL, next.LLM.Model, next.Translate.TargetLanguage, next.Translate.MaxBatchChars)
	return nil
}

// ListModels returns the models offered by the LLM server.
func (s *Service) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	models, err := client.GetModels(ctx)
	if err != nil {
		return nil, WrapError(err, ErrAPI, "failed to list models")
	}
	return models, nil
}

// Request selects per-call overrides. Zero values use the configuration.
type Request struct {
	TargetLanguage string
	Model          string
	MaxBatchChars  int
	Glossary       termmap.TermMap
	Observer       translator.Observer
}

// Translation is the outcome of one orchestrator run with its settings.
type Translation struct {
	RunID          string
	TargetLanguage language.Tag
	Model          string
	Result         translator.Result
	Duration       time.Duration
}

func (t *Translation) Summary() translator.Summary {
	return t.Result.Summary()
}

// TranslateContent translates SRT text. Batch failures degrade to the
// original text and never fail the call; errors come from resolving the
// target language or the model only.
func (s *Service) TranslateContent(ctx context.Context, content string, req Request) (*Translation, error) {
	s.mu.RLock()
	cfg := s.cfg
	client := s.client
	s.mu.RUnlock()

	target, err := targetLanguage(cfg, req.TargetLanguage)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Model) != "" {
		client, err = newLLMClient(cfg.LLM, req.Model)
		if err != nil {
			return nil, err
		}
	}
	model, err := client.Model(ctx)
	if err != nil {
		return nil, WrapError(err, ErrAPI, "failed to resolve model").
			WithContext("api_url", cfg.LLM.APIURL)
	}

	maxBatchChars := cfg.Translate.MaxBatchChars
	if req.MaxBatchChars != 0 {
		maxBatchChars = req.MaxBatchChars
	}

	runID := uuid.NewString()
	opts := []translator.Option{translator.WithMaxBatchChars(maxBatchChars)}
	if req.Observer != nil {
		opts = append(opts, translator.WithObserver(req.Observer))
	}
	var llmOpts []translator.LLMOption
	if len(req.Glossary) > 0 {
		llmOpts = append(llmOpts, translator.WithGlossary(req.Glossary))
	}
	orchestrator := translator.NewOrchestrator(translator.NewLLMTranslateFunc(client, target, llmOpts...), opts...)

	log.Info("Run %s: translating to %s with model %s", runID, target, model)
	start := time.Now()
	result := orchestrator.Run(ctx, content)
	elapsed := time.Since(start)

	summary := result.Summary()
	log.Info("Run %s: %d entries in %d batches (translated=%d recovered=%d original=%d) in %s",
		runID, summary.Entries, summary.Batches, summary.Translated, summary.RecoveredPartial,
		summary.Original, elapsed.Round(time.Millisecond))

	return &Translation{
		RunID:          runID,
		TargetLanguage: target,
		Model:          model,
		Result:         result,
		Duration:       elapsed,
	}, nil
}

// FileRequest describes one file translation.
type FileRequest struct {
	Request
	InputPath string
	// OutputPath defaults to <base>.<lang>.srt next to the input, or in
	// OutputDir when that is set.
	OutputPath string
	OutputDir  string
}

// FileResult is a finished file translation.
type FileResult struct {
	*Translation
	InputPath      string
	OutputPath     string
	SourceLanguage language.Tag
}

// TranslateFile reads an SRT file, translates it and writes the result.
func (s *Service) TranslateFile(ctx context.Context, req FileRequest) (*FileResult, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return nil, NewError(ErrValidation, "input path is required")
	}
	if !subtitle.IsSRT(req.InputPath) {
		return nil, NewError(ErrValidation, "only .srt files are supported").
			WithContext("path", req.InputPath)
	}

	src, err := subtitle.NewReader(req.InputPath).Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, WrapError(err, ErrFileNotFound, "subtitle file not found").WithContext("path", req.InputPath)
		}
		return nil, WrapError(err, ErrFileRead, "failed to read subtitle file").WithContext("path", req.InputPath)
	}
	log.Info("Read %s: %d entries, detected language %s", req.InputPath, len(src.Entries), src.Language)

	if req.Glossary == nil {
		target, err := targetLanguage(s.Config(), req.TargetLanguage)
		if err != nil {
			return nil, err
		}
		req.Glossary = findGlossary(req.InputPath, src.Language, target)
	}

	content := subtitle.Serialize(src.Entries)
	translation, err := s.TranslateContent(ctx, content, req.Request)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("translation of %s interrupted: %w", req.InputPath, err)
	}

	outputPath := req.OutputPath
	if strings.TrimSpace(outputPath) == "" {
		outputPath = file.TranslatedPath(req.InputPath, translation.TargetLanguage, req.OutputDir)
	}
	if err := s.writer.Write(outputPath, translation.Result.Content); err != nil {
		return nil, WrapError(err, ErrFileWrite, "failed to write translated subtitle").WithContext("path", outputPath)
	}
	log.Info("Wrote %s", outputPath)

	return &FileResult{
		Translation:    translation,
		InputPath:      req.InputPath,
		OutputPath:     outputPath,
		SourceLanguage: src.Language,
	}, nil
}

func targetLanguage(cfg config.Config, override string) (language.Tag, error) {
	if strings.TrimSpace(override) == "" {
		return cfg.Translate.TargetLanguage, nil
	}
	tag, err := language.Parse(override)
	if err != nil {
		return language.Und, WrapError(err, ErrValidation, "invalid target language").
			WithContext("target_language", override)
	}
	return tag, nil
}

// findGlossary loads the closest term_map.<src>-<dst>.json above the input
// file. A missing or unreadable map means no glossary.
func findGlossary(inputPath string, source, target language.Tag) termmap.TermMap {
	if source == language.Und {
		return nil
	}
	path, ok := termmap.Find(filepath.Dir(inputPath), source, target)
	if !ok {
		return nil
	}
	glossary, err := termmap.Load(path)
	if err != nil {
		log.Warn("Ignoring term map %s: %v", path, err)
		return nil
	}
	log.Info("Using term map %s (%d terms)", path, len(glossary))
	return glossary
}

// Execute runs a queued job. It is the queue's executor.
func (s *Service) Execute(ctx context.Context, job *jobs.TranslationJob, progress jobs.ProgressFunc) (*translator.Summary, error) {
	req := FileRequest{
		Request: Request{
			TargetLanguage: job.Payload.TargetLanguage,
			Model:          job.Payload.Model,
			MaxBatchChars:  job.Payload.MaxBatchChars,
			Observer: func(r translator.BatchReport) {
				if progress != nil {
					progress(r.Index+1, r.Total)
				}
			},
		},
		InputPath:  job.Payload.InputPath,
		OutputPath: job.Payload.OutputPath,
	}

	res, err := s.TranslateFile(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.outcomes != nil {
		if err := s.outcomes.SaveOutcomes(ctx, job.ID, res.Result.Outcomes); err != nil {
			log.Error("Failed to save outcomes of job %s: %v", job.ID, err)
		}
	}
	summary := res.Summary()
	return &summary, nil
}

// Outcomes returns the stored per-entry outcomes of a job.
func (s *Service) Outcomes(ctx context.Context, jobID string) ([]translator.Outcome, error) {
	if s.outcomes == nil {
		return nil, NewError(ErrConfig, "outcome store is not configured")
	}
	return s.outcomes.LoadOutcomes(ctx, jobID)
}

// DedupeKey identifies a file translation so the same input is not queued
// twice for one language.
func DedupeKey(inputPath string, target string) string {
	return inputPath + "|" + target
}

// NewFileJob builds the enqueue request for a file, filling the target
// language from the configuration and the output path from the input name
// when empty.
func (s *Service) NewFileJob(source string, payload jobs.JobPayload) (jobs.EnqueueRequest, error) {
	if strings.TrimSpace(payload.InputPath) == "" {
		return jobs.EnqueueRequest{}, NewError(ErrValidation, "input_path is required")
	}
	if !subtitle.IsSRT(payload.InputPath) {
		return jobs.EnqueueRequest{}, NewError(ErrValidation, "only .srt files are supported").
			WithContext("path", payload.InputPath)
	}
	target := s.Config().Translate.TargetLanguage
	if strings.TrimSpace(payload.TargetLanguage) == "" {
		payload.TargetLanguage = target.String()
	} else {
		tag, err := language.Parse(payload.TargetLanguage)
		if err != nil {
			return jobs.EnqueueRequest{}, WrapError(err, ErrValidation, "invalid target language").
				WithContext("target_language", payload.TargetLanguage)
		}
		target = tag
	}
	if strings.TrimSpace(payload.OutputPath) == "" {
		payload.OutputPath = file.TranslatedPath(payload.InputPath, target, "")
	}
	return jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: DedupeKey(payload.InputPath, payload.TargetLanguage),
		Payload:   payload,
	}, nil
}

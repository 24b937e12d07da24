package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/srt-batch-translator/internal/config"
	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/llm"
	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
	"github.com/MimeLyc/srt-batch-translator/internal/termmap"
	"github.com/MimeLyc/srt-batch-translator/internal/translator"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,000
Hello

2
00:00:03,000 --> 00:00:04,000
How are you?

3
00:00:05,000 --> 00:00:06,000
Goodbye`

// fakeLLM is an OpenAI-compatible server that "translates" by prefixing
// every entry's text with the requested marker.
type fakeLLM struct {
	*httptest.Server

	mu       sync.Mutex
	models   []string
	prompts  []string
	systems  []string
	failChat bool
}

func newFakeLLM(t *testing.T, models ...string) *fakeLLM {
	t.Helper()
	f := &fakeLLM{models: models}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeLLM) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/models":
		f.mu.Lock()
		data := make([]llm.ModelInfo, 0, len(f.models))
		for _, id := range f.models {
			data = append(data, llm.ModelInfo{ID: id, Object: "model"})
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	case "/chat/completions":
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		fail := f.failChat
		for _, m := range req.Messages {
			switch m.Role {
			case "system":
				f.systems = append(f.systems, m.Content)
			case "user":
				f.prompts = append(f.prompts, m.Content)
			}
		}
		f.mu.Unlock()
		if fail {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}

		entries := subtitle.Parse(req.Messages[len(req.Messages)-1].Content)
		for i := range entries {
			entries[i].Text = "JA " + entries[i].Text
		}
		_ = json.NewEncoder(w).Encode(llm.ChatResponse{
			ID:    "chatcmpl-1",
			Model: req.Model,
			Choices: []llm.Choice{{
				Message:      llm.Message{Role: "assistant", Content: subtitle.Serialize(entries)},
				FinishReason: "stop",
			}},
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeLLM) chatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testConfig(apiURL string) config.Config {
	return config.Config{
		LLM: config.LLMConfig{
			APIURL:      apiURL,
			MaxTokens:   2000,
			Temperature: 0.3,
			Timeout:     10,
		},
		Translate: config.TranslateConfig{
			TargetLanguage: language.Japanese,
			MaxBatchChars:  2000,
			CronExpr:       "0 * * * *",
			Workers:        1,
		},
	}
}

func newTestService(t *testing.T, cfg config.Config, opts ...Option) *Service {
	t.Helper()
	svc, err := New(cfg, opts...)
	require.NoError(t, err)
	return svc
}

func TestService_TranslateContent_UsesFirstListedModel(t *testing.T) {
	fake := newFakeLLM(t, "qwen2.5-7b-instruct", "llama-3.1-8b")
	svc := newTestService(t, testConfig(fake.URL))

	tr, err := svc.TranslateContent(context.Background(), sampleSRT, Request{})
	require.NoError(t, err)

	assert.Equal(t, "qwen2.5-7b-instruct", tr.Model)
	assert.Equal(t, language.Japanese, tr.TargetLanguage)
	assert.NotEmpty(t, tr.RunID)
	assert.Equal(t, translator.Summary{Entries: 3, Batches: 1, Translated: 3}, tr.Summary())
	assert.Equal(t, "JA Hello", tr.Result.Outcomes[0].Text)
	assert.Equal(t, "00:00:03,000 --> 00:00:04,000", tr.Result.Outcomes[1].Timing)
	assert.Equal(t, 1, fake.chatCalls())
	assert.Contains(t, fake.systems[0], "Japanese")
}

func TestService_TranslateContent_Overrides(t *testing.T) {
	fake := newFakeLLM(t, "default-model")
	svc := newTestService(t, testConfig(fake.URL))

	var reports []translator.BatchReport
	tr, err := svc.TranslateContent(context.Background(), sampleSRT, Request{
		TargetLanguage: "fr",
		Model:          "override-model",
		MaxBatchChars:  60,
		Observer:       func(r translator.BatchReport) { reports = append(reports, r) },
	})
	require.NoError(t, err)

	assert.Equal(t, "override-model", tr.Model)
	assert.Equal(t, language.French, tr.TargetLanguage)
	assert.Equal(t, 3, tr.Summary().Batches)
	assert.Len(t, reports, 3)
	assert.Equal(t, 3, fake.chatCalls())
	assert.Contains(t, fake.systems[0], "French")
}

func TestService_TranslateContent_ChatFailureKeepsOriginal(t *testing.T) {
	fake := newFakeLLM(t, "m")
	fake.failChat = true
	svc := newTestService(t, testConfig(fake.URL))

	tr, err := svc.TranslateContent(context.Background(), sampleSRT, Request{})
	require.NoError(t, err)

	assert.Equal(t, translator.Summary{Entries: 3, Batches: 1, Original: 3}, tr.Summary())
	assert.Equal(t, sampleSRT, tr.Result.Content)
}

func TestService_TranslateContent_Errors(t *testing.T) {
	t.Run("no models", func(t *testing.T) {
		fake := newFakeLLM(t)
		svc := newTestService(t, testConfig(fake.URL))

		_, err := svc.TranslateContent(context.Background(), sampleSRT, Request{})
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ErrAPI))
		assert.ErrorIs(t, err, llm.ErrNoModels)
		assert.Zero(t, fake.chatCalls())
	})

	t.Run("invalid target", func(t *testing.T) {
		fake := newFakeLLM(t, "m")
		svc := newTestService(t, testConfig(fake.URL))

		_, err := svc.TranslateContent(context.Background(), sampleSRT, Request{TargetLanguage: "??"})
		assert.True(t, IsErrorType(err, ErrValidation))
	})
}

func TestNew_InvalidLLMConfig(t *testing.T) {
	cfg := testConfig("")
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConfig))
}

func TestService_TranslateFile(t *testing.T) {
	fake := newFakeLLM(t, "m")
	svc := newTestService(t, testConfig(fake.URL))
	dir := t.TempDir()
	input := filepath.Join(dir, "episode01.srt")
	require.NoError(t, os.WriteFile(input, []byte(strings.ReplaceAll(sampleSRT, "\n", "\r\n")), 0o644))

	res, err := svc.TranslateFile(context.Background(), FileRequest{InputPath: input})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "episode01.ja.srt"), res.OutputPath)
	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	entries := subtitle.Parse(string(data))
	require.Len(t, entries, 3)
	assert.Equal(t, "JA Goodbye", entries[2].Text)
	assert.True(t, strings.HasSuffix(string(data), "JA Goodbye\n"))
}

func TestService_TranslateFile_OutputDirAndPath(t *testing.T) {
	fake := newFakeLLM(t, "m")
	svc := newTestService(t, testConfig(fake.URL))
	dir := t.TempDir()
	input := filepath.Join(dir, "ep.srt")
	require.NoError(t, os.WriteFile(input, []byte(sampleSRT), 0o644))

	res, err := svc.TranslateFile(context.Background(), FileRequest{InputPath: input, OutputDir: filepath.Join(dir, "out")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "ep.ja.srt"), res.OutputPath)

	explicit := filepath.Join(dir, "custom.srt")
	res, err = svc.TranslateFile(context.Background(), FileRequest{InputPath: input, OutputPath: explicit})
	require.NoError(t, err)
	assert.Equal(t, explicit, res.OutputPath)
	assert.FileExists(t, explicit)
}

type failingWriter struct{}

func (failingWriter) Write(string, string) error { return errors.New("disk full") }

func TestService_TranslateFile_Errors(t *testing.T) {
	fake := newFakeLLM(t, "m")
	dir := t.TempDir()
	input := filepath.Join(dir, "ep.srt")
	require.NoError(t, os.WriteFile(input, []byte(sampleSRT), 0o644))

	tests := []struct {
		name string
		svc  *Service
		req  FileRequest
		want ErrorType
	}{
		{name: "empty path", svc: newTestService(t, testConfig(fake.URL)), req: FileRequest{}, want: ErrValidation},
		{name: "not srt", svc: newTestService(t, testConfig(fake.URL)), req: FileRequest{InputPath: filepath.Join(dir, "ep.ass")}, want: ErrValidation},
		{name: "missing", svc: newTestService(t, testConfig(fake.URL)), req: FileRequest{InputPath: filepath.Join(dir, "nope.srt")}, want: ErrFileNotFound},
		{name: "write", svc: newTestService(t, testConfig(fake.URL), WithWriter(failingWriter{})), req: FileRequest{InputPath: input}, want: ErrFileWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.TranslateFile(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, TypeOf(err), err.Error())
		})
	}
}

func TestService_TranslateFile_CancelledDoesNotWrite(t *testing.T) {
	fake := newFakeLLM(t, "m")
	cfg := testConfig(fake.URL)
	cfg.LLM.Model = "m"
	svc := newTestService(t, cfg)
	dir := t.TempDir()
	input := filepath.Join(dir, "ep.srt")
	require.NoError(t, os.WriteFile(input, []byte(sampleSRT), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.TranslateFile(ctx, FileRequest{InputPath: input})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "ep.ja.srt"))
}

type memoryOutcomes struct {
	mu    sync.Mutex
	saved map[string][]translator.Outcome
}

func (m *memoryOutcomes) SaveOutcomes(_ context.Context, jobID string, outcomes []translator.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string][]translator.Outcome)
	}
	m.saved[jobID] = outcomes
	return nil
}

func (m *memoryOutcomes) LoadOutcomes(_ context.Context, jobID string) ([]translator.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[jobID], nil
}

func TestService_ExecuteThroughQueue(t *testing.T) {
	fake := newFakeLLM(t, "m")
	store := &memoryOutcomes{}
	svc := newTestService(t, testConfig(fake.URL), WithOutcomeStore(store))
	dir := t.TempDir()
	input := filepath.Join(dir, "ep.srt")
	require.NoError(t, os.WriteFile(input, []byte(sampleSRT), 0o644))

	q := jobs.NewQueue(1, nil)
	q.Start(svc.Execute)
	defer q.Stop()

	req, err := svc.NewFileJob("manual", jobs.JobPayload{InputPath: input, MaxBatchChars: 60})
	require.NoError(t, err)
	job, created := q.Enqueue(req)
	require.True(t, created)

	var done *jobs.TranslationJob
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		done = got
		return ok && got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, jobs.StatusSuccess, done.Status, done.Error)
	require.NotNil(t, done.Summary)
	assert.Equal(t, 3, done.Summary.Translated)
	assert.Equal(t, jobs.Progress{BatchesDone: 3, BatchesTotal: 3}, done.Progress)
	assert.FileExists(t, filepath.Join(dir, "ep.ja.srt"))

	outcomes, err := svc.Outcomes(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, translator.ProvenanceTranslated, outcomes[0].Provenance)
}

func TestService_ExecuteFailureMarksJobFailed(t *testing.T) {
	fake := newFakeLLM(t, "m")
	svc := newTestService(t, testConfig(fake.URL))

	q := jobs.NewQueue(1, nil)
	q.Start(svc.Execute)
	defer q.Stop()

	job, _ := q.Enqueue(jobs.EnqueueRequest{Source: "manual", Payload: jobs.JobPayload{InputPath: "/does/not/exist.srt"}})
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == jobs.StatusFailed && strings.Contains(got.Error, "FileNotFound")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_NewFileJob(t *testing.T) {
	svc := newTestService(t, testConfig("http://127.0.0.1:1/v1"))

	req, err := svc.NewFileJob("manual", jobs.JobPayload{InputPath: "/m/ep.srt"})
	require.NoError(t, err)
	assert.Equal(t, "ja", req.Payload.TargetLanguage)
	assert.Equal(t, "/m/ep.srt|ja", req.DedupeKey)
	assert.Equal(t, "manual", req.Source)
	assert.Equal(t, filepath.Join("/m", "ep.ja.srt"), req.Payload.OutputPath)

	req, err = svc.NewFileJob("cron", jobs.JobPayload{InputPath: "/m/ep.srt", TargetLanguage: "de"})
	require.NoError(t, err)
	assert.Equal(t, "/m/ep.srt|de", req.DedupeKey)
	assert.Equal(t, filepath.Join("/m", "ep.de.srt"), req.Payload.OutputPath)

	req, err = svc.NewFileJob("manual", jobs.JobPayload{InputPath: "/m/ep.srt", OutputPath: "/out/x.srt"})
	require.NoError(t, err)
	assert.Equal(t, "/out/x.srt", req.Payload.OutputPath)

	_, err = svc.NewFileJob("manual", jobs.JobPayload{})
	assert.True(t, IsErrorType(err, ErrValidation))
	_, err = svc.NewFileJob("manual", jobs.JobPayload{InputPath: "/m/ep.ass"})
	assert.True(t, IsErrorType(err, ErrValidation))
	_, err = svc.NewFileJob("manual", jobs.JobPayload{InputPath: "/m/ep.srt", TargetLanguage: "!!"})
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestService_ManualAndCronShareDedupe(t *testing.T) {
	svc := newTestService(t, testConfig("http://127.0.0.1:1/v1"))
	q := jobs.NewQueue(1, nil)

	fromCron, err := svc.NewFileJob("cron", jobs.JobPayload{InputPath: "/m/ep.srt"})
	require.NoError(t, err)
	fromManual, err := svc.NewFileJob("manual", jobs.JobPayload{InputPath: "/m/ep.srt", TargetLanguage: "ja"})
	require.NoError(t, err)

	jobA, createdA := q.Enqueue(fromCron)
	jobB, createdB := q.Enqueue(fromManual)
	assert.True(t, createdA)
	assert.False(t, createdB)
	assert.Equal(t, jobA.ID, jobB.ID)
}

func TestService_ApplySettings(t *testing.T) {
	fake := newFakeLLM(t, "listed")
	svc := newTestService(t, testConfig("http://127.0.0.1:1/v1"))

	err := svc.ApplySettings(config.RuntimeSettings{
		LLMAPIURL:      fake.URL,
		LLMModel:       "chosen",
		TargetLanguage: "de",
		MaxBatchChars:  900,
		CronExpr:       "*/5 * * * *",
	})
	require.NoError(t, err)

	cfg := svc.Config()
	assert.Equal(t, fake.URL, cfg.LLM.APIURL)
	assert.Equal(t, language.German, cfg.Translate.TargetLanguage)
	assert.Equal(t, 900, cfg.Translate.MaxBatchChars)

	tr, err := svc.TranslateContent(context.Background(), sampleSRT, Request{})
	require.NoError(t, err)
	assert.Equal(t, "chosen", tr.Model)
	assert.Equal(t, language.German, tr.TargetLanguage)

	models, err := svc.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "listed", models[0].ID)

	err = svc.ApplySettings(config.RuntimeSettings{LLMAPIURL: fake.URL, TargetLanguage: "de", CronExpr: "nope"})
	assert.True(t, IsErrorType(err, ErrValidation))
	assert.Equal(t, language.German, svc.Config().Translate.TargetLanguage)
}

func TestService_ListModels_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()
	svc := newTestService(t, testConfig(server.URL))

	_, err := svc.ListModels(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrAPI, TypeOf(err))
}

const englishSRT = `1
00:00:01,000 --> 00:00:04,000
Okarun is walking to school this morning with all of his friends.

2
00:00:05,000 --> 00:00:08,000
The weather is beautiful today and everyone seems to be very happy.`

func TestService_TranslateFile_UsesNearestTermMap(t *testing.T) {
	fake := newFakeLLM(t, "m")
	svc := newTestService(t, testConfig(fake.URL))

	root := t.TempDir()
	season := filepath.Join(root, "Season 1")
	require.NoError(t, os.MkdirAll(season, 0o755))
	input := filepath.Join(season, "ep01.srt")
	require.NoError(t, os.WriteFile(input, []byte(englishSRT), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "term_map.en-ja.json"),
		[]byte(`{"Okarun":"オカルン","Turbo Granny":"ターボババア"}`), 0o644))

	res, err := svc.TranslateFile(context.Background(), FileRequest{InputPath: input})
	require.NoError(t, err)
	assert.Equal(t, "en", res.SourceLanguage.String())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.systems, 1)
	assert.Contains(t, fake.systems[0], "- Okarun => オカルン")
	assert.NotContains(t, fake.systems[0], "Turbo Granny")
}

func TestService_TranslateContent_ExplicitGlossary(t *testing.T) {
	fake := newFakeLLM(t, "m")
	svc := newTestService(t, testConfig(fake.URL))

	_, err := svc.TranslateContent(context.Background(), sampleSRT, Request{
		Glossary: termmap.TermMap{"Goodbye": "さようなら"},
	})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.systems[0], "- Goodbye => さようなら")
}

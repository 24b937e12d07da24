package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/pkg/file"
	"github.com/MimeLyc/srt-batch-translator/pkg/icron"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

// Enqueuer is the part of the job queue a scan needs.
type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.TranslationJob, bool)
}

// Scheduler scans the watch directories on a cron schedule and queues
// every new .srt file that has no translation yet.
type Scheduler struct {
	svc   *Service
	queue Enqueuer
	cron  *cron.Cron

	group singleflight.Group

	mu       sync.Mutex
	cronExpr string
	entryID  cron.EntryID
	lastScan time.Time
}

func NewScheduler(svc *Service, queue Enqueuer, c *cron.Cron) *Scheduler {
	return &Scheduler{
		svc:   svc,
		queue: queue,
		cron:  c,
	}
}

// Schedule registers the scan with the configured cron expression.
func (s *Scheduler) Schedule(ctx context.Context) error {
	return s.Reschedule(ctx, s.svc.Config().Translate.CronExpr)
}

// Reschedule replaces the registered scan with one for cronExpr.
func (s *Scheduler) Reschedule(ctx context.Context, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 && cronExpr == s.cronExpr {
		return nil
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		err := SafeExecute(func() error {
			_, err := s.Scan(ctx)
			return err
		})
		if err != nil {
			log.Error("Scheduled scan failed: %v", err)
		}
	})
	if err != nil {
		return WrapError(err, ErrConfig, "invalid cron expression").WithContext("cron_expr", cronExpr)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = id
	s.cronExpr = cronExpr
	log.Info("Scheduled directory scans with %q", cronExpr)
	return nil
}

// NextScan returns the next scheduled scan, zero when none is registered.
func (s *Scheduler) NextScan() time.Time {
	s.mu.Lock()
	expr := s.cronExpr
	registered := s.entryID != 0
	s.mu.Unlock()
	if !registered {
		return time.Time{}
	}

	info, err := icron.GetTriggerInfo(expr, time.Now())
	if err != nil {
		return time.Time{}
	}
	return info.Next
}

// Scan walks the watch directories once and returns the number of newly
// queued jobs. Concurrent calls share one scan.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("scan", func() (any, error) {
		return s.scan(ctx)
	})
	n, _ := v.(int)
	return n, err
}

func (s *Scheduler) scan(ctx context.Context) (int, error) {
	cfg := s.svc.Config()
	target := cfg.Translate.TargetLanguage

	s.mu.Lock()
	since := s.lastScan
	s.mu.Unlock()
	started := time.Now()

	queued := 0
	var firstErr error
	for _, dir := range cfg.Translate.WatchDirs {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		log.Info("Scanning %s for subtitles changed since %v", dir, since)

		paths, err := file.FindSubtitles(dir, since)
		if err != nil {
			log.Error("Failed to scan %s: %v", dir, err)
			if firstErr == nil {
				firstErr = WrapError(err, ErrFileRead, "failed to scan directory").WithContext("dir", dir)
			}
			continue
		}

		for _, path := range paths {
			if file.IsTranslatedFor(path, target) {
				continue
			}
			if _, err := os.Stat(file.TranslatedPath(path, target, "")); err == nil {
				continue
			}

			req, err := s.svc.NewFileJob("cron", jobs.JobPayload{InputPath: path})
			if err != nil {
				log.Warn("Skipping %s: %v", path, err)
				continue
			}
			if job, created := s.queue.Enqueue(req); created {
				log.Info("Queued %s as job %s", path, job.ID)
				queued++
			}
		}
	}

	if firstErr != nil {
		// keep the old watermark so the failed directory is rescanned in full
		return queued, fmt.Errorf("scan finished with errors: %w", firstErr)
	}

	s.mu.Lock()
	s.lastScan = started
	s.mu.Unlock()
	return queued, nil
}

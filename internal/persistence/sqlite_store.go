package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/srt-batch-translator/internal/jobs"
	"github.com/MimeLyc/srt-batch-translator/internal/subtitle"
	"github.com/MimeLyc/srt-batch-translator/internal/translator"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps job records and the per-entry outcomes of finished jobs.
type SQLiteStore struct {
	db *sql.DB
}

var _ jobs.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.TranslationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, input_path, output_path, target_language, model,
			max_batch_chars, status, error, summary_json, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.TranslationJob, 0)
	for rows.Next() {
		var item jobs.TranslationJob
		var status string
		var summaryJSON sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.InputPath,
			&item.Payload.OutputPath,
			&item.Payload.TargetLanguage,
			&item.Payload.Model,
			&item.Payload.MaxBatchChars,
			&status,
			&item.Error,
			&summaryJSON,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		if summaryJSON.Valid && summaryJSON.String != "" {
			var summary translator.Summary
			if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
				return nil, fmt.Errorf("decode summary of job %s: %w", item.ID, err)
			}
			item.Summary = &summary
			item.Progress = jobs.Progress{BatchesDone: summary.Batches, BatchesTotal: summary.Batches}
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.TranslationJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	var summaryJSON sql.NullString
	if job.Summary != nil {
		data, err := json.Marshal(job.Summary)
		if err != nil {
			return err
		}
		summaryJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, input_path, output_path, target_language, model,
			max_batch_chars, status, error, summary_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			input_path=excluded.input_path,
			output_path=excluded.output_path,
			target_language=excluded.target_language,
			model=excluded.model,
			max_batch_chars=excluded.max_batch_chars,
			status=excluded.status,
			error=excluded.error,
			summary_json=excluded.summary_json,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.InputPath,
		job.Payload.OutputPath,
		job.Payload.TargetLanguage,
		job.Payload.Model,
		job.Payload.MaxBatchChars,
		string(job.Status),
		job.Error,
		summaryJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// SaveOutcomes replaces the stored outcomes of a job.
func (s *SQLiteStore) SaveOutcomes(ctx context.Context, jobID string, outcomes []translator.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_outcomes WHERE job_id = ?`, jobID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO job_outcomes (job_id, position, label, timing, text, provenance)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, jobID, i, o.Label, o.Timing, o.Text, o.Provenance.String()); err != nil {
			return fmt.Errorf("insert outcome %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadOutcomes returns the stored outcomes of a job in entry order.
func (s *SQLiteStore) LoadOutcomes(ctx context.Context, jobID string) ([]translator.Outcome, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT label, timing, text, provenance
		 FROM job_outcomes
		 WHERE job_id = ?
		 ORDER BY position ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]translator.Outcome, 0)
	for rows.Next() {
		var entry subtitle.Entry
		var provenance string
		if err := rows.Scan(&entry.Label, &entry.Timing, &entry.Text, &provenance); err != nil {
			return nil, err
		}
		p, err := translator.ParseProvenance(provenance)
		if err != nil {
			return nil, err
		}
		ret = append(ret, translator.Outcome{Entry: entry, Provenance: p})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJobData(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_outcomes WHERE job_id = ?`, jobID)
	return err
}

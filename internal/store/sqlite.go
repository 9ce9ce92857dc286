// Package store provides the SQLite-backed implementation of model.Store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/model"
)

// SQLiteStore is the durable Store backing the core. A single SQLite file
// may be shared by several cooperating processes; ClaimStage uses a
// conditional UPDATE to make concurrent claims of the same (job, stage) row
// safe without an external lock.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// the schema migration.
func Open(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one *sql.DB
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		uploader TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 0,
		upload_date TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		recording_id INTEGER NOT NULL REFERENCES recordings(id),
		start_seconds INTEGER NOT NULL DEFAULT 0,
		end_seconds INTEGER NOT NULL DEFAULT 0,
		directory TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_stages (
		job_id TEXT NOT NULL REFERENCES jobs(id),
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		finished_at TEXT,
		next_eligible_at TEXT NOT NULL,
		output_path TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (job_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_job_stages_name_state ON job_stages(name, state);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// WithTx runs fn inside a SQL transaction, committing on nil return and
// rolling back otherwise.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateRecording(ctx context.Context, rec *model.Recording) (int64, error) {
	if rec == nil || rec.SourceID == "" {
		return 0, errors.New("recording.SourceID is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id FROM recordings WHERE source_id = ?`, rec.SourceID)
		if scanErr := row.Scan(&id); scanErr == nil {
			return nil
		} else if !errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("lookup recording: %w", scanErr)
		}

		res, execErr := tx.ExecContext(ctx,
			`INSERT INTO recordings (source_id, title, uploader, duration, upload_date, url, description, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SourceID, rec.Title, rec.Uploader, rec.Duration, rec.UploadDate, rec.URL, rec.Description, fmtTime(rec.CreatedAt),
		)
		if execErr != nil {
			return fmt.Errorf("insert recording: %w", execErr)
		}
		id, execErr = res.LastInsertId()
		if execErr != nil {
			return fmt.Errorf("recording last insert id: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job.ID is required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, recording_id, start_seconds, end_seconds, directory, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.RecordingID, job.StartSeconds, job.EndSeconds, job.Directory, fmtTime(job.CreatedAt), fmtTime(job.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		for _, def := range model.StageCatalog {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO job_stages (job_id, name, state, attempt_count, last_error, next_eligible_at, output_path)
				 VALUES (?, ?, ?, 0, '', ?, '')`,
				job.ID, string(def.Name), string(model.StatePending), fmtTime(now),
			)
			if err != nil {
				return fmt.Errorf("insert stage %s: %w", def.Name, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetJobWithRecording(ctx context.Context, jobID string) (*model.JobWithRecording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT j.id, j.recording_id, j.start_seconds, j.end_seconds, j.directory, j.created_at, j.updated_at,
		       r.id, r.source_id, r.title, r.uploader, r.duration, r.upload_date, r.url, r.description, r.created_at
		FROM jobs j JOIN recordings r ON r.id = j.recording_id
		WHERE j.id = ?`, jobID)

	var out model.JobWithRecording
	var jobCreated, jobUpdated, recCreated string
	if err := row.Scan(
		&out.Job.ID, &out.Job.RecordingID, &out.Job.StartSeconds, &out.Job.EndSeconds, &out.Job.Directory, &jobCreated, &jobUpdated,
		&out.Recording.ID, &out.Recording.SourceID, &out.Recording.Title, &out.Recording.Uploader, &out.Recording.Duration,
		&out.Recording.UploadDate, &out.Recording.URL, &out.Recording.Description, &recCreated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("scan job with recording: %w", err)
	}
	if t, err := parseTime(jobCreated); err == nil {
		out.Job.CreatedAt = t
	}
	if t, err := parseTime(jobUpdated); err == nil {
		out.Job.UpdatedAt = t
	}
	if t, err := parseTime(recCreated); err == nil {
		out.Recording.CreatedAt = t
	}
	return &out, nil
}

func scanStage(rows interface {
	Scan(dest ...any) error
}) (model.Stage, error) {
	var st model.Stage
	var name, state, started, finished, nextEligible sql.NullString
	if err := rows.Scan(&st.JobID, &name, &state, &st.AttemptCount, &st.LastError, &started, &finished, &nextEligible, &st.OutputPath); err != nil {
		return model.Stage{}, err
	}
	st.Name = model.StageName(name.String)
	st.State = model.StageState(state.String)
	if started.Valid && started.String != "" {
		if t, err := parseTime(started.String); err == nil {
			st.StartedAt = &t
		}
	}
	if finished.Valid && finished.String != "" {
		if t, err := parseTime(finished.String); err == nil {
			st.FinishedAt = &t
		}
	}
	if nextEligible.Valid && nextEligible.String != "" {
		if t, err := parseTime(nextEligible.String); err == nil {
			st.NextEligibleAt = t
		}
	}
	return st, nil
}

func (s *SQLiteStore) ListStagesForJob(ctx context.Context, jobID string) ([]model.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, name, state, attempt_count, last_error, started_at, finished_at, next_eligible_at, output_path
		FROM job_stages WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	byName := make(map[model.StageName]model.Stage, len(model.StageCatalog))
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		byName[st.Name] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Stage, 0, len(model.StageCatalog))
	for _, def := range model.StageCatalog {
		if st, ok := byName[def.Name]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetStage(ctx context.Context, jobID string, stage model.StageName) (*model.Stage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, name, state, attempt_count, last_error, started_at, finished_at, next_eligible_at, output_path
		FROM job_stages WHERE job_id = ? AND name = ?`, jobID, string(stage))
	st, err := scanStage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("stage %s for job %s not found", stage, jobID)
		}
		return nil, fmt.Errorf("scan stage: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) ListJobsEligibleForStage(ctx context.Context, stage model.StageName) ([]string, error) {
	def, ok := model.StageDefFor(stage)
	if !ok {
		return nil, fmt.Errorf("unknown stage %s", stage)
	}

	var rows *sql.Rows
	var err error
	now := fmtTime(time.Now())
	if def.Prev == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT job_id FROM job_stages
			WHERE name = ? AND (state = ? OR (state = ? AND next_eligible_at <= ?))
			ORDER BY job_id`, string(stage), string(model.StatePending), string(model.StateFailed), now)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT cur.job_id FROM job_stages cur
			JOIN job_stages prev ON prev.job_id = cur.job_id AND prev.name = ?
			WHERE cur.name = ? AND prev.state = ?
			  AND (cur.state = ? OR (cur.state = ? AND cur.next_eligible_at <= ?))
			ORDER BY cur.job_id`,
			string(def.Prev), string(stage), string(model.StateSuccess),
			string(model.StatePending), string(model.StateFailed), now)
	}
	if err != nil {
		return nil, fmt.Errorf("list eligible jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan eligible job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ListJobsByStageState(ctx context.Context, stage model.StageName, state model.StageState) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id FROM job_stages WHERE name = ? AND state = ? ORDER BY job_id`,
		string(stage), string(state))
	if err != nil {
		return nil, fmt.Errorf("list jobs by stage state: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimStage atomically moves (jobID, stage) from pending/eligible-failed to
// running. The UPDATE's WHERE clause is the compare half of the
// compare-and-swap: a concurrent claim loses the race because its UPDATE
// matches zero rows once the first claim commits.
func (s *SQLiteStore) ClaimStage(ctx context.Context, jobID string, stage model.StageName, now time.Time) (bool, int, error) {
	var claimed bool
	var attempt int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE job_stages
			SET state = ?, attempt_count = attempt_count + 1, started_at = ?, last_error = ''
			WHERE job_id = ? AND name = ?
			  AND (state = ? OR (state = ? AND next_eligible_at <= ?))`,
			string(model.StateRunning), fmtTime(now), jobID, string(stage),
			string(model.StatePending), string(model.StateFailed), fmtTime(now),
		)
		if err != nil {
			return fmt.Errorf("claim stage: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim stage rows affected: %w", err)
		}
		if n == 0 {
			claimed = false
			return nil
		}
		claimed = true
		row := tx.QueryRowContext(ctx, `SELECT attempt_count FROM job_stages WHERE job_id = ? AND name = ?`, jobID, string(stage))
		if err := row.Scan(&attempt); err != nil {
			return fmt.Errorf("read claimed attempt count: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return claimed, attempt, nil
}

func (s *SQLiteStore) FinishStageSuccess(ctx context.Context, jobID string, stage model.StageName, outputPath string, finishedAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE job_stages SET state = ?, output_path = ?, finished_at = ?, last_error = ''
			WHERE job_id = ? AND name = ?`,
			string(model.StateSuccess), outputPath, fmtTime(finishedAt), jobID, string(stage),
		); err != nil {
			return fmt.Errorf("finish stage success: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, fmtTime(finishedAt), jobID); err != nil {
			return fmt.Errorf("touch job: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) FinishStageFailure(ctx context.Context, jobID string, stage model.StageName, lastError string, nextEligibleAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE job_stages SET state = ?, last_error = ?, next_eligible_at = ?
			WHERE job_id = ? AND name = ?`,
			string(model.StateFailed), lastError, fmtTime(nextEligibleAt), jobID, string(stage),
		); err != nil {
			return fmt.Errorf("finish stage failure: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, fmtTime(time.Now()), jobID); err != nil {
			return fmt.Errorf("touch job: %w", err)
		}
		return nil
	})
}

// ReclaimAbandoned resets every stage left in running (e.g. the process
// crashed mid-claim) back to pending, preserving attempt_count. Call once at
// store startup before any dispatch begins.
func (s *SQLiteStore) ReclaimAbandoned(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_stages SET state = ?, last_error = 'abandoned' WHERE state = ?`,
		string(model.StatePending), string(model.StateRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim abandoned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim abandoned rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ model.Store = (*SQLiteStore)(nil)

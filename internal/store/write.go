package store

import (
	"context"
	"fmt"

	"github.com/roach88/routegen/internal/model"
)

// Run status values stored in runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// RunRecord is the summary row of one generation run.
type RunRecord struct {
	ID            string
	RequestHash   string
	Scope         string
	TemplateIDs   []string
	JobCount      int
	StartedSeq    int64
	FinishedSeq   int64 // 0 while running
	Status        string
	Error         string
	EngineVersion string
}

// RunEvent is one progress notification of a run.
// Detail is a canonical JSON object.
type RunEvent struct {
	RunID  string
	Seq    int64
	Kind   string
	State  string
	Detail string
}

// BeginRun inserts a run in the running state.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginRun(ctx context.Context, run RunRecord) error {
	templates, err := marshalStrings(run.TemplateIDs)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	version := run.EngineVersion
	if version == "" {
		version = model.EngineVersion
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, request_hash, scope, templates, job_count, started_seq, status, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.RequestHash,
		run.Scope,
		templates,
		run.JobCount,
		run.StartedSeq,
		RunStatusRunning,
		version,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// AppendRunEvent records a progress notification.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) AppendRunEvent(ctx context.Context, ev RunEvent) error {
	detail := ev.Detail
	if detail == "" {
		detail = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, seq, kind, state, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, ev.RunID, ev.Seq, ev.Kind, ev.State, detail)
	if err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal and stores its ordered artifacts.
// The status update and the artifact rows are written atomically.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string, seq int64, artifacts []model.ArtifactDescriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_seq = ?
		WHERE id = ?
	`, status, errMsg, seq, runID)
	if err != nil {
		return fmt.Errorf("finish run: update: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
	}

	for pos, a := range artifacts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (run_id, position, name, template_id, job_id, ref)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, position) DO NOTHING
		`, runID, pos, a.Name, a.TemplateID, a.JobID, a.Ref)
		if err != nil {
			return fmt.Errorf("finish run: artifact %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finish run: commit: %w", err)
	}
	return nil
}

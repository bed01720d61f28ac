package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/routegen/internal/model"
)

const runColumns = `id, request_hash, scope, templates, job_count, started_seq,
	COALESCE(finished_seq, 0), status, error, engine_version`

// ListRuns returns the most recent runs, newest first.
// A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_seq DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a run and its artifacts in result order.
// Returns an error wrapping ErrNotFound if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, []model.ArtifactDescriptor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, nil, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, template_id, job_id, ref
		FROM artifacts
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return RunRecord{}, nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []model.ArtifactDescriptor{}
	for rows.Next() {
		var a model.ArtifactDescriptor
		if err := rows.Scan(&a.Name, &a.TemplateID, &a.JobID, &a.Ref); err != nil {
			return RunRecord{}, nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return run, artifacts, nil
}

// ReadRunEvents returns the progress events of a run ordered by seq.
// Returns an empty slice (not nil) if none were recorded.
func (s *Store) ReadRunEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, state, detail
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	events := []RunEvent{}
	for rows.Next() {
		var ev RunEvent
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.Kind, &ev.State, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return events, nil
}

// MaxSeq returns the highest logical seq recorded in the run log, or 0.
// A new orchestrator clock starts from here so seqs stay ordered across
// processes.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM run_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		r         RunRecord
		templates string
	)
	err := row.Scan(&r.ID, &r.RequestHash, &r.Scope, &templates, &r.JobCount, &r.StartedSeq,
		&r.FinishedSeq, &r.Status, &r.Error, &r.EngineVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	r.TemplateIDs, err = unmarshalStrings(templates)
	if err != nil {
		return RunRecord{}, err
	}
	return r, nil
}

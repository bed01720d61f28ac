package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/routegen/internal/engine"
)

// Recorder persists orchestrator progress into the run log.
//
// It implements engine.Listener. Write failures never interrupt a run;
// they are logged and collected for Err.
type Recorder struct {
	store  *Store
	ctx    context.Context
	logger *slog.Logger

	mu  sync.Mutex
	err error
}

// NewRecorder creates a Recorder writing through s. A nil logger uses
// slog.Default().
func NewRecorder(ctx context.Context, s *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, ctx: context.WithoutCancel(ctx), logger: logger}
}

// OnProgress records p. run_started creates the run row and run_finished
// closes it with the ordered artifacts.
func (r *Recorder) OnProgress(p engine.Progress) {
	if p.Kind == engine.ProgressRunStarted {
		err := r.store.BeginRun(r.ctx, RunRecord{
			ID:          p.RunID,
			RequestHash: p.RequestHash,
			Scope:       p.Scope.String(),
			TemplateIDs: p.TemplateIDs,
			JobCount:    p.JobCount,
			StartedSeq:  p.Seq,
		})
		if err != nil {
			r.fail(p, err)
			return
		}
	}

	detail, err := marshalDetail(p.Detail())
	if err != nil {
		r.fail(p, err)
		return
	}
	err = r.store.AppendRunEvent(r.ctx, RunEvent{
		RunID:  p.RunID,
		Seq:    p.Seq,
		Kind:   string(p.Kind),
		State:  p.State.String(),
		Detail: detail,
	})
	if err != nil {
		r.fail(p, err)
		return
	}

	if p.Kind == engine.ProgressRunFinished {
		err := r.store.FinishRun(r.ctx, p.RunID, string(p.Status), p.Error, p.Seq, p.Artifacts)
		if err != nil {
			r.fail(p, err)
		}
	}
}

// Err returns the joined write failures, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) fail(p engine.Progress, err error) {
	r.logger.Error("run log write failed",
		"run_id", p.RunID,
		"seq", p.Seq,
		"kind", p.Kind,
		"error", err)

	r.mu.Lock()
	r.err = errors.Join(r.err, err)
	r.mu.Unlock()
}

package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/routegen/internal/model"
)

// collect returns a done callback that records every delivered result.
func collect() (func(Result), func(t *testing.T) []Result) {
	var mu sync.Mutex
	var results []Result
	ch := make(chan struct{}, 16)

	done := func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		ch <- struct{}{}
	}
	wait := func(t *testing.T) []Result {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for result")
		}
		// Give a buggy runner a chance to deliver a second callback.
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return append([]Result(nil), results...)
	}
	return done, wait
}

func TestRunner_Completed(t *testing.T) {
	r := New()
	done, wait := collect()

	err := r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return []model.ArtifactDescriptor{{Name: "a", TemplateID: "t", Ref: "ref"}}, nil
	}, done)
	require.NoError(t, err)

	results := wait(t)
	require.Len(t, results, 1)
	assert.Equal(t, StatusCompleted, results[0].Status)
	assert.Len(t, results[0].Artifacts, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 0, r.InFlight())
	assert.Equal(t, 1, r.Started())
}

func TestRunner_Failed(t *testing.T) {
	r := New()
	done, wait := collect()
	boom := errors.New("boom")

	require.NoError(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return nil, boom
	}, done))

	results := wait(t)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.ErrorIs(t, results[0].Err, boom)
}

func TestRunner_PanicIsFailure(t *testing.T) {
	r := New()
	done, wait := collect()

	require.NoError(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		panic("kaboom")
	}, done))

	results := wait(t)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Err.Error(), "kaboom")
	assert.Equal(t, 0, r.InFlight())
}

func TestRunner_CancelInFlight(t *testing.T) {
	r := New()
	done, wait := collect()
	started := make(chan struct{})

	require.NoError(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, done))

	<-started
	assert.True(t, r.Cancel())

	results := wait(t)
	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
	assert.NoError(t, results[0].Err)
}

// An operation that ignores the cancel and returns artifacts is still
// reported as cancelled.
func TestRunner_CancelWinsOverLateSuccess(t *testing.T) {
	r := New()
	done, wait := collect()
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		close(started)
		<-release
		return []model.ArtifactDescriptor{{Name: "late"}}, nil
	}, done))

	<-started
	require.True(t, r.Cancel())
	close(release)

	results := wait(t)
	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
	assert.Empty(t, results[0].Artifacts)
}

func TestRunner_CancelAfterCompletion(t *testing.T) {
	r := New()
	done, wait := collect()

	require.NoError(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return []model.ArtifactDescriptor{{Name: "a"}}, nil
	}, done))

	results := wait(t)
	assert.False(t, r.Cancel())

	require.Len(t, results, 1)
	assert.Equal(t, StatusCompleted, results[0].Status)
}

func TestRunner_ParentContextCancelled(t *testing.T) {
	r := New()
	done, wait := collect()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	require.NoError(t, r.Run(ctx, func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, done))

	<-started
	cancel()

	results := wait(t)
	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
}

func TestRunner_BusyWhileInFlight(t *testing.T) {
	r := New()
	done, wait := collect()
	release := make(chan struct{})

	require.NoError(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		<-release
		return nil, nil
	}, done))

	err := r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return nil, nil
	}, done)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, r.InFlight())

	close(release)
	results := wait(t)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, r.MaxInFlight())
	assert.Equal(t, 1, r.Started())
}

// Chaining from done must work: the runner is idle by the time done runs.
func TestRunner_ChainFromDone(t *testing.T) {
	r := New()
	var order []int
	var mu sync.Mutex
	finished := make(chan struct{})

	var step func(i int)
	step = func(i int) {
		err := r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}, func(Result) {
			if i == 3 {
				close(finished)
				return
			}
			step(i + 1)
		})
		assert.NoError(t, err)
	}
	step(1)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("chain did not finish")
	}
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 1, r.MaxInFlight())
	assert.Equal(t, 3, r.Started())
}

func TestRunner_RequiresCallbacks(t *testing.T) {
	r := New()
	assert.Error(t, r.Run(context.Background(), nil, func(Result) {}))
	assert.Error(t, r.Run(context.Background(), func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return nil, nil
	}, nil))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(0).String())
}

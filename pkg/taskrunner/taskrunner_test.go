package taskrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRejectsWhenBusy(t *testing.T) {
	r := New(nil)
	release := make(chan struct{})

	err := r.Submit(context.Background(), "slow", func(ctx context.Context, text ProgressText, pct ProgressPct) error {
		<-release
		return nil
	}, Hooks{})
	require.NoError(t, err)

	err = r.Submit(context.Background(), "second", func(ctx context.Context, text ProgressText, pct ProgressPct) error {
		return nil
	}, Hooks{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	r.Wait()
	assert.False(t, r.Busy())
}

func TestSubmitDeliversResultAndFinished(t *testing.T) {
	r := New(nil)
	var mu sync.Mutex
	var gotResult, gotFinished bool

	err := r.Submit(context.Background(), "ok", func(ctx context.Context, text ProgressText, pct ProgressPct) error {
		text("halfway")
		pct(50)
		return nil
	}, Hooks{
		OnResult:   func() { mu.Lock(); gotResult = true; mu.Unlock() },
		OnFinished: func() { mu.Lock(); gotFinished = true; mu.Unlock() },
	})
	require.NoError(t, err)

	r.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, gotResult)
	assert.True(t, gotFinished)
}

func TestSubmitDeliversError(t *testing.T) {
	r := New(nil)
	boom := errors.New("boom")
	var mu sync.Mutex
	var gotErr error

	err := r.Submit(context.Background(), "fails", func(ctx context.Context, text ProgressText, pct ProgressPct) error {
		return boom
	}, Hooks{
		OnError: func(e error) { mu.Lock(); gotErr = e; mu.Unlock() },
	})
	require.NoError(t, err)

	r.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, gotErr, boom)
}

func TestRunsAgainAfterPreviousFinishes(t *testing.T) {
	r := New(nil)

	err := r.Submit(context.Background(), "first", func(ctx context.Context, text ProgressText, pct ProgressPct) error {
		return nil
	}, Hooks{})
	require.NoError(t, err)
	r.Wait()

	deadline := time.Now().Add(time.Second)
	for r.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	err = r.Submit(context.Background(), "second", func(ctx context.Context, text ProgressText, pct ProgressPct) error {
		return nil
	}, Hooks{})
	assert.NoError(t, err)
	r.Wait()
}

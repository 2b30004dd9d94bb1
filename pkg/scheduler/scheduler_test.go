package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-refa/licita-monitor/pkg/settings"
)

type stubDispatcher struct {
	mu           sync.Mutex
	extractCalls int
	updateCalls  int
	busy         bool
}

func (d *stubDispatcher) DispatchAutoExtract(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extractCalls++
	return nil
}

func (d *stubDispatcher) DispatchAutoUpdate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateCalls++
	return nil
}

func (d *stubDispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

func writeSettings(t *testing.T, path string, s settings.Settings) {
	t.Helper()
	require.NoError(t, settings.Save(path, s))
}

func TestTickDispatchesOnceAtMatchingMinute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	now := time.Now()
	writeSettings(t, path, settings.Settings{
		AutoExtractEnabled: true,
		AutoExtractTime:    now.Format("15:04"),
	})

	dispatcher := &stubDispatcher{}
	s := New(path, dispatcher, nil)

	s.tick(context.Background())
	s.tick(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	assert.Equal(t, 1, dispatcher.extractCalls)
}

func TestTickSkipsWhenBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	now := time.Now()
	writeSettings(t, path, settings.Settings{
		AutoUpdateEnabled: true,
		AutoUpdateTime:    now.Format("15:04"),
	})

	dispatcher := &stubDispatcher{busy: true}
	s := New(path, dispatcher, nil)

	s.tick(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	assert.Equal(t, 0, dispatcher.updateCalls)
}

func TestTickSkipsWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	now := time.Now()
	writeSettings(t, path, settings.Settings{
		AutoExtractEnabled: false,
		AutoExtractTime:    now.Format("15:04"),
	})

	dispatcher := &stubDispatcher{}
	s := New(path, dispatcher, nil)
	s.tick(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	assert.Equal(t, 0, dispatcher.extractCalls)
}

func TestPruneStaleDaysDropsOtherDays(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "x.json"), &stubDispatcher{}, nil)
	s.executedToday[dayJob{"2020-01-01", jobAutoExtract}] = struct{}{}
	s.pruneStaleDays("2020-01-02")
	assert.Empty(t, s.executedToday)
}

func TestStartStopLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings(t, path, settings.Settings{})
	s := New(path, &stubDispatcher{}, nil)

	s.Start(context.Background())
	s.Stop()

	_, err := os.Stat(path)
	require.NoError(t, err)
}

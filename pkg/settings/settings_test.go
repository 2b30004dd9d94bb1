package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := Load(path)
	assert.Equal(t, "08:00", s.AutoExtractTime)
	assert.False(t, s.AutoExtractEnabled)

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestLoadBackfillsMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auto_extract_enabled": true}`), 0o644))

	s := Load(path)
	assert.True(t, s.AutoExtractEnabled)
	assert.Equal(t, "09:00", s.AutoUpdateTime)
}

func TestLoadFallsBackOnMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	s := Load(path)
	assert.Equal(t, defaults(), s)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	want := Settings{AutoExtractEnabled: true, AutoExtractTime: "06:30", AutoUpdateEnabled: true, AutoUpdateTime: "23:00", UserExportPath: "/tmp/out.xlsx"}
	require.NoError(t, Save(path, want))

	got := Load(path)
	assert.Equal(t, want, got)
}

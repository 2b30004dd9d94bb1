package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvDefaultsHeadlessTrue(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("HEADLESS", "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Headless)
}

func TestFromEnvHeadlessFalse(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("HEADLESS", "false")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Headless)
}

func TestFromEnvInvalidHeadless(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("HEADLESS", "not-a-bool")
	_, err := FromEnv()
	assert.Error(t, err)
}

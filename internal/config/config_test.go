package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), ".prism", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.InDelta(t, 0.70, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.False(t, cfg.InvalidateCallers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"confidence_threshold: 0.85\nmax_attempts: 5\ninvalidate_callers: true\nignore_patterns:\n  - generated\n"),
		0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.True(t, cfg.InvalidateCallers)
	assert.Equal(t, []string{"generated"}, cfg.IgnorePatterns)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.DefaultPriority)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	badThreshold := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(badThreshold, []byte("confidence_threshold: 1.5\n"), 0644))
	_, err := Load(badThreshold)
	assert.ErrorContains(t, err, "confidence_threshold")

	badAttempts := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(badAttempts, []byte("max_attempts: 0\n"), 0644))
	_, err = Load(badAttempts)
	assert.ErrorContains(t, err, "max_attempts")

	notYAML := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(notYAML, []byte("{nope"), 0644))
	_, err = Load(notYAML)
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".prism", "config.yaml")
	want := Default()
	want.ConfidenceThreshold = 0.6
	want.InvalidateCallers = true

	require.NoError(t, want.Write(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

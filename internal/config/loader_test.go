package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearDocReaderEnvVars() {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvPrefix+"_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) > 0 {
				_ = os.Unsetenv(parts[0])
			}
		}
	}
	viper.Reset()
}

func TestNewLoader(t *testing.T) {
	clearDocReaderEnvVars()
	l := NewLoader()
	assert.NotNil(t, l)
	assert.NotNil(t, l.GetViper())
}

func TestLoadUsesDefaultsWithNoFile(t *testing.T) {
	clearDocReaderEnvVars()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	l := NewLoader()
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().RecognizerModelID, cfg.RecognizerModelID)
	assert.Equal(t, uint32(1), cfg.MaxConcurrentRecognitions)
}

func TestLoadEnvOverride(t *testing.T) {
	clearDocReaderEnvVars()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	require.NoError(t, os.Setenv("DOCREADER_ENABLE_LAYOUT", "false"))
	defer func() { _ = os.Unsetenv("DOCREADER_ENABLE_LAYOUT") }()

	l := NewLoader()
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.False(t, cfg.EnableLayout)
}

func TestLoadWithFileMissing(t *testing.T) {
	clearDocReaderEnvVars()
	l := NewLoader()
	_, err := l.LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithFileYAML(t *testing.T) {
	clearDocReaderEnvVars()
	dir := t.TempDir()
	path := filepath.Join(dir, "docreader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enable_layout: false\nmax_concurrent_recognitions: 3\n"), 0o644))

	l := NewLoader()
	cfg, err := l.LoadWithFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.EnableLayout)
	assert.Equal(t, uint32(3), cfg.MaxConcurrentRecognitions)
}

func TestGetConfigSearchPaths(t *testing.T) {
	paths := GetConfigSearchPaths()
	assert.Contains(t, paths, ".")
	assert.Contains(t, paths, "/etc/docreader")
}

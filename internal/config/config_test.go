package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(t.TempDir(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, ".codescan", cfg.StateDir)
	assert.Equal(t, "cache.json", cfg.CacheFile)
	assert.Equal(t, "results.db", cfg.ResultsDB)
	assert.Equal(t, "codescan-report.json", cfg.ReportFile)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.ParseTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxFileSize)
	assert.Empty(t, cfg.ExcludeDirs)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_ProjectFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	yaml := `workers: 3
parse_timeout: 5s
exclude_dirs: [fixtures, generated]
exclude:
  - "**/*_pb2.py"
languages: [python, rust]
log_format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codescan.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.ParseTimeout)
	assert.Equal(t, []string{"fixtures", "generated"}, cfg.ExcludeDirs)
	assert.Equal(t, []string{"**/*_pb2.py"}, cfg.Exclude)
	assert.Equal(t, []string{"python", "rust"}, cfg.Languages)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codescan.yaml"), []byte("workers: 3\n"), 0o644))

	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	fs.Int("workers", 0, "")
	fs.StringSlice("languages", nil, "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--workers=8", "--languages=typescript,javascript"}))

	cfg, err := Load(root, "", fs)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"typescript", "javascript"}, cfg.Languages)
	assert.Equal(t, "info", cfg.LogLevel, "unset flags keep lower-precedence values")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CODESCAN_WORKERS", "5")
	t.Setenv("CODESCAN_SCRIPTS_DIR", "/opt/scripts")

	cfg, err := Load(t.TempDir(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "/opt/scripts", cfg.ScriptsDir)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative timeout", func(c *Config) { c.ParseTimeout = -time.Second }},
		{"bad glob", func(c *Config) { c.Exclude = []string{"[unclosed"} }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
		{"empty state dir", func(c *Config) { c.StateDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	l, err := cfg.NewLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Info("hidden")
	l.WithField("path", "a.py").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"path":"a.py"`)
}

// Package config loads scanner settings from defaults, a project config
// file, CODESCAN_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the project root when no
// explicit file is given. Any extension viper understands is accepted.
const FileName = ".codescan"

const envPrefix = "CODESCAN"

// Config represents the structure of the configuration file.
type Config struct {
	StateDir     string        `mapstructure:"state_dir"`
	CacheFile    string        `mapstructure:"cache_file"`
	ResultsDB    string        `mapstructure:"results_db"`
	ReportFile   string        `mapstructure:"report_file"`
	Workers      int           `mapstructure:"workers"`
	ParseTimeout time.Duration `mapstructure:"parse_timeout"`
	MaxFileSize  int64         `mapstructure:"max_file_size"`
	ExcludeDirs  []string      `mapstructure:"exclude_dirs"`
	Exclude      []string      `mapstructure:"exclude"`
	Languages    []string      `mapstructure:"languages"`
	ScriptsDir   string        `mapstructure:"scripts_dir"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
}

// DefaultConfig values
var DefaultConfig = Config{
	StateDir:     ".codescan",
	CacheFile:    "cache.json",
	ResultsDB:    "results.db",
	ReportFile:   "codescan-report.json",
	Workers:      0,
	ParseTimeout: 30 * time.Second,
	MaxFileSize:  10 << 20,
	ExcludeDirs:  []string{},
	Exclude:      []string{},
	Languages:    []string{},
	ScriptsDir:   "",
	LogLevel:     "info",
	LogFormat:    "text",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"workers":       "workers",
	"parse-timeout": "parse_timeout",
	"max-file-size": "max_file_size",
	"exclude-dir":   "exclude_dirs",
	"exclude":       "exclude",
	"languages":     "languages",
	"scripts-dir":   "scripts_dir",
	"report-file":   "report_file",
	"state-dir":     "state_dir",
	"log-level":     "log_level",
	"log-format":    "log_format",
}

// Load builds the configuration for the project at root. cfgFile, when
// non-empty, must exist; otherwise root/.codescan.{yaml,json,toml} is read
// if present. Flags that were set on the command line override everything
// else. flags may be nil.
func Load(root, cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(root)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read %s: %w", filepath.Join(root, FileName), err)
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", DefaultConfig.StateDir)
	v.SetDefault("cache_file", DefaultConfig.CacheFile)
	v.SetDefault("results_db", DefaultConfig.ResultsDB)
	v.SetDefault("report_file", DefaultConfig.ReportFile)
	v.SetDefault("workers", DefaultConfig.Workers)
	v.SetDefault("parse_timeout", DefaultConfig.ParseTimeout)
	v.SetDefault("max_file_size", DefaultConfig.MaxFileSize)
	v.SetDefault("exclude_dirs", DefaultConfig.ExcludeDirs)
	v.SetDefault("exclude", DefaultConfig.Exclude)
	v.SetDefault("languages", DefaultConfig.Languages)
	v.SetDefault("scripts_dir", DefaultConfig.ScriptsDir)
	v.SetDefault("log_level", DefaultConfig.LogLevel)
	v.SetDefault("log_format", DefaultConfig.LogFormat)
}

// bindEnv binds every key to CODESCAN_<KEY>.
func bindEnv(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}
}

// bindFlags binds the flags present in fs to configuration keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Validate rejects values the scanner cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if c.ParseTimeout < 0 {
		return fmt.Errorf("config: parse_timeout must be >= 0, got %s", c.ParseTimeout)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("config: max_file_size must be >= 0, got %d", c.MaxFileSize)
	}
	if c.StateDir == "" || c.CacheFile == "" || c.ResultsDB == "" || c.ReportFile == "" {
		return errors.New("config: state_dir, cache_file, results_db and report_file must not be empty")
	}
	for _, pattern := range c.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("config: exclude pattern %q: %w", pattern, err)
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// NewLogger builds a logrus logger writing to w with the configured level
// and formatter. w defaults to stderr.
func (c *Config) NewLogger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}
	if w == nil {
		w = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return l, nil
}

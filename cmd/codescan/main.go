package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jward/codescan"
	"github.com/jward/codescan/internal/config"
)

var (
	flagConfig string
	flagFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codescan",
	Short:         "Incremental multi-language structure scanner",
	Long:          "Codescan extracts functions, classes and HTTP route bindings from Python, Rust, JavaScript and TypeScript sources, re-analyzing only files whose content changed.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: .codescan.{yaml,json,toml} in the project root)")
	pf.StringVar(&flagFormat, "format", "json", "output format: json|text")
	pf.String("log-level", config.DefaultConfig.LogLevel, "log level: debug|info|warn|error")
	pf.String("log-format", config.DefaultConfig.LogFormat, "log format: text|json")
	pf.String("state-dir", config.DefaultConfig.StateDir, "directory holding the cache and results database, relative to the project root")
	pf.String("report-file", config.DefaultConfig.ReportFile, "report path, relative to the project root")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
}

// resolveTargetDir returns the absolute path of the directory to scan.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for a directory named
// stateDir. Returns the directory containing it, or startDir if not found.
func findProjectRoot(startDir, stateDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, stateDir)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding the state directory.
			return startDir
		}
		dir = parent
	}
}

// loadConfig reads the configuration for root, letting flags set on cmd
// override file and environment values.
func loadConfig(cmd *cobra.Command, root string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(root, flagConfig, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	log, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// engineOptions translates a loaded configuration into Engine options.
func engineOptions(cfg *config.Config, log logrus.FieldLogger) []codescan.Option {
	opts := []codescan.Option{
		codescan.WithLogger(log),
		codescan.WithStateDir(cfg.StateDir),
		codescan.WithCacheFile(cfg.CacheFile),
		codescan.WithResultsDB(cfg.ResultsDB),
		codescan.WithReportFile(cfg.ReportFile),
		codescan.WithWorkers(cfg.Workers),
		codescan.WithParseTimeout(cfg.ParseTimeout),
		codescan.WithMaxFileSize(cfg.MaxFileSize),
		codescan.WithExcludeDirs(cfg.ExcludeDirs...),
		codescan.WithExcludePatterns(cfg.Exclude...),
	}
	if len(cfg.Languages) > 0 {
		opts = append(opts, codescan.WithLanguages(cfg.Languages...))
	}
	if cfg.ScriptsDir != "" {
		opts = append(opts, codescan.WithScriptsDir(cfg.ScriptsDir))
	}
	return opts
}

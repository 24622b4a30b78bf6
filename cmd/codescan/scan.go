package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jward/codescan"
)

var (
	flagForce      bool
	flagWatch      bool
	flagNoProgress bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a project and write the report",
	Long:  "Discovers source files, re-analyzes those whose content changed since the last scan, and writes codescan-report.json at the project root.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.BoolVar(&flagForce, "force", false, "forget previous scan state and re-analyze every file")
	f.BoolVar(&flagWatch, "watch", false, "keep running and re-scan when files change")
	f.BoolVar(&flagNoProgress, "no-progress", false, "disable the progress spinner")
	f.Int("workers", 0, "number of extraction workers (default: one per CPU)")
	f.Duration("parse-timeout", 0, "per-file extraction time limit (default 30s, 0 in config disables)")
	f.Int64("max-file-size", 0, "skip files larger than this many bytes (default 10MiB)")
	f.StringSlice("exclude-dir", nil, "additional directory names to skip")
	f.StringSlice("exclude", nil, "glob patterns of root-relative paths to skip")
	f.StringSlice("languages", nil, "comma-separated language filter (e.g. python,rust)")
	f.String("scripts-dir", "", "directory of <ext>.risor analyzer scripts")
}

func runScan(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, log, err := loadConfig(cmd, root)
	if err != nil {
		return err
	}

	engine, err := codescan.New(root, engineOptions(cfg, log)...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	if flagForce {
		if err := engine.Reset(); err != nil {
			return fmt.Errorf("resetting scan state: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleared scan state: %s\n", engine.StateDir())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagWatch {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", root)
		return engine.Watch(ctx, func(sum *codescan.Summary, err error) {
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
				return
			}
			printSummary(cmd.ErrOrStderr(), root, sum)
		})
	}

	var spinner *pterm.SpinnerPrinter
	if !flagNoProgress {
		spinner, _ = pterm.DefaultSpinner.
			WithWriter(cmd.ErrOrStderr()).
			WithStyle(pterm.NewStyle(pterm.FgCyan)).
			WithDelay(100 * time.Millisecond).
			WithRemoveWhenDone(true).
			Start(fmt.Sprintf("Scanning %s...", root))
	}
	sum, err := engine.Scan(ctx)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	printSummary(cmd.ErrOrStderr(), root, sum)
	return nil
}

// printSummary writes the human-readable outcome of one scan.
func printSummary(w io.Writer, root string, sum *codescan.Summary) {
	fmt.Fprintf(w, "Scanned %s in %s (%d files: %d analyzed, %d unchanged, %d moved, %d deleted)\n",
		root,
		sum.Duration.Round(time.Millisecond),
		sum.Discovered, sum.Analyzed, sum.Unchanged, sum.Moved, sum.Deleted,
	)
	if sum.Unreadable > 0 {
		fmt.Fprintf(w, "%d files could not be read\n", sum.Unreadable)
	}
	if sum.Failed > 0 {
		fmt.Fprintf(w, "%d files failed to analyze, see report for detail\n", sum.Failed)
	}
	if sum.CacheErr != nil {
		fmt.Fprintf(w, "Warning: cache not saved, the next scan will re-analyze every file: %s\n", sum.CacheErr)
	}
	fmt.Fprintf(w, "Report: %s\n", sum.ReportPath)
}

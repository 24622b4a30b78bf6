package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/codescan"
	"github.com/jward/codescan/internal/config"
)

var (
	flagLimit  int
	flagOffset int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the results of the last scan",
	Long:  "Run queries against the results database written by 'codescan scan'. The project root is found by walking up from the current directory to the state directory.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")

	queryCmd.AddCommand(filesCmd)
	queryCmd.AddCommand(routesCmd)
	queryCmd.AddCommand(functionsCmd)
	queryCmd.AddCommand(classesCmd)
}

var filesCmd = &cobra.Command{
	Use:   "files [language]",
	Short: "List analyzed files, optionally filtered by language",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "files", func(q *codescan.QueryBuilder) (CLIResult, error) {
			page, err := q.Files(optionalArg(args), buildPagination())
			if err != nil {
				return CLIResult{}, err
			}
			out := make([]CLIFile, 0, len(page.Items))
			for _, f := range page.Items {
				out = append(out, fileToCLI(f))
			}
			return pagedResult("files", out, page.TotalCount), nil
		})
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes [method]",
	Short: "List route bindings, optionally filtered by HTTP method",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "routes", func(q *codescan.QueryBuilder) (CLIResult, error) {
			page, err := q.Routes(optionalArg(args), buildPagination())
			if err != nil {
				return CLIResult{}, err
			}
			out := make([]CLIRoute, 0, len(page.Items))
			for _, r := range page.Items {
				out = append(out, routeToCLI(r))
			}
			return pagedResult("routes", out, page.TotalCount), nil
		})
	},
}

var functionsCmd = &cobra.Command{
	Use:   "functions [name]",
	Short: "List top-level functions, optionally filtered by name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "functions", func(q *codescan.QueryBuilder) (CLIResult, error) {
			page, err := q.Functions(optionalArg(args), buildPagination())
			if err != nil {
				return CLIResult{}, err
			}
			return pagedResult("functions", symbolsToCLI(page.Items), page.TotalCount), nil
		})
	},
}

var classesCmd = &cobra.Command{
	Use:   "classes [name]",
	Short: "List classes and their methods, optionally filtered by name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "classes", func(q *codescan.QueryBuilder) (CLIResult, error) {
			page, err := q.Classes(optionalArg(args), buildPagination())
			if err != nil {
				return CLIResult{}, err
			}
			return pagedResult("classes", symbolsToCLI(page.Items), page.TotalCount), nil
		})
	},
}

// --- Helpers ---

// runQuery opens the engine for the project containing the working
// directory, runs fn and writes its result in the selected format.
func runQuery(cmd *cobra.Command, command string, fn func(*codescan.QueryBuilder) (CLIResult, error)) error {
	engine, err := openEngine(cmd)
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	result, err := fn(engine.Query())
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(result)
}

// openEngine locates the project root from the working directory and opens
// its results database. It fails if no scan has been run yet.
func openEngine(cmd *cobra.Command) (*codescan.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	stateDir, _ := cmd.Flags().GetString("state-dir")
	if stateDir == "" {
		stateDir = config.DefaultConfig.StateDir
	}
	root := findProjectRoot(cwd, stateDir)

	cfg, log, err := loadConfig(cmd, root)
	if err != nil {
		return nil, err
	}
	dir := cfg.StateDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, cfg.ResultsDB)); os.IsNotExist(err) {
		return nil, fmt.Errorf("no scan results under %s (run 'codescan scan' first)", root)
	}
	return codescan.New(root, engineOptions(cfg, log)...)
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() codescan.Pagination {
	return codescan.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

func pagedResult(command string, results any, total int) CLIResult {
	return CLIResult{Command: command, Results: results, TotalCount: &total}
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

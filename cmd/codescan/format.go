package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tHASH")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Path, f.Language, f.Hash)
	}
	tw.Flush()
}

// formatRoutesText formats CLIRoute results as aligned columns.
func formatRoutesText(w io.Writer, routes []CLIRoute) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tHANDLER\tFILE")
	for _, r := range routes {
		handler := r.Function
		if handler == "" {
			handler = r.Object + " (object)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Method, r.Path, handler, r.File)
	}
	tw.Flush()
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol, withMethods bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withMethods {
		fmt.Fprintln(tw, "NAME\tFILE\tMETHODS")
	} else {
		fmt.Fprintln(tw, "NAME\tFILE")
	}
	for _, s := range syms {
		if withMethods {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.File, strings.Join(s.Methods, ", "))
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.File)
		}
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	shown := 0
	switch v := result.Results.(type) {
	case []CLIFile:
		formatFilesText(w, v)
		shown = len(v)
	case []CLIRoute:
		formatRoutesText(w, v)
		shown = len(v)
	case []CLISymbol:
		formatSymbolsText(w, v, result.Command == "classes")
		shown = len(v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil && shown < *result.TotalCount {
		fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, *result.TotalCount)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

package main

import (
	"time"

	"github.com/jward/codescan"
)

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIFile is a JSON-friendly file representation.
type CLIFile struct {
	Path        string    `json:"path"`
	Language    string    `json:"language"`
	Hash        string    `json:"hash"`
	LastIndexed time.Time `json:"last_indexed"`
}

// CLIRoute is a JSON-friendly route binding. Exactly one of Function and
// Object is set.
type CLIRoute struct {
	File     string `json:"file"`
	Function string `json:"function,omitempty"`
	Object   string `json:"object,omitempty"`
	Method   string `json:"method"`
	Path     string `json:"path"`
}

// CLISymbol is a JSON-friendly function or class. Methods is set for
// classes only.
type CLISymbol struct {
	File    string   `json:"file"`
	Name    string   `json:"name"`
	Methods []string `json:"methods,omitempty"`
}

func fileToCLI(f *codescan.File) CLIFile {
	return CLIFile{
		Path:        f.Path,
		Language:    f.Language,
		Hash:        f.Hash,
		LastIndexed: f.LastIndexed,
	}
}

func routeToCLI(r *codescan.RouteRow) CLIRoute {
	return CLIRoute{
		File:     r.File,
		Function: r.Function,
		Object:   r.Object,
		Method:   r.Method,
		Path:     r.Path,
	}
}

func symbolsToCLI(rows []*codescan.SymbolRow) []CLISymbol {
	out := make([]CLISymbol, 0, len(rows))
	for _, r := range rows {
		out = append(out, CLISymbol{File: r.File, Name: r.Name, Methods: r.Methods})
	}
	return out
}

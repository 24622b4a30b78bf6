package codescan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jward/codescan/internal/store"
)

// Report maps slash-separated paths relative to the project root to their
// analysis results. It is built once per scan and written once.
type Report map[string]*store.AnalysisResult

// Failed returns the number of entries carrying an error marker.
func (r Report) Failed() int {
	n := 0
	for _, res := range r {
		if res.Failed() {
			n++
		}
	}
	return n
}

// WriteReport writes r as indented JSON with sorted keys, replacing path
// atomically so readers never observe a partial report.
func WriteReport(path string, r Report) error {
	if r == nil {
		r = Report{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if err := store.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codescan: read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("codescan: decode report: %w", err)
	}
	return r, nil
}

package codescan

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jward/codescan/internal/store"
)

// workItem holds everything an extraction worker needs.
type workItem struct {
	rel string
	abs string
}

// outcome is what a worker hands back to the coordinator. On success fp is
// the fingerprint of the exact bytes that were analyzed.
type outcome struct {
	item     workItem
	language string
	fp       store.Fingerprint
	result   *store.AnalysisResult
	err      error
}

// extractAll runs the parallel phase: each item is read and analyzed by a
// bounded pool of workers. Workers share no mutable state; outcomes are
// returned sorted by path for the serial aggregation that follows.
func (e *Engine) extractAll(ctx context.Context, items []workItem) []outcome {
	if len(items) == 0 {
		return nil
	}

	numWorkers := min(e.workers, len(items))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	resultCh := make(chan outcome, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				resultCh <- e.extractFile(ctx, item)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	outcomes := make([]outcome, 0, len(items))
	for out := range resultCh {
		outcomes = append(outcomes, out)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].item.rel < outcomes[j].item.rel })
	return outcomes
}

// extractFile reads and analyzes one file. Panics inside an analyzer are
// recovered into the outcome's error.
func (e *Engine) extractFile(ctx context.Context, item workItem) (out outcome) {
	a := e.registry.ForFile(item.abs)
	out = outcome{item: item, language: a.Language()}

	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	src, err := os.ReadFile(item.abs)
	if err != nil {
		out.err = fmt.Errorf("read: %w", err)
		return out
	}
	out.fp = store.FingerprintBytes(src)

	if e.parseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.parseTimeout)
		defer cancel()
	}

	res, err := a.Extract(ctx, src)
	if err != nil {
		out.err = err
		return out
	}
	if res == nil {
		res = store.NewResult(out.language)
	}
	out.result = res
	return out
}

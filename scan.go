package codescan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jward/codescan/internal/store"
)

// Summary describes one completed scan.
type Summary struct {
	Discovered int
	Analyzed   int
	Unchanged  int
	Unreadable int
	Failed     int
	Moved      int
	Deleted    int

	// ReportPath is the absolute path of the report written by the scan.
	ReportPath string
	Duration   time.Duration

	// CacheErr is set when the fingerprint cache could not be saved. The scan
	// still succeeded but the next one will re-analyze every file.
	CacheErr error
}

// Scan discovers, classifies and analyzes the project, then writes the
// report. Per-file failures never abort the scan: they are counted in
// Summary.Failed and recorded in the report with an error marker.
//
// If ctx is cancelled after discovery, completed results are still committed
// and the cache saved, but no report is written and ctx.Err() is returned.
func (e *Engine) Scan(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{ReportPath: e.ReportPath()}

	cache, err := store.LoadCache(e.CachePath())
	if err != nil {
		e.log.WithError(err).Warn("cache unreadable, starting fresh")
	}

	// Phase A: discover and fingerprint.
	paths, err := e.discover(ctx)
	if err != nil {
		return nil, err
	}
	sum.Discovered = len(paths)

	fps := make(map[string]store.Fingerprint, len(paths))
	rels := make([]string, 0, len(paths))
	abs := make(map[string]string, len(paths))
	for _, p := range paths {
		rel := e.relPath(p)
		fp, err := store.FingerprintFile(p)
		if err != nil {
			e.log.WithField("path", rel).WithError(err).Warn("file unreadable")
		}
		fps[rel] = fp
		rels = append(rels, rel)
		abs[rel] = p
	}

	// Phase B: carry moved files over and forget deleted ones.
	e.applyMoves(cache, fps, sum)

	report := make(Report, len(rels))
	var items []workItem
	for _, rel := range rels {
		fp := fps[rel]
		if !fp.Valid() {
			sum.Unreadable++
			if stored := e.storedResult(rel); stored != nil {
				report[rel] = stored
			}
			continue
		}
		if rec, ok := cache.Get(rel); ok && rec.Fingerprint().Equal(fp) {
			if stored := e.storedResult(rel); stored != nil {
				report[rel] = stored
				sum.Unchanged++
				continue
			}
		}
		items = append(items, workItem{rel: rel, abs: abs[rel]})
	}

	e.log.WithField("files", len(items)).WithField("workers", min(e.workers, max(len(items), 1))).Debug("extracting")

	// Phase C: extract in parallel, aggregate serially.
	batch := store.NewBatch()
	var stored []outcome
	for _, out := range e.extractAll(ctx, items) {
		if out.err != nil && ctx.Err() != nil && errors.Is(out.err, ctx.Err()) {
			continue
		}
		if out.err != nil {
			sum.Failed++
			e.log.WithField("path", out.item.rel).WithError(out.err).Warn("analysis failed")
			report[out.item.rel] = store.ErrorResult(out.language, out.err)
			continue
		}
		sum.Analyzed++
		stored = append(stored, out)
		batch.Put(out.item.rel, out.fp, out.result)
		report[out.item.rel] = out.result
	}

	// The cache only advances for files whose facts reached the store, so a
	// failed commit is retried on the next scan.
	if err := e.store.CommitBatch(batch); err != nil {
		e.log.WithError(err).Warn("failed to store results")
		for _, out := range stored {
			cache.Delete(out.item.rel)
		}
	} else {
		for _, out := range stored {
			cache.Put(out.item.rel, out.fp)
		}
	}
	if err := cache.Save(); err != nil {
		sum.CacheErr = err
		e.log.WithError(err).Warn("failed to save cache, the next scan will re-analyze every file")
	}

	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if err := WriteReport(sum.ReportPath, report); err != nil {
		return sum, fmt.Errorf("codescan: %w", err)
	}
	sum.Duration = time.Since(start)

	e.log.WithField("discovered", sum.Discovered).
		WithField("analyzed", sum.Analyzed).
		WithField("unchanged", sum.Unchanged).
		WithField("failed", sum.Failed).
		WithField("duration", sum.Duration).
		Info("scan complete")
	return sum, nil
}

// applyMoves reconciles the cache with the discovered fingerprints and
// commits the resulting renames and deletions to the results database, so
// facts for moved files are found under their new path. Stored results for
// paths that are no longer discovered are dropped too.
func (e *Engine) applyMoves(cache *store.Cache, fps map[string]store.Fingerprint, sum *Summary) {
	ms := reconcileMoves(cache, fps)
	batch := store.NewBatch()
	handled := make(map[string]struct{}, len(ms.renames)+len(ms.deleted))

	for _, r := range ms.renames {
		e.log.WithField("from", r.from).WithField("to", r.to).Debug("file moved")
		cache.Rename(r.from, r.to)
		batch.Rename(r.from, r.to)
		handled[r.from] = struct{}{}
	}
	for _, p := range ms.deleted {
		cache.Delete(p)
		batch.Delete(p)
		handled[p] = struct{}{}
	}
	sum.Moved = len(ms.renames)
	sum.Deleted = len(ms.deleted)

	stored, err := e.store.Paths()
	if err != nil {
		e.log.WithError(err).Warn("failed to list stored results")
	}
	for _, p := range stored {
		if _, ok := fps[p]; ok {
			continue
		}
		if _, ok := handled[p]; ok {
			continue
		}
		batch.Delete(p)
	}

	if batch.Len() == 0 {
		return
	}
	if err := e.store.CommitBatch(batch); err != nil {
		e.log.WithError(err).Warn("failed to apply moves to stored results")
	}
}

// storedResult returns the last stored result for rel, or nil if there is
// none or it cannot be read.
func (e *Engine) storedResult(rel string) *store.AnalysisResult {
	res, err := e.store.Result(rel)
	if err != nil {
		e.log.WithField("path", rel).WithError(err).Warn("failed to load stored result")
		return nil
	}
	return res
}

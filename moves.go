package codescan

import (
	"sort"

	"github.com/jward/codescan/internal/store"
)

// rename is a cache record carried from one path to another.
type rename struct {
	from, to string
}

// moveSet is the outcome of reconciling cached paths with discovered ones.
type moveSet struct {
	renames []rename
	deleted []string
}

// reconcileMoves matches cached paths that no longer exist against newly
// appeared paths with the same fingerprint.
//
// Candidates are indexed once by fingerprint, so the match is linear in the
// number of paths. Missing paths are processed in sorted order and each
// claims the first unclaimed candidate in sorted order; when several missing
// files share content, the later ones are treated as deleted. Invalid
// fingerprints never take part in a match.
func reconcileMoves(cache *store.Cache, fps map[string]store.Fingerprint) moveSet {
	var ms moveSet

	var missing []string
	for _, p := range cache.Paths() {
		if _, ok := fps[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return ms
	}

	appeared := make([]string, 0, len(fps))
	for p := range fps {
		if _, tracked := cache.Get(p); !tracked {
			appeared = append(appeared, p)
		}
	}
	sort.Strings(appeared)

	index := make(map[store.Fingerprint][]string, len(appeared))
	for _, p := range appeared {
		if fp := fps[p]; fp.Valid() {
			index[fp] = append(index[fp], p)
		}
	}

	for _, old := range missing {
		rec, _ := cache.Get(old)
		fp := rec.Fingerprint()
		if candidates := index[fp]; fp.Valid() && len(candidates) > 0 {
			ms.renames = append(ms.renames, rename{from: old, to: candidates[0]})
			index[fp] = candidates[1:]
			continue
		}
		ms.deleted = append(ms.deleted, old)
	}
	return ms
}

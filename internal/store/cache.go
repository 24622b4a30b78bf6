package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// Cache is the durable path-to-fingerprint mapping that decides which files
// need re-analysis. It is persisted as a JSON object keyed by
// project-relative path. Only files whose last analysis succeeded have a
// record, and every record carries a valid fingerprint.
//
// Cache is not safe for concurrent use; the scan coordinator owns it.
type Cache struct {
	path    string
	records map[string]FileRecord
}

// NewCache returns an empty cache that saves to path.
func NewCache(path string) *Cache {
	return &Cache{path: path, records: make(map[string]FileRecord)}
}

// LoadCache reads the cache file at path. It always returns a usable cache:
// a missing file yields an empty one with a nil error, while a corrupt or
// unreadable file yields an empty one plus an error describing what was
// discarded.
func LoadCache(path string) (*Cache, error) {
	c := NewCache(path)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("store: read cache %s: %w", path, err)
	}

	var raw map[string]FileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return c, fmt.Errorf("store: decode cache %s: %w", path, err)
	}
	for p, rec := range raw {
		if rec.Hash == "" {
			continue
		}
		rec.Path = p
		c.records[p] = rec
	}
	return c, nil
}

// Path returns the file the cache saves to.
func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) Get(path string) (FileRecord, bool) {
	rec, ok := c.records[path]
	return rec, ok
}

// Put records fp for path. Invalid fingerprints are ignored.
func (c *Cache) Put(path string, fp Fingerprint) {
	if !fp.Valid() {
		return
	}
	c.records[path] = FileRecord{Path: path, Hash: fp.String()}
}

func (c *Cache) Delete(path string) {
	delete(c.records, path)
}

// Rename moves the record at from to to, replacing any record at to.
func (c *Cache) Rename(from, to string) {
	rec, ok := c.records[from]
	if !ok {
		return
	}
	delete(c.records, from)
	rec.Path = to
	c.records[to] = rec
}

// Paths returns all tracked paths in sorted order.
func (c *Cache) Paths() []string {
	paths := make([]string, 0, len(c.records))
	for p := range c.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (c *Cache) Len() int {
	return len(c.records)
}

// Save writes the cache atomically. Keys are written in sorted order, so
// saving an unchanged cache produces identical bytes.
func (c *Cache) Save() error {
	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode cache: %w", err)
	}
	data = append(data, '\n')
	if err := WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("store: save cache: %w", err)
	}
	return nil
}

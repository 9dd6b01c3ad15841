// Package bkv is an embedded, single-file, ordered key/value store built
// around an on-disk classical B-tree. It is embedded in a single host
// process: no concurrency, no networking, no transactions.
package bkv

import (
	"errors"
	"fmt"

	"bkv/internal/btree"
	"bkv/internal/pager"
)

// ErrNotFound is returned by Get and Delete when the key is absent.
var ErrNotFound = errors.New("bkv: key not found")

// ErrClosed is returned by Store operations invoked after Close.
var ErrClosed = pager.ErrClosed

// ErrCorrupt is returned when a stored page fails a structural decode check.
var ErrCorrupt = pager.ErrCorrupt

// Options configures a Store. The zero value is not usable; call
// DefaultOptions and override as needed.
type Options struct {
	PageSize      int               // fixed page size in bytes
	MinDegree     int               // B-tree minimum-key degree t
	CacheCapacity int               // Tree pages kept resident before eviction
	Comparator    btree.Comparator  // nil uses DefaultComparator
}

// DefaultOptions returns the spec's default configuration.
func DefaultOptions() Options {
	return Options{
		PageSize:      pager.DefaultPageSize,
		MinDegree:     pager.DefaultMinDegree,
		CacheCapacity: pager.DefaultCacheCapacity,
	}
}

// Store is an open database: a B-tree over a paged file.
type Store struct {
	pager *pager.Pager
	tree  *btree.BTree
	opts  Options
}

// Open opens path, creating it if missing. Changing PageSize against an
// existing file is rejected by the pager.
func Open(path string, opts Options) (*Store, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = pager.DefaultPageSize
	}
	if opts.MinDegree < 2 {
		opts.MinDegree = pager.DefaultMinDegree
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = pager.DefaultCacheCapacity
	}

	p, err := pager.Open(path, opts.PageSize, opts.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("bkv: open %s: %w", path, err)
	}
	tree := btree.New(p, opts.MinDegree, opts.Comparator)
	return &Store{pager: p, tree: tree, opts: opts}, nil
}

// Close flushes all dirty pages and the database header, then closes the
// underlying file. Close is idempotent.
func (s *Store) Close() error {
	return s.pager.Close()
}

// Put inserts key/value, overwriting any existing value for key.
func (s *Store) Put(key, value []byte) error {
	return s.tree.Put(key, value)
}

// Get returns the value stored for key, or ErrNotFound if it's absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.tree.Get(key)
	if errors.Is(err, btree.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes key, returning ErrNotFound if it wasn't present.
func (s *Store) Delete(key []byte) error {
	err := s.tree.Delete(key)
	if errors.Is(err, btree.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Iterator returns a fresh ordered iterator over the store's current
// contents. It is only valid until the next Put or Delete.
func (s *Store) Iterator() *btree.Iterator {
	return s.tree.Iterator()
}

// Stats reports pager-level diagnostics (total pages, cache occupancy, free
// list head, root page).
func (s *Store) Stats() pager.Stats {
	return s.pager.Stats()
}

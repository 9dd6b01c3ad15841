package bkv

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bkv")
	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutGetDelete(t *testing.T) {
	s := openTest(t)

	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(v, []byte("v")) {
		t.Fatalf("got %q, want %q", v, "v")
	}

	if err := s.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestStoreIteratorOrder(t *testing.T) {
	s := openTest(t)
	want := []string{"alpha", "beta", "gamma", "delta"}
	for _, k := range want {
		if err := s.Put([]byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	it := s.Iterator()
	if err := it.SeekFirst(); err != nil {
		t.Fatal(err)
	}
	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		if err := it.Next(); err != nil {
			t.Fatal(err)
		}
	}
	expect := []string{"alpha", "beta", "delta", "gamma"}
	if len(got) != len(expect) {
		t.Fatalf("got %v, want %v", got, expect)
	}
	for i := range expect {
		if got[i] != expect[i] {
			t.Fatalf("got %v, want %v", got, expect)
		}
	}
}

func TestStoreCloseReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bkv")
	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, err := s2.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("got %q, want %q", v, "v1")
	}
}

func TestStoreOperationsAfterCloseReturnErrClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bkv")
	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should stay idempotent, got %v", err)
	}
	if err := s.Put([]byte("k2"), []byte("v2")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Get([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStoreStats(t *testing.T) {
	s := openTest(t)
	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	stats := s.Stats()
	if stats.TotalPages < 1 {
		t.Fatalf("expected at least 1 total page, got %d", stats.TotalPages)
	}
}

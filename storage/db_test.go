package storage

import (
	"errors"
	"testing"
)

func TestMemDBBasicOperations(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("expected v, got %q", value)
	}

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	has, err := db.Has([]byte("k"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatal("deleted key must be absent")
	}
}

func TestMemDBDefensiveCopies(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'

	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "original" {
		t.Fatalf("stored value mutated: %q", stored)
	}
}

func TestMemDBIteratePrefixOrdered(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	for _, key := range []string{"p/2", "p/1", "q/1", "p/3"} {
		if err := db.Put([]byte(key), []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	var visited []string
	err := db.IteratePrefix([]byte("p/"), func(key, value []byte) bool {
		visited = append(visited, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []string{"p/1", "p/2", "p/3"}
	if len(visited) != len(want) {
		t.Fatalf("expected %v, got %v", want, visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, visited)
		}
	}

	// Early stop.
	visited = nil
	err = db.IteratePrefix([]byte("p/"), func(key, value []byte) bool {
		visited = append(visited, string(key))
		return false
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(visited) != 1 {
		t.Fatalf("expected early stop after 1, got %v", visited)
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("expected v, got %q", value)
	}
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

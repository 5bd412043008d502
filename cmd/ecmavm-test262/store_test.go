package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreChanges(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	first := []Result{
		{Path: "a.js", Mode: "sloppy", Status: StatusPass},
		{Path: "a.js", Mode: "strict", Status: StatusFail, Message: "boom"},
		{Path: "b.js", Mode: "sloppy", Status: StatusFail},
	}
	second := []Result{
		{Path: "a.js", Mode: "sloppy", Status: StatusPass},
		{Path: "a.js", Mode: "strict", Status: StatusPass},
		{Path: "b.js", Mode: "sloppy", Status: StatusTimeout, Duration: 5 * time.Second},
		{Path: "c.js", Mode: "sloppy", Status: StatusPass},
	}

	run1, err := store.BeginRun("/t262", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveResults(run1, first); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(run1, tally(first)); err != nil {
		t.Fatal(err)
	}
	changes, err := store.Changes(run1)
	if err != nil || len(changes) != 0 {
		t.Fatalf("first run: changes=%v err=%v", changes, err)
	}

	run2, err := store.BeginRun("/t262", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveResults(run2, second); err != nil {
		t.Fatal(err)
	}
	changes, err = store.Changes(run2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Change{
		{Path: "a.js", Mode: "strict", Before: StatusFail, After: StatusPass},
		{Path: "b.js", Mode: "sloppy", Before: StatusFail, After: StatusTimeout},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v, want %+v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, changes[i], want[i])
		}
	}

	var passed int
	if err := store.db.QueryRow(`SELECT passed FROM runs WHERE id = ?`, run1).Scan(&passed); err != nil {
		t.Fatal(err)
	}
	if passed != 1 {
		t.Errorf("run 1 passed = %d, want 1", passed)
	}
}

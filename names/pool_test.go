package names

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestAllocate(t *testing.T) {
	pool := NewPool()
	code, err := pool.Allocate("ns", "urn:test", "item")
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	again, err := pool.Allocate("ns", "urn:test", "item")
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	if code != again {
		t.Errorf("codes differ: %d != %d", code, again)
	}
	other, err := pool.Allocate("alt", "urn:test", "item")
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	if other == code {
		t.Errorf("distinct prefixes should give distinct codes")
	}
	if other.Fingerprint() != code.Fingerprint() {
		t.Errorf("fingerprints differ: %d != %d", other.Fingerprint(), code.Fingerprint())
	}
}

func TestAllocateConcurrent(t *testing.T) {
	pool := NewPool()
	const workers = 8
	const count = 200

	results := make([][]Code, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[w] = make([]Code, count)
			for i := range count {
				code, err := pool.Allocate("p", "urn:concurrent", fmt.Sprintf("name-%03d", i))
				if err != nil {
					t.Errorf("allocate: %s", err)
					return
				}
				results[w][i] = code
			}
		}()
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := range count {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d name %d: code %d != %d", w, i, results[w][i], results[0][i])
			}
		}
	}
}

func TestLookup(t *testing.T) {
	pool := NewPool()
	code, _ := pool.Allocate("x", "urn:lookup", "thing")

	uri, err := pool.URI(code.Fingerprint())
	if err != nil {
		t.Fatalf("uri: %s", err)
	}
	if uri != "urn:lookup" {
		t.Errorf("uri: got %q", uri)
	}
	local, _ := pool.LocalName(code.Fingerprint())
	if local != "thing" {
		t.Errorf("local: got %q", local)
	}
	display, _ := pool.DisplayName(code)
	if display != "x:thing" {
		t.Errorf("display: got %q", display)
	}
	expanded, _ := pool.Expanded(code.Fingerprint())
	if expanded != "{urn:lookup}thing" {
		t.Errorf("expanded: got %q", expanded)
	}

	if _, err := pool.LocalName(Fingerprint(9999)); !errors.Is(err, ErrUnknown) {
		t.Errorf("unknown fingerprint: got %v", err)
	}
}

func TestWellKnown(t *testing.T) {
	pool := NewPool()
	fp, ok := pool.Fingerprint(XmlNamespace, "space")
	if !ok || fp != XmlSpace {
		t.Errorf("xml:space: got %d (%t)", fp, ok)
	}
	if _, ok := pool.Fingerprint("urn:nowhere", "missing"); ok {
		t.Errorf("lookup should not allocate")
	}
}

func TestDocumentNumbers(t *testing.T) {
	pool := NewPool()
	seen := make(map[uint64]bool)
	for range 10 {
		n := pool.NextDocument()
		if seen[n] {
			t.Fatalf("document number %d repeated", n)
		}
		seen[n] = true
	}
}

func TestSnapshotRestore(t *testing.T) {
	pool := NewPool()
	code, _ := pool.Allocate("a", "urn:snap", "first")
	other, _ := pool.Allocate("b", "urn:snap", "second")

	snap := pool.Snapshot()
	fresh := NewPool()
	if err := fresh.Restore(snap); err != nil {
		t.Fatalf("restore: %s", err)
	}

	got, _ := fresh.Allocate("a", "urn:snap", "first")
	if got != code {
		t.Errorf("restored code differs: %d != %d", got, code)
	}
	got, _ = fresh.Allocate("b", "urn:snap", "second")
	if got != other {
		t.Errorf("restored code differs: %d != %d", got, other)
	}
	if fresh.Len() != pool.Len() {
		t.Errorf("length differs: %d != %d", fresh.Len(), pool.Len())
	}
	local, err := fresh.LocalName(XmlSpace)
	if err != nil || local != "space" {
		t.Errorf("well known name lost: %q, %v", local, err)
	}
}

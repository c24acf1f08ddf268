package xslt

import (
	"errors"
	"testing"

	"github.com/midbel/loom/xpath"
)

func TestBinderyOnce(t *testing.T) {
	var (
		bindery = NewBindery()
		calls   int
	)
	eval := func() (xpath.Sequence, error) {
		calls++
		return xpath.Singleton("v"), nil
	}
	for i := 0; i < 3; i++ {
		seq, err := bindery.Value("x", eval)
		if err != nil {
			t.Fatalf("resolve: %s", err)
		}
		if got := xpath.StringValue(seq); got != "v" {
			t.Errorf("unexpected value %s", got)
		}
	}
	if calls != 1 {
		t.Errorf("value should be computed once, got %d", calls)
	}
}

func TestBinderyCircular(t *testing.T) {
	bindery := NewBindery()
	_, err := bindery.Value("a", func() (xpath.Sequence, error) {
		return bindery.Value("a", func() (xpath.Sequence, error) {
			return xpath.Singleton(""), nil
		})
	})
	if !errors.Is(err, ErrCircular) {
		t.Errorf("expected circular definition error, got %v", err)
	}
}

func TestBinderySet(t *testing.T) {
	bindery := NewBindery()
	bindery.Set("p", xpath.Singleton("given"))
	if !bindery.Bound("p") {
		t.Errorf("parameter should be bound")
	}
	seq, err := bindery.Value("p", func() (xpath.Sequence, error) {
		t.Fatalf("default should not be evaluated")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("resolve: %s", err)
	}
	if got := xpath.StringValue(seq); got != "given" {
		t.Errorf("unexpected value %s", got)
	}
}

func TestBinderyFailureUnsets(t *testing.T) {
	bindery := NewBindery()
	fail := errors.New("boom")
	_, err := bindery.Value("x", func() (xpath.Sequence, error) {
		return nil, fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected evaluation error, got %v", err)
	}
	seq, err := bindery.Value("x", func() (xpath.Sequence, error) {
		return xpath.Singleton("second"), nil
	})
	if err != nil {
		t.Fatalf("retry should succeed, got %s", err)
	}
	if got := xpath.StringValue(seq); got != "second" {
		t.Errorf("unexpected value %s", got)
	}
}

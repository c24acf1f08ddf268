package xslt

import (
	"fmt"

	"github.com/midbel/loom/xpath"
)

type slotState int8

const (
	slotUnset slotState = iota
	slotBusy
	slotDone
)

// Bindery holds the global variable values of one run. Each slot is
// evaluated at most once; a slot found busy while being evaluated is a
// circular definition.
type Bindery struct {
	slots map[string]*slot
}

type slot struct {
	state slotState
	value xpath.Sequence
}

func NewBindery() *Bindery {
	return &Bindery{
		slots: make(map[string]*slot),
	}
}

// Set binds a value directly, marking the slot done. Run parameters are
// bound this way before evaluation starts.
func (b *Bindery) Set(name string, seq xpath.Sequence) {
	b.slots[name] = &slot{
		state: slotDone,
		value: seq,
	}
}

func (b *Bindery) Bound(name string) bool {
	s, ok := b.slots[name]
	return ok && s.state == slotDone
}

// Value returns the slot value, evaluating it on first use. The slot is
// marked busy for the duration of the evaluation so that a re-entrant
// lookup fails with ErrCircular instead of recursing forever.
func (b *Bindery) Value(name string, eval func() (xpath.Sequence, error)) (xpath.Sequence, error) {
	s, ok := b.slots[name]
	if !ok {
		s = &slot{}
		b.slots[name] = s
	}
	switch s.state {
	case slotDone:
		return s.value, nil
	case slotBusy:
		return nil, fmt.Errorf("$%s: %w", name, ErrCircular)
	}
	s.state = slotBusy
	seq, err := eval()
	if err != nil {
		s.state = slotUnset
		return nil, err
	}
	s.state = slotDone
	s.value = seq
	return seq, nil
}

// Reset clears every slot; the Controller calls it between runs.
func (b *Bindery) Reset() {
	clear(b.slots)
}

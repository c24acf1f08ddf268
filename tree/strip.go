package tree

import (
	"strings"

	"github.com/midbel/loom/names"
)

type StripPolicy int8

const (
	StripNone StripPolicy = iota
	StripAll
	StripIgnorable
)

func (p StripPolicy) String() string {
	switch p {
	case StripNone:
		return "none"
	case StripAll:
		return "all"
	case StripIgnorable:
		return "ignorable"
	default:
		return "<>"
	}
}

type spaceMode int8

const (
	spaceInherit spaceMode = iota
	spacePreserve
	spaceDefault
)

// Stripper drops whitespace-only text nodes from the event stream
// before they reach a builder. xml:space="preserve" always wins; the
// Strip and Preserve callbacks let a stylesheet drive element lists.
type Stripper struct {
	next   Receiver
	pool   *names.Pool
	policy StripPolicy

	// Strip reports elements whose whitespace children must go even
	// under the ignorable policy.
	Strip func(names.Code) bool
	// Preserve reports elements exempted from the all policy.
	Preserve func(names.Code) bool

	stack []spaceFrame
}

type spaceFrame struct {
	name names.Code
	mode spaceMode
}

func StripWhitespace(next Receiver, pool *names.Pool, policy StripPolicy) *Stripper {
	return &Stripper{
		next:   next,
		pool:   pool,
		policy: policy,
	}
}

func (s *Stripper) StartDocument() error {
	s.stack = append(s.stack[:0], spaceFrame{})
	return s.next.StartDocument()
}

func (s *Stripper) StartElement(name names.Code, typ names.Fingerprint, attrs []Attr) error {
	mode := s.stack[len(s.stack)-1].mode
	for _, a := range attrs {
		if a.Name.Fingerprint() != names.XmlSpace {
			continue
		}
		if a.Value == "preserve" {
			mode = spacePreserve
		} else {
			mode = spaceDefault
		}
	}
	s.stack = append(s.stack, spaceFrame{name: name, mode: mode})
	return s.next.StartElement(name, typ, attrs)
}

func (s *Stripper) EndElement() error {
	if len(s.stack) > 1 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	return s.next.EndElement()
}

func (s *Stripper) Text(value string) error {
	if s.discard(value) {
		return nil
	}
	return s.next.Text(value)
}

func (s *Stripper) Comment(value string) error {
	return s.next.Comment(value)
}

func (s *Stripper) Instruction(target, value string) error {
	return s.next.Instruction(target, value)
}

func (s *Stripper) EndDocument() error {
	return s.next.EndDocument()
}

func (s *Stripper) discard(value string) bool {
	if s.policy == StripNone || strings.TrimSpace(value) != "" {
		return false
	}
	top := s.stack[len(s.stack)-1]
	if top.mode == spacePreserve {
		return false
	}
	switch s.policy {
	case StripAll:
		return s.Preserve == nil || !s.Preserve(top.name)
	case StripIgnorable:
		return s.Strip != nil && s.Strip(top.name)
	default:
		return false
	}
}

// Annotations erases type annotations from the stream. Validation is
// stubbed out in this build so the annotations are always empty; the
// filter keeps the validation=strip pipeline composable all the same.
type Annotations struct {
	next Receiver
}

func StripAnnotations(next Receiver) *Annotations {
	return &Annotations{
		next: next,
	}
}

func (s *Annotations) StartDocument() error {
	return s.next.StartDocument()
}

func (s *Annotations) StartElement(name names.Code, _ names.Fingerprint, attrs []Attr) error {
	for i := range attrs {
		attrs[i].Type = 0
	}
	return s.next.StartElement(name, 0, attrs)
}

func (s *Annotations) EndElement() error {
	return s.next.EndElement()
}

func (s *Annotations) Text(value string) error {
	return s.next.Text(value)
}

func (s *Annotations) Comment(value string) error {
	return s.next.Comment(value)
}

func (s *Annotations) Instruction(target, value string) error {
	return s.next.Instruction(target, value)
}

func (s *Annotations) EndDocument() error {
	return s.next.EndDocument()
}

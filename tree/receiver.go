package tree

import (
	"errors"
	"fmt"

	"github.com/midbel/loom/names"
)

var ErrEventOrder = errors.New("event out of order")

// Attr is one attribute delivered with its element. Type carries the
// annotation left by a validating pipeline; it stays zero in a build
// without a schema engine.
type Attr struct {
	Name  names.Code
	Value string
	Type  names.Fingerprint
}

// Receiver is the event contract every builder and filter implements.
// Namespace bindings are resolved by the producer: names arrive as
// codes, attributes arrive with their element.
type Receiver interface {
	StartDocument() error
	StartElement(name names.Code, typ names.Fingerprint, attrs []Attr) error
	EndElement() error
	Text(value string) error
	Comment(value string) error
	Instruction(target, value string) error
	EndDocument() error
}

// Builder is a Receiver that yields a tree once the document is closed.
type Builder interface {
	Receiver
	Tree() (Node, error)
}

// Strategy selects the tree representation a builder produces.
type Strategy int8

const (
	StrategyCompact Strategy = iota
	StrategyLinked
)

func (s Strategy) String() string {
	switch s {
	case StrategyCompact:
		return "compact"
	case StrategyLinked:
		return "linked"
	default:
		return "<>"
	}
}

func NewBuilder(strategy Strategy, pool *names.Pool) Builder {
	switch strategy {
	case StrategyLinked:
		return NewLinkedBuilder(pool)
	default:
		return NewCompactBuilder(pool)
	}
}

// Replay walks a built tree and feeds it back as events. It is the
// bridge between representations: copying a subtree into another
// builder, or re-parenting nodes under a synthetic wrapper.
func Replay(n Node, r Receiver) error {
	if n.Kind() == KindDocument {
		if err := r.StartDocument(); err != nil {
			return err
		}
		for c := range n.Children() {
			if err := ReplayNode(c, r); err != nil {
				return err
			}
		}
		return r.EndDocument()
	}
	return ReplayNode(n, r)
}

// ReplayNode emits the events for a single node and its subtree,
// without the surrounding document events.
func ReplayNode(n Node, r Receiver) error {
	switch n.Kind() {
	case KindElement:
		var attrs []Attr
		for a := range n.Attributes() {
			attrs = append(attrs, Attr{
				Name:  a.Name(),
				Value: a.Value(),
			})
		}
		if err := r.StartElement(n.Name(), 0, attrs); err != nil {
			return err
		}
		for c := range n.Children() {
			if err := ReplayNode(c, r); err != nil {
				return err
			}
		}
		return r.EndElement()
	case KindText:
		return r.Text(n.Value())
	case KindComment:
		return r.Comment(n.Value())
	case KindInstruction:
		target, err := n.Pool().LocalName(n.Fingerprint())
		if err != nil {
			return err
		}
		return r.Instruction(target, n.Value())
	case KindDocument:
		for c := range n.Children() {
			if err := ReplayNode(c, r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: node can not be replayed", n.Kind())
	}
}

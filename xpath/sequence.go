package xpath

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/midbel/loom/tree"
)

// Item is one member of a sequence: a node or an atomic value.
type Item interface {
	Node() tree.Node
	Value() any
	True() bool
	Atomic() bool
}

type Sequence []Item

func Singleton(value any) Sequence {
	var item Item
	switch value := value.(type) {
	case tree.Node:
		item = nodeItem{node: value}
	case Item:
		item = value
	default:
		item = literalItem{value: value}
	}
	var seq Sequence
	seq.Append(item)
	return seq
}

func NewNodeItem(node tree.Node) Item {
	return nodeItem{node: node}
}

func NewLiteralItem(value any) Item {
	return literalItem{value: value}
}

func (s *Sequence) First() Item {
	if s.Empty() {
		return nil
	}
	return (*s)[0]
}

func (s *Sequence) Len() int {
	return len(*s)
}

func (s *Sequence) Empty() bool {
	return len(*s) == 0
}

func (s *Sequence) Singleton() bool {
	return len(*s) == 1
}

func (s *Sequence) Append(item Item) {
	*s = append(*s, item)
}

func (s *Sequence) Concat(other Sequence) {
	*s = slices.Concat(*s, other)
}

func (s *Sequence) True() bool {
	return EffectiveBooleanValue(*s)
}

// Sorted returns the node members in document order with duplicates
// removed; atomic members keep their relative position at the end.
func (s *Sequence) Sorted() Sequence {
	var (
		nodes []Item
		rest  []Item
	)
	for _, it := range *s {
		if it.Atomic() {
			rest = append(rest, it)
		} else {
			nodes = append(nodes, it)
		}
	}
	slices.SortStableFunc(nodes, func(a, b Item) int {
		if tree.Same(a.Node(), b.Node()) {
			return 0
		}
		if tree.Before(a.Node(), b.Node()) {
			return -1
		}
		return 1
	})
	var (
		seq  Sequence
		seen = make(map[string]struct{})
	)
	for _, it := range nodes {
		id := tree.Identify(it.Node())
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		seq.Append(it)
	}
	return append(seq, rest...)
}

// Strings atomizes every member to its string value.
func (s *Sequence) Strings() ([]string, error) {
	var list []string
	for _, it := range *s {
		str, err := toString(it.Value())
		if err != nil {
			return nil, err
		}
		list = append(list, str)
	}
	return list, nil
}

func EffectiveBooleanValue(seq Sequence) bool {
	if seq.Empty() {
		return false
	}
	if !seq[0].Atomic() {
		return true
	}
	if !seq.Singleton() {
		return false
	}
	switch x := seq[0].Value().(type) {
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int64:
		return x != 0
	case bool:
		return x
	default:
		return false
	}
}

type literalItem struct {
	value any
}

func (i literalItem) Node() tree.Node {
	return nil
}

func (i literalItem) Value() any {
	return i.value
}

func (i literalItem) Atomic() bool {
	return true
}

func (i literalItem) True() bool {
	switch v := i.value.(type) {
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int64:
		return v != 0
	case string:
		return v != ""
	case bool:
		return v
	case time.Time:
		return !v.IsZero()
	default:
		return false
	}
}

type nodeItem struct {
	node tree.Node
}

func (i nodeItem) Node() tree.Node {
	return i.node
}

func (i nodeItem) Value() any {
	return i.node.Value()
}

func (i nodeItem) Atomic() bool {
	return false
}

func (i nodeItem) True() bool {
	return true
}

// StringValue is the string value of a whole sequence, members joined
// without separator.
func StringValue(seq Sequence) string {
	list, err := seq.Strings()
	if err != nil {
		return ""
	}
	return strings.Join(list, "")
}

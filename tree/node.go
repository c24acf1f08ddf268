package tree

import (
	"fmt"
	"iter"
	"strings"

	"github.com/midbel/loom/names"
)

type Kind int8

const (
	KindDocument Kind = 1 << iota
	KindElement
	KindAttribute
	KindText
	KindComment
	KindInstruction
	KindNamespace
)

const KindAny = KindDocument | KindElement | KindAttribute | KindText | KindComment | KindInstruction

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindElement:
		return "element"
	case KindAttribute:
		return "attribute"
	case KindText:
		return "text"
	case KindComment:
		return "comment"
	case KindInstruction:
		return "processing-instruction"
	case KindNamespace:
		return "namespace"
	default:
		return "<>"
	}
}

// Node is one node of a built tree. Trees are immutable once built; both
// representations expose the same navigation semantics through this
// interface so callers never need to know which one they hold.
type Node interface {
	Kind() Kind
	Name() names.Code
	Fingerprint() names.Fingerprint
	Value() string
	Parent() Node
	Children() iter.Seq[Node]
	Attributes() iter.Seq[Node]
	NextSibling() Node
	PrevSibling() Node
	Root() Node
	// Document returns the number allocated to the owning tree.
	Document() uint64
	// Order is the position of the node in document order within its tree.
	Order() int
	Pool() *names.Pool
}

// Same reports node identity: same tree, same position.
func Same(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Document() == b.Document() && a.Order() == b.Order()
}

// Before reports whether a precedes b in document order. Nodes of
// distinct trees are ordered by document number.
func Before(a, b Node) bool {
	if a.Document() != b.Document() {
		return a.Document() < b.Document()
	}
	return a.Order() < b.Order()
}

// Identify returns a stable identifier for the node, unique within a
// run sharing one pool.
func Identify(n Node) string {
	return fmt.Sprintf("d%dn%d", n.Document(), n.Order())
}

func LocalName(n Node) string {
	str, err := n.Pool().LocalName(n.Fingerprint())
	if err != nil {
		return ""
	}
	return str
}

func DisplayName(n Node) string {
	str, err := n.Pool().DisplayName(n.Name())
	if err != nil {
		return ""
	}
	return str
}

func URI(n Node) string {
	str, err := n.Pool().URI(n.Fingerprint())
	if err != nil {
		return ""
	}
	return str
}

func textValue(n Node) string {
	var str strings.Builder
	var walk func(Node)
	walk = func(n Node) {
		for c := range n.Children() {
			switch c.Kind() {
			case KindText:
				str.WriteString(c.Value())
			case KindElement:
				walk(c)
			}
		}
	}
	walk(n)
	return str.String()
}

// FindAttribute returns the attribute of n with the given fingerprint.
func FindAttribute(n Node, fp names.Fingerprint) (Node, bool) {
	for a := range n.Attributes() {
		if a.Fingerprint() == fp {
			return a, true
		}
	}
	return nil, false
}

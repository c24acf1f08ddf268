package tree

import (
	"fmt"
	"iter"

	"github.com/midbel/loom/names"
)

// linkedTree is the header shared by every node of one linked document.
type linkedTree struct {
	pool *names.Pool
	doc  uint64
}

type linkedNode struct {
	tree   *linkedTree
	kind   Kind
	name   names.Code
	typ    names.Fingerprint
	value  string
	order  int
	parent *linkedNode

	nodes []*linkedNode
	attrs []*linkedNode
}

func (n *linkedNode) Kind() Kind {
	return n.kind
}

func (n *linkedNode) Name() names.Code {
	return n.name
}

func (n *linkedNode) Fingerprint() names.Fingerprint {
	return n.name.Fingerprint()
}

func (n *linkedNode) Value() string {
	switch n.kind {
	case KindElement, KindDocument:
		return textValue(n)
	default:
		return n.value
	}
}

func (n *linkedNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *linkedNode) Children() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, c := range n.nodes {
			if !yield(c) {
				return
			}
		}
	}
}

func (n *linkedNode) Attributes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, a := range n.attrs {
			if !yield(a) {
				return
			}
		}
	}
}

func (n *linkedNode) NextSibling() Node {
	return n.sibling(1)
}

func (n *linkedNode) PrevSibling() Node {
	return n.sibling(-1)
}

func (n *linkedNode) sibling(offset int) Node {
	if n.parent == nil || n.kind == KindAttribute {
		return nil
	}
	for i, c := range n.parent.nodes {
		if c != n {
			continue
		}
		at := i + offset
		if at < 0 || at >= len(n.parent.nodes) {
			return nil
		}
		return n.parent.nodes[at]
	}
	return nil
}

func (n *linkedNode) Root() Node {
	curr := n
	for curr.parent != nil {
		curr = curr.parent
	}
	return curr
}

func (n *linkedNode) Document() uint64 {
	return n.tree.doc
}

func (n *linkedNode) Order() int {
	return n.order
}

func (n *linkedNode) Pool() *names.Pool {
	return n.tree.pool
}

// LinkedBuilder builds the conventional pointer-based representation.
type LinkedBuilder struct {
	tree  *linkedTree
	root  *linkedNode
	open  []*linkedNode
	count int
	state builderState
}

func NewLinkedBuilder(pool *names.Pool) *LinkedBuilder {
	return &LinkedBuilder{
		tree: &linkedTree{
			pool: pool,
		},
	}
}

func (b *LinkedBuilder) StartDocument() error {
	if b.state != stateIdle {
		return fmt.Errorf("%w: document already started", ErrEventOrder)
	}
	b.state = stateOpen
	b.tree.doc = b.tree.pool.NextDocument()
	b.root = &linkedNode{
		tree: b.tree,
		kind: KindDocument,
	}
	b.count = 1
	b.open = append(b.open, b.root)
	return nil
}

func (b *LinkedBuilder) StartElement(name names.Code, typ names.Fingerprint, attrs []Attr) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: element outside document", ErrEventOrder)
	}
	elem := b.append(KindElement, name, typ, "")
	for _, a := range attrs {
		attr := &linkedNode{
			tree:   b.tree,
			kind:   KindAttribute,
			name:   a.Name,
			typ:    a.Type,
			value:  a.Value,
			order:  b.count,
			parent: elem,
		}
		b.count++
		elem.attrs = append(elem.attrs, attr)
	}
	b.open = append(b.open, elem)
	return nil
}

func (b *LinkedBuilder) EndElement() error {
	if b.state != stateOpen || len(b.open) <= 1 {
		return fmt.Errorf("%w: end of element without opening", ErrEventOrder)
	}
	b.open = b.open[:len(b.open)-1]
	return nil
}

func (b *LinkedBuilder) Text(value string) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: text outside document", ErrEventOrder)
	}
	b.append(KindText, 0, 0, value)
	return nil
}

func (b *LinkedBuilder) Comment(value string) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: comment outside document", ErrEventOrder)
	}
	b.append(KindComment, 0, 0, value)
	return nil
}

func (b *LinkedBuilder) Instruction(target, value string) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: instruction outside document", ErrEventOrder)
	}
	code, err := b.tree.pool.Allocate("", "", target)
	if err != nil {
		return err
	}
	b.append(KindInstruction, code, 0, value)
	return nil
}

func (b *LinkedBuilder) EndDocument() error {
	if b.state != stateOpen || len(b.open) != 1 {
		return fmt.Errorf("%w: document still has open elements", ErrEventOrder)
	}
	b.open = b.open[:0]
	b.state = stateDone
	return nil
}

func (b *LinkedBuilder) Tree() (Node, error) {
	if b.state != stateDone {
		return nil, fmt.Errorf("%w: document not closed", ErrEventOrder)
	}
	return b.root, nil
}

func (b *LinkedBuilder) append(kind Kind, name names.Code, typ names.Fingerprint, value string) *linkedNode {
	parent := b.open[len(b.open)-1]
	node := &linkedNode{
		tree:   b.tree,
		kind:   kind,
		name:   name,
		typ:    typ,
		value:  value,
		order:  b.count,
		parent: parent,
	}
	b.count++
	parent.nodes = append(parent.nodes, node)
	return node
}

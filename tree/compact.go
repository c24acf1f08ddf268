package tree

import (
	"fmt"
	"iter"

	"github.com/midbel/loom/names"
)

const nilIndex = int32(-1)

// compactTree stores every node of one document as a row in a set of
// parallel arrays. Attributes are rows too, appended right after their
// element, so the row index is the document order.
type compactTree struct {
	pool *names.Pool
	doc  uint64

	kind   []Kind
	name   []names.Code
	typ    []names.Fingerprint
	parent []int32
	next   []int32
	child  []int32
	attr   []int32
	value  []string
}

func (t *compactTree) node(ix int32) Node {
	return compactNode{tree: t, ix: ix}
}

func (t *compactTree) push(kind Kind, name names.Code, typ names.Fingerprint, parent int32, value string) int32 {
	ix := int32(len(t.kind))
	t.kind = append(t.kind, kind)
	t.name = append(t.name, name)
	t.typ = append(t.typ, typ)
	t.parent = append(t.parent, parent)
	t.next = append(t.next, nilIndex)
	t.child = append(t.child, nilIndex)
	t.attr = append(t.attr, nilIndex)
	t.value = append(t.value, value)
	return ix
}

type compactNode struct {
	tree *compactTree
	ix   int32
}

func (n compactNode) Kind() Kind {
	return n.tree.kind[n.ix]
}

func (n compactNode) Name() names.Code {
	return n.tree.name[n.ix]
}

func (n compactNode) Fingerprint() names.Fingerprint {
	return n.tree.name[n.ix].Fingerprint()
}

func (n compactNode) Value() string {
	switch n.Kind() {
	case KindElement, KindDocument:
		return textValue(n)
	default:
		return n.tree.value[n.ix]
	}
}

func (n compactNode) Parent() Node {
	p := n.tree.parent[n.ix]
	if p == nilIndex {
		return nil
	}
	return n.tree.node(p)
}

func (n compactNode) Children() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for c := n.tree.child[n.ix]; c != nilIndex; c = n.tree.next[c] {
			if !yield(n.tree.node(c)) {
				return
			}
		}
	}
}

func (n compactNode) Attributes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for a := n.tree.attr[n.ix]; a != nilIndex; a = n.tree.next[a] {
			if !yield(n.tree.node(a)) {
				return
			}
		}
	}
}

func (n compactNode) NextSibling() Node {
	if n.Kind() == KindAttribute {
		return nil
	}
	s := n.tree.next[n.ix]
	if s == nilIndex {
		return nil
	}
	return n.tree.node(s)
}

func (n compactNode) PrevSibling() Node {
	p := n.tree.parent[n.ix]
	if p == nilIndex || n.Kind() == KindAttribute {
		return nil
	}
	var prev int32 = nilIndex
	for c := n.tree.child[p]; c != nilIndex && c != n.ix; c = n.tree.next[c] {
		prev = c
	}
	if prev == nilIndex {
		return nil
	}
	return n.tree.node(prev)
}

func (n compactNode) Root() Node {
	return n.tree.node(0)
}

func (n compactNode) Document() uint64 {
	return n.tree.doc
}

func (n compactNode) Order() int {
	return int(n.ix)
}

func (n compactNode) Pool() *names.Pool {
	return n.tree.pool
}

// CompactBuilder builds the array-based representation. It favors large
// documents: one allocation stride per node, integer navigation.
type CompactBuilder struct {
	tree  *compactTree
	open  []int32
	last  []int32
	state builderState
}

type builderState int8

const (
	stateIdle builderState = iota
	stateOpen
	stateDone
)

func NewCompactBuilder(pool *names.Pool) *CompactBuilder {
	return &CompactBuilder{
		tree: &compactTree{
			pool: pool,
		},
	}
}

func (b *CompactBuilder) StartDocument() error {
	if b.state != stateIdle {
		return fmt.Errorf("%w: document already started", ErrEventOrder)
	}
	b.state = stateOpen
	b.tree.doc = b.tree.pool.NextDocument()
	ix := b.tree.push(KindDocument, 0, 0, nilIndex, "")
	b.open = append(b.open, ix)
	b.last = append(b.last, nilIndex)
	return nil
}

func (b *CompactBuilder) StartElement(name names.Code, typ names.Fingerprint, attrs []Attr) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: element outside document", ErrEventOrder)
	}
	ix := b.append(KindElement, name, typ, "")
	var prev int32 = nilIndex
	for _, a := range attrs {
		ax := b.tree.push(KindAttribute, a.Name, a.Type, ix, a.Value)
		if prev == nilIndex {
			b.tree.attr[ix] = ax
		} else {
			b.tree.next[prev] = ax
		}
		prev = ax
	}
	b.open = append(b.open, ix)
	b.last = append(b.last, nilIndex)
	return nil
}

func (b *CompactBuilder) EndElement() error {
	if b.state != stateOpen || len(b.open) <= 1 {
		return fmt.Errorf("%w: end of element without opening", ErrEventOrder)
	}
	b.open = b.open[:len(b.open)-1]
	b.last = b.last[:len(b.last)-1]
	return nil
}

func (b *CompactBuilder) Text(value string) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: text outside document", ErrEventOrder)
	}
	b.append(KindText, 0, 0, value)
	return nil
}

func (b *CompactBuilder) Comment(value string) error {
	if b.state != stateOpen {
		return fmt.Errorf("%w: comment outside document", ErrEventOrder)
	}
	b.append(KindComment, 0, 0, value)
	return nil
}

func (b *CompactBuilder) Instruction(target, value string) error {
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

func (b *CompactBuilder) EndDocument() error {
	if b.state != stateOpen || len(b.open) != 1 {
		return fmt.Errorf("%w: document still has open elements", ErrEventOrder)
	}
	b.open = b.open[:0]
	b.last = b.last[:0]
	b.state = stateDone
	return nil
}

func (b *CompactBuilder) Tree() (Node, error) {
	if b.state != stateDone {
		return nil, fmt.Errorf("%w: document not closed", ErrEventOrder)
	}
	return b.tree.node(0), nil
}

func (b *CompactBuilder) append(kind Kind, name names.Code, typ names.Fingerprint, value string) int32 {
	var (
		depth  = len(b.open) - 1
		parent = b.open[depth]
		ix     = b.tree.push(kind, name, typ, parent, value)
	)
	if b.last[depth] == nilIndex {
		b.tree.child[parent] = ix
	} else {
		b.tree.next[b.last[depth]] = ix
	}
	b.last[depth] = ix
	return ix
}

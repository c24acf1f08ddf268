package tree_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
)

type event struct {
	kind  tree.Kind
	name  string
	value string
}

func feed(t *testing.T, b tree.Builder, pool *names.Pool) {
	t.Helper()
	code := func(local string) names.Code {
		c, err := pool.Allocate("", "", local)
		if err != nil {
			t.Fatalf("allocate %s: %s", local, err)
		}
		return c
	}
	steps := []func() error{
		func() error { return b.StartDocument() },
		func() error {
			attrs := []tree.Attr{
				{Name: code("lang"), Value: "en"},
			}
			return b.StartElement(code("library"), 0, attrs)
		},
		func() error { return b.Comment("catalog") },
		func() error { return b.StartElement(code("book"), 0, nil) },
		func() error { return b.Text("dune") },
		func() error { return b.EndElement() },
		func() error { return b.StartElement(code("book"), 0, nil) },
		func() error { return b.Text("neuromancer") },
		func() error { return b.EndElement() },
		func() error { return b.Instruction("target", "data") },
		func() error { return b.EndElement() },
		func() error { return b.EndDocument() },
	}
	for i, fn := range steps {
		if err := fn(); err != nil {
			t.Fatalf("event %d: %s", i, err)
		}
	}
}

func collect(n tree.Node) []event {
	var list []event
	var walk func(tree.Node)
	walk = func(n tree.Node) {
		list = append(list, event{
			kind:  n.Kind(),
			name:  tree.LocalName(n),
			value: n.Value(),
		})
		if n.Kind() == tree.KindElement {
			for a := range n.Attributes() {
				list = append(list, event{
					kind:  a.Kind(),
					name:  tree.LocalName(a),
					value: a.Value(),
				})
			}
		}
		for c := range n.Children() {
			walk(c)
		}
	}
	walk(n)
	return list
}

func TestRoundTrip(t *testing.T) {
	strategies := []tree.Strategy{
		tree.StrategyCompact,
		tree.StrategyLinked,
	}
	var results [][]event
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			pool := names.NewPool()
			b := tree.NewBuilder(s, pool)
			feed(t, b, pool)
			root, err := b.Tree()
			if err != nil {
				t.Fatalf("tree: %s", err)
			}
			got := collect(root)
			want := []event{
				{kind: tree.KindDocument, value: "duneneuromancer"},
				{kind: tree.KindElement, name: "library", value: "duneneuromancer"},
				{kind: tree.KindAttribute, name: "lang", value: "en"},
				{kind: tree.KindComment, value: "catalog"},
				{kind: tree.KindElement, name: "book", value: "dune"},
				{kind: tree.KindText, value: "dune"},
				{kind: tree.KindElement, name: "book", value: "neuromancer"},
				{kind: tree.KindText, value: "neuromancer"},
				{kind: tree.KindInstruction, name: "target", value: "data"},
			}
			if len(got) != len(want) {
				t.Fatalf("got %d nodes, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("node %d: got %+v, want %+v", i, got[i], want[i])
				}
			}
			results = append(results, got)
		})
	}
	if len(results) == 2 {
		for i := range results[0] {
			if results[0][i] != results[1][i] {
				t.Errorf("representations diverge at node %d: %+v vs %+v", i, results[0][i], results[1][i])
			}
		}
	}
}

func TestDocumentOrder(t *testing.T) {
	pool := names.NewPool()
	b := tree.NewBuilder(tree.StrategyCompact, pool)
	feed(t, b, pool)
	root, _ := b.Tree()

	var prev tree.Node
	var walk func(tree.Node)
	walk = func(n tree.Node) {
		if prev != nil && !tree.Before(prev, n) {
			t.Errorf("node %d not after node %d", n.Order(), prev.Order())
		}
		prev = n
		for c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
}

func TestSiblings(t *testing.T) {
	for _, s := range []tree.Strategy{tree.StrategyCompact, tree.StrategyLinked} {
		t.Run(s.String(), func(t *testing.T) {
			pool := names.NewPool()
			b := tree.NewBuilder(s, pool)
			feed(t, b, pool)
			root, _ := b.Tree()

			var first tree.Node
			for c := range root.Children() {
				if c.Kind() == tree.KindElement {
					first = c
					break
				}
			}
			var books []tree.Node
			for c := range first.Children() {
				if c.Kind() == tree.KindElement {
					books = append(books, c)
				}
			}
			if len(books) != 2 {
				t.Fatalf("got %d book elements, want 2", len(books))
			}
			next := books[0].NextSibling()
			if next == nil || !tree.Same(next, books[1]) {
				t.Errorf("following sibling of first book is not second book")
			}
			prev := books[1].PrevSibling()
			if prev == nil || !tree.Same(prev, books[0]) {
				t.Errorf("preceding sibling of second book is not first book")
			}
			if !tree.Same(books[0].Parent(), first) {
				t.Errorf("parent of book is not library")
			}
			if !tree.Same(books[1].Root(), root) {
				t.Errorf("root of book is not document")
			}
		})
	}
}

func TestEventOrder(t *testing.T) {
	pool := names.NewPool()
	b := tree.NewBuilder(tree.StrategyCompact, pool)
	if err := b.StartDocument(); err != nil {
		t.Fatalf("start document: %s", err)
	}
	if err := b.EndElement(); err == nil || !errors.Is(err, tree.ErrEventOrder) {
		t.Errorf("end element without opening: got %v, want event order error", err)
	}
	if err := b.EndDocument(); err != nil {
		t.Fatalf("end document: %s", err)
	}
	if err := b.Text("late"); err == nil {
		t.Errorf("text after end of document accepted")
	}
}

func TestStripWhitespace(t *testing.T) {
	pool := names.NewPool()
	code := func(prefix, uri, local string) names.Code {
		c, err := pool.Allocate(prefix, uri, local)
		if err != nil {
			t.Fatalf("allocate: %s", err)
		}
		return c
	}
	var (
		pre  = code("", "", "pre")
		item = code("", "", "item")
		keep = code("xml", names.XmlNamespace, "space")
	)

	build := func(policy tree.StripPolicy, strip func(names.Code) bool) tree.Node {
		b := tree.NewBuilder(tree.StrategyLinked, pool)
		s := tree.StripWhitespace(b, pool, policy)
		s.Strip = strip
		s.StartDocument()
		s.StartElement(item, 0, nil)
		s.Text("  ")
		s.StartElement(pre, 0, []tree.Attr{{Name: keep, Value: "preserve"}})
		s.Text("  ")
		s.EndElement()
		s.Text("value")
		s.EndElement()
		s.EndDocument()
		root, err := b.Tree()
		if err != nil {
			t.Fatalf("tree: %s", err)
		}
		return root
	}

	countText := func(root tree.Node) int {
		var n int
		var walk func(tree.Node)
		walk = func(node tree.Node) {
			if node.Kind() == tree.KindText {
				n++
			}
			for c := range node.Children() {
				walk(c)
			}
		}
		walk(root)
		return n
	}

	if got := countText(build(tree.StripNone, nil)); got != 3 {
		t.Errorf("policy none: got %d text nodes, want 3", got)
	}
	if got := countText(build(tree.StripAll, nil)); got != 2 {
		t.Errorf("policy all: got %d text nodes, want 2 (xml:space kept)", got)
	}
	strip := func(c names.Code) bool {
		return c.Fingerprint() == item.Fingerprint()
	}
	if got := countText(build(tree.StripIgnorable, strip)); got != 2 {
		t.Errorf("policy ignorable with strip list: got %d text nodes, want 2", got)
	}
	if got := countText(build(tree.StripIgnorable, nil)); got != 3 {
		t.Errorf("policy ignorable without strip list: got %d text nodes, want 3", got)
	}
}

func TestReplay(t *testing.T) {
	pool := names.NewPool()
	src := tree.NewBuilder(tree.StrategyCompact, pool)
	feed(t, src, pool)
	from, _ := src.Tree()

	dst := tree.NewBuilder(tree.StrategyLinked, pool)
	if err := tree.Replay(from, dst); err != nil {
		t.Fatalf("replay: %s", err)
	}
	to, err := dst.Tree()
	if err != nil {
		t.Fatalf("tree: %s", err)
	}
	var (
		a = collect(from)
		b = collect(to)
	)
	if len(a) != len(b) {
		t.Fatalf("replayed tree has %d nodes, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("node %d: got %+v, want %+v", i, b[i], a[i])
		}
	}
}

func TestWriter(t *testing.T) {
	pool := names.NewPool()
	b := tree.NewBuilder(tree.StrategyCompact, pool)
	feed(t, b, pool)
	root, _ := b.Tree()

	var str strings.Builder
	w := tree.NewWriter(&str)
	w.WriterOptions |= tree.OptionCompact | tree.OptionNoProlog
	if err := w.Write(root); err != nil {
		t.Fatalf("write: %s", err)
	}
	want := `<library lang="en"><!--catalog--><book>dune</book><book>neuromancer</book><?target data?></library>`
	if got := str.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

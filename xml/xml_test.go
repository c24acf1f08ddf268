package xml_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xml"
)

const doc = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="urn:books" xmlns:m="urn:meta" count="2">
	<book m:id="b1">dune &amp; others</book>
	<!--pending-->
	<book m:id="b2"><![CDATA[<raw>]]></book>
</catalog>`

func parse(t *testing.T, input string) (tree.Node, *names.Pool) {
	t.Helper()
	pool := names.NewPool()
	root, err := xml.Load(strings.NewReader(input), pool, tree.StrategyLinked)
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	return root, pool
}

func TestParse(t *testing.T) {
	root, _ := parse(t, doc)
	var elem tree.Node
	for c := range root.Children() {
		if c.Kind() == tree.KindElement {
			elem = c
			break
		}
	}
	if elem == nil {
		t.Fatal("missing root element")
	}
	if tree.LocalName(elem) != "catalog" {
		t.Errorf("root element: got %s, want catalog", tree.LocalName(elem))
	}
	if tree.URI(elem) != "urn:books" {
		t.Errorf("default namespace: got %q, want urn:books", tree.URI(elem))
	}
	count, ok := findAttr(elem, "count")
	if !ok || count.Value() != "2" {
		t.Errorf("count attribute missing or wrong")
	}
	if ok && tree.URI(count) != "" {
		t.Errorf("unprefixed attribute got namespace %q", tree.URI(count))
	}

	var books []tree.Node
	for c := range elem.Children() {
		if c.Kind() == tree.KindElement {
			books = append(books, c)
		}
	}
	if len(books) != 2 {
		t.Fatalf("got %d book elements, want 2", len(books))
	}
	if got := books[0].Value(); got != "dune & others" {
		t.Errorf("entity expansion: got %q", got)
	}
	if got := books[1].Value(); got != "<raw>" {
		t.Errorf("cdata: got %q", got)
	}
	id, ok := findAttr(books[0], "id")
	if !ok {
		t.Fatal("missing m:id attribute")
	}
	if tree.URI(id) != "urn:meta" {
		t.Errorf("prefixed attribute namespace: got %q, want urn:meta", tree.URI(id))
	}
}

func TestSameFingerprint(t *testing.T) {
	input := `<?xml version="1.0"?>
<a:root xmlns:a="urn:x" xmlns:b="urn:x"><a:item/><b:item/></a:root>`
	root, _ := parse(t, input)
	var items []tree.Node
	var walk func(tree.Node)
	walk = func(n tree.Node) {
		if n.Kind() == tree.KindElement && tree.LocalName(n) == "item" {
			items = append(items, n)
		}
		for c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Fingerprint() != items[1].Fingerprint() {
		t.Errorf("same expanded name got distinct fingerprints")
	}
	if items[0].Name() == items[1].Name() {
		t.Errorf("distinct prefixes got the same code")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		Name  string
		Input string
	}{
		{
			Name:  "no prolog",
			Input: `<root/>`,
		},
		{
			Name:  "mismatched tag",
			Input: `<?xml version="1.0"?><root><a></b></root>`,
		},
		{
			Name:  "mismatched prefix",
			Input: `<?xml version="1.0"?><x:root xmlns:x="urn:x" xmlns:y="urn:x"></y:root>`,
		},
		{
			Name:  "duplicate attribute",
			Input: `<?xml version="1.0"?><root a="1" a="2"/>`,
		},
		{
			Name:  "unclosed root",
			Input: `<?xml version="1.0"?><root>`,
		},
		{
			Name:  "second root",
			Input: `<?xml version="1.0"?><root/><other/>`,
		},
		{
			Name:  "bad version",
			Input: `<?xml version="2.0"?><root/>`,
		},
		{
			Name:  "text outside root",
			Input: `<?xml version="1.0"?>stray<root/>`,
		},
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			pool := names.NewPool()
			_, err := xml.Load(strings.NewReader(c.Input), pool, tree.StrategyLinked)
			if err == nil {
				t.Fatal("parse succeeded, error expected")
			}
			var perr xml.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("got %T, want ParseError", err)
			}
			if perr.Line <= 0 {
				t.Errorf("error carries no position: %s", perr)
			}
		})
	}
}

func TestOmitProlog(t *testing.T) {
	pool := names.NewPool()
	p := xml.NewParser(strings.NewReader(`<root/>`), pool)
	p.OmitProlog = true
	b := tree.NewBuilder(tree.StrategyCompact, pool)
	if err := p.Parse(b); err != nil {
		t.Fatalf("parse: %s", err)
	}
	if _, err := b.Tree(); err != nil {
		t.Fatalf("tree: %s", err)
	}
}

func TestMaxDepth(t *testing.T) {
	var str strings.Builder
	str.WriteString(`<?xml version="1.0"?>`)
	for range 8 {
		str.WriteString("<n>")
	}
	pool := names.NewPool()
	p := xml.NewParser(strings.NewReader(str.String()), pool)
	p.MaxDepth = 4
	err := p.Parse(tree.NewBuilder(tree.StrategyCompact, pool))
	if err == nil {
		t.Fatal("depth limit not enforced")
	}
}

func TestDropCommentsAndPI(t *testing.T) {
	const input = `<?xml version="1.0"?>
<root><!--note--><?target data?><child/></root>`

	count := func(keep bool) (comments, pis int) {
		pool := names.NewPool()
		p := xml.NewParser(strings.NewReader(input), pool)
		p.KeepComments = keep
		p.KeepPI = keep
		b := tree.NewBuilder(tree.StrategyLinked, pool)
		if err := p.Parse(b); err != nil {
			t.Fatalf("parse: %s", err)
		}
		root, err := b.Tree()
		if err != nil {
			t.Fatalf("tree: %s", err)
		}
		for c := range root.Children() {
			for n := range c.Children() {
				switch n.Kind() {
				case tree.KindComment:
					comments++
				case tree.KindInstruction:
					pis++
				}
			}
		}
		return comments, pis
	}

	if comments, pis := count(true); comments != 1 || pis != 1 {
		t.Errorf("kept parse: got %d comment(s), %d instruction(s)", comments, pis)
	}
	if comments, pis := count(false); comments != 0 || pis != 0 {
		t.Errorf("dropping parse: got %d comment(s), %d instruction(s)", comments, pis)
	}
}

func TestReset(t *testing.T) {
	pool := names.NewPool()
	p := xml.NewParser(strings.NewReader(`<?xml version="1.0"?><first/>`), pool)
	b := tree.NewBuilder(tree.StrategyLinked, pool)
	if err := p.Parse(b); err != nil {
		t.Fatalf("first parse: %s", err)
	}
	p.Reset(strings.NewReader(`<?xml version="1.0"?><second/>`))
	b = tree.NewBuilder(tree.StrategyLinked, pool)
	if err := p.Parse(b); err != nil {
		t.Fatalf("second parse: %s", err)
	}
	root, _ := b.Tree()
	for c := range root.Children() {
		if tree.LocalName(c) != "second" {
			t.Errorf("got %s, want second", tree.LocalName(c))
		}
	}
}

func findAttr(n tree.Node, local string) (tree.Node, bool) {
	for a := range n.Attributes() {
		if tree.LocalName(a) == local {
			return a, true
		}
	}
	return nil, false
}

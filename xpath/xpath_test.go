package xpath_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xml"
	"github.com/midbel/loom/xpath"
)

const library = `<?xml version="1.0"?>
<library lang="en"><book id="b1" year="1965"><title>dune</title><price>10</price></book><book id="b2" year="1984"><title>neuromancer</title><price>12.5</price></book><book id="b3" year="1965"><title>pnin</title><price>5</price></book></library>`

func loadLibrary(t *testing.T) tree.Node {
	t.Helper()
	doc, err := xml.Load(strings.NewReader(library), names.NewPool(), tree.StrategyLinked)
	if err != nil {
		t.Fatalf("load document: %s", err)
	}
	return doc
}

func evalQuery(t *testing.T, ctx xpath.Context, query string) xpath.Sequence {
	t.Helper()
	expr, err := xpath.CompileString(query)
	if err != nil {
		t.Fatalf("compile %q: %s", query, err)
	}
	seq, err := expr.Eval(ctx)
	if err != nil {
		t.Fatalf("eval %q: %s", query, err)
	}
	return seq
}

func queryStrings(t *testing.T, ctx xpath.Context, query string) []string {
	t.Helper()
	seq := evalQuery(t, ctx, query)
	list, err := seq.Strings()
	if err != nil {
		t.Fatalf("strings %q: %s", query, err)
	}
	return list
}

func TestQueries(t *testing.T) {
	doc := loadLibrary(t)
	data := []struct {
		Query string
		Want  []string
	}{
		{
			Query: "/library/book/title",
			Want:  []string{"dune", "neuromancer", "pnin"},
		},
		{
			Query: "//title",
			Want:  []string{"dune", "neuromancer", "pnin"},
		},
		{
			Query: "/library/book[1]/title",
			Want:  []string{"dune"},
		},
		{
			Query: "/library/book[position() = last()]/title",
			Want:  []string{"pnin"},
		},
		{
			Query: "/library/book[@id = 'b2']/title",
			Want:  []string{"neuromancer"},
		},
		{
			Query: "/library/book[@year > 1970]/title",
			Want:  []string{"neuromancer"},
		},
		{
			Query: "/library/@lang",
			Want:  []string{"en"},
		},
		{
			Query: "/library/*[2]/title",
			Want:  []string{"neuromancer"},
		},
		{
			Query: "(/library/book[2] | /library/book[1])/@id",
			Want:  []string{"b1", "b2"},
		},
		{
			Query: "(/library/book[1] | /library/book[1])/@id",
			Want:  []string{"b1"},
		},
		{
			Query: "count(/library/book)",
			Want:  []string{"3"},
		},
		{
			Query: "sum(/library/book/price)",
			Want:  []string{"27.5"},
		},
		{
			Query: "string-join(/library/book/@id, ',')",
			Want:  []string{"b1,b2,b3"},
		},
		{
			Query: "concat('a', 'b', 'c')",
			Want:  []string{"abc"},
		},
		{
			Query: "normalize-space('  a   b ')",
			Want:  []string{"a b"},
		},
		{
			Query: "substring('hello', 2, 3)",
			Want:  []string{"ell"},
		},
		{
			Query: "substring-before('a/b', '/')",
			Want:  []string{"a"},
		},
		{
			Query: "substring-after('a/b', '/')",
			Want:  []string{"b"},
		},
		{
			Query: "translate('abc', 'abc', 'xy')",
			Want:  []string{"xy"},
		},
		{
			Query: "string-length('hello')",
			Want:  []string{"5"},
		},
		{
			Query: "contains('hello', 'ell')",
			Want:  []string{"true"},
		},
		{
			Query: "starts-with('hello', 'x')",
			Want:  []string{"false"},
		},
		{
			Query: "not(false())",
			Want:  []string{"true"},
		},
		{
			Query: "floor(2.7)",
			Want:  []string{"2"},
		},
		{
			Query: "ceiling(2.1)",
			Want:  []string{"3"},
		},
		{
			Query: "round(2.5)",
			Want:  []string{"3"},
		},
		{
			Query: "2 + 3 * 4",
			Want:  []string{"14"},
		},
		{
			Query: "10 div 4",
			Want:  []string{"2.5"},
		},
		{
			Query: "7 mod 4",
			Want:  []string{"3"},
		},
		{
			Query: "-(2 + 3)",
			Want:  []string{"-5"},
		},
		{
			Query: "local-name(/library)",
			Want:  []string{"library"},
		},
		{
			Query: "exists(/library/book[4])",
			Want:  []string{"false"},
		},
		{
			Query: "false() = false()",
			Want:  []string{"true"},
		},
		{
			Query: "true() = false()",
			Want:  []string{"false"},
		},
		{
			Query: "false() != false()",
			Want:  []string{"false"},
		},
		{
			Query: "true() != false()",
			Want:  []string{"true"},
		},
		{
			Query: "(/library/book[4] > 0) = false()",
			Want:  []string{"true"},
		},
		{
			Query: "empty(/library/book[4])",
			Want:  []string{"true"},
		},
	}
	for _, d := range data {
		t.Run(d.Query, func(t *testing.T) {
			got := queryStrings(t, xpath.DefaultContext(doc), d.Query)
			if !slices.Equal(got, d.Want) {
				t.Errorf("result mismatch: want %q, got %q", d.Want, got)
			}
		})
	}
}

func TestAxes(t *testing.T) {
	doc := loadLibrary(t)
	seq := evalQuery(t, xpath.DefaultContext(doc), "/library/book[2]")
	if seq.Len() != 1 {
		t.Fatalf("focus node: want 1 node, got %d", seq.Len())
	}
	ctx := xpath.DefaultContext(seq.First().Node())
	data := []struct {
		Query string
		Want  []string
	}{
		{
			Query: "self::book/@id",
			Want:  []string{"b2"},
		},
		{
			Query: "parent::library/@lang",
			Want:  []string{"en"},
		},
		{
			Query: "ancestor::library/@lang",
			Want:  []string{"en"},
		},
		{
			Query: "ancestor-or-self::*/@lang",
			Want:  []string{"en"},
		},
		{
			Query: "following-sibling::book/@id",
			Want:  []string{"b3"},
		},
		{
			Query: "preceding-sibling::book/@id",
			Want:  []string{"b1"},
		},
		{
			Query: "descendant::title",
			Want:  []string{"neuromancer"},
		},
		{
			Query: "descendant-or-self::*/@id",
			Want:  []string{"b2"},
		},
		{
			Query: "child::title",
			Want:  []string{"neuromancer"},
		},
		{
			Query: "..",
			Want:  []string{},
		},
	}
	for _, d := range data {
		t.Run(d.Query, func(t *testing.T) {
			if d.Query == ".." {
				seq := evalQuery(t, ctx, d.Query)
				if seq.Len() != 1 || tree.LocalName(seq.First().Node()) != "library" {
					t.Errorf("want parent library element, got %d node(s)", seq.Len())
				}
				return
			}
			got := queryStrings(t, ctx, d.Query)
			if !slices.Equal(got, d.Want) {
				t.Errorf("result mismatch: want %q, got %q", d.Want, got)
			}
		})
	}
}

func TestNodeTests(t *testing.T) {
	pool := names.NewPool()
	const mixed = `<?xml version="1.0"?>
<root>text<!--note--><?pi stuff?><child/></root>`
	doc, err := xml.Load(strings.NewReader(mixed), pool, tree.StrategyCompact)
	if err != nil {
		t.Fatalf("load document: %s", err)
	}
	ctx := xpath.DefaultContext(doc)
	data := []struct {
		Query string
		Count int
	}{
		{Query: "/root/node()", Count: 4},
		{Query: "/root/text()", Count: 1},
		{Query: "/root/comment()", Count: 1},
		{Query: "/root/processing-instruction()", Count: 1},
		{Query: "/root/processing-instruction('pi')", Count: 1},
		{Query: "/root/processing-instruction('other')", Count: 0},
		{Query: "/root/element()", Count: 1},
	}
	for _, d := range data {
		t.Run(d.Query, func(t *testing.T) {
			seq := evalQuery(t, ctx, d.Query)
			if seq.Len() != d.Count {
				t.Errorf("want %d node(s), got %d", d.Count, seq.Len())
			}
		})
	}
}

func TestNamespacedNames(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<root xmlns="urn:books"><title>dune</title></root>`
	tree1, err := xml.Load(strings.NewReader(doc), names.NewPool(), tree.StrategyLinked)
	if err != nil {
		t.Fatalf("load document: %s", err)
	}
	ctx := xpath.DefaultContext(tree1)

	// unprefixed names address the empty namespace
	if seq := evalQuery(t, ctx, "/root/title"); seq.Len() != 0 {
		t.Errorf("unprefixed test should not match a namespaced element, got %d node(s)", seq.Len())
	}

	cp := xpath.NewCompiler(strings.NewReader("/b:root/b:title"))
	cp.Namespaces = map[string]string{"b": "urn:books"}
	expr, err := cp.Compile()
	if err != nil {
		t.Fatalf("compile: %s", err)
	}
	seq, err := expr.Eval(ctx)
	if err != nil {
		t.Fatalf("eval: %s", err)
	}
	if seq.Len() != 1 {
		t.Fatalf("prefixed test should match, got %d node(s)", seq.Len())
	}
	if got, _ := seq.Strings(); len(got) != 1 || got[0] != "dune" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestVariables(t *testing.T) {
	doc := loadLibrary(t)
	ctx := xpath.DefaultContext(doc)
	ctx.Define("min", xpath.Singleton(1970.0))

	got := queryStrings(t, ctx, "/library/book[@year >= $min]/@id")
	if want := []string{"b2"}; !slices.Equal(got, want) {
		t.Errorf("result mismatch: want %q, got %q", want, got)
	}

	expr, err := xpath.CompileString("$missing")
	if err != nil {
		t.Fatalf("compile: %s", err)
	}
	if _, err := expr.Eval(ctx); err == nil {
		t.Errorf("expected error resolving undefined variable")
	}
}

func TestReferences(t *testing.T) {
	expr, err := xpath.CompileString("$a + count(book[@id = $b])")
	if err != nil {
		t.Fatalf("compile: %s", err)
	}
	got := expr.References()
	slices.Sort(got)
	if want := []string{"a", "b"}; !slices.Equal(got, want) {
		t.Errorf("references mismatch: want %q, got %q", want, got)
	}
}

func TestCompileErrors(t *testing.T) {
	data := []string{
		"book[",
		"book/",
		"1 +",
		"@",
		"concat('a', )",
	}
	for _, q := range data {
		t.Run(q, func(t *testing.T) {
			if _, err := xpath.CompileString(q); err == nil {
				t.Errorf("expected compile error for %q", q)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	doc := loadLibrary(t)
	ctx := xpath.DefaultContext(doc)
	data := []string{
		"position(1)",
		"count()",
		"1 div 0",
		"unknown-function()",
	}
	for _, q := range data {
		t.Run(q, func(t *testing.T) {
			expr, err := xpath.CompileString(q)
			if err != nil {
				t.Fatalf("compile %q: %s", q, err)
			}
			if _, err := expr.Eval(ctx); err == nil {
				t.Errorf("expected eval error for %q", q)
			}
		})
	}
}

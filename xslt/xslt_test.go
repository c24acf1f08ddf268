package xslt_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xslt"
)

const styleHeader = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
<xsl:output omit-xml-declaration="yes"/>
`

const styleFooter = `</xsl:stylesheet>`

func quietConfig() *xslt.Configuration {
	cfg := xslt.NewConfiguration()
	cfg.SetErrorListener(xslt.NewListener(io.Discard))
	return cfg
}

func compileString(t *testing.T, style string, cfg *xslt.Configuration) *xslt.Executable {
	t.Helper()
	exec, err := xslt.Compile(strings.NewReader(style), cfg)
	if err != nil {
		t.Fatalf("compile stylesheet: %s", err)
	}
	return exec
}

func transformString(t *testing.T, style, input string) string {
	t.Helper()
	cfg := quietConfig()
	out, err := tryTransform(style, input, cfg)
	if err != nil {
		t.Fatalf("transform: %s", err)
	}
	return out
}

func tryTransform(style, input string, cfg *xslt.Configuration) (string, error) {
	exec, err := xslt.Compile(strings.NewReader(style), cfg)
	if err != nil {
		return "", err
	}
	var (
		ctrl = xslt.NewController(exec, cfg)
		buf  bytes.Buffer
	)
	if err := ctrl.Transform(strings.NewReader(input), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func TestTransform(t *testing.T) {
	tests := []struct {
		Name  string
		Style string
		Input string
		Want  string
	}{
		{
			Name:  "value-of",
			Style: `<xsl:template match="/"><out><xsl:value-of select="greeting"/></out></xsl:template>`,
			Input: `<greeting>hello</greeting>`,
			Want:  `<out>hello</out>`,
		},
		{
			Name: "apply-templates",
			Style: `<xsl:template match="/"><list><xsl:apply-templates select="items/item"/></list></xsl:template>
<xsl:template match="item"><li><xsl:value-of select="@id"/>:<xsl:value-of select="."/></li></xsl:template>`,
			Input: `<items><item id="a">one</item><item id="b">two</item></items>`,
			Want:  `<list><li>a:one</li><li>b:two</li></list>`,
		},
		{
			Name:  "attribute value template",
			Style: `<xsl:template match="item"><ref target="#{@id}"/></xsl:template>`,
			Input: `<items><item id="a1"/></items>`,
			Want:  `<ref target="#a1"/>`,
		},
		{
			Name: "for-each with numeric sort",
			Style: `<xsl:template match="/"><out><xsl:for-each select="nums/n">
<xsl:sort select="." data-type="number" order="descending"/>
<v><xsl:value-of select="."/></v></xsl:for-each></out></xsl:template>`,
			Input: `<nums><n>3</n><n>10</n><n>2</n></nums>`,
			Want:  `<out><v>10</v><v>3</v><v>2</v></out>`,
		},
		{
			Name: "choose",
			Style: `<xsl:template match="n"><xsl:choose>
<xsl:when test=". &gt; 5"><big/></xsl:when>
<xsl:otherwise><small/></xsl:otherwise>
</xsl:choose></xsl:template>`,
			Input: `<nums><n>3</n><n>10</n></nums>`,
			Want:  `<small/><big/>`,
		},
		{
			Name:  "if",
			Style: `<xsl:template match="n"><xsl:if test=". mod 2 = 0"><even><xsl:value-of select="."/></even></xsl:if></xsl:template>`,
			Input: `<nums><n>1</n><n>2</n><n>3</n><n>4</n></nums>`,
			Want:  `<even>2</even><even>4</even>`,
		},
		{
			Name: "call-template with param",
			Style: `<xsl:template match="/"><xsl:call-template name="greet"><xsl:with-param name="who" select="'go'"/></xsl:call-template></xsl:template>
<xsl:template name="greet"><xsl:param name="who" select="'world'"/><out><xsl:value-of select="$who"/></out></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<out>go</out>`,
		},
		{
			Name: "param default",
			Style: `<xsl:template match="/"><xsl:call-template name="greet"/></xsl:template>
<xsl:template name="greet"><xsl:param name="who" select="'world'"/><out><xsl:value-of select="$who"/></out></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<out>world</out>`,
		},
		{
			Name: "globals in declaration reverse order",
			Style: `<xsl:variable name="b" select="concat($a, 'y')"/>
<xsl:variable name="a" select="'x'"/>
<xsl:template match="/"><out><xsl:value-of select="$b"/></out></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<out>xy</out>`,
		},
		{
			Name: "local variable",
			Style: `<xsl:template match="/"><xsl:variable name="n" select="count(items/item)"/><out><xsl:value-of select="$n"/></out></xsl:template>`,
			Input: `<items><item/><item/></items>`,
			Want:  `<out>2</out>`,
		},
		{
			Name:  "copy-of",
			Style: `<xsl:template match="/"><out><xsl:copy-of select="items/item"/></out></xsl:template>`,
			Input: `<items><item id="1">a</item><item id="2">b</item></items>`,
			Want:  `<out><item id="1">a</item><item id="2">b</item></out>`,
		},
		{
			Name:  "shallow copy",
			Style: `<xsl:template match="item"><xsl:copy><xsl:value-of select="."/></xsl:copy></xsl:template>`,
			Input: `<items><item id="1">a</item></items>`,
			Want:  `<item>a</item>`,
		},
		{
			Name:  "computed element and attribute",
			Style: `<xsl:template match="/"><xsl:element name="wrapper"><xsl:attribute name="id">7</xsl:attribute>x</xsl:element></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<wrapper id="7">x</wrapper>`,
		},
		{
			Name:  "comment and processing instruction",
			Style: `<xsl:template match="/"><out><xsl:comment>note</xsl:comment><xsl:processing-instruction name="target">data</xsl:processing-instruction></out></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<out><!--note--><?target data?></out>`,
		},
		{
			Name: "modes",
			Style: `<xsl:template match="/"><out><xsl:apply-templates select="doc/v"/><xsl:apply-templates select="doc/v" mode="loud"/></out></xsl:template>
<xsl:template match="v"><q><xsl:value-of select="."/></q></xsl:template>
<xsl:template match="v" mode="loud"><Q><xsl:value-of select="."/></Q></xsl:template>`,
			Input: `<doc><v>hi</v></doc>`,
			Want:  `<out><q>hi</q><Q>hi</Q></out>`,
		},
		{
			Name: "key lookup",
			Style: `<xsl:key name="by-id" match="item" use="@id"/>
<xsl:template match="/"><out><xsl:value-of select="key('by-id', 'b')"/></out></xsl:template>`,
			Input: `<items><item id="a">one</item><item id="b">two</item></items>`,
			Want:  `<out>two</out>`,
		},
		{
			Name: "attribute set",
			Style: `<xsl:attribute-set name="common"><xsl:attribute name="class">big</xsl:attribute></xsl:attribute-set>
<xsl:template match="/"><out xsl:use-attribute-sets="common"/></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<out class="big"/>`,
		},
		{
			Name: "escaped braces",
			Style: `<xsl:template match="/"><out v="{{not-a-query}}"/></xsl:template>`,
			Input: `<doc/>`,
			Want:  `<out v="{not-a-query}"/>`,
		},
		{
			Name: "later rule wins on equal match",
			Style: `<xsl:template match="item"><first/></xsl:template>
<xsl:template match="item"><second/></xsl:template>`,
			Input: `<items><item/></items>`,
			Want:  `<second/>`,
		},
		{
			Name: "explicit priority beats position",
			Style: `<xsl:template match="item" priority="2"><first/></xsl:template>
<xsl:template match="item" priority="1"><second/></xsl:template>`,
			Input: `<items><item/></items>`,
			Want:  `<first/>`,
		},
		{
			Name:  "builtin rules copy text",
			Style: `<xsl:template match="skip"/>`,
			Input: `<doc><skip>gone</skip><keep>here</keep></doc>`,
			Want:  `here`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			got := transformString(t, styleHeader+tc.Style+styleFooter, tc.Input)
			if got != tc.Want {
				t.Errorf("results mismatch! want %s, got %s", tc.Want, got)
			}
		})
	}
}

func TestTreeModels(t *testing.T) {
	style := styleHeader + `<xsl:template match="/"><list><xsl:apply-templates select="items/item"/></list></xsl:template>
<xsl:template match="item"><li id="{@id}"><xsl:value-of select="."/></li></xsl:template>` + styleFooter
	input := `<items><item id="a">one</item><item id="b">two</item></items>`

	outputs := make(map[string]string)
	for _, model := range []tree.Strategy{tree.StrategyCompact, tree.StrategyLinked} {
		cfg := quietConfig()
		cfg.Model = model
		got, err := tryTransform(style, input, cfg)
		if err != nil {
			t.Fatalf("%s: transform: %s", model, err)
		}
		outputs[model.String()] = got
	}
	if outputs["compact"] != outputs["linked"] {
		t.Errorf("models disagree! compact %s, linked %s", outputs["compact"], outputs["linked"])
	}
}

func TestStripSpace(t *testing.T) {
	style := styleHeader + `<xsl:strip-space elements="doc"/>
<xsl:template match="/"><xsl:copy-of select="."/></xsl:template>` + styleFooter
	input := "<doc> <a>1</a> <a>2</a> </doc>"
	got := transformString(t, style, input)
	want := `<doc><a>1</a><a>2</a></doc>`
	if got != want {
		t.Errorf("results mismatch! want %s, got %s", want, got)
	}
}

func TestRunParameters(t *testing.T) {
	style := styleHeader + `<xsl:param name="greet" select="'hi'"/>
<xsl:template match="/"><out><xsl:value-of select="$greet"/></out></xsl:template>` + styleFooter

	cfg := quietConfig()
	exec := compileString(t, style, cfg)

	var buf bytes.Buffer
	ctrl := xslt.NewController(exec, cfg)
	if err := ctrl.Transform(strings.NewReader(`<doc/>`), &buf); err != nil {
		t.Fatalf("transform with default: %s", err)
	}
	if got := buf.String(); got != `<out>hi</out>` {
		t.Errorf("default not used! got %s", got)
	}

	buf.Reset()
	ctrl = xslt.NewController(exec, cfg)
	if err := ctrl.SetParameter("greet", "yo"); err != nil {
		t.Fatalf("set parameter: %s", err)
	}
	if err := ctrl.SetParameter("greet", struct{}{}); !errors.Is(err, xslt.ErrBadParam) {
		t.Errorf("expected a bind time rejection, got %v", err)
	}
	if err := ctrl.Transform(strings.NewReader(`<doc/>`), &buf); err != nil {
		t.Fatalf("transform with parameter: %s", err)
	}
	if got := buf.String(); got != `<out>yo</out>` {
		t.Errorf("parameter not applied! got %s", got)
	}
}

func TestRequiredParameter(t *testing.T) {
	style := styleHeader + `<xsl:param name="must" required="yes"/>
<xsl:template match="/"><out><xsl:value-of select="$must"/></out></xsl:template>` + styleFooter

	cfg := quietConfig()
	exec := compileString(t, style, cfg)

	ctrl := xslt.NewController(exec, cfg)
	err := ctrl.Transform(strings.NewReader(`<doc/>`), io.Discard)
	if err == nil {
		t.Fatalf("missing required parameter should fail the run")
	}
	var e *xslt.Error
	if !errors.As(err, &e) || e.Code != xslt.CodeMissingParam {
		t.Errorf("unexpected error: %s", err)
	}

	ctrl = xslt.NewController(exec, cfg)
	if err := ctrl.SetParameter("must", "ok"); err != nil {
		t.Fatalf("set parameter: %s", err)
	}
	var buf bytes.Buffer
	if err := ctrl.Transform(strings.NewReader(`<doc/>`), &buf); err != nil {
		t.Fatalf("transform: %s", err)
	}
	if got := buf.String(); got != `<out>ok</out>` {
		t.Errorf("parameter not applied! got %s", got)
	}
}

func TestMessageTerminate(t *testing.T) {
	style := styleHeader + `<xsl:template match="/"><xsl:message terminate="yes">stop now</xsl:message></xsl:template>` + styleFooter

	var count countListener
	cfg := quietConfig()
	cfg.SetErrorListener(&count)
	exec := compileString(t, style, cfg)
	ctrl := xslt.NewController(exec, cfg)
	err := ctrl.Transform(strings.NewReader(`<doc/>`), io.Discard)
	if !errors.Is(err, xslt.ErrTerminate) {
		t.Errorf("expected termination, got %v", err)
	}
	var e *xslt.Error
	if !errors.As(err, &e) || !e.Reported() {
		t.Errorf("a fatal error should be marked reported")
	}
	if count.fatals != 1 {
		t.Errorf("the listener should see the failure once, got %d", count.fatals)
	}
}

func TestAmbiguousRecovery(t *testing.T) {
	style := styleHeader + `<xsl:template match="/"><xsl:apply-templates select="doc/item"/></xsl:template>
<xsl:template match="item" priority="1"><first/></xsl:template>
<xsl:template match="item" priority="1"><second/></xsl:template>` + styleFooter
	input := `<doc><item/></doc>`

	cfg := quietConfig()
	cfg.Recovery = xslt.RecoverSilently
	got, err := tryTransform(style, input, cfg)
	if err != nil {
		t.Fatalf("silent recovery: %s", err)
	}
	if got != `<second/>` {
		t.Errorf("recovery should pick the later rule! got %s", got)
	}

	var count countListener
	cfg = quietConfig()
	cfg.Recovery = xslt.RecoverWithWarnings
	cfg.SetErrorListener(&count)
	got, err = tryTransform(style, input, cfg)
	if err != nil {
		t.Fatalf("recovery with warnings: %s", err)
	}
	if got != `<second/>` {
		t.Errorf("recovery should pick the later rule! got %s", got)
	}
	if count.warnings != 1 {
		t.Errorf("expected one warning, got %d", count.warnings)
	}

	cfg = quietConfig()
	cfg.Recovery = xslt.DoNotRecover
	_, err = tryTransform(style, input, cfg)
	var e *xslt.Error
	if !errors.As(err, &e) || e.Code != xslt.CodeAmbiguous {
		t.Errorf("expected ambiguous rule error, got %v", err)
	}
}

type countListener struct {
	warnings int
	fatals   int
}

func (c *countListener) Warning(*xslt.Error) {
	c.warnings++
}

func (c *countListener) Error(*xslt.Error) {}

func (c *countListener) Fatal(*xslt.Error) {
	c.fatals++
}

type memOutput struct {
	files map[string]*bytes.Buffer
}

func (m *memOutput) Create(uri string) (io.WriteCloser, error) {
	buf := new(bytes.Buffer)
	m.files[uri] = buf
	return nopCloser{buf}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func TestResultDocument(t *testing.T) {
	style := styleHeader + `<xsl:template match="/"><main/>
<xsl:result-document href="side.xml"><extra><xsl:value-of select="doc"/></extra></xsl:result-document></xsl:template>` + styleFooter

	cfg := quietConfig()
	sink := memOutput{files: make(map[string]*bytes.Buffer)}
	cfg.SetOutputResolver(&sink)

	got, err := tryTransform(style, `<doc>v</doc>`, cfg)
	if err != nil {
		t.Fatalf("transform: %s", err)
	}
	if got != `<main/>` {
		t.Errorf("principal output mismatch! got %s", got)
	}
	side, ok := sink.files["side.xml"]
	if !ok {
		t.Fatalf("secondary output was not created")
	}
	if side.String() != `<extra>v</extra>` {
		t.Errorf("secondary output mismatch! got %s", side.String())
	}
}

func TestResultDocumentClash(t *testing.T) {
	style := styleHeader + `<xsl:template match="/">
<xsl:result-document href="side.xml"><one/></xsl:result-document>
<xsl:result-document href="side.xml"><two/></xsl:result-document>
</xsl:template>` + styleFooter

	cfg := quietConfig()
	sink := memOutput{files: make(map[string]*bytes.Buffer)}
	cfg.SetOutputResolver(&sink)

	_, err := tryTransform(style, `<doc/>`, cfg)
	var e *xslt.Error
	if !errors.As(err, &e) || e.Code != xslt.CodeOutputClash {
		t.Errorf("expected output clash, got %v", err)
	}
}

func TestResultDocumentClashPrincipal(t *testing.T) {
	style := styleHeader + `<xsl:template match="/"><main/>
<xsl:result-document href="out.xml"><extra/></xsl:result-document>
</xsl:template>` + styleFooter

	cfg := quietConfig()
	sink := memOutput{files: make(map[string]*bytes.Buffer)}
	cfg.SetOutputResolver(&sink)
	exec := compileString(t, style, cfg)

	ctrl := xslt.NewController(exec, cfg)
	ctrl.SetOutputURI("out.xml")
	err := ctrl.Transform(strings.NewReader(`<doc/>`), io.Discard)
	var e *xslt.Error
	if !errors.As(err, &e) || e.Code != xslt.CodeOutputClash {
		t.Errorf("expected output clash with the principal destination, got %v", err)
	}

	ctrl = xslt.NewController(exec, cfg)
	ctrl.SetOutputURI("elsewhere.xml")
	if err := ctrl.Transform(strings.NewReader(`<doc/>`), io.Discard); err != nil {
		t.Errorf("distinct destinations should not clash: %s", err)
	}
}

type countResolver struct {
	docs  map[string]string
	calls int
}

func (r *countResolver) Resolve(uri string) (io.ReadCloser, error) {
	r.calls++
	body, ok := r.docs[uri]
	if !ok {
		return nil, fmt.Errorf("%s: unknown document", uri)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestDocumentPoolOnReuse(t *testing.T) {
	style := styleHeader + `<xsl:template match="/"><out><xsl:value-of select="document('src.xml')/doc"/></out></xsl:template>` + styleFooter

	cfg := quietConfig()
	src := countResolver{docs: map[string]string{"src.xml": `<doc>v</doc>`}}
	cfg.SetURIResolver(&src)
	exec := compileString(t, style, cfg)

	ctrl := xslt.NewController(exec, cfg)
	for i := range 2 {
		var buf bytes.Buffer
		if err := ctrl.TransformFile("src.xml", &buf); err != nil {
			t.Fatalf("run %d: %s", i+1, err)
		}
		if got := buf.String(); got != `<out>v</out>` {
			t.Errorf("run %d: unexpected output %s", i+1, got)
		}
	}
	if src.calls != 2 {
		t.Errorf("one fetch per run expected, got %d", src.calls)
	}
}

func TestInvoke(t *testing.T) {
	style := styleHeader + `<xsl:template name="main"><out>ready</out></xsl:template>` + styleFooter

	cfg := quietConfig()
	exec := compileString(t, style, cfg)
	ctrl := xslt.NewController(exec, cfg)

	var buf bytes.Buffer
	if err := ctrl.Invoke("main", &buf); err != nil {
		t.Fatalf("invoke: %s", err)
	}
	if got := buf.String(); got != `<out>ready</out>` {
		t.Errorf("results mismatch! got %s", got)
	}
	if err := ctrl.Invoke("missing", io.Discard); err == nil {
		t.Errorf("unknown entry point should fail")
	}
}

func TestTextOutput(t *testing.T) {
	style := `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
<xsl:output method="text"/>
<xsl:template match="/"><xsl:value-of select="doc/a"/>-<xsl:value-of select="doc/b"/></xsl:template>
</xsl:stylesheet>`

	got := transformString(t, style, `<doc><a>x</a><b>y</b></doc>`)
	if got != "x-y" {
		t.Errorf("results mismatch! want x-y, got %s", got)
	}
}

func TestExportImport(t *testing.T) {
	style := styleHeader + `<xsl:key name="by-id" match="item" use="@id"/>
<xsl:variable name="prefix" select="'#'"/>
<xsl:template match="/"><list><xsl:apply-templates select="items/item"/></list></xsl:template>
<xsl:template match="item"><li id="{concat($prefix, @id)}"><xsl:value-of select="."/></li></xsl:template>` + styleFooter
	input := `<items><item id="a">one</item><item id="b">two</item></items>`

	cfg := quietConfig()
	exec := compileString(t, style, cfg)

	var first bytes.Buffer
	ctrl := xslt.NewController(exec, cfg)
	if err := ctrl.Transform(strings.NewReader(input), &first); err != nil {
		t.Fatalf("transform: %s", err)
	}

	var form bytes.Buffer
	if err := exec.Export(&form); err != nil {
		t.Fatalf("export: %s", err)
	}

	fresh := quietConfig()
	loaded, err := xslt.Import(&form, fresh)
	if err != nil {
		t.Fatalf("import: %s", err)
	}
	var second bytes.Buffer
	ctrl = xslt.NewController(loaded, fresh)
	if err := ctrl.Transform(strings.NewReader(input), &second); err != nil {
		t.Fatalf("transform after reload: %s", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Errorf("reloaded stylesheet diverges! first %s, second %s", first.String(), second.String())
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		Name  string
		Style string
	}{
		{
			Name:  "bad expression",
			Style: `<xsl:template match="/"><xsl:value-of select="count("/></xsl:template>`,
		},
		{
			Name:  "unknown instruction",
			Style: `<xsl:template match="/"><xsl:frobnicate/></xsl:template>`,
		},
		{
			Name:  "template without name or match",
			Style: `<xsl:template><out/></xsl:template>`,
		},
		{
			Name:  "duplicate global",
			Style: `<xsl:variable name="v" select="1"/><xsl:variable name="v" select="2"/>`,
		},
		{
			Name: "circular globals",
			Style: `<xsl:variable name="a" select="$b"/>
<xsl:variable name="b" select="$a"/>`,
		},
		{
			Name:  "select with content",
			Style: `<xsl:variable name="v" select="1"><x/></xsl:variable>`,
		},
		{
			Name:  "misplaced sort",
			Style: `<xsl:template match="/"><xsl:sort select="."/></xsl:template>`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			cfg := quietConfig()
			_, err := xslt.Compile(strings.NewReader(styleHeader+tc.Style+styleFooter), cfg)
			if !errors.Is(err, xslt.ErrCompile) {
				t.Errorf("expected compile failure, got %v", err)
			}
		})
	}
}

func TestSimplifiedStylesheet(t *testing.T) {
	style := `<report xmlns:xsl="http://www.w3.org/1999/XSL/Transform" xsl:version="1.0">
<total><xsl:value-of select="count(items/item)"/></total>
</report>`
	got := transformString(t, style, `<items><item/><item/><item/></items>`)
	want := `<?xml version="1.0" encoding="UTF-8"?><report><total>3</total></report>`
	if got != want {
		t.Errorf("results mismatch! want %s, got %s", want, got)
	}
}

func TestSetPropertySuggestion(t *testing.T) {
	cfg := xslt.NewConfiguration()
	if err := cfg.SetProperty("recovery", "silent"); err != nil {
		t.Fatalf("set property: %s", err)
	}
	if cfg.Recovery != xslt.RecoverSilently {
		t.Errorf("recovery policy not applied")
	}
	err := cfg.SetProperty("recovry", "silent")
	if !errors.Is(err, xslt.ErrBadProperty) {
		t.Fatalf("unknown property should fail, got %v", err)
	}
	if !strings.Contains(err.Error(), "recovery") {
		t.Errorf("suggestion missing from %q", err.Error())
	}
	if err := cfg.SetProperty("validation", "strict"); !errors.Is(err, xslt.ErrUnsupported) {
		t.Errorf("strict validation should be unsupported, got %v", err)
	}
}

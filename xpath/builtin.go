package xpath

import (
	"fmt"
	"math"
	"strings"

	"github.com/midbel/loom/environ"
	"github.com/midbel/loom/tree"
)

type BuiltinFunc func(Context, []Expr) (Sequence, error)

var builtins = map[string]BuiltinFunc{
	"position":         callPosition,
	"last":             callLast,
	"count":            callCount,
	"name":             callName,
	"local-name":       callLocalName,
	"namespace-uri":    callNamespaceURI,
	"string":           callString,
	"number":           callNumber,
	"boolean":          callBoolean,
	"not":              callNot,
	"true":             callTrue,
	"false":            callFalse,
	"concat":           callConcat,
	"contains":         callContains,
	"starts-with":      callStartsWith,
	"substring":        callSubstring,
	"substring-before": callSubstringBefore,
	"substring-after":  callSubstringAfter,
	"string-length":    callStringLength,
	"normalize-space":  callNormalizeSpace,
	"translate":        callTranslate,
	"string-join":      callStringJoin,
	"sum":              callSum,
	"floor":            callFloor,
	"ceiling":          callCeiling,
	"round":            callRound,
	"exists":           callExists,
	"empty":            callEmpty,
	"generate-id":      callGenerateID,
	"current":          callCurrent,
	"current-dateTime": callCurrentDateTime,
	"document":         callDocument,
	"doc":              callDocument,
	"key":              callKey,
	"system-property":  callSystemProperty,
}

// DefaultBuiltins returns the function table shared by every context.
// The table is never mutated after package init, so no clone is taken.
func DefaultBuiltins() environ.Environ[BuiltinFunc] {
	return defaultBuiltins
}

var defaultBuiltins environ.Environ[BuiltinFunc]

func init() {
	defaultBuiltins = environ.Empty[BuiltinFunc]()
	for n, fn := range builtins {
		defaultBuiltins.Define(n, fn)
	}
}

func wantArgs(args []Expr, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return ErrArgument
	}
	return nil
}

func stringArg(ctx Context, args []Expr, ix int) (string, error) {
	if ix >= len(args) {
		return StringValue(Singleton(ctx.Node)), nil
	}
	seq, err := args[ix].Eval(ctx)
	if err != nil {
		return "", err
	}
	if seq.Empty() {
		return "", nil
	}
	return toString(seq[0].Value())
}

func floatArg(ctx Context, args []Expr, ix int) (float64, error) {
	seq, err := args[ix].Eval(ctx)
	if err != nil {
		return 0, err
	}
	if seq.Empty() {
		return math.NaN(), nil
	}
	return toFloat(seq[0].Value())
}

func callPosition(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(float64(ctx.Index)), nil
}

func callLast(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(float64(ctx.Size)), nil
}

func callCount(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(float64(seq.Len())), nil
}

func argNode(ctx Context, args []Expr) (tree.Node, error) {
	if len(args) == 0 {
		return ctx.Node, nil
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	if seq.Empty() {
		return nil, nil
	}
	return seq[0].Node(), nil
}

func callName(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	node, err := argNode(ctx, args)
	if err != nil || node == nil {
		return Singleton(""), err
	}
	return Singleton(tree.DisplayName(node)), nil
}

func callLocalName(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	node, err := argNode(ctx, args)
	if err != nil || node == nil {
		return Singleton(""), err
	}
	return Singleton(tree.LocalName(node)), nil
}

func callNamespaceURI(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	node, err := argNode(ctx, args)
	if err != nil || node == nil {
		return Singleton(""), err
	}
	return Singleton(tree.URI(node)), nil
}

func callString(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	return Singleton(str), nil
}

func callNumber(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	f, err := toFloat(str)
	if err != nil {
		return nil, err
	}
	return Singleton(f), nil
}

func callBoolean(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(seq.True()), nil
}

func callNot(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(!seq.True()), nil
}

func callTrue(_ Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(true), nil
}

func callFalse(_ Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(false), nil
}

func callConcat(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, -1); err != nil {
		return nil, err
	}
	var str strings.Builder
	for i := range args {
		s, err := stringArg(ctx, args, i)
		if err != nil {
			return nil, err
		}
		str.WriteString(s)
	}
	return Singleton(str.String()), nil
}

func callContains(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	sub, err := stringArg(ctx, args, 1)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Contains(str, sub)), nil
}

func callStartsWith(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	sub, err := stringArg(ctx, args, 1)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.HasPrefix(str, sub)), nil
}

func callSubstring(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, 3); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	start, err := floatArg(ctx, args, 1)
	if err != nil {
		return nil, err
	}
	runes := []rune(str)
	length := float64(len(runes)) - start + 1
	if len(args) == 3 {
		if length, err = floatArg(ctx, args, 2); err != nil {
			return nil, err
		}
	}
	var (
		beg = int(math.Round(start)) - 1
		end = beg + int(math.Round(length))
	)
	beg = max(beg, 0)
	end = min(end, len(runes))
	if beg >= end || beg >= len(runes) {
		return Singleton(""), nil
	}
	return Singleton(string(runes[beg:end])), nil
}

func callSubstringBefore(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	sub, err := stringArg(ctx, args, 1)
	if err != nil {
		return nil, err
	}
	before, _, _ := strings.Cut(str, sub)
	if before == str {
		before = ""
	}
	return Singleton(before), nil
}

func callSubstringAfter(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	sub, err := stringArg(ctx, args, 1)
	if err != nil {
		return nil, err
	}
	_, after, ok := strings.Cut(str, sub)
	if !ok {
		after = ""
	}
	return Singleton(after), nil
}

func callStringLength(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	return Singleton(float64(len([]rune(str)))), nil
}

func callNormalizeSpace(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Join(strings.Fields(str), " ")), nil
}

func callTranslate(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 3, 3); err != nil {
		return nil, err
	}
	str, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	from, err := stringArg(ctx, args, 1)
	if err != nil {
		return nil, err
	}
	to, err := stringArg(ctx, args, 2)
	if err != nil {
		return nil, err
	}
	var (
		src = []rune(from)
		dst = []rune(to)
	)
	out := strings.Map(func(r rune) rune {
		for i, c := range src {
			if c != r {
				continue
			}
			if i < len(dst) {
				return dst[i]
			}
			return -1
		}
		return r
	}, str)
	return Singleton(out), nil
}

func callStringJoin(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 2); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	var sep string
	if len(args) == 2 {
		if sep, err = stringArg(ctx, args, 1); err != nil {
			return nil, err
		}
	}
	list, err := seq.Strings()
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Join(list, sep)), nil
}

func callSum(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, it := range seq {
		f, err := toFloat(it.Value())
		if err != nil {
			return nil, err
		}
		sum += f
	}
	return Singleton(sum), nil
}

func callFloor(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	f, err := floatArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	return Singleton(math.Floor(f)), nil
}

func callCeiling(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	f, err := floatArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	return Singleton(math.Ceil(f)), nil
}

func callRound(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	f, err := floatArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) {
		return Singleton(f), nil
	}
	return Singleton(math.Floor(f + 0.5)), nil
}

func callExists(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(!seq.Empty()), nil
}

func callEmpty(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	seq, err := args[0].Eval(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(seq.Empty()), nil
}

func callGenerateID(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 1); err != nil {
		return nil, err
	}
	node, err := argNode(ctx, args)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return Singleton(""), nil
	}
	return Singleton(tree.Identify(node)), nil
}

func callCurrent(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 0); err != nil {
		return nil, err
	}
	if ctx.Dynamic == nil {
		return Singleton(ctx.Node), nil
	}
	return Singleton(ctx.Dynamic.Current()), nil
}

func callCurrentDateTime(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 0, 0); err != nil {
		return nil, err
	}
	return Singleton(ctx.now()), nil
}

func callDocument(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	if ctx.Dynamic == nil {
		return nil, fmt.Errorf("document: no resolver available")
	}
	uri, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	doc, err := ctx.Dynamic.Document(uri)
	if err != nil {
		return nil, err
	}
	return Singleton(doc), nil
}

func callKey(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return nil, err
	}
	if ctx.Dynamic == nil {
		return nil, fmt.Errorf("key: no index available")
	}
	name, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	seq, err := args[1].Eval(ctx)
	if err != nil {
		return nil, err
	}
	var (
		list Sequence
		doc  = ctx.Node.Root()
	)
	values, err := seq.Strings()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		found, err := ctx.Dynamic.Key(name, v, doc)
		if err != nil {
			return nil, err
		}
		list.Concat(found)
	}
	return list.Sorted(), nil
}

func callSystemProperty(ctx Context, args []Expr) (Sequence, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}
	if ctx.Dynamic == nil {
		return Singleton(""), nil
	}
	name, err := stringArg(ctx, args, 0)
	if err != nil {
		return nil, err
	}
	return Singleton(ctx.Dynamic.SystemProperty(name)), nil
}

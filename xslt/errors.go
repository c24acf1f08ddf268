package xslt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	ErrTerminate    = errors.New("transformation terminated by stylesheet")
	ErrUnsupported  = errors.New("feature not supported")
	ErrBadProperty  = errors.New("unknown configuration property")
	ErrCircular     = errors.New("circular variable definition")
	ErrNoEntryPoint = errors.New("no entry point given")
	ErrBadParam     = errors.New("unconvertible parameter value")
	ErrCompile      = errors.New("stylesheet can not be compiled")
)

// Error codes follow the usual scheme: XTSE for static errors, XTDE for
// dynamic errors, XTRE for recoverable dynamic errors.
const (
	CodeStatic        = "XTSE0010"
	CodeBadInstr      = "XTSE0090"
	CodeDuplicate     = "XTSE0580"
	CodeCircular      = "XTSE0640"
	CodeMissingParam  = "XTDE0050"
	CodeNamedNotFound = "XTDE0040"
	CodeTerminate     = "XTMM9000"
	CodeOutputClash   = "XTDE1490"
	CodeLateAttr      = "XTDE0410"
	CodeAmbiguous     = "XTRE0540"
	CodeNoMatch       = "XTDE0555"
)

type Severity int8

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a located stylesheet error. Location is the stylesheet URI
// and position when known, otherwise the name of the nearest enclosing
// instruction.
type Error struct {
	Code        string
	Message     string
	URI         string
	Line        int
	Column      int
	Instruction string
	Severity    Severity
	Recoverable bool

	reported bool
	cause    error
}

func (e *Error) Error() string {
	var str strings.Builder
	if loc := e.Location(); loc != "" {
		str.WriteString(loc)
		str.WriteString(": ")
	}
	if e.Code != "" {
		str.WriteString(e.Code)
		str.WriteString(": ")
	}
	str.WriteString(e.Message)
	return str.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Reported tells whether the error already went through a listener.
// Callers printing diagnostics themselves can skip those.
func (e *Error) Reported() bool {
	return e.reported
}

func (e *Error) Location() string {
	if e.URI != "" && e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d", e.URI, e.Line, e.Column)
	}
	if e.URI != "" {
		return e.URI
	}
	return e.Instruction
}

func staticError(msg string, cause error) *Error {
	return &Error{
		Code:     CodeStatic,
		Message:  msg,
		Severity: SeverityError,
		cause:    cause,
	}
}

func dynamicError(code, instr, msg string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		Instruction: instr,
		Severity:    SeverityFatal,
		cause:       cause,
	}
}

// Listener receives every diagnostic the compiler and the controller
// produce. Fatal is called at most once per run.
type Listener interface {
	Warning(*Error)
	Error(*Error)
	Fatal(*Error)
}

const (
	maxWarnings = 25
	maxLineLen  = 100
)

// WriteListener is the default listener. It formats the location, wraps
// long messages and stops relaying repeated warnings after a threshold.
type WriteListener struct {
	mu     sync.Mutex
	w      io.Writer
	counts map[string]int
}

func NewListener(w io.Writer) *WriteListener {
	if w == nil {
		w = os.Stderr
	}
	return &WriteListener{
		w:      w,
		counts: make(map[string]int),
	}
}

func (c *WriteListener) Warning(e *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[e.Message]++
	if n := c.counts[e.Message]; n > maxWarnings {
		return
	} else if n == maxWarnings {
		fmt.Fprintf(c.w, "warning: further occurrences of this warning are suppressed\n")
		return
	}
	c.report("warning", e)
}

func (c *WriteListener) Error(e *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report("error", e)
}

func (c *WriteListener) Fatal(e *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report("fatal", e)
}

func (c *WriteListener) report(level string, e *Error) {
	var str strings.Builder
	str.WriteString(level)
	str.WriteString(": ")
	if loc := e.Location(); loc != "" {
		str.WriteString(loc)
		str.WriteString(": ")
	}
	if e.Code != "" {
		str.WriteString(e.Code)
		str.WriteString(": ")
	}
	str.WriteString(e.Message)
	fmt.Fprintln(c.w, wrapText(str.String(), maxLineLen))
}

func wrapText(str string, width int) string {
	if len(str) <= width {
		return str
	}
	var (
		out  strings.Builder
		line int
	)
	for _, word := range strings.Fields(str) {
		if line > 0 && line+len(word)+1 > width {
			out.WriteString("\n  ")
			line = 2
		} else if line > 0 {
			out.WriteString(" ")
			line++
		}
		out.WriteString(word)
		line += len(word)
	}
	return out.String()
}

// report sends an error through the listener exactly once, routing on
// severity. Errors already seen are not repeated.
func report(lst Listener, e *Error) {
	if e.reported {
		return
	}
	e.reported = true
	switch e.Severity {
	case SeverityWarning:
		lst.Warning(e)
	case SeverityFatal:
		lst.Fatal(e)
	default:
		lst.Error(e)
	}
}

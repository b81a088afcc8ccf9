// Package diag implements the diagnostics collaborator the checker reports
// through: typed errors, source locations, and a serialized sink with an
// atomic error count the driver consults before allowing codegen.
package diag

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

// Severity is one of Info, Warning, Error.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Kind classifies why a CheckError was raised.
type Kind string

const (
	ParseInputViolation  Kind = "ParseInputViolation"
	TypeMismatch         Kind = "TypeMismatch"
	UndeclaredMember     Kind = "UndeclaredMember"
	LinkageConflict      Kind = "LinkageConflict"
	LiteralOutOfRange    Kind = "LiteralOutOfRange"
	UnsupportedConstruct Kind = "UnsupportedConstruct"
	InternalInvariant    Kind = "InternalInvariant"
)

// Fatal reports whether errors of this kind abort the translation unit
// instead of letting the walker continue.
func (k Kind) Fatal() bool {
	switch k {
	case ParseInputViolation, UnsupportedConstruct, InternalInvariant:
		return true
	default:
		return false
	}
}

// SourceLoc is a resolved source position. The checker only ever carries a
// raw integer loc (an index into the parser's line table); Sink.Report
// resolves it through a Resolver so messages stay readable without the
// checker depending on the file/line table's representation.
type SourceLoc struct {
	File   string
	Line   int
	Column int
}

// CheckError is the error type returned by fatal checker paths (via panic,
// see Abort and Sink.Fatalf) and stored for recoverable ones.
type CheckError struct {
	Kind    Kind
	Message string
	Loc     SourceLoc
}

func (e *CheckError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Kind, e.Message)
	if e.Loc.File != "" {
		fmt.Fprintf(&sb, "\n  at %s:%d:%d", e.Loc.File, e.Loc.Line, e.Loc.Column)
	}
	return sb.String()
}

// WithLoc attaches a source location and returns the same error.
func (e *CheckError) WithLoc(loc SourceLoc) *CheckError {
	e.Loc = loc
	return e
}

// Resolver turns the checker's raw loc indices into a SourceLoc. The real
// implementation lives in the line arena the lexer builds; tests may
// supply a trivial resolver.
type Resolver func(loc int) SourceLoc

// Sink serializes diagnostic output so concurrent translation units never
// interleave messages, and carries the atomic error counter the driver
// consults. Module-scoped, not global: each compilation passes its own
// Sink down.
type Sink struct {
	mu       sync.Mutex
	out      io.Writer
	resolve  Resolver
	errCount atomic.Int64
	Colorize bool
}

// NewSink creates a diagnostics sink writing to out, resolving locs with resolve.
func NewSink(out io.Writer, resolve Resolver) *Sink {
	if resolve == nil {
		resolve = func(loc int) SourceLoc { return SourceLoc{} }
	}
	return &Sink{out: out, resolve: resolve}
}

// Report records a diagnostic. It never unwinds; callers that must abort
// do so explicitly via Abort after calling Report.
func (s *Sink) Report(sev Severity, loc int, kind Kind, format string, args ...interface{}) *CheckError {
	ce := &CheckError{Kind: kind, Message: fmt.Sprintf(format, args...), Loc: s.resolve(loc)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sev == Error {
		s.errCount.Add(1)
	}
	if s.out != nil {
		label := sev.String()
		if s.Colorize {
			label = colorFor(sev)(label)
		}
		fmt.Fprintf(s.out, "%s: %s\n", label, ce.Error())
	}
	return ce
}

func colorFor(sev Severity) func(format string, a ...interface{}) string {
	switch sev {
	case Error:
		return color.New(color.FgRed, color.Bold).Sprintf
	case Warning:
		return color.New(color.FgYellow).Sprintf
	default:
		return color.New(color.FgCyan).Sprintf
	}
}

// ErrorCount returns the number of Error-severity diagnostics reported so
// far. The driver refuses codegen while this is non-zero.
func (s *Sink) ErrorCount() int64 {
	return s.errCount.Load()
}

// Abort is a panic carrier for the fatal error kinds (UnsupportedConstruct,
// InternalInvariant, and programmer-error ParseInputViolation all abort
// rather than continue). The frontend package recovers this at the
// translation-unit boundary so one unit's fatal error never cancels
// another.
type Abort struct {
	Err *CheckError
}

// Fatalf reports the diagnostic and panics with an Abort carrying it.
func (s *Sink) Fatalf(loc int, kind Kind, format string, args ...interface{}) {
	ce := s.Report(Error, loc, kind, format, args...)
	panic(Abort{Err: ce})
}

// Package check implements the typeof resolver, the expression checker, and
// the statement checker. A Checker is created per translation unit and is
// not safe to share across goroutines; its *types.Arena and *ir.Module
// collaborators are the only state shared across workers.
package check

import (
	"tbfront/internal/ast"
	"tbfront/internal/diag"
	"tbfront/internal/ir"
	"tbfront/internal/types"
)

// Checker walks one translation unit's AST, assigning types, rewriting
// operators in place, and reporting through a diag.Sink.
type Checker struct {
	Types *types.Arena
	Store *ast.Store
	Diag  *diag.Sink

	// Pedantic rejects the implicit-dereference-in-dot extension
	// (ptr.member) instead of silently treating it as an arrow. Off by
	// default.
	Pedantic bool

	// BuiltinSet recognizes target builtin-function names; consulted by
	// the lower package, carried here so top-level lowering and
	// body checking share one Checker construction path.
	BuiltinSet map[string]bool

	// Labels reserves label ids for label statements so later passes can
	// goto them. Optional: a nil allocator leaves LabelID untouched.
	Labels *ir.LabelAllocator

	// funcStmt is the enclosing function declaration while checking a
	// body. Plain field rather than anything thread-local: each Checker
	// instance is confined to one goroutine.
	funcStmt ast.StmtH
}

// NewChecker creates a Checker for one translation unit.
func NewChecker(ta *types.Arena, st *ast.Store, sink *diag.Sink) *Checker {
	return &Checker{Types: ta, Store: st, Diag: sink, funcStmt: ast.InvalidStmt}
}

// typeString renders a type for diagnostics like "could not implicitly
// convert type int into int*".
func (c *Checker) typeString(h types.TypeH) string {
	return c.Types.String(h)
}

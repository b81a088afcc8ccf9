// Package frontend wires the front-end passes together for one translation
// unit (reachability, then top-level checking and lowering, which drives
// typeof resolution and the expression/statement checkers), and drives N
// translation units concurrently against one shared ir.Module with one
// worker goroutine per unit.
package frontend

import (
	"sync"

	"tbfront/internal/ast"
	"tbfront/internal/check"
	"tbfront/internal/diag"
	"tbfront/internal/ir"
	"tbfront/internal/lower"
	"tbfront/internal/reach"
	"tbfront/internal/types"
)

// TranslationUnit is one parser-produced AST/type pair plus the sink it
// reports through. Its Store is exclusive to whichever goroutine calls
// Check; the types.Arena and the ir.Module it lowers into are the only
// state shared with other units.
type TranslationUnit struct {
	Types *types.Arena
	Store *ast.Store
	Diag  *diag.Sink

	// Pedantic gates the implicit-dereference-in-dot diagnostic.
	Pedantic bool
	// BuiltinSet suppresses external registration for recognized target
	// builtins (names beginning with '_' found in the target's
	// builtin-function map).
	BuiltinSet map[string]bool
}

// New creates a TranslationUnit over an already-parsed store/arena pair.
func New(ta *types.Arena, store *ast.Store, sink *diag.Sink) *TranslationUnit {
	return &TranslationUnit{Types: ta, Store: store, Diag: sink}
}

// Check runs reachability then, for each top-level statement in source
// order, the top-level checker (which itself drives typeof resolution and
// the expression/statement checkers on function bodies and global
// initializers), lowering into module via the pool for worker tid. A fatal
// diagnostic (diag.Abort) aborts only this unit; it is recovered here and
// returned rather than propagated, so one unit's fatal error never cancels
// another in a concurrent CheckAll run.
func (tu *TranslationUnit) Check(module *ir.Module, tid int) (aborted *diag.CheckError) {
	defer func() {
		if r := recover(); r != nil {
			ab, ok := r.(diag.Abort)
			if !ok {
				panic(r)
			}
			aborted = ab.Err
		}
	}()

	reach.NewPass(tu.Store).Run()

	chk := check.NewChecker(tu.Types, tu.Store, tu.Diag)
	chk.Pedantic = tu.Pedantic
	chk.BuiltinSet = tu.BuiltinSet
	chk.Labels = &module.Labels

	low := lower.New(chk, module)
	pool := module.WorkerPool(tid)

	for _, h := range tu.Store.TopLevel {
		low.CheckTopLevel(h, pool)
	}
	return nil
}

// CheckAll runs one goroutine per translation unit, joins, and returns
// each unit's fatal error (nil where none occurred) in the same order as
// tus. Non-fatal diagnostics are already visible through each unit's own
// diag.Sink; when units share one sink, its ErrorCount is the aggregate
// the driver consults before codegen.
func CheckAll(tus []*TranslationUnit, module *ir.Module) []*diag.CheckError {
	results := make([]*diag.CheckError, len(tus))

	var wg sync.WaitGroup
	wg.Add(len(tus))
	for i, tu := range tus {
		go func(i int, tu *TranslationUnit) {
			defer wg.Done()
			results[i] = tu.Check(module, i)
		}(i, tu)
	}
	wg.Wait()

	return results
}

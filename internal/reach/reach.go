// Package reach implements the mark-and-sweep reachability pass: start
// from every root declaration, walk each function's flat chain of
// referenced Symbol expressions, and mark every declaration reached so
// top-level lowering can skip the rest.
package reach

import "tbfront/internal/ast"

// Pass runs reachability over one translation unit's top-level
// declarations. It mutates Store.Stmts[i].Attrs.IsUsed in place and treats
// NextSymbolInChain/FirstSymbolInChain as read-only input built by the
// parser.
type Pass struct {
	Store *ast.Store
}

// NewPass creates a reachability pass over store.
func NewPass(store *ast.Store) *Pass {
	return &Pass{Store: store}
}

// Run marks every declaration reachable from a root and returns the total
// count of declarations marked used (including the roots themselves). The
// pass is monotone: invoking Run a second time marks nothing new, since
// every already-used declaration is skipped by markChildren.
func (p *Pass) Run() int {
	marked := 0
	queue := make([]ast.StmtH, 0, len(p.Store.TopLevel))

	for _, h := range p.Store.TopLevel {
		s := p.Store.S(h)
		if s.Attrs.IsRoot && !s.Attrs.IsUsed {
			s.Attrs.IsUsed = true
			marked++
			queue = append(queue, h)
		}
	}

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		s := p.Store.S(h)
		if s.Kind != ast.StmtFuncDecl {
			continue
		}
		newlyMarked := p.markChildren(s.FirstSymbolInChain)
		queue = append(queue, newlyMarked...)
		marked += len(newlyMarked)
	}

	return marked
}

// markChildren walks the flat forward-linked chain of Symbol expressions
// starting at head, marking each referenced declaration used if not
// already, and returns the handles newly marked so the caller can enqueue
// any that are functions.
func (p *Pass) markChildren(head ast.ExprH) []ast.StmtH {
	var newly []ast.StmtH
	for n := head; n != ast.InvalidExpr; {
		e := p.Store.E(n)
		if e.Sym != ast.InvalidStmt {
			decl := p.Store.S(e.Sym)
			if !decl.Attrs.IsUsed {
				decl.Attrs.IsUsed = true
				newly = append(newly, e.Sym)
			}
		}
		n = e.NextSymbolInChain
	}
	return newly
}

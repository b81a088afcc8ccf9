package check

import (
	"tbfront/internal/ast"
	"tbfront/internal/diag"
	"tbfront/internal/types"
)

// CheckStmt recursively checks a statement body: typeof-resolving
// declarations, assigning condition cast types, reserving label ids, and
// validating return expressions against the enclosing function's return
// type.
func (c *Checker) CheckStmt(h ast.StmtH) {
	s := c.Store.S(h)

	switch s.Kind {
	case ast.StmtCompound:
		for _, kid := range s.Stmts {
			c.CheckStmt(kid)
		}

	case ast.StmtDecl, ast.StmtGlobalDecl:
		c.checkDecl(s)

	case ast.StmtFuncDecl:
		prevFunc := c.funcStmt
		c.funcStmt = h
		if s.Body != ast.InvalidStmt {
			c.CheckStmt(s.Body)
		}
		c.funcStmt = prevFunc

	case ast.StmtExpr:
		c.CheckExpr(s.Cond)

	case ast.StmtReturn:
		c.checkReturn(h, s)

	case ast.StmtIf:
		c.checkCondition(s.Cond)
		c.CheckStmt(s.Then)
		if s.Else != ast.InvalidStmt {
			c.CheckStmt(s.Else)
		}

	case ast.StmtWhile, ast.StmtDoWhile:
		c.checkCondition(s.Cond)
		c.CheckStmt(s.Body)

	case ast.StmtFor:
		if s.ForInit != ast.InvalidStmt {
			c.CheckStmt(s.ForInit)
		}
		if s.Cond != ast.InvalidExpr {
			c.checkCondition(s.Cond)
		}
		if s.ForNext != ast.InvalidExpr {
			c.CheckExpr(s.ForNext)
		}
		c.CheckStmt(s.Body)

	case ast.StmtSwitch:
		c.CheckExpr(s.Cond)
		c.CheckStmt(s.Body)

	case ast.StmtCase:
		c.CheckExpr(s.Cond)
		c.CheckStmt(s.Body)

	case ast.StmtDefault:
		c.CheckStmt(s.Body)

	case ast.StmtBreak, ast.StmtContinue:
		// Leaf control-transfer statements; nothing to type.

	case ast.StmtGoto:
		// The parser already bound the target label name; nothing to type.

	case ast.StmtLabel:
		// Reserve the label's id now: a later pass may goto it before it
		// would otherwise be visited.
		if c.Labels != nil && s.LabelID == 0 {
			s.LabelID = c.Labels.Reserve()
		}

	default:
		c.Diag.Fatalf(s.Loc, diag.InternalInvariant, "checker: unhandled statement kind %d", s.Kind)
	}
}

// checkDecl resolves typeof on the declared type, then if there's an
// initializer, type-checks it, infers an incomplete array's Count from a
// string/initializer RHS, and verifies assignability. A compatible
// initializer's CastType becomes the declared type; on a mismatch it keeps
// whatever CheckExpr set (e.g. an array symbol's decayed pointer type).
func (c *Checker) checkDecl(s *ast.Stmt) {
	c.ResolveTypeof(s.Type)

	if s.Initial == ast.InvalidExpr {
		return
	}

	initType := c.CheckExpr(s.Initial)

	declType := c.Types.Get(s.Type)
	if declType.Kind == types.Array && declType.Count == 0 {
		c.inferArrayCount(s.Type, s.Initial, initType)
	}

	if !c.typeCompatible(initType, s.Type, s.Initial) {
		c.Diag.Report(diag.Error, s.Loc, diag.TypeMismatch,
			"could not implicitly convert type %s into %s", c.typeString(initType), c.typeString(s.Type))
		return
	}
	c.Store.E(s.Initial).CastType = s.Type
}

// inferArrayCount completes an incomplete array declaration's element count
// from a string-literal initializer's length or an aggregate initializer's
// top-level element count, and recomputes the array's size. Completion must
// happen here, before any consumer reads the size.
func (c *Checker) inferArrayCount(declType types.TypeH, initH ast.ExprH, initType types.TypeH) {
	t := c.Types.Get(declType)
	init := c.Store.E(initH)

	switch init.Op {
	case ast.ExprStrLit:
		srcArr := c.Types.Get(initType)
		t.Count = srcArr.Count
	case ast.ExprInitializer:
		t.Count = int64(c.topLevelInitCount(init.InitStart, init.InitCount))
	default:
		return
	}
	t.Size = uint32(t.Count) * c.Types.Get(t.Elem).Size
}

// topLevelInitCount counts the immediate children of a flattened
// pre-order initializer tree without descending into nested aggregates.
func (c *Checker) topLevelInitCount(nodeIdx, nodeCount int) int {
	count := 0
	for i := 0; i < nodeCount; {
		node := c.Store.Inits[nodeIdx]
		count++
		if node.KidsCount == 0 {
			nodeIdx++
			i++
		} else {
			kids := node.KidsCount
			nodeIdx += 1 + kids
			i += 1 + kids
		}
	}
	return count
}

// checkCondition type-checks a control-flow condition and forces its
// CastType to _Bool.
func (c *Checker) checkCondition(condH ast.ExprH) {
	condType := c.CheckExpr(condH)
	if !types.IsScalar(c.Types.Get(condType).Kind) && c.Types.Get(condType).Kind != types.Pointer {
		c.Diag.Report(diag.Error, c.Store.E(condH).Loc, diag.TypeMismatch,
			"could not convert type %s into boolean", c.typeString(condType))
	}
	c.Store.E(condH).CastType = types.TypeBool
}

// checkReturn validates a return statement's expression (if any) against
// the enclosing function's declared return type.
func (c *Checker) checkReturn(h ast.StmtH, s *ast.Stmt) {
	if c.funcStmt == ast.InvalidStmt {
		c.Diag.Fatalf(s.Loc, diag.InternalInvariant, "checker: return statement outside of a function")
		return
	}
	funcType := c.Types.Get(c.Store.S(c.funcStmt).Type)

	if s.ReturnExpr == ast.InvalidExpr {
		if c.Types.Get(funcType.Return).Kind != types.Void {
			c.Diag.Report(diag.Error, s.Loc, diag.TypeMismatch, "non-void function must return a value")
		}
		return
	}

	retType := c.CheckExpr(s.ReturnExpr)
	if !c.typeCompatible(retType, funcType.Return, s.ReturnExpr) {
		c.Diag.Report(diag.Error, s.Loc, diag.TypeMismatch,
			"could not implicitly convert type %s into %s", c.typeString(retType), c.typeString(funcType.Return))
	}
	c.Store.E(s.ReturnExpr).CastType = funcType.Return
}

package check

import (
	"math"

	"tbfront/internal/ast"
	"tbfront/internal/diag"
	"tbfront/internal/types"
)

// CheckExpr assigns expr.Type, may set expr.CastType, and may rewrite
// expr.Op and payload in place. It never allocates new statements. On an
// unrecoverable semantic mismatch it reports through c.Diag and assigns
// Void so the walk still reaches every node; recoverable errors never
// unwind.
func (c *Checker) CheckExpr(h ast.ExprH) types.TypeH {
	e := c.Store.E(h)

	switch e.Op {
	case ast.ExprIntLit:
		return c.checkIntLit(e)
	case ast.ExprFloat32Lit:
		return c.setType(e, types.TypeFloat)
	case ast.ExprFloat64Lit:
		return c.setType(e, types.TypeDouble)
	case ast.ExprCharLit:
		return c.setType(e, types.TypeChar)
	case ast.ExprEnumLit:
		return c.setType(e, types.TypeInt)
	case ast.ExprStrLit:
		elem := types.TypeChar
		if e.StrWide {
			elem = types.TypeShort
		}
		arr := c.Types.NewArray(elem, int64(len(e.StrVal))+1)
		return c.setType(e, arr)

	case ast.ExprSizeof, ast.ExprAlignof:
		return c.checkSizeofAlignofExpr(h, e)
	case ast.ExprSizeofT, ast.ExprAlignofT:
		return c.checkSizeofAlignofType(h, e)

	case ast.ExprInitializer:
		return c.checkInitializer(e)

	case ast.ExprLogicalNot:
		c.CheckExpr(e.Left)
		return c.setType(e, types.TypeBool)

	case ast.ExprBitNot, ast.ExprNegate, ast.ExprPreInc, ast.ExprPreDec, ast.ExprPostInc, ast.ExprPostDec:
		src := c.CheckExpr(e.Left)
		return c.setType(e, src)

	case ast.ExprAddr:
		src := c.CheckExpr(e.Left)
		return c.setType(e, c.Types.NewPointer(src))

	case ast.ExprSymbol:
		return c.checkSymbol(e)
	case ast.ExprParam:
		return c.checkParam(e)

	case ast.ExprCast:
		return c.checkCast(e)

	case ast.ExprSubscript:
		return c.checkSubscript(h, e)
	case ast.ExprDeref:
		return c.checkDeref(e)
	case ast.ExprCall:
		return c.checkCall(e)

	case ast.ExprTernary:
		return c.checkTernary(e)
	case ast.ExprComma:
		c.CheckExpr(e.Left)
		t := c.CheckExpr(e.Right)
		return c.setType(e, t)

	case ast.ExprDot:
		return c.checkMember(e, false)
	case ast.ExprArrow:
		return c.checkMember(e, true)

	case ast.ExprLogicalAnd, ast.ExprLogicalOr:
		c.CheckExpr(e.Left)
		c.CheckExpr(e.Right)
		c.Store.E(e.Left).CastType = types.TypeBool
		c.Store.E(e.Right).CastType = types.TypeBool
		return c.setType(e, types.TypeBool)

	case ast.ExprPlus, ast.ExprMinus, ast.ExprTimes, ast.ExprSlash, ast.ExprPercent,
		ast.ExprAnd, ast.ExprOr, ast.ExprXor, ast.ExprShl, ast.ExprShr:
		return c.checkArithmetic(h, e)

	case ast.ExprCmpEq, ast.ExprCmpNe, ast.ExprCmpGt, ast.ExprCmpGe, ast.ExprCmpLt, ast.ExprCmpLe:
		lhs := c.CheckExpr(e.Left)
		rhs := c.CheckExpr(e.Right)
		common := c.Types.Common(lhs, rhs)
		c.Store.E(e.Left).CastType = common
		c.Store.E(e.Right).CastType = common
		return c.setType(e, types.TypeBool)

	case ast.ExprAssign, ast.ExprPlusAssign, ast.ExprMinusAssign, ast.ExprTimesAssign,
		ast.ExprSlashAssign, ast.ExprAndAssign, ast.ExprOrAssign, ast.ExprXorAssign,
		ast.ExprShlAssign, ast.ExprShrAssign:
		// Result is the common type, not strictly the LHS type.
		lhs := c.CheckExpr(e.Left)
		rhs := c.CheckExpr(e.Right)
		common := c.Types.Common(lhs, rhs)
		c.Store.E(e.Left).CastType = common
		c.Store.E(e.Right).CastType = common
		return c.setType(e, common)

	default:
		c.Diag.Fatalf(e.Loc, diag.InternalInvariant, "checker: unhandled expression op %d", e.Op)
		return types.TypeVoid
	}
}

func (c *Checker) setType(e *ast.Expr, t types.TypeH) types.TypeH {
	e.Type = t
	return t
}

func (c *Checker) checkIntLit(e *ast.Expr) types.TypeH {
	switch e.IntSuffix {
	case ast.SuffixNone:
		if e.IntVal < 0 || e.IntVal > math.MaxUint32 {
			c.Diag.Report(diag.Error, e.Loc, diag.LiteralOutOfRange,
				"could not represent integer literal as int (%d)", e.IntVal)
		}
		return c.setType(e, types.TypeInt)
	case ast.SuffixU:
		if e.IntVal < 0 || e.IntVal > math.MaxUint32 {
			c.Diag.Report(diag.Error, e.Loc, diag.LiteralOutOfRange,
				"could not represent integer literal as unsigned int")
		}
		return c.setType(e, types.TypeUInt)
	case ast.SuffixL, ast.SuffixLL:
		return c.setType(e, types.TypeLong)
	case ast.SuffixUL, ast.SuffixULL:
		return c.setType(e, types.TypeULong)
	default:
		c.Diag.Report(diag.Error, e.Loc, diag.LiteralOutOfRange, "could not represent integer literal")
		return c.setType(e, types.TypeVoid)
	}
}

// checkSizeofAlignofExpr handles sizeof/alignof of an expression: check the
// inner expression only for its type, then replace the outer node with an
// integer literal holding the inner type's size or align. The inner
// expression is discarded from further evaluation.
func (c *Checker) checkSizeofAlignofExpr(h ast.ExprH, e *ast.Expr) types.TypeH {
	innerType := c.CheckExpr(e.Left)
	inner := c.Types.Get(innerType)

	var val int64
	if e.Op == ast.ExprSizeof {
		val = int64(inner.Size)
	} else {
		val = int64(inner.Align)
	}

	*e = ast.Expr{Op: ast.ExprIntLit, Loc: e.Loc, IntVal: val, IntSuffix: ast.SuffixULL}
	return c.setType(e, types.TypeULong)
}

// checkSizeofAlignofType handles sizeof/alignof of a type: resolve typeof
// first, then replace with an integer literal.
func (c *Checker) checkSizeofAlignofType(h ast.ExprH, e *ast.Expr) types.TypeH {
	c.ResolveTypeof(e.TargetType)
	target := c.Types.Get(e.TargetType)

	var val int64
	if e.Op == ast.ExprSizeofT {
		val = int64(target.Size)
	} else {
		val = int64(target.Align)
	}

	*e = ast.Expr{Op: ast.ExprIntLit, Loc: e.Loc, IntVal: val, IntSuffix: ast.SuffixULL}
	return c.setType(e, types.TypeULong)
}

// checkInitializer resolves typeof on the target type, recursively walks
// the node tree, and assigns the target type.
func (c *Checker) checkInitializer(e *ast.Expr) types.TypeH {
	c.ResolveTypeof(e.TargetType)
	c.walkInitializer(e.InitStart, e.InitCount)
	return c.setType(e, e.TargetType)
}

// walkInitializer recursively type-checks each leaf expression in the
// flattened pre-order initializer tree. An aggregate group's KidsCount
// tells the walker how many following nodes belong to that subtree.
func (c *Checker) walkInitializer(nodeIdx, nodeCount int) int {
	for i := 0; i < nodeCount; {
		node := c.Store.Inits[nodeIdx]
		if node.KidsCount == 0 {
			c.CheckExpr(node.Expr)
			nodeIdx++
			i++
		} else {
			kids := node.KidsCount
			nodeIdx++
			consumed := c.walkInitializer(nodeIdx, kids)
			nodeIdx += consumed
			i += 1 + consumed
		}
	}
	return nodeCount
}

func (c *Checker) checkSymbol(e *ast.Expr) types.TypeH {
	decl := c.Store.S(e.Sym)
	if decl.Kind == ast.StmtLabel {
		return c.setType(e, types.Invalid)
	}
	declType := decl.Type
	if c.Types.Get(declType).Kind == types.Array {
		// Array decay: the only place an expression sets its own CastType.
		e.CastType = c.Types.NewPointer(c.Types.Get(declType).Elem)
	}
	return c.setType(e, declType)
}

func (c *Checker) checkParam(e *ast.Expr) types.TypeH {
	funcType := c.Types.Get(c.Store.S(c.funcStmt).Type)
	params := c.Types.Params(funcType.ParamStart, funcType.ParamEnd)
	return c.setType(e, params[e.ParamIndex].Type)
}

func (c *Checker) checkCast(e *ast.Expr) types.TypeH {
	c.ResolveTypeof(e.TargetType)
	c.CheckExpr(e.Left)
	c.Store.E(e.Left).CastType = e.TargetType
	return c.setType(e, e.TargetType)
}

func (c *Checker) checkSubscript(h ast.ExprH, e *ast.Expr) types.TypeH {
	base := c.CheckExpr(e.Left)
	index := c.CheckExpr(e.Right)

	if k := c.Types.Get(index).Kind; k == types.Pointer || k == types.Array {
		base, index = index, base
		e.Left, e.Right = e.Right, e.Left
	}

	if c.Types.Get(base).Kind == types.Array {
		base = c.Types.NewPointer(c.Types.Get(base).Elem)
	}
	return c.setType(e, c.Types.Get(base).Pointee)
}

func (c *Checker) checkDeref(e *ast.Expr) types.TypeH {
	base := c.CheckExpr(e.Left)
	t := c.Types.Get(base)
	switch t.Kind {
	case types.Pointer:
		return c.setType(e, t.Pointee)
	case types.Array:
		return c.setType(e, t.Elem)
	default:
		c.Diag.Fatalf(e.Loc, diag.UnsupportedConstruct, "cannot dereference non-pointer type %s", c.typeString(base))
		return types.TypeVoid
	}
}

func (c *Checker) checkCall(e *ast.Expr) types.TypeH {
	funcType := c.CheckExpr(e.Callee)

	// Implicit dereference of a function pointer target.
	if c.Types.Get(funcType).Kind == types.Pointer {
		funcType = c.Types.Get(funcType).Pointee
	}
	c.Store.E(e.Callee).CastType = funcType

	ft := c.Types.Get(funcType)
	if ft.Kind != types.Function {
		c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch, "function call target must be a function type")
		return c.setType(e, types.TypeVoid)
	}

	params := c.Types.Params(ft.ParamStart, ft.ParamEnd)
	argCount, paramCount := len(e.Args), len(params)

	if ft.Varargs {
		if argCount < paramCount {
			c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch,
				"not enough arguments (expected at least %d, got %d)", paramCount, argCount)
			return c.setType(e, ft.Return)
		}
		for i := 0; i < paramCount; i++ {
			c.checkArgAssignable(e.Args[i], params[i].Type)
		}
		for i := paramCount; i < argCount; i++ {
			argType := c.CheckExpr(e.Args[i])
			// Default argument promotions are not applied to the variadic
			// tail; each extra argument is passed as its own type.
			c.Store.E(e.Args[i]).CastType = argType
		}
	} else {
		if argCount != paramCount {
			c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch,
				"argument count mismatch (expected %d, got %d)", paramCount, argCount)
			return c.setType(e, ft.Return)
		}
		for i := 0; i < argCount; i++ {
			c.checkArgAssignable(e.Args[i], params[i].Type)
		}
	}

	return c.setType(e, ft.Return)
}

func (c *Checker) checkArgAssignable(argH ast.ExprH, paramType types.TypeH) {
	argType := c.CheckExpr(argH)
	if !c.typeCompatible(argType, paramType, argH) {
		c.Diag.Report(diag.Error, c.Store.E(argH).Loc, diag.TypeMismatch,
			"could not implicitly convert type %s into %s", c.typeString(argType), c.typeString(paramType))
	}
	c.Store.E(argH).CastType = paramType
}

func (c *Checker) checkTernary(e *ast.Expr) types.TypeH {
	condType := c.CheckExpr(e.Left)
	if !types.IsScalar(c.Types.Get(condType).Kind) {
		c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch, "could not convert type %s into boolean", c.typeString(condType))
	}
	c.Store.E(e.Left).CastType = types.TypeBool

	mid := c.CheckExpr(e.Middle)
	right := c.CheckExpr(e.Right)
	common := c.Types.Common(mid, right)
	c.Store.E(e.Middle).CastType = common
	c.Store.E(e.Right).CastType = common
	return c.setType(e, common)
}

func (c *Checker) checkMember(e *ast.Expr, arrow bool) types.TypeH {
	baseType := c.CheckExpr(e.Base)
	record := c.Types.Get(baseType)

	if arrow {
		if record.Kind != types.Pointer && record.Kind != types.Array {
			c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch, "cannot do arrow operator on non-pointer type")
			return c.setType(e, types.TypeVoid)
		}
		pointee := record.Pointee
		if record.Kind == types.Array {
			pointee = record.Elem
		}
		record = c.Types.Get(pointee)
	} else if record.Kind == types.Pointer {
		if c.Pedantic {
			c.Diag.Report(diag.Error, e.Loc, diag.UnsupportedConstruct,
				"implicit dereference is a non-standard extension (pedantic mode disallows it)")
			return c.setType(e, types.TypeVoid)
		}
		record = c.Types.Get(record.Pointee)
	}

	if record.Kind != types.Struct && record.Kind != types.Union {
		c.Diag.Report(diag.Error, e.Loc, diag.UndeclaredMember, "cannot get the member of a non-record type")
		return c.setType(e, types.TypeVoid)
	}

	for i, m := range c.Types.Members(record.MemberStart, record.MemberEnd) {
		if m.Name == e.PropName {
			e.MemberIdx = record.MemberStart + i
			return c.setType(e, m.Type)
		}
	}

	c.Diag.Report(diag.Error, e.Loc, diag.UndeclaredMember, "could not find member %q", e.PropName)
	return c.setType(e, types.TypeVoid)
}

func (c *Checker) checkArithmetic(h ast.ExprH, e *ast.Expr) types.TypeH {
	lhs := c.CheckExpr(e.Left)
	rhs := c.CheckExpr(e.Right)

	lhsKind, rhsKind := c.Types.Get(lhs).Kind, c.Types.Get(rhs).Kind
	isPtrOrArr := func(k types.Kind) bool { return k == types.Pointer || k == types.Array }

	isPlusMinus := e.Op == ast.ExprPlus || e.Op == ast.ExprMinus
	if isPlusMinus && (isPtrOrArr(lhsKind) || isPtrOrArr(rhsKind)) {
		if e.Op == ast.ExprPlus && isPtrOrArr(rhsKind) {
			lhs, rhs = rhs, lhs
			e.Left, e.Right = e.Right, e.Left
			lhsKind, rhsKind = rhsKind, lhsKind
		}

		if isPtrOrArr(rhsKind) {
			if e.Op == ast.ExprMinus {
				c.Store.E(e.Left).CastType = lhs
				c.Store.E(e.Right).CastType = rhs
				e.Op = ast.ExprPtrDiff
				return c.setType(e, types.TypeLong)
			}
			c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch,
				"cannot do pointer addition with two pointer operands, one must be an integral type")
			return c.setType(e, types.TypeVoid)
		}

		c.Store.E(e.Left).CastType = lhs
		c.Store.E(e.Right).CastType = types.TypeULong
		if e.Op == ast.ExprPlus {
			e.Op = ast.ExprPtrAdd
		} else {
			e.Op = ast.ExprPtrSub
		}
		return c.setType(e, lhs)
	}

	if !(types.IsScalar(lhsKind) && types.IsScalar(rhsKind)) {
		c.Diag.Report(diag.Error, e.Loc, diag.TypeMismatch,
			"cannot apply binary operator to %s and %s", c.typeString(lhs), c.typeString(rhs))
		return c.setType(e, types.TypeVoid)
	}

	common := c.Types.Common(lhs, rhs)
	c.Store.E(e.Left).CastType = common
	c.Store.E(e.Right).CastType = common
	return c.setType(e, common)
}

// typeCompatible reports whether a value of type a is assignable to a
// destination of type b. aExpr is the source expression, consulted only for
// the null-pointer-constant special case. Arrays decay to pointers on both
// sides before any rule applies.
func (c *Checker) typeCompatible(a, b types.TypeH, aExpr ast.ExprH) bool {
	a = c.decayArray(a)
	b = c.decayArray(b)

	if c.Types.Equal(a, b) {
		return true // (i) identical
	}

	ta, tb := c.Types.Get(a), c.Types.Get(b)

	if types.IsInteger(ta.Kind) && types.IsInteger(tb.Kind) {
		return true // (ii) integer-integer casts all accepted
	}

	if tb.Kind == types.Pointer && c.isNullPointerConstant(aExpr) {
		return true // (iii) null pointer constant
	}

	if types.IsScalar(ta.Kind) && types.IsScalar(tb.Kind) &&
		(ta.Kind == types.Float || ta.Kind == types.Double || tb.Kind == types.Float || tb.Kind == types.Double) {
		return true // (iv) float/double on either side of an arithmetic pair
	}

	if ta.Kind == types.Function && tb.Kind == types.Pointer {
		pointee := c.Types.Get(tb.Pointee)
		if pointee.Kind == types.Function && c.Types.Equal(a, tb.Pointee) {
			return true // (v) function assigned to matching function pointer
		}
	}

	if ta.Kind == types.Pointer && tb.Kind == types.Pointer {
		pa, pb := c.Types.Get(ta.Pointee), c.Types.Get(tb.Pointee)
		if pa.Kind == types.Void || pb.Kind == types.Void || c.Types.Equal(ta.Pointee, tb.Pointee) {
			return true // (vi) pointer compatibility
		}
	}

	return false
}

func (c *Checker) decayArray(h types.TypeH) types.TypeH {
	t := c.Types.Get(h)
	if t.Kind == types.Array {
		return c.Types.NewPointer(t.Elem)
	}
	return h
}

func (c *Checker) isNullPointerConstant(exprH ast.ExprH) bool {
	e := c.Store.E(exprH)
	return e.Op == ast.ExprIntLit && e.IntVal == 0
}

// Package lower implements the top-level checker and IR lowering pass: for
// each top-level statement, choose linkage, build an IR prototype or
// initializer object, register the symbol in the shared ir.Module, and
// (for functions) drive the statement checker over the body.
package lower

import (
	"encoding/binary"
	"fmt"
	"math"

	"tbfront/internal/ast"
	"tbfront/internal/check"
	"tbfront/internal/diag"
	"tbfront/internal/ir"
	"tbfront/internal/types"
)

// Checker lowers one translation unit's top-level statements into the
// shared IR module. It wraps a *check.Checker so body checking and
// top-level lowering share one Types/Store/Diag triple.
type Checker struct {
	Check  *check.Checker
	Module *ir.Module
}

// New creates a lowering Checker sharing chk's Types/Store/Diag.
func New(chk *check.Checker, module *ir.Module) *Checker {
	return &Checker{Check: chk, Module: module}
}

// CheckTopLevel processes one top-level statement. pool is the calling
// worker's IR allocator (see ir.Module.WorkerPool); callers pass the same
// pool for every top-level statement in one translation unit.
func (c *Checker) CheckTopLevel(h ast.StmtH, pool *ir.Pool) {
	s := c.Check.Store.S(h)
	switch s.Kind {
	case ast.StmtFuncDecl:
		c.lowerFunc(h, s, pool)
	case ast.StmtDecl, ast.StmtGlobalDecl:
		c.lowerGlobal(h, s, pool)
	default:
		c.Check.Diag.Fatalf(s.Loc, diag.InternalInvariant, "lower: unexpected top-level statement kind %d", s.Kind)
	}
}

func (c *Checker) lowerFunc(h ast.StmtH, s *ast.Stmt, pool *ir.Pool) {
	ft := c.Check.Types.Get(s.Type)
	if ft.Kind != types.Function {
		c.Check.Diag.Fatalf(s.Loc, diag.InternalInvariant, "lower: function declaration %q has non-function type", s.Name)
		return
	}

	if s.Attrs.IsStatic && s.Attrs.IsExtern {
		c.Check.Diag.Report(diag.Error, s.Loc, diag.LinkageConflict,
			"function %q cannot be both static and extern", s.Name)
		return
	}

	// An unused static/inline function is skipped entirely: no prototype,
	// no IR registration, no body check. Reachability must have already
	// run by the time this is called so IsUsed reflects the final
	// fixpoint.
	if (s.Attrs.IsStatic || s.Attrs.IsInline) && !s.Attrs.IsUsed {
		return
	}

	returnType := c.Check.Types.Get(ft.Return)
	aggregateReturn := returnType.Kind == types.Struct || returnType.Kind == types.Union

	params := c.Check.Types.Params(ft.ParamStart, ft.ParamEnd)
	dtParams := make([]ir.DataType, 0, len(params)+1)
	if aggregateReturn {
		dtParams = append(dtParams, ir.Ptr)
	}
	for _, p := range params {
		dtParams = append(dtParams, irDataType(c.Check.Types.Get(p.Type)))
	}

	proto := ir.Prototype{
		Return:             irDataType(returnType),
		Params:             dtParams,
		Varargs:            ft.Varargs,
		HasAggregateReturn: aggregateReturn,
	}
	if aggregateReturn {
		proto.Return = ir.Ptr
	}

	linkage := ir.LinkagePrivate
	if !s.Attrs.IsStatic {
		linkage = ir.LinkagePublic
	}

	name := s.Name
	if s.Attrs.IsInline {
		linkage = ir.LinkagePrivate
		name = fmt.Sprintf("%s@%d", s.Name, h)
	}

	c.Module.NewFunction(pool, name, linkage, proto, s.Body != ast.InvalidStmt)

	// CheckStmt's StmtFuncDecl case installs this declaration as the
	// enclosing function around the recursive body walk.
	c.Check.CheckStmt(h)
}

func (c *Checker) lowerGlobal(h ast.StmtH, s *ast.Stmt, pool *ir.Pool) {
	if !s.Attrs.IsUsed {
		return
	}

	if s.Attrs.IsStatic && s.Attrs.IsExtern {
		c.Check.Diag.Report(diag.Error, s.Loc, diag.LinkageConflict,
			"global declaration %q cannot be both static and extern", s.Name)
		return
	}

	c.Check.ResolveTypeof(s.Type)
	t := c.Check.Types.Get(s.Type)

	if s.Attrs.IsExtern || t.Kind == types.Function {
		if len(s.Name) > 0 && s.Name[0] == '_' && c.Check.BuiltinSet[s.Name] {
			return // recognized builtin: suppress the external registration
		}
		c.Module.NewExternal(pool, s.Name)
		return
	}

	if t.Align == 0 {
		c.Check.Diag.Fatalf(s.Loc, diag.InternalInvariant, "global %q has zero alignment", s.Name)
		return
	}

	var inits []ir.InitRecord
	if s.Initial != ast.InvalidExpr && c.Check.Store.E(s.Initial).Op == ast.ExprInitializer {
		initExpr := c.Check.Store.E(s.Initial)
		w := initWalker{c: c}
		inits = w.walk(initExpr.InitStart, initExpr.InitCount, s.Type, 0)
	}

	linkage := ir.LinkagePrivate
	if !s.Attrs.IsStatic {
		linkage = ir.LinkagePublic
	}

	c.Module.NewGlobal(pool, s.Name, linkage, t.Size, t.Align, ir.SectionData, inits)
}

// initWalker evaluates a compound initializer's leaves as constant
// expressions, laying each out at the byte offset its member or array
// index implies. Non-constant leaves (anything beyond a literal or a bare
// symbol reference) are diagnosed as unsupported.
type initWalker struct {
	c *Checker
}

func (w *initWalker) walk(nodeIdx, nodeCount int, targetType types.TypeH, baseOffset int64) []ir.InitRecord {
	var out []ir.InitRecord
	t := w.c.Check.Types.Get(targetType)

	idx := 0
	for i := 0; i < nodeCount; {
		node := w.c.Check.Store.Inits[nodeIdx]
		offset := baseOffset + w.memberOffset(t, idx)
		elemType := targetType
		if t.Kind == types.Array || t.Kind == types.Struct || t.Kind == types.Union {
			elemType = w.memberType(t, idx)
		}

		if node.KidsCount == 0 {
			out = append(out, w.leafRecord(node.Expr, elemType, offset))
			nodeIdx++
			i++
		} else {
			kids := node.KidsCount
			nodeIdx++
			out = append(out, w.walk(nodeIdx, kids, elemType, offset)...)
			nodeIdx += kids
			i += 1 + kids
		}
		idx++
	}
	return out
}

// memberOffset returns the byte offset of the idx'th element of an
// array/record initializer target (0 for scalar targets, which have at
// most one leaf).
func (w *initWalker) memberOffset(t *types.Type, idx int) int64 {
	switch t.Kind {
	case types.Array:
		return int64(idx) * int64(w.c.Check.Types.Get(t.Elem).Size)
	case types.Struct, types.Union:
		members := w.c.Check.Types.Members(t.MemberStart, t.MemberEnd)
		if idx >= len(members) {
			return 0
		}
		// Field offsets are not separately tracked in the member vector;
		// offsets here assume members laid out in declaration order with
		// no padding. Precise alignment-driven padding belongs to the
		// record layout pass, which completes size/align before lowering.
		var off int64
		for _, m := range members[:idx] {
			off += int64(w.c.Check.Types.Get(m.Type).Size)
		}
		return off
	default:
		return 0
	}
}

func (w *initWalker) memberType(t *types.Type, idx int) types.TypeH {
	switch t.Kind {
	case types.Array:
		return t.Elem
	case types.Struct, types.Union:
		members := w.c.Check.Types.Members(t.MemberStart, t.MemberEnd)
		if idx < len(members) {
			return members[idx].Type
		}
	}
	return types.TypeVoid
}

func (w *initWalker) leafRecord(exprH ast.ExprH, targetType types.TypeH, offset int64) ir.InitRecord {
	c := w.c.Check
	c.CheckExpr(exprH)
	c.Store.E(exprH).CastType = targetType
	e := c.Store.E(exprH)

	if e.Op == ast.ExprSymbol {
		sym := c.Store.S(e.Sym)
		return ir.InitRecord{Offset: offset, Symbol: &ir.SymRef{Tag: ir.TagGlobal, Name: sym.Name}}
	}

	size := c.Types.Get(targetType).Size
	data, ok := encodeLiteral(e, size)
	if !ok {
		c.Diag.Report(diag.Error, e.Loc, diag.UnsupportedConstruct,
			"global initializer element must be a constant literal or a symbol reference")
		data = make([]byte, size)
	}
	return ir.InitRecord{Offset: offset, Data: data}
}

// encodeLiteral renders a literal expression's value as little-endian raw
// bytes sized to the target member's width.
func encodeLiteral(e *ast.Expr, size uint32) ([]byte, bool) {
	buf := make([]byte, size)
	switch e.Op {
	case ast.ExprIntLit, ast.ExprCharLit, ast.ExprEnumLit:
		putUint(buf, uint64(e.IntVal))
		return buf, true
	case ast.ExprFloat32Lit:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(e.FloatVal)))
		return buf, true
	case ast.ExprFloat64Lit:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(e.FloatVal))
		return buf, true
	default:
		return nil, false
	}
}

func putUint(buf []byte, v uint64) {
	switch len(buf) {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

// irDataType converts a checked C type to the IR's reduced data-type
// lattice. Aggregates map to Ptr: only the aggregate-return pointer is
// modeled here, so a by-value aggregate parameter is passed as an opaque
// pointer.
func irDataType(t *types.Type) ir.DataType {
	switch t.Kind {
	case types.Void:
		return ir.Void
	case types.Bool, types.Char:
		return ir.I8
	case types.Short:
		return ir.I16
	case types.Int, types.UInt, types.Enum:
		return ir.I32
	case types.Long, types.ULong:
		return ir.I64
	case types.Float:
		return ir.F32
	case types.Double:
		return ir.F64
	case types.Pointer, types.Array, types.Function, types.Struct, types.Union:
		return ir.Ptr
	default:
		return ir.Void
	}
}

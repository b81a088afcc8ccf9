package check

import (
	"tbfront/internal/ast"
	"tbfront/internal/types"
)

// exprHFromInt32 converts a types.Type.TypeofExpr payload (kept as int32 to
// avoid internal/types depending on internal/ast) back to an ast.ExprH.
func exprHFromInt32(v int32) ast.ExprH {
	return ast.ExprH(v)
}

// ResolveTypeof walks Pointer.Pointee, Array.Elem, and every Struct/Union
// member recursively; any typeof(expr) found is overwritten in place by the
// result of checking expr. Idempotent: once resolved the stored Kind is no
// longer Typeof, so a second call is a no-op for that node. Must run before
// any consumer reads size/align.
func (c *Checker) ResolveTypeof(h types.TypeH) {
	t := c.Types.Get(h)
	switch t.Kind {
	case types.Pointer:
		c.ResolveTypeof(t.Pointee)
	case types.Array:
		c.ResolveTypeof(t.Elem)
	case types.Struct, types.Union:
		for _, m := range c.Types.Members(t.MemberStart, t.MemberEnd) {
			c.ResolveTypeof(m.Type)
		}
	case types.Typeof:
		// t may be invalidated by CheckExpr: checking the inner expression
		// can itself allocate into this same arena (e.g. ExprAddr's
		// NewPointer, ExprStrLit's NewArray), and Arena.alloc's append may
		// reallocate the backing slice out from under t. Capture the
		// payload needed for the call, then re-fetch the destination
		// pointer fresh right before writing through it.
		exprH := exprHFromInt32(t.TypeofExpr)
		resolved := c.CheckExpr(exprH)
		*c.Types.Get(h) = *c.Types.Get(resolved)
	}
}

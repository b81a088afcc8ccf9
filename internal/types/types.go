// Package types implements the type interner and arena: construction of
// scalar, pointer, array, record, function, and typeof types; structural
// equality; size/align queries; and the usual-arithmetic-conversion
// "common type" rule.
package types

import (
	"fmt"
	"strings"
	"sync"
)

// TypeH is a stable, never-invalidated index into the arena's type vector.
type TypeH int32

// Invalid marks an absent type handle (e.g. a label reference, which has
// no type). Index 0 is the arena's Void slot, so absence needs a negative
// sentinel rather than the zero value.
const Invalid TypeH = -1

// Kind enumerates the type variants.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Char
	Short
	Int
	UInt
	Long
	ULong
	Float
	Double
	Enum
	Struct
	Union
	Pointer
	Array
	Function
	Typeof
)

// scalarRank orders Bool..ULong..Double by conversion rank for Common.
// Integer kinds first (widening order), then the two float kinds.
var scalarRank = map[Kind]int{
	Bool: 0, Char: 1, Short: 2, Int: 3, UInt: 4, Long: 5, ULong: 6,
	Float: 7, Double: 8,
}

func isIntegerKind(k Kind) bool {
	return k >= Bool && k <= ULong
}

// IsInteger reports whether k is one of the integer kinds Bool..ULong.
func IsInteger(k Kind) bool {
	return isIntegerKind(k)
}

func isFloatKind(k Kind) bool {
	return k == Float || k == Double
}

// IsScalar reports whether k is a scalar arithmetic kind (Bool..Double).
func IsScalar(k Kind) bool {
	return k >= Bool && k <= Double
}

// Member describes one field of a Struct/Union, stored in Arena.members and
// referenced by records via a [Start,End) range.
type Member struct {
	Name string
	Type TypeH
}

// Param describes one function parameter, stored in Arena.params and
// referenced by Function types via a [Start,End) range.
type Param struct {
	Name string
	Type TypeH
}

// Type is the payload for one arena slot. Only the fields relevant to Kind
// are meaningful; the flat layout means a field update (e.g. completing an
// array's count) is a single assignment rather than a reallocation.
type Type struct {
	Kind Kind

	Size  uint32
	Align uint32

	Name string // Enum/Struct/Union/Function tag name, optional

	// Enum
	EnumValues []int64

	// Struct/Union
	MemberStart, MemberEnd int

	// Pointer
	Pointee TypeH

	// Array
	Elem  TypeH
	Count int64

	// Function
	Return      TypeH
	ParamStart  int
	ParamEnd    int
	Varargs     bool

	// Typeof. TypeofExpr is an ast.ExprH, kept untyped here (int32) to
	// avoid internal/types depending on internal/ast. Resolution
	// overwrites the whole Type in place, so once resolved Kind is no
	// longer Typeof and re-resolution is a no-op without a separate flag.
	TypeofExpr int32
}

// Arena owns the append-only type, member, and param vectors. Allocation
// takes a short-lived mutex so workers can share one arena across
// translation units; reads via Get never block.
type Arena struct {
	mu      sync.Mutex
	types   []Type
	members []Member
	params  []Param
}

// NewArena creates an empty arena pre-seeded with the scalar builtins so
// callers can use the exported handles below without a lookup.
func NewArena() *Arena {
	a := &Arena{}
	// Indices must match the exported scalar handle constants below.
	a.types = []Type{
		{Kind: Void, Size: 0, Align: 0},
		{Kind: Bool, Size: 1, Align: 1},
		{Kind: Char, Size: 1, Align: 1},
		{Kind: Short, Size: 2, Align: 2},
		{Kind: Int, Size: 4, Align: 4},
		{Kind: UInt, Size: 4, Align: 4},
		{Kind: Long, Size: 8, Align: 8},
		{Kind: ULong, Size: 8, Align: 8},
		{Kind: Float, Size: 4, Align: 4},
		{Kind: Double, Size: 8, Align: 8},
	}
	return a
}

// Scalar handles, stable because NewArena always seeds them first.
const (
	TypeVoid   TypeH = 0
	TypeBool   TypeH = 1
	TypeChar   TypeH = 2
	TypeShort  TypeH = 3
	TypeInt    TypeH = 4
	TypeUInt   TypeH = 5
	TypeLong   TypeH = 6
	TypeULong  TypeH = 7
	TypeFloat  TypeH = 8
	TypeDouble TypeH = 9
)

// Get returns a pointer to the type stored at h. Allocation can grow the
// backing vector, so the pointer must not be retained across a call that
// may allocate (including typeof resolution, which checks an arbitrary
// expression).
func (a *Arena) Get(h TypeH) *Type {
	return &a.types[h]
}

func (a *Arena) alloc(t Type) TypeH {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = append(a.types, t)
	return TypeH(len(a.types) - 1)
}

// NewPointer allocates a pointer-to-pointee type. Types are not interned:
// every call returns a fresh handle, and Equal compares structurally.
func (a *Arena) NewPointer(pointee TypeH) TypeH {
	return a.alloc(Type{Kind: Pointer, Pointee: pointee, Size: 8, Align: 8})
}

// NewArray creates an array of count elements of elem. count may be zero
// for an incomplete array pending initializer-driven completion; size and
// align are computed eagerly when count and elem's size are known. A
// zero-size element with a non-zero count is fatal: callers must resolve
// elem's typeof and size first.
func (a *Arena) NewArray(elem TypeH, count int64) TypeH {
	elemSize := a.Get(elem).Size
	elemAlign := a.Get(elem).Align
	if count > 0 && elemSize == 0 {
		panic(fmt.Sprintf("types: new_array: element type has zero size (handle %d)", elem))
	}
	return a.alloc(Type{
		Kind:  Array,
		Elem:  elem,
		Count: count,
		Size:  uint32(count) * elemSize,
		Align: elemAlign,
	})
}

// NewFunc allocates a function type over params[start:end) in the arena's
// shared param vector.
func (a *Arena) NewFunc(ret TypeH, paramStart, paramEnd int, varargs bool, name string) TypeH {
	return a.alloc(Type{
		Kind:       Function,
		Return:     ret,
		ParamStart: paramStart,
		ParamEnd:   paramEnd,
		Varargs:    varargs,
		Name:       name,
		Size:       0,
		Align:      0,
	})
}

// NewRecord allocates a Struct or Union type over members[start:end).
func (a *Arena) NewRecord(kind Kind, name string, start, end int, size, align uint32) TypeH {
	if kind != Struct && kind != Union {
		panic("types: NewRecord: kind must be Struct or Union")
	}
	return a.alloc(Type{Kind: kind, Name: name, MemberStart: start, MemberEnd: end, Size: size, Align: align})
}

// NewEnum allocates an Enum type; enums share Int's representation.
func (a *Arena) NewEnum(name string, values []int64) TypeH {
	return a.alloc(Type{Kind: Enum, Name: name, EnumValues: values, Size: 4, Align: 4})
}

// NewTypeof allocates an unresolved typeof(expr) type. exprHandle is an
// ast.ExprH truncated to int32 (see Type.TypeofExpr).
func (a *Arena) NewTypeof(exprHandle int32) TypeH {
	return a.alloc(Type{Kind: Typeof, TypeofExpr: exprHandle})
}

// AddMembers appends members to the shared vector and returns [start, end).
func (a *Arena) AddMembers(ms []Member) (start, end int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start = len(a.members)
	a.members = append(a.members, ms...)
	return start, len(a.members)
}

// Members returns the member slice for [start,end).
func (a *Arena) Members(start, end int) []Member {
	return a.members[start:end]
}

// AddParams appends params to the shared vector and returns [start, end).
func (a *Arena) AddParams(ps []Param) (start, end int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start = len(a.params)
	a.params = append(a.params, ps...)
	return start, len(a.params)
}

// Params returns the param slice for [start,end).
func (a *Arena) Params(start, end int) []Param {
	return a.params[start:end]
}

// Equal implements structural equality: recursive on kind plus payload.
// Identical handles are trivially equal, and that is the only way two
// anonymous records or enums compare equal.
func (a *Arena) Equal(x, y TypeH) bool {
	if x == y {
		return true
	}
	tx, ty := a.Get(x), a.Get(y)
	if tx.Kind != ty.Kind {
		return false
	}
	switch tx.Kind {
	case Void, Bool, Char, Short, Int, UInt, Long, ULong, Float, Double:
		return true
	case Enum, Struct, Union:
		// Named records/enums compare by name; two anonymous records are
		// only equal if literally the same handle (already handled above).
		return tx.Name != "" && tx.Name == ty.Name
	case Pointer:
		return a.Equal(tx.Pointee, ty.Pointee)
	case Array:
		return tx.Count == ty.Count && a.Equal(tx.Elem, ty.Elem)
	case Function:
		if tx.Varargs != ty.Varargs {
			return false
		}
		if !a.Equal(tx.Return, ty.Return) {
			return false
		}
		px, py := a.Params(tx.ParamStart, tx.ParamEnd), a.Params(ty.ParamStart, ty.ParamEnd)
		if len(px) != len(py) {
			return false
		}
		for i := range px {
			if !a.Equal(px[i].Type, py[i].Type) {
				return false
			}
		}
		return true
	case Typeof:
		panic("types: Equal: typeof type was not resolved before comparison")
	default:
		return false
	}
}

// Common implements the C usual arithmetic conversions: if both types are
// scalar, promote to the wider of the two, preferring floating over
// integer and the higher rank within a family; otherwise the left
// operand's handle is returned unchanged (the non-scalar case is only ever
// reached with compatible operands such as identical pointers).
func (a *Arena) Common(x, y TypeH) TypeH {
	tx, ty := a.Get(x), a.Get(y)
	if !IsScalar(tx.Kind) || !IsScalar(ty.Kind) {
		return x
	}
	xFloat, yFloat := isFloatKind(tx.Kind), isFloatKind(ty.Kind)
	if xFloat != yFloat {
		if xFloat {
			return x
		}
		return y
	}
	if xFloat && yFloat {
		if scalarRank[tx.Kind] >= scalarRank[ty.Kind] {
			return x
		}
		return y
	}
	// both integer: wider rank wins; ties prefer unsigned (ULong>Long etc.
	// already encodes this via rank ordering Bool<Char<Short<Int<UInt<Long<ULong)
	if scalarRank[tx.Kind] >= scalarRank[ty.Kind] {
		return x
	}
	return y
}

// String renders a type for diagnostics: pointer suffix, array
// bracket-count, function param list, anonymous records rendered as
// "__unnamed__".
func (a *Arena) String(h TypeH) string {
	t := a.Get(h)
	switch t.Kind {
	case Void:
		return "void"
	case Bool:
		return "_Bool"
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case UInt:
		return "unsigned int"
	case Long:
		return "long"
	case ULong:
		return "unsigned long"
	case Float:
		return "float"
	case Double:
		return "double"
	case Enum:
		return "enum " + nameOr(t.Name)
	case Struct:
		return "struct " + nameOr(t.Name)
	case Union:
		return "union " + nameOr(t.Name)
	case Pointer:
		return a.String(t.Pointee) + "*"
	case Array:
		return fmt.Sprintf("%s[%d]", a.String(t.Elem), t.Count)
	case Function:
		var sb strings.Builder
		sb.WriteString(a.String(t.Return))
		if t.Name != "" {
			sb.WriteByte(' ')
			sb.WriteString(t.Name)
		}
		sb.WriteByte('(')
		for i, p := range a.Params(t.ParamStart, t.ParamEnd) {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(a.String(p.Type))
			if p.Name != "" {
				sb.WriteByte(' ')
				sb.WriteString(p.Name)
			}
		}
		sb.WriteByte(')')
		return sb.String()
	case Typeof:
		return "typeof(???)"
	default:
		return "<?>"
	}
}

func nameOr(name string) string {
	if name == "" {
		return "__unnamed__"
	}
	return name
}

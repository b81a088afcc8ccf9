package types

import "testing"

func TestNewArenaSeedsScalarHandles(t *testing.T) {
	a := NewArena()
	if a.Get(TypeInt).Kind != Int {
		t.Fatalf("TypeInt handle has kind %v, want Int", a.Get(TypeInt).Kind)
	}
	if a.Get(TypeInt).Size != 4 {
		t.Fatalf("int size = %d, want 4", a.Get(TypeInt).Size)
	}
	if a.Get(TypeDouble).Size != 8 {
		t.Fatalf("double size = %d, want 8", a.Get(TypeDouble).Size)
	}
}

func TestEqualReflexive(t *testing.T) {
	a := NewArena()
	p := a.NewPointer(TypeInt)
	if !a.Equal(p, p) {
		t.Fatalf("Equal(p, p) = false, want true")
	}
	if !a.Equal(TypeInt, TypeInt) {
		t.Fatalf("Equal(int, int) = false")
	}
}

func TestEqualStructural(t *testing.T) {
	a := NewArena()
	p1 := a.NewPointer(TypeInt)
	p2 := a.NewPointer(TypeInt)
	if p1 == p2 {
		t.Fatalf("expected distinct handles for two NewPointer calls (interning is optional)")
	}
	if !a.Equal(p1, p2) {
		t.Fatalf("Equal(p1, p2) = false, want true: structural equality must not depend on identity")
	}
}

func TestEqualArrayCountMatters(t *testing.T) {
	a := NewArena()
	arr3 := a.NewArray(TypeInt, 3)
	arr4 := a.NewArray(TypeInt, 4)
	if a.Equal(arr3, arr4) {
		t.Fatalf("arrays of different count must not compare equal")
	}
}

func TestNewArrayPanicsOnZeroSizeElem(t *testing.T) {
	a := NewArena()
	voidArr := a.alloc(Type{Kind: Void})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic constructing an array of a zero-size element with nonzero count")
		}
	}()
	a.NewArray(voidArr, 4)
}

func TestCommonCommutative(t *testing.T) {
	a := NewArena()
	pairs := []struct{ x, y TypeH }{
		{TypeInt, TypeDouble},
		{TypeFloat, TypeLong},
		{TypeChar, TypeUInt},
		{TypeBool, TypeULong},
	}
	for _, p := range pairs {
		xy := a.Get(a.Common(p.x, p.y)).Kind
		yx := a.Get(a.Common(p.y, p.x)).Kind
		if xy != yx {
			t.Fatalf("Common(%v,%v)=%v but Common(%v,%v)=%v: want symmetric", p.x, p.y, xy, p.y, p.x, yx)
		}
	}
}

func TestCommonPrefersFloatingOverInteger(t *testing.T) {
	a := NewArena()
	if got := a.Common(TypeLong, TypeFloat); a.Get(got).Kind != Float {
		t.Fatalf("Common(long,float) = %v, want Float", a.Get(got).Kind)
	}
}

func TestCommonWiderIntegerRankWins(t *testing.T) {
	a := NewArena()
	if got := a.Common(TypeChar, TypeLong); a.Get(got).Kind != Long {
		t.Fatalf("Common(char,long) = %v, want Long", a.Get(got).Kind)
	}
}

func TestStringRendersPointerAndArray(t *testing.T) {
	a := NewArena()
	p := a.NewPointer(TypeChar)
	if got, want := a.String(p), "char*"; got != want {
		t.Fatalf("String(ptr char) = %q, want %q", got, want)
	}
	arr := a.NewArray(TypeInt, 5)
	if got, want := a.String(arr), "int[5]"; got != want {
		t.Fatalf("String(array) = %q, want %q", got, want)
	}
}

func TestStringAnonymousRecord(t *testing.T) {
	a := NewArena()
	rec := a.NewRecord(Struct, "", 0, 0, 4, 4)
	if got, want := a.String(rec), "struct __unnamed__"; got != want {
		t.Fatalf("String(anon struct) = %q, want %q", got, want)
	}
}

func TestIsIntegerIsScalarRanges(t *testing.T) {
	for k := Bool; k <= ULong; k++ {
		if !IsInteger(k) {
			t.Errorf("IsInteger(%v) = false, want true", k)
		}
	}
	if IsInteger(Float) || IsInteger(Double) {
		t.Fatalf("Float/Double must not be IsInteger")
	}
	if !IsScalar(Double) || IsScalar(Struct) {
		t.Fatalf("IsScalar boundary wrong")
	}
}

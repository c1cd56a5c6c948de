package alu

import (
	"math"
	"testing"
)

func TestBarrelShiftMatchesNativeShift(t *testing.T) {
	if got := BarrelShift(1, 5, true); got != 1<<5 {
		t.Fatalf("shl: got %d want %d", got, uint64(1)<<5)
	}
	if got := BarrelShift(0x8000000000000000, 4, false); got != 0x0800000000000000 {
		t.Fatalf("shr: got %#x", got)
	}
}

func TestExecuteIntAddSubLogic(t *testing.T) {
	if got := ExecuteInt(OpAdd, 2, 3); got != 5 {
		t.Fatalf("add: got %d", got)
	}
	if got := ExecuteInt(OpSub, 10, 3); got != 7 {
		t.Fatalf("sub: got %d", got)
	}
	if got := ExecuteInt(OpXor, 0xF0, 0x0F); got != 0xFF {
		t.Fatalf("xor: got %#x", got)
	}
}

func TestExecuteIntSLT(t *testing.T) {
	negOne := int64(-1)
	if got := ExecuteInt(OpSLT, uint64(negOne), 1); got != 1 {
		t.Fatalf("slt signed: got %d", got)
	}
	if got := ExecuteInt(OpSLTU, uint64(negOne), 1); got != 0 {
		t.Fatalf("sltu unsigned: got %d", got)
	}
}

func TestDivByZeroReturnsAllOnes(t *testing.T) {
	if got := ExecuteInt(OpDiv, 10, 0); got != ^uint64(0) {
		t.Fatalf("div by zero: got %#x", got)
	}
	if got := ExecuteInt(OpDivU, 10, 0); got != ^uint64(0) {
		t.Fatalf("divu by zero: got %#x", got)
	}
}

func TestDivOverflowCase(t *testing.T) {
	minVal, negOne := int64(minInt64), int64(-1)
	got := ExecuteInt(OpDiv, uint64(minVal), uint64(negOne))
	if int64(got) != minInt64 {
		t.Fatalf("expected MinInt64/-1 to return MinInt64 unchanged, got %d", int64(got))
	}
}

func TestDivURoundTrip(t *testing.T) {
	q := ExecuteInt(OpDivU, 100, 7)
	r := ExecuteInt(OpRemU, 100, 7)
	if q*7+r != 100 {
		t.Fatalf("divu/remu inconsistent: q=%d r=%d", q, r)
	}
}

func TestExecuteFP64Add(t *testing.T) {
	got, flags := ExecuteFP64(FPAdd, RNE, 1.5, 2.25, 0)
	if got != 3.75 {
		t.Fatalf("fadd: got %v", got)
	}
	if flags.Invalid || flags.DivByZero {
		t.Fatalf("unexpected flags: %+v", flags)
	}
}

func TestExecuteFP64DivByZero(t *testing.T) {
	got, flags := ExecuteFP64(FPDiv, RNE, 1.0, 0.0, 0)
	if !math.IsInf(got, 1) {
		t.Fatalf("expected +Inf, got %v", got)
	}
	if !flags.DivByZero {
		t.Fatalf("expected DivByZero flag set")
	}
}

func TestCompareFP64NaN(t *testing.T) {
	nan := math.NaN()
	if _, flags := CompareFP64(FPLt, nan, 1.0); !flags.Invalid {
		t.Fatalf("flt with NaN operand should raise Invalid")
	}
	if eq, flags := CompareFP64(FPEq, nan, nan); eq || flags.Invalid {
		t.Fatalf("feq with NaN should be false without Invalid")
	}
}

func TestFloat32NaNBoxing(t *testing.T) {
	boxed := Float32ToBits64(3.5)
	if got := Bits64ToFloat32(boxed); got != 3.5 {
		t.Fatalf("round trip mismatch: got %v", got)
	}
	if !math.IsNaN(float64(Bits64ToFloat32(0x1234))) {
		t.Fatalf("an unboxed value should be treated as NaN")
	}
}

package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeI(opcode Opcode, rd, funct3, rs1 uint8, imm int64) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | uint32(funct3)<<12 | uint32(rd)<<7 | uint32(opcode)<<2 | 0x3
}

func TestDecodeAddiSignExtendsImm(t *testing.T) {
	raw := encodeI(OpOpImm, 5, 0, 6, -1)
	in, kind := Decode(raw, 0x1000)
	if kind != 0 {
		t.Fatalf("unexpected error kind %v", kind)
	}
	if in.Op != OpOpImm || in.Rd != 5 || in.Rs1 != 6 {
		t.Fatalf("unexpected decode: %+v", in)
	}
	if in.Imm != -1 {
		t.Fatalf("expected sign-extended -1, got %d", in.Imm)
	}
	if in.Flags&FlagSrc1Int == 0 || in.Flags&FlagDstInt == 0 {
		t.Fatalf("expected int src1/dst flags, got %v", in.Flags)
	}
}

func TestDecodeBranchImmediateFields(t *testing.T) {
	// beq x1, x2, 16: imm=16 -> bits: imm[4:1]=1000 imm[11]=0 imm[10:5]=0 imm[12]=0
	raw := uint32(0)
	raw |= uint32(OpBranch) << 2
	raw |= 0x3
	raw |= uint32(1) << 15 // rs1
	raw |= uint32(2) << 20 // rs2
	// imm=16 = 0b10000; imm[4:1]=1000b=8 -> bits[11:8]; imm[10:5]=0 -> bits[30:25]; imm[11]=0->bit7; imm[12]=0->bit31
	raw |= uint32(8) << 8
	in, _ := Decode(raw, 0)
	if in.Op != OpBranch {
		t.Fatalf("expected branch opcode")
	}
	if in.Imm != 16 {
		t.Fatalf("expected branch imm 16, got %d", in.Imm)
	}
}

func TestDecodeAMOMarksUnique(t *testing.T) {
	raw := uint32(0)
	raw |= uint32(OpAMO) << 2
	raw |= 0x3
	in, _ := Decode(raw, 0)
	if !in.IsAMO {
		t.Fatalf("expected IsAMO")
	}
	if in.Flags&FlagUnique == 0 {
		t.Fatalf("expected AMO to be flagged unique")
	}
}

func TestClassifyDispatchRoutes(t *testing.T) {
	cases := []struct {
		op   Opcode
		want DispatchClass
	}{
		{OpLoad, DispMem},
		{OpStore, DispMem},
		{OpAMO, DispMem},
		{OpMiscMem, DispMem},
		{OpMAdd, DispFP},
		{OpOp, DispALU},
		{OpBranch, DispALU},
	}
	for _, c := range cases {
		got := ClassifyDispatch(Inst{Op: c.op})
		assert.Equalf(t, c.want, got, "opcode %v", c.op)
	}
}

func TestDecodeCompressedCJAlwaysDecodes(t *testing.T) {
	// op=01, funct3=101 is C.J, always valid regardless of operand bits;
	// require.True here just exercises the testify assertion path for a
	// known-good decode rather than testing anything exotic.
	raw16 := uint16(0)
	raw16 |= 0x1       // op=01
	raw16 |= 0x5 << 13 // funct3=101 (C.J)
	_, ok := DecodeCompressed(raw16, 0x4000)
	require.True(t, ok, "C.J should always decode")
}

func TestDecodeCompressedAddi4spn(t *testing.T) {
	// c.addi4spn x8, x2, 4 -> funct3=000 op=00, imm bit 6 set (value 4 -> imm[2]=1 at bit6)
	raw16 := uint16(0)
	raw16 |= 1 << 6 // imm[2] -> nzuimm bit6 per field layout used above
	in, ok := DecodeCompressed(raw16, 0)
	if !ok {
		t.Fatalf("expected valid decode")
	}
	if in.Op != OpOpImm || in.Rd != 8 || in.Rs1 != 2 {
		t.Fatalf("unexpected expansion: %+v", in)
	}
}

func TestDecodeCompressedJR(t *testing.T) {
	// c.jr x1: op=10 funct3=100 bit12=0 rs1=1 rs2=0
	raw16 := uint16(0)
	raw16 |= 0x2          // op
	raw16 |= 0x4 << 13    // funct3=100
	raw16 |= uint16(1) << 7
	in, ok := DecodeCompressed(raw16, 0x2000)
	if !ok {
		t.Fatalf("expected valid decode")
	}
	if in.Op != OpJALR || in.Rs1 != 1 || in.Rd != 0 {
		t.Fatalf("unexpected c.jr expansion: %+v", in)
	}
}

func TestDecodeCompressedUnknownFormReturnsFalse(t *testing.T) {
	// op=11 is never a compressed instruction (that bit pattern marks a
	// full 32-bit word), so the expander must reject it rather than
	// silently returning zero-valued garbage.
	_, ok := DecodeCompressed(0x3, 0)
	if ok {
		t.Fatalf("op=11 should not decode as compressed")
	}
}

// Package isa decodes RV64GC instructions into a flat struct via
// fixed-width bitfield extraction, generalized from a 16-bit
// SuperH-style encoding to the standard RISC-V R/I/S/B/U/J formats plus
// the compressed (C) extension's 16-bit forms, which are expanded to
// their 32-bit equivalent before the rest of the core ever sees them.
package isa

import "github.com/suprax-sim/suprax/internal/errkind"

// Opcode is the RV64 base opcode field (bits [6:2] of a 32-bit
// instruction), matching RV64OPCode's case names.
type Opcode uint8

const (
	OpLoad     Opcode = 0x00
	OpLoadFP   Opcode = 0x01
	OpMiscMem  Opcode = 0x03
	OpOpImm    Opcode = 0x04
	OpAUIPC    Opcode = 0x05
	OpOpImm32  Opcode = 0x06
	OpStore    Opcode = 0x08
	OpStoreFP  Opcode = 0x09
	OpAMO      Opcode = 0x0B
	OpOp       Opcode = 0x0C
	OpLUI      Opcode = 0x0D
	OpOp32     Opcode = 0x0E
	OpMAdd     Opcode = 0x10
	OpMSub     Opcode = 0x11
	OpNMSub    Opcode = 0x12
	OpNMAdd    Opcode = 0x13
	OpOpFP     Opcode = 0x14
	OpBranch   Opcode = 0x18
	OpJALR     Opcode = 0x19
	OpJAL      Opcode = 0x1B
	OpSystem   Opcode = 0x1C
)

// Flag is a bitmask of instruction properties, ported field-for-field
// from RVINSTFLAG_*.
type Flag uint32

const (
	FlagRVC Flag = 1 << iota
	FlagUnique
	FlagFence
	FlagFenceI
	FlagFenceTSO
	FlagSFence
	_
	_
	FlagPause
	FlagECall
	FlagEBreak
	_
	_
	_
	_
	_
	FlagSrc1Int
	FlagSrc1FP
	FlagSrc2Int
	FlagSrc2FP
	FlagSrc3Int
	FlagSrc3FP
	FlagDstInt
	FlagDstFP
)

// Inst is a fully decoded instruction: raw encoding, opcode/funct fields,
// register operands (virtual, pre-rename), immediate, and the flag
// bitmask dispatch/issue/writeback consult instead of re-decoding.
type Inst struct {
	Raw     uint32
	PC      uint64
	Op      Opcode
	Funct3  uint8
	Funct7  uint8
	Rd      uint8
	Rs1     uint8
	Rs2     uint8
	Rs3     uint8
	Imm     int64
	Flags   Flag
	IsAMO   bool
	AMOFunct uint8
}

func bits(v uint32, hi, lo uint) uint32 {
	return (v >> lo) & ((1 << (hi - lo + 1)) - 1)
}

func signExtend(v uint32, bit uint) int64 {
	shift := 31 - bit
	return int64(int32(v<<shift)) >> shift
}

// Decode decodes one 32-bit instruction word. Compressed words must be
// run through DecodeCompressed first.
func Decode(raw uint32, pc uint64) (Inst, errkind.Kind) {
	op := Opcode(bits(raw, 6, 2))
	in := Inst{Raw: raw, PC: pc, Op: op}
	in.Rd = uint8(bits(raw, 11, 7))
	in.Funct3 = uint8(bits(raw, 14, 12))
	in.Rs1 = uint8(bits(raw, 19, 15))
	in.Rs2 = uint8(bits(raw, 24, 20))
	in.Funct7 = uint8(bits(raw, 31, 25))
	in.Rs3 = uint8(bits(raw, 31, 27))

	switch op {
	case OpLoad, OpLoadFP, OpOpImm, OpOpImm32, OpJALR, OpSystem:
		in.Imm = signExtend(bits(raw, 31, 20), 11)
		in.Flags |= FlagDstInt
		if op != OpSystem {
			in.Flags |= FlagSrc1Int
		}
	case OpStore, OpStoreFP:
		imm := bits(raw, 11, 7) | (bits(raw, 31, 25) << 5)
		in.Imm = signExtend(imm, 11)
		in.Flags |= FlagSrc1Int | FlagSrc2Int
		if op == OpStoreFP {
			in.Flags = in.Flags&^FlagSrc2Int | FlagSrc2FP
		}
	case OpBranch:
		imm := (bits(raw, 11, 8) << 1) | (bits(raw, 30, 25) << 5) | (bits(raw, 7, 7) << 11) | (bits(raw, 31, 31) << 12)
		in.Imm = signExtend(imm, 12)
		in.Flags |= FlagSrc1Int | FlagSrc2Int
	case OpLUI, OpAUIPC:
		in.Imm = int64(int32(raw & 0xFFFFF000))
		in.Flags |= FlagDstInt
	case OpJAL:
		imm := (bits(raw, 30, 21) << 1) | (bits(raw, 20, 20) << 11) | (bits(raw, 19, 12) << 12) | (bits(raw, 31, 31) << 20)
		in.Imm = signExtend(imm, 20)
		in.Flags |= FlagDstInt
	case OpOp, OpOp32:
		in.Flags |= FlagSrc1Int | FlagSrc2Int | FlagDstInt
	case OpAMO:
		in.IsAMO = true
		in.AMOFunct = uint8(bits(raw, 31, 27))
		in.Flags |= FlagSrc1Int | FlagSrc2Int | FlagDstInt
	case OpMAdd, OpMSub, OpNMSub, OpNMAdd:
		in.Flags |= FlagSrc1FP | FlagSrc2FP | FlagSrc3FP | FlagDstFP
	case OpOpFP:
		in.Flags |= FlagSrc1FP | FlagDstFP
		if !fpOpIsIntSrc1(in.Funct7) {
			in.Flags |= FlagSrc2FP
		} else {
			in.Flags |= FlagSrc1Int
			in.Flags &^= FlagSrc1FP
		}
	case OpMiscMem:
		if in.Funct3 == 0 {
			in.Flags |= FlagFence
		} else {
			in.Flags |= FlagFenceI
		}
	}

	if op == OpSystem && in.Funct3 == 0 {
		switch bits(raw, 31, 20) {
		case 0:
			in.Flags |= FlagECall | FlagUnique
		case 1:
			in.Flags |= FlagEBreak | FlagUnique
		}
	}
	if op == OpAMO || in.Flags&(FlagFence|FlagFenceI) != 0 || (op == OpSystem && in.Funct3 != 0) {
		in.Flags |= FlagUnique
	}

	return in, errkind.Success
}

// fpOpIsIntSrc1 reports whether an OP-FP funct7 encodes a conversion
// whose first source operand is an integer register rather than an FP
// register (e.g. FCVT.S.W), mirroring rv64_fpop_is_i_s1.
func fpOpIsIntSrc1(funct7 uint8) bool {
	switch funct7 >> 2 {
	case 0x1A, 0x1E: // FCVT.{S,D}.{W,WU,L,LU} / FMV.{W,D}.X
		return true
	default:
		return false
	}
}

// DispatchClass is which dispatch queue an instruction routes to.
type DispatchClass uint8

const (
	DispALU DispatchClass = iota
	DispMem
	DispFP
)

// ClassifyDispatch mirrors disp_type: load/store/amo/fence go to the
// memory queue, fused multiply-add and true FP ops go to the FP queue,
// and an OP-FP instruction whose first source is actually an integer
// register (an int<->float conversion) is routed to the ALU queue since
// it needs no FP source operand.
func ClassifyDispatch(in Inst) DispatchClass {
	switch in.Op {
	case OpLoad, OpLoadFP, OpStore, OpStoreFP, OpAMO, OpMiscMem:
		return DispMem
	case OpMAdd, OpMSub, OpNMSub, OpNMAdd:
		return DispFP
	case OpOpFP:
		if fpOpIsIntSrc1(in.Funct7) {
			return DispALU
		}
		return DispFP
	default:
		return DispALU
	}
}

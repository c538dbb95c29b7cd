package emu

import "github.com/dfinch/rvincore/insts"

// ALU implements RV64IM integer arithmetic and logic, operating purely on
// operand values rather than register indices. Value-based operation lets
// the timing pipeline feed it forwarded/bypassed operands that may not yet
// be visible in the architectural register file, while the standalone
// Emulator feeds it values read straight from RegFile.
type ALU struct{}

// NewALU creates an ALU. It carries no state of its own.
func NewALU() *ALU {
	return &ALU{}
}

// Exec computes the result of an integer ALU/M-extension operation. rs1 and
// rs2 are the two source operands; for *-immediate ops the caller passes the
// sign-extended immediate as rs2. The result is the raw 64-bit value to
// write to rd; callers writing to a *W destination use RegFile.WriteReg32
// (or truncate+sign-extend themselves) to get the correct 32-bit semantics.
func (a *ALU) Exec(op insts.Op, rs1, rs2 uint64) uint64 {
	switch op {
	case insts.OpAdd, insts.OpAddi:
		return rs1 + rs2
	case insts.OpSub:
		return rs1 - rs2
	case insts.OpSll, insts.OpSlli:
		return rs1 << (rs2 & 0x3f)
	case insts.OpSlt, insts.OpSlti:
		if int64(rs1) < int64(rs2) {
			return 1
		}
		return 0
	case insts.OpSltu, insts.OpSltiu:
		if rs1 < rs2 {
			return 1
		}
		return 0
	case insts.OpXor, insts.OpXori:
		return rs1 ^ rs2
	case insts.OpSrl, insts.OpSrli:
		return rs1 >> (rs2 & 0x3f)
	case insts.OpSra, insts.OpSrai:
		return uint64(int64(rs1) >> (rs2 & 0x3f))
	case insts.OpOr, insts.OpOri:
		return rs1 | rs2
	case insts.OpAnd, insts.OpAndi:
		return rs1 & rs2

	case insts.OpAddw, insts.OpAddiw:
		return signExtend32(uint32(rs1) + uint32(rs2))
	case insts.OpSubw:
		return signExtend32(uint32(rs1) - uint32(rs2))
	case insts.OpSllw, insts.OpSlliw:
		return signExtend32(uint32(rs1) << (rs2 & 0x1f))
	case insts.OpSrlw, insts.OpSrliw:
		return signExtend32(uint32(rs1) >> (rs2 & 0x1f))
	case insts.OpSraw, insts.OpSraiw:
		return signExtend32(uint32(int32(uint32(rs1)) >> (rs2 & 0x1f)))

	case insts.OpMul:
		return rs1 * rs2
	case insts.OpMulh:
		return uint64(mulHigh64(int64(rs1), int64(rs2)))
	case insts.OpMulhsu:
		return uint64(mulHighSU64(int64(rs1), rs2))
	case insts.OpMulhu:
		return mulHighU64(rs1, rs2)
	case insts.OpDiv:
		return uint64(divS64(int64(rs1), int64(rs2)))
	case insts.OpDivu:
		return divU64(rs1, rs2)
	case insts.OpRem:
		return uint64(remS64(int64(rs1), int64(rs2)))
	case insts.OpRemu:
		return remU64(rs1, rs2)
	case insts.OpMulw:
		return signExtend32(uint32(rs1) * uint32(rs2))
	case insts.OpDivw:
		return signExtend32(uint32(divS32(int32(rs1), int32(rs2))))
	case insts.OpDivuw:
		return signExtend32(divU32(uint32(rs1), uint32(rs2)))
	case insts.OpRemw:
		return signExtend32(uint32(remS32(int32(rs1), int32(rs2))))
	case insts.OpRemuw:
		return signExtend32(remU32(uint32(rs1), uint32(rs2)))
	default:
		return 0
	}
}

// EvalBranch reports whether a conditional branch's condition holds.
func (a *ALU) EvalBranch(op insts.Op, rs1, rs2 uint64) bool {
	switch op {
	case insts.OpBeq:
		return rs1 == rs2
	case insts.OpBne:
		return rs1 != rs2
	case insts.OpBlt:
		return int64(rs1) < int64(rs2)
	case insts.OpBge:
		return int64(rs1) >= int64(rs2)
	case insts.OpBltu:
		return rs1 < rs2
	case insts.OpBgeu:
		return rs1 >= rs2
	default:
		return false
	}
}

func signExtend32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

func mulHigh64(a, b int64) int64 {
	hi, _ := bitsMulSigned(a, b)
	return hi
}

func mulHighU64(a, b uint64) uint64 {
	hi, _ := bitsMulUnsigned(a, b)
	return hi
}

func mulHighSU64(a int64, b uint64) int64 {
	if a >= 0 {
		hi, _ := bitsMulUnsigned(uint64(a), b)
		return int64(hi)
	}
	ua := uint64(-a)
	hi, lo := bitsMulUnsigned(ua, b)
	// Negate the 128-bit product (hi:lo); the +1 of the two's complement
	// carries into the high word only when the low word was zero.
	carry := uint64(0)
	if lo == 0 {
		carry = 1
	}
	return int64(^hi + carry)
}

// bitsMulUnsigned returns the 128-bit product of a*b as (high, low).
func bitsMulUnsigned(a, b uint64) (hi, lo uint64) {
	const mask32 = 0xffffffff
	aLo, aHi := a&mask32, a>>32
	bLo, bHi := b&mask32, b>>32

	t := aLo * bLo
	w0 := t & mask32
	k := t >> 32

	t = aHi*bLo + k
	w1 := t & mask32
	w2 := t >> 32

	t = aLo*bHi + w1
	k = t >> 32

	hi = aHi*bHi + w2 + k
	lo = (t << 32) | w0
	return hi, lo
}

func bitsMulSigned(a, b int64) (hi, lo int64) {
	ua, ub := uint64(a), uint64(b)
	h, l := bitsMulUnsigned(ua, ub)
	if a < 0 {
		h -= ub
	}
	if b < 0 {
		h -= ua
	}
	return int64(h), int64(l)
}

func divS64(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	if a == -1<<63 && b == -1 {
		return a
	}
	return a / b
}

func divU64(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remS64(a, b int64) int64 {
	if b == 0 {
		return a
	}
	if a == -1<<63 && b == -1 {
		return 0
	}
	return a % b
}

func remU64(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func divS32(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == -1<<31 && b == -1 {
		return a
	}
	return a / b
}

func divU32(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}
	return a / b
}

func remS32(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == -1<<31 && b == -1 {
		return 0
	}
	return a % b
}

func remU32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}

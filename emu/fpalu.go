package emu

import (
	"math"

	"github.com/dfinch/rvincore/insts"
)

// FPUALU implements the single-precision F-extension arithmetic operations,
// operating on float32 bit patterns the same way ALU operates on integer
// register values.
type FPUALU struct{}

// NewFPUALU creates an FPUALU. It carries no state of its own.
func NewFPUALU() *FPUALU {
	return &FPUALU{}
}

// Exec computes a single-precision arithmetic op and returns the float32 bit
// pattern to write to rd.
func (f *FPUALU) Exec(op insts.Op, rs1, rs2 uint32) uint32 {
	a := math.Float32frombits(rs1)
	b := math.Float32frombits(rs2)

	switch op {
	case insts.OpFaddS:
		return math.Float32bits(a + b)
	case insts.OpFsubS:
		return math.Float32bits(a - b)
	case insts.OpFmulS:
		return math.Float32bits(a * b)
	case insts.OpFdivS:
		return math.Float32bits(a / b)
	default:
		return rs1
	}
}

// ExecCompare computes a single-precision comparison op and returns 1 or 0,
// the value written to an integer destination register.
func (f *FPUALU) ExecCompare(op insts.Op, rs1, rs2 uint32) uint64 {
	a := math.Float32frombits(rs1)
	b := math.Float32frombits(rs2)

	switch op {
	case insts.OpFeqS:
		if a == b {
			return 1
		}
	case insts.OpFltS:
		if a < b {
			return 1
		}
	case insts.OpFleS:
		if a <= b {
			return 1
		}
	}
	return 0
}

// FMA implements the fused multiply-add family (FMADD.S/FMSUB.S/FNMSUB.S/
// FNMADD.S), the sole occupant of the FPU-FMA functional unit.
type FMA struct{}

// NewFMA creates an FMA unit. It carries no state of its own.
func NewFMA() *FMA {
	return &FMA{}
}

// Exec computes a fused multiply-add variant over three float32 operands.
func (m *FMA) Exec(op insts.Op, rs1, rs2, rs3 uint32) uint32 {
	a := math.Float32frombits(rs1)
	b := math.Float32frombits(rs2)
	c := math.Float32frombits(rs3)

	switch op {
	case insts.OpFmaddS:
		return math.Float32bits(float32(math.FMA(float64(a), float64(b), float64(c))))
	case insts.OpFmsubS:
		return math.Float32bits(float32(math.FMA(float64(a), float64(b), float64(-c))))
	case insts.OpFnmsubS:
		return math.Float32bits(float32(math.FMA(float64(-a), float64(b), float64(c))))
	case insts.OpFnmaddS:
		return math.Float32bits(float32(math.FMA(float64(-a), float64(b), float64(-c))))
	default:
		return rs1
	}
}

// Package insts provides RISC-V instruction decoding for RV64IMF binaries.
//
// Instructions are classified by major opcode and then decoded into a single
// Instruction struct carrying the fields every pipeline stage needs: the
// architectural source/destination registers, the functional-unit kind that
// should execute it, and its immediate/branch-target operands.
package insts

// Op identifies a decoded RISC-V operation.
type Op uint16

const (
	OpInvalid Op = iota

	// Integer register-immediate (OP-IMM / OP-IMM-32).
	OpAddi
	OpSlti
	OpSltiu
	OpXori
	OpOri
	OpAndi
	OpSlli
	OpSrli
	OpSrai
	OpAddiw
	OpSlliw
	OpSrliw
	OpSraiw

	// Integer register-register (OP / OP-32).
	OpAdd
	OpSub
	OpSll
	OpSlt
	OpSltu
	OpXor
	OpSrl
	OpSra
	OpOr
	OpAnd
	OpAddw
	OpSubw
	OpSllw
	OpSrlw
	OpSraw

	// M extension.
	OpMul
	OpMulh
	OpMulhsu
	OpMulhu
	OpDiv
	OpDivu
	OpRem
	OpRemu
	OpMulw
	OpDivw
	OpDivuw
	OpRemw
	OpRemuw

	// Upper immediate.
	OpLui
	OpAuipc

	// Control transfer.
	OpJal
	OpJalr
	OpBeq
	OpBne
	OpBlt
	OpBge
	OpBltu
	OpBgeu

	// Loads/stores.
	OpLb
	OpLh
	OpLw
	OpLd
	OpLbu
	OpLhu
	OpLwu
	OpSb
	OpSh
	OpSw
	OpSd

	// Atomics (single-cycle read-modify-write, no reservation set modeled).
	OpAmoswapW
	OpAmoaddW
	OpAmoandW
	OpAmoorW
	OpAmoxorW
	OpAmominW
	OpAmomaxW
	OpAmominuW
	OpAmomaxuW
	OpAmoswapD
	OpAmoaddD

	// System.
	OpEcall
	OpEbreak
	OpFence

	// F extension (single precision subset).
	OpFlw
	OpFsw
	OpFaddS
	OpFsubS
	OpFmulS
	OpFdivS
	OpFeqS
	OpFltS
	OpFleS
	OpFmvXW
	OpFmvWX
	OpFmaddS
	OpFmsubS
	OpFnmsubS
	OpFnmaddS
)

// Format identifies the RISC-V instruction encoding shape.
type Format uint8

const (
	FormatInvalid Format = iota
	FormatR
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
	FormatR4 // fused multiply-add family
)

// FUKind names the functional-unit pipeline an instruction dispatches to.
// The ordering matches the fixed visitation order execute-all uses every
// tick and the forwarding-bus naming used throughout timing/forward.
type FUKind uint8

const (
	FUNone FUKind = iota
	FUALU
	FUMul
	FUMul32
	FUDiv
	FUDiv32
	FUFPUALU
	FUFPUALU2
	FUFPUALU3
	FUFPUFMA
)

// Class is the coarse statistics class an instruction belongs to, following
// the instruction-type taxonomy used for per-privilege commit counters.
type Class uint8

const (
	ClassLoad Class = iota
	ClassStore
	ClassAtomic
	ClassSystem
	ClassArithmetic
	ClassCondBranch
	ClassJal
	ClassJalr
	ClassIntMul
	ClassIntDiv
	ClassFPLoad
	ClassFPStore
	ClassFPAdd
	ClassFPMul
	ClassFPFMA
	ClassFPDivSqrt
	ClassFPMisc
)

func (c Class) String() string {
	switch c {
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassAtomic:
		return "atomic"
	case ClassSystem:
		return "system"
	case ClassArithmetic:
		return "arithmetic"
	case ClassCondBranch:
		return "cond-branch"
	case ClassJal:
		return "jal"
	case ClassJalr:
		return "jalr"
	case ClassIntMul:
		return "int-mul"
	case ClassIntDiv:
		return "int-div"
	case ClassFPLoad:
		return "fp-load"
	case ClassFPStore:
		return "fp-store"
	case ClassFPAdd:
		return "fp-add"
	case ClassFPMul:
		return "fp-mul"
	case ClassFPFMA:
		return "fp-fma"
	case ClassFPDivSqrt:
		return "fp-div-sqrt"
	case ClassFPMisc:
		return "fp-misc"
	default:
		return "unknown"
	}
}

// Instruction is the fully decoded form of a 32-bit RISC-V instruction word.
type Instruction struct {
	Raw    uint32
	PC     uint64
	Op     Op
	Format Format
	FU     FUKind
	Class  Class

	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Rs3 uint8 // only used by the R4 (fused multiply-add) format

	Imm int64

	IsFP        bool // true if Rd (or, for FSW, the store data Rs2) is in the FP register file; FLW/FSW keep an integer Rs1, and FEQ/FLT/FLE/FMV.X.W leave it false despite FP sources
	RegWrite    bool
	MemRead     bool
	MemWrite    bool
	IsBranch    bool
	IsJump      bool
	IsSystem    bool
	IsAtomic    bool
	MemSize     int // access width in bytes for loads/stores/atomics
	MemUnsigned bool
}

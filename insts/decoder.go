package insts

// Major opcodes, mirroring the real RV32/64 base ISA encoding.
const (
	opcodeLoad     = 0x03
	opcodeLoadFP   = 0x07
	opcodeFence    = 0x0f
	opcodeOpImm    = 0x13
	opcodeAuipc    = 0x17
	opcodeOpImm32  = 0x1b
	opcodeStore    = 0x23
	opcodeStoreFP  = 0x27
	opcodeAmo      = 0x2f
	opcodeOp       = 0x33
	opcodeLui      = 0x37
	opcodeOp32     = 0x3b
	opcodeFmadd    = 0x43
	opcodeFmsub    = 0x47
	opcodeFnmsub   = 0x4b
	opcodeFnmadd   = 0x4f
	opcodeOpFP     = 0x53
	opcodeBranch   = 0x63
	opcodeJalr     = 0x67
	opcodeJal      = 0x6f
	opcodeSystem   = 0x73
)

// Decoder decodes 32-bit RISC-V instruction words.
type Decoder struct{}

// NewDecoder creates a new RISC-V instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word fetched from pc.
func (d *Decoder) Decode(word uint32, pc uint64) *Instruction {
	inst := &Instruction{Raw: word, PC: pc, Op: OpInvalid, Format: FormatInvalid, FU: FUNone}

	opcode := word & 0x7f

	switch opcode {
	case opcodeOpImm, opcodeOpImm32:
		d.decodeOpImm(word, inst)
	case opcodeOp, opcodeOp32:
		d.decodeOp(word, inst)
	case opcodeLui:
		d.decodeLui(word, inst)
	case opcodeAuipc:
		d.decodeAuipc(word, inst)
	case opcodeJal:
		d.decodeJal(word, inst)
	case opcodeJalr:
		d.decodeJalr(word, inst)
	case opcodeBranch:
		d.decodeBranch(word, inst)
	case opcodeLoad:
		d.decodeLoad(word, inst)
	case opcodeStore:
		d.decodeStore(word, inst)
	case opcodeLoadFP:
		d.decodeLoadFP(word, inst)
	case opcodeStoreFP:
		d.decodeStoreFP(word, inst)
	case opcodeAmo:
		d.decodeAmo(word, inst)
	case opcodeSystem:
		d.decodeSystem(word, inst)
	case opcodeFence:
		inst.Format = FormatI
		inst.Op = OpFence
		inst.IsSystem = true
	case opcodeOpFP:
		d.decodeOpFP(word, inst)
	case opcodeFmadd, opcodeFmsub, opcodeFnmsub, opcodeFnmadd:
		d.decodeFmaFamily(opcode, word, inst)
	default:
		inst.Op = OpInvalid
	}

	return inst
}

func rd(word uint32) uint8  { return uint8((word >> 7) & 0x1f) }
func rs1(word uint32) uint8 { return uint8((word >> 15) & 0x1f) }
func rs2(word uint32) uint8 { return uint8((word >> 20) & 0x1f) }
func rs3(word uint32) uint8 { return uint8((word >> 27) & 0x1f) }
func funct3(word uint32) uint32 { return (word >> 12) & 0x7 }
func funct7(word uint32) uint32 { return (word >> 25) & 0x7f }

// immI sign-extends the 12-bit I-type immediate (bits [31:20]).
func immI(word uint32) int64 {
	return int64(int32(word) >> 20)
}

// immS sign-extends the 12-bit S-type immediate (imm[11:5] | imm[4:0]).
func immS(word uint32) int64 {
	hi := word & 0xfe000000
	lo := (word >> 7) & 0x1f
	raw := (hi >> 20) | lo
	return int64(int32(raw<<20) >> 20)
}

// immB sign-extends the 13-bit (bit-0 implicit zero) B-type branch offset.
func immB(word uint32) int64 {
	bit12 := (word >> 31) & 0x1
	bit11 := (word >> 7) & 0x1
	bits10_5 := (word >> 25) & 0x3f
	bits4_1 := (word >> 8) & 0xf
	raw := (bit12 << 12) | (bit11 << 11) | (bits10_5 << 5) | (bits4_1 << 1)
	return int64(int32(raw<<19) >> 19)
}

// immU returns the 20-bit upper immediate already positioned in bits [31:12].
func immU(word uint32) int64 {
	return int64(int32(word & 0xfffff000))
}

// immJ sign-extends the 21-bit (bit-0 implicit zero) J-type jump offset.
func immJ(word uint32) int64 {
	bit20 := (word >> 31) & 0x1
	bits10_1 := (word >> 21) & 0x3ff
	bit11 := (word >> 20) & 0x1
	bits19_12 := (word >> 12) & 0xff
	raw := (bit20 << 20) | (bits19_12 << 12) | (bit11 << 11) | (bits10_1 << 1)
	return int64(int32(raw<<11) >> 11)
}

// decodeOpImm decodes OP-IMM and OP-IMM-32 (register-immediate arithmetic).
func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.FU = FUALU
	inst.Class = ClassArithmetic
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Imm = immI(word)
	inst.RegWrite = true

	is32 := word&0x7f == opcodeOpImm32
	f3 := funct3(word)
	f7 := funct7(word)

	switch {
	case f3 == 0x0 && !is32:
		inst.Op = OpAddi
	case f3 == 0x0 && is32:
		inst.Op = OpAddiw
	case f3 == 0x2:
		inst.Op = OpSlti
	case f3 == 0x3:
		inst.Op = OpSltiu
	case f3 == 0x4:
		inst.Op = OpXori
	case f3 == 0x6:
		inst.Op = OpOri
	case f3 == 0x7:
		inst.Op = OpAndi
	case f3 == 0x1 && !is32:
		inst.Op = OpSlli
		inst.Imm = int64(word>>20) & 0x3f
	case f3 == 0x1 && is32:
		inst.Op = OpSlliw
		inst.Imm = int64(word>>20) & 0x1f
	case f3 == 0x5 && !is32:
		inst.Imm = int64(word>>20) & 0x3f
		if f7>>1 == 0x10 {
			inst.Op = OpSrai
		} else {
			inst.Op = OpSrli
		}
	case f3 == 0x5 && is32:
		inst.Imm = int64(word>>20) & 0x1f
		if f7>>1 == 0x10 {
			inst.Op = OpSraiw
		} else {
			inst.Op = OpSrliw
		}
	}
}

// decodeOp decodes OP and OP-32 (register-register arithmetic, M extension).
func (d *Decoder) decodeOp(word uint32, inst *Instruction) {
	inst.Format = FormatR
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.RegWrite = true

	is32 := word&0x7f == opcodeOp32
	f3 := funct3(word)
	f7 := funct7(word)
	isM := f7 == 0x01

	if isM {
		inst.Class = ClassIntMul
		switch {
		case f3 == 0x0 && !is32:
			inst.Op, inst.FU = OpMul, FUMul
		case f3 == 0x1 && !is32:
			inst.Op, inst.FU = OpMulh, FUMul
		case f3 == 0x2 && !is32:
			inst.Op, inst.FU = OpMulhsu, FUMul
		case f3 == 0x3 && !is32:
			inst.Op, inst.FU = OpMulhu, FUMul
		case f3 == 0x4:
			inst.Op, inst.FU, inst.Class = OpDiv, FUDiv, ClassIntDiv
			if is32 {
				inst.Op, inst.FU = OpDivw, FUDiv32
			}
		case f3 == 0x5:
			inst.Op, inst.FU, inst.Class = OpDivu, FUDiv, ClassIntDiv
			if is32 {
				inst.Op, inst.FU = OpDivuw, FUDiv32
			}
		case f3 == 0x6:
			inst.Op, inst.FU, inst.Class = OpRem, FUDiv, ClassIntDiv
			if is32 {
				inst.Op, inst.FU = OpRemw, FUDiv32
			}
		case f3 == 0x7:
			inst.Op, inst.FU, inst.Class = OpRemu, FUDiv, ClassIntDiv
			if is32 {
				inst.Op, inst.FU = OpRemuw, FUDiv32
			}
		case f3 == 0x0 && is32:
			inst.Op, inst.FU = OpMulw, FUMul32
		}
		return
	}

	inst.FU = FUALU
	inst.Class = ClassArithmetic
	switch {
	case f3 == 0x0 && f7 == 0x20 && !is32:
		inst.Op = OpSub
	case f3 == 0x0 && f7 == 0x20 && is32:
		inst.Op = OpSubw
	case f3 == 0x0 && !is32:
		inst.Op = OpAdd
	case f3 == 0x0 && is32:
		inst.Op = OpAddw
	case f3 == 0x1 && !is32:
		inst.Op = OpSll
	case f3 == 0x1 && is32:
		inst.Op = OpSllw
	case f3 == 0x2:
		inst.Op = OpSlt
	case f3 == 0x3:
		inst.Op = OpSltu
	case f3 == 0x4:
		inst.Op = OpXor
	case f3 == 0x5 && f7 == 0x20 && !is32:
		inst.Op = OpSra
	case f3 == 0x5 && f7 == 0x20 && is32:
		inst.Op = OpSraw
	case f3 == 0x5 && !is32:
		inst.Op = OpSrl
	case f3 == 0x5 && is32:
		inst.Op = OpSrlw
	case f3 == 0x6:
		inst.Op = OpOr
	case f3 == 0x7:
		inst.Op = OpAnd
	}
}

func (d *Decoder) decodeLui(word uint32, inst *Instruction) {
	inst.Format = FormatU
	inst.FU = FUALU
	inst.Class = ClassArithmetic
	inst.Op = OpLui
	inst.Rd = rd(word)
	inst.Imm = immU(word)
	inst.RegWrite = true
}

func (d *Decoder) decodeAuipc(word uint32, inst *Instruction) {
	inst.Format = FormatU
	inst.FU = FUALU
	inst.Class = ClassArithmetic
	inst.Op = OpAuipc
	inst.Rd = rd(word)
	inst.Imm = immU(word)
	inst.RegWrite = true
}

func (d *Decoder) decodeJal(word uint32, inst *Instruction) {
	inst.Format = FormatJ
	inst.FU = FUALU
	inst.Class = ClassJal
	inst.Op = OpJal
	inst.Rd = rd(word)
	inst.Imm = immJ(word)
	inst.RegWrite = true
	inst.IsJump = true
}

func (d *Decoder) decodeJalr(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.FU = FUALU
	inst.Class = ClassJalr
	inst.Op = OpJalr
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Imm = immI(word)
	inst.RegWrite = true
	inst.IsJump = true
}

func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	inst.Format = FormatB
	inst.FU = FUALU
	inst.Class = ClassCondBranch
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Imm = immB(word)
	inst.IsBranch = true

	switch funct3(word) {
	case 0x0:
		inst.Op = OpBeq
	case 0x1:
		inst.Op = OpBne
	case 0x4:
		inst.Op = OpBlt
	case 0x5:
		inst.Op = OpBge
	case 0x6:
		inst.Op = OpBltu
	case 0x7:
		inst.Op = OpBgeu
	}
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.FU = FUALU
	inst.Class = ClassLoad
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Imm = immI(word)
	inst.RegWrite = true
	inst.MemRead = true

	switch funct3(word) {
	case 0x0:
		inst.Op, inst.MemSize = OpLb, 1
	case 0x1:
		inst.Op, inst.MemSize = OpLh, 2
	case 0x2:
		inst.Op, inst.MemSize = OpLw, 4
	case 0x3:
		inst.Op, inst.MemSize = OpLd, 8
	case 0x4:
		inst.Op, inst.MemSize, inst.MemUnsigned = OpLbu, 1, true
	case 0x5:
		inst.Op, inst.MemSize, inst.MemUnsigned = OpLhu, 2, true
	case 0x6:
		inst.Op, inst.MemSize, inst.MemUnsigned = OpLwu, 4, true
	}
}

func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	inst.Format = FormatS
	inst.FU = FUALU
	inst.Class = ClassStore
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Imm = immS(word)
	inst.MemWrite = true

	switch funct3(word) {
	case 0x0:
		inst.Op, inst.MemSize = OpSb, 1
	case 0x1:
		inst.Op, inst.MemSize = OpSh, 2
	case 0x2:
		inst.Op, inst.MemSize = OpSw, 4
	case 0x3:
		inst.Op, inst.MemSize = OpSd, 8
	}
}

func (d *Decoder) decodeLoadFP(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.FU = FUALU
	inst.Class = ClassFPLoad
	inst.Op = OpFlw
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Imm = immI(word)
	inst.MemRead = true
	inst.MemSize = 4
	inst.IsFP = true
	inst.RegWrite = true
}

func (d *Decoder) decodeStoreFP(word uint32, inst *Instruction) {
	inst.Format = FormatS
	inst.FU = FUALU
	inst.Class = ClassFPStore
	inst.Op = OpFsw
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Imm = immS(word)
	inst.MemWrite = true
	inst.MemSize = 4
	inst.IsFP = true
}

// decodeAmo decodes the atomic memory-operation family. No reservation set
// is modeled: LR/SC are not part of this subset (see Non-goals).
func (d *Decoder) decodeAmo(word uint32, inst *Instruction) {
	inst.Format = FormatR
	inst.FU = FUALU
	inst.Class = ClassAtomic
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.RegWrite = true
	inst.MemRead = true
	inst.MemWrite = true
	inst.IsAtomic = true

	width := funct3(word)
	if width == 0x2 {
		inst.MemSize = 4
	} else {
		inst.MemSize = 8
	}

	switch funct7(word) >> 2 {
	case 0x01:
		inst.Op = OpAmoswapW
		if inst.MemSize == 8 {
			inst.Op = OpAmoswapD
		}
	case 0x00:
		inst.Op = OpAmoaddW
		if inst.MemSize == 8 {
			inst.Op = OpAmoaddD
		}
	case 0x04:
		inst.Op = OpAmoxorW
	case 0x0c:
		inst.Op = OpAmoandW
	case 0x08:
		inst.Op = OpAmoorW
	case 0x10:
		inst.Op = OpAmominW
	case 0x14:
		inst.Op = OpAmomaxW
	case 0x18:
		inst.Op = OpAmominuW
	case 0x1c:
		inst.Op = OpAmomaxuW
	}
}

func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.FU = FUALU
	inst.Class = ClassSystem
	inst.IsSystem = true

	if funct3(word) == 0 {
		switch word >> 20 {
		case 0x0:
			inst.Op = OpEcall
		case 0x1:
			inst.Op = OpEbreak
		}
	}
}

// decodeOpFP decodes the OP-FP major opcode: single-precision arithmetic,
// comparisons, and register moves (the minimal F subset named in SPEC_FULL).
//
// FU is left as the generic FUFPUALU placeholder here; timing/core's decode
// stage assigns the actual lane (FUFPUALU/FUFPUALU2/FUFPUALU3) round-robin
// by dispatch sequence number, since lane choice is a scheduling decision,
// not a property of the instruction itself.
func (d *Decoder) decodeOpFP(word uint32, inst *Instruction) {
	inst.Format = FormatR
	inst.Class = ClassFPMisc
	inst.FU = FUFPUALU
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.IsFP = true
	inst.RegWrite = true

	f7 := funct7(word)
	switch f7 {
	case 0x00:
		inst.Op, inst.Class = OpFaddS, ClassFPAdd
	case 0x04:
		inst.Op, inst.Class = OpFsubS, ClassFPAdd
	case 0x08:
		inst.Op, inst.Class = OpFmulS, ClassFPMul
	case 0x0c:
		inst.Op, inst.Class = OpFdivS, ClassFPDivSqrt
	case 0x50:
		switch funct3(word) {
		case 0x0:
			inst.Op = OpFleS
		case 0x1:
			inst.Op = OpFltS
		case 0x2:
			inst.Op = OpFeqS
		}
		inst.IsFP = false // comparison result is an integer register
	case 0x70:
		inst.Op = OpFmvXW
		inst.IsFP = false
	case 0x78:
		inst.Op = OpFmvWX
	}
}

// decodeFmaFamily decodes FMADD.S/FMSUB.S/FNMSUB.S/FNMADD.S. All four go to
// the dedicated FPU-FMA unit; unlike OP-FP instructions they are not spread
// across the three FPU-ALU lanes.
func (d *Decoder) decodeFmaFamily(opcode uint32, word uint32, inst *Instruction) {
	inst.Format = FormatR4
	inst.FU = FUFPUFMA
	inst.Class = ClassFPFMA
	inst.Rd = rd(word)
	inst.Rs1 = rs1(word)
	inst.Rs2 = rs2(word)
	inst.Rs3 = rs3(word)
	inst.IsFP = true
	inst.RegWrite = true

	switch opcode {
	case opcodeFmadd:
		inst.Op = OpFmaddS
	case opcodeFmsub:
		inst.Op = OpFmsubS
	case opcodeFnmsub:
		inst.Op = OpFnmsubS
	case opcodeFnmadd:
		inst.Op = OpFnmaddS
	}
}

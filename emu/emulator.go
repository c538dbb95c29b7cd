package emu

import (
	"encoding/binary"
	"io"

	"github.com/dfinch/rvincore/insts"
)

// StepResult describes the outcome of executing a single instruction.
type StepResult struct {
	// Exited is true if the instruction caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Exception is non-nil if the instruction trapped.
	Exception *Exception
}

// Emulator provides standalone functional execution of RV64IMF programs. It
// doubles as the instruction oracle the timing pipeline consults to compute
// architectural results independent of timing: decode a fetched word with
// Decode, then ask ExecuteFunctional what the instruction would do to a
// register file and memory.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	decoder *insts.Decoder

	alu            *ALU
	fpalu          *FPUALU
	fma            *FMA
	syscallHandler SyscallHandler

	stdout io.Writer
	stderr io.Writer

	instructionCount uint64
	maxInstructions  uint64
}

// EmulatorOption configures an Emulator at construction time.
type EmulatorOption func(*Emulator)

// WithStdout overrides the writer used for fd 1.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) { e.stdout = w }
}

// WithStderr overrides the writer used for fd 2.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) { e.stderr = w }
}

// WithSyscallHandler overrides the default syscall handler.
func WithSyscallHandler(h SyscallHandler) EmulatorOption {
	return func(e *Emulator) { e.syscallHandler = h }
}

// WithRegFile makes the Emulator operate directly on an externally owned
// register file instead of allocating its own, so a caller holding the
// architectural state (such as timing/core) can use this Emulator as a
// pure instruction oracle against its own committed state.
func WithRegFile(rf *RegFile) EmulatorOption {
	return func(e *Emulator) { e.regFile = rf }
}

// WithMemory makes the Emulator operate directly on an externally owned
// memory instead of allocating its own, for the same reason as WithRegFile.
func WithMemory(mem *Memory) EmulatorOption {
	return func(e *Emulator) { e.memory = mem }
}

// WithMaxInstructions bounds Run to at most n retired instructions, used to
// guard against runaway or non-terminating programs in tests.
func WithMaxInstructions(n uint64) EmulatorOption {
	return func(e *Emulator) { e.maxInstructions = n }
}

// NewEmulator creates an Emulator with a fresh register file and memory.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		alu:     NewALU(),
		fpalu:   NewFPUALU(),
		fma:     NewFMA(),
		stdout:  io.Discard,
		stderr:  io.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.syscallHandler == nil {
		e.syscallHandler = NewDefaultSyscallHandler(e.regFile, e.memory, e.stdout, e.stderr)
	}
	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile { return e.regFile }

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory { return e.memory }

// InstructionCount returns the number of instructions retired so far.
func (e *Emulator) InstructionCount() uint64 { return e.instructionCount }

// SetPC sets the program counter, typically to an ELF entry point.
func (e *Emulator) SetPC(pc uint64) { e.regFile.PC = pc }

// SetStackPointer sets x2 (sp).
func (e *Emulator) SetStackPointer(sp uint64) { e.regFile.WriteReg(2, sp) }

// Decode fetches the 32-bit word at the given address and decodes it. It
// does not advance any state; repeated calls at the same pc are idempotent.
func (e *Emulator) Decode(pc uint64) *insts.Instruction {
	word := e.memory.Read32(pc)
	return e.decoder.Decode(word, pc)
}

// DecodeBytes decodes a 32-bit instruction word already fetched by a caller
// that does not route through the emulator's own memory, such as the
// timing pipeline's fetch stage, which fetches raw bytes through its own
// cache/MMU model and then hands them to the same decoder this package
// uses for functional execution.
func (e *Emulator) DecodeBytes(raw []byte, pc uint64) *insts.Instruction {
	word := binary.LittleEndian.Uint32(raw)
	return e.decoder.Decode(word, pc)
}

// Step fetches, decodes, and executes a single instruction, advancing the
// register file and memory and returning the outcome.
func (e *Emulator) Step() StepResult {
	inst := e.Decode(e.regFile.PC)
	result := e.execute(inst)
	e.instructionCount++
	return result
}

// Run executes instructions until the program exits, traps, or
// maxInstructions is reached (if set). It returns the process exit code.
func (e *Emulator) Run() int64 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Exception != nil {
			return -1
		}
		if e.maxInstructions != 0 && e.instructionCount >= e.maxInstructions {
			return -1
		}
	}
}

// ExecuteFunctional computes the architectural effect of inst against the
// given register file and memory without touching the emulator's own
// state, letting the timing pipeline use it as a pure oracle for checking
// its own bypass/forwarding results.
func (e *Emulator) ExecuteFunctional(inst *insts.Instruction, regFile *RegFile, memory *Memory) StepResult {
	saved := e.regFile
	savedMem := e.memory
	e.regFile = regFile
	e.memory = memory
	defer func() {
		e.regFile = saved
		e.memory = savedMem
	}()
	return e.execute(inst)
}

func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	rf := e.regFile
	nextPC := inst.PC + 4

	switch {
	case inst.IsSystem:
		return e.executeSystem(inst)

	case inst.Op == insts.OpJal:
		rf.WriteReg(inst.Rd, inst.PC+4)
		nextPC = uint64(int64(inst.PC) + inst.Imm)

	case inst.Op == insts.OpJalr:
		target := (rf.ReadReg(inst.Rs1) + uint64(inst.Imm)) &^ 1
		rf.WriteReg(inst.Rd, inst.PC+4)
		nextPC = target

	case inst.IsBranch:
		if e.alu.EvalBranch(inst.Op, rf.ReadReg(inst.Rs1), rf.ReadReg(inst.Rs2)) {
			nextPC = uint64(int64(inst.PC) + inst.Imm)
		}

	case inst.Op == insts.OpLui:
		rf.WriteReg(inst.Rd, uint64(inst.Imm))

	case inst.Op == insts.OpAuipc:
		rf.WriteReg(inst.Rd, inst.PC+uint64(inst.Imm))

	case inst.IsAtomic:
		e.executeAtomic(inst)

	case inst.MemRead:
		e.executeLoad(inst)

	case inst.MemWrite:
		e.executeStore(inst)

	case inst.Format == insts.FormatR4:
		result := e.fma.Exec(inst.Op, rf.ReadFReg(inst.Rs1), rf.ReadFReg(inst.Rs2), rf.ReadFReg(inst.Rs3))
		rf.WriteFReg(inst.Rd, result)

	case inst.IsFP,
		inst.Op == insts.OpFeqS, inst.Op == insts.OpFltS, inst.Op == insts.OpFleS,
		inst.Op == insts.OpFmvXW:
		e.executeFP(inst)

	default:
		rs1 := rf.ReadReg(inst.Rs1)
		var rs2 uint64
		if inst.Format == insts.FormatI {
			rs2 = uint64(inst.Imm)
		} else {
			rs2 = rf.ReadReg(inst.Rs2)
		}
		result := e.alu.Exec(inst.Op, rs1, rs2)
		if isWOp(inst.Op) {
			rf.WriteReg32(inst.Rd, uint32(result))
		} else {
			rf.WriteReg(inst.Rd, result)
		}
	}

	rf.PC = nextPC
	return StepResult{}
}

func (e *Emulator) executeFP(inst *insts.Instruction) {
	rf := e.regFile
	switch inst.Op {
	case insts.OpFeqS, insts.OpFltS, insts.OpFleS:
		result := e.fpalu.ExecCompare(inst.Op, rf.ReadFReg(inst.Rs1), rf.ReadFReg(inst.Rs2))
		rf.WriteReg(inst.Rd, result)
	case insts.OpFmvXW:
		rf.WriteReg(inst.Rd, uint64(int64(int32(rf.ReadFReg(inst.Rs1)))))
	case insts.OpFmvWX:
		rf.WriteFReg(inst.Rd, uint32(rf.ReadReg(inst.Rs1)))
	default:
		result := e.fpalu.Exec(inst.Op, rf.ReadFReg(inst.Rs1), rf.ReadFReg(inst.Rs2))
		rf.WriteFReg(inst.Rd, result)
	}
}

func (e *Emulator) executeLoad(inst *insts.Instruction) {
	rf := e.regFile
	addr := rf.ReadReg(inst.Rs1) + uint64(inst.Imm)

	if inst.IsFP {
		rf.WriteFReg(inst.Rd, e.memory.Read32(addr))
		return
	}

	var value uint64
	switch inst.MemSize {
	case 1:
		v := e.memory.Read8(addr)
		if inst.MemUnsigned {
			value = uint64(v)
		} else {
			value = uint64(int64(int8(v)))
		}
	case 2:
		v := e.memory.Read16(addr)
		if inst.MemUnsigned {
			value = uint64(v)
		} else {
			value = uint64(int64(int16(v)))
		}
	case 4:
		v := e.memory.Read32(addr)
		if inst.MemUnsigned {
			value = uint64(v)
		} else {
			value = uint64(int64(int32(v)))
		}
	case 8:
		value = e.memory.Read64(addr)
	}
	rf.WriteReg(inst.Rd, value)
}

func (e *Emulator) executeStore(inst *insts.Instruction) {
	rf := e.regFile
	addr := rf.ReadReg(inst.Rs1) + uint64(inst.Imm)

	if inst.IsFP {
		e.memory.Write32(addr, rf.ReadFReg(inst.Rs2))
		return
	}

	value := rf.ReadReg(inst.Rs2)
	switch inst.MemSize {
	case 1:
		e.memory.Write8(addr, uint8(value))
	case 2:
		e.memory.Write16(addr, uint16(value))
	case 4:
		e.memory.Write32(addr, uint32(value))
	case 8:
		e.memory.Write64(addr, value)
	}
}

// executeAtomic performs a single-cycle read-modify-write. No reservation
// set is modeled: LR/SC are out of scope, and every AMO completes
// atomically from the point of view of this single-core emulator.
func (e *Emulator) executeAtomic(inst *insts.Instruction) {
	rf := e.regFile
	addr := rf.ReadReg(inst.Rs1)
	rs2 := rf.ReadReg(inst.Rs2)

	var old uint64
	if inst.MemSize == 4 {
		old = uint64(int64(int32(e.memory.Read32(addr))))
	} else {
		old = e.memory.Read64(addr)
	}

	var result uint64
	switch inst.Op {
	case insts.OpAmoswapW, insts.OpAmoswapD:
		result = rs2
	case insts.OpAmoaddW, insts.OpAmoaddD:
		result = old + rs2
	case insts.OpAmoandW:
		result = old & rs2
	case insts.OpAmoorW:
		result = old | rs2
	case insts.OpAmoxorW:
		result = old ^ rs2
	case insts.OpAmominW:
		if int64(old) < int64(rs2) {
			result = old
		} else {
			result = rs2
		}
	case insts.OpAmomaxW:
		if int64(old) > int64(rs2) {
			result = old
		} else {
			result = rs2
		}
	case insts.OpAmominuW:
		if old < rs2 {
			result = old
		} else {
			result = rs2
		}
	case insts.OpAmomaxuW:
		if old > rs2 {
			result = old
		} else {
			result = rs2
		}
	}

	if inst.MemSize == 4 {
		e.memory.Write32(addr, uint32(result))
	} else {
		e.memory.Write64(addr, result)
	}
	rf.WriteReg(inst.Rd, old)
}

func (e *Emulator) executeSystem(inst *insts.Instruction) StepResult {
	rf := e.regFile
	switch inst.Op {
	case insts.OpEcall:
		rf.PC += 4
		result := e.syscallHandler.Handle()
		if result.Exited {
			return StepResult{Exited: true, ExitCode: result.ExitCode}
		}
		return StepResult{}
	case insts.OpEbreak:
		exc := &Exception{Cause: CauseBreakpoint, PC: inst.PC}
		rf.PC += 4
		return StepResult{Exception: exc}
	case insts.OpFence:
		rf.PC += 4
		return StepResult{}
	default:
		rf.PC += 4
		return StepResult{}
	}
}

func isWOp(op insts.Op) bool {
	switch op {
	case insts.OpAddw, insts.OpSubw, insts.OpSllw, insts.OpSrlw, insts.OpSraw,
		insts.OpAddiw, insts.OpSlliw, insts.OpSrliw, insts.OpSraiw,
		insts.OpMulw, insts.OpDivw, insts.OpDivuw, insts.OpRemw, insts.OpRemuw:
		return true
	default:
		return false
	}
}

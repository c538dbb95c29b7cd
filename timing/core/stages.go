package core

import (
	"encoding/binary"
	"math/bits"

	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/insts"
	"github.com/dfinch/rvincore/timing/forward"
	"github.com/dfinch/rvincore/timing/fu"
	"github.com/dfinch/rvincore/timing/imap"
	"github.com/dfinch/rvincore/timing/mmu"
)

// doFetch drives the (possibly multi-cycle) pcgen/fetch state machine. When
// decode could not accept fetchCur this tick, fetch must hold its latch
// steady rather than let the unconditional fetchCur/fetchNext shift at the
// end of tick() silently drop the instruction decode never consumed.
func (c *Core) doFetch(decodeStalled bool) {
	if c.pendingExc != nil {
		c.fetchNext = fetchLatch{}
		return
	}

	if decodeStalled && c.fetchCur.HasData {
		c.fetchNext = c.fetchCur
		return
	}

	c.fetchNext = fetchLatch{}

	switch c.fetchState {
	case fetchIdle:
		c.fetchAddr = c.pc
		c.fetchHandle = nil
		if c.params.NumCPUStages == 6 {
			c.fetchState = fetchBubble
		} else {
			c.fetchState = fetchTranslating
		}

	case fetchBubble:
		c.fetchState = fetchTranslating

	case fetchTranslating:
		if c.fetchHandle != nil {
			if !c.fetchHandle.Done() {
				return
			}
			c.fetchHandle = nil
		}

		res := c.tlb.Translate(c.fetchAddr, 4, mmu.AccessRead)
		if !res.Hit {
			c.fetchHandle = res.Handle
			return
		}

		c.fetchPAddr = res.PAddr
		access := c.icache.Read(c.fetchPAddr, 4)
		binary.LittleEndian.PutUint32(c.fetchRaw[:], uint32(access.Data))
		c.fetchRemaining = res.Latency + access.Latency
		if c.fetchRemaining == 0 {
			c.fetchRemaining = 1
		}
		c.fetchState = fetchAccessing

	case fetchAccessing:
		// With the IMAP pool full, hold the fetched word until commit
		// frees a slot instead of allocating.
		if c.fetchRemaining <= 1 && c.imapPool.InUse() == c.imapPool.Capacity() {
			return
		}
		c.fetchRemaining--
		if c.fetchRemaining > 0 {
			return
		}

		idx := c.imapPool.Alloc(nil, 0)
		entry := c.imapPool.Get(idx)
		entry.PC = c.fetchAddr
		entry.Raw = binary.LittleEndian.Uint32(c.fetchRaw[:])

		pred := c.bp.Predict(c.fetchAddr)
		entry.PredictedTaken = pred.Taken
		if pred.TargetKnown {
			entry.PredictedTarget = pred.Target
		}
		if pred.Taken && pred.TargetKnown {
			c.pc = pred.Target
		} else {
			c.pc = c.fetchAddr + 4
		}

		c.fetchNext = fetchLatch{HasData: true, IMAPIdx: idx}
		c.fetchState = fetchIdle
	}
}

// operandClasses reports which register file (integer or floating-point)
// each of an instruction's source operands reads from. This usually
// matches inst.IsFP, which names the destination's register file, but a
// handful of F-extension opcodes cross files: FEQ.S/FLT.S/FLE.S/FMV.X.W
// read FP sources into an integer destination (so IsFP was deliberately
// cleared by the decoder for the destination's sake), while FLW/FSW/FMV.W.X
// read an integer address or source register despite writing (or sharing
// the opcode family of instructions that write) an FP destination.
func operandClasses(inst *insts.Instruction) (rs1FP, rs2FP, rs3FP bool) {
	rs1FP, rs2FP, rs3FP = inst.IsFP, inst.IsFP, inst.IsFP
	switch inst.Op {
	case insts.OpFeqS, insts.OpFltS, insts.OpFleS, insts.OpFmvXW:
		rs1FP, rs2FP = true, true
	case insts.OpFlw, insts.OpFsw, insts.OpFmvWX:
		rs1FP = false
	}
	return
}

func (c *Core) resolveOperand(reg uint8, fp bool) (ready bool, intVal uint64, fpVal uint32) {
	if !fp && reg == 0 {
		return true, 0, 0
	}
	if c.sb.IsReady(reg, fp) {
		if fp {
			return true, 0, c.regFile.ReadFReg(reg)
		}
		return true, c.regFile.ReadReg(reg), 0
	}
	if v, ok := c.fwd.Snoop(reg, fp); ok {
		if fp {
			return true, 0, uint32(v.Result)
		}
		return true, v.Result, 0
	}
	return false, 0, 0
}

func (c *Core) fuFor(kind insts.FUKind) (*fu.Pipeline, *fu.VariableUnit) {
	switch kind {
	case insts.FUMul:
		return c.mulFU, nil
	case insts.FUMul32:
		return c.mul32FU, nil
	case insts.FUDiv:
		return nil, c.divFU
	case insts.FUDiv32:
		return nil, c.div32FU
	case insts.FUFPUALU:
		return c.fpALU1, nil
	case insts.FUFPUALU2:
		return c.fpALU2, nil
	case insts.FUFPUALU3:
		return c.fpALU3, nil
	case insts.FUFPUFMA:
		return c.fpFMA, nil
	default:
		return c.aluFU, nil
	}
}

// divLatency picks DIV/DIV32's completion cycle deterministically from the
// operands' bit width rather than their value, so the same division always
// takes the same number of cycles regardless of which run executes it.
func (c *Core) divLatency(a, b uint64) int {
	width := bits.Len64(a)
	if w := bits.Len64(b); w > width {
		width = w
	}
	span := c.params.DivideLatencyMax - c.params.DivideLatencyMin
	if span < 0 {
		span = 0
	}
	lat := c.params.DivideLatencyMin + (width*span)/64
	if lat < 1 {
		lat = 1
	}
	return lat
}

// doDecode resolves operands for fetchCur's instruction and issues it into
// its functional unit, returning true if a structural or data hazard holds
// it back (in which case fetch must hold fetchCur steady next tick).
func (c *Core) doDecode() bool {
	if !c.fetchCur.HasData {
		return false
	}

	entry := c.imapPool.Get(c.fetchCur.IMAPIdx)
	if entry.Inst == nil {
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], entry.Raw)
		entry.Inst = c.oracle.DecodeBytes(raw[:], entry.PC)
	}
	inst := entry.Inst

	// A fetch-time branch prediction is made blind to whether the fetched
	// word is even a branch (the BTB is indexed purely by PC). If it
	// predicted taken for an instruction that turns out not to be a
	// branch or jump at all, that was a BTB aliasing artifact: correct
	// fetch's redirect now, before any younger instruction has been
	// dispatched.
	if entry.PredictedTaken && !inst.IsBranch && !inst.IsJump {
		entry.PredictedTaken = false
		c.pc = entry.PC + 4
		c.fetchState = fetchIdle
		c.fetchHandle = nil
	}

	if inst.Op == insts.OpInvalid {
		if c.dq.Full() {
			return true
		}
		entry.Fault = emu.CauseIllegalInstruction
		entry.Seq = c.seq
		c.dq.Reserve(c.fetchCur.IMAPIdx, c.seq)
		c.dq.MarkReady(c.fetchCur.IMAPIdx)
		c.seq++
		return false
	}

	if c.dq.Full() {
		return true
	}

	rs1FP, rs2FP, rs3FP := operandClasses(inst)

	usesRs2 := inst.Format == insts.FormatR || inst.Format == insts.FormatS ||
		inst.Format == insts.FormatB || inst.Format == insts.FormatR4
	usesRs3 := inst.Format == insts.FormatR4

	rs1Ready, rs1Val, rs1FVal := c.resolveOperand(inst.Rs1, rs1FP)
	rs2Ready, rs2Val, rs2FVal := true, uint64(0), uint32(0)
	if usesRs2 {
		rs2Ready, rs2Val, rs2FVal = c.resolveOperand(inst.Rs2, rs2FP)
	}
	rs3Ready, rs3Val, rs3FVal := true, uint64(0), uint32(0)
	if usesRs3 {
		rs3Ready, rs3Val, rs3FVal = c.resolveOperand(inst.Rs3, rs3FP)
	}

	if !rs1Ready || !rs2Ready || !rs3Ready {
		return true
	}

	// A destination an older in-flight instruction still has to write is a
	// WAW hazard: hold decode until that writer commits, so a busy register
	// never has more than one writer in flight.
	if inst.RegWrite && !c.sb.IsReady(inst.Rd, inst.IsFP) {
		return true
	}

	fuKind := inst.FU
	if fuKind == insts.FUFPUALU {
		switch c.seq % 3 {
		case 1:
			fuKind = insts.FUFPUALU2
		case 2:
			fuKind = insts.FUFPUALU3
		}
	}

	pipe, varUnit := c.fuFor(fuKind)
	if pipe != nil && pipe.Busy() {
		return true
	}
	if varUnit != nil && varUnit.Busy() {
		return true
	}

	if !c.dq.Reserve(c.fetchCur.IMAPIdx, c.seq) {
		return true
	}

	inst.FU = fuKind
	entry.Seq = c.seq
	entry.Rs1Val, entry.Rs2Val, entry.Rs3Val = rs1Val, rs2Val, rs3Val
	entry.Rs1FVal, entry.Rs2FVal, entry.Rs3FVal = rs1FVal, rs2FVal, rs3FVal

	if inst.RegWrite {
		c.sb.MarkBusy(inst.Rd, inst.IsFP)
	}

	switch fuKind {
	case insts.FUDiv, insts.FUDiv32:
		varUnit.Issue(c.fetchCur.IMAPIdx, c.divLatency(rs1Val, rs2Val))
	default:
		pipe.Issue(c.fetchCur.IMAPIdx)
	}

	c.seq++
	entry.Status = imap.StatusInFU
	return false
}

// scratchRegFile builds a throwaway register file seeded with an
// instruction's resolved source operands and its own PC, used to run it
// through the functional oracle without disturbing the real architectural
// register file before commit.
func (c *Core) scratchRegFile(entry *imap.Entry, inst *insts.Instruction) *emu.RegFile {
	rf := &emu.RegFile{PC: inst.PC}
	rs1FP, rs2FP, rs3FP := operandClasses(inst)
	if rs1FP {
		rf.WriteFReg(inst.Rs1, entry.Rs1FVal)
	} else {
		rf.WriteReg(inst.Rs1, entry.Rs1Val)
	}
	if rs2FP {
		rf.WriteFReg(inst.Rs2, entry.Rs2FVal)
	} else {
		rf.WriteReg(inst.Rs2, entry.Rs2Val)
	}
	if rs3FP {
		rf.WriteFReg(inst.Rs3, entry.Rs3FVal)
	} else {
		rf.WriteReg(inst.Rs3, entry.Rs3Val)
	}
	return rf
}

func (c *Core) effectiveAddress(entry *imap.Entry, inst *insts.Instruction) uint64 {
	if inst.IsAtomic {
		return entry.Rs1Val
	}
	return entry.Rs1Val + uint64(inst.Imm)
}

// doExecuteAll advances every functional-unit pipeline by one cycle in a
// fixed visitation order, handling whatever falls out the far end this
// cycle. It never issues a new instruction into stage 0 itself: that is
// decode's job, immediately after this same tick's Advance has vacated it.
func (c *Core) doExecuteAll() {
	c.advancePipeline(c.aluFU, forward.BusALU)
	c.advancePipeline(c.mulFU, forward.BusMul)
	c.advancePipeline(c.mul32FU, forward.BusMul32)
	c.advanceVariable(c.divFU, forward.BusDiv)
	c.advanceVariable(c.div32FU, forward.BusDiv32)
	c.advancePipeline(c.fpALU1, forward.BusFPUALU)
	c.advancePipeline(c.fpALU2, forward.BusFPUALU2)
	c.advancePipeline(c.fpALU3, forward.BusFPUALU3)
	c.advancePipeline(c.fpFMA, forward.BusFPUFMA)
}

func (c *Core) advancePipeline(p *fu.Pipeline, bus forward.Bus) {
	slot, ok := p.Advance()
	if !ok {
		return
	}
	c.completeExecute(slot.IMAPIdx, bus)
}

func (c *Core) advanceVariable(v *fu.VariableUnit, bus forward.Bus) {
	idx, ok := v.Advance()
	if !ok {
		return
	}
	c.completeExecute(idx, bus)
}

func (c *Core) completeExecute(imapIdx int, bus forward.Bus) {
	entry := c.imapPool.Get(imapIdx)
	inst := entry.Inst

	isMem := inst.MemRead || inst.MemWrite || inst.IsAtomic

	switch {
	case inst.IsSystem:
		// No functional effect here: ecall/ebreak/fence run at commit
		// against the real register file and memory, the only point at
		// which every older instruction is guaranteed retired.

	case isMem:
		entry.MemAddr = c.effectiveAddress(entry, inst)

	default:
		scratch := c.scratchRegFile(entry, inst)
		c.oracle.ExecuteFunctional(inst, scratch, c.memory)
		entry.ActualNextPC = scratch.PC

		if inst.RegWrite {
			if inst.IsFP {
				entry.FPResult = scratch.ReadFReg(inst.Rd)
				c.fwd.Broadcast(bus, inst.Rd, true, uint64(entry.FPResult))
			} else {
				entry.Result = scratch.ReadReg(inst.Rd)
				c.fwd.Broadcast(bus, inst.Rd, false, entry.Result)
			}
		}
	}

	c.dq.MarkReady(imapIdx)
}

// doMemory services the dispatch queue's head once its functional unit has
// marked it ready: non-memory instructions pass straight through into the
// mem/commit latch, while loads/stores/atomics drive a translate-then-
// access state machine against the real architectural memory before
// passing through.
func (c *Core) doMemory() {
	c.memNext = memLatch{}

	if c.memState == memIdle {
		if !c.dq.HeadReady() {
			return
		}
		slot, _ := c.dq.Peek()
		entry := c.imapPool.Get(slot.IMAPIdx)
		inst := entry.Inst

		isMem := inst.MemRead || inst.MemWrite || inst.IsAtomic
		if !isMem || entry.Fault != emu.CauseNone {
			c.dq.Pop()
			c.memNext = memLatch{HasData: true, IMAPIdx: slot.IMAPIdx}
			return
		}

		if entry.MemAddr%uint64(memAlignment(inst.MemSize)) != 0 {
			entry.Fault = emu.CauseIllegalInstruction
			c.dq.Pop()
			c.memNext = memLatch{HasData: true, IMAPIdx: slot.IMAPIdx}
			return
		}

		c.memState = memTranslating
		c.memHandle = nil
		return
	}

	c.progressMemAccess()
}

func memAlignment(size int) int {
	if size <= 1 {
		return 1
	}
	return size
}

func (c *Core) progressMemAccess() {
	slot, _ := c.dq.Peek()
	entry := c.imapPool.Get(slot.IMAPIdx)
	inst := entry.Inst

	kind := mmu.AccessRead
	if inst.MemWrite {
		kind = mmu.AccessWrite
	}

	switch c.memState {
	case memTranslating:
		if c.memHandle != nil {
			if !c.memHandle.Done() {
				return
			}
			c.memHandle = nil
		}

		res := c.tlb.Translate(entry.MemAddr, inst.MemSize, kind)
		if !res.Hit {
			c.memHandle = res.Handle
			return
		}

		c.memPAddr = res.PAddr

		var cacheLatency uint64
		if inst.MemWrite {
			storeVal := entry.Rs2Val
			if inst.IsFP {
				storeVal = uint64(entry.Rs2FVal)
			}
			access := c.dcache.Write(c.memPAddr, inst.MemSize, storeVal)
			cacheLatency = access.Latency
		} else {
			access := c.dcache.Read(c.memPAddr, inst.MemSize)
			cacheLatency = access.Latency
		}

		c.memRemaining = res.Latency + cacheLatency
		if c.memRemaining == 0 {
			c.memRemaining = 1
		}
		c.memState = memAccessing

	case memAccessing:
		c.memRemaining--
		if c.memRemaining > 0 {
			return
		}

		scratch := c.scratchRegFile(entry, inst)
		c.oracle.ExecuteFunctional(inst, scratch, c.memory)

		if inst.RegWrite {
			if inst.IsFP {
				entry.FPResult = scratch.ReadFReg(inst.Rd)
				c.fwd.Broadcast(forward.BusMemory, inst.Rd, true, uint64(entry.FPResult))
			} else {
				entry.Result = scratch.ReadReg(inst.Rd)
				c.fwd.Broadcast(forward.BusMemory, inst.Rd, false, entry.Result)
			}
		}

		idx := slot.IMAPIdx
		c.dq.Pop()
		c.memState = memIdle
		c.memNext = memLatch{HasData: true, IMAPIdx: idx}
	}
}

func commitPrivilege(inst *insts.Instruction) emu.Privilege {
	if inst.IsSystem {
		return emu.PrivilegeMachine
	}
	return emu.PrivilegeUser
}

// doCommit retires the mem/commit latch's instruction in program order:
// writing its result back to the real register file, resolving branch
// mispredictions, running deferred system-instruction semantics against
// the live architectural state, and surfacing simulated exceptions.
func (c *Core) doCommit() {
	if !c.memCur.HasData {
		return
	}

	idx := c.memCur.IMAPIdx
	entry := c.imapPool.Get(idx)
	inst := entry.Inst

	if entry.Fault != emu.CauseNone {
		faultPC := entry.PC
		c.pendingExc = &emu.Exception{Cause: entry.Fault, PC: faultPC}
		c.imapPool.Free(idx)
		c.memCur = memLatch{}
		c.flush(faultPC)
		return
	}

	mispredicted := false
	trapped := false

	switch {
	case inst.IsSystem:
		result := c.oracle.ExecuteFunctional(inst, c.regFile, c.memory)
		switch {
		case result.Exited:
			c.exited = true
			c.exitCode = result.ExitCode
		case result.Exception != nil:
			c.pendingExc = result.Exception
			trapped = true
		}

	default:
		if inst.RegWrite {
			if inst.IsFP {
				c.regFile.WriteFReg(inst.Rd, entry.FPResult)
			} else {
				c.regFile.WriteReg(inst.Rd, entry.Result)
			}
			c.sb.MarkReady(inst.Rd, inst.IsFP)
		}

		if inst.IsBranch || inst.IsJump {
			actualTaken := entry.ActualNextPC != entry.PC+4
			targetMatch := !actualTaken || entry.ActualNextPC == entry.PredictedTarget
			mispredicted = actualTaken != entry.PredictedTaken || (actualTaken && !targetMatch)
			c.bp.Update(entry.PC, actualTaken, entry.ActualNextPC)
		}
	}

	c.stats.Instructions++
	c.stats.ClassCounts[inst.Class]++
	c.stats.PrivilegeCounts[commitPrivilege(inst)]++

	// Free zeroes the entry, so read the redirect targets first.
	redirectPC := entry.ActualNextPC
	trapNextPC := entry.PC + 4
	c.imapPool.Free(idx)
	c.memCur = memLatch{}

	switch {
	case mispredicted:
		c.stats.BranchMispredicts++
		c.stats.Flushes++
		c.flush(redirectPC)
	case trapped:
		c.flush(trapNextPC)
	}
}

// flush squashes every in-flight instruction younger than the one that
// just triggered it (a branch misprediction or a trap), since in a
// strictly in-order core nothing older than the triggering instruction can
// still be outstanding.
func (c *Core) flush(redirectPC uint64) {
	c.aluFU.Flush()
	c.mulFU.Flush()
	c.mul32FU.Flush()
	c.divFU.Flush()
	c.div32FU.Flush()
	c.fpALU1.Flush()
	c.fpALU2.Flush()
	c.fpALU3.Flush()
	c.fpFMA.Flush()
	c.dq.Flush()
	c.sb.Reset()
	c.fwd.ClearAll()

	// Every entry still allocated belongs to a squashed instruction.
	for i := 0; i < c.imapPool.Capacity(); i++ {
		if c.imapPool.Get(i).Status != imap.StatusFree {
			c.imapPool.Free(i)
		}
	}

	c.fetchCur = fetchLatch{}
	c.fetchNext = fetchLatch{}
	c.fetchState = fetchIdle
	c.fetchHandle = nil

	c.memState = memIdle
	c.memHandle = nil

	c.pc = redirectPC
}

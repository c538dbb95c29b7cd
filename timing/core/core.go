// Package core drives the cycle-accurate RV64IMF pipeline: a single-issue,
// in-order core built from the timing/* collaborators (scoreboard, imap,
// forward, dispatch, fu, branchpred, memctrl, mmu, cache) plus an
// instruction oracle that supplies architectural decode/execute semantics.
package core

import (
	"context"
	"fmt"

	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/insts"
	"github.com/dfinch/rvincore/timing/branchpred"
	"github.com/dfinch/rvincore/timing/cache"
	"github.com/dfinch/rvincore/timing/dispatch"
	"github.com/dfinch/rvincore/timing/forward"
	"github.com/dfinch/rvincore/timing/fu"
	"github.com/dfinch/rvincore/timing/imap"
	"github.com/dfinch/rvincore/timing/memctrl"
	"github.com/dfinch/rvincore/timing/mmu"
	"github.com/dfinch/rvincore/timing/scoreboard"
)

// Oracle is the instruction-semantics collaborator the core consults for
// decode and functional execution. emu.Emulator satisfies it.
type Oracle interface {
	DecodeBytes(raw []byte, pc uint64) *insts.Instruction
	ExecuteFunctional(inst *insts.Instruction, regFile *emu.RegFile, memory *emu.Memory) emu.StepResult
}

// ExceptionCause identifies why Run returned, mirroring emu.Cause so
// callers don't need to import emu just to inspect it.
type ExceptionCause = emu.Cause

// Params configures a Core at construction time. Every field recognized
// here is also a config.Load key (see the config package).
type Params struct {
	NumCPUStages int // 5 or 6; selects pcgen/fetch tick ordering

	NumALUStages     int
	NumMulStages     int
	NumMul32Stages   int
	NumDivStages     int
	NumDiv32Stages   int
	NumFPUALUStages  int
	NumFPUALU2Stages int
	NumFPUALU3Stages int
	NumFPUFMAStages  int

	// DivideLatencyMin/Max bound DIV/DIV32's operand-dependent latency.
	DivideLatencyMin int
	DivideLatencyMax int

	NumIMAPEntries    int
	DispatchQueueSize int

	ResetVector uint64

	BranchPredictor branchpred.Config
	MemCtrl         memctrl.Config
	MMU             mmu.Config
	ICache          cache.Config
	DCache          cache.Config

	// MaxCycles bounds Run; 0 means unbounded (the caller's context is
	// then the only way to stop a non-terminating program).
	MaxCycles uint64
}

// DefaultParams returns a 6-stage configuration with modest FU depths,
// sized for the default IMAP/dispatch/cache/memctrl/branchpred configs.
func DefaultParams() Params {
	return Params{
		NumCPUStages:      6,
		NumALUStages:      1,
		NumMulStages:      3,
		NumMul32Stages:    3,
		NumDivStages:      1,
		NumDiv32Stages:    1,
		NumFPUALUStages:   2,
		NumFPUALU2Stages:  2,
		NumFPUALU3Stages:  2,
		NumFPUFMAStages:   4,
		DivideLatencyMin:  10,
		DivideLatencyMax:  20,
		NumIMAPEntries:    32,
		DispatchQueueSize: 16,
		ResetVector:       0x8000_0000,
		BranchPredictor:   branchpred.DefaultConfig(),
		MemCtrl:           memctrl.DefaultConfig(),
		MMU:               mmu.DefaultConfig(),
		ICache:            cache.DefaultL1IConfig(),
		DCache:            cache.DefaultL1DConfig(),
	}
}

func (p Params) validate() error {
	if p.NumCPUStages != 5 && p.NumCPUStages != 6 {
		return fmt.Errorf("core: NumCPUStages must be 5 or 6, got %d", p.NumCPUStages)
	}
	if p.DispatchQueueSize < 1 {
		return fmt.Errorf("core: DispatchQueueSize must be >= 1, got %d", p.DispatchQueueSize)
	}
	if p.NumIMAPEntries < 2*p.DispatchQueueSize {
		return fmt.Errorf("core: NumIMAPEntries (%d) must be >= 2x DispatchQueueSize (%d)",
			p.NumIMAPEntries, p.DispatchQueueSize)
	}
	stages := map[string]int{
		"NumALUStages": p.NumALUStages, "NumMulStages": p.NumMulStages,
		"NumMul32Stages": p.NumMul32Stages, "NumDivStages": p.NumDivStages,
		"NumDiv32Stages": p.NumDiv32Stages, "NumFPUALUStages": p.NumFPUALUStages,
		"NumFPUALU2Stages": p.NumFPUALU2Stages, "NumFPUALU3Stages": p.NumFPUALU3Stages,
		"NumFPUFMAStages": p.NumFPUFMAStages,
	}
	for name, v := range stages {
		if v < 1 {
			return fmt.Errorf("core: %s must be >= 1, got %d", name, v)
		}
	}
	return nil
}

// Stats reports cumulative simulation counters, returned at any point
// during or after a Run.
type Stats struct {
	Cycles            uint64
	Instructions      uint64
	Flushes           uint64
	StallCycles       uint64
	BranchMispredicts uint64

	ClassCounts     map[insts.Class]uint64
	PrivilegeCounts map[emu.Privilege]uint64
}

func newStats() Stats {
	return Stats{
		ClassCounts:     make(map[insts.Class]uint64),
		PrivilegeCounts: make(map[emu.Privilege]uint64),
	}
}

// fetchLatch and memLatch are the double-buffered stage registers
// the driver advances synchronously at the end of every tick, the way the
// ARM64 teacher pipeline advances its IFID/IDEX/EXMEM/MEMWB registers.
type fetchLatch struct {
	HasData bool
	IMAPIdx int
}

type memLatch struct {
	HasData bool
	IMAPIdx int
}

// fetchPhase names where an in-flight, possibly multi-cycle fetch attempt
// currently stands.
type fetchPhase int

const (
	fetchIdle fetchPhase = iota
	fetchBubble           // 6-stage only: one cycle between pcgen and the TLB lookup
	fetchTranslating
	fetchAccessing
)

type memPhase int

const (
	memIdle memPhase = iota
	memTranslating
	memAccessing
)

// Core is a single in-order RV64IMF pipeline core.
type Core struct {
	params Params
	oracle Oracle

	regFile *emu.RegFile
	memory  *emu.Memory

	imapPool *imap.Map
	sb       *scoreboard.Scoreboard
	fwd      *forward.Network
	dq       *dispatch.Queue
	bp       *branchpred.Predictor

	ctrl   *memctrl.Controller
	dctrl  *memctrl.Controller
	tlb    *mmu.MMU
	icache *cache.Cache
	dcache *cache.Cache

	aluFU   *fu.Pipeline
	mulFU   *fu.Pipeline
	mul32FU *fu.Pipeline
	divFU   *fu.VariableUnit
	div32FU *fu.VariableUnit
	fpALU1  *fu.Pipeline
	fpALU2  *fu.Pipeline
	fpALU3  *fu.Pipeline
	fpFMA   *fu.Pipeline

	seq uint64 // next dispatch sequence number

	pc uint64 // next architectural fetch address

	fetchNext fetchLatch
	fetchCur  fetchLatch

	memNext memLatch
	memCur  memLatch

	// In-flight fetch-stage state, carried across ticks while a multi-cycle
	// translate/access is outstanding.
	fetchState     fetchPhase
	fetchAddr      uint64
	fetchPAddr     uint64
	fetchHandle    *mmu.Handle
	fetchRemaining uint64
	fetchRaw       [4]byte

	// In-flight memory-stage state for the dispatch-queue head currently
	// being serviced (loads/stores/atomics only).
	memState     memPhase
	memHandle    *mmu.Handle
	memPAddr     uint64
	memRemaining uint64

	exited        bool
	exitCode      int64
	pendingExc    *emu.Exception
	timedOut      bool
	stats         Stats
}

// New creates a Core wired to the given oracle and architectural state.
// regFile and memory are the Core's own committed architectural state;
// the oracle must have been constructed to operate on the same pointers
// (via emu.WithRegFile/emu.WithMemory) so that syscalls it executes at
// commit time see truly-committed register and memory contents.
func New(params Params, oracle Oracle, regFile *emu.RegFile, memory *emu.Memory) (*Core, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	c := &Core{
		params:  params,
		oracle:  oracle,
		regFile: regFile,
		memory:  memory,

		imapPool: imap.New(params.NumIMAPEntries),
		sb:       scoreboard.New(),
		fwd:      forward.New(),
		dq:       dispatch.New(params.DispatchQueueSize),
		bp:       branchpred.New(params.BranchPredictor),

		aluFU:   fu.New(params.NumALUStages),
		mulFU:   fu.New(params.NumMulStages),
		mul32FU: fu.New(params.NumMul32Stages),
		divFU:   fu.NewVariableUnit(),
		div32FU: fu.NewVariableUnit(),
		fpALU1:  fu.New(params.NumFPUALUStages),
		fpALU2:  fu.New(params.NumFPUALU2Stages),
		fpALU3:  fu.New(params.NumFPUALU3Stages),
		fpFMA:   fu.New(params.NumFPUFMAStages),

		stats: newStats(),
	}

	c.ctrl = memctrl.New(params.MemCtrl, memory)
	c.tlb = mmu.New(params.MMU, c.ctrl)
	c.icache = cache.New(params.ICache, cache.NewMemoryBacking(memory))

	// The data cache's backing store is a second, private memctrl.Controller
	// rather than c.ctrl: c.ctrl is ticked exactly once per core cycle, by
	// c.tlb.Tick() above, to pace the MMU's page-table-walk timing against
	// real elapsed cycles. ControllerBacking instead drains its controller
	// to completion synchronously inside a single Read/Write call, which
	// would desynchronize c.ctrl's queue occupancy from real cycle count if
	// the two were shared. A dedicated controller keeps that synchronous
	// drain self-contained while still letting a D-cache miss pay DRAM
	// queueing-aware latency instead of the flat Config.MissLatency.
	c.dctrl = memctrl.New(params.MemCtrl, memory)
	c.dcache = cache.New(params.DCache, cache.NewControllerBacking(c.dctrl))

	c.Reset()
	return c, nil
}

// Stats returns a snapshot of cumulative simulation counters.
func (c *Core) Stats() Stats { return c.stats }

// Reset flushes every latch, FU pipeline, the dispatch queue and
// forwarding buses, resets the scoreboard to all-ready, and seeds pcgen
// with the reset vector.
func (c *Core) Reset() {
	c.imapPool = imap.New(c.params.NumIMAPEntries)
	c.sb.Reset()
	c.fwd.ClearAll()
	c.dq.Flush()

	c.aluFU.Flush()
	c.mulFU.Flush()
	c.mul32FU.Flush()
	c.divFU.Flush()
	c.div32FU.Flush()
	c.fpALU1.Flush()
	c.fpALU2.Flush()
	c.fpALU3.Flush()
	c.fpFMA.Flush()

	c.seq = 0
	c.pc = c.params.ResetVector
	c.regFile.PC = c.params.ResetVector

	c.fetchCur = fetchLatch{}
	c.fetchNext = fetchLatch{}
	c.memCur = memLatch{}
	c.memNext = memLatch{}
	c.fetchState = fetchIdle
	c.memState = memIdle

	c.exited = false
	c.exitCode = 0
	c.pendingExc = nil
	c.timedOut = false

	c.stats = newStats()
}

// Free drops the Core's owned collaborators so the GC can reclaim them,
// matching the collaborator contract's Init/Free symmetry even though Go
// has no manual deallocation to perform.
func (c *Core) Free() {
	c.imapPool = nil
	c.sb = nil
	c.fwd = nil
	c.dq = nil
	c.bp = nil
	c.ctrl = nil
	c.dctrl = nil
	c.tlb = nil
	c.icache = nil
	c.dcache = nil
}

// Run ticks the core until a simulated exception drains, the cycle budget
// (if any) expires, or ctx is cancelled.
func (c *Core) Run(ctx context.Context) (ExceptionCause, error) {
	for {
		select {
		case <-ctx.Done():
			return emu.CauseNone, ctx.Err()
		default:
		}

		c.tick()

		if c.exited {
			return emu.CauseNone, nil
		}
		if c.timedOut {
			return emu.CauseNone, nil
		}
		if c.pendingExc != nil && c.drained() {
			return c.pendingExc.Cause, nil
		}
		if c.params.MaxCycles != 0 && c.stats.Cycles >= c.params.MaxCycles {
			return emu.CauseNone, nil
		}
	}
}

// drained reports whether every latch and FU pipeline is empty, used to
// decide when an exception may be surfaced to Run's caller.
func (c *Core) drained() bool {
	return !c.fetchCur.HasData && !c.fetchNext.HasData &&
		!c.memCur.HasData && !c.memNext.HasData &&
		c.fetchState == fetchIdle && c.memState == memIdle &&
		c.dq.Empty() &&
		c.aluFU.Idle() && c.mulFU.Idle() && c.mul32FU.Idle() &&
		!c.divFU.Busy() && !c.div32FU.Busy() &&
		c.fpALU1.Idle() && c.fpALU2.Idle() && c.fpALU3.Idle() && c.fpFMA.Idle()
}

func (c *Core) tick() {
	c.tlb.Tick()

	c.doCommit()
	c.doMemory()
	c.doExecuteAll()
	decodeStalled := c.doDecode()
	if decodeStalled {
		c.stats.StallCycles++
	}
	c.fwd.ClearAll()

	// The 6-stage variant keeps pcgen and fetch as distinct stages: a new
	// fetch attempt spends one bubble cycle latched in fetchBubble before
	// the TLB lookup starts. The 5-stage variant folds pcgen into fetch,
	// so a fresh attempt goes straight from idle to translating. Both
	// variants are driven by the same doFetch; the distinction lives in
	// its own idle->{bubble,translating} transition, keyed off
	// params.NumCPUStages (see doFetch).
	c.doFetch(decodeStalled)

	c.fetchCur = c.fetchNext
	c.memCur = c.memNext

	c.stats.Cycles++
}

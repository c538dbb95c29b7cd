// Package imap implements the instruction descriptor pool: a pre-allocated,
// fixed-capacity table of in-flight instruction slots that every pipeline
// stage references by index instead of passing the decoded instruction by
// value from stage to stage.
package imap

import (
	"fmt"

	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/insts"
)

// Status is the lifecycle state of an IMAP entry.
type Status uint8

const (
	StatusFree Status = iota
	StatusAllocated
	StatusInFU
	StatusInDispatch
	StatusCommitted
)

// Entry is one in-flight instruction's descriptor: the decoded instruction
// plus the bookkeeping the timing stages need to track it to commit.
type Entry struct {
	Status Status
	Inst   *insts.Instruction
	Seq    uint64 // dispatch sequence number, assigned at decode
	PC     uint64

	// Raw is the instruction word fetch read from the cache, before decode
	// has turned it into Inst.
	Raw uint32

	// PredictedTaken/PredictedTarget hold the fetch-time branch prediction,
	// checked against the actual outcome (ActualNextPC) at commit.
	PredictedTaken  bool
	PredictedTarget uint64
	ActualNextPC    uint64

	// Rs1Val/Rs2Val/Rs3Val (and the FP equivalents) are the operand values
	// decode resolved from the register file or a forwarding-bus snoop,
	// stashed here because neither source survives to the functional
	// unit's completion cycle: the register file may have been overwritten
	// by an intervening instruction, and a forwarding bus is only valid
	// for the one tick it was broadcast on.
	Rs1Val, Rs2Val, Rs3Val    uint64
	Rs1FVal, Rs2FVal, Rs3FVal uint32

	// Result holds the computed value once the instruction's functional
	// unit (or, for a memory op, the memory stage) has produced it,
	// pending write-back at commit.
	Result   uint64
	FPResult uint32

	// MemAddr is the effective address computed when a load/store/atomic
	// left its functional unit, consulted by the memory stage's alignment
	// check and translate call.
	MemAddr uint64

	// Fault is set by decode (an undecodable word) or the memory stage (a
	// misaligned access) to short-circuit normal write-back: commit raises
	// it as the drain-triggering exception instead of retiring a result.
	// The zero value, emu.CauseNone, means the instruction completed
	// normally.
	Fault emu.Cause
}

// Map is the fixed-capacity instruction descriptor pool.
type Map struct {
	entries []Entry
	free    []int // indices of free slots, used as a stack
}

// New creates a Map with the given capacity. The capacity must be at least
// twice the dispatch queue depth it feeds (timing/core checks this when it
// validates its Params), so that in-flight instructions rarely starve the
// pool while older ones are still draining through dispatch.
func New(capacity int) *Map {
	m := &Map{
		entries: make([]Entry, capacity),
		free:    make([]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		m.free[i] = capacity - 1 - i
	}
	return m
}

// Capacity returns the total number of slots in the pool.
func (m *Map) Capacity() int { return len(m.entries) }

// Alloc reserves a free slot for a newly fetched instruction. It panics if
// the pool is exhausted, since that indicates a capacity invariant
// violation: the caller (fetch) checks for a free slot and stalls while
// the pool is full rather than calling Alloc.
func (m *Map) Alloc(inst *insts.Instruction, seq uint64) int {
	if len(m.free) == 0 {
		panic(fmt.Sprintf("imap: pool of %d entries exhausted", len(m.entries)))
	}
	idx := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.entries[idx] = Entry{Status: StatusAllocated, Inst: inst, Seq: seq}
	return idx
}

// Free releases a slot back to the pool once its instruction has committed
// or been squashed by a misprediction/exception flush.
func (m *Map) Free(idx int) {
	m.entries[idx] = Entry{}
	m.free = append(m.free, idx)
}

// Get returns a pointer to the entry at idx for in-place mutation by the
// stage currently holding it.
func (m *Map) Get(idx int) *Entry {
	return &m.entries[idx]
}

// InUse reports how many slots are currently allocated.
func (m *Map) InUse() int {
	return len(m.entries) - len(m.free)
}

// Package mmu implements the address-translation front-end: a small
// fully-associative translation cache standing in for a TLB, backed by the
// queueing-aware timing/memctrl memory controller on a miss. Translation
// itself is an identity map (virtual address == physical address) with a
// configurable page size — no page-table walker is modeled, only the
// timing of a translation-cache hit or miss.
package mmu

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/dfinch/rvincore/timing/memctrl"
)

// AccessKind distinguishes a load from a store translation request.
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
)

// Config sizes the translation cache.
type Config struct {
	Entries    int // number of translation entries (fully associative)
	PageSize   int // bytes per page
	HitLatency uint64
}

// DefaultConfig returns a 64-entry, 4KB-page translation cache.
func DefaultConfig() Config {
	return Config{
		Entries:    64,
		PageSize:   4096,
		HitLatency: 1,
	}
}

// Handle identifies an outstanding translation-cache fill. Its completion
// flag is set by the memory controller once the fill's latency elapses, not
// synchronously by Translate.
type Handle struct {
	id   int
	done bool
}

// Done reports whether the fill this handle names has completed.
func (h *Handle) Done() bool { return h.done }

// TranslateResult is the outcome of a Translate call: either an immediate
// hit, or a miss that must be polled via Tick until its Handle completes.
type TranslateResult struct {
	Hit     bool
	PAddr   uint64
	Latency uint64
	Handle  *Handle
}

// MMU is the address-translation front-end.
type MMU struct {
	cfg Config

	directory *akitacache.DirectoryImpl

	ctrl *memctrl.Controller

	pending map[uint64]*Handle // block-aligned vaddr -> in-flight fill
	byID    map[int]uint64     // memctrl request id -> block-aligned vaddr
}

// New creates an MMU whose translation-cache misses are serviced by ctrl.
func New(cfg Config, ctrl *memctrl.Controller) *MMU {
	return &MMU{
		cfg: cfg,
		directory: akitacache.NewDirectory(
			1, cfg.Entries, cfg.PageSize, akitacache.NewLRUVictimFinder(),
		),
		ctrl:    ctrl,
		pending: make(map[uint64]*Handle),
		byID:    make(map[int]uint64),
	}
}

func (m *MMU) pageAddr(vaddr uint64) uint64 {
	return (vaddr / uint64(m.cfg.PageSize)) * uint64(m.cfg.PageSize)
}

// Translate looks up vaddr in the translation cache. On a hit it returns
// the (identity-mapped) physical address immediately with the configured
// hit latency. On a miss it admits a fill request to the memory controller
// and returns a Handle the caller must poll (via Handle.Done, which Tick
// sets) before retrying the translation. If the controller's front-end
// queue is full, the miss carries a nil Handle and the caller just retries.
func (m *MMU) Translate(vaddr uint64, size int, rw AccessKind) TranslateResult {
	pageAddr := m.pageAddr(vaddr)

	block := m.directory.Lookup(0, pageAddr)
	if block != nil && block.IsValid {
		m.directory.Visit(block)
		return TranslateResult{Hit: true, PAddr: vaddr, Latency: m.cfg.HitLatency}
	}

	if h, ok := m.pending[pageAddr]; ok {
		return TranslateResult{Hit: false, Handle: h}
	}

	id, ok := m.ctrl.Enqueue(pageAddr, false, nil)
	if !ok {
		// Front-end queue is full; caller retries Translate next cycle.
		return TranslateResult{Hit: false, Handle: nil}
	}

	h := &Handle{id: id}
	m.pending[pageAddr] = h
	m.byID[id] = pageAddr
	return TranslateResult{Hit: false, Handle: h}
}

// Tick advances the backing memory controller by one cycle and installs
// any translation-cache fills that completed this cycle, flagging their
// Handles done. Must be called once per core tick regardless of whether a
// translation miss is currently outstanding, since it is what advances the
// controller by one cycle and keeps its clock in step with the core's.
func (m *MMU) Tick() {
	for _, c := range m.ctrl.Tick() {
		pageAddr, ok := m.byID[c.ID]
		if !ok {
			continue
		}
		delete(m.byID, c.ID)

		victim := m.directory.FindVictim(pageAddr)
		if victim != nil {
			victim.Tag = pageAddr
			victim.IsValid = true
			victim.IsDirty = false
			m.directory.Visit(victim)
		}

		if h, ok := m.pending[pageAddr]; ok {
			h.done = true
			delete(m.pending, pageAddr)
		}
	}
}

// Reset clears all translation-cache state and outstanding fills.
func (m *MMU) Reset() {
	m.directory.Reset()
	m.pending = make(map[uint64]*Handle)
	m.byID = make(map[int]uint64)
}

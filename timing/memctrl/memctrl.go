// Package memctrl models a DRAM-backed memory controller sitting behind the
// last-level cache: a bounded front-end admission queue and a bounded
// back-end in-service queue whose completion latency grows with queueing
// delay, standing in for a timing-accurate DRAM model (row buffer hits,
// bank conflicts, refresh) without simulating DRAM internals directly.
package memctrl

import (
	"fmt"
	"io"

	"github.com/dfinch/rvincore/emu"
)

// Request is one outstanding memory-controller transaction.
type Request struct {
	Addr    uint64
	IsWrite bool
	Data    []byte // write payload, or nil for a read

	// id is the handle Enqueue returned for this request, letting the
	// caller correlate a completed request with the access that issued it.
	id int

	remaining int // cycles left in the back-end queue
}

// Completed is a Request that has finished its DRAM-side latency.
type Completed struct {
	ID   int
	Addr uint64
	Data []byte
}

// Config sizes the controller's queues and timing.
type Config struct {
	FrontendDepth int
	BackendDepth  int
	BurstSize     int // bytes per burst, the unit backing-store accesses are rounded to
	BaseLatency   int // fixed cycles every request pays once admitted to the backend
	QueueingPenalty int // extra cycles added per backend occupant ahead of a request
}

// DefaultConfig returns DDR4-like defaults scaled to cycle counts, not
// nanoseconds, matching the rest of this simulator's cycle-accurate model.
func DefaultConfig() Config {
	return Config{
		FrontendDepth:   16,
		BackendDepth:    8,
		BurstSize:       64,
		BaseLatency:     100,
		QueueingPenalty: 10,
	}
}

// Controller is a per-core memory controller instance. Each Core owns its
// own instances (one ticked through its MMU, one behind its data cache);
// there is no process-wide singleton, so independent cores never contend
// over a simulator-internal shared controller.
type Controller struct {
	cfg Config

	frontend []Request
	backend  []Request

	backing BackingStore

	nextID int

	completed []Completed

	stats Stats
}

// BackingStore is the byte-addressable store a Controller ultimately reads
// from or writes to once a request's latency has elapsed.
type BackingStore interface {
	Read8(addr uint64) uint8
	Write8(addr uint64, value uint8)
}

// Stats accumulates controller-level counters for the end-of-run report.
type Stats struct {
	Accepted       uint64
	Rejected       uint64
	Completed      uint64
	TotalLatency   uint64
}

// New creates a Controller backed by backing, which must be a concrete
// *emu.Memory or any type satisfying BackingStore (the memory hierarchy
// tests use a fake for isolation).
func New(cfg Config, backing BackingStore) *Controller {
	return &Controller{
		cfg:      cfg,
		frontend: make([]Request, 0, cfg.FrontendDepth),
		backend:  make([]Request, 0, cfg.BackendDepth),
		backing:  backing,
	}
}

// NewWithMemory is a convenience constructor for the common case of a
// controller backed directly by an emu.Memory.
func NewWithMemory(cfg Config, mem *emu.Memory) *Controller {
	return New(cfg, mem)
}

// Accept reports whether the controller has room in its front-end queue
// for a request to addr this cycle. addr is accepted for interface
// symmetry with the collaborator contract; admission in this model depends
// only on queue occupancy, not address.
func (c *Controller) Accept(addr uint64) bool {
	return len(c.frontend) < c.cfg.FrontendDepth
}

// Enqueue admits a request into the front-end queue, returning a handle
// and ok=true on success. ok is false (and the handle invalid) if the
// caller didn't check Accept first and the queue has no room; it never
// panics, since a fetch/memory stage may probe speculatively.
func (c *Controller) Enqueue(addr uint64, isWrite bool, data []byte) (int, bool) {
	if !c.Accept(addr) {
		c.stats.Rejected++
		return 0, false
	}
	id := c.nextID
	c.nextID++
	c.frontend = append(c.frontend, Request{Addr: addr, IsWrite: isWrite, Data: data, id: id})
	c.stats.Accepted++
	return id, true
}

// BurstSize returns the controller's burst granularity in bytes.
func (c *Controller) BurstSize() int { return c.cfg.BurstSize }

// Tick advances the controller by one cycle: promotes front-end requests
// into the back-end queue as space allows, counts down in-service
// requests, and drains completions into memory (for writes) or prepares
// read data (for reads). Newly completed requests are returned.
func (c *Controller) Tick() []Completed {
	c.completed = c.completed[:0]

	for len(c.frontend) > 0 && len(c.backend) < c.cfg.BackendDepth {
		req := c.frontend[0]
		c.frontend = c.frontend[1:]
		req.remaining = c.cfg.BaseLatency + len(c.backend)*c.cfg.QueueingPenalty
		c.backend = append(c.backend, req)
	}

	remaining := c.backend[:0]
	for _, req := range c.backend {
		req.remaining--
		if req.remaining > 0 {
			remaining = append(remaining, req)
			continue
		}
		c.drain(req)
	}
	c.backend = remaining

	c.stats.Completed += uint64(len(c.completed))
	return c.completed
}

func (c *Controller) drain(req Request) {
	if req.IsWrite {
		for i, b := range req.Data {
			c.backing.Write8(req.Addr+uint64(i), b)
		}
		c.completed = append(c.completed, Completed{ID: req.id, Addr: req.Addr})
		return
	}

	data := make([]byte, c.cfg.BurstSize)
	for i := range data {
		data[i] = c.backing.Read8(req.Addr + uint64(i))
	}
	c.completed = append(c.completed, Completed{ID: req.id, Addr: req.Addr, Data: data})
}

// Pending reports the total number of requests in flight (front-end plus
// back-end); PrintStats includes it in its summary.
func (c *Controller) Pending() int {
	return len(c.frontend) + len(c.backend)
}

// Stats returns the controller's accumulated statistics.
func (c *Controller) Stats() Stats { return c.stats }

// PrintStats renders a human-readable summary to w, matching the
// print_stats collaborator contract.
func (c *Controller) PrintStats(w io.Writer) {
	s := c.stats
	fmt.Fprintf(w,
		"memctrl: accepted=%d rejected=%d completed=%d pending=%d\n",
		s.Accepted, s.Rejected, s.Completed, c.Pending(),
	)
}

// Package cache provides cache hierarchy modeling using Akita cache components.
package cache

import (
	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/timing/memctrl"
)

// MemoryBacking wraps emu.Memory as a BackingStore, bypassing any queueing
// model — used by tests and by timing/core's instruction cache, whose
// misses therefore pay only Config.MissLatency.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a new MemoryBacking adapter.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Read fetches data from the backing memory.
func (m *MemoryBacking) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = m.memory.Read8(addr + uint64(i))
	}
	return data
}

// Write stores data to the backing memory.
func (m *MemoryBacking) Write(addr uint64, data []byte) {
	for i, b := range data {
		m.memory.Write8(addr+uint64(i), b)
	}
}

// ControllerBacking wraps a memctrl.Controller as a BackingStore, draining
// it synchronously on every access so a single call to Read or Write
// completes one full round trip through the controller's queueing model.
// This is used when a Core is not yet pipelining further cache misses
// behind an outstanding one — acceptable for the single in-flight miss
// this simulator's in-order memory stage allows.
//
// Each Read/Write also records how many controller ticks the drain took,
// retrievable via LastLatency, so a Cache miss can charge real DRAM
// queueing delay instead of a fixed Config.MissLatency.
type ControllerBacking struct {
	ctrl        *memctrl.Controller
	lastLatency uint64
}

// NewControllerBacking creates a ControllerBacking adapter.
func NewControllerBacking(ctrl *memctrl.Controller) *ControllerBacking {
	return &ControllerBacking{ctrl: ctrl}
}

// LastLatency returns the number of controller ticks the most recent
// Read or Write consumed, satisfying cache.LatencyReporter.
func (b *ControllerBacking) LastLatency() uint64 {
	return b.lastLatency
}

// Read blocks until the controller completes a burst read covering addr.
func (b *ControllerBacking) Read(addr uint64, size int) []byte {
	var ticks uint64
	id, ok := b.ctrl.Enqueue(addr, false, nil)
	for !ok {
		b.ctrl.Tick()
		ticks++
		id, ok = b.ctrl.Enqueue(addr, false, nil)
	}
	for {
		completed := b.ctrl.Tick()
		ticks++
		for _, c := range completed {
			if c.ID == id {
				b.lastLatency = ticks
				if len(c.Data) >= size {
					return c.Data[:size]
				}
				return c.Data
			}
		}
	}
}

// Write blocks until the controller completes the write-back.
func (b *ControllerBacking) Write(addr uint64, data []byte) {
	var ticks uint64
	id, ok := b.ctrl.Enqueue(addr, true, data)
	for !ok {
		b.ctrl.Tick()
		ticks++
		id, ok = b.ctrl.Enqueue(addr, true, data)
	}
	for {
		completed := b.ctrl.Tick()
		ticks++
		for _, c := range completed {
			if c.ID == id {
				b.lastLatency = ticks
				return
			}
		}
	}
}

// Package forward implements the single-cycle forwarding (bypass) network:
// one named bus per functional-unit kind, broadcast the cycle a result is
// produced and snooped the same cycle by any stage waiting on that
// register, so a dependent instruction need not wait for the result to
// reach the register file at commit.
package forward

import "github.com/dfinch/rvincore/insts"

// Bus identifies one forwarding bus. Each functional-unit kind that can
// produce a register result gets its own bus, matching insts.FUKind.
type Bus uint8

const (
	BusALU Bus = iota
	BusMul
	BusMul32
	BusDiv
	BusDiv32
	BusFPUALU
	BusFPUALU2
	BusFPUALU3
	BusFPUFMA
	BusMemory
	numBuses
)

// BusForFU maps a functional-unit kind to the forwarding bus it broadcasts
// its result on.
func BusForFU(fu insts.FUKind) Bus {
	switch fu {
	case insts.FUALU:
		return BusALU
	case insts.FUMul:
		return BusMul
	case insts.FUMul32:
		return BusMul32
	case insts.FUDiv:
		return BusDiv
	case insts.FUDiv32:
		return BusDiv32
	case insts.FUFPUALU:
		return BusFPUALU
	case insts.FUFPUALU2:
		return BusFPUALU2
	case insts.FUFPUALU3:
		return BusFPUALU3
	case insts.FUFPUFMA:
		return BusFPUFMA
	default:
		return BusALU
	}
}

// Value is one cycle's worth of data carried on a bus.
type Value struct {
	Valid  bool
	Reg    uint8
	FP     bool
	Result uint64 // integer result, or the float32 bit pattern zero-extended
}

// Network holds the current cycle's broadcast value for every bus. It is
// cleared at the start of each cycle (after the previous cycle's snoopers
// have had a chance to read it) and refilled as functional units and the
// memory stage produce results this cycle.
type Network struct {
	buses [numBuses]Value
}

// New creates an empty forwarding network.
func New() *Network {
	return &Network{}
}

// Broadcast publishes a result on the named bus for this cycle.
func (n *Network) Broadcast(bus Bus, reg uint8, fp bool, result uint64) {
	n.buses[bus] = Value{Valid: true, Reg: reg, FP: fp, Result: result}
}

// Snoop looks for a value for the given register on any bus, returning the
// first match in bus order (BusALU first, BusMemory last). Forwarding buses
// are independent (at most one functional unit per bus completes per
// cycle), and two buses never carry the same register in the same cycle
// because decode does not issue over a destination that still has a writer
// in flight, so only one writer per register is ever in flight at a time.
func (n *Network) Snoop(reg uint8, fp bool) (Value, bool) {
	if reg == 0 && !fp {
		return Value{}, false
	}
	for _, v := range n.buses {
		if v.Valid && v.Reg == reg && v.FP == fp {
			return v, true
		}
	}
	return Value{}, false
}

// ClearAll resets every bus to empty, called once per cycle before stages
// broadcast this cycle's results.
func (n *Network) ClearAll() {
	for i := range n.buses {
		n.buses[i] = Value{}
	}
}

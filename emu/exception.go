package emu

// Cause identifies why an instruction trapped instead of completing
// normally, for the subset of RISC-V exception causes this emulator models.
// The numeric values are this package's own enumeration and are not the
// privileged-spec mcause codes.
type Cause uint8

const (
	CauseNone Cause = iota
	CauseIllegalInstruction
	CauseBreakpoint
	CauseEcallFromU
	CauseEcallFromM
)

// Exception carries the information the commit stage needs to drain the
// pipeline and redirect the PC on a trap.
type Exception struct {
	Cause Cause
	PC    uint64 // faulting instruction's PC
	Tval  uint64 // trap value (e.g. the illegal instruction word)
}

// Privilege is the current privilege level. This emulator only
// distinguishes machine and user mode; supervisor mode is out of scope.
type Privilege uint8

const (
	PrivilegeUser Privilege = iota
	PrivilegeMachine
)

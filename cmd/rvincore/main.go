// Package main provides the entry point for rvincore.
// rvincore is a cycle-accurate in-order RV64IMF pipeline simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dfinch/rvincore/config"
	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/loader"
	"github.com/dfinch/rvincore/timing/core"
)

var (
	timing     = flag.Bool("timing", false, "Enable cycle-accurate timing simulation mode")
	configPath = flag.String("config", "", "Path to timing configuration YAML file")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rvincore [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%x\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	var exitCode int64
	if *timing {
		exitCode = runTiming(prog, programPath)
	} else {
		exitCode = runEmulation(prog, programPath)
	}
	os.Exit(int(exitCode))
}

// runEmulation runs the program in functional-only mode: no cycle counting,
// just architecturally correct execution to termination.
func runEmulation(prog *loader.Program, programPath string) int64 {
	memory := emu.NewMemory()
	loader.LoadInto(memory, prog)

	regFile := &emu.RegFile{}
	regFile.WriteReg(2, prog.InitialSP)

	emulator := emu.NewEmulator(emu.WithRegFile(regFile), emu.WithMemory(memory))
	emulator.SetPC(prog.EntryPoint)
	exitCode := emulator.Run()

	if *verbose {
		fmt.Printf("\nProgram: %s\n", programPath)
		fmt.Printf("Exit code: %d\n", exitCode)
		fmt.Printf("Instructions executed: %d\n", emulator.InstructionCount())
	}

	return exitCode
}

// runTiming runs the program through the cycle-accurate pipeline and prints
// a stats breakdown once it drains.
func runTiming(prog *loader.Program, programPath string) int64 {
	params := core.DefaultParams()
	if *configPath != "" {
		var err error
		params, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
	}
	params.ResetVector = prog.EntryPoint

	memory := emu.NewMemory()
	loader.LoadInto(memory, prog)

	regFile := &emu.RegFile{}
	regFile.WriteReg(2, prog.InitialSP)

	oracle := emu.NewEmulator(emu.WithRegFile(regFile), emu.WithMemory(memory))

	c, err := core.New(params, oracle, regFile, memory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring core: %v\n", err)
		os.Exit(1)
	}

	cause, err := c.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running core: %v\n", err)
		os.Exit(1)
	}

	stats := c.Stats()
	totalCycles := stats.Cycles
	if totalCycles == 0 {
		totalCycles = 1
	}

	fmt.Printf("\n")
	fmt.Printf("Program: %s\n", programPath)
	if cause != emu.CauseNone {
		fmt.Printf("Exception: %v at drain\n", cause)
	}
	fmt.Printf("Total Instructions: %d\n", stats.Instructions)
	fmt.Printf("Total Cycles: %d\n", stats.Cycles)
	fmt.Printf("CPI: %.2f\n", float64(stats.Cycles)/float64(max64(stats.Instructions, 1)))
	fmt.Printf("\n")
	fmt.Printf("Pipeline Events:\n")
	fmt.Printf("  Stall cycles:       %6d (%5.1f%%)\n",
		stats.StallCycles, 100.0*float64(stats.StallCycles)/float64(totalCycles))
	fmt.Printf("  Branch mispredicts: %6d\n", stats.BranchMispredicts)
	fmt.Printf("  Flushes:            %6d\n", stats.Flushes)
	fmt.Printf("\n")
	fmt.Printf("Instruction class breakdown:\n")
	for class, count := range stats.ClassCounts {
		fmt.Printf("  %-12v %6d\n", class, count)
	}

	return 0
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

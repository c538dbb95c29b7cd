// Package main provides a profiling wrapper for rvincore to identify
// performance bottlenecks in the functional emulator and the timing core.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/dfinch/rvincore/config"
	"github.com/dfinch/rvincore/emu"
	"github.com/dfinch/rvincore/loader"
	"github.com/dfinch/rvincore/timing/core"
)

var (
	timing      = flag.Bool("timing", false, "Enable cycle-accurate timing simulation mode")
	configPath  = flag.String("config", "", "Path to timing configuration YAML file")
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	instruction = flag.Int("max-instr", 1000000, "max instructions to execute (0 = unlimited, emulation mode only)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Entry point: 0x%x\n", prog.EntryPoint)

	start := time.Now()

	var exitCode int64
	var instrCount uint64
	if *timing {
		exitCode, instrCount = runTimingProfile(prog)
	} else {
		exitCode, instrCount = runEmulationProfile(prog)
	}

	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Exit code: %d\n", exitCode)
	fmt.Printf("Instructions executed: %d\n", instrCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
}

// runEmulationProfile runs the program in functional-only mode with profiling.
func runEmulationProfile(prog *loader.Program) (int64, uint64) {
	memory := emu.NewMemory()
	loader.LoadInto(memory, prog)

	regFile := &emu.RegFile{}
	regFile.WriteReg(2, prog.InitialSP)

	opts := []emu.EmulatorOption{
		emu.WithRegFile(regFile),
		emu.WithMemory(memory),
	}
	if *instruction > 0 {
		opts = append(opts, emu.WithMaxInstructions(uint64(*instruction)))
	}

	emulator := emu.NewEmulator(opts...)
	emulator.SetPC(prog.EntryPoint)
	exitCode := emulator.Run()

	return exitCode, emulator.InstructionCount()
}

// runTimingProfile runs the program through the cycle-accurate pipeline with
// profiling, bounded by -duration via a context deadline.
func runTimingProfile(prog *loader.Program) (int64, uint64) {
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

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	_, err = c.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nTimed out after %v - stopping execution\n", *duration)
	}

	stats := c.Stats()
	return 0, stats.Instructions
}

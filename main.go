// Package main provides the entry point for rvincore.
// rvincore is a cycle-accurate in-order RV64IMF pipeline simulator built on
// the timing/* packages in this module.
//
// For the full CLI, use: go run ./cmd/rvincore
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvincore - cycle-accurate RV64IMF pipeline simulator")
	fmt.Println("")
	fmt.Println("Usage: rvincore [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -timing    Enable cycle-accurate timing simulation mode")
	fmt.Println("  -config    Path to timing configuration YAML file")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvincore' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvincore' instead.")
	}
}

// Package main provides the entry point for difftest.
// difftest checks a RISC-V design under test against a reference emulator
// instruction by instruction.
//
// For the full CLI, use: go run ./cmd/difftest
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("difftest - RISC-V differential testing")
	fmt.Println("")
	fmt.Println("Usage: difftest [options] [program.elf|image.bin]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config     Path to difftest configuration JSON file")
	fmt.Println("  -timing     Path to DUT timing configuration JSON file")
	fmt.Println("  -cores      Number of cores")
	fmt.Println("  -runahead   Validate run-ahead execution")
	fmt.Println("  -predict    Follow a branch predictor during run-ahead")
	fmt.Println("  -trace      Print every confirmed commit")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/difftest' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/difftest' instead.")
	}
}

// Command mkfs formats a fresh disk image for the fsys file system,
// grounded on biscuit's mkfs/mkfs.go: plain os.Args parsing, no flag
// package, usage printed and a nonzero exit on misuse.
package main

import (
	"fmt"
	"os"

	"cowfs/internal/fsys"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Printf("Usage: mkfs <image>\n")
		os.Exit(1)
	}

	image := os.Args[1]
	if err := fsys.MakeFS(image); err != nil {
		fmt.Printf("mkfs: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	_ "time/tzdata"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "iteration-report: %v\n", err)
		os.Exit(1)
	}
}

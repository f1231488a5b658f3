// Package main is the entry point for the mapadapt CLI.
//
// Usage:
//
//	mapadapt [flags] <command> [args]
//
// Commands:
//
//	stats     - accumulate GMM statistics of feature files against a UBM
//	merge     - merge statistics files
//	adapt     - MAP-adapt a UBM to feature files
//	tv-init   - create an i-vector machine with a random subspace
//	ivector   - extract an i-vector from statistics
//	show      - summarise a stored record
package main

import (
	"fmt"
	"os"

	"github.com/ieee0824/voiceprint-go/cmd/mapadapt/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

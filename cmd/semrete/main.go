// Package main implements the semrete command: a forward-chaining rule engine
// over streaming RDF triples.
//
// Usage:
//
//	# run the rules over an N-Triples file, appending consequents to out.nt
//	semrete run --rules rules.txt --input facts.nt --output out.nt
//
//	# run from layered config files
//	semrete run -c semrete.yaml -c semrete.prod.yaml
//
//	# host partitions of a run submitted by another process
//	semrete worker -c semrete.yaml --run-id 7f0c... --partitions 2,3
//
//	# check config and rules without running
//	semrete validate -c semrete.yaml
package main

import (
	"fmt"
	"os"
	"runtime"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Command psyche-client is the centralized-protocol participant process.
//
// Usage:
//
//	psyche-client show-identity <key-path>
//	psyche-client train [flags]
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments without the program name so it can be tested in isolation.
func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: psyche-client <show-identity|train> [flags]")
		return 2
	}

	switch args[0] {
	case "show-identity":
		return runShowIdentity(args[1:])
	case "train":
		return runTrain(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return 2
	}
}

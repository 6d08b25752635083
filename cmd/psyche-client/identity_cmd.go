package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/psyche-network/psyche/identity"
)

// runShowIdentity implements `show-identity <key-path>`: it loads the
// OpenSSH-encoded identity key at key-path (honoring
// RAW_IDENTITY_SECRET_KEY if set) and prints its derived public key as
// hex.
func runShowIdentity(args []string) int {
	fs := flag.NewFlagSet("show-identity", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: psyche-client show-identity <key-path>")
		return 2
	}

	priv, err := identity.Resolve(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	pub := priv.Public()
	fmt.Println(hex.EncodeToString(pub[:]))
	return 0
}

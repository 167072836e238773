// Package main provides crudctl, a command line client for crudkit servers.
package main

import (
	"fmt"
	"os"
)

// Version information (set by build)
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main provides the entry point for the memvault CLI.
package main

import (
	"fmt"
	"os"

	"github.com/memvault/memvault/cmd/memvault/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

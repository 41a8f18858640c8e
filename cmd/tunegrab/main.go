// Package main provides the entry point for the tunegrab CLI.
package main

import (
	"fmt"
	"os"

	"tunegrab/cmd/tunegrab/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

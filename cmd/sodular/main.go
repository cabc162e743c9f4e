// Package main is the entrypoint for the sodular CLI.
package main

import (
	"os"

	"github.com/sodular/sodular-go/cmd/sodular/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

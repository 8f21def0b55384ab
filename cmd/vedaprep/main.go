// Package main provides the vedaprep command.
package main

import (
	"os"

	"github.com/leapstack-labs/vedaprep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

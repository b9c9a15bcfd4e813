// Package main provides the CLI for churnwatch customer churn risk analysis.
package main

import (
	"os"

	"github.com/leapstack-labs/churnwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the entry point for the dirbridge CLI.
package main

import (
	"os"

	"github.com/dirbridge/dirbridge/cmd/dirbridge/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := cmd.Execute(version, commit, date); err != nil {
		os.Exit(1)
	}
}

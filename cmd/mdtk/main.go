// Package main is the entry point for the mdtk orchestrator CLI: it submits
// calculations, drives minimizations and serves the status API.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/maxbates/molecular-design-toolkit/cmd/mdtk/cmd"
)

func main() {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the entry point for the position-sync CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/position-sync/cmd/position-sync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

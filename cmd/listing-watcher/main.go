// Package main is the entry point for the listing-watcher.
package main

import (
	"os"

	"github.com/donaldgifford/listing-watcher/cmd/listing-watcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

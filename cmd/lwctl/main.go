// Package main is the entry point for the lwctl CLI.
package main

import "github.com/donaldgifford/listing-watcher/cmd/lwctl/cmd"

func main() {
	cmd.Execute()
}

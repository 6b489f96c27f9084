// Package main is the entry point for the gatectl operator CLI.
package main

import (
	"os"

	cli "tenant-gate/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

// Package main is the entry point for the katra CLI.
package main

import (
	"os"

	"github.com/katra-project/katra/cmd/katra/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

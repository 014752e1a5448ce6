package main

import (
	"os"

	"github.com/jesmann/epgmerge/internal/interface/cli"
)

// version is overridden at build time via -ldflags
var version = "dev"

func main() {
	if err := cli.NewRoot(version).Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/rung-dev/rung/internal/cli"
)

// version is set by the release build via -ldflags.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/classcount/classcount-go/cmd"
	"github.com/classcount/classcount-go/internal/conf"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command execution error: %v\n", err)
		os.Exit(1)
	}
}

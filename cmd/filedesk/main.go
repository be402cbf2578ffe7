// filedesk - command-line client for a hierarchical remote file store.
package main

import (
	"os"

	"github.com/keystone-cm/filedesk/internal/cli"
	"github.com/keystone-cm/filedesk/internal/version"
)

// Version information, overridden with -ldflags at release time.
var (
	Version   = "v0.4.0"
	BuildTime = "2026-10-16"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	// cobra has already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

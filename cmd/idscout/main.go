package main

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/idscout/idscout/internal/cmd"
	"github.com/idscout/idscout/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-10-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetBuildInfo(handlers.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate})

	err := cmd.Execute()
	if err == nil {
		return
	}

	// Scan verdicts carry their own exit code: 2 for a violation, 1 when
	// no verdict could be reached.
	if verdictErr, ok := cmd.AsVerdictError(err); ok {
		if verdictErr.Err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", verdictErr.Err)
		}
		os.Exit(verdictErr.ExitCode())
	}

	cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command execution failed", err)
}

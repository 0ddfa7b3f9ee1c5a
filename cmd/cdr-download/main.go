// Command cdr-download pages through the call history API for a date range
// and downloads every answered call's recording.
package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitFirstPageFailed = 3
	ExitPartialFailure  = 4
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "download":
		return runDownload(cmdArgs, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "cdr-download %s\n", version)
		return ExitSuccess
	case "help", "-h", "--help":
		printUsage(stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: cdr-download <command> [options]

Commands:
  download  Download call recordings for a date range
  version   Print the version
  help      Show this help

Run 'cdr-download download -h' for command-specific help.`)
}

package config

import (
	"flag"
	"os"
)

// parses CLI flags for the interactive console
func ParseConsoleFlags() Flags {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	endpoint := fs.String("endpoint", "", "relay API endpoint (overrides RELAY_API_ENDPOINT)")
	category := fs.String("category", "", "initial task category")
	fs.Parse(os.Args[1:]) //nolint:errcheck,gosec // G104: ExitOnError flag set handles errors

	return Flags{Endpoint: *endpoint, Category: *category}
}

// tilewire is a protocol-aware TCP relay for tile-world game traffic.
//
// Every client connection is paired with its own upstream connection. Frames
// are decoded in both directions, run through a hook chain that can veto or
// rewrite them, and re-encoded only when something changed. Unknown and
// desynchronized frames are captured to SQLite for offline analysis, and the
// relay exposes a REST API, Prometheus metrics and MQTT telemetry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  _   _ _                _
 | |_(_) |_____ __ _(_)_ _ ___
 |  _| | / -_) V  V / | '_/ -_)
  \__|_|_\___|\_/\_/|_|_| \___|  %s
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "tilewire",
		Short: "Protocol-aware relay for tile-world game traffic",
		Long: `tilewire sits between game clients and a game server, decoding every
frame in both directions so hooks can inspect, veto or rewrite them.

Frames the relay cannot decode are captured to SQLite, and live
sessions, statistics and the capture store are available over a
REST API, Prometheus metrics and MQTT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		decodeCmd(),
		typesCmd(),
		capturesCmd(),
		checkCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Printf(banner, version)
	fmt.Println()
}

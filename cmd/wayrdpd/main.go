// Command wayrdpd is the headless RDP projection server's process
// entrypoint: it detects the deployment's capabilities, establishes a
// Wayland session via the best available strategy, and runs the
// capture/clipboard subsystems until asked to stop. Grounded on the
// teacher's api/cmd/helix root-command convention (a cobra root with
// one subcommand per operational concern) rather than desktop-bridge's
// flat main.go, since this server is a standalone daemon, not a
// guest-container sidecar.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("wayrdpd: fatal error")
	}
}

package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

// main is the entry point for the reallocation planner.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

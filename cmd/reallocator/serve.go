package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/reallocator/internal/config"
	"github.com/elys-network/reallocator/internal/metrics"
	"github.com/elys-network/reallocator/internal/state"
	"github.com/elys-network/reallocator/internal/web"
)

const SHUTDOWN_TIMEOUT = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP planning service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if config.RPCURL == "" {
				log.Info().Msg("RPC_URL not set, only the cached source will be served")
			}
			fetcher, closeRPC, err := buildFetcher(ctx, config.RPCURL != "")
			if err != nil {
				return err
			}
			defer closeRPC()

			if config.DBEnabled {
				if err := state.InitDB(config.DB); err != nil {
					return err
				}
				defer state.CloseDB()
				if err := state.EnsureSchema(); err != nil {
					return err
				}
			} else {
				log.Info().Msg("DB_HOST not set, plan records will not be persisted")
			}

			server := web.NewWebServer(web.ServerConfig{
				Port:      config.WebPort,
				Provider:  fetcher,
				Allocator: config.PublicAllocatorAddress,
				Metrics:   metrics.Planner(),
			})

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting reallocation planner service")
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return <-errCh
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/reallocator/internal/config"
	"github.com/elys-network/reallocator/internal/datafetcher"
	"github.com/elys-network/reallocator/internal/logger"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reallocator",
		Short:         "Plan liquidity reallocations into a vault market through the public allocator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger.Initialize(config.LogLevel)
			return nil
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newPlanCmd(),
		newCapacityCmd(),
	)
	return rootCmd
}

var ErrRPCNotConfigured = errors.New("RPC_URL is required for the live source")

// buildFetcher wires the capacity sources. The indexing API is always available; the chain
// is dialed only when withChain is set, so cached-only commands run without an RPC endpoint.
// The returned func closes the RPC connection, if any.
func buildFetcher(ctx context.Context, withChain bool) (*datafetcher.Fetcher, func(), error) {
	api := datafetcher.NewAPIClient(config.MorphoAPIURL, config.ChainID, &http.Client{Timeout: config.FetchTimeout})
	if !withChain {
		return datafetcher.NewFetcher(api, nil, config.FetchTimeout), func() {}, nil
	}
	if config.RPCURL == "" {
		return nil, nil, ErrRPCNotConfigured
	}

	rpc, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if chainID.Uint64() != config.ChainID {
		rpc.Close()
		return nil, nil, fmt.Errorf("RPC endpoint serves chain %s, configured CHAIN_ID is %d", chainID, config.ChainID)
	}
	log.Info().Str("endpoint", config.RPCURL).Uint64("chain_id", config.ChainID).Msg("RPC connected")

	chain := datafetcher.NewChainReader(rpc, config.MorphoAddress, config.PublicAllocatorAddress)
	return datafetcher.NewFetcher(api, chain, config.FetchTimeout), rpc.Close, nil
}

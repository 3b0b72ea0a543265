package config

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/reallocator/internal/datafetcher"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// RPCURL is the JSON-RPC endpoint used for live reads. Optional: without it only the
	// cached source is available.
	RPCURL string
	// MorphoAPIURL is the GraphQL endpoint of the indexing API used for cached reads.
	MorphoAPIURL string
	// MorphoAddress is the lending core contract.
	MorphoAddress common.Address
	// PublicAllocatorAddress is the allocator contract plans are encoded for.
	PublicAllocatorAddress common.Address
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	RPCURL = getEnvOrDefault("RPC_URL", "")
	MorphoAPIURL = getEnvOrDefault("MORPHO_API_URL", datafetcher.DEFAULT_API_URL)

	MorphoAddress, err = getEnvAsAddress("MORPHO_ADDRESS")
	if err != nil {
		return err
	}

	PublicAllocatorAddress, err = getEnvAsAddress("PUBLIC_ALLOCATOR_ADDRESS")
	if err != nil {
		return err
	}

	log.Debug().
		Str("RPCURL", RPCURL).
		Str("MorphoAPIURL", MorphoAPIURL).
		Str("MorphoAddress", MorphoAddress.Hex()).
		Str("PublicAllocatorAddress", PublicAllocatorAddress.Hex()).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// getEnvAsAddress retrieves an environment variable as a checksummed-or-not hex address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

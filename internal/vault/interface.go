package vault

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/reallocator/internal/types"
)

// CapacitySource defines the read-only view of a vault's allocation that the planner works on.
// The calculator and allocator are written once against this interface; the cached
// (indexing API) and live (chain reads) adapters only differ in where the numbers come from.
//
// Lookups for unknown markets return zero values. Flow cap lookups also report whether an
// entry exists so callers can fail closed when it does not.
type CapacitySource interface {
	// Vault returns the address of the vault the data describes.
	Vault() common.Address

	// Markets returns every market in the vault's allocation list.
	Markets() []types.MarketID

	// MarketParams returns the structural parameters of a market in the allocation list.
	MarketParams(id types.MarketID) (types.MarketParams, bool)

	// OutflowCap returns the max amount that may be reallocated out of a market.
	OutflowCap(id types.MarketID) (sdkmath.Int, bool)

	// InflowCap returns the max amount that may be reallocated into a market.
	InflowCap(id types.MarketID) (sdkmath.Int, bool)

	// VaultSupply returns the assets the vault currently supplies to a market.
	VaultSupply(id types.MarketID) sdkmath.Int

	// MarketLiquidity returns the market's total available liquidity.
	MarketLiquidity(id types.MarketID) sdkmath.Int

	// SupplyCap returns the vault's configured max exposure to a market.
	SupplyCap(id types.MarketID) sdkmath.Int
}

func zero() sdkmath.Int { return sdkmath.ZeroInt() }

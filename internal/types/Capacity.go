/*

This file contains the capacity model: a vault's current allocation across markets plus the
flow caps and supply caps that bound any reallocation.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// FlowCap is the per (vault, market) reallocation limit configured on the public allocator.
type FlowCap struct {
	MaxIn  sdkmath.Int `json:"max_in"`  // Max amount that may be reallocated into the market
	MaxOut sdkmath.Int `json:"max_out"` // Max amount that may be reallocated out of the market
}

// Allocation is a vault's position in one market.
type Allocation struct {
	Market          MarketID     `json:"market"`
	Params          MarketParams `json:"params"`
	VaultSupply     sdkmath.Int  `json:"vault_supply"`     // Assets the vault currently supplies
	MarketLiquidity sdkmath.Int  `json:"market_liquidity"` // Total supply minus total borrow of the market
	SupplyCap       sdkmath.Int  `json:"supply_cap"`       // Vault's configured max exposure to the market
}

// CapacitySnapshot is the engine input. Every entry must come from the same point in time
// (same block for chain reads).
type CapacitySnapshot struct {
	Vault       common.Address       `json:"vault"`
	Allocations []Allocation         `json:"allocations"`
	FlowCaps    map[MarketID]FlowCap `json:"flow_caps"`
	BlockNumber uint64               `json:"block_number,omitempty"` // Set for chain reads only
	FetchedAt   time.Time            `json:"fetched_at"`
}

/*

This file contains the withdrawal types produced while planning a reallocation.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// PlannedWithdrawal is an allocator decision not yet resolved to market parameters.
type PlannedWithdrawal struct {
	Market MarketID    `json:"market"`
	Amount sdkmath.Int `json:"amount"`
}

// ResolvedWithdrawal carries everything the allocator contract needs for one source market.
// SortKey is only used for ordering and is not part of the on-chain payload.
type ResolvedWithdrawal struct {
	Params  MarketParams `json:"market_params"`
	Amount  sdkmath.Int  `json:"amount"`
	SortKey string       `json:"market"`
}

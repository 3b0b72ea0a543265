package planner

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
	"github.com/elys-network/reallocator/internal/vault"
)

// MaxPullable returns the most that can be withdrawn from source right now:
// min(outflow cap, vault supply, market liquidity). A missing flow cap yields zero.
func MaxPullable(src vault.CapacitySource, source types.MarketID) sdkmath.Int {
	maxOut, ok := src.OutflowCap(source)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return utils.NewBounded(maxOut).Min(
		utils.NewBounded(src.VaultSupply(source)),
		utils.NewBounded(src.MarketLiquidity(source)),
	).Int()
}

// MaxAbsorbable returns the most that destination can take in right now:
// min(inflow cap, supply cap - vault supply). A missing flow cap yields zero.
func MaxAbsorbable(src vault.CapacitySource, destination types.MarketID) sdkmath.Int {
	maxIn, ok := src.InflowCap(destination)
	if !ok {
		return sdkmath.ZeroInt()
	}
	headroom := utils.NewBounded(src.SupplyCap(destination)).SatSub(utils.NewBounded(src.VaultSupply(destination)))
	return utils.NewBounded(maxIn).Min(headroom).Int()
}

// TotalPullable sums MaxPullable over every market other than destination, then clamps the
// sum by MaxAbsorbable(destination).
func TotalPullable(src vault.CapacitySource, destination types.MarketID) sdkmath.Int {
	sum := utils.ZeroBounded()
	for _, c := range RankSources(src, destination) {
		sum = sum.Add(utils.NewBounded(c.Pullable))
	}
	return sum.Min(utils.NewBounded(MaxAbsorbable(src, destination))).Int()
}

package planner

import (
	"sort"

	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
	"github.com/elys-network/reallocator/internal/vault"
)

// Resolve attaches market parameters to planned withdrawals and orders them strictly
// ascending by market id, which the allocator contract requires.
//
// Entries for markets missing from the allocation list are dropped with a warning, so a stale
// plan still yields its valid part. Entries for the same market are merged and zero amounts are
// dropped, since the contract rejects both. The output can therefore be shorter than the input
// for any of these three reasons; a length difference alone does not mean a market was unknown.
// Callers that need that distinction check each planned market with src.MarketParams.
func Resolve(src vault.CapacitySource, planned []types.PlannedWithdrawal) []types.ResolvedWithdrawal {
	resolveLogger := logger.GetForComponent("resolver")

	byMarket := make(map[types.MarketID]int)
	resolved := make([]types.ResolvedWithdrawal, 0, len(planned))
	for _, p := range planned {
		params, ok := src.MarketParams(p.Market)
		if !ok {
			resolveLogger.Warn().
				Str("market", p.Market.String()).
				Str("amount", utils.NewBounded(p.Amount).String()).
				Msg("Planned withdrawal references a market missing from the snapshot, skipping")
			continue
		}

		amount := utils.NewBounded(p.Amount)
		if i, dup := byMarket[p.Market]; dup {
			resolved[i].Amount = utils.NewBounded(resolved[i].Amount).Add(amount).Int()
			continue
		}
		byMarket[p.Market] = len(resolved)
		resolved = append(resolved, types.ResolvedWithdrawal{
			Params:  params,
			Amount:  amount.Int(),
			SortKey: p.Market.String(),
		})
	}

	out := resolved[:0]
	for _, r := range resolved {
		if r.Amount.IsPositive() {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SortKey < out[j].SortKey })
	return out
}

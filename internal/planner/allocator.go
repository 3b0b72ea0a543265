package planner

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
	"github.com/elys-network/reallocator/internal/vault"
)

// Error definitions for precondition violations
var (
	ErrInvalidRequestedAmount = errors.New("requested amount must be a non-negative integer")
	ErrNilSource              = errors.New("capacity source is nil")
	ErrMissingDestination     = errors.New("destination market is not set")
	ErrUnknownDestination     = errors.New("destination market is not in the vault allocation list")
)

// SourceCapacity is the pullable amount of one candidate source market.
type SourceCapacity struct {
	Market   types.MarketID `json:"market"`
	Pullable sdkmath.Int    `json:"pullable"`
}

// RankSources returns every market other than destination with positive pullable capacity,
// sorted by capacity descending and then by market id ascending.
func RankSources(src vault.CapacitySource, destination types.MarketID) []SourceCapacity {
	seen := make(map[types.MarketID]struct{})
	var sources []SourceCapacity
	for _, id := range src.Markets() {
		if id == destination {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		pullable := MaxPullable(src, id)
		if !pullable.IsPositive() {
			continue
		}
		sources = append(sources, SourceCapacity{Market: id, Pullable: pullable})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		if !sources[i].Pullable.Equal(sources[j].Pullable) {
			return sources[i].Pullable.GT(sources[j].Pullable)
		}
		return sources[i].Market.Less(sources[j].Market)
	})
	return sources
}

// Allocate assigns requested across the ranked sources, largest first, until the request is
// covered or the sources run out. The result may sum to less than requested; that is not an
// error. The destination inflow bound is not applied here, see Plan.
func Allocate(src vault.CapacitySource, destination types.MarketID, requested sdkmath.Int) ([]types.PlannedWithdrawal, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if destination.IsZero() {
		return nil, ErrMissingDestination
	}
	if requested.IsNil() || requested.IsNegative() {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRequestedAmount, requested)
	}

	allocLogger := logger.GetForComponent("allocator")

	remaining := utils.NewBounded(requested)
	planned := make([]types.PlannedWithdrawal, 0)
	for _, source := range RankSources(src, destination) {
		if remaining.IsZero() {
			break
		}
		take := remaining.Min(utils.NewBounded(source.Pullable))
		planned = append(planned, types.PlannedWithdrawal{Market: source.Market, Amount: take.Int()})
		remaining = remaining.SatSub(take)

		allocLogger.Debug().
			Str("market", source.Market.String()).
			Str("pullable", source.Pullable.String()).
			Str("take", take.String()).
			Str("remaining", remaining.String()).
			Msg("Allocated from source market")
	}

	if remaining.IsPositive() {
		allocLogger.Info().
			Str("destination", destination.String()).
			Str("requested", requested.String()).
			Str("unallocated", remaining.String()).
			Msg("Source capacity insufficient, plan is partial")
	}
	return planned, nil
}

package vault

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/reallocator/internal/types"
)

// SnapshotSource serves a materialised CapacitySnapshot.
type SnapshotSource struct {
	snapshot types.CapacitySnapshot
	index    map[types.MarketID]int
}

var _ CapacitySource = (*SnapshotSource)(nil)

// NewSnapshotSource indexes the snapshot's allocation list. When a market appears more than
// once the first entry wins.
func NewSnapshotSource(snapshot types.CapacitySnapshot) *SnapshotSource {
	index := make(map[types.MarketID]int, len(snapshot.Allocations))
	for i, a := range snapshot.Allocations {
		if _, seen := index[a.Market]; !seen {
			index[a.Market] = i
		}
	}
	return &SnapshotSource{snapshot: snapshot, index: index}
}

// Snapshot returns the underlying snapshot.
func (s *SnapshotSource) Snapshot() types.CapacitySnapshot { return s.snapshot }

func (s *SnapshotSource) Vault() common.Address { return s.snapshot.Vault }

func (s *SnapshotSource) Markets() []types.MarketID {
	ids := make([]types.MarketID, 0, len(s.snapshot.Allocations))
	for _, a := range s.snapshot.Allocations {
		ids = append(ids, a.Market)
	}
	return ids
}

func (s *SnapshotSource) allocation(id types.MarketID) (types.Allocation, bool) {
	i, ok := s.index[id]
	if !ok {
		return types.Allocation{}, false
	}
	return s.snapshot.Allocations[i], true
}

func (s *SnapshotSource) MarketParams(id types.MarketID) (types.MarketParams, bool) {
	a, ok := s.allocation(id)
	return a.Params, ok
}

func (s *SnapshotSource) OutflowCap(id types.MarketID) (sdkmath.Int, bool) {
	fc, ok := s.snapshot.FlowCaps[id]
	return fc.MaxOut, ok
}

func (s *SnapshotSource) InflowCap(id types.MarketID) (sdkmath.Int, bool) {
	fc, ok := s.snapshot.FlowCaps[id]
	return fc.MaxIn, ok
}

func (s *SnapshotSource) VaultSupply(id types.MarketID) sdkmath.Int {
	if a, ok := s.allocation(id); ok {
		return a.VaultSupply
	}
	return zero()
}

func (s *SnapshotSource) MarketLiquidity(id types.MarketID) sdkmath.Int {
	if a, ok := s.allocation(id); ok {
		return a.MarketLiquidity
	}
	return zero()
}

func (s *SnapshotSource) SupplyCap(id types.MarketID) sdkmath.Int {
	if a, ok := s.allocation(id); ok {
		return a.SupplyCap
	}
	return zero()
}

// Snapshot materialises any CapacitySource into the plain snapshot shape, so cached and live
// data can be logged, persisted or compared the same way.
func Snapshot(src CapacitySource) types.CapacitySnapshot {
	if s, ok := src.(*SnapshotSource); ok {
		return s.snapshot
	}

	out := types.CapacitySnapshot{
		Vault:    src.Vault(),
		FlowCaps: make(map[types.MarketID]types.FlowCap),
	}
	for _, id := range src.Markets() {
		params, _ := src.MarketParams(id)
		out.Allocations = append(out.Allocations, types.Allocation{
			Market:          id,
			Params:          params,
			VaultSupply:     src.VaultSupply(id),
			MarketLiquidity: src.MarketLiquidity(id),
			SupplyCap:       src.SupplyCap(id),
		})

		maxOut, hasOut := src.OutflowCap(id)
		maxIn, hasIn := src.InflowCap(id)
		if hasOut || hasIn {
			out.FlowCaps[id] = types.FlowCap{MaxIn: maxIn, MaxOut: maxOut}
		}
	}

	switch s := src.(type) {
	case *CachedSource:
		out.FetchedAt = s.data.FetchedAt
	case *LiveSource:
		out.BlockNumber = s.state.BlockNumber
		out.FetchedAt = s.state.FetchedAt
	}
	return out
}

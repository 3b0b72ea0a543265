/*

This file contains the cached-aggregate adapter: vault data as served by the indexing API,
which refreshes periodically and covers every market the vault touches in one response.

*/

package vault

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/reallocator/internal/types"
)

// CachedMarket is one entry of the indexed allocation list.
type CachedMarket struct {
	ID                types.MarketID     `json:"id"`
	Params            types.MarketParams `json:"params"`
	VaultSupplyAssets sdkmath.Int        `json:"vault_supply_assets"`
	LiquidityAssets   sdkmath.Int        `json:"liquidity_assets"`
	SupplyCap         sdkmath.Int        `json:"supply_cap"`
}

// CachedFlowCap is one flow cap entry of the indexed public allocator config.
type CachedFlowCap struct {
	Market types.MarketID `json:"market"`
	MaxIn  sdkmath.Int    `json:"max_in"`
	MaxOut sdkmath.Int    `json:"max_out"`
}

// CachedVault is the indexed state of a vault.
type CachedVault struct {
	Address     common.Address  `json:"address"`
	Fee         sdkmath.Int     `json:"fee"`
	Allocations []CachedMarket  `json:"allocations"`
	FlowCaps    []CachedFlowCap `json:"flow_caps"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// CachedSource adapts a CachedVault to CapacitySource.
type CachedSource struct {
	data     CachedVault
	markets  map[types.MarketID]int
	flowCaps map[types.MarketID]int
}

var _ CapacitySource = (*CachedSource)(nil)

// NewCachedSource indexes the cached vault. Duplicate entries keep the first occurrence.
func NewCachedSource(data CachedVault) *CachedSource {
	s := &CachedSource{
		data:     data,
		markets:  make(map[types.MarketID]int, len(data.Allocations)),
		flowCaps: make(map[types.MarketID]int, len(data.FlowCaps)),
	}
	for i, m := range data.Allocations {
		if _, seen := s.markets[m.ID]; !seen {
			s.markets[m.ID] = i
		}
	}
	for i, fc := range data.FlowCaps {
		if _, seen := s.flowCaps[fc.Market]; !seen {
			s.flowCaps[fc.Market] = i
		}
	}
	return s
}

// Fee returns the allocator fee reported by the index.
func (s *CachedSource) Fee() sdkmath.Int { return s.data.Fee }

func (s *CachedSource) Vault() common.Address { return s.data.Address }

func (s *CachedSource) Markets() []types.MarketID {
	ids := make([]types.MarketID, 0, len(s.data.Allocations))
	for _, m := range s.data.Allocations {
		ids = append(ids, m.ID)
	}
	return ids
}

func (s *CachedSource) market(id types.MarketID) (CachedMarket, bool) {
	i, ok := s.markets[id]
	if !ok {
		return CachedMarket{}, false
	}
	return s.data.Allocations[i], true
}

func (s *CachedSource) flowCap(id types.MarketID) (CachedFlowCap, bool) {
	i, ok := s.flowCaps[id]
	if !ok {
		return CachedFlowCap{}, false
	}
	return s.data.FlowCaps[i], true
}

func (s *CachedSource) MarketParams(id types.MarketID) (types.MarketParams, bool) {
	m, ok := s.market(id)
	return m.Params, ok
}

func (s *CachedSource) OutflowCap(id types.MarketID) (sdkmath.Int, bool) {
	fc, ok := s.flowCap(id)
	return fc.MaxOut, ok
}

func (s *CachedSource) InflowCap(id types.MarketID) (sdkmath.Int, bool) {
	fc, ok := s.flowCap(id)
	return fc.MaxIn, ok
}

func (s *CachedSource) VaultSupply(id types.MarketID) sdkmath.Int {
	if m, ok := s.market(id); ok {
		return m.VaultSupplyAssets
	}
	return zero()
}

func (s *CachedSource) MarketLiquidity(id types.MarketID) sdkmath.Int {
	if m, ok := s.market(id); ok {
		return m.LiquidityAssets
	}
	return zero()
}

func (s *CachedSource) SupplyCap(id types.MarketID) sdkmath.Int {
	if m, ok := s.market(id); ok {
		return m.SupplyCap
	}
	return zero()
}

/*

This file contains the live-chain adapter: raw contract state read at a single block,
converted to capacity numbers with the protocol's share math.

*/

package vault

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
)

// Virtual shares and assets used by the lending protocol when converting supply shares to
// assets. They protect against share inflation and must match the contract exactly.
var (
	VirtualShares = sdkmath.NewInt(1_000_000)
	VirtualAssets = sdkmath.NewInt(1)
)

// LiveMarket is the raw state of one market in the vault's withdraw queue.
type LiveMarket struct {
	ID                types.MarketID     `json:"id"`
	Params            types.MarketParams `json:"params"`
	SupplyCap         sdkmath.Int        `json:"supply_cap"`
	Enabled           bool               `json:"enabled"`
	TotalSupplyAssets sdkmath.Int        `json:"total_supply_assets"`
	TotalSupplyShares sdkmath.Int        `json:"total_supply_shares"`
	TotalBorrowAssets sdkmath.Int        `json:"total_borrow_assets"`
	VaultSupplyShares sdkmath.Int        `json:"vault_supply_shares"`
	FlowCap           types.FlowCap      `json:"flow_cap"`
}

// LiveState is the vault state read at BlockNumber.
type LiveState struct {
	Vault       common.Address `json:"vault"`
	BlockNumber uint64         `json:"block_number"`
	Fee         sdkmath.Int    `json:"fee"`
	Markets     []LiveMarket   `json:"markets"`
	FetchedAt   time.Time      `json:"fetched_at"`
}

// LiveSource adapts a LiveState to CapacitySource.
//
// The allocator contract stores a flow cap for every (vault, market) pair and returns zeros
// for unconfigured ones, so every market read from chain reports a flow cap entry.
type LiveSource struct {
	state LiveState
	index map[types.MarketID]int
}

var _ CapacitySource = (*LiveSource)(nil)

// NewLiveSource indexes the live state. Duplicate entries keep the first occurrence.
func NewLiveSource(state LiveState) *LiveSource {
	index := make(map[types.MarketID]int, len(state.Markets))
	for i, m := range state.Markets {
		if _, seen := index[m.ID]; !seen {
			index[m.ID] = i
		}
	}
	return &LiveSource{state: state, index: index}
}

// ToAssetsDown converts supply shares to assets, rounding down.
func ToAssetsDown(shares, totalAssets, totalShares sdkmath.Int) sdkmath.Int {
	s := utils.NewBounded(shares).Int()
	if s.IsZero() {
		return sdkmath.ZeroInt()
	}
	assets := utils.NewBounded(totalAssets).Int().Add(VirtualAssets)
	supply := utils.NewBounded(totalShares).Int().Add(VirtualShares)
	return s.Mul(assets).Quo(supply)
}

// Fee returns the allocator fee read at the same block.
func (s *LiveSource) Fee() sdkmath.Int { return s.state.Fee }

// BlockNumber returns the block all reads were pinned to.
func (s *LiveSource) BlockNumber() uint64 { return s.state.BlockNumber }

func (s *LiveSource) Vault() common.Address { return s.state.Vault }

func (s *LiveSource) Markets() []types.MarketID {
	ids := make([]types.MarketID, 0, len(s.state.Markets))
	for _, m := range s.state.Markets {
		ids = append(ids, m.ID)
	}
	return ids
}

func (s *LiveSource) market(id types.MarketID) (LiveMarket, bool) {
	i, ok := s.index[id]
	if !ok {
		return LiveMarket{}, false
	}
	return s.state.Markets[i], true
}

func (s *LiveSource) MarketParams(id types.MarketID) (types.MarketParams, bool) {
	m, ok := s.market(id)
	return m.Params, ok
}

func (s *LiveSource) OutflowCap(id types.MarketID) (sdkmath.Int, bool) {
	m, ok := s.market(id)
	return m.FlowCap.MaxOut, ok
}

func (s *LiveSource) InflowCap(id types.MarketID) (sdkmath.Int, bool) {
	m, ok := s.market(id)
	return m.FlowCap.MaxIn, ok
}

func (s *LiveSource) VaultSupply(id types.MarketID) sdkmath.Int {
	m, ok := s.market(id)
	if !ok {
		return zero()
	}
	return ToAssetsDown(m.VaultSupplyShares, m.TotalSupplyAssets, m.TotalSupplyShares)
}

func (s *LiveSource) MarketLiquidity(id types.MarketID) sdkmath.Int {
	m, ok := s.market(id)
	if !ok {
		return zero()
	}
	return utils.NewBounded(m.TotalSupplyAssets).SatSub(utils.NewBounded(m.TotalBorrowAssets)).Int()
}

// SupplyCap returns zero for markets the vault has disabled.
func (s *LiveSource) SupplyCap(id types.MarketID) sdkmath.Int {
	m, ok := s.market(id)
	if !ok || !m.Enabled {
		return zero()
	}
	return m.SupplyCap
}

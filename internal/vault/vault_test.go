package vault

import (
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/reallocator/internal/types"
)

var (
	testVault = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	marketA   = types.MarketIDFromHash(common.HexToHash("0xaaaa"))
	marketB   = types.MarketIDFromHash(common.HexToHash("0xbbbb"))
	paramsA   = types.MarketParams{LoanToken: common.HexToAddress("0x01"), Lltv: sdkmath.NewInt(860000000000000000)}
	paramsB   = types.MarketParams{LoanToken: common.HexToAddress("0x01"), Lltv: sdkmath.NewInt(915000000000000000)}
)

func liveFixture() LiveState {
	return LiveState{
		Vault:       testVault,
		BlockNumber: 123,
		Fee:         sdkmath.NewInt(7),
		FetchedAt:   time.Unix(1700000000, 0),
		Markets: []LiveMarket{
			{
				ID:                marketA,
				Params:            paramsA,
				SupplyCap:         sdkmath.NewInt(500),
				Enabled:           true,
				TotalSupplyAssets: sdkmath.NewInt(1000),
				TotalSupplyShares: sdkmath.NewInt(1_000_000_000),
				TotalBorrowAssets: sdkmath.NewInt(900),
				VaultSupplyShares: sdkmath.NewInt(100_000_000),
				FlowCap:           types.FlowCap{MaxIn: sdkmath.NewInt(10), MaxOut: sdkmath.NewInt(80)},
			},
			{
				ID:                marketB,
				Params:            paramsB,
				SupplyCap:         sdkmath.NewInt(300),
				Enabled:           false,
				TotalSupplyAssets: sdkmath.NewInt(50),
				TotalSupplyShares: sdkmath.NewInt(50_000_000),
				TotalBorrowAssets: sdkmath.NewInt(60),
				FlowCap:           types.FlowCap{MaxIn: sdkmath.ZeroInt(), MaxOut: sdkmath.ZeroInt()},
			},
		},
	}
}

func cachedFixture() CachedVault {
	return CachedVault{
		Address:   testVault,
		Fee:       sdkmath.NewInt(7),
		FetchedAt: time.Unix(1700000000, 0),
		Allocations: []CachedMarket{
			{ID: marketA, Params: paramsA, VaultSupplyAssets: sdkmath.NewInt(100), LiquidityAssets: sdkmath.NewInt(100), SupplyCap: sdkmath.NewInt(500)},
			{ID: marketB, Params: paramsB, VaultSupplyAssets: sdkmath.ZeroInt(), LiquidityAssets: sdkmath.ZeroInt(), SupplyCap: sdkmath.ZeroInt()},
		},
		FlowCaps: []CachedFlowCap{
			{Market: marketA, MaxIn: sdkmath.NewInt(10), MaxOut: sdkmath.NewInt(80)},
			{Market: marketB, MaxIn: sdkmath.ZeroInt(), MaxOut: sdkmath.ZeroInt()},
		},
	}
}

func TestToAssetsDown(t *testing.T) {
	got := ToAssetsDown(sdkmath.NewInt(100_000_000), sdkmath.NewInt(1000), sdkmath.NewInt(1_000_000_000))
	assert.Equal(t, "100", got.String())

	assert.True(t, ToAssetsDown(sdkmath.ZeroInt(), sdkmath.NewInt(1000), sdkmath.NewInt(1)).IsZero())
	assert.True(t, ToAssetsDown(sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}).IsZero())

	// rounds down
	got = ToAssetsDown(sdkmath.NewInt(1_500_000), sdkmath.NewInt(0), sdkmath.NewInt(0))
	assert.Equal(t, "1", got.String())
}

func TestLiveSourceDerivesCapacity(t *testing.T) {
	src := NewLiveSource(liveFixture())

	assert.Equal(t, "100", src.VaultSupply(marketA).String())
	assert.Equal(t, "100", src.MarketLiquidity(marketA).String())
	assert.Equal(t, "500", src.SupplyCap(marketA).String())
	assert.Equal(t, uint64(123), src.BlockNumber())

	// borrow above supply clamps liquidity, disabled market has no cap
	assert.True(t, src.MarketLiquidity(marketB).IsZero())
	assert.True(t, src.SupplyCap(marketB).IsZero())

	maxOut, ok := src.OutflowCap(marketA)
	require.True(t, ok)
	assert.Equal(t, "80", maxOut.String())

	_, ok = src.InflowCap(types.MarketIDFromHash(common.HexToHash("0xcccc")))
	assert.False(t, ok)
	assert.True(t, src.VaultSupply(types.MarketIDFromHash(common.HexToHash("0xcccc"))).IsZero())
}

func TestCachedSourceMissingFlowCap(t *testing.T) {
	data := cachedFixture()
	data.FlowCaps = data.FlowCaps[:1]
	src := NewCachedSource(data)

	_, ok := src.OutflowCap(marketB)
	assert.False(t, ok)
	maxIn, ok := src.InflowCap(marketA)
	require.True(t, ok)
	assert.Equal(t, "10", maxIn.String())
}

func TestCachedAndLiveMaterialiseToSameShape(t *testing.T) {
	live := Snapshot(NewLiveSource(liveFixture()))
	cached := Snapshot(NewCachedSource(cachedFixture()))

	require.Len(t, live.Allocations, 2)
	require.Len(t, cached.Allocations, 2)
	assert.Equal(t, uint64(123), live.BlockNumber)
	assert.Zero(t, cached.BlockNumber)

	for i := range live.Allocations {
		l, c := live.Allocations[i], cached.Allocations[i]
		assert.Equal(t, l.Market, c.Market)
		assert.Equal(t, l.Params, c.Params)
		assert.True(t, l.VaultSupply.Equal(c.VaultSupply), "vault supply %s", l.Market)
		assert.True(t, l.MarketLiquidity.Equal(c.MarketLiquidity), "liquidity %s", l.Market)
		assert.True(t, l.SupplyCap.Equal(c.SupplyCap), "supply cap %s", l.Market)
	}
	assert.Equal(t, len(live.FlowCaps), len(cached.FlowCaps))
}

func TestSnapshotSourceRoundTrip(t *testing.T) {
	snapshot := Snapshot(NewCachedSource(cachedFixture()))
	src := NewSnapshotSource(snapshot)

	assert.Equal(t, testVault, src.Vault())
	assert.Equal(t, []types.MarketID{marketA, marketB}, src.Markets())
	assert.Equal(t, snapshot, Snapshot(src))

	params, ok := src.MarketParams(types.MustMarketID(strings.ToUpper(marketA.String())))
	require.True(t, ok)
	assert.Equal(t, paramsA, params)
}

func TestDuplicateEntriesKeepFirst(t *testing.T) {
	data := cachedFixture()
	dup := data.Allocations[0]
	dup.VaultSupplyAssets = sdkmath.NewInt(999)
	data.Allocations = append(data.Allocations, dup)

	src := NewCachedSource(data)
	assert.Equal(t, "100", src.VaultSupply(marketA).String())
}

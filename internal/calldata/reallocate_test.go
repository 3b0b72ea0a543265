package calldata

import (
	"encoding/json"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/reallocator/internal/types"
)

var (
	allocatorAddr = common.HexToAddress("0xfd32fA2ca22c76dD6E550706Ad913FC6CE91c75D")
	vaultAddr     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func params(seed byte, lltv int64) types.MarketParams {
	return types.MarketParams{
		LoanToken:       common.BytesToAddress([]byte{seed, 1}),
		CollateralToken: common.BytesToAddress([]byte{seed, 2}),
		Oracle:          common.BytesToAddress([]byte{seed, 3}),
		Irm:             common.BytesToAddress([]byte{seed, 4}),
		Lltv:            sdkmath.NewInt(lltv),
	}
}

func word(data []byte, i int) []byte {
	return data[4+32*i : 4+32*(i+1)]
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func intWord(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func TestReallocateToSelector(t *testing.T) {
	signature := "reallocateTo(address,((address,address,address,address,uint256),uint128)[],(address,address,address,address,uint256))"
	want := crypto.Keccak256([]byte(signature))[:4]

	assert.Equal(t, want, PublicAllocatorABI.Methods[ReallocateToMethod].ID)
}

func TestBuildReallocateToLayout(t *testing.T) {
	first := params(0x10, 860)
	second := params(0x20, 915)
	destination := params(0x30, 945)
	withdrawals := []types.ResolvedWithdrawal{
		{Params: first, Amount: sdkmath.NewInt(100), SortKey: "0xa"},
		{Params: second, Amount: sdkmath.NewInt(20), SortKey: "0xb"},
	}

	ix, err := BuildReallocateTo(allocatorAddr, vaultAddr, sdkmath.NewInt(12345), withdrawals, destination)
	require.NoError(t, err)

	assert.Equal(t, allocatorAddr, ix.To)
	assert.Equal(t, big.NewInt(12345), ix.Value)
	assert.Equal(t, ix.Data, ix.Bytes())
	assert.Equal(t, "0x", ix.Hex()[:2])

	data := ix.Data
	require.Len(t, data, 4+20*32)
	assert.Equal(t, PublicAllocatorABI.Methods[ReallocateToMethod].ID, data[:4])

	assert.Equal(t, addressWord(vaultAddr), word(data, 0))
	assert.Equal(t, intWord(7*32), word(data, 1), "withdrawals offset follows the static head")

	// destination params are a static tuple encoded in place
	assert.Equal(t, addressWord(destination.LoanToken), word(data, 2))
	assert.Equal(t, addressWord(destination.Irm), word(data, 5))
	assert.Equal(t, intWord(945), word(data, 6))

	assert.Equal(t, intWord(2), word(data, 7))
	assert.Equal(t, addressWord(first.LoanToken), word(data, 8))
	assert.Equal(t, addressWord(first.CollateralToken), word(data, 9))
	assert.Equal(t, addressWord(first.Oracle), word(data, 10))
	assert.Equal(t, intWord(860), word(data, 12))
	assert.Equal(t, intWord(100), word(data, 13))
	assert.Equal(t, addressWord(second.LoanToken), word(data, 14))
	assert.Equal(t, intWord(20), word(data, 19))
}

func TestBuildReallocateToDecodes(t *testing.T) {
	withdrawals := []types.ResolvedWithdrawal{{Params: params(0x10, 1), Amount: sdkmath.NewInt(5), SortKey: "0xa"}}

	ix, err := BuildReallocateTo(allocatorAddr, vaultAddr, sdkmath.ZeroInt(), withdrawals, params(0x30, 2))
	require.NoError(t, err)

	args, err := PublicAllocatorABI.Methods[ReallocateToMethod].Inputs.Unpack(ix.Data[4:])
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Equal(t, vaultAddr, args[0])
}

func TestBuildReallocateToNilFee(t *testing.T) {
	ix, err := BuildReallocateTo(allocatorAddr, vaultAddr, sdkmath.Int{}, nil, params(0x30, 2))
	require.NoError(t, err)

	assert.Equal(t, 0, ix.Value.Sign())
	assert.Equal(t, intWord(0), word(ix.Data, 7), "empty withdrawal list still encodes")
}

func TestInstructionJSON(t *testing.T) {
	ix := Instruction{To: allocatorAddr, Value: big.NewInt(16), Data: []byte{0xde, 0xad}}

	raw, err := json.Marshal(ix)
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"0xfd32fa2ca22c76dd6e550706ad913fc6ce91c75d","value":"0x10","data":"0xdead"}`, string(raw))
}

package types

import (
	"encoding/json"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalID = "0x000000000000000000000000000000000000000000000000000000000000abcd"

func TestMarketIDEquivalentForms(t *testing.T) {
	want := MarketIDFromHash(common.HexToHash("0xabcd"))
	assert.Equal(t, canonicalID, want.String())

	for _, raw := range []string{
		canonicalID,
		strings.ToUpper(canonicalID),
		"0X" + canonicalID[2:],
		canonicalID[2:],
		"  " + strings.ToUpper(canonicalID[2:]) + " ",
	} {
		id, err := NewMarketID(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, id, raw)
	}
}

func TestMarketIDRejectsMalformed(t *testing.T) {
	_, err := NewMarketID("   ")
	assert.ErrorIs(t, err, ErrEmptyMarketID)
	assert.True(t, MarketID{}.IsZero())

	for _, raw := range []string{
		"0xc",
		"0x0C",
		"abcd",
		canonicalID + "00",
		canonicalID[:len(canonicalID)-1],
		"0x" + strings.Repeat("g", 64),
		"0x0x" + canonicalID[4:],
	} {
		_, err := NewMarketID(raw)
		assert.ErrorIs(t, err, ErrInvalidMarketID, raw)
	}

	var id MarketID
	assert.ErrorIs(t, id.UnmarshalText([]byte("0xabcd")), ErrInvalidMarketID)
}

func TestMarketIDOrderingAndHash(t *testing.T) {
	a := MarketIDFromHash(common.HexToHash("0x0a"))
	b := MustMarketID(strings.ToUpper(common.HexToHash("0x0b").Hex()[2:]))
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	h := common.HexToHash("0x1234")
	assert.Equal(t, h, MarketIDFromHash(h).Hash())
	assert.Equal(t, MarketIDFromHash(h), MustMarketID(h.Hex()))
	assert.Equal(t, h, MustMarketID(h.Hex()[2:]).Hash())
}

func TestMarketIDAsJSONMapKey(t *testing.T) {
	caps := map[MarketID]FlowCap{
		MustMarketID(strings.ToUpper(canonicalID[2:])): {MaxIn: sdkmath.NewInt(1), MaxOut: sdkmath.NewInt(2)},
	}
	raw, err := json.Marshal(caps)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"`+canonicalID+`"`)

	var decoded map[MarketID]FlowCap
	require.NoError(t, json.Unmarshal(raw, &decoded))
	fc, ok := decoded[MustMarketID(canonicalID)]
	require.True(t, ok)
	assert.Equal(t, "2", fc.MaxOut.String())
}

func TestMarketParamsID(t *testing.T) {
	p := MarketParams{
		LoanToken:       common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		CollateralToken: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"),
		Oracle:          common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Irm:             common.HexToAddress("0x0000000000000000000000000000000000000002"),
		Lltv:            sdkmath.NewInt(860000000000000000),
	}

	var encoded []byte
	for _, a := range []common.Address{p.LoanToken, p.CollateralToken, p.Oracle, p.Irm} {
		encoded = append(encoded, common.LeftPadBytes(a.Bytes(), 32)...)
	}
	encoded = append(encoded, common.LeftPadBytes(p.Lltv.BigInt().Bytes(), 32)...)
	want := MarketIDFromHash(crypto.Keccak256Hash(encoded))

	id, err := p.ID()
	require.NoError(t, err)
	assert.Equal(t, want, id)

	p.Lltv = sdkmath.NewInt(915000000000000000)
	other, err := p.ID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	p.Lltv = sdkmath.NewInt(-1)
	_, err = p.ID()
	assert.Error(t, err)
}

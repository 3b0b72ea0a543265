/*

This file contains the market identity types: the case-insensitive market id and the
structural parameters needed to address a market on-chain.

*/

package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyMarketID   = errors.New("market id is empty")
	ErrInvalidMarketID = errors.New("market id must be 32 bytes of hex")
)

// MarketID identifies a lending market. The key is always the lower-case, 0x-prefixed,
// 64-digit hex form of the on-chain bytes32 id, so every accepted spelling of the same id
// is the same map key.
type MarketID struct {
	key string
}

// NewMarketID parses a bytes32 market id: an optional 0x/0X prefix followed by exactly 64 hex
// digits in any case. Short or non-hex forms are rejected with ErrInvalidMarketID.
func NewMarketID(raw string) (MarketID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MarketID{}, ErrEmptyMarketID
	}
	digits := trimmed
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	if len(digits) != 2*common.HashLength {
		return MarketID{}, fmt.Errorf("%w: %q", ErrInvalidMarketID, raw)
	}
	decoded, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return MarketID{}, fmt.Errorf("%w: %q", ErrInvalidMarketID, raw)
	}
	return MarketIDFromHash(common.BytesToHash(decoded)), nil
}

// MustMarketID is NewMarketID for identifiers known to be valid (constants, tests).
func MustMarketID(raw string) MarketID {
	id, err := NewMarketID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// MarketIDFromHash converts an on-chain bytes32 id.
func MarketIDFromHash(h common.Hash) MarketID {
	return MarketID{key: strings.ToLower(h.Hex())}
}

func (id MarketID) String() string { return id.key }

func (id MarketID) IsZero() bool { return id.key == "" }

// Less orders ids by their normalized string form.
func (id MarketID) Less(other MarketID) bool { return id.key < other.key }

// Hash returns the bytes32 form used in contract calls.
func (id MarketID) Hash() common.Hash { return common.HexToHash(id.key) }

// MarshalText lets MarketID serve as a JSON string and map key.
func (id MarketID) MarshalText() ([]byte, error) {
	return []byte(id.key), nil
}

func (id *MarketID) UnmarshalText(data []byte) error {
	parsed, err := NewMarketID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarketParams is the immutable descriptor of a market.
type MarketParams struct {
	LoanToken       common.Address `json:"loan_token"`
	CollateralToken common.Address `json:"collateral_token"`
	Oracle          common.Address `json:"oracle"`
	Irm             common.Address `json:"irm"`
	Lltv            sdkmath.Int    `json:"lltv"`
}

var marketParamsArgs = func() abi.Arguments {
	addressTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{
		{Type: addressTy}, {Type: addressTy}, {Type: addressTy}, {Type: addressTy},
		{Type: uint256Ty},
	}
}()

// LltvBig returns the liquidation threshold as a big.Int, zero when unset.
func (p MarketParams) LltvBig() *big.Int {
	if p.Lltv.IsNil() {
		return new(big.Int)
	}
	return p.Lltv.BigInt()
}

// ID computes the market id the protocol derives from these parameters:
// keccak256(abi.encode(loanToken, collateralToken, oracle, irm, lltv)).
func (p MarketParams) ID() (MarketID, error) {
	if !p.Lltv.IsNil() && p.Lltv.IsNegative() {
		return MarketID{}, fmt.Errorf("lltv is negative: %s", p.Lltv)
	}
	encoded, err := marketParamsArgs.Pack(p.LoanToken, p.CollateralToken, p.Oracle, p.Irm, p.LltvBig())
	if err != nil {
		return MarketID{}, fmt.Errorf("failed to encode market params: %w", err)
	}
	return MarketIDFromHash(crypto.Keccak256Hash(encoded)), nil
}

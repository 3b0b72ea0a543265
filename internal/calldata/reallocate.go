package calldata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/elys-network/reallocator/internal/types"
)

var ErrEncodingFailed = errors.New("failed to encode reallocateTo call")

// ReallocateToMethod is the allocator entry point that withdraws from the listed markets and
// supplies the total to one destination market in a single call.
const ReallocateToMethod = "reallocateTo"

const marketParamsComponents = `[
	{"name": "loanToken", "type": "address"},
	{"name": "collateralToken", "type": "address"},
	{"name": "oracle", "type": "address"},
	{"name": "irm", "type": "address"},
	{"name": "lltv", "type": "uint256"}
]`

// PublicAllocatorABI covers the allocator methods this service encodes or reads.
var PublicAllocatorABI = mustParseABI(`[
	{
		"type": "function", "name": "reallocateTo", "stateMutability": "payable",
		"inputs": [
			{"name": "vault", "type": "address"},
			{"name": "withdrawals", "type": "tuple[]", "components": [
				{"name": "marketParams", "type": "tuple", "components": ` + marketParamsComponents + `},
				{"name": "amount", "type": "uint128"}
			]},
			{"name": "supplyMarketParams", "type": "tuple", "components": ` + marketParamsComponents + `}
		],
		"outputs": []
	},
	{
		"type": "function", "name": "flowCaps", "stateMutability": "view",
		"inputs": [{"name": "vault", "type": "address"}, {"name": "id", "type": "bytes32"}],
		"outputs": [{"name": "maxIn", "type": "uint128"}, {"name": "maxOut", "type": "uint128"}]
	},
	{
		"type": "function", "name": "fee", "stateMutability": "view",
		"inputs": [{"name": "vault", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return parsed
}

type marketParamsArg struct {
	LoanToken       common.Address `abi:"loanToken"`
	CollateralToken common.Address `abi:"collateralToken"`
	Oracle          common.Address `abi:"oracle"`
	Irm             common.Address `abi:"irm"`
	Lltv            *big.Int       `abi:"lltv"`
}

type withdrawalArg struct {
	MarketParams marketParamsArg `abi:"marketParams"`
	Amount       *big.Int        `abi:"amount"`
}

func toMarketParamsArg(p types.MarketParams) marketParamsArg {
	return marketParamsArg{
		LoanToken:       p.LoanToken,
		CollateralToken: p.CollateralToken,
		Oracle:          p.Oracle,
		Irm:             p.Irm,
		Lltv:            p.LltvBig(),
	}
}

// Instruction is a contract call ready to be embedded in a transaction batch.
type Instruction struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// MarshalJSON renders the instruction the way JSON-RPC transaction objects are written.
func (i Instruction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		To    common.Address `json:"to"`
		Value *hexutil.Big   `json:"value"`
		Data  hexutil.Bytes  `json:"data"`
	}{To: i.To, Value: (*hexutil.Big)(i.Value), Data: i.Data})
}

// Bytes returns the encoded call data.
func (i Instruction) Bytes() []byte { return i.Data }

// Hex returns the 0x-prefixed call data.
func (i Instruction) Hex() string { return hexutil.Encode(i.Data) }

// BuildReallocateTo encodes a reallocateTo call. withdrawals must already be resolved: sorted,
// de-duplicated and matched to their parameters. The fee is passed through as the call value.
func BuildReallocateTo(
	allocator common.Address,
	vaultAddress common.Address,
	fee sdkmath.Int,
	withdrawals []types.ResolvedWithdrawal,
	destination types.MarketParams,
) (Instruction, error) {
	args := make([]withdrawalArg, 0, len(withdrawals))
	for _, w := range withdrawals {
		amount := new(big.Int)
		if !w.Amount.IsNil() {
			amount = w.Amount.BigInt()
		}
		args = append(args, withdrawalArg{
			MarketParams: toMarketParamsArg(w.Params),
			Amount:       amount,
		})
	}

	data, err := PublicAllocatorABI.Pack(ReallocateToMethod, vaultAddress, args, toMarketParamsArg(destination))
	if err != nil {
		return Instruction{}, errors.Join(ErrEncodingFailed, err)
	}

	value := new(big.Int)
	if !fee.IsNil() {
		value = fee.BigInt()
	}
	return Instruction{To: allocator, Value: value, Data: data}, nil
}

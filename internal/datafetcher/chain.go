/*
This file reads the live view of a vault straight from the contracts.

Every call is pinned to one block number fetched up front, so the allocation list, market
totals and flow caps all describe the same chain state. Markets are read in parallel.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/reallocator/internal/calldata"
	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
	"github.com/elys-network/reallocator/internal/vault"
)

var (
	ErrChainCall            = errors.New("contract call failed")
	ErrUnexpectedOutput     = errors.New("unexpected contract call output")
	ErrMarketParamsMismatch = errors.New("market parameters do not hash to the market id")
)

// DEFAULT_READ_CONCURRENCY bounds the number of in-flight eth_call requests per fetch.
const DEFAULT_READ_CONCURRENCY = 8

var morphoABI = mustParseABI(`[
	{
		"type": "function", "name": "market", "stateMutability": "view",
		"inputs": [{"name": "id", "type": "bytes32"}],
		"outputs": [
			{"name": "totalSupplyAssets", "type": "uint128"},
			{"name": "totalSupplyShares", "type": "uint128"},
			{"name": "totalBorrowAssets", "type": "uint128"},
			{"name": "totalBorrowShares", "type": "uint128"},
			{"name": "lastUpdate", "type": "uint128"},
			{"name": "fee", "type": "uint128"}
		]
	},
	{
		"type": "function", "name": "position", "stateMutability": "view",
		"inputs": [{"name": "id", "type": "bytes32"}, {"name": "user", "type": "address"}],
		"outputs": [
			{"name": "supplyShares", "type": "uint256"},
			{"name": "borrowShares", "type": "uint128"},
			{"name": "collateral", "type": "uint128"}
		]
	},
	{
		"type": "function", "name": "idToMarketParams", "stateMutability": "view",
		"inputs": [{"name": "id", "type": "bytes32"}],
		"outputs": [
			{"name": "loanToken", "type": "address"},
			{"name": "collateralToken", "type": "address"},
			{"name": "oracle", "type": "address"},
			{"name": "irm", "type": "address"},
			{"name": "lltv", "type": "uint256"}
		]
	}
]`)

var metaMorphoABI = mustParseABI(`[
	{
		"type": "function", "name": "withdrawQueueLength", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "withdrawQueue", "stateMutability": "view",
		"inputs": [{"name": "index", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bytes32"}]
	},
	{
		"type": "function", "name": "config", "stateMutability": "view",
		"inputs": [{"name": "id", "type": "bytes32"}],
		"outputs": [
			{"name": "cap", "type": "uint184"},
			{"name": "enabled", "type": "bool"},
			{"name": "removableAt", "type": "uint64"}
		]
	}
]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return parsed
}

// ChainCaller is the read surface of an Ethereum JSON-RPC client. *ethclient.Client implements it.
type ChainCaller interface {
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainReader reads vault, market and allocator state at a pinned block.
type ChainReader struct {
	caller      ChainCaller
	morpho      common.Address
	allocator   common.Address
	concurrency int
	log         zerolog.Logger
}

// NewChainReader creates a reader for the given lending core and public allocator contracts.
func NewChainReader(caller ChainCaller, morpho, allocator common.Address) *ChainReader {
	return &ChainReader{
		caller:      caller,
		morpho:      morpho,
		allocator:   allocator,
		concurrency: DEFAULT_READ_CONCURRENCY,
		log:         logger.GetForComponent("chain_reader"),
	}
}

func (r *ChainReader) call(ctx context.Context, block *big.Int, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", ErrChainCall, method, err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %v", ErrChainCall, method, to.Hex(), err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrUnexpectedOutput, method, err)
	}
	return values, nil
}

func bigAt(values []interface{}, i int) (sdkmath.Int, error) {
	if i >= len(values) {
		return sdkmath.Int{}, fmt.Errorf("%w: missing output %d", ErrUnexpectedOutput, i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: output %d is %T, want *big.Int", ErrUnexpectedOutput, i, values[i])
	}
	return utils.BigToInt(v), nil
}

func addressAt(values []interface{}, i int) (common.Address, error) {
	if i >= len(values) {
		return common.Address{}, fmt.Errorf("%w: missing output %d", ErrUnexpectedOutput, i)
	}
	v, ok := values[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: output %d is %T, want address", ErrUnexpectedOutput, i, values[i])
	}
	return v, nil
}

// FetchVault reads the vault's withdraw queue and every queued market at the latest block.
func (r *ChainReader) FetchVault(ctx context.Context, vaultAddress common.Address) (vault.LiveState, error) {
	blockNumber, err := r.caller.BlockNumber(ctx)
	if err != nil {
		return vault.LiveState{}, fmt.Errorf("%w: block number: %v", ErrChainCall, err)
	}
	return r.FetchVaultAt(ctx, vaultAddress, blockNumber)
}

// FetchVaultAt reads the vault at a specific block.
func (r *ChainReader) FetchVaultAt(ctx context.Context, vaultAddress common.Address, blockNumber uint64) (vault.LiveState, error) {
	block := new(big.Int).SetUint64(blockNumber)
	fetchLogger := r.log.With().Str("vault", vaultAddress.Hex()).Uint64("block", blockNumber).Logger()

	out, err := r.call(ctx, block, vaultAddress, metaMorphoABI, "withdrawQueueLength")
	if err != nil {
		return vault.LiveState{}, err
	}
	length, err := bigAt(out, 0)
	if err != nil {
		return vault.LiveState{}, err
	}
	if !length.IsInt64() || length.Int64() > 1<<16 {
		return vault.LiveState{}, fmt.Errorf("%w: withdraw queue length %s", ErrUnexpectedOutput, length)
	}
	queueLen := int(length.Int64())

	ids := make([]types.MarketID, queueLen)
	var fee sdkmath.Int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := 0; i < queueLen; i++ {
		i := i
		g.Go(func() error {
			out, err := r.call(gctx, block, vaultAddress, metaMorphoABI, "withdrawQueue", big.NewInt(int64(i)))
			if err != nil {
				return err
			}
			raw, ok := out[0].([32]byte)
			if !ok {
				return fmt.Errorf("%w: withdrawQueue(%d) is %T", ErrUnexpectedOutput, i, out[0])
			}
			ids[i] = types.MarketIDFromHash(common.Hash(raw))
			return nil
		})
	}
	g.Go(func() error {
		out, err := r.call(gctx, block, r.allocator, calldata.PublicAllocatorABI, "fee", vaultAddress)
		if err != nil {
			return err
		}
		fee, err = bigAt(out, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return vault.LiveState{}, err
	}

	markets := make([]vault.LiveMarket, len(ids))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			m, err := r.readMarket(gctx, block, vaultAddress, id)
			if err != nil {
				return fmt.Errorf("market %s: %w", id, err)
			}
			markets[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return vault.LiveState{}, err
	}

	fetchLogger.Info().Int("markets", len(markets)).Str("fee", fee.String()).Msg("Fetched live vault state")
	return vault.LiveState{
		Vault:       vaultAddress,
		BlockNumber: blockNumber,
		Fee:         fee,
		Markets:     markets,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (r *ChainReader) readMarket(ctx context.Context, block *big.Int, vaultAddress common.Address, id types.MarketID) (vault.LiveMarket, error) {
	key := [32]byte(id.Hash())
	m := vault.LiveMarket{ID: id}

	out, err := r.call(ctx, block, r.morpho, morphoABI, "idToMarketParams", key)
	if err != nil {
		return m, err
	}
	for i, dst := range []*common.Address{&m.Params.LoanToken, &m.Params.CollateralToken, &m.Params.Oracle, &m.Params.Irm} {
		if *dst, err = addressAt(out, i); err != nil {
			return m, err
		}
	}
	if m.Params.Lltv, err = bigAt(out, 4); err != nil {
		return m, err
	}
	derived, err := m.Params.ID()
	if err != nil {
		return m, err
	}
	if derived != id {
		return m, fmt.Errorf("%w: derived %s", ErrMarketParamsMismatch, derived)
	}

	out, err = r.call(ctx, block, vaultAddress, metaMorphoABI, "config", key)
	if err != nil {
		return m, err
	}
	if m.SupplyCap, err = bigAt(out, 0); err != nil {
		return m, err
	}
	enabled, ok := out[1].(bool)
	if !ok {
		return m, fmt.Errorf("%w: config enabled is %T", ErrUnexpectedOutput, out[1])
	}
	m.Enabled = enabled

	out, err = r.call(ctx, block, r.morpho, morphoABI, "market", key)
	if err != nil {
		return m, err
	}
	if m.TotalSupplyAssets, err = bigAt(out, 0); err != nil {
		return m, err
	}
	if m.TotalSupplyShares, err = bigAt(out, 1); err != nil {
		return m, err
	}
	if m.TotalBorrowAssets, err = bigAt(out, 2); err != nil {
		return m, err
	}

	out, err = r.call(ctx, block, r.morpho, morphoABI, "position", key, vaultAddress)
	if err != nil {
		return m, err
	}
	if m.VaultSupplyShares, err = bigAt(out, 0); err != nil {
		return m, err
	}

	out, err = r.call(ctx, block, r.allocator, calldata.PublicAllocatorABI, "flowCaps", vaultAddress, key)
	if err != nil {
		return m, err
	}
	if m.FlowCap.MaxIn, err = bigAt(out, 0); err != nil {
		return m, err
	}
	if m.FlowCap.MaxOut, err = bigAt(out, 1); err != nil {
		return m, err
	}

	r.log.Debug().
		Str("market", id.String()).
		Str("supply_cap", m.SupplyCap.String()).
		Bool("enabled", m.Enabled).
		Str("max_in", m.FlowCap.MaxIn.String()).
		Str("max_out", m.FlowCap.MaxOut.String()).
		Msg("Read market state")
	return m, nil
}

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/reallocator/internal/vault"
)

var (
	ErrUnknownSourceKind = errors.New("unknown capacity source kind")
	ErrSourceUnavailable = errors.New("capacity source is not configured")
	ErrFetchTimeout      = errors.New("capacity fetch timed out")
)

// SourceKind selects where capacity numbers come from.
type SourceKind string

const (
	SourceCached SourceKind = "cached"
	SourceLive   SourceKind = "live"
)

// ParseSourceKind accepts "cached" or "live". An empty string selects the cached source.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceCached:
		return SourceCached, nil
	case SourceLive:
		return SourceLive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSourceKind, s)
	}
}

// Fetched is a capacity source together with the metadata needed to act on it.
type Fetched struct {
	Source      vault.CapacitySource
	Fee         sdkmath.Int
	BlockNumber uint64 // Zero for cached sources
	Kind        SourceKind
}

// Fetcher builds capacity sources from either the indexing API or the chain.
type Fetcher struct {
	api     *APIClient
	chain   *ChainReader
	timeout time.Duration
}

// NewFetcher creates a fetcher. Either backend may be nil, in which case requests for that
// kind fail with ErrSourceUnavailable.
func NewFetcher(api *APIClient, chain *ChainReader, timeout time.Duration) *Fetcher {
	return &Fetcher{api: api, chain: chain, timeout: timeout}
}

// Source fetches the vault and wraps it in the matching adapter.
func (f *Fetcher) Source(ctx context.Context, vaultAddress common.Address, kind SourceKind) (*Fetched, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	fetched, err := f.fetch(ctx, vaultAddress, kind)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, errors.Join(ErrFetchTimeout, err)
	}
	return fetched, err
}

func (f *Fetcher) fetch(ctx context.Context, vaultAddress common.Address, kind SourceKind) (*Fetched, error) {
	switch kind {
	case SourceCached:
		if f.api == nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, kind)
		}
		data, err := f.api.FetchVault(ctx, vaultAddress)
		if err != nil {
			return nil, err
		}
		src := vault.NewCachedSource(data)
		return &Fetched{Source: src, Fee: src.Fee(), Kind: kind}, nil

	case SourceLive:
		if f.chain == nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, kind)
		}
		state, err := f.chain.FetchVault(ctx, vaultAddress)
		if err != nil {
			return nil, err
		}
		src := vault.NewLiveSource(state)
		return &Fetched{Source: src, Fee: src.Fee(), BlockNumber: src.BlockNumber(), Kind: kind}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceKind, kind)
	}
}

/*
This file fetches the cached view of a vault from the lending protocol's indexing API.

The index refreshes every few blocks, so the numbers lag the chain slightly. It returns every
allocation and flow cap of the vault in one response, which makes it the cheap default source.
*/

package datafetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/vault"
)

var (
	ErrAPIRequest      = errors.New("indexing API request failed")
	ErrAPIResponse     = errors.New("indexing API returned an error")
	ErrVaultNotIndexed = errors.New("vault not found in indexing API")
	ErrInvalidAPIData  = errors.New("invalid data received from indexing API")
)

const (
	DEFAULT_API_URL  = "https://blue-api.morpho.org/graphql"
	MAX_RESPONSE_LEN = 8 << 20
)

const vaultQuery = `query VaultAllocations($address: String!, $chainId: Int!) {
  vaultByAddress(address: $address, chainId: $chainId) {
    address
    state {
      allocation {
        market {
          uniqueKey
          loanAsset { address }
          collateralAsset { address }
          oracleAddress
          irmAddress
          lltv
          state { liquidityAssets }
        }
        supplyAssets
        supplyCap
      }
    }
    publicAllocatorConfig {
      fee
      flowCaps {
        market { uniqueKey }
        maxIn
        maxOut
      }
    }
  }
}`

// Doer is the subset of *http.Client the API client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIClient queries the GraphQL indexing API.
type APIClient struct {
	endpoint string
	chainID  uint64
	doer     Doer
	log      zerolog.Logger
}

// NewAPIClient creates a client. A nil doer gets an *http.Client with a 30 second timeout.
func NewAPIClient(endpoint string, chainID uint64, doer Doer) *APIClient {
	if endpoint == "" {
		endpoint = DEFAULT_API_URL
	}
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		endpoint: endpoint,
		chainID:  chainID,
		doer:     doer,
		log:      logger.GetForComponent("api_client"),
	}
}

// apiInt decodes a BigInt scalar, which the API serves either as a JSON number or a string.
type apiInt struct {
	sdkmath.Int
}

func (a *apiInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		a.Int = sdkmath.ZeroInt()
		return nil
	}
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return fmt.Errorf("%w: %q is not an integer", ErrInvalidAPIData, raw)
	}
	a.Int = v
	return nil
}

type apiAsset struct {
	Address string `json:"address"`
}

type apiMarket struct {
	UniqueKey       string    `json:"uniqueKey"`
	LoanAsset       apiAsset  `json:"loanAsset"`
	CollateralAsset *apiAsset `json:"collateralAsset"`
	OracleAddress   string    `json:"oracleAddress"`
	IrmAddress      string    `json:"irmAddress"`
	Lltv            apiInt    `json:"lltv"`
	State           *struct {
		LiquidityAssets apiInt `json:"liquidityAssets"`
	} `json:"state"`
}

type apiAllocation struct {
	Market       apiMarket `json:"market"`
	SupplyAssets apiInt    `json:"supplyAssets"`
	SupplyCap    apiInt    `json:"supplyCap"`
}

type apiFlowCap struct {
	Market struct {
		UniqueKey string `json:"uniqueKey"`
	} `json:"market"`
	MaxIn  apiInt `json:"maxIn"`
	MaxOut apiInt `json:"maxOut"`
}

type apiVault struct {
	Address string `json:"address"`
	State   *struct {
		Allocation []apiAllocation `json:"allocation"`
	} `json:"state"`
	PublicAllocatorConfig *struct {
		Fee      apiInt       `json:"fee"`
		FlowCaps []apiFlowCap `json:"flowCaps"`
	} `json:"publicAllocatorConfig"`
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		VaultByAddress *apiVault `json:"vaultByAddress"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchVault returns the indexed allocations and flow caps of vaultAddress.
func (c *APIClient) FetchVault(ctx context.Context, vaultAddress common.Address) (vault.CachedVault, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: vaultQuery,
		Variables: map[string]interface{}{
			"address": vaultAddress.Hex(),
			"chainId": c.chainID,
		},
	})
	if err != nil {
		return vault.CachedVault{}, errors.Join(ErrAPIRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return vault.CachedVault{}, errors.Join(ErrAPIRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("vault", vaultAddress.Hex()).Uint64("chain_id", c.chainID).Msg("Querying indexing API")

	resp, err := c.doer.Do(req)
	if err != nil {
		return vault.CachedVault{}, errors.Join(ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MAX_RESPONSE_LEN))
	if err != nil {
		return vault.CachedVault{}, errors.Join(ErrAPIRequest, err)
	}
	if resp.StatusCode != http.StatusOK {
		return vault.CachedVault{}, fmt.Errorf("%w: status %d: %s", ErrAPIResponse, resp.StatusCode, truncate(string(raw), 256))
	}

	var decoded graphQLResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return vault.CachedVault{}, errors.Join(ErrInvalidAPIData, err)
	}
	if len(decoded.Errors) > 0 {
		messages := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			messages = append(messages, e.Message)
		}
		// the API reports unknown vaults as a GraphQL error rather than a null result
		if decoded.Data.VaultByAddress == nil && strings.Contains(strings.ToLower(strings.Join(messages, "; ")), "no results") {
			return vault.CachedVault{}, fmt.Errorf("%w: %s", ErrVaultNotIndexed, vaultAddress.Hex())
		}
		return vault.CachedVault{}, fmt.Errorf("%w: %s", ErrAPIResponse, strings.Join(messages, "; "))
	}
	if decoded.Data.VaultByAddress == nil {
		return vault.CachedVault{}, fmt.Errorf("%w: %s", ErrVaultNotIndexed, vaultAddress.Hex())
	}

	cached, err := c.convert(vaultAddress, decoded.Data.VaultByAddress)
	if err != nil {
		return vault.CachedVault{}, err
	}

	c.log.Info().
		Str("vault", vaultAddress.Hex()).
		Int("allocations", len(cached.Allocations)).
		Int("flow_caps", len(cached.FlowCaps)).
		Msg("Fetched cached vault state")
	return cached, nil
}

func (c *APIClient) convert(vaultAddress common.Address, v *apiVault) (vault.CachedVault, error) {
	cached := vault.CachedVault{
		Address:   vaultAddress,
		Fee:       sdkmath.ZeroInt(),
		FetchedAt: time.Now().UTC(),
	}

	if v.State != nil {
		for _, a := range v.State.Allocation {
			id, err := types.NewMarketID(a.Market.UniqueKey)
			if errors.Is(err, types.ErrEmptyMarketID) {
				return vault.CachedVault{}, fmt.Errorf("%w: allocation without market key", ErrInvalidAPIData)
			}
			if err != nil {
				c.log.Warn().Err(err).Msg("Indexed market key is not a bytes32 id, skipping")
				continue
			}
			params := types.MarketParams{
				LoanToken: common.HexToAddress(a.Market.LoanAsset.Address),
				Oracle:    common.HexToAddress(a.Market.OracleAddress),
				Irm:       common.HexToAddress(a.Market.IrmAddress),
				Lltv:      a.Market.Lltv.orZero(),
			}
			if a.Market.CollateralAsset != nil {
				params.CollateralToken = common.HexToAddress(a.Market.CollateralAsset.Address)
			}

			derived, err := params.ID()
			if err != nil || derived != id {
				c.log.Warn().
					Str("market", id.String()).
					Str("derived", derived.String()).
					Msg("Indexed market parameters do not hash to the market key, skipping")
				continue
			}

			liquidity := sdkmath.ZeroInt()
			if a.Market.State != nil {
				liquidity = a.Market.State.LiquidityAssets.orZero()
			}
			cached.Allocations = append(cached.Allocations, vault.CachedMarket{
				ID:                id,
				Params:            params,
				VaultSupplyAssets: a.SupplyAssets.orZero(),
				LiquidityAssets:   liquidity,
				SupplyCap:         a.SupplyCap.orZero(),
			})
		}
	}

	if v.PublicAllocatorConfig != nil {
		cached.Fee = v.PublicAllocatorConfig.Fee.orZero()
		for _, fc := range v.PublicAllocatorConfig.FlowCaps {
			id, err := types.NewMarketID(fc.Market.UniqueKey)
			if errors.Is(err, types.ErrEmptyMarketID) {
				return vault.CachedVault{}, fmt.Errorf("%w: flow cap without market key", ErrInvalidAPIData)
			}
			if err != nil {
				c.log.Warn().Err(err).Msg("Flow cap market key is not a bytes32 id, skipping")
				continue
			}
			cached.FlowCaps = append(cached.FlowCaps, vault.CachedFlowCap{
				Market: id,
				MaxIn:  fc.MaxIn.orZero(),
				MaxOut: fc.MaxOut.orZero(),
			})
		}
	} else {
		c.log.Warn().Str("vault", vaultAddress.Hex()).Msg("Vault has no public allocator config, every market will report zero capacity")
	}

	return cached, nil
}

func (a apiInt) orZero() sdkmath.Int {
	if a.Int.IsNil() {
		return sdkmath.ZeroInt()
	}
	return a.Int
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

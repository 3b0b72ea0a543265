package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/reallocator/internal/datafetcher"
	"github.com/elys-network/reallocator/internal/metrics"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/vault"
)

const vaultHex = "0x00000000000000000000000000000000000000aa"

var (
	allocator = common.HexToAddress("0xfd32fA2ca22c76dD6E550706Ad913FC6CE91c75D")
	mA        = types.MarketIDFromHash(common.HexToHash("0x0a"))
	mB        = types.MarketIDFromHash(common.HexToHash("0x0b"))
	mC        = types.MarketIDFromHash(common.HexToHash("0x0c"))
)

// fixedProvider returns the same snapshot for every request.
type fixedProvider struct {
	snapshot types.CapacitySnapshot
	err      error
	kinds    []datafetcher.SourceKind
}

func (p *fixedProvider) Source(_ context.Context, vaultAddress common.Address, kind datafetcher.SourceKind) (*datafetcher.Fetched, error) {
	p.kinds = append(p.kinds, kind)
	if p.err != nil {
		return nil, p.err
	}
	s := p.snapshot
	s.Vault = vaultAddress
	return &datafetcher.Fetched{
		Source:      vault.NewSnapshotSource(s),
		Fee:         sdkmath.NewInt(7),
		BlockNumber: 99,
		Kind:        kind,
	}, nil
}

func allocation(id types.MarketID, supply, liquidity, supplyCap int64) types.Allocation {
	return types.Allocation{
		Market:          id,
		Params:          types.MarketParams{LoanToken: common.HexToAddress("0x01"), Oracle: common.HexToAddress(id.String()), Lltv: sdkmath.NewInt(1)},
		VaultSupply:     sdkmath.NewInt(supply),
		MarketLiquidity: sdkmath.NewInt(liquidity),
		SupplyCap:       sdkmath.NewInt(supplyCap),
	}
}

func newTestServer(t *testing.T, provider SnapshotProvider) (*WebServer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewPlannerMetrics(reg)
	return NewWebServer(ServerConfig{Provider: provider, Allocator: allocator, Metrics: m}), reg
}

func scenarioProvider() *fixedProvider {
	return &fixedProvider{snapshot: types.CapacitySnapshot{
		Allocations: []types.Allocation{
			allocation(mA, 100, 100, 1000),
			allocation(mB, 50, 50, 1000),
			allocation(mC, 0, 0, 200),
		},
		FlowCaps: map[types.MarketID]types.FlowCap{
			mA: {MaxIn: sdkmath.ZeroInt(), MaxOut: sdkmath.NewInt(100)},
			mB: {MaxIn: sdkmath.ZeroInt(), MaxOut: sdkmath.NewInt(50)},
			mC: {MaxIn: sdkmath.NewInt(120), MaxOut: sdkmath.ZeroInt()},
		},
	}}
}

func serve(ws *WebServer, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ws, _ := newTestServer(t, scenarioProvider())

	rec := serve(ws, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetCapacity(t *testing.T) {
	provider := scenarioProvider()
	ws, _ := newTestServer(t, provider)

	rec := serve(ws, http.MethodGet, "/api/vaults/"+vaultHex+"/capacity?destination="+strings.ToUpper(strings.TrimPrefix(mC.String(), "0x"))+"&source=live", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Destination   string `json:"destination"`
		Source        string `json:"source"`
		BlockNumber   uint64 `json:"block_number"`
		Absorbable    string `json:"absorbable"`
		TotalPullable string `json:"total_pullable"`
		Sources       []struct {
			Market   string `json:"market"`
			Pullable string `json:"pullable"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, mC.String(), body.Destination)
	assert.Equal(t, "live", body.Source)
	assert.Equal(t, uint64(99), body.BlockNumber)
	assert.Equal(t, "120", body.Absorbable)
	assert.Equal(t, "120", body.TotalPullable)
	require.Len(t, body.Sources, 2)
	assert.Equal(t, mA.String(), body.Sources[0].Market)
	assert.Equal(t, "100", body.Sources[0].Pullable)
	assert.Equal(t, []datafetcher.SourceKind{datafetcher.SourceLive}, provider.kinds)
}

func TestGetCapacityValidation(t *testing.T) {
	ws, _ := newTestServer(t, scenarioProvider())

	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodGet, "/api/vaults/not-an-address/capacity?destination="+mC.String(), "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodGet, "/api/vaults/"+vaultHex+"/capacity", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodGet, "/api/vaults/"+vaultHex+"/capacity?destination="+mC.String()+"&source=archive", "").Code)
}

func TestPostPlan(t *testing.T) {
	ws, reg := newTestServer(t, scenarioProvider())

	rec := serve(ws, http.MethodPost, "/api/vaults/"+vaultHex+"/plan", `{"destination":"`+mC.String()+`","amount":"120"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		PlanID string `json:"plan_id"`
		Source string `json:"source"`
		Plan   struct {
			Total       string `json:"total"`
			Fulfilled   bool   `json:"fulfilled"`
			Withdrawals []struct {
				Market string `json:"market"`
				Amount string `json:"amount"`
			} `json:"withdrawals"`
			Instruction struct {
				To    string `json:"to"`
				Value string `json:"value"`
				Data  string `json:"data"`
			} `json:"instruction"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.NotEmpty(t, body.PlanID)
	assert.Equal(t, "cached", body.Source)
	assert.Equal(t, "120", body.Plan.Total)
	assert.True(t, body.Plan.Fulfilled)
	require.Len(t, body.Plan.Withdrawals, 2)
	assert.Equal(t, mA.String(), body.Plan.Withdrawals[0].Market)
	assert.Equal(t, "100", body.Plan.Withdrawals[0].Amount)
	assert.Equal(t, "20", body.Plan.Withdrawals[1].Amount)
	assert.Equal(t, strings.ToLower(allocator.Hex()), body.Plan.Instruction.To)
	assert.Equal(t, "0x7", body.Plan.Instruction.Value)
	assert.True(t, strings.HasPrefix(body.Plan.Instruction.Data, "0x"))

	count, err := testutil.GatherAndCount(reg, "reallocator_plans_total", "reallocator_plan_fulfillment_ratio")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPostPlanEmpty(t *testing.T) {
	provider := scenarioProvider()
	delete(provider.snapshot.FlowCaps, mC)
	ws, _ := newTestServer(t, provider)

	rec := serve(ws, http.MethodPost, "/api/vaults/"+vaultHex+"/plan", `{"destination":"`+mC.String()+`","amount":"120","source":"cached"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"instruction"`)
	assert.Contains(t, rec.Body.String(), `"total":"0"`)
}

func TestPostPlanValidation(t *testing.T) {
	ws, _ := newTestServer(t, scenarioProvider())
	target := "/api/vaults/" + vaultHex + "/plan"

	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodPost, target, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodPost, target, `{"amount":"1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodPost, target, `{"destination":"`+mC.String()+`","amount":"-5"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(ws, http.MethodPost, target, `{"destination":"`+mC.String()+`","amount":"1.5"}`).Code)
}

func TestShortMarketIDsAreRejected(t *testing.T) {
	provider := scenarioProvider()
	ws, _ := newTestServer(t, provider)
	target := "/api/vaults/" + vaultHex + "/plan"

	for _, raw := range []string{"0xc", "0x0C", "c"} {
		rec := serve(ws, http.MethodPost, target, `{"destination":"`+raw+`","amount":"120"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.Contains(t, rec.Body.String(), "32-byte", raw)

		rec = serve(ws, http.MethodGet, "/api/vaults/"+vaultHex+"/capacity?destination="+raw, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
	assert.Empty(t, provider.kinds, "malformed ids never reach the fetcher")

	// the unprefixed 64-digit form plans exactly like the canonical one
	rec := serve(ws, http.MethodPost, target, `{"destination":"`+strings.TrimPrefix(mC.String(), "0x")+`","amount":"120"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total":"120"`)
	assert.Contains(t, rec.Body.String(), `"absorbable":"120"`)
}

func TestPostPlanFetchErrors(t *testing.T) {
	target := "/api/vaults/" + vaultHex + "/plan"
	body := `{"destination":"` + mC.String() + `","amount":"1"}`

	ws, _ := newTestServer(t, &fixedProvider{err: datafetcher.ErrVaultNotIndexed})
	assert.Equal(t, http.StatusNotFound, serve(ws, http.MethodPost, target, body).Code)

	ws, _ = newTestServer(t, &fixedProvider{err: datafetcher.ErrSourceUnavailable})
	assert.Equal(t, http.StatusServiceUnavailable, serve(ws, http.MethodPost, target, body).Code)

	ws, _ = newTestServer(t, &fixedProvider{err: errors.Join(datafetcher.ErrFetchTimeout, context.DeadlineExceeded)})
	assert.Equal(t, http.StatusGatewayTimeout, serve(ws, http.MethodPost, target, body).Code)

	ws, _ = newTestServer(t, &fixedProvider{err: datafetcher.ErrChainCall})
	assert.Equal(t, http.StatusBadGateway, serve(ws, http.MethodPost, target, body).Code)

	ws, _ = newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(ws, http.MethodPost, target, body).Code)
}

func TestGetSnapshot(t *testing.T) {
	ws, _ := newTestServer(t, scenarioProvider())

	rec := serve(ws, http.MethodGet, "/api/vaults/"+vaultHex+"/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"`+mC.String()+`":{`)
	assert.Contains(t, rec.Body.String(), `"fee":"7"`)
}

func TestGetPlansWithoutDatabase(t *testing.T) {
	ws, _ := newTestServer(t, scenarioProvider())
	assert.Equal(t, http.StatusServiceUnavailable, serve(ws, http.MethodGet, "/api/vaults/"+vaultHex+"/plans", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ws, _ := newTestServer(t, scenarioProvider())
	rec := serve(ws, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

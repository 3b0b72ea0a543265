package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/reallocator/internal/datafetcher"
	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/metrics"
	"github.com/elys-network/reallocator/internal/planner"
	"github.com/elys-network/reallocator/internal/state"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
	"github.com/elys-network/reallocator/internal/vault"
)

// MAX_BODY_BYTES bounds plan request bodies.
const MAX_BODY_BYTES = 1 << 16

// SnapshotProvider fetches a capacity source for a vault. *datafetcher.Fetcher implements it.
type SnapshotProvider interface {
	Source(ctx context.Context, vaultAddress common.Address, kind datafetcher.SourceKind) (*datafetcher.Fetched, error)
}

// ServerConfig wires the web server to its collaborators.
type ServerConfig struct {
	Port      string
	Provider  SnapshotProvider
	Allocator common.Address // Public allocator the plan instructions target
	Metrics   *metrics.PlannerMetrics
}

// WebServer serves capacity queries and reallocation plans over HTTP
type WebServer struct {
	router    *mux.Router
	server    *http.Server
	port      string
	provider  SnapshotProvider
	allocator common.Address
	metrics   *metrics.PlannerMetrics
	startedAt time.Time
	log       zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg ServerConfig) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	ws := &WebServer{
		router:    mux.NewRouter(),
		port:      cfg.Port,
		provider:  cfg.Provider,
		allocator: cfg.Allocator,
		metrics:   cfg.Metrics,
		startedAt: time.Now(),
		log:       logger.GetForComponent("web_server"),
	}

	ws.setupRoutes()
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vaults/{vault}/snapshot", ws.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/vaults/{vault}/capacity", ws.handleGetCapacity).Methods("GET")
	api.HandleFunc("/vaults/{vault}/plan", ws.handlePostPlan).Methods("POST", "OPTIONS")
	api.HandleFunc("/vaults/{vault}/plans", ws.handleGetPlans).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	ws.log.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	ws.log.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleHealth reports process and database status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbConfigured := state.DB != nil
	dbHealthy := false
	if dbConfigured {
		dbHealthy = state.TestDBConnection() == nil
	}

	status, statusCode := "OK", http.StatusOK
	if dbConfigured && !dbHealthy {
		status, statusCode = "DEGRADED", http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "reallocator",
			"version": "1.0.0",
		},
		"persistence": map[string]interface{}{
			"database_configured": dbConfigured,
			"database_healthy":    dbHealthy,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func parseVault(r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["vault"]
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// fetch resolves the source kind, fetches and records timing.
func (ws *WebServer) fetch(ctx context.Context, vaultAddress common.Address, rawKind string) (*datafetcher.Fetched, datafetcher.SourceKind, error) {
	kind, err := datafetcher.ParseSourceKind(rawKind)
	if err != nil {
		return nil, "", err
	}
	if ws.provider == nil {
		return nil, kind, datafetcher.ErrSourceUnavailable
	}

	start := time.Now()
	fetched, err := ws.provider.Source(ctx, vaultAddress, kind)
	ws.metrics.ObserveFetch(string(kind), time.Since(start), err)
	return fetched, kind, err
}

func (ws *WebServer) writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datafetcher.ErrUnknownSourceKind):
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, datafetcher.ErrVaultNotIndexed):
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, datafetcher.ErrSourceUnavailable):
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, datafetcher.ErrFetchTimeout):
		ws.writeErrorResponse(w, http.StatusGatewayTimeout, "Timed out fetching vault state")
	default:
		ws.log.Error().Err(err).Msg("Failed to fetch vault state")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to fetch vault state")
	}
}

// handleGetSnapshot returns the materialized capacity snapshot of a vault
func (ws *WebServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	vaultAddress, ok := parseVault(r)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault address")
		return
	}

	fetched, kind, err := ws.fetch(r.Context(), vaultAddress, r.URL.Query().Get("source"))
	if err != nil {
		ws.writeFetchError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"source":   kind,
		"fee":      fetched.Fee,
		"snapshot": vault.Snapshot(fetched.Source),
	})
}

// CapacityResponse describes how much can be moved into one destination market.
type CapacityResponse struct {
	Vault         common.Address           `json:"vault"`
	Destination   types.MarketID           `json:"destination"`
	Source        datafetcher.SourceKind   `json:"source"`
	BlockNumber   uint64                   `json:"block_number,omitempty"`
	Sources       []planner.SourceCapacity `json:"sources"`
	Absorbable    sdkmath.Int              `json:"absorbable"`
	TotalPullable sdkmath.Int              `json:"total_pullable"`
}

// handleGetCapacity returns ranked source capacity for a destination market
// destinationError is the client-facing message for a rejected destination market id.
func destinationError(err error) string {
	if errors.Is(err, types.ErrInvalidMarketID) {
		return "Destination market must be a 32-byte hex id"
	}
	return "Missing destination market"
}

func (ws *WebServer) handleGetCapacity(w http.ResponseWriter, r *http.Request) {
	vaultAddress, ok := parseVault(r)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault address")
		return
	}
	destination, err := types.NewMarketID(r.URL.Query().Get("destination"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, destinationError(err))
		return
	}

	fetched, kind, err := ws.fetch(r.Context(), vaultAddress, r.URL.Query().Get("source"))
	if err != nil {
		ws.writeFetchError(w, err)
		return
	}

	sources := planner.RankSources(fetched.Source, destination)
	if sources == nil {
		sources = []planner.SourceCapacity{}
	}
	ws.writeJSONResponse(w, http.StatusOK, CapacityResponse{
		Vault:         vaultAddress,
		Destination:   destination,
		Source:        kind,
		BlockNumber:   fetched.BlockNumber,
		Sources:       sources,
		Absorbable:    planner.MaxAbsorbable(fetched.Source, destination),
		TotalPullable: planner.TotalPullable(fetched.Source, destination),
	})
}

// PlanRequestBody is the JSON body of a plan request.
type PlanRequestBody struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Source      string `json:"source"`
}

// PlanResponse wraps a plan with the metadata of the state it was built from.
type PlanResponse struct {
	PlanID      uuid.UUID              `json:"plan_id"`
	Source      datafetcher.SourceKind `json:"source"`
	BlockNumber uint64                 `json:"block_number,omitempty"`
	Plan        *planner.PlanResult    `json:"plan"`
}

// handlePostPlan builds a reallocation plan and its call data
func (ws *WebServer) handlePostPlan(w http.ResponseWriter, r *http.Request) {
	vaultAddress, ok := parseVault(r)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault address")
		return
	}

	var body PlanRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_BODY_BYTES)).Decode(&body); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	destination, err := types.NewMarketID(body.Destination)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, destinationError(err))
		return
	}
	amount, err := utils.ParseAmount(body.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Amount must be a non-negative integer in base units")
		return
	}

	fetched, kind, err := ws.fetch(r.Context(), vaultAddress, body.Source)
	if err != nil {
		ws.metrics.ObservePlan(string(kind), metrics.OutcomeError, -1)
		ws.writeFetchError(w, err)
		return
	}

	result, err := planner.Plan(fetched.Source, planner.PlanRequest{
		Destination: destination,
		Requested:   amount,
		Fee:         fetched.Fee,
		Allocator:   ws.allocator,
	})
	if err != nil {
		ws.metrics.ObservePlan(string(kind), metrics.OutcomeError, -1)
		if errors.Is(err, planner.ErrUnknownDestination) {
			ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		ws.log.Error().Err(err).Str("vault", vaultAddress.Hex()).Msg("Failed to build plan")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to build plan")
		return
	}

	outcome, ratio := planOutcome(result)
	ws.metrics.ObservePlan(string(kind), outcome, ratio)

	planID := uuid.New()
	if state.DB != nil {
		record, err := state.NewPlanRecord(planID, result, string(kind), fetched.BlockNumber)
		if err == nil {
			err = state.SavePlanRecord(r.Context(), record)
		}
		if err != nil {
			ws.log.Warn().Err(err).Str("plan_id", planID.String()).Msg("Failed to persist plan record")
		}
	}

	ws.writeJSONResponse(w, http.StatusOK, PlanResponse{
		PlanID:      planID,
		Source:      kind,
		BlockNumber: fetched.BlockNumber,
		Plan:        result,
	})
}

// planOutcome classifies a plan and computes total/requested, or -1 for zero requests.
func planOutcome(result *planner.PlanResult) (string, float64) {
	outcome := metrics.OutcomePartial
	switch {
	case len(result.Withdrawals) == 0:
		outcome = metrics.OutcomeEmpty
	case result.Fulfilled:
		outcome = metrics.OutcomeFulfilled
	}
	if !result.Requested.IsPositive() {
		return outcome, -1
	}
	ratio := sdkmath.LegacyNewDecFromInt(result.Total).Quo(sdkmath.LegacyNewDecFromInt(result.Requested))
	f, err := ratio.Float64()
	if err != nil {
		return outcome, -1
	}
	return outcome, f
}

// handleGetPlans returns recently stored plans of a vault
func (ws *WebServer) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	vaultAddress, ok := parseVault(r)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault address")
		return
	}
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Plan persistence is not configured")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	records, err := state.GetRecentPlanRecords(r.Context(), vaultAddress.Hex(), limit)
	if err != nil {
		ws.log.Error().Err(err).Msg("Failed to get recent plans")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve plans")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"plans": records,
		"count": len(records),
		"limit": limit,
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/banana-dao/banana-vaults/internal/analyzer"
	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/state"
	"github.com/banana-dao/banana-vaults/internal/types"
	"github.com/banana-dao/banana-vaults/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// Audit is the read side of the audit database.
type Audit interface {
	Ping(ctx context.Context) error
	GetRecentSnapshots(ctx context.Context, limit int) ([]types.NAVSnapshot, error)
	GetSnapshotByID(ctx context.Context, snapshotID int64) (types.NAVSnapshot, error)
	GetRecentReceipts(ctx context.Context, limit int, instructions []string) ([]types.InstructionReceipt, error)
	GetVaultSummary(ctx context.Context) (state.VaultSummary, error)
	GetPerformanceMetrics(ctx context.Context) (state.PerformanceMetrics, error)
}

// riskWindow is the number of recent snapshots volatility and drawdown are computed over.
const riskWindow = 100

// performanceResponse adds risk figures over the last riskWindow snapshots. They are null when the
// history is too short or unavailable.
type performanceResponse struct {
	state.PerformanceMetrics
	Volatility  *float64 `json:"share_price_volatility"`
	MaxDrawdown *float64 `json:"max_drawdown"`
}

// Snapshots exposes the latest in-memory snapshot.
type Snapshots interface {
	Latest() (types.NAVSnapshot, bool)
}

// Config holds the dependencies of a WebServer. Audit, Snapshots and Metrics are optional.
type Config struct {
	Port      string
	Vault     vault.Service
	Audit     Audit
	Snapshots Snapshots
	Metrics   http.Handler
	// Tokens maps bearer tokens to the account they act as. Without tokens the instruction routes are
	// not served.
	Tokens map[string]string
}

// WebServer serves the vault JSON API.
type WebServer struct {
	router    *mux.Router
	port      string
	vault     vault.Service
	audit     Audit
	snapshots Snapshots
	metrics   http.Handler
	tokens    map[string]string
	server    *http.Server
	startedAt time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Vault == nil {
		return nil, errors.New("web server configuration validation failed: vault service cannot be nil")
	}
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	ws := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		vault:     cfg.Vault,
		audit:     cfg.Audit,
		snapshots: cfg.Snapshots,
		metrics:   cfg.Metrics,
		tokens:    cfg.Tokens,
		startedAt: time.Now(),
	}
	ws.setupRoutes()
	return ws, nil
}

// Handler returns the router, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Queries
	api.HandleFunc("/vault", ws.handleVaultInfo).Methods("GET")
	api.HandleFunc("/nav", ws.handleNAV).Methods("GET")
	api.HandleFunc("/accounts/{address}", ws.handleAccountShares).Methods("GET")
	api.HandleFunc("/whitelist", ws.handleWhitelist).Methods("GET")

	// Audit trail
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/snapshots/latest", ws.handleGetLatestSnapshot).Methods("GET")
	api.HandleFunc("/snapshots/{id:[0-9]+}", ws.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET")

	// Instructions
	if len(ws.tokens) == 0 {
		webLogger.Warn().Msg("No API tokens configured, serving the API read-only")
	} else {
		ws.instruction(api, "/instantiate", ws.handleInstantiate)
		ws.instruction(api, "/deposit", ws.handleDeposit)
		ws.instruction(api, "/withdraw", ws.handleWithdraw)
		ws.instruction(api, "/trade", ws.handleTrade)
		ws.instruction(api, "/status", ws.handleSetStatus)
		ws.instruction(api, "/halt", ws.handleHalt)
		ws.instruction(api, "/resume", ws.handleResume)
		ws.instruction(api, "/unlock", ws.handleUnlock)
		ws.instruction(api, "/force-exit", ws.handleForceExit)
		ws.instruction(api, "/whitelist", ws.handleUpdateWhitelist)
		ws.instruction(api, "/config", ws.handleUpdateConfig)
		ws.instruction(api, "/manager", ws.handleUpdateManager)
	}

	// CORS preflight for every path, answered by corsMiddleware
	ws.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// instruction registers an authenticated POST route.
func (ws *WebServer) instruction(router *mux.Router, path string, handler http.HandlerFunc) {
	router.Handle(path, ws.authenticate(handler)).Methods("POST")
}

// Start starts the web server and blocks until it stops. A Shutdown returns nil.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports process, vault and database health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	degraded := false
	vaultStatus := map[string]interface{}{"instantiated": false}
	if info, err := ws.vault.VaultInfo(); err == nil {
		vaultStatus = map[string]interface{}{
			"instantiated": true,
			"lifecycle":    info.Status.Lifecycle,
			"halted":       info.Status.Halted,
			"total_shares": info.TotalShares,
		}
	} else if !errors.Is(err, types.ErrNotInstantiated) {
		degraded = true
		vaultStatus["error"] = err.Error()
	}

	var dbHealthy *bool
	if ws.audit != nil {
		healthy := ws.audit.Ping(r.Context()) == nil
		dbHealthy = &healthy
		degraded = degraded || !healthy
	}

	snapshotInfo := map[string]interface{}{"last_snapshot_time": nil}
	if ws.snapshots != nil {
		if latest, ok := ws.snapshots.Latest(); ok {
			snapshotInfo = map[string]interface{}{
				"cycle":              latest.CycleNumber,
				"last_snapshot_time": latest.Timestamp,
				"nav":                latest.NAV,
			}
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if degraded {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
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
			"name":    "bvault",
			"version": "1.0.0",
		},
		"vault":            vaultStatus,
		"database_healthy": dbHealthy,
		"snapshot":         snapshotInfo,
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleVaultInfo(w http.ResponseWriter, r *http.Request) {
	info, err := ws.vault.VaultInfo()
	ws.respond(w, info, err)
}

func (ws *WebServer) handleNAV(w http.ResponseWriter, r *http.Request) {
	nav, err := ws.vault.NAV()
	ws.respond(w, nav, err)
}

func (ws *WebServer) handleAccountShares(w http.ResponseWriter, r *http.Request) {
	shares, err := ws.vault.AccountShares(mux.Vars(r)["address"])
	ws.respond(w, shares, err)
}

func (ws *WebServer) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	list, err := ws.vault.Whitelist()
	if list == nil {
		list = []string{}
	}
	ws.respond(w, map[string]interface{}{"whitelist": list}, err)
}

// queryLimit parses ?limit=, defaulting to 20 and capped at 100.
func queryLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// handleGetSnapshots returns recent snapshots, from the database when one is configured
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)

	var snapshots []types.NAVSnapshot
	switch {
	case ws.audit != nil:
		var err error
		snapshots, err = ws.audit.GetRecentSnapshots(r.Context(), limit)
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to get recent snapshots")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
			return
		}
	case ws.snapshots != nil:
		if latest, ok := ws.snapshots.Latest(); ok {
			snapshots = []types.NAVSnapshot{latest}
		}
	}
	if snapshots == nil {
		snapshots = []types.NAVSnapshot{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	})
}

func (ws *WebServer) handleGetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if ws.snapshots != nil {
		if latest, ok := ws.snapshots.Latest(); ok {
			ws.writeJSONResponse(w, http.StatusOK, latest)
			return
		}
	}
	if ws.audit != nil {
		snapshots, err := ws.audit.GetRecentSnapshots(r.Context(), 1)
		if err == nil && len(snapshots) > 0 {
			ws.writeJSONResponse(w, http.StatusOK, snapshots[0])
			return
		}
	}
	ws.writeErrorResponse(w, http.StatusNotFound, "No snapshots found")
}

func (ws *WebServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Audit database is not configured")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	snapshot, err := ws.audit.GetSnapshotByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrSnapshotNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Snapshot not found")
			return
		}
		webLogger.Error().Err(err).Int64("snapshotId", id).Msg("Failed to get snapshot")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshot")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Audit database is not configured")
		return
	}
	limit := queryLimit(r)
	receipts, err := ws.audit.GetRecentReceipts(r.Context(), limit, r.URL.Query()["instruction"])
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Audit database is not configured")
		return
	}
	summary, err := ws.audit.GetVaultSummary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	if ws.audit == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Audit database is not configured")
		return
	}
	metrics, err := ws.audit.GetPerformanceMetrics(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}

	response := performanceResponse{PerformanceMetrics: metrics}
	history, err := ws.audit.GetRecentSnapshots(r.Context(), riskWindow)
	if err != nil {
		webLogger.Warn().Err(err).Msg("Failed to load snapshot history for risk figures")
	} else {
		drawdown := analyzer.MaxDrawdown(history)
		response.MaxDrawdown = &drawdown
		if vol, err := analyzer.SharePriceVolatility(history); err == nil {
			response.Volatility = &vol
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
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
		methods := "GET, OPTIONS"
		if len(ws.tokens) > 0 {
			methods = "GET, POST, OPTIONS"
		}
		w.Header().Set("Access-Control-Allow-Methods", methods)
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

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alexherrero/chronoline/backtesting"
	"github.com/alexherrero/chronoline/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RunBacktestRequest defines the payload for starting a backtest.
type RunBacktestRequest struct {
	Strategy       string                 `json:"strategy" validate:"required,min=1,max=50"`
	Symbol         string                 `json:"symbol" validate:"required,min=1,max=20"`
	Start          time.Time              `json:"start" validate:"required"`
	End            time.Time              `json:"end" validate:"required,gtfield=Start"`
	InitialCapital float64                `json:"initial_capital" validate:"required,gt=0,lte=10000000"`
	StrategyConfig map[string]interface{} `json:"strategy_config"`
	// BacktestID optionally pins the run's result id to a value the
	// caller already knows, so a websocket can be opened against
	// /backtests/{id}/stream before this request completes and still
	// observe every snapshot published during the run.
	BacktestID string `json:"backtest_id"`
}

// RunBacktestHandler starts a new backtest.
func (h *Handler) RunBacktestHandler(w http.ResponseWriter, r *http.Request) {
	var req RunBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate request
	if valErr := validateStruct(req); valErr != nil {
		writeValidationError(w, valErr)
		return
	}

	// Get strategy
	strategy, ok := h.registry.Get(req.Strategy)
	if !ok {
		http.Error(w, fmt.Sprintf("Strategy '%s' not found", req.Strategy), http.StatusBadRequest)
		return
	}

	// Initialize strategy with config
	if err := strategy.Init(req.StrategyConfig); err != nil {
		http.Error(w, fmt.Sprintf("Failed to initialize strategy: %v", err), http.StatusBadRequest)
		return
	}

	// Fetch data
	// Using "1d" interval for default backtesting
	data, err := h.provider.GetHistoricalData(req.Symbol, req.Start, req.End, "1d")
	if err != nil {
		log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to fetch historical data")
		http.Error(w, "Failed to fetch historical data", http.StatusInternalServerError)
		return
	}

	// Configure backtest
	btConfig := backtesting.BacktestConfig{
		ID:                req.BacktestID,
		Symbol:            req.Symbol,
		StartDate:         req.Start,
		EndDate:           req.End,
		InitialCapital:    req.InitialCapital,
		Commission:        0.001, // $0.001 per share
		SimulationStyle:   h.config.SimulationStyle,
		MaxDrawdown:       h.config.MaxDrawdown,
		HeartbeatInterval: h.config.HeartbeatInterval,
		HeartbeatTimeout:  h.config.HeartbeatTimeout,
	}
	if req.BacktestID != "" {
		btConfig.OnSnapshot = func(point backtesting.EquityPoint) {
			h.streamHub.Publish(req.BacktestID, point)
		}
	}

	// Run backtest (synchronous for now, could be async). A websocket
	// opened against /backtests/{id}/stream before this call returns
	// observes every OnSnapshot callback live, from another goroutine,
	// while this handler blocks on Run.
	engine := backtesting.NewEngine()
	result, err := engine.Run(strategy, data, btConfig)
	if err != nil {
		log.Error().Err(err).Msg("Backtest execution failed")
		http.Error(w, fmt.Sprintf("Backtest failed: %v", err), http.StatusInternalServerError)
		return
	}

	// Store result
	h.mu.Lock()
	h.results[result.ID] = result
	h.mu.Unlock()

	if req.BacktestID != "" {
		h.streamHub.Publish(req.BacktestID, map[string]interface{}{
			"event":       "complete",
			"metrics":     result.Metrics,
			"risk_report": result.RiskReport,
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":          result.ID,
		"status":      "completed", // For sync execution
		"message":     "Backtest completed successfully",
		"metrics":     result.Metrics,
		"risk_report": result.RiskReport,
	})
}

// GetBacktestResultHandler returns results for a completed backtest.
func (h *Handler) GetBacktestResultHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	result, ok := h.results[id]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, "Backtest not found", http.StatusNotFound)
		return
	}

	// Generate report for summary
	report := backtesting.NewReport(result)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          result.ID,
		"status":      "completed",
		"strategy":    result.Strategy,
		"config":      result.Config,
		"metrics":     result.Metrics,
		"summary":     report.Summary(),
		"chart_data":  result.EquityCurve, // For frontend plotting
		"risk_report": result.RiskReport,
	})
}

// StreamBacktestHandler upgrades the connection to a websocket and
// forwards every EquityPoint snapshot published for this backtest id
// as the run progresses, until the client disconnects or the run
// completes. If the backtest has already finished by the time the
// client connects, it sends a single backtest_complete message instead
// of streaming nothing.
func (h *Handler) StreamBacktestHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conn, err := h.wsManager.Upgrade(w, r)
	if err != nil {
		log.Error().Err(err).Msg("backtest stream: failed to upgrade websocket")
		return
	}
	defer conn.Close()

	h.mu.RLock()
	result, done := h.results[id]
	h.mu.RUnlock()
	if done {
		_ = conn.WriteJSON(realtime.WebSocketMessage{
			Type:      "backtest_complete",
			Timestamp: time.Now(),
			Payload: map[string]interface{}{
				"id":          result.ID,
				"metrics":     result.Metrics,
				"risk_report": result.RiskReport,
			},
		})
		return
	}

	snapshots, unsubscribe := h.streamHub.Subscribe(id)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case payload, ok := <-snapshots:
			if !ok {
				return
			}
			msg := realtime.WebSocketMessage{Type: "backtest_snapshot", Timestamp: time.Now(), Payload: payload}
			if writeErr := conn.WriteJSON(msg); writeErr != nil {
				return
			}
		}
	}
}

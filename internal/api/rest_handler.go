package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fraudguard/internal/domain"
	"fraudguard/internal/engine"
	"fraudguard/internal/repository"
	"fraudguard/pkg/crypto"
)

// RuleLoader re-reads the rule configuration; the handler caches the result
// until an explicit reload. The engine itself never caches rules.
type RuleLoader func() ([]domain.FraudRule, error)

type APIHandler struct {
	engine         *engine.Engine
	alerts         repository.AlertStore
	signer         *crypto.Signer
	logger         *slog.Logger
	requestTimeout time.Duration

	loadRules RuleLoader
	rulesMu   sync.RWMutex
	rules     []domain.FraudRule
}

func NewAPIHandler(
	scoringEngine *engine.Engine,
	alerts repository.AlertStore,
	signer *crypto.Signer,
	loadRules RuleLoader,
	logger *slog.Logger,
) (*APIHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	h := &APIHandler{
		engine:         scoringEngine,
		alerts:         alerts,
		signer:         signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
		loadRules:      loadRules,
	}

	if err := h.reloadRules(); err != nil {
		return nil, fmt.Errorf("loading initial rule set: %w", err)
	}
	return h, nil
}

type ScoreTransactionRequest struct {
	UserID            string                 `json:"user_id"`
	Amount            decimal.Decimal        `json:"amount"`
	Currency          string                 `json:"currency"`
	Type              domain.TransactionType `json:"type"`
	MerchantName      string                 `json:"merchant_name,omitempty"`
	MerchantCategory  string                 `json:"merchant_category,omitempty"`
	Country           string                 `json:"country,omitempty"`
	City              string                 `json:"city,omitempty"`
	DeviceFingerprint string                 `json:"device_fingerprint,omitempty"`
	IPAddress         string                 `json:"ip_address,omitempty"`
	PaymentMethod     string                 `json:"payment_method,omitempty"`
	Timestamp         time.Time              `json:"timestamp,omitempty"`
	Signature         string                 `json:"signature,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) ScoreTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req ScoreTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if req.Signature != "" {
		valid, err := h.signer.VerifyScoringRequest(req.UserID, req.Amount.String(), req.Currency, req.Signature)
		if !valid || err != nil {
			h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
			return
		}
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx := domain.NewTransaction(req.UserID, req.Amount, req.Currency, req.Type, ts).
		WithMerchant(req.MerchantName, req.MerchantCategory).
		WithLocation(req.Country, req.City).
		WithDevice(req.DeviceFingerprint, req.IPAddress).
		WithPaymentMethod(req.PaymentMethod)

	result, err := h.engine.ProcessTransaction(ctx, tx, h.currentRules())
	switch {
	case errors.Is(err, engine.ErrInvalidTransaction):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_TRANSACTION")
		return
	case errors.Is(err, engine.ErrPersistence):
		// The score was computed; the host can retry persistence.
		h.logger.Error("persistence failed after scoring",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
		h.sendJSON(w, result, http.StatusAccepted)
		return
	case err != nil:
		h.logger.Error("transaction scoring failed",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
		h.sendError(w, "Scoring failed", http.StatusInternalServerError, "SCORING_ERROR")
		return
	}

	h.sendJSON(w, result, http.StatusCreated)
}

func (h *APIHandler) GetAlertHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	alert, err := h.alerts.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, "Alert not found", http.StatusNotFound, "NOT_FOUND")
		} else {
			h.sendError(w, "Failed to get alert", http.StatusInternalServerError, "SERVER_ERROR")
		}
		return
	}

	h.sendJSON(w, alert, http.StatusOK)
}

func (h *APIHandler) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var (
		alerts []*domain.FraudAlert
		err    error
	)
	switch {
	case r.URL.Query().Get("user_id") != "":
		alerts, err = h.alerts.GetByUserID(ctx, r.URL.Query().Get("user_id"), 100)
	case r.URL.Query().Get("status") != "":
		alerts, err = h.alerts.GetByStatus(ctx, domain.AlertStatus(r.URL.Query().Get("status")))
	default:
		alerts, err = h.alerts.GetByStatus(ctx, domain.AlertPending)
	}
	if err != nil {
		h.sendError(w, "Failed to list alerts", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.sendJSON(w, alerts, http.StatusOK)
}

type UpdateAlertStatusRequest struct {
	Status domain.AlertStatus `json:"status"`
}

func (h *APIHandler) UpdateAlertStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req UpdateAlertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	switch req.Status {
	case domain.AlertPending, domain.AlertConfirmedFraud, domain.AlertFalsePositive,
		domain.AlertInvestigating, domain.AlertResolved:
	default:
		h.sendError(w, fmt.Sprintf("Unknown status %q", req.Status), http.StatusBadRequest, "INVALID_STATUS")
		return
	}

	if err := h.alerts.UpdateStatus(ctx, r.PathValue("id"), req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, "Alert not found", http.StatusNotFound, "NOT_FOUND")
		} else {
			h.sendError(w, "Failed to update alert", http.StatusInternalServerError, "SERVER_ERROR")
		}
		return
	}

	h.sendJSON(w, map[string]string{"status": string(req.Status)}, http.StatusOK)
}

func (h *APIHandler) ReloadRulesHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.reloadRules(); err != nil {
		h.logger.Error("rule reload failed", slog.String("error", err.Error()))
		h.sendError(w, "Failed to reload rules", http.StatusInternalServerError, "RELOAD_ERROR")
		return
	}

	h.sendJSON(w, map[string]int{"rules_loaded": len(h.currentRules())}, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) currentRules() []domain.FraudRule {
	h.rulesMu.RLock()
	defer h.rulesMu.RUnlock()
	return h.rules
}

func (h *APIHandler) reloadRules() error {
	rules, err := h.loadRules()
	if err != nil {
		return err
	}

	h.rulesMu.Lock()
	h.rules = rules
	h.rulesMu.Unlock()

	h.logger.Info("rule set loaded", slog.Int("rules", len(rules)))
	return nil
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/transactions", h.ScoreTransactionHandler)
	mux.HandleFunc("GET /api/v1/alerts", h.ListAlertsHandler)
	mux.HandleFunc("GET /api/v1/alerts/{id}", h.GetAlertHandler)
	mux.HandleFunc("PATCH /api/v1/alerts/{id}/status", h.UpdateAlertStatusHandler)
	mux.HandleFunc("POST /api/v1/rules/reload", h.ReloadRulesHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}

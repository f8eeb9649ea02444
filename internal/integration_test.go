package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fraudguard/internal/api"
	"fraudguard/internal/config"
	"fraudguard/internal/domain"
	"fraudguard/internal/engine"
	"fraudguard/internal/profile"
	"fraudguard/internal/repository/memory"
	"fraudguard/pkg/crypto"
	"fraudguard/pkg/metrics"
)

var (
	weekdayAfternoon = time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	weekdayNight     = time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)
)

type testEnv struct {
	profileRepo  *memory.ProfileRepository
	velocityRepo *memory.VelocityRepository
	alertRepo    *memory.AlertRepository

	engine  *engine.Engine
	handler *api.APIHandler
	mux     *http.ServeMux
	signer  *crypto.Signer
	logger  *slog.Logger
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	profileRepo := memory.NewProfileRepository()
	velocityRepo := memory.NewVelocityRepository()
	alertRepo := memory.NewAlertRepository()

	logger := slog.Default()
	collector := metrics.NewCollector(nil)
	signer := crypto.NewSigner("test-secret", logger)
	accessor := profile.NewAccessor(profileRepo, logger)
	eng := engine.NewEngine(accessor, velocityRepo, alertRepo, collector, 0, logger)

	handler, err := api.NewAPIHandler(eng, alertRepo, signer, func() ([]domain.FraudRule, error) {
		return config.LoadRules("")
	}, logger)
	if err != nil {
		t.Fatalf("building API handler: %v", err)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testEnv{
		profileRepo:  profileRepo,
		velocityRepo: velocityRepo,
		alertRepo:    alertRepo,
		engine:       eng,
		handler:      handler,
		mux:          mux,
		signer:       signer,
		logger:       logger,
	}
}

func seedEstablishedUser(t *testing.T, env *testEnv, userID string) {
	t.Helper()
	p := domain.NewUserBehaviorProfile(userID)
	p.TxCount = 50
	p.MeanAmount = 100
	p.StdAmount = 20
	p.AmountM2 = 20 * 20 * 50
	p.MaxAmount = 180
	p.HourCounts[14] = 50
	p.FrequentMerchants["Grocery Plus"] = weekdayAfternoon.AddDate(0, 0, -3)
	p.UsualCountries["US"] = true
	p.UsualCities["New York"] = true
	p.KnownDevices["device-1"] = weekdayAfternoon.AddDate(0, 0, -1)
	p.DailyFrequency = 2
	p.FirstSeen = weekdayAfternoon.AddDate(0, -2, 0)
	p.UpdatedAt = weekdayAfternoon.AddDate(0, 0, -1)

	if err := env.profileRepo.Commit(context.Background(), userID, p); err != nil {
		t.Fatalf("seeding profile failed: %v", err)
	}
}

func callScoreTransaction(t *testing.T, env *testEnv, req api.ScoreTransactionRequest) (*engine.ScoringResult, int) {
	t.Helper()
	b, _ := json.Marshal(req)
	r := httptest.NewRequest("POST", "/api/v1/transactions", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.mux.ServeHTTP(w, r)

	respCode := w.Result().StatusCode
	if respCode != http.StatusCreated && respCode != http.StatusAccepted {
		return nil, respCode
	}

	var result engine.ScoringResult
	if err := json.NewDecoder(w.Result().Body).Decode(&result); err != nil {
		t.Fatalf("decoding scoring response: %v", err)
	}
	return &result, respCode
}

func TestIntegration_OrdinaryTransactionScoresLow(t *testing.T) {
	env := setup(t)

	result, code := callScoreTransaction(t, env, api.ScoreTransactionRequest{
		UserID:    "user-low",
		Amount:    decimal.NewFromFloat(50),
		Currency:  "USD",
		Type:      domain.TypePayment,
		Timestamp: weekdayAfternoon,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if result.FinalScore != 0 || result.AlertRaised {
		t.Errorf("expected a quiet score for a first ordinary transaction, got %+v", result)
	}
	if result.Confidence != domain.ConfidenceLow {
		t.Errorf("expected low confidence, got %s", result.Confidence)
	}
}

func TestIntegration_AnomalousTransactionRaisesAlert(t *testing.T) {
	env := setup(t)
	seedEstablishedUser(t, env, "user-risky")

	result, code := callScoreTransaction(t, env, api.ScoreTransactionRequest{
		UserID:    "user-risky",
		Amount:    decimal.NewFromFloat(600),
		Currency:  "USD",
		Type:      domain.TypePayment,
		Country:   "RU",
		City:      "Moscow",
		Timestamp: weekdayNight,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if result.FinalScore != 100 {
		t.Errorf("expected the maximum score, got %d", result.FinalScore)
	}
	if result.Confidence != domain.ConfidenceHigh {
		t.Errorf("expected high confidence, got %s", result.Confidence)
	}
	if !result.AlertRaised || result.Alert == nil {
		t.Fatalf("expected an alert, got %+v", result)
	}

	// the alert is queryable through the API
	r := httptest.NewRequest("GET", "/api/v1/alerts/"+result.Alert.ID, nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching the alert, got %d", w.Result().StatusCode)
	}

	var fetched domain.FraudAlert
	if err := json.NewDecoder(w.Result().Body).Decode(&fetched); err != nil {
		t.Fatalf("decoding alert: %v", err)
	}
	if fetched.Status != domain.AlertPending || fetched.RiskScore != 100 {
		t.Errorf("unexpected stored alert: %+v", fetched)
	}
	if len(fetched.Factors) == 0 {
		t.Error("expected the alert to carry its contributing factors")
	}
}

func TestIntegration_AlertWorkflow(t *testing.T) {
	env := setup(t)
	seedEstablishedUser(t, env, "user-risky")

	result, _ := callScoreTransaction(t, env, api.ScoreTransactionRequest{
		UserID:    "user-risky",
		Amount:    decimal.NewFromFloat(600),
		Currency:  "USD",
		Type:      domain.TypePayment,
		Country:   "RU",
		Timestamp: weekdayNight,
	})
	if result == nil || result.Alert == nil {
		t.Fatal("expected an alert to work with")
	}

	// listed under the user
	r := httptest.NewRequest("GET", "/api/v1/alerts?user_id=user-risky", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	var listed []*domain.FraudAlert
	if err := json.NewDecoder(w.Result().Body).Decode(&listed); err != nil {
		t.Fatalf("decoding alert list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != result.Alert.ID {
		t.Fatalf("expected the one raised alert, got %d", len(listed))
	}

	// analyst resolves it
	body := bytes.NewReader([]byte(`{"status": "confirmed_fraud"}`))
	r = httptest.NewRequest("PATCH", "/api/v1/alerts/"+result.Alert.ID+"/status", body)
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 updating status, got %d", w.Result().StatusCode)
	}

	// no longer pending
	r = httptest.NewRequest("GET", "/api/v1/alerts?status=pending", nil)
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	var pending []*domain.FraudAlert
	_ = json.NewDecoder(w.Result().Body).Decode(&pending)
	if len(pending) != 0 {
		t.Errorf("expected no pending alerts after confirmation, got %d", len(pending))
	}
}

func TestIntegration_InvalidTransactionRejected(t *testing.T) {
	env := setup(t)

	_, code := callScoreTransaction(t, env, api.ScoreTransactionRequest{
		UserID:    "user-bad",
		Amount:    decimal.Zero,
		Currency:  "US",
		Type:      domain.TransactionType("barter"),
		Timestamp: weekdayAfternoon,
	})

	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestIntegration_SignatureVerification(t *testing.T) {
	env := setup(t)
	amount := decimal.NewFromFloat(50)

	t.Run("valid signature accepted", func(t *testing.T) {
		_, code := callScoreTransaction(t, env, api.ScoreTransactionRequest{
			UserID:    "user-signed",
			Amount:    amount,
			Currency:  "USD",
			Type:      domain.TypePayment,
			Timestamp: weekdayAfternoon,
			Signature: env.signer.SignScoringRequest("user-signed", amount.String(), "USD"),
		})
		if code != http.StatusCreated {
			t.Fatalf("expected 201 with a valid signature, got %d", code)
		}
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		_, code := callScoreTransaction(t, env, api.ScoreTransactionRequest{
			UserID:    "user-signed",
			Amount:    amount,
			Currency:  "USD",
			Type:      domain.TypePayment,
			Timestamp: weekdayAfternoon,
			Signature: "deadbeef",
		})
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401 with a bad signature, got %d", code)
		}
	})
}

func TestIntegration_RapidTransactionsTripVelocityRule(t *testing.T) {
	env := setup(t)

	var last *engine.ScoringResult
	for i := 0; i < 4; i++ {
		result, code := callScoreTransaction(t, env, api.ScoreTransactionRequest{
			UserID:    "user-burst",
			Amount:    decimal.NewFromFloat(10),
			Currency:  "USD",
			Type:      domain.TypePayment,
			Timestamp: weekdayAfternoon.Add(time.Duration(i) * time.Minute),
		})
		if code != http.StatusCreated {
			t.Fatalf("transaction %d: expected 201, got %d", i+1, code)
		}
		last = result
	}

	found := false
	for _, f := range last.Factors {
		if f.Code == "Rapid Successive Transactions" {
			found = true
			if f.Contribution != 35 {
				t.Errorf("expected the velocity rule's full weight, got %d", f.Contribution)
			}
		}
	}
	if !found {
		t.Error("expected the velocity rule to fire on the fourth transaction")
	}
}

func TestIntegration_RulesReload(t *testing.T) {
	env := setup(t)

	r := httptest.NewRequest("POST", "/api/v1/rules/reload", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}

	var resp map[string]int
	_ = json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp["rules_loaded"] != len(config.DefaultRules()) {
		t.Errorf("expected the full default rule set, got %d", resp["rules_loaded"])
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	env := setup(t)

	r := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}
}

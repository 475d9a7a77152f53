package http_api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/core-coin/solvere/internal/config"
	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/repository"
	"github.com/core-coin/solvere/internal/solvere"
	"github.com/core-coin/solvere/pkg/logger"
)

const (
	testNow    = int64(1700000000)
	adminToken = "admin-secret"
)

var (
	merchantWallet = strings.Repeat("a1", 22)
	otherWallet    = strings.Repeat("b2", 22)
	payerWallet    = strings.Repeat("c3", 22)
	txAAA          = fmt.Sprintf("%064x", 0xaaa)
)

type stubChain struct {
	events map[string]*models.PaymentEvent
}

func (s *stubChain) VerifyPayment(ctx context.Context, txHash, merchant string) (*models.PaymentEvent, error) {
	event, ok := s.events[txHash]
	if !ok || event.Merchant != merchant {
		return nil, fmt.Errorf("payment event not found for this transaction: %w", models.ErrNotFound)
	}
	copied := *event
	return &copied, nil
}

type testServer struct {
	handler http.Handler
	db      *repository.Database
	metrics *metrics.Metrics
}

func setupServer(t *testing.T, admin string) *testServer {
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(conn))
	db := repository.New(conn, logger.NewNop())

	chain := &stubChain{events: map[string]*models.PaymentEvent{
		txAAA: {Merchant: merchantWallet, Payer: payerWallet, Amount: "10000000000000000", Timestamp: 1700000000, TxHash: txAAA},
	}}

	m := metrics.New()
	cfg := &config.Config{WebhookTimeout: time.Second, SweepInterval: time.Minute}
	core := solvere.NewSolvere(db, chain, nil, logger.NewNop(), cfg,
		solvere.WithMetrics(m),
		solvere.WithClock(func() time.Time { return time.Unix(testNow, 0) }),
	)

	srv := NewHTTPServer(core, 0, admin, m.Registry, logger.NewNop())
	srv.clock = func() time.Time { return time.Unix(testNow, 0) }
	return &testServer{handler: srv.Handler(), db: db, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

// verifyAAA records the canonical test payment and returns the response.
func (ts *testServer) verifyAAA(t *testing.T) (*httptest.ResponseRecorder, map[string]interface{}) {
	body := fmt.Sprintf(`{"txHash":"0x%s","merchant":"0x%s","amount":0.01}`, strings.ToUpper(txAAA), merchantWallet)
	return ts.do(t, http.MethodPost, "/api/v1/payments/verify", body, nil)
}

func (ts *testServer) merchantAPIKey(t *testing.T) string {
	m, err := ts.db.GetMerchantByWallet(context.Background(), merchantWallet)
	require.NoError(t, err)
	return m.APIKey
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	ts := setupServer(t, "")

	rec, body := ts.verifyAAA(t)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, payerWallet, body["payer"])
	assert.Equal(t, merchantWallet, body["merchant"])
	assert.Equal(t, "10000000000000000", body["amount"])
	assert.Equal(t, "1700000000", body["timestamp"])
	assert.NotEmpty(t, body["payment_id"])
	assert.Nil(t, body["message"])

	rec, body = ts.verifyAAA(t)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, "Payment already recorded", body["message"])
	assert.Equal(t, "10000000000000000", body["amount"])
	assert.Nil(t, body["payment_id"])

	var count int64
	require.NoError(t, ts.db.Conn.Model(&models.Payment{}).Where("tx_hash = ?", txAAA).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestVerifyPaymentEndpoint_Failures(t *testing.T) {
	ts := setupServer(t, "")

	t.Run("missing fields", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/payments/verify", `{"txHash":"0x1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, body["verified"])
		assert.NotEmpty(t, body["error"])
	})

	t.Run("malformed hash", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/payments/verify",
			map[string]interface{}{"txHash": "0xaaa", "merchant": merchantWallet, "amount": "1"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, body["verified"])
	})

	t.Run("event for another merchant", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/payments/verify",
			map[string]interface{}{"txHash": txAAA, "merchant": otherWallet, "amount": "1"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, false, body["verified"])
		assert.Contains(t, body["error"], "not found")
	})
}

func TestSubscriptionEndpoints(t *testing.T) {
	ts := setupServer(t, "")
	_, _ = ts.verifyAAA(t)
	apiKey := ts.merchantAPIKey(t)

	rec, plan := ts.do(t, http.MethodPost, "/api/v1/plans",
		map[string]interface{}{"name": "Pro", "amount": "1000", "interval": "monthly"},
		map[string]string{apiKeyHeader: apiKey})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	planID := plan["id"].(string)

	m, err := ts.db.GetMerchantByWallet(context.Background(), merchantWallet)
	require.NoError(t, err)
	sub := &models.Subscription{
		ID:               uuid.NewString(),
		MerchantID:       m.ID,
		Customer:         payerWallet,
		PayerWallet:      payerWallet,
		PlanID:           planID,
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: testNow + 2592000,
	}
	require.NoError(t, ts.db.CreateSubscription(context.Background(), sub))

	t.Run("list", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodGet, "/api/v1/subscriptions?merchant="+merchantWallet+"&customer="+payerWallet, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("access granted", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/access/verify",
			map[string]interface{}{"wallet": payerWallet, "merchant": merchantWallet, "plan_id": planID}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["access"])
		summary := body["subscription"].(map[string]interface{})
		assert.Equal(t, sub.ID, summary["id"])
		assert.Equal(t, planID, summary["plan"])
		assert.Equal(t, float64(testNow+2592000), summary["expires"])
	})

	t.Run("access without subscription", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/access/verify",
			map[string]interface{}{"wallet": otherWallet, "merchant": merchantWallet}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["access"])
		assert.Equal(t, "no active subscription", body["reason"])
		assert.Nil(t, body["subscription"])
	})

	t.Run("cancel", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", map[string]string{"subscription_id": sub.ID}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, sub.ID, body["subscription_id"])
		assert.Equal(t, models.SubscriptionStatusCanceled, body["status"])
		assert.Equal(t, "2023-11-14T22:13:20Z", body["updated_at"])
	})

	t.Run("cancel rejects non-uuid ids", func(t *testing.T) {
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", map[string]string{"subscription_id": "123"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancel unknown subscription", func(t *testing.T) {
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/subscriptions/cancel", map[string]string{"subscription_id": uuid.NewString()}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMerchantEndpoints(t *testing.T) {
	ts := setupServer(t, "")
	_, _ = ts.verifyAAA(t)
	apiKey := ts.merchantAPIKey(t)

	t.Run("api key required", func(t *testing.T) {
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/plans", map[string]string{"name": "x", "amount": "1", "interval": "weekly"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec, _ = ts.do(t, http.MethodPut, "/api/v1/merchants/webhook", map[string]string{"webhook_url": "https://example.com"},
			map[string]string{apiKeyHeader: "sk_wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid interval", func(t *testing.T) {
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/plans", map[string]string{"name": "x", "amount": "1", "interval": "daily"},
			map[string]string{apiKeyHeader: apiKey})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("webhook", func(t *testing.T) {
		rec, body := ts.do(t, http.MethodPut, "/api/v1/merchants/webhook", map[string]string{"webhook_url": "https://example.com/hook"},
			map[string]string{apiKeyHeader: apiKey})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://example.com/hook", body["webhook_url"])

		rec, _ = ts.do(t, http.MethodPut, "/api/v1/merchants/webhook", map[string]string{"webhook_url": "not a url"},
			map[string]string{apiKeyHeader: apiKey})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("plans listing", func(t *testing.T) {
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/plans", map[string]interface{}{"name": "Basic", "amount": 500, "interval": "weekly"},
			map[string]string{apiKeyHeader: apiKey})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec, body := ts.do(t, http.MethodGet, "/api/v1/plans?merchant=0x"+merchantWallet, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), body["count"])

		rec, _ = ts.do(t, http.MethodGet, "/api/v1/plans?merchant="+otherWallet, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPaymentListingEndpoints(t *testing.T) {
	ts := setupServer(t, "")
	_, verified := ts.verifyAAA(t)
	paymentID := verified["payment_id"].(string)

	rec, body := ts.do(t, http.MethodGet, "/api/v1/payments?merchant="+merchantWallet, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = ts.do(t, http.MethodGet, "/api/v1/payments/pending_invoices?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/payments/pending_invoices?limit=1000", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/payments/"+paymentID+"/invoice_sent", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/payments/pending_invoices", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
}

func TestJobsEndpoint(t *testing.T) {
	t.Run("disabled without admin token", func(t *testing.T) {
		ts := setupServer(t, "")
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/jobs/run", map[string]string{"job": "sweep"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	ts := setupServer(t, adminToken)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/jobs/run", map[string]string{"job": "sweep"}, map[string]string{adminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/run", map[string]string{"job": "reboot"}, map[string]string{adminTokenHeader: adminToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/api/v1/jobs/run", map[string]string{"job": "sweep"}, map[string]string{adminTokenHeader: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["expired"])

	rec, body = ts.do(t, http.MethodPost, "/api/v1/jobs/run", map[string]string{"job": "renew"}, map[string]string{adminTokenHeader: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["payment_required"])
}

func TestOperationalEndpoints(t *testing.T) {
	ts := setupServer(t, "")

	rec, body := ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = ts.do(t, http.MethodPost, "/api/v1/webhooks/receive", `{"event":"payment_succeeded"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["received"])

	_, _ = ts.verifyAAA(t)
	rec, _ = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `solvere_payments_verified_total{result="recorded"} 1`)
}

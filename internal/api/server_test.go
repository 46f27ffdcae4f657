package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/coinhook/internal/config"
	"github.com/shohag/coinhook/internal/metrics"
	"github.com/shohag/coinhook/internal/models"
	"github.com/shohag/coinhook/internal/signing"
	"github.com/shohag/coinhook/internal/webhook"
)

const testSecret = "whsec_test_secret"

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
	logs    *bytes.Buffer
}

func newTestServer(t *testing.T, verify bool, dispatcher *webhook.Dispatcher) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0,
			ServiceName: "coinbase-webhook-handler",
		},
		Webhook: config.WebhookConfig{
			Path:                "/webhook/coinbase",
			SignatureHeader:     "X-Coinbase-Signature",
			MaxBodySize:         1024,
			VerificationEnabled: verify,
		},
	}
	if verify {
		cfg.Webhook.Secret = testSecret
	}
	if dispatcher == nil {
		dispatcher = webhook.NewDefaultDispatcher()
	}

	var logs bytes.Buffer
	m := metrics.New()
	srv := NewServer(cfg, dispatcher, m, zerolog.New(&logs))

	return &testServer{handler: srv.Handler(), metrics: m, logs: &logs}
}

func (ts *testServer) post(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/coinbase", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Coinbase-Signature", signature)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestWebhook_ValidSignatureDispatches(t *testing.T) {
	ts := newTestServer(t, true, nil)
	body := []byte(`{"type":"wallet:buys:completed","data":{"id":"buy-1","amount":{"amount":"1.00","currency":"BTC"}}}`)

	rec := ts.post(body, signing.Sign(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{"received": true}, decodeBody(t, rec))

	logs := ts.logs.String()
	assert.Contains(t, logs, "webhook signature verified")
	assert.Contains(t, logs, "buy completed")
	assert.Contains(t, logs, "buy-1")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		ts.metrics.WebhookEventsTotal.WithLabelValues("wallet:buys:completed", metrics.OutcomeHandled)))
}

func TestWebhook_UnrecognizedTypeStillAcknowledged(t *testing.T) {
	ts := newTestServer(t, true, nil)
	body := []byte(`{"type":"something:unrecognized","data":{}}`)

	rec := ts.post(body, signing.Sign(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"received": true}, decodeBody(t, rec))
	assert.Contains(t, ts.logs.String(), "unhandled event type")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		ts.metrics.WebhookEventsTotal.WithLabelValues(metrics.OtherEventType, metrics.OutcomeUnhandled)))
}

func TestWebhook_MissingTypeIsUnhandled(t *testing.T) {
	ts := newTestServer(t, true, nil)
	body := []byte(`{"data":{"id":"x"}}`)

	rec := ts.post(body, signing.Sign(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, ts.logs.String(), "unhandled event type")
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	dispatcher := webhook.NewDispatcher()
	dispatched := false
	dispatcher.SetFallback(func(context.Context, zerolog.Logger, *models.Event) error {
		dispatched = true
		return nil
	})
	dispatcher.Register("wallet:buys:completed", func(context.Context, zerolog.Logger, *models.Event) error {
		dispatched = true
		return nil
	})

	ts := newTestServer(t, true, dispatcher)
	body := []byte(`{"type":"wallet:buys:completed","data":{}}`)

	tests := []struct {
		name      string
		signature string
	}{
		{"wrong digest", strings.Repeat("0", 64)},
		{"wrong secret", signing.Sign("other-secret", body)},
		{"truncated", signing.Sign(testSecret, body)[:10]},
		{"not hex", "zzzz-not-hex"},
		{"missing header", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.post(body, tt.signature)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, map[string]any{"error": "Invalid signature"}, decodeBody(t, rec))
			assert.False(t, dispatched, "no dispatch on rejected signature")
		})
	}

	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(
		ts.metrics.WebhookRejectionsTotal.WithLabelValues(metrics.ReasonSignature)))
	assert.Contains(t, ts.logs.String(), "invalid webhook signature")
}

func TestWebhook_SignatureOverRawBytes(t *testing.T) {
	ts := newTestServer(t, true, nil)

	// Signed form has whitespace and key order that re-encoding would lose.
	body := []byte("{\n  \"data\": {\"b\": 2, \"a\": 1},\n  \"type\": \"wallet:sells:completed\"\n}")

	rec := ts.post(body, signing.Sign(testSecret, body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, ts.logs.String(), "sell completed")
}

func TestWebhook_VerificationDisabledBypasses(t *testing.T) {
	ts := newTestServer(t, false, nil)
	body := []byte(`{"type":"wallet:addresses:new-payment","data":{"address":"abc"}}`)

	for _, signature := range []string{"", "garbage", strings.Repeat("0", 64)} {
		ts.logs.Reset()

		rec := ts.post(body, signature)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"received": true}, decodeBody(t, rec))

		logs := ts.logs.String()
		assert.Equal(t, 1, strings.Count(logs, "signature verification skipped"), "one warning per request")
		assert.Contains(t, logs, "new payment received")
		assert.Contains(t, logs, `"level":"warn"`)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(ts.metrics.WebhookVerificationSkipped))
}

func TestWebhook_MalformedJSON(t *testing.T) {
	ts := newTestServer(t, true, nil)
	body := []byte(`{"type": "wallet:buys:completed",`)

	rec := ts.post(body, signing.Sign(testSecret, body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"error": "invalid request body"}, decodeBody(t, rec))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		ts.metrics.WebhookRejectionsTotal.WithLabelValues(metrics.ReasonMalformed)))
}

func TestWebhook_MalformedJSONWithBadSignatureIsUnauthorized(t *testing.T) {
	ts := newTestServer(t, true, nil)

	rec := ts.post([]byte(`not json`), "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, true, nil)
	body := []byte(`{"type":"wallet:buys:completed","data":"` + strings.Repeat("x", 2048) + `"}`)

	rec := ts.post(body, signing.Sign(testSecret, body))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		ts.metrics.WebhookRejectionsTotal.WithLabelValues(metrics.ReasonBodyTooLarge)))
}

func TestWebhook_HandlerErrorReturns500(t *testing.T) {
	dispatcher := webhook.NewDispatcher()
	dispatcher.Register("wallet:buys:completed", func(context.Context, zerolog.Logger, *models.Event) error {
		return errors.New("downstream unavailable")
	})

	ts := newTestServer(t, true, dispatcher)
	body := []byte(`{"type":"wallet:buys:completed","data":{}}`)

	rec := ts.post(body, signing.Sign(testSecret, body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "failed to process event"}, decodeBody(t, rec))
	assert.Contains(t, ts.logs.String(), "downstream unavailable")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		ts.metrics.WebhookEventsTotal.WithLabelValues("wallet:buys:completed", metrics.OutcomeFailed)))
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, true, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/coinbase", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	for _, verify := range []bool{true, false} {
		ts := newTestServer(t, verify, nil)

		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"status": "ok", "service": "coinbase-webhook-handler"}, decodeBody(t, rec))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, true, nil)

	ts.handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `coinhook_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestLoggingMiddleware(t *testing.T) {
	ts := newTestServer(t, true, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(ts.logs.Bytes()), &line))
	assert.Equal(t, "request", line["message"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/health", line["path"])
	assert.EqualValues(t, 200, line["status"])
	assert.NotEmpty(t, line["request_id"])
}

func TestServer_CustomWebhookPath(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{ServiceName: "svc"},
		Webhook: config.WebhookConfig{Path: "/hooks/cb"},
	}
	srv := NewServer(cfg, webhook.NewDefaultDispatcher(), metrics.New(), zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hooks/cb", strings.NewReader(`{"type":"x"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/coinbase", strings.NewReader(`{"type":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := NewServer(&config.Config{}, webhook.NewDispatcher(), metrics.New(), zerolog.Nop())
	assert.NoError(t, srv.Shutdown(0))
	assert.Equal(t, ":0", srv.Addr())
}

package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bowerbird-app/captain-hook-sub005/core"
	"github.com/bowerbird-app/captain-hook-sub005/executor"
	"github.com/bowerbird-app/captain-hook-sub005/intake"
	"github.com/bowerbird-app/captain-hook-sub005/verifiers"
)

const testSecret = "whsec_test"

func newTestServer(t *testing.T) (*Server, *core.ActionRegistry, *core.InvokerRegistry) {
	t.Helper()

	events := core.NewMemoryEventStore()
	actions := core.NewMemoryActionStore()
	events.BindActionStore(actions)
	providers := core.NewMemoryProviderStore()
	registry := core.NewActionRegistry()
	invokers := core.NewInvokerRegistry()

	clock := func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	runner := &executor.Runner{
		Events:   events,
		Actions:  actions,
		Registry: registry,
		Invokers: invokers,
		Defaults: core.DefaultConfig().Dispatch,
		Now:      clock,
	}
	service := intake.New(core.EngineDependencies{
		EventStore:       events,
		ActionStore:      actions,
		ProviderStore:    providers,
		RateCounterStore: core.NewMemoryRateCounterStore(),
		ActionRegistry:   registry,
		InvokerRegistry:  invokers,
		Now:              clock,
	}, runner, verifiers.DefaultRegistry())

	if err := providers.Upsert(context.Background(), core.ProviderConfig{
		Name:     "stripe",
		Token:    "tok_live",
		Verifier: "stripe",
		Secret:   testSecret,
		Active:   true,
	}); err != nil {
		t.Fatalf("upsert provider: %v", err)
	}

	return NewServer(service, core.Observer{}), registry, invokers
}

func postSignedDelivery(t *testing.T, server *Server, body string, tamper bool) *httptest.ResponseRecorder {
	t.Helper()
	timestamp := "1780315200"
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%s.%s", timestamp, body)
	signature := hex.EncodeToString(mac.Sum(nil))
	if tamper {
		signature = "deadbeef" + signature[8:]
	}

	req := httptest.NewRequest(http.MethodPost, "/stripe/tok_live", bytes.NewBufferString(body))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", timestamp, signature))
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body %q: %v", recorder.Body.String(), err)
	}
	return body
}

func TestServer_SignedDeliveryReturns201(t *testing.T) {
	server, registry, invokers := newTestServer(t)
	if err := registry.Register(core.ActionConfig{
		Provider:    "stripe",
		EventType:   "charge.succeeded",
		ActionClass: "billing.Settle",
	}); err != nil {
		t.Fatalf("register config: %v", err)
	}
	invoked := 0
	_ = invokers.Register("billing.Settle", core.ActionFunc(
		func(context.Context, core.IncomingEvent, map[string]any, map[string]any) error {
			invoked++
			return nil
		},
	))

	recorder := postSignedDelivery(t, server, `{"id":"evt_http_1","type":"charge.succeeded"}`, false)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["status"] != "received" {
		t.Fatalf("expected received status, got %v", body)
	}
	if body["id"] == nil || body["id"] == "" {
		t.Fatalf("expected event id in body, got %v", body)
	}
	if invoked != 1 {
		t.Fatalf("expected synchronous action execution, got %d", invoked)
	}
}

func TestServer_RedeliveryReturns200Duplicate(t *testing.T) {
	server, _, _ := newTestServer(t)
	payload := `{"id":"evt_http_dup","type":"charge.succeeded"}`

	first := postSignedDelivery(t, server, payload, false)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first delivery, got %d", first.Code)
	}
	firstBody := decodeBody(t, first)

	second := postSignedDelivery(t, server, payload, false)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", second.Code)
	}
	secondBody := decodeBody(t, second)
	if secondBody["status"] != "duplicate" {
		t.Fatalf("expected duplicate status, got %v", secondBody)
	}
	if secondBody["id"] != firstBody["id"] {
		t.Fatalf("expected same event id, got %v and %v", firstBody["id"], secondBody["id"])
	}
}

func TestServer_RejectionContract(t *testing.T) {
	cases := []struct {
		name       string
		path       string
		body       string
		tamper     bool
		wantStatus int
		wantError  string
	}{
		{
			name:       "unknown provider",
			path:       "/github/tok_live",
			body:       `{"id":"evt_1"}`,
			wantStatus: http.StatusNotFound,
			wantError:  "Unknown provider",
		},
		{
			name:       "invalid token",
			path:       "/stripe/tok_wrong",
			body:       `{"id":"evt_1"}`,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid token",
		},
		{
			name:       "tampered signature",
			path:       "/stripe/tok_live",
			body:       `{"id":"evt_1","type":"charge.succeeded"}`,
			tamper:     true,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid signature",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, _, _ := newTestServer(t)

			var recorder *httptest.ResponseRecorder
			if tc.path == "/stripe/tok_live" {
				recorder = postSignedDelivery(t, server, tc.body, tc.tamper)
			} else {
				req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
				recorder = httptest.NewRecorder()
				server.ServeHTTP(recorder, req)
			}

			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d body=%s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
			body := decodeBody(t, recorder)
			if body["error"] != tc.wantError {
				t.Fatalf("expected error %q, got %v", tc.wantError, body)
			}
		})
	}
}

func TestServer_InvalidJSONAfterValidSignature(t *testing.T) {
	server, _, _ := newTestServer(t)
	recorder := postSignedDelivery(t, server, `{"id": "evt_1",`, false)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["error"] != "Invalid JSON" {
		t.Fatalf("expected invalid JSON error, got %v", body)
	}
}

func TestServer_Healthz(t *testing.T) {
	server, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

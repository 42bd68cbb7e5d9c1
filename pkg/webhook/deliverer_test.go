package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fixmate/fixmate/pkg/events"
	"github.com/fixmate/fixmate/pkg/urlvalidation"
)

func stepAdvancedEnvelope() events.Envelope {
	data, _ := json.Marshal(events.ProcedureCompletedData{
		ProcedureID: "dryer-belt",
		TotalSteps:  3,
	})
	return events.Envelope{
		ID:        "evt-1",
		Type:      events.ProcedureCompleted,
		Source:    "test",
		SessionID: "sess-1",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// newTestDeliverer runs without a repository; delivery records and dead
// letters become no-ops, which is the ephemeral single-binary mode.
func newTestDeliverer(maxRetries int) *Deliverer {
	return NewDeliverer(nil, DelivererConfig{
		MaxRetries:        maxRetries,
		TimeoutSec:        5,
		BackoffInitialSec: 0,
		BackoffMaxSec:     0,
		CBFailThreshold:   10,
		CBResetTimeoutSec: 60,
	}, urlvalidation.AllowPrivateIPs())
}

func testEndpoint(id, url, secret string) Endpoint {
	ep := Endpoint{URL: url, Secret: secret, Active: true}
	ep.ID = id
	return ep
}

func TestDeliverSendsSignedRequest(t *testing.T) {
	var sigValid, headersOK atomic.Bool
	secret := "endpoint-secret-123"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if Verify(secret, body, r.Header.Get(SignatureHeader)) {
			sigValid.Store(true)
		}
		if r.Header.Get("Content-Type") == "application/json" &&
			r.Header.Get("X-Fixmate-Event") == string(events.ProcedureCompleted) &&
			r.Header.Get("X-Fixmate-Delivery") == "evt-1" &&
			r.Header.Get("X-Fixmate-Session") == "sess-1" {
			headersOK.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := newTestDeliverer(1)
	d.Deliver(t.Context(), testEndpoint("ep-1", ts.URL, secret), stepAdvancedEnvelope())

	if !sigValid.Load() {
		t.Error("delivery signature did not verify against the endpoint secret")
	}
	if !headersOK.Load() {
		t.Error("delivery headers missing or wrong")
	}
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := newTestDeliverer(5)
	d.Deliver(t.Context(), testEndpoint("ep-retry", ts.URL, "s"), stepAdvancedEnvelope())

	if got := calls.Load(); got != 3 {
		t.Errorf("endpoint saw %d requests, want 3", got)
	}
}

func TestDeliverStopsAtMaxRetries(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d := newTestDeliverer(3)
	d.Deliver(t.Context(), testEndpoint("ep-down", ts.URL, "s"), stepAdvancedEnvelope())

	if got := calls.Load(); got != 3 {
		t.Errorf("endpoint saw %d requests, want 3", got)
	}
}

func TestDeliverSkipsAttemptsWhileBreakerOpen(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d := NewDeliverer(nil, DelivererConfig{
		MaxRetries:        4,
		TimeoutSec:        5,
		BackoffInitialSec: 0,
		BackoffMaxSec:     0,
		CBFailThreshold:   2,
		CBResetTimeoutSec: 3600,
	}, urlvalidation.AllowPrivateIPs())

	d.Deliver(t.Context(), testEndpoint("ep-breaker", ts.URL, "s"), stepAdvancedEnvelope())

	// The breaker opens after two failures, so attempts 3 and 4 never
	// reach the endpoint.
	if got := calls.Load(); got != 2 {
		t.Errorf("endpoint saw %d requests, want 2", got)
	}
}

func TestDeliverRefusesUnvalidatedURL(t *testing.T) {
	// No AllowPrivateIPs here: the loopback httptest address must be
	// rejected before any request goes out.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached an endpoint that should have been refused")
	}))
	defer ts.Close()

	d := NewDeliverer(nil, DelivererConfig{
		MaxRetries: 1, TimeoutSec: 5, CBFailThreshold: 5, CBResetTimeoutSec: 60,
	})
	d.Deliver(t.Context(), testEndpoint("ep-private", ts.URL, "s"), stepAdvancedEnvelope())
}

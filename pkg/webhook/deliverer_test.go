package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talkscribe/talkscribe/pkg/events"
	"github.com/talkscribe/talkscribe/pkg/urlvalidation"
)

func testEnvelope() events.Envelope {
	data, _ := json.Marshal(events.WebhookTestData{
		WebhookID: "wh-1",
		Message:   "ping",
	})
	return events.Envelope{
		ID:        "evt-1",
		Type:      events.WebhookTest,
		Source:    "test",
		SessionID: "sess-1",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func testConfig() DelivererConfig {
	return DelivererConfig{
		MaxRetries:        1,
		TimeoutSec:        5,
		BackoffInitialSec: 1,
		BackoffMaxSec:     1,
	}
}

func TestDelivererSuccess(t *testing.T) {
	var received atomic.Bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing Content-Type header")
		}
		if r.Header.Get(SignatureHeader) == "" {
			t.Error("missing signature header")
		}
		if r.Header.Get("X-Talkscribe-Event") != string(events.WebhookTest) {
			t.Error("wrong event header")
		}
		received.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewDeliverer(nil, testConfig(), nil, urlvalidation.AllowPrivateIPs())

	wh := WebhookEndpoint{
		URL:    ts.URL,
		Secret: "test-secret",
	}
	wh.ID = "wh-1"

	d.Deliver(t.Context(), wh, testEnvelope())

	if !received.Load() {
		t.Error("server did not receive the webhook delivery")
	}
}

func TestDelivererSignatureVerification(t *testing.T) {
	secret := "webhook-secret-123"
	var sigValid atomic.Bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 4096)
		n, _ := r.Body.Read(body)
		body = body[:n]

		sig := r.Header.Get(SignatureHeader)
		if Verify(secret, body, sig) {
			sigValid.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewDeliverer(nil, testConfig(), nil, urlvalidation.AllowPrivateIPs())

	wh := WebhookEndpoint{
		URL:    ts.URL,
		Secret: secret,
	}
	wh.ID = "wh-sig"

	d.Deliver(t.Context(), wh, testEnvelope())

	if !sigValid.Load() {
		t.Error("webhook signature was not valid")
	}
}

func TestDelivererRetriesOnServerError(t *testing.T) {
	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	d := NewDeliverer(nil, cfg, nil, urlvalidation.AllowPrivateIPs())

	wh := WebhookEndpoint{URL: ts.URL, Secret: "s"}
	wh.ID = "wh-retry"

	d.Deliver(t.Context(), wh, testEnvelope())

	// First attempt is synchronous; the single retry fires after the
	// backoff on a timer.
	deadline := time.Now().Add(5 * time.Second)
	for hits.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2 (initial + one retry)", got)
	}
}

func TestDelivererBlocksPrivateURL(t *testing.T) {
	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// No AllowPrivateIPs: the loopback test server must be rejected
	// before any request is sent.
	d := NewDeliverer(nil, testConfig(), nil)

	wh := WebhookEndpoint{URL: ts.URL, Secret: "s"}
	wh.ID = "wh-private"

	d.Deliver(t.Context(), wh, testEnvelope())

	if got := hits.Load(); got != 0 {
		t.Errorf("server hit %d times, want 0 for a private address", got)
	}
}

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fixmate/fixmate/pkg/events"
	"github.com/fixmate/fixmate/pkg/urlvalidation"
)

// Caps the per-endpoint breaker map; endpoints come and go and the map
// must not grow without bound.
const maxBreakers = 10000

// DelivererConfig holds delivery-related settings.
type DelivererConfig struct {
	MaxRetries        int
	TimeoutSec        int
	BackoffInitialSec int
	BackoffMaxSec     int
	CBFailThreshold   int
	CBResetTimeoutSec int
}

// Deliverer POSTs signed event envelopes to endpoints. Each call to
// Deliver runs the full attempt loop for one endpoint: retries with
// exponential backoff, a per-endpoint breaker, and a dead letter when
// every attempt fails. Callers run Deliver on a worker so the loop's
// waits never block event consumption.
type Deliverer struct {
	repo         *Repository
	client       *http.Client
	cfg          DelivererConfig
	validateOpts []urlvalidation.Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewDeliverer(repo *Repository, cfg DelivererConfig, validateOpts ...urlvalidation.Option) *Deliverer {
	return &Deliverer{
		repo: repo,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:          cfg,
		validateOpts: validateOpts,
		breakers:     make(map[string]*Breaker),
	}
}

// Deliver runs the delivery loop for one endpoint and one event. It
// returns when the event is delivered, dead-lettered, or ctx ends.
func (d *Deliverer) Deliver(ctx context.Context, ep Endpoint, env events.Envelope) {
	if err := urlvalidation.Validate(ep.URL, d.validateOpts...); err != nil {
		slog.ErrorContext(ctx, "webhook endpoint refused by url validation",
			slog.String("endpoint_id", ep.ID),
			slog.String("url", ep.URL),
			slog.String("error", err.Error()))
		return
	}

	body, err := json.Marshal(env)
	if err != nil {
		slog.ErrorContext(ctx, "webhook envelope marshal failed",
			slog.String("event_id", env.ID), slog.String("error", err.Error()))
		return
	}
	signature := Sign(ep.Secret, body)
	br := d.breaker(ep.ID)

	var lastErr string
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if !d.wait(ctx, attempt-1) {
				return
			}
		}

		if !br.Allow() {
			lastErr = "breaker open"
			continue
		}

		rec := &Delivery{
			EndpointID: ep.ID,
			EventID:    env.ID,
			EventType:  string(env.Type),
			SessionID:  env.SessionID,
			Attempt:    attempt,
		}

		start := time.Now()
		status, err := d.post(ctx, ep.URL, signature, env, body)
		rec.DurationMs = time.Since(start).Milliseconds()
		rec.StatusCode = status

		if err == nil {
			br.Success()
			rec.Delivered = true
			d.record(ctx, rec)
			d.noteBreaker(ctx, ep.ID, br)
			return
		}

		br.Failure()
		lastErr = err.Error()
		rec.Error = lastErr
		d.record(ctx, rec)
		d.noteBreaker(ctx, ep.ID, br)

		if ctx.Err() != nil {
			return
		}
	}

	d.deadLetter(ctx, ep, env, body, lastErr)
}

// post sends one signed request. Any non-2xx response counts as a failed
// attempt.
func (d *Deliverer) post(ctx context.Context, url, signature string, env events.Envelope, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set("X-Fixmate-Event", string(env.Type))
	req.Header.Set("X-Fixmate-Delivery", env.ID)
	if env.SessionID != "" {
		req.Header.Set("X-Fixmate-Session", env.SessionID)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// wait sleeps out the exponential backoff for the given completed attempt
// count. Returns false when ctx ended first.
func (d *Deliverer) wait(ctx context.Context, attempts int) bool {
	backoff := d.cfg.BackoffInitialSec * (1 << (attempts - 1))
	if backoff > d.cfg.BackoffMaxSec {
		backoff = d.cfg.BackoffMaxSec
	}
	if backoff <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(time.Duration(backoff) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Deliverer) breaker(endpointID string) *Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if br, ok := d.breakers[endpointID]; ok {
		return br
	}
	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}
	br := NewBreaker(d.cfg.CBFailThreshold, time.Duration(d.cfg.CBResetTimeoutSec)*time.Second)
	d.breakers[endpointID] = br
	return br
}

// record persists a delivery outcome. A nil repository (ephemeral mode,
// tests) makes the audit trail a no-op.
func (d *Deliverer) record(ctx context.Context, rec *Delivery) {
	if d.repo == nil {
		return
	}
	if err := d.repo.RecordDelivery(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "record webhook delivery failed", slog.String("error", err.Error()))
	}
}

func (d *Deliverer) noteBreaker(ctx context.Context, endpointID string, br *Breaker) {
	if d.repo == nil {
		return
	}
	if err := d.repo.SetBreakerState(ctx, endpointID, br.State()); err != nil {
		slog.ErrorContext(ctx, "persist breaker state failed", slog.String("error", err.Error()))
	}
}

func (d *Deliverer) deadLetter(ctx context.Context, ep Endpoint, env events.Envelope, body []byte, lastErr string) {
	slog.WarnContext(ctx, "webhook delivery exhausted, dead-lettering",
		slog.String("endpoint_id", ep.ID),
		slog.String("event_id", env.ID),
		slog.String("last_error", lastErr))
	if d.repo == nil {
		return
	}
	if err := d.repo.AddDeadLetter(ctx, &DeadLetter{
		EndpointID: ep.ID,
		EventID:    env.ID,
		EventType:  string(env.Type),
		SessionID:  env.SessionID,
		Payload:    string(body),
		LastError:  lastErr,
		Attempts:   d.cfg.MaxRetries,
	}); err != nil {
		slog.ErrorContext(ctx, "add dead letter failed", slog.String("error", err.Error()))
	}
}

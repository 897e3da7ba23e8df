package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeThresholds(t *testing.T) {
	var err error
	p := newProbe("flaky", time.Second, func(context.Context) error { return err })

	ok, _ := p.state()
	assert.True(t, ok, "probes start optimistic")

	// Two failures are not enough to flip.
	err = errors.New("down")
	p.observe(context.Background())
	p.observe(context.Background())
	ok, _ = p.state()
	assert.True(t, ok)

	// The third consecutive failure is.
	p.observe(context.Background())
	ok, lastErr := p.state()
	assert.False(t, ok)
	assert.EqualError(t, lastErr, "down")

	// One pass recovers.
	err = nil
	p.observe(context.Background())
	ok, _ = p.state()
	assert.True(t, ok)
}

func TestProbeFailureCounterResets(t *testing.T) {
	calls := 0
	p := newProbe("wobbly", time.Second, func(context.Context) error {
		calls++
		if calls%3 == 0 {
			return nil
		}
		return errors.New("down")
	})

	// fail, fail, pass, fail, fail, pass: never three in a row.
	for range 6 {
		p.observe(context.Background())
	}
	ok, _ := p.state()
	assert.True(t, ok)
}

func TestProbeTimeout(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	for range failThreshold {
		p.observe(context.Background())
	}
	ok, lastErr := p.state()
	assert.False(t, ok)
	require.ErrorIs(t, lastErr, context.DeadlineExceeded)
}

func statusBody(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]string) {
	t.Helper()
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Status, body.Checks
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, func(context.Context) error { return nil })

	// Not marked ready yet.
	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status, checks := statusBody(t, rec)
	assert.Equal(t, "unhealthy", status)
	assert.Contains(t, checks, "_readiness")

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	status, _ = statusBody(t, rec)
	assert.Equal(t, "ok", status)
	assert.True(t, h.IsReady())

	// Draining flips it back.
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestLiveEndpointReportsFailures(t *testing.T) {
	h := New()
	h.AddLivenessCheck("broken", time.Second, func(context.Context) error {
		return errors.New("always down")
	})

	// Force the probe unhealthy.
	h.mu.Lock()
	p := h.liveness[0]
	h.mu.Unlock()
	for range failThreshold {
		p.observe(context.Background())
	}

	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	_, checks := statusBody(t, rec)
	assert.Equal(t, "always down", checks["broken"])
}

func TestStartAndStop(t *testing.T) {
	h := New()
	observed := make(chan struct{}, 1)
	h.AddReadinessCheck("ping", time.Second, func(context.Context) error {
		select {
		case observed <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), time.Hour)
	defer h.Stop()

	select {
	case <-observed:
	case <-time.After(2 * time.Second):
		t.Fatal("check did not run after Start")
	}
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and captures line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu      sync.Mutex
	lines   []string
	query   string
	healthy bool
	failing bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		if f.failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":"invalid","message":"bad line"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.query = r.URL.RawQuery
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitForLines polls until n lines have been received. Flushing hands the
// batch to a background writer, so the POST may land slightly later.
func (f *fakeInflux) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lines := f.snapshot(); len(lines) >= n {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("received %d lines, want %d", len(f.snapshot()), n)
	return nil
}

func newFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{healthy: true}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "graylogic",
		Bucket:        "panel",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := newFake(t)
	cfg.Enabled = false

	client, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, cfg := newFake(t)
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	_, cfg := newFake(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := influxdb.Connect(ctx, cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client != nil {
		t.Error("Connect() returned a client for a cancelled context")
	}
}

func TestClose_Idempotent(t *testing.T) {
	_, cfg := newFake(t)
	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := client.Close(); err != nil {
			t.Errorf("Close() #%d error = %v", i+1, err)
		}
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	tests := []struct {
		name          string
		batchSize     int
		flushInterval int
	}{
		{"zero", 0, 0},
		{"negative", -5, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cfg := newFake(t)
			cfg.BatchSize = tt.batchSize
			cfg.FlushInterval = tt.flushInterval

			client, err := influxdb.Connect(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer client.Close()

			if !client.IsConnected() {
				t.Error("IsConnected() = false with default batch settings")
			}
		})
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	fake, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	fake.mu.Lock()
	fake.healthy = false
	fake.mu.Unlock()

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() = nil for an unhealthy server")
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	_, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	_, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteReading(t *testing.T) {
	fake, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.WriteReading("temp-lounge", "hub-1", "environmental", 21.5, observed)
	client.Flush()

	lines := fake.waitForLines(t, 1)
	line := lines[0]

	for _, want := range []string{
		"device_readings,",
		"category=environmental",
		"device_id=temp-lounge",
		"hub_id=hub-1",
		"value=21.5",
		"1772366400000000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	fake.mu.Lock()
	query := fake.query
	fake.mu.Unlock()
	if !strings.Contains(query, "bucket=panel") || !strings.Contains(query, "org=graylogic") {
		t.Errorf("write query = %q", query)
	}
}

func TestWriteSyncState(t *testing.T) {
	fake, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteSyncState("degraded_polling", 3, time.Now())
	client.WritePointWithTime("custom", map[string]string{"k": "v"}, map[string]interface{}{"n": 1.0}, time.Now())
	client.Flush()

	lines := fake.waitForLines(t, 2)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "sync_state,state=degraded_polling reconnect_attempts=3i") {
		t.Errorf("sync line missing in %q", joined)
	}
	if !strings.Contains(joined, "custom,k=v n=1") {
		t.Errorf("custom line missing in %q", joined)
	}
}

func TestWrite_AfterCloseIsDropped(t *testing.T) {
	fake, cfg := newFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.WriteReading("temp-lounge", "hub-1", "environmental", 1, time.Now())
	client.Flush()

	time.Sleep(50 * time.Millisecond)
	if lines := fake.snapshot(); len(lines) != 0 {
		t.Errorf("lines after close = %v, want none", lines)
	}
}

func TestSetOnError_CallbackInvoked(t *testing.T) {
	fake, cfg := newFake(t)
	fake.failing = true

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errs := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WriteReading("temp-lounge", "hub-1", "environmental", 1, time.Now())
	client.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write error callback not invoked")
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	client.Flush()
}

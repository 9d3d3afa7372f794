package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/device"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-panel/internal/livesync"
	"github.com/nerrad567/gray-logic-panel/internal/location"
)

// ─── Fakes ─────────────────────────────────────────────────────────

type fakeEngine struct {
	snapshot  atomic.Pointer[device.Snapshot]
	mu        sync.Mutex
	status    livesync.Status
	refreshes atomic.Int32
	updates   chan livesync.Update
}

func newFakeEngine(devices []device.Device) *fakeEngine {
	e := &fakeEngine{
		status:  livesync.Status{State: livesync.StateLive, Devices: len(devices), SnapshotVersion: 1},
		updates: make(chan livesync.Update, 1),
	}
	e.snapshot.Store(device.NewSnapshot(devices, 1, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	return e
}

func (e *fakeEngine) Snapshot() *device.Snapshot { return e.snapshot.Load() }

func (e *fakeEngine) Status() livesync.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *fakeEngine) RequestRefresh() { e.refreshes.Add(1) }

func (e *fakeEngine) Subscribe() (<-chan livesync.Update, func()) {
	return e.updates, func() {}
}

// publish replaces the snapshot and status and notifies the subscriber.
func (e *fakeEngine) publish(snap *device.Snapshot, status livesync.Status) {
	e.snapshot.Store(snap)
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
	e.updates <- livesync.Update{Snapshot: snap, Status: status}
}

type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	errs      map[string]error
	token     string
	hubs      []location.Hub
	areas     []location.Area
	readings  []backend.Reading
	lastQuery backend.HistoryQuery
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		errs:  make(map[string]error),
		token: "issued-token",
		hubs: []location.Hub{
			{ID: "h1", Name: "Main"},
			{ID: "h2", Name: "Garage"},
		},
		areas: []location.Area{
			{ID: "a1", Name: "Lounge", HubID: "h1"},
			{ID: "a2", Name: "Hall", HubID: "h1"},
			{ID: "a3", Name: "Porch", HubID: "h2"},
		},
	}
}

// record notes a call and returns the error configured for its method.
func (b *fakeBackend) record(method string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	call := method
	for _, a := range args {
		call += fmt.Sprintf(" %v", a)
	}
	b.calls = append(b.calls, call)
	return b.errs[method]
}

func (b *fakeBackend) failWith(method string, err error) {
	b.mu.Lock()
	b.errs[method] = err
	b.mu.Unlock()
}

func (b *fakeBackend) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) count(method string) int {
	n := 0
	for _, c := range b.recorded() {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

func (b *fakeBackend) Login(_ context.Context, creds backend.Credentials) (string, error) {
	if err := b.record("Login", creds.Username); err != nil {
		return "", err
	}
	return b.token, nil
}

func (b *fakeBackend) Logout(context.Context) error { return b.record("Logout") }

func (b *fakeBackend) Signup(_ context.Context, req backend.SignupRequest) error {
	return b.record("Signup", req.Username, req.Email)
}

func (b *fakeBackend) RequestPasswordReset(_ context.Context, email string) error {
	return b.record("RequestPasswordReset", email)
}

func (b *fakeBackend) RenameDevice(_ context.Context, id, name string) error {
	return b.record("RenameDevice", id, name)
}

func (b *fakeBackend) AssignDeviceArea(_ context.Context, id, areaID string) error {
	return b.record("AssignDeviceArea", id, areaID)
}

func (b *fakeBackend) RemoveDeviceFromArea(_ context.Context, id string) error {
	return b.record("RemoveDeviceFromArea", id)
}

func (b *fakeBackend) SendCommand(_ context.Context, id string, target float64) error {
	return b.record("SendCommand", id, target)
}

func (b *fakeBackend) History(_ context.Context, id string, q backend.HistoryQuery) ([]backend.Reading, error) {
	if err := b.record("History", id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastQuery = q
	return b.readings, nil
}

func (b *fakeBackend) RenameHub(_ context.Context, id, name string) error {
	return b.record("RenameHub", id, name)
}

func (b *fakeBackend) CreateArea(_ context.Context, hubID, name string) (location.Area, error) {
	if err := b.record("CreateArea", hubID, name); err != nil {
		return location.Area{}, err
	}
	return location.Area{ID: "a-new", Name: name, HubID: hubID}, nil
}

func (b *fakeBackend) RenameArea(_ context.Context, id, name string) error {
	return b.record("RenameArea", id, name)
}

func (b *fakeBackend) DeleteArea(_ context.Context, id string) error {
	return b.record("DeleteArea", id)
}

func (b *fakeBackend) ClaimHub(_ context.Context, req backend.ClaimHubRequest) error {
	return b.record("ClaimHub", req.HubID)
}

func (b *fakeBackend) ClaimCamera(_ context.Context, req backend.ClaimCameraRequest) error {
	return b.record("ClaimCamera", req.CameraID, req.HubID)
}

func (b *fakeBackend) ListHubs(context.Context) ([]location.Hub, error) {
	if err := b.record("ListHubs"); err != nil {
		return nil, err
	}
	return b.hubs, nil
}

func (b *fakeBackend) ListAreas(context.Context) ([]location.Area, error) {
	if err := b.record("ListAreas"); err != nil {
		return nil, err
	}
	return b.areas, nil
}

type fakeSession struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	cleared int
}

func (s *fakeSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

func (s *fakeSession) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires, !s.expires.IsZero()
}

func (s *fakeSession) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *fakeSession) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.cleared++
}

// ─── Helpers ───────────────────────────────────────────────────────

func strPtr(s string) *string { return &s }

// testDevices is a small two-hub fleet.
func testDevices() []device.Device {
	seen := time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)
	return []device.Device{
		{ID: "t1", Name: "Lounge Temperature", Type: device.TypeTemperature, HubID: "h1", AreaID: strPtr("a1"), Value: device.Continuous(21.5), ObservedAt: &seen},
		{ID: "p1", Name: "Kettle", Type: device.TypeSmartPlug, HubID: "h1", Value: device.Discrete(1)},
		{ID: "d1", Name: "Hall Light", Type: device.TypeDimmer, HubID: "h1", AreaID: strPtr("a2"), Value: device.Continuous(40)},
		{ID: "m1", Name: "Porch Motion", Type: device.TypeMotion, HubID: "h2", AreaID: strPtr("a3"), Value: device.Discrete(0)},
	}
}

type testEnv struct {
	srv      *Server
	router   http.Handler
	engine   *fakeEngine
	backend  *fakeBackend
	session  *fakeSession
	activity *fakeActivity
}

// newTestEnv builds a server over fakes. The session starts signed in.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	engine := newFakeEngine(testDevices())
	be := newFakeBackend()
	sess := &fakeSession{token: "stored-token"}
	activity := &fakeActivity{}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    logging.Discard(),
		Engine:    engine,
		Backend:   be,
		Session:   sess,
		Directory: location.NewDirectory(be, time.Minute),
		Audit:     activity,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{srv: srv, router: srv.buildRouter(), engine: engine, backend: be, session: sess, activity: activity}
}

// do sends a request through the router. body may be nil, a string, or a value to encode.
func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	be := newFakeBackend()
	full := Deps{
		Logger:    logging.Discard(),
		Engine:    newFakeEngine(nil),
		Backend:   be,
		Session:   &fakeSession{},
		Directory: location.NewDirectory(be, 0),
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"engine", func(d *Deps) { d.Engine = nil }},
		{"backend", func(d *Deps) { d.Backend = nil }},
		{"session", func(d *Deps) { d.Session = nil }},
		{"directory", func(d *Deps) { d.Directory = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Errorf("New() without %s: expected error", tt.name)
			}
		})
	}

	if _, err := New(full); err != nil {
		t.Errorf("New() with all deps: %v", err)
	}
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	wantStatus(t, w, http.StatusOK)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" || resp["sync"] != "live" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("X-Request-ID = %q, want a UUID", w.Header().Get("X-Request-ID"))
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}
	router := env.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want none", got)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	panicking := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	panicking.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	wantStatus(t, w, http.StatusInternalServerError)
	if resp := decode[Error](t, w); resp.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeInternal)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPanelRedirect(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/panel", nil)
	wantStatus(t, w, http.StatusMovedPermanently)

	w = env.do(t, http.MethodGet, "/panel/", nil)
	wantStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Error("/panel/ did not serve the dashboard")
	}
}

// ─── Sync & Metrics ────────────────────────────────────────────────

func TestSyncStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	wantStatus(t, w, http.StatusOK)

	status := decode[map[string]any](t, w)
	if status["state"] != "live" {
		t.Errorf("state = %v, want live", status["state"])
	}
}

func TestSyncRefresh(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/sync/refresh", nil)
	wantStatus(t, w, http.StatusAccepted)
	if got := env.engine.refreshes.Load(); got != 1 {
		t.Errorf("refreshes = %d, want 1", got)
	}

	env.session.ClearSession()
	w = env.do(t, http.MethodPost, "/api/v1/sync/refresh", nil)
	wantStatus(t, w, http.StatusUnauthorized)
	if got := env.engine.refreshes.Load(); got != 1 {
		t.Errorf("refreshes after logout = %d, want still 1", got)
	}
}

type staticComponent struct {
	name    string
	healthy bool
}

func (c staticComponent) Name() string  { return c.name }
func (c staticComponent) Healthy() bool { return c.healthy }

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.srv.components = []Component{staticComponent{"mirror", true}, staticComponent{"recorder", false}}

	w := env.do(t, http.MethodGet, "/api/v1/metrics", nil)
	wantStatus(t, w, http.StatusOK)

	m := decode[SystemMetrics](t, w)
	if m.Version != "test" {
		t.Errorf("Version = %q", m.Version)
	}
	if m.Sync.State != livesync.StateLive {
		t.Errorf("Sync.State = %v", m.Sync.State)
	}
	if m.Devices.Total != 4 {
		t.Errorf("Devices.Total = %d, want 4", m.Devices.Total)
	}
	if !m.Components["mirror"] || m.Components["recorder"] {
		t.Errorf("Components = %v", m.Components)
	}
	if m.Database != nil {
		t.Error("Database metrics reported without a database")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()
	err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "sub-1", Payload: WSSubscribePayload{Channels: channels}})
	if err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}
}

func TestWebSocket_SubscribeSendsCurrentValues(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)

	subscribe(t, conn, ChannelSyncStatus, ChannelSnapshot)

	status := readMessage(t, conn)
	if status.Type != WSTypeEvent || status.EventType != ChannelSyncStatus {
		t.Fatalf("first event = %+v, want sync.status", status)
	}
	snap := readMessage(t, conn)
	if snap.EventType != ChannelSnapshot {
		t.Fatalf("second event = %+v, want devices.snapshot", snap)
	}
	payload, ok := snap.Payload.(map[string]any)
	if !ok || payload["count"] != float64(4) {
		t.Errorf("snapshot payload = %v", snap.Payload)
	}
}

func TestWebSocket_RelaysEngineUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.hub.Run(ctx)
	go env.srv.relayUpdates(ctx)

	conn := dialWS(t, env)
	subscribe(t, conn, ChannelSnapshot)
	readMessage(t, conn) // current snapshot

	next := device.NewSnapshot(testDevices()[:2], 2, time.Now())
	env.engine.publish(next, livesync.Status{State: livesync.StateLive, SnapshotVersion: 2, Devices: 2})

	msg := readMessage(t, conn)
	if msg.EventType != ChannelSnapshot {
		t.Fatalf("event = %+v, want devices.snapshot", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["version"] != float64(2) || payload["count"] != float64(2) {
		t.Errorf("payload = %v, want version 2 with 2 devices", msg.Payload)
	}
}

func TestWebSocket_PingAndUnknownType(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v, want error", msg)
	}
}

func TestHub_BroadcastOnlyToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())

	subscribed := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{ChannelSyncStatus: {}}}
	other := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{}}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(ChannelSyncStatus, map[string]string{"state": "live"})

	if len(subscribed.send) != 1 {
		t.Errorf("subscribed client got %d messages, want 1", len(subscribed.send))
	}
	if len(other.send) != 0 {
		t.Errorf("unsubscribed client got %d messages, want 0", len(other.send))
	}

	hub.Unregister(subscribed)
	hub.Unregister(subscribed) // second call must not double-close
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}
	// trySend on a closed channel is absorbed.
	subscribed.trySend([]byte("late"))
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.Port = 19091

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:19091/api/v1/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-panel-test",
		},
		QoS:         1,
		TopicPrefix: "graylogic/panel",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnected returns a client that never dialled a broker.
func disconnected() *Client {
	cfg := testConfig()
	return &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "home/panel"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"availability", topics.Availability(), "home/panel/availability"},
		{"sync status", topics.SyncStatus(), "home/panel/status"},
		{"device state", topics.DeviceState("hub-1", "plug-1"), "home/panel/state/hub-1/plug-1"},
		{"device command", topics.DeviceCommand("plug-1"), "home/panel/command/plug-1"},
		{"all states", topics.AllDeviceStates(), "home/panel/state/+/+"},
		{"all commands", topics.AllDeviceCommands(), "home/panel/command/+"},
		{"default prefix", Topics{}.SyncStatus(), "graylogic/panel/status"},
		{"trailing slash", Topics{Prefix: "x/"}.SyncStatus(), "x/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseDeviceState(t *testing.T) {
	topics := Topics{Prefix: "graylogic/panel"}

	tests := []struct {
		topic      string
		wantHub    string
		wantDevice string
		wantOK     bool
	}{
		{"graylogic/panel/state/hub-1/plug-1", "hub-1", "plug-1", true},
		{"graylogic/panel/state/hub-1", "", "", false},
		{"graylogic/panel/state/hub-1/plug-1/extra", "", "", false},
		{"graylogic/panel/state//plug-1", "", "", false},
		{"graylogic/panel/status", "", "", false},
		{"other/state/hub-1/plug-1", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			hub, dev, ok := topics.ParseDeviceState(tt.topic)
			if ok != tt.wantOK || hub != tt.wantHub || dev != tt.wantDevice {
				t.Errorf("ParseDeviceState() = (%q, %q, %v), want (%q, %q, %v)",
					hub, dev, ok, tt.wantHub, tt.wantDevice, tt.wantOK)
			}
		})
	}
}

func TestParseDeviceCommand(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"graylogic/panel/command/plug-1", "plug-1", true},
		{"graylogic/panel/command/", "", false},
		{"graylogic/panel/command/a/b", "", false},
		{"graylogic/panel/state/hub/plug-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := topics.ParseDeviceCommand(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseDeviceCommand() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValidSegment(t *testing.T) {
	tests := map[string]bool{
		"plug-1":      true,
		"a1b2c3":      true,
		"":            false,
		"hub/plug":    false,
		"plug+":       false,
		"#":           false,
		"with\x00nul": false,
	}
	for id, want := range tests {
		if got := ValidSegment(id); got != want {
			t.Errorf("ValidSegment(%q) = %v, want %v", id, got, want)
		}
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "panel", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "graylogic-panel-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "panel" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Errorf("AutoReconnect=%v CleanSession=%v, want both true", opts.AutoReconnect, opts.CleanSession)
	}
	if opts.ConnectRetryInterval != time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Errorf("TLS configured for plain connection")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v, want MinVersion TLS 1.2", opts.TLSConfig)
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty for anonymous", opts.Username)
	}
}

func TestReconnectBounds(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.MQTTReconnectConfig
		wantInitial time.Duration
		wantMax     time.Duration
	}{
		{"configured", config.MQTTReconnectConfig{InitialDelay: 2, MaxDelay: 30}, 2 * time.Second, 30 * time.Second},
		{"zero uses defaults", config.MQTTReconnectConfig{}, time.Second, 60 * time.Second},
		{"max below initial", config.MQTTReconnectConfig{InitialDelay: 90, MaxDelay: 10}, 90 * time.Second, 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial, maxDelay := reconnectBounds(tt.cfg)
			if initial != tt.wantInitial || maxDelay != tt.wantMax {
				t.Errorf("reconnectBounds() = (%v, %v), want (%v, %v)", initial, maxDelay, tt.wantInitial, tt.wantMax)
			}
		})
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "graylogic/panel"}, "panel-1")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "graylogic/panel/availability" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("WillRetained=%v WillQos=%d, want true/1", opts.WillRetained, opts.WillQos)
	}

	var payload availability
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload.Status != "offline" || payload.Reason != "unexpected_disconnect" || payload.ClientID != "panel-1" {
		t.Errorf("will payload = %+v", payload)
	}
}

func TestAvailabilityPayloads(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload(`odd"id`), "online", ""},
		{"offline", buildOfflinePayload("panel"), "offline", "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p availability
			if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
				t.Fatalf("payload %q is not JSON: %v", tt.raw, err)
			}
			if p.Status != tt.wantStatus || p.Reason != tt.wantReason {
				t.Errorf("payload = %+v", p)
			}
			if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
				t.Errorf("timestamp %q: %v", p.Timestamp, err)
			}
		})
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	if disconnected().IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnected()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnected()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
		{"nil payload not connected", "a/b", nil, 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := c.ClearRetained("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ClearRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnected()
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "a/#", 3, handler, ErrInvalidQoS},
		{"nil handler", "a/#", 1, nil, ErrSubscribeFailed},
		{"not connected", "a/#", 1, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	c := disconnected()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got string
	ok := c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "a/b", payload: []byte("1")})
	if got != "a/b=1" {
		t.Errorf("handler saw %q", got)
	}

	failing := c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "a/b"})

	panicking := c.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "a/b"})

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errors) != 1 || logger.errors[0] != "MQTT handler panicked, message dropped" {
		t.Errorf("errors = %v, want one dropped message", logger.errors)
	}
}

func TestOnDisconnectCallback(t *testing.T) {
	c := disconnected()

	lost := make(chan error, 1)
	c.SetOnDisconnect(func(err error) { lost <- err })

	c.handleDisconnect(errors.New("link down"))
	select {
	case err := <-lost:
		if err == nil || err.Error() != "link down" {
			t.Errorf("disconnect callback err = %v", err)
		}
	default:
		t.Error("disconnect callback not invoked")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}

// fakeToken is a paho token completed by closing done.
type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

func TestWaitToken(t *testing.T) {
	refused := errors.New("connection refused")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	completed := func(err error) *fakeToken {
		tok := &fakeToken{done: make(chan struct{}), err: err}
		close(tok.done)
		return tok
	}
	pending := func() *fakeToken { return &fakeToken{done: make(chan struct{})} }

	tests := []struct {
		name    string
		ctx     context.Context
		token   *fakeToken
		wantErr error
		timeout bool
	}{
		{"completed", context.Background(), completed(nil), nil, false},
		{"token error", context.Background(), completed(refused), refused, false},
		{"context cancelled", cancelled, pending(), context.Canceled, false},
		{"timeout", context.Background(), pending(), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := waitToken(tt.ctx, tt.token, 20*time.Millisecond)
			switch {
			case tt.timeout:
				if err == nil {
					t.Error("waitToken() = nil, want timeout error")
				}
			case !errors.Is(err, tt.wantErr):
				t.Errorf("waitToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	client, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client != nil {
		t.Error("Connect() returned a client")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Connect() ignored the cancelled context")
	}
}

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// mockDevices is a hand-written DeviceService.
type mockDevices struct {
	mu      sync.Mutex
	devices map[string]blebox.Snapshot
	ackErr  *blebox.AckError
	lastCmd blebox.CommandMessage
	scanErr error
	scans   int
	sweep   blebox.SweepStats
}

func newMockDevices(snaps ...blebox.Snapshot) *mockDevices {
	m := &mockDevices{devices: make(map[string]blebox.Snapshot)}
	for _, s := range snaps {
		m.devices[s.ID] = s
	}
	return m
}

func (m *mockDevices) Devices() []blebox.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []blebox.Snapshot
	for _, s := range m.devices {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b blebox.Snapshot) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (m *mockDevices) Device(id string) (blebox.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.devices[id]
	if !ok {
		return blebox.Snapshot{}, blebox.ErrDeviceNotFound
	}
	return s, nil
}

func (m *mockDevices) Execute(_ context.Context, cmd blebox.CommandMessage) blebox.AckMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCmd = cmd
	ack := blebox.AckMessage{
		CommandID: cmd.ID,
		DeviceID:  cmd.DeviceID,
		Status:    blebox.AckAccepted,
		Protocol:  blebox.Protocol,
	}
	if m.ackErr != nil {
		ack.Status = blebox.AckFailed
		ack.Error = m.ackErr
	}
	return ack
}

func (m *mockDevices) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return blebox.ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockDevices) Scan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return m.scanErr
	}
	m.scans++
	return nil
}

func (m *mockDevices) LastSweep() blebox.SweepStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep
}

// mockSubscriber records MQTT subscriptions so tests can deliver messages.
type mockSubscriber struct {
	mu       sync.Mutex
	handlers map[string]func(topic string, payload []byte)
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{handlers: make(map[string]func(string, []byte))}
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockSubscriber) deliver(t *testing.T, filter, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[filter]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %q", filter)
	}
	h(topic, payload)
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func testDeps(devices DeviceService, secret string) Deps {
	return Deps{
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: secret}},
		Logger:   testLogger(),
		Devices:  devices,
		Version:  "test",
	}
}

// testServer creates an unstarted Server; requests go through its router.
func testServer(t *testing.T, devices DeviceService, secret string) *Server {
	t.Helper()
	srv, err := New(testDeps(devices, secret))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

// testServerWithListener starts a Server on a random local port.
func testServerWithListener(t *testing.T, deps Deps) (*Server, string) {
	t.Helper()
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup
	return srv, srv.Addr()
}

func doRequest(srv *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, secret string) http.Header {
	t.Helper()
	token, err := IssueToken(secret, "installer", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func sampleDevices() []blebox.Snapshot {
	return []blebox.Snapshot{
		{ID: "1afe34e750b8", Type: "switchbox", Address: "192.168.1.20", Name: "Hall", Responding: true},
		{ID: "2bcd45f861c9", Type: "shutterbox", Address: "192.168.1.21", Name: "Blind"},
	}
}

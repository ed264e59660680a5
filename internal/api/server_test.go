package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/casa-core/internal/audit"
	"github.com/nerrad567/casa-core/internal/bus"
	"github.com/nerrad567/casa-core/internal/engine"
	"github.com/nerrad567/casa-core/internal/eventlog"
	"github.com/nerrad567/casa-core/internal/infrastructure/config"
	"github.com/nerrad567/casa-core/internal/infrastructure/database"
	"github.com/nerrad567/casa-core/internal/infrastructure/logging"
	"github.com/nerrad567/casa-core/internal/infrastructure/mqtt"
	_ "github.com/nerrad567/casa-core/migrations" // traffic_log schema
)

// loopbackSession connects immediately and records publishes.
type loopbackSession struct {
	mu        sync.Mutex
	id        string
	h         mqtt.Handlers
	published []string
}

func (s *loopbackSession) Connect(done func(error))             { done(nil) }
func (s *loopbackSession) Subscribe(_ string, done func(error)) { done(nil) }
func (s *loopbackSession) Disconnect()                          {}
func (s *loopbackSession) ClientID() string                     { return s.id }

func (s *loopbackSession) Publish(topic string, payload []byte, _ func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, topic+"="+string(payload))
	return nil
}

func (s *loopbackSession) deliver(topic, payload string) {
	_ = s.h.OnMessage(topic, []byte(payload))
}

func (s *loopbackSession) publishes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.published...)
}

type testEnv struct {
	srv      *Server
	eng      *engine.Engine
	handler  http.Handler
	mu       sync.Mutex
	sessions []*loopbackSession
}

func (e *testEnv) session() *loopbackSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[len(e.sessions)-1]
}

type envOption func(*Deps)

// testServer creates a Server over a real engine whose bus is a loopback.
func testServer(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{}

	eng, err := engine.New(engine.Options{
		MQTT: config.Default().MQTT,
		Dial: func(id string, h mqtt.Handlers) bus.Session {
			s := &loopbackSession{id: id, h: h}
			env.mu.Lock()
			env.sessions = append(env.sessions, s)
			env.mu.Unlock()
			return s
		},
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	t.Cleanup(eng.Close)

	deps := Deps{
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
		Logger:  logging.Discard(),
		Core:    eng,
		Version: "test",
	}
	for _, o := range opts {
		o(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	env.srv = srv
	env.eng = eng
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/connection/connect", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("connect status = %d, want 202", rec.Code)
	}
	if !e.eng.Connection().Connected() {
		t.Fatal("engine not connected after POST /connection/connect")
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger expected error")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without engine expected error")
	}
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": fakeCheck{},
			"influxdb": fakeCheck{err: errors.New("influxdb: not connected")},
		}
	})

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status  string            `json:"status"`
		Version string            `json:"version"`
		MQTT    string            `json:"mqtt"`
		Checks  map[string]string `json:"checks"`
	}
	decode(t, rec, &body)

	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Version != "test" || body.MQTT != "disconnected" {
		t.Errorf("version = %q, mqtt = %q", body.Version, body.MQTT)
	}
	if body.Checks["database"] != "ok" || body.Checks["influxdb"] == "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestState(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Connection struct {
			State string `json:"state"`
			Text  string `json:"text"`
		} `json:"connection"`
		Devices []struct {
			DisplayStatus string `json:"display_status"`
		} `json:"devices"`
		Sensors struct {
			TemperatureC    *string `json:"temperature_c"`
			TemperatureText string  `json:"temperature_text"`
		} `json:"sensors"`
		Stats struct {
			Total    int `json:"total"`
			ReadOnly int `json:"read_only"`
		} `json:"stats"`
	}
	decode(t, rec, &body)

	if body.Connection.State != "disconnected" || body.Connection.Text != bus.TextDisconnected {
		t.Errorf("connection = %+v", body.Connection)
	}
	if len(body.Devices) != 9 {
		t.Errorf("devices = %d, want 9", len(body.Devices))
	}
	if body.Sensors.TemperatureC != nil || body.Sensors.TemperatureText != "--" {
		t.Errorf("sensors = %+v, want unknown temperature", body.Sensors)
	}
	if body.Stats.Total != 9 || body.Stats.ReadOnly != 2 {
		t.Errorf("stats = %+v", body.Stats)
	}
}

func TestListDevices_Filters(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 9},
		{"?room=garagem", 3},
		{"?room=sala", 3},
		{"?room=porao", 0},
		{"?pending=true", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "")
			var body struct {
				Count int `json:"count"`
			}
			decode(t, rec, &body)
			if body.Count != tt.want {
				t.Errorf("count = %d, want %d", body.Count, tt.want)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/sala/luzSala", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Key struct {
			Room   string `json:"room"`
			Device string `json:"device"`
		} `json:"key"`
		Status        string   `json:"status"`
		DisplayStatus string   `json:"display_status"`
		Commands      []string `json:"commands"`
		ReadOnly      bool     `json:"read_only"`
	}
	decode(t, rec, &body)

	if body.Key.Room != "sala" || body.Key.Device != "luzSala" {
		t.Errorf("key = %+v", body.Key)
	}
	if body.Status != "desligada" || body.DisplayStatus != "Desligada" {
		t.Errorf("status = %q, display = %q", body.Status, body.DisplayStatus)
	}
	if len(body.Commands) != 2 || body.ReadOnly {
		t.Errorf("commands = %v, read_only = %v", body.Commands, body.ReadOnly)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/devices/sala/geladeira", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestCommand_NotConnected(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/sala/luzSala/command", `{"command":"ON"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	logs := env.eng.Logs()
	if len(logs) != 1 || logs[0].Message != "MQTT not connected" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestCommand_Accepted(t *testing.T) {
	env := testServer(t)
	env.connect(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/sala/luzSala/command", `{"command":"ON"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Status string `json:"status"`
		Device struct {
			Pending       bool   `json:"pending"`
			DisplayStatus string `json:"display_status"`
		} `json:"device"`
	}
	decode(t, rec, &body)
	if !body.Device.Pending || body.Device.DisplayStatus != "Processando..." {
		t.Errorf("device = %+v, want pending", body.Device)
	}

	got := env.session().publishes()
	if len(got) != 1 || got[0] != "casa/sala/luz=ON" {
		t.Errorf("published = %v", got)
	}
}

func TestCommand_Rejections(t *testing.T) {
	env := testServer(t)
	env.connect(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"invalid json", "/api/v1/devices/sala/luzSala/command", `{`, http.StatusBadRequest},
		{"missing command", "/api/v1/devices/sala/luzSala/command", `{}`, http.StatusBadRequest},
		{"wrong case", "/api/v1/devices/sala/luzSala/command", `{"command":"on"}`, http.StatusBadRequest},
		{"curtain token on door", "/api/v1/devices/garagem/portaoSocial/command", `{"command":"ABRIR"}`, http.StatusBadRequest},
		{"read-only device", "/api/v1/devices/sala/arCondicionado/command", `{"command":"ON"}`, http.StatusBadRequest},
		{"unknown device", "/api/v1/devices/sala/geladeira/command", `{"command":"ON"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if got := env.session().publishes(); len(got) != 0 {
		t.Errorf("rejected commands published %v", got)
	}
}

func TestConnection_Lifecycle(t *testing.T) {
	env := testServer(t)
	env.connect(t)

	rec := env.do(t, http.MethodGet, "/api/v1/connection", "")
	var st struct {
		State    string `json:"state"`
		Text     string `json:"text"`
		ClientID string `json:"client_id"`
	}
	decode(t, rec, &st)
	if st.State != "connected" || st.Text != bus.TextConnected || !strings.HasPrefix(st.ClientID, "dashboard_") {
		t.Errorf("connection = %+v", st)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/connection/disconnect", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("disconnect status = %d, want 202", rec.Code)
	}
	if env.eng.Connection().State != bus.StateDisconnected {
		t.Errorf("state after disconnect = %v", env.eng.Connection().State)
	}
}

func TestSensors(t *testing.T) {
	env := testServer(t)
	env.connect(t)
	env.session().deliver("casa/sala/dados", "Temp: 24.5C, Umid: 61%")

	rec := env.do(t, http.MethodGet, "/api/v1/sensors", "")
	var body struct {
		TemperatureC    string `json:"temperature_c"`
		HumidityText    string `json:"humidity_text"`
		LastUpdate      string `json:"last_update"`
		TemperatureText string `json:"temperature_text"`
	}
	decode(t, rec, &body)
	if body.TemperatureC != "24.5" || body.HumidityText != "61" || body.LastUpdate == "" {
		t.Errorf("sensors = %+v", body)
	}
}

func TestLogs(t *testing.T) {
	env := testServer(t)
	env.connect(t)
	env.session().deliver("casa/sala/ar", "ON")

	rec := env.do(t, http.MethodGet, "/api/v1/logs", "")
	var all struct {
		Entries []eventlog.Entry `json:"entries"`
		Count   int              `json:"count"`
	}
	decode(t, rec, &all)
	if all.Count == 0 || all.Entries[0].Message != "received [casa/sala/ar]: ON" {
		t.Fatalf("logs = %+v", all)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/logs?category=received", "")
	var received struct {
		Count int `json:"count"`
	}
	decode(t, rec, &received)
	if received.Count != 1 {
		t.Errorf("received count = %d, want 1", received.Count)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/logs?limit=1", "")
	var limited struct {
		Count int `json:"count"`
	}
	decode(t, rec, &limited)
	if limited.Count != 1 {
		t.Errorf("limited count = %d, want 1", limited.Count)
	}

	for _, q := range []string{"?category=debug", "?limit=-1", "?limit=x"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/logs"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET /logs%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestAudit_Disabled(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/audit", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAudit_Archive(t *testing.T) {
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := audit.NewSQLiteRepository(db.DB)

	env := testServer(t, func(d *Deps) { d.Audit = repo })

	archiver := audit.NewArchiver(repo, 16)
	archiver.Start(context.Background())
	env.eng.AddHooks(engine.Hooks{OnLog: archiver.Record})

	env.connect(t)
	env.session().deliver("casa/garagem/status", "social_aberto")
	archiver.Stop()

	rec := env.do(t, http.MethodGet, "/api/v1/audit?contains=casa/garagem", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var body audit.ListResult
	decode(t, rec, &body)
	if body.Total != 2 {
		// subscription entry plus the received message
		t.Errorf("total = %d, want 2: %+v", body.Total, body.Records)
	}

	for _, q := range []string{"?since=yesterday", "?category=nope", "?offset=-2"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/audit"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET /audit%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://dashboard.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
		t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("X-Request-ID") != "abc123" {
		t.Errorf("X-Request-ID = %q, want echoed", rec.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}
	if len(rec.Header().Get("X-Request-ID")) != 16 {
		t.Errorf("generated X-Request-ID = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestServer_StartClose(t *testing.T) {
	env := testServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer env.srv.Close()

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dalocar/tado-direct/internal/auth"
	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/engine"
	"github.com/dalocar/tado-direct/internal/infrastructure/config"
	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/poll"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
	"github.com/dalocar/tado-direct/internal/transport"
)

const testAPIKey = "test-key-0123456789abcdef"

// ===== Test Helpers =====

// stubCommand lets the fake core mint real dispatcher tickets, so command
// handlers see the same ticket lifecycle they would in production.
type stubCommand struct {
	home int64
	err  error
}

func (c *stubCommand) Describe() string                      { return "stub" }
func (c *stubCommand) HomeID() int64                         { return c.home }
func (c *stubCommand) Execute(context.Context, string) error { return c.err }
func (c *stubCommand) ApplyOptimistic(*state.Cache) error    { return nil }
func (c *stubCommand) ConfirmedBy(*state.Snapshot) bool      { return false }

type submitCall struct {
	name    string
	homeID  int64
	zoneID  int
	value   float64
	str     string
	enabled bool
}

// fakeCore implements Core with scripted results and recorded calls.
type fakeCore struct {
	homes       []engine.Home
	cache       *state.Cache
	dispatcher  *command.Dispatcher
	authorized  bool
	authPending bool
	reauth      bool
	creds       *auth.Credentials
	credsErr    error
	polls       []poll.Status

	// submitErr is injected into every minted stub command.
	submitErr error
	// unknownHome makes every command method fail before submission.
	unknownHome bool

	calls []submitCall
}

func newFakeCore() *fakeCore {
	cache := state.NewCache(time.Minute, logging.Noop())
	return &fakeCore{
		cache:      cache,
		dispatcher: command.NewDispatcher(cache, command.Config{MaxResends: 0, ConfirmCycles: 1}, logging.Noop()),
		authorized: true,
	}
}

func (f *fakeCore) Homes() []engine.Home                       { return f.homes }
func (f *fakeCore) State(homeID int64) (*state.Snapshot, error) { return f.cache.Effective(homeID) }
func (f *fakeCore) Subscribe() (<-chan *state.Diff, func())    { return f.cache.Subscribe() }
func (f *fakeCore) PollStatuses() []poll.Status                { return f.polls }
func (f *fakeCore) PendingCommands() int                       { return f.dispatcher.Pending() }
func (f *fakeCore) Authorized(context.Context) bool            { return f.authorized }
func (f *fakeCore) DeviceAuthPending() bool                    { return f.authPending }
func (f *fakeCore) ReauthRequired() bool                       { return f.reauth }

func (f *fakeCore) BeginDeviceAuth(context.Context) (*auth.Credentials, error) {
	return f.creds, f.credsErr
}

func (f *fakeCore) submit(ctx context.Context, call submitCall) (*command.Ticket, error) {
	if f.unknownHome {
		return nil, engine.ErrUnknownHome
	}
	f.calls = append(f.calls, call)
	return f.dispatcher.Submit(ctx, &stubCommand{home: call.homeID, err: f.submitErr})
}

func (f *fakeCore) SetZoneSetpoint(ctx context.Context, homeID int64, zoneID int, celsius float64, termination string, _ int) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "setpoint", homeID: homeID, zoneID: zoneID, value: celsius, str: termination})
}

func (f *fakeCore) SetZoneOff(ctx context.Context, homeID int64, zoneID int, termination string, _ int) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "off", homeID: homeID, zoneID: zoneID, str: termination})
}

func (f *fakeCore) ResumeSchedule(ctx context.Context, homeID int64, zoneID int) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "resume", homeID: homeID, zoneID: zoneID})
}

func (f *fakeCore) SetPresence(ctx context.Context, homeID int64, presence string) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "presence", homeID: homeID, str: presence})
}

func (f *fakeCore) SetChildLock(ctx context.Context, homeID int64, deviceID string, enabled bool) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "childlock", homeID: homeID, str: deviceID, enabled: enabled})
}

func (f *fakeCore) SetTemperatureOffset(ctx context.Context, homeID int64, deviceID string, celsius float64) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "offset", homeID: homeID, str: deviceID, value: celsius})
}

func (f *fakeCore) AddMeterReading(ctx context.Context, homeID int64, reading tado.MeterReading) (*command.Ticket, error) {
	return f.submit(ctx, submitCall{name: "meter", homeID: homeID, str: reading.Date, value: float64(reading.Reading)})
}

func newTestServer(t *testing.T, core Core) (*Server, http.Handler) {
	t.Helper()
	s, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 8099},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{APIKey: testAPIKey},
		Logger:   logging.Noop(),
		Core:     core,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, s.buildRouter()
}

func doRequest(handler http.Handler, method, path, body string, withKey bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if withKey {
		req.Header.Set(apiKeyHeader, testAPIKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func seedSnapshot(t *testing.T, cache *state.Cache, homeID int64) {
	t.Helper()
	_, err := cache.ReplaceSnapshot(&state.Snapshot{
		HomeID:    homeID,
		FetchedAt: time.Now(),
		Zones: map[int]*tado.ZoneState{
			1: {
				Setting: &tado.ZoneSetting{
					Type:    tado.ZoneTypeHeating,
					Power:   tado.PowerOn,
					Heating: &tado.HeatingSetting{Temperature: &tado.Temperature{Celsius: 21}},
				},
				Link: &tado.Link{State: tado.LinkOnline},
			},
		},
		Devices: map[string]*tado.Device{},
	})
	if err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}
}

// ===== Authentication =====

func TestHealth_NoKeyRequired(t *testing.T) {
	core := newFakeCore()
	core.polls = []poll.Status{{HomeID: 42, Interval: 15 * time.Second}}
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodGet, "/api/v1/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status     string               `json:"status"`
		Authorized bool                 `json:"authorized"`
		Polls      []pollStatusResponse `json:"polls"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || !resp.Authorized {
		t.Errorf("resp = %+v, want ok and authorized", resp)
	}
	if len(resp.Polls) != 1 || resp.Polls[0].HomeID != 42 || resp.Polls[0].IntervalSeconds != 15 {
		t.Errorf("polls = %+v, want home 42 at 15s", resp.Polls)
	}
}

func TestAPIKey_Required(t *testing.T) {
	_, handler := newTestServer(t, newFakeCore())

	rec := doRequest(handler, http.MethodGet, "/api/v1/topology", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/topology", nil)
	req.Header.Set(apiKeyHeader, "wrong-key-0123456789")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d, want 401", rec.Code)
	}
}

func TestAPIKey_QueryParameterAccepted(t *testing.T) {
	_, handler := newTestServer(t, newFakeCore())

	rec := doRequest(handler, http.MethodGet, "/api/v1/topology?api_key="+testAPIKey, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// ===== Auth Endpoints =====

func TestAuthStatus(t *testing.T) {
	core := newFakeCore()
	core.authorized = false
	core.reauth = true
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodGet, "/api/v1/auth/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Authorized     bool `json:"authorized"`
		Pending        bool `json:"pending"`
		ReauthRequired bool `json:"reauth_required"`
	}
	decodeBody(t, rec, &resp)
	if resp.Authorized || resp.Pending || !resp.ReauthRequired {
		t.Errorf("resp = %+v, want unauthorized with reauth required", resp)
	}
}

func TestBeginDeviceAuth(t *testing.T) {
	core := newFakeCore()
	core.creds = &auth.Credentials{
		UserCode:                "ABCD-1234",
		VerificationURI:         "https://login.example.com/verify",
		VerificationURIComplete: "https://login.example.com/verify?user_code=ABCD-1234",
		Interval:                5 * time.Second,
		ExpiresAt:               time.Now().Add(5 * time.Minute),
	}
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPost, "/api/v1/auth/device", "", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp struct {
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		IntervalSeconds int    `json:"interval_seconds"`
	}
	decodeBody(t, rec, &resp)
	if resp.UserCode != "ABCD-1234" || resp.IntervalSeconds != 5 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBeginDeviceAuth_UpstreamFailure(t *testing.T) {
	core := newFakeCore()
	core.credsErr = fmt.Errorf("oauth endpoint unreachable")
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPost, "/api/v1/auth/device", "", true)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

// ===== Topology and State =====

func TestTopology(t *testing.T) {
	core := newFakeCore()
	core.homes = []engine.Home{
		{ID: 42, Name: "Main", TadoX: false, Zones: []tado.Zone{{ID: 1, Name: "Living Room", Type: tado.ZoneTypeHeating}}},
		{ID: 43, Name: "Cabin", TadoX: true, Zones: []tado.Zone{{ID: 7, Name: "Bedroom", Type: tado.ZoneTypeHeating}}},
	}
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodGet, "/api/v1/topology", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Homes []homeResponse `json:"homes"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Homes) != 2 {
		t.Fatalf("got %d homes, want 2", len(resp.Homes))
	}
	for _, h := range resp.Homes {
		if h.ID == 43 && !h.TadoX {
			t.Error("home 43 should be flagged tado_x")
		}
	}
}

func TestHomeState(t *testing.T) {
	core := newFakeCore()
	seedSnapshot(t, core.cache, 42)
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodGet, "/api/v1/homes/42/state", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap state.Snapshot
	decodeBody(t, rec, &snap)
	if snap.HomeID != 42 || snap.Seq != 1 {
		t.Errorf("snapshot home=%d seq=%d, want 42/1", snap.HomeID, snap.Seq)
	}
	if _, ok := snap.Zones[1]; !ok {
		t.Error("zone 1 missing from snapshot")
	}
}

func TestHomeState_NoCacheYet(t *testing.T) {
	_, handler := newTestServer(t, newFakeCore())

	rec := doRequest(handler, http.MethodGet, "/api/v1/homes/42/state", "", true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before first poll", rec.Code)
	}
}

func TestHomeState_BadID(t *testing.T) {
	_, handler := newTestServer(t, newFakeCore())

	rec := doRequest(handler, http.MethodGet, "/api/v1/homes/abc/state", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ===== Commands =====

func TestSetOverlay_Setpoint(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/zones/3/overlay",
		`{"celsius": 22.5, "termination": "TIMER", "duration_seconds": 1800}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp commandResponse
	decodeBody(t, rec, &resp)
	if resp.CommandID == "" || resp.Status != command.StatusAcknowledged {
		t.Errorf("resp = %+v, want acknowledged with ID", resp)
	}

	if len(core.calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(core.calls))
	}
	call := core.calls[0]
	if call.name != "setpoint" || call.homeID != 42 || call.zoneID != 3 || call.value != 22.5 || call.str != tado.TerminationTimer {
		t.Errorf("call = %+v", call)
	}
}

func TestSetOverlay_PowerOff(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/zones/3/overlay",
		`{"power": "OFF"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(core.calls) != 1 || core.calls[0].name != "off" {
		t.Fatalf("calls = %+v, want one off call", core.calls)
	}
	if core.calls[0].str != tado.TerminationManual {
		t.Errorf("termination = %q, want default MANUAL", core.calls[0].str)
	}
}

func TestSetOverlay_Validation(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	cases := []struct {
		name string
		body string
	}{
		{"missing celsius", `{"termination": "MANUAL"}`},
		{"timer without duration", `{"celsius": 21, "termination": "TIMER"}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/zones/3/overlay", tc.body, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
	if len(core.calls) != 0 {
		t.Errorf("invalid requests reached the engine: %+v", core.calls)
	}
}

func TestResumeSchedule(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodDelete, "/api/v1/homes/42/zones/3/overlay", "", true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(core.calls) != 1 || core.calls[0].name != "resume" || core.calls[0].zoneID != 3 {
		t.Errorf("calls = %+v", core.calls)
	}
}

func TestSetPresence(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/presence", `{"presence": "AWAY"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(core.calls) != 1 || core.calls[0].str != tado.PresenceAway {
		t.Errorf("calls = %+v", core.calls)
	}

	rec = doRequest(handler, http.MethodPut, "/api/v1/homes/42/presence", `{"presence": "PARTY"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid presence status = %d, want 400", rec.Code)
	}
}

func TestDeviceCommands(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/devices/VA0001/child-lock",
		`{"enabled": true}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("child-lock status = %d, want 202", rec.Code)
	}

	rec = doRequest(handler, http.MethodPut, "/api/v1/homes/42/devices/VA0001/temperature-offset",
		`{"celsius": -1.5}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("offset status = %d, want 202", rec.Code)
	}

	if len(core.calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(core.calls))
	}
	if core.calls[0].name != "childlock" || core.calls[0].str != "VA0001" || !core.calls[0].enabled {
		t.Errorf("child lock call = %+v", core.calls[0])
	}
	if core.calls[1].name != "offset" || core.calls[1].value != -1.5 {
		t.Errorf("offset call = %+v", core.calls[1])
	}
}

func TestAddMeterReading(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPost, "/api/v1/homes/42/meter-readings",
		`{"date": "2026-08-25", "reading": 12345}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(core.calls) != 1 || core.calls[0].name != "meter" || core.calls[0].str != "2026-08-25" || core.calls[0].value != 12345 {
		t.Errorf("calls = %+v", core.calls)
	}

	for _, body := range []string{
		`{"date": "25/08/2026", "reading": 12345}`,
		`{"date": "2026-08-25", "reading": -1}`,
	} {
		rec = doRequest(handler, http.MethodPost, "/api/v1/homes/42/meter-readings", body, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCommand_UnknownHome(t *testing.T) {
	core := newFakeCore()
	core.unknownHome = true
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/99/presence", `{"presence": "HOME"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCommand_Rejected(t *testing.T) {
	core := newFakeCore()
	core.submitErr = &transport.APIError{Status: http.StatusUnprocessableEntity}
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/zones/3/overlay",
		`{"celsius": 21}`, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp commandResponse
	decodeBody(t, rec, &resp)
	if resp.Status != command.StatusRejected || resp.Error == "" {
		t.Errorf("resp = %+v, want REJECTED with error", resp)
	}
}

func TestCommand_DeliveryFailed(t *testing.T) {
	core := newFakeCore()
	core.submitErr = fmt.Errorf("sending request: %w", transport.ErrNetwork)
	_, handler := newTestServer(t, core)

	rec := doRequest(handler, http.MethodPut, "/api/v1/homes/42/presence", `{"presence": "HOME"}`, true)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp commandResponse
	decodeBody(t, rec, &resp)
	if resp.Status != command.StatusFailed {
		t.Errorf("status = %q, want FAILED", resp.Status)
	}
}

// ===== WebSocket =====

func TestWebSocket_StreamsSeededState(t *testing.T) {
	core := newFakeCore()
	seedSnapshot(t, core.cache, 42)
	s, handler := newTestServer(t, core)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?api_key=" + testAPIKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading seeded state: %v", err)
	}
	if msg.Type != WSTypeState {
		t.Fatalf("type = %q, want %q", msg.Type, WSTypeState)
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("re-marshalling payload: %v", err)
	}
	var diff state.Diff
	if err := json.Unmarshal(payload, &diff); err != nil {
		t.Fatalf("decoding diff: %v", err)
	}
	if diff.HomeID != 42 || !diff.Initial {
		t.Errorf("diff home=%d initial=%v, want seeded full state for home 42", diff.HomeID, diff.Initial)
	}
}

func TestWebSocket_RequiresKey(t *testing.T) {
	core := newFakeCore()
	_, handler := newTestServer(t, core)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	//nolint:bodyclose // handshake failure; no body to close
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without API key")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake status = %v, want 401", resp)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	core := newFakeCore()
	s, handler := newTestServer(t, core)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?api_key=" + testAPIKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("writing ping: %v", err)
	}

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("msg = %+v, want pong with id p1", msg)
	}
}

func TestCommandListener_Broadcasts(t *testing.T) {
	core := newFakeCore()
	s, handler := newTestServer(t, core)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?api_key=" + testAPIKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// Wait for the client to register before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.CommandListener()(command.Event{
		ID:     "cmd-1",
		HomeID: 42,
		Status: command.StatusConfirmed,
		At:     time.Now(),
	})

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading command event: %v", err)
	}
	if msg.Type != WSTypeCommand {
		t.Fatalf("type = %q, want %q", msg.Type, WSTypeCommand)
	}

	payload, _ := json.Marshal(msg.Payload) //nolint:errcheck // round-trip of decoded JSON
	var ev command.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.ID != "cmd-1" || ev.Status != command.StatusConfirmed {
		t.Errorf("event = %+v", ev)
	}
}

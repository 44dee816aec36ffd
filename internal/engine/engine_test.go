package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dalocar/tado-direct/internal/auth"
	"github.com/dalocar/tado-direct/internal/tado"
)

// ===== Test Helpers =====

type fakeVendor struct {
	mu       sync.Mutex
	calls    []string
	overlays []tado.OverlayRequest

	me         *tado.Me
	zones      map[int64][]tado.Zone
	zoneStates map[int64]map[string]*tado.ZoneState
	rooms      map[int64][]tado.Room
	devices    map[int64][]tado.Device
	fetchErr   error
}

func (f *fakeVendor) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeVendor) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeVendor) Me(context.Context) (*tado.Me, error) {
	f.record("Me")
	return f.me, nil
}

func (f *fakeVendor) Zones(_ context.Context, homeID int64) ([]tado.Zone, error) {
	f.record("Zones")
	return f.zones[homeID], nil
}

func (f *fakeVendor) Devices(_ context.Context, homeID int64) ([]tado.Device, error) {
	f.record("Devices")
	return f.devices[homeID], nil
}

func (f *fakeVendor) ZoneStates(_ context.Context, homeID int64) (map[string]*tado.ZoneState, error) {
	f.record("ZoneStates")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.zoneStates[homeID], nil
}

func (f *fakeVendor) Weather(context.Context, int64) (*tado.Weather, error) {
	f.record("Weather")
	return &tado.Weather{}, nil
}

func (f *fakeVendor) HomeState(context.Context, int64) (*tado.HomeState, error) {
	f.record("HomeState")
	return &tado.HomeState{Presence: tado.PresenceHome}, nil
}

func (f *fakeVendor) Rooms(_ context.Context, homeID int64) ([]tado.Room, error) {
	f.record("Rooms")
	rooms, ok := f.rooms[homeID]
	if !ok {
		return nil, errors.New("404")
	}
	return rooms, nil
}

func (f *fakeVendor) DetectTadoX(_ context.Context, homeID int64) bool {
	f.record("DetectTadoX")
	return len(f.rooms[homeID]) > 0
}

func (f *fakeVendor) SetOverlay(_ context.Context, _ int64, _ int, req tado.OverlayRequest, _ string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "SetOverlay")
	f.overlays = append(f.overlays, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeVendor) sentOverlays() []tado.OverlayRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tado.OverlayRequest(nil), f.overlays...)
}

func (f *fakeVendor) ResetOverlay(context.Context, int64, int, string) error {
	f.record("ResetOverlay")
	return nil
}

func (f *fakeVendor) SetPresence(context.Context, int64, string, string) error {
	f.record("SetPresence")
	return nil
}

func (f *fakeVendor) SetChildLock(context.Context, string, bool, string) error {
	f.record("SetChildLock")
	return nil
}

func (f *fakeVendor) SetTemperatureOffset(context.Context, string, float64, string) error {
	f.record("SetTemperatureOffset")
	return nil
}

func (f *fakeVendor) SetRoomManualControl(_ context.Context, _ int64, _ int, _ tado.RoomManualControl, _ string) error {
	f.record("SetRoomManualControl")
	return nil
}

func (f *fakeVendor) ResumeRoomSchedule(context.Context, int64, int, string) error {
	f.record("ResumeRoomSchedule")
	return nil
}

func (f *fakeVendor) AddMeterReading(_ context.Context, _ int64, _ tado.MeterReading, _ string) error {
	f.record("AddMeterReading")
	return nil
}

// staticTokens always reports an authorized session.
type staticTokens struct{}

func (staticTokens) Load(context.Context) (*auth.TokenSet, error) {
	return &auth.TokenSet{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ClientID:     "client",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}
func (staticTokens) Save(context.Context, *auth.TokenSet) error { return nil }
func (staticTokens) Clear(context.Context) error                { return nil }

func mixedVendor() *fakeVendor {
	return &fakeVendor{
		me: &tado.Me{Homes: []tado.HomeRef{
			{ID: 1, Name: "Old House"},
			{ID: 2, Name: "New House"},
		}},
		zones: map[int64][]tado.Zone{
			1: {{ID: 1, Name: "Living", Type: tado.ZoneTypeHeating}, {ID: 2, Name: "Water", Type: tado.ZoneTypeHotWater}},
		},
		zoneStates: map[int64]map[string]*tado.ZoneState{
			1: {
				"1": {Setting: &tado.ZoneSetting{Type: tado.ZoneTypeHeating, Power: tado.PowerOn}},
				"2": {Setting: &tado.ZoneSetting{Type: tado.ZoneTypeHotWater, Power: tado.PowerOff}},
			},
		},
		rooms: map[int64][]tado.Room{
			2: {{ID: 7, Name: "Bedroom", Setting: &tado.RoomSetting{Temperature: &tado.Temperature{Value: 19}}}},
		},
		devices: map[int64][]tado.Device{
			1: {{SerialNo: "VA1"}},
		},
	}
}

func newTestEngine(vendor *fakeVendor) *Engine {
	session := auth.NewSession(staticTokens{}, auth.Config{OAuthBaseURL: "http://unused.invalid"}, nil)
	return New(vendor, session, Config{
		PollInterval:  time.Millisecond,
		ConfirmCycles: 3,
	}, nil)
}

func discover(t *testing.T, e *Engine) {
	t.Helper()
	if _, err := e.discover(context.Background()); err != nil {
		t.Fatalf("discover() error = %v", err)
	}
}

// ===== Discovery =====

func TestDiscover_MixedGenerations(t *testing.T) {
	e := newTestEngine(mixedVendor())
	discover(t, e)

	homes := e.Homes()
	if len(homes) != 2 {
		t.Fatalf("Homes() = %d entries, want 2", len(homes))
	}

	byID := map[int64]Home{}
	for _, h := range homes {
		byID[h.ID] = h
	}
	if byID[1].TadoX {
		t.Error("home 1 should be v2")
	}
	if !byID[2].TadoX {
		t.Error("home 2 should be Tado X")
	}
	if len(byID[1].Zones) != 2 {
		t.Errorf("home 1 zones = %d, want 2", len(byID[1].Zones))
	}
	if len(byID[2].Zones) != 1 || byID[2].Zones[0].Name != "Bedroom" {
		t.Errorf("home 2 zones = %+v", byID[2].Zones)
	}
}

// ===== Fetch =====

func TestFetch_V2Home(t *testing.T) {
	e := newTestEngine(mixedVendor())
	discover(t, e)

	snap, err := e.Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if snap.TadoX {
		t.Error("snapshot marked TadoX for a v2 home")
	}
	if len(snap.Zones) != 2 {
		t.Errorf("zones = %d, want 2", len(snap.Zones))
	}
	if _, ok := snap.Zones[1]; !ok {
		t.Error("zone key not parsed to int")
	}
	if _, ok := snap.Devices["VA1"]; !ok {
		t.Error("devices missing from snapshot")
	}
	if snap.Weather == nil || snap.HomeState == nil {
		t.Error("weather and home state must be fetched")
	}
}

func TestFetch_TadoXHomeNormalizesRooms(t *testing.T) {
	e := newTestEngine(mixedVendor())
	discover(t, e)

	snap, err := e.Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !snap.TadoX {
		t.Error("snapshot should be marked TadoX")
	}
	zone, ok := snap.Zones[7]
	if !ok {
		t.Fatal("room 7 missing from snapshot")
	}
	if target, ok := zone.TargetTemp(); !ok || target != 19 {
		t.Errorf("TargetTemp() = %v, %v; want 19 via normalization", target, ok)
	}
}

func TestFetch_UnknownHome(t *testing.T) {
	e := newTestEngine(mixedVendor())
	discover(t, e)

	if _, err := e.Fetch(context.Background(), 99); !errors.Is(err, ErrUnknownHome) {
		t.Errorf("error = %v, want ErrUnknownHome", err)
	}
}

// ===== Command Routing =====

func TestSetZoneSetpoint_RoutesByGeneration(t *testing.T) {
	vendor := mixedVendor()
	e := newTestEngine(vendor)
	discover(t, e)
	// Seed cache so optimistic patches have a target.
	snap1, _ := e.Fetch(context.Background(), 1)
	snap2, _ := e.Fetch(context.Background(), 2)
	e.cache.ReplaceSnapshot(snap1) //nolint:errcheck // setup
	e.cache.ReplaceSnapshot(snap2) //nolint:errcheck // setup

	if _, err := e.SetZoneSetpoint(context.Background(), 1, 1, 21, tado.TerminationManual, 0); err != nil {
		t.Fatalf("v2 SetZoneSetpoint() error = %v", err)
	}
	if !vendor.called("SetOverlay") {
		t.Error("v2 home should use the overlay endpoint")
	}

	if _, err := e.SetZoneSetpoint(context.Background(), 2, 7, 21, tado.TerminationManual, 0); err != nil {
		t.Fatalf("X SetZoneSetpoint() error = %v", err)
	}
	if !vendor.called("SetRoomManualControl") {
		t.Error("X home should use the hops manual-control endpoint")
	}
}

func TestSetZoneSetpoint_HotWaterZoneGetsHotWaterOverlay(t *testing.T) {
	vendor := mixedVendor()
	e := newTestEngine(vendor)
	discover(t, e)
	snap, _ := e.Fetch(context.Background(), 1)
	e.cache.ReplaceSnapshot(snap) //nolint:errcheck // setup

	// Zone 2 of home 1 is HOT_WATER; zone 1 is HEATING.
	if _, err := e.SetZoneSetpoint(context.Background(), 1, 2, 55, tado.TerminationManual, 0); err != nil {
		t.Fatalf("hot-water SetZoneSetpoint() error = %v", err)
	}
	if _, err := e.SetZoneSetpoint(context.Background(), 1, 1, 21, tado.TerminationManual, 0); err != nil {
		t.Fatalf("heating SetZoneSetpoint() error = %v", err)
	}

	overlays := vendor.sentOverlays()
	if len(overlays) != 2 {
		t.Fatalf("got %d overlays, want 2", len(overlays))
	}
	water := overlays[0]
	if water.Setting.Type != tado.ZoneTypeHotWater {
		t.Errorf("hot-water overlay setting type = %q, want %q", water.Setting.Type, tado.ZoneTypeHotWater)
	}
	if water.Setting.Power != tado.PowerOn {
		t.Errorf("hot-water overlay power = %q, want ON", water.Setting.Power)
	}
	if water.Setting.Temperature == nil || water.Setting.Temperature.Celsius != 55 {
		t.Errorf("hot-water overlay temperature = %+v, want 55", water.Setting.Temperature)
	}
	if heating := overlays[1]; heating.Setting.Type != tado.ZoneTypeHeating {
		t.Errorf("heating overlay setting type = %q, want %q", heating.Setting.Type, tado.ZoneTypeHeating)
	}
}

func TestResumeSchedule_RoutesByGeneration(t *testing.T) {
	vendor := mixedVendor()
	e := newTestEngine(vendor)
	discover(t, e)

	if _, err := e.ResumeSchedule(context.Background(), 1, 1); err != nil {
		t.Fatalf("v2 ResumeSchedule() error = %v", err)
	}
	if !vendor.called("ResetOverlay") {
		t.Error("v2 home should DELETE the overlay")
	}

	if _, err := e.ResumeSchedule(context.Background(), 2, 7); err != nil {
		t.Fatalf("X ResumeSchedule() error = %v", err)
	}
	if !vendor.called("ResumeRoomSchedule") {
		t.Error("X home should POST resumeSchedule")
	}
}

func TestCommands_UnknownHome(t *testing.T) {
	e := newTestEngine(mixedVendor())
	discover(t, e)
	ctx := context.Background()

	if _, err := e.SetZoneSetpoint(ctx, 99, 1, 21, tado.TerminationManual, 0); !errors.Is(err, ErrUnknownHome) {
		t.Errorf("SetZoneSetpoint error = %v", err)
	}
	if _, err := e.SetPresence(ctx, 99, tado.PresenceAway); !errors.Is(err, ErrUnknownHome) {
		t.Errorf("SetPresence error = %v", err)
	}
	if _, err := e.SetChildLock(ctx, 99, "VA1", true); !errors.Is(err, ErrUnknownHome) {
		t.Errorf("SetChildLock error = %v", err)
	}
}

// ===== Device Flow =====

func TestBeginDeviceAuth_StopsWithEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/device_authorize" {
			fmt.Fprint(w, `{
				"device_code": "dev-1",
				"user_code": "ABCD-EFGH",
				"verification_uri": "https://login.example/device",
				"expires_in": 300,
				"interval": 1
			}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"authorization_pending"}`)
	}))
	defer server.Close()

	session := auth.NewSession(staticTokens{}, auth.Config{
		OAuthBaseURL: server.URL,
		Profiles: []auth.ClientProfile{
			{ID: "client-a", Scope: "home.user offline_access"},
		},
	}, nil)
	e := New(mixedVendor(), session, Config{
		PollInterval:      time.Millisecond,
		DeviceFlowTimeout: time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	if _, err := e.BeginDeviceAuth(context.Background()); err != nil {
		t.Fatalf("BeginDeviceAuth() error = %v", err)
	}
	if !e.DeviceAuthPending() {
		t.Fatal("device flow should be pending")
	}

	cancel()
	<-done

	// The wait goroutine must observe the shutdown, not sit out its own
	// one-minute timeout.
	deadline := time.After(2 * time.Second)
	for e.DeviceAuthPending() {
		select {
		case <-deadline:
			t.Fatal("device-authorization polling survived engine shutdown")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// ===== Run =====

func TestRun_PollsDiscoveredHomes(t *testing.T) {
	e := newTestEngine(mixedVendor())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Wait until both homes have cached state.
	deadline := time.After(2 * time.Second)
	for {
		if _, err1 := e.State(1); err1 == nil {
			if _, err2 := e.State(2); err2 == nil {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatal("homes never got cached state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

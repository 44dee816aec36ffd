package tado

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalocar/tado-direct/internal/transport"
)

// Doer issues authenticated HTTP requests. Satisfied by *transport.Client.
type Doer interface {
	Get(ctx context.Context, url string, out any) error
	Do(ctx context.Context, method, url string, body, out any, opts ...transport.RequestOption) error
}

// Client exposes the Tado API surface as typed operations.
//
// Write operations take an idempotency key so ambiguous failures can be
// re-sent safely; pass "" for fire-and-forget calls.
type Client struct {
	doer     Doer
	apiBase  string
	hopsBase string
}

// NewClient creates a Client against the given API bases.
func NewClient(doer Doer, apiBase, hopsBase string) *Client {
	return &Client{
		doer:     doer,
		apiBase:  apiBase,
		hopsBase: hopsBase,
	}
}

func (c *Client) homeURL(homeID int64, path string) string {
	if path == "" {
		return fmt.Sprintf("%s/homes/%d", c.apiBase, homeID)
	}
	return fmt.Sprintf("%s/homes/%d/%s", c.apiBase, homeID, path)
}

func (c *Client) hopsHomeURL(homeID int64, path string) string {
	if path == "" {
		return fmt.Sprintf("%s/homes/%d", c.hopsBase, homeID)
	}
	return fmt.Sprintf("%s/homes/%d/%s", c.hopsBase, homeID, path)
}

func writeOpts(key string) []transport.RequestOption {
	if key == "" {
		return nil
	}
	return []transport.RequestOption{transport.WithIdempotencyKey(key)}
}

// Me returns the user profile, including the homes on the account.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.doer.Get(ctx, c.apiBase+"/me", &me); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return &me, nil
}

// Zones returns all zones of a home.
func (c *Client) Zones(ctx context.Context, homeID int64) ([]Zone, error) {
	var zones []Zone
	if err := c.doer.Get(ctx, c.homeURL(homeID, "zones"), &zones); err != nil {
		return nil, fmt.Errorf("fetching zones: %w", err)
	}
	return zones, nil
}

// Devices returns all devices of a home.
func (c *Client) Devices(ctx context.Context, homeID int64) ([]Device, error) {
	var devices []Device
	if err := c.doer.Get(ctx, c.homeURL(homeID, "devices"), &devices); err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}
	return devices, nil
}

// zoneStatesResponse is the bulk state envelope.
type zoneStatesResponse struct {
	ZoneStates map[string]*ZoneState `json:"zoneStates"`
}

// ZoneStates returns the state of every zone in one call, keyed by the
// zone ID's decimal string.
func (c *Client) ZoneStates(ctx context.Context, homeID int64) (map[string]*ZoneState, error) {
	var resp zoneStatesResponse
	if err := c.doer.Get(ctx, c.homeURL(homeID, "zoneStates"), &resp); err != nil {
		return nil, fmt.Errorf("fetching zone states: %w", err)
	}
	return resp.ZoneStates, nil
}

// ZoneState returns the state of a single zone.
func (c *Client) ZoneState(ctx context.Context, homeID int64, zoneID int) (*ZoneState, error) {
	var state ZoneState
	url := c.homeURL(homeID, fmt.Sprintf("zones/%d/state", zoneID))
	if err := c.doer.Get(ctx, url, &state); err != nil {
		return nil, fmt.Errorf("fetching zone %d state: %w", zoneID, err)
	}
	return &state, nil
}

// Capabilities returns what a zone supports.
func (c *Client) Capabilities(ctx context.Context, homeID int64, zoneID int) (*Capabilities, error) {
	var caps Capabilities
	url := c.homeURL(homeID, fmt.Sprintf("zones/%d/capabilities", zoneID))
	if err := c.doer.Get(ctx, url, &caps); err != nil {
		return nil, fmt.Errorf("fetching zone %d capabilities: %w", zoneID, err)
	}
	return &caps, nil
}

// DefaultOverlay returns a zone's configured manual-control default.
func (c *Client) DefaultOverlay(ctx context.Context, homeID int64, zoneID int) (*DefaultOverlay, error) {
	var def DefaultOverlay
	url := c.homeURL(homeID, fmt.Sprintf("zones/%d/defaultOverlay", zoneID))
	if err := c.doer.Get(ctx, url, &def); err != nil {
		return nil, fmt.Errorf("fetching zone %d default overlay: %w", zoneID, err)
	}
	return &def, nil
}

// Weather returns the home's weather report.
func (c *Client) Weather(ctx context.Context, homeID int64) (*Weather, error) {
	var weather Weather
	if err := c.doer.Get(ctx, c.homeURL(homeID, "weather"), &weather); err != nil {
		return nil, fmt.Errorf("fetching weather: %w", err)
	}
	return &weather, nil
}

// HomeState returns the home's presence state.
func (c *Client) HomeState(ctx context.Context, homeID int64) (*HomeState, error) {
	var state HomeState
	if err := c.doer.Get(ctx, c.homeURL(homeID, "state"), &state); err != nil {
		return nil, fmt.Errorf("fetching home state: %w", err)
	}
	return &state, nil
}

// SetOverlay applies a manual override to a zone.
func (c *Client) SetOverlay(ctx context.Context, homeID int64, zoneID int, req OverlayRequest, key string) error {
	url := c.homeURL(homeID, fmt.Sprintf("zones/%d/overlay", zoneID))
	if err := c.doer.Do(ctx, http.MethodPut, url, req, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("setting zone %d overlay: %w", zoneID, err)
	}
	return nil
}

// ResetOverlay removes a zone's manual override (resume schedule).
func (c *Client) ResetOverlay(ctx context.Context, homeID int64, zoneID int, key string) error {
	url := c.homeURL(homeID, fmt.Sprintf("zones/%d/overlay", zoneID))
	if err := c.doer.Do(ctx, http.MethodDelete, url, nil, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("resetting zone %d overlay: %w", zoneID, err)
	}
	return nil
}

// SetPresence locks the home presence to HOME or AWAY; PresenceAuto
// removes the lock (auto geofencing).
func (c *Client) SetPresence(ctx context.Context, homeID int64, presence string, key string) error {
	url := c.homeURL(homeID, "presenceLock")

	if presence == PresenceAuto {
		if err := c.doer.Do(ctx, http.MethodDelete, url, nil, nil, writeOpts(key)...); err != nil {
			return fmt.Errorf("removing presence lock: %w", err)
		}
		return nil
	}

	req := PresenceRequest{HomePresence: presence}
	if err := c.doer.Do(ctx, http.MethodPut, url, req, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("setting presence %s: %w", presence, err)
	}
	return nil
}

// SetChildLock toggles a device's child lock.
func (c *Client) SetChildLock(ctx context.Context, deviceID string, enabled bool, key string) error {
	url := fmt.Sprintf("%s/devices/%s/childLock", c.apiBase, deviceID)
	req := ChildLockRequest{ChildLockEnabled: enabled}
	if err := c.doer.Do(ctx, http.MethodPut, url, req, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("setting child lock on %s: %w", deviceID, err)
	}
	return nil
}

// SetTemperatureOffset calibrates a device's measured temperature.
func (c *Client) SetTemperatureOffset(ctx context.Context, deviceID string, celsius float64, key string) error {
	url := fmt.Sprintf("%s/devices/%s/temperatureOffset", c.apiBase, deviceID)
	req := TemperatureOffset{Celsius: celsius}
	if err := c.doer.Do(ctx, http.MethodPut, url, req, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("setting temperature offset on %s: %w", deviceID, err)
	}
	return nil
}

// AddMeterReading submits an Energy IQ meter reading.
func (c *Client) AddMeterReading(ctx context.Context, homeID int64, reading MeterReading, key string) error {
	url := c.homeURL(homeID, "meterReadings")
	if err := c.doer.Do(ctx, http.MethodPost, url, reading, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("adding meter reading: %w", err)
	}
	return nil
}

// ===== Tado X (hops) =====

// Rooms returns all rooms of a Tado X home.
func (c *Client) Rooms(ctx context.Context, homeID int64) ([]Room, error) {
	var rooms []Room
	if err := c.doer.Get(ctx, c.hopsHomeURL(homeID, "rooms"), &rooms); err != nil {
		return nil, fmt.Errorf("fetching rooms: %w", err)
	}
	return rooms, nil
}

// DetectTadoX reports whether the home answers on the hops API. Any error
// (including 404 for pre-X homes) means no.
func (c *Client) DetectTadoX(ctx context.Context, homeID int64) bool {
	rooms, err := c.Rooms(ctx, homeID)
	return err == nil && len(rooms) > 0
}

// SetRoomManualControl applies manual control to a Tado X room.
func (c *Client) SetRoomManualControl(ctx context.Context, homeID int64, roomID int, req RoomManualControl, key string) error {
	url := c.hopsHomeURL(homeID, fmt.Sprintf("rooms/%d/manualControl", roomID))
	if err := c.doer.Do(ctx, http.MethodPost, url, req, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("setting room %d manual control: %w", roomID, err)
	}
	return nil
}

// ResumeRoomSchedule ends manual control on a Tado X room.
func (c *Client) ResumeRoomSchedule(ctx context.Context, homeID int64, roomID int, key string) error {
	url := c.hopsHomeURL(homeID, fmt.Sprintf("rooms/%d/resumeSchedule", roomID))
	if err := c.doer.Do(ctx, http.MethodPost, url, struct{}{}, nil, writeOpts(key)...); err != nil {
		return fmt.Errorf("resuming room %d schedule: %w", roomID, err)
	}
	return nil
}

package command

import (
	"context"
	"fmt"
	"math"

	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// setpointTolerance absorbs the vendor rounding setpoints to half degrees.
const setpointTolerance = 0.05

// API is the slice of the vendor client the commands need. Satisfied by
// *tado.Client.
type API interface {
	SetOverlay(ctx context.Context, homeID int64, zoneID int, req tado.OverlayRequest, key string) error
	ResetOverlay(ctx context.Context, homeID int64, zoneID int, key string) error
	SetPresence(ctx context.Context, homeID int64, presence string, key string) error
	SetChildLock(ctx context.Context, deviceID string, enabled bool, key string) error
	SetTemperatureOffset(ctx context.Context, deviceID string, celsius float64, key string) error
	SetRoomManualControl(ctx context.Context, homeID int64, roomID int, req tado.RoomManualControl, key string) error
	ResumeRoomSchedule(ctx context.Context, homeID int64, roomID int, key string) error
	AddMeterReading(ctx context.Context, homeID int64, reading tado.MeterReading, key string) error
}

// Command is one trackable write. Execute performs the vendor call with
// the given idempotency key; ApplyOptimistic patches the cache with the
// expected outcome; ConfirmedBy checks a later snapshot for that outcome.
type Command interface {
	Describe() string
	HomeID() int64
	Execute(ctx context.Context, key string) error
	ApplyOptimistic(cache *state.Cache) error
	ConfirmedBy(snap *state.Snapshot) bool
}

// ===== Zone Overlay =====

// SetOverlay applies a manual override to a v2 zone.
type SetOverlay struct {
	API    API
	Home   int64
	ZoneID int
	Req    tado.OverlayRequest
}

func (c *SetOverlay) Describe() string { return fmt.Sprintf("set overlay zone %d", c.ZoneID) }
func (c *SetOverlay) HomeID() int64    { return c.Home }

func (c *SetOverlay) Execute(ctx context.Context, key string) error {
	return c.API.SetOverlay(ctx, c.Home, c.ZoneID, c.Req, key)
}

func (c *SetOverlay) ApplyOptimistic(cache *state.Cache) error {
	return cache.ApplyZonePatch(c.Home, state.ZonePatch{
		ZoneID:  c.ZoneID,
		Overlay: overlayFromRequest(c.Req),
	})
}

func (c *SetOverlay) ConfirmedBy(snap *state.Snapshot) bool {
	zone, ok := snap.Zones[c.ZoneID]
	if !ok || !zone.OverlayActive() {
		return false
	}
	if zone.Overlay.Setting == nil || zone.Overlay.Setting.Power != c.Req.Setting.Power {
		return false
	}
	if c.Req.Setting.Temperature == nil {
		return true
	}
	target := zone.Overlay.Setting.SettingTemperature()
	return target != nil && math.Abs(target.Celsius-c.Req.Setting.Temperature.Celsius) <= setpointTolerance
}

// ResetOverlay removes a zone's manual override.
type ResetOverlay struct {
	API    API
	Home   int64
	ZoneID int
}

func (c *ResetOverlay) Describe() string { return fmt.Sprintf("reset overlay zone %d", c.ZoneID) }
func (c *ResetOverlay) HomeID() int64    { return c.Home }

func (c *ResetOverlay) Execute(ctx context.Context, key string) error {
	return c.API.ResetOverlay(ctx, c.Home, c.ZoneID, key)
}

func (c *ResetOverlay) ApplyOptimistic(cache *state.Cache) error {
	return cache.ApplyZonePatch(c.Home, state.ZonePatch{
		ZoneID:        c.ZoneID,
		RemoveOverlay: true,
	})
}

func (c *ResetOverlay) ConfirmedBy(snap *state.Snapshot) bool {
	zone, ok := snap.Zones[c.ZoneID]
	return ok && !zone.OverlayActive()
}

// ===== Presence =====

// SetPresence locks or unlocks the home presence.
type SetPresence struct {
	API      API
	Home     int64
	Presence string
}

func (c *SetPresence) Describe() string { return "set presence " + c.Presence }
func (c *SetPresence) HomeID() int64    { return c.Home }

func (c *SetPresence) Execute(ctx context.Context, key string) error {
	return c.API.SetPresence(ctx, c.Home, c.Presence, key)
}

func (c *SetPresence) ApplyOptimistic(cache *state.Cache) error {
	return cache.ApplyPresencePatch(c.Home, state.PresencePatch{Presence: c.Presence})
}

func (c *SetPresence) ConfirmedBy(snap *state.Snapshot) bool {
	hs := snap.HomeState
	if hs == nil {
		return false
	}
	if c.Presence == tado.PresenceAuto {
		return hs.PresenceLocked != nil && !*hs.PresenceLocked
	}
	return hs.Presence == c.Presence
}

// ===== Device Settings =====

// SetChildLock toggles a device's child lock.
type SetChildLock struct {
	API      API
	Home     int64
	DeviceID string
	Enabled  bool
}

func (c *SetChildLock) Describe() string { return "set child lock " + c.DeviceID }
func (c *SetChildLock) HomeID() int64    { return c.Home }

func (c *SetChildLock) Execute(ctx context.Context, key string) error {
	return c.API.SetChildLock(ctx, c.DeviceID, c.Enabled, key)
}

func (c *SetChildLock) ApplyOptimistic(*state.Cache) error { return nil }

func (c *SetChildLock) ConfirmedBy(snap *state.Snapshot) bool {
	dev, ok := snap.Devices[c.DeviceID]
	return ok && dev.ChildLockEnabled != nil && *dev.ChildLockEnabled == c.Enabled
}

// SetTemperatureOffset calibrates a device's measured temperature. The
// offset is not part of any polled snapshot, so the first snapshot after
// acknowledgement counts as confirmation.
type SetTemperatureOffset struct {
	API      API
	Home     int64
	DeviceID string
	Celsius  float64
}

func (c *SetTemperatureOffset) Describe() string { return "set temperature offset " + c.DeviceID }
func (c *SetTemperatureOffset) HomeID() int64    { return c.Home }

func (c *SetTemperatureOffset) Execute(ctx context.Context, key string) error {
	return c.API.SetTemperatureOffset(ctx, c.DeviceID, c.Celsius, key)
}

func (c *SetTemperatureOffset) ApplyOptimistic(*state.Cache) error { return nil }

func (c *SetTemperatureOffset) ConfirmedBy(*state.Snapshot) bool { return true }

// ===== Tado X Rooms =====

// SetRoomControl applies manual control to a Tado X room.
type SetRoomControl struct {
	API    API
	Home   int64
	RoomID int
	Req    tado.RoomManualControl
}

func (c *SetRoomControl) Describe() string { return fmt.Sprintf("set room %d manual control", c.RoomID) }
func (c *SetRoomControl) HomeID() int64    { return c.Home }

func (c *SetRoomControl) Execute(ctx context.Context, key string) error {
	return c.API.SetRoomManualControl(ctx, c.Home, c.RoomID, c.Req, key)
}

func (c *SetRoomControl) ApplyOptimistic(cache *state.Cache) error {
	setting := &tado.ZoneSetting{
		Type:  tado.ZoneTypeHeating,
		Power: c.Req.Setting.Power,
	}
	if c.Req.Setting.Temperature != nil {
		setting.Heating = &tado.HeatingSetting{
			Temperature: &tado.Temperature{Celsius: c.Req.Setting.Temperature.Value},
		}
	}
	return cache.ApplyZonePatch(c.Home, state.ZonePatch{
		ZoneID: c.RoomID,
		Overlay: &tado.Overlay{
			Setting:     setting,
			Termination: &tado.Termination{TypeSkillBasedApp: c.Req.Termination.Type},
		},
	})
}

func (c *SetRoomControl) ConfirmedBy(snap *state.Snapshot) bool {
	zone, ok := snap.Zones[c.RoomID]
	if !ok || !zone.OverlayActive() {
		return false
	}
	if c.Req.Setting.Temperature == nil {
		return true
	}
	target := zone.Overlay.Setting.SettingTemperature()
	return target != nil && math.Abs(target.Celsius-c.Req.Setting.Temperature.Value) <= setpointTolerance
}

// ResumeRoomSchedule ends manual control on a Tado X room.
type ResumeRoomSchedule struct {
	API    API
	Home   int64
	RoomID int
}

func (c *ResumeRoomSchedule) Describe() string { return fmt.Sprintf("resume room %d schedule", c.RoomID) }
func (c *ResumeRoomSchedule) HomeID() int64    { return c.Home }

func (c *ResumeRoomSchedule) Execute(ctx context.Context, key string) error {
	return c.API.ResumeRoomSchedule(ctx, c.Home, c.RoomID, key)
}

func (c *ResumeRoomSchedule) ApplyOptimistic(cache *state.Cache) error {
	return cache.ApplyZonePatch(c.Home, state.ZonePatch{
		ZoneID:        c.RoomID,
		RemoveOverlay: true,
	})
}

func (c *ResumeRoomSchedule) ConfirmedBy(snap *state.Snapshot) bool {
	zone, ok := snap.Zones[c.RoomID]
	return ok && !zone.OverlayActive()
}

// ===== Energy IQ =====

// AddMeterReading submits an Energy IQ meter reading. Readings never
// appear in polled state, so the first snapshot after acknowledgement
// counts as confirmation.
type AddMeterReading struct {
	API     API
	Home    int64
	Reading tado.MeterReading
}

func (c *AddMeterReading) Describe() string { return "add meter reading " + c.Reading.Date }
func (c *AddMeterReading) HomeID() int64    { return c.Home }

func (c *AddMeterReading) Execute(ctx context.Context, key string) error {
	return c.API.AddMeterReading(ctx, c.Home, c.Reading, key)
}

func (c *AddMeterReading) ApplyOptimistic(*state.Cache) error { return nil }

func (c *AddMeterReading) ConfirmedBy(*state.Snapshot) bool { return true }

// overlayFromRequest converts the write payload into the read shape the
// cache stores.
func overlayFromRequest(req tado.OverlayRequest) *tado.Overlay {
	setting := &tado.ZoneSetting{
		Type:  req.Setting.Type,
		Power: req.Setting.Power,
	}
	switch req.Setting.Type {
	case tado.ZoneTypeHotWater:
		setting.HotWater = &tado.HotWaterSetting{Temperature: req.Setting.Temperature}
	case tado.ZoneTypeAirConditioning:
		setting.AirConditioning = &tado.AirConditioningSetting{
			Mode:            req.Setting.Mode,
			Temperature:     req.Setting.Temperature,
			FanSpeed:        req.Setting.FanSpeed,
			FanLevel:        req.Setting.FanLevel,
			Swing:           req.Setting.Swing,
			VerticalSwing:   req.Setting.VerticalSwing,
			HorizontalSwing: req.Setting.HorizontalSwing,
		}
	default:
		setting.Heating = &tado.HeatingSetting{Temperature: req.Setting.Temperature}
	}

	termination := &tado.Termination{
		TypeSkillBasedApp: req.Termination.TypeSkillBasedApp,
	}
	if req.Termination.DurationInSeconds > 0 {
		d := req.Termination.DurationInSeconds
		termination.DurationInSeconds = &d
	}

	return &tado.Overlay{Setting: setting, Termination: termination}
}

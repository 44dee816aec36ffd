package tado

import (
	"encoding/json"
)

// HVAC mode and action strings, matching the vendor app vocabulary.
const (
	HVACModeOff           = "OFF"
	HVACModeHeat          = "HEAT"
	HVACModeSmartSchedule = "SMART_SCHEDULE"

	HVACActionOff  = "OFF"
	HVACActionIdle = "IDLE"
	HVACActionHeat = "HEAT"
	HVACActionCool = "COOL"
	HVACActionDry  = "DRY"
	HVACActionFan  = "FAN"
)

// Link states.
const (
	LinkOnline  = "ONLINE"
	LinkOffline = "OFFLINE"
)

// ZoneState is a zone's observed state as reported by the v2 API.
type ZoneState struct {
	TadoMode            string              `json:"tadoMode,omitempty"`
	GeolocationOverride *bool               `json:"geolocationOverride,omitempty"`
	Setting             *ZoneSetting        `json:"setting,omitempty"`
	OverlayType         string              `json:"overlayType,omitempty"`
	Overlay             *Overlay            `json:"overlay,omitempty"`
	OpenWindow          *OpenWindow         `json:"openWindow,omitempty"`
	OpenWindowDetected  bool                `json:"openWindowDetected,omitempty"`
	Link                *Link               `json:"link,omitempty"`
	Preparation         json.RawMessage     `json:"preparation,omitempty"`
	ActivityDataPoints  *ActivityDataPoints `json:"activityDataPoints,omitempty"`
	SensorDataPoints    *SensorDataPoints   `json:"sensorDataPoints,omitempty"`
}

// Overlay is an active manual override of the schedule.
type Overlay struct {
	Type        string       `json:"type,omitempty"`
	Setting     *ZoneSetting `json:"setting,omitempty"`
	Termination *Termination `json:"termination,omitempty"`
}

// Termination describes when an overlay ends.
type Termination struct {
	Type                   string `json:"type,omitempty"`
	TypeSkillBasedApp      string `json:"typeSkillBasedApp,omitempty"`
	DurationInSeconds      *int   `json:"durationInSeconds,omitempty"`
	RemainingTimeInSeconds *int   `json:"remainingTimeInSeconds,omitempty"`
	Expiry                 string `json:"expiry,omitempty"`
	ProjectedExpiry        string `json:"projectedExpiry,omitempty"`
}

// OpenWindow is an active open-window pause.
type OpenWindow struct {
	DetectedTime           string `json:"detectedTime,omitempty"`
	DurationInSeconds      *int   `json:"durationInSeconds,omitempty"`
	Expiry                 string `json:"expiry,omitempty"`
	RemainingTimeInSeconds *int   `json:"remainingTimeInSeconds,omitempty"`
}

// Link is the zone's connectivity to the cloud.
type Link struct {
	State string `json:"state"`
}

// ActivityDataPoints are the zone's output measurements.
type ActivityDataPoints struct {
	HeatingPower *PercentageReading `json:"heatingPower,omitempty"`
	ACPower      *ValueReading      `json:"acPower,omitempty"`
}

// SensorDataPoints are the zone's input measurements.
type SensorDataPoints struct {
	InsideTemperature *TemperatureReading `json:"insideTemperature,omitempty"`
	Humidity          *PercentageReading  `json:"humidity,omitempty"`
}

// ZoneSetting is the decoded "setting" block. The Type discriminator
// selects which variant is populated; unrecognised types are kept raw in
// Unknown so they round-trip unchanged.
type ZoneSetting struct {
	Type  string
	Power string

	Heating         *HeatingSetting
	HotWater        *HotWaterSetting
	AirConditioning *AirConditioningSetting

	Unknown json.RawMessage
}

// HeatingSetting is the HEATING variant.
type HeatingSetting struct {
	Temperature *Temperature
}

// HotWaterSetting is the HOT_WATER variant.
type HotWaterSetting struct {
	Temperature *Temperature
}

// AirConditioningSetting is the AIR_CONDITIONING variant.
type AirConditioningSetting struct {
	Mode            string
	Temperature     *Temperature
	FanSpeed        string
	FanLevel        string
	Swing           string
	VerticalSwing   string
	HorizontalSwing string
}

// settingWire is the flat JSON shape the API uses for every setting type.
type settingWire struct {
	Type            string       `json:"type,omitempty"`
	Power           string       `json:"power,omitempty"`
	Temperature     *Temperature `json:"temperature,omitempty"`
	Mode            string       `json:"mode,omitempty"`
	FanSpeed        string       `json:"fanSpeed,omitempty"`
	FanLevel        string       `json:"fanLevel,omitempty"`
	Swing           string       `json:"swing,omitempty"`
	VerticalSwing   string       `json:"verticalSwing,omitempty"`
	HorizontalSwing string       `json:"horizontalSwing,omitempty"`
}

// UnmarshalJSON decodes the flat wire shape into the matching variant.
func (s *ZoneSetting) UnmarshalJSON(data []byte) error {
	var wire settingWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*s = ZoneSetting{
		Type:  wire.Type,
		Power: wire.Power,
	}

	switch wire.Type {
	case ZoneTypeHeating:
		s.Heating = &HeatingSetting{Temperature: wire.Temperature}
	case ZoneTypeHotWater:
		s.HotWater = &HotWaterSetting{Temperature: wire.Temperature}
	case ZoneTypeAirConditioning:
		s.AirConditioning = &AirConditioningSetting{
			Mode:            wire.Mode,
			Temperature:     wire.Temperature,
			FanSpeed:        wire.FanSpeed,
			FanLevel:        wire.FanLevel,
			Swing:           wire.Swing,
			VerticalSwing:   wire.VerticalSwing,
			HorizontalSwing: wire.HorizontalSwing,
		}
	default:
		s.Unknown = append([]byte(nil), data...)
	}

	return nil
}

// MarshalJSON re-encodes the variant back into the flat wire shape.
func (s ZoneSetting) MarshalJSON() ([]byte, error) {
	if s.Unknown != nil {
		return s.Unknown, nil
	}

	wire := settingWire{
		Type:  s.Type,
		Power: s.Power,
	}

	switch {
	case s.Heating != nil:
		wire.Temperature = s.Heating.Temperature
	case s.HotWater != nil:
		wire.Temperature = s.HotWater.Temperature
	case s.AirConditioning != nil:
		ac := s.AirConditioning
		wire.Mode = ac.Mode
		wire.Temperature = ac.Temperature
		wire.FanSpeed = ac.FanSpeed
		wire.FanLevel = ac.FanLevel
		wire.Swing = ac.Swing
		wire.VerticalSwing = ac.VerticalSwing
		wire.HorizontalSwing = ac.HorizontalSwing
	}

	return json.Marshal(wire)
}

// SettingTemperature returns the variant's setpoint, if any.
func (s *ZoneSetting) SettingTemperature() *Temperature {
	if s == nil {
		return nil
	}
	switch {
	case s.Heating != nil:
		return s.Heating.Temperature
	case s.HotWater != nil:
		return s.HotWater.Temperature
	case s.AirConditioning != nil:
		return s.AirConditioning.Temperature
	}
	return nil
}

// ===== Accessors =====

// CurrentTemp returns the measured inside temperature in celsius.
func (z *ZoneState) CurrentTemp() (float64, bool) {
	if z.SensorDataPoints == nil || z.SensorDataPoints.InsideTemperature == nil {
		return 0, false
	}
	return z.SensorDataPoints.InsideTemperature.Celsius, true
}

// CurrentTempTimestamp returns when the inside temperature was measured.
func (z *ZoneState) CurrentTempTimestamp() string {
	if z.SensorDataPoints == nil || z.SensorDataPoints.InsideTemperature == nil {
		return ""
	}
	return z.SensorDataPoints.InsideTemperature.Timestamp
}

// CurrentHumidity returns the measured humidity percentage.
func (z *ZoneState) CurrentHumidity() (float64, bool) {
	if z.SensorDataPoints == nil || z.SensorDataPoints.Humidity == nil {
		return 0, false
	}
	return z.SensorDataPoints.Humidity.Percentage, true
}

// TargetTemp returns the active setpoint in celsius, checking the base
// setting first and falling back to the overlay setting.
func (z *ZoneState) TargetTemp() (float64, bool) {
	if t := z.Setting.SettingTemperature(); t != nil {
		return t.Celsius, true
	}
	if z.Overlay != nil {
		if t := z.Overlay.Setting.SettingTemperature(); t != nil {
			return t.Celsius, true
		}
	}
	return 0, false
}

// Power returns the setting power state (ON/OFF).
func (z *ZoneState) Power() string {
	if z.Setting == nil || z.Setting.Power == "" {
		return PowerOff
	}
	return z.Setting.Power
}

// HVACMode derives the mode string the vendor app shows:
// OFF, HEAT, SMART_SCHEDULE, or an AC mode.
func (z *ZoneState) HVACMode() string {
	if z.Power() != PowerOn {
		return HVACModeOff
	}
	if z.Overlay == nil {
		return HVACModeSmartSchedule
	}

	setting := z.Overlay.Setting
	if setting == nil {
		return HVACModeOff
	}
	switch setting.Type {
	case ZoneTypeHeating, ZoneTypeHotWater:
		return HVACModeHeat
	}
	if setting.AirConditioning != nil && setting.AirConditioning.Mode != "" {
		return setting.AirConditioning.Mode
	}
	return HVACModeOff
}

// HVACAction derives what the zone is actually doing right now from the
// activity data points: OFF, IDLE, HEAT, or an AC action.
func (z *ZoneState) HVACAction() string {
	if z.Power() != PowerOn {
		return HVACActionOff
	}

	if z.ActivityDataPoints != nil {
		if hp := z.ActivityDataPoints.HeatingPower; hp != nil && hp.Percentage > 0 {
			return HVACActionHeat
		}
		if ac := z.ActivityDataPoints.ACPower; ac != nil && ac.Value == PowerOn {
			if z.Setting != nil && z.Setting.AirConditioning != nil {
				switch z.Setting.AirConditioning.Mode {
				case "COOL", "HEAT", "DRY", "FAN":
					return z.Setting.AirConditioning.Mode
				}
			}
			return HVACActionCool
		}
	}

	return HVACActionIdle
}

// OverlayActive reports whether a manual override is in effect.
func (z *ZoneState) OverlayActive() bool {
	return z.Overlay != nil
}

// OverlayTerminationType returns how the active overlay ends, preferring
// the app-level type over the raw type.
func (z *ZoneState) OverlayTerminationType() string {
	if z.Overlay == nil || z.Overlay.Termination == nil {
		return ""
	}
	if t := z.Overlay.Termination.TypeSkillBasedApp; t != "" {
		return t
	}
	return z.Overlay.Termination.Type
}

// OpenWindowActive reports whether an open-window pause is in effect.
func (z *ZoneState) OpenWindowActive() bool {
	return z.OpenWindow != nil
}

// LinkState returns the zone's connectivity (ONLINE/OFFLINE).
func (z *ZoneState) LinkState() string {
	if z.Link == nil || z.Link.State == "" {
		return LinkOffline
	}
	return z.Link.State
}

// Available reports whether the zone is reachable.
func (z *ZoneState) Available() bool {
	return z.LinkState() == LinkOnline
}

// IsAway reports whether the zone is in away mode.
func (z *ZoneState) IsAway() bool {
	return z.TadoMode == PresenceAway
}

// HeatingPowerPercentage returns the current heating output.
func (z *ZoneState) HeatingPowerPercentage() (float64, bool) {
	if z.ActivityDataPoints == nil || z.ActivityDataPoints.HeatingPower == nil {
		return 0, false
	}
	return z.ActivityDataPoints.HeatingPower.Percentage, true
}

// InPreparation reports whether the zone is preheating (early start).
func (z *ZoneState) InPreparation() bool {
	return len(z.Preparation) > 0 && string(z.Preparation) != "null"
}

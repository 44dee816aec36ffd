package tado

// Zone types.
const (
	ZoneTypeHeating         = "HEATING"
	ZoneTypeHotWater        = "HOT_WATER"
	ZoneTypeAirConditioning = "AIR_CONDITIONING"
)

// Power states.
const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// Presence states. Auto removes the presence lock.
const (
	PresenceHome = "HOME"
	PresenceAway = "AWAY"
	PresenceAuto = "AUTO"
)

// Overlay termination modes.
const (
	TerminationManual   = "MANUAL"
	TerminationTadoMode = "TADO_MODE"
	TerminationTimer    = "TIMER"
)

// Me is the /me profile response. Only the fields the engine needs.
type Me struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Homes []HomeRef `json:"homes"`
}

// HomeRef identifies one home in the user profile.
type HomeRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Zone is one controllable area of a home.
type Zone struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Devices []Device `json:"devices,omitempty"`
}

// Device is a physical unit (valve, thermostat, bridge).
type Device struct {
	SerialNo         string           `json:"serialNo"`
	ShortSerialNo    string           `json:"shortSerialNo,omitempty"`
	DeviceType       string           `json:"deviceType,omitempty"`
	CurrentFwVersion string           `json:"currentFwVersion,omitempty"`
	ConnectionState  *ConnectionState `json:"connectionState,omitempty"`
	BatteryState     string           `json:"batteryState,omitempty"`
	ChildLockEnabled *bool            `json:"childLockEnabled,omitempty"`
	Duties           []string         `json:"duties,omitempty"`
}

// ConnectionState is a device's last reported connectivity.
type ConnectionState struct {
	Value     bool   `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Temperature carries a temperature in the units the API uses. The v2 API
// reports celsius/fahrenheit; the hops API reports a bare value (celsius).
type Temperature struct {
	Celsius    float64 `json:"celsius,omitempty"`
	Fahrenheit float64 `json:"fahrenheit,omitempty"`
	Value      float64 `json:"value,omitempty"`
}

// TemperatureReading is a timestamped temperature measurement.
type TemperatureReading struct {
	Celsius    float64 `json:"celsius,omitempty"`
	Fahrenheit float64 `json:"fahrenheit,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// PercentageReading is a timestamped percentage measurement.
type PercentageReading struct {
	Percentage float64 `json:"percentage"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// ValueReading is a timestamped string-valued data point (e.g. acPower).
type ValueReading struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Weather is the home weather report.
type Weather struct {
	OutsideTemperature *TemperatureReading `json:"outsideTemperature,omitempty"`
	SolarIntensity     *PercentageReading  `json:"solarIntensity,omitempty"`
	WeatherState       *ValueReading       `json:"weatherState,omitempty"`
}

// HomeState is the home-level presence report. PresenceLocked being
// present at all means the account supports auto geofencing.
type HomeState struct {
	Presence       string `json:"presence,omitempty"`
	PresenceLocked *bool  `json:"presenceLocked,omitempty"`
}

// AutoGeofencingSupported reports whether the presence lock can be removed
// (PresenceAuto) on this home.
func (s *HomeState) AutoGeofencingSupported() bool {
	return s != nil && s.PresenceLocked != nil
}

// Capabilities describes what a zone supports.
type Capabilities struct {
	Type         string                 `json:"type"`
	Temperatures *TemperatureCapability `json:"temperatures,omitempty"`
}

// TemperatureCapability is the supported setpoint range.
type TemperatureCapability struct {
	Celsius *TemperatureRange `json:"celsius,omitempty"`
}

// TemperatureRange is a min/max/step triple.
type TemperatureRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// DefaultOverlay is a zone's configured default manual-control behaviour.
type DefaultOverlay struct {
	TerminationCondition TerminationCondition `json:"terminationCondition"`
}

// TerminationCondition describes when a default overlay ends.
type TerminationCondition struct {
	Type                   string `json:"type,omitempty"`
	DurationInSeconds      *int   `json:"durationInSeconds,omitempty"`
	RemainingTimeInSeconds *int   `json:"remainingTimeInSeconds,omitempty"`
}

// TerminationSeconds returns the configured duration, preferring the
// static duration over the remaining time.
func (c TerminationCondition) TerminationSeconds() (int, bool) {
	if c.DurationInSeconds != nil {
		return *c.DurationInSeconds, true
	}
	if c.RemainingTimeInSeconds != nil {
		return *c.RemainingTimeInSeconds, true
	}
	return 0, false
}

// MeterReading is an Energy IQ meter reading submission.
type MeterReading struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Reading int    `json:"reading"`
}

// PresenceRequest sets the home presence lock.
type PresenceRequest struct {
	HomePresence string `json:"homePresence"`
}

// ChildLockRequest toggles a device's child lock.
type ChildLockRequest struct {
	ChildLockEnabled bool `json:"childLockEnabled"`
}

// TemperatureOffset adjusts a device's measured temperature.
type TemperatureOffset struct {
	Celsius float64 `json:"celsius"`
}

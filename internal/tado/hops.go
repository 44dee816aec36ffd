package tado

// Room is a Tado X room from the hops API.
type Room struct {
	ID                       int                   `json:"id"`
	Name                     string                `json:"name"`
	Setting                  *RoomSetting          `json:"setting,omitempty"`
	SensorDataPoints         *RoomSensorDataPoints `json:"sensorDataPoints,omitempty"`
	ManualControlTermination *RoomTermination      `json:"manualControlTermination,omitempty"`
	BoostMode                *RoomTermination      `json:"boostMode,omitempty"`
	HeatingPower             *PercentageReading    `json:"heatingPower,omitempty"`
	Connection               *RoomConnection       `json:"connection,omitempty"`
	OpenWindow               *RoomOpenWindow       `json:"openWindow,omitempty"`
	AwayMode                 *RoomAwayMode         `json:"awayMode,omitempty"`
}

// RoomSetting is the room's schedule setting. The hops API omits power
// and type; they are derived during normalization.
type RoomSetting struct {
	Power       string       `json:"power,omitempty"`
	Temperature *Temperature `json:"temperature,omitempty"`
}

// RoomSensorDataPoints are the room's measurements.
type RoomSensorDataPoints struct {
	InsideTemperature *TemperatureReading `json:"insideTemperature,omitempty"`
	Humidity          *PercentageReading  `json:"humidity,omitempty"`
}

// RoomTermination describes a manual-control or boost expiry.
type RoomTermination struct {
	Type                   string `json:"type,omitempty"`
	DurationInSeconds      *int   `json:"durationInSeconds,omitempty"`
	RemainingTimeInSeconds *int   `json:"remainingTimeInSeconds,omitempty"`
}

// RoomConnection is the room's connectivity report.
type RoomConnection struct {
	State string `json:"state,omitempty"`
}

// RoomOpenWindow is the room's open-window report. Activated means the
// heating pause is in effect; otherwise a window was merely detected.
type RoomOpenWindow struct {
	Activated       bool `json:"activated"`
	ExpiryInSeconds *int `json:"expiryInSeconds,omitempty"`
}

// RoomAwayMode is present when the room is in away mode.
type RoomAwayMode struct {
	Preheating bool `json:"preheating,omitempty"`
}

// roomConnected is the hops connectivity value that maps to LinkOnline.
const roomConnected = "CONNECTED"

// ZoneState maps the room onto the v2 zone-state shape so consumers
// handle both product generations uniformly. The webapp performs the
// same mapping.
func (r *Room) ZoneState() *ZoneState {
	setting := &ZoneSetting{
		Type:    ZoneTypeHeating,
		Heating: &HeatingSetting{},
	}

	var settingTemp *Temperature
	if r.Setting != nil {
		if r.Setting.Temperature != nil {
			t := *r.Setting.Temperature
			if t.Celsius == 0 && t.Value != 0 {
				t.Celsius = t.Value
			}
			settingTemp = &t
		}
		setting.Power = r.Setting.Power
	}
	setting.Heating.Temperature = settingTemp

	// Hops omits power: a present setpoint means the room is on.
	if setting.Power == "" {
		if settingTemp != nil {
			setting.Power = PowerOn
		} else {
			setting.Power = PowerOff
		}
	}

	state := &ZoneState{
		Setting: setting,
		Link:    &Link{State: LinkOffline},
		ActivityDataPoints: &ActivityDataPoints{
			HeatingPower: &PercentageReading{},
		},
		SensorDataPoints: &SensorDataPoints{},
		TadoMode:         PresenceHome,
	}

	if r.Connection != nil && r.Connection.State == roomConnected {
		state.Link.State = LinkOnline
	}

	if r.HeatingPower != nil {
		state.ActivityDataPoints.HeatingPower = r.HeatingPower
	}

	if r.SensorDataPoints != nil {
		if inside := r.SensorDataPoints.InsideTemperature; inside != nil {
			t := *inside
			if t.Celsius == 0 && t.Value != 0 {
				t.Celsius = t.Value
			}
			state.SensorDataPoints.InsideTemperature = &t
		}
		state.SensorDataPoints.Humidity = r.SensorDataPoints.Humidity
	}

	if r.AwayMode != nil {
		state.TadoMode = PresenceAway
		if r.AwayMode.Preheating {
			state.Preparation = []byte(`{"preheating":true}`)
		}
	}

	switch {
	case r.ManualControlTermination != nil:
		state.Overlay = &Overlay{
			Setting: setting,
			Termination: &Termination{
				TypeSkillBasedApp: r.ManualControlTermination.Type,
				DurationInSeconds: r.ManualControlTermination.DurationInSeconds,
			},
		}
	case r.BoostMode != nil:
		state.Overlay = &Overlay{
			Setting: &ZoneSetting{
				Type:    ZoneTypeHeating,
				Power:   PowerOn,
				Heating: &HeatingSetting{Temperature: settingTemp},
			},
			Termination: &Termination{
				TypeSkillBasedApp: r.BoostMode.Type,
				DurationInSeconds: r.BoostMode.DurationInSeconds,
			},
		}
	}

	if r.OpenWindow != nil {
		if r.OpenWindow.Activated {
			state.OpenWindow = &OpenWindow{
				RemainingTimeInSeconds: r.OpenWindow.ExpiryInSeconds,
			}
		} else {
			state.OpenWindowDetected = true
		}
	}

	return state
}

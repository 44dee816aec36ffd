package tado

// OverlayRequest is the PUT zones/{id}/overlay payload.
type OverlayRequest struct {
	Setting     OverlaySetting     `json:"setting"`
	Termination OverlayTermination `json:"termination"`
}

// OverlaySetting is the desired setting for a manual override.
type OverlaySetting struct {
	Type            string       `json:"type"`
	Power           string       `json:"power"`
	Temperature     *Temperature `json:"temperature,omitempty"`
	Mode            string       `json:"mode,omitempty"`
	FanSpeed        string       `json:"fanSpeed,omitempty"`
	FanLevel        string       `json:"fanLevel,omitempty"`
	Swing           string       `json:"swing,omitempty"`
	VerticalSwing   string       `json:"verticalSwing,omitempty"`
	HorizontalSwing string       `json:"horizontalSwing,omitempty"`
}

// OverlayTermination selects when the override ends. The API expects the
// app-level key, not the raw termination type.
type OverlayTermination struct {
	TypeSkillBasedApp string `json:"typeSkillBasedApp"`
	DurationInSeconds int    `json:"durationInSeconds,omitempty"`
}

// HeatingOverlay builds a manual heating setpoint override.
// durationSeconds is only used with TerminationTimer.
func HeatingOverlay(celsius float64, termination string, durationSeconds int) OverlayRequest {
	req := OverlayRequest{
		Setting: OverlaySetting{
			Type:        ZoneTypeHeating,
			Power:       PowerOn,
			Temperature: &Temperature{Celsius: celsius},
		},
		Termination: OverlayTermination{TypeSkillBasedApp: termination},
	}
	if termination == TerminationTimer {
		req.Termination.DurationInSeconds = durationSeconds
	}
	return req
}

// HotWaterOverlay builds a manual hot-water override. celsius may be nil
// for systems without a controllable water temperature.
func HotWaterOverlay(power string, celsius *float64, termination string, durationSeconds int) OverlayRequest {
	req := OverlayRequest{
		Setting: OverlaySetting{
			Type:  ZoneTypeHotWater,
			Power: power,
		},
		Termination: OverlayTermination{TypeSkillBasedApp: termination},
	}
	if celsius != nil {
		req.Setting.Temperature = &Temperature{Celsius: *celsius}
	}
	if termination == TerminationTimer {
		req.Termination.DurationInSeconds = durationSeconds
	}
	return req
}

// OffOverlay builds an override that switches the zone off until the
// termination condition ends it.
func OffOverlay(zoneType, termination string, durationSeconds int) OverlayRequest {
	req := OverlayRequest{
		Setting: OverlaySetting{
			Type:  zoneType,
			Power: PowerOff,
		},
		Termination: OverlayTermination{TypeSkillBasedApp: termination},
	}
	if termination == TerminationTimer {
		req.Termination.DurationInSeconds = durationSeconds
	}
	return req
}

// RoomManualControl is the hops POST rooms/{id}/manualControl payload.
type RoomManualControl struct {
	Setting     RoomControlSetting     `json:"setting"`
	Termination RoomControlTermination `json:"termination"`
}

// RoomControlSetting is the desired room setting. The hops API expects
// the temperature under "value", not "celsius".
type RoomControlSetting struct {
	Power       string       `json:"power"`
	Temperature *Temperature `json:"temperature,omitempty"`
}

// RoomControlTermination uses the raw termination type.
type RoomControlTermination struct {
	Type              string `json:"type"`
	DurationInSeconds int    `json:"durationInSeconds,omitempty"`
}

// RoomOverlay builds a manual room control for a Tado X home.
func RoomOverlay(celsius float64, termination string, durationSeconds int) RoomManualControl {
	req := RoomManualControl{
		Setting: RoomControlSetting{
			Power:       PowerOn,
			Temperature: &Temperature{Value: celsius},
		},
		Termination: RoomControlTermination{Type: termination},
	}
	if termination == TerminationTimer {
		req.Termination.DurationInSeconds = durationSeconds
	}
	return req
}

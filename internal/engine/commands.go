package engine

import (
	"context"

	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/tado"
)

// SetZoneSetpoint applies a manual heating setpoint. For Tado X homes the
// zone ID addresses a room and the hops write path is used; the tracked
// outcome is the same either way.
func (e *Engine) SetZoneSetpoint(ctx context.Context, homeID int64, zoneID int, celsius float64, termination string, durationSeconds int) (*command.Ticket, error) {
	home, err := e.home(homeID)
	if err != nil {
		return nil, err
	}

	if home.TadoX {
		return e.dispatcher.Submit(ctx, &command.SetRoomControl{
			API:    e.client,
			Home:   homeID,
			RoomID: zoneID,
			Req:    tado.RoomOverlay(celsius, termination, durationSeconds),
		})
	}

	// The overlay setting type must match the zone type or the vendor
	// rejects the write.
	req := tado.HeatingOverlay(celsius, termination, durationSeconds)
	for _, z := range home.Zones {
		if z.ID == zoneID && z.Type == tado.ZoneTypeHotWater {
			req = tado.HotWaterOverlay(tado.PowerOn, &celsius, termination, durationSeconds)
			break
		}
	}
	return e.dispatcher.Submit(ctx, &command.SetOverlay{
		API:    e.client,
		Home:   homeID,
		ZoneID: zoneID,
		Req:    req,
	})
}

// SetZoneOff switches a zone off until the termination condition ends the
// override.
func (e *Engine) SetZoneOff(ctx context.Context, homeID int64, zoneID int, termination string, durationSeconds int) (*command.Ticket, error) {
	home, err := e.home(homeID)
	if err != nil {
		return nil, err
	}

	if home.TadoX {
		req := tado.RoomManualControl{
			Setting:     tado.RoomControlSetting{Power: tado.PowerOff},
			Termination: tado.RoomControlTermination{Type: termination},
		}
		if termination == tado.TerminationTimer {
			req.Termination.DurationInSeconds = durationSeconds
		}
		return e.dispatcher.Submit(ctx, &command.SetRoomControl{
			API:    e.client,
			Home:   homeID,
			RoomID: zoneID,
			Req:    req,
		})
	}

	zoneType := tado.ZoneTypeHeating
	for _, z := range home.Zones {
		if z.ID == zoneID && z.Type != "" {
			zoneType = z.Type
			break
		}
	}
	return e.dispatcher.Submit(ctx, &command.SetOverlay{
		API:    e.client,
		Home:   homeID,
		ZoneID: zoneID,
		Req:    tado.OffOverlay(zoneType, termination, durationSeconds),
	})
}

// ResumeSchedule removes a zone's manual override.
func (e *Engine) ResumeSchedule(ctx context.Context, homeID int64, zoneID int) (*command.Ticket, error) {
	home, err := e.home(homeID)
	if err != nil {
		return nil, err
	}

	if home.TadoX {
		return e.dispatcher.Submit(ctx, &command.ResumeRoomSchedule{
			API:    e.client,
			Home:   homeID,
			RoomID: zoneID,
		})
	}
	return e.dispatcher.Submit(ctx, &command.ResetOverlay{
		API:    e.client,
		Home:   homeID,
		ZoneID: zoneID,
	})
}

// SetPresence locks the home to HOME or AWAY, or restores auto geofencing
// with tado.PresenceAuto.
func (e *Engine) SetPresence(ctx context.Context, homeID int64, presence string) (*command.Ticket, error) {
	if _, err := e.home(homeID); err != nil {
		return nil, err
	}
	return e.dispatcher.Submit(ctx, &command.SetPresence{
		API:      e.client,
		Home:     homeID,
		Presence: presence,
	})
}

// SetChildLock toggles a device's child lock.
func (e *Engine) SetChildLock(ctx context.Context, homeID int64, deviceID string, enabled bool) (*command.Ticket, error) {
	if _, err := e.home(homeID); err != nil {
		return nil, err
	}
	return e.dispatcher.Submit(ctx, &command.SetChildLock{
		API:      e.client,
		Home:     homeID,
		DeviceID: deviceID,
		Enabled:  enabled,
	})
}

// AddMeterReading submits an Energy IQ meter reading for the home.
func (e *Engine) AddMeterReading(ctx context.Context, homeID int64, reading tado.MeterReading) (*command.Ticket, error) {
	if _, err := e.home(homeID); err != nil {
		return nil, err
	}
	return e.dispatcher.Submit(ctx, &command.AddMeterReading{
		API:     e.client,
		Home:    homeID,
		Reading: reading,
	})
}

// SetTemperatureOffset calibrates a device's measured temperature.
func (e *Engine) SetTemperatureOffset(ctx context.Context, homeID int64, deviceID string, celsius float64) (*command.Ticket, error) {
	if _, err := e.home(homeID); err != nil {
		return nil, err
	}
	return e.dispatcher.Submit(ctx, &command.SetTemperatureOffset{
		API:      e.client,
		Home:     homeID,
		DeviceID: deviceID,
		Celsius:  celsius,
	})
}

package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// Fetch builds a complete snapshot for one home. It implements
// poll.Fetcher; the scheduler calls it on every cycle. Fresh snapshots are
// also fed to the command dispatcher for confirmation tracking.
func (e *Engine) Fetch(ctx context.Context, homeID int64) (*state.Snapshot, error) {
	home, err := e.home(homeID)
	if err != nil {
		return nil, err
	}

	snap := &state.Snapshot{
		HomeID:    homeID,
		FetchedAt: time.Now(),
		TadoX:     home.TadoX,
		Zones:     make(map[int]*tado.ZoneState),
		Devices:   make(map[string]*tado.Device),
	}

	if home.TadoX {
		if err := e.fetchRooms(ctx, homeID, snap); err != nil {
			return nil, err
		}
	} else {
		if err := e.fetchZones(ctx, homeID, snap); err != nil {
			return nil, err
		}
	}

	weather, err := e.client.Weather(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	snap.Weather = weather

	homeState, err := e.client.HomeState(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("home state: %w", err)
	}
	snap.HomeState = homeState

	e.dispatcher.ObserveSnapshot(snap)
	return snap, nil
}

func (e *Engine) fetchZones(ctx context.Context, homeID int64, snap *state.Snapshot) error {
	states, err := e.client.ZoneStates(ctx, homeID)
	if err != nil {
		return fmt.Errorf("zone states: %w", err)
	}
	for key, zs := range states {
		id, err := strconv.Atoi(key)
		if err != nil {
			e.logger.Warn("skipping non-numeric zone key", "key", key)
			continue
		}
		snap.Zones[id] = zs
	}

	devices, err := e.client.Devices(ctx, homeID)
	if err != nil {
		return fmt.Errorf("devices: %w", err)
	}
	for i := range devices {
		snap.Devices[devices[i].SerialNo] = &devices[i]
	}
	return nil
}

func (e *Engine) fetchRooms(ctx context.Context, homeID int64, snap *state.Snapshot) error {
	rooms, err := e.client.Rooms(ctx, homeID)
	if err != nil {
		return fmt.Errorf("rooms: %w", err)
	}
	for i := range rooms {
		snap.Zones[rooms[i].ID] = rooms[i].ZoneState()
	}

	// The device listing still answers on the v2 API for X homes, but it
	// is not load-bearing there; tolerate its absence.
	devices, err := e.client.Devices(ctx, homeID)
	if err != nil {
		e.logger.Debug("device listing unavailable", "home_id", homeID, "error", err)
		return nil
	}
	for i := range devices {
		snap.Devices[devices[i].SerialNo] = &devices[i]
	}
	return nil
}

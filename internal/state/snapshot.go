package state

import (
	"reflect"
	"time"

	"github.com/dalocar/tado-direct/internal/tado"
)

// Snapshot is one complete poll result for a home. Seq is assigned by the
// cache, strictly increasing per home. Consumers must treat snapshots as
// read-only.
type Snapshot struct {
	HomeID    int64     `json:"home_id"`
	Seq       uint64    `json:"seq"`
	FetchedAt time.Time `json:"fetched_at"`
	TadoX     bool      `json:"tado_x"`

	Zones     map[int]*tado.ZoneState `json:"zones"`
	Devices   map[string]*tado.Device `json:"devices"`
	Weather   *tado.Weather           `json:"weather,omitempty"`
	HomeState *tado.HomeState         `json:"home_state,omitempty"`
}

// clone makes a shallow copy with fresh maps, so patches can swap entries
// without touching the stored snapshot.
func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Zones = make(map[int]*tado.ZoneState, len(s.Zones))
	for id, z := range s.Zones {
		out.Zones[id] = z
	}
	out.Devices = make(map[string]*tado.Device, len(s.Devices))
	for serial, d := range s.Devices {
		out.Devices[serial] = d
	}
	return &out
}

// Diff describes what changed between two snapshots of one home. Maps hold
// only changed entries; nil pointers mean unchanged. Initial marks the
// seeding diff a new subscriber receives (or the first snapshot of a home),
// which carries the full state.
type Diff struct {
	HomeID    int64     `json:"home_id"`
	Seq       uint64    `json:"seq"`
	FetchedAt time.Time `json:"fetched_at"`
	Initial   bool      `json:"initial,omitempty"`

	Zones        map[int]*tado.ZoneState `json:"zones,omitempty"`
	RemovedZones []int                   `json:"removed_zones,omitempty"`
	Devices      map[string]*tado.Device `json:"devices,omitempty"`
	Weather      *tado.Weather           `json:"weather,omitempty"`
	HomeState    *tado.HomeState         `json:"home_state,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d *Diff) Empty() bool {
	return !d.Initial &&
		len(d.Zones) == 0 && len(d.RemovedZones) == 0 && len(d.Devices) == 0 &&
		d.Weather == nil && d.HomeState == nil
}

// fullDiff represents a snapshot as a diff carrying everything.
func fullDiff(s *Snapshot) *Diff {
	d := &Diff{
		HomeID:    s.HomeID,
		Seq:       s.Seq,
		FetchedAt: s.FetchedAt,
		Initial:   true,
		Zones:     make(map[int]*tado.ZoneState, len(s.Zones)),
		Devices:   make(map[string]*tado.Device, len(s.Devices)),
		Weather:   s.Weather,
		HomeState: s.HomeState,
	}
	for id, z := range s.Zones {
		d.Zones[id] = z
	}
	for serial, dev := range s.Devices {
		d.Devices[serial] = dev
	}
	return d
}

// diffSnapshots computes what changed going from prev to next.
func diffSnapshots(prev, next *Snapshot) *Diff {
	d := &Diff{
		HomeID:    next.HomeID,
		Seq:       next.Seq,
		FetchedAt: next.FetchedAt,
		Zones:     make(map[int]*tado.ZoneState),
		Devices:   make(map[string]*tado.Device),
	}

	for id, z := range next.Zones {
		if old, ok := prev.Zones[id]; !ok || !reflect.DeepEqual(old, z) {
			d.Zones[id] = z
		}
	}
	for id := range prev.Zones {
		if _, ok := next.Zones[id]; !ok {
			d.RemovedZones = append(d.RemovedZones, id)
		}
	}

	for serial, dev := range next.Devices {
		if old, ok := prev.Devices[serial]; !ok || !reflect.DeepEqual(old, dev) {
			d.Devices[serial] = dev
		}
	}

	if !reflect.DeepEqual(prev.Weather, next.Weather) {
		d.Weather = next.Weather
	}
	if !reflect.DeepEqual(prev.HomeState, next.HomeState) {
		d.HomeState = next.HomeState
	}

	return d
}

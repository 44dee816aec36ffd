package influxdb

import (
	"context"
	"strconv"
	"time"

	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// Measurement names.
const (
	measurementZone    = "zone_state"
	measurementWeather = "weather"
)

// PointWriter is the slice of Client the recorder needs, kept as an
// interface so tests can capture points without a server.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time)
}

// Recorder turns state diffs into time-series points. Only entities that
// changed in a diff are written, so the series density follows the actual
// rate of change rather than the poll interval.
type Recorder struct {
	writer PointWriter
	logger *logging.Logger
}

// NewRecorder creates a recorder over a connected writer.
func NewRecorder(writer PointWriter, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Recorder{
		writer: writer,
		logger: logger.With("component", "influxdb"),
	}
}

// Run consumes diffs until the channel closes or the context ends.
func (r *Recorder) Run(ctx context.Context, diffs <-chan *state.Diff) {
	for {
		select {
		case <-ctx.Done():
			return
		case diff, ok := <-diffs:
			if !ok {
				return
			}
			r.RecordDiff(diff)
		}
	}
}

// RecordDiff writes one point per changed zone plus a weather point,
// timestamped with the snapshot fetch time.
func (r *Recorder) RecordDiff(diff *state.Diff) {
	at := diff.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}

	home := strconv.FormatInt(diff.HomeID, 10)
	for zoneID, zone := range diff.Zones {
		r.writer.WritePoint(
			measurementZone,
			map[string]string{
				"home_id": home,
				"zone_id": strconv.Itoa(zoneID),
			},
			zoneFields(zone),
			at,
		)
	}

	if diff.Weather != nil {
		r.writer.WritePoint(
			measurementWeather,
			map[string]string{"home_id": home},
			weatherFields(diff.Weather),
			at,
		)
	}
}

// zoneFields flattens a zone state into numeric fields. Booleans are
// written as integers so Flux aggregations work on them.
func zoneFields(z *tado.ZoneState) map[string]interface{} {
	fields := map[string]interface{}{
		"mode":        z.HVACMode(),
		"action":      z.HVACAction(),
		"overlay":     boolField(z.OverlayActive()),
		"open_window": boolField(z.OpenWindowActive()),
		"available":   boolField(z.Available()),
	}
	if v, ok := z.CurrentTemp(); ok {
		fields["current_temp"] = v
	}
	if v, ok := z.TargetTemp(); ok {
		fields["target_temp"] = v
	}
	if v, ok := z.CurrentHumidity(); ok {
		fields["humidity"] = v
	}
	if v, ok := z.HeatingPowerPercentage(); ok {
		fields["heating_power"] = v
	}
	return fields
}

func weatherFields(w *tado.Weather) map[string]interface{} {
	fields := map[string]interface{}{}
	if w.OutsideTemperature != nil {
		fields["outside_temp"] = w.OutsideTemperature.Celsius
	}
	if w.SolarIntensity != nil {
		fields["solar_intensity"] = w.SolarIntensity.Percentage
	}
	if w.WeatherState != nil {
		fields["state"] = w.WeatherState.Value
	}
	return fields
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}

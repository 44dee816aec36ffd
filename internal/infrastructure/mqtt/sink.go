package mqtt

import (
	"context"
	"encoding/json"

	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// Publisher is the slice of Client the sink needs. Kept as an interface
// so tests can capture payloads without a broker.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
}

// Sink translates state diffs and command events into MQTT messages.
// State topics are retained so late subscribers see current values;
// command events are not.
type Sink struct {
	pub    Publisher
	logger *logging.Logger
	topics Topics
}

// NewSink creates a sink over a connected publisher.
func NewSink(pub Publisher, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Sink{
		pub:    pub,
		logger: logger.With("component", "mqtt"),
	}
}

// Run consumes diffs until the channel closes or the context ends.
func (s *Sink) Run(ctx context.Context, diffs <-chan *state.Diff) {
	for {
		select {
		case <-ctx.Done():
			return
		case diff, ok := <-diffs:
			if !ok {
				return
			}
			s.PublishDiff(diff)
		}
	}
}

// PublishDiff publishes every changed entity in a diff. Publish failures
// are logged, not propagated: the broker is an observer, never a
// dependency.
func (s *Sink) PublishDiff(diff *state.Diff) {
	for zoneID, zone := range diff.Zones {
		s.publishJSON(s.topics.ZoneState(diff.HomeID, zoneID), zoneMessage(zone), true)
	}
	for serial, dev := range diff.Devices {
		s.publishJSON(s.topics.Device(diff.HomeID, serial), dev, true)
	}
	if diff.Weather != nil {
		s.publishJSON(s.topics.Weather(diff.HomeID), diff.Weather, true)
	}
	if diff.HomeState != nil {
		s.publishJSON(s.topics.HomeState(diff.HomeID), diff.HomeState, true)
	}
}

// CommandListener returns a dispatcher listener that publishes lifecycle
// events.
func (s *Sink) CommandListener() func(command.Event) {
	return func(ev command.Event) {
		s.publishJSON(s.topics.CommandEvent(ev.ID), ev, false)
	}
}

func (s *Sink) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("marshalling payload", "topic", topic, "error", err)
		return
	}

	if retained {
		err = s.pub.PublishRetained(topic, payload)
	} else {
		err = s.pub.PublishEvent(topic, payload)
	}
	if err != nil {
		s.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// ZoneMessage is the flattened zone state published to MQTT, shaped for
// dashboard consumption rather than fidelity to the vendor wire format.
type ZoneMessage struct {
	CurrentTemp  *float64 `json:"current_temp,omitempty"`
	TargetTemp   *float64 `json:"target_temp,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	HeatingPower *float64 `json:"heating_power,omitempty"`
	Mode         string   `json:"mode"`
	Action       string   `json:"action"`
	Overlay      bool     `json:"overlay"`
	OpenWindow   bool     `json:"open_window"`
	Available    bool     `json:"available"`
}

func zoneMessage(z *tado.ZoneState) ZoneMessage {
	msg := ZoneMessage{
		Mode:       z.HVACMode(),
		Action:     z.HVACAction(),
		Overlay:    z.OverlayActive(),
		OpenWindow: z.OpenWindowActive(),
		Available:  z.Available(),
	}
	if v, ok := z.CurrentTemp(); ok {
		msg.CurrentTemp = &v
	}
	if v, ok := z.TargetTemp(); ok {
		msg.TargetTemp = &v
	}
	if v, ok := z.CurrentHumidity(); ok {
		msg.Humidity = &v
	}
	if v, ok := z.HeatingPowerPercentage(); ok {
		msg.HeatingPower = &v
	}
	return msg
}

package mqtt

import "fmt"

// TopicPrefix is the base for all Tado Direct topics.
//
// Scheme: tadodirect/home/{home_id}/... for state,
// tadodirect/command/{command_id} for lifecycle events,
// tadodirect/status for the service itself.
const TopicPrefix = "tadodirect"

// Topics provides builders for Tado Direct MQTT topics. Using these
// helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// ZoneState returns the topic for one zone's state.
//
// Example: tadodirect/home/123/zone/4/state
func (Topics) ZoneState(homeID int64, zoneID int) string {
	return fmt.Sprintf("%s/home/%d/zone/%d/state", TopicPrefix, homeID, zoneID)
}

// HomeState returns the topic for home-level presence state.
//
// Example: tadodirect/home/123/state
func (Topics) HomeState(homeID int64) string {
	return fmt.Sprintf("%s/home/%d/state", TopicPrefix, homeID)
}

// Weather returns the topic for the home weather report.
//
// Example: tadodirect/home/123/weather
func (Topics) Weather(homeID int64) string {
	return fmt.Sprintf("%s/home/%d/weather", TopicPrefix, homeID)
}

// Device returns the topic for one device's state.
//
// Example: tadodirect/home/123/device/VA0123456789/state
func (Topics) Device(homeID int64, serialNo string) string {
	return fmt.Sprintf("%s/home/%d/device/%s/state", TopicPrefix, homeID, serialNo)
}

// CommandEvent returns the topic for a command's lifecycle events.
//
// Example: tadodirect/command/2f1c...
func (Topics) CommandEvent(commandID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, commandID)
}

// ServiceStatus returns the service online/offline status topic.
//
// Example: tadodirect/status
func (Topics) ServiceStatus() string {
	return TopicPrefix + "/status"
}

package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots every panel topic when the config leaves it empty.
const DefaultTopicPrefix = "graylogic/panel"

// Topics builds the panel's MQTT topic tree under a prefix.
//
// Layout:
//
//	<prefix>/availability               online/offline (retained, LWT)
//	<prefix>/status                     sync status (retained)
//	<prefix>/state/<hub_id>/<device_id> device reading (retained)
//	<prefix>/command/<device_id>        inbound target value
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Availability returns the topic carrying the panel's online/offline status.
//
// Example: graylogic/panel/availability
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/availability", t.prefix())
}

// SyncStatus returns the topic carrying the live sync status.
//
// Example: graylogic/panel/status
func (t Topics) SyncStatus() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// DeviceState returns the retained state topic for one device.
//
// Example: graylogic/panel/state/hub-1/temp-lounge
func (t Topics) DeviceState(hubID, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), hubID, deviceID)
}

// DeviceCommand returns the inbound command topic for one device.
//
// Example: graylogic/panel/command/plug-1
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), deviceID)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: graylogic/panel/state/+/+
func (t Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+/+", t.prefix())
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: graylogic/panel/command/+
func (t Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", t.prefix())
}

// ParseDeviceState splits a state topic into its hub and device IDs.
func (t Topics) ParseDeviceState(topic string) (hubID, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/state/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseDeviceCommand extracts the device ID from a command topic.
func (t Topics) ParseDeviceCommand(topic string) (string, bool) {
	id, found := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ValidSegment reports whether id can be used as a single topic level.
// IDs containing separators or wildcards would address the wrong topic.
func ValidSegment(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#\x00")
}

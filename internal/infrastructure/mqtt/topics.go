package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every feeder topic.
//
// Hierarchy:
//
//	feeder/{serial}/feed      core → device, feed decisions (not retained)
//	feeder/{serial}/schedule  core → device, effective schedule after a push (retained)
//	feeder/{serial}/log       device → core, log entries
//	feeder/system/status      core online/offline, LWT (retained)
const TopicPrefix = "feeder"

// Per-device topic leaves.
const (
	LeafFeed     = "feed"
	LeafSchedule = "schedule"
	LeafLog      = "log"
)

// systemSegment cannot collide with a serial, which is always 12 hex digits.
const systemSegment = "system"

// Topics provides builders for feeder MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceFeed("AABBCCDDEEFF") // "feeder/AABBCCDDEEFF/feed"
type Topics struct{}

// DeviceFeed returns the topic feed decisions are published on.
func (Topics) DeviceFeed(serial string) string {
	return deviceTopic(serial, LeafFeed)
}

// DeviceSchedule returns the topic the effective schedule is published on.
func (Topics) DeviceSchedule(serial string) string {
	return deviceTopic(serial, LeafSchedule)
}

// DeviceLog returns the topic a device publishes its log entries on.
func (Topics) DeviceLog(serial string) string {
	return deviceTopic(serial, LeafLog)
}

// AllDeviceLogs is the subscription pattern for every device's log topic.
func (Topics) AllDeviceLogs() string {
	return TopicPrefix + "/+/" + LeafLog
}

// SystemStatus returns the core status topic, also used for the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/" + systemSegment + "/status"
}

// ParseDeviceTopic splits "feeder/{serial}/{leaf}". ok is false for any
// other shape, including system topics.
func ParseDeviceTopic(topic string) (serial, leaf string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] == "" || parts[1] == systemSegment || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func deviceTopic(serial, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, serial, leaf)
}

package mqtt

import "fmt"

// TopicPrefix is the base of every bridge topic.
// Flat scheme: graylogic/{category}/{protocol}/{device_id}
const TopicPrefix = "graylogic"

// Topics provides builders for Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("blebox", "1afe34e750b8")
//	// Returns: "graylogic/state/blebox/1afe34e750b8"
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeCommand returns the topic for commands to a bridge.
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeHealth returns the topic for bridge health status.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeDiscovery returns the topic for device discovery announcements.
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, protocol)
}

// AllBridgeStates matches the state topics of every bridge and device.
func (Topics) AllBridgeStates() string {
	return TopicPrefix + "/state/+/+"
}

// AllBridgeHealth matches the health topics of every bridge.
func (Topics) AllBridgeHealth() string {
	return TopicPrefix + "/health/+"
}

// AllBridgeDiscovery matches the discovery topics of every bridge.
func (Topics) AllBridgeDiscovery() string {
	return TopicPrefix + "/discovery/+"
}

package blebox

import (
	"fmt"
	"time"
)

// Protocol is the protocol identifier used in topics and messages.
const Protocol = "blebox"

// TopicPrefix is the base topic for all Gray Logic messages.
const TopicPrefix = "graylogic"

// CommandMessage is sent from Core to the bridge to act on a device.
// Topic: graylogic/command/blebox/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the persistent BleBox device id. When empty, the last
	// topic segment is used.
	DeviceID string `json:"device_id"`

	// Command is a control of the device family (e.g. "setSimpleRelayState"),
	// or one of CommandRefresh and CommandRemove.
	Command string `json:"command"`

	// Args are the positional parameters of the control.
	Args []string `json:"args,omitempty"`

	// Source indicates where the command originated ("api", "automation").
	Source string `json:"source,omitempty"`
}

// Bridge-level commands that are not device controls.
const (
	CommandRefresh = "refresh"
	CommandRemove  = "remove"
)

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
	AckTimeout  AckStatus = "timeout"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/blebox/{device_id}
type AckMessage struct {
	CommandID string         `json:"command_id"`
	Timestamp time.Time      `json:"timestamp"`
	DeviceID  string         `json:"device_id"`
	Status    AckStatus      `json:"status"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	Error     *AckError      `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeSuperseded        = "SUPERSEDED"
)

// StateMessage carries the cached view of one device.
// Topic: graylogic/state/blebox/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID   string         `json:"device_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Protocol   string         `json:"protocol"`
	Type       string         `json:"type"`
	Address    string         `json:"address"`
	Name       string         `json:"name"`
	Responding bool           `json:"responding"`
	Info       map[string]any `json:"info,omitempty"`
	State      map[string]any `json:"state,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/blebox
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge            string            `json:"bridge"`
	Timestamp         time.Time         `json:"timestamp"`
	Status            HealthStatus      `json:"status"`
	Version           string            `json:"version,omitempty"`
	UptimeSeconds     int64             `json:"uptime_seconds"`
	DevicesManaged    int               `json:"devices_managed"`
	DevicesResponding int               `json:"devices_responding"`
	Statistics        *BridgeStatistics `json:"statistics,omitempty"`
	LastSweep         *SweepStats       `json:"last_sweep,omitempty"`
	Reason            string            `json:"reason,omitempty"`
}

// BridgeStatistics are cumulative request counters.
type BridgeStatistics struct {
	RequestsSent       uint64 `json:"requests_sent"`
	RequestsFailed     uint64 `json:"requests_failed"`
	RequestsSuperseded uint64 `json:"requests_superseded"`
}

// DiscoveryMessage announces a newly tracked device.
// Topic: graylogic/discovery/blebox
type DiscoveryMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Bridge    string    `json:"bridge"`
	DeviceID  string    `json:"device_id"`
	Type      string    `json:"type"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Controls  []string  `json:"controls"`
}

// NewStateMessage builds a state message from a snapshot.
func NewStateMessage(s Snapshot) StateMessage {
	return StateMessage{
		DeviceID:   s.ID,
		Timestamp:  time.Now().UTC(),
		Protocol:   Protocol,
		Type:       s.Type,
		Address:    s.Address,
		Name:       s.Name,
		Responding: s.Responding,
		Info:       s.Info,
		State:      s.State,
	}
}

// NewDiscoveryMessage builds a discovery message from a snapshot.
func NewDiscoveryMessage(bridgeID string, s Snapshot) DiscoveryMessage {
	return DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    bridgeID,
		DeviceID:  s.ID,
		Type:      s.Type,
		Address:   s.Address,
		Name:      s.Name,
		Controls:  s.Controls,
	}
}

// NewAckMessage creates an acknowledgment for cmd.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed, address)
	if code == ErrCodeTimeout {
		ack.Status = AckTimeout
	}
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewLWTMessage is published by the broker if the bridge disconnects
// unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// StateTopic returns the state topic of a device.
// Example: graylogic/state/blebox/1afe34e750b8
func StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// CommandTopic returns the command topic of a device.
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// CommandSubscribeTopic matches the command topics of every device.
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// AckTopic returns the acknowledgment topic of a device.
func AckTopic(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// DiscoveryTopic returns the discovery announcement topic.
func DiscoveryTopic() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, Protocol)
}

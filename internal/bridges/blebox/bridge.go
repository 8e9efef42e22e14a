package blebox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// minTopicParts is the number of segments in a device command topic.
	minTopicParts = 4

	// commandTimeout bounds a control round trip, including time spent
	// waiting behind an in-flight request on the same key.
	commandTimeout = 10 * time.Second

	// persistTimeout bounds a single store write.
	persistTimeout = 5 * time.Second
)

// MQTTClient is the interface for MQTT operations.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// DeviceStore persists tracked devices across restarts.
// It is optional; without it every run starts from an empty registry.
type DeviceStore interface {
	SaveDevice(ctx context.Context, s Snapshot) error
	DeleteDevice(ctx context.Context, id string) error
	LoadDevices(ctx context.Context) ([]Snapshot, error)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// ID is the bridge identifier in health messages. Default: "blebox".
	ID string

	Version        string
	HealthInterval time.Duration

	MQTTClient MQTTClient
	Registry   *Registry

	// Scanner is optional; without it only restored devices are tracked.
	Scanner *Scanner

	// Requests feeds request counters into health messages.
	Requests RequestCounter

	Store     DeviceStore
	Telemetry Telemetry
	Logger    Logger
}

// Bridge connects the device core to Gray Logic over MQTT.
//
// It publishes retained per-device state, discovery announcements and bridge
// health, and executes device commands received on the command topics.
// Bridge is the registry's Observer.
type Bridge struct {
	id        string
	mqtt      MQTTClient
	registry  *Registry
	scanner   *Scanner
	store     DeviceStore
	telemetry Telemetry
	health    *HealthReporter
	logger    Logger

	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.ID == "" {
		opts.ID = Protocol
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		id:        opts.ID,
		mqtt:      opts.MQTTClient,
		registry:  opts.Registry,
		scanner:   opts.Scanner,
		store:     opts.Store,
		telemetry: opts.Telemetry,
		logger:    loggerOrNop(opts.Logger),
		ctx:       ctx,
		ctxCancel: cancel,
	}

	hc := HealthReporterConfig{
		BridgeID:  opts.ID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Devices:   opts.Registry,
		Requests:  opts.Requests,
		Logger:    opts.Logger,
	}
	if opts.Scanner != nil {
		hc.Sweeps = opts.Scanner
	}
	b.health = NewHealthReporter(hc)

	opts.Registry.SetObserver(b)
	return b, nil
}

// Start restores persisted devices, subscribes to commands, starts health
// reporting and launches discovery.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	b.restore(ctx)

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	b.health.Start(ctx)

	if b.scanner != nil {
		b.scanner.Start(b.ctx)
	}

	b.logger.Info("bridge started", "bridge_id", b.id, "devices", b.registry.Count())
	return nil
}

// Stop halts discovery and polling and waits for pending commands.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		if b.scanner != nil {
			b.scanner.Stop()
		}
		b.registry.StopAll()
		b.wg.Wait()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) restore(ctx context.Context) {
	if b.store == nil {
		return
	}
	saved, err := b.store.LoadDevices(ctx)
	if err != nil {
		b.logger.Error("failed to load persisted devices", "error", err)
		return
	}
	restored := 0
	for _, s := range saved {
		if err := b.registry.Restore(s.Identity(), s.State); err != nil {
			b.logger.Warn("persisted device not restored", "device_id", s.ID, "type", s.Type, "error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		b.logger.Info("restored devices", "count", restored)
	}
}

// Devices returns snapshots of every tracked device.
func (b *Bridge) Devices() []Snapshot {
	return b.registry.List()
}

// Device returns the snapshot of one device.
func (b *Bridge) Device(id string) (Snapshot, error) {
	m, ok := b.registry.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return m.Snapshot(), nil
}

// Remove stops tracking a device and forgets it.
func (b *Bridge) Remove(id string) error {
	return b.registry.Remove(id)
}

// Scan starts a sweep in the background.
func (b *Bridge) Scan() error {
	if b.scanner == nil {
		return ErrScanDisabled
	}
	if b.scanner.Running() {
		return ErrSweepRunning
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if _, err := b.scanner.Sweep(b.ctx); err != nil && !errors.Is(err, ErrSweepRunning) && b.ctx.Err() == nil {
			b.logger.Error("requested sweep failed", "error", err)
		}
	}()
	return nil
}

// LastSweep returns the stats of the last completed sweep.
func (b *Bridge) LastSweep() SweepStats {
	if b.scanner == nil {
		return SweepStats{}
	}
	return b.scanner.LastSweep()
}

// Execute runs a command and returns its acknowledgment.
func (b *Bridge) Execute(ctx context.Context, cmd CommandMessage) AckMessage {
	if cmd.Command == CommandRemove {
		if err := b.registry.Remove(cmd.DeviceID); err != nil {
			return NewAckError(cmd, "", ErrCodeNotConfigured, err.Error())
		}
		return NewAckMessage(cmd, AckAccepted, "")
	}

	m, ok := b.registry.Get(cmd.DeviceID)
	if !ok {
		return NewAckError(cmd, "", ErrCodeNotConfigured,
			fmt.Sprintf("device %s not tracked", cmd.DeviceID))
	}
	addr := m.Address()

	if cmd.Command == CommandRefresh {
		m.Refresh()
		return NewAckMessage(cmd, AckAccepted, addr)
	}

	ch, err := m.Send(cmd.Command, cmd.Args...)
	if err != nil {
		return NewAckError(cmd, addr, ErrCodeInvalidCommand,
			fmt.Sprintf("%s: %v", cmd.Command, err))
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	select {
	case res := <-ch:
		switch {
		case errors.Is(res.Err, ErrSuperseded):
			return NewAckError(cmd, addr, ErrCodeSuperseded, "replaced by a newer command")
		case res.Err != nil:
			return NewAckError(cmd, addr, ErrCodeDeviceUnreachable, res.Err.Error())
		}
		ack := NewAckMessage(cmd, AckAccepted, addr)
		ack.State = m.Snapshot().State
		return ack
	case <-ctx.Done():
		return NewAckError(cmd, addr, ErrCodeTimeout, "no response from device")
	}
}

// handleMQTTMessage handles graylogic/command/blebox/{device_id}.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[1] != "command" {
		b.logger.Warn("invalid command topic", "topic", topic)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Error("failed to parse command", "error", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = parts[len(parts)-1]
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
	)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publishAck(b.Execute(b.ctx, cmd))
	}()
}

// DeviceRegistered implements Observer.
func (b *Bridge) DeviceRegistered(s Snapshot) {
	b.publishJSON(DiscoveryTopic(), NewDiscoveryMessage(b.id, s), false)
	b.publishState(s)
	b.persist(s)
}

// DeviceUpdated implements Observer.
func (b *Bridge) DeviceUpdated(s Snapshot, change Change) {
	b.publishState(s)

	switch change {
	case ChangeState:
		if b.telemetry != nil {
			if fields := NumericFields(s.State); len(fields) > 0 {
				b.telemetry.WriteDeviceState(s.ID, s.Type, fields)
			}
		}
	case ChangeHealth:
		if b.telemetry != nil {
			b.telemetry.WriteDeviceHealth(s.ID, s.Type, s.Responding, s.Failures)
		}
	case ChangeName, ChangeAddress:
		b.persist(s)
	}
}

// DeviceRemoved implements Observer.
func (b *Bridge) DeviceRemoved(id string) {
	// An empty retained payload clears the state topic.
	if err := b.mqtt.Publish(StateTopic(id), nil, 1, true); err != nil {
		b.logger.Error("failed to clear state", "device_id", id, "error", err)
	}
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := b.store.DeleteDevice(ctx, id); err != nil {
		b.logger.Error("failed to delete persisted device", "device_id", id, "error", err)
	}
}

func (b *Bridge) persist(s Snapshot) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := b.store.SaveDevice(ctx, s); err != nil {
		b.logger.Error("failed to persist device", "device_id", s.ID, "error", err)
	}
}

func (b *Bridge) publishState(s Snapshot) {
	b.publishJSON(StateTopic(s.ID), NewStateMessage(s), true)
}

func (b *Bridge) publishAck(ack AckMessage) {
	b.publishJSON(AckTopic(ack.DeviceID), ack, false)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logger.Error("failed to publish", "topic", topic, "error", err)
	}
}

package blebox

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultHealthInterval is how often bridge health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the subset of the MQTT client used for health.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceCounter reports population figures. *Registry implements it.
type DeviceCounter interface {
	Count() int
	CountResponding() int
}

// RequestCounter reports request statistics. *Scheduler implements it.
type RequestCounter interface {
	Stats() SchedulerStats
}

// SweepReporter reports the last sweep. *Scanner implements it.
type SweepReporter interface {
	LastSweep() SweepStats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID  string
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher
	Devices   DeviceCounter
	Requests  RequestCounter
	Sweeps    SweepReporter
	Logger    Logger
}

// HealthReporter periodically publishes a retained HealthMessage.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		logger:    loggerOrNop(cfg.Logger),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best-effort during shutdown
		h.publish(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

// LWT returns the topic and payload to register as the MQTT last will.
func (h *HealthReporter) LWT() (string, []byte, error) {
	payload, err := json.Marshal(NewLWTMessage(h.cfg.BridgeID))
	return HealthTopic(), payload, err
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus is degraded while MQTT is down or while every tracked
// device is suspect.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.Devices != nil {
		total, ok := h.cfg.Devices.Count(), h.cfg.Devices.CountResponding()
		if total > 0 && ok == 0 {
			return HealthDegraded, "no device responding"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.cfg.BridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.cfg.Devices != nil {
		msg.DevicesManaged = h.cfg.Devices.Count()
		msg.DevicesResponding = h.cfg.Devices.CountResponding()
	}
	if h.cfg.Requests != nil {
		st := h.cfg.Requests.Stats()
		msg.Statistics = &BridgeStatistics{
			RequestsSent:       st.Dispatched,
			RequestsFailed:     st.Failed,
			RequestsSuperseded: st.Superseded,
		}
	}
	if h.cfg.Sweeps != nil {
		if last := h.cfg.Sweeps.LastSweep(); !last.StartedAt.IsZero() {
			msg.LastSweep = &last
		}
	}
	return msg
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(HealthTopic(), payload, 1, true)
}

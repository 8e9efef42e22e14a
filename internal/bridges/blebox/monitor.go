package blebox

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"
	"time"
)

// Monitor defaults.
const (
	DefaultGeneralInterval  = 30 * time.Second
	DefaultSpecificInterval = 10 * time.Second
	DefaultJitter           = 5 * time.Second
	DefaultFailureThreshold = 4
)

// Change identifies what a DeviceUpdated notification is about.
type Change string

const (
	ChangeName    Change = "name"
	ChangeState   Change = "state"
	ChangeHealth  Change = "health"
	ChangeAddress Change = "address"
)

// Observer receives device lifecycle notifications. Calls are made from
// monitor and registry goroutines; they must not block for long and must not
// stop the monitor that is notifying.
type Observer interface {
	DeviceRegistered(s Snapshot)
	DeviceUpdated(s Snapshot, change Change)
	DeviceRemoved(id string)
}

type nopObserver struct{}

func (nopObserver) DeviceRegistered(Snapshot)      {}
func (nopObserver) DeviceUpdated(Snapshot, Change) {}
func (nopObserver) DeviceRemoved(string)           {}

// MonitorConfig configures device polling.
type MonitorConfig struct {
	// GeneralInterval is the identity poll base period. Default: 30s.
	GeneralInterval time.Duration

	// SpecificInterval is the state poll base period. Default: 10s.
	SpecificInterval time.Duration

	// Jitter bounds the per-device random offset drawn at each Start,
	// in [0, Jitter). Zero disables jitter.
	Jitter time.Duration

	// FailureThreshold is the number of consecutive failures tolerated
	// before the device is reported as not responding. Zero flips on the
	// first failure; negative selects the default of 4.
	FailureThreshold int

	// RandN draws the jitter. Default: rand.N from math/rand/v2.
	RandN func(n time.Duration) time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.GeneralInterval <= 0 {
		c.GeneralInterval = DefaultGeneralInterval
	}
	if c.SpecificInterval <= 0 {
		c.SpecificInterval = DefaultSpecificInterval
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.FailureThreshold < 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RandN == nil {
		c.RandN = rand.N[time.Duration]
	}
	return c
}

// DefaultMonitorConfig returns the standard polling cadence.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		GeneralInterval:  DefaultGeneralInterval,
		SpecificInterval: DefaultSpecificInterval,
		Jitter:           DefaultJitter,
		FailureThreshold: DefaultFailureThreshold,
	}
}

// Monitor keeps one device's cached identity and state fresh.
//
// Two loops run while active: a general identity poll and a type-specific
// state poll, both offset by the same jitter drawn at Start. Both share a
// consecutive-failure counter; any success resets it. A device is never torn
// down by failures, it only becomes Suspect (IsResponding false).
type Monitor struct {
	id        string
	typ       string
	family    Adapter
	submitter Submitter
	observer  Observer
	logger    Logger
	cfg       MonitorConfig

	mu        sync.RWMutex
	address   string
	name      string
	info      map[string]any
	state     map[string]any
	failures  int
	updatedAt time.Time
	jitter    time.Duration
	general   time.Duration
	specific  time.Duration

	lifeMu sync.Mutex
	epoch  uint64 // bumped by every stop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MonitorOptions holds the collaborators of a Monitor.
type MonitorOptions struct {
	Identity  Identity
	State     map[string]any
	Family    Adapter
	Submitter Submitter
	Observer  Observer
	Logger    Logger
	Config    MonitorConfig
}

// NewMonitor creates an idle Monitor. Call Start to begin polling.
func NewMonitor(opts MonitorOptions) *Monitor {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Monitor{
		id:        opts.Identity.ID,
		typ:       opts.Identity.Type,
		family:    opts.Family,
		submitter: opts.Submitter,
		observer:  observer,
		logger:    loggerOrNop(opts.Logger),
		cfg:       opts.Config.withDefaults(),
		address:   opts.Identity.Address,
		name:      opts.Identity.Name,
		info:      maps.Clone(opts.Identity.Info),
		state:     maps.Clone(opts.State),
		updatedAt: time.Now().UTC(),
	}
}

// ID returns the persistent device id.
func (m *Monitor) ID() string { return m.id }

// Address returns the current device address.
func (m *Monitor) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

// IsResponding reports whether the failure counter is within the threshold.
func (m *Monitor) IsResponding() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures <= m.cfg.FailureThreshold
}

// Active reports whether the polling loops are armed.
func (m *Monitor) Active() bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.cancel != nil
}

// Jitter returns the offset drawn at the last Start.
func (m *Monitor) Jitter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jitter
}

// intervals returns the effective general and specific poll periods.
func (m *Monitor) intervals() (general, specific time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.general, m.specific
}

// Snapshot returns a copy of the cached device data.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	var controls []string
	if m.family != nil {
		controls = m.family.Describe().Controls
	}
	return Snapshot{
		ID:         m.id,
		Type:       m.typ,
		Address:    m.address,
		Name:       m.name,
		Info:       maps.Clone(m.info),
		State:      maps.Clone(m.state),
		Controls:   controls,
		Responding: m.failures <= m.cfg.FailureThreshold,
		Failures:   m.failures,
		UpdatedAt:  m.updatedAt,
	}
}

// Start arms both polling loops, stopping any previous run first. Both
// probes are issued immediately.
func (m *Monitor) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	m.startLocked()
}

func (m *Monitor) startLocked() {
	m.stopLocked()

	var jitter time.Duration
	if m.cfg.Jitter > 0 {
		jitter = m.cfg.RandN(m.cfg.Jitter)
	}

	m.mu.Lock()
	m.jitter = jitter
	m.general = m.cfg.GeneralInterval + jitter
	m.specific = m.cfg.SpecificInterval + jitter
	general, specific := m.general, m.specific
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(2)
	go m.loop(m.ctx, general, m.pollGeneral)
	go m.loop(m.ctx, specific, m.pollSpecific)
}

// Stop disarms both loops and waits for them to exit. A request already
// sent is not aborted; its result is discarded. Idempotent.
func (m *Monitor) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.ctx, m.cancel = nil, nil
	m.epoch++
}

// Relocate moves the device to a new address. When the address changes and
// the monitor is active, polling is restarted against the new address.
// Returns whether the address changed.
func (m *Monitor) Relocate(address string) bool {
	m.lifeMu.Lock()
	m.mu.Lock()
	if address == "" || address == m.address {
		m.mu.Unlock()
		m.lifeMu.Unlock()
		return false
	}
	m.address = address
	m.updatedAt = time.Now().UTC()
	m.mu.Unlock()

	if m.cancel != nil {
		m.startLocked()
	}
	m.lifeMu.Unlock()

	m.observer.DeviceUpdated(m.Snapshot(), ChangeAddress)
	return true
}

// Rename sets the display name (normalised). Returns whether it changed.
func (m *Monitor) Rename(name string) bool {
	name = NormalizeName(name)
	m.mu.Lock()
	if name == "" || name == m.name {
		m.mu.Unlock()
		return false
	}
	m.name = name
	m.updatedAt = time.Now().UTC()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.observer.DeviceUpdated(snap, ChangeName)
	return true
}

// Refresh issues both probes now without disturbing the timers.
// It is a no-op on an idle monitor.
func (m *Monitor) Refresh() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.cancel == nil {
		return
	}
	ctx := m.ctx
	m.wg.Add(2)
	go func() { defer m.wg.Done(); m.pollGeneral(ctx) }()
	go func() { defer m.wg.Done(); m.pollSpecific(ctx) }()
}

// Send passes a control command through to the scheduler. A successful
// response carrying a state body replaces the cached state, unless the
// monitor was stopped while the request was in flight.
func (m *Monitor) Send(control string, params ...string) (<-chan Result, error) {
	if m.family == nil {
		return nil, ErrUnknownType
	}
	cmd, ok := m.family.Control(control)
	if !ok {
		return nil, ErrUnknownCommand
	}
	if n := cmd.Placeholders(); len(params) > n {
		return nil, fmt.Errorf("%w: %s takes at most %d, got %d", ErrInvalidParams, control, n, len(params))
	}

	m.lifeMu.Lock()
	epoch := m.epoch
	m.lifeMu.Unlock()

	in := m.submitter.Submit(cmd, m.Address(), params...)
	out := make(chan Result, 1)
	go func() {
		res := <-in
		m.lifeMu.Lock()
		if m.epoch == epoch {
			m.applyControl(res)
		}
		m.lifeMu.Unlock()
		out <- res
	}()
	return out, nil
}

func (m *Monitor) applyControl(res Result) {
	switch {
	case res.OK():
		m.recordSuccess()
		if len(res.Payload) > 0 {
			m.storeState(res.Payload)
		}
	case !errors.Is(res.Err, ErrSuperseded):
		m.recordFailure()
	}
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, poll func(context.Context)) {
	defer m.wg.Done()

	poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll(ctx)
		}
	}
}

// await returns the result, or false when ctx ends first or the request
// was coalesced away.
func await(ctx context.Context, ch <-chan Result) (Result, bool) {
	select {
	case <-ctx.Done():
		return Result{}, false
	case res := <-ch:
		if errors.Is(res.Err, ErrSuperseded) {
			return res, false
		}
		return res, ctx.Err() == nil
	}
}

func (m *Monitor) pollGeneral(ctx context.Context) {
	res, ok := await(ctx, m.submitter.Submit(CmdDeviceState, m.Address()))
	if !ok {
		return
	}
	if !res.OK() {
		m.recordFailure()
		return
	}

	// Only an answer from this device proves it reachable.
	ident, err := ParseIdentity(res.Payload)
	if err != nil {
		m.logger.Debug("identity response without id", "device_id", m.id, "error", err)
		return
	}
	if ident.ID != m.id {
		m.logger.Warn("device at address reports a different id",
			"device_id", m.id,
			"reported_id", ident.ID,
			"address", m.Address(),
		)
		return
	}
	m.recordSuccess()

	m.mu.Lock()
	m.info = ident.Info
	m.updatedAt = time.Now().UTC()
	renamed := ident.Name != m.name
	if renamed {
		m.name = ident.Name
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if renamed {
		m.observer.DeviceUpdated(snap, ChangeName)
	}
}

func (m *Monitor) pollSpecific(ctx context.Context) {
	res, ok := await(ctx, m.submitter.Submit(m.family.StateCommand(), m.Address()))
	if !ok {
		return
	}
	if !res.OK() {
		m.recordFailure()
		return
	}
	m.recordSuccess()
	m.storeState(res.Payload)
}

func (m *Monitor) storeState(raw map[string]any) {
	m.mu.Lock()
	m.state = m.family.ApplyState(raw)
	m.updatedAt = time.Now().UTC()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.observer.DeviceUpdated(snap, ChangeState)
}

func (m *Monitor) recordFailure() {
	m.mu.Lock()
	was := m.failures <= m.cfg.FailureThreshold
	m.failures++
	now := m.failures <= m.cfg.FailureThreshold
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if was != now {
		m.logger.Warn("device not responding", "device_id", m.id, "failures", snap.Failures)
		m.observer.DeviceUpdated(snap, ChangeHealth)
	}
}

func (m *Monitor) recordSuccess() {
	m.mu.Lock()
	was := m.failures <= m.cfg.FailureThreshold
	m.failures = 0
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if !was {
		m.logger.Info("device responding again", "device_id", m.id)
		m.observer.DeviceUpdated(snap, ChangeHealth)
	}
}

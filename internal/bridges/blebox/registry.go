package blebox

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultMaxDevices is the default population cap.
const DefaultMaxDevices = 98

// ResolveOutcome describes what Registry.Resolve did with an identity.
type ResolveOutcome string

const (
	OutcomeUpdated     ResolveOutcome = "updated"
	OutcomeRegistered  ResolveOutcome = "registered"
	OutcomePending     ResolveOutcome = "pending"
	OutcomeUnknownType ResolveOutcome = "unknown_type"
	OutcomeCapReached  ResolveOutcome = "cap_reached"
	OutcomeProbeFailed ResolveOutcome = "probe_failed"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Submitter runs the state probes and is handed to every monitor.
	Submitter Submitter

	// Families maps type tags to adapters. Default: DefaultFamilies().
	Families Families

	// MaxDevices is the population cap. Default: DefaultMaxDevices.
	MaxDevices int

	// Monitor is the polling configuration for new monitors.
	Monitor MonitorConfig

	Observer Observer
	Logger   Logger
}

// Registry maps persistent device ids to live monitors.
// Lookup is always by id; an address is never part of the key.
type Registry struct {
	submitter  Submitter
	families   Families
	maxDevices int
	monitorCfg MonitorConfig
	observer   Observer
	logger     Logger

	mu      sync.RWMutex
	devices map[string]*Monitor
	pending map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if opts.Families == nil {
		opts.Families = DefaultFamilies()
	}
	if opts.MaxDevices <= 0 {
		opts.MaxDevices = DefaultMaxDevices
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Registry{
		submitter:  opts.Submitter,
		families:   opts.Families,
		maxDevices: opts.MaxDevices,
		monitorCfg: opts.Monitor,
		observer:   opts.Observer,
		logger:     loggerOrNop(opts.Logger),
		devices:    make(map[string]*Monitor),
		pending:    make(map[string]struct{}),
	}, nil
}

// SetObserver replaces the observer used for new and existing monitors'
// registry-level events. Must be called before any device is tracked.
func (r *Registry) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Resolve reconciles a discovered identity with the registry.
//
// A known id is updated in place (address, name). An unknown id of a
// supported type is probed with its state command and registered on success.
// Unknown types and discoveries beyond the cap are dropped.
func (r *Registry) Resolve(ctx context.Context, ident Identity) (ResolveOutcome, error) {
	r.mu.Lock()
	if m, ok := r.devices[ident.ID]; ok {
		r.mu.Unlock()
		r.reconcile(m, ident)
		return OutcomeUpdated, nil
	}

	family, ok := r.families.Lookup(ident.Type)
	if !ok {
		r.mu.Unlock()
		r.logger.Info("ignoring device of unknown type",
			"device_id", ident.ID,
			"type", ident.Type,
			"address", ident.Address,
		)
		return OutcomeUnknownType, fmt.Errorf("%w: %s", ErrUnknownType, ident.Type)
	}

	if len(r.devices) >= r.maxDevices {
		r.mu.Unlock()
		return OutcomeCapReached, ErrPopulationCap
	}

	if _, busy := r.pending[ident.ID]; busy {
		r.mu.Unlock()
		return OutcomePending, nil
	}
	r.pending[ident.ID] = struct{}{}
	r.mu.Unlock()

	var res Result
	select {
	case res = <-r.submitter.Submit(family.StateCommand(), ident.Address):
	case <-ctx.Done():
		res = Result{Err: ctx.Err()}
	}

	r.mu.Lock()
	delete(r.pending, ident.ID)
	if !res.OK() {
		r.mu.Unlock()
		return OutcomeProbeFailed, fmt.Errorf("%w: %s at %s: %v", ErrProbeFailed, ident.ID, ident.Address, res.Err)
	}
	if len(r.devices) >= r.maxDevices {
		r.mu.Unlock()
		return OutcomeCapReached, ErrPopulationCap
	}
	m := r.newMonitorLocked(ident, family, family.ApplyState(res.Payload))
	observer := r.observer
	r.mu.Unlock()

	r.logger.Info("device registered",
		"device_id", ident.ID,
		"type", ident.Type,
		"address", ident.Address,
		"name", ident.Name,
	)
	m.Start()
	observer.DeviceRegistered(m.Snapshot())
	return OutcomeRegistered, nil
}

// Restore tracks a device known from an earlier run without probing it.
// A restored device starts polling immediately.
func (r *Registry) Restore(ident Identity, state map[string]any) error {
	family, ok := r.families.Lookup(ident.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, ident.Type)
	}

	r.mu.Lock()
	if m, exists := r.devices[ident.ID]; exists {
		r.mu.Unlock()
		r.reconcile(m, ident)
		return nil
	}
	if len(r.devices) >= r.maxDevices {
		r.mu.Unlock()
		return ErrPopulationCap
	}
	m := r.newMonitorLocked(ident, family, state)
	r.mu.Unlock()

	r.logger.Debug("device restored", "device_id", ident.ID, "address", ident.Address)
	m.Start()
	return nil
}

func (r *Registry) newMonitorLocked(ident Identity, family Adapter, state map[string]any) *Monitor {
	ident.Type = family.Describe().Type
	m := NewMonitor(MonitorOptions{
		Identity:  ident,
		State:     state,
		Family:    family,
		Submitter: r.submitter,
		Observer:  r.observer,
		Logger:    r.logger,
		Config:    r.monitorCfg,
	})
	r.devices[ident.ID] = m
	return m
}

// reconcile applies a rediscovered identity to an existing monitor.
// Polling restarts only when the address actually moved.
func (r *Registry) reconcile(m *Monitor, ident Identity) {
	old := m.Address()
	if m.Relocate(ident.Address) {
		r.logger.Info("device address changed",
			"device_id", ident.ID,
			"from", old,
			"to", ident.Address,
		)
	}
	m.Rename(ident.Name)
}

// Remove stops and forgets a device.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	m, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(r.devices, id)
	observer := r.observer
	r.mu.Unlock()

	m.Stop()
	observer.DeviceRemoved(id)
	return nil
}

// Get returns the monitor of a tracked device.
func (r *Registry) Get(id string) (*Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.devices[id]
	return m, ok
}

// List returns snapshots of every tracked device sorted by id.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	monitors := make([]*Monitor, 0, len(r.devices))
	for _, m := range r.devices {
		monitors = append(monitors, m)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of tracked devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// CountResponding returns the number of tracked devices that are responding.
func (r *Registry) CountResponding() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.devices {
		if m.IsResponding() {
			n++
		}
	}
	return n
}

// StopAll disarms every monitor. Devices stay tracked.
func (r *Registry) StopAll() {
	r.mu.RLock()
	monitors := make([]*Monitor, 0, len(r.devices))
	for _, m := range r.devices {
		monitors = append(monitors, m)
	}
	r.mu.RUnlock()

	for _, m := range monitors {
		m.Stop()
	}
}

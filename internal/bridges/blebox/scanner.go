package blebox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"
)

// Scanner defaults.
const (
	DefaultScanPacing  = 100 * time.Millisecond
	DefaultMinMaskBits = 16
	DefaultMaxMaskBits = 32
)

// MaskBounds are the exclusive mask length bounds for an eligible subnet.
type MaskBounds struct {
	Min int
	Max int
}

// DefaultMaskBounds skips /16-and-larger networks and single hosts.
func DefaultMaskBounds() MaskBounds {
	return MaskBounds{Min: DefaultMinMaskBits, Max: DefaultMaxMaskBits}
}

// ComputeScanRange returns the host addresses of the IPv4 subnet of local,
// in ascending order. The network address, the broadcast address and local
// itself are excluded. The mask length must lie strictly between the bounds.
func ComputeScanRange(local net.IP, mask net.IPMask, bounds MaskBounds) ([]string, error) {
	ip4 := local.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %v is not IPv4", ErrInvalidAddress, local)
	}
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	ones, bits := mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("%w: non-canonical netmask %v", ErrInvalidAddress, mask)
	}
	if ones <= bounds.Min || ones >= bounds.Max {
		return nil, fmt.Errorf("%w: mask /%d outside (%d, %d)", ErrInvalidAddress, ones, bounds.Min, bounds.Max)
	}

	self := binary.BigEndian.Uint32(ip4)
	network := self & binary.BigEndian.Uint32(mask)
	broadcast := network | ^binary.BigEndian.Uint32(mask)

	out := make([]string, 0, broadcast-network-1)
	buf := make(net.IP, net.IPv4len)
	for n := network + 1; n < broadcast; n++ {
		if n == self {
			continue
		}
		binary.BigEndian.PutUint32(buf, n)
		out = append(out, buf.String())
	}
	return out, nil
}

// InterfaceAddr is one local IPv4 address with its mask.
type InterfaceAddr struct {
	Interface string
	IP        net.IP
	Mask      net.IPMask
}

// LocalAddrs lists the first non-loopback IPv4 address of every up interface.
// When allow is non-empty only the named interfaces are considered.
func LocalAddrs(allow []string) ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	var out []InterfaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(allow) > 0 && !slices.Contains(allow, iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			out = append(out, InterfaceAddr{Interface: iface.Name, IP: ipnet.IP, Mask: ipnet.Mask})
			break
		}
	}
	return out, nil
}

// BuildScanList concatenates extra addresses and the scan ranges of every
// eligible interface, dropping duplicates while keeping first-seen order.
// Ineligible interfaces are skipped.
func BuildScanList(addrs []InterfaceAddr, bounds MaskBounds, extra ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(a string) {
		if _, dup := seen[a]; dup {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}

	for _, a := range extra {
		add(a)
	}
	for _, ia := range addrs {
		hosts, err := ComputeScanRange(ia.IP, ia.Mask, bounds)
		if err != nil {
			continue
		}
		for _, h := range hosts {
			add(h)
		}
	}
	return out
}

// Resolver receives identities discovered by a sweep. *Registry implements it.
type Resolver interface {
	Resolve(ctx context.Context, ident Identity) (ResolveOutcome, error)
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// Pacing between two probes. Default: DefaultScanPacing.
	Pacing time.Duration

	// RescanDelay schedules a new sweep after each completed one.
	// Zero makes scanning one-shot.
	RescanDelay time.Duration

	// Bounds limit which subnets are eligible.
	Bounds MaskBounds

	// Interfaces restricts scanning to the named interfaces.
	Interfaces []string

	// ExtraAddresses are probed before the subnet hosts.
	ExtraAddresses []string
}

// SweepStats summarise one sweep.
type SweepStats struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Probed     int           `json:"probed"`
	Found      int           `json:"found"`
	Registered int           `json:"registered"`
	Updated    int           `json:"updated"`
	Ignored    int           `json:"ignored"`
}

// Scanner sweeps local subnets for devices.
type Scanner struct {
	cfg       ScannerConfig
	submitter Submitter
	resolver  Resolver
	logger    Logger

	// addrs lists local interface addresses; swapped in tests.
	addrs func(allow []string) ([]InterfaceAddr, error)

	mu      sync.Mutex
	running bool
	last    SweepStats

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// ScannerOptions holds the collaborators of a Scanner.
type ScannerOptions struct {
	Config    ScannerConfig
	Submitter Submitter
	Resolver  Resolver
	Logger    Logger
}

// ErrSweepRunning is returned by Sweep when a sweep is already in progress.
var ErrSweepRunning = errors.New("blebox: sweep already running")

// NewScanner creates a Scanner.
func NewScanner(opts ScannerOptions) (*Scanner, error) {
	if opts.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	cfg := opts.Config
	if cfg.Pacing <= 0 {
		cfg.Pacing = DefaultScanPacing
	}
	if cfg.Bounds == (MaskBounds{}) {
		cfg.Bounds = DefaultMaskBounds()
	}
	return &Scanner{
		cfg:       cfg,
		submitter: opts.Submitter,
		resolver:  opts.Resolver,
		logger:    loggerOrNop(opts.Logger),
		addrs:     LocalAddrs,
		done:      make(chan struct{}),
	}, nil
}

// Targets returns the addresses the next sweep will probe.
func (s *Scanner) Targets() ([]string, error) {
	addrs, err := s.addrs(s.cfg.Interfaces)
	if err != nil {
		return nil, err
	}
	return BuildScanList(addrs, s.cfg.Bounds, s.cfg.ExtraAddresses...), nil
}

// Start runs a sweep in the background, then one more after every
// RescanDelay if configured. Call Stop to end it.
func (s *Scanner) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepRunning) && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		if s.cfg.RescanDelay <= 0 {
			return
		}
		timer := time.NewTimer(s.cfg.RescanDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop ends background scanning and waits for the current sweep to unwind.
// Safe to call multiple times.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Running reports whether a sweep is in progress.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastSweep returns the stats of the last completed sweep.
func (s *Scanner) LastSweep() SweepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Sweep probes every target once at the configured pace and waits for all
// probes and resolutions to finish. Individual failures are skipped.
func (s *Scanner) Sweep(ctx context.Context) (SweepStats, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return SweepStats{}, ErrSweepRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	targets, err := s.Targets()
	if err != nil {
		return SweepStats{}, err
	}

	stats := SweepStats{StartedAt: time.Now().UTC()}
	s.logger.Info("device sweep started", "targets", len(targets))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(out ResolveOutcome) {
		mu.Lock()
		defer mu.Unlock()
		stats.Found++
		switch out {
		case OutcomeRegistered:
			stats.Registered++
		case OutcomeUpdated:
			stats.Updated++
		default:
			stats.Ignored++
		}
	}

	ticker := time.NewTicker(s.cfg.Pacing)
	defer ticker.Stop()

probe:
	for i, addr := range targets {
		if i > 0 {
			select {
			case <-ctx.Done():
				break probe
			case <-s.done:
				break probe
			case <-ticker.C:
			}
		}
		stats.Probed++
		ch := s.submitter.Submit(CmdDeviceState, addr)
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			s.handleProbe(ctx, addr, ch, record)
		}(addr)
	}
	wg.Wait()

	stats.Duration = time.Since(stats.StartedAt)
	s.mu.Lock()
	s.last = stats
	s.mu.Unlock()

	s.logger.Info("device sweep finished",
		"probed", stats.Probed,
		"found", stats.Found,
		"registered", stats.Registered,
		"duration", stats.Duration.String(),
	)
	return stats, ctx.Err()
}

func (s *Scanner) handleProbe(ctx context.Context, addr string, ch <-chan Result, record func(ResolveOutcome)) {
	var res Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return
	}
	if !res.OK() {
		return
	}
	ident, err := ParseIdentity(res.Payload)
	if err != nil {
		return
	}
	// The probed address is authoritative; the body may carry a stale ip.
	ident.Address = addr

	out, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		s.logger.Debug("discovery not tracked", "address", addr, "device_id", ident.ID, "outcome", string(out), "error", err)
	}
	record(out)
}

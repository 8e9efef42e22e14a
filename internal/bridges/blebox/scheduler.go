package blebox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler defaults.
const (
	// DefaultRequestTimeout bounds a single device call.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultRequestPacing is the gap between two calls on the same key.
	DefaultRequestPacing = 300 * time.Millisecond
)

// Result is the resolution of a submitted request.
type Result struct {
	// Payload is the decoded JSON object. It is an empty map, never nil,
	// when the device answered 2xx with a body that is not a JSON object.
	Payload map[string]any

	// Raw is the undecoded body.
	Raw []byte

	StatusCode int
	Latency    time.Duration

	// Err is nil on success. ErrSuperseded marks a coalesced submission that
	// never reached the device.
	Err error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Submitter is anything that can run a device command asynchronously.
// The returned channel receives exactly one Result and is never closed.
type Submitter interface {
	Submit(cmd Command, address string, params ...string) <-chan Result
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Client performs the HTTP calls. Defaults to NewHTTPClient().
	Client Doer

	// Timeout per request. Default: DefaultRequestTimeout.
	Timeout time.Duration

	// Pacing between consecutive requests on one key. Default: DefaultRequestPacing.
	Pacing time.Duration

	Logger Logger
}

// SchedulerStats are cumulative counters.
type SchedulerStats struct {
	Dispatched uint64
	Failed     uint64
	Superseded uint64
}

// Scheduler serialises device calls per endpoint key (address + command name).
//
// For each key at most one request is in flight and at most one waits. A
// submission for a busy key replaces the waiting request, which resolves with
// ErrSuperseded. There is no queue beyond that single slot and no retry.
//
// Each busy key is served by one goroutine that runs the in-flight request,
// then promotes the waiting one after the pacing delay.
type Scheduler struct {
	client  Doer
	timeout time.Duration
	pacing  time.Duration
	logger  Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dispatched atomic.Uint64
	failed     atomic.Uint64
	superseded atomic.Uint64
}

// slot is the pending state of one busy key. waiting is a capacity-1
// overwrite-on-send buffer; it is only touched with Scheduler.mu held.
type slot struct {
	waiting chan *request
}

type request struct {
	cmd     Command
	address string
	params  []string
	result  chan Result
}

func (r *request) resolve(res Result) {
	r.result <- res
}

// NewScheduler creates a Scheduler. Call Close to release it.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Client == nil {
		cfg.Client = NewHTTPClient()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = DefaultRequestPacing
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		client:  cfg.Client,
		timeout: cfg.Timeout,
		pacing:  cfg.Pacing,
		logger:  loggerOrNop(cfg.Logger),
		slots:   make(map[string]*slot),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func endpointKey(address, command string) string {
	return address + "_" + command
}

// Submit schedules cmd against address. It never blocks on the network.
func (s *Scheduler) Submit(cmd Command, address string, params ...string) <-chan Result {
	req := &request{
		cmd:     cmd,
		address: address,
		params:  params,
		result:  make(chan Result, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		req.resolve(Result{Err: ErrSchedulerClosed})
		return req.result
	}

	key := endpointKey(address, cmd.Name)
	sl, busy := s.slots[key]
	if !busy {
		s.slots[key] = &slot{waiting: make(chan *request, 1)}
		s.wg.Add(1)
		go s.serve(key, req)
		return req.result
	}

	select {
	case old := <-sl.waiting:
		s.superseded.Add(1)
		old.resolve(Result{Err: ErrSuperseded})
	default:
	}
	sl.waiting <- req
	return req.result
}

// serve runs requests for key until no request is waiting.
func (s *Scheduler) serve(key string, req *request) {
	defer s.wg.Done()
	for req != nil {
		req.resolve(s.execute(req))
		req = s.next(key)
	}
}

// next returns the waiting request for key after the pacing delay, or nil
// after releasing the key when nothing waits.
func (s *Scheduler) next(key string) *request {
	s.mu.Lock()
	sl := s.slots[key]
	if len(sl.waiting) == 0 {
		delete(s.slots, key)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.pacing)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.ctx.Done():
	}
	shutdown := s.ctx.Err() != nil

	s.mu.Lock()
	defer s.mu.Unlock()
	var req *request
	select {
	case req = <-sl.waiting:
	default:
	}
	if shutdown || req == nil {
		if req != nil {
			req.resolve(Result{Err: ErrSchedulerClosed})
		}
		delete(s.slots, key)
		return nil
	}
	return req
}

func (s *Scheduler) execute(req *request) Result {
	s.dispatched.Add(1)
	url := req.cmd.URL(req.address, req.params...)
	resp := s.client.Do(s.ctx, req.cmd.Method, url, req.address, s.timeout)

	res := Result{
		Raw:        resp.Body,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
	}
	if resp.Error != nil {
		s.failed.Add(1)
		res.Err = resp.Error
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.failed.Add(1)
		res.Err = fmt.Errorf("%w: %d from %s", ErrHTTPStatus, resp.StatusCode, url)
		return res
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil || payload == nil {
		s.logger.Debug("device returned unparsable body",
			"address", req.address,
			"command", req.cmd.Name,
			"bytes", len(resp.Body),
		)
		payload = map[string]any{}
	}
	res.Payload = payload
	return res
}

// Pending returns the number of busy endpoint keys.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Dispatched: s.dispatched.Load(),
		Failed:     s.failed.Load(),
		Superseded: s.superseded.Load(),
	}
}

// Close rejects new submissions, aborts in-flight calls and waits for every
// key goroutine to exit. Waiting requests resolve with ErrSchedulerClosed.
// Safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

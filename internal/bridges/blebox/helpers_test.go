package blebox

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSubmitter resolves every submission immediately via respond.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []submitCall
	respond func(cmd Command, address string, params []string) Result
}

type submitCall struct {
	Command string
	Address string
	Params  []string
}

func newFakeSubmitter(respond func(cmd Command, address string, params []string) Result) *fakeSubmitter {
	return &fakeSubmitter{respond: respond}
}

func (f *fakeSubmitter) Submit(cmd Command, address string, params ...string) <-chan Result {
	f.mu.Lock()
	f.calls = append(f.calls, submitCall{Command: cmd.Name, Address: address, Params: params})
	respond := f.respond
	f.mu.Unlock()

	ch := make(chan Result, 1)
	ch <- respond(cmd, address, params)
	return ch
}

func (f *fakeSubmitter) setRespond(respond func(cmd Command, address string, params []string) Result) {
	f.mu.Lock()
	f.respond = respond
	f.mu.Unlock()
}

func (f *fakeSubmitter) Calls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}

func (f *fakeSubmitter) CountCommand(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Command == name {
			n++
		}
	}
	return n
}

func okResult(payload map[string]any) Result {
	return Result{Payload: payload, StatusCode: 200}
}

func failedResult() Result {
	return Result{Err: ErrRequestFailed}
}

func identityPayload(id, typ, name string) map[string]any {
	return map[string]any{
		"device": map[string]any{
			"id":         id,
			"type":       typ,
			"deviceName": name,
			"fv":         "0.247",
		},
	}
}

// deviceNetwork answers like a set of devices keyed by address.
func deviceNetwork(devices map[string]map[string]any) func(Command, string, []string) Result {
	return func(cmd Command, address string, _ []string) Result {
		ident, found := devices[address]
		if !found {
			return failedResult()
		}
		if cmd.Name == CmdDeviceState.Name {
			return okResult(ident)
		}
		return okResult(map[string]any{"relays": []any{map[string]any{"relay": float64(0), "state": float64(1)}}})
	}
}

type observedEvent struct {
	Kind     string
	Change   Change
	Snapshot Snapshot
	ID       string
}

// recordingObserver records every notification.
type recordingObserver struct {
	mu     sync.Mutex
	events []observedEvent
}

func (o *recordingObserver) DeviceRegistered(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observedEvent{Kind: "registered", Snapshot: s, ID: s.ID})
}

func (o *recordingObserver) DeviceUpdated(s Snapshot, change Change) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observedEvent{Kind: "updated", Change: change, Snapshot: s, ID: s.ID})
}

func (o *recordingObserver) DeviceRemoved(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observedEvent{Kind: "removed", ID: id})
}

func (o *recordingObserver) Count(kind string, change Change) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e.Kind == kind && (change == "" || e.Change == change) {
			n++
		}
	}
	return n
}

// quietMonitorConfig only polls on Start and Refresh within a test's lifetime.
func quietMonitorConfig() MonitorConfig {
	return MonitorConfig{
		GeneralInterval:  time.Hour,
		SpecificInterval: time.Hour,
		Jitter:           0,
		FailureThreshold: DefaultFailureThreshold,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func recv(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

// blockingDoer holds every call until released.
type blockingDoer struct {
	mu      sync.Mutex
	urls    []string
	started chan string
	release chan Response
}

func newBlockingDoer() *blockingDoer {
	return &blockingDoer{
		started: make(chan string, 16),
		release: make(chan Response),
	}
}

func (d *blockingDoer) Do(ctx context.Context, _ string, url, _ string, _ time.Duration) Response {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	d.started <- url

	select {
	case resp := <-d.release:
		return resp
	case <-ctx.Done():
		return Response{Error: ctx.Err()}
	}
}

func (d *blockingDoer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *blockingDoer) expectStarted(t *testing.T, url string) {
	t.Helper()
	select {
	case got := <-d.started:
		if got != url {
			t.Fatalf("dispatched %q, want %q", got, url)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q to be dispatched", url)
	}
}

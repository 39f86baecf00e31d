package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// --- Mock implementations ---

type fakeStore struct {
	mu       sync.Mutex
	cred     model.Credential
	getErr   error
	setErr   error
	clearErr error
	gets     int
	sets     int
	clears   int
}

func (f *fakeStore) Get(_ context.Context) (model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.cred, nil
}

func (f *fakeStore) Set(_ context.Context, cred model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	if cred.IsZero() {
		return model.ErrEmptyCredential
	}
	f.cred = cred
	return nil
}

func (f *fakeStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cred = ""
	return nil
}

func (f *fakeStore) stored() model.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred
}

type fakeAuth struct {
	mu          sync.Mutex
	login       func(ctx context.Context, req model.LoginRequest) (model.Credential, error)
	currentUser func(ctx context.Context, cred model.Credential) (*model.Account, error)
	requests    []model.LoginRequest
	userCalls   int
}

func (f *fakeAuth) Login(ctx context.Context, req model.LoginRequest) (model.Credential, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.login(ctx, req)
}

func (f *fakeAuth) CurrentUser(ctx context.Context, cred model.Credential) (*model.Account, error) {
	f.mu.Lock()
	f.userCalls++
	f.mu.Unlock()
	return f.currentUser(ctx, cred)
}

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests) + f.userCalls
}

type dispatchCall struct {
	Credential model.Credential
	Scan       model.ScanSession
}

// fakeDispatcher records calls and, when release is non-nil, blocks each
// dispatch until a value is sent on it.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	release chan struct{}
	outcome model.AuthOutcome
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, cred model.Credential, scan model.ScanSession) model.AuthOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{Credential: cred, Scan: scan})
	release := f.release
	out := f.outcome
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return model.NetworkFailure(ctx.Err().Error())
		}
	}
	out.ScanID = scan.ID
	return out
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) lastCall() dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeCamera struct {
	mu    sync.Mutex
	state model.PermissionState
	err   error
	calls int
}

func (f *fakeCamera) RequestAccess(_ context.Context) (model.PermissionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.state, f.err
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTimer records armed durations and fires only when told to.
type fakeTimer struct {
	mu        sync.Mutex
	durations []time.Duration
	ch        chan time.Time
	stops     int
}

func (f *fakeTimer) Start(d time.Duration) (<-chan time.Time, func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations = append(f.durations, d)
	ch := make(chan time.Time, 1)
	f.ch = ch
	return ch, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stops++
		return true
	}
}

func (f *fakeTimer) Fire(t time.Time) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- t
}

func (f *fakeTimer) armed() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.durations...)
}

package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// Event bus topics published by ScanService.
const (
	// TopicOutcome carries a model.AuthOutcome for every dispatch that settles
	// while its session is still the authenticated one.
	TopicOutcome = "scan:outcome"
	// TopicReady carries a model.ScannerStatus whenever scanning re-opens.
	TopicReady = "scan:ready"
)

// TimerFunc starts a one-shot timer and returns its channel and a stop func.
type TimerFunc func(d time.Duration) (<-chan time.Time, func() bool)

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// ScanOption configures a ScanService.
type ScanOption func(*ScanService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ScanOption {
	return func(s *ScanService) { s.now = now }
}

// WithTimer replaces the cooldown timer.
func WithTimer(fn TimerFunc) ScanOption {
	return func(s *ScanService) { s.newTimer = fn }
}

type scanRequest struct {
	ev   model.ScanEvent
	done chan model.ScanDecision
}

type settlement struct {
	outcome    model.AuthOutcome
	generation uint64
}

// ScanService runs the scanner. A single goroutine (Start) owns the
// debouncer and processes scan submissions, dispatch settlements, cooldown
// expiry and re-arm requests one at a time.
type ScanService struct {
	session    *SessionController
	permission *PermissionGate
	dispatcher driven.Dispatcher
	debouncer  *ScanDebouncer
	bus        EventBus.Bus
	now        func() time.Time
	newTimer   TimerFunc

	scanCh   chan scanRequest
	settleCh chan settlement
	rearmCh  chan chan model.ScannerStatus
	drainCh  chan chan struct{}

	// Owned by the Start goroutine.
	timerC    <-chan time.Time
	stopTimer func() bool
	waiters   []chan struct{}
	inflight  sync.WaitGroup

	mu     sync.RWMutex
	status model.ScannerStatus
}

// NewScanService creates a ScanService. Start must be running for Submit,
// Rearm and WaitSettled to make progress.
func NewScanService(
	session *SessionController,
	permission *PermissionGate,
	dispatcher driven.Dispatcher,
	debouncer *ScanDebouncer,
	bus EventBus.Bus,
	opts ...ScanOption,
) *ScanService {
	s := &ScanService{
		session:    session,
		permission: permission,
		dispatcher: dispatcher,
		debouncer:  debouncer,
		bus:        bus,
		now:        time.Now,
		newTimer:   realTimer,
		scanCh:     make(chan scanRequest),
		settleCh:   make(chan settlement),
		rearmCh:    make(chan chan model.ScannerStatus),
		drainCh:    make(chan chan struct{}),
		status:     model.ScannerStatus{State: model.ScannerIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the event loop until ctx is canceled. An in-flight dispatch is
// canceled with ctx and awaited before Start returns.
func (s *ScanService) Start(ctx context.Context) {
	defer s.inflight.Wait()
	defer s.disarm()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scan service stopped")
			return
		case req := <-s.scanCh:
			dec := s.handleScan(ctx, req.ev)
			s.publishStatus()
			req.done <- dec
		case st := <-s.settleCh:
			s.handleSettle(st)
		case <-s.timerC:
			s.handleTimer()
		case done := <-s.rearmCh:
			s.handleRearm()
			s.publishStatus()
			done <- s.Status()
		case done := <-s.drainCh:
			if s.debouncer.State(s.now()) == model.ScannerAccepting {
				s.waiters = append(s.waiters, done)
			} else {
				close(done)
			}
		}
		s.publishStatus()
	}
}

// Consume submits every event from source until the source closes or ctx is
// canceled.
func (s *ScanService) Consume(ctx context.Context, source driven.ScanSource) error {
	for ev := range source.Scans(ctx) {
		if _, err := s.Submit(ctx, ev); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Submit offers one scan event and reports whether it was accepted. Dropped
// events are not errors.
func (s *ScanService) Submit(ctx context.Context, ev model.ScanEvent) (model.ScanDecision, error) {
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = s.now()
	}

	req := scanRequest{ev: ev, done: make(chan model.ScanDecision, 1)}

	select {
	case s.scanCh <- req:
	case <-ctx.Done():
		return model.ScanDecision{}, ctx.Err()
	}

	select {
	case dec := <-req.done:
		return dec, nil
	case <-ctx.Done():
		return model.ScanDecision{}, ctx.Err()
	}
}

// Rearm ends a Cooldown immediately and returns the resulting status.
func (s *ScanService) Rearm(ctx context.Context) (model.ScannerStatus, error) {
	done := make(chan model.ScannerStatus, 1)

	select {
	case s.rearmCh <- done:
	case <-ctx.Done():
		return model.ScannerStatus{}, ctx.Err()
	}

	select {
	case st := <-done:
		return st, nil
	case <-ctx.Done():
		return model.ScannerStatus{}, ctx.Err()
	}
}

// WaitSettled blocks until no dispatch is in flight.
func (s *ScanService) WaitSettled(ctx context.Context) error {
	done := make(chan struct{})

	select {
	case s.drainCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the latest scanner snapshot. A Cooldown whose deadline has
// passed reads as Idle.
func (s *ScanService) Status() model.ScannerStatus {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	if st.State == model.ScannerCooldown && !s.now().Before(st.CooldownUntil) {
		st.State = model.ScannerIdle
		st.CooldownUntil = time.Time{}
	}
	return st
}

func (s *ScanService) handleScan(ctx context.Context, ev model.ScanEvent) model.ScanDecision {
	now := s.now()

	switch s.debouncer.State(now) {
	case model.ScannerAccepting:
		return s.drop(ev, model.DropBusy)
	case model.ScannerCooldown:
		return s.drop(ev, model.DropCooldown)
	}

	snap := s.session.Snapshot()
	if snap.State != model.SessionAuthenticated {
		return s.drop(ev, model.DropNotAuthenticated)
	}
	if !s.permission.CanScan() {
		return s.drop(ev, model.DropPermission)
	}

	scan, reason, ok := s.debouncer.Scan(now, ev)
	if !ok {
		return s.drop(ev, reason)
	}
	// A lapsed cooldown timer may still be pending.
	s.disarm()

	slog.Info("scan accepted", "scan_id", scan.ID)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		out := s.dispatcher.Dispatch(ctx, snap.Credential, scan)
		select {
		case s.settleCh <- settlement{outcome: out, generation: snap.Generation}:
		case <-ctx.Done():
		}
	}()

	return model.ScanDecision{Accepted: true, ScanID: scan.ID}
}

func (s *ScanService) drop(ev model.ScanEvent, reason model.DropReason) model.ScanDecision {
	slog.Debug("scan dropped", "reason", reason, "observed_at", ev.ObservedAt)
	return model.ScanDecision{Reason: reason}
}

func (s *ScanService) handleSettle(st settlement) {
	now := s.now()
	until, ok := s.debouncer.Settle(now)
	if ok {
		s.arm(until.Sub(now))
	}
	s.publishStatus()

	out := st.outcome
	if s.session.IsCurrent(st.generation) {
		slog.Info("scan settled", "scan_id", out.ScanID, "outcome", out.Kind, "status", out.Status)
		s.bus.Publish(TopicOutcome, out)
	} else {
		slog.Info("discarding outcome from ended session", "scan_id", out.ScanID, "outcome", out.Kind)
	}

	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

func (s *ScanService) handleTimer() {
	s.timerC, s.stopTimer = nil, nil

	now := s.now()
	if s.debouncer.Expire(now) {
		s.publishReady()
		return
	}
	if until := s.debouncer.CooldownUntil(); !until.IsZero() {
		s.arm(until.Sub(now))
	}
}

func (s *ScanService) handleRearm() {
	if s.debouncer.Rearm() {
		s.disarm()
		slog.Info("scanner re-armed")
		s.publishReady()
	}
}

func (s *ScanService) publishReady() {
	s.publishStatus()
	s.bus.Publish(TopicReady, s.Status())
}

func (s *ScanService) publishStatus() {
	st := s.debouncer.Status(s.now())
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// arm replaces any live timer so only one is ever pending.
func (s *ScanService) arm(d time.Duration) {
	s.disarm()
	s.timerC, s.stopTimer = s.newTimer(d)
}

func (s *ScanService) disarm() {
	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.timerC, s.stopTimer = nil, nil
}

package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// DefaultCooldown is the quiet period after a dispatch settles.
const DefaultCooldown = 3 * time.Second

// ScanDebouncer is the scanner state machine. It consumes discrete inputs
// (Scan, Settle, Expire, Rearm) each carrying the current time, and never
// starts timers itself: Cooldown is a deadline compared against the time
// passed in. It is not safe for concurrent use; ScanService owns it.
type ScanDebouncer struct {
	cooldown time.Duration
	newID    func() string

	state   model.ScannerState
	current model.ScanSession
	lastID  string
}

// NewScanDebouncer creates an Idle debouncer. A non-positive cooldown selects
// DefaultCooldown.
func NewScanDebouncer(cooldown time.Duration) *ScanDebouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &ScanDebouncer{
		cooldown: cooldown,
		newID:    uuid.NewString,
		state:    model.ScannerIdle,
	}
}

// Cooldown returns the configured cooldown duration.
func (d *ScanDebouncer) Cooldown() time.Duration {
	return d.cooldown
}

// State returns the state at time now. A Cooldown whose deadline has been
// reached reads as Idle even before Expire is called.
func (d *ScanDebouncer) State(now time.Time) model.ScannerState {
	if d.state == model.ScannerCooldown && !now.Before(d.current.CooldownUntil) {
		return model.ScannerIdle
	}
	return d.state
}

// Scan offers a scan event. When the debouncer is Idle at time now it moves
// to Accepting and returns the new session; the caller must start exactly one
// dispatch for it. Otherwise the event is dropped and the reason returned.
func (d *ScanDebouncer) Scan(now time.Time, ev model.ScanEvent) (model.ScanSession, model.DropReason, bool) {
	switch d.State(now) {
	case model.ScannerAccepting:
		return model.ScanSession{}, model.DropBusy, false
	case model.ScannerCooldown:
		return model.ScanSession{}, model.DropCooldown, false
	}

	d.current = model.ScanSession{
		ID:        d.newID(),
		Payload:   ev.Payload,
		Accepted:  true,
		InFlight:  true,
		StartedAt: now,
	}
	d.state = model.ScannerAccepting
	d.lastID = d.current.ID
	return d.current, "", true
}

// Settle records that the in-flight dispatch finished, whatever its outcome,
// and enters Cooldown until now plus the cooldown duration. It returns the
// deadline, or false when nothing was in flight.
func (d *ScanDebouncer) Settle(now time.Time) (time.Time, bool) {
	if d.state != model.ScannerAccepting {
		return time.Time{}, false
	}
	d.current.InFlight = false
	d.current.CooldownUntil = now.Add(d.cooldown)
	d.state = model.ScannerCooldown
	return d.current.CooldownUntil, true
}

// Expire ends the Cooldown if its deadline has been reached at time now.
func (d *ScanDebouncer) Expire(now time.Time) bool {
	if d.state != model.ScannerCooldown || now.Before(d.current.CooldownUntil) {
		return false
	}
	d.reset()
	return true
}

// Rearm ends a Cooldown immediately. It has no effect while Accepting.
func (d *ScanDebouncer) Rearm() bool {
	if d.state != model.ScannerCooldown {
		return false
	}
	d.reset()
	return true
}

// CooldownUntil returns the current Cooldown deadline, or the zero time
// outside Cooldown.
func (d *ScanDebouncer) CooldownUntil() time.Time {
	if d.state != model.ScannerCooldown {
		return time.Time{}
	}
	return d.current.CooldownUntil
}

// Status returns a snapshot at time now.
func (d *ScanDebouncer) Status(now time.Time) model.ScannerStatus {
	st := model.ScannerStatus{State: d.State(now), LastScanID: d.lastID}
	if st.State == model.ScannerCooldown {
		st.CooldownUntil = d.current.CooldownUntil
	}
	return st
}

func (d *ScanDebouncer) reset() {
	d.state = model.ScannerIdle
	d.current = model.ScanSession{}
}

package model

import "time"

// ScanEvent is one decoded QR code observation from the camera subsystem.
// Payload is the literal decoded text; it is only used as a target in dynamic mode.
type ScanEvent struct {
	Payload    string
	ObservedAt time.Time
}

// ScanSession is one scan-triggered request cycle, from acceptance until the
// cooldown that follows it expires.
type ScanSession struct {
	ID            string
	Payload       string
	Accepted      bool
	InFlight      bool
	StartedAt     time.Time
	CooldownUntil time.Time // Zero while the dispatch is in flight.
}

// ScanDecision reports what happened to a submitted scan event.
type ScanDecision struct {
	Accepted bool
	ScanID   string     // Set only when Accepted.
	Reason   DropReason // Set only when not Accepted.
}

package model

import "time"

// ScannerStatus is a point-in-time view of the scan debouncer.
type ScannerStatus struct {
	State         ScannerState
	CooldownUntil time.Time
	LastScanID    string
}

// Status aggregates session, permission and scanner state for observability.
type Status struct {
	Session    SessionState
	Permission PermissionState
	Scanner    ScannerStatus
	Mode       ConfirmMode
}

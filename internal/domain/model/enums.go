package model

// PermissionState represents camera-access state as reported by the camera subsystem.
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// SessionState represents the authentication state exposed by the session controller.
type SessionState string

const (
	SessionLoading         SessionState = "loading" // Startup read of the credential store not yet resolved.
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticated   SessionState = "authenticated"
)

// ScannerState represents the scan debouncer state.
type ScannerState string

const (
	ScannerIdle      ScannerState = "idle"
	ScannerAccepting ScannerState = "accepting"
	ScannerCooldown  ScannerState = "cooldown"
)

// OutcomeKind classifies the result of one authorized request.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeRejected       OutcomeKind = "rejected"
	OutcomeNetworkFailure OutcomeKind = "network_failure"
)

// ConfirmMode selects how the sign-in confirmation target is resolved.
type ConfirmMode string

const (
	// ConfirmModeFixed posts every accepted scan to one pre-configured endpoint.
	ConfirmModeFixed ConfirmMode = "fixed"
	// ConfirmModeDynamic posts to the URL decoded from the scanned code.
	ConfirmModeDynamic ConfirmMode = "dynamic"
)

// DropReason explains why a scan event was not accepted.
type DropReason string

const (
	DropNotAuthenticated DropReason = "not_authenticated"
	DropPermission       DropReason = "permission_not_granted"
	DropBusy             DropReason = "dispatch_in_flight"
	DropCooldown         DropReason = "cooldown"
)

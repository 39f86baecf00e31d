package model

import "time"

// AuthOutcome is the result of one authorized request. It is consumed
// immediately by whatever surfaces it to the user and is never persisted.
type AuthOutcome struct {
	Kind    OutcomeKind
	Message string // Server message for Success/Rejected, failure description for NetworkFailure.
	Status  int    // HTTP status; 0 for NetworkFailure.
	Target  string
	ScanID  string

	SettledAt time.Time
}

// Success builds a Success outcome.
func Success(message string) AuthOutcome {
	return AuthOutcome{Kind: OutcomeSuccess, Message: message}
}

// Rejected builds a Rejected outcome.
func Rejected(message string) AuthOutcome {
	return AuthOutcome{Kind: OutcomeRejected, Message: message}
}

// NetworkFailure builds a NetworkFailure outcome.
func NetworkFailure(reason string) AuthOutcome {
	return AuthOutcome{Kind: OutcomeNetworkFailure, Message: reason}
}

package model

import "log/slog"

// Credential is the opaque session token issued by the auth service at sign-in.
// The zero value means no credential is held.
type Credential string

// IsZero reports whether no credential is present.
func (c Credential) IsZero() bool {
	return c == ""
}

// LogValue implements slog.LogValuer so a credential never reaches the logs in clear.
func (c Credential) LogValue() slog.Value {
	if c.IsZero() {
		return slog.StringValue("")
	}
	if len(c) <= 8 {
		return slog.StringValue("[redacted]")
	}
	return slog.StringValue(string(c[:4]) + "…[redacted]")
}

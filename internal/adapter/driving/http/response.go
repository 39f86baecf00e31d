package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries field-level sign-in rejections.
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// SignInRequest is the JSON body for POST /api/v1/session.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is the JSON representation of the session state.
type SessionResponse struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	Warning       string `json:"warning,omitempty"`
}

// AccountResponse is the JSON representation of the signed-in account.
type AccountResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PermissionResponse is the JSON representation of camera permission.
type PermissionResponse struct {
	State   string `json:"state"`
	CanScan bool   `json:"can_scan"`
}

// ScanRequest is the JSON body for POST /api/v1/scans.
type ScanRequest struct {
	Payload string `json:"payload"`
}

// ScanResponse reports whether a submitted scan was accepted.
type ScanResponse struct {
	Accepted bool   `json:"accepted"`
	ScanID   string `json:"scan_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ScannerResponse is the JSON representation of the scanner state.
type ScannerResponse struct {
	State         string `json:"state"`
	CooldownUntil string `json:"cooldown_until,omitempty"`
	LastScanID    string `json:"last_scan_id,omitempty"`
}

// HealthResponse is the JSON body for GET /api/v1/health.
type HealthResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Session    string          `json:"session"`
	Permission string          `json:"permission"`
	Scanner    ScannerResponse `json:"scanner"`
	Mode       string          `json:"mode"`
	Ready      bool            `json:"ready"`
}

// OutcomeResponse is the JSON representation of a settled dispatch.
type OutcomeResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	Target    string `json:"target,omitempty"`
	ScanID    string `json:"scan_id,omitempty"`
	SettledAt string `json:"settled_at,omitempty"`
}

// StreamMessage is one frame of the outcome websocket stream. Type is
// "outcome" or "ready".
type StreamMessage struct {
	Type    string           `json:"type"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
	Scanner *ScannerResponse `json:"scanner,omitempty"`
}

func toSessionResponse(state model.SessionState) SessionResponse {
	return SessionResponse{
		State:         string(state),
		Authenticated: state == model.SessionAuthenticated,
	}
}

func toScannerResponse(st model.ScannerStatus) ScannerResponse {
	return ScannerResponse{
		State:         string(st.State),
		CooldownUntil: formatTime(st.CooldownUntil),
		LastScanID:    st.LastScanID,
	}
}

func toOutcomeResponse(out model.AuthOutcome) OutcomeResponse {
	return OutcomeResponse{
		Kind:      string(out.Kind),
		Message:   out.Message,
		Status:    out.Status,
		Target:    out.Target,
		ScanID:    out.ScanID,
		SettledAt: formatTime(out.SettledAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

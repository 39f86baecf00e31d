package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/qrsignin/internal/application"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// Handler is the HTTP driving adapter that serves the local JSON API.
type Handler struct {
	session    *application.SessionController
	permission *application.PermissionGate
	scanner    *application.ScanService
	status     *application.StatusService
	hub        *OutcomeHub
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. hub may be nil,
// in which case the outcome stream route answers 503.
func NewHandler(
	session *application.SessionController,
	permission *application.PermissionGate,
	scanner *application.ScanService,
	status *application.StatusService,
	hub *OutcomeHub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		session:    session,
		permission: permission,
		scanner:    scanner,
		status:     status,
		hub:        hub,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, recovery and same-origin middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session", h.SignIn)
	mux.HandleFunc("DELETE /api/v1/session", h.SignOut)
	mux.HandleFunc("GET /api/v1/session/verify", h.Verify)
	mux.HandleFunc("GET /api/v1/permission", h.GetPermission)
	mux.HandleFunc("POST /api/v1/permission", h.RequestPermission)
	mux.HandleFunc("POST /api/v1/scans", h.SubmitScan)
	mux.HandleFunc("POST /api/v1/scans/rearm", h.Rearm)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/outcomes/ws", h.Outcomes)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = sameOriginMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// GetSession returns the current session state.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.session.State()))
}

// SignIn exchanges email and password for a stored credential.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if missing := missingFields(req); len(missing) > 0 {
		verr := &model.ValidationError{Fields: missing}
		writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Error: verr.Error(), Fields: verr.Fields})
		return
	}

	err := h.session.SignIn(r.Context(), req.Email, req.Password)
	if err == nil {
		writeJSON(w, http.StatusCreated, toSessionResponse(h.session.State()))
		return
	}

	var (
		valErr     *model.ValidationError
		authErr    *model.AuthError
		netErr     *model.NetworkError
		storageErr *model.StorageError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Error: valErr.Error(), Fields: valErr.Fields})
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, "auth service unreachable")
	case errors.As(err, &storageErr):
		h.logger.Error("failed to persist credential", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store credential")
	default:
		h.logger.Error("sign-in failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// SignOut clears the stored credential. The session always ends; a failed
// clear is reported as a warning.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(r.Context()); err != nil {
		resp := toSessionResponse(h.session.State())
		resp.Warning = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Verify returns the account the stored credential belongs to.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	acct, err := h.session.Verify(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, AccountResponse{ID: acct.ID, Name: acct.Name, Email: acct.Email})
		return
	}

	var (
		authErr *model.AuthError
		netErr  *model.NetworkError
	)
	switch {
	case errors.Is(err, model.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not signed in")
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, "auth service unreachable")
	default:
		h.logger.Error("verify failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// GetPermission returns the recorded camera permission.
func (h *Handler) GetPermission(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PermissionResponse{
		State:   string(h.permission.CurrentState()),
		CanScan: h.permission.CanScan(),
	})
}

// RequestPermission asks the camera subsystem for access again.
func (h *Handler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	state, err := h.permission.Request(r.Context())
	if err != nil {
		h.logger.Error("camera access request failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "camera unavailable")
		return
	}

	writeJSON(w, http.StatusOK, PermissionResponse{
		State:   string(state),
		CanScan: state == model.PermissionGranted,
	})
}

// SubmitScan offers one decoded QR payload to the scanner.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Payload) == "" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	dec, err := h.scanner.Submit(r.Context(), model.ScanEvent{Payload: req.Payload, ObservedAt: time.Now()})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not running")
		return
	}

	if dec.Accepted {
		writeJSON(w, http.StatusAccepted, ScanResponse{Accepted: true, ScanID: dec.ScanID})
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{Accepted: false, Reason: string(dec.Reason)})
}

// Rearm ends the scanner cooldown immediately.
func (h *Handler) Rearm(w http.ResponseWriter, r *http.Request) {
	st, err := h.scanner.Rearm(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not running")
		return
	}

	writeJSON(w, http.StatusOK, toScannerResponse(st))
}

// Health returns a status snapshot.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	st := h.status.Status()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339),
		Session:    string(st.Session),
		Permission: string(st.Permission),
		Scanner:    toScannerResponse(st.Scanner),
		Mode:       string(st.Mode),
		Ready:      h.status.Ready(),
	})
}

// Outcomes upgrades to a websocket that streams settled outcomes.
func (h *Handler) Outcomes(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome stream disabled")
		return
	}
	h.hub.ServeHTTP(w, r)
}

func missingFields(req SignInRequest) map[string][]string {
	missing := make(map[string][]string)
	if req.Email == "" {
		missing["email"] = []string{"required"}
	}
	if req.Password == "" {
		missing["password"] = []string{"required"}
	}
	return missing
}

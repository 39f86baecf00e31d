package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/qrsignin/internal/adapter/driving/http"
	"github.com/ericfisherdev/qrsignin/internal/application"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// --- Mock implementations ---

type mockStore struct {
	mu       sync.Mutex
	cred     model.Credential
	clearErr error
}

func (m *mockStore) Get(_ context.Context) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *mockStore) Set(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	return nil
}

func (m *mockStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cred = ""
	return nil
}

type mockAuth struct {
	cred     model.Credential
	loginErr error
	account  *model.Account
	userErr  error
}

func (m *mockAuth) Login(_ context.Context, _ model.LoginRequest) (model.Credential, error) {
	return m.cred, m.loginErr
}

func (m *mockAuth) CurrentUser(_ context.Context, _ model.Credential) (*model.Account, error) {
	return m.account, m.userErr
}

type mockDispatcher struct {
	release chan struct{}
}

func (m *mockDispatcher) Dispatch(ctx context.Context, _ model.Credential, scan model.ScanSession) model.AuthOutcome {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
		}
	}
	out := model.Success("ok")
	out.ScanID = scan.ID
	out.Status = http.StatusOK
	return out
}

type mockCamera struct {
	state model.PermissionState
	err   error
}

func (m *mockCamera) RequestAccess(_ context.Context) (model.PermissionState, error) {
	return m.state, m.err
}

type testEnv struct {
	mux     http.Handler
	store   *mockStore
	session *application.SessionController
	hub     *httphandler.OutcomeHub
}

type envOptions struct {
	cred       model.Credential
	auth       *mockAuth
	camera     *mockCamera
	dispatcher *mockDispatcher
	clearErr   error
}

// setupMux wires real application services over mocks and starts the scan loop.
func setupMux(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	if opts.auth == nil {
		opts.auth = &mockAuth{}
	}
	if opts.camera == nil {
		opts.camera = &mockCamera{state: model.PermissionGranted}
	}
	if opts.dispatcher == nil {
		opts.dispatcher = &mockDispatcher{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &mockStore{cred: opts.cred, clearErr: opts.clearErr}
	session := application.NewSessionController(store, opts.auth, "test")
	require.NoError(t, session.Load(ctx))

	permission := application.NewPermissionGate(opts.camera)
	_, _ = permission.Request(ctx)

	bus := EventBus.New()
	scanner := application.NewScanService(session, permission, opts.dispatcher, application.NewScanDebouncer(time.Minute), bus)
	status := application.NewStatusService(session, permission, scanner, model.ConfirmModeFixed)

	hub := httphandler.NewOutcomeHub(slog.Default())
	require.NoError(t, hub.Subscribe(bus))

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h := httphandler.NewHandler(session, permission, scanner, status, hub, slog.Default())
	return &testEnv{
		mux:     httphandler.NewServeMux(h, slog.Default()),
		store:   store,
		session: session,
		hub:     hub,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1"})

	rec := env.do(http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.HealthResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Time)
	assert.Equal(t, "authenticated", resp.Session)
	assert.Equal(t, "granted", resp.Permission)
	assert.Equal(t, "idle", resp.Scanner.State)
	assert.Equal(t, "fixed", resp.Mode)
	assert.True(t, resp.Ready)
}

func TestGetSession(t *testing.T) {
	env := setupMux(t, envOptions{})

	rec := env.do(http.MethodGet, "/api/v1/session", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.SessionResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "unauthenticated", resp.State)
	assert.False(t, resp.Authenticated)
}

func TestSignIn(t *testing.T) {
	tests := []struct {
		name       string
		auth       *mockAuth
		body       string
		wantStatus int
		wantError  string
		wantFields map[string][]string
	}{
		{
			name:       "success",
			auth:       &mockAuth{cred: "tok_123"},
			body:       `{"email":"a@b.com","password":"pw"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "server validation error",
			auth:       &mockAuth{loginErr: &model.ValidationError{Fields: map[string][]string{"email": {"invalid"}}}},
			body:       `{"email":"a@b.com","password":"pw"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "email : invalid",
			wantFields: map[string][]string{"email": {"invalid"}},
		},
		{
			name:       "missing fields",
			auth:       &mockAuth{cred: "tok_123"},
			body:       `{"email":"  "}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "email : required\npassword : required",
			wantFields: map[string][]string{"email": {"required"}, "password": {"required"}},
		},
		{
			name:       "auth error",
			auth:       &mockAuth{loginErr: &model.AuthError{Status: http.StatusUnauthorized, Message: "bad credentials"}},
			body:       `{"email":"a@b.com","password":"pw"}`,
			wantStatus: http.StatusUnauthorized,
			wantError:  "bad credentials",
		},
		{
			name:       "network error",
			auth:       &mockAuth{loginErr: &model.NetworkError{Err: errors.New("refused")}},
			body:       `{"email":"a@b.com","password":"pw"}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "auth service unreachable",
		},
		{
			name:       "invalid body",
			auth:       &mockAuth{},
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupMux(t, envOptions{auth: tc.auth})

			rec := env.do(http.MethodPost, "/api/v1/session", tc.body)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusCreated {
				var resp httphandler.SessionResponse
				decodeJSON(t, rec, &resp)
				assert.True(t, resp.Authenticated)
				assert.Equal(t, model.Credential("tok_123"), env.store.cred)
				return
			}

			var resp httphandler.ValidationErrorResponse
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tc.wantError, resp.Error)
			assert.Equal(t, tc.wantFields, resp.Fields)
			assert.Equal(t, model.SessionUnauthenticated, env.session.State())
		})
	}
}

func TestSignOut(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1"})

	rec := env.do(http.MethodDelete, "/api/v1/session", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, model.SessionUnauthenticated, env.session.State())
	assert.True(t, env.store.cred.IsZero())
}

func TestSignOut_ClearFailureIsWarning(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1", clearErr: errors.New("locked")})

	rec := env.do(http.MethodDelete, "/api/v1/session", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.SessionResponse
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Authenticated)
	assert.Contains(t, resp.Warning, "locked")
	assert.Equal(t, model.SessionUnauthenticated, env.session.State())
}

func TestVerify(t *testing.T) {
	t.Run("signed in", func(t *testing.T) {
		env := setupMux(t, envOptions{
			cred: "tok_1",
			auth: &mockAuth{account: &model.Account{ID: 3, Name: "Ada", Email: "a@b.com"}},
		})

		rec := env.do(http.MethodGet, "/api/v1/session/verify", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp httphandler.AccountResponse
		decodeJSON(t, rec, &resp)
		assert.Equal(t, httphandler.AccountResponse{ID: 3, Name: "Ada", Email: "a@b.com"}, resp)
	})

	t.Run("signed out", func(t *testing.T) {
		env := setupMux(t, envOptions{})

		rec := env.do(http.MethodGet, "/api/v1/session/verify", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked", func(t *testing.T) {
		env := setupMux(t, envOptions{
			cred: "tok_1",
			auth: &mockAuth{userErr: &model.AuthError{Status: http.StatusUnauthorized, Message: "Unauthenticated."}},
		})

		rec := env.do(http.MethodGet, "/api/v1/session/verify", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, model.SessionUnauthenticated, env.session.State())
	})
}

func TestPermission(t *testing.T) {
	camera := &mockCamera{state: model.PermissionDenied}
	env := setupMux(t, envOptions{camera: camera})

	rec := env.do(http.MethodGet, "/api/v1/permission", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.PermissionResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "denied", resp.State)
	assert.False(t, resp.CanScan)

	camera.state = model.PermissionGranted
	rec = env.do(http.MethodPost, "/api/v1/permission", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "granted", resp.State)
	assert.True(t, resp.CanScan)
}

func TestPermission_RequestFailure(t *testing.T) {
	camera := &mockCamera{state: model.PermissionGranted}
	env := setupMux(t, envOptions{camera: camera})

	camera.err = errors.New("no such device")
	rec := env.do(http.MethodPost, "/api/v1/permission", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitScan(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1", dispatcher: &mockDispatcher{release: make(chan struct{})}})

	rec := env.do(http.MethodPost, "/api/v1/scans", `{"payload":"https://svc/signin"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp httphandler.ScanResponse
	decodeJSON(t, rec, &resp)
	assert.True(t, resp.Accepted)
	assert.NotEmpty(t, resp.ScanID)

	rec = env.do(http.MethodPost, "/api/v1/scans", `{"payload":"https://svc/signin"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = httphandler.ScanResponse{}
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "dispatch_in_flight", resp.Reason)
}

func TestSubmitScan_NotAuthenticated(t *testing.T) {
	env := setupMux(t, envOptions{})

	rec := env.do(http.MethodPost, "/api/v1/scans", `{"payload":"x"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.ScanResponse
	decodeJSON(t, rec, &resp)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "not_authenticated", resp.Reason)
}

func TestSubmitScan_EmptyPayload(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1"})

	rec := env.do(http.MethodPost, "/api/v1/scans", `{"payload":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRearm(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1"})

	rec := env.do(http.MethodPost, "/api/v1/scans/rearm", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.ScannerResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "idle", resp.State)
}

func TestCrossOriginRejected(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1"})

	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8765/api/v1/scans", strings.NewReader(`{"payload":"x"}`))
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8765/api/v1/session", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "reads are not guarded")
}

func TestOutcomeStream(t *testing.T) {
	env := setupMux(t, envOptions{cred: "tok_1"})
	server := httptest.NewServer(env.mux)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/outcomes/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(server.URL+"/api/v1/scans", "application/json", strings.NewReader(`{"payload":"x"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg httphandler.StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "outcome", msg.Type)
	require.NotNil(t, msg.Outcome)
	assert.Equal(t, "success", msg.Outcome.Kind)
	assert.Equal(t, "ok", msg.Outcome.Message)
	assert.Equal(t, http.StatusOK, msg.Outcome.Status)
}

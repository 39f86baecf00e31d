package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// maxBodyBytes caps how much of any response body is read.
const maxBodyBytes = 1 << 20

// Compile-time interface satisfaction check.
var _ driven.AuthService = (*Client)(nil)

// Client implements the driven.AuthService port against the auth service REST API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client for the given base URL (e.g. http://localhost:8000/api).
func NewClient(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL: %q is not absolute", baseURL)
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

type loginPayload struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

// Login posts the credentials to /login. A successful response body is the
// raw credential string, not JSON.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.Credential, error) {
	payload, err := json.Marshal(loginPayload{
		Email:      req.Email,
		Password:   req.Password,
		DeviceName: req.DeviceName,
	})
	if err != nil {
		return "", fmt.Errorf("encode login payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &model.NetworkError{Err: fmt.Errorf("read login response: %w", err)}
	}

	slog.Debug("auth service call", "endpoint", "/login", "status", resp.StatusCode)

	if isSuccess(resp.StatusCode) {
		cred := model.Credential(strings.TrimSpace(string(body)))
		if cred.IsZero() {
			return "", &model.AuthError{Status: resp.StatusCode, Message: "auth service returned an empty credential"}
		}
		return cred, nil
	}

	return "", decodeAuthFailure(resp.StatusCode, body)
}

type accountBody struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CurrentUser fetches /user with the credential as bearer token.
func (c *Client) CurrentUser(ctx context.Context, cred model.Credential) (*model.Account, error) {
	if cred.IsZero() {
		return nil, model.ErrEmptyCredential
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	setBearer(httpReq, cred)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &model.NetworkError{Err: fmt.Errorf("read user response: %w", err)}
	}

	slog.Debug("auth service call", "endpoint", "/user", "status", resp.StatusCode)

	if !isSuccess(resp.StatusCode) {
		return nil, decodeAuthFailure(resp.StatusCode, body)
	}

	var acct accountBody
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, &model.NetworkError{Err: fmt.Errorf("decode user response: %w", err)}
	}

	return &model.Account{ID: acct.ID, Name: acct.Name, Email: acct.Email}, nil
}

// decodeAuthFailure maps a non-success auth service response to a
// *model.ValidationError or *model.AuthError.
func decodeAuthFailure(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return &model.AuthError{Status: status, Message: fmt.Sprintf("%s (HTTP %d)", defaultLoginError, status)}
	}

	if len(eb.Errors) > 0 {
		fields := make(map[string][]string, len(eb.Errors))
		for field, msgs := range eb.Errors {
			cleaned := make([]string, 0, len(msgs))
			for _, m := range msgs {
				cleaned = append(cleaned, cleanMessage(m))
			}
			fields[field] = cleaned
		}
		return &model.ValidationError{Fields: fields}
	}

	msg := cleanMessage(eb.Message)
	if msg == "" {
		msg = defaultLoginError
	}
	return &model.AuthError{Status: status, Message: msg}
}

func setBearer(req *http.Request, cred model.Credential) {
	req.Header.Set("Authorization", "Bearer "+string(cred))
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// AnyHost in the allowlist accepts every dynamic target host.
const AnyHost = "*"

// Compile-time interface satisfaction check.
var _ driven.Dispatcher = (*Dispatcher)(nil)

// Dispatcher sends the sign-in confirmation for an accepted scan. In fixed mode
// every confirmation goes to one configured endpoint; in dynamic mode the
// target is the URL decoded from the scanned code, restricted to an allowlist
// of hosts so the credential is never sent anywhere else.
type Dispatcher struct {
	http         *http.Client
	mode         model.ConfirmMode
	fixedURL     string
	allowedHosts []string
	now          func() time.Time
}

// NewDispatcher creates a Dispatcher. fixedURL is required in fixed mode;
// allowedHosts is consulted only in dynamic mode.
func NewDispatcher(httpClient *http.Client, mode model.ConfirmMode, fixedURL string, allowedHosts []string) (*Dispatcher, error) {
	switch mode {
	case model.ConfirmModeFixed:
		if _, err := parseTarget(fixedURL); err != nil {
			return nil, fmt.Errorf("fixed confirmation URL: %w", err)
		}
	case model.ConfirmModeDynamic:
		if len(allowedHosts) == 0 {
			return nil, fmt.Errorf("dynamic mode requires at least one allowed host")
		}
	default:
		return nil, fmt.Errorf("unknown confirmation mode %q", mode)
	}

	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts = append(hosts, strings.ToLower(h))
	}

	return &Dispatcher{
		http:         httpClient,
		mode:         mode,
		fixedURL:     fixedURL,
		allowedHosts: hosts,
		now:          time.Now,
	}, nil
}

// Mode returns the configured confirmation mode.
func (d *Dispatcher) Mode() model.ConfirmMode {
	return d.mode
}

// Dispatch issues exactly one POST carrying the credential as a bearer token
// and folds the response into an AuthOutcome.
func (d *Dispatcher) Dispatch(ctx context.Context, cred model.Credential, scan model.ScanSession) model.AuthOutcome {
	outcome := d.dispatch(ctx, cred, scan)
	outcome.ScanID = scan.ID
	outcome.SettledAt = d.now()
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, cred model.Credential, scan model.ScanSession) model.AuthOutcome {
	if cred.IsZero() {
		return model.NetworkFailure("request not sent: credential is empty")
	}

	target, err := d.resolveTarget(scan.Payload)
	if err != nil {
		out := model.NetworkFailure("request not sent: " + err.Error())
		out.Target = scan.Payload
		return out
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, http.NoBody)
	if err != nil {
		out := model.NetworkFailure("request not sent: " + err.Error())
		out.Target = target
		return out
	}
	setBearer(req, cred)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if scan.ID != "" {
		req.Header.Set("X-Request-Id", scan.ID)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		out := model.NetworkFailure(err.Error())
		out.Target = target
		return out
	}
	defer resp.Body.Close()

	out := interpretConfirmation(resp)
	out.Target = target

	slog.Debug("confirmation dispatched",
		"scan_id", scan.ID,
		"target", target,
		"status", resp.StatusCode,
		"outcome", out.Kind,
	)

	return out
}

// interpretConfirmation maps the confirmation response: 2xx with a JSON body is
// Success, non-2xx with a JSON body is Rejected, anything unreadable is a
// NetworkFailure.
func interpretConfirmation(resp *http.Response) model.AuthOutcome {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.NetworkFailure(fmt.Sprintf("read response: %v", err))
	}

	var mb messageBody
	if err := json.Unmarshal(body, &mb); err != nil {
		return model.NetworkFailure(fmt.Sprintf("malformed response (HTTP %d)", resp.StatusCode))
	}

	var msg string
	if mb.Message != nil {
		msg = cleanMessage(*mb.Message)
	}

	var out model.AuthOutcome
	if isSuccess(resp.StatusCode) {
		out = model.Success(msg)
	} else {
		if msg == "" {
			msg = defaultScanError
		}
		out = model.Rejected(msg)
	}
	out.Status = resp.StatusCode
	return out
}

func (d *Dispatcher) resolveTarget(payload string) (string, error) {
	if d.mode == model.ConfirmModeFixed {
		return d.fixedURL, nil
	}

	u, err := parseTarget(strings.TrimSpace(payload))
	if err != nil {
		return "", err
	}
	if !d.hostAllowed(u.Hostname()) {
		return "", fmt.Errorf("host %q is not allowed", u.Hostname())
	}
	return u.String(), nil
}

func (d *Dispatcher) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, h := range d.allowedHosts {
		if h == AnyHost || h == host {
			return true
		}
	}
	return false
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q: expected http(s)://host", raw)
	}
	return u, nil
}

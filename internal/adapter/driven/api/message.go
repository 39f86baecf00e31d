package api

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Fallback messages when the server gives none.
const (
	defaultLoginError = "login failed"
	defaultScanError  = "scan failed"
)

var textPolicy = bluemonday.StrictPolicy()

// cleanMessage strips markup from a server-provided message so it can be shown
// as plain text, and collapses surrounding whitespace.
func cleanMessage(msg string) string {
	if msg == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(msg)))
}

// messageBody is the {message} response shape shared by both services.
type messageBody struct {
	Message *string `json:"message"`
}

// errorBody is the failure shape of the auth service: either 422-style
// field errors or a single message.
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

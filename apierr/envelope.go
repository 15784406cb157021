package apierr

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const maxPlainMessage = 256

// Envelope is the JSON error body returned by the auth backend:
//
//	{"error":{"code":"invalid_credentials","message":"invalid credentials"}}
type Envelope struct {
	Error EnvelopeError `json:"error"`
}

// EnvelopeError is the inner object of Envelope.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseEnvelope extracts code and message from a response body. Bodies that are not
// an envelope are returned as the message, trimmed and capped.
func ParseEnvelope(body []byte) (code, message string) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Code != "" || env.Error.Message != "") {
		return env.Error.Code, env.Error.Message
	}
	text := strings.TrimSpace(string(body))
	return "", truncate(text, maxPlainMessage)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

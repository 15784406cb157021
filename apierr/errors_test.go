package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusBadRequest, KindValidation},
		{http.StatusForbidden, KindValidation},
		{http.StatusTooManyRequests, KindValidation},
		{http.StatusInternalServerError, KindServer},
		{http.StatusServiceUnavailable, KindServer},
		{http.StatusFound, KindServer},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.want, KindForStatus(tc.status))
		})
	}
}

func TestSentinelsMatchByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", FromStatus("me", http.StatusUnauthorized, "token_invalid", ""))

	assert.True(t, IsAuthentication(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsServer(err))
	assert.Equal(t, KindAuthentication, KindOf(err))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "me", apiErr.Op)
	assert.Equal(t, "token_invalid", apiErr.Code)
	assert.Equal(t, "unauthorized", apiErr.Message)
}

func TestNetworkUnwrapsCause(t *testing.T) {
	err := Network("login", context.DeadlineExceeded)

	assert.True(t, IsNetwork(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "login: network")
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestParseEnvelope(t *testing.T) {
	code, msg := ParseEnvelope([]byte(`{"error":{"code":"weak_password","message":"password too short"}}`))
	assert.Equal(t, "weak_password", code)
	assert.Equal(t, "password too short", msg)

	code, msg = ParseEnvelope([]byte("  upstream exploded \n"))
	assert.Empty(t, code)
	assert.Equal(t, "upstream exploded", msg)
}

func TestParseEnvelopeCapsPlainBodyOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", 255) + "é" + "tail"
	_, msg := ParseEnvelope([]byte(body))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, strings.Repeat("a", 255), msg)

	_, msg = ParseEnvelope([]byte(strings.Repeat("ü", 200)))
	assert.True(t, utf8.ValidString(msg))
	assert.Len(t, msg, 256)
}

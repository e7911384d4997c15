package channel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorKey(t *testing.T) {
	cases := []struct {
		name    string
		code    string
		message string
		want    string
	}{
		{"simple", "500", "internal error", "500:internal_error"},
		{"punctuation stripped", "400", "bad request: (missing field!)", "400:bad_request_missing_field!"},
		{"collapses whitespace", "429", "too   many\n\trequests", "429:too_many_requests"},
		{"empty message", "TIMEOUT", "", "TIMEOUT:"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sanitizeErrorKey(tc.code, tc.message)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSanitizeErrorKeyTruncates(t *testing.T) {
	longMessage := strings.Repeat("a", 500)
	got := sanitizeErrorKey("CODE", longMessage)
	assert.LessOrEqual(t, len(got), maxErrorKeyLen)
}

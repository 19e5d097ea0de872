package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeAPIKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"too short", "abc123", ""},
		{"placeholder template", "your-api-key-here", ""},
		{"placeholder underscore", "YOUR_API_KEY", ""},
		{"changeme", "changeme-please", ""},
		{"angle brackets", "<api-key>", ""},
		{"valid key", "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "a1b2c3d4-e5f6-7890-abcd-ef1234567890"},
		{"valid key trimmed", "  a1b2c3d4e5f67890  ", "a1b2c3d4e5f67890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeAPIKey(tt.in))
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Max429)
	assert.NotEmpty(t, cfg.RPCUrl)
	assert.NotZero(t, cfg.DebounceInterval)
	assert.NotZero(t, cfg.SweepInterval)
}

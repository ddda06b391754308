package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostPort(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{"cache:6380", "cache", 6380},
		{"10.0.0.2:6379", "10.0.0.2", 6379},
		{"cache:notaport", "cache", 6379},
		{"garbage", "localhost", 6379},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port := hostPort(tt.addr)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestAddressFromEnv(t *testing.T) {
	t.Setenv("CACHE_HOST", "dragonfly")
	t.Setenv("CACHE_PORT", "6390")
	assert.Equal(t, "dragonfly:6390", address())
}

package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedAccessors(t *testing.T) {
	Env = map[string]string{
		"WORKERS":      "4",
		"BAD_WORKERS":  "four",
		"TIMEOUT":      "90s",
		"TIMEOUT_SECS": "15",
		"BAD_TIMEOUT":  "soon",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 4, GetEnvInt("WORKERS", 2))
	assert.Equal(t, 2, GetEnvInt("BAD_WORKERS", 2))
	assert.Equal(t, 7, GetEnvInt("MISSING_WORKERS", 7))

	assert.Equal(t, 90*time.Second, GetEnvDuration("TIMEOUT", time.Minute))
	assert.Equal(t, 15*time.Second, GetEnvDuration("TIMEOUT_SECS", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("BAD_TIMEOUT", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("MISSING_TIMEOUT", time.Minute))
}

func TestIsDev(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	t.Cleanup(func() { Env = nil })
	assert.True(t, IsDev())

	Env["APP_ENV"] = "prod"
	assert.False(t, IsDev())
}

package cmd

import (
	"github.com/macadamia-hq/macadamia/pkg/rungate"
)

// NewRunGate returns a Redis-backed gate when a Redis URL is configured, and
// a process-local gate otherwise.
func NewRunGate(redisURL string) (rungate.Gate, error) {
	if redisURL == "" {
		return rungate.NewMemoryGate(), nil
	}

	return rungate.NewRedisGate(redisURL)
}

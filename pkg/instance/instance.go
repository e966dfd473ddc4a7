package instance

import (
	"os"

	"github.com/angelmondragon/rifa-backend/pkg/env"
)

// GetID identifies the running process in logs. It prefers RIFA_INSTANCE_ID,
// then the platform's dyno name, then the hostname.
func GetID(fallback string) string {
	if id := env.Get("RIFA_INSTANCE_ID", env.Get("DYNO", "")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}

// Package instance names the running process so lock owners and log lines
// can be traced back to a replica.
package instance

import (
	"os"

	"github.com/promptability/Website-sub002/pkg/env"
)

const fallbackID = "api-0"

// ID prefers PROMPTABILITY_INSTANCE_ID, then the hostname.
func ID() string {
	if id := env.Get("PROMPTABILITY_INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}

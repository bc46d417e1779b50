package env

import (
	"os"
	"strings"
)

// Prefix namespaces the service's own variables.
const Prefix = "MISSIONS_"

// Get returns MISSIONS_<key> when set, then the bare key, then fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

package instance

import "os"

// GetID returns the worker instance identifier, falling back to the host name.
func GetID() string {
	if id := os.Getenv("STUDIOPASS_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}

package config

import (
	"os"
	"sync"
)

var (
	inContainerOnce sync.Once
	inContainer     bool
)

// IsRunningInDocker reports whether the process runs inside a container.
// QG_IN_CONTAINER=true forces detection on for runtimes without /.dockerenv.
func IsRunningInDocker() bool {
	inContainerOnce.Do(func() {
		if os.Getenv("QG_IN_CONTAINER") == "true" {
			inContainer = true
			return
		}
		_, err := os.Stat("/.dockerenv")
		inContainer = err == nil
	})
	return inContainer
}

// ResolveHostForDocker maps loopback datasource hosts to the container host gateway.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}

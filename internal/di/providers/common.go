package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second
)

// Version is the build version, stamped via
// -ldflags "-X github.com/aloudapp/aloud-server/internal/di/providers.Version=v1.2.3".
var Version = "dev"

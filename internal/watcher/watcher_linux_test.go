//go:build linux

package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinuxBackendLifecycle(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	b, err := newLinuxBackend(testWatcherLogger(), opts)
	require.NoError(t, err)

	assert.NotNil(t, b.Events())
	assert.NotNil(t, b.Errors())

	require.NoError(t, b.Stop())
	assert.NoError(t, b.Stop(), "second stop is a no-op")
}

func TestLinuxBackendWatchMissingPath(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	b, err := newLinuxBackend(testWatcherLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Stop() })

	assert.Error(t, b.Watch("/does/not/exist"))
}

package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startWatch runs the watcher bridge until the test ends.
func startWatch(t *testing.T, env *testEnv) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.scanner.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watch did not stop")
		}
	})

	// Give the backend a moment to register its watches.
	time.Sleep(100 * time.Millisecond)
}

func TestScanner_Watch_AddsDroppedFile(t *testing.T) {
	env := setupTestScanner(t, Options{Debounce: 200 * time.Millisecond})
	startWatch(t, env)

	path := writeBook(t, env.root, "arrival.txt", "A book falls out of the sky.")

	require.Eventually(t, func() bool {
		_, err := env.store.GetBookByPath(context.Background(), path)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		count, err := env.store.CountBooks(context.Background())
		return err == nil && count == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScanner_Watch_RenameKeepsRecord(t *testing.T) {
	env := setupTestScanner(t, Options{Debounce: 200 * time.Millisecond})
	path := writeBook(t, env.root, "original.txt", "Identity lives in the content, not the name.")

	_, err := env.scanner.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)
	book, err := env.store.GetBookByPath(context.Background(), path)
	require.NoError(t, err)

	startWatch(t, env)

	newPath := filepath.Join(env.root, "renamed.txt")
	require.NoError(t, os.Rename(path, newPath))

	require.Eventually(t, func() bool {
		b, err := env.store.GetBook(context.Background(), book.ID)
		return err == nil && b.Path == newPath
	}, 5*time.Second, 50*time.Millisecond)

	count, err := env.store.CountBooks(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestScanner_Watch_IgnoresUnsupportedFiles(t *testing.T) {
	env := setupTestScanner(t, Options{Debounce: 200 * time.Millisecond})
	startWatch(t, env)

	writeBook(t, env.root, "trace.log", "chatter, not literature")
	path := writeBook(t, env.root, "real.txt", "An actual book among the noise.")

	require.Eventually(t, func() bool {
		_, err := env.store.GetBookByPath(context.Background(), path)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	count, err := env.store.CountBooks(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

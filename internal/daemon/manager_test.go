// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewManagerRequiresAPIHandler(t *testing.T) {
	_, err := NewManager(ServerConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestManagerStartAndGracefulStop(t *testing.T) {
	m, err := NewManager(ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
	}, okHandler(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManagerRunsHooksInReverseOrder(t *testing.T) {
	m, err := NewManager(ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
	}, okHandler(), nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	hook := func(name string) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.RegisterShutdownHook("first", hook("first"))
	m.RegisterShutdownHook("second", hook("second"))
	m.RegisterShutdownHook("third", hook("third"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManagerCollectsHookErrors(t *testing.T) {
	m, err := NewManager(ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
	}, okHandler(), nil)
	require.NoError(t, err)

	hookErr := errors.New("store close failed")
	m.RegisterShutdownHook("store", func(context.Context) error { return hookErr })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err = <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, hookErr)
}

func TestShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(ServerConfig{ListenAddr: "127.0.0.1:0"}, okHandler(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestShutdownIsIdempotent(t *testing.T) {
	m, err := NewManager(ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
	}, okHandler(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// Start already ran a full shutdown; another call is a no-op.
	assert.NoError(t, m.Shutdown(context.Background()))
}

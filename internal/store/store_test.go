// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &SessionRecord{
		SessionID: "sess-1",
		DeviceID:  "14442C10D13EABCE00",
		State:     "running",
		Streams:   []string{"rgb", "depth"},
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutSession(ctx, rec))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec.DeviceID, got.DeviceID)
	assert.Equal(t, "running", got.State)

	updated, err := s.UpdateSession(ctx, "sess-1", func(r *SessionRecord) error {
		r.State = "closed"
		r.EndedAt = time.Now().UTC()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "closed", updated.State)

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "closed", list[0].State)

	require.NoError(t, s.DeleteSession(ctx, "sess-1"))
	_, err = s.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting again stays quiet.
	assert.NoError(t, s.DeleteSession(ctx, "sess-1"))
}

func TestSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.UpdateSession(ctx, "nope", func(*SessionRecord) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLeaseExclusivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const device = "14442C10D13EABCE00"

	lease, err := s.AcquireLease(ctx, device, "host-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "host-a", lease.Owner)

	// Second owner is locked out.
	_, err = s.AcquireLease(ctx, device, "host-b", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// Same owner re-acquires (TTL refresh).
	_, err = s.AcquireLease(ctx, device, "host-a", time.Minute)
	assert.NoError(t, err)

	// Renewal by holder works, by stranger fails.
	_, err = s.RenewLease(ctx, device, "host-a", time.Minute)
	assert.NoError(t, err)
	_, err = s.RenewLease(ctx, device, "host-b", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// Release by stranger keeps the lease, release by holder frees it.
	require.NoError(t, s.ReleaseLease(ctx, device, "host-b"))
	_, err = s.AcquireLease(ctx, device, "host-b", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, s.ReleaseLease(ctx, device, "host-a"))
	_, err = s.AcquireLease(ctx, device, "host-b", time.Minute)
	assert.NoError(t, err)
}

func TestRenewMissingLease(t *testing.T) {
	s := openTestStore(t)
	_, err := s.RenewLease(context.Background(), "dev", "host-a", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestDistinctDevicesIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AcquireLease(ctx, "dev-1", "host-a", time.Minute)
	require.NoError(t, err)
	_, err = s.AcquireLease(ctx, "dev-2", "host-b", time.Minute)
	assert.NoError(t, err)
}

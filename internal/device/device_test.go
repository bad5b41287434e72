// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/device/sim"
	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/graph"
	"github.com/oakgate/oakgate/internal/store"
	"github.com/oakgate/oakgate/internal/xlink"
)

func testPipeline(t *testing.T) *graph.Pipeline {
	t.Helper()
	p := graph.New()

	cam := p.CreateColorCamera()
	cam.SetPreviewSize(300, 300)
	rgbOut := p.CreateXLinkOut()
	rgbOut.SetStreamName("rgb")
	rgbOut.SetFPSLimit(100)
	require.NoError(t, cam.Preview().Link(rgbOut.Input()))

	return p
}

func startSim(t *testing.T, opts sim.Options) *sim.Server {
	t.Helper()
	srv, err := sim.Listen("127.0.0.1:0", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestNormalizeHost(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "192.168.1.50", want: "192.168.1.50"},
		{in: " OAK-Device.local. ", want: "oak-device.local"},
		{in: "[::1]", want: "::1"},
		{in: "http://host", wantErr: true},
		{in: "host/path", wantErr: true},
		{in: "user@host", wantErr: true},
		{in: "host:9876", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeHost(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestHostPolicy(t *testing.T) {
	p, err := NewHostPolicy([]string{"192.168.1.50", "oak.lab"})
	require.NoError(t, err)

	addr, err := p.Check("192.168.1.50:9876")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50:9876", addr)

	_, err = p.Check("192.168.1.51:9876")
	assert.ErrorIs(t, err, ErrHostNotAllowed)

	// Empty allowlist permits any host.
	open, err := NewHostPolicy(nil)
	require.NoError(t, err)
	_, err = open.Check("10.0.0.1:9876")
	assert.NoError(t, err)
}

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	boom := errors.New("boom")

	require.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, BreakerClosed, cb.State())
	require.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, BreakerOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 20*time.Millisecond)
	boom := errors.New("boom")

	require.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, BreakerOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	require.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestClientSessionAgainstSimulator(t *testing.T) {
	srv := startSim(t, sim.Options{MxID: "SIMCLIENT01", FPS: 100})

	client, err := NewClient(ClientOptions{Addr: srv.Addr(), QueueSize: 16})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer func() { _ = client.Close() }()
	assert.Equal(t, "SIMCLIENT01", client.Info().MxID)

	require.NoError(t, client.Upload(ctx, testPipeline(t)))

	blob, err := client.CalibGet(ctx)
	require.NoError(t, err)
	data, err := calib.Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, "OAK-D-SIM", data.BoardName)

	require.NoError(t, client.Start(ctx))

	runCtx, stopRun := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(runCtx) }()

	q, ok := client.Queue("rgb")
	require.True(t, ok)
	msg, err := q.Get(ctx)
	require.NoError(t, err)
	img, ok := msg.(*frame.ImgFrame)
	require.True(t, ok)
	assert.Equal(t, frame.TypeBGR888, img.Type)
	assert.Equal(t, 300, img.Width)

	stopRun()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestUploadAppliesQueueBounds(t *testing.T) {
	srv := startSim(t, sim.Options{MxID: "SIMBOUNDS01", FPS: 200})

	client, err := NewClient(ClientOptions{Addr: srv.Addr(), QueueSize: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer func() { _ = client.Close() }()
	require.NoError(t, client.Upload(ctx, testPipeline(t)))
	require.NoError(t, client.Start(ctx))

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(runCtx) }()

	q, ok := client.Queue("rgb")
	require.True(t, ok)

	// Nothing consumes the queue; the non-blocking default drops oldest
	// instead of growing past the configured bound.
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, q.Len(), 2)

	stopRun()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestClientRejectsWrongDeviceID(t *testing.T) {
	srv := startSim(t, sim.Options{MxID: "SIMACTUAL"})

	client, err := NewClient(ClientOptions{Addr: srv.Addr(), ExpectedID: "SIMEXPECTED"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, client.Connect(ctx), ErrDeviceMismatch)
}

func TestClientHostPolicyBlocksDial(t *testing.T) {
	client, err := NewClient(ClientOptions{
		Addr:         "127.0.0.1:9876",
		AllowedHosts: []string{"10.0.0.1"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, client.Connect(ctx), ErrHostNotAllowed)
}

// silentDevice completes the hello exchange, then swallows every packet.
func silentDevice(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		conn := xlink.NewConn(nc)
		defer func() { _ = conn.Close() }()

		ctx := context.Background()
		hello, err := xlink.Control(xlink.VerbHello, xlink.Hello{
			MxID: "SILENT", ProtocolVersion: xlink.ProtocolVersion,
		})
		if err != nil {
			return
		}
		if err := conn.WritePacket(ctx, hello); err != nil {
			return
		}
		for {
			if _, err := conn.ReadPacket(ctx); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestWatchdogExpiresOnSilentDevice(t *testing.T) {
	addr := silentDevice(t)

	client, err := NewClient(ClientOptions{
		Addr:             addr,
		WatchdogInterval: 20 * time.Millisecond,
		WatchdogMisses:   2,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	defer func() { _ = client.Close() }()

	err = client.Run(ctx)
	assert.ErrorIs(t, err, ErrWatchdogExpired)
}

func TestSupervisorReachesRunningAndShutsDown(t *testing.T) {
	srv := startSim(t, sim.Options{MxID: "SIMSUPER01", FPS: 100})

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	events := make(chan Event, 32)
	sup := NewSupervisor(SupervisorOptions{
		Client:        ClientOptions{Addr: srv.Addr()},
		BuildPipeline: func() (*graph.Pipeline, error) { return testPipeline(t), nil },
		ReconnectMin:  10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
		LeaseTTL:      time.Second,
	}, st)
	sup.RegisterListener(events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return sup.State() == StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	info, ok := sup.Info()
	require.True(t, ok)
	assert.Equal(t, "SIMSUPER01", info.MxID)

	// A second instance sharing the store cannot attach the same device.
	_, err = st.AcquireLease(context.Background(), srv.Addr(), "other-owner", time.Second)
	assert.ErrorIs(t, err, store.ErrLeaseHeld)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Equal(t, StateClosed, sup.State())

	sawRunning := false
	for {
		select {
		case ev := <-events:
			if ev.State == StateRunning {
				sawRunning = true
			}
		default:
			assert.True(t, sawRunning, "expected a running lifecycle event")
			return
		}
	}
}

func TestSupervisorSessionRecordsPersist(t *testing.T) {
	srv := startSim(t, sim.Options{FPS: 100})

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	sup := NewSupervisor(SupervisorOptions{
		Client:        ClientOptions{Addr: srv.Addr()},
		BuildPipeline: func() (*graph.Pipeline, error) { return testPipeline(t), nil },
		ReconnectMin:  10 * time.Millisecond,
		LeaseTTL:      time.Second,
	}, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return sup.State() == StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, []string{"rgb"}, sessions[0].Streams)
	assert.Equal(t, string(StateClosed), sessions[0].State)
	assert.False(t, sessions[0].EndedAt.IsZero())
}

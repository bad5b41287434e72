// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/oakgate/oakgate/internal/graph"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/metrics"
	"github.com/oakgate/oakgate/internal/store"
)

// State is a device session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateUploading  State = "uploading"
	StateRunning    State = "running"
	StateDraining   State = "draining"
	StateClosed     State = "closed"
	StateFailed     State = "failed"
)

// Event is a lifecycle notification published to registered listeners.
type Event struct {
	Device string
	State  State
	At     time.Time
	Err    error
}

// SupervisorOptions configures session supervision.
type SupervisorOptions struct {
	Client ClientOptions

	// BuildPipeline produces the pipeline for each new session, so config
	// reloads take effect on reconnect.
	BuildPipeline func() (*graph.Pipeline, error)

	// OnSession runs after streaming starts, before the session is declared
	// running. Used to fetch calibration and hand queues to the pump.
	OnSession func(ctx context.Context, c *Client) error

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	LeaseTTL     time.Duration

	BreakerThreshold int
	BreakerReset     time.Duration
}

// Supervisor owns the device lifecycle: it acquires the device lease, runs
// connect/upload/start/run cycles, and reconnects with bounded backoff until
// its context is canceled.
type Supervisor struct {
	opts    SupervisorOptions
	store   *store.Store
	owner   string
	breaker *CircuitBreaker
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu        sync.RWMutex
	state     State
	sessionID string
	client    *Client
	lastErr   error
	listeners []chan<- Event
}

// NewSupervisor wires a supervisor. The store guards device exclusivity via
// leases; owner identity is minted per process.
func NewSupervisor(opts SupervisorOptions, st *store.Store) *Supervisor {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 15 * time.Second
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = opts.ReconnectMax
	}
	return &Supervisor{
		opts:    opts,
		store:   st,
		owner:   uuid.NewString(),
		breaker: NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerReset),
		limiter: rate.NewLimiter(rate.Every(opts.ReconnectMin), 1),
		logger:  oaklog.WithComponent("supervisor"),
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the most recent session failure, if any.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Client returns the live session client, or nil outside a running session.
func (s *Supervisor) Client() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Info returns the attached device info, valid while a session is running.
func (s *Supervisor) Info() (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return Info{}, false
	}
	return s.client.Info(), true
}

// RegisterListener adds a lifecycle event channel. Sends are non-blocking.
func (s *Supervisor) RegisterListener(ch chan<- Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, ch)
}

func (s *Supervisor) deviceKey() string {
	if s.opts.Client.ExpectedID != "" {
		return s.opts.Client.ExpectedID
	}
	return s.opts.Client.Addr
}

func (s *Supervisor) setState(st State, err error) {
	s.mu.Lock()
	s.state = st
	if err != nil {
		s.lastErr = err
	}
	listeners := s.listeners
	s.mu.Unlock()

	metrics.SetDeviceSessionState(s.deviceKey(), string(st))
	ev := Event{Device: s.deviceKey(), State: st, At: time.Now(), Err: err}
	for _, ch := range listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Run supervises sessions until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.opts.ReconnectMin

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			s.setState(StateClosed, nil)
			return nil
		}

		err := s.runSession(ctx)
		if ctx.Err() != nil {
			s.setState(StateClosed, nil)
			return nil
		}

		s.setState(StateFailed, err)
		s.logger.Warn().
			Err(err).
			Str("event", "device.session_failed").
			Dur("backoff", backoff).
			Msg("session ended, reconnecting")

		select {
		case <-ctx.Done():
			s.setState(StateClosed, nil)
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.opts.ReconnectMax)
		if err == nil {
			backoff = s.opts.ReconnectMin
		}
	}
}

func (s *Supervisor) runSession(ctx context.Context) error {
	device := s.deviceKey()

	if _, err := s.store.AcquireLease(ctx, device, s.owner, s.opts.LeaseTTL); err != nil {
		return fmt.Errorf("device: lease: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = s.store.ReleaseLease(releaseCtx, device, s.owner)
	}()

	client, err := NewClient(s.opts.Client)
	if err != nil {
		return err
	}

	s.setState(StateConnecting, nil)
	if err := s.breaker.Execute(func() error { return client.Connect(ctx) }); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessionID = sessionID
	s.client = client
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.client = nil
		s.mu.Unlock()
	}()

	rec := &store.SessionRecord{
		SessionID: sessionID,
		DeviceID:  client.Info().MxID,
		State:     string(StateUploading),
		StartedAt: time.Now(),
	}

	s.setState(StateUploading, nil)
	pipeline, err := s.opts.BuildPipeline()
	if err != nil {
		return fmt.Errorf("device: build pipeline: %w", err)
	}
	if err := client.Upload(ctx, pipeline); err != nil {
		return err
	}

	streams := pipeline.Streams()
	rec.Streams = make([]string, 0, len(streams))
	for _, st := range streams {
		rec.Streams = append(rec.Streams, st.Name)
	}

	if err := client.Start(ctx); err != nil {
		return err
	}

	if s.opts.OnSession != nil {
		if err := s.opts.OnSession(ctx, client); err != nil {
			return fmt.Errorf("device: session hook: %w", err)
		}
	}

	rec.State = string(StateRunning)
	if err := s.store.PutSession(ctx, rec); err != nil {
		return fmt.Errorf("device: session record: %w", err)
	}

	s.setState(StateRunning, nil)
	s.logger.Info().
		Str("event", "device.session_running").
		Str("sessionId", sessionID).
		Str("mxId", client.Info().MxID).
		Strs("streams", rec.Streams).
		Msg("device session running")

	runErr := s.runWithLease(ctx, client, device)

	s.setState(StateDraining, nil)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	_ = client.Stop(stopCtx)
	cancel()

	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_, _ = s.store.UpdateSession(endCtx, sessionID, func(r *store.SessionRecord) error {
		r.State = string(StateClosed)
		r.EndedAt = time.Now()
		if runErr != nil {
			r.State = string(StateFailed)
			r.LastError = runErr.Error()
		}
		return nil
	})

	return runErr
}

// runWithLease runs the client session and keeps the device lease fresh.
func (s *Supervisor) runWithLease(ctx context.Context, client *Client, device string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	renewErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(s.opts.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.store.RenewLease(runCtx, device, s.owner, s.opts.LeaseTTL); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					select {
					case renewErr <- fmt.Errorf("device: lease renewal: %w", err):
					default:
					}
					cancel()
					return
				}
			}
		}
	}()

	err := client.Run(runCtx)
	select {
	case lerr := <-renewErr:
		return lerr
	default:
	}
	return err
}

// SPDX-License-Identifier: MIT

// Package api serves the daemon's HTTP surface: status, device control,
// pipeline inspection, detections, calibration, recordings and the MJPEG
// stream endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	mw "github.com/oakgate/oakgate/internal/api/middleware"
	"github.com/oakgate/oakgate/internal/cache"
	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/device"
	"github.com/oakgate/oakgate/internal/graph"
	"github.com/oakgate/oakgate/internal/health"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/pump"
	"github.com/oakgate/oakgate/internal/record"
	"github.com/oakgate/oakgate/internal/store"
)

// DeviceController is the surface the handlers use to inspect and steer the
// device session. Implemented by the daemon app around the supervisor.
type DeviceController interface {
	State() string
	LastError() error
	Info() (device.Info, bool)
	Client() *device.Client
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Options wires the server to the daemon's components. Nil fields disable
// the endpoints that need them.
type Options struct {
	Version string
	Holder  *config.Holder

	Device        DeviceController
	Pump          *pump.Pump
	Store         *store.Store
	Cache         cache.Cache
	CalibStore    *calib.Store
	Recorder      *record.Recorder
	Catalog       *record.Catalog
	Health        *health.Manager
	BuildPipeline func(config.AppConfig) (*graph.Pipeline, error)
}

// Server is the HTTP API server.
type Server struct {
	opts      Options
	logger    zerolog.Logger
	startTime time.Time
	snapshots cache.Snapshots
}

func NewServer(opts Options) *Server {
	return &Server{
		opts:      opts,
		logger:    oaklog.WithComponent("api"),
		startTime: time.Now(),
		snapshots: cache.Snapshots{Cache: opts.Cache},
	}
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(otelhttp.NewMiddleware("oakgate-api",
		otelhttp.WithFilter(func(req *http.Request) bool {
			// Probes and long-lived stream requests stay out of traces.
			p := req.URL.Path
			return p != "/healthz" && p != "/readyz" && !strings.HasPrefix(p, "/streams")
		}),
	))

	if s.opts.Health != nil {
		r.Get("/healthz", s.opts.Health.ServeHealth)
		r.Get("/readyz", s.opts.Health.ServeReady)
	}

	cfg := s.config()
	r.Route("/api", func(r chi.Router) {
		r.Use(mw.RateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
		r.Use(s.requireAuth)

		r.Get("/status", s.handleStatus)

		r.Get("/devices", s.handleListDevices)
		r.Post("/devices/{id}/connect", s.handleDeviceConnect)
		r.Post("/devices/{id}/disconnect", s.handleDeviceDisconnect)

		r.Get("/pipeline", s.handleGetPipeline)
		r.Post("/pipeline/validate", s.handleValidatePipeline)

		r.Get("/detections", s.handleDetections)

		r.Get("/calibration", s.handleGetCalibration)
		r.Put("/calibration", s.handlePutCalibration)

		r.Get("/recordings", s.handleListRecordings)
		r.Post("/recordings", s.handleStartRecording)
		r.Delete("/recordings/{id}", s.handleDeleteRecording)
		r.Post("/recordings/{id}/stop", s.handleStopRecording)
		r.Get("/recordings/{id}/download", s.handleDownloadRecording)
	})

	r.Route("/streams", func(r chi.Router) {
		r.Get("/", s.handleListStreams)
		r.Get("/{name}/mjpeg", s.handleMJPEG)
		r.Get("/{name}/snapshot", s.handleSnapshot)
	})

	return r
}

func (s *Server) config() config.AppConfig {
	if s.opts.Holder != nil {
		return s.opts.Holder.Get()
	}
	return config.AppConfig{}
}

// requireAuth enforces the bearer token when one is configured. The token
// is read per request so reloads take effect without restart.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.config().API.Token
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			s.logger.Warn().
				Str("event", "api.auth_failed").
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("rejected request with missing or invalid token")
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

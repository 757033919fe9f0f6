// Package devserver is an in-memory stand-in for the barbershop backend.
// It speaks the same wire contract as the real API (login, token refresh,
// my-shops, availability, booking create, payments) and lets tests inject
// expired tokens, suspended tenants, conflicts and transport failures.
package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/shopbook/internal/metrics"
)

// Issuer is the iss claim on access tokens
const Issuer = "shopbook-devserver"

// Config for the dev server
type Config struct {
	JWTSecret  string
	TokenTTL   time.Duration // access token lifetime
	RefreshTTL time.Duration
}

// Fault replaces the next response on a path
type Fault struct {
	Status int
	Body   any
	Delay  time.Duration // sleep before answering; longer than the client timeout simulates a dead network
}

// Server is the dev backend
type Server struct {
	cfg     Config
	data    *store
	refresh *RefreshStore

	faultMu sync.Mutex
	faults  map[string][]Fault // key: path relative to /api
}

// New creates a server loaded with Seed data
func New(cfg Config) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 5 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}

	s := &Server{
		cfg:     cfg,
		data:    newStore(),
		refresh: NewRefreshStore(cfg.RefreshTTL),
		faults:  make(map[string][]Fault),
	}
	seed(s.data)
	return s
}

// Routes returns the HTTP handler. API routes live under /api.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlationLogger)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.injectFaults)

		r.Post("/customers/login", s.Login)
		r.Post("/auth/token/refresh/", s.RefreshToken)
		r.Get("/booking/availability", s.Availability)

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			// my-shops is tenant independent so an expired active shop
			// cannot block listing the others
			r.Get("/barbershops/my-shops/", s.MyShops)

			r.Group(func(r chi.Router) {
				r.Use(s.TenantMiddleware)
				r.Post("/booking/create", s.CreateBooking)
				r.Post("/booking/payments", s.CreatePayment)
			})
		})
	})

	return r
}

// FailNext queues f as the response to the next request for path
// (relative to /api, e.g. "/booking/create").
func (s *Server) FailNext(path string, f Fault) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[path] = append(s.faults[path], f)
}

func (s *Server) nextFault(path string) (Fault, bool) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	q := s.faults[path]
	if len(q) == 0 {
		return Fault{}, false
	}
	f := q[0]
	if len(q) == 1 {
		delete(s.faults, path)
	} else {
		s.faults[path] = q[1:]
	}
	return f, true
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		path := r.URL.Path
		if rctx != nil && rctx.RoutePath != "" {
			path = rctx.RoutePath
		}

		f, ok := s.nextFault(path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		log.Ctx(r.Context()).Debug().Str("path", path).Int("status", f.Status).Msg("injecting fault")
		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.Status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, f.Status, f.Body)
	})
}

// SetSubscription changes a shop's subscription status
func (s *Server) SetSubscription(shopID int, status string) bool {
	return s.data.setSubscription(shopID, status)
}

// RevokeRefreshTokens invalidates every refresh token issued to userID
func (s *Server) RevokeRefreshTokens(userID string) int {
	return s.refresh.RevokeUser(userID)
}

// BookingCount returns the number of stored bookings
func (s *Server) BookingCount() int {
	return s.data.bookingCount()
}

// correlationLogger attaches a request-scoped logger keyed by the client's
// correlation id, falling back to the chi request id.
func correlationLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		w.Header().Set("X-Correlation-ID", id)

		logger := log.With().Str("correlationId", id).Str("method", r.Method).Str("path", r.URL.Path).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.DevServerRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

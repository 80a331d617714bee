package web

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/skyward-school/skyward/internal/auth"
	"github.com/skyward-school/skyward/internal/krypto"
	"github.com/skyward-school/skyward/internal/reset"
	"github.com/skyward-school/skyward/internal/web/sessions"
)

// AuthService logs users in and creates accounts.
type AuthService interface {
	Authenticate(ctx context.Context, c auth.Credentials) (auth.User, error)
	CreateTeacher(ctx context.Context, nt auth.NewTeacher) (auth.User, error)
}

// ResetService issues and redeems password reset codes.
type ResetService interface {
	RequestCode(ctx context.Context, req reset.CodeRequest) error
	VerifyAndConsume(ctx context.Context, req reset.ConfirmRequest) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	AuthService  AuthService
	ResetService ResetService
	// Registry receives the HTTP metrics and is exposed on /metrics.
	// A new registry is used when it's nil.
	Registry *prometheus.Registry
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	// CookieKeys are pairs of hash and encryption keys for the session cookie.
	CookieKeys   []krypto.Key
	SecureCookie bool
	// ResetRateLimit is the number of password reset requests a single
	// IP address can make per minute. Zero disables the limit.
	ResetRateLimit int
}

var (
	msgResetRequest = messages{success: "Code sent", missing: "Missing email", invalid: "Invalid email"}
	msgResetConfirm = messages{success: "Password updated", missing: "Missing parameters", invalid: "Invalid input"}
	msgLogin        = messages{success: "Logged in", missing: "Missing credentials", invalid: "Invalid username or password"}
	msgLogout       = messages{success: "Logged out"}
	msgTeachers     = messages{success: "Teacher created", missing: "Missing required fields", invalid: "Invalid input"}
)

type Server struct {
	deps     *ServerDeps
	mux      *http.ServeMux
	decoder  *schema.Decoder
	sessions *sessions.Store
	metrics  *metrics
	methods  map[string][]string
	handler  http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) (*Server, error) {
	sessionStore, err := sessions.NewStore(cfg.CookieKeys, cfg.SecureCookie)
	if err != nil {
		return nil, err
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:     deps,
		mux:      http.NewServeMux(),
		decoder:  decoder,
		sessions: sessionStore,
		metrics:  newMetrics(reg),
		methods:  make(map[string][]string),
	}

	// Most endpoints below are created using the map functions.
	// These return handlers that map between HTTP requests, target functions and JSON responses.
	// The request mapping and response writing is customizable.

	resetLimit := func(h http.Handler) http.Handler { return h }
	if cfg.ResetRateLimit > 0 {
		resetLimit = httprate.Limit(cfg.ResetRateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				s.handleError(w, r, msgResetRequest, reset.ErrRateLimited)
			}),
		)
	}

	// Password reset endpoints.
	{
		h := mapRequest(s, msgResetRequest, deps.ResetService.RequestCode)
		s.handle(http.MethodPost, "/api/password-resets", resetLimit(h))
	}
	{
		h := mapRequest(s, msgResetConfirm, deps.ResetService.VerifyAndConsume)
		s.handle(http.MethodPost, "/api/password-resets/confirm", resetLimit(h))
	}

	// Login endpoint.
	{
		h := mapBoth(s, msgLogin, deps.AuthService.Authenticate)
		h.response(func(r result[auth.Credentials, auth.User]) error {
			// Renewing gives the session a new identifier, an identifier
			// that was planted before login is worthless afterwards.
			err := r.sess.Renew(sessions.UserFromAuth(r.out))
			if err != nil {
				return err
			}

			err = r.s.sessions.Save(r.r, r.w, r.sess)
			if err != nil {
				return err
			}

			return writeJSON(r.w, http.StatusOK, response{
				Success: true,
				Message: r.msgs.success,
				Role:    string(r.out.Role),
				Name:    r.out.Name,
			})
		})

		s.handle(http.MethodPost, "/api/login", h)
	}

	// Logout endpoint.
	{
		h := mapRequest(s, msgLogout, func(context.Context, struct{}) error {
			return nil
		})
		h.request(func(*http.Request) (struct{}, error) {
			return struct{}{}, nil
		})
		h.response(func(r result[struct{}, struct{}]) error {
			r.sess.Clear()
			err := r.s.sessions.Save(r.r, r.w, r.sess)
			if err != nil {
				return err
			}

			return defaultResponse(r)
		})

		s.handle(http.MethodPost, "/api/logout", h)
	}

	// Current session endpoint.
	s.handle(http.MethodGet, "/api/session", http.HandlerFunc(s.currentSession))

	// Account creation endpoint.
	{
		h := mapBoth(s, msgTeachers, deps.AuthService.CreateTeacher)
		s.handle(http.MethodPost, "/api/teachers", h)
	}

	s.handle(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := writeJSON(w, http.StatusOK, response{Success: true, Message: "OK"})
		if err != nil {
			s.deps.Logger.Error("failed to write response", "url", r.URL.String(), "error", err)
		}
	}))

	s.handle(http.MethodGet, "/metrics", metricsHandler(reg))

	s.registerMethodNotAllowed()

	// Wrap the mux with global middlewares.
	middlewares := []func(http.Handler) http.Handler{
		sessionMiddleware(s),
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handle registers h for method and path.
func (s *Server) handle(method, path string, h http.Handler) {
	pattern := method + " " + path
	s.mux.Handle(pattern, s.metrics.instrument(pattern, h))
	s.methods[path] = append(s.methods[path], method)
}

// registerMethodNotAllowed registers a catch-all handler for every path,
// the mux prefers the patterns with a method when they match.
func (s *Server) registerMethodNotAllowed() {
	paths := make([]string, 0, len(s.methods))
	for path := range s.methods {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		allow := strings.Join(s.methods[path], ", ")
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Allow", allow)
			err := writeJSON(w, http.StatusMethodNotAllowed, response{Message: "Method not allowed"})
			if err != nil {
				s.deps.Logger.Error("failed to write response", "url", r.URL.String(), "error", err)
			}
		})

		s.mux.Handle(path, s.metrics.instrument(path, h))
	}
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, msgDefault, err)
		return
	}

	user, ok := sess.User()
	if !ok {
		err = writeJSON(w, http.StatusUnauthorized, response{Message: "Not logged in"})
	} else {
		err = writeJSON(w, http.StatusOK, response{
			Success:  true,
			Message:  "Logged in",
			Role:     string(user.Role),
			Name:     user.Name,
			Username: string(user.Username),
		})
	}

	if err != nil {
		s.deps.Logger.Error("failed to write response", "url", r.URL.String(), "error", err)
	}
}

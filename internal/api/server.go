package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/aqiwatch/internal/api/models"
	"github.com/smazurov/aqiwatch/internal/events"
	"github.com/smazurov/aqiwatch/internal/logging"
	"github.com/smazurov/aqiwatch/internal/supervisor"
	"github.com/smazurov/aqiwatch/internal/version"
)

// StatusProvider reports the supervisor loop state. *supervisor.Supervisor implements it.
type StatusProvider interface {
	Status() supervisor.Status
}

// Options configures the status API.
type Options struct {
	AuthUsername string
	AuthPassword string

	Status   StatusProvider      // required
	EventBus *events.Bus         // enables /api/events when set
	Logs     *logging.RingBuffer // defaults to logging.GetBuffer()

	MetricsHandler http.Handler // optional Prometheus handler served at /metrics
}

// Server is the read-only status API of the supervisor.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	status     StatusProvider
	eventBus   *events.Bus
	logs       *logging.RingBuffer
	logger     *slog.Logger
}

// NewServer creates the API server with Huma v2 on Go native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("aqiwatch API", version.String())
	config.Info.Description = "Status of the supervised AQI server"
	// Empty servers list makes OpenAPI use relative paths
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	logs := opts.Logs
	if logs == nil {
		logs = logging.GetBuffer()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		status:   opts.Status,
		eventBus: opts.EventBus,
		logs:     logs,
		logger:   logging.GetLogger("api"),
	}

	authEnabled := opts.AuthUsername != "" && opts.AuthPassword != ""
	api.UseMiddleware(HTTPLoggingMiddleware)
	if authEnabled {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.MetricsHandler != nil {
		metrics := opts.MetricsHandler
		if authEnabled {
			metrics = requireBasicAuth(opts.AuthUsername, opts.AuthPassword, metrics)
		}
		mux.Handle("GET /metrics", metrics)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds addr and serves until Stop. Bind errors are returned
// immediately; serve errors after that are logged.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Status API listening", "addr", ln.Addr().String())

	go func() {
		if serveErr := s.httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("Status API stopped", "error", serveErr)
		}
	}()
	return nil
}

// Stop closes the listener and all connections, including open event streams.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping status API")
	return s.httpServer.Close()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Report whether a server process is currently running",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // no auth
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		st := s.status.Status()
		if st.PID == 0 {
			return &models.HealthResponse{Body: models.HealthData{
				Status:  "degraded",
				Message: "No server process, supervisor is " + string(st.State),
			}}, nil
		}
		return &models.HealthResponse{Body: models.HealthData{
			Status:        "ok",
			Message:       "Server is running",
			ServerRunning: true,
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{}, // no auth
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{Body: models.VersionData{
			Version:   info.Version,
			GitCommit: info.GitCommit,
			BuildDate: info.BuildDate,
			BuildID:   info.BuildID,
			GoVersion: info.GoVersion,
			Compiler:  info.Compiler,
			Platform:  info.Platform,
		}}, nil
	})

	s.registerStatusRoutes()
	s.registerLogRoutes()
	if s.eventBus != nil {
		s.registerEventRoutes()
	}
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare security.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		// EventSource cannot set headers, so streams may pass ?auth=base64(user:pass).
		if msg := checkCredentials(ctx.Header("Authorization"), ctx.Query("auth"), username, password); msg != "" {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
			return
		}

		next(ctx)
	}
}

// requireBasicAuth guards a plain handler mounted outside huma, such as /metrics.
func requireBasicAuth(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if msg := checkCredentials(r.Header.Get("Authorization"), r.URL.Query().Get("auth"), username, password); msg != "" {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const authRealm = `Basic realm="aqiwatch"`

// checkCredentials validates a Basic Authorization header, or the base64
// query fallback when no header is sent. It returns an empty string when the
// credentials match and the rejection reason otherwise.
func checkCredentials(header, query, username, password string) string {
	encoded := query
	if header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "Invalid authentication type"
		}
		encoded = header[len(prefix):]
	}
	if encoded == "" {
		return "Authentication required"
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "Invalid credentials format"
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username))
	passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password))
	if !ok || userMatch&passMatch != 1 {
		return "Invalid credentials"
	}
	return ""
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

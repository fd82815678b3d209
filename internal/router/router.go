package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dreamlog/backend/internal/auth"
	"dreamlog/backend/internal/handlers"
	"dreamlog/backend/internal/middleware"
	"dreamlog/backend/internal/realtime"
)

type Router struct {
	api     *handlers.API
	auth    *auth.Service
	limiter *middleware.RateLimiter
	origin  string
	hub     *realtime.Hub
	logger  *zap.Logger
	metrics http.Handler
}

func New(api *handlers.API, authService *auth.Service, limiter *middleware.RateLimiter, origin string, hub *realtime.Hub, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		api:     api,
		auth:    authService,
		limiter: limiter,
		origin:  origin,
		hub:     hub,
		logger:  logger,
		metrics: promhttp.Handler(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = middleware.RequestID(w, r)
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}

	// The websocket upgrade needs the original writer for hijacking.
	if path == "/api/ws" {
		rt.serve(w, r, path)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	rt.serve(rec, r, path)
	rt.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", path),
		zap.Int("status", rec.status),
		zap.Duration("latency", time.Since(start)),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
}

func (rt *Router) serve(w http.ResponseWriter, r *http.Request, path string) {
	if middleware.HandleCORS(w, r, rt.origin) {
		return
	}
	middleware.SecurityHeaders(w)

	switch path {
	case "/healthz":
		writeStatus(w, http.StatusOK, `{"status":"ok"}`)
		return
	case "/metrics":
		rt.metrics.ServeHTTP(w, r)
		return
	case "/api/ws":
		if r.Method != http.MethodGet || rt.hub == nil {
			break
		}
		user, err := middleware.Authenticate(r, rt.auth)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
			return
		}
		realtime.ServeWS(w, r, rt.hub, user.ID)
		return
	}

	// Credentials are optional on most routes; when present they must be valid.
	var user auth.User
	loggedIn := false
	if hasCredentials(r) {
		parsed, err := middleware.Authenticate(r, rt.auth)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
			return
		}
		user, loggedIn = parsed, true
		r = r.WithContext(auth.WithUser(r.Context(), user))
	}

	if requiresAuth(path, r.Method) && !loggedIn {
		writeStatus(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
		return
	}

	if rt.limiter != nil && strings.HasPrefix(path, "/api/") {
		key := middleware.ClientKey(r)
		if loggedIn {
			key = "user:" + strconv.FormatInt(user.ID, 10)
		}
		if !rt.limiter.Allow(key) {
			writeStatus(w, http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`)
			return
		}
	}

	switch {
	case path == "/api/register":
		if r.Method == http.MethodPost {
			rt.api.Register(w, r)
			return
		}
	case path == "/api/login":
		if r.Method == http.MethodPost {
			rt.api.Login(w, r)
			return
		}
	case path == "/api/analyze":
		if r.Method == http.MethodPost {
			rt.api.Analyze(w, r)
			return
		}
	case path == "/api/backends":
		if r.Method == http.MethodGet {
			rt.api.ListBackends(w, r)
			return
		}
	case path == "/api/dreams":
		switch r.Method {
		case http.MethodGet:
			rt.api.ListDreams(w, r)
			return
		case http.MethodPost:
			rt.api.CreateDream(w, r)
			return
		}
	case strings.HasPrefix(path, "/api/dreams/"):
		segments := strings.Split(strings.TrimPrefix(path, "/api/dreams/"), "/")
		id, ok := handlers.ParseID(segments[0])
		if !ok {
			break
		}
		if len(segments) == 1 && r.Method == http.MethodDelete {
			rt.api.DeleteDream(w, r, id)
			return
		}
		if len(segments) == 2 && segments[1] == "save" && r.Method == http.MethodPost {
			rt.api.ToggleSave(w, r, id)
			return
		}
	}

	writeStatus(w, http.StatusNotFound, `{"error":"not found"}`)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func hasCredentials(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" || r.URL.Query().Get("token") != ""
}

// requiresAuth lists the routes that act on behalf of a user. Listing dreams
// checks per mode inside the handler.
func requiresAuth(path, method string) bool {
	switch {
	case path == "/api/dreams":
		return method == http.MethodPost
	case strings.HasPrefix(path, "/api/dreams/"):
		return true
	default:
		return false
	}
}

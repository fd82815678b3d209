package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dreamlog/backend/internal/auth"
	"dreamlog/backend/internal/db"
	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/llm"
	"dreamlog/backend/internal/middleware"
	"dreamlog/backend/internal/realtime"
)

var errNotFound = errors.New("not found")

type API struct {
	Store    *db.Store
	Auth     *auth.Service
	Hub      *realtime.Hub
	Engine   *dream.Engine
	Attempts *llm.Store
	Queue    *llm.Queue
	Health   *llm.HealthMonitor
	Chain    []string
	Logger   *zap.Logger
}

func NewAPI(store *db.Store, authService *auth.Service, hub *realtime.Hub, engine *dream.Engine, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{Store: store, Auth: authService, Hub: hub, Engine: engine, Logger: logger}
}

// viewerID is 0 for anonymous requests.
func viewerID(r *http.Request) int64 {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return 0
}

func (a *API) log(r *http.Request) *zap.Logger {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func ParseID(pathPart string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(pathPart), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parsePagination(r *http.Request) (int, int) {
	page := 1
	limit := 20
	if value := r.URL.Query().Get("page"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if value := r.URL.Query().Get("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return page, limit
}

func validMood(mood int) bool {
	return mood >= dream.MinMood && mood <= dream.MaxMood
}

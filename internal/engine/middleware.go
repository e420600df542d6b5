package engine

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDContextKey contextKey = "request_id"

// Middleware contains the request middleware
type Middleware struct {
	engine *Engine
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(engine *Engine) *Middleware {
	return &Middleware{
		engine: engine,
	}
}

// RequestIDMiddleware tags every request with an identifier and logs the
// request once it completes.
func (m *Middleware) RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey, requestID))

		start := time.Now()
		next.ServeHTTP(w, r)
		m.engine.logger.Debugf("%s %s [%s] took %s", r.Method, r.URL.Path, requestID, time.Since(start))
	})
}

// AuthenticationMiddleware verifies the bearer token against the stored
// auth token of the user addressed by the route. User creation and the
// health endpoint are open.
func (m *Middleware) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkipAuth(r) {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			m.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
			return
		}

		token := m.extractBearerToken(r)
		if token == "" {
			m.engine.writeErrorResponse(w, http.StatusUnauthorized, "Authorization token is required", "")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		user, err := m.engine.userService.Get(ctx, userID)
		if err != nil {
			m.engine.writeErrorResponse(w, http.StatusUnauthorized, "Authentication failed", "Unknown user")
			return
		}
		if user.AuthToken != token {
			m.engine.writeErrorResponse(w, http.StatusUnauthorized, "Authentication failed", "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) shouldSkipAuth(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		return true
	}
	if strings.TrimRight(r.URL.Path, "/") == "/api/v1/users" && r.Method == http.MethodPost {
		return true
	}
	return false
}

func (m *Middleware) extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// pathUserID extracts and parses the user_id path variable
func pathUserID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["user_id"]
	return strconv.ParseInt(raw, 10, 64)
}

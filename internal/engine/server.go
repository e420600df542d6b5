package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server routes HTTP requests to the resource handlers
type Server struct {
	engine             *Engine
	router             *mux.Router
	userHandler        *UserHandlers
	environmentHandler *EnvironmentHandlers
	tableHandler       *TableHandlers
	recordHandler      *RecordHandlers
	middleware         *Middleware
}

// NewServer creates the router and wires the handlers
func NewServer(engine *Engine) *Server {
	s := &Server{
		engine:             engine,
		router:             mux.NewRouter(),
		userHandler:        NewUserHandlers(engine),
		environmentHandler: NewEnvironmentHandlers(engine),
		tableHandler:       NewTableHandlers(engine),
		recordHandler:      NewRecordHandlers(engine),
		middleware:         NewMiddleware(engine),
	}
	s.setupRoutes()
	s.setupMiddleware()
	return s
}

func (s *Server) setupMiddleware() {
	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.Use(s.middleware.RequestIDMiddleware)
	s.router.Use(s.middleware.AuthenticationMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// User endpoints
	users := api.PathPrefix("/users").Subrouter()
	users.HandleFunc("", s.userHandler.AddUser).Methods(http.MethodPost)
	users.HandleFunc("/{user_id}", s.userHandler.ShowUser).Methods(http.MethodGet)
	users.HandleFunc("/{user_id}", s.userHandler.ModifyUser).Methods(http.MethodPut)
	users.HandleFunc("/{user_id}", s.userHandler.DeleteUser).Methods(http.MethodDelete)

	// Environment endpoints (nested under users)
	environments := users.PathPrefix("/{user_id}/environments").Subrouter()
	environments.HandleFunc("", s.environmentHandler.ListEnvironments).Methods(http.MethodGet)
	environments.HandleFunc("", s.environmentHandler.AddEnvironment).Methods(http.MethodPost)
	environments.HandleFunc("/count", s.environmentHandler.CountEnvironments).Methods(http.MethodGet)
	environments.HandleFunc("/{environment_name}", s.environmentHandler.ShowEnvironment).Methods(http.MethodGet)
	environments.HandleFunc("/{environment_name}", s.environmentHandler.ModifyEnvironment).Methods(http.MethodPut)
	environments.HandleFunc("/{environment_name}", s.environmentHandler.DeleteEnvironment).Methods(http.MethodDelete)

	// Table endpoints (user-level list/count, environment-level CRUD)
	users.HandleFunc("/{user_id}/tables", s.tableHandler.ListTables).Methods(http.MethodGet)
	users.HandleFunc("/{user_id}/tables/count", s.tableHandler.CountTables).Methods(http.MethodGet)

	tables := environments.PathPrefix("/{environment_name}/tables").Subrouter()
	tables.HandleFunc("", s.tableHandler.AddTable).Methods(http.MethodPost)
	tables.HandleFunc("/{table_name}", s.tableHandler.ShowTable).Methods(http.MethodGet)
	tables.HandleFunc("/{table_name}", s.tableHandler.ModifyTable).Methods(http.MethodPut)
	tables.HandleFunc("/{table_name}", s.tableHandler.DeleteTable).Methods(http.MethodDelete)

	// Record endpoints (nested under tables)
	records := tables.PathPrefix("/{table_name}/records").Subrouter()
	records.HandleFunc("", s.recordHandler.InsertRecord).Methods(http.MethodPost)
	records.HandleFunc("/search", s.recordHandler.SearchRecords).Methods(http.MethodPost)
	records.HandleFunc("", s.recordHandler.UpdateRecords).Methods(http.MethodPut)
	records.HandleFunc("", s.recordHandler.DeleteRecords).Methods(http.MethodDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "mdb",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.engine.CheckHealth(r.Context()); err != nil {
		response["status"] = "unhealthy"
		response["error"] = err.Error()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

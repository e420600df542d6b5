// Package engine hosts the REST surface: route setup, request
// middleware, and the handlers that translate HTTP requests into
// service calls.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/metadata"
	"github.com/mdbco/mdb/internal/record"
	"github.com/mdbco/mdb/internal/schema"
	"github.com/mdbco/mdb/internal/services/environment"
	"github.com/mdbco/mdb/internal/services/table"
	"github.com/mdbco/mdb/internal/services/user"
	"github.com/mdbco/mdb/pkg/config"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

// Engine wires the services together and runs the HTTP server
type Engine struct {
	config             *config.Config
	server             *http.Server
	db                 *database.PostgreSQL
	store              *metadata.Store
	schemaEngine       *schema.Engine
	userService        *user.Service
	environmentService *environment.Service
	tableService       *table.Service
	logger             *logger.Logger
	state              struct {
		sync.Mutex
		isRunning         bool
		ongoingOperations int32
	}
	metrics struct {
		requestsProcessed int64
		errors            int64
	}
}

// NewEngine creates the engine and its service graph
func NewEngine(cfg *config.Config, db *database.PostgreSQL, log *logger.Logger) *Engine {
	store := metadata.NewStore(db, log)
	schemaEngine := schema.NewEngine(db, store, log)
	validator := record.NewValidator(store)

	return &Engine{
		config:             cfg,
		db:                 db,
		store:              store,
		schemaEngine:       schemaEngine,
		userService:        user.NewService(db, store, schemaEngine, log),
		environmentService: environment.NewService(db, schemaEngine, log),
		tableService:       table.NewService(db, store, schemaEngine, validator, log),
		logger:             log,
	}
}

// Start ensures the metadata schema exists and starts the HTTP server
func (e *Engine) Start(ctx context.Context) error {
	e.state.Lock()
	if e.state.isRunning {
		e.state.Unlock()
		return errors.Errorf("engine is already running")
	}
	e.state.isRunning = true
	e.state.Unlock()

	if err := e.store.EnsureSchema(ctx); err != nil {
		return errors.Trace(err)
	}

	host := e.config.GetDefault("server.host", "")
	port := e.config.GetInt("server.port", 8080)

	e.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: NewServer(e),
	}

	e.logger.Infof("Starting HTTP server on %s", e.server.Addr)

	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Errorf("HTTP server error: %v", err)
			atomic.AddInt64(&e.metrics.errors, 1)
		}
	}()

	return nil
}

// Stop shuts the HTTP server down gracefully
func (e *Engine) Stop(ctx context.Context) error {
	e.state.Lock()
	if !e.state.isRunning {
		e.state.Unlock()
		return nil
	}
	e.state.isRunning = false
	e.state.Unlock()

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// CheckHealth reports whether the engine is running and can reach the store
func (e *Engine) CheckHealth(ctx context.Context) error {
	e.state.Lock()
	running := e.state.isRunning
	e.state.Unlock()

	if !running {
		return errors.Errorf("service not running")
	}
	return e.db.Pool().Ping(ctx)
}

// GetMetrics returns request counters
func (e *Engine) GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests_processed": atomic.LoadInt64(&e.metrics.requestsProcessed),
		"errors":             atomic.LoadInt64(&e.metrics.errors),
	}
}

func (e *Engine) TrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, 1)
	atomic.AddInt64(&e.metrics.requestsProcessed, 1)
}

func (e *Engine) UntrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, -1)
}

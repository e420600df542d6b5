package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mdbco/mdb/internal/services/environment"
)

// EnvironmentHandlers contains the environment endpoint handlers
type EnvironmentHandlers struct {
	engine *Engine
}

// NewEnvironmentHandlers creates a new instance of EnvironmentHandlers
func NewEnvironmentHandlers(engine *Engine) *EnvironmentHandlers {
	return &EnvironmentHandlers{
		engine: engine,
	}
}

func environmentResponse(env *environment.Environment) EnvironmentResponse {
	return EnvironmentResponse{
		OwnerID:                env.OwnerID,
		EnvironmentName:        env.Name,
		EnvironmentDescription: env.Description,
		Tables:                 env.Tables,
	}
}

// ListEnvironments handles GET /api/v1/users/{user_id}/environments
func (eh *EnvironmentHandlers) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	eh.engine.TrackOperation()
	defer eh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	environments, err := eh.engine.environmentService.List(ctx, userID)
	if err != nil {
		eh.engine.handleServiceError(w, err, "Failed to list environments")
		return
	}

	response := ListEnvironmentsResponse{Environments: make([]EnvironmentResponse, len(environments))}
	for i, env := range environments {
		response.Environments[i] = environmentResponse(env)
	}
	eh.engine.writeJSONResponse(w, http.StatusOK, response)
}

// AddEnvironment handles POST /api/v1/users/{user_id}/environments
func (eh *EnvironmentHandlers) AddEnvironment(w http.ResponseWriter, r *http.Request) {
	eh.engine.TrackOperation()
	defer eh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	var req CreateEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	env, err := eh.engine.environmentService.Create(ctx, userID, req.EnvironmentName, req.EnvironmentDescription)
	if err != nil {
		eh.engine.handleServiceError(w, err, "Failed to create environment")
		return
	}

	eh.engine.writeJSONResponse(w, http.StatusCreated, environmentResponse(env))
}

// CountEnvironments handles GET /api/v1/users/{user_id}/environments/count
func (eh *EnvironmentHandlers) CountEnvironments(w http.ResponseWriter, r *http.Request) {
	eh.engine.TrackOperation()
	defer eh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	count, err := eh.engine.environmentService.Count(ctx, userID)
	if err != nil {
		eh.engine.handleServiceError(w, err, "Failed to count environments")
		return
	}

	eh.engine.writeJSONResponse(w, http.StatusOK, CountResponse{Count: count})
}

// ShowEnvironment handles GET /api/v1/users/{user_id}/environments/{environment_name}
func (eh *EnvironmentHandlers) ShowEnvironment(w http.ResponseWriter, r *http.Request) {
	eh.engine.TrackOperation()
	defer eh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	environmentName := mux.Vars(r)["environment_name"]

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	env, err := eh.engine.environmentService.Get(ctx, userID, environmentName)
	if err != nil {
		eh.engine.handleServiceError(w, err, "Failed to get environment")
		return
	}

	eh.engine.writeJSONResponse(w, http.StatusOK, environmentResponse(env))
}

// ModifyEnvironment handles PUT /api/v1/users/{user_id}/environments/{environment_name}
func (eh *EnvironmentHandlers) ModifyEnvironment(w http.ResponseWriter, r *http.Request) {
	eh.engine.TrackOperation()
	defer eh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	environmentName := mux.Vars(r)["environment_name"]

	var req ModifyEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	// Renames cascade through every owned table
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	env, err := eh.engine.environmentService.Update(ctx, userID, environmentName, req.NewEnvironmentName, req.EnvironmentDescription)
	if err != nil {
		eh.engine.handleServiceError(w, err, "Failed to update environment")
		return
	}

	eh.engine.writeJSONResponse(w, http.StatusOK, environmentResponse(env))
}

// DeleteEnvironment handles DELETE /api/v1/users/{user_id}/environments/{environment_name}
func (eh *EnvironmentHandlers) DeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	eh.engine.TrackOperation()
	defer eh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		eh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	environmentName := mux.Vars(r)["environment_name"]

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := eh.engine.environmentService.Delete(ctx, userID, environmentName); err != nil {
		eh.engine.handleServiceError(w, err, "Failed to delete environment")
		return
	}

	eh.engine.writeJSONResponse(w, http.StatusOK, map[string]Status{"status": StatusDeleted})
}

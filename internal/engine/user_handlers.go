package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// UserHandlers contains the user endpoint handlers
type UserHandlers struct {
	engine *Engine
}

// NewUserHandlers creates a new instance of UserHandlers
func NewUserHandlers(engine *Engine) *UserHandlers {
	return &UserHandlers{
		engine: engine,
	}
}

// AddUser handles POST /api/v1/users
func (uh *UserHandlers) AddUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()
	defer uh.engine.UntrackOperation()

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		uh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		uh.engine.writeErrorResponse(w, http.StatusBadRequest, "username and password are required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	user, err := uh.engine.userService.Create(ctx, req.Username, req.Password, req.Email)
	if err != nil {
		uh.engine.handleServiceError(w, err, "Failed to create user")
		return
	}

	uh.engine.writeJSONResponse(w, http.StatusCreated, UserResponse{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		AuthToken: user.AuthToken,
	})
}

// ShowUser handles GET /api/v1/users/{user_id}
func (uh *UserHandlers) ShowUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()
	defer uh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		uh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	user, err := uh.engine.userService.Get(ctx, userID)
	if err != nil {
		uh.engine.handleServiceError(w, err, "Failed to get user")
		return
	}

	uh.engine.writeJSONResponse(w, http.StatusOK, UserResponse{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// ModifyUser handles PUT /api/v1/users/{user_id}
func (uh *UserHandlers) ModifyUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()
	defer uh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		uh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	var req ModifyUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		uh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	user, err := uh.engine.userService.Update(ctx, userID, req.Username, req.Password, req.Email)
	if err != nil {
		uh.engine.handleServiceError(w, err, "Failed to update user")
		return
	}

	uh.engine.writeJSONResponse(w, http.StatusOK, UserResponse{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// DeleteUser handles DELETE /api/v1/users/{user_id}
func (uh *UserHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	uh.engine.TrackOperation()
	defer uh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		uh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := uh.engine.userService.Delete(ctx, userID); err != nil {
		uh.engine.handleServiceError(w, err, "Failed to delete user")
		return
	}

	uh.engine.writeJSONResponse(w, http.StatusOK, map[string]Status{"status": StatusDeleted})
}

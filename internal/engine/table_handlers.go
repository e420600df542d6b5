package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mdbco/mdb/internal/metadata"
	"github.com/mdbco/mdb/internal/schema"
)

// TableHandlers contains the table endpoint handlers
type TableHandlers struct {
	engine *Engine
}

// NewTableHandlers creates a new instance of TableHandlers
func NewTableHandlers(engine *Engine) *TableHandlers {
	return &TableHandlers{
		engine: engine,
	}
}

func tableResponse(d *metadata.TableDescriptor) TableResponse {
	return TableResponse{
		TableID:         d.TableID,
		OwnerID:         d.OwnerID,
		EnvironmentName: d.EnvironmentName,
		TableName:       d.TableName,
		Description:     d.Description,
		Fields:          d.Fields,
	}
}

// ListTables handles GET /api/v1/users/{user_id}/tables
func (th *TableHandlers) ListTables(w http.ResponseWriter, r *http.Request) {
	th.engine.TrackOperation()
	defer th.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	descriptors, err := th.engine.tableService.List(ctx, userID)
	if err != nil {
		th.engine.handleServiceError(w, err, "Failed to list tables")
		return
	}

	response := ListTablesResponse{Tables: make([]TableResponse, len(descriptors))}
	for i, d := range descriptors {
		response.Tables[i] = tableResponse(d)
	}
	th.engine.writeJSONResponse(w, http.StatusOK, response)
}

// CountTables handles GET /api/v1/users/{user_id}/tables/count
func (th *TableHandlers) CountTables(w http.ResponseWriter, r *http.Request) {
	th.engine.TrackOperation()
	defer th.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	count, err := th.engine.tableService.Count(ctx, userID)
	if err != nil {
		th.engine.handleServiceError(w, err, "Failed to count tables")
		return
	}

	th.engine.writeJSONResponse(w, http.StatusOK, CountResponse{Count: count})
}

// AddTable handles POST /api/v1/users/{user_id}/environments/{environment_name}/tables
func (th *TableHandlers) AddTable(w http.ResponseWriter, r *http.Request) {
	th.engine.TrackOperation()
	defer th.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	environmentName := mux.Vars(r)["environment_name"]

	var req CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	descriptor, err := th.engine.tableService.Create(ctx, userID, environmentName, req.TableName, req.Description, req.Fields)
	if err != nil {
		th.engine.handleServiceError(w, err, "Failed to create table")
		return
	}

	th.engine.writeJSONResponse(w, http.StatusCreated, tableResponse(descriptor))
}

// ShowTable handles GET /api/v1/users/{user_id}/environments/{environment_name}/tables/{table_name}
func (th *TableHandlers) ShowTable(w http.ResponseWriter, r *http.Request) {
	th.engine.TrackOperation()
	defer th.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	descriptor, err := th.engine.tableService.Get(ctx, userID, vars["environment_name"], vars["table_name"])
	if err != nil {
		th.engine.handleServiceError(w, err, "Failed to get table")
		return
	}

	th.engine.writeJSONResponse(w, http.StatusOK, tableResponse(descriptor))
}

// ModifyTable handles PUT /api/v1/users/{user_id}/environments/{environment_name}/tables/{table_name}
func (th *TableHandlers) ModifyTable(w http.ResponseWriter, r *http.Request) {
	th.engine.TrackOperation()
	defer th.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	var req AlterTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	alterReq := schema.AlterRequest{
		Description:  req.Description,
		RemoveFields: req.RemoveFields,
		AddFields:    req.AddFields,
		NewName:      req.NewTableName,
	}
	for _, pair := range req.RenameFields {
		alterReq.RenameFields = append(alterReq.RenameFields, schema.RenamePair{From: pair.From, To: pair.To})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	descriptor, err := th.engine.tableService.Alter(ctx, userID, vars["environment_name"], vars["table_name"], alterReq)
	if err != nil {
		th.engine.handleServiceError(w, err, "Failed to alter table")
		return
	}

	th.engine.writeJSONResponse(w, http.StatusOK, tableResponse(descriptor))
}

// DeleteTable handles DELETE /api/v1/users/{user_id}/environments/{environment_name}/tables/{table_name}
func (th *TableHandlers) DeleteTable(w http.ResponseWriter, r *http.Request) {
	th.engine.TrackOperation()
	defer th.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		th.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := th.engine.tableService.Delete(ctx, userID, vars["environment_name"], vars["table_name"]); err != nil {
		th.engine.handleServiceError(w, err, "Failed to delete table")
		return
	}

	th.engine.writeJSONResponse(w, http.StatusOK, map[string]Status{"status": StatusDeleted})
}

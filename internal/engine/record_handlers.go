package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// RecordHandlers contains the record endpoint handlers
type RecordHandlers struct {
	engine *Engine
}

// NewRecordHandlers creates a new instance of RecordHandlers
func NewRecordHandlers(engine *Engine) *RecordHandlers {
	return &RecordHandlers{
		engine: engine,
	}
}

// InsertRecord handles POST .../tables/{table_name}/records
func (rh *RecordHandlers) InsertRecord(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	var req InsertRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	id, err := rh.engine.tableService.InsertRecord(ctx, userID, vars["environment_name"], vars["table_name"], req.Values)
	if err != nil {
		rh.engine.handleServiceError(w, err, "Failed to insert record")
		return
	}

	rh.engine.writeJSONResponse(w, http.StatusCreated, InsertRecordResponse{
		RecordID: id,
		Status:   StatusCreated,
	})
}

// SearchRecords handles POST .../tables/{table_name}/records/search
func (rh *RecordHandlers) SearchRecords(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	var req SearchRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	records, err := rh.engine.tableService.GetRecords(ctx, userID, vars["environment_name"], vars["table_name"], req.Filters)
	if err != nil {
		rh.engine.handleServiceError(w, err, "Failed to search records")
		return
	}
	if records == nil {
		records = []map[string]interface{}{}
	}

	rh.engine.writeJSONResponse(w, http.StatusOK, SearchRecordsResponse{Records: records})
}

// UpdateRecords handles PUT .../tables/{table_name}/records
func (rh *RecordHandlers) UpdateRecords(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	var req UpdateRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	affected, err := rh.engine.tableService.UpdateRecords(ctx, userID, vars["environment_name"], vars["table_name"], req.Filters, req.Values)
	if err != nil {
		rh.engine.handleServiceError(w, err, "Failed to update records")
		return
	}

	rh.engine.writeJSONResponse(w, http.StatusOK, AffectedResponse{
		Affected: affected,
		Status:   StatusUpdated,
	})
}

// DeleteRecords handles DELETE .../tables/{table_name}/records
func (rh *RecordHandlers) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	rh.engine.TrackOperation()
	defer rh.engine.UntrackOperation()

	userID, err := pathUserID(r)
	if err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", err.Error())
		return
	}
	vars := mux.Vars(r)

	var req SearchRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.engine.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	affected, err := rh.engine.tableService.DeleteRecords(ctx, userID, vars["environment_name"], vars["table_name"], req.Filters)
	if err != nil {
		rh.engine.handleServiceError(w, err, "Failed to delete records")
		return
	}

	rh.engine.writeJSONResponse(w, http.StatusOK, AffectedResponse{
		Affected: affected,
		Status:   StatusDeleted,
	})
}

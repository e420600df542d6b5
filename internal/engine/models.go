package engine

import (
	"github.com/mdbco/mdb/internal/fieldtype"
)

// Status represents the status of an operation
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusCreated Status = "created"
	StatusDeleted Status = "deleted"
	StatusUpdated Status = "updated"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// User models

// CreateUserRequest represents a user creation request
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// ModifyUserRequest carries the fields to change; empty values are left
// unchanged.
type ModifyUserRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UserResponse represents a user in responses. The password hash never
// leaves the service.
type UserResponse struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AuthToken string `json:"auth_token,omitempty"`
}

// Environment models

// CreateEnvironmentRequest represents an environment creation request
type CreateEnvironmentRequest struct {
	EnvironmentName        string `json:"environment_name"`
	EnvironmentDescription string `json:"environment_description,omitempty"`
}

// ModifyEnvironmentRequest carries an optional rename and description change
type ModifyEnvironmentRequest struct {
	NewEnvironmentName     string `json:"new_environment_name,omitempty"`
	EnvironmentDescription string `json:"environment_description,omitempty"`
}

// EnvironmentResponse represents an environment in responses
type EnvironmentResponse struct {
	OwnerID                int64    `json:"owner_id"`
	EnvironmentName        string   `json:"environment_name"`
	EnvironmentDescription string   `json:"environment_description"`
	Tables                 []string `json:"tables"`
}

// ListEnvironmentsResponse wraps an environment list
type ListEnvironmentsResponse struct {
	Environments []EnvironmentResponse `json:"environments"`
}

// CountResponse wraps a count
type CountResponse struct {
	Count int `json:"count"`
}

// Table models

// CreateTableRequest represents a table creation request
type CreateTableRequest struct {
	TableName   string            `json:"tablename"`
	Description string            `json:"description,omitempty"`
	Fields      []fieldtype.Field `json:"fields"`
}

// RenameFieldRequest is one field rename inside an alter request
type RenameFieldRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AlterTableRequest carries the structural changes for one alter call
type AlterTableRequest struct {
	Description  *string              `json:"description,omitempty"`
	RemoveFields []string             `json:"remove_fields,omitempty"`
	AddFields    []fieldtype.Field    `json:"add_fields,omitempty"`
	RenameFields []RenameFieldRequest `json:"rename_fields,omitempty"`
	NewTableName string               `json:"new_tablename,omitempty"`
}

// TableResponse represents a table descriptor in responses
type TableResponse struct {
	TableID         string            `json:"table_id"`
	OwnerID         int64             `json:"owner_id"`
	EnvironmentName string            `json:"environment_name"`
	TableName       string            `json:"tablename"`
	Description     string            `json:"description"`
	Fields          []fieldtype.Field `json:"fields"`
}

// ListTablesResponse wraps a table list
type ListTablesResponse struct {
	Tables []TableResponse `json:"tables"`
}

// Record models

// InsertRecordRequest carries one record's field values
type InsertRecordRequest struct {
	Values map[string]interface{} `json:"values"`
}

// InsertRecordResponse returns the assigned record identifier
type InsertRecordResponse struct {
	RecordID int64  `json:"_id"`
	Status   Status `json:"status"`
}

// SearchRecordsRequest carries equality filters; an empty map matches
// every row.
type SearchRecordsRequest struct {
	Filters map[string]interface{} `json:"filters"`
}

// SearchRecordsResponse wraps the matching rows
type SearchRecordsResponse struct {
	Records []map[string]interface{} `json:"records"`
}

// UpdateRecordsRequest carries filters and the values to apply
type UpdateRecordsRequest struct {
	Filters map[string]interface{} `json:"filters"`
	Values  map[string]interface{} `json:"values"`
}

// AffectedResponse reports how many rows an update or delete touched
type AffectedResponse struct {
	Affected int64  `json:"affected"`
	Status   Status `json:"status"`
}

// Package table exposes table-facing operations: schema changes delegate
// to the mutation engine, record operations run against the physical
// table after the validator has coerced the payload. Record filters are
// single-table equality matches.
package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/fieldtype"
	"github.com/mdbco/mdb/internal/ident"
	"github.com/mdbco/mdb/internal/metadata"
	"github.com/mdbco/mdb/internal/record"
	"github.com/mdbco/mdb/internal/schema"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

// Service handles table-related operations
type Service struct {
	db        *database.PostgreSQL
	store     *metadata.Store
	engine    *schema.Engine
	validator *record.Validator
	logger    *logger.Logger
}

// NewService creates a new table service
func NewService(db *database.PostgreSQL, store *metadata.Store, engine *schema.Engine, validator *record.Validator, logger *logger.Logger) *Service {
	return &Service{
		db:        db,
		store:     store,
		engine:    engine,
		validator: validator,
		logger:    logger,
	}
}

// Create creates a tenant table through the mutation engine
func (s *Service) Create(ctx context.Context, ownerID int64, environment, name, description string, fields []fieldtype.Field) (*metadata.TableDescriptor, error) {
	return s.engine.CreateTable(ctx, ownerID, environment, name, description, fields)
}

// Get retrieves a table descriptor by owner, environment and name
func (s *Service) Get(ctx context.Context, ownerID int64, environment, name string) (*metadata.TableDescriptor, error) {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s.store.GetDescriptor(ctx, tableID)
}

// List returns the descriptors of every table the owner has
func (s *Service) List(ctx context.Context, ownerID int64) ([]*metadata.TableDescriptor, error) {
	tableIDs, _, err := s.store.OwnerIndex(ctx, ownerID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	descriptors := make([]*metadata.TableDescriptor, 0, len(tableIDs))
	for _, tableID := range tableIDs {
		d, err := s.store.GetDescriptor(ctx, tableID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// Count returns the owner's table count from the index row
func (s *Service) Count(ctx context.Context, ownerID int64) (int, error) {
	_, count, err := s.store.OwnerIndex(ctx, ownerID)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return count, nil
}

// Alter applies schema changes to a table through the mutation engine
func (s *Service) Alter(ctx context.Context, ownerID int64, environment, name string, req schema.AlterRequest) (*metadata.TableDescriptor, error) {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s.engine.AlterTable(ctx, tableID, req)
}

// Delete removes a tenant table through the mutation engine
func (s *Service) Delete(ctx context.Context, ownerID int64, environment, name string) error {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return errors.Trace(err)
	}
	return s.engine.DeleteTable(ctx, tableID)
}

// InsertRecord validates, coerces and inserts one record, returning the
// assigned _id. Column order follows the descriptor so the statement is
// deterministic for a given schema.
func (s *Service) InsertRecord(ctx context.Context, ownerID int64, environment, name string, values map[string]interface{}) (int64, error) {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return 0, errors.Trace(err)
	}

	coerced, err := s.validator.ValidateInsert(ctx, tableID, values)
	if err != nil {
		return 0, errors.Trace(err)
	}

	fields, err := s.validator.Fields(ctx, tableID)
	if err != nil {
		return 0, errors.Trace(err)
	}

	columns := make([]string, 0, len(coerced))
	placeholders := make([]string, 0, len(coerced))
	args := make([]interface{}, 0, len(coerced))
	for _, f := range fields {
		value, ok := coerced[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, f.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, value)
	}

	var query string
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING _id", tableID)
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING _id",
			tableID, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	}

	var id int64
	if err := s.db.Pool().QueryRow(ctx, query, args...).Scan(&id); err != nil {
		s.logger.Errorf("Failed to insert record into %s: %v", tableID, err)
		return 0, errors.Annotatef(err, "inserting into table %q", name)
	}
	return id, nil
}

// GetRecords returns the rows matching the equality filters, decoded
// back into logical form. An empty filter map returns every row.
func (s *Service) GetRecords(ctx context.Context, ownerID int64, environment, name string, filters map[string]interface{}) ([]map[string]interface{}, error) {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return nil, errors.Trace(err)
	}

	fields, err := s.validator.Fields(ctx, tableID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	where, args, err := buildFilters(fields, filters, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY _id", tableID, where)
	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotatef(err, "reading table %q", name)
	}
	defer rows.Close()

	var results []map[string]interface{}
	descriptions := rows.FieldDescriptions()
	for rows.Next() {
		rowValues, err := rows.Values()
		if err != nil {
			return nil, errors.Trace(err)
		}
		row := make(map[string]interface{}, len(rowValues))
		for i, value := range rowValues {
			row[string(descriptions[i].Name)] = value
		}
		results = append(results, record.Decode(fields, row))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return results, nil
}

// UpdateRecords applies the coerced values to every row matching the
// filters and returns the number of rows changed.
func (s *Service) UpdateRecords(ctx context.Context, ownerID int64, environment, name string, filters, values map[string]interface{}) (int64, error) {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if len(values) == 0 {
		return 0, errors.NotValidf("update with no fields")
	}

	coerced, err := s.validator.ValidateUpdate(ctx, tableID, values)
	if err != nil {
		return 0, errors.Trace(err)
	}

	fields, err := s.validator.Fields(ctx, tableID)
	if err != nil {
		return 0, errors.Trace(err)
	}

	assignments := make([]string, 0, len(coerced))
	args := make([]interface{}, 0, len(coerced))
	for _, f := range fields {
		value, ok := coerced[f.Name]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", f.Name, len(args)+1))
		args = append(args, value)
	}

	where, filterArgs, err := buildFilters(fields, filters, len(args))
	if err != nil {
		return 0, errors.Trace(err)
	}
	args = append(args, filterArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", tableID, strings.Join(assignments, ", "), where)
	tag, err := s.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to update records in %s: %v", tableID, err)
		return 0, errors.Annotatef(err, "updating table %q", name)
	}
	return tag.RowsAffected(), nil
}

// DeleteRecords removes every row matching the filters and returns the
// number of rows removed.
func (s *Service) DeleteRecords(ctx context.Context, ownerID int64, environment, name string, filters map[string]interface{}) (int64, error) {
	tableID, err := s.tableID(ownerID, environment, name)
	if err != nil {
		return 0, errors.Trace(err)
	}

	fields, err := s.validator.Fields(ctx, tableID)
	if err != nil {
		return 0, errors.Trace(err)
	}

	where, args, err := buildFilters(fields, filters, 0)
	if err != nil {
		return 0, errors.Trace(err)
	}

	query := fmt.Sprintf("DELETE FROM %s%s", tableID, where)
	tag, err := s.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to delete records in %s: %v", tableID, err)
		return 0, errors.Annotatef(err, "deleting from table %q", name)
	}
	return tag.RowsAffected(), nil
}

// tableID validates both path names before folding them into the
// physical identifier. The environment name is part of the identifier,
// so it gets the same scrutiny as the table name.
func (s *Service) tableID(ownerID int64, environment, name string) (string, error) {
	if err := ident.ValidateEnvironmentName(environment); err != nil {
		return "", errors.Trace(err)
	}
	if err := ident.ValidateTableName(name); err != nil {
		return "", errors.Trace(err)
	}
	return ident.Derive(ownerID, environment, name), nil
}

// buildFilters turns an equality filter map into a WHERE clause. Filter
// names must be declared fields or the implicit _id key; values are
// type-checked through the same coercion path as writes so the stored
// representation is compared, not the logical one.
func buildFilters(fields []fieldtype.Field, filters map[string]interface{}, offset int) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	idFilter, hasID := filters[ident.ReservedFieldName]
	fieldFilters := make(map[string]interface{}, len(filters))
	for name, value := range filters {
		if name != ident.ReservedFieldName {
			fieldFilters[name] = value
		}
	}

	coerced, err := record.CoerceUpdate(fields, fieldFilters)
	if err != nil {
		return "", nil, errors.Trace(err)
	}

	clauses := make([]string, 0, len(filters))
	args := make([]interface{}, 0, len(filters))
	if hasID {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", ident.ReservedFieldName, offset+len(args)+1))
		args = append(args, idFilter)
	}
	for _, f := range fields {
		value, ok := coerced[f.Name]
		if !ok {
			continue
		}
		if value == nil {
			clauses = append(clauses, f.Name+" IS NULL")
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", f.Name, offset+len(args)+1))
		args = append(args, value)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Package metadata implements the three denormalized stores that record
// which tenant tables exist: the authoritative per-table descriptor, the
// per-owner table index, and the per-environment table index. The stores
// are independently keyed and written last-writer-wins; the schema
// mutation engine is responsible for writing all three on every change.
package metadata

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/fieldtype"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

// indexRetries bounds the version-checked read-modify-write loop on the
// serialized index lists. One retry closes the common interleaving;
// beyond that the caller gets the conflict.
const indexRetries = 2

// TableDescriptor is the authoritative schema-as-data record for one
// tenant table.
type TableDescriptor struct {
	OwnerID         int64             `json:"owner_id"`
	TableID         string            `json:"table_id"`
	EnvironmentName string            `json:"environment_name"`
	TableName       string            `json:"tablename"`
	Description     string            `json:"description"`
	Fields          []fieldtype.Field `json:"fields"`
}

// Store provides access to the metadata stores
type Store struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewStore creates a new metadata store adapter
func NewStore(db *database.PostgreSQL, logger *logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the metadata tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id SERIAL PRIMARY KEY,
			username VARCHAR(50) NOT NULL UNIQUE,
			password VARCHAR(72) NOT NULL,
			email VARCHAR(320) NOT NULL,
			auth_token VARCHAR(36) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_tables (
			user_id INTEGER PRIMARY KEY,
			table_count INTEGER NOT NULL DEFAULT 0,
			tables TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_environments (
			user_id INTEGER NOT NULL,
			environment_name VARCHAR(25) NOT NULL,
			environment_description VARCHAR(500) NOT NULL DEFAULT '',
			tables TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, environment_name)
		)`,
		`CREATE TABLE IF NOT EXISTS mdb_tables (
			table_id VARCHAR(128) PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			environment_name VARCHAR(25) NOT NULL,
			tablename VARCHAR(31) NOT NULL,
			description VARCHAR(500) NOT NULL DEFAULT '',
			fields TEXT NOT NULL DEFAULT '[]'
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Pool().Exec(ctx, stmt); err != nil {
			return errors.Annotatef(err, "creating metadata tables")
		}
	}
	return nil
}

// GetDescriptor retrieves the descriptor for a physical identifier
func (s *Store) GetDescriptor(ctx context.Context, tableID string) (*TableDescriptor, error) {
	query := `
		SELECT table_id, owner_id, environment_name, tablename, description, fields
		FROM mdb_tables
		WHERE table_id = $1
	`

	var d TableDescriptor
	var rawFields string
	err := s.db.Pool().QueryRow(ctx, query, tableID).Scan(
		&d.TableID,
		&d.OwnerID,
		&d.EnvironmentName,
		&d.TableName,
		&d.Description,
		&rawFields,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFoundf("table %q", tableID)
		}
		return nil, errors.Annotatef(err, "reading descriptor for %q", tableID)
	}

	if err := json.Unmarshal([]byte(rawFields), &d.Fields); err != nil {
		return nil, errors.Annotatef(err, "decoding fields for %q", tableID)
	}
	return &d, nil
}

// PutDescriptor writes a descriptor, replacing any existing record under
// the same identifier (last-writer-wins).
func (s *Store) PutDescriptor(ctx context.Context, d *TableDescriptor) error {
	rawFields, err := json.Marshal(d.Fields)
	if err != nil {
		return errors.Annotatef(err, "encoding fields for %q", d.TableID)
	}

	query := `
		INSERT INTO mdb_tables (table_id, owner_id, environment_name, tablename, description, fields)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (table_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			environment_name = EXCLUDED.environment_name,
			tablename = EXCLUDED.tablename,
			description = EXCLUDED.description,
			fields = EXCLUDED.fields
	`
	_, err = s.db.Pool().Exec(ctx, query, d.TableID, d.OwnerID, d.EnvironmentName, d.TableName, d.Description, string(rawFields))
	if err != nil {
		return errors.Annotatef(err, "writing descriptor for %q", d.TableID)
	}
	return nil
}

// UpdateDescriptorID rewrites a descriptor under a new identifier,
// updating the identifier-bearing columns in one statement. Used by
// table and environment renames.
func (s *Store) UpdateDescriptorID(ctx context.Context, oldID string, d *TableDescriptor) error {
	query := `
		UPDATE mdb_tables
		SET table_id = $1, environment_name = $2, tablename = $3
		WHERE table_id = $4
	`
	tag, err := s.db.Pool().Exec(ctx, query, d.TableID, d.EnvironmentName, d.TableName, oldID)
	if err != nil {
		return errors.Annotatef(err, "renaming descriptor %q", oldID)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("table %q", oldID)
	}
	return nil
}

// UpdateDescriptorFields replaces the stored field list
func (s *Store) UpdateDescriptorFields(ctx context.Context, tableID string, fields []fieldtype.Field) error {
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return errors.Annotatef(err, "encoding fields for %q", tableID)
	}

	tag, err := s.db.Pool().Exec(ctx, "UPDATE mdb_tables SET fields = $1 WHERE table_id = $2", string(rawFields), tableID)
	if err != nil {
		return errors.Annotatef(err, "updating fields for %q", tableID)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("table %q", tableID)
	}
	return nil
}

// UpdateDescriptorDescription replaces the stored description
func (s *Store) UpdateDescriptorDescription(ctx context.Context, tableID, description string) error {
	tag, err := s.db.Pool().Exec(ctx, "UPDATE mdb_tables SET description = $1 WHERE table_id = $2", description, tableID)
	if err != nil {
		return errors.Annotatef(err, "updating description for %q", tableID)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("table %q", tableID)
	}
	return nil
}

// DeleteDescriptor removes a descriptor
func (s *Store) DeleteDescriptor(ctx context.Context, tableID string) error {
	tag, err := s.db.Pool().Exec(ctx, "DELETE FROM mdb_tables WHERE table_id = $1", tableID)
	if err != nil {
		return errors.Annotatef(err, "deleting descriptor for %q", tableID)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("table %q", tableID)
	}
	return nil
}

// OwnerIndex returns the owner's table list and count
func (s *Store) OwnerIndex(ctx context.Context, ownerID int64) ([]string, int, error) {
	var raw string
	var count int
	err := s.db.Pool().QueryRow(ctx, "SELECT tables, table_count FROM user_tables WHERE user_id = $1", ownerID).Scan(&raw, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, errors.NotFoundf("user %d", ownerID)
		}
		return nil, 0, errors.Annotatef(err, "reading table index for owner %d", ownerID)
	}

	list, err := decodeList(raw)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return list, count, nil
}

// InitOwnerIndex seeds an empty table index row for a new owner
func (s *Store) InitOwnerIndex(ctx context.Context, ownerID int64) error {
	_, err := s.db.Pool().Exec(ctx,
		"INSERT INTO user_tables (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", ownerID)
	if err != nil {
		return errors.Annotatef(err, "seeding table index for owner %d", ownerID)
	}
	return nil
}

// DeleteOwnerIndex removes an owner's table index row
func (s *Store) DeleteOwnerIndex(ctx context.Context, ownerID int64) error {
	_, err := s.db.Pool().Exec(ctx, "DELETE FROM user_tables WHERE user_id = $1", ownerID)
	if err != nil {
		return errors.Annotatef(err, "deleting table index for owner %d", ownerID)
	}
	return nil
}

// AppendToOwnerIndex adds a table identifier to the owner's list
func (s *Store) AppendToOwnerIndex(ctx context.Context, ownerID int64, tableID string) error {
	return s.mutateOwnerIndex(ctx, ownerID, func(list []string) ([]string, error) {
		return appendID(list, tableID)
	})
}

// RemoveFromOwnerIndex removes a table identifier from the owner's list
func (s *Store) RemoveFromOwnerIndex(ctx context.Context, ownerID int64, tableID string) error {
	return s.mutateOwnerIndex(ctx, ownerID, func(list []string) ([]string, error) {
		return removeID(list, tableID)
	})
}

// SwapInOwnerIndex replaces an identifier in place (table rename)
func (s *Store) SwapInOwnerIndex(ctx context.Context, ownerID int64, oldID, newID string) error {
	return s.mutateOwnerIndex(ctx, ownerID, func(list []string) ([]string, error) {
		return swapID(list, oldID, newID)
	})
}

// mutateOwnerIndex applies fn to the owner's list under a version check,
// retrying once when a concurrent writer got there first.
func (s *Store) mutateOwnerIndex(ctx context.Context, ownerID int64, fn func([]string) ([]string, error)) error {
	for attempt := 0; attempt < indexRetries; attempt++ {
		var raw string
		var version int64
		err := s.db.Pool().QueryRow(ctx, "SELECT tables, version FROM user_tables WHERE user_id = $1", ownerID).Scan(&raw, &version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.NotFoundf("user %d", ownerID)
			}
			return errors.Annotatef(err, "reading table index for owner %d", ownerID)
		}

		list, err := decodeList(raw)
		if err != nil {
			return errors.Trace(err)
		}
		updated, err := fn(list)
		if err != nil {
			return errors.Trace(err)
		}
		encoded, err := encodeList(updated)
		if err != nil {
			return errors.Trace(err)
		}

		tag, err := s.db.Pool().Exec(ctx,
			"UPDATE user_tables SET tables = $1, table_count = $2, version = version + 1 WHERE user_id = $3 AND version = $4",
			encoded, len(updated), ownerID, version)
		if err != nil {
			return errors.Annotatef(err, "writing table index for owner %d", ownerID)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		s.logger.Warnf("Concurrent table index update for owner %d, retrying", ownerID)
	}
	return errors.Errorf("table index for owner %d changed concurrently", ownerID)
}

// EnvironmentExists reports whether the environment exists for the owner
func (s *Store) EnvironmentExists(ctx context.Context, ownerID int64, environment string) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM user_environments WHERE user_id = $1 AND environment_name = $2)",
		ownerID, environment).Scan(&exists)
	if err != nil {
		return false, errors.Annotatef(err, "checking environment %q", environment)
	}
	return exists, nil
}

// EnvironmentIndex returns the environment's table list
func (s *Store) EnvironmentIndex(ctx context.Context, ownerID int64, environment string) ([]string, error) {
	var raw string
	err := s.db.Pool().QueryRow(ctx,
		"SELECT tables FROM user_environments WHERE user_id = $1 AND environment_name = $2",
		ownerID, environment).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFoundf("environment %q", environment)
		}
		return nil, errors.Annotatef(err, "reading table index for environment %q", environment)
	}
	return decodeList(raw)
}

// AppendToEnvironmentIndex adds a table identifier to the environment's list
func (s *Store) AppendToEnvironmentIndex(ctx context.Context, ownerID int64, environment, tableID string) error {
	return s.mutateEnvironmentIndex(ctx, ownerID, environment, func(list []string) ([]string, error) {
		return appendID(list, tableID)
	})
}

// RemoveFromEnvironmentIndex removes a table identifier from the environment's list
func (s *Store) RemoveFromEnvironmentIndex(ctx context.Context, ownerID int64, environment, tableID string) error {
	return s.mutateEnvironmentIndex(ctx, ownerID, environment, func(list []string) ([]string, error) {
		return removeID(list, tableID)
	})
}

// SwapInEnvironmentIndex replaces an identifier in place (table rename)
func (s *Store) SwapInEnvironmentIndex(ctx context.Context, ownerID int64, environment, oldID, newID string) error {
	return s.mutateEnvironmentIndex(ctx, ownerID, environment, func(list []string) ([]string, error) {
		return swapID(list, oldID, newID)
	})
}

// ReplaceEnvironmentIndex overwrites the environment's table list under a
// new environment name. Used by the environment rename cascade, which
// rewrites every identifier in the list.
func (s *Store) ReplaceEnvironmentIndex(ctx context.Context, ownerID int64, oldName, newName string, list []string) error {
	encoded, err := encodeList(list)
	if err != nil {
		return errors.Trace(err)
	}
	tag, err := s.db.Pool().Exec(ctx,
		"UPDATE user_environments SET environment_name = $1, tables = $2, version = version + 1 WHERE user_id = $3 AND environment_name = $4",
		newName, encoded, ownerID, oldName)
	if err != nil {
		return errors.Annotatef(err, "renaming environment %q", oldName)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("environment %q", oldName)
	}
	return nil
}

func (s *Store) mutateEnvironmentIndex(ctx context.Context, ownerID int64, environment string, fn func([]string) ([]string, error)) error {
	for attempt := 0; attempt < indexRetries; attempt++ {
		var raw string
		var version int64
		err := s.db.Pool().QueryRow(ctx,
			"SELECT tables, version FROM user_environments WHERE user_id = $1 AND environment_name = $2",
			ownerID, environment).Scan(&raw, &version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.NotFoundf("environment %q", environment)
			}
			return errors.Annotatef(err, "reading table index for environment %q", environment)
		}

		list, err := decodeList(raw)
		if err != nil {
			return errors.Trace(err)
		}
		updated, err := fn(list)
		if err != nil {
			return errors.Trace(err)
		}
		encoded, err := encodeList(updated)
		if err != nil {
			return errors.Trace(err)
		}

		tag, err := s.db.Pool().Exec(ctx,
			"UPDATE user_environments SET tables = $1, version = version + 1 WHERE user_id = $2 AND environment_name = $3 AND version = $4",
			encoded, ownerID, environment, version)
		if err != nil {
			return errors.Annotatef(err, "writing table index for environment %q", environment)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		s.logger.Warnf("Concurrent table index update for environment %q, retrying", environment)
	}
	return errors.Errorf("table index for environment %q changed concurrently", environment)
}

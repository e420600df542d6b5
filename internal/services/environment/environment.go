// Package environment handles environment operations: named groupings of
// tables under one owner. Renames cascade through the schema engine
// because every owned table's physical identifier embeds the
// environment name.
package environment

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/ident"
	"github.com/mdbco/mdb/internal/schema"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

// Service handles environment-related operations
type Service struct {
	db     *database.PostgreSQL
	engine *schema.Engine
	logger *logger.Logger
}

// NewService creates a new environment service
func NewService(db *database.PostgreSQL, engine *schema.Engine, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		engine: engine,
		logger: logger,
	}
}

// Environment represents an environment in the system
type Environment struct {
	OwnerID     int64
	Name        string
	Description string
	Tables      []string
}

// Create creates a new environment for the owner
func (s *Service) Create(ctx context.Context, ownerID int64, name, description string) (*Environment, error) {
	s.logger.Infof("Creating environment %q for owner %d", name, ownerID)

	if err := ident.ValidateEnvironmentName(name); err != nil {
		return nil, errors.Trace(err)
	}
	if err := ident.ValidateDescription(description); err != nil {
		return nil, errors.Trace(err)
	}

	exists, err := s.Exists(ctx, ownerID, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if exists {
		return nil, errors.AlreadyExistsf("environment %q", name)
	}

	_, err = s.db.Pool().Exec(ctx,
		"INSERT INTO user_environments (user_id, environment_name, environment_description) VALUES ($1, $2, $3)",
		ownerID, name, description)
	if err != nil {
		s.logger.Errorf("Failed to create environment: %v", err)
		return nil, errors.Annotatef(err, "creating environment %q", name)
	}

	return &Environment{OwnerID: ownerID, Name: name, Description: description, Tables: []string{}}, nil
}

// Get retrieves an environment by name
func (s *Service) Get(ctx context.Context, ownerID int64, name string) (*Environment, error) {
	query := `
		SELECT user_id, environment_name, environment_description, tables
		FROM user_environments
		WHERE user_id = $1 AND environment_name = $2
	`

	var env Environment
	var rawTables string
	err := s.db.Pool().QueryRow(ctx, query, ownerID, name).Scan(
		&env.OwnerID,
		&env.Name,
		&env.Description,
		&rawTables,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFoundf("environment %q", name)
		}
		return nil, errors.Annotatef(err, "reading environment %q", name)
	}

	env.Tables, err = decodeTables(rawTables)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &env, nil
}

// List retrieves all environments for an owner
func (s *Service) List(ctx context.Context, ownerID int64) ([]*Environment, error) {
	query := `
		SELECT user_id, environment_name, environment_description, tables
		FROM user_environments
		WHERE user_id = $1
		ORDER BY environment_name
	`

	rows, err := s.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, errors.Annotatef(err, "listing environments for owner %d", ownerID)
	}
	defer rows.Close()

	var environments []*Environment
	for rows.Next() {
		var env Environment
		var rawTables string
		if err := rows.Scan(&env.OwnerID, &env.Name, &env.Description, &rawTables); err != nil {
			return nil, errors.Trace(err)
		}
		env.Tables, err = decodeTables(rawTables)
		if err != nil {
			return nil, errors.Trace(err)
		}
		environments = append(environments, &env)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	return environments, nil
}

// Count returns the number of environments the owner has
func (s *Service) Count(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.db.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM user_environments WHERE user_id = $1", ownerID).Scan(&count)
	if err != nil {
		return 0, errors.Annotatef(err, "counting environments for owner %d", ownerID)
	}
	return count, nil
}

// Exists checks whether the environment exists for the owner
func (s *Service) Exists(ctx context.Context, ownerID int64, name string) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM user_environments WHERE user_id = $1 AND environment_name = $2)",
		ownerID, name).Scan(&exists)
	if err != nil {
		return false, errors.Annotatef(err, "checking environment %q", name)
	}
	return exists, nil
}

// Update applies a rename and/or description change. A rename cascades
// through the schema engine: every owned table's physical identifier is
// recomputed and the backing tables renamed.
func (s *Service) Update(ctx context.Context, ownerID int64, name, newName, description string) (*Environment, error) {
	s.logger.Infof("Updating environment %q for owner %d", name, ownerID)

	if _, err := s.Get(ctx, ownerID, name); err != nil {
		return nil, errors.Trace(err)
	}

	current := name
	if newName != "" && newName != name {
		if err := s.engine.RenameEnvironment(ctx, ownerID, name, newName); err != nil {
			return nil, errors.Trace(err)
		}
		current = newName
	}

	if description != "" {
		if err := ident.ValidateDescription(description); err != nil {
			return nil, errors.Trace(err)
		}
		_, err := s.db.Pool().Exec(ctx,
			"UPDATE user_environments SET environment_description = $1 WHERE user_id = $2 AND environment_name = $3",
			description, ownerID, current)
		if err != nil {
			return nil, errors.Annotatef(err, "updating environment %q", current)
		}
	}

	return s.Get(ctx, ownerID, current)
}

// Delete removes an environment. Environments that still own tables are
// refused; delete the tables first.
func (s *Service) Delete(ctx context.Context, ownerID int64, name string) error {
	s.logger.Infof("Deleting environment %q for owner %d", name, ownerID)

	env, err := s.Get(ctx, ownerID, name)
	if err != nil {
		return errors.Trace(err)
	}
	if len(env.Tables) > 0 {
		return errors.NotValidf("environment %q still owns %d tables", name, len(env.Tables))
	}

	tag, err := s.db.Pool().Exec(ctx,
		"DELETE FROM user_environments WHERE user_id = $1 AND environment_name = $2", ownerID, name)
	if err != nil {
		return errors.Annotatef(err, "deleting environment %q", name)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("environment %q", name)
	}
	return nil
}

func decodeTables(raw string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Annotatef(err, "decoding table list")
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// Package user handles user account operations. Users are plain
// field-level CRUD against a single record; they never touch schema,
// except that deleting a user cascades to every table it owns.
package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mdbco/mdb/internal/metadata"
	"github.com/mdbco/mdb/internal/schema"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

// Service handles user-related operations
type Service struct {
	db     *database.PostgreSQL
	store  *metadata.Store
	engine *schema.Engine
	logger *logger.Logger
}

// NewService creates a new user service
func NewService(db *database.PostgreSQL, store *metadata.Store, engine *schema.Engine, logger *logger.Logger) *Service {
	return &Service{
		db:     db,
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// User represents a user in the system
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	AuthToken    string
}

// Create creates a new user and seeds its table index row
func (s *Service) Create(ctx context.Context, username, password, email string) (*User, error) {
	s.logger.Infof("Creating user: %s", username)

	var usernameExists bool
	err := s.db.Pool().QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&usernameExists)
	if err != nil {
		return nil, errors.Annotatef(err, "checking username %q", username)
	}
	if usernameExists {
		return nil, errors.AlreadyExistsf("user %q", username)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Annotatef(err, "hashing password")
	}

	query := `
		INSERT INTO users (username, password, email, auth_token)
		VALUES ($1, $2, $3, $4)
		RETURNING user_id, username, password, email, auth_token
	`

	var user User
	err = s.db.Pool().QueryRow(ctx, query, username, string(hashedPassword), email, uuid.NewString()).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&user.AuthToken,
	)
	if err != nil {
		s.logger.Errorf("Failed to create user: %v", err)
		return nil, errors.Annotatef(err, "creating user %q", username)
	}

	if err := s.store.InitOwnerIndex(ctx, user.ID); err != nil {
		return nil, errors.Trace(err)
	}

	return &user, nil
}

// Get retrieves a user by ID
func (s *Service) Get(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT user_id, username, password, email, auth_token
		FROM users
		WHERE user_id = $1
	`

	var user User
	err := s.db.Pool().QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&user.AuthToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFoundf("user %d", userID)
		}
		return nil, errors.Annotatef(err, "reading user %d", userID)
	}

	return &user, nil
}

// Exists checks whether a user with the given ID exists
func (s *Service) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.Pool().QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)", userID).Scan(&exists)
	if err != nil {
		return false, errors.Annotatef(err, "checking user %d", userID)
	}
	return exists, nil
}

// Update updates the provided fields of a user. Empty values are left
// unchanged; a new password is rehashed.
func (s *Service) Update(ctx context.Context, userID int64, username, password, email string) (*User, error) {
	s.logger.Infof("Updating user %d", userID)

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if username != "" {
		user.Username = username
	}
	if email != "" {
		user.Email = email
	}
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Annotatef(err, "hashing password")
		}
		user.PasswordHash = string(hashed)
	}

	_, err = s.db.Pool().Exec(ctx,
		"UPDATE users SET username = $1, password = $2, email = $3 WHERE user_id = $4",
		user.Username, user.PasswordHash, user.Email, userID)
	if err != nil {
		s.logger.Errorf("Failed to update user: %v", err)
		return nil, errors.Annotatef(err, "updating user %d", userID)
	}

	return user, nil
}

// Authenticate checks a password against the stored hash
func (s *Service) Authenticate(ctx context.Context, userID int64, password string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return errors.Trace(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return errors.NotValidf("password for user %d", userID)
	}
	return nil
}

// Delete removes a user along with every table and environment it owns
func (s *Service) Delete(ctx context.Context, userID int64) error {
	s.logger.Infof("Deleting user %d", userID)

	if _, err := s.Get(ctx, userID); err != nil {
		return errors.Trace(err)
	}

	// Drop owned tables first so no physical tables are orphaned
	tableIDs, _, err := s.store.OwnerIndex(ctx, userID)
	if err != nil {
		return errors.Trace(err)
	}
	for _, tableID := range tableIDs {
		if err := s.engine.DeleteTable(ctx, tableID); err != nil {
			return errors.Annotatef(err, "deleting tables for user %d", userID)
		}
	}

	if _, err := s.db.Pool().Exec(ctx, "DELETE FROM user_environments WHERE user_id = $1", userID); err != nil {
		return errors.Annotatef(err, "deleting environments for user %d", userID)
	}
	if err := s.store.DeleteOwnerIndex(ctx, userID); err != nil {
		return errors.Trace(err)
	}
	if _, err := s.db.Pool().Exec(ctx, "DELETE FROM users WHERE user_id = $1", userID); err != nil {
		return errors.Annotatef(err, "deleting user %d", userID)
	}

	return nil
}

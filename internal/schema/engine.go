// Package schema implements the schema mutation engine: it issues the
// physical DDL for tenant tables and keeps the three metadata stores in
// step with it. There is no transaction spanning the physical store and
// the metadata stores; the engine writes them in a fixed order and
// reports, rather than repairs, a mid-sequence failure.
package schema

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/fieldtype"
	"github.com/mdbco/mdb/internal/ident"
	"github.com/mdbco/mdb/internal/metadata"
	"github.com/mdbco/mdb/pkg/database"
	"github.com/mdbco/mdb/pkg/logger"
)

// executor runs statements against the physical store. Satisfied by
// pgxpool.Pool.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// metadataStore is the slice of the metadata store the engine drives
type metadataStore interface {
	EnvironmentExists(ctx context.Context, ownerID int64, environment string) (bool, error)
	EnvironmentIndex(ctx context.Context, ownerID int64, environment string) ([]string, error)
	AppendToEnvironmentIndex(ctx context.Context, ownerID int64, environment, tableID string) error
	RemoveFromEnvironmentIndex(ctx context.Context, ownerID int64, environment, tableID string) error
	SwapInEnvironmentIndex(ctx context.Context, ownerID int64, environment, oldID, newID string) error
	ReplaceEnvironmentIndex(ctx context.Context, ownerID int64, oldName, newName string, list []string) error
	OwnerIndex(ctx context.Context, ownerID int64) ([]string, int, error)
	AppendToOwnerIndex(ctx context.Context, ownerID int64, tableID string) error
	RemoveFromOwnerIndex(ctx context.Context, ownerID int64, tableID string) error
	SwapInOwnerIndex(ctx context.Context, ownerID int64, oldID, newID string) error
	GetDescriptor(ctx context.Context, tableID string) (*metadata.TableDescriptor, error)
	PutDescriptor(ctx context.Context, d *metadata.TableDescriptor) error
	DeleteDescriptor(ctx context.Context, tableID string) error
	UpdateDescriptorID(ctx context.Context, oldID string, d *metadata.TableDescriptor) error
	UpdateDescriptorFields(ctx context.Context, tableID string, fields []fieldtype.Field) error
	UpdateDescriptorDescription(ctx context.Context, tableID, description string) error
}

// Engine orchestrates physical DDL and metadata updates
type Engine struct {
	exec   executor
	store  metadataStore
	logger *logger.Logger
}

// NewEngine creates a new schema mutation engine
func NewEngine(db *database.PostgreSQL, store *metadata.Store, logger *logger.Logger) *Engine {
	return &Engine{
		exec:   db.Pool(),
		store:  store,
		logger: logger,
	}
}

// RenamePair is one (old name -> new name) field rename
type RenamePair struct {
	From string
	To   string
}

// AlterRequest carries the structural changes requested in one call.
// They apply in a fixed order: description, removals, additions, field
// renames, table rename.
type AlterRequest struct {
	Description  *string
	RemoveFields []string
	AddFields    []fieldtype.Field
	RenameFields []RenamePair
	NewName      string
}

// CreateTable creates a tenant table: metadata first (owner index,
// descriptor, environment index), physical CREATE last. The implicit
// _id primary key column is always first.
func (e *Engine) CreateTable(ctx context.Context, ownerID int64, environment, name, description string, fields []fieldtype.Field) (*metadata.TableDescriptor, error) {
	e.logger.Infof("Creating table %q in environment %q for owner %d", name, environment, ownerID)

	if err := ident.ValidateTableName(name); err != nil {
		return nil, errors.Trace(err)
	}
	if err := ident.ValidateDescription(description); err != nil {
		return nil, errors.Trace(err)
	}
	if err := fieldtype.ValidateFields(fields); err != nil {
		return nil, errors.Trace(err)
	}

	exists, err := e.store.EnvironmentExists(ctx, ownerID, environment)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !exists {
		return nil, errors.NotFoundf("environment %q", environment)
	}

	tableID := ident.Derive(ownerID, environment, name)
	ownerList, _, err := e.store.OwnerIndex(ctx, ownerID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, existing := range ownerList {
		if existing == tableID {
			return nil, errors.AlreadyExistsf("table %q", name)
		}
	}

	createSQL, err := buildCreateTable(tableID, fields)
	if err != nil {
		return nil, errors.Trace(err)
	}

	descriptor := &metadata.TableDescriptor{
		OwnerID:         ownerID,
		TableID:         tableID,
		EnvironmentName: environment,
		TableName:       name,
		Description:     description,
		Fields:          fields,
	}

	if err := e.store.AppendToOwnerIndex(ctx, ownerID, tableID); err != nil {
		return nil, errors.Trace(err)
	}
	if err := e.store.PutDescriptor(ctx, descriptor); err != nil {
		return nil, partialFailure(err, "table %q: owner index written but descriptor write failed", name)
	}
	if err := e.store.AppendToEnvironmentIndex(ctx, ownerID, environment, tableID); err != nil {
		return nil, partialFailure(err, "table %q: descriptor written but environment index write failed", name)
	}
	if _, err := e.exec.Exec(ctx, createSQL); err != nil {
		return nil, partialFailure(err, "table %q: metadata written but physical create failed", name)
	}

	return descriptor, nil
}

// DeleteTable removes a tenant table. Metadata goes first so readers
// never see a descriptor with no backing table for long; the physical
// DROP runs last.
func (e *Engine) DeleteTable(ctx context.Context, tableID string) error {
	e.logger.Infof("Deleting table %q", tableID)

	descriptor, err := e.store.GetDescriptor(ctx, tableID)
	if err != nil {
		return errors.Trace(err)
	}

	if err := e.store.DeleteDescriptor(ctx, tableID); err != nil {
		return errors.Trace(err)
	}
	if err := e.store.RemoveFromOwnerIndex(ctx, descriptor.OwnerID, tableID); err != nil {
		return partialFailure(err, "table %q: descriptor removed but owner index update failed", tableID)
	}
	if err := e.store.RemoveFromEnvironmentIndex(ctx, descriptor.OwnerID, descriptor.EnvironmentName, tableID); err != nil {
		return partialFailure(err, "table %q: owner index updated but environment index update failed", tableID)
	}
	if _, err := e.exec.Exec(ctx, buildDropTable(tableID)); err != nil {
		return partialFailure(err, "table %q: metadata removed but physical drop failed", tableID)
	}

	return nil
}

// AlterTable applies the requested structural changes in order
func (e *Engine) AlterTable(ctx context.Context, tableID string, req AlterRequest) (*metadata.TableDescriptor, error) {
	e.logger.Infof("Altering table %q", tableID)

	descriptor, err := e.store.GetDescriptor(ctx, tableID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if req.Description != nil {
		if err := e.updateDescription(ctx, descriptor, *req.Description); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// A field added above cannot also be renamed in the same call, but a
	// name produced by an earlier rename in this call can: renames apply
	// independently in order and each sees the state its predecessors
	// left behind.
	added := make(map[string]bool, len(req.AddFields))
	for _, f := range req.AddFields {
		added[f.Name] = true
	}

	if err := e.removeFields(ctx, descriptor, req.RemoveFields); err != nil {
		return nil, errors.Trace(err)
	}
	if err := e.addFields(ctx, descriptor, req.AddFields); err != nil {
		return nil, errors.Trace(err)
	}
	if err := e.renameFields(ctx, descriptor, req.RenameFields, added); err != nil {
		return nil, errors.Trace(err)
	}

	if req.NewName != "" && req.NewName != descriptor.TableName {
		if err := e.renameTable(ctx, descriptor, req.NewName); err != nil {
			return nil, errors.Trace(err)
		}
	}

	return descriptor, nil
}

func (e *Engine) updateDescription(ctx context.Context, d *metadata.TableDescriptor, description string) error {
	if err := ident.ValidateDescription(description); err != nil {
		return errors.Trace(err)
	}
	if err := e.store.UpdateDescriptorDescription(ctx, d.TableID, description); err != nil {
		return errors.Trace(err)
	}
	d.Description = description
	return nil
}

// removeFields drops columns one at a time: physical DROP first, then
// the descriptor's field list, so the descriptor never claims a field
// the table lost. The dropped data is unrecoverable.
func (e *Engine) removeFields(ctx context.Context, d *metadata.TableDescriptor, names []string) error {
	for _, name := range names {
		idx := indexOfField(d.Fields, name)
		if idx < 0 {
			return errors.NotFoundf("field %q", name)
		}

		if _, err := e.exec.Exec(ctx, buildDropColumn(d.TableID, name)); err != nil {
			return mapStoreError(err, "removing field %q from table %q", name, d.TableName)
		}

		d.Fields = append(d.Fields[:idx:idx], d.Fields[idx+1:]...)
		if err := e.store.UpdateDescriptorFields(ctx, d.TableID, d.Fields); err != nil {
			return partialFailure(err, "field %q: column dropped but descriptor update failed", name)
		}
	}
	return nil
}

func (e *Engine) addFields(ctx context.Context, d *metadata.TableDescriptor, fields []fieldtype.Field) error {
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return errors.Trace(err)
		}
		if indexOfField(d.Fields, f.Name) >= 0 {
			return errors.AlreadyExistsf("field %q", f.Name)
		}

		addSQL, err := buildAddColumn(d.TableID, f)
		if err != nil {
			return errors.Trace(err)
		}
		if _, err := e.exec.Exec(ctx, addSQL); err != nil {
			return mapStoreError(err, "adding field %q to table %q", f.Name, d.TableName)
		}

		d.Fields = append(d.Fields, f)
		if err := e.store.UpdateDescriptorFields(ctx, d.TableID, d.Fields); err != nil {
			return partialFailure(err, "field %q: column added but descriptor update failed", f.Name)
		}
	}
	return nil
}

// renameFields applies each rename independently in order: the physical
// column rename first, the descriptor after, so a crash mid-way is
// recoverable by re-deriving from the live schema. The first failure
// stops the loop; earlier renames stand.
func (e *Engine) renameFields(ctx context.Context, d *metadata.TableDescriptor, pairs []RenamePair, added map[string]bool) error {
	for _, pair := range pairs {
		if pair.From == pair.To {
			return errors.NotValidf("renaming field %q to itself", pair.From)
		}
		if added[pair.From] || indexOfField(d.Fields, pair.From) < 0 {
			return errors.NotFoundf("field %q", pair.From)
		}
		if err := ident.ValidateFieldName(pair.To); err != nil {
			return errors.Trace(err)
		}
		if indexOfField(d.Fields, pair.To) >= 0 {
			return errors.AlreadyExistsf("field %q", pair.To)
		}

		if _, err := e.exec.Exec(ctx, buildRenameColumn(d.TableID, pair.From, pair.To)); err != nil {
			return mapStoreError(err, "renaming field %q in table %q", pair.From, d.TableName)
		}

		idx := indexOfField(d.Fields, pair.From)
		d.Fields[idx].Name = pair.To
		if err := e.store.UpdateDescriptorFields(ctx, d.TableID, d.Fields); err != nil {
			return partialFailure(err, "field %q: column renamed but descriptor update failed", pair.From)
		}
	}
	return nil
}

// renameTable recomputes the physical identifier, renames the physical
// table and its primary-key sequence, then swaps the identifier in the
// descriptor and both indexes.
func (e *Engine) renameTable(ctx context.Context, d *metadata.TableDescriptor, newName string) error {
	if err := ident.ValidateTableName(newName); err != nil {
		return errors.Trace(err)
	}

	oldID := d.TableID
	newID := ident.Derive(d.OwnerID, d.EnvironmentName, newName)

	ownerList, _, err := e.store.OwnerIndex(ctx, d.OwnerID)
	if err != nil {
		return errors.Trace(err)
	}
	for _, existing := range ownerList {
		if existing == newID {
			return errors.AlreadyExistsf("table %q", newName)
		}
	}

	if _, err := e.exec.Exec(ctx, buildRenameTable(oldID, newID)); err != nil {
		return mapStoreError(err, "renaming table %q", d.TableName)
	}
	if _, err := e.exec.Exec(ctx, buildRenameSequence(oldID, newID)); err != nil {
		return partialFailure(err, "table %q: table renamed but sequence rename failed", d.TableName)
	}

	d.TableID = newID
	d.TableName = newName
	if err := e.store.UpdateDescriptorID(ctx, oldID, d); err != nil {
		return partialFailure(err, "table %q: physical rename done but descriptor update failed", newName)
	}
	if err := e.store.SwapInOwnerIndex(ctx, d.OwnerID, oldID, newID); err != nil {
		return partialFailure(err, "table %q: descriptor updated but owner index swap failed", newName)
	}
	if err := e.store.SwapInEnvironmentIndex(ctx, d.OwnerID, d.EnvironmentName, oldID, newID); err != nil {
		return partialFailure(err, "table %q: owner index updated but environment index swap failed", newName)
	}

	return nil
}

// RenameEnvironment recomputes the physical identifier of every table in
// the environment, renames the backing tables, and rewrites both
// indexes. The environment row itself is renamed last, together with
// its rewritten table list.
func (e *Engine) RenameEnvironment(ctx context.Context, ownerID int64, oldName, newName string) error {
	e.logger.Infof("Renaming environment %q to %q for owner %d", oldName, newName, ownerID)

	if err := ident.ValidateEnvironmentName(newName); err != nil {
		return errors.Trace(err)
	}
	newExists, err := e.store.EnvironmentExists(ctx, ownerID, newName)
	if err != nil {
		return errors.Trace(err)
	}
	if newExists {
		return errors.AlreadyExistsf("environment %q", newName)
	}

	list, err := e.store.EnvironmentIndex(ctx, ownerID, oldName)
	if err != nil {
		return errors.Trace(err)
	}

	newList := make([]string, 0, len(list))
	for _, oldID := range list {
		descriptor, err := e.store.GetDescriptor(ctx, oldID)
		if err != nil {
			return errors.Trace(err)
		}
		newID := ident.Derive(ownerID, newName, descriptor.TableName)

		if _, err := e.exec.Exec(ctx, buildRenameTable(oldID, newID)); err != nil {
			return mapStoreError(err, "renaming table %q into environment %q", descriptor.TableName, newName)
		}
		if _, err := e.exec.Exec(ctx, buildRenameSequence(oldID, newID)); err != nil {
			return partialFailure(err, "table %q: table renamed but sequence rename failed", descriptor.TableName)
		}

		descriptor.TableID = newID
		descriptor.EnvironmentName = newName
		if err := e.store.UpdateDescriptorID(ctx, oldID, descriptor); err != nil {
			return partialFailure(err, "table %q: physical rename done but descriptor update failed", descriptor.TableName)
		}
		if err := e.store.SwapInOwnerIndex(ctx, ownerID, oldID, newID); err != nil {
			return partialFailure(err, "table %q: descriptor updated but owner index swap failed", descriptor.TableName)
		}
		newList = append(newList, newID)
	}

	if err := e.store.ReplaceEnvironmentIndex(ctx, ownerID, oldName, newName, newList); err != nil {
		return partialFailure(err, "environment %q: tables renamed but environment row update failed", oldName)
	}
	return nil
}

func indexOfField(fields []fieldtype.Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

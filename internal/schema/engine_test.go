package schema

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdbco/mdb/internal/fieldtype"
	"github.com/mdbco/mdb/internal/metadata"
	"github.com/mdbco/mdb/pkg/logger"
)

// fakeBackend stands in for both the metadata store and the physical
// executor, recording every write in order so tests can assert the
// engine's write sequence and the resulting index state.
type fakeBackend struct {
	ops          []string
	descriptors  map[string]*metadata.TableDescriptor
	ownerIndex   map[int64][]string
	envIndex     map[string][]string
	environments map[string]bool
	failOn       string
	failErr      error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		descriptors:  make(map[string]*metadata.TableDescriptor),
		ownerIndex:   make(map[int64][]string),
		envIndex:     make(map[string][]string),
		environments: make(map[string]bool),
	}
}

func (b *fakeBackend) addEnvironment(ownerID int64, name string) {
	b.environments[envKey(ownerID, name)] = true
	b.envIndex[envKey(ownerID, name)] = []string{}
	if _, ok := b.ownerIndex[ownerID]; !ok {
		b.ownerIndex[ownerID] = []string{}
	}
}

func envKey(ownerID int64, environment string) string {
	return fmt.Sprintf("%d/%s", ownerID, environment)
}

func (b *fakeBackend) record(op string) error {
	b.ops = append(b.ops, op)
	if b.failOn != "" && strings.HasPrefix(op, b.failOn) {
		return b.failErr
	}
	return nil
}

func (b *fakeBackend) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := b.record("exec " + sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.CommandTag{}, nil
}

func (b *fakeBackend) EnvironmentExists(ctx context.Context, ownerID int64, environment string) (bool, error) {
	return b.environments[envKey(ownerID, environment)], nil
}

func (b *fakeBackend) EnvironmentIndex(ctx context.Context, ownerID int64, environment string) ([]string, error) {
	list, ok := b.envIndex[envKey(ownerID, environment)]
	if !ok {
		return nil, errors.NotFoundf("environment %q", environment)
	}
	return append([]string(nil), list...), nil
}

func (b *fakeBackend) AppendToEnvironmentIndex(ctx context.Context, ownerID int64, environment, tableID string) error {
	if err := b.record(fmt.Sprintf("env+ %s %s", environment, tableID)); err != nil {
		return err
	}
	key := envKey(ownerID, environment)
	b.envIndex[key] = append(b.envIndex[key], tableID)
	return nil
}

func (b *fakeBackend) RemoveFromEnvironmentIndex(ctx context.Context, ownerID int64, environment, tableID string) error {
	if err := b.record(fmt.Sprintf("env- %s %s", environment, tableID)); err != nil {
		return err
	}
	key := envKey(ownerID, environment)
	list, removed := removeFromList(b.envIndex[key], tableID)
	if !removed {
		return errors.NotFoundf("table %q", tableID)
	}
	b.envIndex[key] = list
	return nil
}

func (b *fakeBackend) SwapInEnvironmentIndex(ctx context.Context, ownerID int64, environment, oldID, newID string) error {
	if err := b.record(fmt.Sprintf("env~ %s %s %s", environment, oldID, newID)); err != nil {
		return err
	}
	key := envKey(ownerID, environment)
	list, swapped := swapInList(b.envIndex[key], oldID, newID)
	if !swapped {
		return errors.NotFoundf("table %q", oldID)
	}
	b.envIndex[key] = list
	return nil
}

func (b *fakeBackend) ReplaceEnvironmentIndex(ctx context.Context, ownerID int64, oldName, newName string, list []string) error {
	if err := b.record(fmt.Sprintf("envRename %s %s", oldName, newName)); err != nil {
		return err
	}
	delete(b.environments, envKey(ownerID, oldName))
	delete(b.envIndex, envKey(ownerID, oldName))
	b.environments[envKey(ownerID, newName)] = true
	b.envIndex[envKey(ownerID, newName)] = append([]string(nil), list...)
	return nil
}

func (b *fakeBackend) OwnerIndex(ctx context.Context, ownerID int64) ([]string, int, error) {
	list, ok := b.ownerIndex[ownerID]
	if !ok {
		return nil, 0, errors.NotFoundf("user %d", ownerID)
	}
	return append([]string(nil), list...), len(list), nil
}

func (b *fakeBackend) AppendToOwnerIndex(ctx context.Context, ownerID int64, tableID string) error {
	if err := b.record("owner+ " + tableID); err != nil {
		return err
	}
	b.ownerIndex[ownerID] = append(b.ownerIndex[ownerID], tableID)
	return nil
}

func (b *fakeBackend) RemoveFromOwnerIndex(ctx context.Context, ownerID int64, tableID string) error {
	if err := b.record("owner- " + tableID); err != nil {
		return err
	}
	list, removed := removeFromList(b.ownerIndex[ownerID], tableID)
	if !removed {
		return errors.NotFoundf("table %q", tableID)
	}
	b.ownerIndex[ownerID] = list
	return nil
}

func (b *fakeBackend) SwapInOwnerIndex(ctx context.Context, ownerID int64, oldID, newID string) error {
	if err := b.record(fmt.Sprintf("owner~ %s %s", oldID, newID)); err != nil {
		return err
	}
	list, swapped := swapInList(b.ownerIndex[ownerID], oldID, newID)
	if !swapped {
		return errors.NotFoundf("table %q", oldID)
	}
	b.ownerIndex[ownerID] = list
	return nil
}

func (b *fakeBackend) GetDescriptor(ctx context.Context, tableID string) (*metadata.TableDescriptor, error) {
	d, ok := b.descriptors[tableID]
	if !ok {
		return nil, errors.NotFoundf("table %q", tableID)
	}
	copied := *d
	copied.Fields = append([]fieldtype.Field(nil), d.Fields...)
	return &copied, nil
}

func (b *fakeBackend) PutDescriptor(ctx context.Context, d *metadata.TableDescriptor) error {
	if err := b.record("desc+ " + d.TableID); err != nil {
		return err
	}
	copied := *d
	copied.Fields = append([]fieldtype.Field(nil), d.Fields...)
	b.descriptors[d.TableID] = &copied
	return nil
}

func (b *fakeBackend) DeleteDescriptor(ctx context.Context, tableID string) error {
	if err := b.record("desc- " + tableID); err != nil {
		return err
	}
	if _, ok := b.descriptors[tableID]; !ok {
		return errors.NotFoundf("table %q", tableID)
	}
	delete(b.descriptors, tableID)
	return nil
}

func (b *fakeBackend) UpdateDescriptorID(ctx context.Context, oldID string, d *metadata.TableDescriptor) error {
	if err := b.record(fmt.Sprintf("desc~ %s %s", oldID, d.TableID)); err != nil {
		return err
	}
	if _, ok := b.descriptors[oldID]; !ok {
		return errors.NotFoundf("table %q", oldID)
	}
	stored := *b.descriptors[oldID]
	stored.TableID = d.TableID
	stored.EnvironmentName = d.EnvironmentName
	stored.TableName = d.TableName
	delete(b.descriptors, oldID)
	b.descriptors[d.TableID] = &stored
	return nil
}

func (b *fakeBackend) UpdateDescriptorFields(ctx context.Context, tableID string, fields []fieldtype.Field) error {
	if err := b.record("descFields " + tableID); err != nil {
		return err
	}
	d, ok := b.descriptors[tableID]
	if !ok {
		return errors.NotFoundf("table %q", tableID)
	}
	d.Fields = append([]fieldtype.Field(nil), fields...)
	return nil
}

func (b *fakeBackend) UpdateDescriptorDescription(ctx context.Context, tableID, description string) error {
	if err := b.record("descDesc " + tableID); err != nil {
		return err
	}
	d, ok := b.descriptors[tableID]
	if !ok {
		return errors.NotFoundf("table %q", tableID)
	}
	d.Description = description
	return nil
}

func removeFromList(list []string, id string) ([]string, bool) {
	for i, existing := range list {
		if existing == id {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}

func swapInList(list []string, oldID, newID string) ([]string, bool) {
	out := append([]string(nil), list...)
	for i, existing := range out {
		if existing == oldID {
			out[i] = newID
			return out, true
		}
	}
	return out, false
}

func newTestEngine(b *fakeBackend) *Engine {
	return &Engine{
		exec:   b,
		store:  b,
		logger: logger.New("schema-test", "dev"),
	}
}

func seedTable(b *fakeBackend, ownerID int64, env, name string, fields []fieldtype.Field) string {
	tableID := fmt.Sprintf("_%d_%s_%s", ownerID, env, name)
	b.descriptors[tableID] = &metadata.TableDescriptor{
		OwnerID:         ownerID,
		TableID:         tableID,
		EnvironmentName: env,
		TableName:       name,
		Fields:          append([]fieldtype.Field(nil), fields...),
	}
	b.ownerIndex[ownerID] = append(b.ownerIndex[ownerID], tableID)
	key := envKey(ownerID, env)
	b.envIndex[key] = append(b.envIndex[key], tableID)
	return tableID
}

func TestCreateTableWriteOrder(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	e := newTestEngine(b)

	descriptor, err := e.CreateTable(context.Background(), 42, "e1", "t1", "first", []fieldtype.Field{
		{Name: "title", Type: "string"},
	})
	require.NoError(t, err)
	assert.Equal(t, "_42_e1_t1", descriptor.TableID)

	// Metadata first in a fixed order, physical CREATE last
	assert.Equal(t, []string{
		"owner+ _42_e1_t1",
		"desc+ _42_e1_t1",
		"env+ e1 _42_e1_t1",
		"exec CREATE TABLE _42_e1_t1 (_id SERIAL PRIMARY KEY, title VARCHAR(255))",
	}, b.ops)

	assert.Equal(t, []string{"_42_e1_t1"}, b.ownerIndex[42])
	assert.Equal(t, []string{"_42_e1_t1"}, b.envIndex[envKey(42, "e1")])
}

func TestCreateTableConflictWritesNothing(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "title", Type: "string"}})
	e := newTestEngine(b)

	_, err := e.CreateTable(context.Background(), 42, "e1", "t1", "", []fieldtype.Field{
		{Name: "other", Type: "string"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.AlreadyExists))
	assert.Empty(t, b.ops)
}

func TestCreateTableMissingEnvironment(t *testing.T) {
	b := newFakeBackend()
	e := newTestEngine(b)

	_, err := e.CreateTable(context.Background(), 42, "nope", "t1", "", []fieldtype.Field{
		{Name: "title", Type: "string"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Empty(t, b.ops)
}

func TestCreateTablePartialFailure(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	b.failOn = "env+"
	b.failErr = errors.New("index write refused")
	e := newTestEngine(b)

	_, err := e.CreateTable(context.Background(), 42, "e1", "t1", "", []fieldtype.Field{
		{Name: "title", Type: "string"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialFailure))

	// The physical CREATE never ran
	for _, op := range b.ops {
		assert.NotContains(t, op, "CREATE TABLE")
	}
}

func TestDeleteTableOrder(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	tableID := seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "title", Type: "string"}})
	e := newTestEngine(b)

	require.NoError(t, e.DeleteTable(context.Background(), tableID))

	assert.Equal(t, []string{
		"desc- _42_e1_t1",
		"owner- _42_e1_t1",
		"env- e1 _42_e1_t1",
		"exec DROP TABLE _42_e1_t1",
	}, b.ops)

	assert.Empty(t, b.descriptors)
	assert.Empty(t, b.ownerIndex[42])
	assert.Empty(t, b.envIndex[envKey(42, "e1")])
}

func TestDeleteTableNotFound(t *testing.T) {
	b := newFakeBackend()
	e := newTestEngine(b)

	err := e.DeleteTable(context.Background(), "_42_e1_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Empty(t, b.ops)
}

func TestAlterTableOrdering(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	tableID := seedTable(b, 42, "e1", "t1", []fieldtype.Field{
		{Name: "a", Type: "string"},
		{Name: "b", Type: "string"},
	})
	e := newTestEngine(b)

	description := "reworked"
	descriptor, err := e.AlterTable(context.Background(), tableID, AlterRequest{
		Description:  &description,
		RemoveFields: []string{"b"},
		AddFields:    []fieldtype.Field{{Name: "c", Type: "string"}},
		RenameFields: []RenamePair{{From: "a", To: "a2"}},
		NewName:      "t2",
	})
	require.NoError(t, err)

	// Description, removals, additions, field renames, table rename
	assert.Equal(t, []string{
		"descDesc _42_e1_t1",
		"exec ALTER TABLE _42_e1_t1 DROP COLUMN b",
		"descFields _42_e1_t1",
		"exec ALTER TABLE _42_e1_t1 ADD COLUMN c VARCHAR(255)",
		"descFields _42_e1_t1",
		"exec ALTER TABLE _42_e1_t1 RENAME COLUMN a TO a2",
		"descFields _42_e1_t1",
		"exec ALTER TABLE _42_e1_t1 RENAME TO _42_e1_t2",
		"exec ALTER SEQUENCE _42_e1_t1__id_seq RENAME TO _42_e1_t2__id_seq",
		"desc~ _42_e1_t1 _42_e1_t2",
		"owner~ _42_e1_t1 _42_e1_t2",
		"env~ e1 _42_e1_t1 _42_e1_t2",
	}, b.ops)

	assert.Equal(t, "t2", descriptor.TableName)
	assert.Equal(t, []fieldtype.Field{
		{Name: "a2", Type: "string"},
		{Name: "c", Type: "string"},
	}, descriptor.Fields)
}

func TestRenameTableIndexInvariant(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	tableID := seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "title", Type: "string"}})
	seedTable(b, 42, "e1", "other", []fieldtype.Field{{Name: "title", Type: "string"}})
	e := newTestEngine(b)

	_, err := e.AlterTable(context.Background(), tableID, AlterRequest{NewName: "t2"})
	require.NoError(t, err)

	// Old identifier gone everywhere, new identifier present exactly once
	counts := func(list []string, id string) int {
		n := 0
		for _, existing := range list {
			if existing == id {
				n++
			}
		}
		return n
	}
	for _, list := range [][]string{b.ownerIndex[42], b.envIndex[envKey(42, "e1")]} {
		assert.Equal(t, 0, counts(list, "_42_e1_t1"))
		assert.Equal(t, 1, counts(list, "_42_e1_t2"))
	}

	_, err = b.GetDescriptor(context.Background(), "_42_e1_t1")
	assert.True(t, errors.Is(err, errors.NotFound))
	d, err := b.GetDescriptor(context.Background(), "_42_e1_t2")
	require.NoError(t, err)
	assert.Equal(t, "t2", d.TableName)
}

func TestRenameTableConflict(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	tableID := seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "title", Type: "string"}})
	seedTable(b, 42, "e1", "t2", []fieldtype.Field{{Name: "title", Type: "string"}})
	e := newTestEngine(b)

	_, err := e.AlterTable(context.Background(), tableID, AlterRequest{NewName: "t2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.AlreadyExists))
}

func TestChainedFieldRenames(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	tableID := seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "count", Type: "integer"}})
	e := newTestEngine(b)

	// A rename may target the result of an earlier rename in the same call
	descriptor, err := e.AlterTable(context.Background(), tableID, AlterRequest{
		RenameFields: []RenamePair{{From: "count", To: "total"}, {From: "total", To: "quantity"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []fieldtype.Field{{Name: "quantity", Type: "integer"}}, descriptor.Fields)
}

func TestRenameOfJustAddedFieldRejected(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	tableID := seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "count", Type: "integer"}})
	e := newTestEngine(b)

	_, err := e.AlterTable(context.Background(), tableID, AlterRequest{
		AddFields:    []fieldtype.Field{{Name: "extra", Type: "string"}},
		RenameFields: []RenamePair{{From: "extra", To: "renamed"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestRenameEnvironmentCascade(t *testing.T) {
	b := newFakeBackend()
	b.addEnvironment(42, "e1")
	seedTable(b, 42, "e1", "t1", []fieldtype.Field{{Name: "title", Type: "string"}})
	seedTable(b, 42, "e1", "t2", []fieldtype.Field{{Name: "title", Type: "string"}})
	e := newTestEngine(b)

	require.NoError(t, e.RenameEnvironment(context.Background(), 42, "e1", "e2"))

	assert.ElementsMatch(t, []string{"_42_e2_t1", "_42_e2_t2"}, b.ownerIndex[42])
	assert.ElementsMatch(t, []string{"_42_e2_t1", "_42_e2_t2"}, b.envIndex[envKey(42, "e2")])
	assert.False(t, b.environments[envKey(42, "e1")])

	d, err := b.GetDescriptor(context.Background(), "_42_e2_t1")
	require.NoError(t, err)
	assert.Equal(t, "e2", d.EnvironmentName)
	assert.Equal(t, "t1", d.TableName)
}

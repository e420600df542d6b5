// Package record validates and coerces record payloads against a table's
// stored field list before they reach the generic data path. Validation
// is first-fail: the first offending field stops the pass.
package record

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/fieldtype"
	"github.com/mdbco/mdb/internal/metadata"
)

// Validator checks payloads against the descriptor store
type Validator struct {
	store *metadata.Store
}

// NewValidator creates a new record validator
func NewValidator(store *metadata.Store) *Validator {
	return &Validator{store: store}
}

// ValidateInsert validates an insert payload for the table and returns
// the field-to-storage-value mapping ready for parameter binding.
// Absent fields with a declared default are populated; absent notNull
// fields without autoDate are rejected.
func (v *Validator) ValidateInsert(ctx context.Context, tableID string, values map[string]interface{}) (map[string]interface{}, error) {
	descriptor, err := v.store.GetDescriptor(ctx, tableID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return CoerceInsert(descriptor.Fields, values)
}

// ValidateUpdate validates an update payload for the table. Only the
// provided fields are checked; nothing is populated.
func (v *Validator) ValidateUpdate(ctx context.Context, tableID string, values map[string]interface{}) (map[string]interface{}, error) {
	descriptor, err := v.store.GetDescriptor(ctx, tableID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return CoerceUpdate(descriptor.Fields, values)
}

// Fields returns the table's current field list for the read path
func (v *Validator) Fields(ctx context.Context, tableID string) ([]fieldtype.Field, error) {
	descriptor, err := v.store.GetDescriptor(ctx, tableID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return descriptor.Fields, nil
}

// CoerceInsert validates and coerces an insert payload against a field list
func CoerceInsert(fields []fieldtype.Field, values map[string]interface{}) (map[string]interface{}, error) {
	return coerce(fields, values, true)
}

// CoerceUpdate validates and coerces an update payload against a field list
func CoerceUpdate(fields []fieldtype.Field, values map[string]interface{}) (map[string]interface{}, error) {
	return coerce(fields, values, false)
}

func coerce(fields []fieldtype.Field, values map[string]interface{}, insert bool) (map[string]interface{}, error) {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}

	// Unknown names first, in sorted order so first-fail is deterministic
	provided := make([]string, 0, len(values))
	for name := range values {
		provided = append(provided, name)
	}
	sort.Strings(provided)
	for _, name := range provided {
		if !known[name] {
			return nil, errors.NotFoundf("field %q", name)
		}
	}

	out := make(map[string]interface{}, len(values))
	for _, f := range fields {
		t, err := f.ResolvedType()
		if err != nil {
			return nil, errors.Trace(err)
		}

		value, ok := values[f.Name]
		if !ok {
			if !insert || f.AutoDate {
				// autoDate fields get their value from the column default
				continue
			}
			if f.Default != nil {
				stored, err := t.StorageValue(f.Default)
				if err != nil {
					return nil, errors.Trace(err)
				}
				out[f.Name] = stored
				continue
			}
			if f.NotNull {
				return nil, errors.NotValidf("missing required field %q", f.Name)
			}
			continue
		}

		if value == nil {
			// An explicit null clears the column; it beats a declared
			// default and is only refused on notNull fields.
			if f.NotNull {
				return nil, errors.NotValidf("null value for required field %q", f.Name)
			}
			out[f.Name] = nil
			continue
		}

		if err := t.ValidateValue(value); err != nil {
			return nil, errors.Annotatef(err, "field %q", f.Name)
		}
		stored, err := t.StorageValue(value)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out[f.Name] = stored
	}

	return out, nil
}

// Decode interprets a stored row back into logical form: serialized
// array/json values are parsed, emoji tokens resolve to their glyph.
func Decode(fields []fieldtype.Field, row map[string]interface{}) map[string]interface{} {
	types := make(map[string]fieldtype.Type, len(fields))
	for _, f := range fields {
		if t, err := f.ResolvedType(); err == nil {
			types[f.Name] = t
		}
	}

	out := make(map[string]interface{}, len(row))
	for name, value := range row {
		t, ok := types[name]
		if !ok {
			out[name] = value
			continue
		}
		switch t.Kind {
		case fieldtype.KindArray, fieldtype.KindJSON:
			if s, ok := value.(string); ok {
				var parsed interface{}
				if err := json.Unmarshal([]byte(s), &parsed); err == nil {
					out[name] = parsed
					continue
				}
			}
			out[name] = value
		case fieldtype.KindEmoji:
			if s, ok := value.(string); ok {
				out[name] = fieldtype.ResolveEmoji(s)
				continue
			}
			out[name] = value
		default:
			out[name] = value
		}
	}
	return out
}

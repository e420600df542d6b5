package fieldtype

import (
	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/ident"
)

// Field is one column's abstract definition as stored in a table
// descriptor. It serializes to the schema-as-data representation kept in
// the metadata store.
type Field struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	NotNull  bool        `json:"notNull,omitempty"`
	Default  interface{} `json:"default,omitempty"`
	AutoDate bool        `json:"autoDate,omitempty"`
}

// ResolvedType parses the field's type tag
func (f Field) ResolvedType() (Type, error) {
	t, err := Parse(f.Type)
	if err != nil {
		return Type{}, errors.Annotatef(err, "field %q", f.Name)
	}
	return t, nil
}

// Validate checks the field definition as a whole: name rules, type tag,
// attribute combinations, and the declared default against the type.
func (f Field) Validate() error {
	if err := ident.ValidateFieldName(f.Name); err != nil {
		return err
	}

	t, err := f.ResolvedType()
	if err != nil {
		return err
	}

	if f.AutoDate {
		if !t.IsTemporal() {
			return errors.NotValidf("autoDate on %s field %q", f.Type, f.Name)
		}
		// autoDate supplies the value itself, so a caller default or a
		// notNull requirement can never both hold.
		if f.Default != nil || f.NotNull {
			return errors.NotValidf("autoDate combined with default or notNull on field %q", f.Name)
		}
	}

	if f.Default != nil {
		if err := t.ValidateDefault(f.Default); err != nil {
			return errors.Annotatef(err, "default for field %q", f.Name)
		}
	}

	return nil
}

// ValidateFields checks a create-time field list: each field individually
// valid and no duplicate names.
func ValidateFields(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return errors.AlreadyExistsf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Package ident derives the physical identifiers that back tenant tables
// and validates every caller-supplied name before it may appear inside
// generated DDL. Identifiers are restricted to the alphanumeric/underscore
// character set, so the derived strings are always safe to embed.
package ident

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/juju/errors"
)

// ReservedFieldName is the implicit primary key column added to every
// tenant table. Callers may never define or target it.
const ReservedFieldName = "_id"

// Name length limits
const (
	MaxEnvironmentNameLength = 25
	MaxTableNameLength       = 31
	MaxFieldNameLength       = 50
	MaxDescriptionLength     = 500
)

var (
	environmentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	identifierPattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Derive maps an (owner, environment, table name) triple to the globally
// stable physical identifier used as the literal name of the backing
// table. It is recomputed whenever any input changes; never cache it
// independently of its inputs.
func Derive(ownerID int64, environment, tablename string) string {
	return fmt.Sprintf("_%d_%s_%s", ownerID, environment, tablename)
}

// ValidateEnvironmentName checks an environment name: 1-25 characters,
// alphanumeric and underscore only, case-sensitive.
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return errors.NotValidf("empty environment name")
	}
	if len(name) > MaxEnvironmentNameLength {
		return errors.NotValidf("environment name %q longer than %d characters", name, MaxEnvironmentNameLength)
	}
	if !environmentNamePattern.MatchString(name) {
		return errors.NotValidf("environment name %q", name)
	}
	return nil
}

// ValidateTableName checks a local table name: 1-31 characters, must
// start with a letter or underscore, alphanumeric/underscore only, and
// must not be the reserved name.
func ValidateTableName(name string) error {
	if name == "" {
		return errors.NotValidf("empty table name")
	}
	if len(name) > MaxTableNameLength {
		return errors.NotValidf("table name %q longer than %d characters", name, MaxTableNameLength)
	}
	if !identifierPattern.MatchString(name) {
		return errors.NotValidf("table name %q", name)
	}
	if name == ReservedFieldName {
		return errors.NotValidf("table name %q is reserved", name)
	}
	return nil
}

// ValidateFieldName checks a field name. Field names share the table
// identifier character set because they are embedded in column DDL.
func ValidateFieldName(name string) error {
	if name == "" {
		return errors.NotValidf("empty field name")
	}
	if len(name) > MaxFieldNameLength {
		return errors.NotValidf("field name %q longer than %d characters", name, MaxFieldNameLength)
	}
	if !identifierPattern.MatchString(name) {
		return errors.NotValidf("field name %q", name)
	}
	if name == ReservedFieldName {
		return errors.NotValidf("field name %q is reserved", name)
	}
	return nil
}

// ValidateDescription checks a free-text description. Descriptions are
// the one name that is not charset-restricted, so the bound counts
// runes, not bytes.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return errors.NotValidf("description longer than %d characters", MaxDescriptionLength)
	}
	return nil
}

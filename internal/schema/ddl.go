package schema

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/mdbco/mdb/internal/fieldtype"
	"github.com/mdbco/mdb/internal/ident"
)

// DDL builders. Every identifier interpolated here has passed the
// allow-list validation in the ident package before reaching this point;
// the engine is the sole authority for keeping these strings safe to
// embed.

func buildColumnDef(f fieldtype.Field) (string, error) {
	t, err := f.ResolvedType()
	if err != nil {
		return "", errors.Trace(err)
	}

	def := f.Name + " " + t.ColumnSpec()
	if f.AutoDate {
		def += " DEFAULT " + t.AutoDateDefault()
	}
	if f.Default != nil {
		lit, err := t.Literal(f.Default)
		if err != nil {
			return "", errors.Annotatef(err, "field %q", f.Name)
		}
		def += " DEFAULT " + lit
	}
	if f.NotNull {
		def += " NOT NULL"
	}
	return def, nil
}

func buildCreateTable(tableID string, fields []fieldtype.Field) (string, error) {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, ident.ReservedFieldName+" SERIAL PRIMARY KEY")
	for _, f := range fields {
		def, err := buildColumnDef(f)
		if err != nil {
			return "", errors.Trace(err)
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", tableID, strings.Join(cols, ", ")), nil
}

func buildDropTable(tableID string) string {
	return fmt.Sprintf("DROP TABLE %s", tableID)
}

func buildAddColumn(tableID string, f fieldtype.Field) (string, error) {
	def, err := buildColumnDef(f)
	if err != nil {
		return "", errors.Trace(err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tableID, def), nil
}

func buildDropColumn(tableID, field string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tableID, field)
}

func buildRenameColumn(tableID, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", tableID, from, to)
}

func buildRenameTable(oldID, newID string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldID, newID)
}

// sequenceName returns the name of the SERIAL sequence backing the
// implicit primary key column.
func sequenceName(tableID string) string {
	return fmt.Sprintf("%s_%s_seq", tableID, ident.ReservedFieldName)
}

func buildRenameSequence(oldID, newID string) string {
	return fmt.Sprintf("ALTER SEQUENCE %s RENAME TO %s", sequenceName(oldID), sequenceName(newID))
}

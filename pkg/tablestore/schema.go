package tablestore

import (
	"context"
	"fmt"
	"log/slog"
)

// EnsureSchema makes the database hold every required column. Missing
// columns are added; number formats, select options and formula expressions
// are widened to the required ones. A column that exists with a different
// type is a *SchemaError. Nothing is sent when the schema already matches.
func (c *Client) EnsureSchema(ctx context.Context, tableID string, required Schema) error {
	db, err := c.GetDatabase(ctx, tableID)
	if err != nil {
		return err
	}

	changes, err := SchemaChanges(tableID, db.Properties, required)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		slog.Debug("Schema up to date", "table", tableID)
		return nil
	}

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	slog.Info("Updating table schema", "table", tableID, "columns", names)

	if _, err := c.UpdateDatabase(ctx, tableID, changes); err != nil {
		return err
	}
	return nil
}

// SchemaChanges returns the property updates needed to turn existing into a
// superset of required.
func SchemaChanges(tableID string, existing map[string]PropertySchema, required Schema) (map[string]PropertySchema, error) {
	changes := make(map[string]PropertySchema)

	for _, name := range required.Names() {
		col := required[name]
		want := col.schema()

		have, ok := existing[name]
		if !ok {
			changes[name] = want
			continue
		}

		if have.Type != col.Type() {
			return nil, &SchemaError{Table: tableID, Column: name, Want: col.Type(), Got: have.Type}
		}

		switch c := col.(type) {
		case NumberColumn:
			if have.Number == nil || have.Number.Format != want.Number.Format {
				changes[name] = want
			}
		case SelectColumn:
			if merged, changed := mergeOptions(have.Select, c.Options); changed {
				changes[name] = PropertySchema{Type: TypeSelect, Select: &SelectConfig{Options: merged}}
			}
		case FormulaColumn:
			if have.Formula == nil || have.Formula.Expression != c.Expression {
				changes[name] = want
			}
		case TextColumn, DateColumn:
		default:
			return nil, fmt.Errorf("table %s: column %q: unsupported column %T", tableID, name, col)
		}
	}

	return changes, nil
}

// mergeOptions returns the existing options followed by the required ones
// that are missing, and whether anything was added.
func mergeOptions(have *SelectConfig, want []Option) ([]Option, bool) {
	var merged []Option
	seen := make(map[string]bool)
	if have != nil {
		for _, o := range have.Options {
			merged = append(merged, Option{Name: o.Name, Color: o.Color})
			seen[o.Name] = true
		}
	}

	changed := false
	for _, o := range want {
		if seen[o.Name] {
			continue
		}
		merged = append(merged, o)
		seen[o.Name] = true
		changed = true
	}
	return merged, changed
}

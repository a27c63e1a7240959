// Package schema models the database structure handed to the model as
// grounding context and to the intent classifier for token matching.
package schema

import (
	"context"
	"strings"
)

// Table is one table with its columns in declaration order.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Description is an ordered list of tables. Order is preserved so the
// canonical text form is stable across calls for an unchanged database.
type Description struct {
	Tables []Table `json:"tables"`
}

// Source provides the current schema description. Implementations may hit
// the database on every call; callers decide how long to hold the result.
type Source interface {
	Describe(ctx context.Context) (Description, error)
}

// CanonicalText renders the description as the text block consumed by the
// model prompts:
//
//	Table: employees
//	Columns: id, name, department, salary
//
// Original identifier case is preserved.
func (d Description) CanonicalText() string {
	var b strings.Builder
	for i, table := range d.Tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Table: ")
		b.WriteString(table.Name)
		b.WriteString("\nColumns: ")
		b.WriteString(strings.Join(table.Columns, ", "))
	}
	return b.String()
}

// Empty reports whether the description contains no tables.
func (d Description) Empty() bool {
	return len(d.Tables) == 0
}

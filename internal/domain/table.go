package domain

import "fmt"

// Table is a rectangular flat table: one row per spatial grid point, columns
// addressed by name. Column insertion order is preserved because downstream
// feature ordering is position-sensitive.
type Table struct {
	rows  int
	names []string
	cols  map[string][]float64
}

// NewTable creates an empty table with a fixed row count.
func NewTable(rows int) *Table {
	return &Table{rows: rows, cols: make(map[string][]float64)}
}

// Rows returns the spatial-point count.
func (t *Table) Rows() int { return t.rows }

// ColumnNames returns the column names in insertion order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// AddColumn appends a named column. The value count must match the table's
// row count; a mismatch wraps ErrShape.
func (t *Table) AddColumn(name string, values []float64) error {
	if len(values) != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows: %w",
			name, len(values), t.rows, ErrShape)
	}
	if _, exists := t.cols[name]; exists {
		return fmt.Errorf("duplicate column %q", name)
	}
	t.names = append(t.names, name)
	t.cols[name] = values
	return nil
}

// Column returns the values of a named column, or false if absent. The
// returned slice is the table's backing storage; callers must not mutate it.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// LevelColumnName builds the flattened column name for a variable at a
// pressure level, e.g. ("t", 850) -> "t_850".
func LevelColumnName(variable string, level float64) string {
	return fmt.Sprintf("%s_%d", variable, int(level))
}

package domain

import "fmt"

// Flatten converts pressure-level cubes into a flat profile table: one row
// per grid point (row-major over y then x), one column per variable and
// level pair named "<variable>_<level>". Columns are generated variable-
// major, level-minor, with levels in the field's native order.
//
// The result shares no storage with the field; each stage owns its output.
func Flatten(field *Field, variables []string) (*Table, error) {
	if err := field.Validate(); err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}

	table := NewTable(field.Ny * field.Nx)
	for _, v := range variables {
		for k, level := range field.Levels {
			col, err := field.LevelSlice(v, k)
			if err != nil {
				return nil, fmt.Errorf("flatten: %w", err)
			}
			if err := table.AddColumn(LevelColumnName(v, level), col); err != nil {
				return nil, fmt.Errorf("flatten: %w", err)
			}
		}
	}
	return table, nil
}

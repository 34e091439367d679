package core

// Row is a single result row keyed by column name.
type Row map[string]interface{}

// ProjectRow returns a copy of row restricted to the named columns.
// An empty column list keeps the row as is.
func ProjectRow(row Row, columns []string) Row {
	if len(columns) == 0 {
		return row
	}
	projected := make(Row, len(columns))
	for _, col := range columns {
		if value, ok := row[col]; ok {
			projected[col] = value
		}
	}
	return projected
}

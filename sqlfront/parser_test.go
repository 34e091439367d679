package sqlfront

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsql/core"
)

func TestParseSelectStar(t *testing.T) {
	plan, err := Parse("SELECT * FROM employees")
	require.NoError(t, err)

	selectPlan, ok := plan.(*core.SelectPlan)
	require.True(t, ok)
	scan, ok := selectPlan.Input.(*core.ScanPlan)
	require.True(t, ok)
	assert.Equal(t, "employees", scan.Table)
	assert.Empty(t, scan.Columns)
}

func TestParseProjection(t *testing.T) {
	plan, err := Parse("SELECT name, salary FROM employees")
	require.NoError(t, err)

	selectPlan := plan.(*core.SelectPlan)
	projection, ok := selectPlan.Input.(*core.ProjectionPlan)
	require.True(t, ok)
	assert.Equal(t, []string{"name", "salary"}, projection.Columns)

	scan, ok := projection.Input.(*core.ScanPlan)
	require.True(t, ok)
	assert.Equal(t, []string{"name", "salary"}, scan.Columns)
}

func TestParseWhereComparison(t *testing.T) {
	plan, err := Parse("SELECT * FROM employees WHERE salary > 50000")
	require.NoError(t, err)

	filter, ok := plan.(*core.SelectPlan).Input.(*core.FilterPlan)
	require.True(t, ok)

	fn, ok := filter.Predicate.(*core.FunctionExpression)
	require.True(t, ok)
	assert.Equal(t, ">", fn.Op)
	assert.Equal(t, &core.ColumnExpression{Name: "salary"}, fn.Args[0])
	assert.Equal(t, &core.LiteralExpression{Value: int64(50000)}, fn.Args[1])
}

func TestParseWhereNotEqualNormalized(t *testing.T) {
	plan, err := Parse("SELECT * FROM employees WHERE department <> 'Sales'")
	require.NoError(t, err)

	filter := plan.(*core.SelectPlan).Input.(*core.FilterPlan)
	fn := filter.Predicate.(*core.FunctionExpression)
	assert.Equal(t, "!=", fn.Op)
	assert.Equal(t, &core.LiteralExpression{Value: "Sales"}, fn.Args[1])
}

func TestParseWhereBoolChain(t *testing.T) {
	plan, err := Parse("SELECT * FROM employees WHERE salary > 1 AND salary < 10 AND department = 'Engineering'")
	require.NoError(t, err)

	filter := plan.(*core.SelectPlan).Input.(*core.FilterPlan)
	outer := filter.Predicate.(*core.FunctionExpression)
	assert.Equal(t, "and", outer.Op)
	require.Len(t, outer.Args, 2)

	inner, ok := outer.Args[0].(*core.FunctionExpression)
	require.True(t, ok)
	assert.Equal(t, "and", inner.Op)
}

func TestParseScanReadsPredicateColumns(t *testing.T) {
	plan, err := Parse("SELECT name FROM employees WHERE salary > 50000")
	require.NoError(t, err)

	projection := plan.(*core.SelectPlan).Input.(*core.ProjectionPlan)
	assert.Equal(t, []string{"name"}, projection.Columns)

	filter := projection.Input.(*core.FilterPlan)
	scan := filter.Input.(*core.ScanPlan)
	assert.Equal(t, []string{"name", "salary"}, scan.Columns)
}

func TestParseLimit(t *testing.T) {
	plan, err := Parse("SELECT name FROM employees LIMIT 10")
	require.NoError(t, err)

	limit, ok := plan.(*core.SelectPlan).Input.(*core.LimitPlan)
	require.True(t, ok)
	assert.Equal(t, 10, limit.Count)

	_, ok = limit.Input.(*core.ProjectionPlan)
	assert.True(t, ok)
}

func TestParseFloatAndBoolConstants(t *testing.T) {
	plan, err := Parse("SELECT * FROM employees WHERE rate >= 1.5")
	require.NoError(t, err)
	filter := plan.(*core.SelectPlan).Input.(*core.FilterPlan)
	fn := filter.Predicate.(*core.FunctionExpression)
	assert.Equal(t, &core.LiteralExpression{Value: 1.5}, fn.Args[1])
}

func TestParseRejectsUnsupportedStatements(t *testing.T) {
	cases := []struct {
		name string
		sql  string
	}{
		{"insert", "INSERT INTO employees VALUES (1)"},
		{"multi table", "SELECT * FROM a, b"},
		{"star mixed with columns", "SELECT *, name FROM employees"},
		{"expression limit", "SELECT * FROM employees LIMIT 1+1"},
		{"garbage", "SELEC * FORM t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.sql)
			assert.Error(t, err)
		})
	}
}

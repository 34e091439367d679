package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsql/catalog"
	"gridsql/core"
)

type stubFetcher struct {
	fetchName string
	sources   []string
	rows      []core.Row
}

func (f *stubFetcher) Fetch(_ context.Context, fetchName string, sources []string) ([]core.Row, error) {
	f.fetchName = fetchName
	f.sources = sources
	return f.rows, nil
}

func testRows() []core.Row {
	return []core.Row{
		{"id": int64(1), "name": "alice", "age": int64(30)},
		{"id": int64(2), "name": "bob", "age": int64(25)},
		{"id": int64(3), "name": "carol", "age": int64(35)},
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	exec := NewExecutor(catalog.NewCatalog(), nil)
	rows, err := exec.Execute(context.Background(), core.NewEmptyPlan())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecuteFilterProjectionLimit(t *testing.T) {
	fetcher := &stubFetcher{rows: testRows()}
	exec := NewExecutor(catalog.NewCatalog(), fetcher)

	plan := &core.LimitPlan{
		Count: 1,
		Input: &core.ProjectionPlan{
			Columns: []string{"name"},
			Input: &core.FilterPlan{
				Predicate: &core.FunctionExpression{
					Op: ">",
					Args: []core.Expression{
						&core.ColumnExpression{Name: "age"},
						&core.LiteralExpression{Value: int64(26)},
					},
				},
				Input: &core.FetchPlan{FetchName: "q/stage-0/n1", FetchNodes: []string{"n1"}},
			},
		},
	}

	rows, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.Row{"name": "alice"}, rows[0])
	assert.Equal(t, "q/stage-0/n1", fetcher.fetchName)
	assert.Equal(t, []string{"n1"}, fetcher.sources)
}

func TestExecuteRejectsExchange(t *testing.T) {
	exec := NewExecutor(catalog.NewCatalog(), nil)
	plan := &core.ExchangePlan{
		Kind:        core.ExchangeConvergent,
		ScatterExpr: &core.LiteralExpression{Value: int64(0)},
		Input:       core.NewEmptyPlan(),
	}

	_, err := exec.Execute(context.Background(), plan)
	assert.Error(t, err)
}

func TestExecuteFetchWithoutExchangeLayer(t *testing.T) {
	exec := NewExecutor(catalog.NewCatalog(), nil)
	plan := &core.FetchPlan{FetchName: "q/stage-0/n1", FetchNodes: []string{"n1"}}

	_, err := exec.Execute(context.Background(), plan)
	assert.Error(t, err)
}

func TestEvalPredicateOperators(t *testing.T) {
	row := core.Row{"id": int64(7), "name": "alice"}

	tests := []struct {
		name string
		expr core.Expression
		want bool
	}{
		{
			name: "numeric equality across widths",
			expr: &core.FunctionExpression{Op: "=", Args: []core.Expression{
				&core.ColumnExpression{Name: "id"},
				&core.LiteralExpression{Value: float64(7)},
			}},
			want: true,
		},
		{
			name: "string comparison",
			expr: &core.FunctionExpression{Op: "=", Args: []core.Expression{
				&core.ColumnExpression{Name: "name"},
				&core.LiteralExpression{Value: "alice"},
			}},
			want: true,
		},
		{
			name: "conjunction",
			expr: &core.FunctionExpression{Op: "and", Args: []core.Expression{
				&core.FunctionExpression{Op: ">", Args: []core.Expression{
					&core.ColumnExpression{Name: "id"},
					&core.LiteralExpression{Value: int64(5)},
				}},
				&core.FunctionExpression{Op: "!=", Args: []core.Expression{
					&core.ColumnExpression{Name: "name"},
					&core.LiteralExpression{Value: "bob"},
				}},
			}},
			want: true,
		},
		{
			name: "failing bound",
			expr: &core.FunctionExpression{Op: "<", Args: []core.Expression{
				&core.ColumnExpression{Name: "id"},
				&core.LiteralExpression{Value: int64(5)},
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalPredicate(tt.expr, row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScatterRowsCoversAllDestinations(t *testing.T) {
	rows := make([]core.Row, 0, 100)
	for i := 0; i < 100; i++ {
		rows = append(rows, core.Row{"id": int64(i)})
	}

	buckets := ScatterRows(&core.ColumnExpression{Name: "id"}, rows, 4)
	require.Len(t, buckets, 4)

	total := 0
	for i, bucket := range buckets {
		total += len(bucket)
		for _, row := range bucket {
			assert.Equal(t, i, int(row["id"].(int64)%4))
		}
	}
	assert.Equal(t, 100, total)
}

func TestScatterRowsSingleDestination(t *testing.T) {
	rows := testRows()
	buckets := ScatterRows(&core.LiteralExpression{Value: int64(0)}, rows, 1)
	require.Len(t, buckets, 1)
	assert.Len(t, buckets[0], len(rows))
}

func TestPartitionIndexIsStable(t *testing.T) {
	row := core.Row{"id": int64(11)}
	expr := &core.FunctionExpression{Op: "blockNumber"}

	first := PartitionIndex(expr, row, 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, PartitionIndex(expr, row, 3))
	}
}

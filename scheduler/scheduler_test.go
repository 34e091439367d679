package scheduler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsql/cluster"
	"gridsql/core"
	"gridsql/session"
)

func createTestContext(t *testing.T) *session.QueryContext {
	t.Helper()

	topology := cluster.NewCluster()
	require.NoError(t, topology.AddLocalNode("dummy_local", 1, "localhost:9090"))
	require.NoError(t, topology.AddNode("dummy", 1, "github.com:9090"))
	return session.NewQueryContext(topology)
}

func TestRescheduleWithoutExchange(t *testing.T) {
	ctx := createTestContext(t)
	plan := &core.SelectPlan{Input: core.NewEmptyPlan()}

	localPlan, tasks, err := Reschedule(ctx, plan)

	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Same(t, core.PlanNode(plan), localPlan)
}

func TestRescheduleNonConvergentTerminal(t *testing.T) {
	tests := []struct {
		name string
		kind core.ExchangeKind
	}{
		{name: "normal terminal", kind: core.ExchangeNormal},
		{name: "expansive terminal", kind: core.ExchangeExpansive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := createTestContext(t)
			plan := &core.ExchangePlan{
				Kind:        tt.kind,
				ScatterExpr: &core.LiteralExpression{Value: int64(1)},
				Input:       core.NewEmptyPlan(),
			}

			_, tasks, err := Reschedule(ctx, plan)

			require.Error(t, err)
			assert.Empty(t, tasks)
			var coded *core.Error
			require.ErrorAs(t, err, &coded)
			assert.Equal(t, core.ErrCodeNonConvergentPlan, coded.Code)
			assert.Equal(t, "The final exchange plan must be convergent", coded.Message)
		})
	}
}

func TestRescheduleNonConvergentTerminalSingleNode(t *testing.T) {
	// On a one-node cluster "all nodes" and "the local node" coincide by
	// value; a terminal reshuffle must still be rejected.
	topology := cluster.NewCluster()
	require.NoError(t, topology.AddLocalNode("dummy_local", 1, "localhost:9090"))
	ctx := session.NewQueryContext(topology)

	plan := &core.ExchangePlan{
		Kind:        core.ExchangeNormal,
		ScatterExpr: &core.LiteralExpression{Value: int64(1)},
		Input:       core.NewEmptyPlan(),
	}

	_, _, err := Reschedule(ctx, plan)

	var coded *core.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, core.ErrCodeNonConvergentPlan, coded.Code)
}

func TestRescheduleSingleConvergentExchange(t *testing.T) {
	ctx := createTestContext(t)
	scatterExpr := &core.LiteralExpression{Value: int64(0)}
	plan := &core.ExchangePlan{
		Kind:        core.ExchangeConvergent,
		ScatterExpr: scatterExpr,
		Input:       core.NewEmptyPlan(),
	}

	localPlan, tasks, err := Reschedule(ctx, plan)
	require.NoError(t, err)

	require.Len(t, tasks, 2)

	assert.Equal(t, "dummy_local", tasks[0].Node.Name)
	assert.Equal(t, []string{"dummy_local"}, tasks[0].Task.Scatters)
	assert.Same(t, core.Expression(scatterExpr), tasks[0].Task.ScatterExpr)
	assert.Equal(t, core.NewEmptyPlan(), tasks[0].Task.Plan)

	assert.Equal(t, "dummy", tasks[1].Node.Name)
	assert.Equal(t, []string{"dummy_local"}, tasks[1].Task.Scatters)
	assert.Same(t, core.Expression(scatterExpr), tasks[1].Task.ScatterExpr)
	assert.Equal(t, core.NewEmptyPlan(), tasks[1].Task.Plan)

	fetch, ok := localPlan.(*core.FetchPlan)
	require.True(t, ok, "local plan must be a fetch node")
	assert.True(t, strings.HasSuffix(fetch.FetchName, "/dummy_local"))
	assert.Equal(t, []string{"dummy_local", "dummy"}, fetch.FetchNodes)
}

func TestRescheduleConvergentOverExpansive(t *testing.T) {
	ctx := createTestContext(t)
	expansiveExpr := &core.FunctionExpression{Op: "blockNumber"}
	convergentExpr := &core.LiteralExpression{Value: int64(0)}
	plan := &core.SelectPlan{
		Input: &core.ExchangePlan{
			Kind:        core.ExchangeConvergent,
			ScatterExpr: convergentExpr,
			Input: &core.SelectPlan{
				Input: &core.ExchangePlan{
					Kind:        core.ExchangeExpansive,
					ScatterExpr: expansiveExpr,
					Input:       core.NewEmptyPlan(),
				},
			},
		},
	}

	localPlan, tasks, err := Reschedule(ctx, plan)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// Expansive stage: the local node alone produces, fanning out to both.
	assert.Equal(t, "dummy_local", tasks[0].Node.Name)
	assert.Equal(t, []string{"dummy_local", "dummy"}, tasks[0].Task.Scatters)
	assert.Same(t, core.Expression(expansiveExpr), tasks[0].Task.ScatterExpr)
	assert.Equal(t, core.NewEmptyPlan(), tasks[0].Task.Plan)

	// Convergent stage: both nodes gather back onto the local one. The
	// local node's convergent task follows its expansive task directly.
	assert.Equal(t, "dummy_local", tasks[1].Node.Name)
	assert.Equal(t, []string{"dummy_local"}, tasks[1].Task.Scatters)
	assert.Same(t, core.Expression(convergentExpr), tasks[1].Task.ScatterExpr)

	assert.Equal(t, "dummy", tasks[2].Node.Name)
	assert.Equal(t, []string{"dummy_local"}, tasks[2].Task.Scatters)
	assert.Same(t, core.Expression(convergentExpr), tasks[2].Task.ScatterExpr)

	// Both convergent fragments have the same shape but fetch under their
	// own node's tag.
	left := requireSelectOverFetch(t, tasks[1].Task.Plan)
	right := requireSelectOverFetch(t, tasks[2].Task.Plan)
	finalize := requireSelectOverFetch(t, localPlan)

	assert.True(t, strings.HasSuffix(left.FetchName, "/dummy_local"))
	assert.True(t, strings.HasSuffix(right.FetchName, "/dummy"))
	assert.Equal(t, []string{"dummy_local"}, left.FetchNodes)
	assert.Equal(t, []string{"dummy_local"}, right.FetchNodes)

	assert.True(t, strings.HasSuffix(finalize.FetchName, "/dummy_local"))
	assert.Equal(t, []string{"dummy_local", "dummy"}, finalize.FetchNodes)
}

func TestRescheduleConvergentOverNormal(t *testing.T) {
	ctx := createTestContext(t)
	normalExpr := &core.LiteralExpression{Value: int64(0)}
	convergentExpr := &core.LiteralExpression{Value: int64(1)}
	plan := &core.SelectPlan{
		Input: &core.ExchangePlan{
			Kind:        core.ExchangeConvergent,
			ScatterExpr: convergentExpr,
			Input: &core.SelectPlan{
				Input: &core.ExchangePlan{
					Kind:        core.ExchangeNormal,
					ScatterExpr: normalExpr,
					Input:       core.NewEmptyPlan(),
				},
			},
		},
	}

	localPlan, tasks, err := Reschedule(ctx, plan)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	// Node-major order: each node's reshuffle task precedes its gather task.
	assert.Equal(t, "dummy_local", tasks[0].Node.Name)
	assert.Equal(t, []string{"dummy_local", "dummy"}, tasks[0].Task.Scatters)
	assert.Same(t, core.Expression(normalExpr), tasks[0].Task.ScatterExpr)
	assert.Equal(t, core.NewEmptyPlan(), tasks[0].Task.Plan)

	assert.Equal(t, "dummy_local", tasks[1].Node.Name)
	assert.Equal(t, []string{"dummy_local"}, tasks[1].Task.Scatters)
	assert.Same(t, core.Expression(convergentExpr), tasks[1].Task.ScatterExpr)

	assert.Equal(t, "dummy", tasks[2].Node.Name)
	assert.Equal(t, []string{"dummy_local", "dummy"}, tasks[2].Task.Scatters)
	assert.Same(t, core.Expression(normalExpr), tasks[2].Task.ScatterExpr)
	assert.Equal(t, core.NewEmptyPlan(), tasks[2].Task.Plan)

	assert.Equal(t, "dummy", tasks[3].Node.Name)
	assert.Equal(t, []string{"dummy_local"}, tasks[3].Task.Scatters)
	assert.Same(t, core.Expression(convergentExpr), tasks[3].Task.ScatterExpr)

	left := requireSelectOverFetch(t, tasks[1].Task.Plan)
	right := requireSelectOverFetch(t, tasks[3].Task.Plan)
	finalize := requireSelectOverFetch(t, localPlan)

	assert.True(t, strings.HasSuffix(left.FetchName, "/dummy_local"))
	assert.True(t, strings.HasSuffix(right.FetchName, "/dummy"))
	assert.Equal(t, []string{"dummy_local", "dummy"}, left.FetchNodes)
	assert.Equal(t, []string{"dummy_local", "dummy"}, right.FetchNodes)

	assert.True(t, strings.HasSuffix(finalize.FetchName, "/dummy_local"))
	assert.Equal(t, []string{"dummy_local", "dummy"}, finalize.FetchNodes)
}

func TestRescheduleSingleConvergentManyNodes(t *testing.T) {
	topology := cluster.NewCluster()
	require.NoError(t, topology.AddLocalNode("node-a", 1, "localhost:9090"))
	for _, name := range []string{"node-b", "node-c", "node-d"} {
		require.NoError(t, topology.AddNode(name, 1, name+":9090"))
	}
	ctx := session.NewQueryContext(topology)

	plan := &core.ExchangePlan{
		Kind:        core.ExchangeConvergent,
		ScatterExpr: &core.LiteralExpression{Value: int64(0)},
		Input:       core.NewEmptyPlan(),
	}

	localPlan, tasks, err := Reschedule(ctx, plan)
	require.NoError(t, err)

	require.Len(t, tasks, 4)
	for i, name := range []string{"node-a", "node-b", "node-c", "node-d"} {
		assert.Equal(t, name, tasks[i].Node.Name)
		assert.Equal(t, []string{"node-a"}, tasks[i].Task.Scatters)
	}

	fetch, ok := localPlan.(*core.FetchPlan)
	require.True(t, ok)
	assert.Equal(t, []string{"node-a", "node-b", "node-c", "node-d"}, fetch.FetchNodes)
}

func TestRescheduleIsDeterministic(t *testing.T) {
	topology := cluster.NewCluster()
	require.NoError(t, topology.AddLocalNode("dummy_local", 1, "localhost:9090"))
	require.NoError(t, topology.AddNode("dummy", 1, "github.com:9090"))

	plan := &core.SelectPlan{
		Input: &core.ExchangePlan{
			Kind:        core.ExchangeConvergent,
			ScatterExpr: &core.LiteralExpression{Value: int64(0)},
			Input: &core.SelectPlan{
				Input: &core.ExchangePlan{
					Kind:        core.ExchangeNormal,
					ScatterExpr: &core.ColumnExpression{Name: "id"},
					Input:       &core.ScanPlan{Table: "events"},
				},
			},
		},
	}

	// Same query ID, same topology, same plan: byte-identical output.
	first := session.NewQueryContextWithID("query-fixed", topology)
	second := session.NewQueryContextWithID("query-fixed", topology)

	localA, tasksA, err := Reschedule(first, plan)
	require.NoError(t, err)
	localB, tasksB, err := Reschedule(second, plan)
	require.NoError(t, err)

	assert.Equal(t, localA, localB)
	require.Len(t, tasksB, len(tasksA))
	for i := range tasksA {
		assert.Equal(t, tasksA[i].Node.Name, tasksB[i].Node.Name)
		assert.Equal(t, tasksA[i].Task, tasksB[i].Task)
	}
}

func TestReschedulePreservesOperatorShape(t *testing.T) {
	ctx := createTestContext(t)
	plan := &core.SelectPlan{
		Input: &core.LimitPlan{
			Count: 10,
			Input: &core.ExchangePlan{
				Kind:        core.ExchangeConvergent,
				ScatterExpr: &core.LiteralExpression{Value: int64(0)},
				Input: &core.ProjectionPlan{
					Columns: []string{"id", "name"},
					Input: &core.FilterPlan{
						Predicate: &core.FunctionExpression{
							Op: "=",
							Args: []core.Expression{
								&core.ColumnExpression{Name: "id"},
								&core.LiteralExpression{Value: int64(42)},
							},
						},
						Input: &core.ScanPlan{Table: "users"},
					},
				},
			},
		},
	}

	localPlan, tasks, err := Reschedule(ctx, plan)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	// The fragment below the boundary keeps its exact operator chain.
	fragment, ok := tasks[0].Task.Plan.(*core.ProjectionPlan)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, fragment.Columns)
	filter, ok := fragment.Input.(*core.FilterPlan)
	require.True(t, ok)
	_, ok = filter.Input.(*core.ScanPlan)
	require.True(t, ok)

	// Above the boundary, only the exchange position changed.
	sel, ok := localPlan.(*core.SelectPlan)
	require.True(t, ok)
	limit, ok := sel.Input.(*core.LimitPlan)
	require.True(t, ok)
	assert.Equal(t, 10, limit.Count)
	_, ok = limit.Input.(*core.FetchPlan)
	require.True(t, ok)
}

func TestRescheduleStageTagsAreUniquePerConsumer(t *testing.T) {
	ctx := createTestContext(t)
	plan := &core.SelectPlan{
		Input: &core.ExchangePlan{
			Kind:        core.ExchangeConvergent,
			ScatterExpr: &core.LiteralExpression{Value: int64(0)},
			Input: &core.SelectPlan{
				Input: &core.ExchangePlan{
					Kind:        core.ExchangeNormal,
					ScatterExpr: &core.ColumnExpression{Name: "id"},
					Input:       core.NewEmptyPlan(),
				},
			},
		},
	}

	_, tasks, err := Reschedule(ctx, plan)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, assignment := range tasks {
		if fetch := findFetch(assignment.Task.Plan); fetch != nil {
			assert.False(t, seen[fetch.FetchName], "fetch tag %s reused", fetch.FetchName)
			seen[fetch.FetchName] = true
		}
	}
}

func requireSelectOverFetch(t *testing.T, plan core.PlanNode) *core.FetchPlan {
	t.Helper()

	sel, ok := plan.(*core.SelectPlan)
	require.True(t, ok, "expected a select plan, got %T", plan)
	fetch, ok := sel.Input.(*core.FetchPlan)
	require.True(t, ok, "expected a fetch input, got %T", sel.Input)
	return fetch
}

func findFetch(plan core.PlanNode) *core.FetchPlan {
	if fetch, ok := plan.(*core.FetchPlan); ok {
		return fetch
	}
	for _, child := range plan.Children() {
		if fetch := findFetch(child); fetch != nil {
			return fetch
		}
	}
	return nil
}

// Package executor evaluates physical plan fragments on a single node.
// Exchange boundaries never reach it: plans must pass through the scheduler
// first, which substitutes each boundary with a fetch node.
package executor

import (
	"context"
	"fmt"

	"gridsql/catalog"
	"gridsql/core"
)

// Fetcher receives the rows that remote producers publish for this node.
// Fetch blocks until every source has finished its stream for the tag.
type Fetcher interface {
	Fetch(ctx context.Context, fetchName string, sources []string) ([]core.Row, error)
}

// Executor runs plan fragments against a node's catalog, resolving fetch
// nodes through the exchange layer.
type Executor struct {
	catalog *catalog.Catalog
	fetcher Fetcher
}

// NewExecutor creates an executor. fetcher may be nil for plans that
// contain no fetch nodes (pure local execution).
func NewExecutor(cat *catalog.Catalog, fetcher Fetcher) *Executor {
	return &Executor{catalog: cat, fetcher: fetcher}
}

// Execute evaluates a plan fragment bottom-up and returns its rows.
func (e *Executor) Execute(ctx context.Context, plan core.PlanNode) ([]core.Row, error) {
	switch p := plan.(type) {
	case *core.EmptyPlan:
		return nil, nil

	case *core.ScanPlan:
		table, err := e.catalog.Lookup(p.Table)
		if err != nil {
			return nil, err
		}
		return scanTable(table, p.Columns)

	case *core.FilterPlan:
		input, err := e.Execute(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		var filtered []core.Row
		for _, row := range input {
			keep, err := EvalPredicate(p.Predicate, row)
			if err != nil {
				return nil, err
			}
			if keep {
				filtered = append(filtered, row)
			}
		}
		return filtered, nil

	case *core.ProjectionPlan:
		input, err := e.Execute(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		projected := make([]core.Row, len(input))
		for i, row := range input {
			projected[i] = core.ProjectRow(row, p.Columns)
		}
		return projected, nil

	case *core.LimitPlan:
		input, err := e.Execute(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		if p.Count >= 0 && len(input) > p.Count {
			input = input[:p.Count]
		}
		return input, nil

	case *core.SelectPlan:
		return e.Execute(ctx, p.Input)

	case *core.FetchPlan:
		if e.fetcher == nil {
			return nil, fmt.Errorf("plan fetches %s but the executor has no exchange layer", p.FetchName)
		}
		return e.fetcher.Fetch(ctx, p.FetchName, p.FetchNodes)

	case *core.ExchangePlan:
		return nil, fmt.Errorf("exchange boundary reached the executor; plan was not scheduled")

	default:
		return nil, fmt.Errorf("cannot execute plan node type %T", plan)
	}
}

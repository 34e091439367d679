package scheduler

import (
	"gridsql/cluster"
	"gridsql/core"
)

// ScattersOptimizer closes a local plan with the exchange boundaries it
// needs to execute across a cluster: every node scans its own partition of
// the data and a convergent boundary gathers the results on the
// coordinator. Where boundaries are placed beyond this is the query
// optimizer's business, not the scheduler's.
type ScattersOptimizer struct {
	cluster *cluster.Cluster
}

// NewScattersOptimizer creates an optimizer for the given topology.
func NewScattersOptimizer(topology *cluster.Cluster) *ScattersOptimizer {
	return &ScattersOptimizer{cluster: topology}
}

// Optimize returns the plan unchanged on a standalone node; on a cluster it
// wraps the statement input in a convergent exchange so the scheduler's
// terminal invariant holds.
func (o *ScattersOptimizer) Optimize(plan core.PlanNode) core.PlanNode {
	if o.cluster.IsEmpty() {
		return plan
	}
	if alreadyExchanged(plan) {
		return plan
	}

	gather := func(input core.PlanNode) core.PlanNode {
		return &core.ExchangePlan{
			Kind:        core.ExchangeConvergent,
			ScatterExpr: &core.LiteralExpression{Value: int64(0)},
			Input:       input,
		}
	}

	if sel, ok := plan.(*core.SelectPlan); ok {
		return &core.SelectPlan{Input: gather(sel.Input)}
	}
	return gather(plan)
}

// alreadyExchanged reports whether the plan carries any exchange boundary,
// in which case placement was already decided upstream.
func alreadyExchanged(plan core.PlanNode) bool {
	if plan.Type() == core.PlanNodeExchange {
		return true
	}
	for _, child := range plan.Children() {
		if alreadyExchanged(child) {
			return true
		}
	}
	return false
}

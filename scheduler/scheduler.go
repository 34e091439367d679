// Package scheduler derives, from an exchange-annotated logical plan, the
// plan fragment the coordinator runs itself and the complete assignment of
// fragments to every cluster node, including how each node routes its
// output. Scheduling is a pure, synchronous tree rewrite: it performs no
// I/O and either returns a complete assignment or fails with nothing
// dispatched.
package scheduler

import (
	"fmt"

	"gridsql/cluster"
	"gridsql/core"
	"gridsql/session"
)

// RemoteTask is one node's complete obligation for a query: execute Plan
// locally, then route the output rows to the Scatters nodes using
// ScatterExpr. The scheduler forwards ScatterExpr verbatim from the
// exchange boundary that produced the task.
type RemoteTask struct {
	QueryID     string          `json:"query_id"`
	StageID     string          `json:"stage_id"`
	Plan        core.PlanNode   `json:"-"`
	Scatters    []string        `json:"scatters"`
	ScatterExpr core.Expression `json:"-"`
}

// TaskAssignment pairs a cluster node with one task it must run.
type TaskAssignment struct {
	Node *cluster.Node
	Task *RemoteTask
}

// resolvedStage records one resolved exchange boundary, innermost first.
type resolvedStage struct {
	id       string        // "<queryID>/stage-<n>", unique per boundary
	kind     core.ExchangeKind
	fragment core.PlanNode // the boundary's child, deeper boundaries already substituted
	sources  *nodeSet      // nodes executing fragment
	dests    *nodeSet      // nodes receiving its output
	expr     core.Expression
}

// planScheduler carries the per-call state of one Reschedule pass.
type planScheduler struct {
	ctx      *session.QueryContext
	nodes    []*cluster.Node
	localOrd uint32
	stages   []*resolvedStage
}

// Reschedule resolves every exchange boundary in plan against the session's
// cluster topology. It returns the plan the local node must run (with each
// boundary replaced by a fetch of its source nodes) and the ordered task
// list for the runtime dispatcher, node-major and stage-minor with inner
// stages first. A plan without boundaries is returned unchanged with no
// tasks. If boundaries exist but the outermost one does not converge on the
// local node, Reschedule fails with core.ErrCodeNonConvergentPlan and emits
// nothing.
func Reschedule(ctx *session.QueryContext, plan core.PlanNode) (core.PlanNode, []TaskAssignment, error) {
	topology := ctx.Cluster()
	local, err := topology.LocalNode()
	if err != nil {
		return nil, nil, err
	}

	nodes := topology.Nodes()
	s := &planScheduler{ctx: ctx, nodes: nodes}
	for ordinal, node := range nodes {
		if node.Name == local.Name {
			s.localOrd = uint32(ordinal)
		}
	}

	rewritten, _, err := s.resolve(plan)
	if err != nil {
		return nil, nil, err
	}

	if len(s.stages) == 0 {
		// Nothing to distribute: the local node runs the input unchanged.
		return plan, nil, nil
	}

	// The outermost boundary must gather onto the local node, or the query
	// result would stay scattered across the cluster. Checking the kind
	// rather than the destination set keeps the rule meaningful on a
	// single-node cluster, where "all nodes" and "the local node" coincide
	// by value.
	if s.stages[len(s.stages)-1].kind != core.ExchangeConvergent {
		return nil, nil, core.ErrNonConvergentPlan()
	}

	localPlan := bindFetchConsumer(rewritten, local.Name)
	tasks := s.emitTasks()

	core.GetTracer().Debug(core.TraceComponentScheduler, "Plan rescheduled", core.TraceContext(
		"query", ctx.ID(),
		"stages", len(s.stages),
		"tasks", len(tasks),
	))
	return localPlan, tasks, nil
}

// resolve rewrites plan bottom-up, substituting each exchange boundary with
// a fetch of its source set. It returns the rewritten subtree together with
// the set of nodes its output currently lives on: the destination set of
// the subtree's outermost boundary, or every node when the subtree contains
// none, since an unscheduled fragment runs data-parallel on the whole
// cluster. The enclosing boundary's source set depends on it.
func (s *planScheduler) resolve(plan core.PlanNode) (core.PlanNode, *nodeSet, error) {
	switch p := plan.(type) {
	case *core.EmptyPlan, *core.ScanPlan:
		return plan, newFullNodeSet(s.nodes), nil

	case *core.FilterPlan:
		input, dest, err := s.resolve(p.Input)
		if err != nil {
			return nil, nil, err
		}
		return &core.FilterPlan{Predicate: p.Predicate, Input: input}, dest, nil

	case *core.ProjectionPlan:
		input, dest, err := s.resolve(p.Input)
		if err != nil {
			return nil, nil, err
		}
		return &core.ProjectionPlan{Columns: p.Columns, Input: input}, dest, nil

	case *core.LimitPlan:
		input, dest, err := s.resolve(p.Input)
		if err != nil {
			return nil, nil, err
		}
		return &core.LimitPlan{Count: p.Count, Input: input}, dest, nil

	case *core.SelectPlan:
		input, dest, err := s.resolve(p.Input)
		if err != nil {
			return nil, nil, err
		}
		return &core.SelectPlan{Input: input}, dest, nil

	case *core.ExchangePlan:
		return s.resolveExchange(p)

	case *core.FetchPlan:
		return nil, nil, fmt.Errorf("plan already contains a fetch node; it was scheduled before")

	default:
		return nil, nil, fmt.Errorf("cannot schedule plan node type %T", plan)
	}
}

// resolveExchange resolves one boundary after its child. The child's
// destination set (or {local} for the innermost boundary) feeds the
// participation rules for the boundary's kind.
func (s *planScheduler) resolveExchange(p *core.ExchangePlan) (core.PlanNode, *nodeSet, error) {
	fragment, innerDest, err := s.resolve(p.Input)
	if err != nil {
		return nil, nil, err
	}

	var sources, dests *nodeSet
	switch p.Kind {
	case core.ExchangeNormal:
		// Upstream data is already partitioned one fragment per node;
		// reshuffle it all-to-all.
		sources = newFullNodeSet(s.nodes)
		dests = newFullNodeSet(s.nodes)
	case core.ExchangeExpansive:
		// The upstream fragment is not partitionable: run it once on the
		// coordinator, then fan the output out.
		sources = s.localOnly()
		dests = newFullNodeSet(s.nodes)
	case core.ExchangeConvergent:
		// Gather whatever is currently distributed back to a single sink.
		sources = innerDest
		dests = s.localOnly()
	default:
		return nil, nil, fmt.Errorf("unknown exchange kind %q", p.Kind)
	}

	stage := &resolvedStage{
		id:       fmt.Sprintf("%s/stage-%d", s.ctx.ID(), len(s.stages)),
		kind:     p.Kind,
		fragment: fragment,
		sources:  sources,
		dests:    dests,
		expr:     p.ScatterExpr,
	}
	s.stages = append(s.stages, stage)

	fetch := &core.FetchPlan{FetchName: stage.id, FetchNodes: sources.names()}
	return fetch, dests, nil
}

// emitTasks linearizes resolved stages into the dispatcher's task list:
// nodes in registration order, and for each node its stages innermost
// first, so a node's full obligation chain is contiguous.
func (s *planScheduler) emitTasks() []TaskAssignment {
	var assignments []TaskAssignment
	for ordinal, node := range s.nodes {
		for _, stage := range s.stages {
			if !stage.sources.contains(uint32(ordinal)) {
				continue
			}
			assignments = append(assignments, TaskAssignment{
				Node: node,
				Task: &RemoteTask{
					QueryID:     s.ctx.ID(),
					StageID:     stage.id,
					Plan:        bindFetchConsumer(stage.fragment, node.Name),
					Scatters:    stage.dests.names(),
					ScatterExpr: stage.expr,
				},
			})
		}
	}
	return assignments
}

func (s *planScheduler) localOnly() *nodeSet {
	return newSingletonNodeSet(s.nodes, s.localOrd)
}

// bindFetchConsumer copies plan with every fetch name completed for the
// node that will execute it. Two consumers fetching from the same producers
// therefore never share a stream tag.
func bindFetchConsumer(plan core.PlanNode, consumer string) core.PlanNode {
	switch p := plan.(type) {
	case *core.FetchPlan:
		nodes := make([]string, len(p.FetchNodes))
		copy(nodes, p.FetchNodes)
		return &core.FetchPlan{
			FetchName:  fmt.Sprintf("%s/%s", p.FetchName, consumer),
			FetchNodes: nodes,
		}
	case *core.FilterPlan:
		return &core.FilterPlan{Predicate: p.Predicate, Input: bindFetchConsumer(p.Input, consumer)}
	case *core.ProjectionPlan:
		return &core.ProjectionPlan{Columns: p.Columns, Input: bindFetchConsumer(p.Input, consumer)}
	case *core.LimitPlan:
		return &core.LimitPlan{Count: p.Count, Input: bindFetchConsumer(p.Input, consumer)}
	case *core.SelectPlan:
		return &core.SelectPlan{Input: bindFetchConsumer(p.Input, consumer)}
	case *core.ExchangePlan:
		return &core.ExchangePlan{Kind: p.Kind, ScatterExpr: p.ScatterExpr, Input: bindFetchConsumer(p.Input, consumer)}
	default:
		// Leaves carry no fetch names.
		return plan
	}
}

package core

import (
	"fmt"
	"strings"
)

// PlanNodeType identifies the variant of a logical plan node.
type PlanNodeType string

const (
	PlanNodeEmpty      PlanNodeType = "Empty"
	PlanNodeScan       PlanNodeType = "Scan"
	PlanNodeFilter     PlanNodeType = "Filter"
	PlanNodeProjection PlanNodeType = "Projection"
	PlanNodeLimit      PlanNodeType = "Limit"
	PlanNodeSelect     PlanNodeType = "Select"
	PlanNodeExchange   PlanNodeType = "Exchange"
	PlanNodeFetch      PlanNodeType = "Fetch"
)

// ExchangeKind describes how data moves across the cluster at an
// exchange boundary.
type ExchangeKind string

const (
	// ExchangeNormal reshuffles already-partitioned data all-to-all.
	ExchangeNormal ExchangeKind = "Normal"
	// ExchangeExpansive runs the input once on the local node and fans
	// the output out to every node.
	ExchangeExpansive ExchangeKind = "Expansive"
	// ExchangeConvergent gathers distributed data back to the local node.
	ExchangeConvergent ExchangeKind = "Convergent"
)

// PlanNode is the closed set of logical plan variants. Traversals switch
// exhaustively on the concrete type; adding a variant is a compile-time
// decision point for every rewrite.
type PlanNode interface {
	Type() PlanNodeType
	Children() []PlanNode
	String() string
}

// EmptyPlan is a leaf producing the empty relation.
type EmptyPlan struct{}

// NewEmptyPlan creates a new empty-relation leaf.
func NewEmptyPlan() *EmptyPlan { return &EmptyPlan{} }

func (p *EmptyPlan) Type() PlanNodeType  { return PlanNodeEmpty }
func (p *EmptyPlan) Children() []PlanNode { return nil }
func (p *EmptyPlan) String() string       { return "Empty" }

// ScanPlan is a leaf data source reading a registered table.
type ScanPlan struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns,omitempty"` // empty means all columns
}

func (p *ScanPlan) Type() PlanNodeType  { return PlanNodeScan }
func (p *ScanPlan) Children() []PlanNode { return nil }
func (p *ScanPlan) String() string {
	if len(p.Columns) == 0 {
		return fmt.Sprintf("Scan(%s)", p.Table)
	}
	return fmt.Sprintf("Scan(%s [%s])", p.Table, strings.Join(p.Columns, ", "))
}

// FilterPlan filters its input by a predicate expression.
type FilterPlan struct {
	Predicate Expression `json:"predicate"`
	Input     PlanNode   `json:"input"`
}

func (p *FilterPlan) Type() PlanNodeType  { return PlanNodeFilter }
func (p *FilterPlan) Children() []PlanNode { return []PlanNode{p.Input} }
func (p *FilterPlan) String() string       { return fmt.Sprintf("Filter(%s)", p.Predicate) }

// ProjectionPlan restricts its input to the named columns.
type ProjectionPlan struct {
	Columns []string `json:"columns"`
	Input   PlanNode `json:"input"`
}

func (p *ProjectionPlan) Type() PlanNodeType  { return PlanNodeProjection }
func (p *ProjectionPlan) Children() []PlanNode { return []PlanNode{p.Input} }
func (p *ProjectionPlan) String() string {
	return fmt.Sprintf("Projection(%s)", strings.Join(p.Columns, ", "))
}

// LimitPlan truncates its input to at most Count rows.
type LimitPlan struct {
	Count int      `json:"count"`
	Input PlanNode `json:"input"`
}

func (p *LimitPlan) Type() PlanNodeType  { return PlanNodeLimit }
func (p *LimitPlan) Children() []PlanNode { return []PlanNode{p.Input} }
func (p *LimitPlan) String() string       { return fmt.Sprintf("Limit(%d)", p.Count) }

// SelectPlan marks the root of a SELECT statement.
type SelectPlan struct {
	Input PlanNode `json:"input"`
}

func (p *SelectPlan) Type() PlanNodeType  { return PlanNodeSelect }
func (p *SelectPlan) Children() []PlanNode { return []PlanNode{p.Input} }
func (p *SelectPlan) String() string       { return "Select" }

// ExchangePlan marks a data-exchange boundary: rows produced by Input must
// move between cluster nodes here, routed by ScatterExpr. The scheduler
// never evaluates ScatterExpr; it is forwarded verbatim into emitted tasks.
type ExchangePlan struct {
	Kind        ExchangeKind `json:"kind"`
	ScatterExpr Expression   `json:"scatter_expr"`
	Input       PlanNode     `json:"input"`
}

func (p *ExchangePlan) Type() PlanNodeType  { return PlanNodeExchange }
func (p *ExchangePlan) Children() []PlanNode { return []PlanNode{p.Input} }
func (p *ExchangePlan) String() string {
	return fmt.Sprintf("Exchange(%s, scatter=%s)", p.Kind, p.ScatterExpr)
}

// FetchPlan is the physical placeholder the scheduler substitutes for an
// exchange boundary: "receive the rows that FetchNodes publish under
// FetchName". FetchNodes always equals the source set of the boundary it
// replaced, in cluster registration order.
type FetchPlan struct {
	FetchName  string   `json:"fetch_name"`
	FetchNodes []string `json:"fetch_nodes"`
}

func (p *FetchPlan) Type() PlanNodeType  { return PlanNodeFetch }
func (p *FetchPlan) Children() []PlanNode { return nil }
func (p *FetchPlan) String() string {
	return fmt.Sprintf("Fetch(%s <- [%s])", p.FetchName, strings.Join(p.FetchNodes, ", "))
}

// FormatPlan renders a plan tree one node per line, children indented,
// for EXPLAIN-style output and trace messages.
func FormatPlan(plan PlanNode) string {
	var b strings.Builder
	formatPlan(&b, plan, 0)
	return b.String()
}

func formatPlan(b *strings.Builder, plan PlanNode, indent int) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString("-> ")
	b.WriteString(plan.String())
	b.WriteString("\n")
	for _, child := range plan.Children() {
		formatPlan(b, child, indent+1)
	}
}

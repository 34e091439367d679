package session

import (
	"fmt"

	"github.com/google/uuid"

	"gridsql/cluster"
)

// QueryContext is the per-query session scope handed to the scheduler and
// the runtime dispatcher. It owns nothing: the cluster topology is borrowed
// and read-only for the lifetime of the query.
type QueryContext struct {
	id      string
	cluster *cluster.Cluster
}

// NewQueryContext creates a context for one query against a resolved
// cluster topology. The generated ID namespaces every fetch stream the
// query produces, so concurrent and retried queries never collide.
func NewQueryContext(topology *cluster.Cluster) *QueryContext {
	return &QueryContext{
		id:      uuid.NewString(),
		cluster: topology,
	}
}

// NewQueryContextWithID creates a context with a caller-chosen ID. Used by
// workers so fetch tags derived on remote nodes match the coordinator's.
func NewQueryContextWithID(id string, topology *cluster.Cluster) *QueryContext {
	return &QueryContext{id: id, cluster: topology}
}

// ID returns the unique query identifier.
func (ctx *QueryContext) ID() string { return ctx.id }

// Cluster returns the resolved topology for this query session.
func (ctx *QueryContext) Cluster() *cluster.Cluster { return ctx.cluster }

// LocalNode returns the coordinator node of this session.
func (ctx *QueryContext) LocalNode() (*cluster.Node, error) {
	node, err := ctx.cluster.LocalNode()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ctx.id, err)
	}
	return node, nil
}

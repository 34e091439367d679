// Package coordinator drives distributed queries end to end: it parses
// SQL into a plan, annotates it with exchange boundaries, schedules it
// across the cluster, dispatches the resulting tasks, and executes the
// local fragment to merge the final result.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gridsql/catalog"
	"gridsql/cluster"
	"gridsql/core"
	"gridsql/distributed/communication"
	"gridsql/distributed/monitoring"
	"gridsql/distributed/worker"
	"gridsql/executor"
	"gridsql/scheduler"
	"gridsql/session"
	"gridsql/sqlfront"
)

// Coordinator is the query entry point on the local node. It hosts the
// local worker, so the node serves exchange traffic for the queries it
// coordinates and for queries coordinated elsewhere.
type Coordinator struct {
	topology  *cluster.Cluster
	catalog   *catalog.Catalog
	worker    *worker.Worker
	transport communication.Transport
	optimizer *scheduler.ScattersOptimizer
	metrics   *monitoring.Metrics
	tracer    *core.Tracer
}

// NewCoordinator creates a coordinator for the local node of topology and
// registers its exchange service on the transport.
func NewCoordinator(topology *cluster.Cluster, cat *catalog.Catalog, transport communication.Transport, codec communication.Codec) (*Coordinator, error) {
	local, err := topology.LocalNode()
	if err != nil {
		return nil, err
	}

	w := worker.NewWorker(local.Name, cat, transport, codec)
	if err := transport.StartExchangeServer(local.Address, w); err != nil {
		return nil, fmt.Errorf("failed to start exchange server on %s: %w", local.Address, err)
	}

	return &Coordinator{
		topology:  topology,
		catalog:   cat,
		worker:    w,
		transport: transport,
		optimizer: scheduler.NewScattersOptimizer(topology),
		metrics:   monitoring.NewMetrics(),
		tracer:    core.GetTracer(),
	}, nil
}

// ExecuteQuery parses sql and runs it across the cluster.
func (c *Coordinator) ExecuteQuery(ctx context.Context, sql string) (*communication.QueryResult, error) {
	plan, err := sqlfront.Parse(sql)
	if err != nil {
		return nil, err
	}
	return c.ExecutePlan(ctx, plan)
}

// ExecutePlan schedules plan across the cluster, dispatches every remote
// task, executes the local fragment, and merges the result. A scheduling
// failure dispatches nothing.
func (c *Coordinator) ExecutePlan(ctx context.Context, plan core.PlanNode) (*communication.QueryResult, error) {
	start := time.Now()

	qctx := session.NewQueryContext(c.topology)
	localPlan, tasks, err := scheduler.Reschedule(qctx, c.optimizer.Optimize(plan))
	if err != nil {
		c.metrics.SchedulingFailures.Inc()
		return nil, err
	}
	c.metrics.QueriesScheduled.Inc()
	c.metrics.TasksEmitted.Add(int64(len(tasks)))

	c.tracer.Info(core.TraceComponentCoordinator, "Coordinator: scheduled query",
		core.TraceContext("query", qctx.ID(), "tasks", len(tasks)))

	// Tasks run concurrently with the local fragment: local fetch nodes
	// block until every producer, local included, finishes its streams.
	// A dispatch failure cancels the whole query, since the dead node's
	// streams would otherwise never terminate and every fetch on them
	// would block forever.
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, assignment := range tasks {
		wg.Add(1)
		go func(assignment scheduler.TaskAssignment) {
			defer wg.Done()
			if err := c.dispatch(execCtx, assignment); err != nil {
				errs <- err
				cancel()
			}
		}(assignment)
	}

	rows, execErr := executor.NewExecutor(c.catalog, c.worker).Execute(execCtx, localPlan)
	wg.Wait()
	close(errs)

	var dispatchErrs []error
	for err := range errs {
		dispatchErrs = append(dispatchErrs, err)
	}
	if len(dispatchErrs) > 0 {
		return nil, errors.Join(dispatchErrs...)
	}
	if execErr != nil {
		return nil, execErr
	}

	return &communication.QueryResult{
		QueryID:  qctx.ID(),
		Rows:     rows,
		Count:    len(rows),
		Duration: time.Since(start),
	}, nil
}

// dispatch sends one task to its node and waits for the outcome.
func (c *Coordinator) dispatch(ctx context.Context, assignment scheduler.TaskAssignment) error {
	req, err := communication.NewTaskRequest(assignment.Task, c.addresses())
	if err != nil {
		return err
	}

	client, err := c.transport.NewExchangeClient(assignment.Node.Address)
	if err != nil {
		return fmt.Errorf("failed to reach node %s: %w", assignment.Node.Name, err)
	}
	defer client.Close()

	resp, err := client.ExecuteTask(ctx, req)
	if err != nil {
		return fmt.Errorf("task %s failed on node %s: %w", assignment.Task.StageID, assignment.Node.Name, err)
	}
	c.metrics.BytesExchanged.Add(resp.BytesSent)
	if resp.Error != "" {
		return fmt.Errorf("task %s failed on node %s: %s", assignment.Task.StageID, assignment.Node.Name, resp.Error)
	}
	return nil
}

// addresses maps every cluster node name to its exchange address.
func (c *Coordinator) addresses() map[string]string {
	nodes := c.topology.Nodes()
	addresses := make(map[string]string, len(nodes))
	for _, node := range nodes {
		addresses[node.Name] = node.Address
	}
	return addresses
}

// ClusterStatus collects a health snapshot from every node.
func (c *Coordinator) ClusterStatus(ctx context.Context) ([]*communication.NodeStatus, error) {
	var statuses []*communication.NodeStatus
	var errs []error
	for _, node := range c.topology.Nodes() {
		client, err := c.transport.NewExchangeClient(node.Address)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.Name, err))
			continue
		}
		status, err := client.Status(ctx)
		client.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.Name, err))
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses, errors.Join(errs...)
}

// Metrics exposes the coordinator's counters.
func (c *Coordinator) Metrics() *monitoring.Metrics {
	return c.metrics
}

// Stop shuts down the transport.
func (c *Coordinator) Stop() error {
	return c.transport.Stop()
}

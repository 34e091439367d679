// Package worker runs the producer side of the exchange: it executes the
// plan fragments assigned to a node, partitions their output with the
// task's routing expression, and publishes one stream per destination.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gridsql/catalog"
	"gridsql/core"
	"gridsql/distributed/communication"
	"gridsql/executor"
)

// Worker is one node's exchange service. It hosts the node's inbox and
// executes the tasks the coordinator dispatches to it.
type Worker struct {
	name      string
	catalog   *catalog.Catalog
	inbox     *communication.Inbox
	transport communication.Transport
	codec     communication.Codec
	tracer    *core.Tracer

	activeTasks int32
	startedAt   time.Time
}

// NewWorker creates a worker named after its cluster node.
func NewWorker(name string, cat *catalog.Catalog, transport communication.Transport, codec communication.Codec) *Worker {
	return &Worker{
		name:      name,
		catalog:   cat,
		inbox:     communication.NewInbox(),
		transport: transport,
		codec:     codec,
		tracer:    core.GetTracer(),
		startedAt: time.Now(),
	}
}

// ExecuteTask runs one fragment and scatters its rows across the task's
// destinations. Execution failures are reported in the response rather
// than as a transport error, and the worker still closes every
// destination stream so consumers do not hang on a failed producer.
func (w *Worker) ExecuteTask(ctx context.Context, req *communication.TaskRequest) (*communication.TaskResponse, error) {
	atomic.AddInt32(&w.activeTasks, 1)
	defer atomic.AddInt32(&w.activeTasks, -1)

	start := time.Now()
	w.tracer.Debug(core.TraceComponentWorker, "Worker: executing stage",
		core.TraceContext("node", w.name, "stage", req.StageID))

	response := &communication.TaskResponse{QueryID: req.QueryID, StageID: req.StageID}

	buckets, err := w.runFragment(ctx, req)
	if err != nil {
		w.tracer.Error(core.TraceComponentWorker, "Worker: stage failed",
			core.TraceContext("node", w.name, "stage", req.StageID, "error", err.Error()))
		response.Error = err.Error()
		buckets = make([][]core.Row, len(req.Scatters))
	}

	// Keep going past a failed destination: the remaining consumers must
	// still see their terminal envelopes, or they would block forever on
	// streams this producer never finishes.
	var publishErrs []error
	for i, dest := range req.Scatters {
		sent, err := w.publishStream(ctx, req, dest, buckets[i])
		if err != nil {
			w.tracer.Error(core.TraceComponentWorker, "Worker: publish failed",
				core.TraceContext("node", w.name, "stage", req.StageID, "dest", dest, "error", err.Error()))
			publishErrs = append(publishErrs, err)
			continue
		}
		response.RowsProduced += len(buckets[i])
		response.BytesSent += sent
	}
	if err := errors.Join(publishErrs...); err != nil {
		if response.Error != "" {
			response.Error += "; " + err.Error()
		} else {
			response.Error = err.Error()
		}
	}

	response.Duration = time.Since(start)
	return response, nil
}

// runFragment executes the task's plan and partitions the output into one
// bucket per destination.
func (w *Worker) runFragment(ctx context.Context, req *communication.TaskRequest) ([][]core.Row, error) {
	plan, err := req.DecodePlan()
	if err != nil {
		return nil, fmt.Errorf("failed to decode plan for stage %s: %w", req.StageID, err)
	}
	expr, err := req.DecodeScatterExpr()
	if err != nil {
		return nil, fmt.Errorf("failed to decode scatter expression for stage %s: %w", req.StageID, err)
	}

	rows, err := executor.NewExecutor(w.catalog, w).Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	return executor.ScatterRows(expr, rows, len(req.Scatters)), nil
}

// publishStream delivers one destination's bucket as a single finished
// stream under the destination's fetch tag.
func (w *Worker) publishStream(ctx context.Context, req *communication.TaskRequest, dest string, rows []core.Row) (int64, error) {
	tag := req.StageID + "/" + dest
	envelope, err := communication.NewBatchEnvelope(tag, w.name, rows, true, w.codec)
	if err != nil {
		return 0, err
	}

	if dest == w.name {
		if err := w.inbox.Publish(ctx, envelope); err != nil {
			return 0, err
		}
		return int64(len(envelope.Payload)), nil
	}

	address, ok := req.Addresses[dest]
	if !ok {
		return 0, fmt.Errorf("no exchange address for destination %s", dest)
	}
	client, err := w.transport.NewExchangeClient(address)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	if err := client.Publish(ctx, envelope); err != nil {
		return 0, fmt.Errorf("failed to publish %s to %s: %w", tag, dest, err)
	}
	return int64(len(envelope.Payload)), nil
}

// Publish delivers one envelope into this node's inbox.
func (w *Worker) Publish(ctx context.Context, envelope *communication.BatchEnvelope) error {
	return w.inbox.Publish(ctx, envelope)
}

// Status reports the worker's health snapshot.
func (w *Worker) Status(ctx context.Context) (*communication.NodeStatus, error) {
	return &communication.NodeStatus{
		Name:        w.name,
		ActiveTasks: int(atomic.LoadInt32(&w.activeTasks)),
		StartedAt:   w.startedAt,
	}, nil
}

// Fetch gathers the rows remote producers published for this node under
// fetchName, blocking until every source finished its stream.
func (w *Worker) Fetch(ctx context.Context, fetchName string, sources []string) ([]core.Row, error) {
	return w.inbox.Fetch(ctx, fetchName, sources)
}

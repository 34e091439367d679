package communication

import (
	"encoding/json"
	"fmt"
	"time"

	"gridsql/core"
	"gridsql/scheduler"
)

// TaskRequest is the wire form of one scheduled task: the fragment plan,
// the routing expression and the ordered destination list, plus the
// exchange addresses the producer needs to reach its destinations.
type TaskRequest struct {
	QueryID     string            `json:"query_id"`
	StageID     string            `json:"stage_id"`
	Plan        json.RawMessage   `json:"plan"`
	ScatterExpr json.RawMessage   `json:"scatter_expr"`
	Scatters    []string          `json:"scatters"`
	Addresses   map[string]string `json:"addresses"`
}

// NewTaskRequest encodes a scheduler task for transport. addresses maps
// every destination node name to its exchange address.
func NewTaskRequest(task *scheduler.RemoteTask, addresses map[string]string) (*TaskRequest, error) {
	plan, err := core.MarshalPlan(task.Plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task plan: %w", err)
	}
	expr, err := core.MarshalExpression(task.ScatterExpr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scatter expression: %w", err)
	}
	return &TaskRequest{
		QueryID:     task.QueryID,
		StageID:     task.StageID,
		Plan:        plan,
		ScatterExpr: expr,
		Scatters:    task.Scatters,
		Addresses:   addresses,
	}, nil
}

// DecodePlan deserializes the fragment plan.
func (r *TaskRequest) DecodePlan() (core.PlanNode, error) {
	return core.UnmarshalPlan(r.Plan)
}

// DecodeScatterExpr deserializes the routing expression.
func (r *TaskRequest) DecodeScatterExpr() (core.Expression, error) {
	return core.UnmarshalExpression(r.ScatterExpr)
}

// TaskResponse reports the outcome of one executed task.
type TaskResponse struct {
	QueryID      string        `json:"query_id"`
	StageID      string        `json:"stage_id"`
	RowsProduced int           `json:"rows_produced"`
	BytesSent    int64         `json:"bytes_sent"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// BatchEnvelope carries one batch of rows from a producer to a consumer's
// exchange inbox. The consumer fetching Tag is finished with a producer
// once it has seen that producer's Last envelope.
type BatchEnvelope struct {
	Tag      string `json:"tag"`      // the consumer's fetch name
	Producer string `json:"producer"` // producing node name
	Last     bool   `json:"last"`     // end of this producer's stream
	Codec    Codec  `json:"codec"`
	Payload  []byte `json:"payload,omitempty"` // compressed JSON-encoded rows
}

// NewBatchEnvelope compresses rows into an envelope.
func NewBatchEnvelope(tag, producer string, rows []core.Row, last bool, codec Codec) (*BatchEnvelope, error) {
	payload, err := encodeRows(rows, codec)
	if err != nil {
		return nil, err
	}
	return &BatchEnvelope{Tag: tag, Producer: producer, Last: last, Codec: codec, Payload: payload}, nil
}

// Rows decompresses and decodes the envelope's payload.
func (e *BatchEnvelope) Rows() ([]core.Row, error) {
	return decodeRows(e.Payload, e.Codec)
}

// NodeStatus is one node's health snapshot.
type NodeStatus struct {
	Name        string    `json:"name"`
	ActiveTasks int       `json:"active_tasks"`
	StartedAt   time.Time `json:"started_at"`
}

// QueryResult is the merged outcome of one distributed query.
type QueryResult struct {
	QueryID  string        `json:"query_id"`
	Rows     []core.Row    `json:"rows"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
}

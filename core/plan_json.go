package core

import (
	"encoding/json"
	"fmt"
)

// planEnvelope is the wire form of a plan node. One flat envelope carries
// the union of all variant fields; Type selects which are meaningful.
type planEnvelope struct {
	Type       PlanNodeType  `json:"type"`
	Table      string        `json:"table,omitempty"`
	Columns    []string      `json:"columns,omitempty"`
	Count      int           `json:"count,omitempty"`
	Kind       ExchangeKind  `json:"kind,omitempty"`
	FetchName  string        `json:"fetch_name,omitempty"`
	FetchNodes []string      `json:"fetch_nodes,omitempty"`
	Expr       *exprEnvelope `json:"expr,omitempty"`
	Input      *planEnvelope `json:"input,omitempty"`
}

// exprEnvelope is the wire form of an expression.
type exprEnvelope struct {
	Kind  string          `json:"kind"` // "literal", "column" or "function"
	Value interface{}     `json:"value,omitempty"`
	Name  string          `json:"name,omitempty"`
	Op    string          `json:"op,omitempty"`
	Args  []*exprEnvelope `json:"args,omitempty"`
}

// MarshalPlan serializes a plan tree for transport between nodes.
func MarshalPlan(plan PlanNode) ([]byte, error) {
	env, err := encodePlan(plan)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalPlan deserializes a plan tree produced by MarshalPlan.
func UnmarshalPlan(data []byte) (PlanNode, error) {
	var env planEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return decodePlan(&env)
}

// MarshalExpression serializes a single expression.
func MarshalExpression(expr Expression) ([]byte, error) {
	env, err := encodeExpr(expr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalExpression deserializes an expression produced by
// MarshalExpression.
func UnmarshalExpression(data []byte) (Expression, error) {
	var env exprEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode expression: %w", err)
	}
	return decodeExpr(&env)
}

func encodePlan(plan PlanNode) (*planEnvelope, error) {
	switch p := plan.(type) {
	case *EmptyPlan:
		return &planEnvelope{Type: PlanNodeEmpty}, nil
	case *ScanPlan:
		return &planEnvelope{Type: PlanNodeScan, Table: p.Table, Columns: p.Columns}, nil
	case *FilterPlan:
		expr, err := encodeExpr(p.Predicate)
		if err != nil {
			return nil, err
		}
		input, err := encodePlan(p.Input)
		if err != nil {
			return nil, err
		}
		return &planEnvelope{Type: PlanNodeFilter, Expr: expr, Input: input}, nil
	case *ProjectionPlan:
		input, err := encodePlan(p.Input)
		if err != nil {
			return nil, err
		}
		return &planEnvelope{Type: PlanNodeProjection, Columns: p.Columns, Input: input}, nil
	case *LimitPlan:
		input, err := encodePlan(p.Input)
		if err != nil {
			return nil, err
		}
		return &planEnvelope{Type: PlanNodeLimit, Count: p.Count, Input: input}, nil
	case *SelectPlan:
		input, err := encodePlan(p.Input)
		if err != nil {
			return nil, err
		}
		return &planEnvelope{Type: PlanNodeSelect, Input: input}, nil
	case *ExchangePlan:
		expr, err := encodeExpr(p.ScatterExpr)
		if err != nil {
			return nil, err
		}
		input, err := encodePlan(p.Input)
		if err != nil {
			return nil, err
		}
		return &planEnvelope{Type: PlanNodeExchange, Kind: p.Kind, Expr: expr, Input: input}, nil
	case *FetchPlan:
		return &planEnvelope{Type: PlanNodeFetch, FetchName: p.FetchName, FetchNodes: p.FetchNodes}, nil
	default:
		return nil, fmt.Errorf("cannot encode plan node type %T", plan)
	}
}

func decodePlan(env *planEnvelope) (PlanNode, error) {
	switch env.Type {
	case PlanNodeEmpty:
		return &EmptyPlan{}, nil
	case PlanNodeScan:
		return &ScanPlan{Table: env.Table, Columns: env.Columns}, nil
	case PlanNodeFilter:
		expr, err := decodeExpr(env.Expr)
		if err != nil {
			return nil, err
		}
		input, err := decodePlan(env.Input)
		if err != nil {
			return nil, err
		}
		return &FilterPlan{Predicate: expr, Input: input}, nil
	case PlanNodeProjection:
		input, err := decodePlan(env.Input)
		if err != nil {
			return nil, err
		}
		return &ProjectionPlan{Columns: env.Columns, Input: input}, nil
	case PlanNodeLimit:
		input, err := decodePlan(env.Input)
		if err != nil {
			return nil, err
		}
		return &LimitPlan{Count: env.Count, Input: input}, nil
	case PlanNodeSelect:
		input, err := decodePlan(env.Input)
		if err != nil {
			return nil, err
		}
		return &SelectPlan{Input: input}, nil
	case PlanNodeExchange:
		expr, err := decodeExpr(env.Expr)
		if err != nil {
			return nil, err
		}
		input, err := decodePlan(env.Input)
		if err != nil {
			return nil, err
		}
		return &ExchangePlan{Kind: env.Kind, ScatterExpr: expr, Input: input}, nil
	case PlanNodeFetch:
		return &FetchPlan{FetchName: env.FetchName, FetchNodes: env.FetchNodes}, nil
	default:
		return nil, fmt.Errorf("cannot decode plan node type %q", env.Type)
	}
}

func encodeExpr(expr Expression) (*exprEnvelope, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case *LiteralExpression:
		return &exprEnvelope{Kind: "literal", Value: e.Value}, nil
	case *ColumnExpression:
		return &exprEnvelope{Kind: "column", Name: e.Name}, nil
	case *FunctionExpression:
		args := make([]*exprEnvelope, len(e.Args))
		for i, arg := range e.Args {
			encoded, err := encodeExpr(arg)
			if err != nil {
				return nil, err
			}
			args[i] = encoded
		}
		return &exprEnvelope{Kind: "function", Op: e.Op, Args: args}, nil
	default:
		return nil, fmt.Errorf("cannot encode expression type %T", expr)
	}
}

func decodeExpr(env *exprEnvelope) (Expression, error) {
	if env == nil {
		return nil, nil
	}
	switch env.Kind {
	case "literal":
		return &LiteralExpression{Value: env.Value}, nil
	case "column":
		return &ColumnExpression{Name: env.Name}, nil
	case "function":
		args := make([]Expression, len(env.Args))
		for i, arg := range env.Args {
			decoded, err := decodeExpr(arg)
			if err != nil {
				return nil, err
			}
			args[i] = decoded
		}
		return &FunctionExpression{Op: env.Op, Args: args}, nil
	default:
		return nil, fmt.Errorf("cannot decode expression kind %q", env.Kind)
	}
}

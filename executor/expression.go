package executor

import (
	"fmt"
	"hash/fnv"

	"gridsql/core"
)

// EvalExpression evaluates an expression against one row. Expressions are
// opaque to the scheduler; only the executor and the scatter partitioner
// give them meaning.
func EvalExpression(expr core.Expression, row core.Row) (interface{}, error) {
	switch e := expr.(type) {
	case *core.LiteralExpression:
		return e.Value, nil
	case *core.ColumnExpression:
		value, ok := row[e.Name]
		if !ok {
			return nil, fmt.Errorf("row has no column %s", e.Name)
		}
		return value, nil
	case *core.FunctionExpression:
		return evalFunction(e, row)
	default:
		return nil, fmt.Errorf("cannot evaluate expression type %T", expr)
	}
}

// EvalPredicate evaluates a boolean expression for filtering.
func EvalPredicate(expr core.Expression, row core.Row) (bool, error) {
	value, err := EvalExpression(expr, row)
	if err != nil {
		return false, err
	}
	result, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %s is not boolean", expr)
	}
	return result, nil
}

func evalFunction(expr *core.FunctionExpression, row core.Row) (interface{}, error) {
	switch expr.Op {
	case "=", "!=", "<", "<=", ">", ">=":
		if len(expr.Args) != 2 {
			return nil, fmt.Errorf("operator %s takes two arguments", expr.Op)
		}
		left, err := EvalExpression(expr.Args[0], row)
		if err != nil {
			return nil, err
		}
		right, err := EvalExpression(expr.Args[1], row)
		if err != nil {
			return nil, err
		}
		return compare(expr.Op, left, right)
	case "and", "or":
		if len(expr.Args) != 2 {
			return nil, fmt.Errorf("operator %s takes two arguments", expr.Op)
		}
		left, err := EvalPredicate(expr.Args[0], row)
		if err != nil {
			return nil, err
		}
		right, err := EvalPredicate(expr.Args[1], row)
		if err != nil {
			return nil, err
		}
		if expr.Op == "and" {
			return left && right, nil
		}
		return left || right, nil
	default:
		return nil, fmt.Errorf("unknown function %s", expr.Op)
	}
}

func compare(op string, left, right interface{}) (interface{}, error) {
	// Numeric values may arrive as different widths depending on whether
	// they crossed the wire, so compare through float64.
	lf, lNumeric := toFloat(left)
	rf, rNumeric := toFloat(right)
	if lNumeric && rNumeric {
		switch op {
		case "=":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "=":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	default:
		return nil, fmt.Errorf("unknown comparison operator %s", op)
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// PartitionIndex picks the destination index for one row by evaluating the
// routing expression and reducing it modulo n. Non-numeric results are
// hashed so any expression yields a stable placement.
func PartitionIndex(expr core.Expression, row core.Row, n int) int {
	if n <= 1 {
		return 0
	}
	value, err := EvalExpression(expr, row)
	if err != nil {
		// Expressions the executor cannot evaluate (opaque routing
		// functions) still partition deterministically by their shape.
		value = expr.String()
	}
	if f, ok := toFloat(value); ok {
		i := int64(f) % int64(n)
		if i < 0 {
			i += int64(n)
		}
		return int(i)
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", value)
	return int(h.Sum32() % uint32(n))
}

// ScatterRows partitions rows across n destinations using the routing
// expression. The result always has exactly n buckets, some possibly empty.
func ScatterRows(expr core.Expression, rows []core.Row, n int) [][]core.Row {
	buckets := make([][]core.Row, n)
	for _, row := range rows {
		idx := PartitionIndex(expr, row, n)
		buckets[idx] = append(buckets[idx], row)
	}
	return buckets
}

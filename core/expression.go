package core

import (
	"fmt"
	"strings"
)

// Expression is the closed set of scalar expression variants carried by
// plan nodes. The scheduler treats expressions as opaque data; only the
// worker-side partitioner and the fragment executor evaluate them.
type Expression interface {
	String() string
}

// LiteralExpression is a constant value.
type LiteralExpression struct {
	Value interface{} `json:"value"`
}

func (e *LiteralExpression) String() string { return fmt.Sprintf("%v", e.Value) }

// ColumnExpression references a column of the input relation by name.
type ColumnExpression struct {
	Name string `json:"name"`
}

func (e *ColumnExpression) String() string { return e.Name }

// FunctionExpression applies a named operator or function to its arguments.
// Comparison operators ("=", "<", ...) use the same representation.
type FunctionExpression struct {
	Op   string       `json:"op"`
	Args []Expression `json:"args"`
}

func (e *FunctionExpression) String() string {
	args := make([]string, len(e.Args))
	for i, arg := range e.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", e.Op, strings.Join(args, ", "))
}

// Package sqlfront turns SQL text into logical plans. It parses with the
// PostgreSQL grammar and lowers the subset the engine executes: single-table
// SELECT with projection, WHERE, and LIMIT.
package sqlfront

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"gridsql/core"
)

// Parse builds the logical plan for one SQL statement.
func Parse(sql string) (core.PlanNode, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(result.Stmts) != 1 {
		return nil, fmt.Errorf("expected exactly one statement, got %d", len(result.Stmts))
	}

	selectStmt := result.Stmts[0].Stmt.GetSelectStmt()
	if selectStmt == nil {
		return nil, fmt.Errorf("only SELECT statements are supported")
	}
	return lowerSelect(selectStmt)
}

func lowerSelect(stmt *pg_query.SelectStmt) (core.PlanNode, error) {
	columns, star, err := lowerTargets(stmt.TargetList)
	if err != nil {
		return nil, err
	}

	var predicate core.Expression
	if stmt.WhereClause != nil {
		predicate, err = lowerExpression(stmt.WhereClause)
		if err != nil {
			return nil, err
		}
	}

	var plan core.PlanNode = &core.EmptyPlan{}
	if len(stmt.FromClause) > 0 {
		if len(stmt.FromClause) > 1 {
			return nil, fmt.Errorf("multiple FROM tables are not supported")
		}
		rangeVar := stmt.FromClause[0].GetRangeVar()
		if rangeVar == nil {
			return nil, fmt.Errorf("unsupported FROM clause")
		}
		// The scan reads every column the projection or the predicate
		// touches; a star scan reads everything.
		scanColumns := columns
		if star {
			scanColumns = nil
		} else if predicate != nil {
			scanColumns = mergeColumns(columns, referencedColumns(predicate))
		}
		plan = &core.ScanPlan{Table: rangeVar.Relname, Columns: scanColumns}
	}

	if predicate != nil {
		plan = &core.FilterPlan{Predicate: predicate, Input: plan}
	}

	if !star {
		plan = &core.ProjectionPlan{Columns: columns, Input: plan}
	}

	if stmt.LimitCount != nil {
		aConst := stmt.LimitCount.GetAConst()
		if aConst == nil || aConst.GetIval() == nil {
			return nil, fmt.Errorf("LIMIT must be an integer constant")
		}
		plan = &core.LimitPlan{Count: int(aConst.GetIval().Ival), Input: plan}
	}

	return &core.SelectPlan{Input: plan}, nil
}

// lowerTargets extracts the projected column names; star reports whether
// the target list is a bare SELECT *.
func lowerTargets(targets []*pg_query.Node) ([]string, bool, error) {
	var columns []string
	for _, target := range targets {
		resTarget := target.GetResTarget()
		if resTarget == nil || resTarget.Val == nil {
			return nil, false, fmt.Errorf("unsupported select target")
		}
		columnRef := resTarget.Val.GetColumnRef()
		if columnRef == nil || len(columnRef.Fields) == 0 {
			return nil, false, fmt.Errorf("only plain column targets are supported")
		}
		if columnRef.Fields[0].GetAStar() != nil {
			if len(targets) != 1 {
				return nil, false, fmt.Errorf("* cannot be combined with other targets")
			}
			return nil, true, nil
		}
		str := columnRef.Fields[len(columnRef.Fields)-1].GetString_()
		if str == nil {
			return nil, false, fmt.Errorf("unsupported column reference")
		}
		columns = append(columns, str.Sval)
	}
	return columns, false, nil
}

// referencedColumns lists the column names an expression reads.
func referencedColumns(expr core.Expression) []string {
	switch e := expr.(type) {
	case *core.ColumnExpression:
		return []string{e.Name}
	case *core.FunctionExpression:
		var columns []string
		for _, arg := range e.Args {
			columns = append(columns, referencedColumns(arg)...)
		}
		return columns
	default:
		return nil
	}
}

func mergeColumns(groups ...[]string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, column := range group {
			if !seen[column] {
				seen[column] = true
				merged = append(merged, column)
			}
		}
	}
	return merged
}

func lowerExpression(node *pg_query.Node) (core.Expression, error) {
	if boolExpr := node.GetBoolExpr(); boolExpr != nil {
		var op string
		switch boolExpr.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			op = "and"
		case pg_query.BoolExprType_OR_EXPR:
			op = "or"
		default:
			return nil, fmt.Errorf("unsupported boolean operator %v", boolExpr.Boolop)
		}
		args := make([]core.Expression, 0, len(boolExpr.Args))
		for _, arg := range boolExpr.Args {
			lowered, err := lowerExpression(arg)
			if err != nil {
				return nil, err
			}
			args = append(args, lowered)
		}
		// The grammar flattens chained AND/OR into one n-ary node;
		// rebuild left-deep binary applications.
		expr := args[0]
		for _, arg := range args[1:] {
			expr = &core.FunctionExpression{Op: op, Args: []core.Expression{expr, arg}}
		}
		return expr, nil
	}

	if aExpr := node.GetAExpr(); aExpr != nil {
		if len(aExpr.Name) == 0 || aExpr.Name[0].GetString_() == nil {
			return nil, fmt.Errorf("unsupported operator expression")
		}
		op := aExpr.Name[0].GetString_().Sval
		if op == "<>" {
			op = "!="
		}
		left, err := lowerExpression(aExpr.Lexpr)
		if err != nil {
			return nil, err
		}
		right, err := lowerExpression(aExpr.Rexpr)
		if err != nil {
			return nil, err
		}
		return &core.FunctionExpression{Op: op, Args: []core.Expression{left, right}}, nil
	}

	if columnRef := node.GetColumnRef(); columnRef != nil {
		if len(columnRef.Fields) == 0 {
			return nil, fmt.Errorf("empty column reference")
		}
		str := columnRef.Fields[len(columnRef.Fields)-1].GetString_()
		if str == nil {
			return nil, fmt.Errorf("unsupported column reference")
		}
		return &core.ColumnExpression{Name: str.Sval}, nil
	}

	if aConst := node.GetAConst(); aConst != nil {
		return lowerConstant(aConst)
	}

	return nil, fmt.Errorf("unsupported expression")
}

func lowerConstant(aConst *pg_query.A_Const) (core.Expression, error) {
	if ival := aConst.GetIval(); ival != nil {
		return &core.LiteralExpression{Value: int64(ival.Ival)}, nil
	}
	if fval := aConst.GetFval(); fval != nil {
		value, err := strconv.ParseFloat(fval.Fval, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric constant %q: %v", fval.Fval, err)
		}
		return &core.LiteralExpression{Value: value}, nil
	}
	if sval := aConst.GetSval(); sval != nil {
		return &core.LiteralExpression{Value: sval.Sval}, nil
	}
	if bval := aConst.GetBoolval(); bval != nil {
		return &core.LiteralExpression{Value: bval.Boolval}, nil
	}
	return nil, fmt.Errorf("unsupported constant: %s", strings.TrimSpace(aConst.String()))
}

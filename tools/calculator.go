package tools

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

// CalculatorArgs are the arguments of the calculator tool.
type CalculatorArgs struct {
	Expression string `json:"expression" jsonschema:"arithmetic expression, e.g. (21.5-20)*2"`
}

// CalculatorResult is returned to the model.
type CalculatorResult struct {
	Result float64 `json:"result"`
}

// NewCalculator returns a tool evaluating + - * / expressions with parentheses.
func NewCalculator() Tool {
	return MustTool("calculator", "Evaluate simple arithmetic expressions.",
		func(_ context.Context, in CalculatorArgs) (CalculatorResult, error) {
			v, err := Evaluate(in.Expression)
			if err != nil {
				return CalculatorResult{}, err
			}
			return CalculatorResult{Result: v}, nil
		})
}

// Evaluate parses and computes an arithmetic expression.
func Evaluate(input string) (float64, error) {
	fs := token.NewFileSet()
	expr, err := parser.ParseExprFrom(fs, "expr", input, 0)
	if err != nil {
		return 0, fmt.Errorf("parse error: %w", err)
	}
	return eval(expr)
}

func eval(e ast.Expr) (float64, error) {
	switch v := e.(type) {
	case *ast.BasicLit:
		if v.Kind != token.INT && v.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal: %s", v.Value)
		}
		return strconv.ParseFloat(v.Value, 64)
	case *ast.ParenExpr:
		return eval(v.X)
	case *ast.UnaryExpr:
		x, err := eval(v.X)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unsupported operator: %s", v.Op)
	case *ast.BinaryExpr:
		left, err := eval(v.X)
		if err != nil {
			return 0, err
		}
		right, err := eval(v.Y)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case token.ADD:
			return left + right, nil
		case token.SUB:
			return left - right, nil
		case token.MUL:
			return left * right, nil
		case token.QUO:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		default:
			return 0, fmt.Errorf("unsupported operator: %s", v.Op)
		}
	default:
		return 0, fmt.Errorf("unsupported expression: %T", e)
	}
}

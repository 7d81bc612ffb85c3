package runtime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

var (
	// ErrDivisionByZero is returned for "/" and "%" with a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrUnsupportedExpression is returned for syntax outside the allowed subset.
	ErrUnsupportedExpression = errors.New("unsupported expression")
)

var allowedBinary = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"&&": true, "||": true,
}

var allowedUnary = map[string]bool{
	"-": true, "+": true, "!": true,
}

// Expression is a parsed expression restricted to literals, variable paths,
// parentheses, unary "- !" and the binary operators
// "+ - * / % == != > >= < <= && ||". Nothing in it can call host code.
type Expression struct {
	source string
	root   ast.Node
}

// ParseExpression tokenizes and parses src, rejecting anything outside the
// allowed subset.
func ParseExpression(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrUnsupportedExpression)
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("error parsing expression '%s': %w", src, err)
	}
	if err := checkNode(tree.Node); err != nil {
		return nil, fmt.Errorf("expression '%s': %w", src, err)
	}
	return &Expression{source: src, root: tree.Node}, nil
}

func (x *Expression) String() string {
	return x.source
}

// isPath reports whether the expression is a bare variable path, whose
// value may be a record or collection rather than a scalar.
func (x *Expression) isPath() bool {
	switch x.root.(type) {
	case *ast.IdentifierNode, *ast.MemberNode, *ast.ChainNode:
		return true
	}
	return false
}

func checkNode(node ast.Node) error {
	switch n := node.(type) {
	case *ast.NilNode, *ast.BoolNode, *ast.IntegerNode, *ast.FloatNode, *ast.StringNode, *ast.IdentifierNode:
		return nil
	case *ast.ChainNode:
		return checkNode(n.Node)
	case *ast.MemberNode:
		if _, err := memberPath(n); err != nil {
			return err
		}
		return nil
	case *ast.UnaryNode:
		if !allowedUnary[n.Operator] {
			return fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, n.Operator)
		}
		return checkNode(n.Node)
	case *ast.BinaryNode:
		if !allowedBinary[n.Operator] {
			return fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, n.Operator)
		}
		if err := checkNode(n.Left); err != nil {
			return err
		}
		return checkNode(n.Right)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedExpression, node)
	}
}

// memberPath flattens a.b["c"].0 into its path segments.
func memberPath(node ast.Node) ([]string, error) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return []string{n.Value}, nil
	case *ast.ChainNode:
		return memberPath(n.Node)
	case *ast.MemberNode:
		base, err := memberPath(n.Node)
		if err != nil {
			return nil, err
		}
		switch p := n.Property.(type) {
		case *ast.StringNode:
			return append(base, p.Value), nil
		case *ast.IntegerNode:
			return append(base, strconv.Itoa(p.Value)), nil
		default:
			return nil, fmt.Errorf("%w: computed member access", ErrUnsupportedExpression)
		}
	default:
		return nil, fmt.Errorf("%w: member access on %T", ErrUnsupportedExpression, node)
	}
}

// EvaluateExpression parses and evaluates src against the run's variables.
func (e *Execution) EvaluateExpression(src string) (Value, error) {
	x, err := e.plan.expression(src)
	if err != nil {
		return Null(), err
	}
	return e.Eval(x)
}

// Eval evaluates a parsed expression. Variable references resolve through
// Resolve, so unknown paths read as Null.
func (e *Execution) Eval(x *Expression) (Value, error) {
	return e.eval(x.root)
}

func (e *Execution) eval(node ast.Node) (Value, error) {
	switch n := node.(type) {
	case *ast.NilNode:
		return Null(), nil
	case *ast.BoolNode:
		return Bool(n.Value), nil
	case *ast.IntegerNode:
		return Number(float64(n.Value)), nil
	case *ast.FloatNode:
		return Number(n.Value), nil
	case *ast.StringNode:
		return String(n.Value), nil
	case *ast.IdentifierNode, *ast.MemberNode, *ast.ChainNode:
		segments, err := memberPath(node)
		if err != nil {
			return Null(), err
		}
		v, _ := e.resolveSegments(segments)
		return v, nil
	case *ast.UnaryNode:
		v, err := e.eval(n.Node)
		if err != nil {
			return Null(), err
		}
		return unary(n.Operator, v)
	case *ast.BinaryNode:
		return e.binary(n)
	default:
		return Null(), fmt.Errorf("%w: %T", ErrUnsupportedExpression, node)
	}
}

func unary(op string, v Value) (Value, error) {
	switch op {
	case "!":
		return Bool(!v.Truthy()), nil
	case "-", "+":
		f, ok := arithmeticOperand(v)
		if !ok {
			return Null(), fmt.Errorf("operator %q needs a number, got %s", op, v.Kind())
		}
		if op == "-" {
			f = -f
		}
		return Number(f), nil
	}
	return Null(), fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, op)
}

func (e *Execution) binary(n *ast.BinaryNode) (Value, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return Null(), err
	}

	// && and || short-circuit
	switch n.Operator {
	case "&&":
		if !left.Truthy() {
			return Bool(false), nil
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return Null(), err
		}
		return Bool(right.Truthy()), nil
	case "||":
		if left.Truthy() {
			return Bool(true), nil
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return Null(), err
		}
		return Bool(right.Truthy()), nil
	}

	right, err := e.eval(n.Right)
	if err != nil {
		return Null(), err
	}
	return combine(n.Operator, left, right)
}

// combine applies a non-logical binary operator to two resolved values.
func combine(op string, left, right Value) (Value, error) {
	switch op {
	case "==":
		return Bool(Compare(left, OpEq, right)), nil
	case "!=":
		return Bool(Compare(left, OpNe, right)), nil
	case ">":
		return Bool(Compare(left, OpGt, right)), nil
	case ">=":
		return Bool(Compare(left, OpGte, right)), nil
	case "<":
		return Bool(Compare(left, OpLt, right)), nil
	case "<=":
		return Bool(Compare(left, OpLte, right)), nil
	case "+":
		x, lok := arithmeticOperand(left)
		y, rok := arithmeticOperand(right)
		if lok && rok {
			return Number(x + y), nil
		}
		return String(left.String() + right.String()), nil
	case "-", "*", "/", "%":
		return arithmetic(op, left, right)
	}
	return Null(), fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, op)
}

// arithmeticOperand reads a value as a number; Null counts as 0.
func arithmeticOperand(v Value) (float64, bool) {
	if v.IsNull() {
		return 0, true
	}
	return v.Number()
}

func arithmetic(op string, left, right Value) (Value, error) {
	x, ok := arithmeticOperand(left)
	if !ok {
		return Null(), fmt.Errorf("operator %q needs numbers, left side is %q", op, left.String())
	}
	y, ok := arithmeticOperand(right)
	if !ok {
		return Null(), fmt.Errorf("operator %q needs numbers, right side is %q", op, right.String())
	}
	switch op {
	case "-":
		return Number(x - y), nil
	case "*":
		return Number(x * y), nil
	case "/":
		if y == 0 {
			return Null(), ErrDivisionByZero
		}
		return Number(x / y), nil
	default:
		if y == 0 {
			return Null(), ErrDivisionByZero
		}
		return Number(math.Mod(x, y)), nil
	}
}

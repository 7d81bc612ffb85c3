package runtime

import (
	"fmt"
	"strings"
)

// Operator is a comparison or string predicate.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNe          Operator = "ne"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpEmpty       Operator = "empty"
	OpNotEmpty    Operator = "notEmpty"
)

var operatorAliases = map[string]Operator{
	"eq":          OpEq,
	"==":          OpEq,
	"=":           OpEq,
	"equals":      OpEq,
	"ne":          OpNe,
	"!=":          OpNe,
	"<>":          OpNe,
	"notEquals":   OpNe,
	"gt":          OpGt,
	">":           OpGt,
	"gte":         OpGte,
	">=":          OpGte,
	"lt":          OpLt,
	"<":           OpLt,
	"lte":         OpLte,
	"<=":          OpLte,
	"contains":    OpContains,
	"notContains": OpNotContains,
	"startsWith":  OpStartsWith,
	"endsWith":    OpEndsWith,
	"empty":       OpEmpty,
	"isEmpty":     OpEmpty,
	"notEmpty":    OpNotEmpty,
	"isNotEmpty":  OpNotEmpty,
}

// ParseOperator normalises an operator name or symbol.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorAliases[strings.TrimSpace(s)]
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", s)
	}
	return op, nil
}

// Unary reports operators that ignore the right-hand operand.
func (op Operator) Unary() bool {
	return op == OpEmpty || op == OpNotEmpty
}

// EvaluateCondition parses the operator and compares left against right.
func EvaluateCondition(left Value, operator string, right Value) (bool, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return false, err
	}
	return Compare(left, op, right), nil
}

// Compare applies op to left and right. Both sides are compared as numbers
// when both parse as numbers, otherwise as strings.
func Compare(left Value, op Operator, right Value) bool {
	switch op {
	case OpEq:
		return looseEqual(left, right)
	case OpNe:
		return !looseEqual(left, right)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := order(left, right)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpContains:
		return contains(left, right)
	case OpNotContains:
		return !contains(left, right)
	case OpStartsWith:
		return !left.IsNull() && strings.HasPrefix(left.String(), right.String())
	case OpEndsWith:
		return !left.IsNull() && strings.HasSuffix(left.String(), right.String())
	case OpEmpty:
		return left.IsEmpty()
	case OpNotEmpty:
		return !left.IsEmpty()
	}
	return false
}

func looseEqual(a, b Value) bool {
	if !a.IsScalar() || !b.IsScalar() {
		return a.Equal(b)
	}
	if a.IsNull() || b.IsNull() {
		return a.IsEmpty() && b.IsEmpty()
	}
	if x, ok := a.Number(); ok {
		if y, ok := b.Number(); ok {
			return x == y
		}
	}
	return a.String() == b.String()
}

func order(a, b Value) (int, bool) {
	if a.IsNull() || b.IsNull() || !a.IsScalar() || !b.IsScalar() {
		return 0, false
	}
	if x, ok := a.Number(); ok {
		if y, ok := b.Number(); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return strings.Compare(a.String(), b.String()), true
}

func contains(container, item Value) bool {
	switch container.Kind() {
	case KindCollection:
		for _, el := range container.Items() {
			if looseEqual(el, item) {
				return true
			}
		}
		return false
	case KindRecord:
		_, ok := container.Field(item.String())
		return ok
	case KindNull:
		return false
	default:
		return strings.Contains(container.String(), item.String())
	}
}

// Condition is a ConditionRule whose right-hand side has been resolved.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Filter is an AND-combined set of conditions over record fields. Stores
// receive field ids, never human names.
type Filter []Condition

// Match reports whether a record satisfies every condition.
func (f Filter) Match(row map[string]any) bool {
	for _, c := range f {
		if !Compare(ValueOf(row[c.Field]), c.Operator, ValueOf(c.Value)) {
			return false
		}
	}
	return true
}

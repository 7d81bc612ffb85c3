package runtime

import (
	"errors"
	"fmt"
	"math"
)

func (x *Executor) executeRead(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*ReadConfig)
	coll := exec.project.collection(c.Collection)

	filter, err := exec.buildFilter(coll, c.PrimaryKey, c.Filter)
	if err != nil {
		return "", err
	}
	rows, err := x.store.ListRecords(exec, coll, filter)
	if err != nil {
		return "", runtimeError(ErrorCodeStoreFailure, node.ID, err, "reading %s", coll)
	}

	mode := c.Mode
	if mode == "" {
		mode = "many"
		if c.PrimaryKey != nil || pinsKey(filter, exec.project.primaryKey(coll)) {
			mode = "one"
		}
	}

	var result Value
	switch mode {
	case "one":
		result = Null()
		if len(rows) > 0 {
			result = RecordOf(RecordFromMap(rows[0]))
			if c.Field != "" {
				result, _ = exec.step(result, exec.project.fieldID(coll, c.Field))
			}
		}
	default:
		if c.Limit > 0 && len(rows) > c.Limit {
			rows = rows[:c.Limit]
		}
		items := make([]Value, 0, len(rows))
		for _, row := range rows {
			item := RecordOf(RecordFromMap(row))
			if c.Field != "" {
				item, _ = exec.step(item, exec.project.fieldID(coll, c.Field))
			}
			items = append(items, item)
		}
		result = CollectionOf(items...)
	}

	exec.Vars.Set(c.Output, result)
	x.l.InfoContext(exec, fmt.Sprintf("Read %d record(s) from %s into %s", len(rows), coll, c.Output))
	return successor(exec, node.ID), nil
}

// pinsKey reports whether the filter selects a single primary key.
func pinsKey(filter Filter, pk string) bool {
	for _, cond := range filter {
		if cond.Field == pk && cond.Operator == OpEq {
			return true
		}
	}
	return false
}

func (x *Executor) executeWrite(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*WriteConfig)
	coll := exec.project.collection(c.Collection)

	fields, err := exec.assignments(coll, node.ID, c.Fields)
	if err != nil {
		return "", err
	}
	inserted, err := x.store.InsertRecord(exec, coll, fields)
	if err != nil {
		return "", runtimeError(ErrorCodeStoreFailure, node.ID, err, "inserting into %s", coll)
	}
	exec.Committed++

	if c.Output != "" {
		if inserted == nil {
			inserted = fields
		}
		exec.Vars.Set(c.Output, RecordOf(RecordFromMap(inserted)))
	}
	return successor(exec, node.ID), nil
}

func (x *Executor) executeUpdate(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*UpdateConfig)
	coll := exec.project.collection(c.Collection)

	fields, err := exec.assignments(coll, node.ID, c.Fields)
	if err != nil {
		return "", err
	}
	keys, err := x.locate(exec, node.ID, coll, c.PrimaryKey, c.Filter, c.FailIfNotFound)
	if err != nil {
		return "", err
	}

	updated := 0
	for _, key := range keys {
		err := x.store.UpdateRecord(exec, coll, key, fields)
		if errors.Is(err, ErrRecordNotFound) && !c.FailIfNotFound {
			continue
		}
		if err != nil {
			return "", runtimeError(ErrorCodeStoreFailure, node.ID, err, "updating %s/%s", coll, key)
		}
		exec.Committed++
		updated++
	}

	if c.Output != "" {
		exec.Vars.Set(c.Output, Number(float64(updated)))
	}
	return successor(exec, node.ID), nil
}

func (x *Executor) executeDelete(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*DeleteConfig)
	coll := exec.project.collection(c.Collection)

	keys, err := x.locate(exec, node.ID, coll, c.PrimaryKey, c.Filter, c.FailIfNotFound)
	if err != nil {
		return "", err
	}

	deleted := 0
	for _, key := range keys {
		err := x.store.DeleteRecord(exec, coll, key)
		if errors.Is(err, ErrRecordNotFound) && !c.FailIfNotFound {
			continue
		}
		if err != nil {
			return "", runtimeError(ErrorCodeStoreFailure, node.ID, err, "deleting %s/%s", coll, key)
		}
		exec.Committed++
		deleted++
	}

	if c.Output != "" {
		exec.Vars.Set(c.Output, Number(float64(deleted)))
	}
	return successor(exec, node.ID), nil
}

// locate lists the primary keys of the records an update or delete acts on.
// No match is recorded as an event, and is an error only when required.
func (x *Executor) locate(exec *Execution, nodeID, coll string, key *KeySelector, rules []ConditionRule, required bool) ([]string, error) {
	filter, err := exec.buildFilter(coll, key, rules)
	if err != nil {
		return nil, err
	}
	rows, err := x.store.ListRecords(exec, coll, filter)
	if err != nil {
		return nil, runtimeError(ErrorCodeStoreFailure, nodeID, err, "locating records in %s", coll)
	}

	pk := exec.project.primaryKey(coll)
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := ValueOf(row[pk]); !id.IsEmpty() {
			keys = append(keys, id.String())
		}
	}

	if len(keys) == 0 {
		if required {
			return nil, runtimeError(ErrorCodeRecordNotFound, nodeID, ErrRecordNotFound, "no record in %s matches", coll)
		}
		exec.record(EventRecordNotFound, nodeID, fmt.Sprintf("no record in %s matches", coll))
		x.l.WarnContext(exec, fmt.Sprintf("No record in %s matched node %s", coll, nodeID))
	}
	return keys, nil
}

// buildFilter turns a primary-key selector and condition rules into a store
// filter over field ids.
func (e *Execution) buildFilter(coll string, key *KeySelector, rules []ConditionRule) (Filter, error) {
	filter := make(Filter, 0, len(rules)+1)
	if key != nil {
		v, err := e.operandValue(key.Source, key.Value)
		if err != nil {
			return nil, err
		}
		filter = append(filter, Condition{
			Field:    e.project.primaryKey(coll),
			Operator: OpEq,
			Value:    v.Any(),
		})
	}
	for _, rule := range rules {
		op, err := ParseOperator(rule.Operator)
		if err != nil {
			return nil, err
		}
		v, err := e.ruleValue(rule)
		if err != nil {
			return nil, err
		}
		filter = append(filter, Condition{
			Field:    e.project.fieldID(coll, rule.Field),
			Operator: op,
			Value:    v.Any(),
		})
	}
	return filter, nil
}

// assignments evaluates field assignments into a store row.
func (e *Execution) assignments(coll, nodeID string, fields []FieldAssignment) (map[string]any, error) {
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := e.operandValue(f.Source, f.Value)
		if err != nil {
			return nil, runtimeError(ErrorCodeExpressionFailure, nodeID, err, "evaluating field %s", f.Field)
		}
		row[e.project.fieldID(coll, f.Field)] = v.Any()
	}
	return row, nil
}

// parameters evaluates navigation parameters. Names are kept as written.
func (e *Execution) parameters(nodeID string, params []FieldAssignment) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for _, p := range params {
		v, err := e.operandValue(p.Source, p.Value)
		if err != nil {
			return nil, runtimeError(ErrorCodeExpressionFailure, nodeID, err, "evaluating parameter %s", p.Field)
		}
		out[p.Field] = v.Any()
	}
	return out, nil
}

func (x *Executor) executeCalculate(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*CalculateConfig)

	result, err := exec.calculate(c)
	if err != nil {
		return "", runtimeError(ErrorCodeExpressionFailure, node.ID, err, "calculating %s", c.Output)
	}
	exec.Vars.Set(c.Output, result)
	x.l.InfoContext(exec, fmt.Sprintf("Calculated %s = %s", c.Output, result.String()))
	return successor(exec, node.ID), nil
}

func (e *Execution) calculate(c *CalculateConfig) (Value, error) {
	if c.Expression != "" {
		return e.EvaluateExpression(c.Expression)
	}
	left, err := e.operandValue(c.Left.Source, c.Left.Value)
	if err != nil {
		return Null(), err
	}
	if c.Operator == "" {
		return left, nil
	}
	right, err := e.operandValue(c.Right.Source, c.Right.Value)
	if err != nil {
		return Null(), err
	}
	return combine(c.Operator, left, right)
}

func (x *Executor) executeAggregate(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*AggregateConfig)

	src, _ := exec.Resolve(c.Source)
	if !src.IsNull() && src.Kind() != KindCollection {
		return "", runtimeError(ErrorCodeNotACollection, node.ID, nil, "aggregate source %s is a %s", c.Source, src.Kind())
	}

	result := aggregate(exec, src.Items(), c.Field, c.Operation)
	exec.Vars.Set(c.Output, result)
	x.l.InfoContext(exec, fmt.Sprintf("Aggregated %s(%s) = %s", c.Operation, c.Source, result.String()))
	return successor(exec, node.ID), nil
}

// aggregate folds the numeric entries of items. Entries that are not
// numbers are skipped; with nothing left the result is NotApplicable.
func aggregate(exec *Execution, items []Value, field, operation string) Value {
	var nums []float64
	for _, item := range items {
		v := item
		if field != "" {
			v, _ = exec.step(item, field)
		}
		if n, ok := v.Number(); ok {
			nums = append(nums, n)
		}
	}

	if operation == "count" {
		if field == "" {
			return Number(float64(len(items)))
		}
		return Number(float64(len(nums)))
	}
	if len(nums) == 0 {
		return NotApplicable
	}

	switch operation {
	case "sum", "avg":
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		if operation == "avg" {
			return Number(sum / float64(len(nums)))
		}
		return Number(sum)
	case "max":
		m := math.Inf(-1)
		for _, n := range nums {
			m = math.Max(m, n)
		}
		return Number(m)
	case "min":
		m := math.Inf(1)
		for _, n := range nums {
			m = math.Min(m, n)
		}
		return Number(m)
	}
	return NotApplicable
}

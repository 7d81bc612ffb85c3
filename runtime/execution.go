package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// EventKind classifies diagnostic events recorded during a run.
type EventKind string

const (
	// EventSafetyLimit is recorded when a while loop is stopped by its maxCount.
	EventSafetyLimit EventKind = "safety_limit"
	// EventRecordNotFound is recorded when update/delete matched nothing.
	EventRecordNotFound EventKind = "record_not_found"
	// EventFieldOnCollection is recorded when a path names a field of a
	// collection instead of indexing it. The lookup resolves to null.
	EventFieldOnCollection EventKind = "field_on_collection"
)

// Event is a diagnostic that is not an error.
type Event struct {
	Kind    EventKind `json:"kind"`
	Node    string    `json:"node"`
	Message string    `json:"message"`
}

// Execution is the state of one run: variable bindings, active loops and
// the bookkeeping reported back to the caller. It is discarded when the run ends.
type Execution struct {
	ID      string
	Flow    *Flow
	Vars    *VariableStore
	Trigger TriggerContext

	plan    *plan
	project *projectIndex
	now     func() time.Time

	loops     map[string]*LoopContext
	loopStack []string
	// propertyCheck node id -> resolved value, consumed by multiBranch nodes
	properties   map[string]Value
	lastProperty string

	current string // node being executed
	l       *slog.Logger
	flagged map[string]bool

	Visits    int
	Committed int
	Events    []Event

	ctx context.Context // real context carrying deadline/cancellation
}

// context.Context implementation; delegates to the embedded ctx so that
// cancellation reaches store and notifier calls.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	return e.ctx.Value(key)
}

func newExecution(ctx context.Context, p *plan, project *projectIndex, trigger TriggerContext) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	exec := &Execution{
		ID:         uuid.New().String(),
		Flow:       p.flow,
		Vars:       NewVariableStore(),
		Trigger:    trigger,
		plan:       p,
		project:    project,
		now:        time.Now,
		loops:      make(map[string]*LoopContext),
		properties: make(map[string]Value),
		flagged:    make(map[string]bool),
		ctx:        ctx,
	}

	cfg := p.cfg
	exec.Vars.Set(cfg.InputVariable, RecordOf(RecordFromMap(trigger.Input)))
	exec.Vars.Set(cfg.PageVariable, RecordOf(RecordFromMap(trigger.Page)))
	exec.Vars.Set(cfg.ParamsVariable, RecordOf(RecordFromMap(trigger.Params)))
	return exec
}

func (e *Execution) record(kind EventKind, node, message string) {
	e.Events = append(e.Events, Event{Kind: kind, Node: node, Message: message})
}

// Resolve looks a dot-path up in the variable store. Each segment after the
// variable name is tried as a field id, then as a human field name through
// the alias table; integer segments index collections. A missing value is
// reported as (Null, false), never as an error.
func (e *Execution) Resolve(path string) (Value, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Null(), false
	}
	return e.resolveSegments(strings.Split(path, "."))
}

func (e *Execution) resolveSegments(segments []string) (Value, bool) {
	if len(segments) == 0 {
		return Null(), false
	}
	head := segments[0]
	if strings.HasPrefix(head, "$") && len(segments) == 1 {
		return e.systemValue(strings.TrimPrefix(head, "$"))
	}
	current, ok := e.Vars.Get(head)
	if !ok {
		return Null(), false
	}
	for _, seg := range segments[1:] {
		current, ok = e.step(current, seg)
		if !ok {
			return Null(), false
		}
	}
	return current, true
}

func (e *Execution) step(v Value, seg string) (Value, bool) {
	switch v.Kind() {
	case KindRecord:
		if f, ok := v.Field(seg); ok {
			return f, true
		}
		for _, id := range e.project.candidates(seg) {
			if f, ok := v.Field(id); ok {
				return f, true
			}
		}
		return Null(), false
	case KindCollection:
		i, err := strconv.Atoi(seg)
		if err != nil {
			e.fieldOnCollection(seg, v.Len())
			return Null(), false
		}
		if i < 0 || i >= v.Len() {
			return Null(), false
		}
		return v.Items()[i], true
	default:
		return Null(), false
	}
}

// fieldOnCollection reports a field lookup on a collection, once per node
// and segment.
func (e *Execution) fieldOnCollection(seg string, size int) {
	key := e.current + "." + seg
	if e.flagged[key] {
		return
	}
	e.flagged[key] = true

	msg := fmt.Sprintf("field %q looked up on a collection of %d item(s); index it or read with mode one", seg, size)
	e.record(EventFieldOnCollection, e.current, msg)
	if e.l != nil {
		e.l.WarnContext(e, msg, "node", e.current)
	}
}

// systemValue serves the small set of values a flow can read from the host.
func (e *Execution) systemValue(name string) (Value, bool) {
	now := e.now()
	switch name {
	case "now":
		return String(now.Format(time.RFC3339)), true
	case "today":
		return String(now.Format(time.DateOnly)), true
	case "timestamp":
		return Number(float64(now.UnixMilli())), true
	case "user":
		return String(e.Trigger.User), true
	case "runId":
		return String(e.ID), true
	default:
		return Null(), false
	}
}

// operandValue turns a configured value of the given source into a Value.
func (e *Execution) operandValue(source string, raw any) (Value, error) {
	switch source {
	case SourceVariable:
		v, _ := e.Resolve(asString(raw))
		return v, nil
	case SourceSystem:
		v, _ := e.systemValue(strings.TrimPrefix(asString(raw), "$"))
		return v, nil
	case SourceExpression:
		return e.EvaluateExpression(asString(raw))
	case SourcePage:
		v, _ := e.Resolve(e.plan.cfg.PageVariable + "." + asString(raw))
		return v, nil
	case SourceURL:
		v, _ := e.Resolve(e.plan.cfg.ParamsVariable + "." + asString(raw))
		return v, nil
	default:
		return ValueOf(raw), nil
	}
}

// ruleValue resolves the right-hand side of a condition rule.
func (e *Execution) ruleValue(rule ConditionRule) (Value, error) {
	raw := rule.Value
	if rule.ValueType == SourceVariable && rule.VariableRef != "" {
		raw = rule.VariableRef
	}
	return e.operandValue(rule.ValueType, raw)
}

func asString(raw any) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return ValueOf(raw).String()
}

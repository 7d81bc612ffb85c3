package runtime

import (
	"errors"
	"fmt"
	"log/slog"
)

// nodeHandler executes one node and returns the id of the node to visit
// next. An empty id ends the run.
type nodeHandler func(exec *Execution, node *Node, cfg any) (next string, err error)

// Executor walks a validated flow, one node at a time, dispatching every
// node to the handler registered for its type.
type Executor struct {
	l        *slog.Logger
	store    RecordStore
	notifier Notifier
	handlers map[string]nodeHandler
}

func NewExecutor(l *slog.Logger, store RecordStore, notifier Notifier) *Executor {
	x := &Executor{
		l:        l,
		store:    store,
		notifier: notifier,
	}
	x.handlers = map[string]nodeHandler{
		NodeStart:         x.executeStart,
		NodeEnd:           x.executeEnd,
		NodeRead:          x.executeRead,
		NodeWrite:         x.executeWrite,
		NodeUpdate:        x.executeUpdate,
		NodeDelete:        x.executeDelete,
		NodeCalculate:     x.executeCalculate,
		NodeAggregate:     x.executeAggregate,
		NodeBranch:        x.executeBranch,
		NodeMultiBranch:   x.executeMultiBranch,
		NodePropertyCheck: x.executePropertyCheck,
		NodeExistCheck:    x.executeExistCheck,
		NodeFormatCheck:   x.executeFormatCheck,
		NodeLoopStart:     x.executeLoopStart,
		NodeLoopEnd:       x.executeLoopEnd,
		NodeContinue:      x.executeContinue,
		NodeBreak:         x.executeBreak,
		NodeAlert:         x.executeAlert,
		NodeJump:          x.executeJump,
	}
	return x
}

// Run drives the execution from the start node until a node returns no
// successor or an error occurs. The cursor loop never recurses, so long
// chains and many loop iterations do not grow the stack.
func (x *Executor) Run(exec *Execution) error {
	p := exec.plan
	current := p.startID
	exec.l = x.l

	for current != "" {
		if err := exec.Err(); err != nil {
			return x.fail(exec, current, runtimeError(ErrorCodeContextCancelled, current, err, "run cancelled"))
		}
		if limit := p.cfg.MaxNodeVisits; limit > 0 && exec.Visits >= limit {
			return x.fail(exec, current, runtimeError(ErrorCodeVisitLimit, current, nil, "run exceeded %d node visits", p.cfg.MaxNodeVisits))
		}
		exec.Visits++

		node := p.nodes[current]
		handler, ok := x.handlers[node.Type]
		if !ok {
			return x.fail(exec, current, structuralError(ErrorCodeUnknownNodeType, current, "no handler for node type %q", node.Type))
		}

		exec.current = current
		x.l.InfoContext(exec, fmt.Sprintf("Executing node: %s (%s)", node.ID, node.Type))
		next, err := handler(exec, node, p.configs[current])
		if err != nil {
			return x.fail(exec, current, err)
		}
		current = next
	}

	x.l.InfoContext(exec, fmt.Sprintf("Flow %s completed after %d node visits", exec.Flow.ID, exec.Visits))
	return nil
}

// fail turns any handler error into the single terminal FlowError of the run.
func (x *Executor) fail(exec *Execution, nodeID string, err error) error {
	var fe *FlowError
	if !errors.As(err, &fe) {
		fe = runtimeError(ErrorCodeStoreFailure, nodeID, err, "node failed")
	}
	if fe.Node == "" {
		fe.Node = nodeID
	}
	fe.Flow = exec.Flow.ID
	fe.Committed = exec.Committed

	x.l.ErrorContext(exec, fmt.Sprintf("Error executing node %s", nodeID),
		"flow", exec.Flow.ID,
		"code", fe.Code,
		"committed", exec.Committed,
		"error", err)
	return fe
}

// successor is the plain edge out of a node. Validation guarantees it
// exists for every reachable non-terminal node.
func successor(exec *Execution, id string) string {
	return exec.plan.next[id]
}

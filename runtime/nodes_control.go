package runtime

import (
	"fmt"
)

func (x *Executor) executeStart(exec *Execution, node *Node, _ any) (string, error) {
	x.l.InfoContext(exec, fmt.Sprintf("Starting flow %s (run %s)", exec.Flow.DisplayName(), exec.ID))
	return successor(exec, node.ID), nil
}

func (x *Executor) executeEnd(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*EndConfig)
	message := exec.FormatMessage(c.Message)

	var err error
	switch c.Action {
	case EndNone:
		if message != "" {
			err = x.notifier.Notify(exec, NotifyKind(c.Kind), message)
		}
	case EndAlert:
		err = x.notifier.Notify(exec, NotifyKind(c.Kind), message)
	case EndNavigate:
		params, perr := exec.parameters(node.ID, c.Params)
		if perr != nil {
			return "", perr
		}
		err = x.notifier.Navigate(exec, c.Target, params, NavigateMode(c.Mode))
	case EndGoBack:
		err = x.notifier.GoBack(exec, c.Refresh)
	case EndReload:
		err = x.notifier.Reload(exec, message)
	case EndCloseOverlay:
		err = x.notifier.CloseOverlay(exec, c.Refresh)
	}
	if err != nil {
		return "", runtimeError(ErrorCodeNotifyFailure, node.ID, err, "end action %s", c.Action)
	}
	return "", nil
}

func (x *Executor) executeAlert(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*AlertConfig)
	if err := x.notifier.Notify(exec, NotifyKind(c.Kind), exec.FormatMessage(c.Message)); err != nil {
		return "", runtimeError(ErrorCodeNotifyFailure, node.ID, err, "alert")
	}
	return successor(exec, node.ID), nil
}

// executeJump navigates to another page. Without an outgoing edge the run
// ends there.
func (x *Executor) executeJump(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*JumpConfig)
	params, err := exec.parameters(node.ID, c.Params)
	if err != nil {
		return "", err
	}
	if err := x.notifier.Navigate(exec, c.Target, params, NavigateMode(c.Mode)); err != nil {
		return "", runtimeError(ErrorCodeNotifyFailure, node.ID, err, "navigating to %s", c.Target)
	}
	return successor(exec, node.ID), nil
}

func (x *Executor) executeBranch(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*BranchConfig)
	ok, err := exec.test(node.ID, c.Conditions, c.Logic, c.Expression)
	if err != nil {
		return "", err
	}
	x.l.InfoContext(exec, fmt.Sprintf("Branch %s evaluated to %t", node.ID, ok))
	if ok {
		return c.TrueTarget, nil
	}
	return c.FalseTarget, nil
}

// test evaluates a branch or while condition: the expression when one is
// set, otherwise the rules combined with logic.
func (e *Execution) test(nodeID string, rules []ConditionRule, logic, expression string) (bool, error) {
	if expression != "" {
		v, err := e.EvaluateExpression(expression)
		if err != nil {
			return false, runtimeError(ErrorCodeExpressionFailure, nodeID, err, "evaluating condition")
		}
		return v.Truthy(), nil
	}

	for _, rule := range rules {
		left, _ := e.Resolve(rule.Field)
		right, err := e.ruleValue(rule)
		if err != nil {
			return false, runtimeError(ErrorCodeExpressionFailure, nodeID, err, "resolving %s", rule.Field)
		}
		ok, err := EvaluateCondition(left, rule.Operator, right)
		if err != nil {
			return false, runtimeError(ErrorCodeExpressionFailure, nodeID, err, "comparing %s", rule.Field)
		}
		if logic == "or" && ok {
			return true, nil
		}
		if logic != "or" && !ok {
			return false, nil
		}
	}
	return logic != "or" || len(rules) == 0, nil
}

// executePropertyCheck resolves the value a multi-branch routes on. It
// never routes by itself.
func (x *Executor) executePropertyCheck(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*PropertyCheckConfig)
	v, _ := exec.Resolve(c.Source)
	exec.properties[node.ID] = v
	exec.lastProperty = node.ID
	if c.Output != "" {
		exec.Vars.Set(c.Output, v)
	}
	return successor(exec, node.ID), nil
}

func (x *Executor) executeMultiBranch(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*MultiBranchConfig)

	var v Value
	switch {
	case c.Property != "":
		v = exec.properties[c.Property]
	case c.Source != "":
		v, _ = exec.Resolve(c.Source)
	default:
		v = exec.properties[exec.lastProperty]
	}

	for i, pipe := range c.Pipes {
		if pipe.matches(v) {
			x.l.InfoContext(exec, fmt.Sprintf("Multi-branch %s took pipe %d", node.ID, pipe.number(i)))
			return pipe.Target, nil
		}
	}
	x.l.InfoContext(exec, fmt.Sprintf("Multi-branch %s took the default pipe", node.ID))
	return c.DefaultTarget, nil
}

func (p Pipe) number(i int) int {
	if p.Number > 0 {
		return p.Number
	}
	return i + 1
}

// matches reports whether v equals one of the pipe's values or lies within
// its inclusive range.
func (p Pipe) matches(v Value) bool {
	for _, want := range p.Values {
		if looseEqual(v, ValueOf(want)) {
			return true
		}
	}
	if p.Min == nil && p.Max == nil {
		return false
	}
	n, ok := v.Number()
	if !ok {
		return false
	}
	if p.Min != nil && n < *p.Min {
		return false
	}
	if p.Max != nil && n > *p.Max {
		return false
	}
	return true
}

func (x *Executor) executeLoopStart(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*LoopStartConfig)
	p := exec.plan
	endID := p.loopEndOf[node.ID]
	past := p.next[endID]
	body := p.next[node.ID]

	lc, active := exec.activeLoop(node.ID)
	if !active {
		lc = &LoopContext{
			Kind:     c.Mode,
			StartID:  node.ID,
			EndID:    endID,
			itemVar:  c.ItemVar,
			indexVar: c.IndexVar,
		}
		switch c.Mode {
		case LoopForEach:
			src, _ := exec.Resolve(c.Source)
			if !src.IsNull() && src.Kind() != KindCollection {
				return "", runtimeError(ErrorCodeNotACollection, node.ID, nil, "forEach source %s is a %s", c.Source, src.Kind())
			}
			if src.Len() == 0 {
				x.l.InfoContext(exec, fmt.Sprintf("Loop %s skipped: %s is empty", node.ID, c.Source))
				return past, nil
			}
			lc.items = src.Items()
			lc.Total = len(lc.items)
		default:
			ok, err := exec.test(node.ID, c.Conditions, c.Logic, c.Expression)
			if err != nil {
				return "", err
			}
			if !ok {
				x.l.InfoContext(exec, fmt.Sprintf("Loop %s skipped: condition is false", node.ID))
				return past, nil
			}
			lc.MaxCount = p.cfg.DefaultMaxLoopCount
			if c.MaxCount != nil {
				lc.MaxCount = *c.MaxCount
			}
		}
		exec.pushLoop(lc)
		lc.bind(exec.Vars)
		x.l.InfoContext(exec, fmt.Sprintf("Entering %s", lc))
		return body, nil
	}

	switch lc.Kind {
	case LoopForEach:
		if lc.Index+1 >= lc.Total {
			exec.popLoop(node.ID)
			return past, nil
		}
		lc.Index++
		lc.bind(exec.Vars)
	default:
		lc.Index++
		if lc.Index >= lc.MaxCount {
			msg := fmt.Sprintf("while loop %s stopped after %d iterations", node.ID, lc.MaxCount)
			exec.record(EventSafetyLimit, node.ID, msg)
			x.l.WarnContext(exec, msg)
			exec.popLoop(node.ID)
			return past, nil
		}
		// The condition sees the counter of the iteration it admits
		lc.bind(exec.Vars)
		ok, err := exec.test(node.ID, c.Conditions, c.Logic, c.Expression)
		if err != nil {
			return "", err
		}
		if !ok {
			exec.popLoop(node.ID)
			return past, nil
		}
	}
	x.l.InfoContext(exec, fmt.Sprintf("Iterating %s", lc))
	return body, nil
}

func (x *Executor) executeLoopEnd(exec *Execution, node *Node, _ any) (string, error) {
	startID := exec.plan.loopStartOf[node.ID]
	lc, active := exec.activeLoop(startID)
	if !active {
		return successor(exec, node.ID), nil
	}
	if lc.Broken {
		x.l.InfoContext(exec, fmt.Sprintf("Loop %s broken at index %d", startID, lc.Index))
		exec.popLoop(startID)
		return successor(exec, node.ID), nil
	}
	return startID, nil
}

func (x *Executor) executeContinue(exec *Execution, node *Node, _ any) (string, error) {
	lc, ok := exec.innermostLoop()
	if !ok {
		return "", runtimeError(ErrorCodeNoActiveLoop, node.ID, nil, "continue outside of a running loop")
	}
	return lc.EndID, nil
}

func (x *Executor) executeBreak(exec *Execution, node *Node, _ any) (string, error) {
	lc, ok := exec.innermostLoop()
	if !ok {
		return "", runtimeError(ErrorCodeNoActiveLoop, node.ID, nil, "break outside of a running loop")
	}
	lc.Broken = true
	return lc.EndID, nil
}

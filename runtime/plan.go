package runtime

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// plan is a flow that passed structural validation, together with the
// typed node configs and the loop pairing the executor relies on.
type plan struct {
	flow    *Flow
	cfg     Config
	startID string

	nodes   map[string]*Node
	configs map[string]any
	// plain edge successor of every node that has one
	next map[string]string

	loopEndOf   map[string]string // loopStart -> loopEnd
	loopStartOf map[string]string // loopEnd -> loopStart
	owner       map[string]string // continue/break -> loopStart

	exprs map[string]*Expression
}

// Validate runs the structural checks a flow must pass before it can run.
// The returned error is a structural *FlowError.
func Validate(flow *Flow, cfg Config) error {
	_, err := compile(flow, cfg)
	return err
}

func compile(flow *Flow, cfg Config) (*plan, error) {
	if flow == nil {
		return nil, structuralError(ErrorCodeMissingStart, "", "flow is nil")
	}
	p := &plan{
		flow:        flow,
		cfg:         cfg,
		nodes:       make(map[string]*Node, len(flow.Nodes)),
		configs:     make(map[string]any, len(flow.Nodes)),
		next:        make(map[string]string),
		loopEndOf:   make(map[string]string),
		loopStartOf: make(map[string]string),
		owner:       make(map[string]string),
		exprs:       make(map[string]*Expression),
	}

	steps := []func() error{
		p.indexNodes,
		p.indexEdges,
		p.checkTargets,
		p.pairLoops,
		p.checkSuccessors,
		p.checkCycles,
		p.checkExpressions,
		p.checkExistSources,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			var fe *FlowError
			if errors.As(err, &fe) && fe.Flow == "" {
				fe.Flow = flow.ID
			}
			return nil, err
		}
	}
	return p, nil
}

func (p *plan) indexNodes() error {
	for i := range p.flow.Nodes {
		node := &p.flow.Nodes[i]
		if node.ID == "" {
			return structuralError(ErrorCodeInvalidConfig, "", "node %d has no id", i)
		}
		if _, dup := p.nodes[node.ID]; dup {
			return structuralError(ErrorCodeDuplicateNode, node.ID, "duplicate node id %q", node.ID)
		}
		cfg, err := parseNodeConfig(node)
		if err != nil {
			return err
		}
		p.nodes[node.ID] = node
		p.configs[node.ID] = cfg

		if node.Type == NodeStart {
			if p.startID != "" {
				return structuralError(ErrorCodeDuplicateNode, node.ID, "flow has more than one start node (%s, %s)", p.startID, node.ID)
			}
			p.startID = node.ID
		}
	}
	if p.startID == "" {
		return structuralError(ErrorCodeMissingStart, "", "flow %s has no start node", p.flow.ID)
	}
	return nil
}

func (p *plan) indexEdges() error {
	for _, edge := range p.flow.Edges {
		if _, ok := p.nodes[edge.From]; !ok {
			return structuralError(ErrorCodeDanglingReference, edge.From, "edge %s -> %s starts at an unknown node", edge.From, edge.To)
		}
		if _, ok := p.nodes[edge.To]; !ok {
			return structuralError(ErrorCodeDanglingReference, edge.From, "edge %s -> %s ends at an unknown node", edge.From, edge.To)
		}
		if routes(p.nodes[edge.From].Type) {
			continue
		}
		if prev, ok := p.next[edge.From]; ok && prev != edge.To {
			return structuralError(ErrorCodeAmbiguousEdge, edge.From, "node %s has more than one outgoing edge (%s, %s)", edge.From, prev, edge.To)
		}
		p.next[edge.From] = edge.To
	}
	return nil
}

// routes reports node types that pick their successor from configured
// targets. Plain edges drawn out of them are ignored.
func routes(nodeType string) bool {
	switch nodeType {
	case NodeBranch, NodeMultiBranch, NodeExistCheck, NodeFormatCheck, NodeContinue, NodeBreak:
		return true
	}
	return false
}

// targets lists the node ids a routing node may continue with.
func (p *plan) targets(id string) []string {
	switch c := p.configs[id].(type) {
	case *BranchConfig:
		return []string{c.TrueTarget, c.FalseTarget}
	case *MultiBranchConfig:
		out := make([]string, 0, len(c.Pipes)+1)
		for _, pipe := range c.Pipes {
			out = append(out, pipe.Target)
		}
		return append(out, c.DefaultTarget)
	case *ExistCheckConfig:
		return []string{c.ExistTarget, c.NotExistTarget}
	case *FormatCheckConfig:
		return []string{c.PassTarget, c.FailTarget}
	}
	return nil
}

func (p *plan) checkTargets() error {
	for _, node := range p.flow.Nodes {
		for _, target := range p.targets(node.ID) {
			if _, ok := p.nodes[target]; !ok {
				return structuralError(ErrorCodeDanglingReference, node.ID, "target %q does not exist", target)
			}
		}

		switch c := p.configs[node.ID].(type) {
		case *MultiBranchConfig:
			if err := p.checkMultiBranch(node.ID, c); err != nil {
				return err
			}
		case *BranchConfig:
			if len(c.Conditions) == 0 && strings.TrimSpace(c.Expression) == "" {
				return structuralError(ErrorCodeInvalidConfig, node.ID, "branch needs conditions or an expression")
			}
			if err := checkOperators(node.ID, c.Conditions); err != nil {
				return err
			}
		case *LoopStartConfig:
			if err := p.checkLoopStart(node.ID, c); err != nil {
				return err
			}
		case *LoopEndConfig:
			if c.LoopStart != "" && !p.isType(c.LoopStart, NodeLoopStart) {
				return structuralError(ErrorCodeDanglingReference, node.ID, "loopStart %q is not a loopStart node", c.LoopStart)
			}
		case *CalculateConfig:
			if err := checkCalculate(node.ID, c); err != nil {
				return err
			}
		case *ReadConfig:
			if err := checkOperators(node.ID, c.Filter); err != nil {
				return err
			}
		case *UpdateConfig:
			if c.PrimaryKey == nil && len(c.Filter) == 0 {
				return structuralError(ErrorCodeInvalidConfig, node.ID, "update needs a primaryKey or a filter")
			}
			if err := checkOperators(node.ID, c.Filter); err != nil {
				return err
			}
		case *DeleteConfig:
			if c.PrimaryKey == nil && len(c.Filter) == 0 {
				return structuralError(ErrorCodeInvalidConfig, node.ID, "delete needs a primaryKey or a filter")
			}
			if err := checkOperators(node.ID, c.Filter); err != nil {
				return err
			}
		case *ExistCheckConfig:
			for _, rule := range c.Rules {
				if _, err := ParseOperator(rule.Operator); err != nil {
					return structuralError(ErrorCodeInvalidConfig, node.ID, "%v", err)
				}
			}
		case *FormatCheckConfig:
			if err := checkFormatRules(node.ID, c.Rules); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *plan) isType(id, nodeType string) bool {
	node, ok := p.nodes[id]
	return ok && node.Type == nodeType
}

func (p *plan) hasType(nodeType string) bool {
	for _, node := range p.flow.Nodes {
		if node.Type == nodeType {
			return true
		}
	}
	return false
}

func (p *plan) checkMultiBranch(id string, c *MultiBranchConfig) error {
	if len(c.Pipes) > MaxPipes {
		return structuralError(ErrorCodeInvalidConfig, id, "multiBranch has %d pipes, at most %d are allowed", len(c.Pipes), MaxPipes)
	}
	if c.Property == "" && c.Source == "" && !p.hasType(NodePropertyCheck) {
		return structuralError(ErrorCodeInvalidConfig, id, "multiBranch has no property source and the flow has no propertyCheck node")
	}
	if c.Property != "" && !p.isType(c.Property, NodePropertyCheck) {
		return structuralError(ErrorCodeDanglingReference, id, "property %q is not a propertyCheck node", c.Property)
	}
	seen := make(map[string]int, len(c.Pipes))
	for i, pipe := range c.Pipes {
		if len(pipe.Values) == 0 && pipe.Min == nil && pipe.Max == nil {
			return structuralError(ErrorCodeInvalidConfig, id, "pipe %d has neither values nor a range", i+1)
		}
		if pipe.Min != nil && pipe.Max != nil && *pipe.Min > *pipe.Max {
			return structuralError(ErrorCodeInvalidConfig, id, "pipe %d range is empty (%v > %v)", i+1, *pipe.Min, *pipe.Max)
		}
		if prev, ok := seen[pipe.Target]; ok {
			return structuralError(ErrorCodeInvalidConfig, id, "pipes %d and %d share target %s", prev+1, i+1, pipe.Target)
		}
		seen[pipe.Target] = i
	}
	return nil
}

func (p *plan) checkLoopStart(id string, c *LoopStartConfig) error {
	if c.LoopEnd != "" && !p.isType(c.LoopEnd, NodeLoopEnd) {
		return structuralError(ErrorCodeDanglingReference, id, "loopEnd %q is not a loopEnd node", c.LoopEnd)
	}
	if c.MaxCount != nil && *c.MaxCount <= 0 {
		return structuralError(ErrorCodeInvalidConfig, id, "maxCount must be a positive integer, got %d", *c.MaxCount)
	}
	switch c.Mode {
	case LoopForEach:
		if c.Source == "" {
			return structuralError(ErrorCodeInvalidConfig, id, "forEach loop needs a source")
		}
	case LoopWhile:
		if len(c.Conditions) == 0 && strings.TrimSpace(c.Expression) == "" {
			return structuralError(ErrorCodeInvalidConfig, id, "while loop needs conditions or an expression")
		}
	}
	if c.ItemVar == c.IndexVar {
		return structuralError(ErrorCodeInvalidConfig, id, "itemVar and indexVar are both %q", c.ItemVar)
	}
	return checkOperators(id, c.Conditions)
}

func checkCalculate(id string, c *CalculateConfig) error {
	if strings.TrimSpace(c.Expression) != "" {
		return nil
	}
	if c.Left == nil {
		return structuralError(ErrorCodeInvalidConfig, id, "calculate needs an expression or a left operand")
	}
	if c.Operator == "" {
		if c.Right != nil {
			return structuralError(ErrorCodeInvalidConfig, id, "calculate has a right operand but no operator")
		}
		return nil
	}
	if !allowedBinary[c.Operator] || c.Operator == "&&" || c.Operator == "||" {
		return structuralError(ErrorCodeInvalidConfig, id, "unsupported calculate operator %q", c.Operator)
	}
	if c.Right == nil {
		return structuralError(ErrorCodeInvalidConfig, id, "operator %q needs a right operand", c.Operator)
	}
	return nil
}

func checkOperators(id string, rules []ConditionRule) error {
	for _, rule := range rules {
		if _, err := ParseOperator(rule.Operator); err != nil {
			return structuralError(ErrorCodeInvalidConfig, id, "%v", err)
		}
	}
	return nil
}

func checkFormatRules(id string, rules []FormatRule) error {
	for i, rule := range rules {
		switch rule.Kind {
		case RuleNumberRange, RuleLengthRange:
			if rule.Min == nil && rule.Max == nil {
				return structuralError(ErrorCodeInvalidConfig, id, "rule %d (%s) needs min or max", i+1, rule.Kind)
			}
		case RuleRegex:
			if _, err := compilePattern(rule.Pattern); err != nil {
				return structuralError(ErrorCodeInvalidConfig, id, "rule %d: %v", i+1, err)
			}
		}
	}
	return nil
}

// pairLoops matches every loopStart with exactly one loopEnd, either by
// explicit ids or by walking the loop body, and assigns continue and break
// nodes to the loop that statically encloses them.
func (p *plan) pairLoops() error {
	for _, node := range p.flow.Nodes {
		if node.Type != NodeLoopStart {
			continue
		}
		end, members, err := p.walkBody(node.ID)
		if err != nil {
			return err
		}
		explicit := p.configs[node.ID].(*LoopStartConfig).LoopEnd
		switch {
		case explicit != "":
			end = explicit
		case end == "":
			return structuralError(ErrorCodeUnpairedLoop, node.ID, "no loopEnd closes loop %s", node.ID)
		}
		if other, ok := p.loopStartOf[end]; ok {
			return structuralError(ErrorCodeUnpairedLoop, end, "loopEnd %s is claimed by both %s and %s", end, other, node.ID)
		}
		p.loopEndOf[node.ID] = end
		p.loopStartOf[end] = node.ID
		for _, m := range members {
			p.owner[m] = node.ID
		}
	}

	for _, node := range p.flow.Nodes {
		switch node.Type {
		case NodeLoopEnd:
			start, ok := p.loopStartOf[node.ID]
			if !ok {
				return structuralError(ErrorCodeUnpairedLoop, node.ID, "loopEnd %s has no loopStart", node.ID)
			}
			if explicit := p.configs[node.ID].(*LoopEndConfig).LoopStart; explicit != "" && explicit != start {
				return structuralError(ErrorCodeUnpairedLoop, node.ID, "loopEnd %s names loopStart %s but closes %s", node.ID, explicit, start)
			}
		case NodeContinue, NodeBreak:
			if _, ok := p.owner[node.ID]; !ok {
				return structuralError(ErrorCodeUnpairedLoop, node.ID, "%s node %s is not inside a loop", node.Type, node.ID)
			}
		}
	}
	return nil
}

type walkState struct {
	id    string
	depth int
}

// walkBody explores the body of a loop. Nested loops raise the depth so
// that only a loopEnd at depth zero closes this loop.
func (p *plan) walkBody(startID string) (string, []string, error) {
	body, ok := p.next[startID]
	if !ok {
		return "", nil, structuralError(ErrorCodeMissingSuccessor, startID, "loop %s has no body", startID)
	}

	var (
		end     string
		members []string
		seen    = make(map[walkState]bool)
		stack   = []walkState{{id: body}}
	)
	for len(stack) > 0 {
		st := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[st] || st.depth > len(p.flow.Nodes) {
			continue
		}
		seen[st] = true

		node := p.nodes[st.id]
		depth := st.depth
		switch node.Type {
		case NodeLoopEnd:
			if depth == 0 {
				if end != "" && end != st.id {
					return "", nil, structuralError(ErrorCodeUnpairedLoop, startID, "loop %s is closed by both %s and %s", startID, end, st.id)
				}
				end = st.id
				continue
			}
			depth--
		case NodeLoopStart:
			if st.id == startID {
				continue
			}
			depth++
		case NodeContinue, NodeBreak:
			if depth == 0 {
				members = append(members, st.id)
			}
			continue
		}
		for _, succ := range p.walkSuccessors(st.id) {
			stack = append(stack, walkState{id: succ, depth: depth})
		}
	}
	return end, members, nil
}

func (p *plan) walkSuccessors(id string) []string {
	if routes(p.nodes[id].Type) {
		return p.targets(id)
	}
	if next, ok := p.next[id]; ok {
		return []string{next}
	}
	return nil
}

// successors is the static graph used for reachability and cycle checks.
// The loopEnd back-jump is not part of it.
func (p *plan) successors(id string) []string {
	node := p.nodes[id]
	switch node.Type {
	case NodeContinue, NodeBreak:
		return []string{p.loopEndOf[p.owner[id]]}
	case NodeLoopStart:
		out := []string{p.loopEndOf[id]}
		if next, ok := p.next[id]; ok {
			out = append(out, next)
		}
		return out
	}
	return p.walkSuccessors(id)
}

// terminal reports nodes that may end a run when they have no successor.
func terminal(nodeType string) bool {
	return nodeType == NodeEnd || nodeType == NodeJump
}

func (p *plan) checkSuccessors() error {
	for _, id := range p.reachable() {
		node := p.nodes[id]
		if terminal(node.Type) || routes(node.Type) {
			continue
		}
		if _, ok := p.next[id]; !ok {
			return structuralError(ErrorCodeMissingSuccessor, id, "%s node %s has no outgoing edge", node.Type, id)
		}
	}
	return nil
}

func (p *plan) reachable() []string {
	seen := map[string]bool{p.startID: true}
	order := []string{p.startID}
	for i := 0; i < len(order); i++ {
		for _, succ := range p.successors(order[i]) {
			if !seen[succ] {
				seen[succ] = true
				order = append(order, succ)
			}
		}
	}
	return order
}

// checkCycles rejects any cycle in the static graph. Loops only repeat
// through the loopEnd back-jump, which does not appear there.
func (p *plan) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(p.nodes))

	type frame struct {
		id   string
		succ []string
	}
	for _, root := range p.flow.Nodes {
		if color[root.ID] != white {
			continue
		}
		stack := []frame{{id: root.ID, succ: p.successors(root.ID)}}
		color[root.ID] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if len(top.succ) == 0 {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			succ := top.succ[0]
			top.succ = top.succ[1:]
			switch color[succ] {
			case grey:
				return structuralError(ErrorCodeCycle, succ, "cycle through %s -> %s", top.id, succ)
			case white:
				color[succ] = grey
				stack = append(stack, frame{id: succ, succ: p.successors(succ)})
			}
		}
	}
	return nil
}

// checkExpressions parses every expression a node carries so that syntax
// errors surface before the first store call.
func (p *plan) checkExpressions() error {
	for _, node := range p.flow.Nodes {
		for _, src := range nodeExpressions(p.configs[node.ID]) {
			if _, err := p.expression(src); err != nil {
				return structuralError(ErrorCodeInvalidConfig, node.ID, "%v", err)
			}
		}
	}
	return nil
}

func nodeExpressions(cfg any) []string {
	var out []string
	add := func(src string) {
		if strings.TrimSpace(src) != "" {
			out = append(out, src)
		}
	}
	fromFields := func(fields []FieldAssignment) {
		for _, f := range fields {
			if f.Source == SourceExpression {
				add(asString(f.Value))
			}
		}
	}
	switch c := cfg.(type) {
	case *BranchConfig:
		add(c.Expression)
	case *LoopStartConfig:
		if c.Mode == LoopWhile {
			add(c.Expression)
		}
	case *CalculateConfig:
		add(c.Expression)
		for _, op := range []*Operand{c.Left, c.Right} {
			if op != nil && op.Source == SourceExpression {
				add(asString(op.Value))
			}
		}
	case *WriteConfig:
		fromFields(c.Fields)
	case *UpdateConfig:
		fromFields(c.Fields)
	case *JumpConfig:
		fromFields(c.Params)
	case *EndConfig:
		fromFields(c.Params)
	}
	return out
}

// expression returns the parsed form of src, parsing it at most once per plan.
func (p *plan) expression(src string) (*Expression, error) {
	if x, ok := p.exprs[src]; ok {
		return x, nil
	}
	x, err := ParseExpression(src)
	if err != nil {
		return nil, err
	}
	p.exprs[src] = x
	return x, nil
}

// checkExistSources rejects existence checks whose source variable can only
// ever hold a scalar.
func (p *plan) checkExistSources() error {
	for _, node := range p.flow.Nodes {
		c, ok := p.configs[node.ID].(*ExistCheckConfig)
		if !ok || strings.Contains(c.Source, ".") {
			continue
		}
		if p.scalarVariable(c.Source) {
			return structuralError(ErrorCodeInvalidConfig, node.ID, "existCheck source %q always holds a scalar", c.Source)
		}
	}
	return nil
}

// scalarVariable reports whether every node that binds name binds a scalar.
func (p *plan) scalarVariable(name string) bool {
	reserved := []string{p.cfg.InputVariable, p.cfg.PageVariable, p.cfg.ParamsVariable}
	if slices.Contains(reserved, name) {
		return false
	}
	producers := 0
	for _, node := range p.flow.Nodes {
		scalar, binds := p.binding(node.ID, name)
		if !binds {
			continue
		}
		if !scalar {
			return false
		}
		producers++
	}
	return producers > 0
}

// binding reports whether a node binds name, and whether that binding is
// always a scalar.
func (p *plan) binding(id, name string) (scalar, binds bool) {
	switch c := p.configs[id].(type) {
	case *AggregateConfig:
		return true, c.Output == name
	case *ReadConfig:
		one := c.Mode == "one" || (c.Mode == "" && c.PrimaryKey != nil)
		return one && c.Field != "", c.Output == name
	case *CalculateConfig:
		if c.Output != name {
			return false, false
		}
		if strings.TrimSpace(c.Expression) == "" {
			return c.Operator != "", true
		}
		x, err := p.expression(c.Expression)
		return err == nil && !x.isPath(), true
	case *LoopStartConfig:
		if c.IndexVar == name {
			return true, true
		}
		return false, c.ItemVar == name
	case *WriteConfig:
		return false, c.Output == name
	case *UpdateConfig:
		return true, c.Output == name
	case *DeleteConfig:
		return true, c.Output == name
	case *PropertyCheckConfig:
		return false, c.Output == name
	case *FormatCheckConfig:
		return false, c.Output == name
	case *ExistCheckConfig:
		return true, c.Output == name
	}
	return false, false
}

func (p *plan) String() string {
	return fmt.Sprintf("plan(%s: %d nodes, %d loops)", p.flow.ID, len(p.nodes), len(p.loopEndOf))
}

package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertStructural(t *testing.T, flow *Flow, code FlowErrorCode) *FlowError {
	t.Helper()
	err := Validate(flow, NewConfig())
	require.Error(t, err)
	fe, ok := err.(*FlowError)
	require.True(t, ok, "expected *FlowError, got %T", err)
	assert.Equal(t, ErrorTypeStructural, fe.Type)
	assert.Equal(t, code, fe.Code, fe.Error())
	assert.Equal(t, flow.ID, fe.Flow)
	return fe
}

func loopFlow(loopCfg map[string]any, body ...Node) *Flow {
	nodes := []Node{node("s", NodeStart, nil), node("ls", NodeLoopStart, loopCfg)}
	nodes = append(nodes, body...)
	nodes = append(nodes, node("le", NodeLoopEnd, nil), node("e", NodeEnd, nil))
	return linear("loop", nodes...)
}

func TestValidate_Accepts(t *testing.T) {
	flows := map[string]*Flow{
		"linear": linear("f", node("s", NodeStart, nil), node("e", NodeEnd, nil)),
		"forEach": loopFlow(map[string]any{"source": "items"},
			node("a", NodeAlert, map[string]any{"message": "{{item}}"})),
		"jump without edge": linear("f", node("s", NodeStart, nil), node("j", NodeJump, map[string]any{"target": "page2"})),
	}
	for name, flow := range flows {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Validate(flow, NewConfig()))
		})
	}
}

func TestValidate_MissingStart(t *testing.T) {
	flow := linear("f", node("e", NodeEnd, nil))
	assertStructural(t, flow, ErrorCodeMissingStart)
}

func TestValidate_DuplicateStart(t *testing.T) {
	flow := linear("f", node("s1", NodeStart, nil), node("s2", NodeStart, nil), node("e", NodeEnd, nil))
	assertStructural(t, flow, ErrorCodeDuplicateNode)
}

func TestValidate_DuplicateNode(t *testing.T) {
	flow := &Flow{ID: "f", Nodes: []Node{node("s", NodeStart, nil), node("x", NodeEnd, nil), node("x", NodeEnd, nil)}}
	fe := assertStructural(t, flow, ErrorCodeDuplicateNode)
	assert.Equal(t, "x", fe.Node)
}

func TestValidate_UnknownNodeType(t *testing.T) {
	flow := linear("f", node("s", NodeStart, nil), node("x", "teleport", nil))
	assertStructural(t, flow, ErrorCodeUnknownNodeType)
}

func TestValidate_DanglingEdge(t *testing.T) {
	flow := linear("f", node("s", NodeStart, nil), node("e", NodeEnd, nil))
	flow.Edges = append(flow.Edges, Edge{From: "e", To: "ghost"})
	assertStructural(t, flow, ErrorCodeDanglingReference)
}

func TestValidate_DanglingTarget(t *testing.T) {
	flow := linear("f",
		node("s", NodeStart, nil),
		node("b", NodeBranch, map[string]any{"expression": "true", "trueTarget": "e", "falseTarget": "ghost"}),
		node("e", NodeEnd, nil))
	fe := assertStructural(t, flow, ErrorCodeDanglingReference)
	assert.Equal(t, "b", fe.Node)
}

func TestValidate_MissingSuccessor(t *testing.T) {
	flow := linear("f", node("s", NodeStart, nil), node("a", NodeAlert, map[string]any{"message": "hi"}))
	fe := assertStructural(t, flow, ErrorCodeMissingSuccessor)
	assert.Equal(t, "a", fe.Node)
}

func TestValidate_AmbiguousEdge(t *testing.T) {
	flow := linear("f", node("s", NodeStart, nil), node("e1", NodeEnd, nil), node("e2", NodeEnd, nil))
	flow.Edges = []Edge{{From: "s", To: "e1"}, {From: "s", To: "e2"}}
	assertStructural(t, flow, ErrorCodeAmbiguousEdge)
}

func TestValidate_Cycle(t *testing.T) {
	flow := linear("f",
		node("s", NodeStart, nil),
		node("a", NodeAlert, map[string]any{"message": "a"}),
		node("b", NodeAlert, map[string]any{"message": "b"}))
	flow.Edges = append(flow.Edges, Edge{From: "b", To: "a"})
	assertStructural(t, flow, ErrorCodeCycle)
}

func TestValidate_UnpairedLoop(t *testing.T) {
	t.Run("no loopEnd", func(t *testing.T) {
		flow := linear("f",
			node("s", NodeStart, nil),
			node("ls", NodeLoopStart, map[string]any{"source": "items"}),
			node("e", NodeEnd, nil))
		assertStructural(t, flow, ErrorCodeUnpairedLoop)
	})
	t.Run("orphan loopEnd", func(t *testing.T) {
		flow := linear("f", node("s", NodeStart, nil), node("le", NodeLoopEnd, nil), node("e", NodeEnd, nil))
		assertStructural(t, flow, ErrorCodeUnpairedLoop)
	})
	t.Run("break outside loop", func(t *testing.T) {
		flow := linear("f", node("s", NodeStart, nil), node("br", NodeBreak, nil))
		assertStructural(t, flow, ErrorCodeUnpairedLoop)
	})
}

func TestValidate_InvalidConfig(t *testing.T) {
	five := 5
	tests := map[string]*Flow{
		"zero maxCount": loopFlow(map[string]any{"mode": "while", "expression": "true", "maxCount": 0},
			node("a", NodeAlert, nil)),
		"forEach without source": loopFlow(map[string]any{"mode": "forEach"}, node("a", NodeAlert, nil)),
		"while without condition": loopFlow(map[string]any{"mode": "while", "maxCount": five}, node("a", NodeAlert, nil)),
		"expression syntax": linear("f",
			node("s", NodeStart, nil),
			node("c", NodeCalculate, map[string]any{"expression": "price * ", "output": "x"}),
			node("e", NodeEnd, nil)),
		"call in expression": linear("f",
			node("s", NodeStart, nil),
			node("c", NodeCalculate, map[string]any{"expression": "len(items)", "output": "x"}),
			node("e", NodeEnd, nil)),
		"too many pipes": linear("f",
			node("s", NodeStart, nil),
			node("m", NodeMultiBranch, map[string]any{"source": "x", "defaultTarget": "e", "pipes": pipes(9)}),
			node("e", NodeEnd, nil)),
		"multiBranch without property": linear("f",
			node("s", NodeStart, nil),
			node("m", NodeMultiBranch, map[string]any{"defaultTarget": "e", "pipes": pipes(1)}),
			node("e", NodeEnd, nil)),
		"update without selector": linear("f",
			node("s", NodeStart, nil),
			node("u", NodeUpdate, map[string]any{"collection": "c", "fields": []any{map[string]any{"field": "a", "value": 1}}}),
			node("e", NodeEnd, nil)),
		"unknown operator": linear("f",
			node("s", NodeStart, nil),
			node("r", NodeRead, map[string]any{"collection": "c", "output": "rows",
				"filter": []any{map[string]any{"field": "a", "operator": "like", "value": 1}}}),
			node("e", NodeEnd, nil)),
		"bad regex": linear("f",
			node("s", NodeStart, nil),
			node("fc", NodeFormatCheck, map[string]any{"passTarget": "e", "failTarget": "e",
				"rules": []any{map[string]any{"path": "x", "kind": "regex", "pattern": "("}}}),
			node("e", NodeEnd, nil)),
		"existCheck on scalar": linear("f",
			node("s", NodeStart, nil),
			node("ag", NodeAggregate, map[string]any{"source": "rows", "operation": "count", "output": "n"}),
			node("x", NodeExistCheck, map[string]any{"source": "n", "collection": "c", "existTarget": "e", "notExistTarget": "e"}),
			node("e", NodeEnd, nil)),
	}

	for name, flow := range tests {
		t.Run(name, func(t *testing.T) {
			assertStructural(t, flow, ErrorCodeInvalidConfig)
		})
	}
}

func pipes(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"values": []any{i}, "target": "e"}
	}
	return out
}

func TestCompile_LoopPairing(t *testing.T) {
	flow := linear("nested",
		node("s", NodeStart, nil),
		node("outer", NodeLoopStart, map[string]any{"source": "rows"}),
		node("inner", NodeLoopStart, map[string]any{"source": "item.lines", "itemVar": "line", "indexVar": "j"}),
		node("b", NodeBranch, map[string]any{"expression": "line > 3", "trueTarget": "brk", "falseTarget": "innerEnd"}),
		node("innerEnd", NodeLoopEnd, nil),
		node("outerEnd", NodeLoopEnd, nil),
		node("e", NodeEnd, nil),
		node("brk", NodeBreak, nil),
	)
	flow.Edges = []Edge{
		{From: "s", To: "outer"},
		{From: "outer", To: "inner"},
		{From: "inner", To: "b"},
		{From: "innerEnd", To: "outerEnd"},
		{From: "outerEnd", To: "e"},
	}

	p, err := compile(flow, NewConfig())
	require.NoError(t, err)
	assert.Equal(t, "innerEnd", p.loopEndOf["inner"])
	assert.Equal(t, "outerEnd", p.loopEndOf["outer"])
	assert.Equal(t, "inner", p.owner["brk"])
}

package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// linear builds a flow whose nodes are chained in the given order.
func linear(id string, nodes ...Node) *Flow {
	f := &Flow{ID: id, Nodes: nodes}
	for i := 1; i < len(nodes); i++ {
		f.Edges = append(f.Edges, Edge{From: nodes[i-1].ID, To: nodes[i].ID})
	}
	return f
}

func node(id, nodeType string, cfg map[string]any) Node {
	return Node{ID: id, Type: nodeType, Config: cfg}
}

// testExecution returns an execution of a trivial flow with vars bound,
// for evaluating expressions and templates in isolation.
func testExecution(t *testing.T, aliases *AliasTable, vars map[string]Value) *Execution {
	t.Helper()
	flow := linear("scratch", node("s", NodeStart, nil), node("e", NodeEnd, nil))
	p, err := compile(flow, NewConfig())
	require.NoError(t, err)

	var project *projectIndex
	if aliases != nil {
		project = newProjectIndex(&Project{ID: "p"}, aliases)
	}
	exec := newExecution(context.Background(), p, project, TriggerContext{User: "u1"})
	for k, v := range vars {
		exec.Vars.Set(k, v)
	}
	return exec
}

func num(f float64) *float64 { return &f }

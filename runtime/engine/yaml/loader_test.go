package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/lowflow/runtime"
)

const discountFlow = `
id: discount
name: Apply discount
trigger:
  event: click
  componentId: btn_discount
nodes:
  - id: s
    type: start
  - id: read
    type: read
    config:
      collection: products
      primaryKey:
        source: variable
        value: input.productId
      output: product
  - id: calc
    type: calculate
    config:
      expression: product.price * 0.9
      output: price
  - id: e
    type: end
    config:
      message: "New price {{price}}"
edges:
  - {from: s, to: read}
  - {from: read, to: calc}
  - {from: calc, to: e}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	flow, err := Parse([]byte(discountFlow))
	require.NoError(t, err)

	assert.Equal(t, "discount", flow.ID)
	assert.Equal(t, "Apply discount", flow.DisplayName())
	require.NotNil(t, flow.Trigger)
	assert.Equal(t, "btn_discount", flow.Trigger.ComponentID)
	require.Len(t, flow.Nodes, 4)
	assert.Len(t, flow.Edges, 3)

	read, ok := flow.Node("read")
	require.True(t, ok)
	assert.Equal(t, "products", read.Config["collection"])
	assert.Equal(t, map[string]any{"source": "variable", "value": "input.productId"}, read.Config["primaryKey"])

	assert.NoError(t, runtime.Validate(&flow, runtime.NewConfig()))
}

func TestParseJSON(t *testing.T) {
	doc := `{"id": "j", "nodes": [{"id": "s", "type": "start"}, {"id": "e", "type": "end"}], "edges": [{"from": "s", "to": "e"}]}`
	flow, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "j", flow.ID)
	assert.Len(t, flow.Nodes, 2)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("id: [unclosed"))
	assert.Error(t, err)

	_, err = Parse([]byte("id: empty\nnodes: []\n"))
	assert.EqualError(t, err, `flow "empty" has no nodes`)
}

func TestLoadDefaultsID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "checkout.yml", "nodes:\n  - id: s\n    type: start\n")

	flow, err := NewFlowLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "checkout", flow.ID)

	_, err = NewFlowLoader().Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", discountFlow)
	writeFile(t, dir, "a.json", `{"nodes": [{"id": "s", "type": "start"}]}`)
	writeFile(t, dir, "notes.txt", "ignored")

	flows, err := LoadDir(NewFlowLoader(), dir)
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "a", flows[0].ID)
	assert.Equal(t, "discount", flows[1].ID)
}

func TestLoadDirDuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.yaml", discountFlow)
	writeFile(t, dir, "two.yaml", discountFlow)

	_, err := LoadDir(NewFlowLoader(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow discount is defined in both")
}

package runtime

import (
	"testing"
	"time"
)

type decodeTarget struct {
	Name    string        `json:"name"`
	Count   int           `json:"count"`
	Timeout time.Duration `json:"timeout"`
	Tags    []string      `json:"tags"`
}

func TestDecodeInto_TypeCoercion(t *testing.T) {
	var out decodeTarget
	err := decodeInto(map[string]any{
		"name":    "orders",
		"count":   "12",
		"timeout": "1m30s",
		"tags":    []any{"a", "b"},
	}, &out, "json")
	if err != nil {
		t.Fatalf("decodeInto failed: %v", err)
	}

	if out.Name != "orders" {
		t.Errorf("Expected Name='orders', got '%s'", out.Name)
	}
	if out.Count != 12 {
		t.Errorf("Expected Count=12, got %d", out.Count)
	}
	if out.Timeout != 90*time.Second {
		t.Errorf("Expected Timeout=1m30s, got %v", out.Timeout)
	}
	if len(out.Tags) != 2 || out.Tags[1] != "b" {
		t.Errorf("Unexpected tags: %v", out.Tags)
	}
}

func TestDecodeNodeConfig(t *testing.T) {
	node := &Node{
		ID:   "read1",
		Type: NodeRead,
		Config: map[string]any{
			"collection": "orders",
			"limit":      5,
			"output":     "rows",
			"filter": []any{
				map[string]any{"field": "status", "operator": "eq", "value": "open"},
			},
		},
	}

	cfg, err := parseNodeConfig(node)
	if err != nil {
		t.Fatalf("parseNodeConfig failed: %v", err)
	}
	read := cfg.(*ReadConfig)
	if read.Collection != "orders" || read.Limit != 5 || read.Output != "rows" {
		t.Errorf("Unexpected read config: %+v", read)
	}
	if len(read.Filter) != 1 || read.Filter[0].ValueType != SourceFixed {
		t.Errorf("Expected one filter rule defaulted to fixed, got %+v", read.Filter)
	}
}

func TestDecodeNodeConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		node Node
		code FlowErrorCode
	}{
		{
			name: "wrong field type",
			node: Node{ID: "n", Type: NodeRead, Config: map[string]any{"collection": "c", "output": "o", "limit": "lots"}},
			code: ErrorCodeInvalidConfig,
		},
		{
			name: "missing required field",
			node: Node{ID: "n", Type: NodeCalculate, Config: map[string]any{"expression": "1 + 1"}},
			code: ErrorCodeInvalidConfig,
		},
		{
			name: "unknown node type",
			node: Node{ID: "n", Type: "teleport"},
			code: ErrorCodeUnknownNodeType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseNodeConfig(&tt.node)
			fe, ok := err.(*FlowError)
			if !ok {
				t.Fatalf("Expected *FlowError, got %T (%v)", err, err)
			}
			if fe.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, fe.Code)
			}
			if fe.Type != ErrorTypeStructural {
				t.Errorf("Expected structural error, got %s", fe.Type)
			}
		})
	}
}

func TestDecodeNodeConfig_Defaults(t *testing.T) {
	cfg, err := parseNodeConfig(&Node{ID: "loop", Type: NodeLoopStart, Config: map[string]any{"source": "items"}})
	if err != nil {
		t.Fatalf("parseNodeConfig failed: %v", err)
	}
	loop := cfg.(*LoopStartConfig)
	if loop.Mode != LoopForEach || loop.ItemVar != "item" || loop.IndexVar != "index" {
		t.Errorf("Unexpected loop defaults: %+v", loop)
	}

	cfg, err = parseNodeConfig(&Node{ID: "end", Type: NodeEnd})
	if err != nil {
		t.Fatalf("parseNodeConfig failed: %v", err)
	}
	end := cfg.(*EndConfig)
	if end.Action != EndNone || end.Kind != "success" {
		t.Errorf("Unexpected end defaults: %+v", end)
	}
}

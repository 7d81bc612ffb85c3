package runtime

// Node types understood by the engine.
const (
	NodeStart         = "start"
	NodeEnd           = "end"
	NodeRead          = "read"
	NodeWrite         = "write"
	NodeUpdate        = "update"
	NodeDelete        = "delete"
	NodeBranch        = "branch"
	NodeMultiBranch   = "multiBranch"
	NodeCalculate     = "calculate"
	NodeAggregate     = "aggregate"
	NodeExistCheck    = "existCheck"
	NodeFormatCheck   = "formatCheck"
	NodePropertyCheck = "propertyCheck"
	NodeLoopStart     = "loopStart"
	NodeLoopEnd       = "loopEnd"
	NodeContinue      = "continue"
	NodeBreak         = "break"
	NodeAlert         = "alert"
	NodeJump          = "jump"
)

// Flow is a user-authored node graph describing one business process.
type Flow struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	ProjectID string   `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	Trigger   *Trigger `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Nodes     []Node   `yaml:"nodes" json:"nodes"`
	Edges     []Edge   `yaml:"edges" json:"edges"`
}

// Trigger binds a flow to a UI event on a component.
type Trigger struct {
	Event       string `yaml:"event" json:"event"`
	ComponentID string `yaml:"componentId,omitempty" json:"componentId,omitempty"`
}

type Node struct {
	ID     string         `yaml:"id" json:"id"`
	Type   string         `yaml:"type" json:"type"`
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

type Edge struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// DisplayName returns the flow name, falling back to its id.
func (f *Flow) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// Node looks up a node by id.
func (f *Flow) Node(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// TriggerContext carries what the UI layer knows at the time a flow is invoked.
type TriggerContext struct {
	FlowID      string         `json:"flowId,omitempty"`
	Event       string         `json:"event,omitempty"`
	ComponentID string         `json:"componentId,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Page        map[string]any `json:"page,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	User        string         `json:"user,omitempty"`
}

// Matches reports whether the trigger selects this flow.
func (t TriggerContext) Matches(f *Flow) bool {
	if t.FlowID != "" {
		return t.FlowID == f.ID
	}
	if f.Trigger == nil || t.Event == "" {
		return false
	}
	if f.Trigger.Event != t.Event {
		return false
	}
	return f.Trigger.ComponentID == "" || f.Trigger.ComponentID == t.ComponentID
}

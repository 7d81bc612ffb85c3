package runtime

import (
	"github.com/creasty/defaults"
)

// Operand and assignment sources.
const (
	SourceFixed      = "fixed"
	SourceVariable   = "variable"
	SourceSystem     = "system"
	SourceExpression = "expression"
	SourcePage       = "page"
	SourceURL        = "url"
)

// ConditionRule compares a left-hand field against a fixed, variable or
// system value. In read/update/delete filters and existence checks Field
// names a record field; in branches and loops it is a variable path.
type ConditionRule struct {
	Field       string `json:"field" validate:"required"`
	Operator    string `json:"operator" validate:"required"`
	ValueType   string `json:"valueType" default:"fixed" validate:"oneof=fixed variable system"`
	Value       any    `json:"value"`
	VariableRef string `json:"variableRef"`
}

// KeySelector says where a record's primary key comes from at run time.
type KeySelector struct {
	Source string `json:"source" default:"fixed" validate:"oneof=fixed variable page url"`
	Value  string `json:"value" validate:"required"`
}

// FieldAssignment builds one field of a record (or one navigation parameter).
type FieldAssignment struct {
	Field  string `json:"field" validate:"required"`
	Source string `json:"source" default:"fixed" validate:"oneof=fixed variable system expression page url"`
	Value  any    `json:"value"`
}

// Operand is one side of a two-operand calculation.
type Operand struct {
	Source string `json:"source" default:"fixed" validate:"oneof=fixed variable system expression"`
	Value  any    `json:"value"`
}

type ReadConfig struct {
	Collection string          `json:"collection" validate:"required"`
	PrimaryKey *KeySelector    `json:"primaryKey" validate:"omitempty"`
	Filter     []ConditionRule `json:"filter" validate:"dive"`
	Mode       string          `json:"mode" validate:"omitempty,oneof=one many"`
	Field      string          `json:"field"`
	Limit      int             `json:"limit" validate:"gte=0"`
	Output     string          `json:"output" validate:"required"`
}

type WriteConfig struct {
	Collection string            `json:"collection" validate:"required"`
	Fields     []FieldAssignment `json:"fields" validate:"required,dive"`
	Output     string            `json:"output"`
}

type UpdateConfig struct {
	Collection     string            `json:"collection" validate:"required"`
	PrimaryKey     *KeySelector      `json:"primaryKey" validate:"omitempty"`
	Filter         []ConditionRule   `json:"filter" validate:"dive"`
	Fields         []FieldAssignment `json:"fields" validate:"required,dive"`
	FailIfNotFound bool              `json:"failIfNotFound"`
	Output         string            `json:"output"`
}

type DeleteConfig struct {
	Collection     string          `json:"collection" validate:"required"`
	PrimaryKey     *KeySelector    `json:"primaryKey" validate:"omitempty"`
	Filter         []ConditionRule `json:"filter" validate:"dive"`
	FailIfNotFound bool            `json:"failIfNotFound"`
	Output         string          `json:"output"`
}

type CalculateConfig struct {
	Expression string   `json:"expression"`
	Left       *Operand `json:"left" validate:"omitempty"`
	Operator   string   `json:"operator"`
	Right      *Operand `json:"right" validate:"omitempty"`
	Output     string   `json:"output" validate:"required"`
}

type AggregateConfig struct {
	Source    string `json:"source" validate:"required"`
	Field     string `json:"field"`
	Operation string `json:"operation" validate:"required,oneof=sum avg max min count"`
	Output    string `json:"output" validate:"required"`
}

type BranchConfig struct {
	Conditions  []ConditionRule `json:"conditions" validate:"dive"`
	Logic       string          `json:"logic" default:"and" validate:"oneof=and or"`
	Expression  string          `json:"expression"`
	TrueTarget  string          `json:"trueTarget" validate:"required"`
	FalseTarget string          `json:"falseTarget" validate:"required"`
}

type PropertyCheckConfig struct {
	Source string `json:"source" validate:"required"`
	Output string `json:"output"`
}

// Pipe is one numbered output of a multi-branch. It matches when the
// property equals one of Values, or lies within [Min, Max].
type Pipe struct {
	Number int      `json:"number"`
	Values []any    `json:"values"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Target string   `json:"target" validate:"required"`
}

// MaxPipes is the number of numbered outputs a multi-branch can have.
const MaxPipes = 8

type MultiBranchConfig struct {
	Property      string `json:"property"`
	Source        string `json:"source"`
	Pipes         []Pipe `json:"pipes" validate:"required,dive"`
	DefaultTarget string `json:"defaultTarget" validate:"required"`
}

type ExistRule struct {
	SourceField string `json:"sourceField" validate:"required"`
	TargetField string `json:"targetField" validate:"required"`
	Operator    string `json:"operator" default:"eq"`
}

type ExistCheckConfig struct {
	Source         string      `json:"source" validate:"required"`
	Collection     string      `json:"collection" validate:"required"`
	Rules          []ExistRule `json:"rules" validate:"dive"`
	ExistTarget    string      `json:"existTarget" validate:"required"`
	NotExistTarget string      `json:"notExistTarget" validate:"required"`
	Output         string      `json:"output"`
}

// Format rule kinds.
const (
	RuleRequired    = "required"
	RulePhone       = "phone"
	RuleEmail       = "email"
	RuleIDNumber    = "idNumber"
	RuleNumberRange = "numberRange"
	RuleLengthRange = "lengthRange"
	RuleRegex       = "regex"
)

type FormatRule struct {
	Path    string   `json:"path" validate:"required"`
	Kind    string   `json:"kind" validate:"oneof=required phone email idNumber numberRange lengthRange regex"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Pattern string   `json:"pattern"`
	Message string   `json:"message"`
}

const (
	ModeFailFast   = "failFast"
	ModeCollectAll = "collectAll"
)

type FormatCheckConfig struct {
	Rules      []FormatRule `json:"rules" validate:"required,dive"`
	Mode       string       `json:"mode" default:"failFast" validate:"oneof=failFast collectAll"`
	PassTarget string       `json:"passTarget" validate:"required"`
	FailTarget string       `json:"failTarget" validate:"required"`
	Output     string       `json:"output"`
}

const (
	LoopForEach = "forEach"
	LoopWhile   = "while"
)

type LoopStartConfig struct {
	Mode       string          `json:"mode" default:"forEach" validate:"oneof=forEach while"`
	Source     string          `json:"source"`
	ItemVar    string          `json:"itemVar" default:"item"`
	IndexVar   string          `json:"indexVar" default:"index"`
	Conditions []ConditionRule `json:"conditions" validate:"dive"`
	Logic      string          `json:"logic" default:"and" validate:"oneof=and or"`
	Expression string          `json:"expression"`
	MaxCount   *int            `json:"maxCount"`
	LoopEnd    string          `json:"loopEnd"`
}

type LoopEndConfig struct {
	LoopStart string `json:"loopStart"`
}

type AlertConfig struct {
	Kind    string `json:"kind" default:"info" validate:"oneof=info success warning error"`
	Message string `json:"message"`
}

type JumpConfig struct {
	Target string            `json:"target" validate:"required"`
	Params []FieldAssignment `json:"params" validate:"dive"`
	Mode   string            `json:"mode" default:"push" validate:"oneof=push replace blank overlay"`
}

// End actions.
const (
	EndNone         = "none"
	EndAlert        = "alert"
	EndNavigate     = "navigate"
	EndGoBack       = "goBack"
	EndReload       = "reload"
	EndCloseOverlay = "closeOverlay"
)

type EndConfig struct {
	Action  string            `json:"action" default:"none" validate:"oneof=none alert navigate goBack reload closeOverlay"`
	Kind    string            `json:"kind" default:"success" validate:"oneof=info success warning error"`
	Message string            `json:"message"`
	Target  string            `json:"target" validate:"required_if=Action navigate"`
	Params  []FieldAssignment `json:"params" validate:"dive"`
	Mode    string            `json:"mode" default:"push" validate:"oneof=push replace blank overlay"`
	Refresh bool              `json:"refresh"`
}

type emptyConfig struct{}

// newNodeConfig returns a fresh typed config for a node type.
func newNodeConfig(nodeType string) (any, bool) {
	switch nodeType {
	case NodeStart, NodeContinue, NodeBreak:
		return &emptyConfig{}, true
	case NodeEnd:
		return &EndConfig{}, true
	case NodeRead:
		return &ReadConfig{}, true
	case NodeWrite:
		return &WriteConfig{}, true
	case NodeUpdate:
		return &UpdateConfig{}, true
	case NodeDelete:
		return &DeleteConfig{}, true
	case NodeBranch:
		return &BranchConfig{}, true
	case NodeMultiBranch:
		return &MultiBranchConfig{}, true
	case NodeCalculate:
		return &CalculateConfig{}, true
	case NodeAggregate:
		return &AggregateConfig{}, true
	case NodeExistCheck:
		return &ExistCheckConfig{}, true
	case NodeFormatCheck:
		return &FormatCheckConfig{}, true
	case NodePropertyCheck:
		return &PropertyCheckConfig{}, true
	case NodeLoopStart:
		return &LoopStartConfig{}, true
	case NodeLoopEnd:
		return &LoopEndConfig{}, true
	case NodeAlert:
		return &AlertConfig{}, true
	case NodeJump:
		return &JumpConfig{}, true
	default:
		return nil, false
	}
}

// parseNodeConfig builds the typed, defaulted and validated config of a node.
func parseNodeConfig(node *Node) (any, error) {
	cfg, ok := newNodeConfig(node.Type)
	if !ok {
		return nil, structuralError(ErrorCodeUnknownNodeType, node.ID, "unknown node type %q", node.Type)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, structuralError(ErrorCodeInvalidConfig, node.ID, "invalid %s config: %v", node.Type, err)
	}
	if err := decodeNodeConfig(node, cfg); err != nil {
		return nil, err
	}
	// Slice elements are decoded after defaults.Set ran, so default them now
	applySliceDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, structuralError(ErrorCodeInvalidConfig, node.ID, "invalid %s config: %v", node.Type, err)
	}
	return cfg, nil
}

func applySliceDefaults(cfg any) {
	setRules := func(rules []ConditionRule) {
		for i := range rules {
			if rules[i].ValueType == "" {
				rules[i].ValueType = SourceFixed
			}
		}
	}
	setFields := func(fields []FieldAssignment) {
		for i := range fields {
			if fields[i].Source == "" {
				fields[i].Source = SourceFixed
			}
		}
	}
	switch c := cfg.(type) {
	case *ReadConfig:
		setRules(c.Filter)
		defaultKey(c.PrimaryKey)
	case *WriteConfig:
		setFields(c.Fields)
	case *UpdateConfig:
		setRules(c.Filter)
		setFields(c.Fields)
		defaultKey(c.PrimaryKey)
	case *DeleteConfig:
		setRules(c.Filter)
		defaultKey(c.PrimaryKey)
	case *BranchConfig:
		setRules(c.Conditions)
	case *LoopStartConfig:
		setRules(c.Conditions)
	case *ExistCheckConfig:
		for i := range c.Rules {
			if c.Rules[i].Operator == "" {
				c.Rules[i].Operator = string(OpEq)
			}
		}
	case *JumpConfig:
		setFields(c.Params)
	case *EndConfig:
		setFields(c.Params)
	case *CalculateConfig:
		for _, op := range []*Operand{c.Left, c.Right} {
			if op != nil && op.Source == "" {
				op.Source = SourceFixed
			}
		}
	}
}

func defaultKey(k *KeySelector) {
	if k != nil && k.Source == "" {
		k.Source = SourceFixed
	}
}

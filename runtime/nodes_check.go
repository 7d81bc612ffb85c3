package runtime

import (
	"fmt"
	"regexp"
	"sync"
)

var (
	phoneRe  = regexp.MustCompile(`^1[3-9]\d{9}$`)
	patterns sync.Map // pattern -> *regexp.Regexp
)

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	if pattern == "" {
		return nil, fmt.Errorf("regex rule has no pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}

func (x *Executor) executeFormatCheck(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*FormatCheckConfig)

	var messages []Value
	for _, rule := range c.Rules {
		v, _ := exec.Resolve(rule.Path)
		ok, err := checkFormat(rule, v)
		if err != nil {
			return "", runtimeError(ErrorCodeInvalidConfig, node.ID, err, "rule %s on %s", rule.Kind, rule.Path)
		}
		if ok {
			continue
		}
		messages = append(messages, String(failureMessage(exec, rule)))
		if c.Mode == ModeFailFast {
			break
		}
	}

	output := c.Output
	if output == "" {
		output = exec.plan.cfg.FormatErrorsVariable
	}
	exec.Vars.Set(output, CollectionOf(messages...))

	if len(messages) > 0 {
		x.l.InfoContext(exec, fmt.Sprintf("Format check %s failed %d rule(s)", node.ID, len(messages)))
		return c.FailTarget, nil
	}
	return c.PassTarget, nil
}

func failureMessage(exec *Execution, rule FormatRule) string {
	if rule.Message != "" {
		return exec.FormatMessage(rule.Message)
	}
	switch rule.Kind {
	case RuleRequired:
		return fmt.Sprintf("%s is required", rule.Path)
	case RuleNumberRange, RuleLengthRange:
		return fmt.Sprintf("%s is out of range", rule.Path)
	default:
		return fmt.Sprintf("%s is not a valid %s", rule.Path, rule.Kind)
	}
}

// checkFormat applies one rule. Every rule except required accepts an
// empty value.
func checkFormat(rule FormatRule, v Value) (bool, error) {
	if rule.Kind == RuleRequired {
		return !v.IsEmpty(), nil
	}
	if v.IsEmpty() {
		return true, nil
	}

	s := v.String()
	switch rule.Kind {
	case RulePhone:
		return phoneRe.MatchString(s), nil
	case RuleEmail:
		return validVar(s, "email"), nil
	case RuleIDNumber:
		return validIDNumber(s), nil
	case RuleNumberRange:
		n, ok := v.Number()
		return ok && inRange(n, rule.Min, rule.Max), nil
	case RuleLengthRange:
		return inRange(float64(v.Len()), rule.Min, rule.Max), nil
	case RuleRegex:
		re, err := compilePattern(rule.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unknown rule kind %q", rule.Kind)
}

func inRange(n float64, lo, hi *float64) bool {
	if lo != nil && n < *lo {
		return false
	}
	if hi != nil && n > *hi {
		return false
	}
	return true
}

var (
	idWeights   = [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}
	idCheckSums = "10X98765432"
)

// validIDNumber checks an 18-character resident identity number and its
// trailing check character.
func validIDNumber(s string) bool {
	if len(s) != 18 {
		return false
	}
	sum := 0
	for i := 0; i < 17; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * idWeights[i]
	}
	last := s[17]
	if last == 'x' {
		last = 'X'
	}
	return idCheckSums[sum%11] == last
}

func (x *Executor) executeExistCheck(exec *Execution, node *Node, cfg any) (string, error) {
	c := cfg.(*ExistCheckConfig)
	coll := exec.project.collection(c.Collection)

	src, _ := exec.Resolve(c.Source)
	var sources []Value
	switch src.Kind() {
	case KindNull:
	case KindRecord:
		sources = []Value{src}
	case KindCollection:
		sources = src.Items()
	default:
		return "", runtimeError(ErrorCodeInvalidConfig, node.ID, nil, "existCheck source %s is a %s, not a record", c.Source, src.Kind())
	}

	exists := false
	if len(sources) > 0 {
		rows, err := x.store.ListRecords(exec, coll, nil)
		if err != nil {
			return "", runtimeError(ErrorCodeStoreFailure, node.ID, err, "listing %s", coll)
		}
		exists = anyMatch(exec, coll, c.Rules, sources, rows)
	}

	if c.Output != "" {
		exec.Vars.Set(c.Output, Bool(exists))
	}
	x.l.InfoContext(exec, fmt.Sprintf("Exist check %s against %s: %t", node.ID, coll, exists))
	if exists {
		return c.ExistTarget, nil
	}
	return c.NotExistTarget, nil
}

// anyMatch reports whether some target row satisfies every rule for at
// least one source record.
func anyMatch(exec *Execution, coll string, rules []ExistRule, sources []Value, rows []map[string]any) bool {
	for _, src := range sources {
		if src.Kind() != KindRecord {
			continue
		}
		filter := make(Filter, 0, len(rules))
		for _, rule := range rules {
			op, err := ParseOperator(rule.Operator)
			if err != nil {
				return false
			}
			v, _ := exec.step(src, rule.SourceField)
			filter = append(filter, Condition{
				Field:    exec.project.fieldID(coll, rule.TargetField),
				Operator: op,
				Value:    v.Any(),
			})
		}
		for _, row := range rows {
			if filter.Match(row) {
				return true
			}
		}
	}
	return false
}

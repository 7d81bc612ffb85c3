package runtime

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindRecord
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindRecord:
		return "record"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// Record maps field ids to values.
type Record map[string]Value

// Value is the tagged union bound to flow variables. The zero Value is Null.
type Value struct {
	kind  Kind
	b     bool
	n     float64
	s     string
	rec   Record
	items []Value
}

// NotApplicable is bound by aggregate nodes when there is nothing numeric to aggregate.
var NotApplicable = Null()

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func RecordOf(r Record) Value { return Value{kind: KindRecord, rec: r} }

func CollectionOf(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindCollection, items: items}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsScalar() bool { return v.kind <= KindString }
func (v Value) Record() Record { return v.rec }
func (v Value) Items() []Value { return v.items }
func (v Value) BoolValue() bool { return v.b }

// Len is the number of fields of a record, elements of a collection or runes of a string.
func (v Value) Len() int {
	switch v.kind {
	case KindRecord:
		return len(v.rec)
	case KindCollection:
		return len(v.items)
	case KindString:
		return len([]rune(v.s))
	default:
		return 0
	}
}

// IsEmpty reports null, empty strings, and records or collections without entries.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	case KindRecord, KindCollection:
		return v.Len() == 0
	default:
		return false
	}
}

// Number returns the numeric reading of the value. Strings are parsed;
// booleans and composites are not numeric.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Truthy follows the usual loose rules: false, 0, "", null and empty composites are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != "" && v.s != "false"
	case KindRecord, KindCollection:
		return v.Len() > 0
	default:
		return false
	}
}

// String renders scalars in their natural text form and composites as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	default:
		data, err := json.Marshal(v.Any())
		if err != nil {
			return fmt.Sprintf("%v", v.Any())
		}
		return string(data)
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Any converts the value back to plain Go data for the record store.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindRecord:
		m := make(map[string]any, len(v.rec))
		for k, f := range v.rec {
			m[k] = f.Any()
		}
		return m
	case KindCollection:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// Equal compares values structurally, numbers by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindRecord:
		if len(v.rec) != len(o.rec) {
			return false
		}
		for k, f := range v.rec {
			of, ok := o.rec[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	case KindCollection:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Field returns a record field by id.
func (v Value) Field(id string) (Value, bool) {
	if v.kind != KindRecord {
		return Null(), false
	}
	f, ok := v.rec[id]
	return f, ok
}

// Keys returns the sorted field ids of a record.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.rec))
	for k := range v.rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValueOf converts plain Go data (decoded JSON/YAML, store rows) into a Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case map[string]any:
		return RecordOf(RecordFromMap(t))
	case map[any]any:
		r := make(Record, len(t))
		for k, val := range t {
			r[fmt.Sprint(k)] = ValueOf(val)
		}
		return RecordOf(r)
	case Record:
		return RecordOf(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = ValueOf(item)
		}
		return CollectionOf(items...)
	case []map[string]any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = RecordOf(RecordFromMap(item))
		}
		return CollectionOf(items...)
	case []Value:
		return CollectionOf(t...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return CollectionOf(items...)
	default:
		return String(fmt.Sprint(t))
	}
}

// RecordFromMap converts a store row into a Record.
func RecordFromMap(m map[string]any) Record {
	r := make(Record, len(m))
	for k, val := range m {
		r[k] = ValueOf(val)
	}
	return r
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind string

const (
	KindNull    Kind = "null"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindCustom  Kind = "custom"
)

// Value is a JSON-compatible value held by a resource field. The set of
// implementations is closed: Null, String, Number, Boolean, Array, Object and
// CustomProperty.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	Null    struct{}
	String  string
	Number  float64
	Boolean bool
	Array   []Value
	Object  map[string]Value
)

// CustomProperty is a user-defined, dynamically typed extension value. It is
// encoded as {"_type": ..., "_value": ...}.
type CustomProperty struct {
	Type  TypeName
	Value Value
}

func (Null) Kind() Kind           { return KindNull }
func (String) Kind() Kind         { return KindString }
func (Number) Kind() Kind         { return KindNumber }
func (Boolean) Kind() Kind        { return KindBoolean }
func (Array) Kind() Kind          { return KindArray }
func (Object) Kind() Kind         { return KindObject }
func (CustomProperty) Kind() Kind { return KindCustom }

func (Null) isValue()           {}
func (String) isValue()         {}
func (Number) isValue()         {}
func (Boolean) isValue()        {}
func (Array) isValue()          {}
func (Object) isValue()         {}
func (CustomProperty) isValue() {}

const (
	customTypeKey  = "_type"
	customValueKey = "_value"
)

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (cp CustomProperty) MarshalJSON() ([]byte, error) {
	inner := cp.Value
	if inner == nil {
		inner = Null{}
	}
	return json.Marshal(struct {
		Type  TypeName `json:"_type"`
		Value Value    `json:"_value"`
	}{Type: cp.Type, Value: inner})
}

// UnmarshalJSON decodes a JSON object into an Object, recognising nested
// custom properties.
func (o *Object) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeObject(data)
	if err != nil {
		return err
	}
	*o = decoded
	return nil
}

// FromAny converts a decoded JSON value (as produced by encoding/json into
// `any`) into a Value. Objects shaped exactly like {"_type": string,
// "_value": any} become CustomProperty values.
func FromAny(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null{}
	case Value:
		return v
	case string:
		return String(v)
	case bool:
		return Boolean(v)
	case float64:
		return Number(v)
	case float32:
		return Number(v)
	case int:
		return Number(v)
	case int32:
		return Number(v)
	case int64:
		return Number(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return String(v.String())
		}
		return Number(f)
	case []any:
		arr := make(Array, len(v))
		for i, item := range v {
			arr[i] = FromAny(item)
		}
		return arr
	case []string:
		arr := make(Array, len(v))
		for i, item := range v {
			arr[i] = String(item)
		}
		return arr
	case map[string]any:
		if cp, ok := customFromMap(v); ok {
			return cp
		}
		return objectFromMap(v)
	default:
		return String(fmt.Sprintf("%v", v))
	}
}

func objectFromMap(m map[string]any) Object {
	obj := make(Object, len(m))
	for key, item := range m {
		obj[key] = FromAny(item)
	}
	return obj
}

func customFromMap(m map[string]any) (CustomProperty, bool) {
	if len(m) != 2 {
		return CustomProperty{}, false
	}
	rawType, ok := m[customTypeKey]
	if !ok {
		return CustomProperty{}, false
	}
	typeName, ok := rawType.(string)
	if !ok {
		return CustomProperty{}, false
	}
	rawValue, ok := m[customValueKey]
	if !ok {
		return CustomProperty{}, false
	}
	return CustomProperty{Type: TypeName(typeName), Value: FromAny(rawValue)}, true
}

// ToAny converts a Value back into plain Go values suitable for encoding/json.
func ToAny(v Value) any {
	switch typed := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(typed)
	case Number:
		return float64(typed)
	case Boolean:
		return bool(typed)
	case Array:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = ToAny(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = ToAny(item)
		}
		return out
	case CustomProperty:
		return map[string]any{
			customTypeKey:  string(typed.Type),
			customValueKey: ToAny(typed.Value),
		}
	default:
		return nil
	}
}

// DecodeValue parses JSON into a Value.
func DecodeValue(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return FromAny(raw), nil
}

// DecodeObject parses a JSON object into an Object. The top level is always
// treated as a plain object, even when it looks like a custom property.
func DecodeObject(data []byte) (Object, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return Object{}, nil
	}
	return objectFromMap(raw), nil
}

// EncodeJSON renders a Value as compact JSON without HTML escaping.
func EncodeJSON(v Value) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ToAny(v)); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Equal reports whether two values hold the same content.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch left := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		right, ok := b.(String)
		return ok && left == right
	case Number:
		right, ok := b.(Number)
		return ok && left == right
	case Boolean:
		right, ok := b.(Boolean)
		return ok && left == right
	case Array:
		right, ok := b.(Array)
		if !ok || len(left) != len(right) {
			return false
		}
		for i := range left {
			if !Equal(left[i], right[i]) {
				return false
			}
		}
		return true
	case Object:
		right, ok := b.(Object)
		if !ok || len(left) != len(right) {
			return false
		}
		for key, item := range left {
			other, exists := right[key]
			if !exists || !Equal(item, other) {
				return false
			}
		}
		return true
	case CustomProperty:
		right, ok := b.(CustomProperty)
		return ok && left.Type == right.Type && Equal(left.Value, right.Value)
	default:
		return false
	}
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch typed := v.(type) {
	case nil:
		return Null{}
	case Array:
		out := make(Array, len(typed))
		for i, item := range typed {
			out[i] = Clone(item)
		}
		return out
	case Object:
		return typed.Clone()
	case CustomProperty:
		return CustomProperty{Type: typed.Type, Value: Clone(typed.Value)}
	default:
		return typed
	}
}

// Clone returns a deep copy of the object. A nil object clones to an empty one.
func (o Object) Clone() Object {
	out := make(Object, len(o))
	for key, item := range o {
		out[key] = Clone(item)
	}
	return out
}

// OrderedKeys returns the object's keys with integer-like keys first in
// ascending numeric order, followed by the remaining keys sorted lexically.
func (o Object) OrderedKeys() []string {
	type indexed struct {
		key string
		n   uint64
	}
	var numeric []indexed
	var named []string
	for key := range o {
		if n, ok := arrayIndex(key); ok {
			numeric = append(numeric, indexed{key: key, n: n})
			continue
		}
		named = append(named, key)
	}
	sort.Slice(numeric, func(i, j int) bool { return numeric[i].n < numeric[j].n })
	sort.Strings(named)

	keys := make([]string, 0, len(o))
	for _, item := range numeric {
		keys = append(keys, item.key)
	}
	return append(keys, named...)
}

// Values returns the object's values in OrderedKeys order.
func (o Object) Values() Array {
	keys := o.OrderedKeys()
	out := make(Array, len(keys))
	for i, key := range keys {
		out[i] = o[key]
	}
	return out
}

func arrayIndex(key string) (uint64, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Text renders a value the way a user reads it in a table cell: strings as-is,
// numbers in shortest form, arrays comma-joined and objects as JSON.
func Text(v Value) string {
	switch typed := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return string(typed)
	case Number:
		return formatNumber(float64(typed))
	case Boolean:
		return strconv.FormatBool(bool(typed))
	case Array:
		parts := make([]string, len(typed))
		for i, item := range typed {
			if _, isNull := item.(Null); isNull || item == nil {
				continue
			}
			parts[i] = Text(item)
		}
		return strings.Join(parts, ",")
	case CustomProperty:
		return Text(typed.Value)
	default:
		encoded, err := EncodeJSON(typed)
		if err != nil {
			return ""
		}
		return encoded
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NumberOf converts a value to a number. Values with no numeric reading
// yield NaN.
func NumberOf(v Value) float64 {
	switch typed := v.(type) {
	case nil, Null:
		return 0
	case Number:
		return float64(typed)
	case Boolean:
		if typed {
			return 1
		}
		return 0
	case String:
		return parseNumber(string(typed))
	case Array:
		switch len(typed) {
		case 0:
			return 0
		case 1:
			if _, isNull := typed[0].(Null); isNull {
				return 0
			}
			return parseNumber(Text(typed[0]))
		default:
			return math.NaN()
		}
	case CustomProperty:
		return NumberOf(typed.Value)
	default:
		return math.NaN()
	}
}

func parseNumber(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if strings.ContainsAny(lower, "_ni") {
		// rejects "inf", "nan" and digit separators accepted by ParseFloat
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Truthy reports the boolean reading of a value: empty strings, zero, NaN and
// null are false; containers are always true.
func Truthy(v Value) bool {
	switch typed := v.(type) {
	case nil, Null:
		return false
	case String:
		return typed != ""
	case Number:
		f := float64(typed)
		return f != 0 && !math.IsNaN(f)
	case Boolean:
		return bool(typed)
	case CustomProperty:
		return Truthy(typed.Value)
	default:
		return true
	}
}

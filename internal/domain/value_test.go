package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeValueRecognisesCustomProperties(t *testing.T) {
	value, err := DecodeValue([]byte(`{"_type":"number","_value":3.5}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	cp, ok := value.(CustomProperty)
	if !ok {
		t.Fatalf("expected CustomProperty, got %T", value)
	}
	if cp.Type != TypeNumber || cp.Value != Number(3.5) {
		t.Fatalf("unexpected custom property %#v", cp)
	}

	value, err = DecodeValue([]byte(`{"_type":"number","_value":3.5,"extra":true}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if _, ok := value.(Object); !ok {
		t.Fatalf("objects with extra keys must stay plain objects, got %T", value)
	}
}

func TestDecodeObjectKeepsTopLevelPlain(t *testing.T) {
	obj, err := DecodeObject([]byte(`{"_type":"string","_value":"x"}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(obj) != 2 {
		t.Fatalf("expected two plain keys, got %v", obj)
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	original := Object{
		"name":    String("Cell A"),
		"voltage": Number(3.7),
		"active":  Boolean(true),
		"notes":   Null{},
		"tags":    Array{String("a"), Number(1)},
		"custom_properties": Object{
			"colour": CustomProperty{Type: TypeString, Value: String("red")},
		},
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Object
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !Equal(original, decoded) {
		t.Fatalf("round trip mismatch:\n%s", cmp.Diff(ToAny(original), ToAny(decoded)))
	}
}

func TestEqualAndClone(t *testing.T) {
	original := Object{"list": Array{Object{"a": Number(1)}}}
	clone := original.Clone()
	if !Equal(original, clone) {
		t.Fatalf("clone should equal original")
	}

	clone["list"].(Array)[0].(Object)["a"] = Number(2)
	if Equal(original, clone) {
		t.Fatalf("mutating the clone must not affect the original")
	}
	if Equal(String("1"), Number(1)) {
		t.Fatalf("values of different kinds must not be equal")
	}
}

func TestOrderedKeys(t *testing.T) {
	obj := Object{"10": Null{}, "2": Null{}, "b": Null{}, "a": Null{}, "01": Null{}, "0": Null{}}
	got := obj.OrderedKeys()
	want := []string{"0", "2", "10", "01", "a", "b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected key order (-want +got):\n%s", diff)
	}
}

func TestNumberOf(t *testing.T) {
	cases := []struct {
		name  string
		value Value
		want  float64
		nan   bool
	}{
		{name: "number", value: Number(4.2), want: 4.2},
		{name: "numeric string", value: String(" 12.5 "), want: 12.5},
		{name: "empty string", value: String(""), want: 0},
		{name: "hex string", value: String("0x1F"), want: 31},
		{name: "exponent", value: String("1e3"), want: 1000},
		{name: "word", value: String("abc"), nan: true},
		{name: "lowercase inf", value: String("inf"), nan: true},
		{name: "true", value: Boolean(true), want: 1},
		{name: "null", value: Null{}, want: 0},
		{name: "empty array", value: Array{}, want: 0},
		{name: "single array", value: Array{String("7")}, want: 7},
		{name: "long array", value: Array{Number(1), Number(2)}, nan: true},
		{name: "object", value: Object{}, nan: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NumberOf(tc.value)
			if tc.nan {
				if !math.IsNaN(got) {
					t.Fatalf("expected NaN, got %v", got)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTruthyAndText(t *testing.T) {
	if Truthy(String("")) || Truthy(Number(0)) || Truthy(Null{}) || Truthy(Number(math.NaN())) {
		t.Fatalf("falsy values reported as truthy")
	}
	if !Truthy(Object{}) || !Truthy(Array{}) || !Truthy(String("0")) {
		t.Fatalf("truthy values reported as falsy")
	}

	if got := Text(Number(3)); got != "3" {
		t.Errorf("expected 3, got %q", got)
	}
	if got := Text(Array{String("a"), Null{}, Number(2)}); got != "a,,2" {
		t.Errorf("expected a,,2, got %q", got)
	}
	if got := Text(Object{"k": String("<v>")}); got != `{"k":"<v>"}` {
		t.Errorf("unexpected object text %q", got)
	}
}

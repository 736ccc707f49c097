package coerce

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/registry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(t *testing.T) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	reg, err := registry.Default("http://api.test/")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	return NewEngine(reg, WithLogger(zap.New(core))), logs
}

func TestConvertSameTypeIsIdentity(t *testing.T) {
	engine, logs := newTestEngine(t)

	values := []domain.Notated{
		{Type: domain.TypeString, Value: domain.String("hello")},
		{Type: domain.TypeNumber, Value: domain.Number(3.7)},
		{Type: domain.TypeBoolean, Value: domain.Boolean(false)},
		{Type: domain.TypeArray, Value: domain.Array{domain.String("a"), domain.Number(1)}},
		{Type: domain.TypeObject, Value: domain.Object{"k": domain.Array{domain.Null{}}}},
		{Type: "galv_CELL", Value: domain.String("http://api.test/cells/1/")},
	}

	for _, n := range values {
		got := engine.Convert(n, n.Type)
		if diff := cmp.Diff(n, got); diff != "" {
			t.Errorf("convert to %s changed the value (-want +got):\n%s", n.Type, diff)
		}
	}
	if logs.Len() != 0 {
		t.Fatalf("identity conversions should not warn, got %d entries", logs.Len())
	}
}

func TestConvertObjectArrayRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)

	arr := domain.Array{domain.String("a"), domain.Number(2), domain.Boolean(true)}
	for i := 0; i < 12; i++ {
		arr = append(arr, domain.Number(float64(i)))
	}

	obj := engine.Convert(domain.Notated{Type: domain.TypeArray, Value: arr}, domain.TypeObject)
	if obj.Value.(domain.Object)["10"] != domain.Number(7) {
		t.Fatalf("expected index keys, got %v", obj.Value)
	}

	back := engine.Convert(obj, domain.TypeArray)
	if diff := cmp.Diff(domain.Value(arr), back.Value); diff != "" {
		t.Fatalf("round trip lost order (-want +got):\n%s", diff)
	}
}

func TestConvertNonNumericStringWarns(t *testing.T) {
	engine, logs := newTestEngine(t)

	got := engine.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String("abc")}, domain.TypeNumber)
	if got.Value != domain.Number(0) {
		t.Fatalf("expected 0, got %#v", got.Value)
	}
	if logs.FilterMessage("value is not a finite number; using 0").Len() != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
}

func TestConvertToNumber(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		in   domain.Value
		want float64
	}{
		{domain.String(" 42 "), 42},
		{domain.String(""), 0},
		{domain.String("0x10"), 16},
		{domain.Boolean(true), 1},
		{domain.Null{}, 0},
		{domain.Array{domain.String("5")}, 5},
		{domain.Array{domain.Number(1), domain.Number(2)}, 0},
		{domain.String("Infinity"), 0},
		{domain.Object{}, 0},
	}
	for _, tt := range tests {
		got := engine.Convert(domain.Notated{Type: domain.TypeString, Value: tt.in}, domain.TypeNumber)
		if f := float64(got.Value.(domain.Number)); f != tt.want || math.IsNaN(f) {
			t.Errorf("Number(%#v) = %v, want %v", tt.in, f, tt.want)
		}
	}
}

func TestConvertToString(t *testing.T) {
	engine, logs := newTestEngine(t)

	tests := []struct {
		in   domain.Value
		want string
	}{
		{domain.Number(3.5), "3.5"},
		{domain.Boolean(true), "true"},
		{domain.Null{}, "null"},
		{domain.Array{domain.String("a<b")}, `["a<b"]`},
		{domain.Object{"k": domain.Number(1)}, `{"k":1}`},
	}
	for _, tt := range tests {
		got := engine.Convert(domain.Notated{Type: domain.TypeObject, Value: tt.in}, domain.TypeString)
		if got.Value != domain.String(tt.want) {
			t.Errorf("String(%#v) = %#v, want %q", tt.in, got.Value, tt.want)
		}
	}

	got := engine.Convert(domain.Notated{Type: domain.TypeNumber, Value: domain.Number(math.NaN())}, domain.TypeString)
	if got.Value != domain.String("") || logs.Len() != 1 {
		t.Fatalf("expected empty string with a warning, got %#v (%d logs)", got.Value, logs.Len())
	}
}

func TestConvertToObjectAndArray(t *testing.T) {
	engine, logs := newTestEngine(t)

	got := engine.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String(`{"a": 1}`)}, domain.TypeObject)
	if diff := cmp.Diff(domain.Value(domain.Object{"a": domain.Number(1)}), got.Value); diff != "" {
		t.Fatalf("object literal (-want +got):\n%s", diff)
	}

	got = engine.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String("{broken}")}, domain.TypeObject)
	if diff := cmp.Diff(domain.Value(domain.Object{}), got.Value); diff != "" || logs.Len() != 1 {
		t.Fatalf("broken literal should give {} and warn, got %v", got.Value)
	}

	got = engine.Convert(domain.Notated{Type: domain.TypeNumber, Value: domain.Number(4)}, domain.TypeObject)
	if diff := cmp.Diff(domain.Value(domain.Object{"0": domain.Number(4)}), got.Value); diff != "" {
		t.Fatalf("scalar to object (-want +got):\n%s", diff)
	}

	got = engine.Convert(domain.Notated{Type: domain.TypeObject, Value: domain.Null{}}, domain.TypeArray)
	if diff := cmp.Diff(domain.Value(domain.Array{}), got.Value); diff != "" {
		t.Fatalf("null to array (-want +got):\n%s", diff)
	}

	got = engine.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String("[1, 2,]")}, domain.TypeArray)
	if diff := cmp.Diff(domain.Value(domain.Array{}), got.Value); diff != "" {
		t.Fatalf("unparsable array literal should give [] (-want +got):\n%s", diff)
	}

	got = engine.Convert(domain.Notated{Type: domain.TypeObject, Value: domain.Object{"b": domain.Number(2), "10": domain.Number(10), "2": domain.Number(3)}}, domain.TypeArray)
	want := domain.Array{domain.Number(3), domain.Number(10), domain.Number(2)}
	if diff := cmp.Diff(domain.Value(want), got.Value); diff != "" {
		t.Fatalf("object values order (-want +got):\n%s", diff)
	}
}

func TestConvertReferenceToArrayKeepsTag(t *testing.T) {
	engine, _ := newTestEngine(t)

	url := domain.String("http://api.test/cells/1/")
	got := engine.Convert(domain.Notated{Type: "galv_CELL", Value: url}, domain.TypeArray)
	want := domain.Array{domain.CustomProperty{Type: "galv_CELL", Value: url}}
	if diff := cmp.Diff(domain.Value(want), got.Value); diff != "" {
		t.Fatalf("reference wrap (-want +got):\n%s", diff)
	}
}

func TestConvertToReference(t *testing.T) {
	engine, _ := newTestEngine(t)

	got := engine.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String("a b/c-1_2")}, "galv_CELL")
	if got.Type != "galv_CELL" || got.Value != domain.String("http://api.test/cells/abc-1_2/") {
		t.Fatalf("unexpected reference %+v", got)
	}

	got = engine.Convert(domain.Notated{Type: domain.TypeString, Value: domain.String("!!")}, "galv_cell_model")
	if got.Value != domain.String("http://api.test/cell_models/new/") {
		t.Fatalf("expected placeholder id, got %#v", got.Value)
	}
}

func TestConvertUnknownTargetLeavesValue(t *testing.T) {
	engine, logs := newTestEngine(t)

	n := domain.Notated{Type: domain.TypeNumber, Value: domain.Number(1)}
	got := engine.Convert(n, "galv_UNKNOWN")
	if diff := cmp.Diff(n, got); diff != "" {
		t.Fatalf("unknown target changed value (-want +got):\n%s", diff)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected a warning for unknown target")
	}
}

func TestConvertToBoolean(t *testing.T) {
	engine, _ := newTestEngine(t)

	for in, want := range map[domain.Value]bool{
		domain.String(""):     false,
		domain.String("no"):   true,
		domain.Number(0):      false,
		domain.Number(2):      true,
		domain.Null{}:         false,
		domain.Boolean(true):  true,
		domain.Boolean(false): false,
	} {
		got := engine.Convert(domain.Notated{Type: domain.TypeString, Value: in}, domain.TypeBoolean)
		if got.Value != domain.Boolean(want) {
			t.Errorf("Boolean(%#v) = %#v, want %v", in, got.Value, want)
		}
	}
}

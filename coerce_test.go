package minicfg

import (
	"encoding/json"
	"net/netip"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type implementsTextUnmarshaler struct {
	content string
}

func (i *implementsTextUnmarshaler) UnmarshalText(text []byte) error {
	i.content = strings.ToUpper(string(text))
	return nil
}

type level string

type coerceTarget struct {
	I        int
	I8       int8
	U        uint16
	F        float64
	B        bool
	S        string
	L        level
	D        time.Duration
	Addr     netip.Addr
	Text     implementsTextUnmarshaler
	Ints     []int
	Strs     []string
	Pair     [2]float32
	Labels   map[string]string
	Ptr      *int
	Any      any
	Texts    []implementsTextUnmarshaler
	Nested   map[string][]int
	Untyped  []any
	Unsigned uint
}

func coerceField(t *testing.T, name string, raw any) (reflect.Value, error) {
	t.Helper()
	v := reflect.New(reflect.TypeFor[coerceTarget]()).Elem()
	f := v.FieldByName(name)
	require.True(t, f.IsValid(), name)
	return f, coerceInto(f, raw)
}

func TestCoerceScalars(t *testing.T) {
	cases := []struct {
		field    string
		raw      any
		expected any
	}{
		{"I", int64(10), 10},
		{"I", 10.0, 10},
		{"I", json.Number("10"), 10},
		{"I", " 42 ", 42},
		{"I8", int64(-128), int8(-128)},
		{"U", 7, uint16(7)},
		{"U", "65535", uint16(65535)},
		{"F", int64(3), 3.0},
		{"F", json.Number("1.5"), 1.5},
		{"F", "2.25", 2.25},
		{"B", true, true},
		{"B", "false", false},
		{"S", "hello", "hello"},
		{"L", "debug", level("debug")},
		{"D", "1m30s", 90 * time.Second},
		{"Addr", "10.0.0.1", netip.MustParseAddr("10.0.0.1")},
		{"Text", "abc", implementsTextUnmarshaler{content: "ABC"}},
		{"Any", map[string]any{"x": 1}, map[string]any{"x": 1}},
		{"Unsigned", json.Number("12"), uint(12)},
	}

	for _, c := range cases {
		f, err := coerceField(t, c.field, c.raw)
		if err != nil {
			t.Fatalf("%s <- %#v: %v", c.field, c.raw, err)
		}
		assert.Equal(t, c.expected, f.Interface(), "%s <- %#v", c.field, c.raw)
	}
}

func TestCoerceCollections(t *testing.T) {
	f, err := coerceField(t, "Ints", []any{int64(1), 2, json.Number("3")})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, f.Interface())

	f, err = coerceField(t, "Strs", "a,b,c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, f.Interface())

	f, err = coerceField(t, "Ints", "1,2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, f.Interface())

	f, err = coerceField(t, "Texts", "x,y")
	require.NoError(t, err)
	assert.Equal(t, []implementsTextUnmarshaler{{content: "X"}, {content: "Y"}}, f.Interface())

	f, err = coerceField(t, "Pair", []any{1.5, int64(2)})
	require.NoError(t, err)
	assert.Equal(t, [2]float32{1.5, 2}, f.Interface())

	f, err = coerceField(t, "Labels", map[string]any{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "prod"}, f.Interface())

	f, err = coerceField(t, "Nested", map[string]any{"a": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"a": {1, 2}}, f.Interface())

	f, err = coerceField(t, "Untyped", []any{1, "two"})
	require.NoError(t, err)
	assert.Equal(t, []any{1, "two"}, f.Interface())
}

func TestCoercePointerAndNil(t *testing.T) {
	f, err := coerceField(t, "Ptr", int64(5))
	require.NoError(t, err)
	require.False(t, f.IsNil())
	assert.Equal(t, 5, *(f.Interface().(*int)))

	f, err = coerceField(t, "Ptr", nil)
	require.NoError(t, err)
	assert.True(t, f.IsNil())

	f, err = coerceField(t, "I", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Interface())
}

func TestCoerceErrors(t *testing.T) {
	cases := []struct {
		field string
		raw   any
	}{
		{"I", 1.5},
		{"I", "ten"},
		{"I8", int64(300)},
		{"U", int64(-1)},
		{"B", "maybe"},
		{"S", 12},
		{"D", "soon"},
		{"Pair", []any{1}},
		{"Ints", map[string]any{"a": 1}},
		{"Labels", []any{"a"}},
		{"Text", 12},
	}

	for _, c := range cases {
		if _, err := coerceField(t, c.field, c.raw); err == nil {
			t.Fatalf("%s <- %#v: expected an error", c.field, c.raw)
		}
	}
}

func TestCoerceMappingIntoPlainStruct(t *testing.T) {
	type plain struct{ A int }

	v := reflect.New(reflect.TypeFor[plain]()).Elem()
	err := coerceInto(v, map[string]any{"A": 1})
	assert.ErrorContains(t, err, "not a sub-config type")
}

func TestCoerceDateLikeStringIntoString(t *testing.T) {
	f, err := coerceField(t, "S", "2025-02-06")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-06", f.String())

	type release struct {
		Release string `cfg:"release"`
	}

	cfg, err := FromYAML[release]([]string{"testdata/yaml/basic_config.yaml"},
		AllowUnknownKeys(), WithOverrides("release=2025-02-06"))
	require.NoError(t, err)
	assert.Equal(t, "2025-02-06", cfg.Release)
}

package override

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/config"
)

func TestParseValue(t *testing.T) {
	node := config.NewNode()
	node.Set("lr", 0.1)
	node.Set("name", "adam")

	testCases := []struct {
		name string
		raw  string
		want any
	}{
		{name: "int", raw: "64", want: int64(64)},
		{name: "negative int", raw: "-1", want: int64(-1)},
		{name: "float", raw: "0.5", want: 0.5},
		{name: "float with zero fraction", raw: "3.0", want: 3.0},
		{name: "exponent", raw: "1e-3", want: 0.001},
		{name: "negative float", raw: "-0.25", want: -0.25},
		{name: "bool", raw: "true", want: true},
		{name: "capitalized bool", raw: "False", want: false},
		{name: "null", raw: "null", want: nil},
		{name: "bare word", raw: "xournal", want: "xournal"},
		{name: "dotted word", raw: "torch.optim.Adam", want: "torch.optim.Adam"},
		{name: "path", raw: "/data/iam", want: "/data/iam"},
		{name: "date", raw: "2023-01-01", want: "2023-01-01"},
		{name: "arithmetic stays text", raw: "1/2", want: "1/2"},
		{name: "interpolation", raw: "${paths.data_dir}/iam", want: "${paths.data_dir}/iam"},
		{name: "double quoted", raw: `"64"`, want: "64"},
		{name: "single quoted", raw: `'with space'`, want: "with space"},
		{name: "empty", raw: "", want: ""},
		{name: "list", raw: "[1, 2, 3]", want: []any{int64(1), int64(2), int64(3)}},
		{name: "mixed list", raw: `[a, "b c", 'd', null]`, want: []any{"a", "b c", "d", nil}},
		{name: "quoted interpolation in list", raw: `["${a.b}", 1]`, want: []any{"${a.b}", int64(1)}},
		{name: "map with colons", raw: "{lr: 0.1, name: adam}", want: node},
		{name: "map with equals", raw: `{lr = 0.1, "name" = "adam"}`, want: node},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseValue(tc.raw)
			require.NoError(t, err)
			if n, ok := tc.want.(*config.Node); ok {
				require.IsType(t, &config.Node{}, got)
				assert.True(t, n.Equal(got.(*config.Node)))
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("special floats", func(t *testing.T) {
		v, err := ParseValue("inf")
		require.NoError(t, err)
		assert.True(t, math.IsInf(v.(float64), 1))
		v, err = ParseValue("-inf")
		require.NoError(t, err)
		assert.True(t, math.IsInf(v.(float64), -1))
		v, err = ParseValue("nan")
		require.NoError(t, err)
		assert.True(t, math.IsNaN(v.(float64)))
	})
}

func TestParseValue_Invalid(t *testing.T) {
	for _, raw := range []string{`"abc`, `'abc`, "[1, 2", "{a: }", "[1+2]", `["a" "b"]`} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseValue(raw)
			require.ErrorIs(t, err, config.ErrInvalidLiteral)
		})
	}
}

func TestParseSweep(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want []any
		kind SweepKind
	}{
		{name: "list", raw: "-1,10", want: []any{int64(-1), int64(10)}, kind: SweepList},
		{name: "duplicates dropped", raw: "a,b,a", want: []any{"a", "b"}, kind: SweepList},
		{name: "choice", raw: "choice(adam, sgd)", want: []any{"adam", "sgd"}, kind: SweepChoice},
		{name: "int range", raw: "range(0,3)", want: []any{int64(0), int64(1), int64(2)}, kind: SweepRange},
		{name: "descending range", raw: "range(3,0,-1)", want: []any{int64(3), int64(2), int64(1)}, kind: SweepRange},
		{name: "float range", raw: "range(0,1,0.5)", want: []any{0.0, 0.5}, kind: SweepRange},
		{name: "lists", raw: "[1,2],[3]", want: []any{[]any{int64(1), int64(2)}, []any{int64(3)}}, kind: SweepList},
		{name: "quoted comma", raw: "'a,b',c", want: []any{"a,b", "c"}, kind: SweepList},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseSweep(tc.raw)
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, tc.kind, s.Kind)
			assert.Equal(t, tc.want, s.Values)
			assert.Equal(t, len(s.Values), len(s.Raws))
			assert.Equal(t, tc.raw, s.String())
		})
	}

	t.Run("single values are not sweeps", func(t *testing.T) {
		for _, raw := range []string{"1", "[1,2]", "{a: 1, b: 2}", `"x,y"`, `a\,b`} {
			s, err := ParseSweep(raw)
			require.NoError(t, err)
			assert.Nil(t, s, raw)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"range(0,0)", "range(1,x)", "range(1)", "range(0,5,0)", "a,[b", "a],b"} {
			_, err := ParseSweep(raw)
			require.ErrorIs(t, err, config.ErrInvalidLiteral, raw)
		}
	})
}

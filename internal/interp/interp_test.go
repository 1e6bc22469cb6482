package interp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/keypath"
)

func tree(t *testing.T, src string) *config.Node {
	t.Helper()
	n, err := config.DecodeYAML([]byte(src), "test.yaml")
	require.NoError(t, err)
	return n
}

func resolve(t *testing.T, src string, opts ...Option) (*config.Node, error) {
	t.Helper()
	return Resolve(context.Background(), tree(t, src), opts...)
}

func get(t *testing.T, n *config.Node, path string) any {
	t.Helper()
	v, err := n.LookupString(path)
	require.NoError(t, err)
	return v
}

func TestResolve_References(t *testing.T) {
	out, err := resolve(t, `
paths:
  root_dir: /work
  data_dir: ${paths.root_dir}/data
  log_dir: ${.root_dir}/logs
data:
  data_dir: ${paths.data_dir}/iam
  batch_size: 32
  workers: ${data.batch_size}
  ratio: ${model.dropout}
  split: ${data.sizes}
  sizes: [0.8, 0.2]
model:
  dropout: 0.1
  name: lstm-${data.batch_size}-${model.dropout}
  enabled: ${flags.enabled}
  head: ${model.layers[1]}
  layers: [64, 128]
flags:
  enabled: true
alias: ${paths}
via_alias: ${alias.root_dir}
`)
	require.NoError(t, err)

	assert.Equal(t, "/work/data", get(t, out, "paths.data_dir"))
	assert.Equal(t, "/work/logs", get(t, out, "paths.log_dir"))
	assert.Equal(t, "/work/data/iam", get(t, out, "data.data_dir"))
	assert.Equal(t, int64(32), get(t, out, "data.workers"), "full-string references keep their type")
	assert.Equal(t, 0.1, get(t, out, "data.ratio"))
	assert.Equal(t, []any{0.8, 0.2}, get(t, out, "data.split"))
	assert.Equal(t, "lstm-32-0.1", get(t, out, "model.name"))
	assert.Equal(t, true, get(t, out, "model.enabled"))
	assert.Equal(t, int64(128), get(t, out, "model.head"))
	assert.Equal(t, "/work", get(t, out, "alias.root_dir"))
	assert.Equal(t, "/work", get(t, out, "via_alias"))
}

func TestResolve_DoesNotModifyInput(t *testing.T) {
	in := tree(t, "a: 1\nb: ${a}\n")
	before := in.Clone()
	_, err := Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, before.Equal(in))
}

func TestResolve_Escape(t *testing.T) {
	out, err := resolve(t, `
a: '\${not.a.ref}'
paths:
  pattern: '\${not.a.ref}'
alias: ${paths}
alias_of_alias: ${alias}
via_alias: ${alias.pattern}
via_two: ${alias_of_alias.pattern}
list: ['\${x}', '\${y}']
list_alias: ${list}
first: ${list_alias[0]}
`)
	require.NoError(t, err)

	for _, path := range []string{"a", "paths.pattern", "alias.pattern", "alias_of_alias.pattern", "via_alias", "via_two"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, "${not.a.ref}", get(t, out, path))
		})
	}
	assert.Equal(t, "${x}", get(t, out, "first"))
	assert.Equal(t, []any{"${x}", "${y}"}, get(t, out, "list_alias"))
}

func TestResolve_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		kind error
		path string
	}{
		{name: "missing key", src: "a: ${b.c}\nb: {}\n", kind: config.ErrInterpolationUnresolved, path: "a"},
		{name: "direct cycle", src: "a: ${b}\nb: ${a}\n", kind: config.ErrInterpolationCycle},
		{name: "self reference", src: "a: x${a}\n", kind: config.ErrInterpolationCycle},
		{name: "cycle through parent", src: "a:\n  b: ${a}\n", kind: config.ErrInterpolationCycle},
		{name: "embedded mapping", src: "a: {x: 1}\nb: pre-${a}\n", kind: config.ErrInterpolationUnresolved, path: "b"},
		{name: "unterminated", src: "a: ${b\n", kind: config.ErrInterpolationUnresolved, path: "a"},
		{name: "unknown resolver", src: "a: ${nope:x}\n", kind: config.ErrInterpolationUnresolved, path: "a"},
		{name: "relative above root", src: "a: ${..b}\n", kind: config.ErrInterpolationUnresolved, path: "a"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolve(t, tc.src)
			require.ErrorIs(t, err, tc.kind)
			if tc.path != "" {
				var cerr *config.Error
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tc.path, cerr.Path)
			}
		})
	}
}

func TestResolvers(t *testing.T) {
	env := map[string]string{"PROJECT_ROOT": "/proj", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	out, err := resolve(t, `
root: ${oc.env:PROJECT_ROOT}
fallback: ${oc.env:MISSING,/tmp}
nothing: ${oc.env:MISSING,null}
empty: ${oc.env:EMPTY,x}
day: ${now:%Y-%m-%d}
clock: ${now:%H:%M:%S}
dir: outputs/${now:%Y-%m-%d}/${now:%H-%M-%S}
hydra:
  runtime:
    output_dir: /out/1
paths:
  output_dir: ${hydra:runtime.output_dir}
picked: ${oc.select:paths.missing,default}
nested: ${oc.env:${which},none}
which: PROJECT_ROOT
`, WithEnv(lookup), WithNow(now))
	require.NoError(t, err)

	assert.Equal(t, "/proj", get(t, out, "root"))
	assert.Equal(t, "/tmp", get(t, out, "fallback"))
	assert.Nil(t, get(t, out, "nothing"))
	assert.Equal(t, "", get(t, out, "empty"))
	assert.Equal(t, "2024-03-05", get(t, out, "day"))
	assert.Equal(t, "14:07:09", get(t, out, "clock"))
	assert.Equal(t, "outputs/2024-03-05/14-07-09", get(t, out, "dir"))
	assert.Equal(t, "/out/1", get(t, out, "paths.output_dir"))
	assert.Equal(t, "default", get(t, out, "picked"))
	assert.Equal(t, "/proj", get(t, out, "nested"))

	_, err = resolve(t, "a: ${oc.env:MISSING}\n", WithEnv(lookup))
	require.ErrorIs(t, err, config.ErrInterpolationUnresolved)
}

func TestWithResolver(t *testing.T) {
	double := func(args []any) (any, error) {
		return args[0].(int64) * 2, nil
	}
	out, err := resolve(t, "n: 21\nm: ${double:${n}}\n", WithResolver("double", double))
	require.NoError(t, err)
	assert.Equal(t, int64(42), get(t, out, "m"))
}

func TestInterpolator_Lookup(t *testing.T) {
	ip := New(tree(t, "a: {b: ${c}}\nc: 3\n"))
	v, err := ip.Lookup(keypath.MustParse("a.b"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	s, err := ip.Expand("c=${c}")
	require.NoError(t, err)
	assert.Equal(t, "c=3", s)
}

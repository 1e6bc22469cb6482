package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/keypath"
)

func mustYAML(t *testing.T, src string) *Node {
	t.Helper()
	n, err := DecodeYAML([]byte(src), "test.yaml")
	require.NoError(t, err)
	return n
}

func TestNode_OrderAndEquality(t *testing.T) {
	a := NewNode()
	a.Set("z", 1)
	a.Set("a", "x")
	a.Set("z", 2) // overwrite keeps position

	assert.Equal(t, []string{"z", "a"}, a.Keys())
	v, ok := a.Get("z")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)

	b := NewNode()
	b.Set("a", "x")
	b.Set("z", int64(2))
	assert.True(t, a.Equal(b), "equality must ignore key order")

	b.Set("z", 2.0)
	assert.False(t, a.Equal(b), "int and float are distinct")
}

func TestNode_CloneIsDeep(t *testing.T) {
	n := mustYAML(t, "model:\n  layers: [1, 2]\n")
	c := n.Clone()

	require.NoError(t, c.SetPath(keypath.MustParse("model.layers[0]"), 9, false))
	require.NoError(t, c.SetPath(keypath.MustParse("model.extra"), true, false))

	orig, err := n.LookupString("model.layers[0]")
	require.NoError(t, err)
	assert.Equal(t, int64(1), orig)
	assert.False(t, n.Child("model").Has("extra"))
}

func TestNode_SetPath(t *testing.T) {
	base := "data:\n  batch_size: 32\n  splits: [1, 2, 3]\nname: run\n"

	t.Run("existing key", func(t *testing.T) {
		n := mustYAML(t, base)
		require.NoError(t, n.SetPath(keypath.MustParse("data.batch_size"), 64, false))
		v, _ := n.LookupString("data.batch_size")
		assert.Equal(t, int64(64), v)
	})

	t.Run("create intermediate", func(t *testing.T) {
		n := mustYAML(t, base)
		require.NoError(t, n.SetPath(keypath.MustParse("trainer.limits.max_epochs"), 5, true))
		v, _ := n.LookupString("trainer.limits.max_epochs")
		assert.Equal(t, int64(5), v)
	})

	t.Run("strict refuses missing parent", func(t *testing.T) {
		n := mustYAML(t, base)
		err := n.SetPath(keypath.MustParse("trainer.max_epochs"), 5, false)
		require.ErrorIs(t, err, ErrInvalidOverridePath)
	})

	t.Run("traversing a scalar", func(t *testing.T) {
		n := mustYAML(t, base)
		err := n.SetPath(keypath.MustParse("name.first"), "x", true)
		require.ErrorIs(t, err, ErrInvalidOverridePath)
		var cerr *Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, "name", cerr.Path)
	})

	t.Run("list element", func(t *testing.T) {
		n := mustYAML(t, base)
		require.NoError(t, n.SetPath(keypath.MustParse("data.splits[2]"), 30, false))
		v, _ := n.LookupString("data.splits")
		assert.Equal(t, []any{int64(1), int64(2), int64(30)}, v)
	})

	t.Run("list index out of range", func(t *testing.T) {
		n := mustYAML(t, base)
		err := n.SetPath(keypath.MustParse("data.splits[7]"), 1, true)
		require.ErrorIs(t, err, ErrInvalidOverridePath)
	})

	t.Run("root", func(t *testing.T) {
		n := mustYAML(t, base)
		require.ErrorIs(t, n.SetPath(nil, 1, true), ErrInvalidOverridePath)
	})
}

func TestNode_LookupAndDelete(t *testing.T) {
	n := mustYAML(t, "a:\n  b: 1\n  l: [x, y, z]\n")

	_, err := n.LookupString("a.missing")
	require.Error(t, err)
	assert.True(t, IsMissing(err))

	_, err = n.LookupString("a.b.c")
	require.ErrorIs(t, err, ErrInvalidOverridePath)
	assert.False(t, IsMissing(err))

	ok, err := n.DeletePath(keypath.MustParse("a.l[1]"))
	require.NoError(t, err)
	assert.True(t, ok)
	v, _ := n.LookupString("a.l")
	assert.Equal(t, []any{"x", "z"}, v)

	ok, err = n.DeletePath(keypath.MustParse("a.b"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = n.DeletePath(keypath.MustParse("a.b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNode_Walk(t *testing.T) {
	n := mustYAML(t, "a:\n  b: {c: 1}\nlist:\n  - {x: 1}\n")

	var visited []string
	require.NoError(t, n.Walk(func(p keypath.Path, _ *Node) error {
		visited = append(visited, p.String())
		return nil
	}))
	assert.Equal(t, []string{"", "a", "a.b", "list[0]"}, visited)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(map[string]any{"b": []string{"x"}, "a": int32(3)})
	require.NoError(t, err)
	n := v.(*Node)
	assert.Equal(t, []string{"a", "b"}, n.Keys())
	a, _ := n.Get("a")
	assert.Equal(t, int64(3), a)
	b, _ := n.Get("b")
	assert.Equal(t, []any{"x"}, b)

	_, err = Normalize(struct{}{})
	require.Error(t, err)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	testCases := []struct {
		name     string
		dst, src string
		expected string
		conflict bool
	}{
		{
			name:     "nested mappings merge",
			dst:      "a: {x: 1, y: 2}",
			src:      "a: {y: 3, z: 4}",
			expected: "a: {x: 1, y: 3, z: 4}",
		},
		{
			name:     "lists are replaced",
			dst:      "l: [1, 2, 3]",
			src:      "l: [9]",
			expected: "l: [9]",
		},
		{
			name:     "scalar type may change",
			dst:      "v: 1",
			src:      "v: one",
			expected: "v: one",
		},
		{
			name:     "null clears a mapping",
			dst:      "a: {x: 1}",
			src:      "a: null",
			expected: "a: null",
		},
		{
			name:     "mapping replaces null",
			dst:      "a: null",
			src:      "a: {x: 1}",
			expected: "a: {x: 1}",
		},
		{
			name:     "scalar over mapping conflicts",
			dst:      "a: {x: 1}",
			src:      "a: 5",
			conflict: true,
		},
		{
			name:     "mapping over list conflicts",
			dst:      "a: {b: [1]}",
			src:      "a: {b: {c: 1}}",
			conflict: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dst := mustYAML(t, tc.dst)
			err := Merge(dst, mustYAML(t, tc.src))
			if tc.conflict {
				require.ErrorIs(t, err, ErrConfigConflict)
				return
			}
			require.NoError(t, err)
			assert.True(t, mustYAML(t, tc.expected).Equal(dst), "got %v", dst.Map())
		})
	}
}

func TestMerge_ConflictReportsPath(t *testing.T) {
	dst := mustYAML(t, "trainer: {limits: {epochs: 1}}")
	err := Merge(dst, mustYAML(t, "trainer: {limits: 3}"))
	require.ErrorIs(t, err, ErrConfigConflict)
	assert.Contains(t, err.Error(), "trainer.limits")
}

func TestMerge_DoesNotShareSource(t *testing.T) {
	src := mustYAML(t, "a: {b: [1]}")
	dst := NewNode()
	require.NoError(t, Merge(dst, src))
	dst.Child("a").Set("b", "changed")

	v, _ := src.LookupString("a.b")
	assert.Equal(t, []any{int64(1)}, v)
}

func TestMerge_LeftFold(t *testing.T) {
	a := mustYAML(t, "paths: {root: /r, out: /a}\ndata: {batch_size: 32}")
	b := mustYAML(t, "paths: {out: /b}\ntrainer: {max_epochs: 10}")
	c := mustYAML(t, "data: {batch_size: 64, limit: -1}\npaths: {log: /l}")

	all, err := MergeAll(a, b, c)
	require.NoError(t, err)

	ab, err := MergeAll(a, b)
	require.NoError(t, err)
	stepwise, err := MergeAll(ab, c)
	require.NoError(t, err)
	assert.True(t, all.Equal(stepwise))

	// Without nulls, grouping does not matter either.
	bc, err := MergeAll(b, c)
	require.NoError(t, err)
	right, err := MergeAll(a, bc)
	require.NoError(t, err)
	assert.True(t, all.Equal(right))

	out, _ := all.LookupString("paths.out")
	assert.Equal(t, "/b", out)
}

package cache_test

import (
	"testing"
	"time"

	"catalog-backend/internal/infrastructure/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ID        string
	Tags      []string
	Attrs     map[string]any
	Parent    *product
	UpdatedAt time.Time
}

func TestClone_TypedValues(t *testing.T) {
	in := []product{{
		ID:        "1",
		Tags:      []string{"new"},
		Attrs:     map[string]any{"color": "red", "sizes": []any{"s", "m"}},
		Parent:    &product{ID: "0"},
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}

	out, err := cache.CloneAs(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out[0].Tags[0] = "changed"
	out[0].Attrs["sizes"].([]any)[0] = "xl"
	out[0].Parent.ID = "changed"

	assert.Equal(t, "new", in[0].Tags[0])
	assert.Equal(t, "s", in[0].Attrs["sizes"].([]any)[0])
	assert.Equal(t, "0", in[0].Parent.ID)
}

func TestClone_NilValues(t *testing.T) {
	v, err := cache.Clone(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	var records []map[string]any
	out, err := cache.CloneAs(records)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestClone_RejectsFunctions(t *testing.T) {
	_, err := cache.Clone([]func(){func() {}})
	assert.ErrorIs(t, err, cache.ErrNotCloneable)
}

func TestClone_RejectsCycles(t *testing.T) {
	self := map[string]any{"id": "1"}
	self["self"] = self

	list := make([]any, 2)
	list[0] = "a"
	list[1] = list

	node := &product{ID: "root"}
	node.Parent = node

	tests := []struct {
		name  string
		value any
	}{
		{"map containing itself", self},
		{"slice containing itself", list},
		{"pointer cycle", node},
		{"cycle below the root", []any{map[string]any{"child": self}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cache.Clone(tt.value)
			assert.ErrorIs(t, err, cache.ErrNotCloneable)
		})
	}
}

func TestClone_SharedReferencesAreNotCycles(t *testing.T) {
	shared := map[string]any{"color": "red"}
	parent := &product{ID: "0"}
	in := []any{
		map[string]any{"attrs": shared},
		map[string]any{"attrs": shared},
		[]product{{ID: "1", Parent: parent}, {ID: "2", Parent: parent}},
	}

	out, err := cache.Clone(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out.([]any)[0].(map[string]any)["attrs"].(map[string]any)["color"] = "blue"
	assert.Equal(t, "red", shared["color"])
}

package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAXTree(t *testing.T) {
	t.Run("valid tree builds child index", func(t *testing.T) {
		tree, err := NewAXTree([]AXNode{
			{Parent: NoParent, Role: "RootWebArea"},
			{Parent: 0, Role: "main"},
			{Parent: 1, Role: "heading"},
			{Parent: 0, Role: "navigation"},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, tree.Len())
		assert.Equal(t, "RootWebArea", tree.Root().Role)
		assert.Equal(t, []NodeID{1, 3}, tree.Children(0))
		assert.Equal(t, []NodeID{1, 0}, tree.Ancestors(2))
		assert.ElementsMatch(t, []NodeID{1, 2, 3}, tree.Descendants(0))
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := NewAXTree([]AXNode{{Parent: NoParent}, {Parent: 7}})
		assert.ErrorIs(t, err, ErrInvalidTree)
	})

	t.Run("two roots", func(t *testing.T) {
		_, err := NewAXTree([]AXNode{{Parent: NoParent}, {Parent: NoParent}})
		assert.ErrorIs(t, err, ErrInvalidTree)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := NewAXTree([]AXNode{{Parent: NoParent}, {Parent: 2}, {Parent: 1}})
		assert.ErrorIs(t, err, ErrInvalidTree)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewAXTree(nil)
		assert.ErrorIs(t, err, ErrInvalidTree)
	})
}

func TestAXTreeHidden(t *testing.T) {
	tree, err := NewAXTree([]AXNode{
		{Parent: NoParent, Role: "RootWebArea"},
		{Parent: 0, Role: "generic", Hidden: true},
		{Parent: 1, Role: "image"},
		{Parent: 0, Role: "image"},
		{Parent: 0, Role: "image", Style: &Style{Visible: false}},
	})
	require.NoError(t, err)

	assert.True(t, tree.IsHidden(2))
	assert.False(t, tree.IsHidden(3))
	assert.True(t, tree.IsHidden(4))

	images := tree.VisibleWithRole("image")
	require.Len(t, images, 1)
	assert.Equal(t, NodeID(3), images[0].ID)
}

func TestAXNodeProps(t *testing.T) {
	n := AXNode{Properties: map[string]string{"level": "2", "focusable": "true", "bad": "x"}}
	lvl, ok := n.PropInt("level")
	assert.True(t, ok)
	assert.Equal(t, 2, lvl)
	_, ok = n.PropInt("bad")
	assert.False(t, ok)
	assert.True(t, n.PropBool("focusable"))
	assert.False(t, n.PropBool("missing"))
}

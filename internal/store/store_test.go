package store

import (
	"testing"
	"time"

	"github.com/safar/go-shop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestBuildCategoryTree(t *testing.T) {
	cats := []models.Category{
		{ID: 1, Name: "Home"},
		{ID: 2, Name: "Books"},
		{ID: 3, Name: "Lamps", ParentID: ptr(1), Level: 1},
		{ID: 4, Name: "Chairs", ParentID: ptr(1), Level: 1},
		{ID: 5, Name: "Desk lamps", ParentID: ptr(3), Level: 2},
		{ID: 6, Name: "Orphan", ParentID: ptr(99), Level: 1},
	}

	tree := BuildCategoryTree(cats)

	require.Len(t, tree, 3)
	assert.Equal(t, "Books", tree[0].Name)
	assert.Equal(t, "Home", tree[1].Name)
	assert.Equal(t, "Orphan", tree[2].Name)

	home := tree[1]
	require.Len(t, home.Children, 2)
	assert.Equal(t, "Chairs", home.Children[0].Name)
	assert.Equal(t, "Lamps", home.Children[1].Name)
	require.Len(t, home.Children[1].Children, 1)
	assert.Equal(t, int64(5), home.Children[1].Children[0].ID)
}

func TestCursorRoundTrip(t *testing.T) {
	want := OrderCursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ID: 42}

	got, err := DecodeCursor(EncodeCursor(want))
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)

	first, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, first.First())
	assert.False(t, got.First())

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestOrderFilterWhere(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := OrderFilter{Status: models.OrderStatusSent, From: from}

	clause, args := f.where()
	assert.Equal(t, " WHERE status = $1 AND created_at >= $2", clause)
	assert.Equal(t, []any{models.OrderStatusSent, from}, args)

	clause, args = (&OrderFilter{}).where()
	assert.Empty(t, clause)
	assert.Nil(t, args)
}

func TestNewOffsetPage(t *testing.T) {
	p := newOffsetPage([]int{1, 2}, 41, 2, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(41), p.Total)
}

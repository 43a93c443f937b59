package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/toptabled/internal/model"
)

func facets(area, cuisine string) map[model.Category]string {
	f := map[model.Category]string{}
	if area != "" {
		f[model.CategoryArea] = area
	}
	if cuisine != "" {
		f[model.CategoryCuisine] = cuisine
	}
	return f
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

var member = model.Identity{ID: "u", Authenticated: true}

func TestTagFilter_ToggleIsInvolution(t *testing.T) {
	f := NewTagFilter(0)
	f.SetActive([]string{"downtown"})
	before := f.Active()

	assert.True(t, f.ToggleTag("italian"))
	assert.False(t, f.ToggleTag("italian"))
	assert.Equal(t, before, f.Active())

	assert.False(t, f.ToggleTag("downtown"))
	assert.Empty(t, f.Active())
	assert.False(t, f.ToggleTag("  "))
}

func TestTagFilter_CompileAndAcrossOrWithin(t *testing.T) {
	items := []model.Item{
		approved("a", 40, facets("downtown", "italian")),
		approved("b", 30, facets("downtown", "french")),
		approved("c", 20, facets("uptown", "italian")),
		approved("d", 10, facets("midtown", "italian")),
	}

	f := NewTagFilter(0)
	f.SetActive([]string{"downtown", "uptown", "italian"})

	part := f.Partition(items)
	assert.ElementsMatch(t, []string{"downtown", "uptown"}, part[model.CategoryArea])
	assert.Equal(t, []string{"italian"}, part[model.CategoryCuisine])

	assert.Equal(t, []string{"a", "c"}, ids(f.Compile(items, member)))
}

func TestTagFilter_EmptySelectionMatchesAll(t *testing.T) {
	items := []model.Item{
		approved("a", 1, nil),
		approved("b", 3, facets("uptown", "")),
	}
	f := NewTagFilter(0)
	assert.Equal(t, []string{"b", "a"}, ids(f.Compile(items, member)))
}

func TestTagFilter_UnknownTagIsIgnored(t *testing.T) {
	items := []model.Item{approved("a", 1, facets("downtown", ""))}
	f := NewTagFilter(0)
	f.SetActive([]string{"nowhere"})
	assert.Equal(t, []string{"a"}, ids(f.Compile(items, member)))
}

func TestTagFilter_StatusGate(t *testing.T) {
	pending := approved("p", 100, nil)
	pending.Status = model.StatusPending
	rejected := approved("r", 90, nil)
	rejected.Status = model.StatusRejected
	items := []model.Item{pending, rejected, approved("a", 1, nil)}

	f := NewTagFilter(0)
	assert.Equal(t, []string{"a"}, ids(f.Compile(items, member)))
	assert.Equal(t, []string{"a"}, ids(f.Compile(items, model.Anonymous)))

	admin := member
	admin.Elevated = true
	assert.Equal(t, []string{"p", "r", "a"}, ids(f.Compile(items, admin)))
	assert.Equal(t, []string{"a"}, ids(f.Trending(items, member)))
}

func TestTagFilter_TrendingIgnoresSelection(t *testing.T) {
	var items []model.Item
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		it := approved(id, 0, facets("downtown", ""))
		it.WeeklyDelta = i
		items = append(items, it)
	}
	items[0].Facets = facets("uptown", "")

	f := NewTagFilter(0)
	f.SetActive([]string{"uptown"})

	require.Equal(t, []string{"a"}, ids(f.Compile(items, member)))
	assert.Equal(t, []string{"f", "e", "d", "c", "b"}, ids(f.Trending(items, member)))
}

func TestTagFilter_QueryRoundTrip(t *testing.T) {
	f := NewTagFilter(0)
	assert.Equal(t, "", f.Query())

	f.SetActive([]string{"downtown", "italian"})
	q := f.Query()
	assert.Equal(t, "tags=downtown%2Citalian", q)

	g := NewTagFilter(0)
	g.RestoreQuery("?" + q)
	assert.Equal(t, []string{"downtown", "italian"}, g.Active())

	g.RestoreQuery("")
	assert.Empty(t, g.Active())

	f.ClearFilters()
	assert.Equal(t, "", f.Query())
}

func TestPartitionTags_FirstCategoryWins(t *testing.T) {
	items := []model.Item{
		{ID: "a", Facets: map[model.Category]string{model.CategoryCuisine: "vegan"}},
		{ID: "b", Facets: map[model.Category]string{model.CategoryDietary: "vegan"}},
	}
	part := PartitionTags([]string{"vegan"}, items)
	assert.Equal(t, []string{"vegan"}, part[model.CategoryCuisine])
	assert.Empty(t, part[model.CategoryDietary])
}

func TestCompilePredicate_CategoryOrder(t *testing.T) {
	pred := CompilePredicate(map[model.Category][]string{
		model.CategoryDietary: {"vegan"},
		model.CategoryArea:    {"downtown"},
	})
	require.Len(t, pred.Clauses, 2)
	assert.Equal(t, model.CategoryArea, pred.Clauses[0].Category)
	assert.Equal(t, model.CategoryDietary, pred.Clauses[1].Category)
}

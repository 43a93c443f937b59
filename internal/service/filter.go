package service

import (
	"net/url"
	"strings"
	"sync"

	"github.com/mathieu-neron/toptabled/internal/model"
)

const (
	// DefaultTrendingSize is the length of the trending leaderboard.
	DefaultTrendingSize = 5
	// TagsParam is the query parameter carrying the shareable selection.
	TagsParam = "tags"
)

// TagFilter holds the active facet selection and compiles it against the
// known items. The zero value is not usable; call NewTagFilter.
//
// Categories are not configured anywhere: a tag's category is whatever
// category it appears under in the items it is compiled against. Tags no
// item carries contribute nothing.
type TagFilter struct {
	mu           sync.RWMutex
	active       []string
	trendingSize int
}

func NewTagFilter(trendingSize int) *TagFilter {
	if trendingSize <= 0 {
		trendingSize = DefaultTrendingSize
	}
	return &TagFilter{trendingSize: trendingSize}
}

// ToggleTag adds tagID if absent and removes it if present. It reports
// whether the tag is active afterwards.
func (f *TagFilter) ToggleTag(tagID string) bool {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, t := range f.active {
		if t == tagID {
			f.active = append(f.active[:i:i], f.active[i+1:]...)
			return false
		}
	}
	f.active = append(f.active, tagID)
	return true
}

// ClearFilters empties the selection, and with it the shareable query.
func (f *TagFilter) ClearFilters() {
	f.mu.Lock()
	f.active = nil
	f.mu.Unlock()
}

// SetActive replaces the selection. Blank and duplicate ids are dropped.
func (f *TagFilter) SetActive(tags []string) {
	cleaned := normalizeTags(tags)

	f.mu.Lock()
	f.active = cleaned
	f.mu.Unlock()
}

// Active returns the selected tag ids in selection order.
func (f *TagFilter) Active() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string{}, f.active...)
}

// Encode returns the selection as a flat comma-joined list.
func (f *TagFilter) Encode() string {
	return strings.Join(f.Active(), ",")
}

// Decode restores a selection produced by Encode.
func (f *TagFilter) Decode(raw string) {
	f.SetActive(strings.Split(raw, ","))
}

// Query renders the selection as a URL query string ("tags=a%2Cb"), or ""
// when nothing is selected.
func (f *TagFilter) Query() string {
	enc := f.Encode()
	if enc == "" {
		return ""
	}
	return url.Values{TagsParam: {enc}}.Encode()
}

// RestoreQuery restores the selection from a URL query string. A query
// without a tags parameter clears the selection.
func (f *TagFilter) RestoreQuery(rawQuery string) {
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		f.ClearFilters()
		return
	}
	f.Decode(values.Get(TagsParam))
}

// Partition groups the active tags by the category they are found under in
// items. Tags not found in any item are left out.
func (f *TagFilter) Partition(items []model.Item) map[model.Category][]string {
	return PartitionTags(f.Active(), items)
}

// Predicate compiles the selection into an AND-of-ORs facet predicate.
func (f *TagFilter) Predicate(items []model.Item) model.FacetPredicate {
	return CompilePredicate(f.Partition(items))
}

// Compile returns the items the identity may see that match the selection,
// ordered by vote count descending.
func (f *TagFilter) Compile(items []model.Item, ident model.Identity) []model.Item {
	gated := GateByStatus(ident, items)
	pred := f.Predicate(gated)

	out := make([]model.Item, 0, len(gated))
	for _, it := range gated {
		if pred.Matches(it) {
			out = append(out, it)
		}
	}
	SortByVotes(out)
	return out
}

// Trending returns the top items by weekly delta among everything the
// identity may see. The tag selection is deliberately ignored.
func (f *TagFilter) Trending(items []model.Item, ident model.Identity) []model.Item {
	gated := GateByStatus(ident, items)
	SortByWeekly(gated)
	if len(gated) > f.trendingSize {
		gated = gated[:f.trendingSize]
	}
	return gated
}

// PartitionTags maps each tag to the first category (in model.Categories
// order) under which some item carries it.
func PartitionTags(tags []string, items []model.Item) map[model.Category][]string {
	out := make(map[model.Category][]string)
	if len(tags) == 0 || len(items) == 0 {
		return out
	}

	known := make(map[string]model.Category)
	for _, c := range model.Categories {
		for _, it := range items {
			tag := it.Tag(c)
			if tag == "" {
				continue
			}
			if _, seen := known[tag]; !seen {
				known[tag] = c
			}
		}
	}

	for _, tag := range normalizeTags(tags) {
		if c, ok := known[tag]; ok {
			out[c] = append(out[c], tag)
		}
	}
	return out
}

// CompilePredicate turns a partition into a predicate with one clause per
// non-empty category, in model.Categories order.
func CompilePredicate(partition map[model.Category][]string) model.FacetPredicate {
	var pred model.FacetPredicate
	for _, c := range model.Categories {
		tags := partition[c]
		if len(tags) == 0 {
			continue
		}
		pred.Clauses = append(pred.Clauses, model.FacetClause{
			Category: c,
			Tags:     append([]string(nil), tags...),
		})
	}
	return pred
}

// Visible reports whether the identity may see the item: elevated
// identities see every status, everyone else only approved items.
func Visible(ident model.Identity, it model.Item) bool {
	return ident.Elevated || it.Status == model.StatusApproved
}

// GateByStatus returns the items the identity may see, keeping their order.
func GateByStatus(ident model.Identity, items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if Visible(ident, it) {
			out = append(out, it)
		}
	}
	return out
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

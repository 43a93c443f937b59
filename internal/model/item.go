package model

import "time"

// Status is the moderation state of a submitted item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Category is an independent classification axis. Each item carries at most
// one tag per category.
type Category string

const (
	CategoryArea    Category = "area"
	CategoryCuisine Category = "cuisine"
	CategoryAwards  Category = "awards"
	CategoryDietary Category = "dietary"
)

// Categories lists the facet axes in display order.
var Categories = []Category{CategoryArea, CategoryCuisine, CategoryAwards, CategoryDietary}

// Column returns the restaurants table column holding this category's tag.
func (c Category) Column() string {
	return string(c) + "_tag"
}

// ValidCategory reports whether c is a known facet axis.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Item is a ranked venue. VoteCount and WeeklyDelta are only authoritative in
// the ledger; copies held anywhere else are a cache.
type Item struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	ExternalLink string              `json:"externalLink"`
	ImageURL     string              `json:"imageUrl,omitempty"`
	VoteCount    int                 `json:"voteCount"`
	WeeklyDelta  int                 `json:"weeklyDelta"`
	CreatedAt    time.Time           `json:"createdAt"`
	Status       Status              `json:"status"`
	Facets       map[Category]string `json:"facets"`
}

// Tag returns the item's tag for category c, or "" when absent.
func (it Item) Tag(c Category) string {
	if it.Facets == nil {
		return ""
	}
	return it.Facets[c]
}

// Clone returns a copy that shares no mutable state with it.
func (it Item) Clone() Item {
	out := it
	if it.Facets != nil {
		out.Facets = make(map[Category]string, len(it.Facets))
		for k, v := range it.Facets {
			out.Facets[k] = v
		}
	}
	return out
}

// SubmitRequest is the API request body for proposing a new item.
type SubmitRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=120"`
	ExternalLink string `json:"externalLink" validate:"omitempty,url,max=512"`
	ImageURL     string `json:"imageUrl" validate:"omitempty,url,max=512"`
	Area         string `json:"area" validate:"omitempty,max=40"`
	Cuisine      string `json:"cuisine" validate:"omitempty,max=40"`
	Awards       string `json:"awards" validate:"omitempty,max=40"`
	Dietary      string `json:"dietary" validate:"omitempty,max=40"`
}

// Facets collects the request's non-empty tags keyed by category.
func (r SubmitRequest) Facets() map[Category]string {
	facets := make(map[Category]string, len(Categories))
	for c, tag := range map[Category]string{
		CategoryArea:    r.Area,
		CategoryCuisine: r.Cuisine,
		CategoryAwards:  r.Awards,
		CategoryDietary: r.Dietary,
	} {
		if tag != "" {
			facets[c] = tag
		}
	}
	return facets
}

// ItemPage is the API response for a paginated listing.
type ItemPage struct {
	Items   []Item `json:"items"`
	Page    int    `json:"page"`
	HasMore bool   `json:"hasMore"`
	Tags    string `json:"tags"`
}

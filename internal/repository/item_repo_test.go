package repository

import (
	"reflect"
	"testing"

	"github.com/mathieu-neron/toptabled/internal/model"
)

func TestBuildItemQuery(t *testing.T) {
	const base = "SELECT " + itemColumns + " FROM restaurants"
	const order = " ORDER BY vote_count DESC, date_added ASC, id ASC"

	tests := []struct {
		name     string
		q        ItemQuery
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "approved only",
			q:        ItemQuery{},
			wantSQL:  base + " WHERE status = $1" + order,
			wantArgs: []any{"approved"},
		},
		{
			name:    "all statuses",
			q:       ItemQuery{AllStatuses: true},
			wantSQL: base + order,
		},
		{
			name: "single tag is equality, several tags are inclusion",
			q: ItemQuery{Predicate: model.FacetPredicate{Clauses: []model.FacetClause{
				{Category: model.CategoryArea, Tags: []string{"downtown", "uptown"}},
				{Category: model.CategoryCuisine, Tags: []string{"italian"}},
			}}},
			wantSQL:  base + " WHERE status = $1 AND area_tag = ANY($2) AND cuisine_tag = $3" + order,
			wantArgs: []any{"approved", []string{"downtown", "uptown"}, "italian"},
		},
		{
			name: "unknown category and empty clause are skipped",
			q: ItemQuery{AllStatuses: true, Predicate: model.FacetPredicate{Clauses: []model.FacetClause{
				{Category: model.Category("price"), Tags: []string{"$$"}},
				{Category: model.CategoryAwards},
			}}},
			wantSQL: base + order,
		},
		{
			name:     "range",
			q:        ItemQuery{AllStatuses: true, Offset: 24, Limit: 12},
			wantSQL:  base + order + " LIMIT $1 OFFSET $2",
			wantArgs: []any{12, 24},
		},
		{
			name:     "limit is capped",
			q:        ItemQuery{AllStatuses: true, Limit: 10000},
			wantSQL:  base + order + " LIMIT $1",
			wantArgs: []any{MaxPageSize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := buildItemQuery(tt.q)
			if gotSQL != tt.wantSQL {
				t.Errorf("sql =\n%s\nwant\n%s", gotSQL, tt.wantSQL)
			}
			if len(gotArgs) == 0 && len(tt.wantArgs) == 0 {
				return
			}
			if !reflect.DeepEqual(gotArgs, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", gotArgs, tt.wantArgs)
			}
		})
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Error("empty string should map to NULL")
	}
	if v := nullable("vegan"); v == nil || *v != "vegan" {
		t.Errorf("nullable(vegan) = %v", v)
	}
}

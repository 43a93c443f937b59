package model

// FacetClause restricts one category to a set of tags (OR within the set).
type FacetClause struct {
	Category Category
	Tags     []string
}

// FacetPredicate is the conjunction of its clauses (AND across categories).
// The zero value matches every item.
type FacetPredicate struct {
	Clauses []FacetClause
}

// Empty reports whether the predicate imposes no constraint.
func (p FacetPredicate) Empty() bool {
	return len(p.Clauses) == 0
}

// Matches evaluates the predicate against a single item.
func (p FacetPredicate) Matches(it Item) bool {
	for _, clause := range p.Clauses {
		tag := it.Tag(clause.Category)
		if tag == "" {
			return false
		}
		found := false
		for _, want := range clause.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

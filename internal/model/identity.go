package model

// IdentityClass decides where an identity's votes live.
type IdentityClass int

const (
	// Persisted identities keep their votes in the ledger.
	Persisted IdentityClass = iota
	// Ephemeral identities (demo and test accounts) keep votes in process memory only.
	Ephemeral
)

func (c IdentityClass) String() string {
	if c == Ephemeral {
		return "ephemeral"
	}
	return "persisted"
}

// Identity is the acting user as reported by the identity provider.
type Identity struct {
	ID            string
	Authenticated bool
	Elevated      bool
	Class         IdentityClass
}

// Anonymous is the identity used when nobody is signed in.
var Anonymous = Identity{}

// SignedIn reports whether the identity may vote.
func (i Identity) SignedIn() bool {
	return i.Authenticated && i.ID != ""
}

// ReadModel is everything the presentation layer renders.
type ReadModel struct {
	Items                []Item    `json:"items"`
	TrendingItems        []Item    `json:"trendingItems"`
	ActiveFacetSelection []string  `json:"activeFacetSelection"`
	UserVoteIndex        VoteIndex `json:"userVoteIndex"`
	Query                string    `json:"query"`
}

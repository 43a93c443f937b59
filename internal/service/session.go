package service

import (
	"context"
	"time"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/model"
)

const identityLoadTimeout = 10 * time.Second

// Session is one viewer's state: the identity, the facet selection and the
// read model derived from the shared store.
type Session struct {
	identity   IdentityProvider
	reconciler *VoteReconciler
	catalog    *CatalogService
	filter     *TagFilter
}

// NewSession binds the session to provider and reloads the vote index
// whenever the identity changes.
func NewSession(provider IdentityProvider, reconciler *VoteReconciler, catalog *CatalogService, trendingSize int) *Session {
	s := &Session{
		identity:   provider,
		reconciler: reconciler,
		catalog:    catalog,
		filter:     NewTagFilter(trendingSize),
	}

	prev := provider.Current()
	provider.OnChange(func(next model.Identity) {
		if prev.ID != "" && prev.ID != next.ID {
			reconciler.Forget(prev.ID)
		}
		prev = next

		ctx, cancel := context.WithTimeout(context.Background(), identityLoadTimeout)
		defer cancel()
		if err := reconciler.LoadVotes(ctx, next); err != nil {
			logging.Logger.Warn().Err(err).Str("user_id", next.ID).Msg("session: load votes")
		}
	})
	return s
}

// Identity returns the current identity.
func (s *Session) Identity() model.Identity {
	return s.identity.Current()
}

// View renders the read model from the store. Trending ignores the tag
// selection.
func (s *Session) View(ctx context.Context) model.ReadModel {
	ident := s.identity.Current()
	items := s.catalog.Store().Items()

	return model.ReadModel{
		Items:                s.filter.Compile(items, ident),
		TrendingItems:        s.filter.Trending(items, ident),
		ActiveFacetSelection: s.filter.Active(),
		UserVoteIndex:        s.reconciler.VoteIndex(ident),
		Query:                s.filter.Query(),
	}
}

// ApplyVote votes as the current identity.
func (s *Session) ApplyVote(ctx context.Context, itemID string, dir model.Direction) (model.VoteResult, error) {
	return s.reconciler.ApplyVote(ctx, s.identity.Current(), itemID, dir)
}

// ToggleTag flips one tag in the selection.
func (s *Session) ToggleTag(tagID string) bool {
	return s.filter.ToggleTag(tagID)
}

// ClearFilters empties the selection.
func (s *Session) ClearFilters() {
	s.filter.ClearFilters()
}

// Query is the shareable encoding of the selection.
func (s *Session) Query() string {
	return s.filter.Query()
}

// RestoreQuery restores a selection from a shared query string.
func (s *Session) RestoreQuery(rawQuery string) {
	s.filter.RestoreQuery(rawQuery)
}

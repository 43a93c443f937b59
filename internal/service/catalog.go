package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/metrics"
	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/repository"
)

// DefaultPageSize matches the infinite-scroll page of the web client.
const DefaultPageSize = 12

// CatalogService loads the item catalog from the ledger into the store and
// serves paginated, filtered listings and submissions.
type CatalogService struct {
	ledger   Ledger
	store    *Store
	cache    *CacheService
	validate *validator.Validate
	pageSize int
}

func NewCatalogService(ledger Ledger, store *Store, cache *CacheService, pageSize int) *CatalogService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CatalogService{
		ledger:   ledger,
		store:    store,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		pageSize: pageSize,
	}
}

// Store returns the catalog's backing store.
func (s *CatalogService) Store() *Store {
	return s.store
}

// Refresh replaces the cached catalog with the ledger's, every status included.
func (s *CatalogService) Refresh(ctx context.Context) error {
	items, err := s.ledger.ListItems(ctx, repository.ItemQuery{AllStatuses: true})
	if err != nil {
		metrics.RefreshFailures.WithLabelValues("items").Inc()
		return &RemoteReadError{Op: "list items", Err: err}
	}
	s.store.ReplaceItems(items)
	metrics.CatalogSize.Set(float64(len(items)))
	return nil
}

// RefreshItems re-reads the aggregates of the given items only.
func (s *CatalogService) RefreshItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	items, err := s.ledger.GetItems(ctx, ids)
	if err != nil {
		metrics.RefreshFailures.WithLabelValues("items").Inc()
		return &RemoteReadError{Op: "get items", Err: err}
	}
	s.store.MergeItems(items)
	metrics.CatalogSize.Set(float64(s.store.Len()))
	return nil
}

// Item returns a cached item if the identity may see it.
func (s *CatalogService) Item(ident model.Identity, id string) (model.Item, error) {
	it, ok := s.store.Item(id)
	if !ok || !Visible(ident, it) {
		return model.Item{}, ErrItemNotFound
	}
	return it, nil
}

// Page runs a ranged select against the ledger with the selection compiled
// into facet filters. Pages are cached in Redis until the next vote or
// submission.
func (s *CatalogService) Page(ctx context.Context, ident model.Identity, tags []string, page int) (*model.ItemPage, error) {
	if page < 0 {
		page = 0
	}

	filter := NewTagFilter(0)
	filter.SetActive(tags)
	pred := filter.Predicate(s.visibleItems(ident))
	encoded := filter.Encode()

	key := pageCacheKey(ident.Elevated, pred, page, s.pageSize)
	if cached, err := s.cache.GetPage(ctx, key); err != nil {
		logging.Logger.Warn().Err(err).Msg("cache: get page error")
	} else if cached != nil {
		return cached, nil
	}

	items, err := s.ledger.ListItems(ctx, repository.ItemQuery{
		Predicate:   pred,
		AllStatuses: ident.Elevated,
		Offset:      page * s.pageSize,
		Limit:       s.pageSize,
	})
	if err != nil {
		return nil, &RemoteReadError{Op: "list items", Err: err}
	}

	resp := &model.ItemPage{
		Items:   items,
		Page:    page,
		HasMore: len(items) == s.pageSize,
		Tags:    encoded,
	}
	if err := s.cache.SetPage(ctx, key, resp); err != nil {
		logging.Logger.Warn().Err(err).Msg("cache: set page error")
	}
	return resp, nil
}

// Submit validates and stores a new item. Elevated identities publish
// directly; everyone else's submissions wait for review.
func (s *CatalogService) Submit(ctx context.Context, ident model.Identity, req model.SubmitRequest) (model.Item, error) {
	if !ident.SignedIn() {
		return model.Item{}, ErrNotAuthenticated
	}

	req.Name = strings.TrimSpace(req.Name)
	req.ExternalLink = strings.TrimSpace(req.ExternalLink)
	if err := s.validate.Struct(req); err != nil {
		return model.Item{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	status := model.StatusPending
	if ident.Elevated {
		status = model.StatusApproved
	}

	created, err := s.ledger.InsertItem(ctx, model.Item{
		Name:         req.Name,
		ExternalLink: req.ExternalLink,
		ImageURL:     req.ImageURL,
		Status:       status,
		Facets:       req.Facets(),
	})
	if err != nil {
		return model.Item{}, &RemoteWriteError{Op: "insert item", Err: err}
	}

	s.store.AddItem(created)
	if err := s.cache.InvalidatePages(ctx); err != nil {
		logging.Logger.Warn().Err(err).Msg("cache: invalidate pages error")
	}
	return created, nil
}

// Lookup reads one item straight from the ledger, bypassing the cache.
func (s *CatalogService) Lookup(ctx context.Context, id string) (*model.Item, error) {
	it, err := s.ledger.GetItem(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, &RemoteReadError{Op: "get item", Err: err}
	}
	return it, nil
}

func (s *CatalogService) visibleItems(ident model.Identity) []model.Item {
	return GateByStatus(ident, s.store.Items())
}

// pageCacheKey is stable for equivalent selections: clauses and tags are
// sorted before encoding.
func pageCacheKey(elevated bool, pred model.FacetPredicate, page, size int) string {
	parts := make([]string, 0, len(pred.Clauses))
	for _, clause := range pred.Clauses {
		tags := append([]string(nil), clause.Tags...)
		sort.Strings(tags)
		parts = append(parts, string(clause.Category)+"="+strings.Join(tags, "|"))
	}
	sort.Strings(parts)

	scope := "public"
	if elevated {
		scope = "all"
	}
	return fmt.Sprintf("%s:%d:%d:%s", scope, size, page, strings.Join(parts, ";"))
}

package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/repository"
)

// Ledger is the authoritative remote store. Every call may fail, and calls
// racing on the same (user, item) may land in any order.
type Ledger interface {
	ListItems(ctx context.Context, q repository.ItemQuery) ([]model.Item, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
	GetItems(ctx context.Context, ids []string) ([]model.Item, error)
	InsertItem(ctx context.Context, it model.Item) (model.Item, error)

	ListVotes(ctx context.Context, userID string) (model.VoteIndex, error)
	UpsertVote(ctx context.Context, userID, itemID string, dir model.Direction) error
	DeleteVote(ctx context.Context, userID, itemID string) error
}

// VoteBackend is where one identity's votes are written and read back.
// It is chosen once per identity.
type VoteBackend interface {
	Class() model.IdentityClass
	// LoadVotes reads the identity's vote index from its source of truth.
	LoadVotes(ctx context.Context) (model.VoteIndex, error)
	// Commit makes the transition durable for itemID.
	Commit(ctx context.Context, itemID string, t Transition) error
}

// RemoteBackend writes the votes of a persisted identity to the ledger.
type RemoteBackend struct {
	userID string
	ledger Ledger
}

// NewRemoteBackend returns the ledger backend for userID, or ErrInvalidIdentity
// when userID is not a well-formed UUID.
func NewRemoteBackend(userID string, ledger Ledger) (*RemoteBackend, error) {
	if !ValidPersistedID(userID) {
		return nil, ErrInvalidIdentity
	}
	return &RemoteBackend{userID: userID, ledger: ledger}, nil
}

func (b *RemoteBackend) Class() model.IdentityClass { return model.Persisted }

func (b *RemoteBackend) LoadVotes(ctx context.Context) (model.VoteIndex, error) {
	idx, err := b.ledger.ListVotes(ctx, b.userID)
	if err != nil {
		return nil, &RemoteReadError{Op: "list votes", Err: err}
	}
	return idx, nil
}

// Commit issues the minimal ledger operation: a delete for a revoked vote,
// otherwise an upsert keyed by (user, item).
func (b *RemoteBackend) Commit(ctx context.Context, itemID string, t Transition) error {
	if t.Removed() {
		if err := b.ledger.DeleteVote(ctx, b.userID, itemID); err != nil {
			return &RemoteWriteError{Op: "delete vote", Err: err}
		}
		return nil
	}
	if err := b.ledger.UpsertVote(ctx, b.userID, itemID, t.Next); err != nil {
		return &RemoteWriteError{Op: "upsert vote", Err: err}
	}
	return nil
}

// InMemoryBackend keeps an ephemeral identity's votes in process memory; its
// index is the source of truth. Snapshots go to Redis when a cache is
// configured so demo accounts survive restarts.
type InMemoryBackend struct {
	userID string
	cache  *CacheService

	mu     sync.Mutex
	votes  model.VoteIndex
	loaded bool
}

func NewInMemoryBackend(userID string, cache *CacheService) *InMemoryBackend {
	return &InMemoryBackend{userID: userID, cache: cache, votes: make(model.VoteIndex)}
}

func (b *InMemoryBackend) Class() model.IdentityClass { return model.Ephemeral }

// LoadVotes returns the in-memory index. The first call seeds it from the
// Redis snapshot; a failed read just starts from an empty index.
func (b *InMemoryBackend) LoadVotes(ctx context.Context) (model.VoteIndex, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		saved, err := b.cache.LoadEphemeralVotes(ctx, b.userID)
		if err != nil {
			logging.Logger.Warn().Err(err).Str("user_id", b.userID).Msg("ephemeral votes: snapshot read failed")
		} else {
			for itemID, d := range saved {
				if _, ok := b.votes[itemID]; !ok {
					b.votes[itemID] = d
				}
			}
		}
		b.loaded = true
	}
	return b.votes.Clone(), nil
}

// Commit keeps the local mutation. It never fails; a snapshot write error is
// only logged.
func (b *InMemoryBackend) Commit(ctx context.Context, itemID string, t Transition) error {
	b.mu.Lock()
	b.votes = t.Apply(b.votes, itemID)
	snapshot := b.votes.Clone()
	b.mu.Unlock()

	if err := b.cache.SaveEphemeralVotes(ctx, b.userID, snapshot); err != nil {
		logging.Logger.Warn().Err(err).Str("user_id", b.userID).Msg("ephemeral votes: snapshot write failed")
	}
	return nil
}

// ValidPersistedID reports whether id is a canonical RFC 4122 UUID
// (versions 1 through 5), the key format of the ledger's user_id column.
func ValidPersistedID(id string) bool {
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	if u.Variant() != uuid.RFC4122 {
		return false
	}
	v := u.Version()
	return v >= 1 && v <= 5
}

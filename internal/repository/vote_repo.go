package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mathieu-neron/toptabled/internal/model"
)

// VoteRepo reads and writes restaurant_votes. The restaurants.vote_count and
// weekly_vote_increase aggregates are maintained by the restaurant_votes
// trigger (see internal/db/schema.sql), never by this repository.
type VoteRepo struct {
	pool *pgxpool.Pool
}

func NewVoteRepo(pool *pgxpool.Pool) *VoteRepo {
	return &VoteRepo{pool: pool}
}

// ListVotes returns the user's vote index. Rows with an unknown vote_type are
// ignored.
func (r *VoteRepo) ListVotes(ctx context.Context, userID string) (model.VoteIndex, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT restaurant_id::text, vote_type
		FROM restaurant_votes
		WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(model.VoteIndex)
	for rows.Next() {
		var itemID, voteType string
		if err := rows.Scan(&itemID, &voteType); err != nil {
			return nil, err
		}
		if d := model.Direction(voteType); d.Valid() {
			index[itemID] = d
		}
	}
	return index, rows.Err()
}

// UpsertVote inserts the vote or replaces its direction in place, keyed by
// (user_id, restaurant_id), so a direction change never leaves two rows.
func (r *VoteRepo) UpsertVote(ctx context.Context, userID, itemID string, dir model.Direction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO restaurant_votes (user_id, restaurant_id, vote_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, restaurant_id) DO UPDATE
		SET vote_type = EXCLUDED.vote_type, created_at = NOW()
		WHERE restaurant_votes.vote_type <> EXCLUDED.vote_type`,
		userID, itemID, string(dir))
	return err
}

// DeleteVote removes the user's vote on the item. Deleting a vote that does
// not exist is not an error.
func (r *VoteRepo) DeleteVote(ctx context.Context, userID, itemID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM restaurant_votes WHERE user_id = $1 AND restaurant_id = $2`,
		userID, itemID)
	return err
}

// Ledger is the PostgreSQL-backed remote ledger: the item and vote
// collections behind one value.
type Ledger struct {
	*ItemRepo
	*VoteRepo
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{ItemRepo: NewItemRepo(pool), VoteRepo: NewVoteRepo(pool)}
}

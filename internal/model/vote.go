package model

import "time"

// Direction is the sign of a vote.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a castable direction (up or down).
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Sign returns +1 for up and -1 for down.
func (d Direction) Sign() int {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	}
	return 0
}

// Vote is one user's single vote on one item.
type Vote struct {
	UserID    string    `json:"userId"`
	ItemID    string    `json:"itemId"`
	Direction Direction `json:"direction"`
	CreatedAt time.Time `json:"createdAt"`
}

// VoteIndex maps item id to the signed-in user's vote direction. Items the
// user has not voted on are absent.
type VoteIndex map[string]Direction

// Clone returns an independent copy of the index.
func (vi VoteIndex) Clone() VoteIndex {
	out := make(VoteIndex, len(vi))
	for k, v := range vi {
		out[k] = v
	}
	return out
}

// VoteAction tells the caller whether a click cast or revoked a vote.
type VoteAction string

const (
	ActionVoted   VoteAction = "voted"
	ActionRemoved VoteAction = "removed"
)

// VoteResult is returned by a successful vote.
type VoteResult struct {
	Action    VoteAction `json:"action"`
	Direction Direction  `json:"direction"`
	VoteCount int        `json:"voteCount"`
}

// VoteRequest is the API request body for casting a vote.
type VoteRequest struct {
	ItemID    string    `json:"itemId"`
	Direction Direction `json:"direction"`
}

package service

import "github.com/mathieu-neron/toptabled/internal/model"

// Transition is one step of the per-(user, item) vote state machine
// {none, up, down}.
//
//	prev  requested  score  result
//	none  up         +1     up
//	none  down       -1     down
//	up    up         -1     none
//	down  down       +1     none
//	up    down       -2     down
//	down  up         +2     up
//
// WeeklyDelta is the sign of ScoreDelta: one unit per click regardless of size.
type Transition struct {
	Prev        model.Direction
	Requested   model.Direction
	Next        model.Direction
	ScoreDelta  int
	WeeklyDelta int
}

// ComputeTransition evaluates the state machine for a click on requested
// given the current direction prev.
func ComputeTransition(prev, requested model.Direction) Transition {
	t := Transition{Prev: prev, Requested: requested}

	switch {
	case prev == requested:
		// re-click revokes the vote
		t.Next = model.DirectionNone
		t.ScoreDelta = -requested.Sign()
	case prev == model.DirectionNone:
		t.Next = requested
		t.ScoreDelta = requested.Sign()
	default:
		t.Next = requested
		t.ScoreDelta = 2 * requested.Sign()
	}

	t.WeeklyDelta = sign(t.ScoreDelta)
	return t
}

// Removed reports whether the click revoked an existing vote.
func (t Transition) Removed() bool {
	return t.Next == model.DirectionNone
}

// Action is the caller-facing outcome of the click.
func (t Transition) Action() model.VoteAction {
	if t.Removed() {
		return model.ActionRemoved
	}
	return model.ActionVoted
}

// Apply returns a copy of index with this transition applied to itemID.
func (t Transition) Apply(index model.VoteIndex, itemID string) model.VoteIndex {
	out := index.Clone()
	if t.Removed() {
		delete(out, itemID)
	} else {
		out[itemID] = t.Next
	}
	return out
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

package thumbsup

import (
	"context"
	"io"
	"time"
)

type VoteOptions struct {
	Direction Direction
	Dimension Dimension
	Exclusive bool
}

// Tally is one aggregated voteable. Both metrics are always populated.
type Tally struct {
	Voteable  Ref
	VoteCount int64
	VoteTotal int64
}

// Ordering reports whether a sorts before b.
type Ordering func(a, b Tally) bool

var (
	ByVoteCountDesc Ordering = func(a, b Tally) bool { return a.VoteCount > b.VoteCount }
	ByVoteCountAsc  Ordering = func(a, b Tally) bool { return a.VoteCount < b.VoteCount }
	ByVoteTotalDesc Ordering = func(a, b Tally) bool { return a.VoteTotal > b.VoteTotal }
	ByVoteTotalAsc  Ordering = func(a, b Tally) bool { return a.VoteTotal < b.VoteTotal }
	ByVoteableID    Ordering = func(a, b Tally) bool { return lessRef(a.Voteable, b.Voteable) }
)

// TallyOptions configures Tally. Zero values leave the corresponding
// restriction off.
type TallyOptions struct {
	StartAt time.Time
	EndAt   time.Time

	// Conditions is ANDed with the restrictions the aggregator imposes.
	Conditions Filter

	// Dimension scopes the counted votes; nil counts every dimension.
	Dimension *Dimension

	Limit   int
	Order   Ordering
	AtLeast *int64
	AtMost  *int64
}

type RankOptions struct {
	StartAt    time.Time
	EndAt      time.Time
	Conditions Filter
	Dimension  *Dimension
	Limit      int
	Ascending  bool
	AtLeast    *int64
	AtMost     *int64
}

type VoterService interface {
	Vote(ctx context.Context, voter Voter, voteable Voteable, options VoteOptions) (Vote, error)
	VoteFor(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (Vote, error)
	VoteAgainst(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (Vote, error)
	VoteExclusivelyFor(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (Vote, error)
	VoteExclusivelyAgainst(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (Vote, error)

	ClearVotes(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (int64, error)

	VotedFor(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (bool, error)
	VotedAgainst(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (bool, error)
	VotedOn(ctx context.Context, voter Voter, voteable Voteable, dimension Dimension) (bool, error)

	// VoteCount counts the voter's votes; AnyDirection selects all of them.
	VoteCount(ctx context.Context, voter Voter, selector Direction, dimension Dimension) (int64, error)
}

type VoteableService interface {
	VotesFor(ctx context.Context, voteable Voteable, dimension Dimension) (int64, error)
	VotesAgainst(ctx context.Context, voteable Voteable, dimension Dimension) (int64, error)
	VotesCount(ctx context.Context, voteable Voteable, dimension Dimension) (int64, error)
	Plusminus(ctx context.Context, voteable Voteable, dimension Dimension) (int64, error)
	PercentFor(ctx context.Context, voteable Voteable, dimension Dimension) (int, error)
	PercentAgainst(ctx context.Context, voteable Voteable, dimension Dimension) (int, error)
	VotersWhoVoted(ctx context.Context, voteable Voteable, dimension Dimension) ([]Ref, error)
	VotedBy(ctx context.Context, voteable Voteable, voter Voter, dimension Dimension) (bool, error)
}

type Aggregator interface {
	Tally(ctx context.Context, voteableType string, options TallyOptions) ([]Tally, error)
	RankTally(ctx context.Context, voteableType string, options RankOptions) ([]Tally, error)
}

type Service interface {
	io.Closer
	VoterService
	VoteableService
	Aggregator

	// ForgetEntity deletes every vote referencing entity as voter or voteable.
	// Hosts call it when the entity is destroyed.
	ForgetEntity(ctx context.Context, entity Entity) (int64, error)
}

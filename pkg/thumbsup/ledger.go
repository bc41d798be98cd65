package thumbsup

import (
	"context"
	"io"
	"sort"
)

type Metric int

const (
	// MetricCount is the number of votes of any direction.
	MetricCount Metric = 0
	// MetricNetScore is up-votes minus down-votes.
	MetricNetScore Metric = 1
)

// AggregateQuery groups the votes selected by Filter per voteable and keeps
// the groups whose Metric value lies within [AtLeast, AtMost]. Groups always
// hold at least one vote.
type AggregateQuery struct {
	Filter  Filter
	Metric  Metric
	AtLeast *int64
	AtMost  *int64
}

type Group struct {
	Voteable  Ref
	VoteCount int64
	VoteTotal int64
}

func (g Group) Value(metric Metric) int64 {
	if metric == MetricNetScore {
		return g.VoteTotal
	}

	return g.VoteCount
}

func (q AggregateQuery) Admits(group Group) bool {
	if group.VoteCount <= 0 {
		return false
	}

	value := group.Value(q.Metric)

	if q.AtLeast != nil && value < *q.AtLeast {
		return false
	}

	if q.AtMost != nil && value > *q.AtMost {
		return false
	}

	return true
}

// GroupVotes computes AggregateQuery over an in-memory slice of votes. The
// result is ordered by voteable reference.
func GroupVotes(votes []Vote, query AggregateQuery) []Group {
	groups := make(map[Ref]*Group)

	for _, vote := range votes {
		if !query.Filter.Match(vote) {
			continue
		}

		group, ok := groups[vote.Voteable]
		if !ok {
			group = &Group{Voteable: vote.Voteable}
			groups[vote.Voteable] = group
		}

		group.VoteCount++
		if vote.Up {
			group.VoteTotal++
		} else {
			group.VoteTotal--
		}
	}

	result := make([]Group, 0, len(groups))
	for _, group := range groups {
		if query.Admits(*group) {
			result = append(result, *group)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return lessRef(result[i].Voteable, result[j].Voteable)
	})

	return result
}

func lessRef(x, y Ref) bool {
	if x.Type != y.Type {
		return x.Type < y.Type
	}

	return x.ID < y.ID
}

// Ledger is the durable store of vote records.
type Ledger interface {
	io.Closer

	// Insert appends vote and returns its identifier. An empty vote ID is
	// assigned by the ledger.
	Insert(ctx context.Context, vote Vote) (VoteID, error)

	// InsertExclusive atomically removes every vote by the same voter on the
	// same voteable within the same dimension, then inserts vote. It returns
	// ErrConflict when a concurrent write interfered.
	InsertExclusive(ctx context.Context, vote Vote) (VoteID, int64, error)

	DeleteMatching(ctx context.Context, filter Filter) (int64, error)
	CountMatching(ctx context.Context, filter Filter) (int64, error)
	Find(ctx context.Context, filter Filter) ([]Vote, error)
	AggregateByGroup(ctx context.Context, query AggregateQuery) ([]Group, error)
}

// ExclusiveScope is the filter an exclusive insert of vote clears.
func ExclusiveScope(vote Vote) Filter {
	return Filter{
		Voter:     vote.Voter,
		Voteable:  vote.Voteable,
		Dimension: vote.Dimension.Ptr(),
	}
}

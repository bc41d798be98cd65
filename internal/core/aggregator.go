package core

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

// Tally ranks the voteables of one type by their number of votes. Voteables
// without a vote in scope never appear.
func (s *coreService) Tally(ctx context.Context, voteableType string,
	options thumbsup.TallyOptions) ([]thumbsup.Tally, error) {

	query, ok, err := s.aggregateQuery(voteableType, thumbsup.MetricCount, window{
		startAt:    options.StartAt,
		endAt:      options.EndAt,
		conditions: options.Conditions,
		dimension:  options.Dimension,
		atLeast:    options.AtLeast,
		atMost:     options.AtMost,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return []thumbsup.Tally{}, nil
	}

	order := options.Order
	if order == nil {
		order = thumbsup.ByVoteCountDesc
	}

	return s.aggregate(ctx, query, order, options.Limit)
}

// RankTally ranks the voteables of one type by net score. Thresholds apply to
// the net score, not the raw count.
func (s *coreService) RankTally(ctx context.Context, voteableType string,
	options thumbsup.RankOptions) ([]thumbsup.Tally, error) {

	query, ok, err := s.aggregateQuery(voteableType, thumbsup.MetricNetScore, window{
		startAt:    options.StartAt,
		endAt:      options.EndAt,
		conditions: options.Conditions,
		dimension:  options.Dimension,
		atLeast:    options.AtLeast,
		atMost:     options.AtMost,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return []thumbsup.Tally{}, nil
	}

	order := thumbsup.ByVoteTotalDesc
	if options.Ascending {
		order = thumbsup.ByVoteTotalAsc
	}

	return s.aggregate(ctx, query, order, options.Limit)
}

type window struct {
	startAt    time.Time
	endAt      time.Time
	conditions thumbsup.Filter
	dimension  *thumbsup.Dimension
	atLeast    *int64
	atMost     *int64
}

// aggregateQuery ANDs the window with the caller's conditions. It reports
// false when the two cannot both hold, so no voteable qualifies.
func (s *coreService) aggregateQuery(voteableType string, metric thumbsup.Metric,
	w window) (thumbsup.AggregateQuery, bool, error) {

	if voteableType == "" {
		return thumbsup.AggregateQuery{}, false, thumbsup.ErrInvalidEntity
	}

	if err := w.conditions.Validate(); err != nil {
		return thumbsup.AggregateQuery{}, false, err
	}

	for _, dimension := range []*thumbsup.Dimension{w.dimension, w.conditions.Dimension} {
		if dimension == nil {
			continue
		}
		if err := s.checkDimension(voteableType, *dimension); err != nil {
			return thumbsup.AggregateQuery{}, false, err
		}
	}

	filter, ok := thumbsup.Filter{
		Voteable:      thumbsup.Ref{Type: voteableType},
		Dimension:     w.dimension,
		CreatedAfter:  w.startAt,
		CreatedBefore: w.endAt,
	}.Intersect(w.conditions)

	return thumbsup.AggregateQuery{
		Filter:  filter,
		Metric:  metric,
		AtLeast: w.atLeast,
		AtMost:  w.atMost,
	}, ok, nil
}

func (s *coreService) aggregate(ctx context.Context, query thumbsup.AggregateQuery,
	order thumbsup.Ordering, limit int) ([]thumbsup.Tally, error) {

	groups, err := s.ledger.AggregateByGroup(ctx, query)
	if err != nil {
		return nil, err
	}

	groups, err = s.joinExisting(ctx, query.Filter.Voteable.Type, groups)
	if err != nil {
		return nil, err
	}

	result := make([]thumbsup.Tally, 0, len(groups))
	for _, group := range groups {
		// zero-vote groups stay excluded whatever the backend returns
		if !query.Admits(group) {
			continue
		}

		result = append(result, thumbsup.Tally{
			Voteable:  group.Voteable,
			VoteCount: group.VoteCount,
			VoteTotal: group.VoteTotal,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return order(result[i], result[j])
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// joinExisting keeps the groups whose voteable the directory still knows.
func (s *coreService) joinExisting(ctx context.Context, voteableType string,
	groups []thumbsup.Group) ([]thumbsup.Group, error) {

	if s.directory == nil || len(groups) == 0 {
		return groups, nil
	}

	ids := make([]string, 0, len(groups))
	for _, group := range groups {
		ids = append(ids, group.Voteable.ID)
	}

	existing, err := s.directory.Existing(ctx, voteableType, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s voteables", voteableType)
	}

	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	result := make([]thumbsup.Group, 0, len(existing))
	for _, group := range groups {
		if _, ok := known[group.Voteable.ID]; ok {
			result = append(result, group)
		}
	}

	return result, nil
}

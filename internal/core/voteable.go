package core

import (
	"context"
	"math"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

// percentEpsilon keeps the percentage denominator non-zero for voteables
// without votes, which then report 0.
const percentEpsilon = 0.0001

func (s *coreService) VotesFor(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int64, error) {

	return s.countVotes(ctx, voteable, thumbsup.Up, dimension)
}

func (s *coreService) VotesAgainst(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int64, error) {

	return s.countVotes(ctx, voteable, thumbsup.Down, dimension)
}

func (s *coreService) VotesCount(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int64, error) {

	return s.countVotes(ctx, voteable, thumbsup.AnyDirection, dimension)
}

// Plusminus is the net score: votes for minus votes against.
func (s *coreService) Plusminus(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int64, error) {

	votesFor, err := s.VotesFor(ctx, voteable, dimension)
	if err != nil {
		return 0, err
	}

	votesAgainst, err := s.VotesAgainst(ctx, voteable, dimension)
	if err != nil {
		return 0, err
	}

	return votesFor - votesAgainst, nil
}

func (s *coreService) PercentFor(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int, error) {

	return s.percent(ctx, voteable, thumbsup.Up, dimension)
}

func (s *coreService) PercentAgainst(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int, error) {

	return s.percent(ctx, voteable, thumbsup.Down, dimension)
}

func (s *coreService) VotersWhoVoted(ctx context.Context, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) ([]thumbsup.Ref, error) {

	filter, err := s.scope(voteable, dimension)
	if err != nil {
		return nil, err
	}

	votes, err := s.ledger.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	seen := make(map[thumbsup.Ref]struct{}, len(votes))
	var result []thumbsup.Ref

	for _, vote := range votes {
		if _, ok := seen[vote.Voter]; ok {
			continue
		}
		seen[vote.Voter] = struct{}{}
		result = append(result, vote.Voter)
	}

	return result, nil
}

func (s *coreService) VotedBy(ctx context.Context, voteable thumbsup.Voteable, voter thumbsup.Voter,
	dimension thumbsup.Dimension) (bool, error) {

	return s.VotedOn(ctx, voter, voteable, dimension)
}

func (s *coreService) countVotes(ctx context.Context, voteable thumbsup.Voteable,
	direction thumbsup.Direction, dimension thumbsup.Dimension) (int64, error) {

	filter, err := s.scope(voteable, dimension)
	if err != nil {
		return 0, err
	}
	filter.Direction = direction

	return s.ledger.CountMatching(ctx, filter)
}

func (s *coreService) percent(ctx context.Context, voteable thumbsup.Voteable,
	direction thumbsup.Direction, dimension thumbsup.Dimension) (int, error) {

	part, err := s.countVotes(ctx, voteable, direction, dimension)
	if err != nil {
		return 0, err
	}

	total, err := s.VotesCount(ctx, voteable, dimension)
	if err != nil {
		return 0, err
	}

	return int(math.Round(float64(part) * 100 / (float64(total) + percentEpsilon))), nil
}

package core

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

func (s *coreService) Vote(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	options thumbsup.VoteOptions) (thumbsup.Vote, error) {

	if !options.Direction.Valid() {
		return thumbsup.Vote{}, thumbsup.ErrInvalidDirection
	}

	voterRef, err := refOf(voter)
	if err != nil {
		return thumbsup.Vote{}, err
	}

	filter, err := s.scope(voteable, options.Dimension)
	if err != nil {
		return thumbsup.Vote{}, err
	}

	if err := s.checkExists(ctx, voterRef, filter.Voteable); err != nil {
		return thumbsup.Vote{}, err
	}

	vote := thumbsup.Vote{
		Voter:     voterRef,
		Voteable:  filter.Voteable,
		Up:        options.Direction == thumbsup.Up,
		Dimension: options.Dimension,
		CreatedAt: s.now(),
	}

	if !options.Exclusive {
		vote.ID, err = s.ledger.Insert(ctx, vote)
		if err != nil {
			return thumbsup.Vote{}, err
		}

		return vote, nil
	}

	return s.voteExclusively(ctx, vote)
}

// voteExclusively retries the atomic clear-and-insert while the ledger
// reports concurrent interference.
func (s *coreService) voteExclusively(ctx context.Context, vote thumbsup.Vote) (thumbsup.Vote, error) {
	for attempt := 0; ; attempt++ {
		id, _, err := s.ledger.InsertExclusive(ctx, vote)
		if err == nil {
			vote.ID = id
			return vote, nil
		}

		if !errors.Is(err, thumbsup.ErrConflict) || attempt >= s.conflictRetries {
			return thumbsup.Vote{}, err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return thumbsup.Vote{}, ctxErr
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"voter":    vote.Voter.String(),
			"voteable": vote.Voteable.String(),
			"attempt":  attempt + 1,
		}).Warn("retrying exclusive vote after conflict")
	}
}

func (s *coreService) VoteFor(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (thumbsup.Vote, error) {

	return s.Vote(ctx, voter, voteable, thumbsup.VoteOptions{Direction: thumbsup.Up, Dimension: dimension})
}

func (s *coreService) VoteAgainst(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (thumbsup.Vote, error) {

	return s.Vote(ctx, voter, voteable, thumbsup.VoteOptions{Direction: thumbsup.Down, Dimension: dimension})
}

func (s *coreService) VoteExclusivelyFor(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (thumbsup.Vote, error) {

	return s.Vote(ctx, voter, voteable, thumbsup.VoteOptions{
		Direction: thumbsup.Up,
		Dimension: dimension,
		Exclusive: true,
	})
}

func (s *coreService) VoteExclusivelyAgainst(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (thumbsup.Vote, error) {

	return s.Vote(ctx, voter, voteable, thumbsup.VoteOptions{
		Direction: thumbsup.Down,
		Dimension: dimension,
		Exclusive: true,
	})
}

func (s *coreService) ClearVotes(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (int64, error) {

	filter, err := s.pairScope(voter, voteable, dimension)
	if err != nil {
		return 0, err
	}

	return s.ledger.DeleteMatching(ctx, filter)
}

func (s *coreService) VotedFor(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (bool, error) {

	return s.votedWhichWay(ctx, voter, voteable, thumbsup.Up, dimension)
}

func (s *coreService) VotedAgainst(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (bool, error) {

	return s.votedWhichWay(ctx, voter, voteable, thumbsup.Down, dimension)
}

func (s *coreService) VotedOn(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (bool, error) {

	return s.votedWhichWay(ctx, voter, voteable, thumbsup.AnyDirection, dimension)
}

func (s *coreService) VoteCount(ctx context.Context, voter thumbsup.Voter, selector thumbsup.Direction,
	dimension thumbsup.Dimension) (int64, error) {

	if selector != thumbsup.AnyDirection && !selector.Valid() {
		return 0, thumbsup.ErrInvalidDirection
	}

	ref, err := refOf(voter)
	if err != nil {
		return 0, err
	}

	return s.ledger.CountMatching(ctx, thumbsup.Filter{
		Voter:     ref,
		Dimension: dimension.Ptr(),
		Direction: selector,
	})
}

func (s *coreService) votedWhichWay(ctx context.Context, voter thumbsup.Voter, voteable thumbsup.Voteable,
	direction thumbsup.Direction, dimension thumbsup.Dimension) (bool, error) {

	filter, err := s.pairScope(voter, voteable, dimension)
	if err != nil {
		return false, err
	}
	filter.Direction = direction

	count, err := s.ledger.CountMatching(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *coreService) pairScope(voter thumbsup.Voter, voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (thumbsup.Filter, error) {

	voterRef, err := refOf(voter)
	if err != nil {
		return thumbsup.Filter{}, err
	}

	filter, err := s.scope(voteable, dimension)
	if err != nil {
		return thumbsup.Filter{}, err
	}
	filter.Voter = voterRef

	return filter, nil
}

func (s *coreService) checkExists(ctx context.Context, refs ...thumbsup.Ref) error {
	if s.directory == nil {
		return nil
	}

	for _, ref := range refs {
		exists, err := s.directory.Exists(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "resolve %v", ref)
		}
		if !exists {
			return errors.Wrapf(thumbsup.ErrConstraintViolation, "%v", ref)
		}
	}

	return nil
}

package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

const defaultConflictRetries = 3

type coreService struct {
	ledger          thumbsup.Ledger
	directory       thumbsup.Directory
	dimensions      map[string]map[string]struct{}
	conflictRetries int
	now             func() time.Time
}

type Option func(s *coreService)

func New(ledger thumbsup.Ledger, options ...Option) thumbsup.Service {
	result := &coreService{
		ledger:          ledger,
		dimensions:      make(map[string]map[string]struct{}),
		conflictRetries: defaultConflictRetries,
		now:             func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(result)
	}

	return result
}

// WithDirectory enables referential checks before votes are written and drops
// aggregated voteables that no longer exist.
func WithDirectory(directory thumbsup.Directory) Option {
	return func(s *coreService) {
		s.directory = directory
	}
}

// WithDimensions declares the fixed set of named dimensions for voteableType.
// Named dimensions outside the set are rejected for that type; the default
// dimension is always accepted.
func WithDimensions(voteableType string, names ...string) Option {
	return func(s *coreService) {
		declared, ok := s.dimensions[voteableType]
		if !ok {
			declared = make(map[string]struct{}, len(names))
			s.dimensions[voteableType] = declared
		}

		for _, name := range names {
			declared[name] = struct{}{}
		}
	}
}

func WithConflictRetries(retries int) Option {
	return func(s *coreService) {
		if retries >= 0 {
			s.conflictRetries = retries
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *coreService) {
		s.now = now
	}
}

func (s *coreService) ForgetEntity(ctx context.Context, entity thumbsup.Entity) (int64, error) {
	ref, err := refOf(entity)
	if err != nil {
		return 0, err
	}

	asVoter, err := s.ledger.DeleteMatching(ctx, thumbsup.Filter{Voter: ref})
	if err != nil {
		return 0, errors.Wrapf(err, "forget votes cast by %v", ref)
	}

	asVoteable, err := s.ledger.DeleteMatching(ctx, thumbsup.Filter{Voteable: ref})
	if err != nil {
		return asVoter, errors.Wrapf(err, "forget votes cast on %v", ref)
	}

	if removed := asVoter + asVoteable; removed > 0 {
		logrus.WithFields(logrus.Fields{
			"entity":  ref.String(),
			"removed": removed,
		}).Info("forgot votes of destroyed entity")
	}

	return asVoter + asVoteable, nil
}

func (s *coreService) Close() error {
	return s.ledger.Close()
}

func (s *coreService) checkDimension(voteableType string, dimension thumbsup.Dimension) error {
	if !dimension.Valid {
		return nil
	}

	declared, ok := s.dimensions[voteableType]
	if !ok {
		return nil
	}

	if _, ok := declared[dimension.Name]; !ok {
		return errors.Wrapf(thumbsup.ErrUnknownDimension, "%q on %s", dimension.Name, voteableType)
	}

	return nil
}

func refOf(entity thumbsup.Entity) (thumbsup.Ref, error) {
	if entity == nil {
		return thumbsup.Ref{}, thumbsup.ErrInvalidEntity
	}

	ref := thumbsup.RefOf(entity)
	if !ref.Complete() {
		return thumbsup.Ref{}, thumbsup.ErrInvalidEntity
	}

	return ref, nil
}

// scope builds the filter shared by every per-pair and per-voteable query.
func (s *coreService) scope(voteable thumbsup.Voteable,
	dimension thumbsup.Dimension) (thumbsup.Filter, error) {

	ref, err := refOf(voteable)
	if err != nil {
		return thumbsup.Filter{}, err
	}

	if err := s.checkDimension(ref.Type, dimension); err != nil {
		return thumbsup.Filter{}, err
	}

	return thumbsup.Filter{Voteable: ref, Dimension: dimension.Ptr()}, nil
}

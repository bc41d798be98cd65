package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/suite"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

var (
	alice = thumbsup.Ref{Type: "User", ID: "alice"}
	postA = thumbsup.Ref{Type: "Post", ID: "a"}
)

type ExclusiveConflictTestSuite struct {
	suite.Suite

	db     *miniredis.Miniredis
	other  *redis.Client
	ledger *redisLedger
}

func TestExclusiveConflictTestSuite(t *testing.T) {
	suite.Run(t, new(ExclusiveConflictTestSuite))
}

func (s *ExclusiveConflictTestSuite) TestConcurrentVoterWriteShouldAbortExclusiveInsert() {
	_, err := s.ledger.Insert(context.Background(), thumbsup.Vote{Voter: alice, Voteable: postA, Up: true})
	s.Require().Nil(err)

	s.ledger.watchHook = func() {
		s.Require().Nil(s.other.SAdd(s.ledger.voterKey(alice), "intruder").Err())
	}

	_, removed, err := s.ledger.InsertExclusive(context.Background(), thumbsup.Vote{
		Voter:    alice,
		Voteable: postA,
		Up:       false,
	})
	s.True(errors.Is(err, thumbsup.ErrConflict), "unexpected error: %v", err)
	s.Zero(removed)

	s.ledger.watchHook = nil
	votes, err := s.ledger.Find(context.Background(), thumbsup.Filter{Voter: alice})
	s.Nil(err)
	s.Require().Len(votes, 1)
	s.True(votes[0].Up)
}

func (s *ExclusiveConflictTestSuite) TestUntouchedWatchShouldCommit() {
	_, err := s.ledger.Insert(context.Background(), thumbsup.Vote{Voter: alice, Voteable: postA, Up: true})
	s.Require().Nil(err)

	hooked := false
	s.ledger.watchHook = func() {
		hooked = true
	}

	_, removed, err := s.ledger.InsertExclusive(context.Background(), thumbsup.Vote{
		Voter:    alice,
		Voteable: postA,
		Up:       false,
	})
	s.Nil(err)
	s.True(hooked)
	s.Equal(int64(1), removed)
}

func (s *ExclusiveConflictTestSuite) SetupTest() {
	var err error

	s.db, err = miniredis.Run()
	if err != nil {
		s.FailNow("failed to create miniredis db")
	}

	s.other = redis.NewClient(&redis.Options{Addr: s.db.Addr()})
	s.ledger = New(redis.NewClient(&redis.Options{Addr: s.db.Addr()})).(*redisLedger)
}

func (s *ExclusiveConflictTestSuite) TearDownTest() {
	s.Nil(s.ledger.Close())
	s.Nil(s.other.Close())
	s.db.Close()
}

// Package ledgertest holds the behaviour every thumbsup.Ledger must share.
// Backend suites embed LedgerSuite and assign Ledger in their SetupTest.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

var (
	Alice = thumbsup.Ref{Type: "User", ID: "alice"}
	Bob   = thumbsup.Ref{Type: "User", ID: "bob"}
	Carol = thumbsup.Ref{Type: "User", ID: "carol"}

	PostA = thumbsup.Ref{Type: "Post", ID: "a"}
	PostB = thumbsup.Ref{Type: "Post", ID: "b"}
	PostC = thumbsup.Ref{Type: "Post", ID: "c"}

	CommentA = thumbsup.Ref{Type: "Comment", ID: "a"}

	Quality = thumbsup.Dim("quality")

	BaseTime = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
)

type LedgerSuite struct {
	suite.Suite

	Ledger thumbsup.Ledger
}

func (s *LedgerSuite) TestInsertShouldAssignIDWhenMissing() {
	id, err := s.Ledger.Insert(context.Background(), s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.Nil(err)
	s.NotEmpty(id)
}

func (s *LedgerSuite) TestInsertShouldKeepProvidedID() {
	vote := s.vote(Alice, PostA, true, thumbsup.NoDimension, 0)
	vote.ID = "fixed-id"

	id, err := s.Ledger.Insert(context.Background(), vote)
	s.Nil(err)
	s.Equal(thumbsup.VoteID("fixed-id"), id)
}

func (s *LedgerSuite) TestFindShouldReturnStoredFields() {
	s.insert(s.vote(Alice, PostA, false, Quality, 5*time.Second))

	votes, err := s.Ledger.Find(context.Background(), thumbsup.Filter{Voter: Alice})
	s.Nil(err)
	s.Require().Len(votes, 1)

	vote := votes[0]
	s.NotEmpty(vote.ID)
	s.Equal(Alice, vote.Voter)
	s.Equal(PostA, vote.Voteable)
	s.False(vote.Up)
	s.Equal(Quality, vote.Dimension)
	s.True(vote.CreatedAt.Equal(BaseTime.Add(5*time.Second)))
}

func (s *LedgerSuite) TestCountMatchingShouldFilterByDirection() {
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Bob, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Carol, PostA, false, thumbsup.NoDimension, 0))

	s.Equal(int64(2), s.count(thumbsup.Filter{Voteable: PostA, Direction: thumbsup.Up}))
	s.Equal(int64(1), s.count(thumbsup.Filter{Voteable: PostA, Direction: thumbsup.Down}))
	s.Equal(int64(3), s.count(thumbsup.Filter{Voteable: PostA}))
}

func (s *LedgerSuite) TestDefaultDimensionFilterShouldMatchOnlyVotesWithoutDimension() {
	s.insert(s.vote(Alice, PostA, true, Quality, 0))
	s.insert(s.vote(Alice, PostA, false, thumbsup.NoDimension, 0))

	s.Equal(int64(1), s.count(thumbsup.Filter{Voteable: PostA, Dimension: thumbsup.NoDimension.Ptr()}))
	s.Equal(int64(0), s.count(thumbsup.Filter{
		Voteable:  PostA,
		Dimension: thumbsup.NoDimension.Ptr(),
		Direction: thumbsup.Up,
	}))
	s.Equal(int64(1), s.count(thumbsup.Filter{Voteable: PostA, Dimension: Quality.Ptr(), Direction: thumbsup.Up}))
	s.Equal(int64(2), s.count(thumbsup.Filter{Voteable: PostA}))
}

func (s *LedgerSuite) TestCountMatchingShouldRespectCreationWindow() {
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Bob, PostA, true, thumbsup.NoDimension, time.Hour))
	s.insert(s.vote(Carol, PostA, true, thumbsup.NoDimension, 2*time.Hour))

	s.Equal(int64(2), s.count(thumbsup.Filter{CreatedAfter: BaseTime.Add(time.Hour)}))
	s.Equal(int64(2), s.count(thumbsup.Filter{CreatedBefore: BaseTime.Add(time.Hour)}))
	s.Equal(int64(1), s.count(thumbsup.Filter{
		CreatedAfter:  BaseTime.Add(time.Minute),
		CreatedBefore: BaseTime.Add(time.Hour),
	}))
}

func (s *LedgerSuite) TestDeleteMatchingShouldReturnNumberOfRemovedVotes() {
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Alice, PostA, false, thumbsup.NoDimension, 0))
	s.insert(s.vote(Alice, PostB, true, thumbsup.NoDimension, 0))

	filter := thumbsup.Filter{Voter: Alice, Voteable: PostA, Dimension: thumbsup.NoDimension.Ptr()}

	removed, err := s.Ledger.DeleteMatching(context.Background(), filter)
	s.Nil(err)
	s.Equal(int64(2), removed)

	removed, err = s.Ledger.DeleteMatching(context.Background(), filter)
	s.Nil(err)
	s.Zero(removed)

	s.Equal(int64(1), s.count(thumbsup.Filter{Voter: Alice}))
}

func (s *LedgerSuite) TestDeleteMatchingByVoterShouldSpanDimensions() {
	s.insert(s.vote(Alice, PostA, true, Quality, 0))
	s.insert(s.vote(Alice, PostB, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Bob, PostA, true, thumbsup.NoDimension, 0))

	removed, err := s.Ledger.DeleteMatching(context.Background(), thumbsup.Filter{Voter: Alice})
	s.Nil(err)
	s.Equal(int64(2), removed)
	s.Equal(int64(1), s.count(thumbsup.Filter{}))
}

func (s *LedgerSuite) TestInsertExclusiveShouldReplaceVotesInSameScope() {
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, time.Second))
	s.insert(s.vote(Alice, PostA, true, Quality, 0))
	s.insert(s.vote(Bob, PostA, true, thumbsup.NoDimension, 0))

	id, removed, err := s.Ledger.InsertExclusive(context.Background(),
		s.vote(Alice, PostA, false, thumbsup.NoDimension, time.Minute))
	s.Nil(err)
	s.NotEmpty(id)
	s.Equal(int64(2), removed)

	votes, err := s.Ledger.Find(context.Background(), thumbsup.Filter{
		Voter:     Alice,
		Voteable:  PostA,
		Dimension: thumbsup.NoDimension.Ptr(),
	})
	s.Nil(err)
	s.Require().Len(votes, 1)
	s.Equal(id, votes[0].ID)
	s.False(votes[0].Up)

	s.Equal(int64(1), s.count(thumbsup.Filter{Voter: Alice, Dimension: Quality.Ptr()}))
	s.Equal(int64(1), s.count(thumbsup.Filter{Voter: Bob}))
}

func (s *LedgerSuite) TestInsertExclusiveWithoutPreviousVotesShouldRemoveNothing() {
	_, removed, err := s.Ledger.InsertExclusive(context.Background(),
		s.vote(Alice, PostA, true, Quality, 0))
	s.Nil(err)
	s.Zero(removed)
	s.Equal(int64(1), s.count(thumbsup.Filter{}))
}

func (s *LedgerSuite) TestAggregateByGroupShouldComputeCountAndNetScore() {
	s.seedScenario()

	groups, err := s.Ledger.AggregateByGroup(context.Background(), thumbsup.AggregateQuery{
		Filter: thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Post"}},
		Metric: thumbsup.MetricCount,
	})
	s.Nil(err)
	s.Equal([]thumbsup.Group{
		{Voteable: PostA, VoteCount: 3, VoteTotal: 3},
		{Voteable: PostB, VoteCount: 3, VoteTotal: -1},
	}, groups)
}

func (s *LedgerSuite) TestAggregateByGroupShouldApplyThresholdToNetScore() {
	s.seedScenario()

	atLeast := int64(0)
	groups, err := s.Ledger.AggregateByGroup(context.Background(), thumbsup.AggregateQuery{
		Filter:  thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Post"}},
		Metric:  thumbsup.MetricNetScore,
		AtLeast: &atLeast,
	})
	s.Nil(err)
	s.Equal([]thumbsup.Group{{Voteable: PostA, VoteCount: 3, VoteTotal: 3}}, groups)
}

func (s *LedgerSuite) TestAggregateByGroupShouldApplyThresholdToCount() {
	s.seedScenario()
	s.insert(s.vote(Alice, PostC, true, thumbsup.NoDimension, 0))

	atMost := int64(2)
	groups, err := s.Ledger.AggregateByGroup(context.Background(), thumbsup.AggregateQuery{
		Filter: thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Post"}},
		Metric: thumbsup.MetricCount,
		AtMost: &atMost,
	})
	s.Nil(err)
	s.Equal([]thumbsup.Group{{Voteable: PostC, VoteCount: 1, VoteTotal: 1}}, groups)
}

func (s *LedgerSuite) TestAggregateByGroupShouldStayWithinVoteableType() {
	s.seedScenario()
	s.insert(s.vote(Alice, CommentA, true, thumbsup.NoDimension, 0))

	groups, err := s.Ledger.AggregateByGroup(context.Background(), thumbsup.AggregateQuery{
		Filter: thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Comment"}},
	})
	s.Nil(err)
	s.Equal([]thumbsup.Group{{Voteable: CommentA, VoteCount: 1, VoteTotal: 1}}, groups)
}

func (s *LedgerSuite) TestAggregateByGroupShouldReturnNothingWithoutVotes() {
	groups, err := s.Ledger.AggregateByGroup(context.Background(), thumbsup.AggregateQuery{
		Filter: thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Post"}},
	})
	s.Nil(err)
	s.Empty(groups)
}

func (s *LedgerSuite) TestInvalidDirectionFilterShouldFail() {
	_, err := s.Ledger.CountMatching(context.Background(), thumbsup.Filter{Direction: "sideways"})
	s.True(errors.Is(err, thumbsup.ErrInvalidDirection))
}

func (s *LedgerSuite) TestClosedLedgerShouldReturnErrClosed() {
	s.Nil(s.Ledger.Close())

	_, err := s.Ledger.Insert(context.Background(), s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.True(errors.Is(err, thumbsup.ErrClosed))

	_, err = s.Ledger.CountMatching(context.Background(), thumbsup.Filter{})
	s.True(errors.Is(err, thumbsup.ErrClosed))
}

func (s *LedgerSuite) TestCloseDuringTrafficShouldSettleOnErrClosed() {
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))

	var wg sync.WaitGroup
	settled := make(chan bool, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for attempt := 0; attempt < 10000; attempt++ {
				_, err := s.Ledger.CountMatching(context.Background(), thumbsup.Filter{Voter: Alice})
				if errors.Is(err, thumbsup.ErrClosed) {
					settled <- true
					return
				}
			}
			settled <- false
		}()
	}

	s.Nil(s.Ledger.Close())
	wg.Wait()
	close(settled)

	for ok := range settled {
		s.True(ok)
	}
}

// seedScenario gives PostA three up-votes, PostB one up and two down, and
// PostC nothing.
func (s *LedgerSuite) seedScenario() {
	s.insert(s.vote(Alice, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Bob, PostA, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Carol, PostA, true, Quality, 0))

	s.insert(s.vote(Alice, PostB, true, thumbsup.NoDimension, 0))
	s.insert(s.vote(Bob, PostB, false, thumbsup.NoDimension, 0))
	s.insert(s.vote(Carol, PostB, false, thumbsup.NoDimension, 0))
}

func (s *LedgerSuite) vote(voter, voteable thumbsup.Ref, up bool, dimension thumbsup.Dimension,
	offset time.Duration) thumbsup.Vote {

	return thumbsup.Vote{
		Voter:     voter,
		Voteable:  voteable,
		Up:        up,
		Dimension: dimension,
		CreatedAt: BaseTime.Add(offset),
	}
}

func (s *LedgerSuite) insert(vote thumbsup.Vote) thumbsup.VoteID {
	id, err := s.Ledger.Insert(context.Background(), vote)
	s.Require().Nil(err)

	return id
}

func (s *LedgerSuite) count(filter thumbsup.Filter) int64 {
	count, err := s.Ledger.CountMatching(context.Background(), filter)
	s.Require().Nil(err)

	return count
}

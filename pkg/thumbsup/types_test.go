package thumbsup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type FilterTestSuite struct {
	suite.Suite

	vote Vote
}

func TestFilterTestSuite(t *testing.T) {
	suite.Run(t, new(FilterTestSuite))
}

func (s *FilterTestSuite) TestEmptyFilterShouldMatchEverything() {
	s.True(Filter{}.Match(s.vote))
}

func (s *FilterTestSuite) TestRefPatternShouldMatchTypeAlone() {
	s.True(Filter{Voteable: Ref{Type: "Post"}}.Match(s.vote))
	s.False(Filter{Voteable: Ref{Type: "Comment"}}.Match(s.vote))
	s.False(Filter{Voter: Ref{Type: "User", ID: "bob"}}.Match(s.vote))
}

func (s *FilterTestSuite) TestDimensionShouldMatchStrictly() {
	s.True(Filter{Dimension: Dim("quality").Ptr()}.Match(s.vote))
	s.False(Filter{Dimension: NoDimension.Ptr()}.Match(s.vote))

	s.vote.Dimension = NoDimension
	s.True(Filter{Dimension: NoDimension.Ptr()}.Match(s.vote))
	s.False(Filter{Dimension: Dim("quality").Ptr()}.Match(s.vote))
}

func (s *FilterTestSuite) TestDirectionShouldMatch() {
	s.True(Filter{Direction: Up}.Match(s.vote))
	s.False(Filter{Direction: Down}.Match(s.vote))
}

func (s *FilterTestSuite) TestTimeBoundsShouldBeInclusive() {
	at := s.vote.CreatedAt

	s.True(Filter{CreatedAfter: at, CreatedBefore: at}.Match(s.vote))
	s.False(Filter{CreatedAfter: at.Add(time.Nanosecond)}.Match(s.vote))
	s.False(Filter{CreatedBefore: at.Add(-time.Nanosecond)}.Match(s.vote))
}

func (s *FilterTestSuite) TestIntersectShouldCombineFieldsAndTightenBounds() {
	at := s.vote.CreatedAt

	combined, ok := Filter{
		Voteable:      Ref{Type: "Post"},
		CreatedAfter:  at,
		CreatedBefore: at.Add(time.Hour),
	}.Intersect(Filter{
		Voter:         Ref{Type: "User", ID: "alice"},
		Voteable:      Ref{Type: "Post", ID: "a"},
		Direction:     Up,
		CreatedAfter:  at.Add(-time.Hour),
		CreatedBefore: at.Add(time.Minute),
	})
	s.True(ok)

	s.Equal(Filter{
		Voter:         Ref{Type: "User", ID: "alice"},
		Voteable:      Ref{Type: "Post", ID: "a"},
		Direction:     Up,
		CreatedAfter:  at,
		CreatedBefore: at.Add(time.Minute),
	}, combined)
	s.True(combined.Match(s.vote))
}

func (s *FilterTestSuite) TestIntersectShouldKeepMatchingPins() {
	_, ok := Filter{Dimension: Dim("quality").Ptr(), Direction: Up}.
		Intersect(Filter{Dimension: Dim("quality").Ptr(), Direction: Up})
	s.True(ok)
}

func (s *FilterTestSuite) TestIntersectShouldDetectContradictions() {
	at := s.vote.CreatedAt

	contradictions := []struct {
		own, other Filter
	}{
		{Filter{Voteable: Ref{Type: "Post"}}, Filter{Voteable: Ref{Type: "Comment"}}},
		{Filter{Voter: Ref{Type: "User", ID: "alice"}}, Filter{Voter: Ref{ID: "bob"}}},
		{Filter{Dimension: Dim("quality").Ptr()}, Filter{Dimension: NoDimension.Ptr()}},
		{Filter{Direction: Up}, Filter{Direction: Down}},
		{Filter{CreatedAfter: at}, Filter{CreatedBefore: at.Add(-time.Second)}},
	}

	for _, c := range contradictions {
		_, ok := c.own.Intersect(c.other)
		s.False(ok, "%+v AND %+v", c.own, c.other)

		_, ok = c.other.Intersect(c.own)
		s.False(ok, "%+v AND %+v", c.other, c.own)
	}
}

func (s *FilterTestSuite) TestValidateShouldRejectUnknownDirection() {
	s.Nil(Filter{}.Validate())
	s.Nil(Filter{Direction: Down}.Validate())
	s.Equal(ErrInvalidDirection, Filter{Direction: "sideways"}.Validate())
}

func (s *FilterTestSuite) TestRefOfShouldAcceptAnyEntity() {
	s.Equal(Ref{Type: "User", ID: "alice"}, RefOf(s.vote.Voter))
	s.True(Ref{Type: "User", ID: "alice"}.Complete())
	s.False(Ref{Type: "User"}.Complete())
	s.Equal("User#alice", s.vote.Voter.String())
}

func (s *FilterTestSuite) SetupTest() {
	s.vote = Vote{
		ID:        "v1",
		Voter:     Ref{Type: "User", ID: "alice"},
		Voteable:  Ref{Type: "Post", ID: "a"},
		Up:        true,
		Dimension: Dim("quality"),
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

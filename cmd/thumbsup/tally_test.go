package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/cafebazaar/thumbsup/internal/ledger/memory"
	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

type TallyCommandTestSuite struct {
	suite.Suite

	cmd *cobra.Command
}

func TestTallyCommandTestSuite(t *testing.T) {
	suite.Run(t, new(TallyCommandTestSuite))
}

func (s *TallyCommandTestSuite) TestParseWindowShouldLeaveUnsetOptionsOff() {
	w, err := parseWindow(s.cmd.Flags())
	s.Nil(err)

	s.True(w.startAt.IsZero())
	s.Nil(w.dimension)
	s.Nil(w.atLeast)
	s.Nil(w.atMost)
	s.Equal(thumbsup.Filter{}, w.conditions)
}

func (s *TallyCommandTestSuite) TestParseWindowShouldReadEveryOption() {
	s.Nil(s.cmd.ParseFlags([]string{
		"--start-at", "2026-03-14T09:30:00Z",
		"--voter", "User#alice",
		"--direction", "UP",
		"--dimension", "quality",
		"--limit", "5",
		"--at-least", "0",
	}))

	w, err := parseWindow(s.cmd.Flags())
	s.Nil(err)

	s.Equal(2026, w.startAt.Year())
	s.Equal(thumbsup.Ref{Type: "User", ID: "alice"}, w.conditions.Voter)
	s.Equal(thumbsup.Up, w.conditions.Direction)
	s.Equal(thumbsup.Dim("quality").Ptr(), w.dimension)
	s.Equal(5, w.limit)
	s.Require().NotNil(w.atLeast)
	s.Zero(*w.atLeast)
	s.Nil(w.atMost)
}

func (s *TallyCommandTestSuite) TestParseWindowShouldSelectDefaultDimension() {
	s.Nil(s.cmd.ParseFlags([]string{"--dimension="}))

	w, err := parseWindow(s.cmd.Flags())
	s.Nil(err)
	s.Equal(thumbsup.NoDimension.Ptr(), w.dimension)
}

func (s *TallyCommandTestSuite) TestParseWindowShouldRejectBadInput() {
	s.Nil(s.cmd.ParseFlags([]string{"--direction", "sideways"}))
	_, err := parseWindow(s.cmd.Flags())
	s.Equal(thumbsup.ErrInvalidDirection, err)

	s.SetupTest()
	s.Nil(s.cmd.ParseFlags([]string{"--end-at", "yesterday"}))
	_, err = parseWindow(s.cmd.Flags())
	s.NotNil(err)
}

func (s *TallyCommandTestSuite) TestParseRef() {
	ref, err := parseRef("Post#a#b")
	s.Nil(err)
	s.Equal(thumbsup.Ref{Type: "Post", ID: "a#b"}, ref)

	_, err = parseRef("Post")
	s.NotNil(err)

	_, err = parseRef("#a")
	s.NotNil(err)

	ref, err = parseRefPattern("Post")
	s.Nil(err)
	s.Equal(thumbsup.Ref{Type: "Post"}, ref)
}

func (s *TallyCommandTestSuite) TestParseOrdering() {
	for _, name := range []string{"", "count-desc", "count-asc", "TOTAL-DESC", "total-asc", "id"} {
		order, err := parseOrdering(name)
		s.Nil(err)
		s.NotNil(order)
	}

	_, err := parseOrdering("random")
	s.NotNil(err)
}

func (s *TallyCommandTestSuite) TestPrintTalliesShouldRenderSignedTotals() {
	svc := getService(memory.New(), &Config{ConflictRetries: 3})
	defer closeOrLog(svc)

	alice := thumbsup.Ref{Type: "User", ID: "alice"}
	bob := thumbsup.Ref{Type: "User", ID: "bob"}
	post := thumbsup.Ref{Type: "Post", ID: "a"}

	_, err := svc.VoteAgainst(context.Background(), alice, post, thumbsup.NoDimension)
	s.Nil(err)
	_, err = svc.VoteAgainst(context.Background(), bob, post, thumbsup.NoDimension)
	s.Nil(err)

	result, err := svc.RankTally(context.Background(), "Post", thumbsup.RankOptions{})
	s.Nil(err)

	var out bytes.Buffer
	printTallies(&out, result)

	s.Equal("VOTEABLE  COUNT  TOTAL\nPost#a    2      -2\n", out.String())
}

func (s *TallyCommandTestSuite) TestGetServiceShouldDeclareDimensions() {
	svc := getService(memory.New(), &Config{
		Dimensions: []DimensionConfig{{Type: "Post", Names: []string{"quality"}}},
	})
	defer closeOrLog(svc)

	_, err := svc.VoteFor(context.Background(),
		thumbsup.Ref{Type: "User", ID: "alice"},
		thumbsup.Ref{Type: "Post", ID: "a"},
		thumbsup.Dim("speed"))
	s.True(errors.Is(err, thumbsup.ErrUnknownDimension))
}

func (s *TallyCommandTestSuite) SetupTest() {
	s.cmd = &cobra.Command{Use: "test"}
	addWindowFlags(s.cmd.Flags())
	s.cmd.Flags().String("order", "count-desc", "")
}

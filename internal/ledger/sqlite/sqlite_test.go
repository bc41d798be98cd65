package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"

	"github.com/cafebazaar/thumbsup/internal/ledger/ledgertest"
	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

type SQLiteLedgerTestSuite struct {
	ledgertest.LedgerSuite

	path string
}

func TestSQLiteLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(SQLiteLedgerTestSuite))
}

func (s *SQLiteLedgerTestSuite) TestOpenShouldRequirePath() {
	_, err := Open("  ")
	s.NotNil(err)
}

func (s *SQLiteLedgerTestSuite) TestNewShouldRequireDatabase() {
	_, err := New(nil)
	s.NotNil(err)
}

func (s *SQLiteLedgerTestSuite) TestReopenShouldKeepVotesAndSkipAppliedMigrations() {
	_, err := s.Ledger.Insert(context.Background(), thumbsup.Vote{
		Voter:     ledgertest.Alice,
		Voteable:  ledgertest.PostA,
		Up:        true,
		Dimension: ledgertest.Quality,
	})
	s.Nil(err)
	s.Nil(s.Ledger.Close())

	s.Ledger, err = Open(s.path)
	s.Require().Nil(err)

	count, err := s.Ledger.CountMatching(context.Background(), thumbsup.Filter{Dimension: ledgertest.Quality.Ptr()})
	s.Nil(err)
	s.Equal(int64(1), count)
}

func (s *SQLiteLedgerTestSuite) TestConcurrentExclusiveInsertsShouldLeaveOneVote() {
	var wg sync.WaitGroup
	errs := make(chan error, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(up bool) {
			defer wg.Done()
			_, _, err := s.Ledger.InsertExclusive(context.Background(), thumbsup.Vote{
				Voter:     ledgertest.Alice,
				Voteable:  ledgertest.PostA,
				Up:        up,
				Dimension: ledgertest.Quality,
			})
			errs <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Nil(err)
	}

	count, err := s.Ledger.CountMatching(context.Background(), thumbsup.Filter{
		Voter:     ledgertest.Alice,
		Voteable:  ledgertest.PostA,
		Dimension: ledgertest.Quality.Ptr(),
	})
	s.Nil(err)
	s.Equal(int64(1), count)
}

func (s *SQLiteLedgerTestSuite) TestBusyDatabaseShouldSurfaceAsConflict() {
	locker, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(0)&_txlock=immediate")
	s.Require().Nil(err)
	defer locker.Close()

	holder, err := locker.Begin()
	s.Require().Nil(err)
	defer func() { _ = holder.Rollback() }()

	contender, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(0)&_txlock=immediate")
	s.Require().Nil(err)
	defer contender.Close()

	ledger := &sqliteLedger{sqlDB: contender}
	_, _, err = ledger.InsertExclusive(context.Background(), thumbsup.Vote{
		Voter:    ledgertest.Alice,
		Voteable: ledgertest.PostA,
	})
	s.True(errors.Is(err, thumbsup.ErrConflict), "unexpected error: %v", err)
}

func (s *SQLiteLedgerTestSuite) TestDefaultDimensionShouldBeStoredAsNull() {
	_, err := s.Ledger.Insert(context.Background(), thumbsup.Vote{
		Voter:    ledgertest.Alice,
		Voteable: ledgertest.PostA,
	})
	s.Nil(err)

	var nulls int
	row := s.Ledger.(*sqliteLedger).sqlDB.QueryRow(`SELECT COUNT(*) FROM votes WHERE dimension IS NULL`)
	s.Nil(row.Scan(&nulls))
	s.Equal(1, nulls)
}

func (s *SQLiteLedgerTestSuite) TestHostTriggerShouldSurfaceAsConstraintViolation() {
	sqlDB := s.Ledger.(*sqliteLedger).sqlDB
	_, err := sqlDB.Exec(`CREATE TABLE users (id TEXT PRIMARY KEY)`)
	s.Require().Nil(err)
	_, err = sqlDB.Exec(`CREATE TRIGGER votes_voter_exists BEFORE INSERT ON votes
		WHEN NEW.voter_type = 'User' AND NOT EXISTS (SELECT 1 FROM users WHERE id = NEW.voter_id)
		BEGIN SELECT RAISE(ABORT, 'voter does not exist'); END`)
	s.Require().Nil(err)

	_, err = s.Ledger.Insert(context.Background(), thumbsup.Vote{
		Voter:    ledgertest.Alice,
		Voteable: ledgertest.PostA,
	})
	s.True(errors.Is(err, thumbsup.ErrConstraintViolation), "unexpected error: %v", err)
}

func (s *SQLiteLedgerTestSuite) TestWhereClauseShouldBeEmptyWithoutConstraints() {
	where, args := whereClause(thumbsup.Filter{})
	s.Empty(where)
	s.Empty(args)
}

func (s *SQLiteLedgerTestSuite) TestWhereClauseShouldRenderStrictDefaultDimension() {
	where, args := whereClause(thumbsup.Filter{
		Voteable:  ledgertest.PostA,
		Dimension: thumbsup.NoDimension.Ptr(),
		Direction: thumbsup.Down,
	})
	s.Equal(` WHERE voteable_type = ? AND voteable_id = ? AND dimension IS NULL AND vote = 0`, where)
	s.Equal([]interface{}{"Post", "a"}, args)
}

func (s *SQLiteLedgerTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "votes.db")

	ledger, err := Open(s.path)
	if err != nil {
		s.FailNow("failed to open sqlite ledger", err.Error())
	}

	s.Ledger = ledger
}

func (s *SQLiteLedgerTestSuite) TearDownTest() {
	if err := s.Ledger.Close(); err != nil {
		s.FailNow("failed to close ledger")
	}
}


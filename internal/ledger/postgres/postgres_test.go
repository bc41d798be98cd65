package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

type PostgresLedgerTestSuite struct {
	suite.Suite

	db *gorm.DB
}

func TestPostgresLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresLedgerTestSuite))
}

func (s *PostgresLedgerTestSuite) TestFilterScopeShouldRenderEveryConstraint() {
	after := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	sql := s.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []voteModel
		return tx.Scopes(filterScope(thumbsup.Filter{
			Voter:        thumbsup.Ref{Type: "User", ID: "alice"},
			Voteable:     thumbsup.Ref{Type: "Post"},
			Dimension:    thumbsup.Dim("quality").Ptr(),
			Direction:    thumbsup.Up,
			CreatedAfter: after,
		})).Find(&rows)
	})

	s.Contains(sql, `FROM "votes"`)
	s.Contains(sql, `voter_type = 'User'`)
	s.Contains(sql, `voter_id = 'alice'`)
	s.Contains(sql, `voteable_type = 'Post'`)
	s.NotContains(sql, `voteable_id`)
	s.Contains(sql, `dimension = 'quality'`)
	s.Contains(sql, `vote = true`)
	s.Contains(sql, `created_at >= '2026-03-14 09:30:00`)
}

func (s *PostgresLedgerTestSuite) TestFilterScopeShouldMatchDefaultDimensionAsNull() {
	sql := s.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []voteModel
		return tx.Scopes(filterScope(thumbsup.Filter{
			Voteable:  thumbsup.Ref{Type: "Post", ID: "a"},
			Dimension: thumbsup.NoDimension.Ptr(),
			Direction: thumbsup.Down,
		})).Find(&rows)
	})

	s.Contains(sql, `dimension IS NULL`)
	s.Contains(sql, `vote = false`)
}

func (s *PostgresLedgerTestSuite) TestFilterScopeShouldIgnoreDimensionWhenUnscoped() {
	sql := s.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []voteModel
		return tx.Scopes(filterScope(thumbsup.Filter{
			Voter: thumbsup.Ref{Type: "User", ID: "alice"},
		})).Find(&rows)
	})

	s.NotContains(sql, `dimension`)
}

func (s *PostgresLedgerTestSuite) TestAggregateScopeShouldGroupAndFilterByNetScore() {
	atLeast := int64(0)

	sql := s.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []groupRow
		return tx.Scopes(aggregateScope(thumbsup.AggregateQuery{
			Filter:  thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Post"}},
			Metric:  thumbsup.MetricNetScore,
			AtLeast: &atLeast,
		})).Find(&rows)
	})

	s.Contains(sql, `COUNT(*) AS vote_count`)
	s.Contains(sql, totalExpr+` AS vote_total`)
	s.Contains(sql, `GROUP BY voteable_type, voteable_id`)
	s.Contains(sql, `COUNT(*) > 0`)
	s.Contains(sql, totalExpr+` >= 0`)
	s.Contains(sql, `ORDER BY voteable_type, voteable_id`)
}

func (s *PostgresLedgerTestSuite) TestAggregateScopeShouldFilterByCount() {
	atMost := int64(2)

	sql := s.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []groupRow
		return tx.Scopes(aggregateScope(thumbsup.AggregateQuery{
			Filter: thumbsup.Filter{Voteable: thumbsup.Ref{Type: "Post"}},
			Metric: thumbsup.MetricCount,
			AtMost: &atMost,
		})).Find(&rows)
	})

	s.Contains(sql, `COUNT(*) <= 2`)
	s.NotContains(sql, totalExpr+` <=`)
}

func (s *PostgresLedgerTestSuite) TestDeleteShouldRenderFilter() {
	sql := s.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Scopes(filterScope(thumbsup.Filter{Voter: thumbsup.Ref{Type: "User", ID: "alice"}})).
			Delete(&voteModel{})
	})

	s.Contains(sql, `DELETE FROM "votes"`)
	s.Contains(sql, `voter_id = 'alice'`)
}

func (s *PostgresLedgerTestSuite) TestModelShouldRoundTripDimension() {
	createdAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	named := thumbsup.Vote{
		ID:        "v1",
		Voter:     thumbsup.Ref{Type: "User", ID: "alice"},
		Voteable:  thumbsup.Ref{Type: "Post", ID: "a"},
		Up:        true,
		Dimension: thumbsup.Dim("quality"),
		CreatedAt: createdAt,
	}
	s.Equal(named, modelFromVote(named).toVote())

	unnamed := named
	unnamed.Dimension = thumbsup.NoDimension
	row := modelFromVote(unnamed)
	s.Nil(row.Dimension)
	s.Equal(unnamed, row.toVote())
}

func (s *PostgresLedgerTestSuite) TestModelShouldAssignMissingFields() {
	row := modelFromVote(thumbsup.Vote{
		Voter:    thumbsup.Ref{Type: "User", ID: "alice"},
		Voteable: thumbsup.Ref{Type: "Post", ID: "a"},
	})

	s.NotEmpty(row.ID)
	s.False(row.CreatedAt.IsZero())
}

func (s *PostgresLedgerTestSuite) TestExclusiveLockKeyShouldSeparateDimensions() {
	vote := thumbsup.Vote{
		Voter:    thumbsup.Ref{Type: "User", ID: "alice"},
		Voteable: thumbsup.Ref{Type: "Post", ID: "a"},
	}
	other := vote
	other.Dimension = thumbsup.Dim("quality")

	s.NotEqual(exclusiveLockKey(vote), exclusiveLockKey(other))
}

func (s *PostgresLedgerTestSuite) TestMapErrorShouldTranslateCodes() {
	err := mapError(&pgconn.PgError{Code: codeForeignKeyViolation}, "insert vote")
	s.True(errors.Is(err, thumbsup.ErrConstraintViolation))

	err = mapError(&pgconn.PgError{Code: codeSerializationFailure}, "insert vote")
	s.True(errors.Is(err, thumbsup.ErrConflict))

	err = mapError(&pgconn.PgError{Code: codeDeadlockDetected}, "insert vote")
	s.True(errors.Is(err, thumbsup.ErrConflict))

	cause := errors.New("boom")
	err = mapError(cause, "insert vote")
	s.True(errors.Is(err, cause))
	s.False(errors.Is(err, thumbsup.ErrConflict))
}

func (s *PostgresLedgerTestSuite) TestConnectShouldRequireDSN() {
	_, err := Connect("")
	s.NotNil(err)
}

func (s *PostgresLedgerTestSuite) TestClosedLedgerShouldFail() {
	ledger := &postgresLedger{}

	_, err := ledger.CountMatching(context.Background(), thumbsup.Filter{})
	s.Equal(thumbsup.ErrClosed, err)
	s.Nil(ledger.Close())
}

func (s *PostgresLedgerTestSuite) SetupTest() {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=localhost user=thumbsup dbname=thumbsup sslmode=disable",
		PreferSimpleProtocol: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		s.FailNow("failed to open dry-run gorm", err.Error())
	}

	s.db = db
}

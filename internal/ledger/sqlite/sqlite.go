// Package sqlite provides a SQLite-backed vote ledger.
package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cafebazaar/thumbsup/internal/ledger/sqlite/migrations"
	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

const voteColumns = `id, voter_type, voter_id, voteable_type, voteable_id, vote, dimension, created_at`

type sqliteLedger struct {
	mu    sync.RWMutex
	sqlDB *sql.DB
}

// Open opens the database file at path and applies the embedded schema.
// Transactions start IMMEDIATE so exclusive votes serialize on the write lock.
func Open(path string) (thumbsup.Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}

	ledger, err := New(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return ledger, nil
}

// New builds a ledger over a database the host already manages, which lets
// host tables and triggers enforce referential integrity on the votes table.
func New(sqlDB *sql.DB) (thumbsup.Ledger, error) {
	if sqlDB == nil {
		return nil, errors.New("sql db is required")
	}

	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	return &sqliteLedger{sqlDB: sqlDB}, nil
}

func (s *sqliteLedger) Insert(ctx context.Context, vote thumbsup.Vote) (thumbsup.VoteID, error) {
	sqlDB := s.db()
	if sqlDB == nil {
		return "", thumbsup.ErrClosed
	}

	vote = prepare(vote)
	if err := insertVote(ctx, sqlDB, vote); err != nil {
		return "", mapError(err, "insert vote")
	}

	return vote.ID, nil
}

func (s *sqliteLedger) InsertExclusive(ctx context.Context,
	vote thumbsup.Vote) (thumbsup.VoteID, int64, error) {

	sqlDB := s.db()
	if sqlDB == nil {
		return "", 0, thumbsup.ErrClosed
	}

	vote = prepare(vote)

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, mapError(err, "begin exclusive vote")
	}

	where, args := whereClause(thumbsup.ExclusiveScope(vote))
	result, err := tx.ExecContext(ctx, `DELETE FROM votes`+where, args...)
	if err != nil {
		_ = tx.Rollback()
		return "", 0, mapError(err, "clear previous votes")
	}

	removed, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return "", 0, mapError(err, "clear previous votes")
	}

	if err := insertVote(ctx, tx, vote); err != nil {
		_ = tx.Rollback()
		return "", 0, mapError(err, "insert exclusive vote")
	}

	if err := tx.Commit(); err != nil {
		return "", 0, mapError(err, "commit exclusive vote")
	}

	return vote.ID, removed, nil
}

func (s *sqliteLedger) DeleteMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	sqlDB := s.db()
	if sqlDB == nil {
		return 0, thumbsup.ErrClosed
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	where, args := whereClause(filter)
	result, err := sqlDB.ExecContext(ctx, `DELETE FROM votes`+where, args...)
	if err != nil {
		return 0, mapError(err, "delete votes")
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, mapError(err, "delete votes")
	}

	return removed, nil
}

func (s *sqliteLedger) CountMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	sqlDB := s.db()
	if sqlDB == nil {
		return 0, thumbsup.ErrClosed
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	where, args := whereClause(filter)

	var count int64
	if err := sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`+where, args...).Scan(&count); err != nil {
		return 0, mapError(err, "count votes")
	}

	return count, nil
}

func (s *sqliteLedger) Find(ctx context.Context, filter thumbsup.Filter) ([]thumbsup.Vote, error) {
	sqlDB := s.db()
	if sqlDB == nil {
		return nil, thumbsup.ErrClosed
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	where, args := whereClause(filter)
	rows, err := sqlDB.QueryContext(ctx,
		`SELECT `+voteColumns+` FROM votes`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, mapError(err, "find votes")
	}
	defer rows.Close()

	var result []thumbsup.Vote
	for rows.Next() {
		var (
			vote      thumbsup.Vote
			up        int
			dimension sql.NullString
			createdAt int64
		)

		err := rows.Scan(&vote.ID, &vote.Voter.Type, &vote.Voter.ID,
			&vote.Voteable.Type, &vote.Voteable.ID, &up, &dimension, &createdAt)
		if err != nil {
			return nil, mapError(err, "scan vote")
		}

		vote.Up = up == 1
		vote.Dimension = thumbsup.Dimension{Name: dimension.String, Valid: dimension.Valid}
		vote.CreatedAt = fromNanos(createdAt)
		result = append(result, vote)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate votes")
	}

	return result, nil
}

func (s *sqliteLedger) AggregateByGroup(ctx context.Context,
	query thumbsup.AggregateQuery) ([]thumbsup.Group, error) {

	sqlDB := s.db()
	if sqlDB == nil {
		return nil, thumbsup.ErrClosed
	}
	if err := query.Filter.Validate(); err != nil {
		return nil, err
	}

	const (
		countExpr = `COUNT(*)`
		totalExpr = `SUM(CASE WHEN vote = 1 THEN 1 ELSE -1 END)`
	)

	metricExpr := countExpr
	if query.Metric == thumbsup.MetricNetScore {
		metricExpr = totalExpr
	}

	where, args := whereClause(query.Filter)

	having := []string{countExpr + ` > 0`}
	if query.AtLeast != nil {
		having = append(having, metricExpr+` >= ?`)
		args = append(args, *query.AtLeast)
	}
	if query.AtMost != nil {
		having = append(having, metricExpr+` <= ?`)
		args = append(args, *query.AtMost)
	}

	rows, err := sqlDB.QueryContext(ctx,
		`SELECT voteable_type, voteable_id, `+countExpr+`, `+totalExpr+`
		   FROM votes`+where+`
		  GROUP BY voteable_type, voteable_id
		 HAVING `+strings.Join(having, ` AND `)+`
		  ORDER BY voteable_type, voteable_id`,
		args...)
	if err != nil {
		return nil, mapError(err, "aggregate votes")
	}
	defer rows.Close()

	var result []thumbsup.Group
	for rows.Next() {
		var group thumbsup.Group
		err := rows.Scan(&group.Voteable.Type, &group.Voteable.ID, &group.VoteCount, &group.VoteTotal)
		if err != nil {
			return nil, mapError(err, "scan group")
		}
		result = append(result, group)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate groups")
	}

	return result, nil
}

func (s *sqliteLedger) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sqlDB != nil {
		err := s.sqlDB.Close()
		s.sqlDB = nil

		return err
	}

	return nil
}

// db returns the open handle, or nil once Close has run.
func (s *sqliteLedger) db() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sqlDB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertVote(ctx context.Context, db execer, vote thumbsup.Vote) error {
	var dimension sql.NullString
	if vote.Dimension.Valid {
		dimension = sql.NullString{String: vote.Dimension.Name, Valid: true}
	}

	up := 0
	if vote.Up {
		up = 1
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO votes (`+voteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(vote.ID),
		vote.Voter.Type,
		vote.Voter.ID,
		vote.Voteable.Type,
		vote.Voteable.ID,
		up,
		dimension,
		toNanos(vote.CreatedAt),
	)

	return err
}

// whereClause renders filter as a parameterized WHERE clause, or an empty
// string when nothing constrains.
func whereClause(filter thumbsup.Filter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)

	add := func(condition string, values ...interface{}) {
		conditions = append(conditions, condition)
		args = append(args, values...)
	}

	if filter.Voter.Type != "" {
		add(`voter_type = ?`, filter.Voter.Type)
	}
	if filter.Voter.ID != "" {
		add(`voter_id = ?`, filter.Voter.ID)
	}
	if filter.Voteable.Type != "" {
		add(`voteable_type = ?`, filter.Voteable.Type)
	}
	if filter.Voteable.ID != "" {
		add(`voteable_id = ?`, filter.Voteable.ID)
	}
	if filter.Dimension != nil {
		if filter.Dimension.Valid {
			add(`dimension = ?`, filter.Dimension.Name)
		} else {
			add(`dimension IS NULL`)
		}
	}
	switch filter.Direction {
	case thumbsup.Up:
		add(`vote = 1`)
	case thumbsup.Down:
		add(`vote = 0`)
	}
	if !filter.CreatedAfter.IsZero() {
		add(`created_at >= ?`, toNanos(filter.CreatedAfter))
	}
	if !filter.CreatedBefore.IsZero() {
		add(`created_at <= ?`, toNanos(filter.CreatedBefore))
	}

	if len(conditions) == 0 {
		return "", nil
	}

	return ` WHERE ` + strings.Join(conditions, ` AND `), args
}

func prepare(vote thumbsup.Vote) thumbsup.Vote {
	if vote.ID == "" {
		vote.ID = thumbsup.VoteID(uuid.NewString())
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}

	return vote
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

func mapError(err error, message string) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3lib.SQLITE_CONSTRAINT_TRIGGER:
			return errors.Wrap(thumbsup.ErrConstraintViolation, message)

		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return errors.Wrap(thumbsup.ErrConflict, message)
		}
	}

	return errors.Wrap(err, message)
}

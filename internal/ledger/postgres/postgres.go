package postgres

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type voteModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	VoterType    string    `gorm:"column:voter_type;not null;index:idx_votes_voter,priority:1"`
	VoterID      string    `gorm:"column:voter_id;not null;index:idx_votes_voter,priority:2"`
	VoteableType string    `gorm:"column:voteable_type;not null;index:idx_votes_voteable,priority:1"`
	VoteableID   string    `gorm:"column:voteable_id;not null;index:idx_votes_voteable,priority:2"`
	Vote         bool      `gorm:"column:vote;not null"`
	Dimension    *string   `gorm:"column:dimension"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index:idx_votes_voteable,priority:3"`
}

func (voteModel) TableName() string {
	return "votes"
}

type groupRow struct {
	VoteableType string `gorm:"column:voteable_type"`
	VoteableID   string `gorm:"column:voteable_id"`
	VoteCount    int64  `gorm:"column:vote_count"`
	VoteTotal    int64  `gorm:"column:vote_total"`
}

const (
	countExpr = "COUNT(*)"
	totalExpr = "COALESCE(SUM(CASE WHEN vote THEN 1 ELSE -1 END), 0)"
)

type postgresLedger struct {
	mu sync.RWMutex
	db *gorm.DB
}

// Connect opens a gorm handle on dsn.
func Connect(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open gorm postgres")
	}

	return db, nil
}

func New(db *gorm.DB) thumbsup.Ledger {
	return &postgresLedger{db: db}
}

// Migrate creates the votes table and its indexes.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return errors.Wrap(db.WithContext(ctx).AutoMigrate(&voteModel{}), "migrate votes")
}

func (p *postgresLedger) Insert(ctx context.Context, vote thumbsup.Vote) (thumbsup.VoteID, error) {
	db := p.handle()
	if db == nil {
		return "", thumbsup.ErrClosed
	}

	row := modelFromVote(vote)
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", mapError(err, "insert vote")
	}

	return thumbsup.VoteID(row.ID), nil
}

// InsertExclusive serializes writers on the (voter, voteable, dimension)
// triple with a transaction-scoped advisory lock, so the clear and the insert
// observe each other.
func (p *postgresLedger) InsertExclusive(ctx context.Context,
	vote thumbsup.Vote) (thumbsup.VoteID, int64, error) {

	db := p.handle()
	if db == nil {
		return "", 0, thumbsup.ErrClosed
	}

	row := modelFromVote(vote)
	var removed int64

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", exclusiveLockKey(vote)).Error; err != nil {
			return err
		}

		result := tx.Scopes(filterScope(thumbsup.ExclusiveScope(vote))).Delete(&voteModel{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected

		return tx.Create(&row).Error
	})
	if err != nil {
		return "", 0, mapError(err, "insert exclusive vote")
	}

	return thumbsup.VoteID(row.ID), removed, nil
}

func (p *postgresLedger) DeleteMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	db := p.handle()
	if db == nil {
		return 0, thumbsup.ErrClosed
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	// gorm refuses unconditioned deletes unless asked explicitly
	result := db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Scopes(filterScope(filter)).
		Delete(&voteModel{})
	if result.Error != nil {
		return 0, mapError(result.Error, "delete votes")
	}

	return result.RowsAffected, nil
}

func (p *postgresLedger) CountMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	db := p.handle()
	if db == nil {
		return 0, thumbsup.ErrClosed
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	var count int64
	err := db.WithContext(ctx).
		Model(&voteModel{}).
		Scopes(filterScope(filter)).
		Count(&count).
		Error
	if err != nil {
		return 0, mapError(err, "count votes")
	}

	return count, nil
}

func (p *postgresLedger) Find(ctx context.Context, filter thumbsup.Filter) ([]thumbsup.Vote, error) {
	db := p.handle()
	if db == nil {
		return nil, thumbsup.ErrClosed
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var rows []voteModel
	err := db.WithContext(ctx).
		Scopes(filterScope(filter)).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, mapError(err, "find votes")
	}

	result := make([]thumbsup.Vote, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toVote())
	}

	return result, nil
}

func (p *postgresLedger) AggregateByGroup(ctx context.Context,
	query thumbsup.AggregateQuery) ([]thumbsup.Group, error) {

	db := p.handle()
	if db == nil {
		return nil, thumbsup.ErrClosed
	}
	if err := query.Filter.Validate(); err != nil {
		return nil, err
	}

	var rows []groupRow
	err := db.WithContext(ctx).
		Scopes(aggregateScope(query)).
		Scan(&rows).
		Error
	if err != nil {
		return nil, mapError(err, "aggregate votes")
	}

	result := make([]thumbsup.Group, 0, len(rows))
	for _, row := range rows {
		result = append(result, thumbsup.Group{
			Voteable:  thumbsup.Ref{Type: row.VoteableType, ID: row.VoteableID},
			VoteCount: row.VoteCount,
			VoteTotal: row.VoteTotal,
		})
	}

	return result, nil
}

func (p *postgresLedger) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	sqlDB, err := p.db.DB()
	p.db = nil
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (p *postgresLedger) handle() *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.db
}

func filterScope(filter thumbsup.Filter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&voteModel{})

		if filter.Voter.Type != "" {
			tx = tx.Where("voter_type = ?", filter.Voter.Type)
		}
		if filter.Voter.ID != "" {
			tx = tx.Where("voter_id = ?", filter.Voter.ID)
		}
		if filter.Voteable.Type != "" {
			tx = tx.Where("voteable_type = ?", filter.Voteable.Type)
		}
		if filter.Voteable.ID != "" {
			tx = tx.Where("voteable_id = ?", filter.Voteable.ID)
		}
		if filter.Dimension != nil {
			if filter.Dimension.Valid {
				tx = tx.Where("dimension = ?", filter.Dimension.Name)
			} else {
				tx = tx.Where("dimension IS NULL")
			}
		}
		switch filter.Direction {
		case thumbsup.Up:
			tx = tx.Where("vote = ?", true)
		case thumbsup.Down:
			tx = tx.Where("vote = ?", false)
		}
		if !filter.CreatedAfter.IsZero() {
			tx = tx.Where("created_at >= ?", filter.CreatedAfter.UTC())
		}
		if !filter.CreatedBefore.IsZero() {
			tx = tx.Where("created_at <= ?", filter.CreatedBefore.UTC())
		}

		return tx
	}
}

func aggregateScope(query thumbsup.AggregateQuery) func(*gorm.DB) *gorm.DB {
	metricExpr := countExpr
	if query.Metric == thumbsup.MetricNetScore {
		metricExpr = totalExpr
	}

	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Scopes(filterScope(query.Filter)).
			Select("voteable_type, voteable_id, " + countExpr + " AS vote_count, " + totalExpr + " AS vote_total").
			Group("voteable_type, voteable_id").
			Having(countExpr + " > 0")

		if query.AtLeast != nil {
			tx = tx.Having(metricExpr+" >= ?", *query.AtLeast)
		}
		if query.AtMost != nil {
			tx = tx.Having(metricExpr+" <= ?", *query.AtMost)
		}

		return tx.Order("voteable_type, voteable_id")
	}
}

func exclusiveLockKey(vote thumbsup.Vote) string {
	return strings.Join([]string{
		vote.Voter.Type, vote.Voter.ID,
		vote.Voteable.Type, vote.Voteable.ID,
		vote.Dimension.String(),
	}, "\x1f")
}

func modelFromVote(vote thumbsup.Vote) voteModel {
	row := voteModel{
		ID:           string(vote.ID),
		VoterType:    vote.Voter.Type,
		VoterID:      vote.Voter.ID,
		VoteableType: vote.Voteable.Type,
		VoteableID:   vote.Voteable.ID,
		Vote:         vote.Up,
		CreatedAt:    vote.CreatedAt.UTC(),
	}

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if vote.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if vote.Dimension.Valid {
		name := vote.Dimension.Name
		row.Dimension = &name
	}

	return row
}

func (m voteModel) toVote() thumbsup.Vote {
	vote := thumbsup.Vote{
		ID:        thumbsup.VoteID(m.ID),
		Voter:     thumbsup.Ref{Type: m.VoterType, ID: m.VoterID},
		Voteable:  thumbsup.Ref{Type: m.VoteableType, ID: m.VoteableID},
		Up:        m.Vote,
		CreatedAt: m.CreatedAt.UTC(),
	}

	if m.Dimension != nil {
		vote.Dimension = thumbsup.Dim(*m.Dimension)
	}

	return vote
}

func mapError(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return errors.Wrap(thumbsup.ErrConstraintViolation, message)
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return errors.Wrap(thumbsup.ErrConflict, message)
		}
	}

	return errors.Wrap(err, message)
}

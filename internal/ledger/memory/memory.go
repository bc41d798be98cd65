package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

type memoryLedger struct {
	mu     sync.RWMutex
	votes  []thumbsup.Vote
	closed bool
}

func New() thumbsup.Ledger {
	return &memoryLedger{}
}

func (m *memoryLedger) Insert(ctx context.Context, vote thumbsup.Vote) (thumbsup.VoteID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", thumbsup.ErrClosed
	}

	return m.append(vote), nil
}

func (m *memoryLedger) InsertExclusive(ctx context.Context,
	vote thumbsup.Vote) (thumbsup.VoteID, int64, error) {

	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", 0, thumbsup.ErrClosed
	}

	removed := m.remove(thumbsup.ExclusiveScope(vote))

	return m.append(vote), removed, nil
}

func (m *memoryLedger) DeleteMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, thumbsup.ErrClosed
	}

	return m.remove(filter), nil
}

func (m *memoryLedger) CountMatching(ctx context.Context, filter thumbsup.Filter) (int64, error) {
	votes, err := m.Find(ctx, filter)
	if err != nil {
		return 0, err
	}

	return int64(len(votes)), nil
}

func (m *memoryLedger) Find(ctx context.Context, filter thumbsup.Filter) ([]thumbsup.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, thumbsup.ErrClosed
	}

	var result []thumbsup.Vote
	for _, vote := range m.votes {
		if filter.Match(vote) {
			result = append(result, vote)
		}
	}

	return result, nil
}

func (m *memoryLedger) AggregateByGroup(ctx context.Context,
	query thumbsup.AggregateQuery) ([]thumbsup.Group, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := query.Filter.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, thumbsup.ErrClosed
	}

	return thumbsup.GroupVotes(m.votes, query), nil
}

func (m *memoryLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.votes = nil

	return nil
}

func (m *memoryLedger) append(vote thumbsup.Vote) thumbsup.VoteID {
	if vote.ID == "" {
		vote.ID = thumbsup.VoteID(uuid.NewString())
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}

	m.votes = append(m.votes, vote)

	return vote.ID
}

func (m *memoryLedger) remove(filter thumbsup.Filter) int64 {
	kept := m.votes[:0]
	var removed int64

	for _, vote := range m.votes {
		if filter.Match(vote) {
			removed++
			continue
		}
		kept = append(kept, vote)
	}

	m.votes = kept

	return removed
}

package thumbsup

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Mock_Ledger struct {
	mock.Mock
}

func (m *Mock_Ledger) Close() error {
	ret := m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (m *Mock_Ledger) Insert(ctx context.Context, vote Vote) (VoteID, error) {
	ret := m.Called(ctx, vote)

	var r0 VoteID
	if rf, ok := ret.Get(0).(func(ctx context.Context, vote Vote) VoteID); ok {
		r0 = rf(ctx, vote)
	} else {
		r0 = ret.Get(0).(VoteID)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, vote Vote) error); ok {
		r1 = rf(ctx, vote)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Ledger) InsertExclusive(ctx context.Context, vote Vote) (VoteID, int64, error) {
	ret := m.Called(ctx, vote)

	var r0 VoteID
	if rf, ok := ret.Get(0).(func(ctx context.Context, vote Vote) VoteID); ok {
		r0 = rf(ctx, vote)
	} else {
		r0 = ret.Get(0).(VoteID)
	}

	var r1 int64
	if rf, ok := ret.Get(1).(func(ctx context.Context, vote Vote) int64); ok {
		r1 = rf(ctx, vote)
	} else {
		r1 = ret.Get(1).(int64)
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(ctx context.Context, vote Vote) error); ok {
		r2 = rf(ctx, vote)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}

func (m *Mock_Ledger) DeleteMatching(ctx context.Context, filter Filter) (int64, error) {
	ret := m.Called(ctx, filter)

	var r0 int64
	if rf, ok := ret.Get(0).(func(ctx context.Context, filter Filter) int64); ok {
		r0 = rf(ctx, filter)
	} else {
		r0 = ret.Get(0).(int64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, filter Filter) error); ok {
		r1 = rf(ctx, filter)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Ledger) CountMatching(ctx context.Context, filter Filter) (int64, error) {
	ret := m.Called(ctx, filter)

	var r0 int64
	if rf, ok := ret.Get(0).(func(ctx context.Context, filter Filter) int64); ok {
		r0 = rf(ctx, filter)
	} else {
		r0 = ret.Get(0).(int64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, filter Filter) error); ok {
		r1 = rf(ctx, filter)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Ledger) Find(ctx context.Context, filter Filter) ([]Vote, error) {
	ret := m.Called(ctx, filter)

	var r0 []Vote
	if rf, ok := ret.Get(0).(func(ctx context.Context, filter Filter) []Vote); ok {
		r0 = rf(ctx, filter)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]Vote)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, filter Filter) error); ok {
		r1 = rf(ctx, filter)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Ledger) AggregateByGroup(ctx context.Context, query AggregateQuery) ([]Group, error) {
	ret := m.Called(ctx, query)

	var r0 []Group
	if rf, ok := ret.Get(0).(func(ctx context.Context, query AggregateQuery) []Group); ok {
		r0 = rf(ctx, query)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]Group)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, query AggregateQuery) error); ok {
		r1 = rf(ctx, query)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

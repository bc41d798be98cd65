package thumbsup

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Mock_Directory struct {
	mock.Mock
}

func (m *Mock_Directory) Exists(ctx context.Context, ref Ref) (bool, error) {
	ret := m.Called(ctx, ref)

	var r0 bool
	if rf, ok := ret.Get(0).(func(ctx context.Context, ref Ref) bool); ok {
		r0 = rf(ctx, ref)
	} else {
		r0 = ret.Bool(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, ref Ref) error); ok {
		r1 = rf(ctx, ref)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (m *Mock_Directory) Existing(ctx context.Context, entityType string, ids []string) ([]string, error) {
	ret := m.Called(ctx, entityType, ids)

	var r0 []string
	if rf, ok := ret.Get(0).(func(ctx context.Context, entityType string, ids []string) []string); ok {
		r0 = rf(ctx, entityType, ids)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]string)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(ctx context.Context, entityType string, ids []string) error); ok {
		r1 = rf(ctx, entityType, ids)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

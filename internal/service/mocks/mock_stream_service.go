package mocks

import (
	"context"

	"streamify/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockStreamService struct {
	mock.Mock
}

func (m *MockStreamService) Inspect(ctx context.Context, filename, rangeHeader string) (*service.Stream, error) {
	args := m.Called(ctx, filename, rangeHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Stream), args.Error(1)
}

func (m *MockStreamService) Open(ctx context.Context, filename, rangeHeader string) (*service.Stream, error) {
	args := m.Called(ctx, filename, rangeHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Stream), args.Error(1)
}

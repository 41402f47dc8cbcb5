package mocks

import (
	"context"

	"streamify/internal/model"
	"streamify/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockVideoRepository struct {
	mock.Mock
}

func (m *MockVideoRepository) Create(ctx context.Context, v *model.Video) (*model.Video, error) {
	args := m.Called(ctx, v)
	if f, ok := args.Get(0).(func(context.Context, *model.Video) *model.Video); ok {
		return f(ctx, v), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Video), args.Error(1)
}

func (m *MockVideoRepository) FindByID(ctx context.Context, id string) (*model.Video, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Video), args.Error(1)
}

func (m *MockVideoRepository) FindByFilename(ctx context.Context, filename string) (*model.Video, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Video), args.Error(1)
}

func (m *MockVideoRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Video], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Video]), args.Error(1)
}

func (m *MockVideoRepository) IncrementViews(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockVideoRepository) ToggleLike(ctx context.Context, videoID, userID string) (*model.LikeResult, error) {
	args := m.Called(ctx, videoID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LikeResult), args.Error(1)
}

func (m *MockVideoRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

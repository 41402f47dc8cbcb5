package mocks

import (
	"context"

	"streamify/internal/model"
	"streamify/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockVideoService struct {
	mock.Mock
}

func (m *MockVideoService) Upload(ctx context.Context, in service.UploadInput) (*model.Video, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Video), args.Error(1)
}

func (m *MockVideoService) List(ctx context.Context, q service.ListQuery) (*service.VideoListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VideoListResult), args.Error(1)
}

func (m *MockVideoService) Get(ctx context.Context, id, viewerID string) (*model.Video, error) {
	args := m.Called(ctx, id, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Video), args.Error(1)
}

func (m *MockVideoService) Delete(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockVideoService) RecordView(ctx context.Context, id, viewerID string) error {
	args := m.Called(ctx, id, viewerID)
	return args.Error(0)
}

func (m *MockVideoService) ToggleLike(ctx context.Context, id, userID string) (*model.LikeResult, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LikeResult), args.Error(1)
}

func (m *MockVideoService) StreamAllowed(ctx context.Context, filename, viewerID string) (bool, error) {
	args := m.Called(ctx, filename, viewerID)
	return args.Bool(0), args.Error(1)
}

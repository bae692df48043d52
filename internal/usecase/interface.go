package usecase

import (
	"context"

	"mei-diagnostic/internal/domain"
)

// Strategy is one network path to the diagnostic webhook. The usecase layer
// tries an ordered list of strategies and keeps the first body that succeeds.
//
//go:generate mockgen -destination=mocks/mock_repository.go -source=interface.go
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error)
}

// SnapshotRepository is the durable key/value storage behind SnapshotStore.
// Get returns domain.ErrSnapshotNotFound when the key is absent.
type SnapshotRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

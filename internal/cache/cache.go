package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// SnapshotCache keeps the last successfully loaded cart per session subject.
type SnapshotCache interface {
	Get(ctx context.Context, subject string) (*domain.CartSnapshot, error)
	Set(ctx context.Context, subject string, snapshot *domain.CartSnapshot) error
	Delete(ctx context.Context, subject string) error
}

var ErrCacheMiss = errors.New("cache miss")

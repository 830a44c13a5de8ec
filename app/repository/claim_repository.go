package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CollectFox/internal/pkg/cache"
)

// claimRepository implements ClaimRepository on top of Redis SET NX.
type claimRepository struct {
	// Note: This repository doesn't use GORM DB since it operates on Redis/Cache
}

// NewClaimRepository creates a new claim repository instance
func NewClaimRepository() ClaimRepository {
	return &claimRepository{}
}

// Claim returns true when the caller now owns key for ttl.
func (r *claimRepository) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return cache.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl)
}

// Release drops a claim, e.g. after the claimed send failed.
func (r *claimRepository) Release(ctx context.Context, key string) error {
	return cache.GetClient().Del(ctx, key).Err()
}

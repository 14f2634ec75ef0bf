package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gridserve/internal/repository"
)

// certMissSentinel marks a cached negative lookup so unknown certs do not
// hammer the database on every request.
const certMissSentinel = "-"

// Registry resolves certificate LFDIs to their aggregator assignments,
// caching results in redis for the configured TTL. Certificate changes made
// through the operator API become visible once the cache entry expires.
type Registry struct {
	certs  *repository.CertificateRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRegistry returns a registry backed by the certificate store and redis.
func NewRegistry(certs *repository.CertificateRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{certs: certs, cache: cache, ttl: ttl, logger: logger}
}

func registryKey(lfdi string) string {
	return "certreg:" + lfdi
}

// Resolve looks up the aggregator assignment for an LFDI. Returns
// repository.ErrNotFound for certificates with no assignment.
func (r *Registry) Resolve(ctx context.Context, lfdi string) (*repository.ClientIDDetails, error) {
	if cached, err := r.cache.Get(ctx, registryKey(lfdi)).Result(); err == nil {
		if cached == certMissSentinel {
			return nil, repository.ErrNotFound
		}
		var d repository.ClientIDDetails
		if err := json.Unmarshal([]byte(cached), &d); err == nil {
			return &d, nil
		}
		// Unreadable entry, fall through to the database.
	} else if err != redis.Nil {
		r.logger.Warn("cert registry cache read failed", zap.Error(err))
	}

	d, err := r.certs.ClientIDDetailsForLFDI(ctx, lfdi)
	if err == repository.ErrNotFound {
		if cacheErr := r.cache.Set(ctx, registryKey(lfdi), certMissSentinel, r.ttl).Err(); cacheErr != nil {
			r.logger.Warn("cert registry cache write failed", zap.Error(cacheErr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(d); err == nil {
		if cacheErr := r.cache.Set(ctx, registryKey(lfdi), payload, r.ttl).Err(); cacheErr != nil {
			r.logger.Warn("cert registry cache write failed", zap.Error(cacheErr))
		}
	}
	return d, nil
}

// Invalidate drops the cached entry for an LFDI after a certificate change.
func (r *Registry) Invalidate(ctx context.Context, lfdi string) {
	if err := r.cache.Del(ctx, registryKey(lfdi)).Err(); err != nil {
		r.logger.Warn("cert registry cache invalidation failed", zap.Error(err))
	}
}

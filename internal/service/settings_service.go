package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/rs/zerolog"
)

// CachedSettingsService implements ports.SettingsService: a TTL cache over
// the settings repository with explicit invalidation. The cache lifecycle is
// visible (value, fetchedAt, ttl) rather than hidden in package state.
type CachedSettingsService struct {
	repo ports.SettingsRepository
	ttl  time.Duration
	log  zerolog.Logger

	mu        sync.Mutex
	value     *domain.PlatformSettings
	fetchedAt time.Time
}

// NewSettingsService creates a settings accessor caching reads for ttl.
func NewSettingsService(repo ports.SettingsRepository, ttl time.Duration, log zerolog.Logger) *CachedSettingsService {
	return &CachedSettingsService{repo: repo, ttl: ttl, log: log}
}

// Get returns the platform settings, served from cache while fresh.
func (s *CachedSettingsService) Get(ctx context.Context) (*domain.PlatformSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value != nil && time.Since(s.fetchedAt) < s.ttl {
		return s.value, nil
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		// Serve the stale value if we have one rather than failing the caller.
		if s.value != nil {
			s.log.Warn().Err(err).Msg("settings refresh failed, serving stale value")
			return s.value, nil
		}
		return nil, fmt.Errorf("loading platform settings: %w", err)
	}

	s.value = settings
	s.fetchedAt = time.Now()
	return s.value, nil
}

// Invalidate drops the cached value; the next Get hits the repository.
// Must be called after any settings update.
func (s *CachedSettingsService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
	s.fetchedAt = time.Time{}
}

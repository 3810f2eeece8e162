package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExtractionConcurrencyConfig defines concurrency limits for extractions
type ExtractionConcurrencyConfig struct {
	MaxConcurrentPerFamily int           // Max concurrent extractions per adapter family
	QueueTimeout           time.Duration // Max time to wait for a slot
}

// DefaultConcurrencyConfig returns production-ready defaults
func DefaultConcurrencyConfig() *ExtractionConcurrencyConfig {
	return &ExtractionConcurrencyConfig{
		MaxConcurrentPerFamily: 4,
		QueueTimeout:           2 * time.Minute,
	}
}

// SourceSemaphore bounds concurrent extractions per adapter family, so one
// slow upstream cannot take every collector connection.
type SourceSemaphore struct {
	mu         sync.Mutex
	familySems map[string]chan struct{}
	active     map[string]int
	config     *ExtractionConcurrencyConfig
}

// NewSourceSemaphore creates a new per-family semaphore manager
func NewSourceSemaphore(config *ExtractionConcurrencyConfig) *SourceSemaphore {
	if config == nil {
		config = DefaultConcurrencyConfig()
	}
	if config.MaxConcurrentPerFamily <= 0 {
		config.MaxConcurrentPerFamily = DefaultConcurrencyConfig().MaxConcurrentPerFamily
	}
	return &SourceSemaphore{
		familySems: make(map[string]chan struct{}),
		active:     make(map[string]int),
		config:     config,
	}
}

func (s *SourceSemaphore) getOrCreate(family string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sem, exists := s.familySems[family]; exists {
		return sem
	}
	sem := make(chan struct{}, s.config.MaxConcurrentPerFamily)
	s.familySems[family] = sem
	return sem
}

// Acquire waits for a slot of the family. The returned release function
// must be called when the extraction is done.
func (s *SourceSemaphore) Acquire(ctx context.Context, family string) (func(), error) {
	queueCtx := ctx
	if s.config.QueueTimeout > 0 {
		var cancel context.CancelFunc
		queueCtx, cancel = context.WithTimeout(ctx, s.config.QueueTimeout)
		defer cancel()
	}

	sem := s.getOrCreate(family)
	select {
	case sem <- struct{}{}:
	case <-queueCtx.Done():
		return nil, fmt.Errorf("timeout waiting for extraction slot: family=%s: %w", family, queueCtx.Err())
	}

	s.mu.Lock()
	s.active[family]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.active[family]--
			s.mu.Unlock()
			<-sem
		})
	}, nil
}

// TryAcquire takes a slot without blocking
func (s *SourceSemaphore) TryAcquire(family string) (func(), bool) {
	sem := s.getOrCreate(family)
	select {
	case sem <- struct{}{}:
	default:
		return nil, false
	}

	s.mu.Lock()
	s.active[family]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.active[family]--
			s.mu.Unlock()
			<-sem
		})
	}, true
}

// ActiveCount returns the number of running extractions of a family
func (s *SourceSemaphore) ActiveCount(family string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[family]
}

// GetStats returns concurrency statistics
func (s *SourceSemaphore) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]int, len(s.active))
	for k, v := range s.active {
		active[k] = v
	}
	return map[string]interface{}{
		"config": map[string]interface{}{
			"maxConcurrentPerFamily": s.config.MaxConcurrentPerFamily,
			"queueTimeout":           s.config.QueueTimeout.String(),
		},
		"activeByFamily": active,
		"totalFamilies":  len(s.familySems),
	}
}

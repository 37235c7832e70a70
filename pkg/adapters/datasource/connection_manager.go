package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/retry"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// ConnectionManagerConfig tunes adapter caching.
type ConnectionManagerConfig struct {
	// TTL is how long an adapter may sit unused before it is closed.
	TTL time.Duration
	// Retry controls attempts when opening an adapter. Nil uses retry.DefaultConfig.
	Retry *retry.Config
}

type managedAdapter struct {
	adapter  Adapter
	engine   string
	mu       sync.Mutex
	lastUsed time.Time
}

func (m *managedAdapter) touch() {
	m.mu.Lock()
	m.lastUsed = time.Now()
	m.mu.Unlock()
}

func (m *managedAdapter) idle(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastUsed)
}

// ConnectionManager opens adapters lazily per db_id and reuses them until
// they sit idle longer than the TTL.
type ConnectionManager struct {
	mu       sync.RWMutex
	adapters map[string]*managedAdapter
	factory  func(engine string) Factory
	ttl      time.Duration
	retryCfg *retry.Config
	logger   *zap.Logger
	stopChan chan struct{}
	stopped  bool
}

// NewConnectionManager creates a manager and starts its idle sweeper.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m := &ConnectionManager{
		adapters: make(map[string]*managedAdapter),
		factory:  GetFactory,
		ttl:      ttl,
		retryCfg: cfg.Retry,
		logger:   logger.Named("connection_manager"),
		stopChan: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the cached adapter for dbID, opening it on first use.
func (m *ConnectionManager) Get(ctx context.Context, dbID, engine string, params map[string]any) (Adapter, error) {
	m.mu.RLock()
	if m.stopped {
		m.mu.RUnlock()
		return nil, fmt.Errorf("connection manager is closed")
	}
	if managed, ok := m.adapters[dbID]; ok && managed.engine == engine {
		m.mu.RUnlock()
		managed.touch()
		return managed.adapter, nil
	}
	m.mu.RUnlock()

	factory := m.factory(engine)
	if factory == nil {
		return nil, fmt.Errorf("unsupported engine: %s", engine)
	}

	adapter, err := retry.DoWithResult(ctx, m.retryCfg, func() (Adapter, error) {
		a, err := factory(ctx, params)
		if err != nil {
			return nil, err
		}
		if err := a.TestConnection(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		m.logger.Error("Failed to open datasource",
			zap.String("db_id", dbID),
			zap.String("engine", engine),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to connect to %s: %w", dbID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		_ = adapter.Close()
		return nil, fmt.Errorf("connection manager is closed")
	}
	// another caller won the race
	if existing, ok := m.adapters[dbID]; ok && existing.engine == engine {
		_ = adapter.Close()
		existing.touch()
		return existing.adapter, nil
	}
	if stale, ok := m.adapters[dbID]; ok {
		_ = stale.adapter.Close()
	}

	m.adapters[dbID] = &managedAdapter{adapter: adapter, engine: engine, lastUsed: time.Now()}
	m.logger.Info("Opened datasource",
		zap.String("db_id", dbID),
		zap.String("engine", engine),
		zap.Int("open_adapters", len(m.adapters)))
	return adapter, nil
}

// Evict closes and forgets the adapter for dbID.
func (m *ConnectionManager) Evict(dbID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, ok := m.adapters[dbID]; ok {
		_ = managed.adapter.Close()
		delete(m.adapters, dbID)
		m.logger.Debug("Evicted datasource", zap.String("db_id", dbID))
	}
}

func (m *ConnectionManager) cleanupLoop() {
	interval := DefaultCleanupInterval
	if m.ttl < interval {
		interval = m.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes adapters idle for longer than the TTL.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	closed := 0
	for dbID, managed := range m.adapters {
		if managed.idle(now) <= m.ttl {
			continue
		}
		if err := managed.adapter.Close(); err != nil {
			m.logger.Warn("Failed to close idle datasource", zap.String("db_id", dbID), zap.Error(err))
		}
		delete(m.adapters, dbID)
		closed++
	}

	if closed > 0 {
		m.logger.Info("Closed idle datasources",
			zap.Int("count", closed),
			zap.Int("remaining", len(m.adapters)))
	}
}

// Close closes every adapter and stops the sweeper. Safe to call more than once.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.stopChan)

	for dbID, managed := range m.adapters {
		if err := managed.adapter.Close(); err != nil {
			m.logger.Warn("Failed to close datasource", zap.String("db_id", dbID), zap.Error(err))
		}
	}
	m.adapters = make(map[string]*managedAdapter)
	m.logger.Info("Connection manager closed")
	return nil
}

// ConnectionStats describes the manager's open adapters.
type ConnectionStats struct {
	Open              int      `json:"open"`
	TTLMinutes        int      `json:"ttl_minutes"`
	DatabaseIDs       []string `json:"database_ids"`
	OldestIdleSeconds int      `json:"oldest_idle_seconds"`
}

// Stats returns a snapshot of open adapters.
func (m *ConnectionManager) Stats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		Open:        len(m.adapters),
		TTLMinutes:  int(m.ttl.Minutes()),
		DatabaseIDs: make([]string, 0, len(m.adapters)),
	}
	for dbID, managed := range m.adapters {
		stats.DatabaseIDs = append(stats.DatabaseIDs, dbID)
		if idle := int(managed.idle(now).Seconds()); idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	sort.Strings(stats.DatabaseIDs)
	return stats
}

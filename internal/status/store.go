// Package status 发布爬取运行状态, 供外部观察进度
package status

import (
	"context"
	"sync"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
)

// Store 保存运行状态
type Store interface {
	SetStatus(ctx context.Context, status models.CrawlStatus) error
	GetStatus(ctx context.Context, runID string) (models.CrawlStatus, bool, error)
}

// MemoryStore 进程内状态存储
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.CrawlStatus
	history []models.CrawlStatus
}

// NewMemoryStore 创建进程内状态存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.CrawlStatus)}
}

// SetStatus 实现Store接口
func (m *MemoryStore) SetStatus(ctx context.Context, status models.CrawlStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[status.RunID] = status
	m.history = append(m.history, status)
	return nil
}

// GetStatus 实现Store接口
func (m *MemoryStore) GetStatus(ctx context.Context, runID string) (models.CrawlStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.records[runID]
	return s, ok, nil
}

// History 按发布顺序返回全部状态
func (m *MemoryStore) History() []models.CrawlStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.CrawlStatus, len(m.history))
	copy(out, m.history)
	return out
}

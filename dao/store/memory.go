package store

import (
	"context"
	"sync"
	"time"

	"T2V/models"
)

// MemoryStore 内存实现，语义与 RedisStore 对齐：
// 共享TTL、终态保护、悬挂列表条目自愈。用于测试和无 Redis 的本地开发。
type MemoryStore struct {
	mu         sync.Mutex
	tasks      map[string]*memoryEntry
	byProvider map[string]string
	recent     []string // 按创建先后追加
	ttl        time.Duration

	now func() time.Time
}

type memoryEntry struct {
	task      models.Task
	expiresAt time.Time
}

// NewMemoryStore 创建内存任务存储
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tasks:      make(map[string]*memoryEntry),
		byProvider: make(map[string]string),
		ttl:        ttl,
		now:        time.Now,
	}
}

// live 返回未过期的条目，过期条目连同上游索引一起清掉
func (s *MemoryStore) live(taskID string) *memoryEntry {
	e, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.tasks, taskID)
		delete(s.byProvider, e.task.ProviderTaskID)
		return nil
	}
	return e
}

func (s *MemoryStore) Create(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.TaskID] = &memoryEntry{task: cp, expiresAt: s.now().Add(s.ttl)}
	s.byProvider[t.ProviderTaskID] = t.TaskID
	s.recent = append(s.recent, t.TaskID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(taskID)
	if e == nil {
		return nil, models.ErrTaskNotFound
	}
	cp := e.task
	return &cp, nil
}

func (s *MemoryStore) ResolveProviderID(_ context.Context, providerTaskID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byProvider[providerTaskID]
	if !ok {
		return "", models.ErrTaskNotFound
	}
	if s.live(id) == nil {
		return "", models.ErrTaskNotFound
	}
	return id, nil
}

func (s *MemoryStore) ApplyStatus(_ context.Context, taskID string, upd StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(taskID)
	if e == nil {
		return false, nil
	}
	if models.IsTerminal(e.task.Status) {
		return false, nil
	}
	if upd.Status != "" {
		e.task.Status = upd.Status
	}
	if upd.Progress != -1 {
		e.task.Progress = upd.Progress
	}
	if upd.OriginVideoURL != "" {
		e.task.OriginVideoURL = upd.OriginVideoURL
	}
	if upd.Error != "" {
		e.task.Error = upd.Error
	}
	e.expiresAt = s.now().Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) SetLocalVideo(_ context.Context, taskID, localURL string) error {
	// 转存成功，清掉之前重试失败留下的软错误
	return s.setField(taskID, func(t *models.Task) {
		t.LocalVideoURL = localURL
		t.Error = ""
	})
}

func (s *MemoryStore) SetDownloadError(_ context.Context, taskID, msg string) error {
	return s.setField(taskID, func(t *models.Task) { t.Error = msg })
}

func (s *MemoryStore) setField(taskID string, set func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(taskID)
	if e == nil {
		return models.ErrTaskNotFound
	}
	set(&e.task)
	e.expiresAt = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]*models.Task, 0, limit)
	kept := s.recent[:0]
	// 先从尾部（最新）收集，过期条目剪掉
	for i := len(s.recent) - 1; i >= 0; i-- {
		id := s.recent[i]
		e := s.live(id)
		if e == nil {
			continue
		}
		if len(tasks) < limit {
			cp := e.task
			tasks = append(tasks, &cp)
		}
	}
	for _, id := range s.recent {
		if _, ok := s.tasks[id]; ok {
			kept = append(kept, id)
		}
	}
	s.recent = kept
	return tasks, nil
}

func (s *MemoryStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(taskID)
	if e == nil {
		return models.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	delete(s.byProvider, e.task.ProviderTaskID)
	for i, id := range s.recent {
		if id == taskID {
			s.recent = append(s.recent[:i], s.recent[i+1:]...)
			break
		}
	}
	return nil
}

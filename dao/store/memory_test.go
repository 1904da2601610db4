package store

import (
	"context"
	"testing"
	"time"

	"T2V/models"
)

func makeTask(id, pid string, createdAt int64) *models.Task {
	return &models.Task{
		TaskID:         id,
		ProviderTaskID: pid,
		Mode:           models.ModeT2V,
		Prompt:         "prompt:" + id,
		Duration:       5,
		AspectRatio:    "16:9",
		Status:         models.StatusQueued,
		CreatedAt:      createdAt,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := s.Create(ctx, makeTask("t1", "p1", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusQueued || got.ProviderTaskID != "p1" {
		t.Fatalf("unexpected task: %+v", got)
	}

	if _, err := s.Get(ctx, "nope"); err != models.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestResolveProviderID(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	id, err := s.ResolveProviderID(ctx, "p1")
	if err != nil || id != "t1" {
		t.Fatalf("resolve = %q, %v; want t1, nil", id, err)
	}
	if _, err := s.ResolveProviderID(ctx, "unknown"); err != models.ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestApplyStatusForward(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	applied, err := s.ApplyStatus(ctx, "t1", StatusUpdate{Status: models.StatusRunning, Progress: 40})
	if err != nil || !applied {
		t.Fatalf("apply = %v, %v", applied, err)
	}
	got, _ := s.Get(ctx, "t1")
	if got.Status != models.StatusRunning || got.Progress != 40 {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestApplyStatusTerminalSticky(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	applied, _ := s.ApplyStatus(ctx, "t1", StatusUpdate{
		Status: models.StatusSuccess, Progress: 100, OriginVideoURL: "https://cdn/x.mp4",
	})
	if !applied {
		t.Fatal("first terminal write should apply")
	}

	// 晚到的 running 事件不能覆盖终态
	applied, err := s.ApplyStatus(ctx, "t1", StatusUpdate{Status: models.StatusRunning, Progress: 50})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatal("late running event must not overwrite terminal state")
	}

	// 重复投递同一个终态也必须是 no-op
	applied, _ = s.ApplyStatus(ctx, "t1", StatusUpdate{
		Status: models.StatusSuccess, Progress: 100, OriginVideoURL: "https://cdn/other.mp4",
	})
	if applied {
		t.Fatal("duplicate terminal event must be a no-op")
	}

	got, _ := s.Get(ctx, "t1")
	if got.Status != models.StatusSuccess || got.Progress != 100 || got.OriginVideoURL != "https://cdn/x.mp4" {
		t.Fatalf("task corrupted by duplicate delivery: %+v", got)
	}
}

func TestApplyStatusUnknownTask(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	applied, err := s.ApplyStatus(context.Background(), "ghost", StatusUpdate{Status: models.StatusRunning, Progress: -1})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatal("unknown task must not apply")
	}
}

func TestApplyStatusKeepsUnsetFields(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))
	s.ApplyStatus(ctx, "t1", StatusUpdate{Status: models.StatusRunning, Progress: 30})

	// 只带进度的事件不应该动状态
	s.ApplyStatus(ctx, "t1", StatusUpdate{Status: "", Progress: 55})
	got, _ := s.Get(ctx, "t1")
	if got.Status != models.StatusRunning || got.Progress != 55 {
		t.Fatalf("unexpected task: %+v", got)
	}

	// Progress -1 表示不更新
	s.ApplyStatus(ctx, "t1", StatusUpdate{Status: "", Progress: -1})
	got, _ = s.Get(ctx, "t1")
	if got.Progress != 55 {
		t.Fatalf("progress should be untouched, got %d", got.Progress)
	}
}

func TestTTLExpiryOrphansBothIndexes(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	now := time.Now()
	s.now = func() time.Time { return now.Add(2 * time.Minute) }

	if _, err := s.Get(ctx, "t1"); err != models.ErrTaskNotFound {
		t.Fatalf("expected expired task to be not found, got %v", err)
	}
	if _, err := s.ResolveProviderID(ctx, "p1"); err != models.ErrTaskNotFound {
		t.Fatalf("provider index must expire with the record, got %v", err)
	}
}

func TestWriteRefreshesTTL(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	base := time.Now()
	// 40秒后写一次，TTL 应该从写入点重新计时
	s.now = func() time.Time { return base.Add(40 * time.Second) }
	if _, err := s.ApplyStatus(ctx, "t1", StatusUpdate{Status: models.StatusRunning, Progress: -1}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	s.now = func() time.Time { return base.Add(90 * time.Second) }
	if _, err := s.Get(ctx, "t1"); err != nil {
		t.Fatalf("task should survive, TTL was refreshed: %v", err)
	}

	s.now = func() time.Time { return base.Add(3 * time.Minute) }
	if _, err := s.Get(ctx, "t1"); err != models.ErrTaskNotFound {
		t.Fatal("task should eventually expire")
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))
	s.Create(ctx, makeTask("t2", "p2", 2))
	s.Create(ctx, makeTask("t3", "p3", 3))

	tasks, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].TaskID != "t3" || tasks[1].TaskID != "t2" {
		t.Fatalf("unexpected order: %+v", tasks)
	}
}

func TestListRecentPrunesDangling(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	base := time.Now()
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	s.Create(ctx, makeTask("t2", "p2", 2))

	// t1 过期，t2 还在
	s.now = func() time.Time { return base.Add(80 * time.Second) }
	tasks, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != "t2" {
		t.Fatalf("dangling entry should be pruned, got %+v", tasks)
	}
	if len(s.recent) != 1 {
		t.Fatalf("recent index should self-heal, got %v", s.recent)
	}
}

func TestDelete(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	s.Create(ctx, makeTask("t1", "p1", 1))

	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "t1"); err != models.ErrTaskNotFound {
		t.Fatal("task should be gone")
	}
	if _, err := s.ResolveProviderID(ctx, "p1"); err != models.ErrTaskNotFound {
		t.Fatal("provider index should be gone")
	}
	if err := s.Delete(ctx, "t1"); err != models.ErrTaskNotFound {
		t.Fatalf("double delete should be not found, got %v", err)
	}
}

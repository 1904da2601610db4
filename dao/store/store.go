package store

import (
	"context"

	"T2V/models"
)

// 键空间按实体类型划分：任务主记录、上游ID反查索引、按创建时间排序的最近列表
const (
	taskKeyPrefix     = "video:task:"
	providerKeyPrefix = "video:provider:"
	recentKey         = "video:tasks:recent"
)

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func providerKey(pid string) string {
	return providerKeyPrefix + pid
}

// StatusUpdate 回调驱动的一次状态写入。
// Status 为空表示不改状态，Progress 为 -1 表示不改进度。
type StatusUpdate struct {
	Status         string
	Progress       int
	OriginVideoURL string
	Error          string
}

// TaskStore 任务持久化接口。
//
// 约定：
//   - 主记录和上游ID索引共用同一个TTL，任何写入都同时刷新两者；
//   - ApplyStatus 是原子操作，终态（success/fail）一旦写入不允许回退，
//     对终态任务的再次写入返回 applied=false 而不是错误；
//   - ListRecent 容忍最近列表里的悬挂条目（主记录已过期），直接剪掉。
type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, taskID string) (*models.Task, error)
	ResolveProviderID(ctx context.Context, providerTaskID string) (string, error)
	ApplyStatus(ctx context.Context, taskID string, upd StatusUpdate) (applied bool, err error)
	SetLocalVideo(ctx context.Context, taskID, localURL string) error
	SetDownloadError(ctx context.Context, taskID, msg string) error
	ListRecent(ctx context.Context, limit int) ([]*models.Task, error)
	Delete(ctx context.Context, taskID string) error
}

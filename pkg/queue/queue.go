package queue

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// DownloadJob 结果文件转存任务
type DownloadJob struct {
	TaskID    string `json:"task_id"`
	SourceURL string `json:"source_url"`
}

// DownloadQueue 下载任务队列最小接口。
// Publish 不能阻塞回调处理路径；Consume 阻塞运行直到队列关闭，
// handler 返回 nil 表示处理成功，非 nil 由实现决定是否重试。
type DownloadQueue interface {
	Publish(job DownloadJob) error
	Consume(handler func(job DownloadJob) error) error
	Close() error
}

// ErrQueueFull 内存队列已满，调用方记软错误而不是阻塞
var ErrQueueFull = errors.New("download queue full")

// --- 内存实现 ---------------------------------------------------------
// 未配置 AMQP 时的进程内回退实现，重启丢任务，上游托管地址兜底。

type memoryQueue struct {
	jobs      chan DownloadJob
	closeOnce sync.Once
}

// NewMemoryQueue 创建进程内下载队列
func NewMemoryQueue(buffer int) DownloadQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &memoryQueue{jobs: make(chan DownloadJob, buffer)}
}

func (q *memoryQueue) Publish(job DownloadJob) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *memoryQueue) Consume(handler func(job DownloadJob) error) error {
	// 并发控制，和 AMQP 实现的 prefetch 保持一致
	sem := make(chan struct{}, downloadConcurrency)
	var wg sync.WaitGroup
	for job := range q.jobs {
		sem <- struct{}{}
		wg.Add(1)
		go func(j DownloadJob) {
			defer func() { <-sem; wg.Done() }()
			if err := handler(j); err != nil {
				zap.L().Warn("download job failed",
					zap.String("task_id", j.TaskID), zap.Error(err))
			}
		}(job)
	}
	wg.Wait()
	return nil
}

func (q *memoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.jobs) })
	return nil
}

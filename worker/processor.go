package worker

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"T2V/dao/store"
	"T2V/pkg/queue"
	"T2V/pkg/sse"

	"go.uber.org/zap"
)

// Downloader 结果文件下载最小接口
type Downloader interface {
	Download(ctx context.Context, srcURL, destPath string) error
}

// Processor 消费下载队列，把上游结果文件转存到本地。
// 下载失败只在任务上记软错误，不改任务状态——生成本身是成功的，
// 上游托管地址仍然可用。
type Processor struct {
	queue        queue.DownloadQueue
	dl           Downloader
	store        store.TaskStore
	hub          *sse.Hub
	videoDir     string
	staticPrefix string
	timeout      time.Duration
}

// NewProcessor 创建下载处理器
func NewProcessor(q queue.DownloadQueue, dl Downloader, s store.TaskStore, hub *sse.Hub, videoDir, staticPrefix string, timeout time.Duration) *Processor {
	return &Processor{
		queue:        q,
		dl:           dl,
		store:        s,
		hub:          hub,
		videoDir:     videoDir,
		staticPrefix: strings.TrimRight(staticPrefix, "/"),
		timeout:      timeout,
	}
}

// Run 阻塞消费直到队列关闭，应在单独的 goroutine 中运行
func (p *Processor) Run() {
	if err := p.queue.Consume(p.process); err != nil {
		zap.L().Error("download consumer stopped", zap.Error(err))
	}
}

func (p *Processor) process(job queue.DownloadJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	filename := job.TaskID + ".mp4"
	destPath := filepath.Join(p.videoDir, filename)

	if err := p.dl.Download(ctx, job.SourceURL, destPath); err != nil {
		zap.L().Warn("artifact download failed",
			zap.String("task_id", job.TaskID),
			zap.String("source_url", job.SourceURL),
			zap.Error(err))
		if serr := p.store.SetDownloadError(ctx, job.TaskID, err.Error()); serr != nil {
			zap.L().Error("failed to record download error",
				zap.String("task_id", job.TaskID), zap.Error(serr))
		}
		return err
	}

	localURL := p.staticPrefix + "/" + filename
	if err := p.store.SetLocalVideo(ctx, job.TaskID, localURL); err != nil {
		zap.L().Error("failed to record local video url",
			zap.String("task_id", job.TaskID), zap.Error(err))
		return err
	}

	zap.L().Info("artifact re-hosted",
		zap.String("task_id", job.TaskID),
		zap.String("local_url", localURL))

	if p.hub != nil {
		p.hub.Publish(sse.Event{
			TaskID:   job.TaskID,
			Status:   "success",
			Progress: 100,
			VideoURL: localURL,
		})
	}
	return nil
}

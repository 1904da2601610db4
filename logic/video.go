package logic

import (
	"context"
	"strings"
	"time"

	"T2V/dao/store"
	"T2V/models"
	"T2V/pkg/provider"
	"T2V/pkg/queue"
	"T2V/pkg/snowflake"
	"T2V/pkg/sse"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 批量并发上限，单个批次不能打爆上游或耗尽本地socket
const (
	defaultBatchConcurrency = 10
	maxBatchConcurrency     = 30
)

// ProviderAPI 上游客户端最小接口
type ProviderAPI interface {
	CreateTask(ctx context.Context, p provider.CreateTaskParams) (string, error)
}

// Service 任务生命周期管理。所有依赖启动时注入，不走包级单例。
type Service struct {
	store            store.TaskStore
	upstream         ProviderAPI
	downloads        queue.DownloadQueue
	hub              *sse.Hub
	callbackURL      string
	batchConcurrency int
}

// NewService 创建服务
func NewService(s store.TaskStore, up ProviderAPI, dl queue.DownloadQueue, hub *sse.Hub, callbackURL string, batchConcurrency int) *Service {
	if batchConcurrency <= 0 {
		batchConcurrency = defaultBatchConcurrency
	}
	return &Service{
		store:            s,
		upstream:         up,
		downloads:        dl,
		hub:              hub,
		callbackURL:      callbackURL,
		batchConcurrency: batchConcurrency,
	}
}

// normalize 校验请求并翻译成上游参数。
// 表外的画幅/时长直接拒绝，不做兜底转换；
// i2v 模式 image_url 优先折叠成单元素列表，其次取 image_urls。
func normalize(req *models.CreateVideoRequest) (provider.TaskInput, string, error) {
	model, ok := models.ProviderModel(req.Mode)
	if !ok {
		return provider.TaskInput{}, "", models.NewValidationError("mode", "must be t2v or i2v")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return provider.TaskInput{}, "", models.NewValidationError("prompt", "must not be empty")
	}
	duration, ok := models.ProviderDuration(req.Duration)
	if !ok {
		return provider.TaskInput{}, "", models.NewValidationError("duration", "unsupported value")
	}
	aspect, ok := models.ProviderAspectRatio(req.AspectRatio)
	if !ok {
		return provider.TaskInput{}, "", models.NewValidationError("aspect_ratio", "unsupported value")
	}

	var images []string
	if req.Mode == models.ModeI2V {
		if req.ImageURL != "" {
			images = []string{req.ImageURL}
		} else {
			for _, u := range req.ImageURLs {
				if u != "" {
					images = append(images, u)
				}
			}
		}
		if len(images) == 0 {
			return provider.TaskInput{}, "", models.NewValidationError("image_url", "image-to-video requires at least one image")
		}
	}

	return provider.TaskInput{
		Prompt:          prompt,
		ImageURLs:       images,
		AspectRatio:     aspect,
		Duration:        duration,
		CharacterIDList: req.CharacterIDList,
	}, model, nil
}

// CreateTask 创建单个生成任务。先调上游，上游失败就不落库，
// 不允许出现没有上游ID的孤儿任务。
func (s *Service) CreateTask(ctx context.Context, req *models.CreateVideoRequest) (string, error) {
	input, model, err := normalize(req)
	if err != nil {
		return "", err
	}

	// 客户端断开不取消进行中的创建：上游一旦受理就必须落库，
	// 否则上游侧留下孤儿任务，后续回调全按未知任务丢弃。
	// 上游调用本身有客户端超时兜底。
	ctx = context.WithoutCancel(ctx)

	taskID, err := snowflake.GetID()
	if err != nil {
		return "", err
	}

	providerTaskID, err := s.upstream.CreateTask(ctx, provider.CreateTaskParams{
		Model:       model,
		CallbackURL: s.callbackURL,
		Input:       input,
	})
	if err != nil {
		zap.L().Error("provider task creation failed",
			zap.String("task_id", taskID), zap.Error(err))
		return "", err
	}

	t := &models.Task{
		TaskID:         taskID,
		ProviderTaskID: providerTaskID,
		Mode:           req.Mode,
		Prompt:         input.Prompt,
		InputImages:    input.ImageURLs,
		Duration:       req.Duration,
		AspectRatio:    req.AspectRatio,
		Status:         models.StatusQueued,
		Progress:       0,
		CreatedAt:      time.Now().Unix(),
	}
	if err := s.store.Create(ctx, t); err != nil {
		zap.L().Error("failed to persist task",
			zap.String("task_id", taskID),
			zap.String("provider_task_id", providerTaskID),
			zap.Error(err))
		return "", err
	}

	zap.L().Info("task created",
		zap.String("task_id", taskID),
		zap.String("provider_task_id", providerTaskID),
		zap.String("mode", req.Mode))
	return taskID, nil
}

// CreateBatch 批量创建。单个任务失败不影响其他任务，
// results 的顺序严格等于提交顺序，和完成先后无关。
func (s *Service) CreateBatch(ctx context.Context, req *models.BatchCreateRequest) *models.BatchCreateResponse {
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.batchConcurrency
	}
	if concurrency > maxBatchConcurrency {
		concurrency = maxBatchConcurrency
	}

	results := make([]models.BatchItemResult, len(req.Jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range req.Jobs {
		i := i
		job := req.Jobs[i]
		g.Go(func() error {
			taskID, err := s.CreateTask(gctx, &job)
			if err != nil {
				results[i] = models.BatchItemResult{Index: i, OK: false, Error: err.Error()}
				return nil // 错误隔离在自己的槽位里，不取消兄弟任务
			}
			results[i] = models.BatchItemResult{Index: i, OK: true, TaskID: taskID}
			return nil
		})
	}
	_ = g.Wait()

	accepted := 0
	for _, r := range results {
		if r.OK {
			accepted++
		}
	}
	return &models.BatchCreateResponse{
		Accepted:    accepted,
		Concurrency: concurrency,
		Results:     results,
	}
}

// GetTask 状态查询
func (s *Service) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return s.store.Get(ctx, taskID)
}

// ListTasks 按创建时间倒序列出最近任务
func (s *Service) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	return s.store.ListRecent(ctx, limit)
}

// DeleteTask 删除任务记录
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	return s.store.Delete(ctx, taskID)
}

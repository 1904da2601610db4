package logic

import (
	"context"
	"errors"

	"T2V/dao/store"
	"T2V/models"
	"T2V/pkg/queue"
	"T2V/pkg/sse"

	"go.uber.org/zap"
)

// 上游各家叫法不一致，统一归一到本地状态集
var stateAliases = map[string]string{
	"queued":     models.StatusQueued,
	"waiting":    models.StatusQueued,
	"running":    models.StatusRunning,
	"generating": models.StatusRunning,
	"processing": models.StatusRunning,
	"success":    models.StatusSuccess,
	"succeeded":  models.StatusSuccess,
	"fail":       models.StatusFail,
	"failed":     models.StatusFail,
}

// HandleCallback 处理上游回调。
//
// 上游对非2xx响应会激进重试，所以这里任何内部失败都只记日志，
// 不向调用方暴露：未知任务、过期任务、乱序重复投递统统吞掉。
// 终态保护在存储层，晚到的 queued/running 不会覆盖 success/fail。
func (s *Service) HandleCallback(ctx context.Context, payload *models.CallbackPayload) {
	providerTaskID := payload.Data.TaskID
	if providerTaskID == "" {
		zap.L().Warn("callback missing taskId, ignoring")
		return
	}

	taskID, err := s.store.ResolveProviderID(ctx, providerTaskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			// 未知或已过期的上游任务，确认收到但不做任何事
			zap.L().Warn("callback for unknown provider task",
				zap.String("provider_task_id", providerTaskID))
		} else {
			zap.L().Error("failed to resolve provider task",
				zap.String("provider_task_id", providerTaskID), zap.Error(err))
		}
		return
	}

	status := stateAliases[payload.Data.State]
	upd := store.StatusUpdate{
		Status:   status,
		Progress: normalizeProgress(payload.Data.Progress),
	}

	var resultURL string
	switch status {
	case models.StatusSuccess:
		upd.Progress = 100
		resultURL = payload.Data.ResultURL()
		if resultURL == "" {
			// 生成成功但拿不到结果地址，记软错误，回调本身照常确认
			upd.Error = "callback missing result url"
			zap.L().Warn("success callback without result url",
				zap.String("task_id", taskID))
		} else {
			upd.OriginVideoURL = resultURL
		}
	case models.StatusFail:
		upd.Error = payload.FailureMessage()
	case "":
		if payload.Data.State != "" {
			zap.L().Warn("callback with unknown state",
				zap.String("task_id", taskID),
				zap.String("state", payload.Data.State))
		}
	}

	applied, err := s.store.ApplyStatus(ctx, taskID, upd)
	if err != nil {
		zap.L().Error("failed to apply callback",
			zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if !applied {
		// 重复投递或任务已到终态
		zap.L().Info("callback ignored (terminal or expired)",
			zap.String("task_id", taskID),
			zap.String("state", payload.Data.State))
		return
	}

	if s.hub != nil {
		s.hub.Publish(sse.Event{
			TaskID:   taskID,
			Status:   status,
			Progress: upd.Progress,
			VideoURL: resultURL,
			Error:    upd.Error,
		})
	}

	// 成功后转存结果文件。只入队不等待，回调响应不能被下载拖住
	if status == models.StatusSuccess && resultURL != "" {
		job := queue.DownloadJob{TaskID: taskID, SourceURL: resultURL}
		if err := s.downloads.Publish(job); err != nil {
			zap.L().Error("failed to enqueue download",
				zap.String("task_id", taskID), zap.Error(err))
			if serr := s.store.SetDownloadError(ctx, taskID, "failed to schedule download: "+err.Error()); serr != nil {
				zap.L().Error("failed to record download error",
					zap.String("task_id", taskID), zap.Error(serr))
			}
		}
	}
}

// normalizeProgress 进度归一化到 0-100，<=1 的值按比例处理，缺省为 -1（不更新）
func normalizeProgress(p *float64) int {
	if p == nil {
		return -1
	}
	v := *p
	if v <= 1.0 {
		v *= 100
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(v)
}

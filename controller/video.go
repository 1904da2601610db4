package controller

import (
	"errors"
	"net/http"
	"strconv"

	"T2V/logic"
	"T2V/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler 视频任务相关的 gin 处理器，依赖启动时注入
type Handler struct {
	svc *logic.Service
}

// NewHandler 创建 Handler
func NewHandler(svc *logic.Service) *Handler {
	return &Handler{svc: svc}
}

// CreateVideo 创建单个生成任务
// POST /video/create
func (h *Handler) CreateVideo(c *gin.Context) {
	var req models.CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zap.L().Warn("create video with invalid param", zap.Error(err))
		// validator 错误给出字段级信息，其他绑定错误统一提示
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errs.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	taskID, err := h.svc.CreateTask(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID})
}

// BatchCreate 批量创建，结果顺序与提交顺序一致
// POST /video/batch_create
func (h *Handler) BatchCreate(c *gin.Context) {
	var req models.BatchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zap.L().Warn("batch create with invalid param", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(req.Jobs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobs must not be empty"})
		return
	}

	resp := h.svc.CreateBatch(c.Request.Context(), &req)
	c.JSON(http.StatusOK, resp)
}

// GetStatus 轮询任务状态
// GET /video/status?task_id=
func (h *Handler) GetStatus(c *gin.Context) {
	taskID := c.Query("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id is required"})
		return
	}

	t, err := h.svc.GetTask(c.Request.Context(), taskID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"status":   t.Status,
		"progress": t.Progress,
	}
	if url := t.VideoURL(); url != "" {
		resp["video_url"] = url
	}
	if t.Error != "" {
		resp["error"] = t.Error
	}
	c.JSON(http.StatusOK, resp)
}

// ListVideos 按创建时间倒序列出最近任务
// GET /video/list?limit=
func (h *Handler) ListVideos(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	tasks, err := h.svc.ListTasks(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	summaries := make([]models.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, t.Summary())
	}
	c.JSON(http.StatusOK, gin.H{"tasks": summaries})
}

// DeleteTask 删除任务
// DELETE /tasks/:id
func (h *Handler) DeleteTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := h.svc.DeleteTask(c.Request.Context(), taskID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": taskID})
}

// writeError 错误分类到HTTP状态码：参数错误400，上游故障502，
// 未知任务404，其余500
func writeError(c *gin.Context, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
		return
	}
	var ue *models.UpstreamError
	if errors.As(err, &ue) {
		c.JSON(http.StatusBadGateway, gin.H{"error": ue.Error()})
		return
	}
	if errors.Is(err, models.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	zap.L().Error("internal error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

package controller

import (
	"net/http"

	"T2V/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProviderCallback 上游状态回调入口。
// 无论内部处理结果如何一律返回 200 {ok:true}——上游对非2xx
// 激进重试，解析失败和未知任务都不能把错误抛回去放大重试风暴。
// POST /callback
func (h *Handler) ProviderCallback(c *gin.Context) {
	var payload models.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		zap.L().Warn("malformed callback payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	h.svc.HandleCallback(c.Request.Context(), &payload)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

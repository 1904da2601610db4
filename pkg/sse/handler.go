package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler 返回按任务ID订阅事件流的 gin 处理器，
// 例如 GET /video/events?task_id=123
func Handler(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Query("task_id")
		if taskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "task_id is required"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		ch := h.Subscribe(taskID)
		defer h.Unsubscribe(taskID, ch)

		// 初次握手 / 保活注释，部分代理需要
		fmt.Fprintf(c.Writer, ": connected\n\n")
		flusher.Flush()

		notify := c.Request.Context().Done()
		for {
			select {
			case <-notify:
				return
			case ev := <-ch:
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(c.Writer, "data: %s\n\n", b)
				flusher.Flush()
			}
		}
	}
}

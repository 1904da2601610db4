package models

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound 任务不存在或已过期
var ErrTaskNotFound = errors.New("task not found")

// ValidationError 请求参数非法，对应 4xx，不重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError 构造参数错误
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError 上游服务拒绝或响应异常，对应 502
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// DownloadError 结果文件转存失败。不影响任务状态，只记录软错误，
// 上游托管地址仍可作为兜底。
type DownloadError struct {
	URL     string
	Message string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed: %s", e.URL, e.Message)
}

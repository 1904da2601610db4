package models

// 任务状态常量，只允许单向推进 queued -> running -> success|fail
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// IsTerminal 终态判断，终态不允许被后续回调覆盖
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusFail
}

// Task 内部持久化的任务结构
type Task struct {
	TaskID         string   `json:"task_id"`
	ProviderTaskID string   `json:"provider_task_id"`
	Mode           string   `json:"mode"`
	Prompt         string   `json:"prompt"`
	InputImages    []string `json:"input_images,omitempty"`
	Duration       int      `json:"duration"`
	AspectRatio    string   `json:"aspect_ratio"`
	Status         string   `json:"status"`
	Progress       int      `json:"progress"`
	OriginVideoURL string   `json:"origin_video_url,omitempty"`
	LocalVideoURL  string   `json:"local_video_url,omitempty"`
	Error          string   `json:"error,omitempty"`
	CreatedAt      int64    `json:"created_at"`
}

// VideoURL 返回优先本地托管、其次上游托管的可用地址
func (t *Task) VideoURL() string {
	if t.LocalVideoURL != "" {
		return t.LocalVideoURL
	}
	return t.OriginVideoURL
}

// CreateVideoRequest 前端提交的单个生成请求
type CreateVideoRequest struct {
	Mode            string   `json:"mode" binding:"required"`
	Prompt          string   `json:"prompt" binding:"required"`
	ImageURL        string   `json:"image_url"`
	ImageURLs       []string `json:"image_urls"`
	Duration        int      `json:"duration"`
	AspectRatio     string   `json:"aspect_ratio"`
	CharacterIDList []string `json:"character_id_list"`
}

// BatchCreateRequest 批量提交请求
type BatchCreateRequest struct {
	Concurrency int                  `json:"concurrency"`
	Jobs        []CreateVideoRequest `json:"jobs" binding:"required"`
}

// BatchItemResult 批量提交中单个任务的结果，Index 与提交顺序一一对应
type BatchItemResult struct {
	Index  int    `json:"index"`
	OK     bool   `json:"ok"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchCreateResponse 批量提交响应
type BatchCreateResponse struct {
	Accepted    int               `json:"accepted"`
	Concurrency int               `json:"concurrency"`
	Results     []BatchItemResult `json:"results"`
}

// CallbackPayload 上游回调报文。上游会对非2xx响应激进重试，
// 所以这里的字段解析必须宽容，缺字段不算错误。
type CallbackPayload struct {
	Code int          `json:"code"`
	Msg  string       `json:"msg"`
	Data CallbackData `json:"data"`
}

// CallbackData 回调数据体。结果地址可能出现在单个字段或数组字段，
// 取值顺序固定：VideoURL 优先，其次 ResultURLs 的第一个元素。
type CallbackData struct {
	TaskID     string   `json:"taskId"`
	State      string   `json:"state"`
	Progress   *float64 `json:"progress,omitempty"`
	VideoURL   string   `json:"videoUrl,omitempty"`
	ResultURLs []string `json:"resultUrls,omitempty"`
	FailCode   string   `json:"failCode,omitempty"`
	FailMsg    string   `json:"failMsg,omitempty"`
}

// ResultURL 按固定顺序提取结果地址，找不到返回空串
func (d *CallbackData) ResultURL() string {
	if d.VideoURL != "" {
		return d.VideoURL
	}
	if len(d.ResultURLs) > 0 {
		return d.ResultURLs[0]
	}
	return ""
}

// FailureMessage 按固定顺序提取失败原因
func (p *CallbackPayload) FailureMessage() string {
	if p.Data.FailMsg != "" {
		return p.Data.FailMsg
	}
	if p.Data.FailCode != "" {
		return "provider error code: " + p.Data.FailCode
	}
	if p.Msg != "" {
		return p.Msg
	}
	return "generation failed"
}

// TaskSummary 列表接口返回的任务摘要
type TaskSummary struct {
	TaskID    string `json:"task_id"`
	Mode      string `json:"mode"`
	Prompt    string `json:"prompt"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	VideoURL  string `json:"video_url,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Summary 生成列表摘要
func (t *Task) Summary() TaskSummary {
	return TaskSummary{
		TaskID:    t.TaskID,
		Mode:      t.Mode,
		Prompt:    t.Prompt,
		Status:    t.Status,
		Progress:  t.Progress,
		VideoURL:  t.VideoURL(),
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
	}
}

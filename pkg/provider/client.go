package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"T2V/models"

	"github.com/google/uuid"
)

const createTaskPath = "/api/v1/jobs/createTask"

// CreateTaskParams 上游创建任务的请求体，字段名由上游协议决定
type CreateTaskParams struct {
	Model       string    `json:"model"`
	CallbackURL string    `json:"callBackUrl"`
	Input       TaskInput `json:"input"`
}

// TaskInput 生成参数，已翻译成上游词表
type TaskInput struct {
	Prompt          string   `json:"prompt"`
	ImageURLs       []string `json:"image_urls,omitempty"`
	AspectRatio     string   `json:"aspect_ratio"`
	Duration        string   `json:"duration"`
	CharacterIDList []string `json:"character_id_list,omitempty"`
}

type createTaskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// Client 上游视频生成服务客户端
type Client struct {
	baseURL string
	apiKey  string
	// 创建调用带整体超时；下载走 context 控制，文件可能几百MB
	http *http.Client
	dl   *http.Client
}

// NewClient 创建上游客户端
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		dl: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		},
	}
}

// CreateTask 提交生成任务，返回上游任务ID。
// 非2xx、code != 200 或缺少 taskId 都视为上游错误。
func (c *Client) CreateTask(ctx context.Context, p CreateTaskParams) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createTaskPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &models.UpstreamError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &models.UpstreamError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &models.UpstreamError{StatusCode: resp.StatusCode, Message: snippet(raw)}
	}

	var out createTaskResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &models.UpstreamError{StatusCode: resp.StatusCode, Message: "unexpected response shape: " + snippet(raw)}
	}
	if out.Code != 200 {
		return "", &models.UpstreamError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("provider code %d: %s", out.Code, out.Msg)}
	}
	if out.Data.TaskID == "" {
		return "", &models.UpstreamError{StatusCode: resp.StatusCode, Message: "provider response missing taskId"}
	}
	return out.Data.TaskID, nil
}

// Download 把结果文件流式写到 destPath，先落临时文件再改名，
// 避免半成品被静态服务直接暴露。
func (c *Client) Download(ctx context.Context, srcURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	resp, err := c.dl.Do(req)
	if err != nil {
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.DownloadError{URL: srcURL, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	tmp := destPath + "." + uuid.NewString() + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return &models.DownloadError{URL: srcURL, Message: err.Error()}
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

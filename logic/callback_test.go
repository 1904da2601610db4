package logic

import (
	"context"
	"testing"
	"time"

	"T2V/dao/store"
	"T2V/models"
)

func floatPtr(v float64) *float64 { return &v }

func seedTask(t *testing.T, st *store.MemoryStore, taskID, providerID string) {
	t.Helper()
	err := st.Create(context.Background(), &models.Task{
		TaskID:         taskID,
		ProviderTaskID: providerID,
		Mode:           models.ModeT2V,
		Prompt:         "seed",
		Duration:       5,
		AspectRatio:    "16:9",
		Status:         models.StatusQueued,
		CreatedAt:      time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func callback(pid, state string) *models.CallbackPayload {
	return &models.CallbackPayload{
		Code: 200,
		Data: models.CallbackData{TaskID: pid, State: state},
	}
}

func TestHandleCallbackProgress(t *testing.T) {
	svc, st := newTestService(&fakeProvider{}, &fakeQueue{})
	seedTask(t, st, "t1", "p1")

	p := callback("p1", "generating")
	p.Data.Progress = floatPtr(0.42)
	svc.HandleCallback(context.Background(), p)

	got, _ := st.Get(context.Background(), "t1")
	if got.Status != models.StatusRunning {
		t.Fatalf("generating should map to running, got %q", got.Status)
	}
	if got.Progress != 42 {
		t.Fatalf("fractional progress should scale to 42, got %d", got.Progress)
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	dl := &fakeQueue{}
	svc, st := newTestService(&fakeProvider{}, dl)
	seedTask(t, st, "t1", "p1")

	p := callback("p1", "success")
	p.Data.VideoURL = "https://cdn.example.com/out.mp4"
	svc.HandleCallback(context.Background(), p)

	got, _ := st.Get(context.Background(), "t1")
	if got.Status != models.StatusSuccess || got.Progress != 100 {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.OriginVideoURL != "https://cdn.example.com/out.mp4" {
		t.Fatalf("origin url not recorded: %+v", got)
	}
	if len(dl.jobs) != 1 || dl.jobs[0].TaskID != "t1" || dl.jobs[0].SourceURL != got.OriginVideoURL {
		t.Fatalf("download not enqueued: %+v", dl.jobs)
	}
}

func TestHandleCallbackResultURLFromArray(t *testing.T) {
	dl := &fakeQueue{}
	svc, st := newTestService(&fakeProvider{}, dl)
	seedTask(t, st, "t1", "p1")

	p := callback("p1", "succeeded")
	p.Data.ResultURLs = []string{"https://cdn/first.mp4", "https://cdn/second.mp4"}
	svc.HandleCallback(context.Background(), p)

	got, _ := st.Get(context.Background(), "t1")
	if got.OriginVideoURL != "https://cdn/first.mp4" {
		t.Fatalf("should take resultUrls[0], got %q", got.OriginVideoURL)
	}
}

func TestHandleCallbackSuccessWithoutURL(t *testing.T) {
	dl := &fakeQueue{}
	svc, st := newTestService(&fakeProvider{}, dl)
	seedTask(t, st, "t1", "p1")

	svc.HandleCallback(context.Background(), callback("p1", "success"))

	got, _ := st.Get(context.Background(), "t1")
	if got.Status != models.StatusSuccess {
		t.Fatalf("task should still go terminal, got %q", got.Status)
	}
	if got.Error == "" {
		t.Fatal("missing result url should leave a soft error")
	}
	if len(dl.jobs) != 0 {
		t.Fatalf("nothing to download, got %+v", dl.jobs)
	}
}

func TestHandleCallbackFailMessageFallback(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *models.CallbackPayload)
		wantErr string
	}{
		{"failMsg wins", func(p *models.CallbackPayload) {
			p.Data.FailMsg = "content policy"
			p.Data.FailCode = "E-100"
			p.Msg = "outer"
		}, "content policy"},
		{"failCode next", func(p *models.CallbackPayload) {
			p.Data.FailCode = "E-100"
			p.Msg = "outer"
		}, "E-100"},
		{"msg next", func(p *models.CallbackPayload) {
			p.Msg = "outer"
		}, "outer"},
		{"generic last", func(*models.CallbackPayload) {}, "generation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(&fakeProvider{}, &fakeQueue{})
			seedTask(t, st, "t1", "p1")

			p := callback("p1", "failed")
			tt.mutate(p)
			svc.HandleCallback(context.Background(), p)

			got, _ := st.Get(context.Background(), "t1")
			if got.Status != models.StatusFail {
				t.Fatalf("status = %q, want fail", got.Status)
			}
			if got.Error != tt.wantErr {
				t.Fatalf("error = %q, want %q", got.Error, tt.wantErr)
			}
		})
	}
}

func TestHandleCallbackUnknownProviderTask(t *testing.T) {
	svc, st := newTestService(&fakeProvider{}, &fakeQueue{})
	seedTask(t, st, "t1", "p1")

	// 未知上游ID只在日志里留痕，本地任务不动
	handleNoPanic(t, svc, callback("ghost", "success"))
	got, _ := st.Get(context.Background(), "t1")
	if got.Status != models.StatusQueued {
		t.Fatalf("local task must be untouched, got %+v", got)
	}
}

// 回调路径上任何输入都不允许 panic
func handleNoPanic(t *testing.T, svc *Service, p *models.CallbackPayload) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("callback panicked: %v", r)
		}
	}()
	svc.HandleCallback(context.Background(), p)
}

func TestHandleCallbackTerminalSticky(t *testing.T) {
	dl := &fakeQueue{}
	svc, st := newTestService(&fakeProvider{}, dl)
	seedTask(t, st, "t1", "p1")

	succ := callback("p1", "success")
	succ.Data.VideoURL = "https://cdn/final.mp4"
	svc.HandleCallback(context.Background(), succ)

	// 乱序晚到的 running 不能打回终态
	late := callback("p1", "running")
	late.Data.Progress = floatPtr(80)
	svc.HandleCallback(context.Background(), late)

	// 重复的 success 不能再次触发下载
	svc.HandleCallback(context.Background(), succ)

	got, _ := st.Get(context.Background(), "t1")
	if got.Status != models.StatusSuccess || got.Progress != 100 {
		t.Fatalf("terminal state corrupted: %+v", got)
	}
	if len(dl.jobs) != 1 {
		t.Fatalf("duplicate success must not enqueue again, got %d jobs", len(dl.jobs))
	}
}

func TestHandleCallbackEmptyTaskID(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{}, &fakeQueue{})
	handleNoPanic(t, svc, callback("", "success"))
}

func TestHandleCallbackPublishFailure(t *testing.T) {
	dl := &fakeQueue{err: context.DeadlineExceeded}
	svc, st := newTestService(&fakeProvider{}, dl)
	seedTask(t, st, "t1", "p1")

	p := callback("p1", "success")
	p.Data.VideoURL = "https://cdn/out.mp4"
	svc.HandleCallback(context.Background(), p)

	got, _ := st.Get(context.Background(), "t1")
	if got.Status != models.StatusSuccess {
		t.Fatalf("enqueue failure must not break the terminal transition: %+v", got)
	}
	if got.Error == "" {
		t.Fatal("enqueue failure should be recorded as a soft error")
	}
	if got.OriginVideoURL != "https://cdn/out.mp4" {
		t.Fatal("origin url must survive as fallback")
	}
}

func TestNormalizeProgress(t *testing.T) {
	tests := []struct {
		in   *float64
		want int
	}{
		{nil, -1},
		{floatPtr(0.5), 50},
		{floatPtr(1.0), 100},
		{floatPtr(42), 42},
		{floatPtr(150), 100},
		{floatPtr(-3), 0},
	}
	for _, tt := range tests {
		if got := normalizeProgress(tt.in); got != tt.want {
			t.Errorf("normalizeProgress(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dietchat-go/internal/config"
)

func newTestBaiduClient(baseURL string) *baiduClient {
	return newBaiduClient(config.BaiduConfig{
		APIKey:  "bd-test",
		BaseURL: baseURL,
		Model:   "ernie-3.5-8k",
	}, config.GenerationConfig{})
}

func TestBaiduBuildRequestMergesSystemMessages(t *testing.T) {
	c := newTestBaiduClient("https://example.com")
	messages := []Message{
		{Role: "system", Content: "用户设置了低钠标签"},
		{Role: "user", Content: "推荐个菜"},
		{Role: "assistant", Content: "清蒸鱼"},
	}

	req := c.buildRequest(messages, KindRecipe, false)

	// system 消息不进入消息列表，而是并入顶层 system 字段
	for _, m := range req.Messages {
		if m.Role == "system" {
			t.Fatalf("system message leaked into messages: %+v", req.Messages)
		}
	}
	if len(req.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(req.Messages))
	}
	if !strings.Contains(req.System, "营养师") {
		t.Errorf("system field missing recipe prompt: %q", req.System)
	}
	if !strings.Contains(req.System, "低钠标签") {
		t.Errorf("system field missing session context: %q", req.System)
	}
}

func TestBaiduInvokeBusinessError(t *testing.T) {
	// 千帆以 HTTP 200 + error_code 返回业务错误
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code":110,"error_msg":"Access token invalid"}`))
	}))
	defer srv.Close()

	c := newTestBaiduClient(srv.URL)
	_, err := c.Invoke(context.Background(), []Message{{Role: "user", Content: "hi"}}, KindChat)

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(pe.Message, "110") {
		t.Errorf("Message = %q, want error_code included", pe.Message)
	}
}

func TestBaiduInvoke(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		var req baiduRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"result":"少放盐","is_end":true}`))
	}))
	defer srv.Close()

	c := newTestBaiduClient(srv.URL)
	out, err := c.Invoke(context.Background(), []Message{{Role: "user", Content: "高血压怎么吃"}}, KindHealthAdvice)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if out != "少放盐" {
		t.Fatalf("Invoke = %q, want %q", out, "少放盐")
	}
	if !strings.Contains(gotQuery, "access_token=bd-test") {
		t.Errorf("access_token not sent in query: %q", gotQuery)
	}
}

func TestBaiduStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"result\":\"第一\",\"is_end\":false}\n\n")
		io.WriteString(w, "data: {\"result\":\"第二\",\"is_end\":true}\n\n")
	}))
	defer srv.Close()

	c := newTestBaiduClient(srv.URL)
	stream, err := c.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, KindChat)
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	defer stream.Close()

	chunks := readAll(t, stream)
	if got := strings.Join(chunks, ""); got != "第一第二" {
		t.Fatalf("joined chunks = %q, want %q", got, "第一第二")
	}
}

package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dietchat-go/internal/config"
)

func newTestCloudflareClient(baseURL string) *cloudflareClient {
	return newCloudflareClient(config.CloudflareConfig{
		APIToken:  "cf-test",
		AccountID: "acc-1",
		Model:     "@cf/meta/llama-3-8b-instruct",
		BaseURL:   baseURL,
	}, config.GenerationConfig{})
}

func TestCloudflareDefaultBaseURL(t *testing.T) {
	c := newCloudflareClient(config.CloudflareConfig{
		APIToken:  "cf-test",
		AccountID: "acc-1",
		Model:     "m",
	}, config.GenerationConfig{})

	if !strings.HasPrefix(c.endpoint(), cloudflareDefaultBaseURL) {
		t.Fatalf("endpoint = %q, want official base url", c.endpoint())
	}
}

func TestCloudflareInvoke(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"result":{"response":"燕麦粥"},"success":true}`))
	}))
	defer srv.Close()

	c := newTestCloudflareClient(srv.URL)
	out, err := c.Invoke(context.Background(), []Message{{Role: "user", Content: "早餐推荐"}}, KindChat)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if out != "燕麦粥" {
		t.Fatalf("Invoke = %q, want %q", out, "燕麦粥")
	}
	if gotPath != "/accounts/acc-1/ai/run/@cf/meta/llama-3-8b-instruct" {
		t.Errorf("path = %q, want account-scoped run path", gotPath)
	}
	if gotAuth != "Bearer cf-test" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestCloudflareInvokeUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null,"success":false,"errors":[{"code":7009,"message":"model not found"}]}`))
	}))
	defer srv.Close()

	c := newTestCloudflareClient(srv.URL)
	_, err := c.Invoke(context.Background(), []Message{{Role: "user", Content: "hi"}}, KindChat)

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(pe.Message, "7009") {
		t.Errorf("Message = %q, want error code included", pe.Message)
	}
}

func TestCloudflareStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"response\":\"保持\"}\n\n")
		io.WriteString(w, "data: {\"response\":\"水分\"}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestCloudflareClient(srv.URL)
	stream, err := c.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, KindChat)
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	defer stream.Close()

	chunks := readAll(t, stream)
	if got := strings.Join(chunks, ""); got != "保持水分" {
		t.Fatalf("joined chunks = %q, want %q", got, "保持水分")
	}
}

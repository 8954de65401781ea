package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"dietchat-go/internal/config"
)

const cloudflareDefaultBaseURL = "https://api.cloudflare.com/client/v4"

// cloudflareClient 调用 Cloudflare Workers AI 的文本生成接口。
// 响应包在 result.response 中携带文本，流式帧为 {"response":"..."}。
type cloudflareClient struct {
	cfg    config.CloudflareConfig
	gen    config.GenerationConfig
	client *http.Client
}

func newCloudflareClient(cfg config.CloudflareConfig, gen config.GenerationConfig) *cloudflareClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = cloudflareDefaultBaseURL
	}
	return &cloudflareClient{
		cfg:    cfg,
		gen:    gen,
		client: &http.Client{},
	}
}

type cloudflareRequest struct {
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type cloudflareBufferedResponse struct {
	Result struct {
		Response string `json:"response"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

type cloudflareStreamChunk struct {
	Response string `json:"response"`
}

func (c *cloudflareClient) endpoint() string {
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.cfg.BaseURL, c.cfg.AccountID, c.cfg.Model)
}

func (c *cloudflareClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIToken}
}

func (c *cloudflareClient) buildRequest(messages []Message, kind PromptKind, stream bool) cloudflareRequest {
	req := cloudflareRequest{
		Messages: withSystemPrompt(kind, messages),
		Stream:   stream,
	}
	if c.gen.Temperature != 0 {
		t := c.gen.Temperature
		req.Temperature = &t
	}
	if c.gen.MaxTokens != 0 {
		m := c.gen.MaxTokens
		req.MaxTokens = &m
	}
	return req
}

// Invoke 发送一次非流式请求并提取 result.response。
func (c *cloudflareClient) Invoke(ctx context.Context, messages []Message, kind PromptKind) (string, error) {
	reqBody := c.buildRequest(messages, kind, false)
	resp, err := postJSON(ctx, c.client, c.endpoint(), c.headers(), reqBody, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out cloudflareBufferedResponse
	if err := decodeBuffered(resp, &out); err != nil {
		return "", err
	}
	if !out.Success {
		msg := "request was not successful"
		if len(out.Errors) > 0 {
			msg = fmt.Sprintf("code %d: %s", out.Errors[0].Code, out.Errors[0].Message)
		}
		return "", &ProviderError{Status: resp.StatusCode, Message: msg}
	}
	return out.Result.Response, nil
}

// Stream 发送一次流式请求，SSE 帧以 data: [DONE] 终止。
func (c *cloudflareClient) Stream(ctx context.Context, messages []Message, kind PromptKind) (Stream, error) {
	reqBody := c.buildRequest(messages, kind, true)
	resp, err := postJSON(ctx, c.client, c.endpoint(), c.headers(), reqBody, true)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, decodeCloudflareChunk), nil
}

func decodeCloudflareChunk(data []byte) (string, bool, error) {
	var chunk cloudflareStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, err
	}
	return chunk.Response, false, nil
}

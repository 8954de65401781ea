package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"dietchat-go/internal/config"
)

// qwenClient 通过 DashScope 的 OpenAI 兼容模式调用通义千问。
type qwenClient struct {
	cfg    config.QwenConfig
	gen    config.GenerationConfig
	client *http.Client
}

func newQwenClient(cfg config.QwenConfig, gen config.GenerationConfig) *qwenClient {
	return &qwenClient{
		cfg:    cfg,
		gen:    gen,
		client: &http.Client{},
	}
}

type qwenRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type qwenBufferedResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type qwenStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *qwenClient) buildRequest(messages []Message, kind PromptKind, stream bool) qwenRequest {
	req := qwenRequest{
		Model:    c.cfg.Model,
		Messages: withSystemPrompt(kind, messages),
		Stream:   stream,
	}
	// 从配置注入生成参数（若非零值）
	if c.gen.Temperature != 0 {
		t := c.gen.Temperature
		req.Temperature = &t
	}
	if c.gen.TopP != 0 {
		p := c.gen.TopP
		req.TopP = &p
	}
	if c.gen.MaxTokens != 0 {
		m := c.gen.MaxTokens
		req.MaxTokens = &m
	}
	return req
}

func (c *qwenClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Invoke 发送一次非流式请求并提取回复文本。
func (c *qwenClient) Invoke(ctx context.Context, messages []Message, kind PromptKind) (string, error) {
	reqBody := c.buildRequest(messages, kind, false)
	resp, err := postJSON(ctx, c.client, c.cfg.BaseURL+"/chat/completions", c.headers(), reqBody, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out qwenBufferedResponse
	if err := decodeBuffered(resp, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Status: resp.StatusCode, Message: "response contains no choices"}
	}
	return out.Choices[0].Message.Content, nil
}

// Stream 发送一次流式请求，返回按 SSE 帧解析的分块流。
func (c *qwenClient) Stream(ctx context.Context, messages []Message, kind PromptKind) (Stream, error) {
	reqBody := c.buildRequest(messages, kind, true)
	resp, err := postJSON(ctx, c.client, c.cfg.BaseURL+"/chat/completions", c.headers(), reqBody, true)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, decodeQwenChunk), nil
}

func decodeQwenChunk(data []byte) (string, bool, error) {
	var chunk qwenStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, err
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

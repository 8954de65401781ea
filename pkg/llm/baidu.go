package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"dietchat-go/internal/config"
)

// baiduClient 调用百度千帆的 ERNIE 对话接口。
// 该接口与 OpenAI 风格有两处差异：system 提示词走请求体顶层的 system
// 字段而非消息列表；业务错误可能以 HTTP 200 + error_code 的形式返回。
type baiduClient struct {
	cfg    config.BaiduConfig
	gen    config.GenerationConfig
	client *http.Client
}

func newBaiduClient(cfg config.BaiduConfig, gen config.GenerationConfig) *baiduClient {
	return &baiduClient{
		cfg:    cfg,
		gen:    gen,
		client: &http.Client{},
	}
}

type baiduRequest struct {
	Messages        []Message `json:"messages"`
	System          string    `json:"system,omitempty"`
	Stream          bool      `json:"stream"`
	Temperature     *float64  `json:"temperature,omitempty"`
	TopP            *float64  `json:"top_p,omitempty"`
	MaxOutputTokens *int      `json:"max_output_tokens,omitempty"`
}

type baiduResponse struct {
	Result    string `json:"result"`
	IsEnd     bool   `json:"is_end"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func (c *baiduClient) endpoint() string {
	return fmt.Sprintf("%s/chat/%s?access_token=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
}

func (c *baiduClient) buildRequest(messages []Message, kind PromptKind, stream bool) baiduRequest {
	// ERNIE 的消息列表只接受 user/assistant 轮次，历史中的 system
	// 消息（如饮食标签上下文）合并进顶层 system 字段一起下发
	system := systemPrompt(kind)
	filtered := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if m.Content != "" {
				system += "\n" + m.Content
			}
			continue
		}
		filtered = append(filtered, m)
	}
	req := baiduRequest{
		Messages: filtered,
		System:   system,
		Stream:   stream,
	}
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
		req.MaxOutputTokens = &m
	}
	return req
}

// Invoke 发送一次非流式请求并提取 result 字段。
func (c *baiduClient) Invoke(ctx context.Context, messages []Message, kind PromptKind) (string, error) {
	reqBody := c.buildRequest(messages, kind, false)
	resp, err := postJSON(ctx, c.client, c.endpoint(), nil, reqBody, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out baiduResponse
	if err := decodeBuffered(resp, &out); err != nil {
		return "", err
	}
	if out.ErrorCode != 0 {
		return "", &ProviderError{Status: resp.StatusCode, Message: fmt.Sprintf("error_code %d: %s", out.ErrorCode, out.ErrorMsg)}
	}
	return out.Result, nil
}

// Stream 发送一次流式请求。ERNIE 以 is_end 标记终止，最后一帧可能仍携带文本。
func (c *baiduClient) Stream(ctx context.Context, messages []Message, kind PromptKind) (Stream, error) {
	reqBody := c.buildRequest(messages, kind, true)
	resp, err := postJSON(ctx, c.client, c.endpoint(), nil, reqBody, true)
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body, decodeBaiduChunk), nil
}

func decodeBaiduChunk(data []byte) (string, bool, error) {
	var chunk baiduResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, err
	}
	return chunk.Result, chunk.IsEnd, nil
}

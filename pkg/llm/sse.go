package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseStream 按 SSE 帧读取响应体，并交由服务商特定的 decode 函数解出文本分块。
// decode 返回 done=true 表示收到了该服务商的终止标记；无法解析的帧被跳过。
type sseStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	decode  func(data []byte) (chunk string, done bool, err error)
	pending bool // 终止标记已收到，下一次 Recv 返回 io.EOF
}

func newSSEStream(body io.ReadCloser, decode func([]byte) (string, bool, error)) *sseStream {
	return &sseStream{
		body:   body,
		reader: bufio.NewReader(body),
		decode: decode,
	}
}

// Recv 返回下一个文本分块。流正常结束后返回 io.EOF。
func (s *sseStream) Recv() (string, error) {
	if s.pending {
		return "", io.EOF
	}
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.pending = true
				return "", io.EOF
			}
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			s.pending = true
			return "", io.EOF
		}

		chunk, done, err := s.decode([]byte(data))
		if err != nil {
			// 与上游保持宽容：坏帧跳过，不中断整个流
			continue
		}
		if done {
			s.pending = true
			if chunk != "" {
				return chunk, nil
			}
			return "", io.EOF
		}
		if chunk == "" {
			continue
		}
		return chunk, nil
	}
}

// Close 关闭底层响应体，释放连接。
func (s *sseStream) Close() error {
	return s.body.Close()
}

// decodeBuffered 读取并解析一次非流式响应体；不可解析时返回 ProviderError。
func decodeBuffered(resp *http.Response, out interface{}) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &ProviderError{Status: resp.StatusCode, Message: "malformed response payload"}
	}
	return nil
}

// postJSON 发送一次 JSON POST 请求。Accept 头按 streamed 与否切换。
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}, streamed bool) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if streamed {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &ProviderError{Status: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}
	return resp, nil
}

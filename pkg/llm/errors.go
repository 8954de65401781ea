package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider 表示配置指定的服务商没有对应的适配器。
	// 该错误在启动期致命，不会被重试。
	ErrUnknownProvider = errors.New("llm: unknown provider")
	// ErrMissingCredential 表示所选适配器缺少必需的密钥。
	// 同样在启动期致命。
	ErrMissingCredential = errors.New("llm: missing credential")
)

// ProviderError 表示一次对服务商的调用失败：非 2xx 响应或响应体不可解析。
// 它原样穿过路由与流式管线传到调用方，由调用方决定如何落到消息状态上。
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: provider returned status %d: %s", e.Status, e.Message)
}

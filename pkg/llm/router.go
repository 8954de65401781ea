package llm

import (
	"fmt"
	"strings"

	"dietchat-go/internal/config"
)

// NewClient 根据配置选择唯一的服务商适配器。
// 选择在进程启动时完成且此后固定；未知服务商或缺少密钥都是致命错误，
// 调用方应直接终止启动，不做重试。
func NewClient(cfg config.AIConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "qwen":
		if cfg.Qwen.APIKey == "" {
			return nil, fmt.Errorf("%w: ai.qwen.api_key 未配置", ErrMissingCredential)
		}
		return newQwenClient(cfg.Qwen, cfg.Generation), nil
	case "baidu":
		if cfg.Baidu.APIKey == "" {
			return nil, fmt.Errorf("%w: ai.baidu.api_key 未配置", ErrMissingCredential)
		}
		return newBaiduClient(cfg.Baidu, cfg.Generation), nil
	case "cloudflare":
		if cfg.Cloudflare.APIToken == "" {
			return nil, fmt.Errorf("%w: ai.cloudflare.api_token 未配置", ErrMissingCredential)
		}
		if cfg.Cloudflare.AccountID == "" {
			return nil, fmt.Errorf("%w: ai.cloudflare.account_id 未配置", ErrMissingCredential)
		}
		return newCloudflareClient(cfg.Cloudflare, cfg.Generation), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

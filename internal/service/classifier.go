// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"
	"time"

	"dietchat-go/internal/model"
	"dietchat-go/pkg/llm"
	"dietchat-go/pkg/log"
)

const defaultClassifyTimeout = 10 * time.Second

// IntentClassifier 定义了意图分类的接口。
type IntentClassifier interface {
	// ClassifyOrDefault 对一轮用户输入做意图分类。
	// 分类失败从不向上抛出：超时、调用错误、空输出、未知输出一律回退为 chat，
	// 保证无法分类的请求也能得到一个回复。
	ClassifyOrDefault(ctx context.Context, history []llm.Message) model.Intent
}

type intentClassifier struct {
	client  llm.Client
	timeout time.Duration
}

// NewIntentClassifier 创建一个新的 IntentClassifier 实例。
// timeout 为零时使用默认超时。
func NewIntentClassifier(client llm.Client, timeout time.Duration) IntentClassifier {
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	return &intentClassifier{client: client, timeout: timeout}
}

func (c *intentClassifier) ClassifyOrDefault(ctx context.Context, history []llm.Message) model.Intent {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.client.Invoke(cctx, history, llm.KindClassify)
	if err != nil {
		log.Warnf("意图分类调用失败，回退为 chat: %v", err)
		return model.IntentChat
	}

	intent, ok := model.ParseIntent(strings.ToLower(strings.TrimSpace(out)))
	if !ok {
		log.Warnf("意图分类输出无法识别，回退为 chat: %q", out)
		return model.IntentChat
	}
	return intent
}

// Package llm provides clients for interacting with Large Language Models.
package llm

import "context"

// Message 表示一条角色消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptKind 决定适配器在分发前选用哪一条系统提示词。
// 三个对话类 kind 与意图一一对应，classify 仅供意图分类使用。
type PromptKind string

const (
	KindChat         PromptKind = "chat"
	KindRecipe       PromptKind = "recipe"
	KindHealthAdvice PromptKind = "health_advice"
	KindClassify     PromptKind = "classify"
)

// Client 定义了对单一 AI 服务商的统一调用能力。
// 每次 Invoke/Stream 只发起一次出站调用，适配器内部不做重试；
// 重试策略（若有）由调用方决定。
type Client interface {
	// Invoke 以 buffered 方式调用聊天接口，返回提取出的完整文本。
	Invoke(ctx context.Context, messages []Message, kind PromptKind) (string, error)
	// Stream 以 streamed 方式调用聊天接口，返回可增量消费的分块流。
	// 取消通过 ctx 协作式传播到底层连接。
	Stream(ctx context.Context, messages []Message, kind PromptKind) (Stream, error)
}

// Stream 是一个惰性的、有限的、不可重启的文本分块序列。
// Recv 在收到服务商的终止哨兵后返回 io.EOF；传输层错误原样返回。
type Stream interface {
	Recv() (string, error)
	Close() error
}

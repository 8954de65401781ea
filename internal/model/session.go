// Package model 包含了应用的数据模型定义。
package model

import "time"

// Intent 表示一轮用户输入被分类后的意图，决定本轮走哪条提示词管线。
type Intent string

const (
	IntentChat         Intent = "chat"
	IntentRecipe       Intent = "recipe"
	IntentHealthAdvice Intent = "health_advice"
)

// ParseIntent 将分类模型的原始输出解析为已知意图。
// 只接受与三个意图字面量完全一致的值，其余一律视为未知。
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentChat, IntentRecipe, IntentHealthAdvice:
		return Intent(s), true
	}
	return "", false
}

// MessageType 返回该意图对应的消息类型。两者字面量一致，但语义上
// 意图是一次性的分类结果，消息类型是落在消息上的固定属性。
func (i Intent) MessageType() MessageType {
	return MessageType(i)
}

// MessageRole 表示消息的角色。
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageType 表示消息的业务类型。
type MessageType string

const (
	TypeChat         MessageType = "chat"
	TypeRecipe       MessageType = "recipe"
	TypeHealthAdvice MessageType = "health_advice"
)

// MessageStatus 表示消息的生命周期状态。
// 状态只会沿 pending → streaming → {done|error|abort} 单向推进。
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusDone      MessageStatus = "done"
	StatusError     MessageStatus = "error"
	StatusAbort     MessageStatus = "abort"
)

// Terminal 报告该状态是否为终态。终态消息的内容不再变化。
func (s MessageStatus) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusAbort
}

// ChatMessage 代表会话内的单条消息。
// 用户消息的内容写入一次后不再变化；助手消息的内容在 streaming
// 期间按到达顺序追加，进入终态后不可变。
type ChatMessage struct {
	ID        string        `json:"id"`
	Role      MessageRole   `json:"role"`
	Type      MessageType   `json:"type"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ChatSession 代表一次会话的内存形态。
// IsEphemeral 为 true 时会话只存在于内存中，不会写入记录存储；
// 访客的所有会话始终保持 ephemeral。
type ChatSession struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Messages    []ChatMessage `json:"messages"`
	TagIDs      []string      `json:"tagIds"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	IsEphemeral bool          `json:"isEphemeral"`
}

// LastMessage 返回会话中的最后一条消息，会话为空时返回 nil。
func (s *ChatSession) LastMessage() *ChatMessage {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

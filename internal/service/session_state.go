// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"dietchat-go/internal/model"

	"github.com/google/uuid"
)

var (
	// ErrMessageNotFound 表示目标消息不在会话中。
	ErrMessageNotFound = errors.New("service: message not found")
	// ErrMessageTerminal 表示消息已处于终态，不再接受任何变更。
	ErrMessageTerminal = errors.New("service: message already terminal")
	// ErrTurnInFlight 表示会话中仍有一条非终态的助手消息。
	ErrTurnInFlight = errors.New("service: another assistant message is still in flight")
	// ErrNotTerminalStatus 表示 Finalize 收到的目标状态不是终态。
	ErrNotTerminalStatus = errors.New("service: finalize requires a terminal status")
)

// SessionState 持有一个会话的内存状态并执行消息状态机。
//
// 不变量：任意时刻至多一条消息处于非终态（pending 或 streaming），
// 且若存在则必为最后一条。状态只会沿
// pending → streaming → {done|error|abort} 单向推进。
// 所有方法内部加锁，连接协程与取消路径可以安全并发调用。
type SessionState struct {
	mu        sync.Mutex
	session   model.ChatSession
	cancel    context.CancelFunc
	cancelSeq uint64

	turnMu    sync.Mutex // 串行化同一会话的对话轮次
	persistMu sync.Mutex // 串行化同步器对本会话的写入
}

// NewSessionState 创建一个全新的 ephemeral 会话。
func NewSessionState() *SessionState {
	now := time.Now()
	return &SessionState{
		session: model.ChatSession{
			ID:          uuid.New().String(),
			Messages:    []model.ChatMessage{},
			TagIDs:      []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
			IsEphemeral: true,
		},
	}
}

// RestoreSessionState 从一份已持久化的会话快照恢复内存状态。
func RestoreSessionState(sess model.ChatSession) *SessionState {
	return &SessionState{session: sess}
}

// ID 返回会话当前的标识。会话被提升后返回服务端签发的 id。
func (s *SessionState) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

// IsEphemeral 报告会话是否尚未写入记录存储。
func (s *SessionState) IsEphemeral() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.IsEphemeral
}

// MessageCount 返回会话中的消息条数。
func (s *SessionState) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.session.Messages)
}

// Snapshot 返回会话的一份深拷贝，供持久化与历史组装使用。
func (s *SessionState) Snapshot() model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.session
	out.Messages = make([]model.ChatMessage, len(s.session.Messages))
	copy(out.Messages, s.session.Messages)
	out.TagIDs = make([]string, len(s.session.TagIDs))
	copy(out.TagIDs, s.session.TagIDs)
	return out
}

// AppendUserMessage 追加一条用户消息。用户消息没有中间状态，写入即 done。
// 会话中仍有非终态消息时拒绝追加。
func (s *SessionState) AppendUserMessage(content string) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last := s.session.LastMessage(); last != nil && !last.Status.Terminal() {
		return model.ChatMessage{}, ErrTurnInFlight
	}

	msg := model.ChatMessage{
		ID:        uuid.New().String(),
		Role:      model.RoleUser,
		Type:      model.TypeChat,
		Content:   content,
		Status:    model.StatusDone,
		CreatedAt: time.Now(),
	}
	s.session.Messages = append(s.session.Messages, msg)
	s.session.UpdatedAt = msg.CreatedAt
	return msg, nil
}

// StartAssistantMessage 在意图确定后追加一条 pending 的助手占位消息。
func (s *SessionState) StartAssistantMessage(intent model.Intent) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last := s.session.LastMessage(); last != nil && !last.Status.Terminal() {
		return model.ChatMessage{}, ErrTurnInFlight
	}

	msg := model.ChatMessage{
		ID:        uuid.New().String(),
		Role:      model.RoleAssistant,
		Type:      intent.MessageType(),
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}
	s.session.Messages = append(s.session.Messages, msg)
	s.session.UpdatedAt = msg.CreatedAt
	return msg, nil
}

// AppendChunk 将一个文本分块按到达顺序追加到指定消息。
// 第一个分块把消息从 pending 推进到 streaming；终态消息拒绝追加。
func (s *SessionState) AppendChunk(messageID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findLocked(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.Status.Terminal() {
		return ErrMessageTerminal
	}
	if msg.Status == model.StatusPending {
		msg.Status = model.StatusStreaming
	}
	msg.Content += text
	s.session.UpdatedAt = time.Now()
	return nil
}

// Finalize 将指定消息推进到给定终态，返回推进后的消息副本。
// 已终态的消息不会被二次推进。
func (s *SessionState) Finalize(messageID string, status model.MessageStatus) (model.ChatMessage, error) {
	if !status.Terminal() {
		return model.ChatMessage{}, ErrNotTerminalStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findLocked(messageID)
	if msg == nil {
		return model.ChatMessage{}, ErrMessageNotFound
	}
	if msg.Status.Terminal() {
		return model.ChatMessage{}, ErrMessageTerminal
	}
	msg.Status = status
	s.session.UpdatedAt = time.Now()
	return *msg, nil
}

// ActiveMessage 返回当前非终态的消息（若有）。
func (s *SessionState) ActiveMessage() (model.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last := s.session.LastMessage(); last != nil && !last.Status.Terminal() {
		return *last, true
	}
	return model.ChatMessage{}, false
}

// SetCancel 登记当前在途调用的取消函数，返回一个用于 ClearCancel 的序号。
// 每个会话同一时刻只有一个取消令牌，登记新令牌会先作废旧令牌。
func (s *SessionState) SetCancel(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.cancelSeq++
	return s.cancelSeq
}

// ClearCancel 清除取消令牌。仅当令牌仍是 seq 对应的那一个时生效，
// 避免误清掉后来者登记的令牌。
func (s *SessionState) ClearCancel(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSeq == seq {
		s.cancel = nil
	}
}

// CancelInFlight 中断当前在途的分类或流式调用（若有）。
// 关联消息保持非终态，由调用方显式 Finalize 为 abort。
func (s *SessionState) CancelInFlight() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Promote 在首次成功写入记录存储后，把本地 id 改写为服务端签发的 id
// 并结束 ephemeral 状态。改写期间追加的消息自然归属新 id。
func (s *SessionState) Promote(serverID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ID = serverID
	s.session.IsEphemeral = false
	if title != "" {
		s.session.Title = title
	}
}

// SetTitle 更新会话标题。
func (s *SessionState) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Title = title
}

// SetTagIDs 整体替换会话的饮食标签集合。
func (s *SessionState) SetTagIDs(tagIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.TagIDs = append([]string(nil), tagIDs...)
	s.session.UpdatedAt = time.Now()
}

func (s *SessionState) findLocked(messageID string) *model.ChatMessage {
	for i := range s.session.Messages {
		if s.session.Messages[i].ID == messageID {
			return &s.session.Messages[i]
		}
	}
	return nil
}

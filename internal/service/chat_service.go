// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"dietchat-go/internal/model"
	"dietchat-go/pkg/kafka"
	"dietchat-go/pkg/llm"
	"dietchat-go/pkg/log"
)

// ChunkSink 接收一轮对话过程中产生的增量事件。
// 实现方（通常是 WebSocket 连接）负责把事件转发给客户端。
type ChunkSink interface {
	// OnChunk 在每个文本分块到达时被同步调用，顺序与到达顺序一致。
	OnChunk(sessionID, messageID, chunk string)
	// OnStatusChange 在消息状态推进时被调用，携带推进后的消息快照。
	OnStatusChange(sessionID string, msg model.ChatMessage)
	// OnSessionPromoted 在会话首次持久化、id 被改写后被调用。
	OnSessionPromoted(oldID, newID string)
}

// ChatService 是一轮对话的编排器：中断上一轮、登记用户消息、
// 分类意图、流式生成、收敛终态，最后触发持久化与事件上报。
type ChatService interface {
	// HandleTurn 同步执行一轮完整的对话。流式期间的增量通过 sink 回调；
	// 返回错误仅表示编排本身失败（如状态机拒绝），生成失败收敛为
	// error 状态的助手消息，不作为错误返回。
	HandleTurn(ctx context.Context, st *SessionState, userID uint, content string, sink ChunkSink) error
	// CancelActive 请求中断会话当前在途的一轮，无在途调用时为空操作。
	// 实际的 abort 收敛由在途的 HandleTurn 完成。
	CancelActive(st *SessionState)
}

type chatService struct {
	classifier IntentClassifier
	streamer   Streamer
	syncSvc    SyncService
	tagSvc     TagService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(classifier IntentClassifier, streamer Streamer, syncSvc SyncService, tagSvc TagService) ChatService {
	return &chatService{
		classifier: classifier,
		streamer:   streamer,
		syncSvc:    syncSvc,
		tagSvc:     tagSvc,
	}
}

func (s *chatService) HandleTurn(ctx context.Context, st *SessionState, userID uint, content string, sink ChunkSink) error {
	start := time.Now()

	// 新一轮隐式中断上一轮：先掐断在途调用，等它收敛后再开始本轮。
	// 轮次按会话串行，后到的一轮等待而不是被状态机拒绝。
	st.CancelInFlight()
	st.turnMu.Lock()
	defer st.turnMu.Unlock()

	sessionID := st.ID()
	s.abortLingering(st, sink)

	userMsg, err := st.AppendUserMessage(content)
	if err != nil {
		return err
	}
	sink.OnStatusChange(sessionID, userMsg)

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	seq := st.SetCancel(cancel)
	defer st.ClearCancel(seq)

	history := s.buildHistory(st.Snapshot())
	intent := s.classifier.ClassifyOrDefault(tctx, history)

	asstMsg, err := st.StartAssistantMessage(intent)
	if err != nil {
		return err
	}
	sink.OnStatusChange(sessionID, asstMsg)

	// 分类期间被中断：占位消息直接收敛为 abort，不再发起生成调用。
	if tctx.Err() != nil {
		s.finalize(st, sink, sessionID, asstMsg.ID, model.StatusAbort)
		s.afterTurn(st, userID, intent, model.StatusAbort, 0, start, sink)
		return nil
	}

	streamed := false
	full, streamErr := s.streamer.Stream(tctx, history, intent, func(chunk string) {
		if err := st.AppendChunk(asstMsg.ID, chunk); err != nil {
			return
		}
		if !streamed {
			streamed = true
			if msg, ok := st.ActiveMessage(); ok {
				sink.OnStatusChange(sessionID, msg)
			}
		}
		sink.OnChunk(sessionID, asstMsg.ID, chunk)
	})

	status := model.StatusDone
	switch {
	case streamErr == nil:
	case errors.Is(streamErr, context.Canceled):
		status = model.StatusAbort
	default:
		status = model.StatusError
		log.Errorf("流式生成失败 session=%s intent=%s: %v", sessionID, intent, streamErr)
	}

	s.finalize(st, sink, sessionID, asstMsg.ID, status)
	s.afterTurn(st, userID, intent, status, utf8.RuneCountInString(full), start, sink)
	return nil
}

func (s *chatService) CancelActive(st *SessionState) {
	st.CancelInFlight()
}

// abortLingering 把上一轮残留的非终态助手消息收敛为 abort。
func (s *chatService) abortLingering(st *SessionState, sink ChunkSink) {
	active, ok := st.ActiveMessage()
	if !ok {
		return
	}
	msg, err := st.Finalize(active.ID, model.StatusAbort)
	if err != nil {
		// 在途协程抢先收敛属于正常竞争
		if !errors.Is(err, ErrMessageTerminal) {
			log.Warnf("残留消息收敛失败: %v", err)
		}
		return
	}
	sink.OnStatusChange(st.ID(), msg)
}

func (s *chatService) finalize(st *SessionState, sink ChunkSink, sessionID, messageID string, status model.MessageStatus) {
	msg, err := st.Finalize(messageID, status)
	if err != nil {
		if !errors.Is(err, ErrMessageTerminal) {
			log.Warnf("消息收敛失败 message=%s: %v", messageID, err)
		}
		return
	}
	sink.OnStatusChange(sessionID, msg)
}

// buildHistory 把会话组装为一次生成调用的消息序列。
// 饮食标签上下文作为系统消息置于最前；只携带已完成的消息，
// abort 与 error 的残段不会进入后续轮次的上下文。
func (s *chatService) buildHistory(snapshot model.ChatSession) []llm.Message {
	history := make([]llm.Message, 0, len(snapshot.Messages)+1)
	if s.tagSvc != nil {
		if tagContext := s.tagSvc.PromptContext(snapshot.TagIDs); tagContext != "" {
			history = append(history, llm.Message{Role: string(model.RoleSystem), Content: tagContext})
		}
	}
	for _, msg := range snapshot.Messages {
		if msg.Status != model.StatusDone {
			continue
		}
		history = append(history, llm.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return history
}

// afterTurn 异步执行一轮结束后的持久化与事件上报，不阻塞下一轮。
// abort 与其他终态一样落库，连接中断也不会丢掉本轮的用户消息。
func (s *chatService) afterTurn(st *SessionState, userID uint, intent model.Intent, status model.MessageStatus, chars int, start time.Time, sink ChunkSink) {
	oldID := st.ID()
	go func() {
		if err := s.syncSvc.PersistOrSkip(context.Background(), st, userID); err != nil {
			log.Errorf("会话持久化失败 session=%s: %v", oldID, err)
		} else if newID := st.ID(); newID != oldID {
			sink.OnSessionPromoted(oldID, newID)
		}

		event := kafka.ChatTurnEvent{
			SessionID:  st.ID(),
			UserID:     userID,
			Intent:     string(intent),
			Status:     string(status),
			Chars:      chars,
			LatencyMS:  time.Since(start).Milliseconds(),
			OccurredAt: time.Now(),
		}
		if err := kafka.ProduceTurnEvent(event); err != nil {
			log.Warnf("对话轮次事件上报失败 session=%s: %v", st.ID(), err)
		}
	}()
}

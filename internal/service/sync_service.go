// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
	"dietchat-go/pkg/log"

	"github.com/google/uuid"
)

const maxTitleRunes = 20

// SyncService 负责把内存会话同步到记录存储。
// 访客会话与空会话一律跳过；认证用户的 ephemeral 会话在首次同步时
// 被创建并提升（本地 id 改写为服务端签发的 id），之后的同步走更新。
// 同一会话的同步调用串行执行，首次创建只会发生一次。
type SyncService interface {
	// PersistOrSkip 在一轮对话结束后同步会话。userID 为 0 表示访客。
	// 同步失败只记录日志并返回错误，会话保持 ephemeral，下一轮重试。
	PersistOrSkip(ctx context.Context, st *SessionState, userID uint) error
	// LoadSessions 从记录存储恢复用户的全部会话。
	LoadSessions(userID uint) ([]model.ChatSession, error)
}

type syncService struct {
	sessionRepo repository.SessionRepository
	cacheRepo   repository.SessionCacheRepository
}

// NewSyncService 创建一个新的 SyncService 实例。
func NewSyncService(sessionRepo repository.SessionRepository, cacheRepo repository.SessionCacheRepository) SyncService {
	return &syncService{sessionRepo: sessionRepo, cacheRepo: cacheRepo}
}

func (s *syncService) PersistOrSkip(ctx context.Context, st *SessionState, userID uint) error {
	if userID == 0 {
		return nil
	}

	// 并发的两轮不能同时观察到 ephemeral 并双双走创建路径
	st.persistMu.Lock()
	defer st.persistMu.Unlock()

	snapshot := st.Snapshot()
	if len(snapshot.Messages) == 0 {
		return nil
	}

	if snapshot.IsEphemeral {
		return s.createAndPromote(ctx, st, snapshot, userID)
	}
	return s.update(ctx, snapshot, userID)
}

// createAndPromote 首次写入记录存储。写入成功后把本地 id 改写为
// 服务端签发的 id；写入失败时不改写，会话保持 ephemeral。
func (s *syncService) createAndPromote(ctx context.Context, st *SessionState, snapshot model.ChatSession, userID uint) error {
	serverID := uuid.New().String()
	title := snapshot.Title
	if title == "" {
		title = deriveTitle(snapshot)
	}

	record, err := recordFromSession(snapshot, serverID, title, userID)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.Create(record); err != nil {
		log.Errorf("会话首次持久化失败，保持 ephemeral 待下轮重试: %v", err)
		return fmt.Errorf("failed to create session record: %w", err)
	}

	st.Promote(serverID, title)
	s.refreshCache(ctx, userID)
	return nil
}

func (s *syncService) update(ctx context.Context, snapshot model.ChatSession, userID uint) error {
	record, err := recordFromSession(snapshot, snapshot.ID, snapshot.Title, userID)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.Update(record); err != nil {
		log.Errorf("会话同步失败: %v", err)
		return fmt.Errorf("failed to update session record: %w", err)
	}
	s.refreshCache(ctx, userID)
	return nil
}

// LoadSessions 从记录存储恢复用户的全部会话，按最近更新排序。
func (s *syncService) LoadSessions(userID uint) ([]model.ChatSession, error) {
	records, err := s.sessionRepo.FindByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session records: %w", err)
	}

	sessions := make([]model.ChatSession, 0, len(records))
	for _, record := range records {
		sess, err := sessionFromRecord(&record)
		if err != nil {
			log.Errorf("会话记录 %s 反序列化失败，已跳过: %v", record.ID, err)
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// refreshCache 在持久化成功后刷新 Redis 中的会话列表快照。
// 缓存失败不影响同步结果。
func (s *syncService) refreshCache(ctx context.Context, userID uint) {
	if s.cacheRepo == nil {
		return
	}
	if err := s.cacheRepo.Invalidate(ctx, userID); err != nil {
		log.Warnf("会话列表缓存失效失败: %v", err)
	}
}

// deriveTitle 从第一条用户消息截取会话标题。
func deriveTitle(sess model.ChatSession) string {
	for _, msg := range sess.Messages {
		if msg.Role != model.RoleUser {
			continue
		}
		title := strings.TrimSpace(msg.Content)
		if utf8.RuneCountInString(title) > maxTitleRunes {
			runes := []rune(title)
			title = string(runes[:maxTitleRunes]) + "..."
		}
		return title
	}
	return "新对话"
}

// recordFromSession 将内存会话序列化为数据库记录。
func recordFromSession(sess model.ChatSession, id, title string, userID uint) (*model.SessionRecord, error) {
	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	return &model.SessionRecord{
		ID:       id,
		UserID:   userID,
		Title:    title,
		Messages: string(messagesJSON),
		TagIDs:   strings.Join(sess.TagIDs, ","),
	}, nil
}

// sessionFromRecord 将数据库记录还原为内存会话。
func sessionFromRecord(record *model.SessionRecord) (model.ChatSession, error) {
	var messages []model.ChatMessage
	if record.Messages != "" {
		if err := json.Unmarshal([]byte(record.Messages), &messages); err != nil {
			return model.ChatSession{}, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}
	var tagIDs []string
	if record.TagIDs != "" {
		tagIDs = strings.Split(record.TagIDs, ",")
	}
	return model.ChatSession{
		ID:        record.ID,
		Title:     record.Title,
		Messages:  messages,
		TagIDs:    tagIDs,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
	"dietchat-go/pkg/log"
)

// SessionService 提供已持久化会话的管理操作。
// 所有操作都带归属校验：访问他人的会话与访问不存在的会话
// 表现一致，均返回 repository.ErrRecordNotFound。
type SessionService interface {
	ListSessions(ctx context.Context, userID uint) ([]model.SessionRecord, error)
	GetSession(userID uint, sessionID string) (*model.ChatSession, error)
	RenameSession(ctx context.Context, userID uint, sessionID, title string) error
	DeleteSession(ctx context.Context, userID uint, sessionID string) error

	// AddTag 把一个饮食标签加到会话上。互斥级冲突会阻止添加并返回
	// service.ErrTagConflict，结果中携带冲突详情；warning 与 info
	// 级冲突不阻止添加，仅随结果返回。
	AddTag(ctx context.Context, userID uint, sessionID, tagID string) (*model.TagConflictResult, error)
	RemoveTag(ctx context.Context, userID uint, sessionID, tagID string) error
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	cacheRepo   repository.SessionCacheRepository
	tagSvc      TagService
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(sessionRepo repository.SessionRepository, cacheRepo repository.SessionCacheRepository, tagSvc TagService) SessionService {
	return &sessionService{sessionRepo: sessionRepo, cacheRepo: cacheRepo, tagSvc: tagSvc}
}

// ListSessions 返回用户的会话列表，按最近更新排序。
// 优先读 Redis 快照，未命中回源数据库并回填。
func (s *sessionService) ListSessions(ctx context.Context, userID uint) ([]model.SessionRecord, error) {
	if s.cacheRepo != nil {
		records, hit, err := s.cacheRepo.GetCachedSessions(ctx, userID)
		if err != nil {
			log.Warnf("会话列表缓存读取失败，回源数据库: %v", err)
		} else if hit {
			return records, nil
		}
	}

	records, err := s.sessionRepo.FindByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	if s.cacheRepo != nil {
		if err := s.cacheRepo.CacheSessions(ctx, userID, records); err != nil {
			log.Warnf("会话列表缓存回填失败: %v", err)
		}
	}
	return records, nil
}

func (s *sessionService) GetSession(userID uint, sessionID string) (*model.ChatSession, error) {
	record, err := s.findOwned(userID, sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := sessionFromRecord(record)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionService) RenameSession(ctx context.Context, userID uint, sessionID, title string) error {
	record, err := s.findOwned(userID, sessionID)
	if err != nil {
		return err
	}
	record.Title = title
	if err := s.sessionRepo.Update(record); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *sessionService) DeleteSession(ctx context.Context, userID uint, sessionID string) error {
	deleted, err := s.sessionRepo.SoftDelete(sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !deleted {
		return repository.ErrRecordNotFound
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *sessionService) AddTag(ctx context.Context, userID uint, sessionID, tagID string) (*model.TagConflictResult, error) {
	record, err := s.findOwned(userID, sessionID)
	if err != nil {
		return nil, err
	}

	tagIDs := splitTagIDs(record.TagIDs)
	for _, id := range tagIDs {
		if id == tagID {
			return &model.TagConflictResult{}, nil // 已存在，幂等
		}
	}

	result, err := s.tagSvc.ValidateAddition(tagIDs, tagID)
	if err != nil {
		return result, err
	}

	record.TagIDs = strings.Join(append(tagIDs, tagID), ",")
	if err := s.sessionRepo.Update(record); err != nil {
		return result, err
	}
	s.invalidate(ctx, userID)
	return result, nil
}

func (s *sessionService) RemoveTag(ctx context.Context, userID uint, sessionID, tagID string) error {
	record, err := s.findOwned(userID, sessionID)
	if err != nil {
		return err
	}

	tagIDs := splitTagIDs(record.TagIDs)
	kept := tagIDs[:0]
	for _, id := range tagIDs {
		if id != tagID {
			kept = append(kept, id)
		}
	}

	record.TagIDs = strings.Join(kept, ",")
	if err := s.sessionRepo.Update(record); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// findOwned 查找会话并校验归属。
func (s *sessionService) findOwned(userID uint, sessionID string) (*model.SessionRecord, error) {
	record, err := s.sessionRepo.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, repository.ErrRecordNotFound
	}
	return record, nil
}

func (s *sessionService) invalidate(ctx context.Context, userID uint) {
	if s.cacheRepo == nil {
		return
	}
	if err := s.cacheRepo.Invalidate(ctx, userID); err != nil {
		log.Warnf("会话列表缓存失效失败: %v", err)
	}
}

func splitTagIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

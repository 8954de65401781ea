package service

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
	"dietchat-go/pkg/llm"
	"dietchat-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// fakeLLMClient 是 llm.Client 的脚本化实现。
type fakeLLMClient struct {
	invokeOut  string
	invokeErr  error
	invokeKind llm.PromptKind

	streamChunks []string
	streamErr    error // Recv 在分块耗尽后返回的错误，nil 表示正常 EOF
	streamKind   llm.PromptKind
}

func (f *fakeLLMClient) Invoke(ctx context.Context, messages []llm.Message, kind llm.PromptKind) (string, error) {
	f.invokeKind = kind
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.invokeOut, f.invokeErr
}

func (f *fakeLLMClient) Stream(ctx context.Context, messages []llm.Message, kind llm.PromptKind) (llm.Stream, error) {
	f.streamKind = kind
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fakeStream{chunks: f.streamChunks, err: f.streamErr}, nil
}

type fakeStream struct {
	chunks []string
	err    error
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// mockSessionRepo 是 repository.SessionRepository 的内存实现。
// createHook 在每次 Create 入口处被调用，用于并发测试中的同步。
type mockSessionRepo struct {
	mu         sync.Mutex
	records    map[string]*model.SessionRecord
	createErr  error
	updateErr  error
	creates    int
	updates    int
	createHook func()
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{records: make(map[string]*model.SessionRecord)}
}

func (m *mockSessionRepo) Create(record *model.SessionRecord) error {
	if m.createHook != nil {
		m.createHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.creates++
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockSessionRepo) FindByID(id string) (*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *record
	return &cp, nil
}

func (m *mockSessionRepo) FindByUserID(userID uint) ([]model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionRecord
	for _, record := range m.records {
		if record.UserID == userID {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) Update(record *model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[record.ID]; !ok {
		return repository.ErrRecordNotFound
	}
	m.updates++
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockSessionRepo) SoftDelete(id string, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok || record.UserID != userID {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

// mockTagRepo 是 repository.TagRepository 的内存实现。
type mockTagRepo struct {
	tags    map[string]*model.DietTag
	rules   []model.TagConflictRule
	findErr error
}

func newMockTagRepo() *mockTagRepo {
	return &mockTagRepo{tags: make(map[string]*model.DietTag)}
}

func (m *mockTagRepo) Create(tag *model.DietTag) error {
	m.tags[tag.TagID] = tag
	return nil
}

func (m *mockTagRepo) FindByID(id string) (*model.DietTag, error) {
	tag, ok := m.tags[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return tag, nil
}

func (m *mockTagRepo) FindAll() ([]model.DietTag, error) {
	var out []model.DietTag
	for _, tag := range m.tags {
		out = append(out, *tag)
	}
	return out, nil
}

func (m *mockTagRepo) FindBatchByIDs(ids []string) ([]model.DietTag, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []model.DietTag
	for _, id := range ids {
		if tag, ok := m.tags[id]; ok {
			out = append(out, *tag)
		}
	}
	return out, nil
}

func (m *mockTagRepo) Update(tag *model.DietTag) error {
	m.tags[tag.TagID] = tag
	return nil
}

func (m *mockTagRepo) Delete(id string) error {
	delete(m.tags, id)
	return nil
}

func (m *mockTagRepo) CreateConflictRule(rule *model.TagConflictRule) error {
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *mockTagRepo) DeleteConflictRule(id uint) error {
	return nil
}

func (m *mockTagRepo) FindConflictRulesAmong(tagIDs []string) ([]model.TagConflictRule, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if len(tagIDs) < 2 {
		return nil, nil
	}
	in := make(map[string]bool, len(tagIDs))
	for _, id := range tagIDs {
		in[id] = true
	}
	var out []model.TagConflictRule
	for _, r := range m.rules {
		if in[r.TagA] && in[r.TagB] {
			out = append(out, r)
		}
	}
	return out, nil
}

// recordingSink 记录一轮对话发出的全部事件。
type recordingSink struct {
	mu       sync.Mutex
	chunks   []string
	statuses []model.MessageStatus
	promoted [][2]string
}

func (s *recordingSink) OnChunk(sessionID, messageID, chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
}

func (s *recordingSink) OnStatusChange(sessionID string, msg model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, msg.Status)
}

func (s *recordingSink) OnSessionPromoted(oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted = append(s.promoted, [2]string{oldID, newID})
}

func (s *recordingSink) statusList() []model.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.MessageStatus(nil), s.statuses...)
}

func (s *recordingSink) chunkList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chunks...)
}

// fakeSyncService 记录持久化调用，done 在每次 PersistOrSkip 后收到通知。
type fakeSyncService struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func newFakeSyncService() *fakeSyncService {
	return &fakeSyncService{done: make(chan struct{}, 16)}
}

func (f *fakeSyncService) PersistOrSkip(ctx context.Context, st *SessionState, userID uint) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeSyncService) LoadSessions(userID uint) ([]model.ChatSession, error) {
	return nil, nil
}

func (f *fakeSyncService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixedClassifier 总是返回固定意图。
type fixedClassifier struct {
	intent model.Intent
}

func (c *fixedClassifier) ClassifyOrDefault(ctx context.Context, history []llm.Message) model.Intent {
	return c.intent
}

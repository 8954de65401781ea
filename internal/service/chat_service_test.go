package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dietchat-go/internal/model"
	"dietchat-go/pkg/llm"
)

func newTestChatService(client *fakeLLMClient, intent model.Intent, syncSvc SyncService) ChatService {
	return NewChatService(&fixedClassifier{intent: intent}, NewStreamer(client), syncSvc, nil)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHandleTurnHappyPath(t *testing.T) {
	client := &fakeLLMClient{streamChunks: []string{"番茄", "炒蛋"}}
	syncSvc := newFakeSyncService()
	svc := newTestChatService(client, model.IntentRecipe, syncSvc)

	st := NewSessionState()
	sink := &recordingSink{}

	if err := svc.HandleTurn(context.Background(), st, 7, "晚饭吃什么", sink); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	chunks := sink.chunkList()
	if len(chunks) != 2 || chunks[0] != "番茄" || chunks[1] != "炒蛋" {
		t.Errorf("chunks = %v, want forwarded in order", chunks)
	}

	want := []model.MessageStatus{model.StatusDone, model.StatusPending, model.StatusStreaming, model.StatusDone}
	got := sink.statusList()
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}

	snapshot := st.Snapshot()
	last := snapshot.LastMessage()
	if last.Status != model.StatusDone || last.Content != "番茄炒蛋" {
		t.Errorf("assistant message = %+v, want done with full text", last)
	}
	if last.Type != model.TypeRecipe {
		t.Errorf("type = %s, want intent-derived type", last.Type)
	}

	// done 的轮次触发持久化
	select {
	case <-syncSvc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("persist was not triggered for a done turn")
	}
}

func TestHandleTurnProviderError(t *testing.T) {
	client := &fakeLLMClient{
		streamChunks: []string{"部分"},
		streamErr:    &llm.ProviderError{Status: 500, Message: "upstream down"},
	}
	syncSvc := newFakeSyncService()
	svc := newTestChatService(client, model.IntentChat, syncSvc)

	st := NewSessionState()
	sink := &recordingSink{}

	if err := svc.HandleTurn(context.Background(), st, 7, "hi", sink); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	snap := st.Snapshot()
	last := snap.LastMessage()
	if last.Status != model.StatusError {
		t.Errorf("status = %s, want error", last.Status)
	}
	// 已到达的分块保留
	if last.Content != "部分" {
		t.Errorf("content = %q, want partial text kept", last.Content)
	}

	// error 的轮次仍持久化
	select {
	case <-syncSvc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("persist was not triggered for an errored turn")
	}
}

// cancelingSink 在第一个分块到达时触发取消，模拟用户点击停止。
type cancelingSink struct {
	recordingSink
	once   sync.Once
	cancel func()
}

func (s *cancelingSink) OnChunk(sessionID, messageID, chunk string) {
	s.recordingSink.OnChunk(sessionID, messageID, chunk)
	s.once.Do(s.cancel)
}

func TestHandleTurnUserStopLeadsToAbort(t *testing.T) {
	client := &fakeLLMClient{
		streamChunks: []string{"第一块"},
		streamErr:    errors.New("connection reset"), // 取消引发的读错误
	}
	syncSvc := newFakeSyncService()
	svc := newTestChatService(client, model.IntentChat, syncSvc)

	st := NewSessionState()
	sink := &cancelingSink{}
	sink.cancel = func() { svc.CancelActive(st) }

	if err := svc.HandleTurn(context.Background(), st, 7, "hi", sink); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	snap := st.Snapshot()
	last := snap.LastMessage()
	if last.Status != model.StatusAbort {
		t.Errorf("status = %s, want abort", last.Status)
	}
	if last.Content != "第一块" {
		t.Errorf("content = %q, want partial text kept", last.Content)
	}

	// abort 与其他终态一样触发持久化，用户消息不随连接丢失
	select {
	case <-syncSvc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("persist was not triggered for an aborted turn")
	}
}

// ctxBlockingStream 发出一个分块后阻塞，直到调用被取消。
type ctxBlockingStream struct {
	ctx   context.Context
	chunk string
	sent  bool
}

func (s *ctxBlockingStream) Recv() (string, error) {
	if !s.sent {
		s.sent = true
		return s.chunk, nil
	}
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

func (s *ctxBlockingStream) Close() error { return nil }

// firstTurnBlockingClient 第一次流式调用阻塞到被取消，之后的调用正常完成。
type firstTurnBlockingClient struct {
	mu    sync.Mutex
	calls int
}

func (c *firstTurnBlockingClient) Invoke(ctx context.Context, messages []llm.Message, kind llm.PromptKind) (string, error) {
	return "", nil
}

func (c *firstTurnBlockingClient) Stream(ctx context.Context, messages []llm.Message, kind llm.PromptKind) (llm.Stream, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		return &ctxBlockingStream{ctx: ctx, chunk: "第一块"}, nil
	}
	return &fakeStream{chunks: []string{"新回答"}}, nil
}

func TestHandleTurnNewTurnImplicitlyCancelsPrior(t *testing.T) {
	client := &firstTurnBlockingClient{}
	syncSvc := newFakeSyncService()
	svc := NewChatService(&fixedClassifier{intent: model.IntentChat}, NewStreamer(client), syncSvc, nil)

	st := NewSessionState()
	sink := &recordingSink{}

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- svc.HandleTurn(context.Background(), st, 7, "第一问", sink)
	}()
	waitFor(t, func() bool { return len(sink.chunkList()) == 1 }, "first turn did not start streaming")

	// 第二帧到达：上一轮被隐式中断，本轮等待后正常完成，双方都不报错
	if err := svc.HandleTurn(context.Background(), st, 7, "第二问", sink); err != nil {
		t.Fatalf("second HandleTurn returned error: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Fatalf("first HandleTurn returned error: %v", err)
	}

	snapshot := st.Snapshot()
	if len(snapshot.Messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(snapshot.Messages))
	}
	if got := snapshot.Messages[1]; got.Status != model.StatusAbort || got.Content != "第一块" {
		t.Errorf("first assistant message = %+v, want aborted partial", got)
	}
	if last := snapshot.LastMessage(); last.Status != model.StatusDone || last.Content != "新回答" {
		t.Errorf("second turn result = %+v, want done", last)
	}
}

func TestHandleTurnAbortsLingeringMessage(t *testing.T) {
	client := &fakeLLMClient{streamChunks: []string{"新回答"}}
	syncSvc := newFakeSyncService()
	svc := newTestChatService(client, model.IntentChat, syncSvc)

	st := NewSessionState()
	st.AppendUserMessage("上一问")
	lingering, err := st.StartAssistantMessage(model.IntentChat)
	if err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	if err := svc.HandleTurn(context.Background(), st, 7, "新一问", sink); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	snapshot := st.Snapshot()
	// 残留消息被收敛为 abort，新一轮正常完成
	var lingeringStatus model.MessageStatus
	for _, msg := range snapshot.Messages {
		if msg.ID == lingering.ID {
			lingeringStatus = msg.Status
		}
	}
	if lingeringStatus != model.StatusAbort {
		t.Errorf("lingering message status = %s, want abort", lingeringStatus)
	}
	if last := snapshot.LastMessage(); last.Status != model.StatusDone || last.Content != "新回答" {
		t.Errorf("new turn result = %+v, want done", last)
	}
}

func TestHandleTurnPromotesSessionViaSync(t *testing.T) {
	client := &fakeLLMClient{streamChunks: []string{"好的"}}
	repo := newMockSessionRepo()
	svc := newTestChatService(client, model.IntentChat, NewSyncService(repo, nil))

	st := NewSessionState()
	localID := st.ID()
	sink := &recordingSink{}

	if err := svc.HandleTurn(context.Background(), st, 7, "hi", sink); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.promoted) == 1
	}, "session promotion was not notified")

	sink.mu.Lock()
	oldID, newID := sink.promoted[0][0], sink.promoted[0][1]
	sink.mu.Unlock()
	if oldID != localID {
		t.Errorf("promoted old id = %s, want %s", oldID, localID)
	}
	if newID != st.ID() || newID == localID {
		t.Errorf("promoted new id = %s, want rewritten server id", newID)
	}
}

func TestHandleTurnGuestNeverPersists(t *testing.T) {
	client := &fakeLLMClient{streamChunks: []string{"好的"}}
	repo := newMockSessionRepo()
	svc := newTestChatService(client, model.IntentChat, NewSyncService(repo, nil))

	st := NewSessionState()
	if err := svc.HandleTurn(context.Background(), st, 0, "hi", &recordingSink{}); err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if repo.creates != 0 {
		t.Error("guest turn must not touch the record store")
	}
	if !st.IsEphemeral() {
		t.Error("guest session must stay ephemeral")
	}
}

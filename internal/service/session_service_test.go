package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
)

func seedSessionRepo() *mockSessionRepo {
	repo := newMockSessionRepo()
	repo.Create(&model.SessionRecord{
		ID:       "sess-1",
		UserID:   7,
		Title:    "减脂餐咨询",
		Messages: `[{"id":"m1","role":"user","type":"chat","content":"hi","status":"done"}]`,
		TagIDs:   "vegetarian",
	})
	return repo
}

func newTestSessionService(repo *mockSessionRepo) SessionService {
	return NewSessionService(repo, nil, NewTagService(seedTagRepo()))
}

func TestGetSessionOwnershipCheck(t *testing.T) {
	svc := newTestSessionService(seedSessionRepo())

	sess, err := svc.GetSession(7, "sess-1")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if sess.Title != "减脂餐咨询" || len(sess.Messages) != 1 {
		t.Errorf("session = %+v, want restored record", sess)
	}

	// 他人的会话与不存在的会话表现一致
	if _, err := svc.GetSession(8, "sess-1"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("foreign session: got %v, want ErrRecordNotFound", err)
	}
	if _, err := svc.GetSession(7, "no-such"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("missing session: got %v, want ErrRecordNotFound", err)
	}
}

func TestRenameSession(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	if err := svc.RenameSession(context.Background(), 7, "sess-1", "新标题"); err != nil {
		t.Fatalf("RenameSession returned error: %v", err)
	}
	record, _ := repo.FindByID("sess-1")
	if record.Title != "新标题" {
		t.Errorf("title = %q, want 新标题", record.Title)
	}
}

func TestDeleteSession(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	if err := svc.DeleteSession(context.Background(), 7, "sess-1"); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	if _, err := repo.FindByID("sess-1"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Error("record must be gone after delete")
	}
	if err := svc.DeleteSession(context.Background(), 7, "sess-1"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("second delete: got %v, want ErrRecordNotFound", err)
	}
}

func TestAddTagBlocksOnMutuallyExclusive(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	result, err := svc.AddTag(context.Background(), 7, "sess-1", "carnivore")
	if !errors.Is(err, ErrTagConflict) {
		t.Fatalf("expected ErrTagConflict, got %v", err)
	}
	if result == nil || !result.HasBlocking() {
		t.Error("conflict details must accompany the rejection")
	}

	record, _ := repo.FindByID("sess-1")
	if strings.Contains(record.TagIDs, "carnivore") {
		t.Error("blocked tag must not be stored")
	}
}

func TestAddTagAllowsWarning(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	result, err := svc.AddTag(context.Background(), 7, "sess-1", "high-protein")
	if err != nil {
		t.Fatalf("AddTag returned error: %v", err)
	}
	if len(result.Warning) != 1 {
		t.Errorf("warning = %d, want 1", len(result.Warning))
	}

	record, _ := repo.FindByID("sess-1")
	if record.TagIDs != "vegetarian,high-protein" {
		t.Errorf("tag ids = %q, want appended", record.TagIDs)
	}
}

func TestAddTagIdempotent(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	if _, err := svc.AddTag(context.Background(), 7, "sess-1", "vegetarian"); err != nil {
		t.Fatalf("AddTag returned error: %v", err)
	}
	record, _ := repo.FindByID("sess-1")
	if record.TagIDs != "vegetarian" {
		t.Errorf("tag ids = %q, want unchanged", record.TagIDs)
	}
}

func TestRemoveTag(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	if err := svc.RemoveTag(context.Background(), 7, "sess-1", "vegetarian"); err != nil {
		t.Fatalf("RemoveTag returned error: %v", err)
	}
	record, _ := repo.FindByID("sess-1")
	if record.TagIDs != "" {
		t.Errorf("tag ids = %q, want empty", record.TagIDs)
	}
}

func TestListSessions(t *testing.T) {
	repo := seedSessionRepo()
	svc := newTestSessionService(repo)

	records, err := svc.ListSessions(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "sess-1" {
		t.Errorf("records = %+v, want the seeded session", records)
	}

	records, err = svc.ListSessions(context.Background(), 8)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("foreign user must not see sessions: %+v", records)
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"dietchat-go/internal/model"
	"dietchat-go/pkg/llm"
)

func TestStreamAccumulatesChunksInOrder(t *testing.T) {
	client := &fakeLLMClient{streamChunks: []string{"早餐", "可以", "喝粥"}}
	s := NewStreamer(client)

	var got []string
	full, err := s.Stream(context.Background(), nil, model.IntentChat, func(chunk string) {
		got = append(got, chunk)
	})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if full != "早餐可以喝粥" {
		t.Errorf("full = %q, want accumulated text", full)
	}
	if len(got) != 3 || got[0] != "早餐" || got[2] != "喝粥" {
		t.Errorf("chunks = %v, want in arrival order", got)
	}
}

func TestStreamIntentSelectsPromptKind(t *testing.T) {
	cases := []struct {
		intent model.Intent
		want   llm.PromptKind
	}{
		{model.IntentChat, llm.KindChat},
		{model.IntentRecipe, llm.KindRecipe},
		{model.IntentHealthAdvice, llm.KindHealthAdvice},
	}
	for _, tc := range cases {
		client := &fakeLLMClient{}
		s := NewStreamer(client)
		if _, err := s.Stream(context.Background(), nil, tc.intent, nil); err != nil {
			t.Fatal(err)
		}
		if client.streamKind != tc.want {
			t.Errorf("intent %s: kind = %s, want %s", tc.intent, client.streamKind, tc.want)
		}
	}
}

func TestStreamProviderErrorPassthrough(t *testing.T) {
	providerErr := &llm.ProviderError{Status: 500, Message: "upstream down"}
	client := &fakeLLMClient{streamChunks: []string{"部分"}, streamErr: providerErr}
	s := NewStreamer(client)

	_, err := s.Stream(context.Background(), nil, model.IntentChat, nil)
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestStreamCancelTakesPriorityOverReadError(t *testing.T) {
	// 取消常引发底层读错误，此时返回的应是取消本身
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeLLMClient{streamChunks: []string{"一"}, streamErr: errors.New("connection reset")}
	s := NewStreamer(client)

	_, err := s.Stream(ctx, nil, model.IntentChat, func(string) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStreamer(&fakeLLMClient{})

	_, err := s.Stream(ctx, nil, model.IntentChat, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

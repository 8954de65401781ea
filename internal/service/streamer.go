// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"io"
	"strings"

	"dietchat-go/internal/model"
	"dietchat-go/pkg/llm"
)

// Streamer 定义了流式生成管线的接口。
type Streamer interface {
	// Stream 以流式方式执行一次意图对应的生成调用。
	// 分块按到达顺序同步回调 onChunk 并累积，流正常结束时返回完整文本。
	// ctx 被取消时返回 ctx 的错误，调用方不应将其视为失败；
	// 传输层错误原样返回。
	Stream(ctx context.Context, history []llm.Message, intent model.Intent, onChunk func(string)) (string, error)
}

type streamService struct {
	client llm.Client
}

// NewStreamer 创建一个新的 Streamer 实例。
func NewStreamer(client llm.Client) Streamer {
	return &streamService{client: client}
}

func (s *streamService) Stream(ctx context.Context, history []llm.Message, intent model.Intent, onChunk func(string)) (string, error) {
	stream, err := s.client.Stream(ctx, history, promptKindFor(intent))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return builder.String(), nil
		}
		if err != nil {
			// 取消优先于取消引发的读错误
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}

		builder.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}

// promptKindFor 将意图映射到适配器的提示词种类。
func promptKindFor(intent model.Intent) llm.PromptKind {
	switch intent {
	case model.IntentRecipe:
		return llm.KindRecipe
	case model.IntentHealthAdvice:
		return llm.KindHealthAdvice
	default:
		return llm.KindChat
	}
}

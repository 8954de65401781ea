// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"dietchat-go/internal/config"
	"dietchat-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// ChatTurnEvent 描述一次已完成的助手回复，供下游离线分析消费。
// UserID 为 0 表示访客会话。
type ChatTurnEvent struct {
	SessionID  string    `json:"sessionId"`
	UserID     uint      `json:"userId"`
	Intent     string    `json:"intent"`
	Status     string    `json:"status"`
	Chars      int       `json:"chars"`
	LatencyMS  int64     `json:"latencyMs"`
	OccurredAt time.Time `json:"occurredAt"`
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceTurnEvent 发送一条对话轮次事件到 Kafka。
// 事件发送失败只影响分析链路，调用方记录日志即可，不应影响聊天主流程。
func ProduceTurnEvent(event ChatTurnEvent) error {
	if producer == nil {
		return nil // Kafka 未启用
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.SessionID),
			Value: eventBytes,
		},
	)
}

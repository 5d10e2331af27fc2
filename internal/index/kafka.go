package index

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink 将索引文档以JSON消息发布到Kafka主题, 消息键为页面URL
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink 创建Kafka文档流
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
		topic: topic,
	}
}

// NewKafkaSinkWithWriter 使用自定义writer (测试用)
func NewKafkaSinkWithWriter(writer messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

// IndexDocument 实现Sink接口
func (k *KafkaSink) IndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	payload, err := doc.ToJSON()
	if err != nil {
		return fmt.Errorf("%w: 序列化文档失败: %v", ErrIndexWrite, err)
	}

	msg := kafka.Message{
		Key:   []byte(doc.URL),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: 发布到Kafka主题 %s 失败: %v", ErrIndexWrite, k.topic, err)
	}
	return nil
}

// Close 关闭writer
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

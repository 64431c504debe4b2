package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/logger"
)

// Producer Kafka生产者，问答审计消息走这里
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// AnswerAuditMessage 单次问答的审计记录
type AnswerAuditMessage struct {
	SessionID         string    `json:"session_id"`
	Query             string    `json:"query"`
	Answer            string    `json:"answer"`
	EquipmentModel    string    `json:"equipment_model,omitempty"`
	ConfidenceScore   float64   `json:"confidence_score"`
	ValidationOutcome string    `json:"validation_outcome"`
	CitationSources   []string  `json:"citation_sources,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendAuditMessage 发送审计消息
func (p *Producer) SendAuditMessage(msg *AnswerAuditMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal audit message: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.SessionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("outcome"),
				Value: []byte(msg.ValidationOutcome),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		logger.Error("Failed to send kafka audit message", zap.Error(err))
		return fmt.Errorf("failed to send audit message: %w", err)
	}

	logger.Debug("Kafka audit message sent",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("session_id", msg.SessionID))

	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// AuditAnswer 审计一次问答（便捷方法）
// Kafka未配置时静默跳过，审计永远不影响主流程
func AuditAnswer(msg *AnswerAuditMessage) error {
	producer := GetProducer()
	if producer == nil {
		logger.Debug("Kafka producer not configured, skipping answer audit")
		return nil
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return producer.SendAuditMessage(msg)
}

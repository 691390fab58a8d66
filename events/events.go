// Package events publishes import job outcomes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/config"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/Shopify/sarama"
)

// Event types
const (
	TypeJobCompleted = "import.job.completed"
	TypeJobFailed    = "import.job.failed"
)

// JobEvent is the payload published after a terminal job transition
type JobEvent struct {
	Type          string     `json:"type"`
	JobID         string     `json:"jobId"`
	UserID        string     `json:"userId"`
	MeterID       string     `json:"meterId"`
	Status        string     `json:"status"`
	FromUtc       time.Time  `json:"fromUtc"`
	ToUtc         time.Time  `json:"toUtc"`
	ImportedCount int        `json:"importedCount"`
	ErrorCode     *string    `json:"errorCode,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// NewJobEvent builds the event of a terminal job
func NewJobEvent(job models.ImportJob) JobEvent {
	eventType := TypeJobCompleted
	if job.Status == models.ImportJobFailed {
		eventType = TypeJobFailed
	}
	return JobEvent{
		Type:          eventType,
		JobID:         job.ID,
		UserID:        job.UserID,
		MeterID:       job.MeterID,
		Status:        string(job.Status),
		FromUtc:       job.FromUtc,
		ToUtc:         job.ToUtc,
		ImportedCount: job.ImportedCount,
		ErrorCode:     job.ErrorCode,
		CompletedAt:   job.CompletedAt,
	}
}

// Publisher sends job events
type Publisher interface {
	PublishJob(ctx context.Context, job models.ImportJob) error
	Close() error
}

// NoOpPublisher drops every event
type NoOpPublisher struct{}

func (NoOpPublisher) PublishJob(context.Context, models.ImportJob) error { return nil }
func (NoOpPublisher) Close() error                                       { return nil }

// KafkaPublisher writes events to a topic, keyed by meter so one meter's events stay ordered
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the configured brokers
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "daily-watt"
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishJob(ctx context.Context, job models.ImportJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := NewJobEvent(job)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(job.MeterID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s for job %s: %w", event.Type, job.ID, err)
	}

	logger.Debugf("Published %s for job %s to %s[%d]@%d", event.Type, job.ID, p.topic, partition, offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

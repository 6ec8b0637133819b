package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// ResultPublisher publishes judge results for async consumption.
type ResultPublisher interface {
	Publish(ctx context.Context, res model.JudgeResult) error
}

// MQResultPublisher publishes judge results to a message queue.
type MQResultPublisher struct {
	queue mq.MessageQueue
	topic string
}

// NewMQResultPublisher creates a new MQ result publisher.
func NewMQResultPublisher(queue mq.MessageQueue, topic string) *MQResultPublisher {
	if topic == "" {
		topic = model.TopicResults
	}
	return &MQResultPublisher{queue: queue, topic: topic}
}

// Publish publishes a final judge result.
func (p *MQResultPublisher) Publish(ctx context.Context, res model.JudgeResult) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("result publisher is not configured")
	}
	if res.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal judge result failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = res.SubmissionID
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish judge result failed")
	}
	return nil
}

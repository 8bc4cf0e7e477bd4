// Package event announces terminal submission results on the message queue.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coderank/internal/common/mq"
	"coderank/internal/submission/model"
	appErr "coderank/pkg/errors"
)

const StatusEventFinal = "final"

// StatusEvent is the payload written for every terminal submission. Source code is never included.
type StatusEvent struct {
	Type            string       `json:"type"`
	SubmissionID    string       `json:"submission_id"`
	OwnerID         string       `json:"owner_id"`
	Language        string       `json:"language"`
	Status          model.Status `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	MemoryUsedKB    int64        `json:"memory_used_kb"`
	CreatedAt       int64        `json:"created_at"`
	CompletedAt     int64        `json:"completed_at,omitempty"`
	PublishedAt     int64        `json:"published_at"`
}

// StatusEventPublisher publishes terminal status events.
type StatusEventPublisher interface {
	PublishFinalStatus(ctx context.Context, submission *model.Submission) error
}

// MQStatusEventPublisher publishes status events to a message queue keyed by submission id.
type MQStatusEventPublisher struct {
	producer mq.Producer
	topic    string
	now      func() time.Time
}

func NewMQStatusEventPublisher(producer mq.Producer, topic string) *MQStatusEventPublisher {
	return &MQStatusEventPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *MQStatusEventPublisher) PublishFinalStatus(ctx context.Context, submission *model.Submission) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("status publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("status topic is required")
	}
	if submission == nil || submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if !submission.Status.Terminal() {
		return appErr.New(appErr.InvalidParams).WithMessagef("status %s is not terminal", submission.Status)
	}

	payload, err := json.Marshal(NewStatusEvent(submission, p.now()))
	if err != nil {
		return fmt.Errorf("marshal status event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = submission.ID
	message.SetHeader("status", string(submission.Status))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish status event failed")
	}
	return nil
}

// NewStatusEvent builds the event for a terminal record.
func NewStatusEvent(submission *model.Submission, now time.Time) StatusEvent {
	event := StatusEvent{
		Type:            StatusEventFinal,
		SubmissionID:    submission.ID,
		OwnerID:         submission.OwnerID,
		Language:        string(submission.Language),
		Status:          submission.Status,
		ErrorMessage:    submission.ErrorMessage,
		ExecutionTimeMs: submission.ExecutionTimeMs,
		MemoryUsedKB:    submission.MemoryUsedKB,
		CreatedAt:       submission.CreatedAt.Unix(),
		PublishedAt:     now.Unix(),
	}
	if submission.CompletedAt != nil {
		event.CompletedAt = submission.CompletedAt.Unix()
	}
	return event
}

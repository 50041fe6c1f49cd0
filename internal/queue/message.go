// Package queue hands submitted tasks from the API to the worker over RabbitMQ.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tryon/internal/domain"
)

// TaskMessage is published once per submitted provider task.
type TaskMessage struct {
	TaskID         string      `json:"taskId"`
	OwnerID        string      `json:"ownerId"`
	Email          string      `json:"email,omitempty"`
	Locale         string      `json:"locale,omitempty"`
	Kind           domain.Kind `json:"kind"`
	Plan           domain.Plan `json:"plan"`
	TemplateID     string      `json:"templateId,omitempty"`
	RequestedModel string      `json:"requestedModel"`
	EffectiveModel string      `json:"effectiveModel"`
	SubmittedAt    time.Time   `json:"submittedAt"`
}

// MessageFromTask builds the message for a freshly submitted task.
func MessageFromTask(task domain.GenerationTask, plan domain.Plan, email, locale string) TaskMessage {
	return TaskMessage{
		TaskID:         task.TaskID,
		OwnerID:        task.OwnerID,
		Email:          email,
		Locale:         locale,
		Kind:           task.Kind,
		Plan:           plan,
		TemplateID:     task.TemplateID,
		RequestedModel: task.RequestedModel,
		EffectiveModel: task.EffectiveModel,
		SubmittedAt:    task.CreatedAt,
	}
}

// Task rebuilds the processing task the message describes.
func (m TaskMessage) Task() domain.GenerationTask {
	return domain.GenerationTask{
		TaskID:         m.TaskID,
		OwnerID:        m.OwnerID,
		Kind:           m.Kind,
		TemplateID:     m.TemplateID,
		RequestedModel: m.RequestedModel,
		EffectiveModel: m.EffectiveModel,
		Status:         domain.TaskStatusProcessing,
		CreatedAt:      m.SubmittedAt,
		UpdatedAt:      m.SubmittedAt,
	}
}

// Validate rejects messages the worker cannot act on.
func (m TaskMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.TaskID) == "":
		return errors.New("queue: task id is required")
	case strings.TrimSpace(m.OwnerID) == "":
		return errors.New("queue: owner id is required")
	case !m.Kind.Valid():
		return fmt.Errorf("queue: unknown kind %q", m.Kind)
	}
	return nil
}

// EncodeTask serializes a message.
func EncodeTask(m TaskMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeTask parses and validates a message body.
func DecodeTask(body []byte) (TaskMessage, error) {
	var m TaskMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return TaskMessage{}, fmt.Errorf("queue: decode task: %w", err)
	}
	if err := m.Validate(); err != nil {
		return TaskMessage{}, err
	}
	return m, nil
}

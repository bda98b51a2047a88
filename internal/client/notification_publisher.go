package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes workflow events to NATS JetStream for
// consumption by the platform notifications service.
//
// Subject convention: notifications.workflow.<event_type>
// Event types: review_requested, reviewer_validated, reviewer_returned,
//              forwarded_to_hop, entity_approved, entity_rejected,
//              workflow_reopened
//
// All publish operations are non-fatal — errors are logged but never propagated
// to the caller, so notification failures never interrupt workflow transitions.
type NotificationPublisher struct {
	nats *NATSClient
	log  zerolog.Logger
}

// WorkflowEvent is the JSON schema published to NATS.
type WorkflowEvent struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	ActorID    string                 `json:"actor_id"`
	Recipients []string               `json:"recipients"`
	Severity   string                 `json:"severity,omitempty"`
	Category   string                 `json:"category,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS client.
// A nil client disables publishing.
func NewNotificationPublisher(nats *NATSClient, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishWorkflowEvent publishes a workflow transition event to NATS.
// Subject: notifications.workflow.<eventType>
func (p *NotificationPublisher) PublishWorkflowEvent(ctx context.Context, eventType, entityType, entityID, workflowID, actorID string, recipients []string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &WorkflowEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		WorkflowID: workflowID,
		ActorID:    actorID,
		Recipients: recipients,
		Severity:   "info",
		Category:   "entity_workflow",
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.workflow.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("entity_id", entityID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("entity_id", entityID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

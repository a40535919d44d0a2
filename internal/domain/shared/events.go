// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Learner events
	EventLearnerEnrolled EventType = "learner.enrolled"
	EventLearnerUpdated  EventType = "learner.updated"

	// Transition events
	EventTransitionRequested   EventType = "transition.requested"
	EventTransitionApproved    EventType = "transition.approved"
	EventTransitionRejected    EventType = "transition.rejected"
	EventTransitionConditional EventType = "transition.conditional"

	// Progression events
	EventRoleAdvanced  EventType = "progression.role_advanced"
	EventAutoPromoted  EventType = "progression.auto_promoted"
	EventSweepFinished EventType = "progression.sweep_finished"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Learner Events
// ═══════════════════════════════════════════════════════════════════════════

// LearnerEnrolledEvent is emitted when a new learner profile is created.
type LearnerEnrolledEvent struct {
	BaseEvent
	LearnerID   string `json:"learner_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	EntryRole   string `json:"entry_role"`
}

// Payload implements Event interface.
func (e LearnerEnrolledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":   e.LearnerID,
		"email":        e.Email,
		"display_name": e.DisplayName,
		"entry_role":   e.EntryRole,
	}
}

// NewLearnerEnrolledEvent creates a new LearnerEnrolledEvent.
func NewLearnerEnrolledEvent(learnerID, email, displayName, entryRole string) LearnerEnrolledEvent {
	return LearnerEnrolledEvent{
		BaseEvent:   NewBaseEvent(EventLearnerEnrolled, learnerID),
		LearnerID:   learnerID,
		Email:       email,
		DisplayName: displayName,
		EntryRole:   entryRole,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Transition Events
// ═══════════════════════════════════════════════════════════════════════════

// TransitionRequestedEvent is emitted when a progression request is created.
type TransitionRequestedEvent struct {
	BaseEvent
	TransitionID string `json:"transition_id"`
	LearnerID    string `json:"learner_id"`
	FromRole     string `json:"from_role"`
	ToRole       string `json:"to_role"`
	Automatic    bool   `json:"automatic"`
}

// Payload implements Event interface.
func (e TransitionRequestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transition_id": e.TransitionID,
		"learner_id":    e.LearnerID,
		"from_role":     e.FromRole,
		"to_role":       e.ToRole,
		"automatic":     e.Automatic,
	}
}

// NewTransitionRequestedEvent creates a new TransitionRequestedEvent.
func NewTransitionRequestedEvent(transitionID, learnerID, fromRole, toRole string, automatic bool) TransitionRequestedEvent {
	return TransitionRequestedEvent{
		BaseEvent:    NewBaseEvent(EventTransitionRequested, learnerID),
		TransitionID: transitionID,
		LearnerID:    learnerID,
		FromRole:     fromRole,
		ToRole:       toRole,
		Automatic:    automatic,
	}
}

// TransitionDecidedEvent is emitted when a reviewer (or the auto-approval
// path) decides a pending transition. The event type distinguishes the
// outcome: approved, rejected or conditional.
type TransitionDecidedEvent struct {
	BaseEvent
	TransitionID string `json:"transition_id"`
	LearnerID    string `json:"learner_id"`
	FromRole     string `json:"from_role"`
	ToRole       string `json:"to_role"`
	DecidedBy    string `json:"decided_by"`
	Notes        string `json:"notes,omitempty"`
}

// Payload implements Event interface.
func (e TransitionDecidedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transition_id": e.TransitionID,
		"learner_id":    e.LearnerID,
		"from_role":     e.FromRole,
		"to_role":       e.ToRole,
		"decided_by":    e.DecidedBy,
		"notes":         e.Notes,
	}
}

// NewTransitionDecidedEvent creates a new TransitionDecidedEvent with the
// given outcome event type.
func NewTransitionDecidedEvent(outcome EventType, transitionID, learnerID, fromRole, toRole, decidedBy, notes string) TransitionDecidedEvent {
	return TransitionDecidedEvent{
		BaseEvent:    NewBaseEvent(outcome, learnerID),
		TransitionID: transitionID,
		LearnerID:    learnerID,
		FromRole:     fromRole,
		ToRole:       toRole,
		DecidedBy:    decidedBy,
		Notes:        notes,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// RoleAdvancedEvent is emitted after a role change has been propagated to
// every denormalized copy of the learner's role.
type RoleAdvancedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	FromRole  string `json:"from_role"`
	ToRole    string `json:"to_role"`
	NewLevel  int    `json:"new_level"`
	Automatic bool   `json:"automatic"`
}

// Payload implements Event interface.
func (e RoleAdvancedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"from_role":  e.FromRole,
		"to_role":    e.ToRole,
		"new_level":  e.NewLevel,
		"automatic":  e.Automatic,
	}
}

// NewRoleAdvancedEvent creates a new RoleAdvancedEvent.
func NewRoleAdvancedEvent(learnerID, fromRole, toRole string, newLevel int, automatic bool) RoleAdvancedEvent {
	return RoleAdvancedEvent{
		BaseEvent: NewBaseEvent(EventRoleAdvanced, learnerID),
		LearnerID: learnerID,
		FromRole:  fromRole,
		ToRole:    toRole,
		NewLevel:  newLevel,
		Automatic: automatic,
	}
}

// AutoPromotedEvent is emitted when the background eligibility sweep
// promotes a learner without a manual request.
type AutoPromotedEvent struct {
	BaseEvent
	TransitionID string  `json:"transition_id"`
	LearnerID    string  `json:"learner_id"`
	FromRole     string  `json:"from_role"`
	ToRole       string  `json:"to_role"`
	AverageScore float64 `json:"average_score"`
	Simulations  int     `json:"simulations"`
}

// Payload implements Event interface.
func (e AutoPromotedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transition_id": e.TransitionID,
		"learner_id":    e.LearnerID,
		"from_role":     e.FromRole,
		"to_role":       e.ToRole,
		"average_score": e.AverageScore,
		"simulations":   e.Simulations,
	}
}

// NewAutoPromotedEvent creates a new AutoPromotedEvent.
func NewAutoPromotedEvent(transitionID, learnerID, fromRole, toRole string, avgScore float64, simulations int) AutoPromotedEvent {
	return AutoPromotedEvent{
		BaseEvent:    NewBaseEvent(EventAutoPromoted, learnerID),
		TransitionID: transitionID,
		LearnerID:    learnerID,
		FromRole:     fromRole,
		ToRole:       toRole,
		AverageScore: avgScore,
		Simulations:  simulations,
	}
}

// SweepFinishedEvent summarizes one run of the background eligibility sweep.
type SweepFinishedEvent struct {
	BaseEvent
	Evaluated int           `json:"evaluated"`
	Advanced  int           `json:"advanced"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e SweepFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"evaluated": e.Evaluated,
		"advanced":  e.Advanced,
		"skipped":   e.Skipped,
		"failed":    e.Failed,
		"duration":  e.Duration.String(),
	}
}

// NewSweepFinishedEvent creates a new SweepFinishedEvent.
func NewSweepFinishedEvent(evaluated, advanced, skipped, failed int, duration time.Duration) SweepFinishedEvent {
	return SweepFinishedEvent{
		BaseEvent: NewBaseEvent(EventSweepFinished, "system"),
		Evaluated: evaluated,
		Advanced:  advanced,
		Skipped:   skipped,
		Failed:    failed,
		Duration:  duration,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

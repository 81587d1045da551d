// Package events defines the jobs and notifications exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const JobsTopic = "cadence.jobs"                   // Asynchronous work consumed by the worker
const NotificationsTopic = "cadence.notifications" // Out-of-band pushes to salespeople and automation

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Jobs.
	LaunchRequestedEvent      EventType = "cadence.launch.requested"
	PauseRequestedEvent       EventType = "cadence.pause.requested"
	RecalculateRequestedEvent EventType = "queue.recalculate.requested"
	CRMMirrorRequestedEvent   EventType = "crm.mirror.requested"

	// Notifications.
	WorkflowTriggeredEvent         EventType = "workflow.triggered"
	AutomationCancelRequestedEvent EventType = "automation.cancel.requested"
	TaskSummaryChangedEvent        EventType = "task.summary.changed"
	LaunchFinishedEvent            EventType = "cadence.launch.finished"
	TasksDeletedEvent              EventType = "tasks.deleted"
)

// Event is anything that can travel on the bus.
type Event interface {
	GetType() EventType
}

// TopicFor returns the topic an event type is published to.
func TopicFor(eventType EventType) string {
	switch eventType {
	case LaunchRequestedEvent, PauseRequestedEvent, RecalculateRequestedEvent, CRMMirrorRequestedEvent:
		return JobsTopic
	default:
		return NotificationsTopic
	}
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// LaunchRequested asks the worker to run the bulk launch of a cadence already
// moved to processing. PreviousStatus is restored if the launch cannot start.
type LaunchRequested struct {
	BaseEvent

	CadenceID      string               `json:"cadence_id"`
	PreviousStatus models.CadenceStatus `json:"previous_status"`
	ActorID        string               `json:"actor_id"`
}

func (e LaunchRequested) GetType() EventType {
	return LaunchRequestedEvent
}

// PauseRequested asks the worker to run the asynchronous tail of a cadence pause.
type PauseRequested struct {
	BaseEvent

	CadenceID      string               `json:"cadence_id"`
	PreviousStatus models.CadenceStatus `json:"previous_status"`
	PauseFor       *time.Time           `json:"pause_for,omitempty"`
	ActorID        string               `json:"actor_id"`
}

func (e PauseRequested) GetType() EventType {
	return PauseRequestedEvent
}

type RecalculateRequested struct {
	BaseEvent

	UserID string `json:"user_id"`
}

func (e RecalculateRequested) GetType() EventType {
	return RecalculateRequestedEvent
}

// CRMMirrorRequested mirrors a lead-cadence status change into the connected CRM.
type CRMMirrorRequested struct {
	BaseEvent

	LeadID    string                   `json:"lead_id"`
	CadenceID string                   `json:"cadence_id"`
	Status    models.LeadCadenceStatus `json:"status"`
	Reason    string                   `json:"reason,omitempty"`
	Attempt   int                      `json:"attempt"`
}

func (e CRMMirrorRequested) GetType() EventType {
	return CRMMirrorRequestedEvent
}

type WorkflowTriggered struct {
	BaseEvent

	Trigger   string `json:"trigger"`
	CadenceID string `json:"cadence_id"`
	LeadID    string `json:"lead_id"`
}

func (e WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

// AutomationCancelRequested tells the automation system to drop scheduled work
// for a cadence, or for one lead in it when LeadID is set.
type AutomationCancelRequested struct {
	BaseEvent

	CadenceID string `json:"cadence_id"`
	LeadID    string `json:"lead_id,omitempty"`
}

func (e AutomationCancelRequested) GetType() EventType {
	return AutomationCancelRequestedEvent
}

type TaskSummaryChanged struct {
	BaseEvent

	UserID        string `json:"user_id"`
	TodayCount    int    `json:"today_count"`
	HighPriority  int    `json:"high_priority"`
	StandardCount int    `json:"standard"`
	Outstanding   int    `json:"outstanding"`
}

func (e TaskSummaryChanged) GetType() EventType {
	return TaskSummaryChangedEvent
}

// LeadFailure records why a single lead could not be started.
type LeadFailure struct {
	LeadID string `json:"lead_id"`
	Error  string `json:"error"`
}

type LaunchFinished struct {
	BaseEvent

	CadenceID string               `json:"cadence_id"`
	Status    models.CadenceStatus `json:"status"`
	Started   int                  `json:"started"`
	Failures  []LeadFailure        `json:"failures,omitempty"`
}

func (e LaunchFinished) GetType() EventType {
	return LaunchFinishedEvent
}

type TasksDeleted struct {
	BaseEvent

	UserID    string   `json:"user_id"`
	CadenceID string   `json:"cadence_id"`
	NodeID    string   `json:"node_id"`
	TaskIDs   []string `json:"task_ids"`
}

func (e TasksDeleted) GetType() EventType {
	return TasksDeletedEvent
}

// New returns an empty event of the given type ready to be decoded into.
func New(eventType EventType) (Event, bool) {
	switch eventType {
	case LaunchRequestedEvent:
		return &LaunchRequested{}, true
	case PauseRequestedEvent:
		return &PauseRequested{}, true
	case RecalculateRequestedEvent:
		return &RecalculateRequested{}, true
	case CRMMirrorRequestedEvent:
		return &CRMMirrorRequested{}, true
	case WorkflowTriggeredEvent:
		return &WorkflowTriggered{}, true
	case AutomationCancelRequestedEvent:
		return &AutomationCancelRequested{}, true
	case TaskSummaryChangedEvent:
		return &TaskSummaryChanged{}, true
	case LaunchFinishedEvent:
		return &LaunchFinished{}, true
	case TasksDeletedEvent:
		return &TasksDeleted{}, true
	default:
		return nil, false
	}
}

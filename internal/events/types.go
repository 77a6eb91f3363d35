package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// PermissionGranted is emitted after a direct or group grant is written.
	PermissionGranted EventType = "permission.granted"
	// PermissionRevoked is emitted after a grant is removed.
	PermissionRevoked EventType = "permission.revoked"
	// RoleAssigned is emitted after a workspace or subspace role assignment.
	RoleAssigned EventType = "permission.role.assigned"
	// RoleRemoved is emitted after a workspace or subspace role removal.
	RoleRemoved EventType = "permission.role.removed"
	// PermissionBulkChanged is emitted for bulk level changes across documents.
	PermissionBulkChanged EventType = "permission.bulk.changed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

// AffectedResource is one sub-resource touched by a permission
// mutation, with the level it ended up at.
type AffectedResource struct {
	ID    string `json:"id"`
	Level string `json:"level"`
}

// PermissionChangedEvent is the notification payload for a permission
// mutation. Rapid successive events with the same dedup key are merged
// by the coalescer before delivery.
type PermissionChangedEvent struct {
	BaseEvent
	ActorID      string             `json:"actor_id"`
	ResourceID   string             `json:"resource_id"`
	ResourceType string             `json:"resource_type"`
	WorkspaceID  string             `json:"workspace_id,omitempty"`
	SubjectType  string             `json:"subject_type,omitempty"`
	SubjectID    string             `json:"subject_id,omitempty"`
	Level        string             `json:"level,omitempty"`
	Affected     []AffectedResource `json:"affected,omitempty"`
}

func NewPermissionChangedEvent(eventType EventType, actorID, resourceID, resourceType string) *PermissionChangedEvent {
	return &PermissionChangedEvent{
		BaseEvent: BaseEvent{
			ID:        generateEventID(),
			Type:      eventType,
			Timestamp: time.Now().Unix(),
			Version:   "1.0",
		},
		ActorID:      actorID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
	}
}

// DedupKey identifies the coalescing bucket for this event.
func (e *PermissionChangedEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s", e.Type, e.ActorID, e.ResourceID)
}

// Merge folds a later event for the same dedup key into this one.
// Scalar fields take the later event's values; the affected list is a
// set union keyed by sub-resource id, where the later entry for an id
// overwrites the earlier one.
func (e *PermissionChangedEvent) Merge(next *PermissionChangedEvent) {
	e.Timestamp = next.Timestamp
	e.Version = next.Version
	if next.WorkspaceID != "" {
		e.WorkspaceID = next.WorkspaceID
	}
	if next.SubjectType != "" {
		e.SubjectType = next.SubjectType
	}
	if next.SubjectID != "" {
		e.SubjectID = next.SubjectID
	}
	if next.Level != "" {
		e.Level = next.Level
	}

	for _, incoming := range next.Affected {
		replaced := false
		for i, existing := range e.Affected {
			if existing.ID == incoming.ID {
				e.Affected[i] = incoming
				replaced = true
				break
			}
		}
		if !replaced {
			e.Affected = append(e.Affected, incoming)
		}
	}
}

func (e *PermissionChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func generateEventID() string {
	return time.Now().Format("20060102150405") + "-" + uuid.NewString()[:8]
}

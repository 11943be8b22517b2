package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names a staff action worth keeping a trail of.
type AuditAction string

const (
	AuditRoutineAssigned    AuditAction = "ROUTINE_ASSIGNED"
	AuditPlanActivated      AuditAction = "PLAN_ACTIVATED"
	AuditSnapshotItemEdited AuditAction = "SNAPSHOT_ITEM_EDITED"
	AuditCatalogSynced      AuditAction = "CATALOG_SYNCED"
	AuditUserDeactivated    AuditAction = "USER_DEACTIVATED"
	AuditClientCreated      AuditAction = "CLIENT_CREATED"
	AuditStaffCreated       AuditAction = "STAFF_CREATED"
	AuditTrainerAssigned    AuditAction = "TRAINER_ASSIGNED"
)

// AuditEntry records who did what to which target, and when.
type AuditEntry struct {
	ID         uuid.UUID         `json:"id"`
	ActorID    uuid.UUID         `json:"actorId"`
	ActorRole  Role              `json:"actorRole"`
	Action     AuditAction       `json:"action"`
	TargetType string            `json:"targetType"` // "plan", "snapshot_item", "catalog", "user"
	TargetID   string            `json:"targetId"`
	ClientID   *uuid.UUID        `json:"clientId,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	ActorID  *uuid.UUID
	ClientID *uuid.UUID
	Action   AuditAction
	Since    *time.Time
	Limit    int
}

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

func (f AuditFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return DefaultAuditLimit
	}
	return f.Limit
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditEventType string

const (
	EventCodeGenerated      AuditEventType = "CODE_GENERATED"
	EventCodeRedeemed       AuditEventType = "CODE_REDEEMED"
	EventCodeRejected       AuditEventType = "CODE_REJECTED"
	EventCodeDeleted        AuditEventType = "CODE_DELETED"
	EventBatchDeleted       AuditEventType = "BATCH_DELETED"
	EventEntitlementGranted AuditEventType = "ENTITLEMENT_GRANTED"
	EventEntitlementRevoked AuditEventType = "ENTITLEMENT_REVOKED"
)

// AuditEvent is one structured record of a state transition or rejection.
type AuditEvent struct {
	ID         string            `json:"id"`
	Type       AuditEventType    `json:"type"`
	ActorID    string            `json:"actor_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	GameID     string            `json:"game_id,omitempty"`
	CodeID     string            `json:"code_id,omitempty"`
	Code       string            `json:"code,omitempty"`
	BatchTag   string            `json:"batch_tag,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func NewAuditEvent(t AuditEventType) AuditEvent {
	return AuditEvent{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC()}
}

// Role is the coarse privilege level supplied by the identity collaborator.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

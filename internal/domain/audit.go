package domain

import (
	"context"
	"time"
)

// AuditLog is an append-only record of a state-changing action
type AuditLog struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	UserID        string         `json:"userId,omitempty"`
	InstitutionID string         `json:"institutionId,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// AuditRepository appends audit records. There is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditLog) error
}

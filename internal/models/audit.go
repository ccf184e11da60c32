package models

import "time"

// Audit event types.
const (
	AuditCommand          = "command"
	AuditPrompt           = "prompt"
	AuditReply            = "reply"
	AuditRandomReply      = "random_reply"
	AuditPermissionDenied = "permission_denied"
	AuditConfigChange     = "config_change"
	AuditError            = "error"
)

// AuditEntry records one bot event: a command handled, a prompt relayed, a
// permission denial, a config change, or a failure. The control panel
// reads these for its activity feed.
type AuditEntry struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	CommunityID string `gorm:"size:64;index"`
	Event       string `gorm:"size:32;not null;index"`
	UserName    string `gorm:"size:128"`
	Content     string `gorm:"type:text"`
	Response    string `gorm:"type:text"`
	CreatedAt   time.Time
}

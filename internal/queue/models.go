// internal/queue/models.go
package queue

import "time"

// Platform is a delivery target for a queue item.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformTwitter  Platform = "twitter"
	PlatformTelegram Platform = "telegram"
	PlatformEmail    Platform = "email"
	PlatformSlack    Platform = "slack"
)

// Priority orders claims within a platform.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status is the queue item lifecycle state. Legal transitions:
// pending -> processing -> posted|failed, or pending -> rejected.
// Terminal states are immutable.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPosted     Status = "posted"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// Terminal reports whether s permits no further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusPosted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// Item is one enqueued piece of content.
type Item struct {
	ID          string
	Content     string
	Platform    Platform
	Priority    Priority
	Status      Status
	Source      string
	Metadata    map[string]interface{}
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ValidPlatform reports whether p is a recognized delivery target.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformLinkedIn, PlatformTwitter, PlatformTelegram, PlatformEmail, PlatformSlack:
		return true
	}
	return false
}

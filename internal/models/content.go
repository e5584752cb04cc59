package models

import "time"

// ContentStatus tracks a generated draft through review and publishing
type ContentStatus string

const (
	ContentStatusDraft      ContentStatus = "draft"
	ContentStatusPending    ContentStatus = "pending"
	ContentStatusApproved   ContentStatus = "approved"
	ContentStatusRejected   ContentStatus = "rejected"
	ContentStatusPublishing ContentStatus = "publishing"
	ContentStatusPublished  ContentStatus = "published"
	ContentStatusFailed     ContentStatus = "failed"
	ContentStatusDeleted    ContentStatus = "deleted"
)

// ContentStyle selects the voice of generated replies
type ContentStyle string

const (
	StyleHelpfulExpert ContentStyle = "helpful_expert"
	StyleCasual        ContentStyle = "casual"
	StyleTechnical     ContentStyle = "technical"
	StyleStorytelling  ContentStyle = "storytelling"
)

// AllContentStyles lists every style the generator can produce
var AllContentStyles = []ContentStyle{
	StyleHelpfulExpert, StyleCasual, StyleTechnical, StyleStorytelling,
}

// ContentType is the kind of Reddit submission
type ContentType string

const (
	ContentTypeComment ContentType = "comment"
	ContentTypePost    ContentType = "post"
	ContentTypeReply   ContentType = "reply"
)

// GeneratedContent is an AI-drafted reply for an opportunity. Regeneration
// creates a new row with a bumped Version, older versions stay for audit.
type GeneratedContent struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	ProjectID     uint         `gorm:"index;not null" json:"project_id"`
	OpportunityID uint         `gorm:"index;not null" json:"opportunity_id"`
	Opportunity   *Opportunity `gorm:"foreignKey:OpportunityID" json:"opportunity,omitempty"`

	ContentType ContentType  `gorm:"default:'comment'" json:"content_type"`
	Style       ContentStyle `json:"style"`
	Body        string       `gorm:"type:text;not null" json:"body"`
	Version     int          `gorm:"default:1" json:"version"`

	Status ContentStatus `gorm:"index;default:'draft'" json:"status"`

	Generation GenerationMeta `gorm:"type:json" json:"generation"`
	Quality    QualityReport  `gorm:"type:json" json:"quality"`

	// Publishing outcome
	AccountID       *uint      `gorm:"index" json:"account_id"`
	RedditThingID   string     `gorm:"index" json:"reddit_thing_id"`
	PublishedAt     *time.Time `json:"published_at"`
	PublishAttempts int        `gorm:"default:0" json:"publish_attempts"`
	FailureReason   string     `gorm:"type:text" json:"failure_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPublishable reports whether the draft may be handed to the publisher
func (c *GeneratedContent) IsPublishable() bool {
	return c.Status == ContentStatusApproved && c.Body != ""
}

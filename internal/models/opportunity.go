package models

import (
	"time"

	"github.com/reddit-agent/internal/scoring"
)

// OpportunityStatus represents where an opportunity sits in the pipeline
type OpportunityStatus string

const (
	OpportunityStatusPending    OpportunityStatus = "pending"    // Discovered, awaiting review
	OpportunityStatusApproved   OpportunityStatus = "approved"   // Approved for content generation
	OpportunityStatusRejected   OpportunityStatus = "rejected"   // Rejected by user
	OpportunityStatusGenerating OpportunityStatus = "generating" // Content being generated
	OpportunityStatusReady      OpportunityStatus = "ready"      // Content ready for review
	OpportunityStatusPublishing OpportunityStatus = "publishing" // Being published
	OpportunityStatusPublished  OpportunityStatus = "published"  // Successfully published
	OpportunityStatusExpired    OpportunityStatus = "expired"    // Too old to act on
	OpportunityStatusFailed     OpportunityStatus = "failed"     // Failed to publish
)

// IsTerminal reports whether the status allows no further transitions
func (s OpportunityStatus) IsTerminal() bool {
	switch s {
	case OpportunityStatusPublished, OpportunityStatusRejected,
		OpportunityStatusExpired, OpportunityStatusFailed:
		return true
	}
	return false
}

// Opportunity represents a Reddit post discovered as a candidate engagement target
type Opportunity struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	ProjectID uint     `gorm:"index;not null" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`

	// Reddit post identification
	RedditPostID string `gorm:"uniqueIndex;not null" json:"reddit_post_id"`
	Subreddit    string `gorm:"index;not null" json:"subreddit"`

	// Post content
	PostTitle   string `gorm:"type:text;not null" json:"post_title"`
	PostContent string `gorm:"type:text" json:"post_content"`
	PostURL     string `json:"post_url"`
	PostAuthor  string `json:"post_author"`

	// Post metrics as observed at discovery time
	PostCreatedAt   time.Time `json:"post_created_at"`
	PostScore       int       `gorm:"default:0" json:"post_score"`
	PostNumComments int       `gorm:"default:0" json:"post_num_comments"`
	PostUpvoteRatio float64   `json:"post_upvote_ratio"`

	// Derived scores, each in [0,1]
	RelevanceScore float64 `json:"relevance_score"`
	ViralityScore  float64 `json:"virality_score"`
	TimingScore    float64 `json:"timing_score"`
	CompositeScore float64 `gorm:"index" json:"composite_score"`

	// Timing analysis
	Urgency           scoring.Urgency `json:"urgency"`
	Velocity          float64         `json:"velocity"`
	VelocityThreshold float64         `json:"velocity_threshold"`

	Status    OpportunityStatus `gorm:"index;default:'pending'" json:"status"`
	ExpiresAt time.Time         `gorm:"index" json:"expires_at"`

	Meta OpportunityMeta `gorm:"type:json" json:"meta"`

	DiscoveredAt time.Time  `gorm:"autoCreateTime;index" json:"discovered_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AgeHours returns the post age in hours as of now
func (o *Opportunity) AgeHours(now time.Time) float64 {
	if o.PostCreatedAt.IsZero() {
		return 0
	}
	return now.Sub(o.PostCreatedAt).Hours()
}

// IsExpired reports whether the opportunity is past its expiry.
// Posts older than 24 hours are always expired regardless of expires_at.
func (o *Opportunity) IsExpired(now time.Time) bool {
	if !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt) {
		return true
	}
	return o.AgeHours(now) > 24
}

package models

import "time"

// SubredditConfig carries per-subreddit tuning. Rows are created lazily
// the first time the miner sees a subreddit and refreshed by the health
// agent. IsEnabled and AllowLinks carry no column default on purpose:
// gorm would drop a false value on insert in favor of the default, so
// the miner sets both explicitly at creation.
type SubredditConfig struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`

	Subscribers int  `gorm:"default:0" json:"subscribers"`
	IsEnabled   bool `json:"is_enabled"`

	// Manual velocity threshold override, zero means derive from
	// subscriber count.
	VelocityThresholdOverride float64 `gorm:"default:0" json:"velocity_threshold_override"`

	// Subreddit-specific posting rules surfaced to the quality gate
	MinCommentLength int  `gorm:"default:0" json:"min_comment_length"`
	AllowLinks       bool `json:"allow_links"`

	RefreshedAt *time.Time `json:"refreshed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

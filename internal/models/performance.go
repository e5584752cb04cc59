package models

import "time"

// PerformanceSnapshot is a point-in-time reading of a published thing's
// engagement. The analytics agent appends one per collection sweep.
type PerformanceSnapshot struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ContentID uint `gorm:"index;not null" json:"content_id"`

	Score      int     `json:"score"`
	Ups        int     `json:"ups"`
	Downs      int     `json:"downs"`
	NumReplies int     `json:"num_replies"`
	Velocity   float64 `json:"velocity"`

	Removed       bool   `gorm:"default:false" json:"removed"`
	RemovalReason string `json:"removal_reason"`

	SnapshotAt time.Time `gorm:"autoCreateTime;index" json:"snapshot_at"`
}

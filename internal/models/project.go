package models

import "time"

// Project is the tenant aggregate owning opportunities and accounts
type Project struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// Mining vocabulary
	TargetSubreddits StringSlice `gorm:"type:json" json:"target_subreddits"`
	Keywords         StringSlice `gorm:"type:json" json:"keywords"`
	NegativeKeywords StringSlice `gorm:"type:json" json:"negative_keywords"`

	// Product context handed to the content generator
	ProductName        string `json:"product_name"`
	ProductDescription string `gorm:"type:text" json:"product_description"`
	ProductURL         string `json:"product_url"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

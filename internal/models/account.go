package models

import (
	"time"
)

// AccountStatus is the health state of a Reddit account
type AccountStatus string

const (
	AccountStatusActive       AccountStatus = "active"
	AccountStatusRateLimited  AccountStatus = "rate_limited"
	AccountStatusSuspended    AccountStatus = "suspended" // Terminal
	AccountStatusOAuthExpired AccountStatus = "oauth_expired"
	AccountStatusInactive     AccountStatus = "inactive" // Operator-disabled
)

// RedditAccount is a publishing identity with OAuth credentials and
// health tracking. LockVersion guards concurrent reservation, see
// Repository.ReserveAccount.
type RedditAccount struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	ProjectID uint     `gorm:"index;not null" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`

	Username string `gorm:"uniqueIndex;not null" json:"username"`

	// OAuth credentials. Access token is refreshed in place, refresh
	// token is long-lived until the grant is revoked.
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`

	Status      AccountStatus `gorm:"index;default:'active'" json:"status"`
	HealthScore float64       `gorm:"default:1.0" json:"health_score"`

	// Karma and age, refreshed by the health agent
	KarmaComment   int        `gorm:"default:0" json:"karma_comment"`
	KarmaLink      int        `gorm:"default:0" json:"karma_link"`
	AccountAgeDays int        `gorm:"default:0" json:"account_age_days"`
	KarmaCheckedAt *time.Time `json:"karma_checked_at"`

	// Action accounting
	DailyActionsCount   int        `gorm:"default:0" json:"daily_actions_count"`
	DailyResetAt        *time.Time `json:"daily_reset_at"`
	LastActionAt        *time.Time `json:"last_action_at"`
	TotalActions        int        `gorm:"default:0" json:"total_actions"`
	ConsecutiveFailures int        `gorm:"default:0" json:"consecutive_failures"`

	// Removal tracking feeding selection and learning
	TotalRemovals int     `gorm:"default:0" json:"total_removals"`
	RemovalRate   float64 `gorm:"default:0" json:"removal_rate"`

	// Per-subreddit posting history
	SubredditActivity SubredditActivity `gorm:"type:json" json:"subreddit_activity"`

	// Optimistic concurrency token, bumped on every reservation
	LockVersion int `gorm:"default:0" json:"-"`

	StatusChangedAt *time.Time `json:"status_changed_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CanPost reports whether the account is eligible to publish right now.
// Eligible means active, under the daily quota, and past the minimum
// interval since its last action.
func (a *RedditAccount) CanPost(maxDaily int, minInterval time.Duration, now time.Time) bool {
	if a.Status != AccountStatusActive {
		return false
	}
	if a.DailyActionsCount >= maxDaily {
		return false
	}
	if a.LastActionAt != nil && now.Sub(*a.LastActionAt) < minInterval {
		return false
	}
	return true
}

// MaybeResetDaily zeroes the daily counter once 24 hours have passed
// since the last reset. Returns true when a reset happened.
func (a *RedditAccount) MaybeResetDaily(now time.Time) bool {
	if a.DailyResetAt != nil && now.Sub(*a.DailyResetAt) < 24*time.Hour {
		return false
	}
	a.DailyActionsCount = 0
	a.DailyResetAt = &now
	return true
}

// SelectionScore ranks the account for publishing. Higher is better.
// Zero means the account should not be picked.
func (a *RedditAccount) SelectionScore(maxDaily int) float64 {
	score := 100.0

	karmaBonus := float64(a.KarmaComment) / 1000.0
	if karmaBonus > 20 {
		karmaBonus = 20
	}
	score += karmaBonus

	ageBonus := float64(a.AccountAgeDays) / 30.0
	if ageBonus > 10 {
		ageBonus = 10
	}
	score += ageBonus

	if a.RemovalRate < 0.05 {
		score += 10
	} else if a.RemovalRate > 0.20 {
		score -= 20
	}

	score *= a.HealthScore

	if maxDaily-a.DailyActionsCount <= 2 {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	return score
}

// RecordRemoval bumps the removal counters and recomputes the rate
func (a *RedditAccount) RecordRemoval() {
	a.TotalRemovals++
	if a.TotalActions > 0 {
		a.RemovalRate = float64(a.TotalRemovals) / float64(a.TotalActions)
	}
}

// SubredditStatsFor returns the account's history in a subreddit,
// zero-valued when it has never posted there.
func (a *RedditAccount) SubredditStatsFor(subreddit string) SubredditStats {
	if a.SubredditActivity == nil {
		return SubredditStats{}
	}
	return a.SubredditActivity[subreddit]
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	testMaxDaily    = 10
	testMinInterval = 60 * time.Second
)

// RemovalRate sits in the neutral band so the clean-record bonus only
// applies where a subtest opts in.
func activeAccount() *RedditAccount {
	return &RedditAccount{
		ID:          1,
		Username:    "test_user",
		Status:      AccountStatusActive,
		HealthScore: 1.0,
		RemovalRate: 0.1,
	}
}

func TestCanPost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("healthy active account", func(t *testing.T) {
		a := activeAccount()
		assert.True(t, a.CanPost(testMaxDaily, testMinInterval, now))
	})

	t.Run("non-active statuses", func(t *testing.T) {
		for _, status := range []AccountStatus{
			AccountStatusRateLimited, AccountStatusSuspended,
			AccountStatusOAuthExpired, AccountStatusInactive,
		} {
			a := activeAccount()
			a.Status = status
			assert.False(t, a.CanPost(testMaxDaily, testMinInterval, now), string(status))
		}
	})

	t.Run("daily quota exhausted", func(t *testing.T) {
		a := activeAccount()
		a.DailyActionsCount = testMaxDaily
		assert.False(t, a.CanPost(testMaxDaily, testMinInterval, now))
	})

	t.Run("minimum interval not elapsed", func(t *testing.T) {
		a := activeAccount()
		last := now.Add(-30 * time.Second)
		a.LastActionAt = &last
		assert.False(t, a.CanPost(testMaxDaily, testMinInterval, now))

		last = now.Add(-61 * time.Second)
		a.LastActionAt = &last
		assert.True(t, a.CanPost(testMaxDaily, testMinInterval, now))
	})
}

func TestSelectionScore(t *testing.T) {
	t.Run("higher karma wins", func(t *testing.T) {
		young := activeAccount()
		young.KarmaComment = 500

		seasoned := activeAccount()
		seasoned.ID = 2
		seasoned.KarmaComment = 5000

		// 100 + 0.5 vs 100 + 5
		assert.InDelta(t, 100.5, young.SelectionScore(testMaxDaily), 1e-9)
		assert.InDelta(t, 105.0, seasoned.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("karma bonus caps at 20", func(t *testing.T) {
		a := activeAccount()
		a.KarmaComment = 1_000_000
		assert.InDelta(t, 120.0, a.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("age bonus caps at 10", func(t *testing.T) {
		a := activeAccount()
		a.AccountAgeDays = 3650
		assert.InDelta(t, 110.0, a.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("clean removal record rewards", func(t *testing.T) {
		a := activeAccount()
		a.RemovalRate = 0.01
		assert.InDelta(t, 110.0, a.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("dirty removal record punishes", func(t *testing.T) {
		a := activeAccount()
		a.RemovalRate = 0.25
		assert.InDelta(t, 80.0, a.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("health scales multiplicatively", func(t *testing.T) {
		a := activeAccount()
		a.HealthScore = 0.5
		a.RemovalRate = 0.01 // +10 before scaling
		assert.InDelta(t, 55.0, a.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("near quota penalty applies after scaling", func(t *testing.T) {
		a := activeAccount()
		a.DailyActionsCount = testMaxDaily - 2
		a.RemovalRate = 0.01
		assert.InDelta(t, 100.0, a.SelectionScore(testMaxDaily), 1e-9)
	})

	t.Run("never negative", func(t *testing.T) {
		a := activeAccount()
		a.HealthScore = 0
		a.DailyActionsCount = testMaxDaily - 1
		assert.Equal(t, 0.0, a.SelectionScore(testMaxDaily))
	})
}

func TestMaybeResetDaily(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first reset always fires", func(t *testing.T) {
		a := activeAccount()
		a.DailyActionsCount = 4
		assert.True(t, a.MaybeResetDaily(now))
		assert.Equal(t, 0, a.DailyActionsCount)
		assert.Equal(t, now, *a.DailyResetAt)
	})

	t.Run("within the window nothing happens", func(t *testing.T) {
		a := activeAccount()
		resetAt := now.Add(-23 * time.Hour)
		a.DailyResetAt = &resetAt
		a.DailyActionsCount = 4
		assert.False(t, a.MaybeResetDaily(now))
		assert.Equal(t, 4, a.DailyActionsCount)
	})

	t.Run("rolling 24h window", func(t *testing.T) {
		a := activeAccount()
		resetAt := now.Add(-25 * time.Hour)
		a.DailyResetAt = &resetAt
		a.DailyActionsCount = 4
		assert.True(t, a.MaybeResetDaily(now))
		assert.Equal(t, 0, a.DailyActionsCount)
	})
}

func TestRecordRemoval(t *testing.T) {
	a := activeAccount()
	a.TotalActions = 20
	a.TotalRemovals = 1
	a.RemovalRate = 0.05

	a.RecordRemoval()
	assert.Equal(t, 2, a.TotalRemovals)
	assert.InDelta(t, 0.1, a.RemovalRate, 1e-9)
}

func TestSubredditStatsFor(t *testing.T) {
	a := activeAccount()
	assert.Equal(t, SubredditStats{}, a.SubredditStatsFor("golang"))

	a.SubredditActivity = SubredditActivity{
		"golang": {Posts: 3, Karma: 40},
	}
	assert.Equal(t, 3, a.SubredditStatsFor("golang").Posts)
	assert.Equal(t, SubredditStats{}, a.SubredditStatsFor("rust"))
}

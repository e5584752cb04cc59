package accounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/pkg/logger"
)

const (
	maxDaily    = 10
	minInterval = time.Minute
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

// RemovalRate 0.1 keeps the clean-record bonus out of these scores
func account(id uint, karma int) *models.RedditAccount {
	return &models.RedditAccount{
		ID:           id,
		Username:     "user",
		Status:       models.AccountStatusActive,
		HealthScore:  1.0,
		KarmaComment: karma,
		RemovalRate:  0.1,
	}
}

func TestSelector_Score(t *testing.T) {
	s := NewSelector(testLogger())

	t.Run("no familiarity", func(t *testing.T) {
		a := account(1, 2000)
		assert.InDelta(t, 102.0, s.Score(a, "golang", maxDaily), 1e-9)
	})

	t.Run("posting history bonus", func(t *testing.T) {
		a := account(1, 0)
		a.SubredditActivity = models.SubredditActivity{
			"golang": {Posts: 2},
		}
		assert.InDelta(t, 115.0, s.Score(a, "golang", maxDaily), 1e-9)
	})

	t.Run("positive karma bonus stacks", func(t *testing.T) {
		a := account(1, 0)
		a.SubredditActivity = models.SubredditActivity{
			"golang": {Posts: 2, Karma: 30},
		}
		assert.InDelta(t, 125.0, s.Score(a, "golang", maxDaily), 1e-9)
	})

	t.Run("zero base short-circuits bonuses", func(t *testing.T) {
		a := account(1, 0)
		a.HealthScore = 0
		a.DailyActionsCount = maxDaily - 1
		a.SubredditActivity = models.SubredditActivity{
			"golang": {Posts: 2, Karma: 30},
		}
		assert.Equal(t, 0.0, s.Score(a, "golang", maxDaily))
	})
}

func TestSelector_Select(t *testing.T) {
	s := NewSelector(testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("higher karma wins", func(t *testing.T) {
		young := account(1, 500)
		seasoned := account(2, 5000)

		sel := s.Select([]*models.RedditAccount{young, seasoned}, "golang", maxDaily, minInterval, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(2), sel.Account.ID)
		assert.InDelta(t, 105.0, sel.Score, 1e-9)
	})

	t.Run("familiarity beats raw karma", func(t *testing.T) {
		stranger := account(1, 5000) // 105
		local := account(2, 0)       // 100 + 15 + 10
		local.SubredditActivity = models.SubredditActivity{
			"golang": {Posts: 1, Karma: 5},
		}

		sel := s.Select([]*models.RedditAccount{stranger, local}, "golang", maxDaily, minInterval, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(2), sel.Account.ID)
	})

	t.Run("equal scores pick the lower id", func(t *testing.T) {
		a := account(3, 1000)
		b := account(7, 1000)

		sel := s.Select([]*models.RedditAccount{b, a}, "golang", maxDaily, minInterval, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(3), sel.Account.ID)
	})

	t.Run("ineligible accounts are skipped", func(t *testing.T) {
		limited := account(1, 9000)
		limited.Status = models.AccountStatusRateLimited
		exhausted := account(2, 9000)
		exhausted.DailyActionsCount = maxDaily
		ok := account(3, 100)

		sel := s.Select([]*models.RedditAccount{limited, exhausted, ok}, "golang", maxDaily, minInterval, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(3), sel.Account.ID)
	})

	t.Run("no eligible account", func(t *testing.T) {
		suspended := account(1, 100)
		suspended.Status = models.AccountStatusSuspended

		sel := s.Select([]*models.RedditAccount{suspended}, "golang", maxDaily, minInterval, now)
		assert.Nil(t, sel)
	})
}

func TestSelector_Rank(t *testing.T) {
	s := NewSelector(testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := account(1, 5000)  // 105
	b := account(2, 1000)  // 101
	c := account(3, 20000) // 120
	blocked := account(4, 99999)
	blocked.Status = models.AccountStatusOAuthExpired

	ranked := s.Rank([]*models.RedditAccount{a, b, c, blocked}, "golang", maxDaily, minInterval, now)
	require.Len(t, ranked, 3)
	assert.Equal(t, uint(3), ranked[0].Account.ID)
	assert.Equal(t, uint(1), ranked[1].Account.ID)
	assert.Equal(t, uint(2), ranked[2].Account.ID)

	t.Run("ties keep id order", func(t *testing.T) {
		x := account(8, 1000)
		y := account(5, 1000)
		ranked := s.Rank([]*models.RedditAccount{x, y}, "golang", maxDaily, minInterval, now)
		require.Len(t, ranked, 2)
		assert.Equal(t, uint(5), ranked[0].Account.ID)
		assert.Equal(t, uint(8), ranked[1].Account.ID)
	})
}

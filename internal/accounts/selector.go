package accounts

import (
	"time"

	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/pkg/logger"
)

// Subreddit familiarity bonuses applied on top of the base score
const (
	subredditHistoryBonus = 15
	subredditKarmaBonus   = 10
)

// Selection is the outcome of picking an account for a publish
type Selection struct {
	Account *models.RedditAccount
	Score   float64
}

// Selector ranks eligible accounts for publishing into a subreddit
type Selector struct {
	log *logger.Logger
}

// NewSelector creates an account selector
func NewSelector(log *logger.Logger) *Selector {
	return &Selector{log: log.WithComponent("account_selector")}
}

// Score computes the full selection score for one account in a
// subreddit, familiarity bonuses included.
func (s *Selector) Score(account *models.RedditAccount, subreddit string, maxDaily int) float64 {
	score := account.SelectionScore(maxDaily)
	if score <= 0 {
		return 0
	}

	stats := account.SubredditStatsFor(subreddit)
	if stats.Posts > 0 {
		score += subredditHistoryBonus
	}
	if stats.Karma > 0 {
		score += subredditKarmaBonus
	}
	return score
}

// Select picks the best eligible account for the subreddit. Returns nil
// when no account can post right now. Equal scores resolve to the lower
// account id so the choice is deterministic.
func (s *Selector) Select(accounts []*models.RedditAccount, subreddit string, maxDaily int, minInterval time.Duration, now time.Time) *Selection {
	var best *Selection

	for _, account := range accounts {
		if !account.CanPost(maxDaily, minInterval, now) {
			continue
		}

		score := s.Score(account, subreddit, maxDaily)
		if score <= 0 {
			continue
		}

		if best == nil || score > best.Score ||
			(score == best.Score && account.ID < best.Account.ID) {
			best = &Selection{Account: account, Score: score}
		}
	}

	if best == nil {
		s.log.Warn().
			Str("subreddit", subreddit).
			Int("candidates", len(accounts)).
			Msg("No eligible account for subreddit")
		return nil
	}

	s.log.Debug().
		Str("subreddit", subreddit).
		Str("username", best.Account.Username).
		Float64("score", best.Score).
		Msg("Account selected")

	return best
}

// Rank returns all eligible accounts ordered best-first, used by the
// publisher to retry the next candidate after a reservation conflict.
func (s *Selector) Rank(accounts []*models.RedditAccount, subreddit string, maxDaily int, minInterval time.Duration, now time.Time) []Selection {
	var ranked []Selection
	for _, account := range accounts {
		if !account.CanPost(maxDaily, minInterval, now) {
			continue
		}
		score := s.Score(account, subreddit, maxDaily)
		if score <= 0 {
			continue
		}
		ranked = append(ranked, Selection{Account: account, Score: score})
	}

	// Insertion sort, the candidate set is small
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			a, b := ranked[j-1], ranked[j]
			if b.Score > a.Score || (b.Score == a.Score && b.Account.ID < a.Account.ID) {
				ranked[j-1], ranked[j] = b, a
			} else {
				break
			}
		}
	}
	return ranked
}

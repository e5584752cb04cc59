package accounts

import (
	"fmt"
	"time"

	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/pkg/logger"
)

// Health penalties applied on failure classification
const (
	healthRateLimited  = 0.5
	healthOAuthExpired = 0.3
	healthSuspended    = 0.0

	// consecutiveFailureLimit triggers the repeated-failure penalty
	consecutiveFailureLimit   = 3
	consecutiveFailurePenalty = 0.2

	// recoveredHealth is the floor restored when an account comes back
	recoveredHealth = 0.8
)

// validTransitions is the explicit account state machine. Suspended is
// terminal, inactive is operator-controlled.
var validTransitions = map[models.AccountStatus][]models.AccountStatus{
	models.AccountStatusActive: {
		models.AccountStatusRateLimited,
		models.AccountStatusOAuthExpired,
		models.AccountStatusSuspended,
		models.AccountStatusInactive,
	},
	models.AccountStatusRateLimited: {
		models.AccountStatusActive,
		models.AccountStatusSuspended,
		models.AccountStatusOAuthExpired,
		models.AccountStatusInactive,
	},
	models.AccountStatusOAuthExpired: {
		models.AccountStatusActive,
		models.AccountStatusSuspended,
		models.AccountStatusInactive,
	},
	models.AccountStatusSuspended: {},
	models.AccountStatusInactive: {
		models.AccountStatusActive,
	},
}

// CanTransition reports whether moving from one status to another is allowed
func CanTransition(from, to models.AccountStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateMachine applies health transitions to accounts. It mutates the
// account in memory, persistence is the caller's job.
type StateMachine struct {
	log *logger.Logger
}

// NewStateMachine creates an account state machine
func NewStateMachine(log *logger.Logger) *StateMachine {
	return &StateMachine{log: log.WithComponent("account_state")}
}

func (sm *StateMachine) transition(account *models.RedditAccount, to models.AccountStatus, now time.Time) error {
	if account.Status == to {
		return nil
	}
	if !CanTransition(account.Status, to) {
		return fmt.Errorf("invalid account transition %s -> %s", account.Status, to)
	}

	sm.log.Warn().
		Uint("account_id", account.ID).
		Str("username", account.Username).
		Str("from", string(account.Status)).
		Str("to", string(to)).
		Msg("Account status transition")

	account.Status = to
	account.StatusChangedAt = &now
	return nil
}

// ApplyFailure folds a publish failure into the account's health state
func (sm *StateMachine) ApplyFailure(account *models.RedditAccount, kind reddit.FailureKind, now time.Time) error {
	account.ConsecutiveFailures++

	switch kind {
	case reddit.FailureRateLimited:
		account.HealthScore = healthRateLimited
		return sm.transition(account, models.AccountStatusRateLimited, now)

	case reddit.FailureAuthExpired:
		account.HealthScore = healthOAuthExpired
		return sm.transition(account, models.AccountStatusOAuthExpired, now)

	case reddit.FailureSuspended:
		account.HealthScore = healthSuspended
		return sm.transition(account, models.AccountStatusSuspended, now)

	default:
		if account.ConsecutiveFailures >= consecutiveFailureLimit {
			account.HealthScore -= consecutiveFailurePenalty
			if account.HealthScore < 0 {
				account.HealthScore = 0
			}
			sm.log.Warn().
				Uint("account_id", account.ID).
				Int("consecutive_failures", account.ConsecutiveFailures).
				Float64("health_score", account.HealthScore).
				Msg("Repeated failures degraded account health")
		}
		return nil
	}
}

// ApplySuccess records a successful publish. Action counters were
// already stamped at reservation time.
func (sm *StateMachine) ApplySuccess(account *models.RedditAccount) {
	account.ConsecutiveFailures = 0
}

// Recover moves a rate-limited account back to active once the cooldown
// has elapsed since the transition. Returns true when recovery happened.
func (sm *StateMachine) Recover(account *models.RedditAccount, cooldown time.Duration, now time.Time) (bool, error) {
	if account.Status != models.AccountStatusRateLimited {
		return false, nil
	}
	if account.StatusChangedAt != nil && now.Sub(*account.StatusChangedAt) < cooldown {
		return false, nil
	}

	if err := sm.transition(account, models.AccountStatusActive, now); err != nil {
		return false, err
	}
	if account.HealthScore < recoveredHealth {
		account.HealthScore = recoveredHealth
	}
	account.ConsecutiveFailures = 0
	return true, nil
}

// Restore moves an oauth_expired account back to active after a
// successful token refresh.
func (sm *StateMachine) Restore(account *models.RedditAccount, now time.Time) error {
	if err := sm.transition(account, models.AccountStatusActive, now); err != nil {
		return err
	}
	if account.HealthScore < recoveredHealth {
		account.HealthScore = recoveredHealth
	}
	account.ConsecutiveFailures = 0
	return nil
}

// Deactivate is the operator kill switch
func (sm *StateMachine) Deactivate(account *models.RedditAccount, now time.Time) error {
	return sm.transition(account, models.AccountStatusInactive, now)
}

// Reactivate re-enables an operator-disabled account
func (sm *StateMachine) Reactivate(account *models.RedditAccount, now time.Time) error {
	if err := sm.transition(account, models.AccountStatusActive, now); err != nil {
		return err
	}
	account.ConsecutiveFailures = 0
	if account.HealthScore < recoveredHealth {
		account.HealthScore = recoveredHealth
	}
	return nil
}

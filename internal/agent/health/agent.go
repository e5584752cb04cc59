package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reddit-agent/internal/accounts"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/pkg/logger"
)

// Prober is the identity surface the health agent needs from a client
type Prober interface {
	ProbeIdentity(ctx context.Context) (*reddit.Identity, error)
}

// ClientFunc builds a client authenticated as the given account
type ClientFunc func(ctx context.Context, refreshToken string) Prober

// TokenRefresher exchanges a refresh token for a new access token
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error)
}

// Agent keeps account health state in sync with reality
type Agent struct {
	clientFor    ClientFunc
	refresher    TokenRefresher
	repository   storage.Repository
	stateMachine *accounts.StateMachine
	config       config.AccountsConfig
	log          *logger.Logger
}

// NewAgent creates a new health agent
func NewAgent(
	clientFor ClientFunc,
	refresher TokenRefresher,
	repository storage.Repository,
	stateMachine *accounts.StateMachine,
	accountsConfig config.AccountsConfig,
	log *logger.Logger,
) *Agent {
	return &Agent{
		clientFor:    clientFor,
		refresher:    refresher,
		repository:   repository,
		stateMachine: stateMachine,
		config:       accountsConfig,
		log:          log.WithComponent("health"),
	}
}

// HealthResult contains the results of a health sweep
type HealthResult struct {
	Checked   int
	Recovered int
	Refreshed int
	Suspended int
	Errors    []error
}

// Run sweeps every account: recovers cooled-down rate limits, refreshes
// expired tokens, and probes active accounts for suspension and karma.
func (a *Agent) Run(ctx context.Context) (*HealthResult, error) {
	result := &HealthResult{}

	allAccounts, err := a.repository.ListAccounts(ctx, storage.AccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	now := time.Now().UTC()
	for _, account := range allAccounts {
		switch account.Status {
		case models.AccountStatusRateLimited:
			recovered, err := a.RecoverRateLimited(ctx, account, now)
			if err != nil {
				result.Errors = append(result.Errors, err)
			} else if recovered {
				result.Recovered++
			}

		case models.AccountStatusOAuthExpired:
			if err := a.RefreshToken(ctx, account, now); err != nil {
				result.Errors = append(result.Errors, err)
			} else {
				result.Refreshed++
			}

		case models.AccountStatusActive:
			suspended, err := a.CheckAccount(ctx, account, now)
			result.Checked++
			if err != nil {
				result.Errors = append(result.Errors, err)
			}
			if suspended {
				result.Suspended++
			}
		}
	}

	a.log.Info().
		Int("checked", result.Checked).
		Int("recovered", result.Recovered).
		Int("refreshed", result.Refreshed).
		Int("suspended", result.Suspended).
		Int("errors", len(result.Errors)).
		Msg("Health sweep completed")

	return result, nil
}

// RunRecovery sweeps only rate-limited accounts, meant for a tighter
// cron cadence than the full health sweep.
func (a *Agent) RunRecovery(ctx context.Context) (int, error) {
	status := models.AccountStatusRateLimited
	limited, err := a.repository.ListAccounts(ctx, storage.AccountFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("failed to list rate-limited accounts: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, account := range limited {
		ok, err := a.RecoverRateLimited(ctx, account, now)
		if err != nil {
			a.log.Error().Err(err).Str("username", account.Username).Msg("Recovery failed")
			continue
		}
		if ok {
			recovered++
		}
	}
	return recovered, nil
}

// CheckAccount probes the account's identity, refreshing karma and age
// and detecting suspension. Returns true when suspension was detected.
func (a *Agent) CheckAccount(ctx context.Context, account *models.RedditAccount, now time.Time) (bool, error) {
	client := a.clientFor(ctx, account.RefreshToken)
	identity, err := client.ProbeIdentity(ctx)

	switch {
	case errors.Is(err, reddit.ErrSuspended):
		if terr := a.stateMachine.ApplyFailure(account, reddit.FailureSuspended, now); terr != nil {
			return false, terr
		}
		if uerr := a.repository.UpdateAccount(ctx, account); uerr != nil {
			return true, uerr
		}
		a.log.Warn().
			Str("username", account.Username).
			Msg("Account suspension detected")
		return true, nil

	case errors.Is(err, reddit.ErrAuthExpired):
		if terr := a.stateMachine.ApplyFailure(account, reddit.FailureAuthExpired, now); terr != nil {
			return false, terr
		}
		return false, a.repository.UpdateAccount(ctx, account)

	case err != nil:
		return false, fmt.Errorf("probe failed for %s: %w", account.Username, err)
	}

	account.KarmaComment = identity.CommentKarma
	account.KarmaLink = identity.LinkKarma
	account.AccountAgeDays = identity.AgeDays(now)
	account.KarmaCheckedAt = &now

	if err := a.repository.UpdateAccount(ctx, account); err != nil {
		return false, err
	}

	a.log.Debug().
		Str("username", account.Username).
		Int("karma_comment", account.KarmaComment).
		Int("age_days", account.AccountAgeDays).
		Msg("Account checked")

	return false, nil
}

// RecoverRateLimited moves a rate-limited account back to active once
// its cooldown has elapsed and an identity probe succeeds. A failing
// probe leaves the account rate-limited, or transitions it when the
// probe reveals suspension or expired auth.
func (a *Agent) RecoverRateLimited(ctx context.Context, account *models.RedditAccount, now time.Time) (bool, error) {
	if account.Status != models.AccountStatusRateLimited {
		return false, nil
	}
	cooldown := a.config.RecoveryCooldownDuration()
	if account.StatusChangedAt != nil && now.Sub(*account.StatusChangedAt) < cooldown {
		return false, nil
	}

	client := a.clientFor(ctx, account.RefreshToken)
	if _, err := client.ProbeIdentity(ctx); err != nil {
		switch {
		case errors.Is(err, reddit.ErrSuspended):
			if terr := a.stateMachine.ApplyFailure(account, reddit.FailureSuspended, now); terr != nil {
				return false, terr
			}
			return false, a.repository.UpdateAccount(ctx, account)

		case errors.Is(err, reddit.ErrAuthExpired):
			if terr := a.stateMachine.ApplyFailure(account, reddit.FailureAuthExpired, now); terr != nil {
				return false, terr
			}
			return false, a.repository.UpdateAccount(ctx, account)
		}
		a.log.Warn().
			Err(err).
			Str("username", account.Username).
			Msg("Recovery probe failed, account stays rate limited")
		return false, nil
	}

	recovered, err := a.stateMachine.Recover(account, cooldown, now)
	if err != nil {
		return false, err
	}
	if !recovered {
		return false, nil
	}
	if err := a.repository.UpdateAccount(ctx, account); err != nil {
		return false, err
	}
	a.log.Info().Str("username", account.Username).Msg("Account recovered from rate limit")
	return true, nil
}

// RefreshToken repairs an oauth_expired account with a token refresh
func (a *Agent) RefreshToken(ctx context.Context, account *models.RedditAccount, now time.Time) error {
	accessToken, expiresAt, err := a.refresher.RefreshAccessToken(ctx, account.RefreshToken)
	if err != nil {
		return fmt.Errorf("token refresh failed for %s: %w", account.Username, err)
	}

	account.AccessToken = accessToken
	account.TokenExpiresAt = &expiresAt
	if err := a.stateMachine.Restore(account, now); err != nil {
		return err
	}
	if err := a.repository.UpdateAccount(ctx, account); err != nil {
		return err
	}

	a.log.Info().
		Str("username", account.Username).
		Time("expires_at", expiresAt).
		Msg("Account token refreshed")
	return nil
}

// ResetDailyLimits zeroes stale daily counters across all accounts
func (a *Agent) ResetDailyLimits(ctx context.Context) (int, error) {
	allAccounts, err := a.repository.ListAccounts(ctx, storage.AccountFilter{})
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	reset := 0
	for _, account := range allAccounts {
		if !account.MaybeResetDaily(now) {
			continue
		}
		if err := a.repository.UpdateAccount(ctx, account); err != nil {
			return reset, err
		}
		reset++
	}

	if reset > 0 {
		a.log.Info().Int("accounts", reset).Msg("Daily limits reset")
	}
	return reset, nil
}

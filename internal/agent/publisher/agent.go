package publisher

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

// Commenter is the write surface the publisher needs from a Reddit client
type Commenter interface {
	PublishReply(ctx context.Context, parentFullname, text string) (string, error)
}

// ClientFunc builds a client authenticated as the given account
type ClientFunc func(ctx context.Context, refreshToken string) Commenter

// PublishRecord is the outcome row handed to the external publish log
type PublishRecord struct {
	PublishedAt time.Time
	Subreddit   string
	Username    string
	ThingID     string
	PostURL     string
	Style       string
}

// Recorder receives publish outcomes for operator-facing logging.
// Implementations must tolerate being called best-effort.
type Recorder interface {
	RecordPublish(ctx context.Context, record PublishRecord) error
}

// Agent publishes approved replies through healthy accounts
type Agent struct {
	clientFor    ClientFunc
	repository   storage.Repository
	selector     *accounts.Selector
	stateMachine *accounts.StateMachine
	recorder     Recorder // Optional
	config       config.AccountsConfig
	log          *logger.Logger
}

// NewAgent creates a new publisher agent
func NewAgent(
	clientFor ClientFunc,
	repository storage.Repository,
	selector *accounts.Selector,
	stateMachine *accounts.StateMachine,
	recorder Recorder,
	accountsConfig config.AccountsConfig,
	log *logger.Logger,
) *Agent {
	return &Agent{
		clientFor:    clientFor,
		repository:   repository,
		selector:     selector,
		stateMachine: stateMachine,
		recorder:     recorder,
		config:       accountsConfig,
		log:          log.WithComponent("publisher"),
	}
}

// ErrNoAccount means no account could be reserved for the publish
var ErrNoAccount = errors.New("publisher: no eligible account available")

// maxPublishAttempts bounds how often one reply is retried before it is
// marked failed.
const maxPublishAttempts = 3

// Publish posts an approved reply. A non-nil accountID forces that
// account, otherwise the selector ranks the project's accounts and the
// first successful reservation wins.
func (a *Agent) Publish(ctx context.Context, contentID uint, accountID *uint) (*models.GeneratedContent, error) {
	content, err := a.repository.GetContentByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("content not found: %w", err)
	}
	if !content.IsPublishable() {
		return nil, fmt.Errorf("content %d is %s, expected approved", contentID, content.Status)
	}

	opportunity, err := a.repository.GetOpportunityByID(ctx, content.OpportunityID)
	if err != nil {
		return nil, fmt.Errorf("opportunity not found: %w", err)
	}
	now := time.Now().UTC()
	if opportunity.IsExpired(now) {
		return nil, fmt.Errorf("opportunity %d expired at %s", opportunity.ID, opportunity.ExpiresAt)
	}

	account, err := a.reserveAccount(ctx, opportunity, accountID, now)
	if err != nil {
		return nil, err
	}

	content.Status = models.ContentStatusPublishing
	content.AccountID = &account.ID
	opportunity.Status = models.OpportunityStatusPublishing
	err = a.repository.Transaction(ctx, func(tx storage.Repository) error {
		if err := tx.UpdateContent(ctx, content); err != nil {
			return err
		}
		return tx.UpdateOpportunity(ctx, opportunity)
	})
	if err != nil {
		return nil, err
	}

	a.log.Info().
		Uint("content_id", content.ID).
		Uint("opportunity_id", opportunity.ID).
		Str("subreddit", opportunity.Subreddit).
		Str("username", account.Username).
		Msg("Publishing reply")

	client := a.clientFor(ctx, account.RefreshToken)
	thingID, publishErr := client.PublishReply(ctx, "t3_"+opportunity.RedditPostID, content.Body)
	if publishErr != nil {
		return nil, a.handleFailure(ctx, content, opportunity, account, publishErr, now)
	}

	return content, a.handleSuccess(ctx, content, opportunity, account, thingID, now)
}

// reserveAccount picks and CAS-reserves an account. Reservation
// conflicts fall through to the next ranked candidate.
func (a *Agent) reserveAccount(ctx context.Context, opportunity *models.Opportunity, accountID *uint, now time.Time) (*models.RedditAccount, error) {
	var candidates []*models.RedditAccount

	if accountID != nil {
		account, err := a.repository.GetAccountByID(ctx, *accountID)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		candidates = []*models.RedditAccount{account}
	} else {
		status := models.AccountStatusActive
		var err error
		candidates, err = a.repository.ListAccounts(ctx, storage.AccountFilter{
			ProjectID: &opportunity.ProjectID,
			Status:    &status,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
	}

	for _, account := range candidates {
		if account.MaybeResetDaily(now) {
			if err := a.repository.UpdateAccount(ctx, account); err != nil {
				a.log.Warn().Err(err).Uint("account_id", account.ID).Msg("Failed to persist daily reset")
			}
		}
	}

	ranked := a.selector.Rank(candidates, opportunity.Subreddit,
		a.config.MaxDailyPosts, a.config.MinActionIntervalDuration(), now)

	for _, selection := range ranked {
		err := a.repository.ReserveAccount(ctx, selection.Account, now)
		if errors.Is(err, storage.ErrAccountBusy) {
			a.log.Debug().
				Uint("account_id", selection.Account.ID).
				Msg("Account reservation conflict, trying next candidate")
			continue
		}
		if err != nil {
			return nil, err
		}
		return selection.Account, nil
	}

	return nil, ErrNoAccount
}

func (a *Agent) handleSuccess(ctx context.Context, content *models.GeneratedContent, opportunity *models.Opportunity, account *models.RedditAccount, thingID string, now time.Time) error {
	content.Status = models.ContentStatusPublished
	content.RedditThingID = thingID
	content.PublishedAt = &now
	content.FailureReason = ""

	opportunity.Status = models.OpportunityStatusPublished
	opportunity.ProcessedAt = &now

	a.stateMachine.ApplySuccess(account)
	if account.SubredditActivity == nil {
		account.SubredditActivity = models.SubredditActivity{}
	}
	stats := account.SubredditActivity[opportunity.Subreddit]
	stats.Posts++
	stats.LastActivity = &now
	account.SubredditActivity[opportunity.Subreddit] = stats

	err := a.repository.Transaction(ctx, func(tx storage.Repository) error {
		if err := tx.UpdateContent(ctx, content); err != nil {
			return err
		}
		if err := tx.UpdateOpportunity(ctx, opportunity); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return fmt.Errorf("published but failed to record outcome: %w", err)
	}

	a.log.Info().
		Uint("content_id", content.ID).
		Str("thing_id", thingID).
		Str("username", account.Username).
		Msg("Reply published")

	if a.recorder != nil {
		record := PublishRecord{
			PublishedAt: now,
			Subreddit:   opportunity.Subreddit,
			Username:    account.Username,
			ThingID:     thingID,
			PostURL:     opportunity.PostURL,
			Style:       string(content.Style),
		}
		if err := a.recorder.RecordPublish(ctx, record); err != nil {
			a.log.Warn().Err(err).Msg("Failed to append publish log")
		}
	}

	return nil
}

// handleFailure classifies the error and transitions the account. The
// reply goes back in the queue for another account unless the platform
// rejected it outright or the attempt bound is spent, then it is marked
// failed and the opportunity becomes eligible for a fresh draft.
func (a *Agent) handleFailure(ctx context.Context, content *models.GeneratedContent, opportunity *models.Opportunity, account *models.RedditAccount, publishErr error, now time.Time) error {
	kind := reddit.ClassifyError(publishErr)

	a.log.Error().
		Err(publishErr).
		Str("failure_kind", string(kind)).
		Str("username", account.Username).
		Uint("content_id", content.ID).
		Msg("Publish failed")

	if err := a.stateMachine.ApplyFailure(account, kind, now); err != nil {
		a.log.Error().Err(err).Msg("Failed to apply account transition")
	}

	content.PublishAttempts++
	content.FailureReason = publishErr.Error()

	if rejectedByPlatform(publishErr) || content.PublishAttempts >= maxPublishAttempts {
		content.Status = models.ContentStatusFailed
		opportunity.Status = models.OpportunityStatusApproved
	} else {
		content.Status = models.ContentStatusApproved
		content.AccountID = nil
		opportunity.Status = models.OpportunityStatusReady
	}

	err := a.repository.Transaction(ctx, func(tx storage.Repository) error {
		if err := tx.UpdateContent(ctx, content); err != nil {
			return err
		}
		if err := tx.UpdateOpportunity(ctx, opportunity); err != nil {
			return err
		}
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return fmt.Errorf("publish failed and outcome not recorded: %v (original: %w)", err, publishErr)
	}

	return fmt.Errorf("publish failed: %w", publishErr)
}

// rejectedByPlatform reports whether the platform refused the reply
// itself, as opposed to an account or transport problem. Retrying the
// same body through another account cannot help.
func rejectedByPlatform(err error) bool {
	var apiErr *reddit.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < 500
}

// RunBatch publishes every approved reply, oldest first
func (a *Agent) RunBatch(ctx context.Context, limit int) (int, []error) {
	status := models.ContentStatusApproved
	contents, err := a.repository.ListContent(ctx, storage.ContentFilter{
		Status: &status,
		Limit:  limit,
	})
	if err != nil {
		return 0, []error{err}
	}

	published := 0
	var errs []error
	for _, content := range contents {
		if _, err := a.Publish(ctx, content.ID, nil); err != nil {
			if errors.Is(err, ErrNoAccount) {
				// No point trying the rest of the batch right now
				errs = append(errs, err)
				break
			}
			errs = append(errs, fmt.Errorf("content %d: %w", content.ID, err))
			continue
		}
		published++
	}
	return published, errs
}

package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/pkg/logger"
)

// Fetcher is the read surface the analytics agent needs from a client
type Fetcher interface {
	FetchThing(ctx context.Context, fullname string) (*reddit.ThingMetrics, error)
}

// ClientFunc builds a fresh read-only client for one collection pass
type ClientFunc func(ctx context.Context) Fetcher

// Agent collects engagement snapshots for published replies
type Agent struct {
	clientFor  ClientFunc
	repository storage.Repository
	log        *logger.Logger
}

// NewAgent creates a new analytics agent
func NewAgent(clientFor ClientFunc, repository storage.Repository, log *logger.Logger) *Agent {
	return &Agent{
		clientFor:  clientFor,
		repository: repository,
		log:        log.WithComponent("analytics"),
	}
}

// CollectionResult contains the results of a collection sweep
type CollectionResult struct {
	Collected int
	Removals  int
	Errors    []error
}

// Run snapshots every published reply. A failing thing is recorded and
// skipped, it never aborts the sweep.
func (a *Agent) Run(ctx context.Context, limit int) (*CollectionResult, error) {
	result := &CollectionResult{}

	status := models.ContentStatusPublished
	contents, err := a.repository.ListContent(ctx, storage.ContentFilter{
		Status: &status,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list published content: %w", err)
	}

	client := a.clientFor(ctx)
	for _, content := range contents {
		removed, err := a.CollectContent(ctx, client, content)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("content %d: %w", content.ID, err))
			continue
		}
		result.Collected++
		if removed {
			result.Removals++
		}
	}

	a.log.Info().
		Int("collected", result.Collected).
		Int("removals", result.Removals).
		Int("errors", len(result.Errors)).
		Msg("Analytics sweep completed")

	return result, nil
}

// CollectContent takes one snapshot of a published reply. Returns true
// when a removal was newly detected.
func (a *Agent) CollectContent(ctx context.Context, client Fetcher, content *models.GeneratedContent) (bool, error) {
	if content.RedditThingID == "" {
		return false, fmt.Errorf("content has no reddit thing id")
	}

	metrics, err := client.FetchThing(ctx, content.RedditThingID)
	if err != nil {
		return false, err
	}

	previous, err := a.repository.LatestSnapshot(ctx, content.ID)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	snapshot := &models.PerformanceSnapshot{
		ContentID:     content.ID,
		Score:         metrics.Score,
		Ups:           metrics.Ups,
		Downs:         metrics.Downs,
		NumReplies:    metrics.NumReplies,
		Removed:       metrics.Removed,
		RemovalReason: metrics.RemovalReason,
		SnapshotAt:    now,
	}

	// Velocity is score delta per hour since the previous reading, or
	// since publication for the first snapshot.
	since := content.PublishedAt
	baseScore := 0
	if previous != nil {
		since = &previous.SnapshotAt
		baseScore = previous.Score
	}
	if since != nil {
		elapsed := now.Sub(*since).Hours()
		if elapsed < 0.1 {
			elapsed = 0.1
		}
		snapshot.Velocity = float64(metrics.Score-baseScore) / elapsed
	}

	if err := a.repository.CreateSnapshot(ctx, snapshot); err != nil {
		return false, err
	}

	newRemoval := metrics.Removed && (previous == nil || !previous.Removed)
	if newRemoval {
		if err := a.recordRemoval(ctx, content, metrics.RemovalReason); err != nil {
			return true, err
		}
	}

	return newRemoval, nil
}

// recordRemoval marks the content deleted and charges the removal
// against the publishing account's removal rate.
func (a *Agent) recordRemoval(ctx context.Context, content *models.GeneratedContent, reason string) error {
	a.log.Warn().
		Uint("content_id", content.ID).
		Str("reason", reason).
		Msg("Published reply was removed")

	return a.repository.Transaction(ctx, func(tx storage.Repository) error {
		content.Status = models.ContentStatusDeleted
		if err := tx.UpdateContent(ctx, content); err != nil {
			return err
		}

		if content.AccountID == nil {
			return nil
		}
		account, err := tx.GetAccountByID(ctx, *content.AccountID)
		if err != nil {
			return err
		}
		account.RecordRemoval()
		return tx.UpdateAccount(ctx, account)
	})
}

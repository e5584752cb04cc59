package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/internal/storage/sqlite"
	"github.com/reddit-agent/pkg/logger"
)

type fakeFetcher struct {
	metrics map[string]*reddit.ThingMetrics
}

func (f *fakeFetcher) FetchThing(_ context.Context, fullname string) (*reddit.ThingMetrics, error) {
	m, ok := f.metrics[fullname]
	if !ok {
		return nil, reddit.ErrNotFound
	}
	return m, nil
}

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestAgent(t *testing.T, repo storage.Repository, fetcher Fetcher) *Agent {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return NewAgent(func(context.Context) Fetcher { return fetcher }, repo, log)
}

type fixture struct {
	account *models.RedditAccount
	content *models.GeneratedContent
}

func seedPublished(t *testing.T, repo storage.Repository, thingID string, publishedAgo time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	project := &models.Project{Name: "test", IsActive: true}
	require.NoError(t, repo.CreateProject(ctx, project))

	opportunity := &models.Opportunity{
		ProjectID:     project.ID,
		RedditPostID:  "post1",
		Subreddit:     "golang",
		PostCreatedAt: now.Add(-publishedAgo - time.Hour),
		Status:        models.OpportunityStatusPublished,
		ExpiresAt:     now,
	}
	require.NoError(t, repo.CreateOpportunities(ctx, []*models.Opportunity{opportunity}))

	account := &models.RedditAccount{
		ProjectID:    project.ID,
		Username:     "poster",
		Status:       models.AccountStatusActive,
		HealthScore:  1.0,
		TotalActions: 10,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))

	publishedAt := now.Add(-publishedAgo)
	content := &models.GeneratedContent{
		ProjectID:     project.ID,
		OpportunityID: opportunity.ID,
		Body:          "a published reply body of reasonable length here",
		Status:        models.ContentStatusPublished,
		AccountID:     &account.ID,
		RedditThingID: thingID,
		PublishedAt:   &publishedAt,
	}
	require.NoError(t, repo.CreateContent(ctx, content))

	return &fixture{account: account, content: content}
}

func TestRun_TakesSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	f := seedPublished(t, repo, "t1_abc", 2*time.Hour)
	ctx := context.Background()

	fetcher := &fakeFetcher{metrics: map[string]*reddit.ThingMetrics{
		"t1_abc": {Score: 10, Ups: 12, Downs: 2, NumReplies: 3},
	}}
	agent := newTestAgent(t, repo, fetcher)

	result, err := agent.Run(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Collected)
	assert.Equal(t, 0, result.Removals)
	assert.Empty(t, result.Errors)

	snapshot, err := repo.LatestSnapshot(ctx, f.content.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 10, snapshot.Score)
	assert.Equal(t, 3, snapshot.NumReplies)
	// 10 points over roughly two hours since publication
	assert.InDelta(t, 5.0, snapshot.Velocity, 0.2)
}

func TestCollectContent_VelocityUsesPreviousSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	f := seedPublished(t, repo, "t1_abc", 5*time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateSnapshot(ctx, &models.PerformanceSnapshot{
		ContentID:  f.content.ID,
		Score:      8,
		SnapshotAt: now.Add(-time.Hour),
	}))

	fetcher := &fakeFetcher{metrics: map[string]*reddit.ThingMetrics{
		"t1_abc": {Score: 14},
	}}
	agent := newTestAgent(t, repo, fetcher)

	_, err := agent.CollectContent(ctx, fetcher, f.content)
	require.NoError(t, err)

	latest, err := repo.LatestSnapshot(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, latest.Score)
	// 6 points over roughly one hour since the previous reading
	assert.InDelta(t, 6.0, latest.Velocity, 0.2)
}

func TestCollectContent_NewRemoval(t *testing.T) {
	repo := newTestRepo(t)
	f := seedPublished(t, repo, "t1_abc", time.Hour)
	ctx := context.Background()

	fetcher := &fakeFetcher{metrics: map[string]*reddit.ThingMetrics{
		"t1_abc": {Score: 4, Removed: true, RemovalReason: "moderator"},
	}}
	agent := newTestAgent(t, repo, fetcher)

	removed, err := agent.CollectContent(ctx, fetcher, f.content)
	require.NoError(t, err)
	assert.True(t, removed)

	content, err := repo.GetContentByID(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusDeleted, content.Status)

	account, err := repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, account.TotalRemovals)
	assert.InDelta(t, 0.1, account.RemovalRate, 1e-9)
}

func TestCollectContent_RemovalChargedOnce(t *testing.T) {
	repo := newTestRepo(t)
	f := seedPublished(t, repo, "t1_abc", time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	// An earlier sweep already saw the removal
	require.NoError(t, repo.CreateSnapshot(ctx, &models.PerformanceSnapshot{
		ContentID:  f.content.ID,
		Score:      4,
		Removed:    true,
		SnapshotAt: now.Add(-time.Hour),
	}))

	fetcher := &fakeFetcher{metrics: map[string]*reddit.ThingMetrics{
		"t1_abc": {Score: 4, Removed: true, RemovalReason: "moderator"},
	}}
	agent := newTestAgent(t, repo, fetcher)

	removed, err := agent.CollectContent(ctx, fetcher, f.content)
	require.NoError(t, err)
	assert.False(t, removed)

	account, err := repo.GetAccountByID(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, account.TotalRemovals)
}

func TestRun_MissingThingIsIsolated(t *testing.T) {
	repo := newTestRepo(t)
	seedPublished(t, repo, "t1_gone", time.Hour)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeFetcher{})

	result, err := agent.Run(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Collected)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], reddit.ErrNotFound)
}

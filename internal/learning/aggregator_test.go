package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/internal/storage/sqlite"
	"github.com/reddit-agent/pkg/logger"
)

func testLearningConfig() config.LearningConfig {
	return config.LearningConfig{
		MinSamples:   3,
		SuccessScore: 5,
		DecayRate:    0.95,
	}
}

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestAggregator(t *testing.T, repo storage.Repository) *Aggregator {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return NewAggregator(repo, testLearningConfig(), log)
}

type fixture struct {
	project *models.Project
	publish time.Time
}

func seedFixture(t *testing.T, repo storage.Repository) *fixture {
	t.Helper()
	ctx := context.Background()

	project := &models.Project{Name: "test", IsActive: true}
	require.NoError(t, repo.CreateProject(ctx, project))

	return &fixture{
		project: project,
		publish: time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
	}
}

// seedPublished creates an opportunity, published content, and a snapshot
func (f *fixture) seedPublished(t *testing.T, repo storage.Repository, postID, subreddit string, style models.ContentStyle, score int, removed bool, snapshotAt time.Time) *models.GeneratedContent {
	t.Helper()
	ctx := context.Background()

	opportunity := &models.Opportunity{
		ProjectID:     f.project.ID,
		RedditPostID:  postID,
		Subreddit:     subreddit,
		PostCreatedAt: f.publish.Add(-time.Hour),
		Status:        models.OpportunityStatusPublished,
		ExpiresAt:     f.publish.Add(time.Hour),
	}
	require.NoError(t, repo.CreateOpportunities(ctx, []*models.Opportunity{opportunity}))

	content := &models.GeneratedContent{
		ProjectID:     f.project.ID,
		OpportunityID: opportunity.ID,
		Style:         style,
		Body:          "a sufficiently long reply body for the tests",
		Status:        models.ContentStatusPublished,
		PublishedAt:   &f.publish,
	}
	require.NoError(t, repo.CreateContent(ctx, content))

	require.NoError(t, repo.CreateSnapshot(ctx, &models.PerformanceSnapshot{
		ContentID:  content.ID,
		Score:      score,
		Removed:    removed,
		SnapshotAt: snapshotAt,
	}))
	return content
}

func TestRun_UpdatesAllThreeDimensions(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	f.seedPublished(t, repo, "p1", "golang", models.StyleTechnical, 8, false, now)

	agg := newTestAggregator(t, repo)
	result, err := agg.Run(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outcomes)
	assert.Equal(t, 3, result.FeaturesUpdated)
	assert.Empty(t, result.Errors)

	timing, err := repo.GetFeature(ctx, f.project.ID, models.FeatureTimingHour, "14")
	require.NoError(t, err)
	require.NotNil(t, timing)
	assert.Equal(t, 1, timing.SampleCount)
	assert.Equal(t, 1, timing.SuccessCount)
	assert.Equal(t, 8.0, timing.AvgScore)

	sub, err := repo.GetFeature(ctx, f.project.ID, models.FeatureSubreddit, "golang")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, 2.0, sub.BanditAlpha)
	assert.Equal(t, 1.0, sub.BanditBeta)

	style, err := repo.GetFeature(ctx, f.project.ID, models.FeatureStyle, "technical")
	require.NoError(t, err)
	require.NotNil(t, style)
	assert.Equal(t, 1.0, style.SuccessRate)
}

func TestRun_SuccessJudgment(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	// Below the success score
	f.seedPublished(t, repo, "low1", "golang", models.StyleCasual, 3, false, now)
	// High score but removed by moderators
	f.seedPublished(t, repo, "rem1", "golang", models.StyleCasual, 20, true, now)
	// Genuine success
	f.seedPublished(t, repo, "win1", "golang", models.StyleCasual, 9, false, now)

	agg := newTestAggregator(t, repo)
	result, err := agg.Run(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Outcomes)

	sub, err := repo.GetFeature(ctx, f.project.ID, models.FeatureSubreddit, "golang")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, 3, sub.SampleCount)
	assert.Equal(t, 1, sub.SuccessCount)
	assert.InDelta(t, 1.0/3.0, sub.SuccessRate, 1e-9)
	// Batch mean of 3, 20, 9
	assert.InDelta(t, 32.0/3.0, sub.AvgScore, 1e-9)

	assert.True(t, agg.Reliable(sub))
}

func TestRun_LatestSnapshotWins(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	content := f.seedPublished(t, repo, "p1", "golang", models.StyleTechnical, 2, false, now.Add(-2*time.Hour))
	require.NoError(t, repo.CreateSnapshot(ctx, &models.PerformanceSnapshot{
		ContentID:  content.ID,
		Score:      12,
		SnapshotAt: now,
	}))

	agg := newTestAggregator(t, repo)
	result, err := agg.Run(ctx, now.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outcomes)

	sub, err := repo.GetFeature(ctx, f.project.ID, models.FeatureSubreddit, "golang")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.SampleCount)
	assert.Equal(t, 12.0, sub.AvgScore)
	assert.Equal(t, 1, sub.SuccessCount)
}

func TestRun_WindowExcludesOldSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	f.seedPublished(t, repo, "old1", "golang", models.StyleCasual, 9, false, now.Add(-48*time.Hour))

	agg := newTestAggregator(t, repo)
	result, err := agg.Run(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Outcomes)
	assert.Equal(t, 0, result.FeaturesUpdated)
}

func TestRun_UnpublishedContentIgnored(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	content := f.seedPublished(t, repo, "p1", "golang", models.StyleCasual, 9, false, now)
	content.PublishedAt = nil
	require.NoError(t, repo.UpdateContent(ctx, content))

	agg := newTestAggregator(t, repo)
	result, err := agg.Run(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Outcomes)
}

func TestRun_FoldsIntoExistingFeature(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	existing := models.NewLearningFeature(f.project.ID, models.FeatureSubreddit, "golang")
	existing.RecordBatch(2, 4, 6.0, now.Add(-24*time.Hour))
	require.NoError(t, repo.SaveFeature(ctx, existing))

	f.seedPublished(t, repo, "p1", "golang", models.StyleCasual, 10, false, now)

	agg := newTestAggregator(t, repo)
	_, err := agg.Run(ctx, now.Add(-time.Hour))
	require.NoError(t, err)

	sub, err := repo.GetFeature(ctx, f.project.ID, models.FeatureSubreddit, "golang")
	require.NoError(t, err)
	assert.Equal(t, 5, sub.SampleCount)
	assert.Equal(t, 3, sub.SuccessCount)
	// 6*(1-0.1) + 10*0.1
	assert.InDelta(t, 6.4, sub.AvgScore, 1e-9)
}

func TestDecayPass(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	feature := models.NewLearningFeature(f.project.ID, models.FeatureStyle, "technical")
	feature.BanditAlpha = 10
	feature.BanditBeta = 2
	feature.LastObservedAt = &now
	require.NoError(t, repo.SaveFeature(ctx, feature))

	agg := newTestAggregator(t, repo)
	decayed, err := agg.DecayPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, decayed)

	got, err := repo.GetFeature(ctx, f.project.ID, models.FeatureStyle, "technical")
	require.NoError(t, err)
	assert.InDelta(t, 9.5, got.BanditAlpha, 1e-9)
	assert.InDelta(t, 1.9, got.BanditBeta, 1e-9)
}

package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-agent/internal/ai"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/internal/storage/sqlite"
	"github.com/reddit-agent/pkg/logger"
)

type fakeCompleter struct {
	text  string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _, _ string) (*ai.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Completion{
		Text: f.text,
		Meta: models.GenerationMeta{Model: "test-model", PromptTokens: 100, CompletionTokens: 50},
	}, nil
}

const goodBody = "I hit the same problem in production last quarter. What worked was " +
	"splitting the migration into two deploys and gating the new path behind a flag."

func testPublishingConfig() config.PublishingConfig {
	return config.PublishingConfig{
		AutoApprove:  false,
		DefaultStyle: string(models.StyleHelpfulExpert),
		BrandVoice:   "friendly engineer",
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

func newTestAgent(t *testing.T, repo storage.Repository, completer Completer, autoApprove bool) *Agent {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	cfg := testPublishingConfig()
	cfg.AutoApprove = autoApprove
	return NewAgent(completer, repo, cfg, log)
}

func seedOpportunity(t *testing.T, repo storage.Repository, status models.OpportunityStatus) (*models.Project, *models.Opportunity) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	project := &models.Project{
		Name:               "test",
		IsActive:           true,
		ProductName:        "DeployTool",
		ProductDescription: "deployment automation",
		ProductURL:         "https://deploytool.example",
	}
	require.NoError(t, repo.CreateProject(ctx, project))

	opportunity := &models.Opportunity{
		ProjectID:     project.ID,
		RedditPostID:  "gen123",
		Subreddit:     "golang",
		PostTitle:     "How do you handle migrations",
		PostCreatedAt: now.Add(-time.Hour),
		Status:        status,
		ExpiresAt:     now.Add(2 * time.Hour),
	}
	require.NoError(t, repo.CreateOpportunities(ctx, []*models.Opportunity{opportunity}))
	return project, opportunity
}

func TestGenerate_PendingReview(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCompleter{text: goodBody}, false)

	content, err := agent.Generate(ctx, opportunity.ID, models.StyleTechnical)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusPending, content.Status)
	assert.Equal(t, models.StyleTechnical, content.Style)
	assert.Equal(t, goodBody, content.Body)
	assert.Equal(t, 1, content.Version)
	assert.Equal(t, "test-model", content.Generation.Model)
	assert.Empty(t, content.Quality.BlockingIssues)

	got, err := repo.GetOpportunityByID(ctx, opportunity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusReady, got.Status)
}

func TestGenerate_AutoApprove(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)

	agent := newTestAgent(t, repo, &fakeCompleter{text: goodBody}, true)

	content, err := agent.Generate(context.Background(), opportunity.ID, models.StyleCasual)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusApproved, content.Status)
	assert.True(t, content.IsPublishable())
}

func TestGenerate_QualityGateFailure(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	spammy := goodBody + " This tool is a game changer, sign up now!"
	agent := newTestAgent(t, repo, &fakeCompleter{text: spammy}, true)

	content, err := agent.Generate(ctx, opportunity.ID, models.StyleCasual)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusDraft, content.Status)
	assert.NotEmpty(t, content.Quality.BlockingIssues)
	assert.False(t, content.IsPublishable())

	// The opportunity goes back to approved so a regeneration can run
	got, err := repo.GetOpportunityByID(ctx, opportunity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusApproved, got.Status)
}

func TestGenerate_SubredditRulesApply(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	require.NoError(t, repo.SaveSubredditConfig(ctx, &models.SubredditConfig{
		Name:       "golang",
		IsEnabled:  true,
		AllowLinks: false,
	}))

	withLink := goodBody + " Details at https://deploytool.example/docs."
	agent := newTestAgent(t, repo, &fakeCompleter{text: withLink}, true)

	content, err := agent.Generate(ctx, opportunity.ID, models.StyleCasual)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusDraft, content.Status)
	assert.Contains(t, content.Quality.BlockingIssues, "subreddit disallows links")
}

func TestGenerate_ModelFailureRestoresOpportunity(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCompleter{err: errors.New("overloaded")}, false)

	_, err := agent.Generate(ctx, opportunity.ID, models.StyleCasual)
	require.Error(t, err)

	got, err := repo.GetOpportunityByID(ctx, opportunity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusApproved, got.Status)
}

func TestGenerate_RejectsWrongStatus(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusPending)

	completer := &fakeCompleter{text: goodBody}
	agent := newTestAgent(t, repo, completer, false)

	_, err := agent.Generate(context.Background(), opportunity.ID, models.StyleCasual)
	assert.Error(t, err)
	assert.Zero(t, completer.calls)
}

func TestGenerate_VersionsIncrement(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCompleter{text: goodBody}, false)

	first, err := agent.Generate(ctx, opportunity.ID, models.StyleCasual)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	// The first pass left the opportunity ready, regenerate from there
	second, err := agent.Generate(ctx, opportunity.ID, models.StyleTechnical)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
}

func TestGenerate_PicksStyleWhenUnset(t *testing.T) {
	repo := newTestRepo(t)
	project, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	// Overwhelming evidence for one style should dominate the sampling
	winner := models.NewLearningFeature(project.ID, models.FeatureStyle, string(models.StyleStorytelling))
	winner.BanditAlpha = 500
	winner.BanditBeta = 1
	require.NoError(t, repo.SaveFeature(ctx, winner))
	for _, style := range []models.ContentStyle{models.StyleHelpfulExpert, models.StyleCasual, models.StyleTechnical} {
		loser := models.NewLearningFeature(project.ID, models.FeatureStyle, string(style))
		loser.BanditAlpha = 1
		loser.BanditBeta = 500
		require.NoError(t, repo.SaveFeature(ctx, loser))
	}

	agent := newTestAgent(t, repo, &fakeCompleter{text: goodBody}, false)

	content, err := agent.Generate(ctx, opportunity.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StyleStorytelling, content.Style)
}

func TestRunBatch(t *testing.T) {
	repo := newTestRepo(t)
	_, _ = seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	completer := &fakeCompleter{text: goodBody}
	agent := newTestAgent(t, repo, completer, true)

	generated, errs := agent.RunBatch(ctx, 10)
	assert.Empty(t, errs)
	assert.Equal(t, 1, generated)
	assert.Equal(t, 1, completer.calls)

	// Nothing approved is left on the second pass
	generated, errs = agent.RunBatch(ctx, 10)
	assert.Empty(t, errs)
	assert.Equal(t, 0, generated)
}

func TestRunBatch_SkipsLowComposite(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)
	ctx := context.Background()

	opportunity.CompositeScore = 0.2
	require.NoError(t, repo.UpdateOpportunity(ctx, opportunity))

	cfg := testPublishingConfig()
	cfg.MinCompositeScore = 0.5
	completer := &fakeCompleter{text: goodBody}
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	agent := NewAgent(completer, repo, cfg, log)

	generated, errs := agent.RunBatch(ctx, 10)
	assert.Empty(t, errs)
	assert.Equal(t, 0, generated)
	assert.Zero(t, completer.calls)
}

func TestGenerate_TrimsCompletion(t *testing.T) {
	repo := newTestRepo(t)
	_, opportunity := seedOpportunity(t, repo, models.OpportunityStatusApproved)

	agent := newTestAgent(t, repo, &fakeCompleter{text: "\n\n" + goodBody + "  \n"}, false)

	content, err := agent.Generate(context.Background(), opportunity.ID, models.StyleCasual)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(content.Body, "\n"))
	assert.Equal(t, goodBody, content.Body)
}

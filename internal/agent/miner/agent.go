package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/scoring"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/pkg/logger"
)

// Lister is the read-only Reddit surface the miner needs
type Lister interface {
	FetchCandidates(ctx context.Context, subreddit string, limit int) ([]reddit.RawPost, error)
	SubredditInfo(ctx context.Context, subreddit string) (*reddit.SubredditAbout, error)
	FetchThing(ctx context.Context, fullname string) (*reddit.ThingMetrics, error)
}

// ClientFunc builds a fresh read-only client for one mining pass
type ClientFunc func(ctx context.Context) Lister

// Agent mines subreddits for engagement opportunities
type Agent struct {
	clientFor  ClientFunc
	repository storage.Repository
	predictor  scoring.Predictor
	config     config.MiningConfig
	log        *logger.Logger
}

// NewAgent creates a new mining agent
func NewAgent(
	clientFor ClientFunc,
	repository storage.Repository,
	predictor scoring.Predictor,
	miningConfig config.MiningConfig,
	log *logger.Logger,
) *Agent {
	return &Agent{
		clientFor:  clientFor,
		repository: repository,
		predictor:  predictor,
		config:     miningConfig,
		log:        log.WithComponent("miner"),
	}
}

// MiningResult contains the results of a mining run
type MiningResult struct {
	PostsFetched       int
	OpportunitiesSaved int
	Skipped            int
	Errors             []error
	Duration           time.Duration
}

// Run mines every target subreddit of every active project. A failing
// subreddit is recorded and skipped, it never aborts the run.
func (a *Agent) Run(ctx context.Context) (*MiningResult, error) {
	startTime := time.Now()
	result := &MiningResult{}

	a.log.Info().Msg("Starting opportunity mining run")

	projects, err := a.repository.ListProjects(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	for _, project := range projects {
		for _, subreddit := range project.TargetSubreddits {
			if result.PostsFetched >= a.config.BatchLimit {
				a.log.Info().Int("limit", a.config.BatchLimit).Msg("Mining batch limit reached")
				break
			}

			saved, fetched, skipped, err := a.mineSubreddit(ctx, project, subreddit)
			result.PostsFetched += fetched
			result.OpportunitiesSaved += saved
			result.Skipped += skipped
			if err != nil {
				a.log.Error().
					Err(err).
					Str("subreddit", subreddit).
					Uint("project_id", project.ID).
					Msg("Subreddit mining failed")
				result.Errors = append(result.Errors, fmt.Errorf("r/%s: %w", subreddit, err))
			}
		}
	}

	result.Duration = time.Since(startTime)

	a.log.Info().
		Int("posts_fetched", result.PostsFetched).
		Int("opportunities_saved", result.OpportunitiesSaved).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Mining run completed")

	return result, nil
}

// mineSubreddit fetches, scores, and persists candidates from one
// subreddit. All new opportunities land in a single transaction.
func (a *Agent) mineSubreddit(ctx context.Context, project *models.Project, subreddit string) (saved, fetched, skipped int, err error) {
	client := a.clientFor(ctx)
	now := time.Now().UTC()

	subCfg, err := a.subredditConfig(ctx, client, subreddit)
	if err != nil {
		return 0, 0, 0, err
	}
	if !subCfg.IsEnabled {
		a.log.Debug().Str("subreddit", subreddit).Msg("Subreddit disabled, skipping")
		return 0, 0, 0, nil
	}

	threshold := subCfg.VelocityThresholdOverride
	if threshold <= 0 {
		if subCfg.Subscribers > 0 {
			threshold = scoring.VelocityThreshold(subCfg.Subscribers)
		} else {
			threshold = a.config.DefaultThreshold
		}
	}

	posts, err := client.FetchCandidates(ctx, subreddit, a.config.SubredditLimit)
	if err != nil {
		return 0, 0, 0, err
	}
	fetched = len(posts)

	var opportunities []*models.Opportunity
	for _, post := range posts {
		opportunity, ok, evalErr := a.evaluate(ctx, project, post, threshold, subCfg.Subscribers, now)
		if evalErr != nil {
			a.log.Warn().
				Err(evalErr).
				Str("reddit_post_id", post.ID).
				Msg("Failed to evaluate post")
			skipped++
			continue
		}
		if !ok {
			skipped++
			continue
		}
		opportunities = append(opportunities, opportunity)
	}

	if err := a.repository.CreateOpportunities(ctx, opportunities); err != nil {
		return 0, fetched, skipped, fmt.Errorf("failed to save opportunities: %w", err)
	}

	a.log.Info().
		Str("subreddit", subreddit).
		Int("fetched", fetched).
		Int("saved", len(opportunities)).
		Float64("threshold", threshold).
		Msg("Subreddit mined")

	return len(opportunities), fetched, skipped, nil
}

// evaluate scores one candidate, returning ok=false when it fails a
// discovery gate (age ceiling, duplicate, relevance floor, expired).
func (a *Agent) evaluate(ctx context.Context, project *models.Project, post reddit.RawPost, threshold float64, subscribers int, now time.Time) (*models.Opportunity, bool, error) {
	ageHours := scoring.AgeHours(post.CreatedAt(), now)
	if ageHours > a.config.MaxPostAgeHours {
		return nil, false, nil
	}

	existing, err := a.repository.GetOpportunityByRedditPostID(ctx, post.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return nil, false, nil
	}

	relevance := scoring.Relevance(post.Title, post.SelfText, project.Keywords, project.NegativeKeywords)
	if relevance < a.config.MinRelevanceScore {
		return nil, false, nil
	}

	velocity := scoring.Velocity(post.Score, post.NumComments, ageHours)
	urgency := scoring.ClassifyUrgency(velocity, ageHours, threshold)
	if urgency == scoring.UrgencyExpired {
		return nil, false, nil
	}

	features := scoring.ExtractFeatures(
		post.Title, post.SelfText, post.IsSelf,
		post.Score, post.NumComments, post.UpvoteRatio,
		post.CreatedAt(), subscribers, now,
	)
	virality, err := a.predictor.Predict(features, threshold)
	if err != nil {
		return nil, false, err
	}

	timing := urgency.TimingScore()
	composite := scoring.Composite(relevance, virality, timing)

	return &models.Opportunity{
		ProjectID:         project.ID,
		RedditPostID:      post.ID,
		Subreddit:         post.Subreddit,
		PostTitle:         post.Title,
		PostContent:       post.SelfText,
		PostURL:           post.URL(),
		PostAuthor:        post.Author,
		PostCreatedAt:     post.CreatedAt(),
		PostScore:         post.Score,
		PostNumComments:   post.NumComments,
		PostUpvoteRatio:   post.UpvoteRatio,
		RelevanceScore:    relevance,
		ViralityScore:     virality,
		TimingScore:       timing,
		CompositeScore:    composite,
		Urgency:           urgency,
		Velocity:          velocity,
		VelocityThreshold: threshold,
		Status:            models.OpportunityStatusPending,
		ExpiresAt:         scoring.ExpiresAt(now, ageHours, urgency),
		Meta: models.OpportunityMeta{
			IsSelf:    post.IsSelf,
			FlairText: post.FlairText,
			Over18:    post.Over18,
		},
	}, true, nil
}

// subredditConfig loads the subreddit row, creating it from the about
// endpoint on first sight and refreshing subscriber counts daily.
func (a *Agent) subredditConfig(ctx context.Context, client Lister, subreddit string) (*models.SubredditConfig, error) {
	subCfg, err := a.repository.GetSubredditConfig(ctx, subreddit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := subCfg != nil && subCfg.RefreshedAt != nil && now.Sub(*subCfg.RefreshedAt) < 24*time.Hour
	if fresh {
		return subCfg, nil
	}

	about, err := client.SubredditInfo(ctx, subreddit)
	if err != nil {
		// Keep mining with stale data when the refresh fails
		if subCfg != nil {
			a.log.Warn().Err(err).Str("subreddit", subreddit).Msg("Subreddit refresh failed, using cached config")
			return subCfg, nil
		}
		return nil, err
	}

	if subCfg == nil {
		subCfg = &models.SubredditConfig{
			Name:       subreddit,
			IsEnabled:  true,
			AllowLinks: true,
		}
	}
	subCfg.Subscribers = about.Subscribers
	subCfg.RefreshedAt = &now

	if err := a.repository.SaveSubredditConfig(ctx, subCfg); err != nil {
		return nil, err
	}
	return subCfg, nil
}

// RefreshOpportunity refetches live metrics for a pending opportunity
// and recomputes its scores and expiry.
func (a *Agent) RefreshOpportunity(ctx context.Context, id uint) (*models.Opportunity, error) {
	opportunity, err := a.repository.GetOpportunityByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("opportunity not found: %w", err)
	}
	if opportunity.Status.IsTerminal() {
		return opportunity, nil
	}

	client := a.clientFor(ctx)
	metrics, err := client.FetchThing(ctx, "t3_"+opportunity.RedditPostID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh opportunity: %w", err)
	}

	now := time.Now().UTC()
	ageHours := opportunity.AgeHours(now)

	opportunity.PostScore = metrics.Score
	opportunity.PostNumComments = metrics.NumReplies
	opportunity.Velocity = scoring.Velocity(metrics.Score, metrics.NumReplies, ageHours)
	opportunity.Urgency = scoring.ClassifyUrgency(opportunity.Velocity, ageHours, opportunity.VelocityThreshold)
	opportunity.TimingScore = opportunity.Urgency.TimingScore()
	opportunity.CompositeScore = scoring.Composite(opportunity.RelevanceScore, opportunity.ViralityScore, opportunity.TimingScore)
	opportunity.ExpiresAt = scoring.ExpiresAt(now, ageHours, opportunity.Urgency)

	if opportunity.Urgency == scoring.UrgencyExpired && opportunity.Status == models.OpportunityStatusPending {
		opportunity.Status = models.OpportunityStatusExpired
	}

	if err := a.repository.UpdateOpportunity(ctx, opportunity); err != nil {
		return nil, err
	}

	a.log.Info().
		Uint("opportunity_id", opportunity.ID).
		Str("urgency", string(opportunity.Urgency)).
		Float64("composite_score", opportunity.CompositeScore).
		Msg("Opportunity refreshed")

	return opportunity, nil
}

// ExpireStale sweeps opportunities past their expiry window
func (a *Agent) ExpireStale(ctx context.Context) (int64, error) {
	expired, err := a.repository.ExpireStaleOpportunities(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire opportunities: %w", err)
	}
	if expired > 0 {
		a.log.Info().Int64("expired", expired).Msg("Stale opportunities expired")
	}
	return expired, nil
}

package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/pkg/logger"
)

// Aggregator folds publish outcomes into per-project learning features
type Aggregator struct {
	repository storage.Repository
	config     config.LearningConfig
	log        *logger.Logger
}

// NewAggregator creates a new learning aggregator
func NewAggregator(repository storage.Repository, learningConfig config.LearningConfig, log *logger.Logger) *Aggregator {
	return &Aggregator{
		repository: repository,
		config:     learningConfig,
		log:        log.WithComponent("learning"),
	}
}

// AggregateResult contains the results of an aggregation run
type AggregateResult struct {
	Outcomes        int
	FeaturesUpdated int
	Errors          []error
}

// outcome is one published reply's judged result
type outcome struct {
	success bool
	score   float64
}

// featureKey identifies one learning feature
type featureKey struct {
	projectID   uint
	featureType models.FeatureType
	key         string
}

// Run aggregates snapshots taken since the given time. Each content's
// latest snapshot in the window contributes one outcome to each of its
// timing, subreddit, and style features.
func (g *Aggregator) Run(ctx context.Context, since time.Time) (*AggregateResult, error) {
	result := &AggregateResult{}

	snapshots, err := g.repository.ListSnapshotsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	// Latest snapshot per content wins
	latest := make(map[uint]*models.PerformanceSnapshot)
	for _, snapshot := range snapshots {
		current, ok := latest[snapshot.ContentID]
		if !ok || snapshot.SnapshotAt.After(current.SnapshotAt) {
			latest[snapshot.ContentID] = snapshot
		}
	}

	groups := make(map[featureKey][]outcome)
	for contentID, snapshot := range latest {
		keys, judged, err := g.judge(ctx, contentID, snapshot)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("content %d: %w", contentID, err))
			continue
		}
		if keys == nil {
			continue
		}
		result.Outcomes++
		for _, key := range keys {
			groups[key] = append(groups[key], judged)
		}
	}

	now := time.Now().UTC()
	for key, outcomes := range groups {
		if err := g.fold(ctx, key, outcomes, now); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("feature %s/%s: %w", key.featureType, key.key, err))
			continue
		}
		result.FeaturesUpdated++
	}

	g.log.Info().
		Int("outcomes", result.Outcomes).
		Int("features_updated", result.FeaturesUpdated).
		Int("errors", len(result.Errors)).
		Msg("Learning aggregation completed")

	return result, nil
}

// judge loads the content and derives its outcome and feature keys.
// Returns nil keys for content that should not contribute.
func (g *Aggregator) judge(ctx context.Context, contentID uint, snapshot *models.PerformanceSnapshot) ([]featureKey, outcome, error) {
	content, err := g.repository.GetContentByID(ctx, contentID)
	if err != nil {
		return nil, outcome{}, err
	}
	if content.PublishedAt == nil {
		return nil, outcome{}, nil
	}

	opportunity, err := g.repository.GetOpportunityByID(ctx, content.OpportunityID)
	if err != nil {
		return nil, outcome{}, err
	}

	judged := outcome{
		success: snapshot.Score >= g.config.SuccessScore && !snapshot.Removed,
		score:   float64(snapshot.Score),
	}

	keys := []featureKey{
		{content.ProjectID, models.FeatureTimingHour, models.TimingKey(content.PublishedAt.UTC().Hour())},
		{content.ProjectID, models.FeatureSubreddit, opportunity.Subreddit},
		{content.ProjectID, models.FeatureStyle, string(content.Style)},
	}
	return keys, judged, nil
}

// fold applies one group of outcomes to its feature in a single batch step
func (g *Aggregator) fold(ctx context.Context, key featureKey, outcomes []outcome, now time.Time) error {
	feature, err := g.repository.GetFeature(ctx, key.projectID, key.featureType, key.key)
	if err != nil {
		return err
	}
	if feature == nil {
		feature = models.NewLearningFeature(key.projectID, key.featureType, key.key)
	}

	successes := 0
	sum := 0.0
	for _, o := range outcomes {
		if o.success {
			successes++
		}
		sum += o.score
	}
	feature.RecordBatch(successes, len(outcomes), sum/float64(len(outcomes)), now)

	return g.repository.SaveFeature(ctx, feature)
}

// Reliable reports whether a feature has enough samples to act on
func (g *Aggregator) Reliable(feature *models.LearningFeature) bool {
	return feature.SampleCount >= g.config.MinSamples
}

// DecayPass shrinks every feature's posterior toward the prior so old
// evidence fades. Run weekly.
func (g *Aggregator) DecayPass(ctx context.Context) (int, error) {
	projects, err := g.repository.ListProjects(ctx, false)
	if err != nil {
		return 0, err
	}

	decayed := 0
	for _, project := range projects {
		features, err := g.repository.ListFeatures(ctx, project.ID, nil)
		if err != nil {
			return decayed, err
		}
		for _, feature := range features {
			feature.ApplyDecay(g.config.DecayRate)
			if err := g.repository.SaveFeature(ctx, feature); err != nil {
				return decayed, err
			}
			decayed++
		}
	}

	g.log.Info().Int("features", decayed).Msg("Decay pass completed")
	return decayed, nil
}

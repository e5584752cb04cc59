package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/reddit-agent/internal/ai"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/quality"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/pkg/logger"
)

// Completer is the model surface the generator needs
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (*ai.Completion, error)
}

// Agent drafts replies for approved opportunities
type Agent struct {
	aiClient   Completer
	repository storage.Repository
	config     config.PublishingConfig
	rng        *rand.Rand
	log        *logger.Logger
}

// NewAgent creates a new generator agent
func NewAgent(
	aiClient Completer,
	repository storage.Repository,
	publishConfig config.PublishingConfig,
	log *logger.Logger,
) *Agent {
	return &Agent{
		aiClient:   aiClient,
		repository: repository,
		config:     publishConfig,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		log:        log.WithComponent("generator"),
	}
}

// Generate drafts a reply for an approved opportunity. An empty style
// means pick one via Thompson sampling over the project's style stats.
func (a *Agent) Generate(ctx context.Context, opportunityID uint, style models.ContentStyle) (*models.GeneratedContent, error) {
	opportunity, err := a.repository.GetOpportunityByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("opportunity not found: %w", err)
	}

	if opportunity.Status != models.OpportunityStatusApproved &&
		opportunity.Status != models.OpportunityStatusReady {
		return nil, fmt.Errorf("opportunity %d is %s, expected approved", opportunityID, opportunity.Status)
	}

	project, err := a.repository.GetProjectByID(ctx, opportunity.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}

	if style == "" {
		style = a.pickStyle(ctx, project.ID)
	}

	opportunity.Status = models.OpportunityStatusGenerating
	if err := a.repository.UpdateOpportunity(ctx, opportunity); err != nil {
		return nil, err
	}

	a.log.Info().
		Uint("opportunity_id", opportunityID).
		Str("subreddit", opportunity.Subreddit).
		Str("style", string(style)).
		Msg("Generating reply")

	systemPrompt, userPrompt := ai.BuildReplyPrompts(
		a.config.BrandVoice, style,
		opportunity.Subreddit, opportunity.PostTitle, opportunity.PostContent,
		project.ProductName, project.ProductDescription,
	)

	completion, err := a.aiClient.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		// Put the opportunity back so generation can be retried
		opportunity.Status = models.OpportunityStatusApproved
		if updateErr := a.repository.UpdateOpportunity(ctx, opportunity); updateErr != nil {
			a.log.Error().Err(updateErr).Msg("Failed to restore opportunity status")
		}
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	body := strings.TrimSpace(completion.Text)
	report := a.evaluateQuality(ctx, body, opportunity.Subreddit, project.ProductURL)

	version, err := a.repository.NextContentVersion(ctx, opportunity.ID)
	if err != nil {
		return nil, err
	}

	content := &models.GeneratedContent{
		ProjectID:     project.ID,
		OpportunityID: opportunity.ID,
		ContentType:   models.ContentTypeComment,
		Style:         style,
		Body:          body,
		Version:       version,
		Generation:    completion.Meta,
		Quality:       report,
	}

	if quality.Passed(report) {
		if a.config.AutoApprove {
			content.Status = models.ContentStatusApproved
		} else {
			content.Status = models.ContentStatusPending
		}
		opportunity.Status = models.OpportunityStatusReady
	} else {
		content.Status = models.ContentStatusDraft
		opportunity.Status = models.OpportunityStatusApproved
		a.log.Warn().
			Uint("opportunity_id", opportunityID).
			Strs("blocking_issues", report.BlockingIssues).
			Msg("Generated reply failed quality gates")
	}

	err = a.repository.Transaction(ctx, func(tx storage.Repository) error {
		if err := tx.CreateContent(ctx, content); err != nil {
			return err
		}
		return tx.UpdateOpportunity(ctx, opportunity)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save generated content: %w", err)
	}

	a.log.Info().
		Uint("content_id", content.ID).
		Int("version", content.Version).
		Str("status", string(content.Status)).
		Float64("quality_score", report.Score).
		Msg("Reply generated")

	return content, nil
}

// RunBatch generates replies for every approved opportunity at or above
// the composite floor, best-scored first.
func (a *Agent) RunBatch(ctx context.Context, limit int) (int, []error) {
	status := models.OpportunityStatusApproved
	filter := storage.DefaultOpportunityFilter()
	filter.Status = &status
	filter.Limit = limit

	opportunities, err := a.repository.ListOpportunities(ctx, filter)
	if err != nil {
		return 0, []error{err}
	}

	generated := 0
	var errs []error
	for _, opportunity := range opportunities {
		if opportunity.CompositeScore < a.config.MinCompositeScore {
			a.log.Debug().
				Uint("opportunity_id", opportunity.ID).
				Float64("composite_score", opportunity.CompositeScore).
				Msg("Composite score below floor, skipping")
			continue
		}
		if _, err := a.Generate(ctx, opportunity.ID, ""); err != nil {
			errs = append(errs, fmt.Errorf("opportunity %d: %w", opportunity.ID, err))
			continue
		}
		generated++
	}
	return generated, errs
}

// pickStyle samples each style's Beta posterior and takes the winner.
// Styles without history sample from the uniform prior, which keeps
// exploration alive.
func (a *Agent) pickStyle(ctx context.Context, projectID uint) models.ContentStyle {
	best := models.ContentStyle(a.config.DefaultStyle)
	bestSample := -1.0

	for _, style := range models.AllContentStyles {
		feature, err := a.repository.GetFeature(ctx, projectID, models.FeatureStyle, string(style))
		if err != nil {
			a.log.Warn().Err(err).Str("style", string(style)).Msg("Failed to load style feature")
			continue
		}
		if feature == nil {
			feature = models.NewLearningFeature(projectID, models.FeatureStyle, string(style))
		}

		sample := feature.ThompsonSample(a.rng)
		if sample > bestSample {
			bestSample = sample
			best = style
		}
	}

	a.log.Debug().
		Str("style", string(best)).
		Float64("sample", bestSample).
		Msg("Style selected by Thompson sampling")

	return best
}

func (a *Agent) evaluateQuality(ctx context.Context, body, subreddit, productURL string) models.QualityReport {
	gateCtx := quality.Context{
		Subreddit:  subreddit,
		AllowLinks: true,
		ProductURL: productURL,
	}
	if subCfg, err := a.repository.GetSubredditConfig(ctx, subreddit); err == nil && subCfg != nil {
		gateCtx.AllowLinks = subCfg.AllowLinks
		gateCtx.MinCommentLength = subCfg.MinCommentLength
	}
	return quality.Evaluate(body, gateCtx)
}

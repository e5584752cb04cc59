package storage

import (
	"context"
	"errors"
	"time"

	"github.com/reddit-agent/internal/models"
)

// ErrAccountBusy means another publisher won the reservation race for
// the account. Callers retry with the next candidate.
var ErrAccountBusy = errors.New("storage: account reservation conflict")

// Repository defines the interface for data persistence
type Repository interface {
	// Project operations
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByID(ctx context.Context, id uint) (*models.Project, error)
	ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error)
	UpdateProject(ctx context.Context, project *models.Project) error

	// Opportunity operations
	CreateOpportunities(ctx context.Context, opportunities []*models.Opportunity) error
	GetOpportunityByID(ctx context.Context, id uint) (*models.Opportunity, error)
	GetOpportunityByRedditPostID(ctx context.Context, redditPostID string) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]*models.Opportunity, error)
	UpdateOpportunity(ctx context.Context, opportunity *models.Opportunity) error
	ExpireStaleOpportunities(ctx context.Context, now time.Time) (int64, error)

	// Account operations
	CreateAccount(ctx context.Context, account *models.RedditAccount) error
	GetAccountByID(ctx context.Context, id uint) (*models.RedditAccount, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.RedditAccount, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]*models.RedditAccount, error)
	UpdateAccount(ctx context.Context, account *models.RedditAccount) error
	// ReserveAccount stamps the action bookkeeping on the account row
	// with an optimistic lock_version check. Returns ErrAccountBusy when
	// a concurrent reservation already bumped the version.
	ReserveAccount(ctx context.Context, account *models.RedditAccount, now time.Time) error

	// Generated content operations
	CreateContent(ctx context.Context, content *models.GeneratedContent) error
	GetContentByID(ctx context.Context, id uint) (*models.GeneratedContent, error)
	ListContent(ctx context.Context, filter ContentFilter) ([]*models.GeneratedContent, error)
	UpdateContent(ctx context.Context, content *models.GeneratedContent) error
	NextContentVersion(ctx context.Context, opportunityID uint) (int, error)

	// Performance snapshot operations
	CreateSnapshot(ctx context.Context, snapshot *models.PerformanceSnapshot) error
	LatestSnapshot(ctx context.Context, contentID uint) (*models.PerformanceSnapshot, error)
	ListSnapshotsSince(ctx context.Context, since time.Time) ([]*models.PerformanceSnapshot, error)

	// Learning feature operations
	GetFeature(ctx context.Context, projectID uint, featureType models.FeatureType, key string) (*models.LearningFeature, error)
	SaveFeature(ctx context.Context, feature *models.LearningFeature) error
	ListFeatures(ctx context.Context, projectID uint, featureType *models.FeatureType) ([]*models.LearningFeature, error)

	// Subreddit config operations
	GetSubredditConfig(ctx context.Context, name string) (*models.SubredditConfig, error)
	SaveSubredditConfig(ctx context.Context, config *models.SubredditConfig) error

	// Transaction runs fn inside a database transaction. The repository
	// passed to fn must be used for every operation inside it.
	Transaction(ctx context.Context, fn func(Repository) error) error

	// Maintenance
	Close() error
	Migrate() error
}

// OpportunityFilter defines filtering options for opportunities
type OpportunityFilter struct {
	ProjectID    *uint
	Status       *models.OpportunityStatus
	Subreddit    *string
	MinComposite *float64
	Limit        int
	Offset       int
	OrderBy      string // "composite_score", "discovered_at", "expires_at"
	OrderDesc    bool
}

// AccountFilter defines filtering options for accounts
type AccountFilter struct {
	ProjectID *uint
	Status    *models.AccountStatus
	Limit     int
}

// ContentFilter defines filtering options for generated content
type ContentFilter struct {
	ProjectID     *uint
	OpportunityID *uint
	Status        *models.ContentStatus
	Limit         int
	Offset        int
}

// DefaultOpportunityFilter returns a filter with sensible defaults
func DefaultOpportunityFilter() OpportunityFilter {
	return OpportunityFilter{
		Limit:     50,
		OrderBy:   "composite_score",
		OrderDesc: true,
	}
}

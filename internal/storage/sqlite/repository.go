package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewWithDB wraps an existing gorm connection, used by Transaction
func NewWithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Project{},
		&models.Opportunity{},
		&models.RedditAccount{},
		&models.GeneratedContent{},
		&models.PerformanceSnapshot{},
		&models.LearningFeature{},
		&models.SubredditConfig{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn in a database transaction
func (r *Repository) Transaction(ctx context.Context, fn func(storage.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewWithDB(tx))
	})
}

// Project operations

func (r *Repository) CreateProject(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *Repository) GetProjectByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *Repository) ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error) {
	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var projects []*models.Project
	if err := query.Order("id asc").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *Repository) UpdateProject(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// Opportunity operations

func (r *Repository) CreateOpportunities(ctx context.Context, opportunities []*models.Opportunity) error {
	if len(opportunities) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(opportunities).Error
}

func (r *Repository) GetOpportunityByID(ctx context.Context, id uint) (*models.Opportunity, error) {
	var opportunity models.Opportunity
	if err := r.db.WithContext(ctx).First(&opportunity, id).Error; err != nil {
		return nil, err
	}
	return &opportunity, nil
}

func (r *Repository) GetOpportunityByRedditPostID(ctx context.Context, redditPostID string) (*models.Opportunity, error) {
	var opportunity models.Opportunity
	err := r.db.WithContext(ctx).Where("reddit_post_id = ?", redditPostID).First(&opportunity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &opportunity, nil
}

func (r *Repository) ListOpportunities(ctx context.Context, filter storage.OpportunityFilter) ([]*models.Opportunity, error) {
	query := r.db.WithContext(ctx).Model(&models.Opportunity{})

	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Subreddit != nil {
		query = query.Where("subreddit = ?", *filter.Subreddit)
	}
	if filter.MinComposite != nil {
		query = query.Where("composite_score >= ?", *filter.MinComposite)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "composite_score"
	}
	direction := "asc"
	if filter.OrderDesc {
		direction = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", orderBy, direction))

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var opportunities []*models.Opportunity
	if err := query.Find(&opportunities).Error; err != nil {
		return nil, err
	}
	return opportunities, nil
}

func (r *Repository) UpdateOpportunity(ctx context.Context, opportunity *models.Opportunity) error {
	return r.db.WithContext(ctx).Save(opportunity).Error
}

// ExpireStaleOpportunities marks pending opportunities past their expiry
// or older than 24 hours as expired. Opportunities already in flight or
// terminal are left alone.
func (r *Repository) ExpireStaleOpportunities(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("status IN ?", []models.OpportunityStatus{
			models.OpportunityStatusPending,
			models.OpportunityStatusApproved,
			models.OpportunityStatusReady,
		}).
		Where("expires_at <= ? OR post_created_at <= ?", now, now.Add(-24*time.Hour)).
		Updates(map[string]interface{}{
			"status":     models.OpportunityStatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// Account operations

func (r *Repository) CreateAccount(ctx context.Context, account *models.RedditAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *Repository) GetAccountByID(ctx context.Context, id uint) (*models.RedditAccount, error) {
	var account models.RedditAccount
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*models.RedditAccount, error) {
	var account models.RedditAccount
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) ListAccounts(ctx context.Context, filter storage.AccountFilter) ([]*models.RedditAccount, error) {
	query := r.db.WithContext(ctx)
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var accounts []*models.RedditAccount
	if err := query.Order("id asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, account *models.RedditAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

// ReserveAccount performs a compare-and-swap on the account row. The
// bookkeeping is stamped before the network call so a concurrent
// publisher observing the row sees the quota already spent.
func (r *Repository) ReserveAccount(ctx context.Context, account *models.RedditAccount, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.RedditAccount{}).
		Where("id = ? AND lock_version = ?", account.ID, account.LockVersion).
		Updates(map[string]interface{}{
			"lock_version":        gorm.Expr("lock_version + 1"),
			"daily_actions_count": gorm.Expr("daily_actions_count + 1"),
			"total_actions":       gorm.Expr("total_actions + 1"),
			"last_action_at":      now,
			"updated_at":          now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountBusy
	}

	account.LockVersion++
	account.DailyActionsCount++
	account.TotalActions++
	account.LastActionAt = &now
	return nil
}

// Generated content operations

func (r *Repository) CreateContent(ctx context.Context, content *models.GeneratedContent) error {
	return r.db.WithContext(ctx).Create(content).Error
}

func (r *Repository) GetContentByID(ctx context.Context, id uint) (*models.GeneratedContent, error) {
	var content models.GeneratedContent
	if err := r.db.WithContext(ctx).First(&content, id).Error; err != nil {
		return nil, err
	}
	return &content, nil
}

func (r *Repository) ListContent(ctx context.Context, filter storage.ContentFilter) ([]*models.GeneratedContent, error) {
	query := r.db.WithContext(ctx)
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.OpportunityID != nil {
		query = query.Where("opportunity_id = ?", *filter.OpportunityID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var contents []*models.GeneratedContent
	if err := query.Order("created_at desc").Find(&contents).Error; err != nil {
		return nil, err
	}
	return contents, nil
}

func (r *Repository) UpdateContent(ctx context.Context, content *models.GeneratedContent) error {
	return r.db.WithContext(ctx).Save(content).Error
}

func (r *Repository) NextContentVersion(ctx context.Context, opportunityID uint) (int, error) {
	var maxVersion int
	err := r.db.WithContext(ctx).
		Model(&models.GeneratedContent{}).
		Where("opportunity_id = ?", opportunityID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// Performance snapshot operations

func (r *Repository) CreateSnapshot(ctx context.Context, snapshot *models.PerformanceSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *Repository) LatestSnapshot(ctx context.Context, contentID uint) (*models.PerformanceSnapshot, error) {
	var snapshot models.PerformanceSnapshot
	err := r.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("snapshot_at desc").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *Repository) ListSnapshotsSince(ctx context.Context, since time.Time) ([]*models.PerformanceSnapshot, error) {
	var snapshots []*models.PerformanceSnapshot
	err := r.db.WithContext(ctx).
		Where("snapshot_at >= ?", since).
		Order("snapshot_at asc").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// Learning feature operations

func (r *Repository) GetFeature(ctx context.Context, projectID uint, featureType models.FeatureType, key string) (*models.LearningFeature, error) {
	var feature models.LearningFeature
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND feature_type = ? AND feature_key = ?", projectID, featureType, key).
		First(&feature).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *Repository) SaveFeature(ctx context.Context, feature *models.LearningFeature) error {
	return r.db.WithContext(ctx).Save(feature).Error
}

func (r *Repository) ListFeatures(ctx context.Context, projectID uint, featureType *models.FeatureType) ([]*models.LearningFeature, error) {
	query := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if featureType != nil {
		query = query.Where("feature_type = ?", *featureType)
	}

	var features []*models.LearningFeature
	if err := query.Order("feature_type asc, feature_key asc").Find(&features).Error; err != nil {
		return nil, err
	}
	return features, nil
}

// Subreddit config operations

func (r *Repository) GetSubredditConfig(ctx context.Context, name string) (*models.SubredditConfig, error) {
	var config models.SubredditConfig
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (r *Repository) SaveSubredditConfig(ctx context.Context, config *models.SubredditConfig) error {
	return r.db.WithContext(ctx).Save(config).Error
}

package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddit-agent/internal/accounts"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/models"
	"github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/internal/storage/sqlite"
	"github.com/reddit-agent/pkg/logger"
)

type fakeCommenter struct {
	thingID string
	err     error

	calls   int
	parents []string
}

func (f *fakeCommenter) PublishReply(_ context.Context, parentFullname, _ string) (string, error) {
	f.calls++
	f.parents = append(f.parents, parentFullname)
	if f.err != nil {
		return "", f.err
	}
	return f.thingID, nil
}

type memoryRecorder struct {
	records []PublishRecord
}

func (r *memoryRecorder) RecordPublish(_ context.Context, record PublishRecord) error {
	r.records = append(r.records, record)
	return nil
}

func testAccountsConfig() config.AccountsConfig {
	return config.AccountsConfig{
		MaxDailyPosts:     10,
		MinActionInterval: 60,
		RecoveryCooldown:  30,
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

func newTestAgent(t *testing.T, repo storage.Repository, commenter Commenter, recorder Recorder) *Agent {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	clientFor := func(context.Context, string) Commenter { return commenter }
	return NewAgent(clientFor, repo,
		accounts.NewSelector(log), accounts.NewStateMachine(log),
		recorder, testAccountsConfig(), log)
}

type fixture struct {
	project     *models.Project
	opportunity *models.Opportunity
	content     *models.GeneratedContent
}

func seedFixture(t *testing.T, repo storage.Repository) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	project := &models.Project{Name: "test", IsActive: true}
	require.NoError(t, repo.CreateProject(ctx, project))

	opportunity := &models.Opportunity{
		ProjectID:     project.ID,
		RedditPostID:  "abc123",
		Subreddit:     "golang",
		PostURL:       "https://reddit.com/r/golang/comments/abc123",
		PostCreatedAt: now.Add(-time.Hour),
		Status:        models.OpportunityStatusReady,
		ExpiresAt:     now.Add(2 * time.Hour),
	}
	require.NoError(t, repo.CreateOpportunities(ctx, []*models.Opportunity{opportunity}))

	content := &models.GeneratedContent{
		ProjectID:     project.ID,
		OpportunityID: opportunity.ID,
		Style:         models.StyleTechnical,
		Body:          "a sufficiently long and thoughtful reply body",
		Status:        models.ContentStatusApproved,
	}
	require.NoError(t, repo.CreateContent(ctx, content))

	return &fixture{project: project, opportunity: opportunity, content: content}
}

func seedAccount(t *testing.T, repo storage.Repository, projectID uint, username string, karma int) *models.RedditAccount {
	t.Helper()
	account := &models.RedditAccount{
		ProjectID:    projectID,
		Username:     username,
		RefreshToken: "refresh-" + username,
		Status:       models.AccountStatusActive,
		HealthScore:  1.0,
		KarmaComment: karma,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

func TestPublish_Success(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	account := seedAccount(t, repo, f.project.ID, "poster", 2000)
	ctx := context.Background()

	commenter := &fakeCommenter{thingID: "t1_reply1"}
	recorder := &memoryRecorder{}
	agent := newTestAgent(t, repo, commenter, recorder)

	published, err := agent.Publish(ctx, f.content.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusPublished, published.Status)
	assert.Equal(t, "t1_reply1", published.RedditThingID)
	require.NotNil(t, published.PublishedAt)

	require.Equal(t, []string{"t3_abc123"}, commenter.parents)

	got, err := repo.GetOpportunityByID(ctx, f.opportunity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusPublished, got.Status)

	reserved, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reserved.DailyActionsCount)
	assert.Equal(t, 1, reserved.TotalActions)
	assert.Equal(t, 1, reserved.LockVersion)
	assert.Equal(t, 1, reserved.SubredditActivity["golang"].Posts)
	require.NotNil(t, reserved.SubredditActivity["golang"].LastActivity)
	require.NotNil(t, reserved.LastActionAt)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "poster", recorder.records[0].Username)
	assert.Equal(t, "t1_reply1", recorder.records[0].ThingID)
	assert.Equal(t, "golang", recorder.records[0].Subreddit)
}

func TestPublish_OnlyApprovedContent(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	seedAccount(t, repo, f.project.ID, "poster", 0)
	ctx := context.Background()

	f.content.Status = models.ContentStatusDraft
	require.NoError(t, repo.UpdateContent(ctx, f.content))

	agent := newTestAgent(t, repo, &fakeCommenter{thingID: "t1_x"}, nil)
	_, err := agent.Publish(ctx, f.content.ID, nil)
	assert.Error(t, err)
}

func TestPublish_ExpiredOpportunity(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	seedAccount(t, repo, f.project.ID, "poster", 0)
	ctx := context.Background()

	f.opportunity.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repo.UpdateOpportunity(ctx, f.opportunity))

	commenter := &fakeCommenter{thingID: "t1_x"}
	agent := newTestAgent(t, repo, commenter, nil)

	_, err := agent.Publish(ctx, f.content.ID, nil)
	assert.Error(t, err)
	assert.Zero(t, commenter.calls)
}

func TestPublish_NoEligibleAccount(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCommenter{thingID: "t1_x"}, nil)
	_, err := agent.Publish(ctx, f.content.ID, nil)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestPublish_RateLimitFailure(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	account := seedAccount(t, repo, f.project.ID, "poster", 0)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCommenter{err: reddit.ErrRateLimited}, nil)

	_, err := agent.Publish(ctx, f.content.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, reddit.ErrRateLimited)

	failed, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusRateLimited, failed.Status)
	assert.Equal(t, 0.5, failed.HealthScore)
	// The reservation already spent the quota
	assert.Equal(t, 1, failed.DailyActionsCount)

	// Content goes back in the queue for another account
	content, err := repo.GetContentByID(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusApproved, content.Status)
	assert.Nil(t, content.AccountID)
	assert.Equal(t, 1, content.PublishAttempts)
	assert.NotEmpty(t, content.FailureReason)

	opportunity, err := repo.GetOpportunityByID(ctx, f.opportunity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusReady, opportunity.Status)
}

func TestPublish_RejectedReplyMarksFailed(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	seedAccount(t, repo, f.project.ID, "poster", 0)
	ctx := context.Background()

	rejection := &reddit.APIError{StatusCode: 400, Body: "TOO_LONG"}
	agent := newTestAgent(t, repo, &fakeCommenter{err: rejection}, nil)

	_, err := agent.Publish(ctx, f.content.ID, nil)
	require.Error(t, err)

	content, err := repo.GetContentByID(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusFailed, content.Status)
	assert.Equal(t, 1, content.PublishAttempts)
	assert.NotEmpty(t, content.FailureReason)

	// The opportunity is free for a fresh draft
	opportunity, err := repo.GetOpportunityByID(ctx, f.opportunity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpportunityStatusApproved, opportunity.Status)
}

func TestPublish_AttemptBoundMarksFailed(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	seedAccount(t, repo, f.project.ID, "poster", 0)
	ctx := context.Background()

	f.content.PublishAttempts = 2
	require.NoError(t, repo.UpdateContent(ctx, f.content))

	agent := newTestAgent(t, repo, &fakeCommenter{err: reddit.ErrRateLimited}, nil)

	_, err := agent.Publish(ctx, f.content.ID, nil)
	require.Error(t, err)

	content, err := repo.GetContentByID(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusFailed, content.Status)
	assert.Equal(t, 3, content.PublishAttempts)
}

func TestPublish_SuspensionIsTerminal(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	account := seedAccount(t, repo, f.project.ID, "poster", 0)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCommenter{err: reddit.ErrSuspended}, nil)

	_, err := agent.Publish(ctx, f.content.ID, nil)
	require.Error(t, err)

	suspended, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusSuspended, suspended.Status)
	assert.Equal(t, 0.0, suspended.HealthScore)
}

// conflictRepo simulates another publisher winning the race for one account
type conflictRepo struct {
	storage.Repository
	busyID uint
}

func (r *conflictRepo) ReserveAccount(ctx context.Context, account *models.RedditAccount, now time.Time) error {
	if account.ID == r.busyID {
		return storage.ErrAccountBusy
	}
	return r.Repository.ReserveAccount(ctx, account, now)
}

func TestPublish_ReservationConflictTriesNextCandidate(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	best := seedAccount(t, repo, f.project.ID, "best", 20_000)
	backup := seedAccount(t, repo, f.project.ID, "backup", 0)
	ctx := context.Background()

	commenter := &fakeCommenter{thingID: "t1_r"}
	agent := newTestAgent(t, &conflictRepo{Repository: repo, busyID: best.ID}, commenter, nil)

	published, err := agent.Publish(ctx, f.content.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusPublished, published.Status)
	require.NotNil(t, published.AccountID)
	assert.Equal(t, backup.ID, *published.AccountID)
}

func TestPublish_ForcedAccount(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	seedAccount(t, repo, f.project.ID, "best", 20_000)
	forced := seedAccount(t, repo, f.project.ID, "forced", 0)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCommenter{thingID: "t1_r"}, nil)

	published, err := agent.Publish(ctx, f.content.ID, &forced.ID)
	require.NoError(t, err)
	require.NotNil(t, published.AccountID)
	assert.Equal(t, forced.ID, *published.AccountID)
}

func TestRunBatch_StopsWhenNoAccounts(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	ctx := context.Background()

	// Second approved draft for another opportunity
	second := &models.Opportunity{
		ProjectID:     f.project.ID,
		RedditPostID:  "def456",
		Subreddit:     "golang",
		PostCreatedAt: time.Now().UTC().Add(-time.Hour),
		Status:        models.OpportunityStatusReady,
		ExpiresAt:     time.Now().UTC().Add(2 * time.Hour),
	}
	require.NoError(t, repo.CreateOpportunities(ctx, []*models.Opportunity{second}))
	require.NoError(t, repo.CreateContent(ctx, &models.GeneratedContent{
		ProjectID:     f.project.ID,
		OpportunityID: second.ID,
		Body:          "another approved reply body for the batch",
		Status:        models.ContentStatusApproved,
	}))

	agent := newTestAgent(t, repo, &fakeCommenter{thingID: "t1_r"}, nil)

	published, errs := agent.RunBatch(ctx, 10)
	assert.Equal(t, 0, published)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoAccount)
}

func TestRunBatch_PublishesApproved(t *testing.T) {
	repo := newTestRepo(t)
	f := seedFixture(t, repo)
	seedAccount(t, repo, f.project.ID, "poster", 1000)
	ctx := context.Background()

	agent := newTestAgent(t, repo, &fakeCommenter{thingID: "t1_r"}, nil)

	published, errs := agent.RunBatch(ctx, 10)
	assert.Empty(t, errs)
	assert.Equal(t, 1, published)

	content, err := repo.GetContentByID(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusPublished, content.Status)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/reddit-agent/internal/accounts"
	"github.com/reddit-agent/internal/agent/analytics"
	"github.com/reddit-agent/internal/agent/generator"
	"github.com/reddit-agent/internal/agent/health"
	"github.com/reddit-agent/internal/agent/miner"
	"github.com/reddit-agent/internal/agent/publisher"
	"github.com/reddit-agent/internal/ai"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/learning"
	"github.com/reddit-agent/internal/models"
	redditapi "github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/scoring"
	"github.com/reddit-agent/internal/storage"
	"github.com/reddit-agent/internal/storage/sqlite"
	"github.com/reddit-agent/internal/tracker"
	"github.com/reddit-agent/pkg/logger"
	"github.com/reddit-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reddit-agent",
		Short: "Reddit engagement agent powered by AI",
		Long: `An autonomous agent that mines subreddits for engagement
opportunities, drafts replies with Claude, and publishes them through a
pool of health-tracked accounts.`,
		PersistentPreRunE: initializeApp,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	rootCmd.AddCommand(mineCmd())
	rootCmd.AddCommand(opportunitiesCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(contentCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(oauthCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(featuresCmd())
	rootCmd.AddCommand(analyticsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newFactory() *redditapi.Factory {
	limiter := ratelimit.NewDefaultLimiter()
	return redditapi.NewFactory(cfg.Reddit, limiter, log)
}

func newStateStore() redditapi.StateStore {
	if cfg.Redis.Enabled {
		return redditapi.NewRedisStateStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}
	return redditapi.NewMemoryStateStore()
}

func newMinerAgent(factory *redditapi.Factory) *miner.Agent {
	return miner.NewAgent(
		func(ctx context.Context) miner.Lister { return factory.ReadOnly(ctx) },
		repo, scoring.HeuristicPredictor{}, cfg.Mining, log,
	)
}

func newPublisherAgent(factory *redditapi.Factory) *publisher.Agent {
	var recorder publisher.Recorder
	if cfg.Tracker.Enabled {
		t, err := tracker.NewSheetsTracker(cfg.Tracker, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create tracker")
		} else if t != nil {
			recorder = t
		}
	}

	return publisher.NewAgent(
		func(ctx context.Context, refreshToken string) publisher.Commenter {
			return factory.ForAccount(ctx, refreshToken)
		},
		repo,
		accounts.NewSelector(log),
		accounts.NewStateMachine(log),
		recorder,
		cfg.Accounts,
		log,
	)
}

func newHealthAgent(factory *redditapi.Factory) *health.Agent {
	oauthManager := redditapi.NewOAuthManager(cfg.Reddit, newStateStore(), log)
	return health.NewAgent(
		func(ctx context.Context, refreshToken string) health.Prober {
			return factory.ForAccount(ctx, refreshToken)
		},
		oauthManager, repo, accounts.NewStateMachine(log), cfg.Accounts, log,
	)
}

// ============ MINE COMMANDS ============

func mineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Opportunity mining commands",
	}

	cmd.AddCommand(mineRunCmd())
	cmd.AddCommand(mineRefreshCmd())
	cmd.AddCommand(mineExpireCmd())
	return cmd
}

func mineRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Mine all target subreddits for opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			agent := newMinerAgent(newFactory())

			result, err := agent.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Mining Results ===\n")
			fmt.Printf("Posts Fetched:       %d\n", result.PostsFetched)
			fmt.Printf("Opportunities Saved: %d\n", result.OpportunitiesSaved)
			fmt.Printf("Skipped:             %d\n", result.Skipped)
			fmt.Printf("Duration:            %s\n", result.Duration)

			if len(result.Errors) > 0 {
				fmt.Printf("\nErrors:\n")
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}

			return nil
		},
	}
}

func mineRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [opportunity-id]",
		Short: "Refresh live metrics for an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			agent := newMinerAgent(newFactory())
			opportunity, err := agent.RefreshOpportunity(context.Background(), id)
			if err != nil {
				return err
			}

			printOpportunity(opportunity)
			return nil
		},
	}
}

func mineExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Sweep stale opportunities to expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := newMinerAgent(newFactory())
			expired, err := agent.ExpireStale(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d opportunities\n", expired)
			return nil
		},
	}
}

// ============ OPPORTUNITY COMMANDS ============

func opportunitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "opportunities",
		Aliases: []string{"opps"},
		Short:   "Opportunity review commands",
	}

	cmd.AddCommand(opportunitiesListCmd())
	cmd.AddCommand(opportunitiesApproveCmd())
	cmd.AddCommand(opportunitiesRejectCmd())
	return cmd
}

func opportunitiesListCmd() *cobra.Command {
	var statusFlag string
	var subredditFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities, best composite score first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultOpportunityFilter()
			filter.Limit = limit
			if statusFlag != "" {
				status := models.OpportunityStatus(statusFlag)
				filter.Status = &status
			}
			if subredditFlag != "" {
				filter.Subreddit = &subredditFlag
			}

			opportunities, err := repo.ListOpportunities(context.Background(), filter)
			if err != nil {
				return err
			}

			if len(opportunities) == 0 {
				fmt.Println("No opportunities found")
				return nil
			}

			fmt.Printf("%-5s %-20s %-9s %-10s %-9s %s\n", "ID", "SUBREDDIT", "COMPOSITE", "URGENCY", "STATUS", "TITLE")
			for _, o := range opportunities {
				title := o.PostTitle
				if len(title) > 60 {
					title = title[:57] + "..."
				}
				fmt.Printf("%-5d %-20s %-9.3f %-10s %-9s %s\n",
					o.ID, "r/"+o.Subreddit, o.CompositeScore, o.Urgency, o.Status, title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "pending", "Filter by status (empty for all)")
	cmd.Flags().StringVar(&subredditFlag, "subreddit", "", "Filter by subreddit")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max rows")
	return cmd
}

func opportunitiesApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve [opportunity-id]",
		Short: "Approve an opportunity for content generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setOpportunityStatus(args[0], models.OpportunityStatusPending, models.OpportunityStatusApproved)
		},
	}
}

func opportunitiesRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject [opportunity-id]",
		Short: "Reject an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setOpportunityStatus(args[0], models.OpportunityStatusPending, models.OpportunityStatusRejected)
		},
	}
}

func setOpportunityStatus(arg string, from, to models.OpportunityStatus) error {
	ctx := context.Background()
	id, err := parseID(arg)
	if err != nil {
		return err
	}

	opportunity, err := repo.GetOpportunityByID(ctx, id)
	if err != nil {
		return fmt.Errorf("opportunity not found: %w", err)
	}
	if opportunity.Status != from {
		return fmt.Errorf("opportunity %d is %s, expected %s", id, opportunity.Status, from)
	}
	if opportunity.IsExpired(time.Now().UTC()) {
		return fmt.Errorf("opportunity %d has expired", id)
	}

	opportunity.Status = to
	if err := repo.UpdateOpportunity(ctx, opportunity); err != nil {
		return err
	}
	fmt.Printf("Opportunity %d -> %s\n", id, to)
	return nil
}

// ============ GENERATE COMMAND ============

func generateCmd() *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "generate [opportunity-id]",
		Short: "Generate a reply draft for an approved opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			limiter := ratelimit.NewDefaultLimiter()
			aiClient := ai.NewClient(cfg.Anthropic, limiter, log)
			agent := generator.NewAgent(aiClient, repo, cfg.Publishing, log)

			content, err := agent.Generate(ctx, id, models.ContentStyle(style))
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Generated Reply (Content #%d, v%d) ===\n", content.ID, content.Version)
			fmt.Printf("Style:   %s\n", content.Style)
			fmt.Printf("Status:  %s\n", content.Status)
			fmt.Printf("Quality: %.2f\n", content.Quality.Score)
			if len(content.Quality.BlockingIssues) > 0 {
				fmt.Printf("Blocking: %s\n", strings.Join(content.Quality.BlockingIssues, "; "))
			}
			if len(content.Quality.Warnings) > 0 {
				fmt.Printf("Warnings: %s\n", strings.Join(content.Quality.Warnings, "; "))
			}
			fmt.Printf("\n--- Body ---\n%s\n", content.Body)
			return nil
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Content style (helpful_expert, casual, technical, storytelling); empty picks by bandit")
	return cmd
}

// ============ CONTENT COMMANDS ============

func contentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Generated content review commands",
	}

	cmd.AddCommand(contentListCmd())
	cmd.AddCommand(contentApproveCmd())
	cmd.AddCommand(contentRejectCmd())
	return cmd
}

func contentListCmd() *cobra.Command {
	var statusFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generated content",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.ContentFilter{Limit: limit}
			if statusFlag != "" {
				status := models.ContentStatus(statusFlag)
				filter.Status = &status
			}

			contents, err := repo.ListContent(context.Background(), filter)
			if err != nil {
				return err
			}

			if len(contents) == 0 {
				fmt.Println("No content found")
				return nil
			}

			fmt.Printf("%-5s %-6s %-15s %-10s %-8s %s\n", "ID", "OPP", "STYLE", "STATUS", "QUALITY", "PREVIEW")
			for _, c := range contents {
				preview := strings.ReplaceAll(c.Body, "\n", " ")
				if len(preview) > 50 {
					preview = preview[:47] + "..."
				}
				fmt.Printf("%-5d %-6d %-15s %-10s %-8.2f %s\n",
					c.ID, c.OpportunityID, c.Style, c.Status, c.Quality.Score, preview)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max rows")
	return cmd
}

func contentApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve [content-id]",
		Short: "Approve a draft for publishing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			content, err := repo.GetContentByID(ctx, id)
			if err != nil {
				return fmt.Errorf("content not found: %w", err)
			}
			if content.Status != models.ContentStatusPending && content.Status != models.ContentStatusDraft {
				return fmt.Errorf("content %d is %s, expected pending or draft", id, content.Status)
			}

			content.Status = models.ContentStatusApproved
			if err := repo.UpdateContent(ctx, content); err != nil {
				return err
			}
			fmt.Printf("Content %d approved\n", id)
			return nil
		},
	}
}

func contentRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject [content-id]",
		Short: "Reject a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			content, err := repo.GetContentByID(ctx, id)
			if err != nil {
				return fmt.Errorf("content not found: %w", err)
			}
			content.Status = models.ContentStatusRejected
			if err := repo.UpdateContent(ctx, content); err != nil {
				return err
			}
			fmt.Printf("Content %d rejected\n", id)
			return nil
		},
	}
}

// ============ PUBLISH COMMANDS ============

func publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publishing commands",
	}

	cmd.AddCommand(publishNowCmd())
	cmd.AddCommand(publishRunCmd())
	return cmd
}

func publishNowCmd() *cobra.Command {
	var accountID uint

	cmd := &cobra.Command{
		Use:   "now [content-id]",
		Short: "Publish an approved reply immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			agent := newPublisherAgent(newFactory())

			var override *uint
			if accountID != 0 {
				override = &accountID
			}

			content, err := agent.Publish(ctx, id, override)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Publish Result ===\n")
			fmt.Printf("Content ID: %d\n", content.ID)
			fmt.Printf("Thing ID:   %s\n", content.RedditThingID)
			fmt.Printf("Account:    %d\n", *content.AccountID)
			return nil
		},
	}

	cmd.Flags().UintVar(&accountID, "account", 0, "Force a specific account ID")
	return cmd
}

func publishRunCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish every approved reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := newPublisherAgent(newFactory())

			published, errs := agent.RunBatch(context.Background(), limit)
			fmt.Printf("Published %d replies\n", published)
			for _, e := range errs {
				fmt.Printf("  - %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Max replies to publish")
	return cmd
}

// ============ ACCOUNT COMMANDS ============

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account pool commands",
	}

	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsCheckCmd())
	cmd.AddCommand(accountsDeactivateCmd())
	cmd.AddCommand(accountsReactivateCmd())
	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with health state",
		RunE: func(cmd *cobra.Command, args []string) error {
			allAccounts, err := repo.ListAccounts(context.Background(), storage.AccountFilter{})
			if err != nil {
				return err
			}

			if len(allAccounts) == 0 {
				fmt.Println("No accounts configured. Use 'oauth login' to link one.")
				return nil
			}

			fmt.Printf("%-5s %-20s %-13s %-7s %-7s %-6s %-8s\n", "ID", "USERNAME", "STATUS", "HEALTH", "KARMA", "TODAY", "REMOVAL%")
			for _, a := range allAccounts {
				fmt.Printf("%-5d %-20s %-13s %-7.2f %-7d %-6d %-8.1f\n",
					a.ID, a.Username, a.Status, a.HealthScore,
					a.KarmaComment, a.DailyActionsCount, a.RemovalRate*100)
			}
			return nil
		},
	}
}

func accountsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a health sweep over all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := newHealthAgent(newFactory())

			result, err := agent.Run(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Health Sweep ===\n")
			fmt.Printf("Checked:   %d\n", result.Checked)
			fmt.Printf("Recovered: %d\n", result.Recovered)
			fmt.Printf("Refreshed: %d\n", result.Refreshed)
			fmt.Printf("Suspended: %d\n", result.Suspended)
			for _, e := range result.Errors {
				fmt.Printf("  - %s\n", e)
			}
			return nil
		},
	}
}

func accountsDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate [account-id]",
		Short: "Disable an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return operatorTransition(args[0], func(sm *accounts.StateMachine, a *models.RedditAccount) error {
				return sm.Deactivate(a, time.Now().UTC())
			})
		},
	}
}

func accountsReactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate [account-id]",
		Short: "Re-enable a disabled account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return operatorTransition(args[0], func(sm *accounts.StateMachine, a *models.RedditAccount) error {
				return sm.Reactivate(a, time.Now().UTC())
			})
		},
	}
}

func operatorTransition(arg string, apply func(*accounts.StateMachine, *models.RedditAccount) error) error {
	ctx := context.Background()
	id, err := parseID(arg)
	if err != nil {
		return err
	}

	account, err := repo.GetAccountByID(ctx, id)
	if err != nil {
		return fmt.Errorf("account not found: %w", err)
	}

	if err := apply(accounts.NewStateMachine(log), account); err != nil {
		return err
	}
	if err := repo.UpdateAccount(ctx, account); err != nil {
		return err
	}
	fmt.Printf("Account %s is now %s\n", account.Username, account.Status)
	return nil
}

// ============ OAUTH COMMANDS ============

func oauthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Account linking commands",
	}

	cmd.AddCommand(oauthLoginCmd())
	return cmd
}

func oauthLoginCmd() *cobra.Command {
	var projectID uint
	var accountID uint
	var port int

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Link a Reddit account via the OAuth browser flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			factory := newFactory()
			manager := redditapi.NewOAuthManager(cfg.Reddit, newStateStore(), log)

			authURL, err := manager.BeginHandshake(ctx, redditapi.PendingAuthState{
				ProjectID: projectID,
				AccountID: accountID,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Open this URL in a browser and authorize the account:\n\n%s\n\n", authURL)

			result, err := waitForCallback(ctx, manager, port)
			if err != nil {
				return err
			}

			// Identify the account the grant belongs to
			client := factory.ForAccount(ctx, result.RefreshToken)
			identity, err := client.ProbeIdentity(ctx)
			if err != nil {
				return fmt.Errorf("failed to probe linked account: %w", err)
			}

			now := time.Now().UTC()
			if result.Pending.AccountID != 0 {
				account, err := repo.GetAccountByID(ctx, result.Pending.AccountID)
				if err != nil {
					return fmt.Errorf("account not found: %w", err)
				}
				account.AccessToken = result.AccessToken
				account.RefreshToken = result.RefreshToken
				account.TokenExpiresAt = &result.ExpiresAt
				account.KarmaComment = identity.CommentKarma
				account.KarmaLink = identity.LinkKarma
				account.AccountAgeDays = identity.AgeDays(now)
				if err := repo.UpdateAccount(ctx, account); err != nil {
					return err
				}
				fmt.Printf("Re-linked account %s\n", account.Username)
				return nil
			}

			account := &models.RedditAccount{
				ProjectID:      result.Pending.ProjectID,
				Username:       identity.Name,
				AccessToken:    result.AccessToken,
				RefreshToken:   result.RefreshToken,
				TokenExpiresAt: &result.ExpiresAt,
				Status:         models.AccountStatusActive,
				HealthScore:    1.0,
				KarmaComment:   identity.CommentKarma,
				KarmaLink:      identity.LinkKarma,
				AccountAgeDays: identity.AgeDays(now),
				KarmaCheckedAt: &now,
			}
			if err := repo.CreateAccount(ctx, account); err != nil {
				return err
			}
			fmt.Printf("Linked new account %s (id %d)\n", account.Username, account.ID)
			return nil
		},
	}

	cmd.Flags().UintVar(&projectID, "project", 0, "Project ID to attach the account to (required)")
	cmd.Flags().UintVar(&accountID, "account", 0, "Existing account ID to re-link")
	cmd.Flags().IntVar(&port, "port", 8080, "Local callback port")
	cmd.MarkFlagRequired("project")
	return cmd
}

// waitForCallback serves the redirect URI until the handshake completes
func waitForCallback(ctx context.Context, manager *redditapi.OAuthManager, port int) (*redditapi.AuthResult, error) {
	resultChan := make(chan *redditapi.AuthResult, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		result, err := manager.CompleteHandshake(r.Context(), r.URL.Query())
		if err != nil {
			errChan <- err
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resultChan <- result

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `
			<html>
			<body style="font-family: sans-serif; text-align: center; padding: 50px;">
				<h1>Authorization Successful</h1>
				<p>You can close this window and return to the terminal.</p>
			</body>
			</html>
		`)
	})

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case result := <-resultChan:
		server.Shutdown(ctx)
		return result, nil
	case err := <-errChan:
		server.Shutdown(ctx)
		return nil, err
	case <-ctx.Done():
		server.Shutdown(ctx)
		return nil, ctx.Err()
	}
}

// ============ PROJECT COMMANDS ============

func projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Project commands",
	}

	cmd.AddCommand(projectsListCmd())
	cmd.AddCommand(projectsAddCmd())
	return cmd
}

func projectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := repo.ListProjects(context.Background(), false)
			if err != nil {
				return err
			}

			if len(projects) == 0 {
				fmt.Println("No projects. Use 'projects add' to create one.")
				return nil
			}

			fmt.Printf("%-5s %-25s %-7s %s\n", "ID", "NAME", "ACTIVE", "SUBREDDITS")
			for _, p := range projects {
				fmt.Printf("%-5d %-25s %-7v %s\n", p.ID, p.Name, p.IsActive, strings.Join(p.TargetSubreddits, ", "))
			}
			return nil
		},
	}
}

func projectsAddCmd() *cobra.Command {
	var name, description, productName, productDescription, productURL string
	var subreddits, keywords, negativeKeywords []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project := &models.Project{
				Name:               name,
				Description:        description,
				TargetSubreddits:   subreddits,
				Keywords:           keywords,
				NegativeKeywords:   negativeKeywords,
				ProductName:        productName,
				ProductDescription: productDescription,
				ProductURL:         productURL,
				IsActive:           true,
			}
			if err := repo.CreateProject(context.Background(), project); err != nil {
				return err
			}
			fmt.Printf("Project %q created (id %d)\n", project.Name, project.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	cmd.Flags().StringSliceVar(&subreddits, "subreddits", nil, "Target subreddits (required)")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "Relevance keywords")
	cmd.Flags().StringSliceVar(&negativeKeywords, "negative-keywords", nil, "Negative keywords")
	cmd.Flags().StringVar(&productName, "product-name", "", "Product name for generation context")
	cmd.Flags().StringVar(&productDescription, "product-description", "", "Product description")
	cmd.Flags().StringVar(&productURL, "product-url", "", "Product URL")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("subreddits")
	return cmd
}

// ============ FEATURE COMMANDS ============

func featuresCmd() *cobra.Command {
	var projectID uint
	var typeFlag string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Show learned feature statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var featureType *models.FeatureType
			if typeFlag != "" {
				ft := models.FeatureType(typeFlag)
				featureType = &ft
			}

			features, err := repo.ListFeatures(context.Background(), projectID, featureType)
			if err != nil {
				return err
			}

			if len(features) == 0 {
				fmt.Println("No learning features yet")
				return nil
			}

			aggregator := learning.NewAggregator(repo, cfg.Learning, log)

			fmt.Printf("%-12s %-20s %-8s %-9s %-9s %-7s %-7s %s\n",
				"TYPE", "KEY", "SAMPLES", "SUCCESS%", "AVG_SCORE", "ALPHA", "BETA", "RELIABLE")
			for _, f := range features {
				fmt.Printf("%-12s %-20s %-8d %-9.1f %-9.2f %-7.2f %-7.2f %v\n",
					f.FeatureType, f.FeatureKey, f.SampleCount, f.SuccessRate*100,
					f.AvgScore, f.BanditAlpha, f.BanditBeta, aggregator.Reliable(f))
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&projectID, "project", 0, "Project ID (required)")
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by feature type (timing_hour, subreddit, style)")
	cmd.MarkFlagRequired("project")
	return cmd
}

// ============ ANALYTICS COMMANDS ============

func analyticsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Collect engagement snapshots for published replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			factory := newFactory()
			agent := analytics.NewAgent(
				func(ctx context.Context) analytics.Fetcher { return factory.ReadOnly(ctx) },
				repo, log,
			)

			result, err := agent.Run(context.Background(), limit)
			if err != nil {
				return err
			}

			fmt.Printf("Collected %d snapshots, %d removals detected\n", result.Collected, result.Removals)
			for _, e := range result.Errors {
				fmt.Printf("  - %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Max published replies to snapshot")
	return cmd
}

// ============ HELPERS ============

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", arg, err)
	}
	return uint(id), nil
}

func printOpportunity(o *models.Opportunity) {
	fmt.Printf("\n=== Opportunity #%d ===\n", o.ID)
	fmt.Printf("Subreddit:  r/%s\n", o.Subreddit)
	fmt.Printf("Title:      %s\n", o.PostTitle)
	fmt.Printf("Status:     %s\n", o.Status)
	fmt.Printf("Urgency:    %s (velocity %.1f vs threshold %.1f)\n", o.Urgency, o.Velocity, o.VelocityThreshold)
	fmt.Printf("Scores:     relevance %.2f | virality %.2f | timing %.2f | composite %.3f\n",
		o.RelevanceScore, o.ViralityScore, o.TimingScore, o.CompositeScore)
	fmt.Printf("Engagement: %d points, %d comments, ratio %.2f\n", o.PostScore, o.PostNumComments, o.PostUpvoteRatio)
	fmt.Printf("Expires:    %s\n", o.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("URL:        %s\n", o.PostURL)
}

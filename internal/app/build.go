package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/iteration-report/internal/activity"
	"github.com/cam3ron2/iteration-report/internal/config"
	"github.com/cam3ron2/iteration-report/internal/githubapi"
	"github.com/cam3ron2/iteration-report/internal/gitops"
	"github.com/cam3ron2/iteration-report/internal/identity"
	"github.com/cam3ron2/iteration-report/internal/iteration"
	"github.com/cam3ron2/iteration-report/internal/pipeline"
	"github.com/cam3ron2/iteration-report/internal/publish"
	"github.com/cam3ron2/iteration-report/internal/schedule"
	"github.com/cam3ron2/iteration-report/internal/store"
	"go.uber.org/zap"
)

const profileConcurrency = 4

// Components are the wired collaborators of one process.
type Components struct {
	Runner   *pipeline.Runner
	Store    store.Store
	Location *time.Location
}

// Close releases the store backend.
func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Build wires GitHub clients, the window provider, the accumulator, the
// publisher, the schedule store and the run store into a pipeline runner.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Iteration.Location()
	if err != nil {
		return nil, err
	}

	httpClient, err := newGitHubHTTPClient(cfg.GitHub)
	if err != nil {
		return nil, err
	}
	requestClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		MaxWait:               cfg.RateLimit.MaxWait,
	})
	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient)
	if err != nil {
		return nil, fmt.Errorf("create github data client: %w", err)
	}
	restClient, err := githubapi.NewGitHubRESTClient(httpClient, cfg.GitHub.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create github rest client: %w", err)
	}
	directory, err := githubapi.NewDirectory(restClient, profileConcurrency)
	if err != nil {
		return nil, err
	}

	var iterations iteration.IterationSource
	if cfg.Iteration.LookupEnabled && strings.TrimSpace(cfg.Iteration.ProjectName) != "" {
		graphqlURL := cfg.GitHub.GraphQLURL
		if graphqlURL == "" {
			graphqlURL = githubapi.DefaultGraphQLURL(cfg.GitHub.APIBaseURL)
		}
		projects, err := githubapi.NewProjectsClient(graphqlURL, requestClient)
		if err != nil {
			return nil, fmt.Errorf("create projects client: %w", err)
		}
		iterations = projects
	}
	provider, err := iteration.NewProvider(iteration.ProviderConfig{
		Org:                     cfg.GitHub.Org,
		ProjectName:             cfg.Iteration.ProjectName,
		Location:                loc,
		Name:                    cfg.Iteration.Name,
		Start:                   cfg.Iteration.Start,
		End:                     cfg.Iteration.End,
		FirstDayReportsPrevious: cfg.Iteration.FirstDayReportsPrevious,
	}, iterations, logger)
	if err != nil {
		return nil, fmt.Errorf("iteration window: %w", err)
	}

	excluded := append([]string(nil), cfg.Report.ExcludeUsers...)
	if cfg.Report.ExcludeAuthenticatedUser {
		login, err := githubapi.AuthenticatedLogin(ctx, restClient)
		switch {
		case err != nil:
			logger.Warn("could not resolve authenticated user; it will not be excluded", zap.Error(err))
		case login != "":
			excluded = append(excluded, login)
		}
	}

	accumulator, err := activity.NewAccumulator(dataClient, directory, activity.Config{
		RepoAllowlist:       cfg.GitHub.RepoAllowlist,
		IncludeForks:        cfg.GitHub.IncludeForks,
		Concurrency:         cfg.GitHub.PerOrgConcurrency,
		BranchConcurrency:   cfg.GitHub.BranchConcurrency,
		RepoTimeout:         cfg.GitHub.PerRepoTimeout,
		MaxCommitsPerBranch: cfg.GitHub.MaxCommitsPerBranch,
		FetchProfiles:       cfg.GitHub.FetchMemberProfiles,
		Identity: identity.Config{
			Aliases:     cfg.Identity.Aliases,
			FullNames:   cfg.Identity.FullNames,
			BotSuffixes: cfg.Identity.BotSuffixes,
		},
		ExcludeUsers: excluded,
		Location:     loc,
	}, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := publish.NewPublisher(publish.Config{
		ReportsDir: cfg.Publish.ReportsDir,
		DocsDir:    cfg.Publish.DocsDir,
		HTML:       cfg.Publish.HTML,
		IndexFile:  cfg.Publish.IndexFile,
		Location:   loc,
	}, logger)
	if err != nil {
		return nil, err
	}
	scheduleStore, err := schedule.NewStore(cfg.Schedule.File, loc, time.Now)
	if err != nil {
		return nil, err
	}

	var committer pipeline.Committer
	if cfg.Git.Enabled {
		gitCommitter, err := gitops.NewCommitter(gitops.Config{
			Dir:         cfg.Git.Dir,
			Remote:      cfg.Git.Remote,
			Branch:      cfg.Git.Branch,
			Push:        cfg.Git.Push,
			AuthorName:  cfg.Git.AuthorName,
			AuthorEmail: cfg.Git.AuthorEmail,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		committer = gitCommitter
	}

	runStore := newStoreBackend(cfg, logger)
	runner, err := pipeline.New(pipeline.Config{
		Org:                 cfg.GitHub.Org,
		IterationLengthDays: iterationLengthDays(cfg.Iteration.Length),
		LockTTL:             cfg.Store.LockTTL,
	}, pipeline.Dependencies{
		Windows:     provider,
		Accumulator: accumulator,
		Publisher:   publisher,
		Schedule:    scheduleStore,
		Store:       runStore,
		Git:         committer,
	}, logger)
	if err != nil {
		_ = runStore.Close()
		return nil, err
	}

	return &Components{Runner: runner, Store: runStore, Location: loc}, nil
}

func newGitHubHTTPClient(cfg config.GitHubConfig) (*http.Client, error) {
	if cfg.UsesAppAuth() {
		client, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.AppID,
			InstallationID: cfg.InstallationID,
			PrivateKeyPath: cfg.PrivateKeyPath,
			Timeout:        cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("github app auth: %w", err)
		}
		return client, nil
	}
	client, err := githubapi.NewTokenHTTPClient(githubapi.TokenAuthConfig{
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("github token auth: %w", err)
	}
	return client, nil
}

// iterationLengthDays rounds length to whole days, at least one.
func iterationLengthDays(length time.Duration) int {
	days := int((length + 12*time.Hour) / (24 * time.Hour))
	return max(days, 1)
}

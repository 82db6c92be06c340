package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cam3ron2/iteration-report/internal/githubapi"
	"github.com/cam3ron2/iteration-report/internal/identity"
	"github.com/cam3ron2/iteration-report/internal/iteration"
)

// DataSource is the typed GitHub API surface consumed by the accumulator.
type DataSource interface {
	ListOrgRepos(ctx context.Context, org string) (githubapi.OrgReposResult, error)
	ListBranches(ctx context.Context, owner, repo string) (githubapi.BranchListResult, error)
	ListCommitsWindow(ctx context.Context, owner, repo, ref string, since, until time.Time, maxCommits int) (githubapi.CommitListResult, error)
	ListIssuesWindow(ctx context.Context, owner, repo string, since time.Time) (githubapi.IssueListResult, error)
	ListIssueEventsWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.IssueEventsResult, error)
	ListPullRequestsWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.PullRequestListResult, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (githubapi.PullRequestResult, error)
	ListPullReviews(ctx context.Context, owner, repo string, number int, since, until time.Time) (githubapi.PullReviewsResult, error)
	ListIssueCommentsWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.CommentsResult, error)
	ListReviewCommentsWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.CommentsResult, error)
}

// MemberSource lists organization members.
type MemberSource interface {
	ListMembers(ctx context.Context, org string, withProfiles bool) ([]githubapi.Member, error)
}

// Config configures accumulation.
type Config struct {
	RepoAllowlist       []string
	IncludeForks        bool
	Concurrency         int
	BranchConcurrency   int
	RepoTimeout         time.Duration
	MaxCommitsPerBranch int
	FetchProfiles       bool
	Identity            identity.Config
	// ExcludeUsers are member logins dropped from per-member stats.
	ExcludeUsers []string
	// Sources defaults to AllSources.
	Sources  []Source
	Location *time.Location
	Now      func() time.Time
}

// Accumulator walks an organization's repositories and builds a ReportModel.
type Accumulator struct {
	data    DataSource
	members MemberSource
	cfg     Config
	logger  *zap.Logger
}

// RepoResult is the outcome of one repository: exactly one of Delta and
// Failure is set.
type RepoResult struct {
	Repository string
	Delta      *RepoDelta
	Failure    *RepoFailure
}

// RepoDelta is the activity collected from one repository.
type RepoDelta struct {
	Totals RepoTotals
	Stats  map[string]ContributorStats
}

// NewAccumulator creates an accumulator.
func NewAccumulator(data DataSource, members MemberSource, cfg Config, logger *zap.Logger) (*Accumulator, error) {
	if data == nil {
		return nil, fmt.Errorf("data source is required")
	}
	if members == nil {
		return nil, fmt.Errorf("member source is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BranchConcurrency <= 0 {
		cfg.BranchConcurrency = 1
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = AllSources
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{data: data, members: members, cfg: cfg, logger: logger}, nil
}

// Accumulate builds the report model of org for window. Repository
// failures are recorded in the model; only member or repository listing
// failures return an error.
func (a *Accumulator) Accumulate(ctx context.Context, org string, window iteration.Window) (ReportModel, error) {
	started := a.cfg.Now()
	orgName := strings.TrimSpace(org)
	if orgName == "" {
		return ReportModel{}, fmt.Errorf("organization is required")
	}
	if err := window.Validate(); err != nil {
		return ReportModel{}, err
	}

	members, err := a.members.ListMembers(ctx, orgName, a.cfg.FetchProfiles)
	if err != nil {
		return ReportModel{}, fmt.Errorf("list members of %q: %w", orgName, err)
	}
	resolver := identity.NewResolver(toIdentityMembers(members), a.cfg.Identity)
	excluded := loginSet(a.cfg.ExcludeUsers)

	reposResult, err := a.data.ListOrgRepos(ctx, orgName)
	if err != nil {
		return ReportModel{}, fmt.Errorf("list org repos for %q: %w", orgName, err)
	}
	if reposResult.Status != githubapi.EndpointStatusOK {
		return ReportModel{}, fmt.Errorf("list org repos for %q returned status %q", orgName, reposResult.Status)
	}
	repos := filterRepositories(reposResult.Repos, a.cfg.RepoAllowlist, a.cfg.IncludeForks)

	model := ReportModel{
		Organization:      orgName,
		Window:            window.In(a.cfg.Location),
		Location:          a.cfg.Location,
		Sources:           append([]Source(nil), a.cfg.Sources...),
		RepositoriesTotal: len(repos),
		Repositories:      make(map[string]RepoTotals, len(repos)),
		GeneratedAt:       started.In(a.cfg.Location),
		Stats:             make(map[string]ContributorStats, len(members)),
	}
	for _, member := range members {
		if _, skip := excluded[strings.ToLower(member.Login)]; skip {
			continue
		}
		model.Stats[member.Login] = ContributorStats{}
	}

	collector := repoCollector{
		data:     a.data,
		org:      orgName,
		window:   window,
		resolver: resolver,
		excluded: excluded,
		cfg:      a.cfg,
	}

	jobs := make(chan githubapi.Repository, len(repos))
	outcomes := make(chan RepoResult, len(repos))

	var wg sync.WaitGroup
	for range min(a.cfg.Concurrency, max(len(repos), 1)) {
		wg.Go(func() {
			for repo := range jobs {
				outcomes <- collector.collect(ctx, repo)
			}
		})
	}
	for _, repo := range repos {
		jobs <- repo
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		model.merge(outcome)
		if outcome.Failure != nil {
			a.logger.Warn(
				"repository skipped",
				zap.String("org", orgName),
				zap.String("repo", outcome.Repository),
				zap.String("reason", outcome.Failure.Reason),
			)
		}
	}
	model.finish()
	model.Duration = a.cfg.Now().Sub(started)

	a.logger.Info(
		"activity accumulated",
		zap.String("org", orgName),
		zap.String("iteration", window.Name),
		zap.Int("repos_targeted", model.RepositoriesTotal),
		zap.Int("repos_processed", model.RepositoriesProcessed),
		zap.Int("repos_failed", len(model.Failures)),
		zap.Int("commits", model.Totals.Commits),
		zap.Int("unresolved_commits", model.Totals.UnresolvedCommits),
		zap.Duration("duration", model.Duration),
	)
	return model, nil
}

func (m *ReportModel) merge(outcome RepoResult) {
	if outcome.Failure != nil {
		m.Failures = append(m.Failures, *outcome.Failure)
		return
	}
	if outcome.Delta == nil {
		return
	}
	m.RepositoriesProcessed++
	m.Repositories[outcome.Repository] = outcome.Delta.Totals
	m.Totals.Commits += outcome.Delta.Totals.Commits
	m.Totals.UnresolvedCommits += outcome.Delta.Totals.UnresolvedCommits
	m.Totals.Issues += outcome.Delta.Totals.Issues
	m.Totals.PullRequests += outcome.Delta.Totals.PullRequests
	for login, delta := range outcome.Delta.Stats {
		stats, ok := m.Stats[login]
		if !ok {
			continue
		}
		stats.merge(delta)
		m.Stats[login] = stats
	}
}

func (m *ReportModel) finish() {
	for login, stats := range m.Stats {
		stats.sort()
		m.Stats[login] = stats
	}
	sort.Slice(m.Failures, func(i, j int) bool {
		return m.Failures[i].Repository < m.Failures[j].Repository
	})
}

func filterRepositories(repos []githubapi.Repository, allowlist []string, includeForks bool) []githubapi.Repository {
	allowed := make(map[string]struct{}, len(allowlist))
	allowAll := len(allowlist) == 0
	for _, item := range allowlist {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			break
		}
		allowed[strings.ToLower(trimmed)] = struct{}{}
	}
	if !allowAll && len(allowed) == 0 {
		allowAll = true
	}

	filtered := make([]githubapi.Repository, 0, len(repos))
	for _, repo := range repos {
		if repo.Archived || repo.Disabled || (repo.Fork && !includeForks) {
			continue
		}
		if !allowAll {
			if _, ok := allowed[strings.ToLower(repo.Name)]; !ok {
				continue
			}
		}
		filtered = append(filtered, repo)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	return filtered
}

func toIdentityMembers(members []githubapi.Member) []identity.Member {
	converted := make([]identity.Member, 0, len(members))
	for _, member := range members {
		converted = append(converted, identity.Member{Login: member.Login, Name: member.Name, Email: member.Email})
	}
	return converted
}

func loginSet(logins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(logins))
	for _, login := range logins {
		if trimmed := strings.ToLower(strings.TrimSpace(login)); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

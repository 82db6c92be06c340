package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/cam3ron2/iteration-report/internal/githubapi"
	"github.com/cam3ron2/iteration-report/internal/identity"
	"github.com/cam3ron2/iteration-report/internal/iteration"
	"github.com/cam3ron2/iteration-report/internal/telemetry"
)

const (
	eventAssigned = "assigned"
	eventClosed   = "closed"
)

// fetchError is a repository fetch failure that skips the repository.
type fetchError struct {
	op     string
	status githubapi.EndpointStatus
	err    error
}

func (e *fetchError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return fmt.Sprintf("%s: %s", e.op, e.status)
}

func (e *fetchError) Unwrap() error {
	return e.err
}

func checkStatus(op string, status githubapi.EndpointStatus, err error) error {
	if err != nil {
		return &fetchError{op: op, err: err}
	}
	if status != githubapi.EndpointStatusOK {
		return &fetchError{op: op, status: status}
	}
	return nil
}

type repoCollector struct {
	data     DataSource
	org      string
	window   iteration.Window
	resolver *identity.Resolver
	excluded map[string]struct{}
	cfg      Config
}

// collect fetches every enabled source of one repository. Any fetch
// failure turns the whole repository into a Failure.
func (c repoCollector) collect(ctx context.Context, repo githubapi.Repository) RepoResult {
	ctx, span := telemetry.StartSpan(ctx, "activity.repository",
		attribute.String("org", c.org),
		attribute.String("repo", repo.Name),
	)
	defer span.End()

	if c.cfg.RepoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RepoTimeout)
		defer cancel()
	}

	delta := &RepoDelta{Stats: make(map[string]ContributorStats)}
	steps := map[Source]func(context.Context, string, *RepoDelta) error{
		SourceCommits:      c.collectCommits,
		SourceIssues:       c.collectIssues,
		SourcePullRequests: c.collectPullRequests,
	}
	for _, source := range c.cfg.Sources {
		step, ok := steps[source]
		if !ok {
			continue
		}
		if err := step(ctx, repo.Name, delta); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository failed")
			return RepoResult{
				Repository: repo.Name,
				Failure:    &RepoFailure{Repository: repo.Name, Reason: err.Error()},
			}
		}
	}
	return RepoResult{Repository: repo.Name, Delta: delta}
}

func (c repoCollector) credit(delta *RepoDelta, login string, apply func(*ContributorStats)) {
	if login == "" {
		return
	}
	if _, skip := c.excluded[strings.ToLower(login)]; skip {
		return
	}
	stats := delta.Stats[login]
	apply(&stats)
	delta.Stats[login] = stats
}

func (c repoCollector) resolveLogin(handle string) string {
	login, ok := c.resolver.ResolveLogin(handle)
	if !ok {
		return ""
	}
	return login
}

func (c repoCollector) collectCommits(ctx context.Context, repo string, delta *RepoDelta) error {
	branchesResult, err := c.data.ListBranches(ctx, c.org, repo)
	if err := checkStatus("list_branches", branchesResult.Status, err); err != nil {
		return err
	}

	perBranch := make([][]githubapi.RepoCommit, len(branchesResult.Branches))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.BranchConcurrency)
	for i, branch := range branchesResult.Branches {
		group.Go(func() error {
			result, err := c.data.ListCommitsWindow(
				groupCtx, c.org, repo, branch.Name,
				c.window.Start, c.window.End, c.cfg.MaxCommitsPerBranch,
			)
			if err == nil && result.Status == githubapi.EndpointStatusConflict {
				return nil
			}
			if err := checkStatus("list_commits", result.Status, err); err != nil {
				return err
			}
			perBranch[i] = result.Commits
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	records := dedupeCommits(repo, branchesResult.Branches, perBranch, c.window)
	for _, record := range records {
		delta.Totals.Commits++
		login, ok := c.resolver.Resolve(record.Author)
		if !ok {
			delta.Totals.UnresolvedCommits++
			continue
		}
		record.Login = login
		c.credit(delta, login, func(stats *ContributorStats) {
			stats.Commits = append(stats.Commits, record)
		})
	}
	return nil
}

// dedupeCommits merges per-branch commit lists into one record per sha,
// keeping every branch that reaches it and only commits inside window.
func dedupeCommits(repo string, branches []githubapi.Branch, perBranch [][]githubapi.RepoCommit, window iteration.Window) []CommitRecord {
	bySHA := make(map[string]*CommitRecord)
	order := make([]string, 0)
	for i, commits := range perBranch {
		for _, commit := range commits {
			if commit.SHA == "" || !window.Contains(commit.CommittedAt) {
				continue
			}
			record, seen := bySHA[commit.SHA]
			if !seen {
				record = &CommitRecord{
					Repository: repo,
					SHA:        commit.SHA,
					Author: identity.Signature{
						Name:  commit.AuthorName,
						Email: commit.AuthorEmail,
						Login: commit.Author,
					},
					Message:   commit.Message,
					Timestamp: commit.CommittedAt,
				}
				bySHA[commit.SHA] = record
				order = append(order, commit.SHA)
			}
			record.BranchRefs = appendUnique(record.BranchRefs, branches[i].Name)
		}
	}

	records := make([]CommitRecord, 0, len(order))
	for _, sha := range order {
		record := bySHA[sha]
		sort.Strings(record.BranchRefs)
		records = append(records, *record)
	}
	return records
}

func (c repoCollector) collectIssues(ctx context.Context, repo string, delta *RepoDelta) error {
	issuesResult, err := c.data.ListIssuesWindow(ctx, c.org, repo, c.window.Start)
	if err := checkStatus("list_issues", issuesResult.Status, err); err != nil {
		return err
	}
	if len(issuesResult.Issues) == 0 {
		return nil
	}
	eventsResult, err := c.data.ListIssueEventsWindow(ctx, c.org, repo, c.window.Start, c.window.End)
	if err := checkStatus("list_issue_events", eventsResult.Status, err); err != nil {
		return err
	}

	assignedAt := make(map[int]map[string]time.Time)
	closedBy := make(map[int]githubapi.IssueEvent)
	for _, event := range eventsResult.Events {
		if !c.window.Contains(event.CreatedAt) {
			continue
		}
		switch event.Event {
		case eventAssigned:
			login := c.resolveLogin(event.Assignee)
			if login == "" {
				continue
			}
			byLogin, ok := assignedAt[event.IssueNumber]
			if !ok {
				byLogin = make(map[string]time.Time)
				assignedAt[event.IssueNumber] = byLogin
			}
			if existing, seen := byLogin[login]; !seen || event.CreatedAt.Before(existing) {
				byLogin[login] = event.CreatedAt
			}
		case eventClosed:
			if existing, seen := closedBy[event.IssueNumber]; !seen || event.CreatedAt.After(existing.CreatedAt) {
				closedBy[event.IssueNumber] = event
			}
		}
	}

	for _, issue := range issuesResult.Issues {
		record := IssueRecord{
			Repository: repo,
			Number:     issue.Number,
			Title:      issue.Title,
			State:      IssueOpen,
			ClosedAt:   issue.ClosedAt,
		}
		if strings.EqualFold(issue.State, string(IssueClosed)) {
			record.State = IssueClosed
		}
		for _, assignee := range issue.Assignees {
			if login := c.resolveLogin(assignee); login != "" {
				record.Assignees = appendUnique(record.Assignees, login)
			}
		}
		sort.Strings(record.Assignees)
		if event, ok := closedBy[issue.Number]; ok {
			record.ClosedBy = c.resolveLogin(event.Actor)
		}

		counted := false
		for _, login := range record.Assignees {
			at, ok := assignedAt[issue.Number][login]
			if !ok {
				// Assignment made at creation, or before events were kept.
				if !c.window.Contains(issue.CreatedAt) {
					continue
				}
				at = issue.CreatedAt
			}
			counted = true
			c.credit(delta, login, func(stats *ContributorStats) {
				stats.AssignedIssues = append(stats.AssignedIssues, IssueEntry{Issue: record, At: at})
			})
		}

		if record.State == IssueClosed && c.window.Contains(record.ClosedAt) {
			closers := record.Assignees
			if len(closers) == 0 && record.ClosedBy != "" {
				closers = []string{record.ClosedBy}
			}
			for _, login := range closers {
				counted = true
				c.credit(delta, login, func(stats *ContributorStats) {
					stats.ClosedIssues = append(stats.ClosedIssues, IssueEntry{Issue: record, At: record.ClosedAt})
				})
			}
		}
		if counted {
			delta.Totals.Issues++
		}
	}
	return nil
}

type pullActivity struct {
	mergedBy    string
	reviewedAt  map[string]time.Time
	commentedAt map[string]time.Time
}

func (c repoCollector) collectPullRequests(ctx context.Context, repo string, delta *RepoDelta) error {
	pullsResult, err := c.data.ListPullRequestsWindow(ctx, c.org, repo, c.window.Start, c.window.End)
	if err := checkStatus("list_pull_requests", pullsResult.Status, err); err != nil {
		return err
	}
	if len(pullsResult.PullRequests) == 0 {
		return nil
	}

	activity := make(map[int]*pullActivity, len(pullsResult.PullRequests))
	for _, pull := range pullsResult.PullRequests {
		activity[pull.Number] = &pullActivity{
			reviewedAt:  make(map[string]time.Time),
			commentedAt: make(map[string]time.Time),
		}
	}

	for _, list := range []struct {
		op    string
		fetch func(context.Context, string, string, time.Time, time.Time) (githubapi.CommentsResult, error)
	}{
		{op: "list_issue_comments", fetch: c.data.ListIssueCommentsWindow},
		{op: "list_review_comments", fetch: c.data.ListReviewCommentsWindow},
	} {
		result, err := list.fetch(ctx, c.org, repo, c.window.Start, c.window.End)
		if err := checkStatus(list.op, result.Status, err); err != nil {
			return err
		}
		for _, comment := range result.Comments {
			entry, ok := activity[comment.Number]
			if !ok || !c.window.Contains(comment.CreatedAt) {
				continue
			}
			recordEarliest(entry.commentedAt, c.resolveLogin(comment.User), comment.CreatedAt)
		}
	}

	for _, pull := range pullsResult.PullRequests {
		if !c.window.Contains(pull.MergedAt) || strings.TrimSpace(pull.MergedBy) != "" {
			continue
		}
		detail, err := c.data.GetPullRequest(ctx, c.org, repo, pull.Number)
		if err := checkStatus("get_pull_request", detail.Status, err); err != nil {
			return err
		}
		activity[pull.Number].mergedBy = detail.PullRequest.MergedBy
	}

	for _, pull := range pullsResult.PullRequests {
		reviews, err := c.data.ListPullReviews(ctx, c.org, repo, pull.Number, c.window.Start, c.window.End)
		if err := checkStatus("list_pull_reviews", reviews.Status, err); err != nil {
			return err
		}
		for _, review := range reviews.Reviews {
			if !c.window.Contains(review.SubmittedAt) {
				continue
			}
			recordEarliest(activity[pull.Number].reviewedAt, c.resolveLogin(review.User), review.SubmittedAt)
		}
	}

	for _, pull := range pullsResult.PullRequests {
		entry := activity[pull.Number]
		mergedBy := pull.MergedBy
		if strings.TrimSpace(mergedBy) == "" {
			mergedBy = entry.mergedBy
		}
		record := PullRequestRecord{
			Repository: repo,
			Number:     pull.Number,
			Title:      pull.Title,
			Author:     c.resolveLogin(pull.User),
			MergedBy:   c.resolveLogin(mergedBy),
			State:      pullState(pull),
			CreatedAt:  pull.CreatedAt,
			MergedAt:   pull.MergedAt,
			Reviewers:  sortedKeys(entry.reviewedAt),
			Commenters: sortedKeys(entry.commentedAt),
		}

		counted := false
		if c.window.Contains(record.CreatedAt) && record.Author != "" {
			counted = true
			c.credit(delta, record.Author, func(stats *ContributorStats) {
				stats.PRsCreated = append(stats.PRsCreated, PullRequestEntry{PullRequest: record, At: record.CreatedAt})
			})
		}
		if c.window.Contains(record.MergedAt) && record.MergedBy != "" {
			counted = true
			c.credit(delta, record.MergedBy, func(stats *ContributorStats) {
				stats.PRsMerged = append(stats.PRsMerged, PullRequestEntry{PullRequest: record, At: record.MergedAt})
			})
		}
		for _, login := range record.Reviewers {
			at := entry.reviewedAt[login]
			counted = true
			c.credit(delta, login, func(stats *ContributorStats) {
				stats.PRsReviewed = append(stats.PRsReviewed, PullRequestEntry{PullRequest: record, At: at})
			})
		}
		for _, login := range record.Commenters {
			at := entry.commentedAt[login]
			counted = true
			c.credit(delta, login, func(stats *ContributorStats) {
				stats.PRsCommented = append(stats.PRsCommented, PullRequestEntry{PullRequest: record, At: at})
			})
		}
		if counted {
			delta.Totals.PullRequests++
		}
	}
	return nil
}

func pullState(pull githubapi.PullRequest) PullRequestState {
	switch {
	case !pull.MergedAt.IsZero():
		return PullRequestMerged
	case strings.EqualFold(pull.State, string(PullRequestClosed)):
		return PullRequestClosed
	default:
		return PullRequestOpen
	}
}

func recordEarliest(byLogin map[string]time.Time, login string, at time.Time) {
	if login == "" {
		return
	}
	if existing, ok := byLogin[login]; !ok || at.Before(existing) {
		byLogin[login] = at
	}
}

func sortedKeys(values map[string]time.Time) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

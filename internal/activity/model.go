// Package activity accumulates per-member organization activity inside an
// iteration window.
package activity

import (
	"sort"
	"strings"
	"time"

	"github.com/cam3ron2/iteration-report/internal/identity"
	"github.com/cam3ron2/iteration-report/internal/iteration"
)

// Source is one queried activity data source.
type Source string

const (
	// SourceCommits covers commits on every branch.
	SourceCommits Source = "commits"
	// SourceIssues covers issue assignment and closure.
	SourceIssues Source = "issues"
	// SourcePullRequests covers pull request creation, review, merge and comments.
	SourcePullRequests Source = "pull_requests"
)

// AllSources lists every source in report column order.
var AllSources = []Source{SourceCommits, SourceIssues, SourcePullRequests}

// IssueState is the state of an issue.
type IssueState string

// Issue states.
const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// PullRequestState is the state of a pull request.
type PullRequestState string

// Pull request states.
const (
	PullRequestOpen   PullRequestState = "open"
	PullRequestMerged PullRequestState = "merged"
	PullRequestClosed PullRequestState = "closed"
)

// CommitRecord is one commit, counted once per repository.
type CommitRecord struct {
	Repository string
	SHA        string
	Author     identity.Signature
	// Login is the resolved member, empty when the author is unresolved.
	Login      string
	Message    string
	Timestamp  time.Time
	BranchRefs []string
}

// ShortSHA returns the first seven characters of the commit hash.
func (c CommitRecord) ShortSHA() string {
	if len(c.SHA) <= 7 {
		return c.SHA
	}
	return c.SHA[:7]
}

// Subject returns the first line of the commit message.
func (c CommitRecord) Subject() string {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(subject)
}

// IssueRecord is one issue as seen at accumulation time.
type IssueRecord struct {
	Repository string
	Number     int
	Title      string
	State      IssueState
	Assignees  []string
	ClosedBy   string
	ClosedAt   time.Time
}

// IssueEntry credits an issue to a member at a point in time: the
// assignment time for assigned issues, the closing time for closed ones.
type IssueEntry struct {
	Issue IssueRecord
	At    time.Time
}

// PullRequestRecord is one pull request as seen at accumulation time.
type PullRequestRecord struct {
	Repository string
	Number     int
	Title      string
	Author     string
	MergedBy   string
	State      PullRequestState
	CreatedAt  time.Time
	MergedAt   time.Time
	Reviewers  []string
	Commenters []string
}

// PullRequestEntry credits a pull request to a member for one role.
type PullRequestEntry struct {
	PullRequest PullRequestRecord
	At          time.Time
}

// ContributorStats is the activity of one member. Every list is ordered by
// time ascending.
type ContributorStats struct {
	Commits        []CommitRecord
	AssignedIssues []IssueEntry
	ClosedIssues   []IssueEntry
	PRsCreated     []PullRequestEntry
	PRsReviewed    []PullRequestEntry
	PRsMerged      []PullRequestEntry
	PRsCommented   []PullRequestEntry
}

// IsZero reports whether the member has no activity at all.
func (s ContributorStats) IsZero() bool {
	return len(s.Commits) == 0 &&
		len(s.AssignedIssues) == 0 &&
		len(s.ClosedIssues) == 0 &&
		len(s.PRsCreated) == 0 &&
		len(s.PRsReviewed) == 0 &&
		len(s.PRsMerged) == 0 &&
		len(s.PRsCommented) == 0
}

func (s *ContributorStats) merge(other ContributorStats) {
	s.Commits = append(s.Commits, other.Commits...)
	s.AssignedIssues = append(s.AssignedIssues, other.AssignedIssues...)
	s.ClosedIssues = append(s.ClosedIssues, other.ClosedIssues...)
	s.PRsCreated = append(s.PRsCreated, other.PRsCreated...)
	s.PRsReviewed = append(s.PRsReviewed, other.PRsReviewed...)
	s.PRsMerged = append(s.PRsMerged, other.PRsMerged...)
	s.PRsCommented = append(s.PRsCommented, other.PRsCommented...)
}

func (s *ContributorStats) sort() {
	sort.SliceStable(s.Commits, func(i, j int) bool {
		left, right := s.Commits[i], s.Commits[j]
		if !left.Timestamp.Equal(right.Timestamp) {
			return left.Timestamp.Before(right.Timestamp)
		}
		if left.Repository != right.Repository {
			return left.Repository < right.Repository
		}
		return left.SHA < right.SHA
	})
	sortIssueEntries(s.AssignedIssues)
	sortIssueEntries(s.ClosedIssues)
	sortPullRequestEntries(s.PRsCreated)
	sortPullRequestEntries(s.PRsReviewed)
	sortPullRequestEntries(s.PRsMerged)
	sortPullRequestEntries(s.PRsCommented)
}

func sortIssueEntries(entries []IssueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i], entries[j]
		if !left.At.Equal(right.At) {
			return left.At.Before(right.At)
		}
		if left.Issue.Repository != right.Issue.Repository {
			return left.Issue.Repository < right.Issue.Repository
		}
		return left.Issue.Number < right.Issue.Number
	})
}

func sortPullRequestEntries(entries []PullRequestEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i], entries[j]
		if !left.At.Equal(right.At) {
			return left.At.Before(right.At)
		}
		if left.PullRequest.Repository != right.PullRequest.Repository {
			return left.PullRequest.Repository < right.PullRequest.Repository
		}
		return left.PullRequest.Number < right.PullRequest.Number
	})
}

// RepoFailure records a repository skipped by a fetch failure.
type RepoFailure struct {
	Repository string
	Reason     string
}

// RepoTotals are the repository-level counts, unresolved authors included.
type RepoTotals struct {
	Commits           int
	UnresolvedCommits int
	Issues            int
	PullRequests      int
}

// ReportModel is the accumulated result of one run. It is not modified
// after Accumulate returns.
type ReportModel struct {
	Organization string
	Window       iteration.Window
	Location     *time.Location
	// Sources lists the data sources that were queried. A source missing
	// here was not queried, which differs from one that returned nothing.
	Sources               []Source
	RepositoriesTotal     int
	RepositoriesProcessed int
	Failures              []RepoFailure
	Totals                RepoTotals
	Repositories          map[string]RepoTotals
	GeneratedAt           time.Time
	Duration              time.Duration
	Stats                 map[string]ContributorStats
}

// HasSource reports whether source was queried.
func (m ReportModel) HasSource(source Source) bool {
	for _, candidate := range m.Sources {
		if candidate == source {
			return true
		}
	}
	return false
}

// Contributors returns the member logins in report order: case-insensitive
// alphabetical, ties broken by exact value.
func (m ReportModel) Contributors() []string {
	logins := make([]string, 0, len(m.Stats))
	for login := range m.Stats {
		logins = append(logins, login)
	}
	sort.Slice(logins, func(i, j int) bool {
		left, right := strings.ToLower(logins[i]), strings.ToLower(logins[j])
		if left != right {
			return left < right
		}
		return logins[i] < logins[j]
	})
	return logins
}

// Loc returns the display location, UTC when unset.
func (m ReportModel) Loc() *time.Location {
	if m.Location == nil {
		return time.UTC
	}
	return m.Location
}

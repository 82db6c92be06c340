package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const defaultGitHubAPIBaseURL = "https://api.github.com/"

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusForbidden indicates authorization failure or restricted access.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict indicates a state conflict, like listing commits of an empty repository.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnprocessable indicates request validation/processing failure.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusRateLimited indicates the call was still rate limited after retries.
	EndpointStatusRateLimited EndpointStatus = "rate_limited"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// Repository is one GitHub repository in an organization.
type Repository struct {
	Name          string
	FullName      string
	DefaultBranch string
	Archived      bool
	Disabled      bool
	Fork          bool
}

// OrgReposResult is the typed result for listing organization repositories.
type OrgReposResult struct {
	Status   EndpointStatus
	Repos    []Repository
	Metadata CallMetadata
}

// Branch is one repository branch head.
type Branch struct {
	Name string
	SHA  string
}

// BranchListResult is the typed result for listing repository branches.
type BranchListResult struct {
	Status   EndpointStatus
	Branches []Branch
	Metadata CallMetadata
}

// RepoCommit is one commit summary from the commit list endpoint.
type RepoCommit struct {
	SHA string
	// Author and Committer are the linked GitHub logins, empty when the
	// signature is not linked to an account.
	Author         string
	Committer      string
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
	Message        string
	CommittedAt    time.Time
}

// CommitListResult is the typed result for listing repository commits in a window.
type CommitListResult struct {
	Status    EndpointStatus
	Commits   []RepoCommit
	Truncated bool
	Metadata  CallMetadata
}

// Issue is one repository issue. Pull requests are never returned as issues.
type Issue struct {
	Number    int
	Title     string
	State     string
	User      string
	Assignees []string
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time
}

// IssueListResult is the typed result for listing issues updated in a window.
type IssueListResult struct {
	Status   EndpointStatus
	Issues   []Issue
	Metadata CallMetadata
}

// IssueEvent is one repository issue timeline event.
type IssueEvent struct {
	ID          int64
	IssueNumber int
	Event       string
	Actor       string
	Assignee    string
	CreatedAt   time.Time
}

// IssueEventsResult is the typed result for listing repository issue events.
type IssueEventsResult struct {
	Status   EndpointStatus
	Events   []IssueEvent
	Metadata CallMetadata
}

// PullRequest is one pull request summary.
type PullRequest struct {
	Number    int
	Title     string
	State     string
	User      string
	MergedBy  string
	CreatedAt time.Time
	UpdatedAt time.Time
	MergedAt  time.Time
	ClosedAt  time.Time
}

// PullRequestListResult is the typed result for listing pull requests in a window.
type PullRequestListResult struct {
	Status       EndpointStatus
	PullRequests []PullRequest
	Metadata     CallMetadata
}

// PullRequestResult is the typed result for reading one pull request.
type PullRequestResult struct {
	Status      EndpointStatus
	PullRequest PullRequest
	Metadata    CallMetadata
}

// PullReview is one pull request review submission.
type PullReview struct {
	ID          int64
	User        string
	State       string
	SubmittedAt time.Time
}

// PullReviewsResult is the typed result for listing pull reviews.
type PullReviewsResult struct {
	Status   EndpointStatus
	Reviews  []PullReview
	Metadata CallMetadata
}

// Comment is one issue, pull request conversation, or review comment.
type Comment struct {
	ID int64
	// Number is the issue or pull request number the comment belongs to.
	Number    int
	User      string
	CreatedAt time.Time
}

// CommentsResult is the typed result for listing repository comments.
type CommentsResult struct {
	Status   EndpointStatus
	Comments []Comment
	Metadata CallMetadata
}

// DataClient is a typed GitHub REST client for the activity endpoints.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// ListOrgRepos lists repositories in one GitHub organization.
func (c *DataClient) ListOrgRepos(ctx context.Context, org string) (OrgReposResult, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return OrgReposResult{}, fmt.Errorf("organization is required")
	}

	query := url.Values{}
	query.Set("type", "all")

	result := OrgReposResult{}
	var err error
	result.Status, result.Metadata, err = listPages(ctx, c, "list org repos", []string{"orgs", trimmedOrg, "repos"}, query,
		func(page []repositoryPayload) bool {
			for _, repo := range page {
				result.Repos = append(result.Repos, Repository(repo))
			}
			return true
		})
	if err != nil {
		return OrgReposResult{}, err
	}
	return result, nil
}

// ListBranches lists every branch head of one repository.
func (c *DataClient) ListBranches(ctx context.Context, owner, repo string) (BranchListResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return BranchListResult{}, err
	}

	result := BranchListResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, "list branches", append(segments, "branches"), nil,
		func(page []branchPayload) bool {
			for _, branch := range page {
				result.Branches = append(result.Branches, Branch{Name: branch.Name, SHA: branch.Commit.SHA})
			}
			return true
		})
	if err != nil {
		return BranchListResult{}, err
	}
	return result, nil
}

// ListCommitsWindow lists commits reachable from ref inside [since, until].
// An empty ref lists the default branch. maxCommits <= 0 disables the cap.
func (c *DataClient) ListCommitsWindow(ctx context.Context, owner, repo, ref string, since, until time.Time, maxCommits int) (CommitListResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return CommitListResult{}, err
	}
	if err := validateWindow(since, until); err != nil {
		return CommitListResult{}, err
	}

	query := url.Values{}
	if trimmedRef := strings.TrimSpace(ref); trimmedRef != "" {
		query.Set("sha", trimmedRef)
	}
	setWindowQuery(query, since, until)

	result := CommitListResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, "list commits", append(segments, "commits"), query,
		func(page []commitListPayload) bool {
			for _, commit := range page {
				typed := RepoCommit{
					SHA:            commit.SHA,
					AuthorName:     commit.Commit.Author.Name,
					AuthorEmail:    commit.Commit.Author.Email,
					CommitterName:  commit.Commit.Committer.Name,
					CommitterEmail: commit.Commit.Committer.Email,
					Message:        commit.Commit.Message,
					CommittedAt:    parseRFC3339(commit.Commit.Author.Date),
				}
				if commit.Author != nil {
					typed.Author = commit.Author.Login
				}
				if commit.Committer != nil {
					typed.Committer = commit.Committer.Login
				}
				result.Commits = append(result.Commits, typed)

				if maxCommits > 0 && len(result.Commits) >= maxCommits {
					result.Truncated = true
					return false
				}
			}
			return true
		})
	if err != nil {
		return CommitListResult{}, err
	}
	return result, nil
}

// ListIssuesWindow lists issues (not pull requests) updated at or after since.
func (c *DataClient) ListIssuesWindow(ctx context.Context, owner, repo string, since time.Time) (IssueListResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return IssueListResult{}, err
	}

	query := url.Values{}
	query.Set("state", "all")
	query.Set("sort", "updated")
	query.Set("direction", "desc")
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	result := IssueListResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, "list issues", append(segments, "issues"), query,
		func(page []issuePayload) bool {
			for _, issue := range page {
				if issue.PullRequest != nil {
					continue
				}
				typed := Issue{
					Number:    issue.Number,
					Title:     issue.Title,
					State:     issue.State,
					CreatedAt: parseRFC3339(issue.CreatedAt),
					UpdatedAt: parseRFC3339(issue.UpdatedAt),
					ClosedAt:  parseNullableRFC3339(issue.ClosedAt),
				}
				if issue.User != nil {
					typed.User = issue.User.Login
				}
				for _, assignee := range issue.Assignees {
					if assignee != nil && assignee.Login != "" {
						typed.Assignees = append(typed.Assignees, assignee.Login)
					}
				}
				result.Issues = append(result.Issues, typed)
			}
			return true
		})
	if err != nil {
		return IssueListResult{}, err
	}
	return result, nil
}

// ListIssueEventsWindow lists repository issue events created inside [since, until].
//
// GitHub returns repository events newest first, so paging stops at the
// first page that reaches past since.
func (c *DataClient) ListIssueEventsWindow(ctx context.Context, owner, repo string, since, until time.Time) (IssueEventsResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return IssueEventsResult{}, err
	}
	if err := validateWindow(since, until); err != nil {
		return IssueEventsResult{}, err
	}

	result := IssueEventsResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, "list issue events", append(segments, "issues", "events"), nil,
		func(page []issueEventPayload) bool {
			reachedSince := false
			for _, event := range page {
				createdAt := parseRFC3339(event.CreatedAt)
				if !since.IsZero() && createdAt.Before(since) {
					reachedSince = true
					continue
				}
				if !withinWindow(createdAt, since, until) {
					continue
				}
				typed := IssueEvent{
					ID:        event.ID,
					Event:     event.Event,
					CreatedAt: createdAt,
				}
				if event.Issue != nil {
					typed.IssueNumber = event.Issue.Number
				}
				if event.Actor != nil {
					typed.Actor = event.Actor.Login
				}
				if event.Assignee != nil {
					typed.Assignee = event.Assignee.Login
				}
				result.Events = append(result.Events, typed)
			}
			return !reachedSince
		})
	if err != nil {
		return IssueEventsResult{}, err
	}
	return result, nil
}

// ListPullRequestsWindow lists pull requests created, merged, or updated inside [since, until].
func (c *DataClient) ListPullRequestsWindow(ctx context.Context, owner, repo string, since, until time.Time) (PullRequestListResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return PullRequestListResult{}, err
	}
	if err := validateWindow(since, until); err != nil {
		return PullRequestListResult{}, err
	}

	query := url.Values{}
	query.Set("state", "all")
	query.Set("sort", "updated")
	query.Set("direction", "desc")

	result := PullRequestListResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, "list pull requests", append(segments, "pulls"), query,
		func(page []pullRequestPayload) bool {
			reachedSince := false
			for _, pr := range page {
				typed := pr.toPullRequest()
				if !since.IsZero() && typed.UpdatedAt.Before(since) {
					reachedSince = true
					continue
				}
				if !withinWindow(typed.CreatedAt, since, until) &&
					!withinWindow(typed.MergedAt, since, until) &&
					!withinWindow(typed.UpdatedAt, since, until) {
					continue
				}
				result.PullRequests = append(result.PullRequests, typed)
			}
			return !reachedSince
		})
	if err != nil {
		return PullRequestListResult{}, err
	}
	return result, nil
}

// GetPullRequest reads one pull request, including who merged it.
func (c *DataClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequestResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return PullRequestResult{}, err
	}
	if number <= 0 {
		return PullRequestResult{}, fmt.Errorf("pull number must be > 0")
	}

	resp, metadata, err := c.get(ctx, "get pull request", append(segments, "pulls", strconv.Itoa(number)), nil)
	if err != nil {
		return PullRequestResult{}, err
	}

	result := PullRequestResult{
		Status:   endpointStatusFromResponse(resp, metadata),
		Metadata: metadata,
	}
	if result.Status != EndpointStatusOK {
		_ = resp.Body.Close()
		return result, nil
	}

	var payload pullRequestPayload
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return PullRequestResult{}, fmt.Errorf("decode get pull request response: %w", err)
	}
	result.PullRequest = payload.toPullRequest()
	return result, nil
}

// ListPullReviews lists reviews for one pull request submitted inside [since, until].
func (c *DataClient) ListPullReviews(ctx context.Context, owner, repo string, number int, since, until time.Time) (PullReviewsResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return PullReviewsResult{}, err
	}
	if number <= 0 {
		return PullReviewsResult{}, fmt.Errorf("pull number must be > 0")
	}
	if err := validateWindow(since, until); err != nil {
		return PullReviewsResult{}, err
	}

	result := PullReviewsResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, "list pull reviews", append(segments, "pulls", strconv.Itoa(number), "reviews"), nil,
		func(page []pullReviewPayload) bool {
			for _, review := range page {
				submittedAt := parseNullableRFC3339(review.SubmittedAt)
				if !withinWindow(submittedAt, since, until) {
					continue
				}
				typed := PullReview{
					ID:          review.ID,
					State:       review.State,
					SubmittedAt: submittedAt,
				}
				if review.User != nil {
					typed.User = review.User.Login
				}
				result.Reviews = append(result.Reviews, typed)
			}
			return true
		})
	if err != nil {
		return PullReviewsResult{}, err
	}
	return result, nil
}

// ListIssueCommentsWindow lists repository issue and pull request conversation
// comments created inside [since, until].
func (c *DataClient) ListIssueCommentsWindow(ctx context.Context, owner, repo string, since, until time.Time) (CommentsResult, error) {
	return c.listCommentsWindow(ctx, "list issue comments", owner, repo, []string{"issues", "comments"}, since, until)
}

// ListReviewCommentsWindow lists repository pull request review comments created inside [since, until].
func (c *DataClient) ListReviewCommentsWindow(ctx context.Context, owner, repo string, since, until time.Time) (CommentsResult, error) {
	return c.listCommentsWindow(ctx, "list review comments", owner, repo, []string{"pulls", "comments"}, since, until)
}

func (c *DataClient) listCommentsWindow(ctx context.Context, op, owner, repo string, suffix []string, since, until time.Time) (CommentsResult, error) {
	segments, err := repoSegments(owner, repo)
	if err != nil {
		return CommentsResult{}, err
	}
	if err := validateWindow(since, until); err != nil {
		return CommentsResult{}, err
	}

	query := url.Values{}
	query.Set("sort", "created")
	query.Set("direction", "asc")
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	result := CommentsResult{}
	result.Status, result.Metadata, err = listPages(ctx, c, op, append(segments, suffix...), query,
		func(page []commentPayload) bool {
			for _, comment := range page {
				createdAt := parseRFC3339(comment.CreatedAt)
				if !withinWindow(createdAt, since, until) {
					continue
				}
				typed := Comment{
					ID:        comment.ID,
					Number:    comment.number(),
					CreatedAt: createdAt,
				}
				if comment.User != nil {
					typed.User = comment.User.Login
				}
				result.Comments = append(result.Comments, typed)
			}
			return true
		})
	if err != nil {
		return CommentsResult{}, err
	}
	return result, nil
}

// listPages walks a paginated list endpoint. visit returns false to stop early.
// A non-OK status ends the walk and is returned with whatever was already visited.
func listPages[T any](
	ctx context.Context,
	c *DataClient,
	op string,
	segments []string,
	query url.Values,
	visit func(page []T) bool,
) (EndpointStatus, CallMetadata, error) {
	var merged CallMetadata
	page := 1
	for {
		pageQuery := url.Values{}
		for key, values := range query {
			pageQuery[key] = append([]string(nil), values...)
		}
		pageQuery.Set("per_page", "100")
		pageQuery.Set("page", strconv.Itoa(page))

		resp, metadata, err := c.get(ctx, op, segments, pageQuery)
		merged = mergeMetadata(merged, metadata)
		if err != nil {
			return "", merged, err
		}

		status := endpointStatusFromResponse(resp, metadata)
		if status != EndpointStatusOK {
			_ = resp.Body.Close()
			return status, merged, nil
		}

		var payload []T
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return "", merged, fmt.Errorf("decode %s response: %w", op, err)
		}
		if !visit(payload) {
			return EndpointStatusOK, merged, nil
		}
		if len(payload) == 0 || !hasNextPage(resp.Header.Get("Link")) {
			return EndpointStatusOK, merged, nil
		}
		page++
	}
}

func (c *DataClient) get(ctx context.Context, op string, segments []string, query url.Values) (*http.Response, CallMetadata, error) {
	reqURL := c.cloneBaseURL()
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	reqURL.Path = joinURLPath(reqURL.Path, escaped...)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, CallMetadata{}, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return nil, metadata, fmt.Errorf("%s request failed: %w", op, err)
	}
	if resp == nil {
		return nil, metadata, fmt.Errorf("%s request failed: nil response", op)
	}
	return resp, metadata, nil
}

func repoSegments(owner, repo string) ([]string, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return nil, fmt.Errorf("repo is required")
	}
	return []string{"repos", trimmedOwner, trimmedRepo}, nil
}

func validateWindow(since, until time.Time) error {
	if !until.IsZero() && !since.IsZero() && until.Before(since) {
		return fmt.Errorf("until must not be before since")
	}
	return nil
}

func setWindowQuery(query url.Values, since, until time.Time) {
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	if !until.IsZero() {
		query.Set("until", until.UTC().Format(time.RFC3339))
	}
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSuffix(base, "/"))
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromResponse(resp *http.Response, metadata CallMetadata) EndpointStatus {
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && !metadata.LastDecision.Allow) {
		return EndpointStatusRateLimited
	}
	return endpointStatusFromHTTP(resp.StatusCode)
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return EndpointStatusForbidden
	case http.StatusNotFound, http.StatusGone:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	case http.StatusTooManyRequests:
		return EndpointStatusRateLimited
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

func hasNextPage(linkHeader string) bool {
	if strings.TrimSpace(linkHeader) == "" {
		return false
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullableRFC3339(raw *string) time.Time {
	if raw == nil {
		return time.Time{}
	}
	return parseRFC3339(*raw)
}

// withinWindow reports whether ts lies in [since, until]. Zero bounds are open.
func withinWindow(ts, since, until time.Time) bool {
	if ts.IsZero() {
		return false
	}
	if !since.IsZero() && ts.Before(since) {
		return false
	}
	if !until.IsZero() && ts.After(until) {
		return false
	}
	return true
}

func mergeMetadata(current CallMetadata, incoming CallMetadata) CallMetadata {
	current.Attempts += incoming.Attempts
	current.LastDecision = incoming.LastDecision
	current.LastRateHeaders = incoming.LastRateHeaders
	return current
}

// numberFromAPIURL extracts the trailing number of an issue_url or pull_request_url.
func numberFromAPIURL(raw string) int {
	if raw == "" {
		return 0
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return 0
	}
	number, err := strconv.Atoi(path.Base(parsed.Path))
	if err != nil {
		return 0
	}
	return number
}

type repositoryPayload struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Archived      bool   `json:"archived"`
	Disabled      bool   `json:"disabled"`
	Fork          bool   `json:"fork"`
}

type branchPayload struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type commitListPayload struct {
	SHA       string          `json:"sha"`
	Author    *userPayload    `json:"author"`
	Committer *userPayload    `json:"committer"`
	Commit    commitCoreBlock `json:"commit"`
}

type commitCoreBlock struct {
	Message   string            `json:"message"`
	Author    commitAuthorBlock `json:"author"`
	Committer commitAuthorBlock `json:"committer"`
}

type commitAuthorBlock struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type issuePayload struct {
	Number      int            `json:"number"`
	Title       string         `json:"title"`
	State       string         `json:"state"`
	User        *userPayload   `json:"user"`
	Assignees   []*userPayload `json:"assignees"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	ClosedAt    *string        `json:"closed_at"`
	PullRequest *struct{}      `json:"pull_request"`
}

type issueEventPayload struct {
	ID        int64        `json:"id"`
	Event     string       `json:"event"`
	Actor     *userPayload `json:"actor"`
	Assignee  *userPayload `json:"assignee"`
	CreatedAt string       `json:"created_at"`
	Issue     *struct {
		Number int `json:"number"`
	} `json:"issue"`
}

type pullRequestPayload struct {
	Number    int          `json:"number"`
	Title     string       `json:"title"`
	State     string       `json:"state"`
	User      *userPayload `json:"user"`
	MergedBy  *userPayload `json:"merged_by"`
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
	MergedAt  *string      `json:"merged_at"`
	ClosedAt  *string      `json:"closed_at"`
}

func (p pullRequestPayload) toPullRequest() PullRequest {
	typed := PullRequest{
		Number:    p.Number,
		Title:     p.Title,
		State:     p.State,
		CreatedAt: parseRFC3339(p.CreatedAt),
		UpdatedAt: parseRFC3339(p.UpdatedAt),
		MergedAt:  parseNullableRFC3339(p.MergedAt),
		ClosedAt:  parseNullableRFC3339(p.ClosedAt),
	}
	if p.User != nil {
		typed.User = p.User.Login
	}
	if p.MergedBy != nil {
		typed.MergedBy = p.MergedBy.Login
	}
	return typed
}

type pullReviewPayload struct {
	ID          int64        `json:"id"`
	User        *userPayload `json:"user"`
	State       string       `json:"state"`
	SubmittedAt *string      `json:"submitted_at"`
}

type commentPayload struct {
	ID             int64        `json:"id"`
	User           *userPayload `json:"user"`
	CreatedAt      string       `json:"created_at"`
	IssueURL       string       `json:"issue_url"`
	PullRequestURL string       `json:"pull_request_url"`
}

func (p commentPayload) number() int {
	if p.PullRequestURL != "" {
		return numberFromAPIURL(p.PullRequestURL)
	}
	return numberFromAPIURL(p.IssueURL)
}

type userPayload struct {
	Login string `json:"login"`
}

package githubapi

import (
	"context"
	"net/http"
	"net/url"
	"reflect"
	"testing"
	"time"
)

func newTestRequestClient(doer HTTPDoer) *Client {
	policy := RateLimitPolicy{
		MinRemainingThreshold: 0,
		Now: func() time.Time {
			return time.Unix(1739836800, 0)
		},
	}
	return NewClient(doer, RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
	}, policy)
}

func TestNewDataClient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		baseURL     string
		client      *Client
		wantErr     bool
		errContains string
	}{
		{
			name:    "uses_default_base_url",
			baseURL: "",
			client:  newTestRequestClient(&fakeDoer{}),
		},
		{
			name:    "accepts_custom_base_url",
			baseURL: "https://github.example.com/api/v3",
			client:  newTestRequestClient(&fakeDoer{}),
		},
		{
			name:        "rejects_invalid_base_url",
			baseURL:     "://bad-url",
			client:      newTestRequestClient(&fakeDoer{}),
			wantErr:     true,
			errContains: "parse github api base url",
		},
		{
			name:        "rejects_nil_client",
			baseURL:     "https://api.github.com",
			client:      nil,
			wantErr:     true,
			errContains: "request client is required",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewDataClient(tc.baseURL, tc.client)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewDataClient() expected error, got nil")
				}
				if tc.errContains != "" && !contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatalf("NewDataClient() returned nil client")
			}
		})
	}
}

func TestDataClientListOrgRepos(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{
				"Link": `<https://api.github.com/orgs/test/repos?per_page=100&page=2>; rel="next"`,
			}, `[
				{"name":"repo-a","full_name":"test/repo-a","default_branch":"main","archived":false,"disabled":false,"fork":false}
			]`),
			newResponse(http.StatusOK, map[string]string{}, `[
				{"name":"repo-b","full_name":"test/repo-b","default_branch":"main","archived":true,"disabled":false,"fork":false}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListOrgRepos(context.Background(), "test")
	if err != nil {
		t.Fatalf("ListOrgRepos() unexpected error: %v", err)
	}
	if got.Status != EndpointStatusOK {
		t.Fatalf("Status = %q, want %q", got.Status, EndpointStatusOK)
	}
	if len(got.Repos) != 2 {
		t.Fatalf("len(Repos) = %d, want 2", len(got.Repos))
	}
	if got.Repos[0].Name != "repo-a" || got.Repos[1].Name != "repo-b" {
		t.Fatalf("repos = %#v, want repo-a/repo-b", got.Repos)
	}
}


func TestDataClientListOrgReposClassifiesStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		response   *http.Response
		wantStatus EndpointStatus
	}{
		{name: "not_found", response: newResponse(http.StatusNotFound, nil, `{}`), wantStatus: EndpointStatusNotFound},
		{name: "forbidden", response: newResponse(http.StatusForbidden, nil, `{}`), wantStatus: EndpointStatusForbidden},
		{name: "unavailable", response: newResponse(http.StatusBadGateway, nil, `{}`), wantStatus: EndpointStatusUnavailable},
		{
			name: "rate_limited",
			response: newResponse(http.StatusForbidden, map[string]string{
				"Retry-After": "30",
			}, `{}`),
			wantStatus: EndpointStatusRateLimited,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doer := &fakeDoer{responses: []*http.Response{tc.response}}
			client, err := NewDataClient("", newTestRequestClient(doer))
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}

			got, err := client.ListOrgRepos(context.Background(), "test")
			if err != nil {
				t.Fatalf("ListOrgRepos() unexpected error: %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("Status = %q, want %q", got.Status, tc.wantStatus)
			}
		})
	}
}

func TestDataClientListBranches(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `[
				{"name":"main","commit":{"sha":"aaa"}},
				{"name":"feature/x","commit":{"sha":"bbb"}}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListBranches(context.Background(), "test", "repo-a")
	if err != nil {
		t.Fatalf("ListBranches() unexpected error: %v", err)
	}
	want := []Branch{{Name: "main", SHA: "aaa"}, {Name: "feature/x", SHA: "bbb"}}
	if !reflect.DeepEqual(got.Branches, want) {
		t.Fatalf("Branches = %#v, want %#v", got.Branches, want)
	}
	if len(doer.urls) != 1 || !contains(doer.urls[0], "/repos/test/repo-a/branches?") {
		t.Fatalf("urls = %v, want branches endpoint", doer.urls)
	}
}

func TestDataClientListCommitsWindow(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC)
	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `[
				{
					"sha":"abc",
					"author":{"login":"alice"},
					"committer":{"login":"web-flow"},
					"commit":{
						"message":"fix parser",
						"author":{"name":"Alice","email":"alice@example.com","date":"2025-11-04T10:00:00Z"},
						"committer":{"name":"GitHub","email":"noreply@github.com","date":"2025-11-04T10:01:00Z"}
					}
				},
				{
					"sha":"def",
					"author":null,
					"committer":null,
					"commit":{
						"message":"external change",
						"author":{"name":"Mallory","email":"mallory@elsewhere.test","date":"2025-11-05T10:00:00Z"},
						"committer":{"name":"Mallory","email":"mallory@elsewhere.test","date":"2025-11-05T10:00:00Z"}
					}
				}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListCommitsWindow(context.Background(), "test", "repo-a", "feature/x", since, until, 0)
	if err != nil {
		t.Fatalf("ListCommitsWindow() unexpected error: %v", err)
	}
	if len(got.Commits) != 2 {
		t.Fatalf("len(Commits) = %d, want 2", len(got.Commits))
	}
	first := got.Commits[0]
	if first.Author != "alice" || first.AuthorEmail != "alice@example.com" || first.Message != "fix parser" {
		t.Fatalf("Commits[0] = %#v", first)
	}
	if !first.CommittedAt.Equal(time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("CommittedAt = %s", first.CommittedAt)
	}
	if got.Commits[1].Author != "" {
		t.Fatalf("Commits[1].Author = %q, want empty", got.Commits[1].Author)
	}

	parsed, err := url.Parse(doer.urls[0])
	if err != nil {
		t.Fatalf("url.Parse() unexpected error: %v", err)
	}
	query := parsed.Query()
	if query.Get("sha") != "feature/x" {
		t.Fatalf("sha = %q, want feature/x", query.Get("sha"))
	}
	if query.Get("since") != "2025-11-03T00:00:00Z" || query.Get("until") != "2025-11-17T23:59:59Z" {
		t.Fatalf("window query = %v", query)
	}
}

func TestDataClientListCommitsWindowTruncates(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{
				"Link": `<https://api.github.com/x?page=2>; rel="next"`,
			}, `[
				{"sha":"a","commit":{"author":{"date":"2025-11-04T10:00:00Z"}}},
				{"sha":"b","commit":{"author":{"date":"2025-11-04T11:00:00Z"}}}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListCommitsWindow(context.Background(), "test", "repo-a", "", time.Time{}, time.Time{}, 1)
	if err != nil {
		t.Fatalf("ListCommitsWindow() unexpected error: %v", err)
	}
	if !got.Truncated || len(got.Commits) != 1 {
		t.Fatalf("Truncated = %t len = %d, want true 1", got.Truncated, len(got.Commits))
	}
	if doer.callCount != 1 {
		t.Fatalf("callCount = %d, want 1", doer.callCount)
	}
}

func TestDataClientListCommitsWindowEmptyRepository(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{responses: []*http.Response{newResponse(http.StatusConflict, nil, `{"message":"Git Repository is empty."}`)}}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListCommitsWindow(context.Background(), "test", "empty", "", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListCommitsWindow() unexpected error: %v", err)
	}
	if got.Status != EndpointStatusConflict {
		t.Fatalf("Status = %q, want %q", got.Status, EndpointStatusConflict)
	}
}

func TestDataClientListIssuesWindowSkipsPullRequests(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `[
				{
					"number":7,"title":"Crash on start","state":"closed",
					"user":{"login":"carol"},
					"assignees":[{"login":"alice"},{"login":"bob"}],
					"created_at":"2025-11-01T09:00:00Z","updated_at":"2025-11-06T09:00:00Z","closed_at":"2025-11-06T09:00:00Z"
				},
				{
					"number":8,"title":"Add flag","state":"open",
					"user":{"login":"alice"},"assignees":[],
					"created_at":"2025-11-05T09:00:00Z","updated_at":"2025-11-05T09:00:00Z","closed_at":null,
					"pull_request":{"url":"https://api.github.com/repos/test/repo-a/pulls/8"}
				}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListIssuesWindow(context.Background(), "test", "repo-a", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListIssuesWindow() unexpected error: %v", err)
	}
	if len(got.Issues) != 1 {
		t.Fatalf("len(Issues) = %d, want 1", len(got.Issues))
	}
	issue := got.Issues[0]
	if issue.Number != 7 || issue.State != "closed" || issue.User != "carol" {
		t.Fatalf("Issues[0] = %#v", issue)
	}
	if !reflect.DeepEqual(issue.Assignees, []string{"alice", "bob"}) {
		t.Fatalf("Assignees = %v, want [alice bob]", issue.Assignees)
	}
	if issue.ClosedAt.IsZero() {
		t.Fatalf("ClosedAt is zero")
	}
}

func TestDataClientListIssueEventsWindowStopsBeforeSince(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{
				"Link": `<https://api.github.com/x?page=2>; rel="next"`,
			}, `[
				{"id":3,"event":"closed","actor":{"login":"bob"},"created_at":"2025-11-06T09:00:00Z","issue":{"number":7}},
				{"id":2,"event":"assigned","actor":{"login":"carol"},"assignee":{"login":"alice"},"created_at":"2025-11-04T09:00:00Z","issue":{"number":7}},
				{"id":1,"event":"assigned","actor":{"login":"carol"},"assignee":{"login":"bob"},"created_at":"2025-10-30T09:00:00Z","issue":{"number":7}}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	got, err := client.ListIssueEventsWindow(context.Background(), "test", "repo-a", since, time.Time{})
	if err != nil {
		t.Fatalf("ListIssueEventsWindow() unexpected error: %v", err)
	}
	if doer.callCount != 1 {
		t.Fatalf("callCount = %d, want 1", doer.callCount)
	}
	if len(got.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(got.Events))
	}
	if got.Events[1].Assignee != "alice" || got.Events[1].IssueNumber != 7 {
		t.Fatalf("Events[1] = %#v", got.Events[1])
	}
}

func TestDataClientListPullRequestsWindow(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{
				"Link": `<https://api.github.com/x?page=2>; rel="next"`,
			}, `[
				{"number":12,"title":"Late change","state":"open","user":{"login":"alice"},
				 "created_at":"2025-11-20T09:00:00Z","updated_at":"2025-11-20T09:00:00Z"},
				{"number":11,"title":"Refactor","state":"closed","user":{"login":"alice"},
				 "created_at":"2025-11-04T09:00:00Z","updated_at":"2025-11-10T09:00:00Z","merged_at":"2025-11-10T09:00:00Z","closed_at":"2025-11-10T09:00:00Z"},
				{"number":10,"title":"Old","state":"closed","user":{"login":"bob"},
				 "created_at":"2025-10-01T09:00:00Z","updated_at":"2025-10-02T09:00:00Z"}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC)
	got, err := client.ListPullRequestsWindow(context.Background(), "test", "repo-a", since, until)
	if err != nil {
		t.Fatalf("ListPullRequestsWindow() unexpected error: %v", err)
	}
	if doer.callCount != 1 {
		t.Fatalf("callCount = %d, want 1", doer.callCount)
	}
	if len(got.PullRequests) != 1 || got.PullRequests[0].Number != 11 {
		t.Fatalf("PullRequests = %#v, want only #11", got.PullRequests)
	}
	if got.PullRequests[0].MergedAt.IsZero() {
		t.Fatalf("MergedAt is zero")
	}
}

func TestDataClientGetPullRequest(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `{"number":11,"title":"Refactor","state":"closed",
				"user":{"login":"alice"},"merged_by":{"login":"bob"},
				"created_at":"2025-11-04T09:00:00Z","updated_at":"2025-11-10T09:00:00Z","merged_at":"2025-11-10T09:00:00Z"}`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.GetPullRequest(context.Background(), "test", "repo-a", 11)
	if err != nil {
		t.Fatalf("GetPullRequest() unexpected error: %v", err)
	}
	if got.PullRequest.MergedBy != "bob" {
		t.Fatalf("MergedBy = %q, want bob", got.PullRequest.MergedBy)
	}
	if _, err := client.GetPullRequest(context.Background(), "test", "repo-a", 0); err == nil {
		t.Fatalf("GetPullRequest(0) expected error, got nil")
	}
}

func TestDataClientListPullReviewsFiltersWindow(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `[
				{"id":1,"user":{"login":"bob"},"state":"APPROVED","submitted_at":"2025-11-05T09:00:00Z"},
				{"id":2,"user":{"login":"carol"},"state":"COMMENTED","submitted_at":"2025-11-18T00:00:00Z"},
				{"id":3,"user":{"login":"dave"},"state":"PENDING","submitted_at":null}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC)
	got, err := client.ListPullReviews(context.Background(), "test", "repo-a", 11, since, until)
	if err != nil {
		t.Fatalf("ListPullReviews() unexpected error: %v", err)
	}
	if len(got.Reviews) != 1 || got.Reviews[0].User != "bob" {
		t.Fatalf("Reviews = %#v, want only bob", got.Reviews)
	}
}

func TestDataClientListCommentsWindow(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `[
				{"id":1,"user":{"login":"bob"},"created_at":"2025-11-05T09:00:00Z","issue_url":"https://api.github.com/repos/test/repo-a/issues/11"},
				{"id":2,"user":{"login":"carol"},"created_at":"2025-10-05T09:00:00Z","issue_url":"https://api.github.com/repos/test/repo-a/issues/11"}
			]`),
			newResponse(http.StatusOK, nil, `[
				{"id":9,"user":{"login":"dave"},"created_at":"2025-11-06T09:00:00Z","pull_request_url":"https://api.github.com/repos/test/repo-a/pulls/12"}
			]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC)

	issueComments, err := client.ListIssueCommentsWindow(context.Background(), "test", "repo-a", since, until)
	if err != nil {
		t.Fatalf("ListIssueCommentsWindow() unexpected error: %v", err)
	}
	if len(issueComments.Comments) != 1 || issueComments.Comments[0].Number != 11 {
		t.Fatalf("issue comments = %#v, want one on #11", issueComments.Comments)
	}

	reviewComments, err := client.ListReviewCommentsWindow(context.Background(), "test", "repo-a", since, until)
	if err != nil {
		t.Fatalf("ListReviewCommentsWindow() unexpected error: %v", err)
	}
	if len(reviewComments.Comments) != 1 || reviewComments.Comments[0].Number != 12 || reviewComments.Comments[0].User != "dave" {
		t.Fatalf("review comments = %#v, want dave on #12", reviewComments.Comments)
	}
	if !contains(doer.urls[1], "/repos/test/repo-a/pulls/comments?") {
		t.Fatalf("urls[1] = %q, want review comments endpoint", doer.urls[1])
	}
}

func TestWithinWindow(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 11, 17, 23, 59, 59, 0, time.UTC)
	testCases := []struct {
		name  string
		ts    time.Time
		since time.Time
		until time.Time
		want  bool
	}{
		{name: "start_inclusive", ts: since, since: since, until: until, want: true},
		{name: "end_inclusive", ts: until, since: since, until: until, want: true},
		{name: "after_end", ts: until.Add(time.Second), since: since, until: until, want: false},
		{name: "before_start", ts: since.Add(-time.Second), since: since, until: until, want: false},
		{name: "open_bounds", ts: since, want: true},
		{name: "zero_timestamp", ts: time.Time{}, since: since, until: until, want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := withinWindow(tc.ts, tc.since, tc.until); got != tc.want {
				t.Fatalf("withinWindow() = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestNumberFromAPIURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want int
	}{
		{in: "https://api.github.com/repos/test/repo-a/issues/42", want: 42},
		{in: "https://api.github.com/repos/test/repo-a/pulls/7", want: 7},
		{in: "", want: 0},
		{in: "https://api.github.com/repos/test/repo-a/issues/x", want: 0},
	}

	for _, tc := range testCases {
		if got := numberFromAPIURL(tc.in); got != tc.want {
			t.Fatalf("numberFromAPIURL(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

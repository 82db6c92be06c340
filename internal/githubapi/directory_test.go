package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestDirectoryListMembers(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/members", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = fmt.Fprint(w, `[{"login":"Bob"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/acme/members?page=2&per_page=100>; rel="next"`, r.Host))
		_, _ = fmt.Fprint(w, `[{"login":"carol"},{"login":"alice"}]`)
	})
	mux.HandleFunc("/users/alice", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"login":"alice","name":"Alice Liddell","email":"alice@example.com"}`)
	})
	mux.HandleFunc("/users/Bob", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"login":"Bob","name":" Bob Builder "}`)
	})
	mux.HandleFunc("/users/carol", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	restClient, err := NewGitHubRESTClient(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("NewGitHubRESTClient() unexpected error: %v", err)
	}
	directory, err := NewDirectory(restClient, 2)
	if err != nil {
		t.Fatalf("NewDirectory() unexpected error: %v", err)
	}

	testCases := []struct {
		name         string
		withProfiles bool
		want         []Member
	}{
		{
			name: "logins_only",
			want: []Member{{Login: "alice"}, {Login: "Bob"}, {Login: "carol"}},
		},
		{
			name:         "with_profiles",
			withProfiles: true,
			want: []Member{
				{Login: "alice", Name: "Alice Liddell", Email: "alice@example.com"},
				{Login: "Bob", Name: "Bob Builder"},
				{Login: "carol"},
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := directory.ListMembers(context.Background(), "acme", tc.withProfiles)
			if err != nil {
				t.Fatalf("ListMembers() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ListMembers() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestNewDirectoryRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewDirectory(nil, 1); err == nil {
		t.Fatalf("NewDirectory(nil) expected error, got nil")
	}
}

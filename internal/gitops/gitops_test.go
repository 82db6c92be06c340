package gitops

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type fakeCommander struct {
	calls  [][]string
	status string
	failOn string
}

func (f *fakeCommander) Run(_ context.Context, _ string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if f.failOn != "" && strings.Contains(strings.Join(args, " "), f.failOn) {
		return "", errors.New("boom")
	}
	if len(args) > 0 && args[0] == "status" {
		return f.status, nil
	}
	return "", nil
}

func TestCommitterCommit(t *testing.T) {
	t.Parallel()

	dir := filepath.Join("/", "repo")
	testCases := []struct {
		name      string
		cfg       Config
		status    string
		failOn    string
		wantCalls [][]string
		wantErr   bool
	}{
		{
			name:   "commit_and_push",
			cfg:    Config{Dir: dir, Branch: "main", Push: true, AuthorName: "Reporter", AuthorEmail: "bot@example.com"},
			status: "A  reports/x.md\n",
			wantCalls: [][]string{
				{"add", "--", "reports/x.md", "docs/x.html"},
				{"status", "--porcelain", "--untracked-files=no"},
				{"-c", "user.name=Reporter", "-c", "user.email=bot@example.com", "commit", "-m", "Add report"},
				{"push", "origin", "HEAD:main"},
			},
		},
		{
			name:   "commit_without_push",
			cfg:    Config{Dir: dir},
			status: "A  reports/x.md\n",
			wantCalls: [][]string{
				{"add", "--", "reports/x.md", "docs/x.html"},
				{"status", "--porcelain", "--untracked-files=no"},
				{"commit", "-m", "Add report"},
			},
		},
		{
			name:   "clean_tree_skips_commit",
			cfg:    Config{Dir: dir, Push: true},
			status: "",
			wantCalls: [][]string{
				{"add", "--", "reports/x.md", "docs/x.html"},
				{"status", "--porcelain", "--untracked-files=no"},
			},
		},
		{
			name:    "commit_failure",
			cfg:     Config{Dir: dir},
			status:  "A  reports/x.md\n",
			failOn:  "commit",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeCommander{status: tc.status, failOn: tc.failOn}
			committer, err := NewCommitter(tc.cfg, runner, nil)
			if err != nil {
				t.Fatalf("NewCommitter() unexpected error: %v", err)
			}
			err = committer.Commit(context.Background(), "Add report",
				filepath.Join(dir, "reports", "x.md"), filepath.Join(dir, "docs", "x.html"))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Commit() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Commit() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(runner.calls, tc.wantCalls) {
				t.Fatalf("calls = %v, want %v", runner.calls, tc.wantCalls)
			}
		})
	}
}

func TestCommitterRejectsOutsidePaths(t *testing.T) {
	t.Parallel()

	committer, err := NewCommitter(Config{Dir: filepath.Join("/", "repo")}, &fakeCommander{}, nil)
	if err != nil {
		t.Fatalf("NewCommitter() unexpected error: %v", err)
	}
	if err := committer.Commit(context.Background(), "msg", filepath.Join("/", "elsewhere", "x.md")); err == nil {
		t.Fatalf("Commit() expected error for path outside repo")
	}
}

func TestNewCommitterRequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := NewCommitter(Config{}, nil, nil); err == nil {
		t.Fatalf("NewCommitter() expected error without dir")
	}
}

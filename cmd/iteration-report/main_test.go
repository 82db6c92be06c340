package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cam3ron2/iteration-report/internal/pipeline"
	"github.com/cam3ron2/iteration-report/internal/publish"
	"github.com/cam3ron2/iteration-report/internal/schedule"
)

func TestRootCommandWiring(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	testCases := []struct {
		args []string
		flag string
	}{
		{args: []string{"serve"}},
		{args: []string{"publish"}, flag: "force"},
		{args: []string{"preview"}},
		{args: []string{"schedule", "show"}},
		{args: []string{"schedule", "sync"}},
	}
	for _, tc := range testCases {
		cmd, _, err := root.Find(tc.args)
		if err != nil {
			t.Fatalf("Find(%v) unexpected error: %v", tc.args, err)
		}
		if cmd.Name() != tc.args[len(tc.args)-1] {
			t.Fatalf("Find(%v) = %q", tc.args, cmd.Name())
		}
		if tc.flag != "" && cmd.Flags().Lookup(tc.flag) == nil {
			t.Fatalf("%v is missing --%s", tc.args, tc.flag)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("env-file") == nil {
		t.Fatalf("root command is missing persistent flags")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	if err := os.WriteFile(valid, []byte("github:\n  org: acme\n  token: test-token\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}
	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("github:\n  unknown_field: 1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}

	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_ORG_NAME", "")

	testCases := []struct {
		name     string
		path     string
		explicit bool
		wantErr  bool
	}{
		{name: "valid_file", path: valid, explicit: true},
		{name: "unknown_field", path: invalid, explicit: true, wantErr: true},
		{name: "missing_explicit_file", path: filepath.Join(dir, "missing.yaml"), explicit: true, wantErr: true},
		{name: "missing_default_file_without_env", path: filepath.Join(dir, "missing.yaml"), wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig(tc.path, tc.explicit)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("loadConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig() unexpected error: %v", err)
			}
			if cfg.GitHub.Org != "acme" {
				t.Fatalf("GitHub.Org = %q, want acme", cfg.GitHub.Org)
			}
		})
	}
}

func TestLoadConfigFallsBackToEnvironment(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("GITHUB_ORG_NAME", "env-org")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil {
		t.Fatalf("loadConfig() unexpected error: %v", err)
	}
	if cfg.GitHub.Org != "env-org" {
		t.Fatalf("GitHub.Org = %q, want env-org", cfg.GitHub.Org)
	}
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := printResult(&out, pipeline.Result{
		RunID:                 "run-1",
		Status:                publish.StatusPublished,
		Iteration:             "Sprint 5",
		ReportPath:            "reports/a.md",
		RepositoriesTotal:     5,
		RepositoriesProcessed: 4,
	})
	if err != nil {
		t.Fatalf("printResult() unexpected error: %v", err)
	}
	want := "status: published\niteration: Sprint 5\nreport: reports/a.md\nrepositories: 4 of 5 processed\nrun: run-1\n"
	if out.String() != want {
		t.Fatalf("printResult() = %q, want %q", out.String(), want)
	}
}

func TestPrintSchedule(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := printSchedule(&out, schedule.State{NextIterationName: "Sprint 6", NextIterationEndDate: "2025-12-01", Version: 2}); err != nil {
		t.Fatalf("printSchedule() unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "next_iteration_name: Sprint 6\n") || !strings.Contains(out.String(), "version: 2\n") {
		t.Fatalf("printSchedule() = %q", out.String())
	}
}

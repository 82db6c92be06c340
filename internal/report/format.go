// Package report renders an accumulated activity model as a text report.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/cam3ron2/iteration-report/internal/activity"
)

const (
	timestampLayout = "2006-01-02 03:04:05 PM MST"
	dateLayout      = "2006-01-02"
	sectionRule     = 60
	userRule        = 40
)

// Section headings that other packages parse back out of a report.
const (
	IterationHeading = "CURRENT ITERATION INFORMATION"
	SummaryHeading   = "SUMMARY"
	DetailHeading    = "DETAILED ACTIVITY"
)

type column struct {
	source activity.Source
	title  string
	count  func(activity.ContributorStats) int
}

var columns = []column{
	{source: activity.SourceCommits, title: "Commits", count: func(s activity.ContributorStats) int { return len(s.Commits) }},
	{source: activity.SourceIssues, title: "Assigned Issues", count: func(s activity.ContributorStats) int { return len(s.AssignedIssues) }},
	{source: activity.SourceIssues, title: "Closed Issues", count: func(s activity.ContributorStats) int { return len(s.ClosedIssues) }},
	{source: activity.SourcePullRequests, title: "PRs Created", count: func(s activity.ContributorStats) int { return len(s.PRsCreated) }},
	{source: activity.SourcePullRequests, title: "PRs Reviewed", count: func(s activity.ContributorStats) int { return len(s.PRsReviewed) }},
	{source: activity.SourcePullRequests, title: "PRs Merged", count: func(s activity.ContributorStats) int { return len(s.PRsMerged) }},
	{source: activity.SourcePullRequests, title: "PRs Commented", count: func(s activity.ContributorStats) int { return len(s.PRsCommented) }},
}

// Format renders model. The output depends only on model, so formatting
// the same model twice yields identical text.
func Format(model activity.ReportModel) (string, error) {
	buffer := bytes.Buffer{}
	if err := Render(&buffer, model); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// Render writes the report for model to w.
func Render(w io.Writer, model activity.ReportModel) error {
	out := &lineWriter{w: w}
	loc := model.Loc()

	out.line("GitHub Organization: %s", model.Organization)
	out.line("Report started on: %s", model.GeneratedAt.In(loc).Format(timestampLayout))
	out.line("")
	writeIteration(out, model, loc)

	out.line("")
	out.line(SummaryHeading)
	out.rule("=", sectionRule)
	if out.err != nil {
		return out.err
	}
	if err := writeSummary(w, model); err != nil {
		return fmt.Errorf("render summary table: %w", err)
	}

	out.line("")
	out.line(DetailHeading)
	out.rule("=", sectionRule)
	for _, login := range model.Contributors() {
		stats := model.Stats[login]
		if stats.IsZero() {
			continue
		}
		writeContributor(out, model, login, stats)
	}

	writeFooter(out, model, loc)
	return out.err
}

func writeIteration(out *lineWriter, model activity.ReportModel, loc *time.Location) {
	zone := loc.String()
	out.rule("=", sectionRule)
	out.line(IterationHeading)
	out.rule("=", sectionRule)
	out.line("Iteration Name: %s", model.Window.Name)
	if !model.Window.Start.IsZero() {
		out.line("Start Date: %s (%s)", model.Window.Start.In(loc).Format(dateLayout), zone)
	}
	if !model.Window.End.IsZero() {
		out.line("End Date: %s (%s)", model.Window.End.In(loc).Format(dateLayout), zone)
	}
	out.rule("=", sectionRule)
}

func writeSummary(w io.Writer, model activity.ReportModel) error {
	active := make([]column, 0, len(columns))
	for _, col := range columns {
		if model.HasSource(col.source) {
			active = append(active, col)
		}
	}

	headers := make([]string, 0, len(active)+1)
	headers = append(headers, "User")
	for _, col := range active {
		headers = append(headers, col.title)
	}

	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, login := range model.Contributors() {
		stats := model.Stats[login]
		row := make([]string, 0, len(headers))
		row = append(row, login)
		for _, col := range active {
			row = append(row, strconv.Itoa(col.count(stats)))
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeContributor(out *lineWriter, model activity.ReportModel, login string, stats activity.ContributorStats) {
	out.line("")
	out.line("User: %s", login)
	out.rule("-", userRule)

	if model.HasSource(activity.SourceCommits) && len(stats.Commits) > 0 {
		out.line("")
		out.line("Commits:")
		for _, commit := range stats.Commits {
			out.line("- [%s] %s %s (%s)", commit.Repository, commit.ShortSHA(), commit.Subject(), day(commit.Timestamp, model))
		}
	}

	if model.HasSource(activity.SourceIssues) {
		if len(stats.AssignedIssues) > 0 {
			out.line("")
			out.line("Assigned Issues:")
			for _, entry := range stats.AssignedIssues {
				issue := entry.Issue
				out.line("- [%s] #%d %s (%s)", issue.Repository, issue.Number, issue.Title, issueStatus(issue))
			}
		}
		if len(stats.ClosedIssues) > 0 {
			out.line("")
			out.line("Closed Issues:")
			for _, entry := range stats.ClosedIssues {
				issue := entry.Issue
				out.line("- [%s] #%d %s (Closed on %s)", issue.Repository, issue.Number, issue.Title, day(entry.At, model))
			}
		}
	}

	if model.HasSource(activity.SourcePullRequests) {
		writePulls(out, "Pull Requests Created:", stats.PRsCreated, model, false)
		writePulls(out, "Pull Requests Reviewed:", stats.PRsReviewed, model, false)
		writePulls(out, "Pull Requests Merged:", stats.PRsMerged, model, true)
		writePulls(out, "Pull Requests Commented:", stats.PRsCommented, model, false)
	}
}

func writePulls(out *lineWriter, title string, entries []activity.PullRequestEntry, model activity.ReportModel, mergedOn bool) {
	if len(entries) == 0 {
		return
	}
	out.line("")
	out.line(title)
	for _, entry := range entries {
		pull := entry.PullRequest
		status := pullStatus(pull.State)
		if mergedOn {
			status = "Merged on " + day(pull.MergedAt, model)
		}
		out.line("- [%s] #%d %s (%s)", pull.Repository, pull.Number, pull.Title, status)
	}
}

func writeFooter(out *lineWriter, model activity.ReportModel, loc *time.Location) {
	out.line("")
	out.rule("=", sectionRule)
	out.line("Repositories processed: %d of %d", model.RepositoriesProcessed, model.RepositoriesTotal)
	if len(model.Failures) > 0 {
		out.line("Repositories skipped: %d", len(model.Failures))
		for _, failure := range model.Failures {
			out.line("- %s: %s", failure.Repository, failure.Reason)
		}
	}
	if model.HasSource(activity.SourceCommits) {
		out.line("Total commits: %d (%d unattributed)", model.Totals.Commits, model.Totals.UnresolvedCommits)
	}
	if model.HasSource(activity.SourceIssues) {
		out.line("Total issues: %d", model.Totals.Issues)
	}
	if model.HasSource(activity.SourcePullRequests) {
		out.line("Total pull requests: %d", model.Totals.PullRequests)
	}
	out.line("Report completed on: %s", model.GeneratedAt.Add(model.Duration).In(loc).Format(timestampLayout))
	out.line("Generation time: %.2f seconds", model.Duration.Seconds())
}

func day(ts time.Time, model activity.ReportModel) string {
	if ts.IsZero() {
		return "N/A"
	}
	return ts.In(model.Loc()).Format(dateLayout)
}

func issueStatus(issue activity.IssueRecord) string {
	if issue.State == activity.IssueClosed {
		return "Closed"
	}
	return "Open"
}

func pullStatus(state activity.PullRequestState) string {
	switch state {
	case activity.PullRequestMerged:
		return "Merged"
	case activity.PullRequestClosed:
		return "Closed"
	default:
		return "Open"
	}
}

// lineWriter keeps the first write error and drops later writes.
type lineWriter struct {
	w   io.Writer
	err error
}

func (l *lineWriter) line(format string, args ...any) {
	if l.err != nil {
		return
	}
	if len(args) == 0 {
		_, l.err = io.WriteString(l.w, format+"\n")
		return
	}
	_, l.err = fmt.Fprintf(l.w, format+"\n", args...)
}

func (l *lineWriter) rule(char string, width int) {
	l.line(strings.Repeat(char, width))
}

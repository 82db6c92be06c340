// Package publish names, guards and writes report artifacts.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cam3ron2/iteration-report/internal/activity"
	"github.com/cam3ron2/iteration-report/internal/atomicfile"
	"github.com/cam3ron2/iteration-report/internal/iteration"
	"github.com/cam3ron2/iteration-report/internal/report"
)

const (
	reportExt       = ".md"
	htmlExt         = ".html"
	timestampLayout = "20060102_150405"
	indexPageName   = "index.html"
	filePerm        = 0o644
)

// ErrInvalidLabel reports a label or organization that cannot name a file.
var ErrInvalidLabel = errors.New("invalid report label")

// Status is the outcome of a publish attempt.
type Status string

const (
	// StatusPublished means a new artifact was written.
	StatusPublished Status = "published"
	// StatusSkipped means a report for the iteration already existed.
	StatusSkipped Status = "skipped"
)

// Result is the outcome of Publish.
type Result struct {
	Status Status
	// Path is the written artifact, or the existing one when skipped.
	Path     string
	HTMLPath string
	Reason   string
}

// IndexEntry is one record of the published reports index.
type IndexEntry struct {
	Date          string `json:"date"`
	Title         string `json:"title"`
	Path          string `json:"path"`
	OrgName       string `json:"org_name"`
	IterationName string `json:"iteration_name"`
	StartDate     string `json:"start_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
}

// Config configures where artifacts go.
type Config struct {
	ReportsDir string
	DocsDir    string
	HTML       bool
	IndexFile  string
	Location   *time.Location
	Now        func() time.Time
}

// Publisher writes report artifacts. The existence check and the write run
// under one mutex, so concurrent Publish calls never both write the same
// iteration.
type Publisher struct {
	cfg    Config
	logger *zap.Logger
	mu     sync.Mutex
}

var (
	slugSeparators = regexp.MustCompile(`[\s_/\\]+`)
	orgPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// NewPublisher creates a publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.ReportsDir) == "" {
		return nil, fmt.Errorf("reports directory is required")
	}
	if cfg.HTML && strings.TrimSpace(cfg.DocsDir) == "" {
		return nil, fmt.Errorf("docs directory is required for html output")
	}
	if strings.TrimSpace(cfg.IndexFile) == "" {
		cfg.IndexFile = "reports.json"
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
	return &Publisher{cfg: cfg, logger: logger}, nil
}

// Slug normalizes an iteration label for file names: lowercase, with runs
// of whitespace, underscores and path separators turned into one hyphen.
func Slug(label string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(label))
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-.")
	if slug == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return slug, nil
}

// BaseName returns the artifact name without extension for a report of org
// and label generated at ts.
func BaseName(ts time.Time, org, label string) (string, error) {
	slug, err := Slug(label)
	if err != nil {
		return "", err
	}
	if !orgPattern.MatchString(org) {
		return "", fmt.Errorf("%w: organization %q", ErrInvalidLabel, org)
	}
	return ts.Format(timestampLayout) + "_" + org + "_" + slug, nil
}

// Existing returns the report artifacts already written for org and label,
// whatever their timestamp, sorted by name. Org names match case-insensitively.
func (p *Publisher) Existing(org, label string) ([]string, error) {
	slug, err := Slug(label)
	if err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(`(?i)^\d{8}_\d{6}_` + regexp.QuoteMeta(org) + `_` + regexp.QuoteMeta(slug) + `(?:_\d+)?` + regexp.QuoteMeta(reportExt) + `$`)
	if err != nil {
		return nil, fmt.Errorf("compile report pattern: %w", err)
	}

	entries, err := os.ReadDir(p.cfg.ReportsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reports directory: %w", err)
	}
	matches := make([]string, 0)
	for _, entry := range entries {
		if entry.Type().IsRegular() && pattern.MatchString(entry.Name()) {
			matches = append(matches, filepath.Join(p.cfg.ReportsDir, entry.Name()))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Publish writes body as the report of model unless one already exists for
// the model's iteration. With force set the existence check is skipped and
// a name collision gets a numeric suffix instead of overwriting.
func (p *Publisher) Publish(ctx context.Context, model activity.ReportModel, body string, force bool) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	org := model.Organization
	label := model.Window.Name
	if !force {
		existing, err := p.Existing(org, label)
		if err != nil {
			return Result{}, err
		}
		if len(existing) > 0 {
			path := existing[len(existing)-1]
			p.logger.Info("report already published", zap.String("org", org), zap.String("iteration", label), zap.String("path", path))
			return Result{
				Status: StatusSkipped,
				Path:   path,
				Reason: fmt.Sprintf("report for %q already exists", label),
			}, nil
		}
	}

	now := p.cfg.Now().In(p.cfg.Location)
	base, err := BaseName(now, org, label)
	if err != nil {
		return Result{}, err
	}
	base, err = p.freeBaseName(base)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result := Result{
		Status: StatusPublished,
		Path:   filepath.Join(p.cfg.ReportsDir, base+reportExt),
	}
	if err := atomicfile.WriteFile(result.Path, []byte(body), filePerm); err != nil {
		return Result{}, fmt.Errorf("write report: %w", err)
	}

	if p.cfg.HTML {
		htmlPath, err := p.writeHTML(model, body, base, now)
		if err != nil {
			return result, err
		}
		result.HTMLPath = htmlPath
	}

	p.logger.Info(
		"report published",
		zap.String("org", org),
		zap.String("iteration", label),
		zap.String("path", result.Path),
		zap.Bool("force", force),
	)
	return result, nil
}

// freeBaseName appends _2, _3, ... to base until no artifact uses the name.
func (p *Publisher) freeBaseName(base string) (string, error) {
	candidate := base
	for suffix := 2; ; suffix++ {
		taken, err := exists(filepath.Join(p.cfg.ReportsDir, candidate+reportExt))
		if err != nil {
			return "", err
		}
		if p.cfg.HTML && !taken {
			taken, err = exists(filepath.Join(p.cfg.DocsDir, candidate+htmlExt))
			if err != nil {
				return "", err
			}
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

func (p *Publisher) writeHTML(model activity.ReportModel, body, base string, now time.Time) (string, error) {
	title := "Report for " + model.Organization
	if model.Window.Name != "" {
		title += " - " + model.Window.Name
	}
	startDate, endDate := windowDates(model.Window, p.cfg.Location)

	page, err := report.HTML(report.Page{
		Title:     title,
		Org:       model.Organization,
		Iteration: model.Window.Name,
		StartDate: startDate,
		EndDate:   endDate,
		Body:      body,
	})
	if err != nil {
		return "", err
	}
	htmlPath := filepath.Join(p.cfg.DocsDir, base+htmlExt)
	if err := atomicfile.WriteFile(htmlPath, []byte(page), filePerm); err != nil {
		return "", fmt.Errorf("write html report: %w", err)
	}

	if err := p.ensureIndexPage(); err != nil {
		return htmlPath, err
	}
	entry := IndexEntry{
		Date:          now.Format(time.RFC3339),
		Title:         title,
		Path:          base + htmlExt,
		OrgName:       model.Organization,
		IterationName: model.Window.Name,
		StartDate:     startDate,
		EndDate:       endDate,
	}
	if err := p.appendIndex(entry); err != nil {
		return htmlPath, err
	}
	return htmlPath, nil
}

func (p *Publisher) ensureIndexPage() error {
	path := filepath.Join(p.cfg.DocsDir, indexPageName)
	found, err := exists(path)
	if err != nil || found {
		return err
	}
	page, err := report.IndexHTML("GitHub Organization Reports")
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, []byte(page), filePerm); err != nil {
		return fmt.Errorf("write index page: %w", err)
	}
	return nil
}

// ReadIndex returns the entries of the reports index, empty when it does
// not exist yet.
func (p *Publisher) ReadIndex() ([]IndexEntry, error) {
	raw, err := os.ReadFile(filepath.Join(p.cfg.DocsDir, p.cfg.IndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return []IndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reports index: %w", err)
	}
	entries := make([]IndexEntry, 0)
	if len(strings.TrimSpace(string(raw))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode reports index: %w", err)
	}
	return entries, nil
}

func (p *Publisher) appendIndex(entry IndexEntry) error {
	entries, err := p.ReadIndex()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	encoded, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reports index: %w", err)
	}
	encoded = append(encoded, '\n')
	if err := atomicfile.WriteFile(filepath.Join(p.cfg.DocsDir, p.cfg.IndexFile), encoded, filePerm); err != nil {
		return fmt.Errorf("write reports index: %w", err)
	}
	return nil
}

func windowDates(window iteration.Window, loc *time.Location) (string, string) {
	var start, end string
	if !window.Start.IsZero() {
		start = window.Start.In(loc).Format(iteration.DateLayout)
	}
	if !window.End.IsZero() {
		end = window.End.In(loc).Format(iteration.DateLayout)
	}
	return start, end
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

package iteration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cam3ron2/iteration-report/internal/githubapi"
	"go.uber.org/zap"
)

// IterationSource lists the iterations of an organization project board.
type IterationSource interface {
	ListIterations(ctx context.Context, org, projectName string) ([]githubapi.ProjectIteration, error)
}

// ProviderConfig configures window resolution.
type ProviderConfig struct {
	Org         string
	ProjectName string
	Location    *time.Location
	// Name, Start and End pin the window when Start and End are both set.
	Name  string
	Start string
	End   string
	// FirstDayReportsPrevious selects the previous iteration on the first
	// day of a new one, so a report published that morning covers the
	// iteration that just ended.
	FirstDayReportsPrevious bool
}

// Provider resolves the active reporting window.
type Provider struct {
	cfg      ProviderConfig
	explicit *Window
	source   IterationSource
	logger   *zap.Logger
}

// NewProvider validates explicit bounds and builds a provider. source may be
// nil, in which case only the explicit window or the all-time fallback is used.
func NewProvider(cfg ProviderConfig, source IterationSource, logger *zap.Logger) (*Provider, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := &Provider{cfg: cfg, source: source, logger: logger}
	if strings.TrimSpace(cfg.Start) == "" && strings.TrimSpace(cfg.End) == "" {
		return provider, nil
	}
	if strings.TrimSpace(cfg.Start) == "" || strings.TrimSpace(cfg.End) == "" {
		return nil, fmt.Errorf("iteration start and end must be set together")
	}

	start, err := ParseBound(cfg.Start, cfg.Location, false)
	if err != nil {
		return nil, err
	}
	end, err := ParseBound(cfg.End, cfg.Location, true)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = fmt.Sprintf("%s to %s", start.Format(DateLayout), end.Format(DateLayout))
	}
	window := Window{Name: name, Start: start, End: end, Origin: OriginConfigured}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	provider.explicit = &window
	return provider, nil
}

// Location is the timezone all windows are expressed in.
func (p *Provider) Location() *time.Location {
	return p.cfg.Location
}

// Resolve returns the window for a run started at now. It never fails: a
// project lookup error falls back to the all-time window.
func (p *Provider) Resolve(ctx context.Context, now time.Time) Window {
	if p.explicit != nil {
		return *p.explicit
	}
	if p.source == nil {
		return AllTime()
	}

	iterations, err := p.source.ListIterations(ctx, p.cfg.Org, p.cfg.ProjectName)
	if err != nil {
		p.logger.Warn(
			"iteration lookup failed; using all-time window",
			zap.String("org", p.cfg.Org),
			zap.String("project", p.cfg.ProjectName),
			zap.Error(err),
		)
		return AllTime()
	}

	window, ok := SelectWindow(iterations, now.In(p.cfg.Location), p.cfg.Location, p.cfg.FirstDayReportsPrevious)
	if !ok {
		p.logger.Warn("iteration lookup returned no usable iterations; using all-time window", zap.String("org", p.cfg.Org))
		return AllTime()
	}
	return window
}

type span struct {
	title string
	start time.Time
	end   time.Time
	days  int
}

// SelectWindow picks the reporting window from project iterations.
//
// The iteration containing now wins, except on its first day when
// firstDayPrevious is set: then the iteration before it is used, computed
// from the current one when it is not listed. Without a current iteration the
// most recently finished one is used, and failing that the first listed.
func SelectWindow(iterations []githubapi.ProjectIteration, now time.Time, loc *time.Location, firstDayPrevious bool) (Window, bool) {
	if loc == nil {
		loc = time.UTC
	}
	listed := make([]span, 0, len(iterations))
	for _, iteration := range iterations {
		start, err := time.ParseInLocation(DateLayout, strings.TrimSpace(iteration.StartDate), loc)
		if err != nil || iteration.Duration <= 0 {
			continue
		}
		listed = append(listed, span{
			title: strings.TrimSpace(iteration.Title),
			start: start,
			end:   EndOfDay(start.AddDate(0, 0, iteration.Duration-1)),
			days:  iteration.Duration,
		})
	}
	if len(listed) == 0 {
		return Window{}, false
	}

	sorted := append([]span(nil), listed...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].start.Before(sorted[j].start)
	})

	for i, current := range sorted {
		if now.Before(current.start) || now.After(current.end) {
			continue
		}
		if !firstDayPrevious || !sameDay(now, current.start) {
			return current.window(), true
		}
		for j := i - 1; j >= 0; j-- {
			if sorted[j].end.Before(current.start) {
				return sorted[j].window(), true
			}
		}
		previousStart := current.start.AddDate(0, 0, -current.days)
		return Window{
			Name:   PreviousName(current.title),
			Start:  previousStart,
			End:    EndOfDay(current.start.AddDate(0, 0, -1)),
			Origin: OriginProject,
		}, true
	}

	var latest *span
	for i := range sorted {
		if sorted[i].end.Before(now) {
			latest = &sorted[i]
		}
	}
	if latest != nil {
		return latest.window(), true
	}
	return listed[0].window(), true
}

func (s span) window() Window {
	name := s.title
	if name == "" {
		name = s.start.Format(DateLayout)
	}
	return Window{Name: name, Start: s.start, End: s.end, Origin: OriginProject}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

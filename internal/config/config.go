package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	validLogLevels   = []string{"debug", "info", "warn", "error"}
	validLogFormats  = []string{"auto", "json", "console"}
	validBackends    = []string{"memory", "redis"}
	validRedisModes  = []string{"standalone", "sentinel"}
	defaultBotSuffix = "[bot]"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Iteration IterationConfig
	Identity  IdentityConfig
	Report    ReportConfig
	Publish   PublishConfig
	Schedule  ScheduleConfig
	Store     StoreConfig
	Git       GitConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server and logging settings.
type ServerConfig struct {
	ListenAddr    string
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// GitHubConfig configures GitHub API interactions for one organization.
type GitHubConfig struct {
	Org            string
	APIBaseURL     string
	GraphQLURL     string
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	RequestTimeout time.Duration
	RepoAllowlist  []string
	IncludeForks   bool
	// PerOrgConcurrency bounds repositories fetched at once.
	PerOrgConcurrency int
	PerRepoTimeout    time.Duration
	// BranchConcurrency bounds commit listings at once inside one repository.
	BranchConcurrency   int
	MaxCommitsPerBranch int
	FetchMemberProfiles bool
}

// UsesAppAuth reports whether GitHub App installation credentials are configured.
func (g GitHubConfig) UsesAppAuth() bool {
	return g.AppID > 0 || g.InstallationID > 0 || g.PrivateKeyPath != ""
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	MaxWait               time.Duration
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// IterationConfig configures how the reporting window is resolved.
type IterationConfig struct {
	// Name, Start and End pin the window explicitly. Start and End accept
	// YYYY-MM-DD or RFC 3339.
	Name     string
	Start    string
	End      string
	Timezone string
	// Length is the iteration length used to roll the schedule forward.
	Length                  time.Duration
	ProjectName             string
	LookupEnabled           bool
	FirstDayReportsPrevious bool
}

// Explicit reports whether an explicit window is configured.
func (i IterationConfig) Explicit() bool {
	return i.Start != "" && i.End != ""
}

// Location loads the configured timezone.
func (i IterationConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(i.Timezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// IdentityConfig configures contributor identity resolution.
type IdentityConfig struct {
	// Aliases maps alternate emails or display names to member logins.
	Aliases map[string]string
	// FullNames maps member logins to known full names.
	FullNames   map[string]string
	BotSuffixes []string
}

// ReportConfig configures report contents.
type ReportConfig struct {
	ExcludeUsers             []string
	ExcludeAuthenticatedUser bool
}

// PublishConfig configures where report artifacts are written.
type PublishConfig struct {
	ReportsDir string
	DocsDir    string
	HTML       bool
	IndexFile  string
}

// ScheduleConfig configures the iteration schedule state and check loop.
type ScheduleConfig struct {
	Enabled       bool
	File          string
	CheckInterval time.Duration
	StartupDelay  time.Duration
}

// StoreConfig configures run lock and run metric storage.
type StoreConfig struct {
	Backend            string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	KeyPrefix          string
	LockTTL            time.Duration
}

// GitConfig configures committing published artifacts.
type GitConfig struct {
	Enabled     bool
	Dir         string
	Remote      string
	Branch      string
	Push        bool
	AuthorName  string
	AuthorEmail string
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from YAML, applies process environment
// overrides and validates the result.
func Load(reader io.Reader) (*Config, error) {
	return LoadWithEnv(reader, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(reader io.Reader, lookup LookupFunc) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	if lookup != nil {
		applyEnv(cfg, lookup)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if !slices.Contains(validLogFormats, c.Server.LogFormat) {
		errs = append(errs, "server.log_format must be one of auto|json|console")
	}

	if strings.TrimSpace(c.GitHub.Org) == "" {
		errs = append(errs, "github.org is required (or GITHUB_ORG_NAME)")
	}
	if c.GitHub.UsesAppAuth() {
		if c.GitHub.AppID <= 0 {
			errs = append(errs, "github.app_id must be > 0")
		}
		if c.GitHub.InstallationID <= 0 {
			errs = append(errs, "github.installation_id must be > 0")
		}
		if c.GitHub.PrivateKeyPath == "" {
			errs = append(errs, "github.private_key_path is required")
		}
	} else if strings.TrimSpace(c.GitHub.Token) == "" {
		errs = append(errs, "github.token (or GITHUB_TOKEN) or github app credentials are required")
	}
	if c.GitHub.PerOrgConcurrency <= 0 {
		errs = append(errs, "github.per_org_concurrency must be > 0")
	}
	if c.GitHub.BranchConcurrency <= 0 {
		errs = append(errs, "github.branch_concurrency must be > 0")
	}
	if c.GitHub.PerRepoTimeout <= 0 {
		errs = append(errs, "github.per_repo_timeout must be > 0")
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}

	if (c.Iteration.Start == "") != (c.Iteration.End == "") {
		errs = append(errs, "iteration.start and iteration.end must be set together")
	}
	if _, err := c.Iteration.Location(); err != nil {
		errs = append(errs, "iteration.timezone is invalid: "+err.Error())
	}
	if c.Iteration.Length <= 0 {
		errs = append(errs, "iteration.length must be > 0")
	}

	for alias, login := range c.Identity.Aliases {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(login) == "" {
			errs = append(errs, "identity.aliases entries must have a non-empty alias and login")
			break
		}
	}

	if strings.TrimSpace(c.Publish.ReportsDir) == "" {
		errs = append(errs, "publish.reports_dir is required")
	}
	if c.Publish.HTML && strings.TrimSpace(c.Publish.DocsDir) == "" {
		errs = append(errs, "publish.docs_dir is required when publish.html=true")
	}

	if strings.TrimSpace(c.Schedule.File) == "" {
		errs = append(errs, "schedule.file is required")
	}
	if c.Schedule.CheckInterval <= 0 {
		errs = append(errs, "schedule.check_interval must be > 0")
	}

	if !slices.Contains(validBackends, c.Store.Backend) {
		errs = append(errs, "store.backend must be memory or redis")
	}
	if !slices.Contains(validRedisModes, c.Store.RedisMode) {
		errs = append(errs, "store.redis_mode must be standalone or sentinel")
	}
	if c.Store.Backend == "redis" && c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
		errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
	}
	if c.Store.Backend == "redis" && c.Store.RedisMode == "standalone" && c.Store.RedisAddr == "" {
		errs = append(errs, "store.redis_addr is required when store.backend=redis")
	}
	if c.Store.LockTTL <= 0 {
		errs = append(errs, "store.lock_ttl must be > 0")
	}

	if c.Git.Enabled && c.Git.Push && strings.TrimSpace(c.Git.Remote) == "" {
		errs = append(errs, "git.remote is required when git.push=true")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) {
	override := func(target *string, key string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}

	override(&cfg.GitHub.Token, "GITHUB_TOKEN")
	override(&cfg.GitHub.Org, "GITHUB_ORG_NAME")
	override(&cfg.Iteration.Start, "GITHUB_ITERATION_START")
	override(&cfg.Iteration.End, "GITHUB_ITERATION_END")
	override(&cfg.Iteration.Name, "GITHUB_ITERATION_NAME")
	override(&cfg.Iteration.Timezone, "REPORT_TIMEZONE")
	override(&cfg.Store.RedisPassword, "REDIS_PASSWORD")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "auto"
	}
	if cfg.Server.LogMaxSizeMB <= 0 {
		cfg.Server.LogMaxSizeMB = 100
	}

	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.PerOrgConcurrency == 0 {
		cfg.GitHub.PerOrgConcurrency = 4
	}
	if cfg.GitHub.BranchConcurrency == 0 {
		cfg.GitHub.BranchConcurrency = 4
	}
	if cfg.GitHub.PerRepoTimeout == 0 {
		cfg.GitHub.PerRepoTimeout = 5 * time.Minute
	}
	if len(cfg.GitHub.RepoAllowlist) == 0 {
		cfg.GitHub.RepoAllowlist = []string{"*"}
	}

	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 100
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 10 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.RateLimit.MaxWait == 0 {
		cfg.RateLimit.MaxWait = 15 * time.Minute
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}

	if cfg.Iteration.Timezone == "" {
		cfg.Iteration.Timezone = "UTC"
	}
	if cfg.Iteration.Length == 0 {
		cfg.Iteration.Length = 14 * 24 * time.Hour
	}

	if len(cfg.Identity.BotSuffixes) == 0 {
		cfg.Identity.BotSuffixes = []string{defaultBotSuffix}
	}

	if cfg.Publish.ReportsDir == "" {
		cfg.Publish.ReportsDir = "reports"
	}
	if cfg.Publish.DocsDir == "" {
		cfg.Publish.DocsDir = "docs"
	}
	if cfg.Publish.IndexFile == "" {
		cfg.Publish.IndexFile = "reports.json"
	}

	if cfg.Schedule.File == "" {
		cfg.Schedule.File = ".github/iteration-schedule.yml"
	}
	if cfg.Schedule.CheckInterval == 0 {
		cfg.Schedule.CheckInterval = time.Hour
	}
	if cfg.Schedule.StartupDelay == 0 {
		cfg.Schedule.StartupDelay = 10 * time.Second
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "iteration-report"
	}
	if cfg.Store.LockTTL == 0 {
		cfg.Store.LockTTL = 30 * time.Minute
	}

	if cfg.Git.Dir == "" {
		cfg.Git.Dir = "."
	}
	if cfg.Git.Remote == "" {
		cfg.Git.Remote = "origin"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Iteration rawIteration `yaml:"iteration"`
	Identity  rawIdentity  `yaml:"identity"`
	Report    rawReport    `yaml:"report"`
	Publish   rawPublish   `yaml:"publish"`
	Schedule  rawSchedule  `yaml:"schedule"`
	Store     rawStore     `yaml:"store"`
	Git       rawGit       `yaml:"git"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr    string `yaml:"listen_addr"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

type rawGitHub struct {
	Org                 string   `yaml:"org"`
	APIBaseURL          string   `yaml:"api_base_url"`
	GraphQLURL          string   `yaml:"graphql_url"`
	Token               string   `yaml:"token"`
	AppID               int64    `yaml:"app_id"`
	InstallationID      int64    `yaml:"installation_id"`
	PrivateKeyPath      string   `yaml:"private_key_path"`
	RequestTimeout      duration `yaml:"request_timeout"`
	RepoAllowlist       []string `yaml:"repo_allowlist"`
	IncludeForks        bool     `yaml:"include_forks"`
	PerOrgConcurrency   int      `yaml:"per_org_concurrency"`
	PerRepoTimeout      duration `yaml:"per_repo_timeout"`
	BranchConcurrency   int      `yaml:"branch_concurrency"`
	MaxCommitsPerBranch int      `yaml:"max_commits_per_branch"`
	FetchMemberProfiles *bool    `yaml:"fetch_member_profiles"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
	MaxWait               duration `yaml:"max_wait"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawIteration struct {
	Name                    string   `yaml:"name"`
	Start                   string   `yaml:"start"`
	End                     string   `yaml:"end"`
	Timezone                string   `yaml:"timezone"`
	Length                  duration `yaml:"length"`
	ProjectName             string   `yaml:"project_name"`
	LookupEnabled           *bool    `yaml:"lookup_enabled"`
	FirstDayReportsPrevious *bool    `yaml:"first_day_reports_previous"`
}

type rawIdentity struct {
	Aliases     map[string]string `yaml:"aliases"`
	FullNames   map[string]string `yaml:"full_names"`
	BotSuffixes []string          `yaml:"bot_suffixes"`
}

type rawReport struct {
	ExcludeUsers             []string `yaml:"exclude_users"`
	ExcludeAuthenticatedUser *bool    `yaml:"exclude_authenticated_user"`
}

type rawPublish struct {
	ReportsDir string `yaml:"reports_dir"`
	DocsDir    string `yaml:"docs_dir"`
	HTML       *bool  `yaml:"html"`
	IndexFile  string `yaml:"index_file"`
}

type rawSchedule struct {
	Enabled       *bool    `yaml:"enabled"`
	File          string   `yaml:"file"`
	CheckInterval duration `yaml:"check_interval"`
	StartupDelay  duration `yaml:"startup_delay"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	KeyPrefix          string   `yaml:"key_prefix"`
	LockTTL            duration `yaml:"lock_ttl"`
}

type rawGit struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Remote      string `yaml:"remote"`
	Branch      string `yaml:"branch"`
	Push        bool   `yaml:"push"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig(r.Server),
		GitHub: GitHubConfig{
			Org:                 strings.TrimSpace(r.GitHub.Org),
			APIBaseURL:          r.GitHub.APIBaseURL,
			GraphQLURL:          r.GitHub.GraphQLURL,
			Token:               r.GitHub.Token,
			AppID:               r.GitHub.AppID,
			InstallationID:      r.GitHub.InstallationID,
			PrivateKeyPath:      r.GitHub.PrivateKeyPath,
			RequestTimeout:      r.GitHub.RequestTimeout.Duration,
			RepoAllowlist:       r.GitHub.RepoAllowlist,
			IncludeForks:        r.GitHub.IncludeForks,
			PerOrgConcurrency:   r.GitHub.PerOrgConcurrency,
			PerRepoTimeout:      r.GitHub.PerRepoTimeout.Duration,
			BranchConcurrency:   r.GitHub.BranchConcurrency,
			MaxCommitsPerBranch: r.GitHub.MaxCommitsPerBranch,
			FetchMemberProfiles: boolOr(r.GitHub.FetchMemberProfiles, true),
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
			MaxWait:               r.RateLimit.MaxWait.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Iteration: IterationConfig{
			Name:                    strings.TrimSpace(r.Iteration.Name),
			Start:                   strings.TrimSpace(r.Iteration.Start),
			End:                     strings.TrimSpace(r.Iteration.End),
			Timezone:                strings.TrimSpace(r.Iteration.Timezone),
			Length:                  r.Iteration.Length.Duration,
			ProjectName:             strings.TrimSpace(r.Iteration.ProjectName),
			LookupEnabled:           boolOr(r.Iteration.LookupEnabled, true),
			FirstDayReportsPrevious: boolOr(r.Iteration.FirstDayReportsPrevious, true),
		},
		Identity: IdentityConfig{
			Aliases:     r.Identity.Aliases,
			FullNames:   r.Identity.FullNames,
			BotSuffixes: r.Identity.BotSuffixes,
		},
		Report: ReportConfig{
			ExcludeUsers:             r.Report.ExcludeUsers,
			ExcludeAuthenticatedUser: boolOr(r.Report.ExcludeAuthenticatedUser, true),
		},
		Publish: PublishConfig{
			ReportsDir: r.Publish.ReportsDir,
			DocsDir:    r.Publish.DocsDir,
			HTML:       boolOr(r.Publish.HTML, true),
			IndexFile:  r.Publish.IndexFile,
		},
		Schedule: ScheduleConfig{
			Enabled:       boolOr(r.Schedule.Enabled, true),
			File:          r.Schedule.File,
			CheckInterval: r.Schedule.CheckInterval.Duration,
			StartupDelay:  r.Schedule.StartupDelay.Duration,
		},
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
			KeyPrefix:          r.Store.KeyPrefix,
			LockTTL:            r.Store.LockTTL.Duration,
		},
		Git: GitConfig(r.Git),
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}

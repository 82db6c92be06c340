// Package gitops commits published report artifacts to a git working copy.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Commander runs one git command in dir and returns its combined output.
type Commander interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecCommander runs the git binary found on PATH.
type ExecCommander struct {
	Binary string
}

// Run executes git with args in dir.
func (e ExecCommander) Run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := e.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// Config configures the committer.
type Config struct {
	Dir         string
	Remote      string
	Branch      string
	Push        bool
	AuthorName  string
	AuthorEmail string
}

// Committer stages, commits and optionally pushes artifacts.
type Committer struct {
	cfg    Config
	runner Commander
	logger *zap.Logger
}

// NewCommitter creates a committer. runner defaults to ExecCommander.
func NewCommitter(cfg Config, runner Commander, logger *zap.Logger) (*Committer, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("git working directory is required")
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if runner == nil {
		runner = ExecCommander{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{cfg: cfg, runner: runner, logger: logger}, nil
}

// Commit stages paths and commits them with message. A tree with nothing
// staged after add is not an error and produces no commit.
func (c *Committer) Commit(ctx context.Context, message string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	rel := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		relPath, err := filepath.Rel(c.cfg.Dir, path)
		if err != nil || strings.HasPrefix(relPath, "..") {
			return fmt.Errorf("path %q is outside git directory %q", path, c.cfg.Dir)
		}
		rel = append(rel, relPath)
	}

	addArgs := append([]string{"add", "--"}, rel...)
	if _, err := c.runner.Run(ctx, c.cfg.Dir, addArgs...); err != nil {
		return err
	}

	status, err := c.runner.Run(ctx, c.cfg.Dir, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		c.logger.Info("git tree clean; nothing to commit", zap.String("dir", c.cfg.Dir))
		return nil
	}

	commitArgs := make([]string, 0, 8)
	if c.cfg.AuthorName != "" {
		commitArgs = append(commitArgs, "-c", "user.name="+c.cfg.AuthorName)
	}
	if c.cfg.AuthorEmail != "" {
		commitArgs = append(commitArgs, "-c", "user.email="+c.cfg.AuthorEmail)
	}
	commitArgs = append(commitArgs, "commit", "-m", message)
	if _, err := c.runner.Run(ctx, c.cfg.Dir, commitArgs...); err != nil {
		return err
	}

	if !c.cfg.Push {
		c.logger.Info("committed report artifacts", zap.Strings("paths", rel))
		return nil
	}
	pushArgs := []string{"push", c.cfg.Remote}
	if c.cfg.Branch != "" {
		pushArgs = append(pushArgs, "HEAD:"+c.cfg.Branch)
	}
	if _, err := c.runner.Run(ctx, c.cfg.Dir, pushArgs...); err != nil {
		return err
	}
	c.logger.Info("committed and pushed report artifacts", zap.Strings("paths", rel), zap.String("remote", c.cfg.Remote))
	return nil
}

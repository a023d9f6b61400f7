// Package gitsource shells out to git for branch diffs and file content
// at a revision. It never mutates the repository.
package gitsource

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Repo is a handle on a local git repository.
type Repo struct {
	root string
}

// Open locates the repository containing dir and returns a handle rooted
// at its top level.
func Open(ctx context.Context, dir string) (*Repo, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s is not inside a git repository: %w", dir, err)
	}
	root, err := filepath.Abs(strings.TrimSpace(out))
	if err != nil {
		return nil, err
	}
	return &Repo{root: root}, nil
}

// Root returns the absolute path of the repository's top level.
func (r *Repo) Root() string {
	return r.root
}

// Diff returns the unified diff of changes on head since it diverged from
// base, using git's three-dot notation so commits that landed on base
// after the branch point are not attributed to the branch.
func (r *Repo) Diff(ctx context.Context, base, head string) (string, error) {
	log.Debug().Str("base", base).Str("head", head).Msg("collecting branch diff")
	out, err := r.run(ctx, "diff", "--no-color", "--no-ext-diff", base+"..."+head)
	if err != nil {
		return "", fmt.Errorf("diff %s...%s: %w", base, head, err)
	}
	return out, nil
}

// FileText returns the content of path at ref. An empty ref reads the
// working tree instead.
func (r *Repo) FileText(ctx context.Context, ref, path string) (string, error) {
	if ref == "" {
		data, err := os.ReadFile(filepath.Join(r.root, path))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}
	out, err := r.run(ctx, "show", ref+":"+path)
	if err != nil {
		return "", fmt.Errorf("show %s at %s: %w", path, ref, err)
	}
	return out, nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return runGit(ctx, r.root, args...)
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

package git

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// add stages files for commit.
func (g *Git) add(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add"}, paths...)
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}

	return nil
}

// Commit stages the given paths and creates a commit, returning the
// short hash of the new commit. Footers are emitted as git trailers
// after a blank line, keys sorted for stable messages.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if err := g.add(ctx, opts.Paths); err != nil {
		return "", err
	}

	message := opts.Message
	if len(opts.Footers) > 0 {
		keys := make([]string, 0, len(opts.Footers))
		for k := range opts.Footers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(message)
		b.WriteString("\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, opts.Footers[k])
		}
		message = b.String()
	}

	args := []string{"commit", "-m", message}

	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}

	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	// -- ensures paths are treated as paths
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	if _, err := g.run(ctx, args...); err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}

	return g.HeadCommit(ctx)
}

package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/watercoolerhq/watercooler/internal/vcs"
)

// setupTestRepo creates a temporary git repository for testing
func setupTestRepo(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	// Configure git user for commits
	exec.Command("git", "-C", tmpDir, "config", "user.name", "Test User").Run()
	exec.Command("git", "-C", tmpDir, "config", "user.email", "test@example.com").Run()

	return tmpDir
}

// commitFile writes and commits a file in the given repository.
func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	if err := exec.Command("git", "-C", dir, "add", name).Run(); err != nil {
		t.Fatalf("failed to add %s: %v", name, err)
	}
	if err := exec.Command("git", "-C", dir, "commit", "-m", message).Run(); err != nil {
		t.Fatalf("failed to commit %s: %v", name, err)
	}
}

// setupClonePair creates a bare "origin" and two clones pushing to it.
func setupClonePair(t *testing.T) (bare, cloneA, cloneB string) {
	t.Helper()

	tmpDir := t.TempDir()
	bare = filepath.Join(tmpDir, "origin.git")
	if err := exec.Command("git", "init", "--bare", "-b", "main", bare).Run(); err != nil {
		t.Fatalf("failed to init bare repo: %v", err)
	}

	seed := setupTestRepo(t)
	commitFile(t, seed, "seed.txt", "seed", "initial commit")
	if err := exec.Command("git", "-C", seed, "remote", "add", "origin", bare).Run(); err != nil {
		t.Fatalf("failed to add remote: %v", err)
	}
	if err := exec.Command("git", "-C", seed, "push", "-u", "origin", "main").Run(); err != nil {
		t.Fatalf("failed to seed origin: %v", err)
	}

	for i, clone := range []*string{&cloneA, &cloneB} {
		dir := filepath.Join(tmpDir, "clone"+string(rune('A'+i)))
		if err := exec.Command("git", "clone", bare, dir).Run(); err != nil {
			t.Fatalf("failed to clone: %v", err)
		}
		exec.Command("git", "-C", dir, "config", "user.name", "Test User").Run()
		exec.Command("git", "-C", dir, "config", "user.email", "test@example.com").Run()
		*clone = dir
	}

	return bare, cloneA, cloneB
}

func TestNew(t *testing.T) {
	repoPath := setupTestRepo(t)

	g, err := New(repoPath, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if g.Root() == "" {
		t.Error("Root() returned empty string")
	}
}

func TestNewNotARepo(t *testing.T) {
	_, err := New(t.TempDir(), Options{})
	if err != vcs.ErrNotARepo {
		t.Errorf("New() in non-repo: got %v, want ErrNotARepo", err)
	}
}

func TestNewTimeoutBounded(t *testing.T) {
	// A git binary that never answers must not hang New: repository
	// discovery is bounded by the same timeout as every other command.
	binDir := t.TempDir()
	hungGit := filepath.Join(binDir, "git")
	// Resolve sleep before PATH is restricted to binDir below, so the
	// stub still hangs rather than failing with "sleep: not found".
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hungGit, []byte("#!/bin/sh\nexec "+sleepPath+" 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir)

	start := time.Now()
	_, err = New(t.TempDir(), Options{Timeout: 100 * time.Millisecond})
	if !errors.Is(err, vcs.ErrTimeout) {
		t.Fatalf("New() with hung git: got %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("New() returned after %s, not bounded by the timeout", elapsed)
	}
}

func TestCurrentBranch(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a", "first")

	g, err := New(repoPath, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch() failed: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch() = %q, want main", branch)
	}
}

func TestCurrentBranchDetached(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a", "first")
	commitFile(t, repoPath, "b.txt", "b", "second")

	if err := exec.Command("git", "-C", repoPath, "checkout", "HEAD~1").Run(); err != nil {
		t.Fatalf("failed to detach HEAD: %v", err)
	}

	g, err := New(repoPath, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	branch, err := g.CurrentBranch(context.Background())
	if err != nil {
		t.Fatalf("CurrentBranch() on detached HEAD failed: %v", err)
	}
	if branch != "" {
		t.Errorf("CurrentBranch() = %q, want empty for detached HEAD", branch)
	}

	st, err := g.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if !st.DetachedHead {
		t.Error("Status().DetachedHead = false, want true")
	}
}

func TestCheckoutCreate(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a", "first")

	g, err := New(repoPath, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()

	exists, _ := g.BranchExists(ctx, "feature-x")
	if exists {
		t.Fatal("BranchExists(feature-x) = true before creation")
	}

	if err := g.Checkout(ctx, "feature-x", false); err == nil {
		t.Error("Checkout(create=false) of missing branch succeeded, want error")
	}

	if err := g.Checkout(ctx, "feature-x", true); err != nil {
		t.Fatalf("Checkout(create=true) failed: %v", err)
	}

	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch() failed: %v", err)
	}
	if branch != "feature-x" {
		t.Errorf("CurrentBranch() = %q, want feature-x", branch)
	}
}

func TestCommitWithFooters(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a", "first")

	g, err := New(repoPath, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(repoPath, "topic.md"), []byte("hello"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	hash, err := g.Commit(ctx, vcs.CommitOptions{
		Message: "watercooler: append entry to auth-design",
		Paths:   []string{"topic.md"},
		Footers: map[string]string{
			"Watercooler-Entry-ID": "01JFXAMPLE0000000000000000",
			"Watercooler-Topic":    "auth-design",
			"Code-Branch":          "feature-auth",
		},
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if hash == "" {
		t.Error("Commit() returned empty hash")
	}

	out, err := exec.Command("git", "-C", repoPath, "log", "-1", "--format=%B").Output()
	if err != nil {
		t.Fatalf("git log failed: %v", err)
	}

	body := string(out)
	for _, want := range []string{
		"Watercooler-Entry-ID: 01JFXAMPLE0000000000000000",
		"Watercooler-Topic: auth-design",
		"Code-Branch: feature-auth",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("commit message missing footer %q\ngot:\n%s", want, body)
		}
	}
}

func TestAheadBehind(t *testing.T) {
	_, cloneA, cloneB := setupClonePair(t)

	// Push one commit from A, leave B behind
	commitFile(t, cloneA, "a.txt", "a", "from A")
	if err := exec.Command("git", "-C", cloneA, "push", "origin", "main").Run(); err != nil {
		t.Fatalf("push from A failed: %v", err)
	}

	gb, err := New(cloneB, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	commitFile(t, cloneB, "b.txt", "b", "from B")

	if err := gb.Fetch(ctx, "origin"); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	ab, err := gb.AheadBehind(ctx, "origin", "main")
	if err != nil {
		t.Fatalf("AheadBehind() failed: %v", err)
	}
	if ab.Ahead != 1 || ab.Behind != 1 {
		t.Errorf("AheadBehind() = %+v, want ahead=1 behind=1", ab)
	}
	if !ab.Diverged() {
		t.Error("Diverged() = false, want true")
	}
}

func TestPushRejectedClassification(t *testing.T) {
	_, cloneA, cloneB := setupClonePair(t)

	commitFile(t, cloneA, "a.txt", "a", "from A")
	if err := exec.Command("git", "-C", cloneA, "push", "origin", "main").Run(); err != nil {
		t.Fatalf("push from A failed: %v", err)
	}

	commitFile(t, cloneB, "b.txt", "b", "from B")

	gb, err := New(cloneB, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	err = gb.Push(ctx, vcs.PushOptions{Branch: "main"})
	if !vcsErrIs(err, vcs.ErrPushRejected) {
		t.Fatalf("Push() after remote advance: got %v, want ErrPushRejected", err)
	}
	if !vcs.IsRetryable(err) {
		t.Error("IsRetryable(push rejection) = false, want true")
	}

	// Rebase resolves the rejection without rewriting remote history
	if err := gb.PullRebase(ctx, vcs.PullRebaseOptions{Branch: "main"}); err != nil {
		t.Fatalf("PullRebase() failed: %v", err)
	}
	if err := gb.Push(ctx, vcs.PushOptions{Branch: "main"}); err != nil {
		t.Fatalf("Push() after rebase failed: %v", err)
	}
}

func TestPullRebaseConflict(t *testing.T) {
	_, cloneA, cloneB := setupClonePair(t)

	commitFile(t, cloneA, "same.txt", "version A", "from A")
	if err := exec.Command("git", "-C", cloneA, "push", "origin", "main").Run(); err != nil {
		t.Fatalf("push from A failed: %v", err)
	}

	commitFile(t, cloneB, "same.txt", "version B", "from B")

	gb, err := New(cloneB, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	err = gb.PullRebase(ctx, vcs.PullRebaseOptions{Branch: "main"})
	if !vcsErrIs(err, vcs.ErrRebaseConflict) {
		t.Fatalf("PullRebase() with conflicting change: got %v, want ErrRebaseConflict", err)
	}

	st, err := gb.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if !st.RebaseInProgress {
		t.Error("Status().RebaseInProgress = false after conflict, want true")
	}

	// Abort so TempDir cleanup isn't racing an in-progress rebase
	exec.Command("git", "-C", cloneB, "rebase", "--abort").Run()
}

func TestHasChanges(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a", "first")

	g, err := New(repoPath, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	dirty, err := g.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges() failed: %v", err)
	}
	if dirty {
		t.Error("HasChanges() = true on clean tree")
	}

	if err := os.WriteFile(filepath.Join(repoPath, "a.txt"), []byte("changed"), 0644); err != nil {
		t.Fatalf("failed to modify file: %v", err)
	}

	dirty, err = g.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges() failed: %v", err)
	}
	if !dirty {
		t.Error("HasChanges() = false on dirty tree")
	}
}

// vcsErrIs is a small wrapper so test intent reads clearly.
func vcsErrIs(err, target error) bool {
	return errors.Is(err, target)
}

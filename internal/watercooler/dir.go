// Package watercooler locates the .watercooler directory and the paths
// derived from it.
package watercooler

import (
	"os"
	"path/filepath"
)

// DirName is the per-repo directory holding watercooler configuration
// (in the code repo) and local runtime state (in the threads repo).
const DirName = ".watercooler"

// FindDir walks up from startDir looking for a .watercooler directory.
// Returns "" if none is found before the filesystem root.
func FindDir(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Layout computes the runtime paths inside a threads clone. Everything
// under StateDir is local, git-ignored state.
type Layout struct {
	// ThreadsRoot is the threads clone root.
	ThreadsRoot string

	// TopicsDir is the directory of thread files.
	TopicsDir string

	// StateDir is <threads>/.watercooler.
	StateDir string

	// LocksDir holds per-topic lock files.
	LocksDir string

	// ParityFile is the persisted parity record.
	ParityFile string

	// IndexFile is the SQLite thread index cache.
	IndexFile string

	// RepoLockFile is the coarse flock serializing threads-repo
	// mutations across processes.
	RepoLockFile string

	// LogDir holds the rotating daemon log.
	LogDir string
}

// NewLayout derives the runtime layout for a threads clone.
func NewLayout(threadsRoot, topicsDir string) Layout {
	stateDir := filepath.Join(threadsRoot, DirName)
	return Layout{
		ThreadsRoot:  threadsRoot,
		TopicsDir:    filepath.Join(threadsRoot, topicsDir),
		StateDir:     stateDir,
		LocksDir:     filepath.Join(stateDir, "locks"),
		ParityFile:   filepath.Join(stateDir, "parity.json"),
		IndexFile:    filepath.Join(stateDir, "index.db"),
		RepoLockFile: filepath.Join(stateDir, "repo.lock"),
		LogDir:       filepath.Join(stateDir, "log"),
	}
}

// EnsureStateDirs creates the local state directories and drops a
// gitignore so runtime state never lands in the threads history.
func (l Layout) EnsureStateDirs() error {
	for _, dir := range []string{l.StateDir, l.LocksDir, l.LogDir, l.TopicsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	// Ignore everything under .watercooler inside the threads clone.
	gitignore := filepath.Join(l.StateDir, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		return os.WriteFile(gitignore, []byte("*\n"), 0o644)
	}
	return nil
}

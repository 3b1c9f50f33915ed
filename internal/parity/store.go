package parity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the on-disk mirror of the most recent parity evaluation.
// It is a git-ignored diagnostic cache: health reporting reads it to
// avoid re-running git introspection, but no correctness decision ever
// consumes it.
type Record struct {
	Status        Status    `json:"status"`
	LastCheckAt   time.Time `json:"last_check_at"`
	CodeBranch    string    `json:"code_branch"`
	ThreadsBranch string    `json:"threads_branch"`
	ActionsTaken  []string  `json:"actions_taken"`
	PendingPush   bool      `json:"pending_push"`
	LastError     *string   `json:"last_error"`
}

// Store persists parity records with atomic replace semantics.
// Concurrent writers race benignly: last writer wins, which is
// acceptable for purely advisory state.
type Store struct {
	// Path is the record file, typically
	// <threads>/.watercooler/parity.json.
	Path string
}

// Write atomically replaces the record with the given state.
func (s *Store) Write(st State) error {
	rec := Record{
		Status:        st.Status,
		LastCheckAt:   time.Now().UTC(),
		CodeBranch:    st.CodeBranch,
		ThreadsBranch: st.ThreadsBranch,
		ActionsTaken:  st.ActionsTaken,
		PendingPush:   st.Status == StatusPendingPush || st.Ahead > 0,
	}
	if rec.ActionsTaken == nil {
		rec.ActionsTaken = []string{}
	}
	if st.LastError != "" {
		rec.LastError = &st.LastError
	}

	return s.write(rec)
}

// WritePendingPush updates only the pending-push flag after a push
// attempt, preserving the rest of the last record. The synchronous push
// path calls this after every attempt, success or failure.
func (s *Store) WritePendingPush(pending bool, pushErr error) error {
	rec, err := s.Read()
	if err != nil {
		rec = &Record{Status: StatusClean}
	}

	rec.LastCheckAt = time.Now().UTC()
	rec.PendingPush = pending
	if pushErr != nil {
		msg := pushErr.Error()
		rec.LastError = &msg
		rec.Status = StatusPendingPush
	} else if rec.Status == StatusPendingPush {
		rec.Status = StatusClean
		rec.LastError = nil
	}
	if rec.ActionsTaken == nil {
		rec.ActionsTaken = []string{}
	}

	return s.write(rec)
}

func (s *Store) write(rec any) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding parity record: %w", err)
	}
	data = append(data, '\n')

	// Write-temp-then-rename so readers never observe a torn record.
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".parity-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp record: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing parity record: %w", err)
	}

	return nil
}

// Read loads the persisted record. Callers treat a missing or corrupt
// file as "no record" and fall back to live evaluation.
func (s *Store) Read() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing parity record: %w", err)
	}

	return &rec, nil
}

package thread

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Thread status values in the header.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Header is the YAML front matter of a thread file.
type Header struct {
	Topic     string    `yaml:"topic"`
	Status    string    `yaml:"status"`
	Ball      string    `yaml:"ball,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// File is a parsed thread file. Parsing extracts only what
// synchronization needs: the header fields and the entry footers; the
// body stays opaque text.
type File struct {
	Header Header

	// EntryIDs are the idempotency keys found in entry footers, in
	// file order.
	EntryIDs []string

	// body is everything after the closing front-matter delimiter,
	// preserved verbatim on rewrite.
	body string
}

const (
	headerDelim       = "---"
	entryFooterPrefix = "<!-- entry-id:"
)

var entryFooterRe = regexp.MustCompile(`(?m)^<!-- entry-id: (\S+) -->$`)

// Parse reads a thread file from disk.
func Parse(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(string(data))
}

func parse(content string) (*File, error) {
	rest, found := strings.CutPrefix(content, headerDelim+"\n")
	if !found {
		return nil, fmt.Errorf("thread file missing YAML header")
	}
	front, body, found := strings.Cut(rest, "\n"+headerDelim+"\n")
	if !found {
		return nil, fmt.Errorf("thread file header is not terminated")
	}

	f := &File{body: body}
	if err := yaml.Unmarshal([]byte(front), &f.Header); err != nil {
		return nil, fmt.Errorf("parsing thread header: %w", err)
	}

	for _, m := range entryFooterRe.FindAllStringSubmatch(body, -1) {
		f.EntryIDs = append(f.EntryIDs, m[1])
	}
	return f, nil
}

// HasEntry reports whether the idempotency key is already present.
func (f *File) HasEntry(id string) bool {
	for _, existing := range f.EntryIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// newFile builds a fresh thread file around the first entry.
func newFile(e Entry) *File {
	return &File{
		Header: Header{
			Topic:     e.Topic,
			Status:    StatusOpen,
			CreatedAt: e.Time,
			UpdatedAt: e.Time,
		},
	}
}

// apply appends the entry block and updates the header per the entry
// semantics. The caller has already checked HasEntry.
func (f *File) apply(e Entry) {
	f.Header.UpdatedAt = e.Time
	switch e.Type {
	case TypeResolve:
		f.Header.Status = StatusResolved
	case TypeReopen:
		f.Header.Status = StatusOpen
	}
	if e.Ball != "" {
		f.Header.Ball = e.Ball
	}

	f.body = strings.TrimRight(f.body, "\n")
	if f.body != "" {
		f.body += "\n"
	}
	f.body += "\n" + renderEntry(e)
	f.EntryIDs = append(f.EntryIDs, e.ID)
}

func renderEntry(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] %s (%s) — %s\n\n", e.Time.UTC().Format(time.RFC3339), e.Agent, e.Role, e.Type)
	body := strings.TrimRight(e.Body, "\n")
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s %s -->\n", entryFooterPrefix, e.ID)
	return b.String()
}

// render serializes the file back to its on-disk form.
func (f *File) render() ([]byte, error) {
	front, err := yaml.Marshal(&f.Header)
	if err != nil {
		return nil, fmt.Errorf("encoding thread header: %w", err)
	}

	var b strings.Builder
	b.WriteString(headerDelim + "\n")
	b.Write(front)
	b.WriteString(headerDelim + "\n")
	b.WriteString(f.body)
	if !strings.HasSuffix(f.body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// writeTo atomically replaces the thread file.
func (f *File) writeTo(path string) error {
	data, err := f.render()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating topics directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".thread-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp thread file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp thread file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp thread file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing thread file: %w", err)
	}
	return nil
}

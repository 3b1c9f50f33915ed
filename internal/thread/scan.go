package thread

import (
	"regexp"
	"strings"
	"time"
)

var entryHeadingRe = regexp.MustCompile(`^## \[([^\]]+)\] (.+?) \((.*?)\) — (\S+)$`)

// Entries parses the full entry blocks out of the body. The appender
// never needs this; it exists for the index cache and read surfaces.
// Malformed blocks are skipped rather than failing the whole file.
func (f *File) Entries() []Entry {
	var entries []Entry
	var current *Entry
	var body []string

	flush := func() {
		current = nil
		body = body[:0]
	}

	for _, line := range strings.Split(f.body, "\n") {
		if m := entryHeadingRe.FindStringSubmatch(line); m != nil {
			// Heading without a footer: the previous block was
			// malformed, drop it.
			flush()
			ts, err := time.Parse(time.RFC3339, m[1])
			if err != nil {
				continue
			}
			current = &Entry{
				Topic: f.Header.Topic,
				Agent: m[2],
				Role:  m[3],
				Type:  EntryType(m[4]),
				Time:  ts,
			}
			continue
		}

		if current == nil {
			continue
		}

		if m := entryFooterRe.FindStringSubmatch(line); m != nil {
			current.ID = m[1]
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			entries = append(entries, *current)
			flush()
			continue
		}

		body = append(body, line)
	}

	return entries
}

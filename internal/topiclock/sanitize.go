package topiclock

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// safeKeyChars are the characters allowed verbatim in a lock-file key.
const safeKeyChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-"

// reservedKeys are names that collide with filesystem semantics even
// after character replacement.
var reservedKeys = map[string]bool{
	"":   true,
	".":  true,
	"..": true,
}

// SanitizeTopic maps a topic name to a filesystem-safe lock-file key.
//
// The mapping is pure and total: the same topic always yields the same
// key, and any string input yields a usable key. Path separators and
// other hostile characters are replaced with '-'; whenever any
// replacement (or truncation) happens, an 8-hex-digit hash of the
// original topic is appended so distinct topics cannot collide on the
// same munged key.
func SanitizeTopic(topic string) string {
	var b strings.Builder
	munged := false

	for _, r := range topic {
		if r < 128 && strings.ContainsRune(safeKeyChars, r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
			munged = true
		}
	}

	key := b.String()

	// Long topics are truncated to keep lock paths inside OS limits.
	const maxKeyLen = 100
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
		munged = true
	}

	if reservedKeys[key] || strings.Trim(key, ".-") == "" {
		key = "topic"
		munged = true
	}

	if munged {
		sum := sha256.Sum256([]byte(topic))
		key += "-" + hex.EncodeToString(sum[:4])
	}

	return key
}

package totp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultBackupCodeCount is the number of codes issued at setup
	DefaultBackupCodeCount = 8

	// backupCodeBytes is the entropy per code (4 bytes = 8 hex chars)
	backupCodeBytes = 4
)

// GenerateBackupCodes returns count independently generated one-time
// recovery codes in the human-transcribable form XXXX-XXXX.
func GenerateBackupCodes(count int) ([]string, error) {
	if count < 1 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		h := strings.ToUpper(hex.EncodeToString(raw))
		codes = append(codes, h[:4]+"-"+h[4:])
	}

	return codes, nil
}

// NormalizeCode canonicalizes user input: uppercase, whitespace and
// grouping dashes stripped.
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashForStorage returns the one-way hash of the normalized code. Only
// hashes are ever persisted.
func HashForStorage(code string) string {
	sum := sha256.Sum256([]byte(NormalizeCode(code)))
	return hex.EncodeToString(sum[:])
}

// ConsumeIfValid hashes the candidate and, if present in storedHashes,
// returns the set with that hash removed and true. Otherwise the set is
// returned unchanged with false. The caller is responsible for persisting
// the reduced set atomically.
func ConsumeIfValid(storedHashes []string, candidate string) ([]string, bool) {
	target := HashForStorage(candidate)

	for i, h := range storedHashes {
		if h == target {
			remaining := make([]string, 0, len(storedHashes)-1)
			remaining = append(remaining, storedHashes[:i]...)
			remaining = append(remaining, storedHashes[i+1:]...)
			return remaining, true
		}
	}

	return storedHashes, false
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
)

// Query is one incoming question. Immutable once created.
type Query struct {
	Raw        string
	Normalized string // lowercased, whitespace-collapsed, diacritics preserved
	SessionID  string
	ReceivedAt time.Time
}

// MaxQueryLen bounds accepted query length in runes.
const MaxQueryLen = 2000

// NewQuery validates and normalizes a raw query.
func NewQuery(raw, sessionID string, now time.Time) (Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Query{}, fmt.Errorf("empty query: %w", ErrValidation)
	}
	if len([]rune(trimmed)) > MaxQueryLen {
		return Query{}, fmt.Errorf("query exceeds %d characters: %w", MaxQueryLen, ErrValidation)
	}
	if strings.TrimSpace(sessionID) == "" {
		return Query{}, fmt.Errorf("empty session id: %w", ErrValidation)
	}
	return Query{
		Raw:        raw,
		Normalized: NormalizeText(trimmed),
		SessionID:  sessionID,
		ReceivedAt: now,
	}, nil
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	edgePunctRe = regexp.MustCompile(`^[^\p{L}\p{N}]+|[^\p{L}\p{N}]+$`)
)

// NormalizeText lowercases, collapses whitespace and strips leading and
// trailing punctuation. Diacritics are preserved.
func NormalizeText(s string) string {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = spaceRe.ReplaceAllString(normalized, " ")
	return edgePunctRe.ReplaceAllString(normalized, "")
}

// Fingerprint derives the deterministic cache key for a normalized query.
// Diacritics are folded first so accented and unaccented typing collide.
func Fingerprint(normalized string) string {
	h := sha256.Sum256([]byte(intent.Fold(normalized)))
	return hex.EncodeToString(h[:])
}

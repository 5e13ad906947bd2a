package llm

import "strings"

// Tier buckets a confidence score for logging and routing decisions.
type Tier string

const (
	TierVeryHigh Tier = "very_high"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
	TierVeryLow  Tier = "very_low"
)

// TierOf maps a confidence score onto its tier.
func TierOf(score float64) Tier {
	switch {
	case score >= 0.75:
		return TierVeryHigh
	case score >= 0.55:
		return TierHigh
	case score >= 0.35:
		return TierMedium
	case score >= 0.20:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Phrases that signal the model is hedging or has no answer. Checked
// against the folded lowercase answer.
var hedgePhrases = []string{
	"tôi không chắc",
	"không tìm thấy thông tin",
	"không có thông tin",
	"xin lỗi, tôi không",
	"i don't know",
	"i'm not sure",
	"i am not sure",
}

// ScoreAnswer assigns a heuristic confidence to a generated answer.
// grounded marks answers produced from retrieved context or completed
// tool runs, which are trusted more than free generation.
func ScoreAnswer(answer string, grounded bool) float64 {
	text := strings.ToLower(strings.TrimSpace(answer))
	if text == "" {
		return 0
	}

	score := 0.45
	if grounded {
		score += 0.30
	}
	switch {
	case len(text) >= 200:
		score += 0.15
	case len(text) >= 50:
		score += 0.10
	case len(text) < 15:
		score -= 0.15
	}
	for _, p := range hedgePhrases {
		if strings.Contains(text, p) {
			score -= 0.35
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

package llm

// EstimateTokens approximates the token count of a text. Four
// characters per token is a rough but stable estimate for the mixed
// Vietnamese/English traffic this service handles.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// TruncateMessages drops the oldest messages until the estimated token
// total fits the budget. The last message is always kept even when it
// alone exceeds the budget, so the current question is never lost.
// Truncation is deterministic: the same input and budget always yield
// the same suffix.
func TruncateMessages(msgs []Message, budget int) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	total := 0
	cut := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += EstimateTokens(msgs[i].Content)
		if total > budget && i != len(msgs)-1 {
			break
		}
		cut = i
		if total > budget {
			break
		}
	}
	return msgs[cut:]
}

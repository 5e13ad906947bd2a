package llm

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"exact", strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.in); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncateMessagesDropsOldestFirst(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: strings.Repeat("a", 400)},      // 100 tokens
		{Role: RoleAssistant, Content: strings.Repeat("b", 400)}, // 100 tokens
		{Role: RoleUser, Content: strings.Repeat("c", 400)},      // 100 tokens
	}

	got := TruncateMessages(msgs, 250)
	if len(got) != 2 {
		t.Fatalf("kept %d messages, want 2", len(got))
	}
	if got[0].Content[0] != 'b' || got[1].Content[0] != 'c' {
		t.Fatal("truncation should drop the oldest message")
	}
}

func TestTruncateMessagesKeepsLastMessage(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: strings.Repeat("a", 4000)},
	}
	got := TruncateMessages(msgs, 10)
	if len(got) != 1 {
		t.Fatal("last message must survive even when over budget")
	}
}

func TestTruncateMessagesDeterministic(t *testing.T) {
	msgs := []Message{
		{Content: strings.Repeat("a", 100)},
		{Content: strings.Repeat("b", 100)},
		{Content: strings.Repeat("c", 100)},
	}
	first := TruncateMessages(msgs, 40)
	second := TruncateMessages(msgs, 40)
	if len(first) != len(second) {
		t.Fatalf("truncation not deterministic: %d vs %d", len(first), len(second))
	}
}

package llm

import (
	"strings"
	"testing"
)

func TestTierOf(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{0.9, TierVeryHigh},
		{0.75, TierVeryHigh},
		{0.6, TierHigh},
		{0.4, TierMedium},
		{0.25, TierLow},
		{0.1, TierVeryLow},
	}
	for _, tt := range tests {
		if got := TierOf(tt.score); got != tt.want {
			t.Errorf("TierOf(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestScoreAnswerGroundedBeatsUngrounded(t *testing.T) {
	answer := strings.Repeat("Lịch thi học kỳ 1 bắt đầu từ ngày 15 tháng 12. ", 5)
	grounded := ScoreAnswer(answer, true)
	free := ScoreAnswer(answer, false)
	if grounded <= free {
		t.Fatalf("grounded score %v should exceed ungrounded %v", grounded, free)
	}
	if grounded < 0.6 {
		t.Fatalf("grounded long answer scored %v, expected cacheable (>= 0.6)", grounded)
	}
}

func TestScoreAnswerHedgePenalty(t *testing.T) {
	hedged := ScoreAnswer("Xin lỗi, tôi không tìm thấy thông tin về lịch thi của bạn trong tài liệu.", true)
	confident := ScoreAnswer("Lịch thi học kỳ 1 bắt đầu từ ngày 15 tháng 12 theo thông báo của phòng đào tạo.", true)
	if hedged >= confident {
		t.Fatalf("hedged answer %v should score below confident answer %v", hedged, confident)
	}
}

func TestScoreAnswerEmpty(t *testing.T) {
	if got := ScoreAnswer("   ", true); got != 0 {
		t.Fatalf("blank answer scored %v, want 0", got)
	}
}

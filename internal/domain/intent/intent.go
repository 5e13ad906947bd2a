// Package intent classifies normalized queries into coarse intent
// classes that drive routing and cache scoping.
package intent

import "strings"

// Intent is a coarse query class.
type Intent string

const (
	// Greeting is small talk that gets a canned response.
	Greeting Intent = "greeting"
	// Personal asks about the caller's own data (schedule, grades, fees).
	// Personal answers are never cached.
	Personal Intent = "personal"
	// Informational is a general knowledge-base question.
	Informational Intent = "informational"
	// OutOfDomain is unrelated to the university.
	OutOfDomain Intent = "out_of_domain"
)

// String implements fmt.Stringer.
func (i Intent) String() string { return string(i) }

var greetingPhrases = []string{
	"xin chào", "chào bạn", "chào bot", "chào em", "chào anh", "chào chị",
	"hello", "hi", "hey", "alo", "good morning", "good afternoon",
}

// personalPhrases narrows to explicit first-person intents so generic
// questions do not get pulled onto the personal path.
var personalPhrases = []string{
	"của tôi", "của mình", "của em", "tôi là ai",
	"lịch học của tôi", "tkb của tôi", "thời khóa biểu",
	"điểm của tôi", "bảng điểm", "học phí của tôi",
	"lịch thi", "lịch tuần", "hồ sơ của tôi", "thông tin của tôi",
	"tín chỉ của tôi", "my schedule", "my grades", "who am i",
	"hôm nay", "ngày mai", "tuần này", "tuần sau", "tháng này",
}

var domainKeywords = []string{
	"học", "trường", "sinh viên", "giảng viên", "dạy", "đại học", "lớp",
	"môn", "khoa", "điểm", "học phí", "tín chỉ", "đăng ký", "thi",
	"đề thi", "học bổng", "tuyển sinh", "ký túc xá", "thư viện",
	"báo cáo", "tạp chí", "nghiên cứu", "tốt nghiệp", "thầy", "cô",
}

// Keywords whose folded form collides with unrelated common words
// ("cô"→"co" in "công", "thi" folded from "thì", "dạy"→"day" folded
// from "đây"). These match in their accented form only.
var accentOnlyKeywords = map[string]struct{}{
	"cô": {}, "thi": {}, "dạy": {}, "thầy": {},
}

// Classify maps a normalized query to its intent class. Matching runs on
// both the diacritic-preserving text and its folded form, so unaccented
// typing classifies the same way. Domain keywords match on word
// boundaries, never inside longer words.
func Classify(normalized string) Intent {
	folded := fold(normalized)

	for _, p := range greetingPhrases {
		if normalized == p || folded == fold(p) {
			return Greeting
		}
	}
	for _, p := range personalPhrases {
		if strings.Contains(normalized, p) || strings.Contains(folded, fold(p)) {
			return Personal
		}
	}

	tokens := tokenize(normalized)
	foldedTokens := tokenize(folded)
	for _, kw := range domainKeywords {
		if hasPhrase(tokens, strings.Fields(kw)) {
			return Informational
		}
		if _, ok := accentOnlyKeywords[kw]; ok {
			continue
		}
		if hasPhrase(foldedTokens, strings.Fields(fold(kw))) {
			return Informational
		}
	}
	return OutOfDomain
}

// tokenize splits on whitespace and trims punctuation per token.
func tokenize(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, ".,!?;:()\"'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// hasPhrase reports whether phrase occurs in tokens as a contiguous run.
func hasPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Fold replaces Vietnamese accented letters with their base form.
func Fold(s string) string {
	return fold(s)
}

func fold(s string) string {
	return strings.Map(func(r rune) rune {
		if base, ok := foldPairs[r]; ok {
			return base
		}
		return r
	}, s)
}

var foldPairs = map[rune]rune{
	'à': 'a', 'á': 'a', 'ả': 'a', 'ã': 'a', 'ạ': 'a',
	'ă': 'a', 'ằ': 'a', 'ắ': 'a', 'ẳ': 'a', 'ẵ': 'a', 'ặ': 'a',
	'â': 'a', 'ầ': 'a', 'ấ': 'a', 'ẩ': 'a', 'ẫ': 'a', 'ậ': 'a',
	'è': 'e', 'é': 'e', 'ẻ': 'e', 'ẽ': 'e', 'ẹ': 'e',
	'ê': 'e', 'ề': 'e', 'ế': 'e', 'ể': 'e', 'ễ': 'e', 'ệ': 'e',
	'ì': 'i', 'í': 'i', 'ỉ': 'i', 'ĩ': 'i', 'ị': 'i',
	'ò': 'o', 'ó': 'o', 'ỏ': 'o', 'õ': 'o', 'ọ': 'o',
	'ô': 'o', 'ồ': 'o', 'ố': 'o', 'ổ': 'o', 'ỗ': 'o', 'ộ': 'o',
	'ơ': 'o', 'ờ': 'o', 'ớ': 'o', 'ở': 'o', 'ỡ': 'o', 'ợ': 'o',
	'ù': 'u', 'ú': 'u', 'ủ': 'u', 'ũ': 'u', 'ụ': 'u',
	'ư': 'u', 'ừ': 'u', 'ứ': 'u', 'ử': 'u', 'ữ': 'u', 'ự': 'u',
	'ỳ': 'y', 'ý': 'y', 'ỷ': 'y', 'ỹ': 'y', 'ỵ': 'y',
	'đ': 'd',
}

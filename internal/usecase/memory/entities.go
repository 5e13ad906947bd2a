package memory

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/uniqa-cloud/uniqa/internal/domain"
)

// Vietnamese honorific followed by a capitalized name, e.g. "thầy
// Hiệp", "cô Lan Anh". The name part must be capitalized so common
// nouns after an honorific ("thầy giáo") are not captured.
var personRe = regexp.MustCompile(`(?:[Tt]hầy|[Cc]ô|[Ôô]ng|[Bb]à|[Aa]nh|[Cc]hị)\s+(\p{Lu}\p{Ll}*(?:\s+\p{Lu}\p{Ll}*){0,2})`)

// Course mention after "môn", e.g. "môn Toán cao cấp" captures "Toán".
var courseRe = regexp.MustCompile(`[Mm]ôn\s+(\p{Lu}[\p{L}\d]*(?:\s+\p{Lu}[\p{L}\d]*){0,2})`)

// Location mention after "phòng"/"tòa"/"cơ sở", e.g. "phòng A305".
var locationRe = regexp.MustCompile(`(?:[Pp]hòng|[Tt]òa|[Cc]ơ sở)\s+(\p{Lu}[\p{L}\d]*)`)

// ExtractEntities scans a turn's text for people, courses and
// locations. The honorific is kept as the person's title attribute.
func ExtractEntities(text string, at time.Time) []domain.Entity {
	var out []domain.Entity

	for _, m := range personRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		title := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(m[0], name)))
		out = append(out, domain.Entity{
			Name:     name,
			Type:     domain.EntityPerson,
			Attrs:    map[string]string{"title": title},
			LastSeen: at,
		})
	}
	for _, m := range courseRe.FindAllStringSubmatch(text, -1) {
		out = append(out, domain.Entity{
			Name:     m[1],
			Type:     domain.EntityCourse,
			LastSeen: at,
		})
	}
	for _, m := range locationRe.FindAllStringSubmatch(text, -1) {
		out = append(out, domain.Entity{
			Name:     m[1],
			Type:     domain.EntityLocation,
			LastSeen: at,
		})
	}
	return out
}

// mergeEntities folds newly extracted entities into the known set.
// Attributes merge last-write-wins per key, never wholesale replace.
func mergeEntities(known map[string]domain.Entity, extracted []domain.Entity) {
	for _, e := range extracted {
		cur, ok := known[e.Name]
		if !ok {
			known[e.Name] = e
			continue
		}
		if cur.Attrs == nil {
			cur.Attrs = make(map[string]string)
		}
		for k, v := range e.Attrs {
			cur.Attrs[k] = v
		}
		cur.Type = e.Type
		cur.LastSeen = e.LastSeen
		known[e.Name] = cur
	}
}

// latestPerson returns the most recently mentioned person entity.
// Timestamp ties break on name for determinism.
func latestPerson(entities map[string]domain.Entity) (domain.Entity, bool) {
	var best domain.Entity
	found := false
	for _, e := range entities {
		if e.Type != domain.EntityPerson {
			continue
		}
		if !found || e.LastSeen.After(best.LastSeen) ||
			(e.LastSeen.Equal(best.LastSeen) && e.Name < best.Name) {
			best = e
			found = true
		}
	}
	return best, found
}

// Third-person references that can point back at a person entity.
var pronouns = []string{
	"ông ấy", "bà ấy", "thầy ấy", "cô ấy", "anh ấy", "chị ấy", "ổng", "bả",
}

// ReplacePronouns substitutes person pronouns in text with the entity's
// title and name. Matching is case-insensitive on the first letter.
func ReplacePronouns(text string, person domain.Entity) string {
	replacement := person.Name
	if title := person.Attrs["title"]; title != "" {
		replacement = title + " " + person.Name
	}

	for _, p := range pronouns {
		for _, variant := range []string{p, capitalizeFirst(p)} {
			text = strings.ReplaceAll(text, variant, replacement)
		}
	}
	return text
}

// ContextKeywords derives retrieval boost terms from tracked entities
// and the running summary's proper nouns. Ordered for determinism.
func ContextKeywords(snap domain.MemorySnapshot) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for name := range snap.Entities {
		add(name)
	}
	for _, noun := range summaryNouns(snap.Summary) {
		add(noun)
	}
	sort.Strings(out)
	return out
}

// summaryNouns picks capitalized words out of the running summary.
// Sentence-initial words are skipped so ordinary sentence starts are
// not mistaken for names.
func summaryNouns(summary string) []string {
	var out []string
	sentenceStart := true
	for _, f := range strings.Fields(summary) {
		w := strings.Trim(f, ".,!?;:()\"'")
		if w != "" && !sentenceStart {
			if r := []rune(w); unicode.IsUpper(r[0]) {
				out = append(out, w)
			}
		}
		sentenceStart = strings.ContainsAny(f, ".!?")
	}
	return out
}

func capitalizeFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

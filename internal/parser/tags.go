package parser

import (
	"strings"
	"unicode"
)

// NormalizeTag converts a free-form tag into lowercase kebab-case.
// Nested tags keep their "/" separators. Returns "" when nothing usable remains.
func NormalizeTag(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimLeft(s, "#")

	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case r == '/':
			trimTrailingHyphen(&b)
			b.WriteRune(r)
			lastHyphen = true
		default:
			// whitespace, underscores and punctuation collapse into one hyphen
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(b.String(), "-/")
	for strings.Contains(out, "//") {
		out = strings.ReplaceAll(out, "//", "/")
	}
	return out
}

func trimTrailingHyphen(b *strings.Builder) {
	s := b.String()
	if strings.HasSuffix(s, "-") {
		b.Reset()
		b.WriteString(strings.TrimRight(s, "-"))
	}
}

// NormalizeTags normalizes, deduplicates (first occurrence wins), and truncates
// tags to max entries. max <= 0 means no limit. The result is never nil.
func NormalizeTags(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

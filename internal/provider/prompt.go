// Package provider holds what the inference adapters share: prompts and
// response parsing for tag generation and summarization.
package provider

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxInputChars bounds the note text sent to a model.
const MaxInputChars = 12000

// MaxTagSuggestions is how many tags a model is asked for.
const MaxTagSuggestions = 8

const tagPrompt = `Suggest up to %d short topical tags for the following note.
Return ONLY the tags as a comma-separated list, lowercase, no explanations.

Note:
%s

Tags:`

const summaryPrompt = `Summarize the following note in one or two sentences.
Be concise and capture the key point. Return ONLY the summary.

Note:
%s

Summary:`

// TagPrompt builds the tag-generation prompt for text.
func TagPrompt(text string) string {
	return fmt.Sprintf(tagPrompt, MaxTagSuggestions, Truncate(text, MaxInputChars))
}

// SummaryPrompt builds the summarization prompt for text.
func SummaryPrompt(text string) string {
	return fmt.Sprintf(summaryPrompt, Truncate(text, MaxInputChars))
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ParseTagList extracts tags from a model reply. Models answer with commas,
// newlines, bullets or hashtags; all are accepted. Normalization is left to
// the caller.
func ParseTagList(reply string) []string {
	reply = strings.TrimSpace(reply)
	if i := strings.LastIndex(strings.ToLower(reply), "tags:"); i >= 0 {
		reply = reply[i+len("tags:"):]
	}
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = cleanTag(f)
		if strings.HasPrefix(f, "#") {
			// "#go #rust" style replies
			for _, w := range strings.Fields(f) {
				if w = cleanTag(w); w != "" {
					out = append(out, w)
				}
			}
			continue
		}
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func cleanTag(f string) string {
	f = strings.TrimSpace(f)
	f = strings.TrimLeft(f, "-*•0123456789.) ")
	f = strings.Trim(f, "\"'`[]")
	return strings.TrimSpace(f)
}

// CleanSummary trims whitespace and common lead-ins from a model reply.
func CleanSummary(reply string) string {
	s := strings.TrimSpace(reply)
	for _, prefix := range []string{"Summary:", "summary:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return strings.Trim(s, "\"")
}

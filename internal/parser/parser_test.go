package parser

import (
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - curator\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "curator" {
		t.Errorf("tags = %v, want [go curator]", r.Tags)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_EmptyFrontmatterIsPresent(t *testing.T) {
	r, err := Parse([]byte("---\n---\nbody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter == nil {
		t.Error("empty header should still count as frontmatter")
	}
	if r.Body != "body\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	r, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestRender_RoundTrip(t *testing.T) {
	fm := map[string]interface{}{
		"title": "Round trip",
		"tags":  []string{"alpha", "beta"},
	}
	data, err := Render(fm, "Body with [[link]].\n")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	r, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Title != "Round trip" {
		t.Errorf("title = %q", r.Title)
	}
	if len(r.Tags) != 2 || r.Tags[0] != "alpha" || r.Tags[1] != "beta" {
		t.Errorf("tags = %v", r.Tags)
	}
	if r.Body != "Body with [[link]].\n" {
		t.Errorf("body = %q", r.Body)
	}
	if len(r.Links) != 1 || r.Links[0] != "link" {
		t.Errorf("links = %v", r.Links)
	}
}

func TestRender_NoFrontmatter(t *testing.T) {
	data, err := Render(nil, "plain\n")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(data) != "plain\n" {
		t.Errorf("data = %q", data)
	}
}

func TestExtractLinks_Basic(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]] again and [[Note C#Heading]]."
	links := extractLinks(body)
	if len(links) != 3 {
		t.Fatalf("len(links) = %d, want 3", len(links))
	}
	if links[0] != "Note A" || links[1] != "Note B" || links[2] != "Note C" {
		t.Errorf("links = %v", links)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := extractLinks("see [[ ]] and [[|alias]]")
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"alpha"},
	}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestExtractTags_CommaString(t *testing.T) {
	tags := extractTags("", map[string]any{"tags": "one, two ,#three"})
	if len(tags) != 3 || tags[2] != "three" {
		t.Errorf("tags = %v", tags)
	}
}

func TestExtractTags_IgnoresCodeFences(t *testing.T) {
	tags := extractTags("```\n#include <stdio.h>\n```\nreal #tag", nil)
	if len(tags) != 1 || tags[0] != "tag" {
		t.Errorf("tags = %v, want [tag]", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	title := deriveTitle(map[string]any{"title": "FM Title"}, "# H1 Title\ntext")
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		body string
		want int
	}{
		{"", 0},
		{"one two  three\nfour", 4},
		{"# Heading\n- item one", 3},
		{"before\n```go\nfunc main() {}\n```\nafter", 2},
	}
	for _, tc := range cases {
		if got := WordCount(tc.body); got != tc.want {
			t.Errorf("WordCount(%q) = %d, want %d", tc.body, got, tc.want)
		}
	}
}

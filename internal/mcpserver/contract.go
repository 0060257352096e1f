package mcpserver

// NoteFormatContract describes the Markdown note format the curator reads
// and the frontmatter fields it writes back after a pass.
const NoteFormatContract = `# Curator Note Format Contract

Every note is a UTF-8 Markdown file ending in ` + "`" + `.md` + "`" + `, optionally
starting with a YAML frontmatter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # recommended; otherwise the first H1 is used
tags:                               # YAML list or comma-separated string
  - tag-one
---

Body text in standard Markdown. Inline #tags are picked up too.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Quality rubric

A note is scored in [0,1] from its structure alone:

- frontmatter present: +0.20
- body length: 300+ words +0.40, 100+ words +0.25, 30+ words +0.10
- tags: 3+ tags +0.20, 1-2 tags +0.10
- wikilinks: 3+ links +0.20, 1-2 links +0.10

Levels: excellent >= 0.8, good >= 0.6, fair >= 0.3, poor below.
Notes scoring below the cost gate threshold (0.3 by default) are not sent
to AI providers.

## Fields written by the pipeline

| Key | Meaning |
|---|---|
| ` + "`" + `tags` + "`" + ` | existing tags merged with AI tags, lowercase kebab-case |
| ` + "`" + `summary` + "`" + ` | one-paragraph AI summary (absent in fast mode) |
| ` + "`" + `quality_score` + "`" + ` | structural score in [0,1] |
| ` + "`" + `quality_level` + "`" + ` | poor, fair, good or excellent |
| ` + "`" + `related` + "`" + ` | suggested [[wikilinks]] to similar notes |
| ` + "`" + `enhanced_by` + "`" + ` | provider that produced tags and summary |
| ` + "`" + `enhanced_at` + "`" + ` | RFC 3339 time of the last pass |

Other frontmatter keys and the body are preserved untouched. A note edited
while a pass is running is not overwritten; run the pass again.

## Example

` + "```" + `markdown
---
title: Go scheduler
tags:
  - golang
  - concurrency
summary: How the Go runtime multiplexes goroutines onto OS threads.
quality_score: 0.65
quality_level: good
related:
  - "[[goroutines]]"
enhanced_by: ollama/llama3.2
enhanced_at: "2025-01-20T10:00:00Z"
---

# Go scheduler

The runtime uses an M:N scheduler. See [[channels]].
` + "```" + `
`

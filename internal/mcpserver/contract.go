package mcpserver

// DocumentFormatContract describes the Quarto document conventions Perth
// understands and the shape of rendered output.
const DocumentFormatContract = `# Perth Document Format Contract

Perth renders Quarto (` + "`" + `.qmd` + "`" + `) documents stored in git repositories. Rendering
happens once per commit; the same file at the same commit always returns the
same cached result.

## Source structure

~~~~markdown
---
title: Quarterly report            # YAML frontmatter, optional
author: maria
---

# Heading

A paragraph with a [marked phrase]{.comment ref="c1"} and an
image ![scatter plot](figures/scatter.png).

` + "```" + `{python}
#| echo: false
plot(df)
` + "```" + `

` + "```" + `comments
- id: c1
  author: maria
  created: 2026-08-01
  body: Is this the right baseline?
` + "```" + `
~~~~

## Rules

1. **Frontmatter** is an optional leading ` + "`" + `---` + "`" + ` fenced YAML block. Malformed
   frontmatter is ignored; the document still renders.
2. **Comment markers** use Pandoc span syntax: ` + "`" + `[text]{.comment ref="ID"}` + "`" + `.
   The ID must match an entry in the comment appendix; markers with no
   matching entry are kept but flagged as dangling.
3. **The comment appendix** is a fenced block with info string ` + "`" + `comments` + "`" + ` at
   the very end of the file, containing a YAML list of objects with ` + "`" + `id` + "`" + `
   (required), ` + "`" + `author` + "`" + `, ` + "`" + `created` + "`" + `, and ` + "`" + `body` + "`" + `. A malformed appendix yields
   an empty comment set; the document text is untouched.
4. **Executable chunks** are fenced blocks with a braced info string like
   ` + "`" + `{python}` + "`" + `. Leading ` + "`" + `#|` + "`" + ` lines are chunk options. A chunk that fails to
   execute reports its error inline; the rest of the document still renders.
5. **Images** with relative paths are copied out of the commit and the ` + "`" + `src` + "`" + `
   in the rendered tree points at the served copy. Remote and absolute URLs
   pass through unchanged.
6. Lists, blockquotes, and tables are not rendered in the tree.

## Rendered output

` + "`" + `render_document` + "`" + ` returns JSON:

- ` + "`" + `commit` + "`" + ` — the full commit hash the render is pinned to.
- ` + "`" + `doc.meta` + "`" + ` — parsed frontmatter key/value pairs.
- ` + "`" + `doc.nodes` + "`" + ` — ordered nodes, each typed ` + "`" + `heading` + "`" + `, ` + "`" + `paragraph` + "`" + `, or
  ` + "`" + `quartoBlock` + "`" + `. Paragraph ` + "`" + `inlines` + "`" + ` carry plain text runs, comment spans
  (with ` + "`" + `commentId` + "`" + `), and images. Quarto blocks carry the chunk engine,
  options, source, and rendered output (or an ` + "`" + `error` + "`" + `).
- ` + "`" + `comments` + "`" + ` — the extracted appendix entries.
`

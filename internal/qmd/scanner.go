package qmd

import "strings"

// scanInlines splits a paragraph's text into inline segments. It is an
// explicit left-to-right scanner: at each position the first complete
// image reference (![alt](src)) or comment span ([text]{.comment
// ref="id"}) wins, marks never overlap or nest, and anything that fails
// to parse as a marker is kept as literal text.
//
// known is the set of comment IDs present in the appendix; a span whose
// ID is absent is emitted with CommentMissing set, never dropped.
func scanInlines(text string, known map[string]struct{}) []Inline {
	var out []Inline
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			out = append(out, Inline{Text: plain.String()})
			plain.Reset()
		}
	}

	i := 0
	for i < len(text) {
		switch {
		case text[i] == '!' && i+1 < len(text) && text[i+1] == '[':
			if img, next, ok := scanImage(text, i); ok {
				flush()
				out = append(out, Inline{Image: img})
				i = next
				continue
			}
		case text[i] == '[':
			if span, next, ok := scanCommentSpan(text, i); ok {
				flush()
				if _, found := known[span.CommentID]; !found {
					span.CommentMissing = true
				}
				out = append(out, span)
				i = next
				continue
			}
		}
		plain.WriteByte(text[i])
		i++
	}
	flush()
	return out
}

// scanImage parses ![alt](src) starting at text[start] == '!'.
// Returns the image, the index past the closing parenthesis, and whether
// a complete reference was found.
func scanImage(text string, start int) (*Image, int, bool) {
	altEnd := strings.IndexByte(text[start+2:], ']')
	if altEnd < 0 {
		return nil, 0, false
	}
	altEnd += start + 2
	if altEnd+1 >= len(text) || text[altEnd+1] != '(' {
		return nil, 0, false
	}
	srcEnd := strings.IndexByte(text[altEnd+2:], ')')
	if srcEnd < 0 {
		return nil, 0, false
	}
	srcEnd += altEnd + 2
	src := strings.TrimSpace(text[altEnd+2 : srcEnd])
	if src == "" {
		return nil, 0, false
	}
	return &Image{Src: src, Alt: text[start+2 : altEnd]}, srcEnd + 1, true
}

const spanAttrOpen = `{.comment ref="`

// scanCommentSpan parses [inner]{.comment ref="id"} starting at
// text[start] == '['. The inner text is taken literally; a span cannot
// contain another span.
func scanCommentSpan(text string, start int) (Inline, int, bool) {
	innerEnd := strings.IndexByte(text[start+1:], ']')
	if innerEnd < 0 {
		return Inline{}, 0, false
	}
	innerEnd += start + 1

	rest := text[innerEnd+1:]
	if !strings.HasPrefix(rest, spanAttrOpen) {
		return Inline{}, 0, false
	}
	idEnd := strings.IndexByte(rest[len(spanAttrOpen):], '"')
	if idEnd < 0 {
		return Inline{}, 0, false
	}
	id := rest[len(spanAttrOpen) : len(spanAttrOpen)+idEnd]
	after := len(spanAttrOpen) + idEnd + 1
	if id == "" || after >= len(rest) || rest[after] != '}' {
		return Inline{}, 0, false
	}

	next := innerEnd + 1 + after + 1
	return Inline{Text: text[start+1 : innerEnd], CommentID: id}, next, true
}

// flattenText reduces inline content to plain text: comment markers keep
// their inner text, images keep their alt text, and emphasis delimiters
// are stripped. Used for headings, whose inline formatting is not
// preserved in the current tree model.
func flattenText(text string) string {
	var b strings.Builder
	for _, in := range scanInlines(text, nil) {
		switch {
		case in.Image != nil:
			b.WriteString(in.Image.Alt)
		default:
			b.WriteString(in.Text)
		}
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '_', '`':
			return -1
		}
		return r
	}, b.String())
}

// Package comments extracts the review-comment appendix from raw document
// source.
//
// The appendix is a trailing fenced block whose info string is "comments"
// and whose body is a YAML list:
//
//	```comments
//	- id: c1
//	  author: alice
//	  body: Needs a citation.
//	```
//
// Extraction never alters a single byte of the text before the stripped
// region; the parser's inline span scanner indexes into that text as-is.
package comments

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const fenceHeader = "```comments\n"

// Comment is one review comment from the appendix, referenced from inline
// marks in the document tree by ID.
type Comment struct {
	ID      string `yaml:"id" json:"id"`
	Author  string `yaml:"author,omitempty" json:"author,omitempty"`
	Created string `yaml:"created,omitempty" json:"created,omitempty"`
	Body    string `yaml:"body" json:"body"`
}

// Extract splits the trailing comment appendix off raw and returns the
// comments in appendix order plus the remaining text. An absent or
// malformed appendix yields an empty comment set and raw unchanged; a
// document without comments still renders.
func Extract(raw string) ([]Comment, string) {
	start := appendixStart(raw)
	if start < 0 {
		return nil, raw
	}

	body := raw[start+len(fenceHeader):]
	end := strings.Index(body, "\n```")
	if end < 0 {
		return nil, raw
	}
	// The closing fence must end the document (trailing whitespace aside);
	// a comments fence in the middle of the source is not an appendix.
	if strings.TrimSpace(body[end+len("\n```"):]) != "" {
		return nil, raw
	}

	var out []Comment
	if err := yaml.Unmarshal([]byte(body[:end]), &out); err != nil {
		return nil, raw
	}
	for _, c := range out {
		if c.ID == "" {
			return nil, raw
		}
	}
	return out, raw[:start]
}

// IDSet returns the set of comment IDs for mark validation.
func IDSet(cs []Comment) map[string]struct{} {
	if len(cs) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		set[c.ID] = struct{}{}
	}
	return set
}

// appendixStart returns the byte offset of the appendix fence header, or -1.
// The header must begin the document or follow a newline.
func appendixStart(raw string) int {
	if strings.HasPrefix(raw, fenceHeader) {
		return 0
	}
	idx := strings.LastIndex(raw, "\n"+fenceHeader)
	if idx < 0 {
		return -1
	}
	return idx + 1
}

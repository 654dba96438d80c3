// Package qmd parses Quarto documents into the tagged node tree consumed
// by the editor.
//
// Supported block kinds are headings, paragraphs, and executable chunks.
// Other Markdown blocks (lists, blockquotes, tables) are dropped from the
// tree, and inline emphasis is flattened to its literal text. Both are
// scoped limitations of the current tree model, pinned by tests, not
// silent misbehavior.
package qmd

import (
	"context"
	"encoding/json"
	"fmt"
)

// NodeType is the closed set of tree node kinds.
type NodeType int

const (
	NodeHeading NodeType = iota
	NodeParagraph
	NodeQuartoBlock
)

var nodeTypeNames = map[NodeType]string{
	NodeHeading:     "heading",
	NodeParagraph:   "paragraph",
	NodeQuartoBlock: "quartoBlock",
}

func (t NodeType) String() string {
	if s, ok := nodeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// MarshalJSON encodes the node type as its wire name.
func (t NodeType) MarshalJSON() ([]byte, error) {
	s, ok := nodeTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("qmd: unknown node type %d", int(t))
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes a wire name back to a node type. Unknown names are
// an error: a cache entry written by a newer format must not load silently.
func (t *NodeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range nodeTypeNames {
		if v == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("qmd: unknown node type %q", s)
}

// Document is the parsed tree. Front-matter is document-level metadata,
// never a content node; Nodes preserve source order.
type Document struct {
	Meta  map[string]any `json:"meta,omitempty"`
	Nodes []Node         `json:"nodes"`
}

// Node is one tree node. Exactly the fields for its Type are set:
// Level+Text for headings, Inlines for paragraphs, Chunk for quartoBlocks.
type Node struct {
	Type    NodeType `json:"type"`
	Level   int      `json:"level,omitempty"`
	Text    string   `json:"text,omitempty"`
	Inlines []Inline `json:"inlines,omitempty"`
	Chunk   *Chunk   `json:"chunk,omitempty"`
}

// Inline is one segment of paragraph content: a plain text run, a text run
// marked with a comment reference, or an image.
type Inline struct {
	Text           string `json:"text,omitempty"`
	CommentID      string `json:"commentId,omitempty"`
	CommentMissing bool   `json:"commentMissing,omitempty"`
	Image          *Image `json:"image,omitempty"`
}

// Image is an inline image reference. Src is rewritten to a served URL by
// asset materialization; Warning carries a per-asset lookup failure.
type Image struct {
	Src     string `json:"src"`
	Alt     string `json:"alt,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Chunk is an executable code block. Output holds the renderer's HTML
// verbatim; Err holds a captured execution failure. Either may be set,
// never both.
type Chunk struct {
	Engine  string `json:"engine"`
	Options string `json:"options,omitempty"`
	Code    string `json:"code"`
	Output  string `json:"output,omitempty"`
	Err     string `json:"error,omitempty"`
}

// ChunkRenderer executes one chunk. It is an external collaborator (a
// sandboxed interpreter); a failed execution returns an error which the
// parser captures inside the node rather than propagating.
type ChunkRenderer interface {
	Render(ctx context.Context, code, options string) (string, error)
}

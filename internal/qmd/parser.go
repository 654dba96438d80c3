package qmd

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var chunkInfoRe = regexp.MustCompile(`^\{([A-Za-z][A-Za-z0-9_]*)\s*[,]?\s*(.*)\}$`)

// Parse turns document body text (comment appendix already stripped) into
// a tree. Executable chunks are rendered through renderer as they are
// encountered; a chunk failure is captured in its node and parsing
// continues. known is the appendix comment ID set used to validate inline
// marks. Parse itself never fails: malformed front-matter degrades to
// empty metadata, unsupported blocks are dropped.
func Parse(ctx context.Context, src string, renderer ChunkRenderer, known map[string]struct{}) *Document {
	meta, body := splitFrontmatter([]byte(src))

	doc := &Document{Meta: meta}

	lines := strings.Split(body, "\n")
	var para []string

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		text := strings.Join(para, " ")
		para = nil
		doc.Nodes = append(doc.Nodes, Node{
			Type:    NodeParagraph,
			Inlines: scanInlines(text, known),
		})
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flushPara()

		case strings.HasPrefix(line, "```"):
			flushPara()
			info := strings.TrimSpace(line[3:])
			var code []string
			for i++; i < len(lines); i++ {
				if strings.HasPrefix(lines[i], "```") {
					break
				}
				code = append(code, lines[i])
			}
			if engine, opts, ok := parseChunkInfo(info); ok {
				doc.Nodes = append(doc.Nodes, renderChunk(ctx, renderer, engine, opts, code))
			}
			// Non-executable fences are dropped from the tree.

		case headingLevel(line) > 0:
			flushPara()
			level := headingLevel(line)
			doc.Nodes = append(doc.Nodes, Node{
				Type:  NodeHeading,
				Level: level,
				Text:  flattenText(strings.TrimSpace(line[level+1:])),
			})

		case isUnsupportedBlock(trimmed):
			// Lists, blockquotes, and tables are not in the tree model;
			// the line is dropped rather than mis-rendered as prose.
			flushPara()

		default:
			para = append(para, trimmed)
		}
	}
	flushPara()

	return doc
}

// renderChunk invokes the external chunk renderer and builds the
// quartoBlock node. Execution failure becomes the node's error payload.
func renderChunk(ctx context.Context, renderer ChunkRenderer, engine, opts string, codeLines []string) Node {
	opts, code := liftOptionLines(opts, codeLines)
	chunk := &Chunk{Engine: engine, Options: opts, Code: code}

	if renderer == nil {
		chunk.Err = "no chunk renderer configured"
		return Node{Type: NodeQuartoBlock, Chunk: chunk}
	}
	out, err := renderer.Render(ctx, code, opts)
	if err != nil {
		chunk.Err = err.Error()
	} else {
		chunk.Output = out
	}
	return Node{Type: NodeQuartoBlock, Chunk: chunk}
}

// parseChunkInfo recognizes an executable fence info string of the form
// {engine} or {engine, options}. A plain language tag without braces is
// an ordinary code block, not a chunk.
func parseChunkInfo(info string) (engine, opts string, ok bool) {
	m := chunkInfoRe.FindStringSubmatch(info)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// liftOptionLines moves leading "#|" option lines out of the chunk body
// and appends them to the brace options, so the renderer receives one
// options string and the stored code is the executable source alone.
func liftOptionLines(opts string, codeLines []string) (string, string) {
	var optLines []string
	i := 0
	for ; i < len(codeLines); i++ {
		t := strings.TrimSpace(codeLines[i])
		if rest, found := strings.CutPrefix(t, "#|"); found {
			optLines = append(optLines, strings.TrimSpace(rest))
			continue
		}
		break
	}
	if len(optLines) > 0 {
		joined := strings.Join(optLines, "\n")
		if opts == "" {
			opts = joined
		} else {
			opts = opts + "\n" + joined
		}
	}
	return opts, strings.Join(codeLines[i:], "\n")
}

// headingLevel returns the ATX heading level of a line (1–6), or 0.
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n >= len(line) || line[n] != ' ' {
		return 0
	}
	return n
}

// isUnsupportedBlock reports block starters outside the tree model.
func isUnsupportedBlock(trimmed string) bool {
	for _, p := range []string{"- ", "* ", "+ ", "> ", "|"} {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	// Ordered list: digits followed by ". ".
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	return i > 0 && strings.HasPrefix(trimmed[i:], ". ")
}

// splitFrontmatter separates YAML front-matter (between leading ---
// delimiters) from the Markdown body. Absent or malformed front-matter
// yields empty metadata with the full content as body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter — treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var meta map[string]any
	if err := yaml.Unmarshal(yamlBlock, &meta); err != nil {
		return nil, string(data)
	}
	return meta, body
}

// Package chunker splits source files into chunks along syntax boundaries.
package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"repochat/internal/domain"
)

// span is a half-open byte range of a document.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Chunker produces chunks between Min and Max bytes. Syntax-aware
// splitting is used when a grammar exists for the document; otherwise
// text is split on headings, blank lines and line breaks.
type Chunker struct {
	Min int
	Max int
}

// New creates a chunker with the given bounds.
func New(minSize, maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 2048
	}
	if minSize < 0 || minSize > maxSize {
		minSize = 0
	}
	return &Chunker{Min: minSize, Max: maxSize}
}

// ChunkID derives a stable chunk ID from the document path and ordinal.
func ChunkID(path string, ordinal int) string {
	sum := sha1.Sum([]byte(path + "#" + strconv.Itoa(ordinal)))
	return hex.EncodeToString(sum[:])
}

// Chunk splits doc. Whitespace-only documents yield no chunks.
func (c *Chunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	src := []byte(doc.Content)
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	var spans []span
	if lang := grammarFor(doc.Language, filepath.Ext(doc.Path)); lang != nil {
		var err error
		spans, err = c.syntaxSpans(lang, src)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", doc.Path, err)
		}
	} else if isMarkdown(doc.Language, doc.Path) {
		spans = c.markdownSpans(src)
	} else {
		spans = c.lineSpans(src, span{0, len(src)})
	}
	spans = c.merge(spans)

	chunks := make([]domain.Chunk, 0, len(spans))
	for _, s := range spans {
		text := string(src[s.start:s.end])
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		lead := len(text) - len(strings.TrimLeft(text, " \t\r\n"))
		startLine := lineAt(src, s.start+lead)
		endLine := startLine + strings.Count(trimmed, "\n")
		ordinal := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(doc.Path, ordinal),
			DocumentID: doc.ID,
			Path:       doc.Path,
			Index:      ordinal,
			StartLine:  startLine,
			EndLine:    endLine,
			Text:       trimmed,
			Metadata: map[string]string{
				domain.MetaPath:     doc.Path,
				domain.MetaLanguage: doc.Language,
				domain.MetaLines:    fmt.Sprintf("%d-%d", startLine, endLine),
			},
		})
	}
	return chunks, nil
}

// syntaxSpans walks the syntax tree, keeping whole nodes together where
// they fit and descending into nodes that exceed Max.
func (c *Chunker) syntaxSpans(lang *sitter.Language, src []byte) ([]span, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(lang); err != nil {
		return nil, err
	}
	tree := parser.Parse(src, nil)
	if tree == nil {
		return c.lineSpans(src, span{0, len(src)}), nil
	}
	defer tree.Close()

	root := tree.RootNode()
	var spans []span
	end := c.splitNode(root, src, 0, &spans)
	if end < len(src) {
		spans = appendOrExtend(spans, span{end, len(src)}, c.Max)
	}
	return spans, nil
}

// splitNode appends spans covering [from, node end) and returns the offset
// where coverage stopped.
func (c *Chunker) splitNode(node *sitter.Node, src []byte, from int, spans *[]span) int {
	cur := span{from, from}
	flush := func() {
		if cur.len() > 0 {
			*spans = append(*spans, cur)
		}
		cur = span{cur.end, cur.end}
	}

	count := node.ChildCount()
	if count == 0 {
		end := int(node.EndByte())
		*spans = append(*spans, c.lineSpans(src, span{from, end})...)
		return end
	}

	for i := uint(0); i < count; i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		childEnd := int(child.EndByte())
		if childEnd <= cur.end {
			continue
		}
		switch {
		case childEnd-int(child.StartByte()) > c.Max:
			// too big on its own: emit what we have and descend
			flush()
			cur.end = c.splitNode(child, src, cur.end, spans)
			cur.start = cur.end
		case childEnd-cur.start > c.Max:
			flush()
			cur.end = childEnd
		default:
			cur.end = childEnd
		}
	}
	flush()
	return cur.end
}

// lineSpans splits s on line boundaries into pieces of at most Max bytes.
// Single lines longer than Max are cut at rune boundaries.
func (c *Chunker) lineSpans(src []byte, s span) []span {
	var out []span
	cur := span{s.start, s.start}
	pos := s.start
	for pos < s.end {
		nl := pos
		for nl < s.end && src[nl] != '\n' {
			nl++
		}
		lineEnd := min(nl+1, s.end)

		if lineEnd-pos > c.Max {
			if cur.len() > 0 {
				out = append(out, cur)
			}
			out = append(out, c.cutLine(src, span{pos, lineEnd})...)
			cur = span{lineEnd, lineEnd}
		} else if lineEnd-cur.start > c.Max {
			out = append(out, cur)
			cur = span{pos, lineEnd}
		} else {
			cur.end = lineEnd
		}
		pos = lineEnd
	}
	if cur.len() > 0 {
		out = append(out, cur)
	}
	return out
}

func (c *Chunker) cutLine(src []byte, s span) []span {
	var out []span
	start := s.start
	for start < s.end {
		end := min(start+c.Max, s.end)
		for end < s.end && end > start && !utf8.RuneStart(src[end]) {
			end--
		}
		if end == start {
			end = min(start+c.Max, s.end)
		}
		out = append(out, span{start, end})
		start = end
	}
	return out
}

// merge joins adjacent spans while the left one is below Min and the
// result stays within Max.
func (c *Chunker) merge(spans []span) []span {
	if len(spans) == 0 {
		return spans
	}
	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if last.end == s.start && (last.len() < c.Min || s.len() < c.Min) && last.len()+s.len() <= c.Max {
			last.end = s.end
			continue
		}
		out = append(out, s)
	}
	return out
}

func appendOrExtend(spans []span, s span, maxSize int) []span {
	if n := len(spans); n > 0 && spans[n-1].end == s.start && spans[n-1].len()+s.len() <= maxSize {
		spans[n-1].end = s.end
		return spans
	}
	return append(spans, s)
}

// lineAt returns the 1-based line number of byte offset off.
func lineAt(src []byte, off int) int {
	return 1 + strings.Count(string(src[:off]), "\n")
}

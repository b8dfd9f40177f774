package chunker

import "bytes"

// markdownSpans splits on ATX headings, then on blank lines within
// sections that exceed Max, then on lines.
func (c *Chunker) markdownSpans(src []byte) []span {
	var sections []span
	start, pos := 0, 0
	inFence := false
	for pos < len(src) {
		nl := bytes.IndexByte(src[pos:], '\n')
		lineEnd := len(src)
		if nl >= 0 {
			lineEnd = pos + nl + 1
		}
		line := bytes.TrimSpace(src[pos:lineEnd])
		if bytes.HasPrefix(line, []byte("```")) {
			inFence = !inFence
		}
		if !inFence && bytes.HasPrefix(line, []byte("#")) && pos > start {
			sections = append(sections, span{start, pos})
			start = pos
		}
		pos = lineEnd
	}
	if start < len(src) {
		sections = append(sections, span{start, len(src)})
	}

	var out []span
	for _, s := range sections {
		if s.len() <= c.Max {
			out = append(out, s)
			continue
		}
		var pieces []span
		for _, p := range paragraphs(src, s) {
			if p.len() <= c.Max {
				pieces = appendOrExtend(pieces, p, c.Max)
			} else {
				pieces = append(pieces, c.lineSpans(src, p)...)
			}
		}
		out = append(out, pieces...)
	}
	return out
}

// paragraphs splits s after each blank line.
func paragraphs(src []byte, s span) []span {
	var out []span
	start := s.start
	for i := s.start; i+1 < s.end; i++ {
		if src[i] == '\n' && src[i+1] == '\n' {
			out = append(out, span{start, i + 2})
			start = i + 2
			i++
		}
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"repochat/internal/domain"
	"repochat/internal/llm/extractive"
	"repochat/internal/provider"
)

const subquestionPrompt = `Your job is to help a search engine find relevant code.
Rewrite the question below as up to %d standalone sub-questions that, taken
together, cover what is needed to answer it. Write one question per line and
nothing else.

%s %s
`

const answerPrompt = `Answer the question using only the context below. The context is
code from the repository, each snippet preceded by its file and line range.
If the context does not contain the answer, say so.

%s %s

Context:
%s
`

// listMarker matches bullets and numbering in front of a generated line.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|Q\d+:)\s*`)

// AnswerPrompt renders the answer prompt for question and its context.
func AnswerPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	for _, r := range results {
		c := r.Chunk
		fmt.Fprintf(&b, "--- %s:%d-%d\n", c.Path, c.StartLine, c.EndLine)
		if qa := c.Metadata[domain.MetaQA]; qa != "" {
			b.WriteString(qa)
			b.WriteString("\n")
		}
		b.WriteString("```\n")
		b.WriteString(c.Text)
		b.WriteString("\n```\n")
	}
	if len(results) == 0 {
		b.WriteString("(no matching code)\n")
	}
	return fmt.Sprintf(answerPrompt, extractive.QuestionPrefix, question, b.String())
}

func (p *Pipeline) subquestions(ctx context.Context, h *provider.Handle, question string, n int) ([]string, error) {
	prompt := fmt.Sprintf(subquestionPrompt, n, extractive.QuestionPrefix, question)
	text, err := h.Completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseSubquestions(text, n), nil
}

// ParseSubquestions extracts at most n question lines from a completion.
// Lines not ending in a question mark are ignored.
func ParseSubquestions(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if !strings.HasSuffix(line, "?") || len(line) < 3 {
			continue
		}
		if q, ok := strings.CutPrefix(line, extractive.QuestionPrefix); ok {
			line = strings.TrimSpace(q)
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

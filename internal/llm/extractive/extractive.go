// Package extractive is an offline completer. It answers a prompt by
// selecting the lines of the prompt's context that best match the
// question, ranked by token frequency.
package extractive

import (
	"context"
	"math"
	"sort"
	"strings"

	"repochat/internal/textutil"
)

// QuestionPrefix marks the line of a prompt holding the question.
const QuestionPrefix = "Question:"

// Completer ranks prompt lines against the question.
type Completer struct {
	maxLines int
}

// NewCompleter creates an extractive completer returning at most maxLines lines.
func NewCompleter(maxLines int) *Completer {
	if maxLines <= 0 {
		maxLines = 5
	}
	return &Completer{maxLines: maxLines}
}

// Complete returns the best matching context lines in their original order.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var question string
	var lines []string
	for _, line := range strings.Split(prompt, "\n") {
		trimmed := strings.TrimSpace(line)
		if q, ok := strings.CutPrefix(trimmed, QuestionPrefix); ok {
			question = strings.TrimSpace(q)
			continue
		}
		if len(trimmed) < 3 || strings.HasPrefix(trimmed, "```") {
			continue
		}
		lines = append(lines, trimmed)
	}
	if len(lines) == 0 {
		return question, nil
	}

	weights := c.weights(question, lines)

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(lines))
	for i, line := range lines {
		toks := textutil.Tokens(line)
		s := 0.0
		for _, tok := range toks {
			s += weights[tok]
		}
		// normalize by length to avoid bias toward long lines
		if len(toks) > 0 {
			s /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = pair{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(c.maxLines, len(scores))
	selected := make([]int, 0, n)
	for _, p := range scores[:n] {
		if p.score > 0 || len(selected) == 0 {
			selected = append(selected, p.idx)
		}
	}
	// keep original order among selected
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = lines[idx]
	}
	return strings.Join(out, "\n"), nil
}

// weights favors question tokens; without a question it falls back to
// normalized frequency over all lines.
func (c *Completer) weights(question string, lines []string) map[string]float64 {
	freq := map[string]float64{}
	for _, line := range lines {
		for _, tok := range textutil.Tokens(line) {
			freq[tok]++
		}
	}
	if qt := textutil.Tokens(question); len(qt) > 0 {
		w := make(map[string]float64, len(qt))
		for _, tok := range qt {
			if f := freq[tok]; f > 0 {
				// rarer matches are more specific
				w[tok] = 1 + 1/f
			}
		}
		if len(w) > 0 {
			return w
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

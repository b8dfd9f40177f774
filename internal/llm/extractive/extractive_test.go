package extractive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_PicksLinesMatchingQuestion(t *testing.T) {
	prompt := `Answer using the context.
Context:
fn load_config(path: &Path) -> Config {
    let raw = fs::read_to_string(path).unwrap();
fn render_spinner(frame: usize) {
Question: where is the config loaded?`

	out, err := NewCompleter(1).Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "fn load_config(path: &Path) -> Config {", out)
}

func TestComplete_KeepsOriginalOrder(t *testing.T) {
	prompt := "alpha beta\ngamma\nbeta alpha alpha\nQuestion: alpha"

	out, err := NewCompleter(2).Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta\nbeta alpha alpha", out)
}

func TestComplete_NoQuestionSummarizes(t *testing.T) {
	prompt := "parser parser tokens\nunrelated words here\nparser again"

	out, err := NewCompleter(1).Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "parser parser tokens", out)
}

func TestComplete_Deterministic(t *testing.T) {
	prompt := "one line\nanother line\nQuestion: line"
	c := NewCompleter(3)
	a, err := c.Complete(context.Background(), prompt)
	require.NoError(t, err)
	b, err := c.Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComplete_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCompleter(1).Complete(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

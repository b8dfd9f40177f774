package domain

import "context"

// Document represents a single source file loaded from the repository.
type Document struct {
	ID       string
	Path     string // slash-separated, relative to the repository root
	Language string
	Content  string
}

// Chunk is a bounded slice of a document, the unit indexed and retrieved.
type Chunk struct {
	ID         string
	DocumentID string
	Path       string
	Index      int
	StartLine  int
	EndLine    int
	Text       string
	Metadata   map[string]string
}

// Metadata keys written by the indexing pipeline.
const (
	MetaQA       = "questions_and_answers"
	MetaPath     = "path"
	MetaLanguage = "language"
	MetaLines    = "lines"
)

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Fragment is one piece of a streamed completion. A non-nil Err ends the stream.
type Fragment struct {
	Text string
	Err  error
}

// StreamCompleter is implemented by backends that can stream a completion.
// The returned channel is closed when the completion ends.
type StreamCompleter interface {
	Completer
	CompleteStream(ctx context.Context, prompt string) (<-chan Fragment, error)
}

// Embedder converts a batch of texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

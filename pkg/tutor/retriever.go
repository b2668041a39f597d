package tutor

import "context"

// Passage is one retrieved course excerpt.
type Passage struct {
	Text   string
	Source string
}

// Retriever looks up course material for a subject. Implementations live
// outside this module; NoopRetriever is used when none is configured.
type Retriever interface {
	Retrieve(ctx context.Context, subject Subject, query string) ([]Passage, error)
}

type NoopRetriever struct{}

func (NoopRetriever) Retrieve(context.Context, Subject, string) ([]Passage, error) { return nil, nil }

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, subject Subject, query string) ([]Passage, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, subject Subject, query string) ([]Passage, error) {
	return f(ctx, subject, query)
}

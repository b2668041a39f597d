package llm

import (
	"context"
	"strings"
)

// Collect drains a token stream into one string. It returns what was read so
// far together with ctx.Err() when ctx ends first.
func Collect(ctx context.Context, tokens <-chan string) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				return b.String(), nil
			}
			b.WriteString(tok)
		}
	}
}

// Generate is the non-streaming convenience around Stream.
func Generate(ctx context.Context, g Generator, req Request) (string, error) {
	ch, err := g.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return Collect(ctx, ch)
}

package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one generation call. Model overrides the generator default when
// set; Temperature 0 leaves the vendor default.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Generator streams reply fragments. The channel is finite and closed by the
// generator when the reply ends or ctx is cancelled; it cannot be restarted.
type Generator interface {
	Name() string
	Stream(ctx context.Context, req Request) (<-chan string, error)
}

// NewRequest builds the common system + user message pair.
func NewRequest(model, system, user string) Request {
	req := Request{Model: model}
	if system != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: user})
	return req
}
